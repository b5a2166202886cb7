// Package index implements the sector/region hierarchy and the dense
// (sector,region) -> position bijection that a Table is built over.
//
// A freshly built IndexSet holds only super sectors and super regions;
// InsertSubsectors/InsertSubregions later split one of them into finer
// entries without disturbing the identity of everything else. Splitting
// shifts the total index of every sector/region positioned after the split
// point, which is why RebuildIndices must run again after every split.
package index

import (
	"fmt"

	apperrors "github.com/pik-piam/mrio-disagg/pkg/errors"
)

// IndexSet tracks the sector and region hierarchies for a table and the
// dense bijection from a (sector,region) leaf pair to a flat array position.
type IndexSet struct {
	sectorsByName map[string]*Sector
	regionsByName map[string]*Region

	superSectors []*Sector
	superRegions []*Region
	subSectors   []*Sector
	subRegions   []*Region

	indices []int // len = totalSectors*totalRegions, -1 where no pair is defined

	size         int
	totalSectors int
	totalRegions int
}

// New returns an empty IndexSet.
func New() *IndexSet {
	return &IndexSet{
		sectorsByName: make(map[string]*Sector),
		regionsByName: make(map[string]*Region),
	}
}

// Size returns the number of (sector,region) leaf pairs currently defined.
func (s *IndexSet) Size() int { return s.size }

// TotalSectorsCount returns the current length of the flattened sector axis.
func (s *IndexSet) TotalSectorsCount() int { return s.totalSectors }

// TotalRegionsCount returns the current length of the flattened region axis.
func (s *IndexSet) TotalRegionsCount() int { return s.totalRegions }

// SuperSectors returns all super sectors in creation order.
func (s *IndexSet) SuperSectors() []*Sector { return s.superSectors }

// SuperRegions returns all super regions in creation order.
func (s *IndexSet) SuperRegions() []*Region { return s.superRegions }

// SubSectors returns all subsectors across every split, in creation order.
func (s *IndexSet) SubSectors() []*Sector { return s.subSectors }

// SubRegions returns all subregions across every split, in creation order.
func (s *IndexSet) SubRegions() []*Region { return s.subRegions }

// Sector looks up a sector (super or sub) by name.
func (s *IndexSet) Sector(name string) (*Sector, error) {
	sec, ok := s.sectorsByName[name]
	if !ok {
		return nil, apperrors.New(apperrors.CodeReferenceError, fmt.Sprintf("sector %q not found", name))
	}
	return sec, nil
}

// Region looks up a region (super or sub) by name.
func (s *IndexSet) Region(name string) (*Region, error) {
	reg, ok := s.regionsByName[name]
	if !ok {
		return nil, apperrors.New(apperrors.CodeReferenceError, fmt.Sprintf("region %q not found", name))
	}
	return reg, nil
}

// AddSector registers a super sector by name, returning the existing one if
// already present. It fails once any sector has been split.
func (s *IndexSet) AddSector(name string) (*Sector, error) {
	if len(s.subSectors) > 0 {
		return nil, apperrors.New(apperrors.CodeReferenceError, "cannot add new sector when already disaggregated")
	}
	if existing, ok := s.sectorsByName[name]; ok {
		return existing.Super(), nil
	}
	s.indices = nil
	sec := &Sector{Name: name, totalIndex: len(s.superSectors), levelIndex: len(s.superSectors)}
	s.superSectors = append(s.superSectors, sec)
	s.sectorsByName[name] = sec
	s.totalSectors++
	return sec, nil
}

// AddRegion registers a super region by name, returning the existing one if
// already present. It fails once any region has been split.
func (s *IndexSet) AddRegion(name string) (*Region, error) {
	if len(s.subRegions) > 0 {
		return nil, apperrors.New(apperrors.CodeReferenceError, "cannot add new region when already disaggregated")
	}
	if existing, ok := s.regionsByName[name]; ok {
		return existing.Super(), nil
	}
	s.indices = nil
	reg := &Region{Name: name, totalIndex: len(s.superRegions), levelIndex: len(s.superRegions)}
	s.superRegions = append(s.superRegions, reg)
	s.regionsByName[name] = reg
	s.totalRegions++
	return reg, nil
}

// AddIndex pairs an already-registered super sector with an already-registered
// super region.
func (s *IndexSet) AddIndex(sector *Sector, region *Region) {
	region.sectors = append(region.sectors, sector)
	sector.regions = append(sector.regions, region)
	s.size++
}

// AddIndexByName registers (if needed) and pairs a sector and region by name.
func (s *IndexSet) AddIndexByName(sectorName, regionName string) error {
	sector, err := s.AddSector(sectorName)
	if err != nil {
		return err
	}
	region, err := s.AddRegion(regionName)
	if err != nil {
		return err
	}
	for _, existing := range region.sectors {
		if existing == sector {
			return apperrors.New(apperrors.CodeReferenceError, "combination of sector and region already given")
		}
	}
	s.AddIndex(sector, region)
	return nil
}

// RebuildIndices recomputes the dense (sector,region) -> position bijection.
// It must be called once after the initial AddIndexByName calls, and is
// called automatically by InsertSubsectors/InsertSubregions/Clone.
func (s *IndexSet) RebuildIndices() {
	s.indices = make([]int, s.totalSectors*s.totalRegions)
	for i := range s.indices {
		s.indices[i] = -1
	}

	idx := 0
	for _, region := range s.superRegions {
		regionLeaves := []*Region{region}
		if region.HasSub() {
			regionLeaves = region.sub
		}
		for _, regionLeaf := range regionLeaves {
			for _, sector := range region.sectors {
				sectorLeaves := []*Sector{sector}
				if sector.HasSub() {
					sectorLeaves = sector.sub
				}
				for _, sectorLeaf := range sectorLeaves {
					s.indices[sectorLeaf.totalIndex*s.totalRegions+regionLeaf.totalIndex] = idx
					idx++
				}
			}
		}
	}
}

// At returns the flat array position for a leaf (sector,region) pair.
// Both sector and region must be leaves (no subs of their own).
func (s *IndexSet) At(sector *Sector, region *Region) (int, error) {
	if sector.HasSub() || region.HasSub() {
		return -1, apperrors.New(apperrors.CodeProgrammerError, "index lookup requires leaf sector and region")
	}
	pos := sector.totalIndex*s.totalRegions + region.totalIndex
	if pos < 0 || pos >= len(s.indices) {
		return -1, apperrors.New(apperrors.CodeProgrammerError, "index position out of range")
	}
	return s.indices[pos], nil
}

// Base returns, on the pre-split IndexSet, the flat array position for a
// super (sector,region) pair, addressed by level index rather than total
// index. This is how a disaggregated Table looks up its undisaggregated
// ancestor cell (see Table.SumBase).
func (s *IndexSet) Base(sector *Sector, region *Region) int {
	pos := sector.LevelIndex()*len(s.superRegions) + region.LevelIndex()
	if pos < 0 || pos >= len(s.indices) {
		return -1
	}
	return s.indices[pos]
}

// InsertSubsectors splits an existing super sector into the given named
// subsectors, shifting the total index of every later sector (and its own
// subs, if any) by len(newNames)-1.
func (s *IndexSet) InsertSubsectors(name string, newNames []string) error {
	super, ok := s.sectorsByName[name]
	if !ok {
		return apperrors.New(apperrors.CodeReferenceError, fmt.Sprintf("sector %q not found", name))
	}
	if !super.IsSuper() {
		return apperrors.New(apperrors.CodeReferenceError, fmt.Sprintf("sector %q is not a super sector", name))
	}
	if len(newNames) == 0 {
		return apperrors.New(apperrors.CodeConfigError, "no subsectors given")
	}

	totalIndex := super.totalIndex
	levelIndex := len(s.subSectors)
	for i, subName := range newNames {
		sub := &Sector{Name: subName, totalIndex: totalIndex, levelIndex: levelIndex, parent: super, subIndex: i}
		s.sectorsByName[subName] = sub
		s.subSectors = append(s.subSectors, sub)
		super.sub = append(super.sub, sub)
		totalIndex++
		levelIndex++
	}

	shift := len(newNames) - 1
	for _, other := range s.superSectors {
		if other.totalIndex > super.totalIndex {
			other.totalIndex += shift
			for _, sub := range other.sub {
				sub.totalIndex += shift
			}
		}
	}

	totalRegionsSize := 0
	for _, region := range super.regions {
		if region.HasSub() {
			totalRegionsSize += len(region.sub)
		} else {
			totalRegionsSize++
		}
	}
	s.totalSectors += shift
	s.size += shift * totalRegionsSize

	s.RebuildIndices()
	return nil
}

// InsertSubregions splits an existing super region into the given named
// subregions, symmetric to InsertSubsectors.
func (s *IndexSet) InsertSubregions(name string, newNames []string) error {
	super, ok := s.regionsByName[name]
	if !ok {
		return apperrors.New(apperrors.CodeReferenceError, fmt.Sprintf("region %q not found", name))
	}
	if !super.IsSuper() {
		return apperrors.New(apperrors.CodeReferenceError, fmt.Sprintf("region %q is not a super region", name))
	}
	if len(newNames) == 0 {
		return apperrors.New(apperrors.CodeConfigError, "no subregions given")
	}

	totalIndex := super.totalIndex
	levelIndex := len(s.subRegions)
	for i, subName := range newNames {
		sub := &Region{Name: subName, totalIndex: totalIndex, levelIndex: levelIndex, parent: super, subIndex: i}
		s.regionsByName[subName] = sub
		s.subRegions = append(s.subRegions, sub)
		super.sub = append(super.sub, sub)
		totalIndex++
		levelIndex++
	}

	shift := len(newNames) - 1
	for _, other := range s.superRegions {
		if other.totalIndex > super.totalIndex {
			other.totalIndex += shift
			for _, sub := range other.sub {
				sub.totalIndex += shift
			}
		}
	}

	totalSectorsSize := 0
	for _, sector := range super.sectors {
		if sector.HasSub() {
			totalSectorsSize += len(sector.sub)
		} else {
			totalSectorsSize++
		}
	}
	s.totalRegions += shift
	s.size += shift * totalSectorsSize

	s.RebuildIndices()
	return nil
}

// Pair is a single leaf (sector,region) combination, as returned by
// TotalPairs; its dense flat position is its index in that slice.
type Pair struct {
	Sector *Sector
	Region *Region
}

// TotalPairs returns every leaf (sector,region) pair in the same order
// RebuildIndices assigns flat positions, so TotalPairs()[pos] names the
// sector/region occupying position pos.
func (s *IndexSet) TotalPairs() []Pair {
	pairs := make([]Pair, s.size)
	idx := 0
	for _, region := range s.superRegions {
		regionLeaves := []*Region{region}
		if region.HasSub() {
			regionLeaves = region.sub
		}
		for _, regionLeaf := range regionLeaves {
			for _, sector := range region.sectors {
				sectorLeaves := []*Sector{sector}
				if sector.HasSub() {
					sectorLeaves = sector.sub
				}
				for _, sectorLeaf := range sectorLeaves {
					pairs[idx] = Pair{Sector: sectorLeaf, Region: regionLeaf}
					idx++
				}
			}
		}
	}
	return pairs
}

// SuperPair is one (super sector, super region) combination, as iterated by SuperPairs.
type SuperPair struct {
	Sector *Sector
	Region *Region
}

// SuperPairs returns every (super sector, super region) combination that was
// registered with AddIndexByName, in creation order. This is the iteration
// order the refinement engine uses to walk super-level cells.
func (s *IndexSet) SuperPairs() []SuperPair {
	pairs := make([]SuperPair, 0, len(s.superRegions)*2)
	for _, region := range s.superRegions {
		for _, sector := range region.sectors {
			pairs = append(pairs, SuperPair{Sector: sector, Region: region})
		}
	}
	return pairs
}

// Clone returns an independent deep copy of the IndexSet, used to snapshot a
// Table's index between refinement levels.
func (s *IndexSet) Clone() *IndexSet {
	clone := &IndexSet{
		sectorsByName: make(map[string]*Sector, len(s.sectorsByName)),
		regionsByName: make(map[string]*Region, len(s.regionsByName)),
		size:          s.size,
		totalSectors:  s.totalSectors,
		totalRegions:  s.totalRegions,
	}

	subSectorCopy := make(map[*Sector]*Sector, len(s.subSectors))
	for _, sub := range s.subSectors {
		n := &Sector{Name: sub.Name, totalIndex: sub.totalIndex, levelIndex: sub.levelIndex, subIndex: sub.subIndex}
		clone.subSectors = append(clone.subSectors, n)
		clone.sectorsByName[n.Name] = n
		subSectorCopy[sub] = n
	}
	subRegionCopy := make(map[*Region]*Region, len(s.subRegions))
	for _, sub := range s.subRegions {
		n := &Region{Name: sub.Name, totalIndex: sub.totalIndex, levelIndex: sub.levelIndex, subIndex: sub.subIndex}
		clone.subRegions = append(clone.subRegions, n)
		clone.regionsByName[n.Name] = n
		subRegionCopy[sub] = n
	}

	superSectorCopy := make(map[*Sector]*Sector, len(s.superSectors))
	for _, super := range s.superSectors {
		n := &Sector{Name: super.Name, totalIndex: super.totalIndex, levelIndex: super.levelIndex}
		for _, oldSub := range super.sub {
			newSub := subSectorCopy[oldSub]
			newSub.parent = n
			n.sub = append(n.sub, newSub)
		}
		clone.superSectors = append(clone.superSectors, n)
		clone.sectorsByName[n.Name] = n
		superSectorCopy[super] = n
	}
	superRegionCopy := make(map[*Region]*Region, len(s.superRegions))
	for _, super := range s.superRegions {
		n := &Region{Name: super.Name, totalIndex: super.totalIndex, levelIndex: super.levelIndex}
		for _, oldSub := range super.sub {
			newSub := subRegionCopy[oldSub]
			newSub.parent = n
			n.sub = append(n.sub, newSub)
		}
		for _, oldSector := range super.sectors {
			n.sectors = append(n.sectors, superSectorCopy[oldSector])
		}
		clone.superRegions = append(clone.superRegions, n)
		clone.regionsByName[n.Name] = n
		superRegionCopy[super] = n
	}
	for _, super := range s.superSectors {
		n := superSectorCopy[super]
		for _, oldRegion := range super.regions {
			n.regions = append(n.regions, superRegionCopy[oldRegion])
		}
	}

	clone.RebuildIndices()
	return clone
}
