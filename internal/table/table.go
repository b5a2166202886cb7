// Package table implements the square flow matrix a disaggregation run
// refines: a dense array addressed through an index.IndexSet, with
// hierarchical summation and split-time block expansion.
package table

import (
	"math"

	"github.com/pik-piam/mrio-disagg/internal/index"
	apperrors "github.com/pik-piam/mrio-disagg/pkg/errors"
)

// Table is a square matrix of flows between (sector,region) pairs, backed by
// an index.IndexSet that maps each pair to a row/column position.
type Table struct {
	data      []float64
	indexSet  *index.IndexSet
	dimension int
}

// New allocates a Table over the given IndexSet, filled with defaultValue
// (typically NaN, signaling "no data yet").
func New(idx *index.IndexSet, defaultValue float64) *Table {
	n := idx.Size()
	data := make([]float64, n*n)
	for i := range data {
		data[i] = defaultValue
	}
	return &Table{data: data, indexSet: idx, dimension: n}
}

// IndexSet returns the index set this table is built over.
func (t *Table) IndexSet() *index.IndexSet { return t.indexSet }

// Dimension returns the current side length of the square matrix.
func (t *Table) Dimension() int { return t.dimension }

// RawData returns the underlying flat row-major data slice.
func (t *Table) RawData() []float64 { return t.data }

// At returns the cell value for leaf (i,r) -> (j,s), or an error if either
// pair resolves to a super entity that still has subs.
func (t *Table) At(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region) (float64, error) {
	from, err := t.indexSet.At(i, r)
	if err != nil {
		return 0, err
	}
	to, err := t.indexSet.At(j, s)
	if err != nil {
		return 0, err
	}
	return t.AtPos(from, to)
}

// Set writes the cell value for leaf (i,r) -> (j,s).
func (t *Table) Set(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, value float64) error {
	from, err := t.indexSet.At(i, r)
	if err != nil {
		return err
	}
	to, err := t.indexSet.At(j, s)
	if err != nil {
		return err
	}
	return t.SetPos(from, to, value)
}

// AtPos returns the cell value at raw (row,col) flat positions.
func (t *Table) AtPos(from, to int) (float64, error) {
	if from < 0 || to < 0 {
		return 0, apperrors.New(apperrors.CodeProgrammerError, "negative table position")
	}
	pos := from*t.dimension + to
	if pos < 0 || pos >= len(t.data) {
		return 0, apperrors.New(apperrors.CodeProgrammerError, "table position out of range")
	}
	return t.data[pos], nil
}

// SetPos writes the cell value at raw (row,col) flat positions.
func (t *Table) SetPos(from, to int, value float64) error {
	if from < 0 || to < 0 {
		return apperrors.New(apperrors.CodeProgrammerError, "negative table position")
	}
	pos := from*t.dimension + to
	if pos < 0 || pos >= len(t.data) {
		return apperrors.New(apperrors.CodeProgrammerError, "table position out of range")
	}
	t.data[pos] = value
	return nil
}

// Sum recursively sums cell values, expanding any nil axis over every
// registered sector/region at that position and any super axis over its
// subs. A nil Sector/Region argument means "sum over all".
func (t *Table) Sum(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region) float64 {
	switch {
	case i == nil:
		var res float64
		for _, sec := range t.indexSet.SuperSectors() {
			res += t.Sum(sec, r, j, s)
		}
		return res
	case i.HasSub():
		var res float64
		for _, sub := range i.Sub() {
			res += t.Sum(sub, r, j, s)
		}
		return res
	case r == nil:
		var res float64
		for _, reg := range i.Super().Regions() {
			res += t.Sum(i, reg, j, s)
		}
		return res
	case r.HasSub():
		var res float64
		for _, sub := range r.Sub() {
			res += t.Sum(i, sub, j, s)
		}
		return res
	case j == nil:
		var res float64
		for _, sec := range t.indexSet.SuperSectors() {
			res += t.Sum(i, r, sec, s)
		}
		return res
	case j.HasSub():
		var res float64
		for _, sub := range j.Sub() {
			res += t.Sum(i, r, sub, s)
		}
		return res
	case s == nil:
		var res float64
		for _, reg := range j.Super().Regions() {
			res += t.Sum(i, r, j, reg)
		}
		return res
	case s.HasSub():
		var res float64
		for _, sub := range s.Sub() {
			res += t.Sum(i, r, j, sub)
		}
		return res
	default:
		v, err := t.At(i, r, j, s)
		if err != nil {
			return 0
		}
		return v
	}
}

// BaseSum is Sum's counterpart over super-level (undisaggregated) entities
// only: it never descends into subs, since a base table has none.
func (t *Table) BaseSum(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region) float64 {
	switch {
	case i == nil:
		var res float64
		for _, sec := range t.indexSet.SuperSectors() {
			res += t.BaseSum(sec, r, j, s)
		}
		return res
	case r == nil:
		var res float64
		for _, reg := range i.Regions() {
			res += t.BaseSum(i, reg, j, s)
		}
		return res
	case j == nil:
		var res float64
		for _, sec := range t.indexSet.SuperSectors() {
			res += t.BaseSum(i, r, sec, s)
		}
		return res
	case s == nil:
		var res float64
		for _, reg := range j.Regions() {
			res += t.BaseSum(i, r, j, reg)
		}
		return res
	default:
		from, to := t.indexSet.Base(i, r), t.indexSet.Base(j, s)
		v, err := t.AtPos(from, to)
		if err != nil {
			return 0
		}
		return v
	}
}

// SumBase looks up the cell of a pre-split ancestor table corresponding to
// the given super (sector,region) pair in THIS (possibly disaggregated)
// table's own index set. It exists so callers that only have access to a
// single already-split table can still recover the original aggregate cell,
// mirroring the original's base()/basesum() accessor pair.
func (t *Table) SumBase(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region) (float64, error) {
	from := t.indexSet.Base(i.Super(), r.Super())
	to := t.indexSet.Base(j.Super(), s.Super())
	return t.AtPos(from, to)
}

// ReplaceFrom overwrites this table's data with a copy of other's, used to
// snapshot the previous iteration before a refinement level runs.
func (t *Table) ReplaceFrom(other *Table) {
	t.data = append([]float64(nil), other.data...)
	t.dimension = other.dimension
}

// Clone returns a Table with an independent copy of both the data and the
// index set (via index.IndexSet.Clone).
func (t *Table) Clone() *Table {
	return &Table{
		data:      append([]float64(nil), t.data...),
		indexSet:  t.indexSet.Clone(),
		dimension: t.dimension,
	}
}

func sectorLeaves(s *index.Sector) []*index.Sector {
	if s.HasSub() {
		return s.Sub()
	}
	return []*index.Sector{s}
}

func regionLeaves(r *index.Region) []*index.Region {
	if r.HasSub() {
		return r.Sub()
	}
	return []*index.Region{r}
}

type leafKey struct {
	sector *index.Sector
	region *index.Region
}

// InsertSubsectors splits the named super sector into newNames, expanding
// the matrix so each original row/column touching that sector is divided
// equally among its new subsectors (and by the square of that count at the
// row/column crossing), with every other cell copied over unchanged. This
// mirrors the conservation rule in the original `insert_sector_offset_*`
// routines while expressing it in terms of the index set abstraction rather
// than manual offset arithmetic.
func (t *Table) InsertSubsectors(name string, newNames []string) error {
	super, err := t.indexSet.Sector(name)
	if err != nil {
		return err
	}
	if !super.IsSuper() {
		return apperrors.New(apperrors.CodeReferenceError, "'"+name+"' is a subsector")
	}
	if super.HasSub() {
		return apperrors.New(apperrors.CodeReferenceError, "'"+name+"' already has subsectors")
	}

	oldPos := t.snapshotPositions()
	oldDim := t.dimension

	if err := t.indexSet.InsertSubsectors(name, newNames); err != nil {
		return err
	}

	newDim := t.indexSet.Size()
	newPairs := t.indexSet.TotalPairs()
	newData := make([]float64, newDim*newDim)

	splitFactor := float64(len(newNames))
	for row := 0; row < newDim; row++ {
		rowSplit := newPairs[row].Sector.Parent() == super
		oldRowSector := newPairs[row].Sector
		if rowSplit {
			oldRowSector = super
		}
		for col := 0; col < newDim; col++ {
			colSplit := newPairs[col].Sector.Parent() == super
			oldColSector := newPairs[col].Sector
			if colSplit {
				oldColSector = super
			}

			oldRow, ok1 := oldPos[leafKey{oldRowSector, newPairs[row].Region}]
			oldCol, ok2 := oldPos[leafKey{oldColSector, newPairs[col].Region}]
			if !ok1 || !ok2 {
				continue
			}

			divisor := 1.0
			if rowSplit {
				divisor *= splitFactor
			}
			if colSplit {
				divisor *= splitFactor
			}
			newData[row*newDim+col] = oldDataAt(t.data, oldDim, oldRow, oldCol) / divisor
		}
	}

	t.data = newData
	t.dimension = newDim
	return nil
}

// InsertSubregions is InsertSubsectors' symmetric counterpart over the
// region axis.
func (t *Table) InsertSubregions(name string, newNames []string) error {
	super, err := t.indexSet.Region(name)
	if err != nil {
		return err
	}
	if !super.IsSuper() {
		return apperrors.New(apperrors.CodeReferenceError, "'"+name+"' is a subregion")
	}
	if super.HasSub() {
		return apperrors.New(apperrors.CodeReferenceError, "'"+name+"' already has subregions")
	}

	oldPos := t.snapshotPositions()
	oldDim := t.dimension

	if err := t.indexSet.InsertSubregions(name, newNames); err != nil {
		return err
	}

	newDim := t.indexSet.Size()
	newPairs := t.indexSet.TotalPairs()
	newData := make([]float64, newDim*newDim)

	splitFactor := float64(len(newNames))
	for row := 0; row < newDim; row++ {
		rowSplit := newPairs[row].Region.Parent() == super
		oldRowRegion := newPairs[row].Region
		if rowSplit {
			oldRowRegion = super
		}
		for col := 0; col < newDim; col++ {
			colSplit := newPairs[col].Region.Parent() == super
			oldColRegion := newPairs[col].Region
			if colSplit {
				oldColRegion = super
			}

			oldRow, ok1 := oldPos[leafKey{newPairs[row].Sector, oldRowRegion}]
			oldCol, ok2 := oldPos[leafKey{newPairs[col].Sector, oldColRegion}]
			if !ok1 || !ok2 {
				continue
			}

			divisor := 1.0
			if rowSplit {
				divisor *= splitFactor
			}
			if colSplit {
				divisor *= splitFactor
			}
			newData[row*newDim+col] = oldDataAt(t.data, oldDim, oldRow, oldCol) / divisor
		}
	}

	t.data = newData
	t.dimension = newDim
	return nil
}

// snapshotPositions captures the current (pre-split) leaf (sector,region) ->
// position map, used by InsertSubsectors/InsertSubregions to locate the
// source cell for every expanded cell after the index set has been split.
func (t *Table) snapshotPositions() map[leafKey]int {
	snapshot := make(map[leafKey]int)
	for _, region := range t.indexSet.SuperRegions() {
		for _, regionLeaf := range regionLeaves(region) {
			for _, sector := range region.Sectors() {
				for _, sectorLeaf := range sectorLeaves(sector) {
					pos, err := t.indexSet.At(sectorLeaf, regionLeaf)
					if err != nil || pos < 0 {
						continue
					}
					snapshot[leafKey{sectorLeaf, regionLeaf}] = pos
				}
			}
		}
	}
	return snapshot
}

func oldDataAt(data []float64, dim, row, col int) float64 {
	pos := row*dim + col
	if pos < 0 || pos >= len(data) {
		return math.NaN()
	}
	return data[pos]
}
