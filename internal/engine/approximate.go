package engine

import (
	"math"

	"github.com/pik-piam/mrio-disagg/internal/index"
	"github.com/pik-piam/mrio-disagg/internal/proxy"
)

// approximate redistributes every super-cell's value across its leaf cells
// for refinement level d, using whichever proxy ratios that level defines.
// Each branch mirrors the corresponding LEVEL_* case of the original
// Disaggregation::approximate, translated from its templated for_all_sub
// callback into a direct call per super (sector,region) pair.
func (e *Engine) approximate(d proxy.Level) {
	idx := e.table.IndexSet()
	pairs := idx.SuperPairs()

	switch d {
	case proxy.LevelPopulation, proxy.LevelGDPSubregion:
		e.fillRegionProxySums(d)
		for _, ir := range pairs {
			for _, js := range pairs {
				forAllSub(ir.Sector, ir.Region, js.Sector, js.Region, false, false, false, false,
					func(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, _, rSub, _, sSub bool) {
						sum1, value1, sum2, value2 := 1.0, 1.0, 1.0, 1.0
						if rSub {
							sum1 = e.store.ProxySum(d).At(r.Parent().LevelIndex())
							value1 = e.store.Proxy(d).At(r.LevelIndex())
						}
						if sSub {
							sum2 = e.store.ProxySum(d).At(s.Parent().LevelIndex())
							value2 = e.store.Proxy(d).At(s.LevelIndex())
						}
						if !rSub && !sSub {
							return
						}
						if math.IsNaN(value1) || math.IsNaN(sum1) || sum1 <= 0 || math.IsNaN(value2) || math.IsNaN(sum2) || sum2 <= 0 {
							return
						}
						v := e.lastTable.Sum(i, r.Super(), j, s.Super()) * value1 * value2 / sum1 / sum2
						mustSet(e.table, i, r, j, s, v)
						e.qualitySet(i, r, j, s, d)
					})
			}
		}

	case proxy.LevelGDPSubsector:
		e.fillSectorProxySums(d)
		for _, ir := range pairs {
			for _, js := range pairs {
				forAllSub(ir.Sector, ir.Region, js.Sector, js.Region, false, false, false, false,
					func(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, iSub, _, jSub, _ bool) {
						sum1, value1, sum2, value2 := 1.0, 1.0, 1.0, 1.0
						if iSub {
							sum1 = e.store.ProxySum(d).At(i.Parent().LevelIndex(), r.Super().LevelIndex())
							value1 = e.store.Proxy(d).At(i.LevelIndex(), r.Super().LevelIndex())
						}
						if jSub {
							sum2 = e.store.ProxySum(d).At(j.Parent().LevelIndex(), s.Super().LevelIndex())
							value2 = e.store.Proxy(d).At(j.LevelIndex(), s.Super().LevelIndex())
						}
						if !iSub && !jSub {
							return
						}
						if math.IsNaN(value1) || math.IsNaN(sum1) || sum1 <= 0 || math.IsNaN(value2) || math.IsNaN(sum2) || sum2 <= 0 {
							return
						}
						v := e.lastTable.Sum(i.Super(), r, j.Super(), s) * value1 * value2 / sum1 / sum2
						mustSet(e.table, i, r, j, s, v)
						e.qualitySet(i, r, j, s, d)
					})
			}
		}

	case proxy.LevelGDPSubregionalSubsector:
		e.fillSectorRegionProxySums(d)
		for _, ir := range pairs {
			for _, js := range pairs {
				forAllSub(ir.Sector, ir.Region, js.Sector, js.Region, false, false, false, false,
					func(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, iSub, rSub, jSub, sSub bool) {
						sum1, value1, sum2, value2 := 1.0, 1.0, 1.0, 1.0
						if iSub && rSub {
							sum1 = e.store.ProxySum(d).At(i.Parent().LevelIndex(), r.Parent().LevelIndex())
							value1 = e.store.Proxy(d).At(i.LevelIndex(), r.LevelIndex())
						}
						if jSub && sSub {
							sum2 = e.store.ProxySum(d).At(j.Parent().LevelIndex(), s.Parent().LevelIndex())
							value2 = e.store.Proxy(d).At(j.LevelIndex(), s.LevelIndex())
						}
						if !(iSub && rSub) && !(jSub && sSub) {
							return
						}
						if math.IsNaN(value1) || math.IsNaN(sum1) || sum1 <= 0 || math.IsNaN(value2) || math.IsNaN(sum2) || sum2 <= 0 {
							return
						}
						v := e.lastTable.Sum(i.Super(), r.Super(), j.Super(), s.Super()) * value1 * value2 / sum1 / sum2
						mustSet(e.table, i, r, j, s, v)
						e.qualitySet(i, r, j, s, d)
					})
			}
		}

	case proxy.LevelImportSubsector:
		for _, ir := range pairs {
			for _, js := range pairs {
				forAllSub(ir.Sector, ir.Region, js.Sector, js.Region, false, false, false, false,
					func(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, iSub, _, _, _ bool) {
						if !iSub {
							return
						}
						value := e.store.Proxy(d).At(i.LevelIndex(), s.Super().LevelIndex())
						if math.IsNaN(value) {
							return
						}
						v := e.lastTable.Sum(i.Parent(), r, j, s) * value / e.lastTable.Sum(i.Parent(), nil, nil, s.Super())
						mustSet(e.table, i, r, j, s, v)
						e.qualitySet(i, r, j, s, d)
					})
			}
		}

	case proxy.LevelImportSubregion:
		for _, ir := range pairs {
			for _, js := range pairs {
				forAllSub(ir.Sector, ir.Region, js.Sector, js.Region, false, false, false, false,
					func(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, _, _, _, sSub bool) {
						if !sSub {
							return
						}
						value := e.store.Proxy(d).At(i.Super().LevelIndex(), s.LevelIndex())
						if math.IsNaN(value) {
							return
						}
						v := e.lastTable.Sum(i, r, j, s.Parent()) * value / e.lastTable.Sum(i.Super(), nil, nil, s.Parent())
						mustSet(e.table, i, r, j, s, v)
						e.qualitySet(i, r, j, s, d)
					})
			}
		}

	case proxy.LevelInterregionalSubsectorInput:
		for _, ir := range pairs {
			for _, js := range pairs {
				forAllSub(ir.Sector, ir.Region, js.Sector, js.Region, false, false, false, false,
					func(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, iSub, _, _, sSub bool) {
						if !iSub || !sSub {
							return
						}
						value := e.store.Proxy(d).At(i.LevelIndex(), s.LevelIndex())
						if math.IsNaN(value) {
							return
						}
						v := e.lastTable.Sum(i.Parent(), r, j, s.Parent()) * value / e.lastTable.Sum(i.Parent(), nil, nil, s.Parent())
						mustSet(e.table, i, r, j, s, v)
						e.qualitySet(i, r, j, s, d)
					})
			}
		}

	case proxy.LevelExportSubregionalSubsector:
		for _, ir := range pairs {
			sum := e.base.BaseSum(ir.Sector, ir.Region, nil, nil)
			for _, js := range pairs {
				forAllSub(ir.Sector, ir.Region, js.Sector, js.Region, false, false, false, false,
					func(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, iSub, rSub, jSub, sSub bool) {
						if !(iSub && rSub && jSub == sSub) {
							return
						}
						value := e.store.Proxy(d).At(i.LevelIndex(), r.LevelIndex())
						if math.IsNaN(value) {
							return
						}
						v := e.lastTable.Sum(i.Parent(), r.Parent(), j, s) * value / sum
						mustSet(e.table, i, r, j, s, v)
						e.qualitySet(i, r, j, s, d)
					})
			}
		}

	case proxy.LevelImportSubsectorByRegionalSector:
		for _, ir := range pairs {
			for _, js := range pairs {
				forAllSub(ir.Sector, ir.Region, js.Sector, js.Region, false, false, false, false,
					func(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, iSub, _, _, _ bool) {
						if !iSub {
							return
						}
						value := e.store.Proxy(d).At(i.LevelIndex(), j.Super().LevelIndex(), s.Super().LevelIndex())
						if math.IsNaN(value) {
							return
						}
						v := e.lastTable.Sum(i.Parent(), r, j, s) * value / e.lastTable.Sum(i.Parent(), nil, j.Super(), s.Super())
						mustSet(e.table, i, r, j, s, v)
						e.qualitySet(i, r, j, s, d)
					})
			}
		}

	case proxy.LevelExportSubregion:
		for _, ir := range pairs {
			for _, js := range pairs {
				forAllSub(ir.Sector, ir.Region, js.Sector, js.Region, false, false, false, false,
					func(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, _, _, _, sSub bool) {
						if !sSub {
							return
						}
						value := e.store.Proxy(d).At(i.Super().LevelIndex(), r.Super().LevelIndex(), s.LevelIndex())
						if math.IsNaN(value) {
							return
						}
						v := e.lastTable.Sum(i, r, j, s.Parent()) * value / e.lastTable.Sum(i.Super(), r.Super(), nil, s.Parent())
						mustSet(e.table, i, r, j, s, v)
						e.qualitySet(i, r, j, s, d)
					})
			}
		}

	case proxy.LevelSubregionalSubsectorInput:
		for _, ir := range pairs {
			for _, js := range pairs {
				forAllSub(ir.Sector, ir.Region, js.Sector, js.Region, false, false, false, false,
					func(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, iSub, _, jSub, sSub bool) {
						if !(iSub && jSub && sSub) {
							return
						}
						value := e.store.Proxy(d).At(i.LevelIndex(), j.LevelIndex(), s.LevelIndex())
						if math.IsNaN(value) {
							return
						}
						v := e.lastTable.Sum(i.Parent(), r, j.Parent(), s.Parent()) * value / e.lastTable.Sum(i.Parent(), nil, j.Parent(), s.Parent())
						mustSet(e.table, i, r, j, s, v)
						e.qualitySet(i, r, j, s, d)
					})
			}
		}

	case proxy.LevelExportSubregionalSubsectorToRegion:
		for _, ir := range pairs {
			for _, js := range pairs {
				forAllSub(ir.Sector, ir.Region, js.Sector, js.Region, false, false, false, false,
					func(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, iSub, rSub, _, _ bool) {
						if !(iSub && rSub) {
							return
						}
						value := e.store.Proxy(d).At(i.LevelIndex(), r.LevelIndex(), s.Super().LevelIndex())
						if math.IsNaN(value) {
							return
						}
						v := e.lastTable.Sum(i.Parent(), r.Parent(), j, s) * value / e.lastTable.Sum(i.Parent(), r.Parent(), nil, s.Super())
						mustSet(e.table, i, r, j, s, v)
						e.qualitySet(i, r, j, s, d)
					})
			}
		}

	case proxy.LevelImportSubregionalSubsector:
		for _, ir := range pairs {
			for _, js := range pairs {
				forAllSub(ir.Sector, ir.Region, js.Sector, js.Region, false, false, false, false,
					func(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, _, _, jSub, sSub bool) {
						if !(jSub && sSub) {
							return
						}
						value := e.store.Proxy(d).At(i.Super().LevelIndex(), j.LevelIndex(), s.LevelIndex())
						if math.IsNaN(value) {
							return
						}
						v := e.lastTable.Sum(i, r, j.Parent(), s.Parent()) * value / e.lastTable.Sum(i.Super(), nil, j.Parent(), s.Parent())
						mustSet(e.table, i, r, j, s, v)
						e.qualitySet(i, r, j, s, d)
					})
			}
		}

	case proxy.LevelExportSubregionalSubsectorToSubregion:
		for _, ir := range pairs {
			for _, js := range pairs {
				forAllSub(ir.Sector, ir.Region, js.Sector, js.Region, false, false, false, false,
					func(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, iSub, rSub, _, sSub bool) {
						if !(iSub && rSub && sSub) {
							return
						}
						value := e.store.Proxy(d).At(i.LevelIndex(), r.LevelIndex(), s.LevelIndex())
						if math.IsNaN(value) {
							return
						}
						v := e.lastTable.Sum(i.Parent(), r.Parent(), j, s.Parent()) * value / e.lastTable.Sum(i.Parent(), r.Parent(), nil, s.Parent())
						mustSet(e.table, i, r, j, s, v)
						e.qualitySet(i, r, j, s, d)
					})
			}
		}

	case proxy.LevelPeters1:
		for _, ir := range pairs {
			for _, js := range pairs {
				forAllSub(ir.Sector, ir.Region, js.Sector, js.Region, false, false, false, false,
					func(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, iSub, rSub, _, _ bool) {
						if !(iSub && rSub) {
							return
						}
						value1 := e.store.Proxy(proxy.LevelImportSubsector).At(i.LevelIndex(), s.Super().LevelIndex())
						value2 := e.store.Proxy(proxy.LevelImportSubsectorByRegionalSector).At(i.LevelIndex(), j.Super().LevelIndex(), s.Super().LevelIndex())
						value3 := e.store.Proxy(proxy.LevelExportSubregionalSubsectorToRegion).At(i.LevelIndex(), r.LevelIndex(), s.Super().LevelIndex())
						if math.IsNaN(value1) || math.IsNaN(value2) || math.IsNaN(value3) {
							return
						}
						mustSet(e.table, i, r, j, s, value2*value3/value1)
						e.qualitySet(i, r, j, s, d)
					})
			}
		}

	case proxy.LevelPeters2:
		for _, ir := range pairs {
			for _, js := range pairs {
				forAllSub(ir.Sector, ir.Region, js.Sector, js.Region, false, false, false, false,
					func(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, _, _, jSub, sSub bool) {
						if !(jSub && sSub) {
							return
						}
						value1 := e.store.Proxy(proxy.LevelImportSubregion).At(i.Super().LevelIndex(), s.LevelIndex())
						value2 := e.store.Proxy(proxy.LevelExportSubregion).At(i.Super().LevelIndex(), r.Super().LevelIndex(), s.LevelIndex())
						value3 := e.store.Proxy(proxy.LevelImportSubregionalSubsector).At(i.Super().LevelIndex(), j.LevelIndex(), s.LevelIndex())
						if math.IsNaN(value1) || math.IsNaN(value2) || math.IsNaN(value3) {
							return
						}
						mustSet(e.table, i, r, j, s, value3*value2/value1)
						e.qualitySet(i, r, j, s, d)
					})
			}
		}

	case proxy.LevelPeters3:
		for _, ir := range pairs {
			for _, js := range pairs {
				forAllSub(ir.Sector, ir.Region, js.Sector, js.Region, false, false, false, false,
					func(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, iSub, rSub, jSub, sSub bool) {
						if !(iSub && rSub && jSub && sSub) {
							return
						}
						value1 := e.store.Proxy(proxy.LevelInterregionalSubsectorInput).At(i.LevelIndex(), s.LevelIndex())
						value2 := e.store.Proxy(proxy.LevelSubregionalSubsectorInput).At(i.LevelIndex(), j.LevelIndex(), s.LevelIndex())
						value3 := e.store.Proxy(proxy.LevelExportSubregionalSubsectorToSubregion).At(i.LevelIndex(), r.LevelIndex(), s.LevelIndex())
						if math.IsNaN(value1) || math.IsNaN(value2) || math.IsNaN(value3) {
							return
						}
						mustSet(e.table, i, r, j, s, value2*value3/value1)
						e.qualitySet(i, r, j, s, d)
					})
			}
		}

	case proxy.LevelExact:
		for _, ir := range pairs {
			for _, js := range pairs {
				forAllSub(ir.Sector, ir.Region, js.Sector, js.Region, false, false, false, false,
					func(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, iSub, rSub, jSub, sSub bool) {
						if !(iSub && rSub && jSub && sSub) {
							return
						}
						value := e.store.Proxy(d).At(i.LevelIndex(), r.LevelIndex(), j.LevelIndex(), s.LevelIndex())
						if math.IsNaN(value) {
							return
						}
						mustSet(e.table, i, r, j, s, value)
						e.qualitySet(i, r, j, s, d)
					})
			}
		}
	}
}

// fillRegionProxySums lazily computes a missing parent-region proxy sum from
// its children, for the levels whose CSV input may omit the optional sum
// column (Table 4.3-A levels 1 and 2).
func (e *Engine) fillRegionProxySums(d proxy.Level) {
	idx := e.table.IndexSet()
	sums := e.store.EnsureProxySum(d, len(idx.SuperRegions()))
	for _, r := range idx.SuperRegions() {
		if !r.HasSub() || !math.IsNaN(sums.At(r.LevelIndex())) {
			continue
		}
		var sum float64
		for _, sub := range r.Sub() {
			sum += e.store.Proxy(d).At(sub.LevelIndex())
		}
		sums.Set(sum, r.LevelIndex())
	}
}

// fillSectorProxySums is fillRegionProxySums' counterpart for levels keyed
// by (subsector, region) (Table 4.3-A level 3).
func (e *Engine) fillSectorProxySums(d proxy.Level) {
	idx := e.table.IndexSet()
	sums := e.store.EnsureProxySum(d, len(idx.SuperSectors()), len(idx.SuperRegions()))
	for _, i := range idx.SuperSectors() {
		if !i.HasSub() {
			continue
		}
		for _, r := range i.Regions() {
			if !math.IsNaN(sums.At(i.LevelIndex(), r.LevelIndex())) {
				continue
			}
			var sum float64
			for _, sub := range i.Sub() {
				sum += e.store.Proxy(d).At(sub.LevelIndex(), r.LevelIndex())
			}
			sums.Set(sum, i.LevelIndex(), r.LevelIndex())
		}
	}
}

// fillSectorRegionProxySums is fillRegionProxySums' counterpart for levels
// keyed by (subsector, subregion) (Table 4.3-A level 4).
func (e *Engine) fillSectorRegionProxySums(d proxy.Level) {
	idx := e.table.IndexSet()
	sums := e.store.EnsureProxySum(d, len(idx.SuperSectors()), len(idx.SuperRegions()))
	for _, i := range idx.SuperSectors() {
		if !i.HasSub() {
			continue
		}
		for _, r := range i.Regions() {
			if !r.HasSub() {
				continue
			}
			if !math.IsNaN(sums.At(i.LevelIndex(), r.LevelIndex())) {
				continue
			}
			var sum float64
			for _, iMu := range i.Sub() {
				for _, rLambda := range r.Sub() {
					sum += e.store.Proxy(d).At(iMu.LevelIndex(), rLambda.LevelIndex())
				}
			}
			sums.Set(sum, i.LevelIndex(), r.LevelIndex())
		}
	}
}
