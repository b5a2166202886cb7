package engine

import (
	"github.com/pik-piam/mrio-disagg/internal/index"
	"github.com/pik-piam/mrio-disagg/internal/proxy"
)

// adjust rescales the leaf cells under every super-cell so their sum matches
// the original base value, after approximate(d) has written whatever cells
// it could for level d. Cells approximate just wrote at this level (quality
// == d, the "exact" group) are trusted and left untouched whenever the
// remaining cells can absorb the difference; otherwise every leaf is scaled
// by a single correction factor.
func (e *Engine) adjust(d proxy.Level) {
	idx := e.table.IndexSet()
	pairs := idx.SuperPairs()

	for _, ir := range pairs {
		for _, js := range pairs {
			base := e.base.BaseSum(ir.Sector, ir.Region, js.Sector, js.Region)
			if base <= 0 {
				continue
			}

			var sumExact, sumNonExact float64
			forAllSub(ir.Sector, ir.Region, js.Sector, js.Region, false, false, false, false,
				func(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, _, _, _, _ bool) {
					if e.qualityAt(i, r, j, s) == int(d) {
						sumExact += mustAt(e.table, i, r, j, s)
					} else {
						sumNonExact += mustAt(e.table, i, r, j, s)
					}
				})

			correctionFactor := base / (sumExact + sumNonExact)

			switch {
			case base > sumExact && sumNonExact > 0:
				forAllSub(ir.Sector, ir.Region, js.Sector, js.Region, false, false, false, false,
					func(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, _, _, _, _ bool) {
						if e.qualityAt(i, r, j, s) != int(d) {
							v := (base - sumExact) * mustAt(e.table, i, r, j, s) / sumNonExact
							mustSet(e.table, i, r, j, s, v)
						}
					})
			case correctionFactor != 1:
				forAllSub(ir.Sector, ir.Region, js.Sector, js.Region, false, false, false, false,
					func(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, _, _, _, _ bool) {
						v := correctionFactor * mustAt(e.table, i, r, j, s)
						mustSet(e.table, i, r, j, s, v)
					})
			}
		}
	}
}
