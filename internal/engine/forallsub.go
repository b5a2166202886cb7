package engine

import "github.com/pik-piam/mrio-disagg/internal/index"

// leafFunc receives one fully-resolved leaf (sector,region) pair on each
// side together with which of the four axes were expanded from a super
// entity to reach it.
type leafFunc func(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, iSub, rSub, jSub, sSub bool)

// forAllSub descends a super-cell (i,r,j,s) down to its leaf cells, in
// i -> r -> j -> s priority order (the first axis still carrying subs is
// expanded before any later axis), calling fn once per leaf.
func forAllSub(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, iSub, rSub, jSub, sSub bool, fn leafFunc) {
	switch {
	case i.HasSub():
		for _, sub := range i.Sub() {
			forAllSub(sub, r, j, s, true, rSub, jSub, sSub, fn)
		}
	case r.HasSub():
		for _, sub := range r.Sub() {
			forAllSub(i, sub, j, s, iSub, true, jSub, sSub, fn)
		}
	case j.HasSub():
		for _, sub := range j.Sub() {
			forAllSub(i, r, sub, s, iSub, rSub, true, sSub, fn)
		}
	case s.HasSub():
		for _, sub := range s.Sub() {
			forAllSub(i, r, j, sub, iSub, rSub, jSub, true, fn)
		}
	default:
		fn(i, r, j, s, iSub, rSub, jSub, sSub)
	}
}
