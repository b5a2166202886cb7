// Package engine implements the refinement algorithm: given a base table
// already expanded by a set of sector/region splits, it walks eighteen
// increasingly specific refinement levels, each using whatever proxy data is
// available for it to redistribute a super-cell's value across its new
// leaf cells, then rescales every super-cell back to its original base sum.
package engine

import (
	"context"
	"fmt"

	"github.com/pik-piam/mrio-disagg/internal/index"
	"github.com/pik-piam/mrio-disagg/internal/ioformat"
	"github.com/pik-piam/mrio-disagg/internal/proxy"
	"github.com/pik-piam/mrio-disagg/internal/table"
	apperrors "github.com/pik-piam/mrio-disagg/pkg/errors"
	"github.com/pik-piam/mrio-disagg/pkg/parallel"
	"github.com/pik-piam/mrio-disagg/pkg/utils"
)

// Engine drives the disaggregation of a base table: splits are applied to an
// internal working copy, proxy files are loaded against the resulting index
// set, and Refine() runs the eighteen-level approximation/adjustment loop.
type Engine struct {
	base  *table.Table
	table *table.Table
	store *proxy.Store

	lastTable *table.Table
	quality   *quality

	timer   *utils.Timer
	workers int // concurrent proxy-file fetchers used by Initialize; 0 means parallel.DefaultPoolConfig
}

// New creates an Engine over a copy of base; base itself is never mutated
// and remains available for BaseSum lookups during adjustment.
func New(base *table.Table) *Engine {
	return &Engine{
		base:  base,
		table: base.Clone(),
		store: proxy.NewStore(),
		timer: utils.NewTimer("refine"),
	}
}

// SetWorkers configures how many proxy files Initialize fetches concurrently.
// A value <= 0 falls back to parallel.DefaultPoolConfig's worker count.
func (e *Engine) SetWorkers(n int) { e.workers = n }

// Table returns the table as refined so far.
func (e *Engine) Table() *table.Table { return e.table }

// Base returns the original, unsplit table Engine was constructed over, used
// by callers that need to compare grand totals for a conservation summary.
func (e *Engine) Base() *table.Table { return e.base }

// Timer exposes the per-level phase timings recorded by the last Refine call.
func (e *Engine) Timer() *utils.Timer { return e.timer }

// ApplySplit subdivides one sector or region, expanding the working table.
func (e *Engine) ApplySplit(spec ioformat.SplitSpec) error {
	switch spec.Kind {
	case "sector":
		return e.table.InsertSubsectors(spec.ID, spec.Into)
	case "region":
		return e.table.InsertSubregions(spec.ID, spec.Into)
	default:
		return apperrors.New(apperrors.CodeConfigError, "unknown split kind: "+spec.Kind)
	}
}

// LoadProxy reads one level's proxy file into the engine's proxy store.
func (e *Engine) LoadProxy(ref ioformat.ProxyRef) error {
	return ioformat.ReadProxyFile(e.table.IndexSet(), e.store, proxy.Level(ref.Level), ref.File, ref.Year)
}

// Initialize applies every split in specs before loading any proxy file, in
// two separate passes: a proxy file's subsector/subregion columns resolve
// against the post-split index set, so every split must finalize that index
// before the first proxy row is read, regardless of which split declared it.
//
// The proxy files named across all splits are read concurrently (each file
// is an independent, order-irrelevant I/O operation), but every parsed row
// is applied to the proxy store sequentially, in the caller's declaration
// order, so the resulting Store is identical no matter how fetch goroutines
// interleave (§5's determinism guarantee covers refine(), not file I/O, but
// there is no reason to give it up here).
func (e *Engine) Initialize(specs []ioformat.SplitSpec) error {
	for _, spec := range specs {
		if err := e.ApplySplit(spec); err != nil {
			return err
		}
	}

	var refs []ioformat.ProxyRef
	for _, spec := range specs {
		refs = append(refs, spec.Proxies...)
	}
	if len(refs) == 0 {
		return nil
	}

	cfg := parallel.DefaultPoolConfig()
	if e.workers > 0 {
		cfg = cfg.WithWorkers(e.workers)
	}
	pool := parallel.NewWorkerPool[ioformat.ProxyRef, []byte](cfg)
	results := pool.ExecuteFunc(context.Background(), refs, func(_ context.Context, ref ioformat.ProxyRef) ([]byte, error) {
		return ioformat.FetchProxyFile(ref.File)
	})

	for i, result := range results {
		if result.Error != nil {
			return result.Error
		}
		ref := refs[i]
		idx := e.table.IndexSet()
		if err := ioformat.ReadProxyFileContent(idx, e.store, proxy.Level(ref.Level), ref.File, result.Result, ref.Year); err != nil {
			return err
		}
	}
	return nil
}

// Refine runs all eighteen refinement levels in order. A level is skipped
// when the proxy data it needs (its own file, or for the three derived
// Peters levels, all three prerequisite levels) was never loaded.
func (e *Engine) Refine() {
	root := e.timer.Start("refine")
	defer root.Stop()

	e.lastTable = e.table.Clone()
	e.quality = newQuality(e.table.Dimension())

	for d := proxy.Level(1); d < proxy.LevelCount; d++ {
		if !e.store.Applicable(d) {
			continue
		}
		level := e.timer.StartChild("refine", fmt.Sprintf("level_%d", int(d)))
		e.lastTable.ReplaceFrom(e.table)
		e.approximate(d)
		e.adjust(d)
		level.Stop()
	}

	e.quality = nil
	e.lastTable = nil
}

func mustAt(t *table.Table, i *index.Sector, r *index.Region, j *index.Sector, s *index.Region) float64 {
	v, err := t.At(i, r, j, s)
	if err != nil {
		panic(err)
	}
	return v
}

func mustSet(t *table.Table, i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, v float64) {
	if err := t.Set(i, r, j, s, v); err != nil {
		panic(err)
	}
}

func (e *Engine) qualityAt(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region) int {
	idx := e.table.IndexSet()
	row, err := idx.At(i, r)
	if err != nil {
		panic(err)
	}
	col, err := idx.At(j, s)
	if err != nil {
		panic(err)
	}
	return e.quality.at(row, col)
}

func (e *Engine) qualitySet(i *index.Sector, r *index.Region, j *index.Sector, s *index.Region, level proxy.Level) {
	idx := e.table.IndexSet()
	row, err := idx.At(i, r)
	if err != nil {
		panic(err)
	}
	col, err := idx.At(j, s)
	if err != nil {
		panic(err)
	}
	e.quality.set(row, col, int(level))
}
