package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pik-piam/mrio-disagg/internal/index"
	"github.com/pik-piam/mrio-disagg/internal/ioformat"
	"github.com/pik-piam/mrio-disagg/internal/table"
)

// buildTwoRegionTable builds a single-sector, two-region base table with
// distinct flows on every cell, so a bad split or refinement shows up as a
// wrong number rather than a coincidental match.
func buildTwoRegionTable(t *testing.T) (*index.IndexSet, *table.Table) {
	t.Helper()
	idx := index.New()
	require.NoError(t, idx.AddIndexByName("output", "DE"))
	require.NoError(t, idx.AddIndexByName("output", "FR"))
	idx.RebuildIndices()

	tbl := table.New(idx, 0)
	sec, err := idx.Sector("output")
	require.NoError(t, err)
	de, err := idx.Region("DE")
	require.NoError(t, err)
	fr, err := idx.Region("FR")
	require.NoError(t, err)

	require.NoError(t, tbl.Set(sec, de, sec, de, 100))
	require.NoError(t, tbl.Set(sec, de, sec, fr, 20))
	require.NoError(t, tbl.Set(sec, fr, sec, de, 30))
	require.NoError(t, tbl.Set(sec, fr, sec, fr, 40))
	return idx, tbl
}

func TestEngine_NoSplitsNoProxiesIsPassthrough(t *testing.T) {
	_, base := buildTwoRegionTable(t)

	e := New(base)
	require.NoError(t, e.Initialize(nil))
	e.Refine()

	assert.Equal(t, base.RawData(), e.Table().RawData())
}

func TestEngine_IdempotentSingleSubSplit(t *testing.T) {
	_, base := buildTwoRegionTable(t)

	e := New(base)
	specs := []ioformat.SplitSpec{
		{Kind: "region", ID: "DE", Into: []string{"DE-only"}},
	}
	require.NoError(t, e.Initialize(specs))
	e.Refine()

	// Splitting a region into exactly one sub must not change any value:
	// Table.InsertSubregions divides by a split factor of 1.
	assert.Equal(t, base.RawData(), e.Table().RawData())
}

func writeProxyCSV(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := "year,region,value\n"
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEngine_RegionSplitConservesAggregate(t *testing.T) {
	_, base := buildTwoRegionTable(t)

	dir := t.TempDir()
	proxyFile := writeProxyCSV(t, dir, "population.csv",
		"2020,DE1,60",
		"2020,DE2,40",
	)

	e := New(base)
	specs := []ioformat.SplitSpec{
		{
			Kind: "region",
			ID:   "DE",
			Into: []string{"DE1", "DE2"},
			Proxies: []ioformat.ProxyRef{
				{Level: 1, File: proxyFile, Year: 2020},
			},
		},
	}
	require.NoError(t, e.Initialize(specs))
	e.Refine()

	refinedIdx := e.Table().IndexSet()
	sec, err := refinedIdx.Sector("output")
	require.NoError(t, err)
	de, err := refinedIdx.Region("DE")
	require.NoError(t, err)
	fr, err := refinedIdx.Region("FR")
	require.NoError(t, err)

	baseIdx := base.IndexSet()
	baseSec, err := baseIdx.Sector("output")
	require.NoError(t, err)
	baseDE, err := baseIdx.Region("DE")
	require.NoError(t, err)
	baseFR, err := baseIdx.Region("FR")
	require.NoError(t, err)

	// Every aggregate cell (summed back over DE's new subregions) must equal
	// the original, unsplit value: refinement redistributes, it never
	// creates or destroys flow.
	assert.InDelta(t, base.Sum(baseSec, baseDE, baseSec, baseDE), e.Table().Sum(sec, de, sec, de), 1e-9)
	assert.InDelta(t, base.Sum(baseSec, baseDE, baseSec, baseFR), e.Table().Sum(sec, de, sec, fr), 1e-9)
	assert.InDelta(t, base.Sum(baseSec, baseFR, baseSec, baseDE), e.Table().Sum(sec, fr, sec, de), 1e-9)
	assert.InDelta(t, base.Sum(baseSec, baseFR, baseSec, baseFR), e.Table().Sum(sec, fr, sec, fr), 1e-9)

	// DE1 (60% of DE's population) should receive a larger share of the
	// DE-DE cell than DE2 (40%).
	de1, err := refinedIdx.Region("DE1")
	require.NoError(t, err)
	de2, err := refinedIdx.Region("DE2")
	require.NoError(t, err)
	v11, err := e.Table().At(sec, de1, sec, de1)
	require.NoError(t, err)
	v22, err := e.Table().At(sec, de2, sec, de2)
	require.NoError(t, err)
	assert.Greater(t, v11, v22)
}

func buildTwoSectorTable(t *testing.T) (*index.IndexSet, *table.Table) {
	t.Helper()
	idx := index.New()
	require.NoError(t, idx.AddIndexByName("agriculture", "DE"))
	require.NoError(t, idx.AddIndexByName("mining", "DE"))
	idx.RebuildIndices()

	tbl := table.New(idx, 0)
	agri, err := idx.Sector("agriculture")
	require.NoError(t, err)
	mining, err := idx.Sector("mining")
	require.NoError(t, err)
	de, err := idx.Region("DE")
	require.NoError(t, err)

	require.NoError(t, tbl.Set(agri, de, agri, de, 80))
	require.NoError(t, tbl.Set(agri, de, mining, de, 10))
	require.NoError(t, tbl.Set(mining, de, agri, de, 15))
	require.NoError(t, tbl.Set(mining, de, mining, de, 60))
	return idx, tbl
}

func TestEngine_SectorSplitConservesAggregate(t *testing.T) {
	_, base := buildTwoSectorTable(t)

	dir := t.TempDir()
	// Level 3 (GDP-subsector): year,sector,region,value.
	proxyFile := filepath.Join(dir, "gdp_subsector.csv")
	require.NoError(t, os.WriteFile(proxyFile, []byte(
		"year,sector,region,value\n"+
			"2021,agriculture-crop,DE,75\n"+
			"2021,agriculture-livestock,DE,25\n",
	), 0o644))

	e := New(base)
	specs := []ioformat.SplitSpec{
		{
			Kind: "sector",
			ID:   "agriculture",
			Into: []string{"agriculture-crop", "agriculture-livestock"},
			Proxies: []ioformat.ProxyRef{
				{Level: 3, File: proxyFile, Year: 2021},
			},
		},
	}
	require.NoError(t, e.Initialize(specs))
	e.Refine()

	refinedIdx := e.Table().IndexSet()
	agri, err := refinedIdx.Sector("agriculture")
	require.NoError(t, err)
	mining, err := refinedIdx.Sector("mining")
	require.NoError(t, err)
	de, err := refinedIdx.Region("DE")
	require.NoError(t, err)

	baseIdx := base.IndexSet()
	baseAgri, err := baseIdx.Sector("agriculture")
	require.NoError(t, err)
	baseMining, err := baseIdx.Sector("mining")
	require.NoError(t, err)
	baseDE, err := baseIdx.Region("DE")
	require.NoError(t, err)

	assert.InDelta(t, base.Sum(baseAgri, baseDE, baseAgri, baseDE), e.Table().Sum(agri, de, agri, de), 1e-9)
	assert.InDelta(t, base.Sum(baseAgri, baseDE, baseMining, baseDE), e.Table().Sum(agri, de, mining, de), 1e-9)
	assert.InDelta(t, base.Sum(baseMining, baseDE, baseAgri, baseDE), e.Table().Sum(mining, de, agri, de), 1e-9)
}

func TestEngine_SingleWorkerInitializeAppliesSplit(t *testing.T) {
	_, base := buildTwoRegionTable(t)
	dir := t.TempDir()
	proxyFile := writeProxyCSV(t, dir, "population.csv",
		"2020,DE1,60",
		"2020,DE2,40",
	)

	e := New(base)
	e.SetWorkers(1)
	specs := []ioformat.SplitSpec{
		{
			Kind: "region",
			ID:   "DE",
			Into: []string{"DE1", "DE2"},
			Proxies: []ioformat.ProxyRef{
				{Level: 1, File: proxyFile, Year: 2020},
			},
		},
	}
	require.NoError(t, e.Initialize(specs))
	e.Refine()

	refinedIdx := e.Table().IndexSet()
	assert.Equal(t, 3, refinedIdx.TotalRegionsCount())
}
