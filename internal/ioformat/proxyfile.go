package ioformat

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pik-piam/mrio-disagg/internal/index"
	"github.com/pik-piam/mrio-disagg/internal/proxy"
	apperrors "github.com/pik-piam/mrio-disagg/pkg/errors"
)

// FetchProxyFile reads a proxy CSV file's raw bytes without parsing it. It is
// split out from ReadProxyFile so a caller loading many proxy files (e.g.
// engine.Engine.Initialize) can fan the I/O out across a worker pool while
// still applying the parsed rows to the proxy.Store in one deterministic,
// single-threaded pass via ReadProxyFileContent.
func FetchProxyFile(filename string) ([]byte, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIOError, fmt.Sprintf("opening proxy file %q", filename), err)
	}
	return content, nil
}

// ReadProxyFile loads one level's proxy CSV into store, keeping only rows
// whose year column matches. The column layout (after year) follows Table
// 4.3-A's per-level signature; a trailing parent_sum column is optional for
// levels 1-4.
func ReadProxyFile(idx *index.IndexSet, store *proxy.Store, level proxy.Level, filename string, year int) error {
	content, err := FetchProxyFile(filename)
	if err != nil {
		return err
	}
	return ReadProxyFileContent(idx, store, level, filename, content, year)
}

// ReadProxyFileContent parses already-fetched proxy CSV bytes into store,
// keeping only rows whose year column matches.
func ReadProxyFileContent(idx *index.IndexSet, store *proxy.Store, level proxy.Level, filename string, content []byte, year int) error {
	if level.Derived() {
		return apperrors.New(apperrors.CodeConfigError, fmt.Sprintf("level %d cannot be given explicitly", level))
	}

	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1

	row := 0
	if _, err := r.Read(); err != nil { // header
		return wrapCSVError(filename, row, err)
	}

	for {
		row++
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return wrapCSVError(filename, row, err)
		}
		if len(record) == 0 {
			continue
		}

		rowYear, err := strconv.Atoi(record[0])
		if err != nil {
			return apperrors.Wrap(apperrors.CodeIOError, fmt.Sprintf("%s: row %d: bad year column", filename, row), err)
		}
		if rowYear != year {
			continue
		}

		cols := record[1:]
		if err := loadRow(idx, store, level, cols, filename, row); err != nil {
			return err
		}
	}
	return nil
}

func wrapCSVError(filename string, row int, err error) error {
	return apperrors.Wrap(apperrors.CodeIOError, fmt.Sprintf("%s: row %d", filename, row), err)
}

func lookupSector(idx *index.IndexSet, name, filename string, row int) (*index.Sector, error) {
	sec, err := idx.Sector(name)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeReferenceError, fmt.Sprintf("%s: row %d: sector %q not found", filename, row, name))
	}
	return sec, nil
}

func lookupRegion(idx *index.IndexSet, name, filename string, row int) (*index.Region, error) {
	reg, err := idx.Region(name)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeReferenceError, fmt.Sprintf("%s: row %d: region %q not found", filename, row, name))
	}
	return reg, nil
}

func parseValue(s, filename string, row int) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeIOError, fmt.Sprintf("%s: row %d: bad value column", filename, row), err)
	}
	return v, nil
}

// loadRow dispatches on level to the Table 4.3-A column layout and writes
// the parsed value (and optional parent sum) into store.
func loadRow(idx *index.IndexSet, store *proxy.Store, level proxy.Level, cols []string, filename string, row int) error {
	subsectors := len(idx.SubSectors())
	subregions := len(idx.SubRegions())
	sectors := len(idx.SuperSectors())
	regions := len(idx.SuperRegions())

	need := func(n int) error {
		if len(cols) < n {
			return apperrors.New(apperrors.CodeIOError, fmt.Sprintf("%s: row %d: expected at least %d columns after year", filename, row, n))
		}
		return nil
	}

	switch level {
	case proxy.LevelPopulation, proxy.LevelGDPSubregion:
		if err := need(2); err != nil {
			return err
		}
		rLambda, err := lookupRegion(idx, cols[0], filename, row)
		if err != nil {
			return err
		}
		value, err := parseValue(cols[1], filename, row)
		if err != nil {
			return err
		}
		data := store.EnsureProxy(level, subregions)
		data.Set(value, rLambda.LevelIndex())
		if len(cols) > 2 && cols[2] != "" {
			sum, err := parseValue(cols[2], filename, row)
			if err != nil {
				return err
			}
			sums := store.EnsureProxySum(level, regions)
			sums.Set(sum, rLambda.Super().LevelIndex())
		}

	case proxy.LevelGDPSubsector:
		if err := need(3); err != nil {
			return err
		}
		iMu, err := lookupSector(idx, cols[0], filename, row)
		if err != nil {
			return err
		}
		r, err := lookupRegion(idx, cols[1], filename, row)
		if err != nil {
			return err
		}
		value, err := parseValue(cols[2], filename, row)
		if err != nil {
			return err
		}
		data := store.EnsureProxy(level, subsectors, regions)
		data.Set(value, iMu.LevelIndex(), r.LevelIndex())
		if len(cols) > 3 && cols[3] != "" {
			sum, err := parseValue(cols[3], filename, row)
			if err != nil {
				return err
			}
			sums := store.EnsureProxySum(level, sectors, regions)
			sums.Set(sum, iMu.Super().LevelIndex(), r.LevelIndex())
		}

	case proxy.LevelGDPSubregionalSubsector:
		if err := need(3); err != nil {
			return err
		}
		iMu, err := lookupSector(idx, cols[0], filename, row)
		if err != nil {
			return err
		}
		rLambda, err := lookupRegion(idx, cols[1], filename, row)
		if err != nil {
			return err
		}
		value, err := parseValue(cols[2], filename, row)
		if err != nil {
			return err
		}
		data := store.EnsureProxy(level, subsectors, subregions)
		data.Set(value, iMu.LevelIndex(), rLambda.LevelIndex())
		if len(cols) > 3 && cols[3] != "" {
			sum, err := parseValue(cols[3], filename, row)
			if err != nil {
				return err
			}
			sums := store.EnsureProxySum(level, sectors, regions)
			sums.Set(sum, iMu.Super().LevelIndex(), rLambda.Super().LevelIndex())
		}

	case proxy.LevelImportSubsector:
		if err := need(3); err != nil {
			return err
		}
		iMu, err := lookupSector(idx, cols[0], filename, row)
		if err != nil {
			return err
		}
		s, err := lookupRegion(idx, cols[1], filename, row)
		if err != nil {
			return err
		}
		value, err := parseValue(cols[2], filename, row)
		if err != nil {
			return err
		}
		data := store.EnsureProxy(level, subsectors, regions)
		data.Set(value, iMu.LevelIndex(), s.LevelIndex())

	case proxy.LevelImportSubregion:
		if err := need(3); err != nil {
			return err
		}
		j, err := lookupSector(idx, cols[0], filename, row)
		if err != nil {
			return err
		}
		rLambda, err := lookupRegion(idx, cols[1], filename, row)
		if err != nil {
			return err
		}
		value, err := parseValue(cols[2], filename, row)
		if err != nil {
			return err
		}
		data := store.EnsureProxy(level, sectors, subregions)
		data.Set(value, j.LevelIndex(), rLambda.LevelIndex())

	case proxy.LevelInterregionalSubsectorInput, proxy.LevelExportSubregionalSubsector:
		if err := need(3); err != nil {
			return err
		}
		iMu, err := lookupSector(idx, cols[0], filename, row)
		if err != nil {
			return err
		}
		rLambda, err := lookupRegion(idx, cols[1], filename, row)
		if err != nil {
			return err
		}
		value, err := parseValue(cols[2], filename, row)
		if err != nil {
			return err
		}
		data := store.EnsureProxy(level, subsectors, subregions)
		data.Set(value, iMu.LevelIndex(), rLambda.LevelIndex())

	case proxy.LevelImportSubsectorByRegionalSector:
		if err := need(4); err != nil {
			return err
		}
		iMu, err := lookupSector(idx, cols[0], filename, row)
		if err != nil {
			return err
		}
		j, err := lookupSector(idx, cols[1], filename, row)
		if err != nil {
			return err
		}
		s, err := lookupRegion(idx, cols[2], filename, row)
		if err != nil {
			return err
		}
		value, err := parseValue(cols[3], filename, row)
		if err != nil {
			return err
		}
		data := store.EnsureProxy(level, subsectors, sectors, regions)
		data.Set(value, iMu.LevelIndex(), j.LevelIndex(), s.LevelIndex())

	case proxy.LevelExportSubregion:
		if err := need(4); err != nil {
			return err
		}
		j, err := lookupSector(idx, cols[0], filename, row)
		if err != nil {
			return err
		}
		s, err := lookupRegion(idx, cols[1], filename, row)
		if err != nil {
			return err
		}
		rLambda, err := lookupRegion(idx, cols[2], filename, row)
		if err != nil {
			return err
		}
		value, err := parseValue(cols[3], filename, row)
		if err != nil {
			return err
		}
		data := store.EnsureProxy(level, sectors, regions, subregions)
		data.Set(value, j.LevelIndex(), s.LevelIndex(), rLambda.LevelIndex())

	case proxy.LevelSubregionalSubsectorInput:
		if err := need(4); err != nil {
			return err
		}
		iMu1, err := lookupSector(idx, cols[0], filename, row)
		if err != nil {
			return err
		}
		iMu2, err := lookupSector(idx, cols[1], filename, row)
		if err != nil {
			return err
		}
		rLambda, err := lookupRegion(idx, cols[2], filename, row)
		if err != nil {
			return err
		}
		value, err := parseValue(cols[3], filename, row)
		if err != nil {
			return err
		}
		data := store.EnsureProxy(level, subsectors, subsectors, subregions)
		data.Set(value, iMu1.LevelIndex(), iMu2.LevelIndex(), rLambda.LevelIndex())

	case proxy.LevelExportSubregionalSubsectorToRegion:
		if err := need(4); err != nil {
			return err
		}
		iMu, err := lookupSector(idx, cols[0], filename, row)
		if err != nil {
			return err
		}
		rLambda, err := lookupRegion(idx, cols[1], filename, row)
		if err != nil {
			return err
		}
		s, err := lookupRegion(idx, cols[2], filename, row)
		if err != nil {
			return err
		}
		value, err := parseValue(cols[3], filename, row)
		if err != nil {
			return err
		}
		data := store.EnsureProxy(level, subsectors, subregions, regions)
		data.Set(value, iMu.LevelIndex(), rLambda.LevelIndex(), s.LevelIndex())

	case proxy.LevelImportSubregionalSubsector:
		if err := need(4); err != nil {
			return err
		}
		j, err := lookupSector(idx, cols[0], filename, row)
		if err != nil {
			return err
		}
		iMu, err := lookupSector(idx, cols[1], filename, row)
		if err != nil {
			return err
		}
		rLambda, err := lookupRegion(idx, cols[2], filename, row)
		if err != nil {
			return err
		}
		value, err := parseValue(cols[3], filename, row)
		if err != nil {
			return err
		}
		data := store.EnsureProxy(level, sectors, subsectors, subregions)
		data.Set(value, j.LevelIndex(), iMu.LevelIndex(), rLambda.LevelIndex())

	case proxy.LevelExportSubregionalSubsectorToSubregion:
		if err := need(4); err != nil {
			return err
		}
		iMu, err := lookupSector(idx, cols[0], filename, row)
		if err != nil {
			return err
		}
		rLambda1, err := lookupRegion(idx, cols[1], filename, row)
		if err != nil {
			return err
		}
		rLambda2, err := lookupRegion(idx, cols[2], filename, row)
		if err != nil {
			return err
		}
		value, err := parseValue(cols[3], filename, row)
		if err != nil {
			return err
		}
		data := store.EnsureProxy(level, subsectors, subregions, subregions)
		data.Set(value, iMu.LevelIndex(), rLambda1.LevelIndex(), rLambda2.LevelIndex())

	case proxy.LevelExact:
		if err := need(5); err != nil {
			return err
		}
		iMu1, err := lookupSector(idx, cols[0], filename, row)
		if err != nil {
			return err
		}
		rLambda1, err := lookupRegion(idx, cols[1], filename, row)
		if err != nil {
			return err
		}
		iMu2, err := lookupSector(idx, cols[2], filename, row)
		if err != nil {
			return err
		}
		rLambda2, err := lookupRegion(idx, cols[3], filename, row)
		if err != nil {
			return err
		}
		value, err := parseValue(cols[4], filename, row)
		if err != nil {
			return err
		}
		data := store.EnsureProxy(level, subsectors, subregions, subsectors, subregions)
		data.Set(value, iMu1.LevelIndex(), rLambda1.LevelIndex(), iMu2.LevelIndex(), rLambda2.LevelIndex())

	default:
		return apperrors.New(apperrors.CodeConfigError, fmt.Sprintf("unknown proxy level %d", level))
	}
	return nil
}
