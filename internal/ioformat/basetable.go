package ioformat

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pik-piam/mrio-disagg/internal/index"
	"github.com/pik-piam/mrio-disagg/internal/table"
	"github.com/pik-piam/mrio-disagg/pkg/compression"
	apperrors "github.com/pik-piam/mrio-disagg/pkg/errors"
)

// ReadBaseTable loads the base MRIO table from the tabular file pair named in
// spec.md §6: an index file whose rows give (region, sector) in storage
// order, and a dense N×N numeric file in matching row/column order. Cells at
// or below threshold are coerced to zero, mirroring the original's
// cutoff-on-load behavior.
func ReadBaseTable(indexFile, matrixFile string, threshold float64) (*index.IndexSet, *table.Table, error) {
	regions, sectors, err := readIndexFile(indexFile)
	if err != nil {
		return nil, nil, err
	}

	idx := index.New()
	for i := range regions {
		if err := idx.AddIndexByName(sectors[i], regions[i]); err != nil {
			return nil, nil, apperrors.Wrap(apperrors.CodeReferenceError, fmt.Sprintf("%s: row %d", indexFile, i+1), err)
		}
	}
	idx.RebuildIndices()

	t := table.New(idx, 0)
	if err := fillMatrix(t, matrixFile, threshold); err != nil {
		return nil, nil, err
	}
	return idx, t, nil
}

// readIndexFile parses the index file's header ("region,sector") and rows,
// returning parallel region/sector name slices in storage order.
func readIndexFile(filename string) (regions, sectors []string, err error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CodeIOError, fmt.Sprintf("opening index file %q", filename), err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	if _, err := r.Read(); err != nil { // header
		return nil, nil, wrapCSVError(filename, 0, err)
	}

	row := 0
	for {
		row++
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, wrapCSVError(filename, row, err)
		}
		if len(record) < 2 {
			return nil, nil, apperrors.New(apperrors.CodeIOError, fmt.Sprintf("%s: row %d: expected 2 columns (region,sector)", filename, row))
		}
		regions = append(regions, record[0])
		sectors = append(sectors, record[1])
	}
	return regions, sectors, nil
}

// fillMatrix streams the dense N×N numeric file row by row into t, applying
// the zeroing threshold cell by cell.
func fillMatrix(t *table.Table, filename string, threshold float64) error {
	f, err := os.Open(filename)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIOError, fmt.Sprintf("opening matrix file %q", filename), err)
	}
	defer f.Close()
	return fillMatrixFrom(t, f, filename, threshold)
}

// fillMatrixFrom is fillMatrix's body over an already-open reader, shared
// with ReadBaseTableGzip's decompressed in-memory source.
func fillMatrixFrom(t *table.Table, src io.Reader, filename string, threshold float64) error {
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1

	n := t.Dimension()
	for row := 0; row < n; row++ {
		record, err := r.Read()
		if err != nil {
			return wrapCSVError(filename, row+1, err)
		}
		if len(record) < n {
			return apperrors.New(apperrors.CodeIOError, fmt.Sprintf("%s: row %d: expected %d columns, got %d", filename, row+1, n, len(record)))
		}
		for col := 0; col < n; col++ {
			v, err := strconv.ParseFloat(record[col], 64)
			if err != nil {
				return apperrors.Wrap(apperrors.CodeIOError, fmt.Sprintf("%s: row %d col %d: bad value", filename, row+1, col+1), err)
			}
			if v <= threshold {
				v = 0
			}
			if err := t.SetPos(row, col, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteBaseTable writes t (and its index set's leaf ordering) back out to
// the same tabular file-pair shape ReadBaseTable reads, used for both the
// refined N'×N' output and round-trip tests.
func WriteBaseTable(idx *index.IndexSet, t *table.Table, indexFile, matrixFile string) error {
	if err := writeIndexFile(idx, indexFile); err != nil {
		return err
	}
	return writeMatrix(t, matrixFile)
}

func writeIndexFile(idx *index.IndexSet, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIOError, fmt.Sprintf("creating index file %q", filename), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"region", "sector"}); err != nil {
		return apperrors.Wrap(apperrors.CodeIOError, "writing index header", err)
	}
	for _, pair := range idx.TotalPairs() {
		if err := w.Write([]string{pair.Region.Name, pair.Sector.Name}); err != nil {
			return apperrors.Wrap(apperrors.CodeIOError, "writing index row", err)
		}
	}
	return nil
}

// WriteBaseTableGzip is WriteBaseTable's counterpart for the `--gzip` output
// mode: the index file stays plain CSV (it is tiny and human-inspected), but
// the dense N'×N' matrix file is gzip-compressed before being written, using
// pkg/compression's gzip compressor.
func WriteBaseTableGzip(idx *index.IndexSet, t *table.Table, indexFile, matrixFile string) error {
	if err := writeIndexFile(idx, indexFile); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := writeMatrixTo(t, &buf); err != nil {
		return err
	}

	compressed, err := compression.NewGzipCompressor(compression.LevelDefault).Compress(buf.Bytes())
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIOError, "compressing matrix output", err)
	}
	if err := os.WriteFile(matrixFile, compressed, 0o644); err != nil {
		return apperrors.Wrap(apperrors.CodeIOError, fmt.Sprintf("writing matrix file %q", matrixFile), err)
	}
	return nil
}

// ReadBaseTableGzip is ReadBaseTable's counterpart for a gzip-compressed
// matrix file written by WriteBaseTableGzip.
func ReadBaseTableGzip(indexFile, matrixFile string, threshold float64) (*index.IndexSet, *table.Table, error) {
	regions, sectors, err := readIndexFile(indexFile)
	if err != nil {
		return nil, nil, err
	}

	idx := index.New()
	for i := range regions {
		if err := idx.AddIndexByName(sectors[i], regions[i]); err != nil {
			return nil, nil, apperrors.Wrap(apperrors.CodeReferenceError, fmt.Sprintf("%s: row %d", indexFile, i+1), err)
		}
	}
	idx.RebuildIndices()

	compressed, err := os.ReadFile(matrixFile)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CodeIOError, fmt.Sprintf("opening matrix file %q", matrixFile), err)
	}
	raw, err := compression.NewGzipCompressor(compression.LevelDefault).Decompress(compressed)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CodeIOError, "decompressing matrix input", err)
	}

	t := table.New(idx, 0)
	if err := fillMatrixFrom(t, bytes.NewReader(raw), matrixFile, threshold); err != nil {
		return nil, nil, err
	}
	return idx, t, nil
}

func writeMatrix(t *table.Table, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIOError, fmt.Sprintf("creating matrix file %q", filename), err)
	}
	defer f.Close()
	return writeMatrixTo(t, f)
}

// writeMatrixTo is writeMatrix's body over an already-open writer, shared
// with WriteBaseTableGzip's in-memory buffer.
func writeMatrixTo(t *table.Table, dst io.Writer) error {
	w := csv.NewWriter(dst)
	defer w.Flush()

	n := t.Dimension()
	record := make([]string, n)
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			v, err := t.AtPos(row, col)
			if err != nil {
				return err
			}
			record[col] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(record); err != nil {
			return apperrors.Wrap(apperrors.CodeIOError, "writing matrix row", err)
		}
	}
	return nil
}
