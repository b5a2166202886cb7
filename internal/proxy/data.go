package proxy

import "math"

// Data is a dense array addressed by up to four level indices, mirroring
// the original's ProxyData: a population/GDP/trade proxy keyed by one or
// more subsector/subregion (or supersector/superregion) positions.
type Data struct {
	values []float64
	dims   []int
}

// NewData allocates a Data array of the given shape (1 to 4 dimensions),
// filled with NaN to mean "no evidence yet".
func NewData(dims ...int) *Data {
	size := 1
	for _, d := range dims {
		size *= d
	}
	values := make([]float64, size)
	for i := range values {
		values[i] = math.NaN()
	}
	return &Data{values: values, dims: append([]int(nil), dims...)}
}

// Dims returns the shape this Data array was allocated with.
func (d *Data) Dims() []int { return d.dims }

func (d *Data) flatIndex(levelIndices []int) int {
	pos := 0
	mult := 1
	for k, idx := range levelIndices {
		pos += idx * mult
		mult *= d.dims[k]
	}
	return pos
}

// At returns the value at the given level indices (one per dimension, in
// declaration order).
func (d *Data) At(levelIndices ...int) float64 {
	return d.values[d.flatIndex(levelIndices)]
}

// Set writes the value at the given level indices.
func (d *Data) Set(value float64, levelIndices ...int) {
	d.values[d.flatIndex(levelIndices)] = value
}
