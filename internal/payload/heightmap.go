package payload

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Bounds is the world-space rectangle a height field covers: x0, y0, x1, y1.
type Bounds [4]float64

// HeightMap is an immutable 2D field of elevation samples stored row-major.
type HeightMap struct {
	rows, cols int
	bounds     Bounds
	data       []float32
}

// NewHeightMap builds a height field from row-major samples. The sample
// slice is copied so later mutation of the caller's slice cannot leak in.
func NewHeightMap(rows, cols int, bounds Bounds, data []float32) (*HeightMap, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("heightmap dimensions must be positive, got %dx%d", rows, cols)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("heightmap expects %d samples, got %d", rows*cols, len(data))
	}
	owned := make([]float32, len(data))
	copy(owned, data)
	return &HeightMap{rows: rows, cols: cols, bounds: bounds, data: owned}, nil
}

// Rows returns the number of sample rows.
func (h *HeightMap) Rows() int { return h.rows }

// Cols returns the number of sample columns.
func (h *HeightMap) Cols() int { return h.cols }

// Bounds returns the world-space rectangle the field covers.
func (h *HeightMap) Bounds() Bounds { return h.bounds }

// At returns the sample at row r, column c.
func (h *HeightMap) At(r, c int) float32 {
	return h.data[r*h.cols+c]
}

// Samples returns the underlying row-major sample slice. The slice is shared,
// not copied; callers must treat it as read-only.
func (h *HeightMap) Samples() []float32 { return h.data }

// PayloadType implements Payload.
func (h *HeightMap) PayloadType() Type { return TypeHeightMap }

// EncodedSize implements Payload.
func (h *HeightMap) EncodedSize() int {
	// type tag + dims + bounds + samples, each length-prefixed.
	return len(TypeHeightMap) + 8 + 16 + 8 + 32 + 8 + 4*len(h.data) + 8
}

// AppendCanonical implements Payload.
func (h *HeightMap) AppendCanonical(dst []byte) []byte {
	dst = appendString(dst, string(TypeHeightMap))

	var dims [16]byte
	binary.BigEndian.PutUint64(dims[0:], uint64(h.rows))
	binary.BigEndian.PutUint64(dims[8:], uint64(h.cols))
	dst = appendField(dst, dims[:])

	var bb [32]byte
	for i, v := range h.bounds {
		binary.BigEndian.PutUint64(bb[i*8:], math.Float64bits(v))
	}
	dst = appendField(dst, bb[:])

	samples := make([]byte, 4*len(h.data))
	for i, v := range h.data {
		binary.BigEndian.PutUint32(samples[i*4:], math.Float32bits(v))
	}
	return appendField(dst, samples)
}
