package payload

import (
	"encoding/binary"
	"math"
)

// Scalar is a single numeric value.
type Scalar float64

// Value returns the scalar as a float64.
func (s Scalar) Value() float64 { return float64(s) }

// PayloadType implements Payload.
func (s Scalar) PayloadType() Type { return TypeScalar }

// EncodedSize implements Payload.
func (s Scalar) EncodedSize() int { return len(TypeScalar) + 8 + 8 + 8 }

// AppendCanonical implements Payload.
func (s Scalar) AppendCanonical(dst []byte) []byte {
	dst = appendString(dst, string(TypeScalar))
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(float64(s)))
	return appendField(dst, b[:])
}
