// Package payload defines the immutable typed values that flow along graph
// edges: height fields, meshes, and scalars. Payloads are constructed once,
// published to the execution cache, and shared read-only between consumers;
// nothing in this package mutates a payload after construction.
//
// Every payload has a deterministic canonical byte encoding. The encoding is
// the material the cache uses to detect non-deterministic handlers: two puts
// under one fingerprint must agree byte for byte.
package payload

import (
	"encoding/binary"
)

// Type identifies the kind of value a port carries. Port compatibility is
// checked on connect: an edge is only valid when both endpoint types match.
type Type string

const (
	// TypeHeightMap is a 2D field of elevation samples.
	TypeHeightMap Type = "heightmap"
	// TypeMesh is a triangle mesh.
	TypeMesh Type = "mesh"
	// TypeScalar is a single numeric value.
	TypeScalar Type = "scalar"
)

// Payload is an immutable value produced by a node handler.
type Payload interface {
	// PayloadType reports the payload's declared type.
	PayloadType() Type
	// EncodedSize is the length in bytes of the canonical encoding. Used for
	// cache accounting.
	EncodedSize() int
	// AppendCanonical appends the deterministic byte encoding to dst and
	// returns the extended slice.
	AppendCanonical(dst []byte) []byte
}

// appendField appends a length-prefixed field, so concatenated encodings are
// unambiguous regardless of field content.
func appendField(dst, field []byte) []byte {
	dst = binary.BigEndian.AppendUint64(dst, uint64(len(field)))
	return append(dst, field...)
}

func appendString(dst []byte, s string) []byte {
	dst = binary.BigEndian.AppendUint64(dst, uint64(len(s)))
	return append(dst, s...)
}

// Valid reports whether t names a known payload type.
func (t Type) Valid() bool {
	switch t {
	case TypeHeightMap, TypeMesh, TypeScalar:
		return true
	}
	return false
}
