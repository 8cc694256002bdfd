package payload

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// Set maps output port names to the payloads a node produced. A Set is
// written to the execution cache once and shared read-only afterwards.
type Set map[string]Payload

// EncodedSize is the total canonical size of the set, including port names.
func (s Set) EncodedSize() int {
	n := 8
	for name, p := range s {
		n += 8 + len(name) + p.EncodedSize()
	}
	return n
}

// AppendCanonical appends a deterministic encoding of the set: the port
// count, then each port in ascending name order.
func (s Set) AppendCanonical(dst []byte) []byte {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	dst = binary.BigEndian.AppendUint64(dst, uint64(len(names)))
	for _, name := range names {
		dst = appendString(dst, name)
		dst = s[name].AppendCanonical(dst)
	}
	return dst
}

// Equal reports whether two sets have identical canonical encodings.
func Equal(a, b Set) bool {
	return bytes.Equal(a.AppendCanonical(nil), b.AppendCanonical(nil))
}
