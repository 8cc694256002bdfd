// Package fingerprint computes the deterministic digest that identifies a
// node's effective computation: its type, its canonicalized parameters, and
// the fingerprints of the producer outputs it actually consumes. Because
// producer fingerprints fold in transitively, equal fingerprints imply equal
// results all the way up the graph.
//
// The digest is sha256 over length-prefixed fields with all unordered
// collections sorted first, so it is independent of node identifiers, map
// iteration order, and graph-editing history.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Fingerprint is a 256-bit content digest.
type Fingerprint [sha256.Size]byte

// String returns the lowercase hex form of the fingerprint.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Binding ties one of a node's input ports to the producer output feeding it.
type Binding struct {
	// InputPort is the consuming port's name.
	InputPort string
	// Producer is the fingerprint of the node producing the value.
	Producer Fingerprint
	// OutputPort names which of the producer's outputs is consumed.
	OutputPort string
}

// Node computes the fingerprint for a node with the given type identifier,
// parameter values, and input bindings. Parameters and bindings may be given
// in any order; they are canonicalized here.
func Node(typeID string, params map[string]cty.Value, inputs []Binding) (Fingerprint, error) {
	h := sha256.New()

	writeField(h, []byte(typeID))

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	writeCount(h, len(names))
	for _, name := range names {
		v := params[name]
		typeJSON, err := ctyjson.MarshalType(v.Type())
		if err != nil {
			return Fingerprint{}, fmt.Errorf("encoding type of parameter %q: %w", name, err)
		}
		valueJSON, err := ctyjson.Marshal(v, v.Type())
		if err != nil {
			return Fingerprint{}, fmt.Errorf("encoding parameter %q: %w", name, err)
		}
		writeField(h, []byte(name))
		writeField(h, typeJSON)
		writeField(h, valueJSON)
	}

	sorted := make([]Binding, len(inputs))
	copy(sorted, inputs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].InputPort < sorted[j].InputPort })

	writeCount(h, len(sorted))
	for _, b := range sorted {
		writeField(h, []byte(b.InputPort))
		writeField(h, b.Producer[:])
		writeField(h, []byte(b.OutputPort))
	}

	var f Fingerprint
	h.Sum(f[:0])
	return f, nil
}

// writeField writes a length-prefixed field so adjacent fields can never be
// confused for one another.
func writeField(h hash.Hash, data []byte) {
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(len(data)))
	h.Write(prefix[:])
	h.Write(data)
}

func writeCount(h hash.Hash, n int) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	h.Write(b[:])
}
