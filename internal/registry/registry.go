// Package registry provides the write-once-then-sealed catalog of node types.
//
// The registry maps a node-type identifier (e.g. "noise.value") to its
// handler, the pure computation the node performs, plus self-describing
// metadata: ordered port specs and a parameter schema. The graph model
// validates mutations against the metadata without ever touching handler
// logic.
//
// A registry must be sealed before the first scheduler run. After sealing,
// all reads come from an immutable structure and need no synchronization.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/zclconf/go-cty/cty"

	"github.com/barrulus/Hesiod/internal/payload"
)

// ErrSealed is returned by Register once the registry has been sealed.
var ErrSealed = errors.New("registry is sealed")

// DuplicateTypeError is returned when a type identifier is registered twice.
type DuplicateTypeError struct {
	TypeID string
}

func (e *DuplicateTypeError) Error() string {
	return fmt.Sprintf("node type %q already registered", e.TypeID)
}

// UnknownTypeError is returned by Lookup for an unregistered type identifier.
type UnknownTypeError struct {
	TypeID string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown node type %q", e.TypeID)
}

// Invocation carries everything a handler needs: resolved input payloads
// keyed by input port name, and parameter values keyed by parameter name.
// Inputs for unconnected ports are absent from the map.
type Invocation struct {
	Inputs map[string]payload.Payload
	Params map[string]cty.Value
}

// Handler is the pure computation a node type performs. It must be
// deterministic: the same invocation must always produce byte-identical
// payloads. Long-running handlers should poll ctx for cancellation.
type Handler func(ctx context.Context, inv *Invocation) (payload.Set, error)

// Definition bundles a node type's handler with its metadata.
type Definition struct {
	Handler  Handler
	Metadata Metadata
}

// Registry is an explicit, instance-scoped node-type catalog. It is never a
// process global: construct one at startup, register types, seal it, and
// pass it by reference into the graph and scheduler.
type Registry struct {
	mu     sync.Mutex
	sealed atomic.Bool
	defs   map[string]*Definition
}

// New creates an empty, unsealed registry.
func New() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds a node type. It fails with a DuplicateTypeError if the type
// identifier is taken, with ErrSealed after Seal, and with a validation
// error if the definition's metadata is malformed.
func (r *Registry) Register(typeID string, def Definition) error {
	if typeID == "" {
		return errors.New("node type identifier must not be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("node type %q has no handler", typeID)
	}
	if err := def.Metadata.validate(typeID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return ErrSealed
	}
	if _, exists := r.defs[typeID]; exists {
		return &DuplicateTypeError{TypeID: typeID}
	}
	r.defs[typeID] = &def
	return nil
}

// Seal freezes the registry. Further Register calls fail; Lookup becomes
// safe without synchronization. Sealing twice is a no-op.
func (r *Registry) Seal() {
	r.mu.Lock()
	// The atomic store publishes every prior registration: a reader that
	// observes sealed==true also observes the complete map.
	r.sealed.Store(true)
	r.mu.Unlock()
}

// Sealed reports whether the registry has been sealed.
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// Lookup resolves a type identifier to its definition. It fails with an
// UnknownTypeError if the type was never registered. Sealed registries are
// read without locking.
func (r *Registry) Lookup(typeID string) (*Definition, error) {
	var def *Definition
	var ok bool
	if r.sealed.Load() {
		def, ok = r.defs[typeID]
	} else {
		r.mu.Lock()
		def, ok = r.defs[typeID]
		r.mu.Unlock()
	}
	if !ok {
		return nil, &UnknownTypeError{TypeID: typeID}
	}
	return def, nil
}

// Types returns all registered type identifiers in ascending order.
func (r *Registry) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.defs))
	for id := range r.defs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
