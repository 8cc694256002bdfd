// Package cache implements the content-addressable execution cache: a
// capacity-bounded store mapping fingerprints to computed payload sets.
//
// Because fingerprints fold in producer fingerprints transitively, a hit for
// a node vouches for every upstream computation without re-examining it, and
// a miss is always safe, it only costs recomputation.
//
// The cache is the one structure workers mutate concurrently. Resolve gives
// the at-most-one-in-flight-computation-per-fingerprint guarantee: when two
// ready nodes race on one fingerprint, a single handler invocation occurs
// and the second caller blocks for the first's result.
package cache

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/barrulus/Hesiod/internal/fingerprint"
	"github.com/barrulus/Hesiod/internal/payload"
)

// DefaultMaxEntries bounds the cache when the caller does not.
const DefaultMaxEntries = 1024

// Config controls cache capacity. Eviction is least-recently-used.
type Config struct {
	// MaxEntries is the entry-count bound; zero means DefaultMaxEntries.
	MaxEntries int
}

// CorruptionError reports two disagreeing computations for one fingerprint.
// It signals a non-deterministic handler, is fatal to the run, and is never
// retried.
type CorruptionError struct {
	Fingerprint fingerprint.Fingerprint
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("cache corruption: conflicting results for fingerprint %s (non-deterministic handler)", e.Fingerprint)
}

// Entry is an immutable cached result plus bookkeeping metadata.
type Entry struct {
	Payloads payload.Set
	// Canonical is the set's canonical encoding, kept for the corruption
	// check on duplicate puts.
	Canonical []byte
	// Size is the canonical size in bytes.
	Size int

	mu         sync.Mutex
	lastAccess time.Time
}

// LastAccess returns when the entry was last read or written.
func (e *Entry) LastAccess() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastAccess
}

func (e *Entry) touch() {
	e.mu.Lock()
	e.lastAccess = time.Now()
	e.mu.Unlock()
}

// Cache is safe for concurrent use.
type Cache struct {
	entries *lru.Cache[fingerprint.Fingerprint, *Entry]
	group   singleflight.Group
	calls   sync.Mutex // guards callSeq
	callSeq uint64
}

// New creates a cache with the configured capacity.
func New(cfg Config) (*Cache, error) {
	max := cfg.MaxEntries
	if max <= 0 {
		max = DefaultMaxEntries
	}
	entries, err := lru.New[fingerprint.Fingerprint, *Entry](max)
	if err != nil {
		return nil, fmt.Errorf("creating LRU store: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// Get returns the payload set stored under fp, if any.
func (c *Cache) Get(fp fingerprint.Fingerprint) (payload.Set, bool) {
	entry, ok := c.entries.Get(fp)
	if !ok {
		return nil, false
	}
	entry.touch()
	return entry.Payloads, true
}

// Entry returns the full cache entry, including metadata.
func (c *Cache) Entry(fp fingerprint.Fingerprint) (*Entry, bool) {
	return c.entries.Peek(fp)
}

// Put stores a payload set under fp. A duplicate put with byte-identical
// content is a no-op; a duplicate with different bytes returns a
// CorruptionError.
func (c *Cache) Put(fp fingerprint.Fingerprint, set payload.Set) error {
	canonical := set.AppendCanonical(nil)
	if existing, ok := c.entries.Get(fp); ok {
		if !bytes.Equal(existing.Canonical, canonical) {
			return &CorruptionError{Fingerprint: fp}
		}
		existing.touch()
		return nil
	}
	entry := &Entry{
		Payloads:   set,
		Canonical:  canonical,
		Size:       len(canonical),
		lastAccess: time.Now(),
	}
	c.entries.Add(fp, entry)
	return nil
}

// Resolve returns the payload set for fp, computing it at most once across
// concurrent callers. The compute function runs only on a miss; racing
// resolvers for the same fingerprint block and share the winner's result.
// invoked is true only for the caller whose compute actually ran.
func (c *Cache) Resolve(ctx context.Context, fp fingerprint.Fingerprint, compute func(context.Context) (payload.Set, error)) (set payload.Set, invoked bool, err error) {
	if set, ok := c.Get(fp); ok {
		return set, false, nil
	}

	c.calls.Lock()
	c.callSeq++
	callID := c.callSeq
	c.calls.Unlock()

	type flight struct {
		set   payload.Set
		owner uint64
	}

	v, err, _ := c.group.Do(fp.String(), func() (any, error) {
		// A racing flight may have published while we queued.
		if set, ok := c.Get(fp); ok {
			return &flight{set: set}, nil
		}
		set, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Put(fp, set); err != nil {
			return nil, err
		}
		return &flight{set: set, owner: callID}, nil
	})
	if err != nil {
		return nil, false, err
	}
	f := v.(*flight)
	return f.set, f.owner == callID, nil
}

// Len returns the number of live entries.
func (c *Cache) Len() int { return c.entries.Len() }

// Purge drops every entry.
func (c *Cache) Purge() { c.entries.Purge() }
