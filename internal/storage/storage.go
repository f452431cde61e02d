package storage

import (
	"errors"
	"sync"
	"time"

	"github.com/izoe/variant-signer/internal/variant"
)

var (
	// ErrEmptySnapshot indicates an attempt to store a snapshot without variants.
	ErrEmptySnapshot = errors.New("variant snapshot must contain at least one variant")
	// ErrVariantNotFound indicates the requested variant is not in the snapshot.
	ErrVariantNotFound = errors.New("variant not found")
)

// Snapshot is an immutable set of resolved variants. Fingerprints maps each
// key store path to the SHA-256 taken when the variants were resolved.
type Snapshot struct {
	Variants     []variant.Variant
	Fingerprints map[string]string
	ResolvedAt   time.Time
}

// Find returns the named variant.
func (s Snapshot) Find(name string) (variant.Variant, error) {
	for _, v := range s.Variants {
		if v.Name == name {
			return v, nil
		}
	}
	return variant.Variant{}, ErrVariantNotFound
}

// Storage provides access to the most recently resolved variants.
type Storage interface {
	Snapshot() (Snapshot, bool)
	Variant(name string) (variant.Variant, error)
	Replace(variants []variant.Variant, fingerprints map[string]string, resolvedAt time.Time) error
}

// MemoryStore keeps the current snapshot in memory and guards access with a RWMutex.
type MemoryStore struct {
	mu       sync.RWMutex
	snapshot Snapshot
	loaded   bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Snapshot returns a defensive copy of the current snapshot and whether one has been stored.
func (s *MemoryStore) Snapshot() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		Variants:     cloneVariants(s.snapshot.Variants),
		Fingerprints: cloneFingerprints(s.snapshot.Fingerprints),
		ResolvedAt:   s.snapshot.ResolvedAt,
	}, s.loaded
}

// Variant returns a copy of the named variant.
func (s *MemoryStore) Variant(name string) (variant.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, err := s.snapshot.Find(name)
	if err != nil {
		return variant.Variant{}, err
	}
	return cloneVariant(v), nil
}

// Replace swaps in a new snapshot. The previous snapshot is kept on error.
func (s *MemoryStore) Replace(variants []variant.Variant, fingerprints map[string]string, resolvedAt time.Time) error {
	if len(variants) == 0 {
		return ErrEmptySnapshot
	}
	next := Snapshot{
		Variants:     cloneVariants(variants),
		Fingerprints: cloneFingerprints(fingerprints),
		ResolvedAt:   resolvedAt,
	}

	s.mu.Lock()
	s.snapshot = next
	s.loaded = true
	s.mu.Unlock()

	return nil
}

func cloneVariants(src []variant.Variant) []variant.Variant {
	if len(src) == 0 {
		return []variant.Variant{}
	}

	out := make([]variant.Variant, len(src))
	for i, v := range src {
		out[i] = cloneVariant(v)
	}
	return out
}

func cloneVariant(v variant.Variant) variant.Variant {
	v.Resources = append([]variant.ResourceValue(nil), v.Resources...)
	return v
}

func cloneFingerprints(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
