// Package refstore holds the reference fingerprints of known reciters.
//
// A Store is built once, either from a serialized blob ([Decode], [Load])
// or directly from raw vectors ([New]), and is immutable afterwards. All
// fingerprints are unit-normalized at construction time so that ranking
// reduces to a single dot product per reference. Immutability is the
// concurrency mechanism: any number of goroutines may read a Store with
// no locking.
//
// Replacing the reference set at runtime is done by building a fresh
// Store and swapping it into a [Handle]. In-flight readers see either
// the fully-old or fully-new store, never a mix.
package refstore

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
)

// Sentinel errors.
var (
	// ErrNotFound is returned by Lookup when the identity is not enrolled.
	ErrNotFound = errors.New("refstore: identity not found")
)

// Profile is one enrolled reciter: a unique identity and the unit-normalized
// fingerprint built offline by averaging per-clip embeddings.
type Profile struct {
	Identity    string
	Fingerprint []float32
}

// Store is an immutable mapping from identity to Profile.
type Store struct {
	dim      int
	profiles map[string]Profile
}

// New builds a Store from raw fingerprint vectors keyed by identity.
//
// Every vector must share the same dimensionality and have a nonzero norm;
// identities must be non-empty. Vectors are copied and unit-normalized, so
// the caller may reuse its buffers.
func New(fingerprints map[string][]float32) (*Store, error) {
	s := &Store{profiles: make(map[string]Profile, len(fingerprints))}
	for identity, vec := range fingerprints {
		if identity == "" {
			return nil, errors.New("refstore: empty identity")
		}
		if len(vec) == 0 {
			return nil, fmt.Errorf("refstore: %s: empty fingerprint", identity)
		}
		if s.dim == 0 {
			s.dim = len(vec)
		} else if len(vec) != s.dim {
			return nil, fmt.Errorf("refstore: %s: dimension %d does not match %d", identity, len(vec), s.dim)
		}
		unit, err := normalize(vec)
		if err != nil {
			return nil, fmt.Errorf("refstore: %s: %w", identity, err)
		}
		s.profiles[identity] = Profile{Identity: identity, Fingerprint: unit}
	}
	return s, nil
}

// Lookup returns the profile for an identity, or ErrNotFound.
func (s *Store) Lookup(identity string) (Profile, error) {
	p, ok := s.profiles[identity]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

// All returns every enrolled profile. The order is unspecified; callers
// must not rely on it.
func (s *Store) All() []Profile {
	out := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	return out
}

// Len returns the number of enrolled identities.
func (s *Store) Len() int {
	return len(s.profiles)
}

// Dimension returns the fingerprint dimensionality, or 0 for an empty store.
func (s *Store) Dimension() int {
	return s.dim
}

// normalize returns a unit-length copy of vec. A zero-norm vector carries
// no directional information and is rejected.
func normalize(vec []float32) ([]float32, error) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return nil, errors.New("zero-norm fingerprint")
	}
	norm := math.Sqrt(sum)
	unit := make([]float32, len(vec))
	for i, v := range vec {
		unit[i] = float32(float64(v) / norm)
	}
	return unit, nil
}

// Handle is a swappable reference to the current Store. The zero value is
// unusable; create handles with NewHandle.
type Handle struct {
	ptr atomic.Pointer[Store]
}

// NewHandle creates a Handle pointing at the given store.
func NewHandle(s *Store) *Handle {
	h := &Handle{}
	h.ptr.Store(s)
	return h
}

// Current returns the store the handle currently points at.
func (h *Handle) Current() *Store {
	return h.ptr.Load()
}

// Swap replaces the current store wholesale.
func (h *Handle) Swap(s *Store) {
	h.ptr.Store(s)
}
