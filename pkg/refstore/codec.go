package refstore

import (
	"context"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/miqra/reciterid/pkg/blob"
)

// blobVersion is the current on-disk envelope version.
const blobVersion = 1

// envelope is the serialized form of a reference blob.
type envelope struct {
	Version   int                  `msgpack:"version"`
	Dimension int                  `msgpack:"dimension"`
	Profiles  map[string][]float32 `msgpack:"profiles"`
}

// Decode reads a serialized reference blob and builds a Store from it.
// The store's fingerprints end up unit-normalized regardless of how they
// were stored, so encode/decode round trips are rank-stable.
func Decode(r io.Reader) (*Store, error) {
	var env envelope
	if err := msgpack.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("refstore: corrupt blob: %w", err)
	}
	if env.Version != blobVersion {
		return nil, fmt.Errorf("refstore: unsupported blob version %d", env.Version)
	}
	s, err := New(env.Profiles)
	if err != nil {
		return nil, err
	}
	if env.Dimension != 0 && s.Dimension() != 0 && env.Dimension != s.Dimension() {
		return nil, fmt.Errorf("refstore: blob declares dimension %d but vectors have %d", env.Dimension, s.Dimension())
	}
	return s, nil
}

// Encode writes the store as a serialized reference blob. The normalized
// fingerprints are written as-is.
func (s *Store) Encode(w io.Writer) error {
	env := envelope{
		Version:   blobVersion,
		Dimension: s.dim,
		Profiles:  make(map[string][]float32, len(s.profiles)),
	}
	for identity, p := range s.profiles {
		env.Profiles[identity] = p.Fingerprint
	}
	if err := msgpack.NewEncoder(w).Encode(&env); err != nil {
		return fmt.Errorf("refstore: encode blob: %w", err)
	}
	return nil
}

// Load reads the reference blob at path from fs and builds a Store.
// Any failure here is fatal for the process: the engine must not serve
// identification requests without a reference set.
func Load(ctx context.Context, fs blob.FileStore, path string) (*Store, error) {
	r, err := fs.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("refstore: load %s: %w", path, err)
	}
	defer r.Close()
	s, err := Decode(r)
	if err != nil {
		return nil, fmt.Errorf("refstore: load %s: %w", path, err)
	}
	return s, nil
}

// Save writes the store's blob at path in fs.
func (s *Store) Save(ctx context.Context, fs blob.FileStore, path string) error {
	w, err := fs.Write(ctx, path)
	if err != nil {
		return fmt.Errorf("refstore: save %s: %w", path, err)
	}
	if err := s.Encode(w); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("refstore: save %s: %w", path, err)
	}
	return nil
}
