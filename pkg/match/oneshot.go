// Package match drives the identification pipeline: normalize audio,
// extract a fingerprint, rank it against the reference store.
//
// Two entry points share the pipeline and differ only in failure policy.
// The [Identifier] handles one-shot uploads and surfaces every failure as
// a typed error. The [Session] handles a live chunk stream and silently
// drops chunks that fail locally, closing only on transport errors.
package match

import (
	"context"
	"fmt"
	"time"

	"github.com/miqra/reciterid/pkg/audio"
	"github.com/miqra/reciterid/pkg/embedding"
	"github.com/miqra/reciterid/pkg/ranker"
	"github.com/miqra/reciterid/pkg/refstore"
)

// Pipeline defaults.
const (
	// DefaultTopK is the number of matches returned when the caller does
	// not ask for a specific count.
	DefaultTopK = 3

	// DefaultMinAudio is the minimum decoded duration for a usable
	// fingerprint. Shorter audio is rejected (one-shot) or dropped
	// (streaming).
	DefaultMinAudio = 200 * time.Millisecond

	// DefaultDecodeTimeout is the per-chunk wall-clock decode budget in
	// streaming mode.
	DefaultDecodeTimeout = 2 * time.Second
)

// Identifier is the one-shot match handler: one audio payload in, one
// ranked result out. It is stateless and safe for concurrent use.
type Identifier struct {
	Normalizer audio.Normalizer
	Model      embedding.Model
	Refs       *refstore.Handle

	// MinAudio overrides DefaultMinAudio when positive.
	MinAudio time.Duration
}

// Identify runs the full pipeline for a single upload. k <= 0 selects
// DefaultTopK. Failures are returned as-is; use CategoryOf to classify
// them for the caller. No retries, no partial results.
func (id *Identifier) Identify(ctx context.Context, raw []byte, hint string, k int) ([]ranker.Match, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	minAudio := id.MinAudio
	if minAudio <= 0 {
		minAudio = DefaultMinAudio
	}

	buf, err := id.Normalizer.Normalize(ctx, raw, hint)
	if err != nil {
		return nil, err
	}
	if d := buf.Duration(); d < minAudio {
		return nil, fmt.Errorf("%w: %v of audio, need at least %v", audio.ErrTooShort, d, minAudio)
	}

	vec, err := id.Model.Extract(ctx, buf.Samples)
	if err != nil {
		return nil, err
	}

	return ranker.Rank(vec, id.Refs.Current(), k)
}

// CheckDimensions verifies at startup that the embedding model and the
// loaded reference store agree on vector dimensionality. A mismatch here
// means a corrupted blob or the wrong model version, and every single
// query would fail; refuse to serve instead.
func CheckDimensions(model embedding.Model, store *refstore.Store) error {
	if store.Len() == 0 {
		return nil
	}
	if model.Dimension() != store.Dimension() {
		return fmt.Errorf("%w: model produces %d-dim vectors, store holds %d-dim",
			ranker.ErrDimensionMismatch, model.Dimension(), store.Dimension())
	}
	return nil
}
