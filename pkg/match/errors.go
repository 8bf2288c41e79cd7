package match

import (
	"context"
	"errors"

	"github.com/miqra/reciterid/pkg/audio"
	"github.com/miqra/reciterid/pkg/embedding"
	"github.com/miqra/reciterid/pkg/ranker"
)

// Category is the machine-readable failure class surfaced to API callers.
// One-shot requests report these directly; streaming sessions drop the
// per-chunk ones silently and never report them mid-stream.
type Category string

const (
	CategoryUnsupportedFormat Category = "unsupported_format"
	CategoryAudioTooShort     Category = "audio_too_short"
	CategoryEmbeddingFailure  Category = "embedding_failure"
	CategoryDimensionMismatch Category = "dimension_mismatch"
	CategoryDegenerateVector  Category = "degenerate_vector"
	CategoryInvalidArgument   Category = "invalid_argument"
	CategoryInternal          Category = "internal"
)

// CategoryOf maps an error from the identify pipeline to its Category.
// A decode deadline counts as undecodable input. Unknown errors map to
// CategoryInternal.
func CategoryOf(err error) Category {
	switch {
	case errors.Is(err, audio.ErrTooShort):
		return CategoryAudioTooShort
	case errors.Is(err, audio.ErrUnsupportedFormat),
		errors.Is(err, context.DeadlineExceeded):
		return CategoryUnsupportedFormat
	case errors.Is(err, embedding.ErrEmbeddingFailure):
		return CategoryEmbeddingFailure
	case errors.Is(err, ranker.ErrDimensionMismatch):
		return CategoryDimensionMismatch
	case errors.Is(err, ranker.ErrDegenerateVector):
		return CategoryDegenerateVector
	case errors.Is(err, ranker.ErrInvalidTopK):
		return CategoryInvalidArgument
	default:
		return CategoryInternal
	}
}
