// Package embedding defines the boundary to the speaker-embedding model.
//
// The model itself is an external collaborator: mono 16 kHz float samples
// in, a fixed-length real vector out. This package only pins down the
// contract and ships an HTTP client for a model served out of process.
package embedding

import (
	"context"
	"errors"
)

// ErrEmbeddingFailure is returned when the model could not produce a
// vector for otherwise valid audio.
var ErrEmbeddingFailure = errors.New("embedding: model failed to produce a vector")

// Model extracts speaker fingerprint vectors from normalized audio.
//
// Implementations must be safe for concurrent use; independent sessions
// call Extract simultaneously.
type Model interface {
	// Extract computes a fingerprint from mono 16 kHz float samples in
	// [-1, 1]. The returned vector has length Dimension().
	Extract(ctx context.Context, pcm []float32) ([]float32, error)

	// Dimension returns the dimensionality of extracted vectors
	// (e.g., 192 for ECAPA-TDNN).
	Dimension() int

	// Close releases resources held by the model.
	Close() error
}
