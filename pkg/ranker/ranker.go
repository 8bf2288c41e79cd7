// Package ranker scores a query fingerprint against every enrolled
// reference and returns a deterministic top-k.
//
// Similarity is the cosine of the angle between the query and a reference:
// the dot product of the two unit-normalized vectors, in [-1, 1]. The
// reference vectors are unit-normalized once at store load, so a query
// costs one normalization plus N dot products. N is tens of reciters;
// a brute-force scan is the right tool at this scale, and the Rank
// signature leaves room for a sub-linear index behind it later.
package ranker

import (
	"errors"
	"math"
	"sort"

	"github.com/miqra/reciterid/pkg/refstore"
)

// Sentinel errors.
var (
	// ErrInvalidTopK is returned when k is not positive.
	ErrInvalidTopK = errors.New("ranker: top-k must be positive")

	// ErrDimensionMismatch is returned when the query and the reference
	// store disagree on vector dimensionality. This points at a corrupt
	// store or a mismatched embedding model version.
	ErrDimensionMismatch = errors.New("ranker: query dimension does not match reference store")

	// ErrDegenerateVector is returned for a zero-norm query, which carries
	// no directional information and cannot be compared.
	ErrDegenerateVector = errors.New("ranker: zero-norm query vector")
)

// Match is one scored reference identity.
type Match struct {
	Identity string  `json:"identity"`
	Score    float32 `json:"score"`
}

// Rank scores query against every profile in store and returns up to k
// matches ordered by descending score, ties broken by ascending identity.
//
// An empty store yields an empty result and no error: identification is
// simply inconclusive. The query need not be unit length; it is normalized
// here, so positive rescaling of the query never changes the result.
func Rank(query []float32, store *refstore.Store, k int) ([]Match, error) {
	if k <= 0 {
		return nil, ErrInvalidTopK
	}
	if store == nil || store.Len() == 0 {
		return nil, nil
	}
	if len(query) != store.Dimension() {
		return nil, ErrDimensionMismatch
	}

	var sum float64
	for _, v := range query {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return nil, ErrDegenerateVector
	}
	norm := math.Sqrt(sum)

	profiles := store.All()
	matches := make([]Match, 0, len(profiles))
	for _, p := range profiles {
		var dot float64
		for i, v := range query {
			dot += float64(v) / norm * float64(p.Fingerprint[i])
		}
		matches = append(matches, Match{Identity: p.Identity, Score: clamp(dot)})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Identity < matches[j].Identity
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// clamp absorbs floating round-off beyond the mathematical [-1, 1] range.
func clamp(score float64) float32 {
	if score > 1 {
		return 1
	}
	if score < -1 {
		return -1
	}
	return float32(score)
}
