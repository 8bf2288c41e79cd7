package ranker

import (
	"errors"
	"math"
	"testing"

	"github.com/miqra/reciterid/pkg/refstore"
)

func mustStore(t *testing.T, fingerprints map[string][]float32) *refstore.Store {
	t.Helper()
	s, err := refstore.New(fingerprints)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRankExactMatchScoresOne(t *testing.T) {
	store := mustStore(t, map[string][]float32{
		"alafasy":  {1, 0, 0},
		"husary":   {0, 1, 0},
		"minshawi": {0, 0, 1},
	})

	matches, err := Rank([]float32{0, 1, 0}, store, 3)
	if err != nil {
		t.Fatal(err)
	}
	if matches[0].Identity != "husary" {
		t.Fatalf("top match = %q, want husary", matches[0].Identity)
	}
	if math.Abs(float64(matches[0].Score)-1) > 1e-6 {
		t.Errorf("top score = %f, want 1.0", matches[0].Score)
	}
}

func TestRankOrderingAndTruncation(t *testing.T) {
	store := mustStore(t, map[string][]float32{
		"a": {1, 0},
		"b": {0.9, 0.1},
		"c": {0, 1},
	})
	q := []float32{1, 0}

	matches, err := Rank(q, store, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("len = %d, want 2", len(matches))
	}
	if matches[0].Identity != "a" {
		t.Errorf("first = %q, want a", matches[0].Identity)
	}
	if matches[0].Score < matches[1].Score {
		t.Errorf("scores not descending: %f < %f", matches[0].Score, matches[1].Score)
	}
	for _, m := range matches {
		if m.Score < -1 || m.Score > 1 {
			t.Errorf("%s score %f outside [-1,1]", m.Identity, m.Score)
		}
	}
}

func TestRankScaleInvariance(t *testing.T) {
	store := mustStore(t, map[string][]float32{
		"a": {1, 2, 3},
		"b": {-3, 1, 0},
	})
	q := []float32{0.3, -1.2, 0.7}
	scaled := make([]float32, len(q))
	for i, v := range q {
		scaled[i] = v * 1000
	}

	m1, err := Rank(q, store, 2)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := Rank(scaled, store, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i := range m1 {
		if m1[i].Identity != m2[i].Identity {
			t.Fatalf("order changed under scaling: %v vs %v", m1, m2)
		}
		if math.Abs(float64(m1[i].Score-m2[i].Score)) > 1e-5 {
			t.Errorf("score changed under scaling: %f vs %f", m1[i].Score, m2[i].Score)
		}
	}
}

func TestRankTieBreakByIdentity(t *testing.T) {
	// Identical fingerprints guarantee identical scores.
	store := mustStore(t, map[string][]float32{
		"zaid":  {1, 0},
		"amr":   {1, 0},
		"bakr":  {1, 0},
		"other": {0, 1},
	})

	for range 10 {
		matches, err := Rank([]float32{2, 0}, store, 3)
		if err != nil {
			t.Fatal(err)
		}
		got := []string{matches[0].Identity, matches[1].Identity, matches[2].Identity}
		want := []string{"amr", "bakr", "zaid"}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("tie order = %v, want %v", got, want)
			}
		}
	}
}

func TestRankInvalidTopK(t *testing.T) {
	store := mustStore(t, map[string][]float32{"a": {1, 0}})
	for _, k := range []int{0, -1} {
		if _, err := Rank([]float32{1, 0}, store, k); !errors.Is(err, ErrInvalidTopK) {
			t.Errorf("k=%d: err = %v, want ErrInvalidTopK", k, err)
		}
	}
}

func TestRankEmptyStore(t *testing.T) {
	store := mustStore(t, nil)
	matches, err := Rank([]float32{1, 0}, store, 3)
	if err != nil {
		t.Fatalf("empty store should be inconclusive, not an error: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("matches = %v, want none", matches)
	}
}

func TestRankDegenerateQuery(t *testing.T) {
	store := mustStore(t, map[string][]float32{"a": {1, 0}})
	if _, err := Rank([]float32{0, 0}, store, 1); !errors.Is(err, ErrDegenerateVector) {
		t.Errorf("err = %v, want ErrDegenerateVector", err)
	}
}

func TestRankDimensionMismatch(t *testing.T) {
	store := mustStore(t, map[string][]float32{"a": {1, 0, 0}})
	if _, err := Rank([]float32{1, 0}, store, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestRankOppositeDirection(t *testing.T) {
	store := mustStore(t, map[string][]float32{"a": {1, 0}})
	matches, err := Rank([]float32{-5, 0}, store, 1)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(matches[0].Score)+1) > 1e-6 {
		t.Errorf("score = %f, want -1.0", matches[0].Score)
	}
}
