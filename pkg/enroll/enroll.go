// Package enroll builds reference fingerprints from a dataset of labeled
// audio clips.
//
// The dataset is a directory of per-reciter subdirectories, each holding
// audio clips of that reciter. Every clip is normalized and embedded, the
// per-clip vectors are averaged into one fingerprint per reciter, and the
// result feeds refstore.New. Clips that fail to decode or embed are
// skipped with a log line rather than aborting the run; a reciter ends up
// in the output only if at least one clip succeeded.
//
// Embeddings are cached by clip content hash, so re-running enrollment
// after adding clips only pays for the new ones.
package enroll

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/miqra/reciterid/pkg/audio"
	"github.com/miqra/reciterid/pkg/embcache"
	"github.com/miqra/reciterid/pkg/embedding"
)

// Options configures an enrollment run.
type Options struct {
	// MinAudio is the minimum usable clip duration. Defaults to 200ms.
	MinAudio time.Duration

	// Cache stores per-clip embeddings across runs. Defaults to an
	// in-memory cache (no persistence).
	Cache embcache.Cache

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (o *Options) fill() {
	if o.MinAudio <= 0 {
		o.MinAudio = 200 * time.Millisecond
	}
	if o.Cache == nil {
		o.Cache = embcache.NewMemory()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// BuildFromDir walks dataset/<reciter>/<clip> and returns one averaged
// fingerprint per reciter, keyed by the subdirectory name.
func BuildFromDir(ctx context.Context, dataset string, normalizer audio.Normalizer, model embedding.Model, opts Options) (map[string][]float32, error) {
	entries, err := os.ReadDir(dataset)
	if err != nil {
		return nil, fmt.Errorf("enroll: read dataset %s: %w", dataset, err)
	}

	spec := make(map[string][]string)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		clips, err := listClips(filepath.Join(dataset, e.Name()))
		if err != nil {
			return nil, err
		}
		spec[e.Name()] = clips
	}
	return build(ctx, spec, normalizer, model, opts)
}

// listClips returns all regular files in dir.
func listClips(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("enroll: read %s: %w", dir, err)
	}
	var clips []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		clips = append(clips, filepath.Join(dir, e.Name()))
	}
	return clips, nil
}

// build embeds every clip and averages per identity.
func build(ctx context.Context, spec map[string][]string, normalizer audio.Normalizer, model embedding.Model, opts Options) (map[string][]float32, error) {
	opts.fill()

	fingerprints := make(map[string][]float32)
	for identity, clips := range spec {
		logger := opts.Logger.With("reciter", identity)
		var vecs [][]float32
		for _, clip := range clips {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			vec, err := embedClip(ctx, clip, normalizer, model, opts)
			if err != nil {
				logger.Warn("clip skipped", "clip", filepath.Base(clip), "error", err)
				continue
			}
			vecs = append(vecs, vec)
		}
		if len(vecs) == 0 {
			logger.Warn("no usable clips, reciter excluded")
			continue
		}
		avg, err := Average(vecs)
		if err != nil {
			return nil, fmt.Errorf("enroll: %s: %w", identity, err)
		}
		fingerprints[identity] = avg
		logger.Info("reciter enrolled", "clips", len(vecs))
	}

	if len(fingerprints) == 0 {
		return nil, errors.New("enroll: no reciters produced a usable fingerprint")
	}
	return fingerprints, nil
}

// embedClip returns the embedding for one clip, consulting the cache first.
func embedClip(ctx context.Context, path string, normalizer audio.Normalizer, model embedding.Model, opts Options) ([]float32, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(raw)
	key := hex.EncodeToString(sum[:])
	if vec, err := opts.Cache.Get(ctx, key); err == nil {
		return vec, nil
	} else if !errors.Is(err, embcache.ErrNotFound) {
		return nil, err
	}

	buf, err := normalizer.Normalize(ctx, raw, hintFor(path))
	if err != nil {
		return nil, err
	}
	if d := buf.Duration(); d < opts.MinAudio {
		return nil, fmt.Errorf("%w: %v of audio", audio.ErrTooShort, d)
	}

	vec, err := model.Extract(ctx, buf.Samples)
	if err != nil {
		return nil, err
	}
	if err := opts.Cache.Put(ctx, key, vec); err != nil {
		return nil, err
	}
	return vec, nil
}

func hintFor(path string) string {
	switch filepath.Ext(path) {
	case ".wav":
		return "wav"
	case ".pcm", ".raw":
		return "pcm16"
	default:
		return ""
	}
}

// Average returns the element-wise mean of the vectors. All vectors must
// share one dimensionality.
func Average(vecs [][]float32) ([]float32, error) {
	if len(vecs) == 0 {
		return nil, errors.New("enroll: no vectors to average")
	}
	dim := len(vecs[0])
	sums := make([]float64, dim)
	for _, vec := range vecs {
		if len(vec) != dim {
			return nil, fmt.Errorf("enroll: mixed dimensions %d and %d", dim, len(vec))
		}
		for i, v := range vec {
			sums[i] += float64(v)
		}
	}
	avg := make([]float32, dim)
	for i, s := range sums {
		avg[i] = float32(s / float64(len(vecs)))
	}
	return avg, nil
}
