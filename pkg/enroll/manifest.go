package enroll

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/miqra/reciterid/pkg/audio"
	"github.com/miqra/reciterid/pkg/embedding"
)

// Manifest selects which reciters and clips participate in enrollment,
// instead of enrolling everything under the dataset directory.
type Manifest struct {
	Reciters []ManifestReciter `yaml:"reciters"`
}

// ManifestReciter names one reciter and, optionally, a subset of clips.
type ManifestReciter struct {
	// Identity is the enrolled name.
	Identity string `yaml:"identity"`

	// Dir is the clip subdirectory relative to the dataset root.
	// Defaults to Identity.
	Dir string `yaml:"dir,omitempty"`

	// Clips limits enrollment to these files within Dir. Empty means
	// every file.
	Clips []string `yaml:"clips,omitempty"`
}

// LoadManifest reads and validates a YAML manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("enroll: read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("enroll: parse manifest: %w", err)
	}
	if len(m.Reciters) == 0 {
		return nil, fmt.Errorf("enroll: manifest lists no reciters")
	}
	seen := make(map[string]bool)
	for _, r := range m.Reciters {
		if r.Identity == "" {
			return nil, fmt.Errorf("enroll: manifest entry with empty identity")
		}
		if seen[r.Identity] {
			return nil, fmt.Errorf("enroll: duplicate identity %q in manifest", r.Identity)
		}
		seen[r.Identity] = true
	}
	return &m, nil
}

// BuildFromManifest enrolls exactly the reciters and clips the manifest
// names, resolving paths against the dataset root.
func BuildFromManifest(ctx context.Context, dataset string, m *Manifest, normalizer audio.Normalizer, model embedding.Model, opts Options) (map[string][]float32, error) {
	spec := make(map[string][]string, len(m.Reciters))
	for _, r := range m.Reciters {
		dir := r.Dir
		if dir == "" {
			dir = r.Identity
		}
		dir = filepath.Join(dataset, dir)

		var clips []string
		if len(r.Clips) == 0 {
			all, err := listClips(dir)
			if err != nil {
				return nil, err
			}
			clips = all
		} else {
			for _, c := range r.Clips {
				clips = append(clips, filepath.Join(dir, c))
			}
		}
		spec[r.Identity] = clips
	}
	return build(ctx, spec, normalizer, model, opts)
}
