// Package config loads YAML configuration files for the reciterid CLI.
//
// A serve config file looks like:
//
//	addr: :8000
//	store: s3://miqra-models/reciters.bin
//	model_endpoint: http://localhost:9000/embed
//	dimension: 192
//	top_k: 3
//	decode_timeout: 2s
//	min_audio: 200ms
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// Serve holds the serve command configuration. Flag values override
// anything loaded from a file.
type Serve struct {
	Addr          string `yaml:"addr"`
	Store         string `yaml:"store"`
	ModelEndpoint string `yaml:"model_endpoint"`
	Dimension     int    `yaml:"dimension"`
	TopK          int    `yaml:"top_k"`

	// Durations are YAML strings in time.ParseDuration syntax.
	DecodeTimeout string `yaml:"decode_timeout"`
	MinAudio      string `yaml:"min_audio"`

	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// LoadServe reads and parses a serve config file.
func LoadServe(path string) (*Serve, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Serve
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Duration parses a config duration field, returning fallback when the
// field is empty.
func Duration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
