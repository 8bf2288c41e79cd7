package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/miqra/reciterid/pkg/audio"
	"github.com/miqra/reciterid/pkg/embcache"
	"github.com/miqra/reciterid/pkg/embedding"
	"github.com/miqra/reciterid/pkg/enroll"
	"github.com/miqra/reciterid/pkg/match"
	"github.com/miqra/reciterid/pkg/refstore"
)

var (
	flagEnrollDataset  string
	flagEnrollOut      string
	flagEnrollManifest string
	flagEnrollCache    string
	flagEnrollModelURL string
	flagEnrollDim      int
	flagEnrollMinAudio time.Duration
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Build a reference store from a clip dataset",
	Long: `Build a reference store from a labeled clip dataset.

The dataset directory holds one subdirectory per reciter, each with
audio clips of that reciter. Every clip is embedded and the per-clip
vectors are averaged into one fingerprint per reciter.

A manifest file restricts enrollment to named reciters and clips.
With --cache, per-clip embeddings persist across runs so re-enrolling
after adding clips only embeds the new material.

Example:
  reciterid enroll --dataset ./dataset --out reciters.bin \
    --model-endpoint http://localhost:9000/embed --dim 192 \
    --cache ./embcache`,
	RunE: runEnroll,
}

func init() {
	enrollCmd.Flags().StringVar(&flagEnrollDataset, "dataset", "", "dataset directory (dataset/<reciter>/<clip>)")
	enrollCmd.Flags().StringVar(&flagEnrollOut, "out", "reciters.bin", "output store path or s3:// URL")
	enrollCmd.Flags().StringVar(&flagEnrollManifest, "manifest", "", "optional YAML manifest selecting reciters and clips")
	enrollCmd.Flags().StringVar(&flagEnrollCache, "cache", "", "embedding cache directory (empty disables persistence)")
	enrollCmd.Flags().StringVar(&flagEnrollModelURL, "model-endpoint", "", "embedding model HTTP endpoint")
	enrollCmd.Flags().IntVar(&flagEnrollDim, "dim", 192, "embedding dimensionality")
	enrollCmd.Flags().DurationVar(&flagEnrollMinAudio, "min-audio", match.DefaultMinAudio, "minimum usable clip duration")
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(cmd *cobra.Command, args []string) error {
	logger := setupLogging()

	if flagEnrollDataset == "" {
		return errors.New("--dataset is required")
	}
	if flagEnrollModelURL == "" {
		return errors.New("--model-endpoint is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	model, err := embedding.NewHTTP(flagEnrollModelURL, flagEnrollDim)
	if err != nil {
		return err
	}
	defer model.Close()

	var cache embcache.Cache
	if flagEnrollCache != "" {
		c, err := embcache.NewBadger(embcache.BadgerOptions{Dir: flagEnrollCache})
		if err != nil {
			return fmt.Errorf("open embedding cache: %w", err)
		}
		defer c.Close()
		cache = c
	}

	opts := enroll.Options{
		MinAudio: flagEnrollMinAudio,
		Cache:    cache,
		Logger:   logger,
	}
	decoder := audio.NewDecoder()

	var fingerprints map[string][]float32
	if flagEnrollManifest != "" {
		m, err := enroll.LoadManifest(flagEnrollManifest)
		if err != nil {
			return err
		}
		fingerprints, err = enroll.BuildFromManifest(ctx, flagEnrollDataset, m, decoder, model, opts)
		if err != nil {
			return err
		}
	} else {
		fingerprints, err = enroll.BuildFromDir(ctx, flagEnrollDataset, decoder, model, opts)
		if err != nil {
			return err
		}
	}

	store, err := refstore.New(fingerprints)
	if err != nil {
		return err
	}

	fs, path, err := openFileStore(ctx, flagEnrollOut)
	if err != nil {
		return err
	}
	if err := store.Save(ctx, fs, path); err != nil {
		return fmt.Errorf("save reference store: %w", err)
	}

	logger.Info("store written", "out", flagEnrollOut, "reciters", store.Len(), "dim", store.Dimension())
	fmt.Fprintf(os.Stdout, "Enrolled %d reciters to %s\n", store.Len(), flagEnrollOut)
	return nil
}
