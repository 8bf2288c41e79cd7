package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/miqra/reciterid/pkg/audio"
	"github.com/miqra/reciterid/pkg/embedding"
	"github.com/miqra/reciterid/pkg/match"
	"github.com/miqra/reciterid/pkg/refstore"
)

var (
	flagEvalDataset  string
	flagEvalStore    string
	flagEvalModelURL string
	flagEvalDim      int
	flagEvalTopK     int
	flagEvalMinAudio time.Duration
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score identification accuracy on a labeled dataset",
	Long: `Score identification accuracy on a labeled dataset.

The dataset uses the same layout as enroll: one subdirectory per
reciter holding clips of that reciter. The clips should be held out
from the enrollment set. Each clip is identified against the store
and counted as a top-1 or top-k hit when the true reciter appears
at that rank.`,
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&flagEvalDataset, "dataset", "", "labeled clip directory (dataset/<reciter>/<clip>)")
	evaluateCmd.Flags().StringVar(&flagEvalStore, "store", "", "reference store path or s3:// URL")
	evaluateCmd.Flags().StringVar(&flagEvalModelURL, "model-endpoint", "", "embedding model HTTP endpoint")
	evaluateCmd.Flags().IntVar(&flagEvalDim, "dim", 192, "embedding dimensionality")
	evaluateCmd.Flags().IntVar(&flagEvalTopK, "top-k", match.DefaultTopK, "rank window for the top-k hit rate")
	evaluateCmd.Flags().DurationVar(&flagEvalMinAudio, "min-audio", match.DefaultMinAudio, "minimum usable clip duration")
	rootCmd.AddCommand(evaluateCmd)
}

// evalCounts accumulates per-reciter hit statistics.
type evalCounts struct {
	clips   int
	top1    int
	topK    int
	skipped int
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	logger := setupLogging()

	if flagEvalDataset == "" {
		return errors.New("--dataset is required")
	}
	if flagEvalStore == "" {
		return errors.New("--store is required")
	}
	if flagEvalModelURL == "" {
		return errors.New("--model-endpoint is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := loadStore(ctx, flagEvalStore)
	if err != nil {
		return err
	}
	model, err := embedding.NewHTTP(flagEvalModelURL, flagEvalDim)
	if err != nil {
		return err
	}
	defer model.Close()
	if err := match.CheckDimensions(model, store); err != nil {
		return err
	}

	id := &match.Identifier{
		Normalizer: audio.NewDecoder(),
		Model:      model,
		Refs:       refstore.NewHandle(store),
		MinAudio:   flagEvalMinAudio,
	}

	entries, err := os.ReadDir(flagEvalDataset)
	if err != nil {
		return err
	}

	results := make(map[string]*evalCounts)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		reciter := e.Name()
		counts := &evalCounts{}
		results[reciter] = counts

		clipDir := filepath.Join(flagEvalDataset, reciter)
		clips, err := os.ReadDir(clipDir)
		if err != nil {
			return err
		}
		for _, clip := range clips {
			if clip.IsDir() {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(clipDir, clip.Name())
			raw, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			hint := strings.TrimPrefix(filepath.Ext(path), ".")
			matches, err := id.Identify(ctx, raw, hint, flagEvalTopK)
			if err != nil {
				logger.Warn("clip skipped", "clip", path, "error", err)
				counts.skipped++
				continue
			}
			counts.clips++
			for rank, m := range matches {
				if m.Identity != reciter {
					continue
				}
				if rank == 0 {
					counts.top1++
				}
				counts.topK++
				break
			}
		}
	}

	printEvalReport(results, flagEvalTopK)
	return nil
}

func printEvalReport(results map[string]*evalCounts, k int) {
	reciters := make([]string, 0, len(results))
	for r := range results {
		reciters = append(reciters, r)
	}
	sort.Strings(reciters)

	var total evalCounts
	fmt.Printf("%-24s %7s %7s %7s\n", "reciter", "clips", "top-1", fmt.Sprintf("top-%d", k))
	for _, r := range reciters {
		c := results[r]
		total.clips += c.clips
		total.top1 += c.top1
		total.topK += c.topK
		total.skipped += c.skipped
		fmt.Printf("%-24s %7d %7d %7d\n", r, c.clips, c.top1, c.topK)
	}

	if total.clips == 0 {
		fmt.Println("No usable clips evaluated.")
		return
	}
	fmt.Printf("\nTop-1 accuracy: %.1f%% (%d/%d)\n",
		100*float64(total.top1)/float64(total.clips), total.top1, total.clips)
	fmt.Printf("Top-%d accuracy: %.1f%% (%d/%d)\n",
		k, 100*float64(total.topK)/float64(total.clips), total.topK, total.clips)
	if total.skipped > 0 {
		fmt.Printf("Skipped clips:  %d\n", total.skipped)
	}
}
