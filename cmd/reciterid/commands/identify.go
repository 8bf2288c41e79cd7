package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/miqra/reciterid/pkg/audio"
	"github.com/miqra/reciterid/pkg/embedding"
	"github.com/miqra/reciterid/pkg/match"
	"github.com/miqra/reciterid/pkg/refstore"
)

var (
	flagIdentifyStore    string
	flagIdentifyModelURL string
	flagIdentifyDim      int
	flagIdentifyTopK     int
	flagIdentifyMinAudio time.Duration
)

var identifyCmd = &cobra.Command{
	Use:   "identify <audio-file>",
	Short: "Identify the reciter in one audio file",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentify,
}

func init() {
	identifyCmd.Flags().StringVar(&flagIdentifyStore, "store", "", "reference store path or s3:// URL")
	identifyCmd.Flags().StringVar(&flagIdentifyModelURL, "model-endpoint", "", "embedding model HTTP endpoint")
	identifyCmd.Flags().IntVar(&flagIdentifyDim, "dim", 192, "embedding dimensionality")
	identifyCmd.Flags().IntVar(&flagIdentifyTopK, "top-k", match.DefaultTopK, "number of ranked matches to print")
	identifyCmd.Flags().DurationVar(&flagIdentifyMinAudio, "min-audio", match.DefaultMinAudio, "minimum usable audio duration")
	rootCmd.AddCommand(identifyCmd)
}

func runIdentify(cmd *cobra.Command, args []string) error {
	setupLogging()

	if flagIdentifyStore == "" {
		return errors.New("--store is required")
	}
	if flagIdentifyModelURL == "" {
		return errors.New("--model-endpoint is required")
	}

	ctx := context.Background()

	store, err := loadStore(ctx, flagIdentifyStore)
	if err != nil {
		return err
	}
	model, err := embedding.NewHTTP(flagIdentifyModelURL, flagIdentifyDim)
	if err != nil {
		return err
	}
	defer model.Close()
	if err := match.CheckDimensions(model, store); err != nil {
		return err
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	id := &match.Identifier{
		Normalizer: audio.NewDecoder(),
		Model:      model,
		Refs:       refstore.NewHandle(store),
		MinAudio:   flagIdentifyMinAudio,
	}
	hint := strings.TrimPrefix(filepath.Ext(args[0]), ".")
	matches, err := id.Identify(ctx, raw, hint, flagIdentifyTopK)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		fmt.Println("No enrolled reciters to match against.")
		return nil
	}

	for i, m := range matches {
		fmt.Printf("%d. %-24s %.4f\n", i+1, m.Identity, m.Score)
	}
	return nil
}
