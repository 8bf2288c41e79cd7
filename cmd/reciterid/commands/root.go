package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "reciterid",
	Short: "Reciter identification service and tooling",
	Long: `reciterid - identify Quran reciters from audio.

The toolchain covers the full lifecycle: enroll reference fingerprints
from a labeled clip dataset, serve one-shot and live identification over
HTTP, and evaluate accuracy against held-out clips.

Examples:
  # Build a reference store from dataset/<reciter>/<clip> layout
  reciterid enroll --dataset ./dataset --out reciters.bin \
    --model-endpoint http://localhost:9000/embed --dim 192

  # Serve the identification API
  reciterid serve --store reciters.bin \
    --model-endpoint http://localhost:9000/embed --dim 192

  # Identify one file from the command line
  reciterid identify clip.wav --store reciters.bin \
    --model-endpoint http://localhost:9000/embed --dim 192`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// setupLogging installs the default slog logger for long-running commands.
func setupLogging() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}
