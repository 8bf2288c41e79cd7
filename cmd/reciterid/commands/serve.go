package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/miqra/reciterid/cmd/reciterid/internal/config"
	"github.com/miqra/reciterid/pkg/audio"
	"github.com/miqra/reciterid/pkg/embedding"
	"github.com/miqra/reciterid/pkg/match"
	"github.com/miqra/reciterid/pkg/refstore"
	"github.com/miqra/reciterid/pkg/server"
)

var (
	flagServeConfig        string
	flagServeAddr          string
	flagServeStore         string
	flagServeModelURL      string
	flagServeDim           int
	flagServeTopK          int
	flagServeDecodeTimeout time.Duration
	flagServeMinAudio      time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the identification HTTP server",
	Long: `Run the identification HTTP server.

The server exposes POST /reciter/identify for one-shot identification
and GET /live_reciter for streaming identification over WebSocket.

Example:
  reciterid serve --store reciters.bin \
    --model-endpoint http://localhost:9000/embed --dim 192`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagServeConfig, "config", "", "YAML config file (flags override)")
	serveCmd.Flags().StringVar(&flagServeAddr, "addr", ":8000", "HTTP listen address")
	serveCmd.Flags().StringVar(&flagServeStore, "store", "", "reference store path or s3:// URL")
	serveCmd.Flags().StringVar(&flagServeModelURL, "model-endpoint", "", "embedding model HTTP endpoint")
	serveCmd.Flags().IntVar(&flagServeDim, "dim", 192, "embedding dimensionality")
	serveCmd.Flags().IntVar(&flagServeTopK, "top-k", match.DefaultTopK, "default number of ranked matches")
	serveCmd.Flags().DurationVar(&flagServeDecodeTimeout, "decode-timeout", match.DefaultDecodeTimeout, "per-chunk decode deadline for live sessions")
	serveCmd.Flags().DurationVar(&flagServeMinAudio, "min-audio", match.DefaultMinAudio, "minimum usable audio duration")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogging()

	cfg, err := resolveServeConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Store == "" {
		return errors.New("--store is required")
	}
	if cfg.ModelEndpoint == "" {
		return errors.New("--model-endpoint is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	store, err := loadStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	logger.Info("reference store loaded", "reciters", store.Len(), "dim", store.Dimension())

	model, err := embedding.NewHTTP(cfg.ModelEndpoint, cfg.Dimension)
	if err != nil {
		return err
	}
	defer model.Close()

	if err := match.CheckDimensions(model, store); err != nil {
		return err
	}

	decodeTimeout, err := config.Duration(cfg.DecodeTimeout, flagServeDecodeTimeout)
	if err != nil {
		return err
	}
	minAudio, err := config.Duration(cfg.MinAudio, flagServeMinAudio)
	if err != nil {
		return err
	}

	srv, err := server.New(audio.NewDecoder(), model, refstore.NewHandle(store), server.Config{
		TopK:           cfg.TopK,
		DecodeTimeout:  decodeTimeout,
		MinAudio:       minAudio,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	go func() {
		<-sigCh
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("listening", "addr", cfg.Addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// resolveServeConfig merges the optional config file with flag values.
// Flags that were set explicitly win over the file.
func resolveServeConfig(cmd *cobra.Command) (*config.Serve, error) {
	cfg := &config.Serve{}
	if flagServeConfig != "" {
		loaded, err := config.LoadServe(flagServeConfig)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flagSet := cmd.Flags().Changed
	if cfg.Addr == "" || flagSet("addr") {
		cfg.Addr = flagServeAddr
	}
	if cfg.Store == "" || flagSet("store") {
		cfg.Store = flagServeStore
	}
	if cfg.ModelEndpoint == "" || flagSet("model-endpoint") {
		cfg.ModelEndpoint = flagServeModelURL
	}
	if cfg.Dimension == 0 || flagSet("dim") {
		cfg.Dimension = flagServeDim
	}
	if cfg.TopK == 0 || flagSet("top-k") {
		cfg.TopK = flagServeTopK
	}
	if flagSet("decode-timeout") {
		cfg.DecodeTimeout = flagServeDecodeTimeout.String()
	}
	if flagSet("min-audio") {
		cfg.MinAudio = flagServeMinAudio.String()
	}
	return cfg, nil
}
