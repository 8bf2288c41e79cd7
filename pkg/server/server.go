// Package server exposes the matching engine over HTTP.
//
// Two surfaces share one pipeline: a one-shot upload endpoint and a
// WebSocket live-stream endpoint. The reference store, embedding model,
// and audio normalizer are shared across all requests and sessions; the
// store is immutable so no locking is involved.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/miqra/reciterid/pkg/audio"
	"github.com/miqra/reciterid/pkg/embedding"
	"github.com/miqra/reciterid/pkg/match"
	"github.com/miqra/reciterid/pkg/ranker"
	"github.com/miqra/reciterid/pkg/refstore"
)

// defaultMaxUpload bounds one-shot request bodies (32 MiB covers several
// minutes of WAV).
const defaultMaxUpload = 32 << 20

// Config tunes the server. Zero values select defaults.
type Config struct {
	// TopK is the default and streaming match count.
	TopK int

	// DecodeTimeout bounds per-chunk decode time in live sessions.
	DecodeTimeout time.Duration

	// MinAudio is the minimum usable audio duration.
	MinAudio time.Duration

	// MaxUploadBytes bounds one-shot request bodies.
	MaxUploadBytes int64

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server handles identification requests against a loaded reference store.
type Server struct {
	identifier *match.Identifier
	normalizer audio.Normalizer
	model      embedding.Model
	refs       *refstore.Handle
	cfg        Config
	logger     *slog.Logger
	upgrader   websocket.Upgrader
}

// New creates a Server. The store handle must hold a loaded store; a
// process with no reference set must not serve traffic.
func New(normalizer audio.Normalizer, model embedding.Model, refs *refstore.Handle, cfg Config) (*Server, error) {
	if refs == nil || refs.Current() == nil {
		return nil, errors.New("server: reference store is not loaded")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = match.DefaultTopK
	}
	if cfg.DecodeTimeout <= 0 {
		cfg.DecodeTimeout = match.DefaultDecodeTimeout
	}
	if cfg.MinAudio <= 0 {
		cfg.MinAudio = match.DefaultMinAudio
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		identifier: &match.Identifier{
			Normalizer: normalizer,
			Model:      model,
			Refs:       refs,
			MinAudio:   cfg.MinAudio,
		},
		normalizer: normalizer,
		model:      model,
		refs:       refs,
		cfg:        cfg,
		logger:     cfg.Logger,
		upgrader: websocket.Upgrader{
			// The browser frontend runs on a different origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

// Handler returns the HTTP handler with all routes and CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /reciter/identify", s.handleIdentify)
	mux.HandleFunc("GET /live_reciter", s.handleLive)
	return withCORS(mux)
}

// withCORS allows any origin, matching the development posture of the
// browser frontend.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IdentifyResponse is the one-shot result payload. Reciter and Confidence
// repeat the best match for convenience; Matches carries the full top-k.
type IdentifyResponse struct {
	Reciter    string         `json:"reciter"`
	Confidence float32        `json:"confidence"`
	Matches    []ranker.Match `json:"matches"`
}

// errorResponse carries a machine-readable category plus human detail.
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	raw, hint, err := readAudioPayload(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	k := s.cfg.TopK
	if v := r.URL.Query().Get("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, fmt.Errorf("%w: top_k must be a positive integer", ranker.ErrInvalidTopK))
			return
		}
		k = n
	}

	matches, err := s.identifier.Identify(r.Context(), raw, hint, k)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := IdentifyResponse{Matches: matches}
	if resp.Matches == nil {
		resp.Matches = []ranker.Match{}
	}
	if len(matches) > 0 {
		resp.Reciter = matches[0].Identity
		resp.Confidence = matches[0].Score
	}
	writeJSON(w, http.StatusOK, resp)
}

// readAudioPayload extracts the audio bytes and a format hint from either
// a multipart form (field "file") or a raw request body.
func readAudioPayload(r *http.Request) ([]byte, string, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", fmt.Errorf("%w: audio file required", audio.ErrUnsupportedFormat)
		}
		defer file.Close()
		raw, err := io.ReadAll(file)
		if err != nil {
			return nil, "", err
		}
		return raw, hintFromFilename(header.Filename), nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", err
	}
	return raw, r.URL.Query().Get("format"), nil
}

func hintFromFilename(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".wav":
		return "wav"
	case ".pcm", ".raw":
		return "pcm16"
	default:
		return "" // let the decoder sniff
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	category := match.CategoryOf(err)
	s.logger.Debug("identify failed", "category", category, "error", err)
	writeJSON(w, statusOf(category), errorResponse{
		Error:  string(category),
		Detail: err.Error(),
	})
}

// statusOf maps failure categories to HTTP statuses: client-input
// problems are 4xx, collaborator failures 502, everything else 500.
func statusOf(c match.Category) int {
	switch c {
	case match.CategoryUnsupportedFormat, match.CategoryAudioTooShort, match.CategoryInvalidArgument:
		return http.StatusBadRequest
	case match.CategoryDegenerateVector:
		return http.StatusUnprocessableEntity
	case match.CategoryEmbeddingFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
