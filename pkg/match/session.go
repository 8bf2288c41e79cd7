package match

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/miqra/reciterid/pkg/audio"
	"github.com/miqra/reciterid/pkg/embedding"
	"github.com/miqra/reciterid/pkg/ranker"
	"github.com/miqra/reciterid/pkg/refstore"
)

// State is the session lifecycle state.
type State int32

const (
	// StateOpen means the session exists but Run has not started the loop.
	StateOpen State = iota

	// StateActive means the session is receiving and processing chunks.
	StateActive

	// StateClosed means the connection ended and resources are released.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// SessionConfig tunes a live session. Zero values select the package
// defaults.
type SessionConfig struct {
	// TopK is the fixed number of matches per emitted result.
	TopK int

	// DecodeTimeout bounds the wall-clock decode time per chunk.
	DecodeTimeout time.Duration

	// MinAudio is the minimum decoded duration of a usable chunk.
	MinAudio time.Duration

	// Logger receives per-session debug logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// Session is the live streaming match loop for one connection.
//
// Chunks are processed strictly sequentially: one chunk is fully handled
// before the next is received, so results always arrive in chunk order.
// A chunk that cannot be decoded, is too short, or fails embedding is
// dropped without a message to the client; a live stream is expected to
// contain such chunks (codec framing boundaries, silence, noise) and
// surfacing them would just be noise. Only transport-level failures end
// the session.
type Session struct {
	id         string
	conn       Conn
	normalizer audio.Normalizer
	model      embedding.Model
	refs       *refstore.Handle
	cfg        SessionConfig
	logger     *slog.Logger

	state atomic.Int32
	seq   uint64
}

// NewSession creates a session over conn. The session does not own the
// model, normalizer, or store handle; they are shared across sessions and
// must be concurrency-safe.
func NewSession(conn Conn, normalizer audio.Normalizer, model embedding.Model, refs *refstore.Handle, cfg SessionConfig) *Session {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.DecodeTimeout <= 0 {
		cfg.DecodeTimeout = DefaultDecodeTimeout
	}
	if cfg.MinAudio <= 0 {
		cfg.MinAudio = DefaultMinAudio
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	id := uuid.NewString()
	return &Session{
		id:         id,
		conn:       conn,
		normalizer: normalizer,
		model:      model,
		refs:       refs,
		cfg:        cfg,
		logger:     cfg.Logger.With("session", id),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state. Safe to call from any
// goroutine.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Run drives the session until the client disconnects, the context is
// canceled, or the transport fails. A clean client disconnect and context
// cancellation return nil; transport failures return the underlying error.
// The connection is closed and the state is Closed when Run returns.
func (s *Session) Run(ctx context.Context) error {
	s.state.Store(int32(StateActive))
	defer func() {
		s.state.Store(int32(StateClosed))
		s.conn.Close()
		s.logger.Debug("session closed", "results", s.seq)
	}()
	s.logger.Debug("session active")

	for {
		chunk, err := s.conn.ReceiveChunk(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("match: session receive: %w", err)
		}
		if err := s.handleChunk(ctx, chunk); err != nil {
			return err
		}
	}
}

// handleChunk runs one chunk through the pipeline. Local failures are
// logged and swallowed; only a failed send escapes, since that means the
// transport is gone.
func (s *Session) handleChunk(ctx context.Context, chunk []byte) error {
	decodeCtx, cancel := context.WithTimeout(ctx, s.cfg.DecodeTimeout)
	buf, err := s.normalizer.Normalize(decodeCtx, chunk, "")
	cancel()
	if err != nil {
		s.logger.Debug("chunk dropped", "stage", "normalize", "bytes", len(chunk), "error", err)
		return nil
	}
	if d := buf.Duration(); d < s.cfg.MinAudio {
		s.logger.Debug("chunk dropped", "stage", "duration", "audio", d)
		return nil
	}

	vec, err := s.model.Extract(ctx, buf.Samples)
	if err != nil {
		s.logger.Debug("chunk dropped", "stage", "embed", "error", err)
		return nil
	}

	matches, err := ranker.Rank(vec, s.refs.Current(), s.cfg.TopK)
	if err != nil {
		// Dimension mismatch here means a bad store or model version;
		// still non-fatal for the stream, but worth more than debug.
		s.logger.Warn("chunk dropped", "stage", "rank", "error", err)
		return nil
	}

	res := Result{Seq: s.seq + 1, Matches: matches}
	if err := s.conn.SendResult(ctx, res); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("match: session send: %w", err)
	}
	s.seq = res.Seq
	return nil
}
