package server

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/miqra/reciterid/pkg/match"
)

// handleLive upgrades to WebSocket and runs a match session over it.
// Each connection gets its own goroutine (this handler) and its own
// Session; the only shared state is the immutable reference store.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	sess := match.NewSession(&wsConn{conn: conn}, s.normalizer, s.model, s.refs, match.SessionConfig{
		TopK:          s.cfg.TopK,
		DecodeTimeout: s.cfg.DecodeTimeout,
		MinAudio:      s.cfg.MinAudio,
		Logger:        s.logger,
	})

	ctx := r.Context()
	// Unblock the read loop if the request context dies first.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if err := sess.Run(ctx); err != nil {
		s.logger.Debug("live session ended with transport error", "session", sess.ID(), "error", err)
	}
}

// wsConn adapts a gorilla WebSocket connection to match.Conn.
//
// Binary messages are audio chunks; other message types are ignored.
// gorilla allows one concurrent writer, so sends are serialized with a
// mutex (the session writes from a single goroutine anyway, but control
// frames share the writer).
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) ReceiveChunk(_ context.Context) ([]byte, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				return nil, io.EOF
			}
			return nil, err
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		return data, nil
	}
}

func (c *wsConn) SendResult(_ context.Context, res match.Result) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(res)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

var _ match.Conn = (*wsConn)(nil)
