package match

import (
	"context"
	"io"
	"sync"

	"github.com/miqra/reciterid/pkg/ranker"
)

// Result is one ranked-match message emitted over a live session.
// Seq increases by one per emitted message so clients can order results
// and spot the silent gaps left by dropped chunks.
type Result struct {
	Seq     uint64         `json:"seq"`
	Matches []ranker.Match `json:"matches"`
}

// Conn is the transport seam for a live session. The WebSocket surface
// adapts its connection to this interface; tests use NewPipe.
type Conn interface {
	// ReceiveChunk blocks until the client sends the next audio chunk.
	// Returns io.EOF when the client closed the connection cleanly.
	ReceiveChunk(ctx context.Context) ([]byte, error)

	// SendResult delivers a ranked-match message to the client.
	SendResult(ctx context.Context, res Result) error

	// Close releases the transport. Safe to call more than once.
	Close() error
}

// NewPipe creates a connected in-memory server/client pair over channels,
// for testing and in-process use.
func NewPipe() (*PipeServerConn, *PipeClientConn) {
	chunks := make(chan []byte, 64)
	results := make(chan Result, 64)
	server := &PipeServerConn{chunks: chunks, results: results}
	client := &PipeClientConn{chunks: chunks, results: results}
	return server, client
}

// PipeServerConn is the server side of an in-memory pipe. It implements Conn.
type PipeServerConn struct {
	chunks  <-chan []byte
	results chan Result

	closeOnce sync.Once
}

func (c *PipeServerConn) ReceiveChunk(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case chunk, ok := <-c.chunks:
		if !ok {
			return nil, io.EOF
		}
		return chunk, nil
	}
}

func (c *PipeServerConn) SendResult(ctx context.Context, res Result) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case c.results <- res:
		return nil
	}
}

// Close stops result delivery to the client.
func (c *PipeServerConn) Close() error {
	c.closeOnce.Do(func() { close(c.results) })
	return nil
}

// PipeClientConn is the client side of an in-memory pipe.
type PipeClientConn struct {
	chunks  chan<- []byte
	results <-chan Result

	closeOnce sync.Once
}

// SendChunk delivers an audio chunk to the server side.
func (c *PipeClientConn) SendChunk(ctx context.Context, chunk []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case c.chunks <- chunk:
		return nil
	}
}

// Results returns the channel of ranked-match messages from the server.
// The channel is closed when the server side closes.
func (c *PipeClientConn) Results() <-chan Result {
	return c.results
}

// Close signals a clean client disconnect; the server side observes io.EOF.
func (c *PipeClientConn) Close() error {
	c.closeOnce.Do(func() { close(c.chunks) })
	return nil
}

var _ Conn = (*PipeServerConn)(nil)
