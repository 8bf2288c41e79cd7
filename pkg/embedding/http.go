package embedding

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

// HTTPModel talks to an embedding server over HTTP. The request body is
// raw little-endian float32 PCM; the response is JSON:
//
//	{"embedding": [0.012, -0.34, ...]}
//
// Any transport error, non-200 status, or wrong-dimension response is
// reported as ErrEmbeddingFailure so callers can treat the model as a
// single opaque failure domain.
type HTTPModel struct {
	endpoint string
	dim      int
	client   *http.Client
	timeout  time.Duration
}

// HTTPOption configures an HTTPModel.
type HTTPOption func(*HTTPModel)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(m *HTTPModel) { m.client = c }
}

// WithTimeout sets the per-call timeout (default 10s).
func WithTimeout(d time.Duration) HTTPOption {
	return func(m *HTTPModel) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// NewHTTP creates a client for the embedding server at endpoint.
// dim is the expected vector dimensionality; responses of any other
// length are rejected.
func NewHTTP(endpoint string, dim int, opts ...HTTPOption) (*HTTPModel, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("embedding: endpoint is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding: dimension must be positive, got %d", dim)
	}
	m := &HTTPModel{
		endpoint: endpoint,
		dim:      dim,
		client:   &http.Client{},
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *HTTPModel) Extract(ctx context.Context, pcm []float32) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	body := make([]byte, len(pcm)*4)
	for i, s := range pcm {
		binary.LittleEndian.PutUint32(body[i*4:], math.Float32bits(s))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailure, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailure, resp.StatusCode, detail)
	}

	var out struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrEmbeddingFailure, err)
	}
	if len(out.Embedding) != m.dim {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrEmbeddingFailure, len(out.Embedding), m.dim)
	}
	return out.Embedding, nil
}

func (m *HTTPModel) Dimension() int {
	return m.dim
}

func (m *HTTPModel) Close() error {
	m.client.CloseIdleConnections()
	return nil
}

var _ Model = (*HTTPModel)(nil)
