package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/miqra/reciterid/pkg/audio"
	"github.com/miqra/reciterid/pkg/match"
	"github.com/miqra/reciterid/pkg/refstore"
)

type fakeModel struct {
	vec []float32
	err error
}

func (m *fakeModel) Extract(_ context.Context, _ []float32) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.vec, nil
}

func (m *fakeModel) Dimension() int { return len(m.vec) }
func (m *fakeModel) Close() error   { return nil }

func testServer(t *testing.T, vec []float32) *Server {
	t.Helper()
	store, err := refstore.New(map[string][]float32{
		"alafasy":  {1, 0, 0},
		"husary":   {0, 1, 0},
		"minshawi": {0, 0, 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	srv, err := New(audio.NewDecoder(), &fakeModel{vec: vec}, refstore.NewHandle(store), Config{})
	if err != nil {
		t.Fatal(err)
	}
	return srv
}

// pcmBody returns d worth of raw PCM16 16 kHz mono audio.
func pcmBody(d time.Duration) []byte {
	samples := int(16000 * d / time.Second)
	body := make([]byte, samples*2)
	for i := 0; i < len(body); i += 2 {
		body[i+1] = 0x10
	}
	return body
}

func multipartBody(t *testing.T, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestIdentifyEndpoint(t *testing.T) {
	srv := testServer(t, []float32{0, 1, 0})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, contentType := multipartBody(t, "sample.pcm", pcmBody(time.Second))
	resp, err := http.Post(ts.URL+"/reciter/identify?top_k=2", contentType, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out IdentifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Reciter != "husary" {
		t.Errorf("reciter = %q, want husary", out.Reciter)
	}
	if len(out.Matches) != 2 {
		t.Errorf("matches = %d, want 2", len(out.Matches))
	}
	if out.Confidence < 0.99 {
		t.Errorf("confidence = %f, want ~1", out.Confidence)
	}
}

func TestIdentifyRawBody(t *testing.T) {
	srv := testServer(t, []float32{1, 0, 0})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/reciter/identify?format=pcm16", "application/octet-stream",
		bytes.NewReader(pcmBody(time.Second)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestIdentifyErrorResponses(t *testing.T) {
	tests := []struct {
		name       string
		vec        []float32
		body       []byte
		query      string
		wantStatus int
		wantError  match.Category
	}{
		{
			name:       "unsupported format",
			vec:        []float32{1, 0, 0},
			body:       []byte("OggS-compressed-audio"),
			wantStatus: http.StatusBadRequest,
			wantError:  match.CategoryUnsupportedFormat,
		},
		{
			name:       "audio too short",
			vec:        []float32{1, 0, 0},
			body:       pcmBody(50 * time.Millisecond),
			wantStatus: http.StatusBadRequest,
			wantError:  match.CategoryAudioTooShort,
		},
		{
			name:       "bad top_k",
			vec:        []float32{1, 0, 0},
			body:       pcmBody(time.Second),
			query:      "?top_k=0",
			wantStatus: http.StatusBadRequest,
			wantError:  match.CategoryInvalidArgument,
		},
		{
			name:       "dimension mismatch",
			vec:        []float32{1, 0},
			body:       pcmBody(time.Second),
			wantStatus: http.StatusInternalServerError,
			wantError:  match.CategoryDimensionMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t, tt.vec)
			ts := httptest.NewServer(srv.Handler())
			defer ts.Close()

			body, contentType := multipartBody(t, "sample.bin", tt.body)
			resp, err := http.Post(ts.URL+"/reciter/identify"+tt.query, contentType, body)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			var out struct {
				Error  string `json:"error"`
				Detail string `json:"detail"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				t.Fatal(err)
			}
			if out.Error != string(tt.wantError) {
				t.Errorf("error = %q, want %q", out.Error, tt.wantError)
			}
			if out.Detail == "" {
				t.Error("detail is empty")
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := testServer(t, []float32{1, 0, 0})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/reciter/identify", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(audio.NewDecoder(), &fakeModel{vec: []float32{1}}, nil, Config{})
	if err == nil {
		t.Error("New should refuse a nil store handle")
	}
}

func TestLiveEndpoint(t *testing.T) {
	srv := testServer(t, []float32{0, 1, 0})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/live_reciter"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// First chunk: valid audio, expect one ranked message.
	if err := conn.WriteMessage(websocket.BinaryMessage, pcmBody(time.Second)); err != nil {
		t.Fatal(err)
	}
	var res match.Result
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&res); err != nil {
		t.Fatal(err)
	}
	if res.Seq != 1 {
		t.Errorf("seq = %d, want 1", res.Seq)
	}
	if len(res.Matches) == 0 || res.Matches[0].Identity != "husary" {
		t.Errorf("matches = %v, want husary on top", res.Matches)
	}

	// Second chunk: undersized, silently dropped. Third: valid again.
	if err := conn.WriteMessage(websocket.BinaryMessage, pcmBody(50*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, pcmBody(time.Second)); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&res); err != nil {
		t.Fatal(err)
	}
	if res.Seq != 2 {
		t.Errorf("seq = %d, want 2 (dropped chunk produced no message)", res.Seq)
	}

	// Clean close.
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
