package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"
)

// makeWAV builds a minimal RIFF/WAVE file with PCM16 samples.
func makeWAV(t *testing.T, rate, channels int, frames [][]int16) []byte {
	t.Helper()
	var data bytes.Buffer
	for _, frame := range frames {
		if len(frame) != channels {
			t.Fatalf("frame has %d samples, want %d", len(frame), channels)
		}
		for _, s := range frame {
			binary.Write(&data, binary.LittleEndian, s)
		}
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+data.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())
	return buf.Bytes()
}

func TestNormalizeWAVMono16k(t *testing.T) {
	frames := [][]int16{{16384}, {-16384}, {0}, {8192}}
	raw := makeWAV(t, 16000, 1, frames)

	buf, err := NewDecoder().Normalize(context.Background(), raw, "")
	if err != nil {
		t.Fatal(err)
	}
	if buf.Rate != TargetRate {
		t.Errorf("rate = %d, want %d", buf.Rate, TargetRate)
	}
	if len(buf.Samples) != len(frames) {
		t.Fatalf("samples = %d, want %d", len(buf.Samples), len(frames))
	}
	if math.Abs(float64(buf.Samples[0])-0.5) > 1e-4 {
		t.Errorf("sample[0] = %f, want 0.5", buf.Samples[0])
	}
	if math.Abs(float64(buf.Samples[1])+0.5) > 1e-4 {
		t.Errorf("sample[1] = %f, want -0.5", buf.Samples[1])
	}
}

func TestNormalizeWAVStereoDownmix(t *testing.T) {
	frames := [][]int16{{16384, 0}, {0, 16384}}
	raw := makeWAV(t, 16000, 2, frames)

	buf, err := NewDecoder().Normalize(context.Background(), raw, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(buf.Samples) != 2 {
		t.Fatalf("samples = %d, want 2", len(buf.Samples))
	}
	// Both frames average L and R to the same value.
	for i, s := range buf.Samples {
		if math.Abs(float64(s)-0.25) > 1e-4 {
			t.Errorf("sample[%d] = %f, want 0.25", i, s)
		}
	}
}

func TestNormalizeWAVResamples(t *testing.T) {
	// Half a second of silence at 8 kHz must come out at 16 kHz.
	frames := make([][]int16, 4000)
	for i := range frames {
		frames[i] = []int16{0}
	}
	raw := makeWAV(t, 8000, 1, frames)

	buf, err := NewDecoder().Normalize(context.Background(), raw, "")
	if err != nil {
		t.Fatal(err)
	}
	if buf.Rate != TargetRate {
		t.Errorf("rate = %d, want %d", buf.Rate, TargetRate)
	}
	if len(buf.Samples) == 0 {
		t.Error("resampled buffer is empty")
	}
}

func TestNormalizePCM16Default(t *testing.T) {
	// Headerless bytes default to raw PCM16 16 kHz mono.
	raw := []byte{0x00, 0x40, 0x00, 0xC0} // +0.5, -0.5
	buf, err := NewDecoder().Normalize(context.Background(), raw, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(buf.Samples) != 2 {
		t.Fatalf("samples = %d, want 2", len(buf.Samples))
	}
	if math.Abs(float64(buf.Samples[0])-0.5) > 1e-4 {
		t.Errorf("sample[0] = %f, want 0.5", buf.Samples[0])
	}
}

func TestNormalizeUnsupportedFormats(t *testing.T) {
	dec := NewDecoder()
	tests := []struct {
		name string
		raw  []byte
		hint string
	}{
		{"ogg magic", []byte("OggS\x00\x02rest-of-page"), ""},
		{"mp3 id3 magic", []byte("ID3\x04\x00rest"), ""},
		{"flac magic", []byte("fLaC\x00\x00\x00\x22"), ""},
		{"explicit unknown hint", []byte{1, 2, 3, 4}, "webm"},
		{"odd pcm16 length", []byte{1, 2, 3}, "pcm16"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dec.Normalize(context.Background(), tt.raw, tt.hint)
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("err = %v, want ErrUnsupportedFormat", err)
			}
		})
	}
}

func TestNormalizeEmptyPayload(t *testing.T) {
	_, err := NewDecoder().Normalize(context.Background(), nil, "")
	if !errors.Is(err, ErrTooShort) {
		t.Errorf("err = %v, want ErrTooShort", err)
	}
}

func TestNormalizeExpiredContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	raw := makeWAV(t, 16000, 1, [][]int16{{1}, {2}})
	_, err := NewDecoder().Normalize(ctx, raw, "")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestBufferDuration(t *testing.T) {
	b := &Buffer{Samples: make([]float32, 8000), Rate: 16000}
	if d := b.Duration(); d != 500*time.Millisecond {
		t.Errorf("Duration = %v, want 500ms", d)
	}
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want string
	}{
		{"wav", append([]byte("RIFF\x00\x00\x00\x00WAVE"), 0), "wav"},
		{"ogg", []byte("OggSrest"), "ogg"},
		{"mp3 sync", []byte{0xFF, 0xFB, 0x90}, "mp3"},
		{"raw pcm", []byte{0x10, 0x20, 0x30, 0x40}, "pcm16"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sniff(tt.raw); got != tt.want {
				t.Errorf("sniff = %q, want %q", got, tt.want)
			}
		})
	}
}
