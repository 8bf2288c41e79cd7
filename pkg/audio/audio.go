// Package audio converts arbitrary uploaded or streamed audio bytes into
// the canonical buffer the embedding model consumes: mono float32 samples
// in [-1, 1] at 16 kHz.
//
// The format is taken from the caller's hint when present, otherwise
// sniffed from magic bytes. Headerless input defaults to raw PCM16
// little-endian at 16 kHz mono, which is the live-stream wire format.
//
// Decoding respects the caller's context: a session puts a wall-clock
// budget on each chunk via context.WithTimeout and the decoder returns
// the context error when the budget runs out.
package audio

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TargetRate is the canonical sample rate expected by the embedding model.
const TargetRate = 16000

// Sentinel errors.
var (
	// ErrUnsupportedFormat is returned when the input bytes cannot be
	// recognized or decoded.
	ErrUnsupportedFormat = errors.New("audio: unsupported format")

	// ErrTooShort is returned when the payload is too small to contain
	// any decodable audio.
	ErrTooShort = errors.New("audio: audio too short")
)

// Buffer is decoded audio: mono float32 samples in [-1, 1].
type Buffer struct {
	Samples []float32
	Rate    int
}

// Duration returns the audio duration of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.Rate == 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.Rate)
}

// Normalizer converts raw audio bytes into a canonical Buffer.
//
// Implementations must be safe for concurrent use; independent sessions
// share one Normalizer.
type Normalizer interface {
	// Normalize decodes raw into a mono 16 kHz buffer. hint names the
	// container/codec ("wav", "pcm16") and may be empty, in which case
	// the format is sniffed. Returns ErrUnsupportedFormat, ErrTooShort,
	// or the context error on deadline.
	Normalize(ctx context.Context, raw []byte, hint string) (*Buffer, error)
}

// Decoder is the default Normalizer. It decodes WAV (PCM16 and IEEE
// float32) and raw PCM16LE 16 kHz mono, downmixes multi-channel audio,
// and resamples other rates to 16 kHz. Compressed codecs (MP3, Ogg/Opus)
// are recognized but rejected; decoding them needs a codec-specific
// Normalizer in front of this one.
type Decoder struct{}

// NewDecoder creates the default decoder. The decoder is stateless.
func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Normalize(ctx context.Context, raw []byte, hint string) (*Buffer, error) {
	if len(raw) == 0 {
		return nil, ErrTooShort
	}
	format := hint
	if format == "" {
		format = sniff(raw)
	}

	var (
		buf *Buffer
		err error
	)
	switch format {
	case "wav":
		buf, err = decodeWAV(raw)
	case "pcm16", "pcm", "raw":
		buf, err = decodePCM16(raw)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if buf.Rate != TargetRate {
		samples, err := resample(buf.Samples, buf.Rate, TargetRate)
		if err != nil {
			return nil, err
		}
		buf = &Buffer{Samples: samples, Rate: TargetRate}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return buf, nil
}

// sniff guesses the container format from magic bytes. Headerless data
// is assumed to be raw PCM16.
func sniff(raw []byte) string {
	if len(raw) >= 12 && string(raw[0:4]) == "RIFF" && string(raw[8:12]) == "WAVE" {
		return "wav"
	}
	if len(raw) >= 4 && string(raw[0:4]) == "OggS" {
		return "ogg"
	}
	if len(raw) >= 4 && string(raw[0:4]) == "fLaC" {
		return "flac"
	}
	if len(raw) >= 3 && string(raw[0:3]) == "ID3" {
		return "mp3"
	}
	if len(raw) >= 2 && raw[0] == 0xFF && raw[1]&0xE0 == 0xE0 {
		return "mp3"
	}
	return "pcm16"
}

// decodePCM16 interprets raw as PCM16 signed little-endian 16 kHz mono.
func decodePCM16(raw []byte) (*Buffer, error) {
	if len(raw) < 2 {
		return nil, ErrTooShort
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("%w: truncated pcm16 sample", ErrUnsupportedFormat)
	}
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		s := int16(raw[i*2]) | int16(raw[i*2+1])<<8
		samples[i] = float32(s) / 32768
	}
	return &Buffer{Samples: samples, Rate: TargetRate}, nil
}
