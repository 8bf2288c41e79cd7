package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// wav format codes from the fmt chunk.
const (
	wavFormatPCM       = 1
	wavFormatIEEEFloat = 3
)

// decodeWAV parses a RIFF/WAVE payload into a mono Buffer at the file's
// native rate. Supports PCM16 and 32-bit IEEE float sample formats;
// multi-channel audio is downmixed by averaging.
func decodeWAV(raw []byte) (*Buffer, error) {
	if len(raw) < 44 {
		return nil, ErrTooShort
	}
	if string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: not a RIFF/WAVE file", ErrUnsupportedFormat)
	}

	var (
		format   uint16
		channels int
		rate     int
		bits     int
		data     []byte
		haveFmt  bool
	)

	// Walk the chunk list. Chunks are word-aligned.
	off := 12
	for off+8 <= len(raw) {
		id := string(raw[off : off+4])
		size := int(binary.LittleEndian.Uint32(raw[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(raw) {
			return nil, fmt.Errorf("%w: truncated %q chunk", ErrUnsupportedFormat, id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedFormat)
			}
			format = binary.LittleEndian.Uint16(raw[body : body+2])
			channels = int(binary.LittleEndian.Uint16(raw[body+2 : body+4]))
			rate = int(binary.LittleEndian.Uint32(raw[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(raw[body+14 : body+16]))
			haveFmt = true
		case "data":
			data = raw[body : body+size]
		}
		off = body + size
		if size%2 == 1 {
			off++ // pad byte
		}
	}

	if !haveFmt || data == nil {
		return nil, fmt.Errorf("%w: missing fmt or data chunk", ErrUnsupportedFormat)
	}
	if channels < 1 || rate <= 0 {
		return nil, fmt.Errorf("%w: invalid wav header", ErrUnsupportedFormat)
	}

	var samples []float32
	switch {
	case format == wavFormatPCM && bits == 16:
		samples = pcm16Frames(data, channels)
	case format == wavFormatIEEEFloat && bits == 32:
		samples = float32Frames(data, channels)
	default:
		return nil, fmt.Errorf("%w: wav format %d with %d-bit samples", ErrUnsupportedFormat, format, bits)
	}
	if len(samples) == 0 {
		return nil, ErrTooShort
	}
	return &Buffer{Samples: samples, Rate: rate}, nil
}

// pcm16Frames converts interleaved PCM16 frames to mono float32.
func pcm16Frames(data []byte, channels int) []float32 {
	frameBytes := 2 * channels
	frames := len(data) / frameBytes
	samples := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			j := i*frameBytes + c*2
			s := int16(data[j]) | int16(data[j+1])<<8
			sum += float32(s) / 32768
		}
		samples[i] = sum / float32(channels)
	}
	return samples
}

// float32Frames converts interleaved IEEE float frames to mono float32.
func float32Frames(data []byte, channels int) []float32 {
	frameBytes := 4 * channels
	frames := len(data) / frameBytes
	samples := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			j := i*frameBytes + c*4
			sum += math.Float32frombits(binary.LittleEndian.Uint32(data[j : j+4]))
		}
		samples[i] = sum / float32(channels)
	}
	return samples
}
