package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// resample converts mono samples from srcRate to dstRate using the pure Go
// resampler. Batch conversion: the whole buffer goes through in one call.
func resample(samples []float32, srcRate, dstRate int) ([]float32, error) {
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: create resampler: %w", err)
	}

	in := make([]float64, len(samples))
	for i, s := range samples {
		in[i] = float64(s)
	}
	out, err := rs.Process(in)
	if err != nil {
		return nil, fmt.Errorf("audio: resample %d->%d: %w", srcRate, dstRate, err)
	}

	converted := make([]float32, len(out))
	for i, s := range out {
		switch {
		case s > 1:
			converted[i] = 1
		case s < -1:
			converted[i] = -1
		default:
			converted[i] = float32(s)
		}
	}
	return converted, nil
}
