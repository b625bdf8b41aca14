package dsp

import (
	"context"
	"errors"
	"math"

	"github.com/mjibson/go-dsp/fft"
)

// ErrTemplateLongerThanWaveform is returned when valid-mode correlation is
// impossible because the template does not fit inside the waveform.
var ErrTemplateLongerThanWaveform = errors.New("template longer than waveform")

// minCorrelationFFTSize keeps block FFTs large enough that per-block
// overhead stays negligible for hour-long recordings.
const minCorrelationFFTSize = 1 << 14

// NormalizedCrossCorrelate computes the valid-mode cross-correlation of
// template against waveform, normalized by template energy and by the
// energy of the waveform window under each offset:
//
//	score(k) = dot(waveform[k:k+n], template) / (||template|| * ||waveform[k:k+n]||)
//
// Scores therefore land in [-1, 1] and are comparable across templates and
// recordings regardless of absolute volume.
//
// Boundary handling is valid-range-only: the result has length
// len(waveform)-len(template)+1 and score(k) is defined only where the
// template fits entirely inside the waveform. No edge padding is applied,
// so an event whose onset begins less than one template length before the
// end of the recording is not detectable.
//
// The correlation runs block-wise (overlap-save) so arbitrarily long
// waveforms are processed without giant FFT allocations or truncation
// artifacts at block seams. ctx is checked between blocks for cooperative
// cancellation.
func NormalizedCrossCorrelate(ctx context.Context, waveform, template []float64) ([]float64, error) {
	n := len(template)
	m := len(waveform)
	if n == 0 {
		return nil, errors.New("empty template")
	}
	if n > m {
		return nil, ErrTemplateLongerThanWaveform
	}

	scores := make([]float64, m-n+1)

	var tplEnergy float64
	for _, t := range template {
		tplEnergy += t * t
	}
	tplNorm := math.Sqrt(tplEnergy)
	if tplNorm == 0 {
		return scores, nil
	}

	// Running window energy via prefix sums: windowEnergy(k) = P[k+n]-P[k].
	prefix := make([]float64, m+1)
	for i, s := range waveform {
		prefix[i+1] = prefix[i] + s*s
	}

	fftSize := nextPow2(4 * n)
	if fftSize < minCorrelationFFTSize {
		fftSize = minCorrelationFFTSize
	}
	blockLen := fftSize - n + 1

	// Correlation as convolution with the reversed template:
	// corr[k] = conv(waveform, reverse(template))[k+n-1].
	revPadded := make([]float64, fftSize)
	for i := 0; i < n; i++ {
		revPadded[i] = template[n-1-i]
	}
	tplSpec := fft.FFTReal(revPadded)

	segment := make([]float64, fftSize)
	// Block outputs cover full-convolution indices [conv, conv+blockLen);
	// the valid correlation region is conv indices [n-1, m-1].
	for conv := n - 1; conv <= m-1; conv += blockLen {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Input segment for this block, zero-padded outside the waveform.
		segStart := conv - (n - 1)
		for i := 0; i < fftSize; i++ {
			pos := segStart + i
			if pos >= 0 && pos < m {
				segment[i] = waveform[pos]
			} else {
				segment[i] = 0
			}
		}

		segSpec := fft.FFTReal(segment)
		for i := range segSpec {
			segSpec[i] *= tplSpec[i]
		}
		block := fft.IFFT(segSpec)

		for i := 0; i < blockLen; i++ {
			k := conv + i - (n - 1) // correlation offset
			if k >= len(scores) {
				break
			}
			raw := real(block[n-1+i])
			windowEnergy := prefix[k+n] - prefix[k]
			denom := tplNorm * math.Sqrt(windowEnergy)
			if denom > 1e-12 {
				scores[k] = raw / denom
			}
		}
	}

	return scores, nil
}

// ScoreStats summarizes a score series for diagnostic logging.
type ScoreStats struct {
	Min, Max, Mean, Std float64
}

// Stats computes summary statistics over a score series.
func Stats(scores []float64) ScoreStats {
	if len(scores) == 0 {
		return ScoreStats{}
	}
	st := ScoreStats{Min: scores[0], Max: scores[0]}
	var sum float64
	for _, s := range scores {
		if s < st.Min {
			st.Min = s
		}
		if s > st.Max {
			st.Max = s
		}
		sum += s
	}
	st.Mean = sum / float64(len(scores))
	var sq float64
	for _, s := range scores {
		d := s - st.Mean
		sq += d * d
	}
	st.Std = math.Sqrt(sq / float64(len(scores)))
	return st
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
