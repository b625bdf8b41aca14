// Package dsp implements the signal-processing primitives behind the
// detection pipeline: band filtering, spectral subtraction, dynamic-range
// compression, and FFT-accelerated cross-correlation.
package dsp

import (
	"errors"
	"math"

	"github.com/mjibson/go-dsp/fft"
)

// Hamming returns a Hamming window of length n.
func Hamming(n int) []float64 {
	w := make([]float64, n)
	for i := 0; i < n; i++ {
		// Hamming: 0.54 - 0.46*cos(2*pi*n/(N-1))
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// STFT computes the short-time FFT and returns time-major complex frames:
// frames[frameIdx][freqBin]. The trailing partial window is dropped.
func STFT(samples []float64, windowSize, hopSize int, window []float64) ([][]complex128, error) {
	if len(window) != windowSize {
		return nil, errors.New("window length must equal windowSize")
	}
	if len(samples) < windowSize {
		return nil, errors.New("input shorter than window size")
	}

	frames := make([][]complex128, 0, 1+(len(samples)-windowSize)/hopSize)
	frame := make([]float64, windowSize)
	for start := 0; start+windowSize <= len(samples); start += hopSize {
		copy(frame, samples[start:start+windowSize])
		for i := 0; i < windowSize; i++ {
			frame[i] *= window[i]
		}
		frames = append(frames, fft.FFTReal(frame))
	}
	return frames, nil
}

// ISTFT reconstructs a signal of length outLen from complex STFT frames by
// weighted overlap-add, normalizing by the accumulated squared window so
// that analysis+synthesis round-trips at any hop that covers the signal.
func ISTFT(frames [][]complex128, windowSize, hopSize, outLen int, window []float64) []float64 {
	out := make([]float64, outLen)
	norm := make([]float64, outLen)

	for f, spec := range frames {
		start := f * hopSize
		segment := fft.IFFT(spec)
		for i := 0; i < windowSize; i++ {
			pos := start + i
			if pos >= outLen {
				break
			}
			out[pos] += real(segment[i]) * window[i]
			norm[pos] += window[i] * window[i]
		}
	}

	const eps = 1e-9
	for i := range out {
		if norm[i] > eps {
			out[i] /= norm[i]
		}
	}
	return out
}
