package dsp

import (
	"math"
	"math/cmplx"
)

// biquad is a single second-order IIR section in direct form II transposed.
type biquad struct {
	b0, b1, b2, a1, a2 float64
}

func (bq biquad) apply(in []float64) []float64 {
	out := make([]float64, len(in))
	var z1, z2 float64
	for i, x := range in {
		y := bq.b0*x + z1
		z1 = bq.b1*x - bq.a1*y + z2
		z2 = bq.b2*x - bq.a2*y
		out[i] = y
	}
	return out
}

// Butterworth Q values for a 4th-order filter realized as two cascaded
// second-order sections.
var butterworth4Q = [2]float64{0.5412, 1.3066}

func highpassBiquad(cutoffHz float64, sampleRate int, q float64) biquad {
	w := 2 * math.Pi * cutoffHz / float64(sampleRate)
	cosw, sinw := math.Cos(w), math.Sin(w)
	alpha := sinw / (2 * q)
	a0 := 1 + alpha
	return biquad{
		b0: (1 + cosw) / 2 / a0,
		b1: -(1 + cosw) / a0,
		b2: (1 + cosw) / 2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

func lowpassBiquad(cutoffHz float64, sampleRate int, q float64) biquad {
	w := 2 * math.Pi * cutoffHz / float64(sampleRate)
	cosw, sinw := math.Cos(w), math.Sin(w)
	alpha := sinw / (2 * q)
	a0 := 1 + alpha
	return biquad{
		b0: (1 - cosw) / 2 / a0,
		b1: (1 - cosw) / a0,
		b2: (1 - cosw) / 2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

// BandPass emphasizes [lowHz, highHz] with a 4th-order Butterworth
// high-pass at lowHz followed by a 4th-order low-pass at highHz.
// Commentary energy sits mostly below the chime band, so the high-pass
// does most of the suppression work.
func BandPass(samples []float64, sampleRate int, lowHz, highHz float64) []float64 {
	out := samples
	for _, q := range butterworth4Q {
		out = highpassBiquad(lowHz, sampleRate, q).apply(out)
	}
	for _, q := range butterworth4Q {
		out = lowpassBiquad(highHz, sampleRate, q).apply(out)
	}
	return out
}

// SpectralSubtract attenuates stationary broadband content (commentary
// bed, crowd hum) by subtracting a scaled long-term spectral floor from
// every STFT frame. The floor is the per-bin mean magnitude over the whole
// recording; each bin is clamped to at least 10% of its original magnitude
// so transients are never zeroed out entirely.
func SpectralSubtract(samples []float64, windowSize, hopSize int, reduction float64) []float64 {
	if reduction <= 0 || len(samples) < windowSize {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}

	window := Hamming(windowSize)
	frames, err := STFT(samples, windowSize, hopSize, window)
	if err != nil || len(frames) == 0 {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}

	nBins := len(frames[0])
	floor := make([]float64, nBins)
	for _, spec := range frames {
		for b := 0; b < nBins; b++ {
			floor[b] += cmplx.Abs(spec[b])
		}
	}
	for b := range floor {
		floor[b] /= float64(len(frames))
	}

	for _, spec := range frames {
		for b := 0; b < nBins; b++ {
			mag := cmplx.Abs(spec[b])
			if mag == 0 {
				continue
			}
			cleaned := mag - reduction*floor[b]
			if min := 0.1 * mag; cleaned < min {
				cleaned = min
			}
			spec[b] *= complex(cleaned/mag, 0)
		}
	}

	return ISTFT(frames, windowSize, hopSize, len(samples), window)
}

// Compress applies simple downward dynamic-range compression: samples above
// threshold are scaled toward it by ratio, evening out loud commentary
// bursts against quieter game audio.
func Compress(samples []float64, threshold, ratio float64) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		mag := math.Abs(s)
		if mag > threshold {
			mag = threshold + (mag-threshold)/ratio
		}
		if s < 0 {
			out[i] = -mag
		} else {
			out[i] = mag
		}
	}
	return out
}

// NormalizePeak scales samples so the largest absolute value equals peak.
// Silent input is returned unchanged.
func NormalizePeak(samples []float64, peak float64) []float64 {
	var maxAbs float64
	for _, s := range samples {
		if a := math.Abs(s); a > maxAbs {
			maxAbs = a
		}
	}
	out := make([]float64, len(samples))
	if maxAbs == 0 {
		copy(out, samples)
		return out
	}
	scale := peak / maxAbs
	for i, s := range samples {
		out[i] = s * scale
	}
	return out
}
