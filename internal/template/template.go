// Package template manages the reference chime waveforms the detector
// correlates against, and the SQLite catalog that versions them.
package template

import (
	"fmt"
	"math"

	"github.com/dingercity/chimefind/internal/audio"
)

// envelopeFraction of the peak amplitude marks where a template's bounding
// envelope begins and ends; leading and trailing samples below it are
// trimmed away so correlation is not diluted by silence.
const envelopeFraction = 0.02

// Template is a normalized reference chime. Samples are zero-mean with
// unit peak so correlation magnitude is scale-invariant; Energy caches the
// L2 norm used by the correlation denominator. Immutable once built.
type Template struct {
	ID          string
	Label       string
	SourceLabel string
	Samples     []float64
	SampleRate  int
	Energy      float64
}

// Seconds returns the template duration in seconds.
func (t *Template) Seconds() float64 {
	if t.SampleRate == 0 {
		return 0
	}
	return float64(len(t.Samples)) / float64(t.SampleRate)
}

// RMS returns the root-mean-square amplitude, reported by the catalog
// listing to help spot weak exemplars.
func (t *Template) RMS() float64 {
	if len(t.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range t.Samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(t.Samples)))
}

// New builds a Template from raw decoded samples: resample to the
// canonical rate, trim to the minimal bounding envelope, remove DC, and
// scale to unit peak.
func New(id, label, sourceLabel string, samples []float64, sampleRate, canonicalRate int) (*Template, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("template %s: no samples", label)
	}

	if sampleRate != canonicalRate {
		samples = audio.Resample(samples, sampleRate, canonicalRate)
	}

	trimmed := trimEnvelope(samples)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("template %s: silent after envelope trim", label)
	}

	normalized := normalize(trimmed)

	var energy float64
	for _, s := range normalized {
		energy += s * s
	}

	return &Template{
		ID:          id,
		Label:       label,
		SourceLabel: sourceLabel,
		Samples:     normalized,
		SampleRate:  canonicalRate,
		Energy:      math.Sqrt(energy),
	}, nil
}

// Load reads a WAV file and builds a Template from it.
func Load(path, id, label, sourceLabel string, canonicalRate int) (*Template, error) {
	w, err := audio.ReadWAV(path)
	if err != nil {
		return nil, fmt.Errorf("loading template %s: %w", label, err)
	}
	return New(id, label, sourceLabel, w.Samples, w.SampleRate, canonicalRate)
}

// trimEnvelope cuts leading and trailing samples whose magnitude falls
// below envelopeFraction of the peak.
func trimEnvelope(samples []float64) []float64 {
	var peak float64
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return nil
	}
	threshold := envelopeFraction * peak

	start, end := 0, len(samples)
	for start < end && math.Abs(samples[start]) < threshold {
		start++
	}
	for end > start && math.Abs(samples[end-1]) < threshold {
		end--
	}

	out := make([]float64, end-start)
	copy(out, samples[start:end])
	return out
}

// normalize removes the DC offset and scales to unit peak.
func normalize(samples []float64) []float64 {
	var mean float64
	for _, s := range samples {
		mean += s
	}
	mean /= float64(len(samples))

	out := make([]float64, len(samples))
	var peak float64
	for i, s := range samples {
		out[i] = s - mean
		if a := math.Abs(out[i]); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return out
	}
	for i := range out {
		out[i] /= peak
	}
	return out
}
