package dsp

import (
	"github.com/dingercity/chimefind/internal/audio"
	"github.com/dingercity/chimefind/internal/config"
)

// Preprocess converts a decoded recording into the canonical,
// commentary-suppressed waveform every later stage operates on:
// resampling, band emphasis, spectral subtraction, compression, then peak
// normalization. The input is not modified; the returned waveform is
// immutable from the pipeline's point of view.
func Preprocess(w *audio.Waveform, cfg config.Config) (*audio.Waveform, error) {
	if w == nil || len(w.Samples) == 0 {
		return nil, &audio.EmptyAudioError{Path: "(in-memory waveform)"}
	}

	samples := w.Samples
	if w.SampleRate != cfg.SampleRate {
		samples = audio.Resample(samples, w.SampleRate, cfg.SampleRate)
	}

	samples = BandPass(samples, cfg.SampleRate, cfg.BandPass.LowHz, cfg.BandPass.HighHz)
	samples = SpectralSubtract(samples, cfg.WindowSize, cfg.HopSize, cfg.NoiseReduction)
	samples = Compress(samples, cfg.Compressor.Threshold, cfg.Compressor.Ratio)
	samples = NormalizePeak(samples, 1.0)

	return &audio.Waveform{Samples: samples, SampleRate: cfg.SampleRate}, nil
}
