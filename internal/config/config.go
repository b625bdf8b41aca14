// Package config provides the configuration schema and loader for the
// chimefind detection pipeline. A Config is built once, validated, and
// passed by value into every component; nothing reads tunables from
// package-level state.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for one detection run.
type Config struct {
	// SampleRate is the canonical rate in Hz. Waveforms and templates at
	// any other rate are resampled before use.
	SampleRate int `yaml:"sample_rate"`

	// Preprocessing.
	BandPass       BandPassConfig   `yaml:"band_pass"`
	NoiseReduction float64          `yaml:"noise_reduction"` // spectral floor scale, 0..1
	Compressor     CompressorConfig `yaml:"compressor"`

	// STFT parameters used by spectral subtraction.
	WindowSize int `yaml:"window_size"`
	HopSize    int `yaml:"hop_size"`

	// Peak extraction.
	PeakPercentile    float64 `yaml:"peak_percentile"`       // e.g. 99.7
	MinPeakSpacingSec float64 `yaml:"min_peak_spacing_sec"`  // e.g. 60

	// Consensus aggregation.
	ToleranceSec    float64 `yaml:"tolerance_sec"` // cluster window τ
	MinAgreement    int     `yaml:"min_agreement"`
	HighAgreement   int     `yaml:"high_agreement"`   // confidence "high" at or above
	MediumAgreement int     `yaml:"medium_agreement"` // confidence "medium" at or above

	// Refinement search radii in seconds, ascending.
	RefineRadiiSec []float64 `yaml:"refine_radii_sec"`

	// Workers bounds the per-template worker pool. Zero means one worker
	// per available CPU.
	Workers int `yaml:"workers"`
}

// BandPassConfig selects the spectral range characteristic of the target
// chime. Frequencies outside [LowHz, HighHz] are attenuated.
type BandPassConfig struct {
	LowHz  float64 `yaml:"low_hz"`
	HighHz float64 `yaml:"high_hz"`
}

// CompressorConfig controls dynamic-range compression applied after
// filtering.
type CompressorConfig struct {
	Threshold float64 `yaml:"threshold"`
	Ratio     float64 `yaml:"ratio"`
}

// Default returns the configuration tuned against the reference gameplay
// recordings.
func Default() Config {
	return Config{
		SampleRate:        22050,
		BandPass:          BandPassConfig{LowHz: 800, HighHz: 10000},
		NoiseReduction:    0.3,
		Compressor:        CompressorConfig{Threshold: 0.3, Ratio: 4.0},
		WindowSize:        2048,
		HopSize:           512,
		PeakPercentile:    99.7,
		MinPeakSpacingSec: 60,
		ToleranceSec:      5,
		MinAgreement:      2,
		HighAgreement:     4,
		MediumAgreement:   3,
		RefineRadiiSec:    []float64{0.5, 1, 2},
		Workers:           0,
	}
}

// Load reads a YAML configuration file at path, overlaying it onto the
// defaults, and returns a validated Config.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of the defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all failures found.
func Validate(cfg Config) error {
	var errs []error

	if cfg.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate must be positive, got %d", cfg.SampleRate))
	}
	nyquist := float64(cfg.SampleRate) / 2
	if cfg.BandPass.LowHz <= 0 || cfg.BandPass.HighHz <= cfg.BandPass.LowHz {
		errs = append(errs, fmt.Errorf("band_pass range [%g, %g] is invalid", cfg.BandPass.LowHz, cfg.BandPass.HighHz))
	} else if cfg.SampleRate > 0 && cfg.BandPass.HighHz > nyquist {
		errs = append(errs, fmt.Errorf("band_pass.high_hz %g exceeds the Nyquist frequency %g", cfg.BandPass.HighHz, nyquist))
	}
	if cfg.NoiseReduction < 0 || cfg.NoiseReduction > 1 {
		errs = append(errs, fmt.Errorf("noise_reduction must be in [0, 1], got %g", cfg.NoiseReduction))
	}
	if cfg.Compressor.Ratio < 1 {
		errs = append(errs, fmt.Errorf("compressor.ratio must be >= 1, got %g", cfg.Compressor.Ratio))
	}
	if cfg.Compressor.Threshold <= 0 || cfg.Compressor.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("compressor.threshold must be in (0, 1), got %g", cfg.Compressor.Threshold))
	}
	if cfg.WindowSize <= 0 || cfg.WindowSize&(cfg.WindowSize-1) != 0 {
		errs = append(errs, fmt.Errorf("window_size must be a positive power of two, got %d", cfg.WindowSize))
	}
	if cfg.HopSize <= 0 || cfg.HopSize > cfg.WindowSize {
		errs = append(errs, fmt.Errorf("hop_size must be in (0, window_size], got %d", cfg.HopSize))
	}
	if cfg.PeakPercentile <= 50 || cfg.PeakPercentile >= 100 {
		errs = append(errs, fmt.Errorf("peak_percentile must be in (50, 100), got %g", cfg.PeakPercentile))
	}
	if cfg.MinPeakSpacingSec <= 0 {
		errs = append(errs, fmt.Errorf("min_peak_spacing_sec must be positive, got %g", cfg.MinPeakSpacingSec))
	}
	if cfg.ToleranceSec <= 0 {
		errs = append(errs, fmt.Errorf("tolerance_sec must be positive, got %g", cfg.ToleranceSec))
	}
	if cfg.MinAgreement < 1 {
		errs = append(errs, fmt.Errorf("min_agreement must be >= 1, got %d", cfg.MinAgreement))
	}
	if cfg.MediumAgreement < cfg.MinAgreement || cfg.HighAgreement < cfg.MediumAgreement {
		errs = append(errs, fmt.Errorf("confidence thresholds must satisfy min_agreement <= medium_agreement <= high_agreement"))
	}
	if len(cfg.RefineRadiiSec) == 0 {
		errs = append(errs, errors.New("refine_radii_sec must name at least one radius"))
	}
	for i, r := range cfg.RefineRadiiSec {
		if r <= 0 {
			errs = append(errs, fmt.Errorf("refine_radii_sec[%d] must be positive, got %g", i, r))
		}
		if i > 0 && r <= cfg.RefineRadiiSec[i-1] {
			errs = append(errs, errors.New("refine_radii_sec must be strictly ascending"))
		}
	}
	if cfg.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be >= 0, got %d", cfg.Workers))
	}

	return errors.Join(errs...)
}
