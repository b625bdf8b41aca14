package detect

import (
	"math"
	"testing"

	"github.com/dingercity/chimefind/internal/config"
)

func peakTestConfig() config.Config {
	cfg := config.Default()
	cfg.MinPeakSpacingSec = 1 // 100 samples at the test rate below
	return cfg
}

// rampScores builds a strictly increasing low-level baseline: the
// percentile threshold comes out positive, and the only baseline sample
// that qualifies as a local maximum is the very last one.
func rampScores(n int) []float64 {
	scores := make([]float64, n)
	for i := range scores {
		scores[i] = 0.001 + 1e-7*float64(i)
	}
	return scores
}

func TestExtractPeaksSpacing(t *testing.T) {
	const rate = 100
	cfg := peakTestConfig()

	scores := rampScores(10000)
	scores[2000] = 0.9
	scores[2050] = 0.8 // within min spacing of the stronger peak
	scores[5000] = 0.7

	peaks := ExtractPeaks(scores, "tpl-a", rate, cfg)
	if len(peaks) != 3 {
		t.Fatalf("Expected 3 peaks (two injected plus the ramp end), got %d: %+v", len(peaks), peaks)
	}
	if peaks[0].Offset != 2000 || peaks[1].Offset != 5000 || peaks[2].Offset != 9999 {
		t.Errorf("Expected offsets [2000 5000 9999], got [%d %d %d]",
			peaks[0].Offset, peaks[1].Offset, peaks[2].Offset)
	}
	if peaks[0].Score != 0.9 || peaks[1].Score != 0.7 {
		t.Errorf("Expected scores [0.9 0.7], got [%f %f]", peaks[0].Score, peaks[1].Score)
	}
	if math.Abs(peaks[0].Time-20.0) > 1e-12 {
		t.Errorf("Expected time 20.0s for offset 2000 at %d Hz, got %f", rate, peaks[0].Time)
	}
	if peaks[0].TemplateID != "tpl-a" {
		t.Errorf("Peak should carry its template ID, got %q", peaks[0].TemplateID)
	}
}

func TestExtractPeaksPlateauKeepsEarliest(t *testing.T) {
	cfg := peakTestConfig()

	scores := rampScores(10000)
	scores[3000] = 0.9
	scores[3001] = 0.9
	scores[3002] = 0.9

	peaks := ExtractPeaks(scores, "tpl-a", 100, cfg)
	if len(peaks) != 2 {
		t.Fatalf("Expected the plateau collapsed to one peak (plus the ramp end), got %d", len(peaks))
	}
	if peaks[0].Offset != 3000 {
		t.Errorf("Expected the earliest plateau sample, got offset %d", peaks[0].Offset)
	}
}

func TestExtractPeaksSilence(t *testing.T) {
	cfg := peakTestConfig()

	if peaks := ExtractPeaks(make([]float64, 10000), "tpl-a", 100, cfg); peaks != nil {
		t.Errorf("Expected no peaks from all-zero scores, got %d", len(peaks))
	}
	if peaks := ExtractPeaks(nil, "tpl-a", 100, cfg); peaks != nil {
		t.Error("Expected no peaks from empty scores")
	}
}

func TestExtractPeaksDeterministic(t *testing.T) {
	cfg := peakTestConfig()
	scores := rampScores(10000)
	scores[1000] = 0.9
	scores[7000] = 0.9 // equal scores, both far apart

	a := ExtractPeaks(scores, "tpl-a", 100, cfg)
	b := ExtractPeaks(scores, "tpl-a", 100, cfg)
	if len(a) != len(b) {
		t.Fatalf("Non-deterministic peak count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Non-deterministic peak at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
	if len(a) != 3 || a[0].Offset != 1000 || a[1].Offset != 7000 {
		t.Errorf("Expected both equal-score peaks kept in time order, got %+v", a)
	}
}

func TestPercentile(t *testing.T) {
	values := []float64{4, 1, 3, 2} // sorted: 1 2 3 4

	if got := Percentile(values, 99.7); got < 3.9 || got > 4.0 {
		t.Errorf("Expected 99.7th percentile near 4, got %f", got)
	}
	if got := Percentile(values, 50); math.Abs(got-2.5) > 1e-12 {
		t.Errorf("Expected median 2.5, got %f", got)
	}
	if got := Percentile(nil, 99.7); got != 0 {
		t.Errorf("Expected 0 for empty input, got %f", got)
	}
}
