// Package detect turns per-template correlation scores into consensus
// events: peak extraction, cross-template aggregation, and timestamp
// refinement, orchestrated by a parallel pipeline.
package detect

import (
	"math"
	"sort"

	"github.com/dingercity/chimefind/internal/config"
)

// Candidate is a single template's detected peak. Offset indexes the
// preprocessed waveform; Time is the same position in seconds.
type Candidate struct {
	TemplateID string
	Offset     int
	Time       float64
	Score      float64
}

// ExtractPeaks converts one template's score series into accepted peaks.
//
// Only local maxima above the template's own percentile threshold are
// considered, since absolute score magnitude is not comparable across
// templates or recordings. Candidates are then taken greedily in
// descending score order (ties to the earliest timestamp) and accepted
// only when no previously accepted peak lies within the configured minimum
// spacing. The result is sorted by time.
func ExtractPeaks(scores []float64, templateID string, sampleRate int, cfg config.Config) []Candidate {
	if len(scores) == 0 {
		return nil
	}

	threshold := Percentile(scores, cfg.PeakPercentile)
	if threshold <= 0 {
		// An all-silence (or all-nonpositive) score series yields no
		// candidates; a zero threshold would promote noise.
		return nil
	}

	var candidates []Candidate
	for i, s := range scores {
		if s < threshold {
			continue
		}
		if i > 0 && scores[i-1] > s {
			continue
		}
		if i < len(scores)-1 && scores[i+1] > s {
			continue
		}
		// Plateau members all qualify here; the earliest-timestamp tie
		// break plus spacing rejection below keeps exactly one.
		candidates = append(candidates, Candidate{
			TemplateID: templateID,
			Offset:     i,
			Time:       float64(i) / float64(sampleRate),
			Score:      s,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Offset < candidates[j].Offset
	})

	minSpacing := int(cfg.MinPeakSpacingSec * float64(sampleRate))
	var accepted []Candidate
	for _, c := range candidates {
		ok := true
		for _, a := range accepted {
			if abs(c.Offset-a.Offset) < minSpacing {
				ok = false
				break
			}
		}
		if ok {
			accepted = append(accepted, c)
		}
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Offset < accepted[j].Offset })
	return accepted
}

// Percentile returns the p-th percentile of values using linear
// interpolation between order statistics.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
