package detect

import (
	"context"

	"github.com/dingercity/chimefind/internal/audio"
	"github.com/dingercity/chimefind/internal/config"
	"github.com/dingercity/chimefind/internal/dsp"
	"github.com/dingercity/chimefind/internal/template"
)

// Refine sharpens a cluster's timestamp by re-running correlation in
// narrow windows around the centroid at each configured radius, using the
// cluster's best contributing template. Correlation collapses sharply with
// sub-second misalignment, so this trades a little extra compute for
// stable timing.
//
// The refined timestamp replaces the centroid only when its score beats
// the original best member's score; refinement never degrades a result.
func Refine(ctx context.Context, w *audio.Waveform, templates map[string]*template.Template, cl *Cluster, cfg config.Config) (float64, error) {
	best := cl.best()
	tpl, ok := templates[best.TemplateID]
	if !ok {
		return cl.Centroid, nil
	}

	sr := float64(w.SampleRate)
	n := len(tpl.Samples)
	centerOffset := int(cl.Centroid * sr)

	bestScore := best.Score
	bestOffset := -1

	for _, radius := range cfg.RefineRadiiSec {
		rs := int(radius * sr)
		lo := centerOffset - rs
		if lo < 0 {
			lo = 0
		}
		hi := centerOffset + rs
		if max := len(w.Samples) - n; hi > max {
			hi = max
		}
		if hi < lo {
			continue
		}

		scores, err := dsp.NormalizedCrossCorrelate(ctx, w.Samples[lo:hi+n], tpl.Samples)
		if err != nil {
			return 0, err
		}
		for i, s := range scores {
			if s > bestScore {
				bestScore = s
				bestOffset = lo + i
			}
		}
	}

	if bestOffset < 0 {
		return cl.Centroid, nil
	}
	return float64(bestOffset) / sr, nil
}
