package detect

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dingercity/chimefind/internal/audio"
	"github.com/dingercity/chimefind/internal/config"
	"github.com/dingercity/chimefind/internal/dsp"
	"github.com/dingercity/chimefind/internal/template"
	"github.com/dingercity/chimefind/pkg/logger"
)

// State is the pipeline's coarse run phase, exposed for logging and
// inspection. States only ever advance during a run and return to
// StateIdle when it ends.
type State int32

const (
	StateIdle State = iota
	StatePreprocessing
	StateCorrelating
	StatePeakExtracting
	StateAggregating
	StateRefining
	StateReporting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreprocessing:
		return "preprocessing"
	case StateCorrelating:
		return "correlating"
	case StatePeakExtracting:
		return "peak-extracting"
	case StateAggregating:
		return "aggregating"
	case StateRefining:
		return "refining"
	case StateReporting:
		return "reporting"
	default:
		return "unknown"
	}
}

// Pipeline runs the full detection sequence over one recording. It holds
// no state between runs beyond the immutable configuration.
type Pipeline struct {
	cfg   config.Config
	log   *logger.Logger
	state atomic.Int32
}

func NewPipeline(cfg config.Config, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pipeline{cfg: cfg, log: log}
}

// State reports the current run phase.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// advance moves the state forward; it never moves backward, so concurrent
// workers reporting phase entry cannot regress the machine.
func (p *Pipeline) advance(s State) {
	for {
		cur := p.state.Load()
		if cur >= int32(s) || p.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

// Run executes one detection pass: preprocess, correlate and extract peaks
// per template in parallel, aggregate at the join barrier, refine, and
// return the final timestamp-ordered events.
//
// A preprocessing failure aborts the run with no partial output. Templates
// longer than the waveform are excluded and logged; the run continues if
// at least one usable template remains. There are no internal retries.
func (p *Pipeline) Run(ctx context.Context, raw *audio.Waveform, templates []*template.Template) ([]Event, error) {
	defer p.state.Store(int32(StateIdle))

	p.advance(StatePreprocessing)
	wave, err := dsp.Preprocess(raw, p.cfg)
	if err != nil {
		return nil, err
	}
	p.log.Infof("preprocessed %.1f minutes of audio at %d Hz", wave.Seconds()/60, wave.SampleRate)

	usable := make([]*template.Template, 0, len(templates))
	for _, tpl := range nonNil(templates) {
		if len(tpl.Samples) > len(wave.Samples) {
			tooLong := &template.TooLongError{
				TemplateID:  tpl.ID,
				Label:       tpl.Label,
				TemplateLen: len(tpl.Samples),
				WaveformLen: len(wave.Samples),
			}
			p.log.Warnf("excluding template: %v", tooLong)
			continue
		}
		usable = append(usable, tpl)
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("%d template(s) provided: %w", len(templates), template.ErrInsufficientTemplates)
	}

	workers := p.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	// Each worker owns a read-only reference to the shared waveform and
	// writes only to its own slot; the aggregation barrier is the only
	// cross-template synchronization point.
	slots := make([][]Candidate, len(usable))

	p.advance(StateCorrelating)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, tpl := range usable {
		eg.Go(func() error {
			scores, err := dsp.NormalizedCrossCorrelate(gctx, wave.Samples, tpl.Samples)
			if err != nil {
				return fmt.Errorf("correlating template %q: %w", tpl.Label, err)
			}
			st := dsp.Stats(scores)
			p.log.Debugf("template %q: score min=%.6f max=%.6f mean=%.6f std=%.6f",
				tpl.Label, st.Min, st.Max, st.Mean, st.Std)

			p.advance(StatePeakExtracting)
			peaks := ExtractPeaks(scores, tpl.ID, wave.SampleRate, p.cfg)
			p.log.Debugf("template %q: %d peak(s) accepted", tpl.Label, len(peaks))
			slots[i] = peaks
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	p.advance(StateAggregating)
	clusters := Aggregate(slots, p.cfg, p.log)
	p.log.Infof("%d consensus cluster(s) from %d template(s)", len(clusters), len(usable))

	p.advance(StateRefining)
	tplByID := make(map[string]*template.Template, len(usable))
	for _, tpl := range usable {
		tplByID[tpl.ID] = tpl
	}
	for _, cl := range clusters {
		refined, err := Refine(ctx, wave, tplByID, cl, p.cfg)
		if err != nil {
			return nil, err
		}
		if refined != cl.Centroid {
			p.log.Debugf("refined cluster %.3fs -> %.3fs", cl.Centroid, refined)
			cl.Centroid = refined
		}
	}

	p.advance(StateReporting)
	events := Events(clusters, p.cfg)
	p.log.Infof("run complete: %d event(s)", len(events))
	return events, nil
}

// nonNil filters out nil entries so a sparse caller slice cannot panic
// the run.
func nonNil(templates []*template.Template) []*template.Template {
	out := make([]*template.Template, 0, len(templates))
	for _, t := range templates {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}
