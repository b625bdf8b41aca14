package detect

import (
	"sort"
	"strings"

	"github.com/dingercity/chimefind/internal/config"
	"github.com/dingercity/chimefind/pkg/logger"
)

// Cluster is a transient group of temporally close candidates from
// different templates, built during aggregation and discarded after the
// run.
type Cluster struct {
	Centroid float64
	Members  map[string]Candidate // at most one candidate per template
	ScoreSum float64
}

// Agreement is the number of distinct templates contributing to the
// cluster. Raw candidate count is never used, so one template cannot
// dominate a cluster.
func (c *Cluster) Agreement() int { return len(c.Members) }

func (c *Cluster) add(cand Candidate) {
	prev, exists := c.Members[cand.TemplateID]
	if exists && prev.Score >= cand.Score {
		return
	}
	c.Members[cand.TemplateID] = cand
	c.recompute()
}

func (c *Cluster) recompute() {
	// Summation follows sorted template ID order so identical inputs
	// produce bit-identical centroids run to run.
	var timeSum, scoreSum float64
	for _, id := range memberIDs(c) {
		m := c.Members[id]
		timeSum += m.Time
		scoreSum += m.Score
	}
	c.Centroid = timeSum / float64(len(c.Members))
	c.ScoreSum = scoreSum
}

// best returns the highest-scoring member, ties to the earliest offset
// then the smallest template ID.
func (c *Cluster) best() Candidate {
	var out Candidate
	first := true
	for _, m := range c.Members {
		if first || betterCandidate(m, out) {
			out = m
			first = false
		}
	}
	return out
}

func betterCandidate(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Offset != b.Offset {
		return a.Offset < b.Offset
	}
	return a.TemplateID < b.TemplateID
}

// Event is the externally visible artifact of a run.
type Event struct {
	Time        float64  `json:"timestamp_seconds"`
	Agreement   int      `json:"agreement_count"`
	Confidence  string   `json:"confidence_label"`
	TemplateIDs []string `json:"contributing_template_ids"`
	ScoreSum    float64  `json:"score_sum"`
}

// Aggregate merges all templates' candidate lists into consensus clusters
// and returns the accepted ones. It must only be called once every
// template's extraction has finished (or failed): it is the pipeline's
// join barrier.
//
// Candidates are walked in timestamp order; one joins the newest cluster
// when it lies within the tolerance window of that cluster's running
// centroid, otherwise it starts a new cluster. Clusters below the minimum
// agreement are dropped; the near-threshold ones (exactly one template
// short) are logged for offline inspection rather than vanishing silently.
func Aggregate(candidateLists [][]Candidate, cfg config.Config, log *logger.Logger) []*Cluster {
	var all []Candidate
	for _, list := range candidateLists {
		all = append(all, list...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Time != all[j].Time {
			return all[i].Time < all[j].Time
		}
		if all[i].TemplateID != all[j].TemplateID {
			return all[i].TemplateID < all[j].TemplateID
		}
		return all[i].Score > all[j].Score
	})

	var clusters []*Cluster
	for _, cand := range all {
		// Times are ascending, so only the newest cluster can be within
		// the tolerance window.
		if n := len(clusters); n > 0 && cand.Time-clusters[n-1].Centroid <= cfg.ToleranceSec {
			clusters[n-1].add(cand)
			continue
		}
		clusters = append(clusters, &Cluster{
			Centroid: cand.Time,
			Members:  map[string]Candidate{cand.TemplateID: cand},
			ScoreSum: cand.Score,
		})
	}

	var accepted []*Cluster
	for _, cl := range clusters {
		switch {
		case cl.Agreement() >= cfg.MinAgreement:
			accepted = append(accepted, cl)
		case cl.Agreement() == cfg.MinAgreement-1 && log != nil:
			log.Warnf("near-threshold cluster at %.1fs: agreement %d/%d, templates %s, score sum %.6f",
				cl.Centroid, cl.Agreement(), cfg.MinAgreement, strings.Join(memberIDs(cl), ","), cl.ScoreSum)
		}
	}

	return dedupeCompeting(accepted, cfg)
}

// dedupeCompeting resolves clusters closer together than the minimum peak
// spacing — true events cannot recur that fast, so competing clusters
// collapse to the strongest one: higher agreement wins, agreement ties
// break on summed raw correlation score, then on the earlier centroid.
func dedupeCompeting(clusters []*Cluster, cfg config.Config) []*Cluster {
	if len(clusters) < 2 {
		return clusters
	}

	ranked := make([]*Cluster, len(clusters))
	copy(ranked, clusters)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Agreement() != ranked[j].Agreement() {
			return ranked[i].Agreement() > ranked[j].Agreement()
		}
		if ranked[i].ScoreSum != ranked[j].ScoreSum {
			return ranked[i].ScoreSum > ranked[j].ScoreSum
		}
		return ranked[i].Centroid < ranked[j].Centroid
	})

	var kept []*Cluster
	for _, cl := range ranked {
		ok := true
		for _, k := range kept {
			if diff := cl.Centroid - k.Centroid; diff < cfg.MinPeakSpacingSec && diff > -cfg.MinPeakSpacingSec {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, cl)
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].Centroid < kept[j].Centroid })
	return kept
}

// Events converts accepted clusters into the final, timestamp-ordered
// Event list.
func Events(clusters []*Cluster, cfg config.Config) []Event {
	events := make([]Event, 0, len(clusters))
	for _, cl := range clusters {
		events = append(events, Event{
			Time:        cl.Centroid,
			Agreement:   cl.Agreement(),
			Confidence:  ConfidenceLabel(cl.Agreement(), cfg),
			TemplateIDs: memberIDs(cl),
			ScoreSum:    cl.ScoreSum,
		})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Time < events[j].Time })
	return events
}

// ConfidenceLabel maps an agreement count onto the externally reported
// high/medium/low label.
func ConfidenceLabel(agreement int, cfg config.Config) string {
	switch {
	case agreement >= cfg.HighAgreement:
		return "high"
	case agreement >= cfg.MediumAgreement:
		return "medium"
	default:
		return "low"
	}
}

func memberIDs(cl *Cluster) []string {
	ids := make([]string, 0, len(cl.Members))
	for id := range cl.Members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
