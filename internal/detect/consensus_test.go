package detect

import (
	"math"
	"reflect"
	"testing"

	"github.com/dingercity/chimefind/internal/config"
)

func cand(templateID string, timeSec, score float64) Candidate {
	return Candidate{
		TemplateID: templateID,
		Offset:     int(timeSec * 22050),
		Time:       timeSec,
		Score:      score,
	}
}

func TestAggregateConsensus(t *testing.T) {
	cfg := config.Default()

	lists := [][]Candidate{
		{cand("tpl-a", 10.0, 0.8), cand("tpl-a", 300.0, 0.6)},
		{cand("tpl-b", 10.5, 0.7)},
	}

	clusters := Aggregate(lists, cfg, nil)
	if len(clusters) != 1 {
		t.Fatalf("Expected 1 accepted cluster, got %d", len(clusters))
	}

	cl := clusters[0]
	if cl.Agreement() != 2 {
		t.Errorf("Expected agreement 2, got %d", cl.Agreement())
	}
	if math.Abs(cl.Centroid-10.25) > 1e-12 {
		t.Errorf("Expected centroid 10.25, got %f", cl.Centroid)
	}
	if math.Abs(cl.ScoreSum-1.5) > 1e-12 {
		t.Errorf("Expected score sum 1.5, got %f", cl.ScoreSum)
	}
}

func TestAggregateSameTemplateCannotAgree(t *testing.T) {
	cfg := config.Default()

	// Two nearby peaks from one template are a repeat, not agreement.
	lists := [][]Candidate{
		{cand("tpl-a", 10.0, 0.8), cand("tpl-a", 11.0, 0.9)},
	}

	clusters := Aggregate(lists, cfg, nil)
	if len(clusters) != 0 {
		t.Fatalf("Expected no accepted clusters from a single template, got %d", len(clusters))
	}
}

func TestClusterKeepsStrongestPerTemplate(t *testing.T) {
	cfg := config.Default()

	lists := [][]Candidate{
		{cand("tpl-a", 10.0, 0.5), cand("tpl-a", 11.0, 0.9)},
		{cand("tpl-b", 10.5, 0.7)},
	}

	clusters := Aggregate(lists, cfg, nil)
	if len(clusters) != 1 {
		t.Fatalf("Expected 1 cluster, got %d", len(clusters))
	}

	cl := clusters[0]
	if cl.Agreement() != 2 {
		t.Fatalf("Expected agreement 2, got %d", cl.Agreement())
	}
	if got := cl.Members["tpl-a"].Score; got != 0.9 {
		t.Errorf("Expected the stronger tpl-a candidate kept, got score %f", got)
	}
	if math.Abs(cl.ScoreSum-1.6) > 1e-12 {
		t.Errorf("Expected score sum recomputed to 1.6, got %f", cl.ScoreSum)
	}
}

func TestDedupeCompetingClusters(t *testing.T) {
	cfg := config.Default() // 60s min spacing

	lists := [][]Candidate{
		{cand("tpl-a", 100, 0.8), cand("tpl-a", 130, 0.9)},
		{cand("tpl-b", 100, 0.7), cand("tpl-b", 130, 0.6)},
		{cand("tpl-c", 100, 0.6)},
	}

	clusters := Aggregate(lists, cfg, nil)
	if len(clusters) != 1 {
		t.Fatalf("Expected competing clusters collapsed to 1, got %d", len(clusters))
	}
	if clusters[0].Agreement() != 3 {
		t.Errorf("Expected the higher-agreement cluster to win, got agreement %d", clusters[0].Agreement())
	}
	if math.Abs(clusters[0].Centroid-100) > 1e-12 {
		t.Errorf("Expected winner at 100s, got %f", clusters[0].Centroid)
	}
}

func TestDedupeAgreementTieBreaksOnScoreSum(t *testing.T) {
	cfg := config.Default()

	lists := [][]Candidate{
		{cand("tpl-a", 100, 0.5), cand("tpl-a", 130, 0.9)},
		{cand("tpl-b", 100, 0.5), cand("tpl-b", 130, 0.9)},
	}

	clusters := Aggregate(lists, cfg, nil)
	if len(clusters) != 1 {
		t.Fatalf("Expected 1 surviving cluster, got %d", len(clusters))
	}
	if math.Abs(clusters[0].Centroid-130) > 1e-12 {
		t.Errorf("Expected the higher score sum cluster at 130s to win, got %f", clusters[0].Centroid)
	}
}

func TestAggregateRunningCentroid(t *testing.T) {
	cfg := config.Default()
	cfg.ToleranceSec = 5

	// 10.0 starts the cluster; 14.0 joins (within 5s of centroid 10.0,
	// centroid moves to 12.0); 16.5 joins the same cluster because it is
	// measured against the running centroid, not the seed.
	lists := [][]Candidate{
		{cand("tpl-a", 10.0, 0.8)},
		{cand("tpl-b", 14.0, 0.7)},
		{cand("tpl-c", 16.5, 0.6)},
	}

	clusters := Aggregate(lists, cfg, nil)
	if len(clusters) != 1 {
		t.Fatalf("Expected a single running-centroid cluster, got %d", len(clusters))
	}
	if clusters[0].Agreement() != 3 {
		t.Errorf("Expected agreement 3, got %d", clusters[0].Agreement())
	}
}

func TestEventsOrderingAndConfidence(t *testing.T) {
	cfg := config.Default()

	makeCluster := func(timeSec float64, ids ...string) *Cluster {
		cl := &Cluster{Members: map[string]Candidate{}}
		for _, id := range ids {
			cl.Members[id] = cand(id, timeSec, 0.5)
		}
		cl.recompute()
		return cl
	}

	clusters := []*Cluster{
		makeCluster(500, "a", "b", "c", "d"),
		makeCluster(100, "a", "b"),
		makeCluster(300, "a", "b", "c"),
	}

	events := Events(clusters, cfg)
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}

	times := []float64{events[0].Time, events[1].Time, events[2].Time}
	if !reflect.DeepEqual(times, []float64{100, 300, 500}) {
		t.Errorf("Expected timestamp-ordered events, got %v", times)
	}

	wantConfidence := []string{"low", "medium", "high"}
	for i, want := range wantConfidence {
		if events[i].Confidence != want {
			t.Errorf("Event %d: expected confidence %q, got %q", i, want, events[i].Confidence)
		}
	}

	if !reflect.DeepEqual(events[0].TemplateIDs, []string{"a", "b"}) {
		t.Errorf("Expected sorted template IDs, got %v", events[0].TemplateIDs)
	}
}

func TestConfidenceLabel(t *testing.T) {
	cfg := config.Default()

	cases := map[int]string{2: "low", 3: "medium", 4: "high", 7: "high"}
	for agreement, want := range cases {
		if got := ConfidenceLabel(agreement, cfg); got != want {
			t.Errorf("Agreement %d: expected %q, got %q", agreement, want, got)
		}
	}
}

func TestAggregateDeterministic(t *testing.T) {
	cfg := config.Default()

	lists := [][]Candidate{
		{cand("tpl-a", 10.0, 0.8), cand("tpl-a", 200.0, 0.55)},
		{cand("tpl-b", 10.5, 0.7), cand("tpl-b", 201.0, 0.6)},
		{cand("tpl-c", 11.0, 0.65)},
	}

	first := Events(Aggregate(lists, cfg, nil), cfg)
	for i := 0; i < 10; i++ {
		again := Events(Aggregate(lists, cfg, nil), cfg)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("Aggregate is not deterministic: %+v vs %+v", first, again)
		}
	}
}
