package report

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/dingercity/chimefind/internal/detect"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "runs.sqlite3"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEvents() []detect.Event {
	return []detect.Event{
		{Time: 314.2, Agreement: 3, Confidence: "medium", TemplateIDs: []string{"a", "b", "c"}, ScoreSum: 1.9},
		{Time: 1201.7, Agreement: 2, Confidence: "low", TemplateIDs: []string{"a", "c"}, ScoreSum: 1.2},
	}
}

func TestSaveAndListRuns(t *testing.T) {
	s := openTestStore(t)

	runID, err := s.SaveRun("soundtrack.wav", sampleEvents(), 42*time.Second)
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if runID == "" {
		t.Fatal("Expected a non-empty run ID")
	}

	runs, err := s.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}
	if runs[0].Source != "soundtrack.wav" {
		t.Errorf("Expected source recorded, got %q", runs[0].Source)
	}
	if runs[0].EventCount != 2 {
		t.Errorf("Expected event count 2, got %d", runs[0].EventCount)
	}
	if runs[0].DurationMs != 42000 {
		t.Errorf("Expected duration 42000ms, got %d", runs[0].DurationMs)
	}
}

func TestEventsForRun(t *testing.T) {
	s := openTestStore(t)

	runID, err := s.SaveRun("soundtrack.wav", sampleEvents(), time.Second)
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	recs, err := s.EventsForRun(runID)
	if err != nil {
		t.Fatalf("EventsForRun failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Expected 2 event records, got %d", len(recs))
	}
	if recs[0].TimeSec > recs[1].TimeSec {
		t.Error("Events should come back in timestamp order")
	}
	if recs[0].TemplateIDs != "a,b,c" {
		t.Errorf("Expected joined template IDs, got %q", recs[0].TemplateIDs)
	}
	if recs[0].Confidence != "medium" {
		t.Errorf("Expected confidence preserved, got %q", recs[0].Confidence)
	}
}

func TestSaveRunWithNoEvents(t *testing.T) {
	s := openTestStore(t)

	runID, err := s.SaveRun("quiet.wav", nil, time.Second)
	if err != nil {
		t.Fatalf("SaveRun failed for empty event list: %v", err)
	}

	recs, err := s.EventsForRun(runID)
	if err != nil {
		t.Fatalf("EventsForRun failed: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("Expected no event records, got %d", len(recs))
	}

	runs, _ := s.ListRuns()
	if len(runs) != 1 || runs[0].EventCount != 0 {
		t.Error("A zero-event run is still a valid, recordable outcome")
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, "soundtrack.wav", sampleEvents()); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var decoded struct {
		Source string         `json:"source"`
		Events []detect.Event `json:"events"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if decoded.Source != "soundtrack.wav" {
		t.Errorf("Expected source in payload, got %q", decoded.Source)
	}
	if len(decoded.Events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(decoded.Events))
	}
	if decoded.Events[0].Time != 314.2 || decoded.Events[0].Confidence != "medium" {
		t.Errorf("Event fields lost in encoding: %+v", decoded.Events[0])
	}
}

func TestWriteJSONEmptyEvents(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, "quiet.wav", nil); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"events": []`)) {
		t.Errorf("Expected an empty array, not null: %s", buf.String())
	}
}
