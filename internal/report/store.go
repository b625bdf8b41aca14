// Package report persists completed detection runs and hands event lists
// to external consumers as JSON.
package report

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dingercity/chimefind/internal/detect"
	"github.com/dingercity/chimefind/pkg/utils"
)

const errStoreNil = "report store is nil"

// Run is one completed detection pass over a source recording.
type Run struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	Source     string `gorm:"index:idx_run_source"`
	EventCount int
	DurationMs int
	CreatedAt  time.Time
}

// EventRecord is one detected event belonging to a run.
type EventRecord struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	RunID       string `gorm:"type:varchar(36);index:idx_event_run"`
	TimeSec     float64
	Agreement   int
	Confidence  string
	TemplateIDs string // comma separated
	ScoreSum    float64
}

// Store records run results in SQLite.
type Store struct {
	DB *gorm.DB
	db *sql.DB
}

// OpenStore opens (or creates) the report database at dbPath.
func OpenStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := utils.MakeDir(dir); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	db, err := gorm.Open(sqlite.Open(dbPath+"?_foreign_keys=on"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	if err := db.AutoMigrate(&Run{}, &EventRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &Store{DB: db, db: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRun stores a completed run and its events in one transaction and
// returns the run ID. A run with zero events is a valid, recordable
// outcome.
func (s *Store) SaveRun(source string, events []detect.Event, elapsed time.Duration) (string, error) {
	if s == nil || s.DB == nil {
		return "", errors.New(errStoreNil)
	}

	run := Run{
		ID:         uuid.NewString(),
		Source:     source,
		EventCount: len(events),
		DurationMs: int(elapsed.Milliseconds()),
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return err
		}
		for _, ev := range events {
			rec := EventRecord{
				RunID:       run.ID,
				TimeSec:     ev.Time,
				Agreement:   ev.Agreement,
				Confidence:  ev.Confidence,
				TemplateIDs: strings.Join(ev.TemplateIDs, ","),
				ScoreSum:    ev.ScoreSum,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("saving run: %w", err)
	}
	return run.ID, nil
}

// ListRuns returns stored runs, newest first.
func (s *Store) ListRuns() ([]Run, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New(errStoreNil)
	}
	var runs []Run
	if err := s.DB.Order("created_at desc, id").Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// EventsForRun returns a run's events ordered by timestamp.
func (s *Store) EventsForRun(runID string) ([]EventRecord, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New(errStoreNil)
	}
	var recs []EventRecord
	if err := s.DB.Where("run_id = ?", runID).Order("time_sec").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// WriteJSON emits the event list for the external reporting collaborator.
func WriteJSON(w io.Writer, source string, events []detect.Event) error {
	payload := struct {
		Source string         `json:"source"`
		Events []detect.Event `json:"events"`
	}{Source: source, Events: events}
	if payload.Events == nil {
		payload.Events = []detect.Event{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
