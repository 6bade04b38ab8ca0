// Package journal keeps a SQLite record of every per-call stage verdict.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Stages.
const (
	StageFetch       = "fetch"
	StageEligibility = "eligibility"
	StageDownload    = "download"
	StageTranscribe  = "transcribe"
	StageAnalyze     = "analyze"
	StageScore       = "score"
	StageMessage     = "message"
)

// Event is one stage verdict for one call.
type Event struct {
	RunID           string
	BatchKey        string
	CommunicationID int64
	Stage           string
	Verdict         string
	Detail          string
	CreatedAt       time.Time
}

// Count is the number of events with a given stage and verdict.
type Count struct {
	Stage   string
	Verdict string
	Count   int
}

type Journal struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	j := &Journal{db: db, now: time.Now}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return j, nil
}

func (j *Journal) Close() error { return j.db.Close() }

func (j *Journal) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS call_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			batch_key TEXT NOT NULL,
			communication_id INTEGER NOT NULL,
			stage TEXT NOT NULL,
			verdict TEXT NOT NULL,
			detail TEXT,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_call_events_batch ON call_events(batch_key, stage);`,
	}
	for _, stmt := range stmts {
		if _, err := j.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (j *Journal) Record(ctx context.Context, e Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = j.now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO call_events (run_id, batch_key, communication_id, stage, verdict, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.BatchKey, e.CommunicationID, e.Stage, e.Verdict, e.Detail, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("record %s event: %w", e.Stage, err)
	}
	return nil
}

// BatchSummary counts events of a batch by stage and verdict.
func (j *Journal) BatchSummary(ctx context.Context, batchKey string) ([]Count, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT stage, verdict, COUNT(*) FROM call_events
		 WHERE batch_key = ?
		 GROUP BY stage, verdict
		 ORDER BY stage, verdict`, batchKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Count
	for rows.Next() {
		var c Count
		if err := rows.Scan(&c.Stage, &c.Verdict, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CallEvents returns every event for one call, oldest first.
func (j *Journal) CallEvents(ctx context.Context, communicationID int64) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, batch_key, communication_id, stage, verdict, COALESCE(detail, ''), created_at
		 FROM call_events WHERE communication_id = ? ORDER BY id`, communicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.RunID, &e.BatchKey, &e.CommunicationID, &e.Stage, &e.Verdict, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
