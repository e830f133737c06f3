// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history persists run summaries in a local SQLite database so past
// bundles can be reviewed later.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/gerberpack/pkg/types"
)

// ErrNotFound is returned when no run matches an ID or ID prefix.
var ErrNotFound = errors.New("run not found")

// ErrAmbiguous is returned when an ID prefix matches more than one run.
var ErrAmbiguous = errors.New("run ID prefix is ambiguous")

const timeLayout = time.RFC3339Nano

// Store manages the run history database.
type Store struct {
	db *sql.DB
}

// RunRecord is one row of the run listing.
type RunRecord struct {
	ID         string         `json:"id" yaml:"id"`
	StartedAt  time.Time      `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time      `json:"finished_at" yaml:"finished_at"`
	State      types.RunState `json:"state" yaml:"state"`
	Bundle     string         `json:"bundle,omitempty" yaml:"bundle,omitempty"`
	Entries    int            `json:"entries" yaml:"entries"`
	Matched    int            `json:"matched" yaml:"matched"`
	Skipped    int            `json:"skipped" yaml:"skipped"`
	Failed     int            `json:"failed" yaml:"failed"`
	Error      string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewStore opens or creates the history database at path, creating parent
// directories and the schema as needed.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			state TEXT NOT NULL,
			sources TEXT,
			warnings TEXT,
			bundle TEXT,
			entries INTEGER,
			matched INTEGER,
			skipped INTEGER,
			failed INTEGER,
			error TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS rule_outcomes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			rule TEXT NOT NULL,
			target TEXT NOT NULL,
			status TEXT NOT NULL,
			source TEXT,
			matches TEXT,
			header_injected INTEGER NOT NULL DEFAULT 0,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_run_id ON rule_outcomes(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record stores summary and its rule outcomes, replacing any earlier record
// with the same run ID.
func (s *Store) Record(ctx context.Context, summary types.RunSummary) error {
	if summary.ID == "" {
		return errors.New("recording run: empty run ID")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, summary.ID); err != nil {
		return fmt.Errorf("deleting previous run: %w", err)
	}

	sourcesJSON, _ := json.Marshal(summary.Sources)
	warningsJSON, _ := json.Marshal(summary.Warnings)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, state, sources, warnings, bundle, entries, matched, skipped, failed, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.ID,
		summary.StartedAt.UTC().Format(timeLayout),
		formatTime(summary.FinishedAt),
		string(summary.State),
		string(sourcesJSON),
		string(warningsJSON),
		summary.Bundle,
		summary.Entries,
		summary.Matched(),
		summary.Skipped(),
		summary.Failed(),
		summary.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO rule_outcomes (run_id, position, rule, target, status, source, matches, header_injected, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, o := range summary.Outcomes {
		matchesJSON, _ := json.Marshal(o.Matches)
		_, err := stmt.ExecContext(ctx,
			summary.ID, i, o.Rule, o.Target, string(o.Status), o.Source,
			string(matchesJSON), o.HeaderInjected, o.Error,
		)
		if err != nil {
			return fmt.Errorf("inserting outcome %s: %w", o.Target, err)
		}
	}

	return tx.Commit()
}

// List returns the most recent runs first. A limit of zero or less returns
// every run.
func (s *Store) List(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, state, bundle, entries, matched, skipped, failed, error
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var (
			r                 RunRecord
			started, finished sql.NullString
			state             string
			bundle, errText   sql.NullString
		)
		if err := rows.Scan(&r.ID, &started, &finished, &state, &bundle,
			&r.Entries, &r.Matched, &r.Skipped, &r.Failed, &errText); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		r.State = types.RunState(state)
		r.Bundle = bundle.String
		r.Error = errText.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// Get returns the full summary for the run whose ID equals or starts with
// id.
func (s *Store) Get(ctx context.Context, id string) (types.RunSummary, error) {
	fullID, err := s.resolveID(ctx, id)
	if err != nil {
		return types.RunSummary{}, err
	}

	var (
		sum                       types.RunSummary
		started, finished         sql.NullString
		state                     string
		sourcesJSON, warningsJSON sql.NullString
		bundle, errText           sql.NullString
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, state, sources, warnings, bundle, entries, error
		 FROM runs WHERE id = ?`, fullID,
	).Scan(&sum.ID, &started, &finished, &state, &sourcesJSON, &warningsJSON, &bundle, &sum.Entries, &errText)
	if err != nil {
		return types.RunSummary{}, fmt.Errorf("reading run %s: %w", fullID, err)
	}
	sum.StartedAt = parseTime(started)
	sum.FinishedAt = parseTime(finished)
	sum.State = types.RunState(state)
	sum.Bundle = bundle.String
	sum.Error = errText.String
	if sourcesJSON.Valid {
		_ = json.Unmarshal([]byte(sourcesJSON.String), &sum.Sources)
	}
	if warningsJSON.Valid {
		_ = json.Unmarshal([]byte(warningsJSON.String), &sum.Warnings)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT rule, target, status, source, matches, header_injected, error
		 FROM rule_outcomes WHERE run_id = ? ORDER BY position`, fullID)
	if err != nil {
		return types.RunSummary{}, fmt.Errorf("querying outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			o                     types.RuleOutcome
			status                string
			source, matches, oErr sql.NullString
		)
		if err := rows.Scan(&o.Rule, &o.Target, &status, &source, &matches, &o.HeaderInjected, &oErr); err != nil {
			return types.RunSummary{}, fmt.Errorf("scanning outcome: %w", err)
		}
		o.Status = types.OutcomeStatus(status)
		o.Source = source.String
		o.Error = oErr.String
		if matches.Valid {
			_ = json.Unmarshal([]byte(matches.String), &o.Matches)
		}
		sum.Outcomes = append(sum.Outcomes, o)
	}
	return sum, rows.Err()
}

func (s *Store) resolveID(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM runs WHERE substr(id, 1, length(?)) = ? LIMIT 2`, id, id)
	if err != nil {
		return "", fmt.Errorf("resolving run ID: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var found string
		if err := rows.Scan(&found); err != nil {
			return "", fmt.Errorf("resolving run ID: %w", err)
		}
		ids = append(ids, found)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("resolving run ID: %w", err)
	}

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return ids[0], nil
	default:
		for _, found := range ids {
			if found == id {
				return found, nil
			}
		}
		return "", fmt.Errorf("%w: %s", ErrAmbiguous, id)
	}
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
