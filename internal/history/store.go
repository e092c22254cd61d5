// SPDX-License-Identifier: MIT

// Package history persists a record of every refresh run.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/epgmerge/internal/log"
	"github.com/ManuGH/epgmerge/internal/persistence/sqlite"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	started_at     INTEGER NOT NULL,
	finished_at    INTEGER NOT NULL,
	outcome        TEXT NOT NULL,
	channels       INTEGER NOT NULL DEFAULT 0,
	programmes     INTEGER NOT NULL DEFAULT 0,
	sources_ok     INTEGER NOT NULL DEFAULT 0,
	sources_failed INTEGER NOT NULL DEFAULT 0,
	error          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// Run is one finished refresh.
type Run struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
	Outcome       string    `json:"outcome"`
	Channels      int       `json:"channels"`
	Programmes    int       `json:"programmes"`
	SourcesOK     int       `json:"sourcesOk"`
	SourcesFailed int       `json:"sourcesFailed"`
	Error         string    `json:"error,omitempty"`
}

// Store records runs. Implementations must be safe for concurrent use.
type Store interface {
	Record(ctx context.Context, run Run) error
	List(ctx context.Context, limit int) ([]Run, error)
	Close() error
}

// ErrDisabled is returned by the no-op store's List.
var ErrDisabled = errors.New("run history disabled")

// SQLiteStore keeps runs in a SQLite database and prunes all but the newest
// retain rows after every insert.
type SQLiteStore struct {
	db     *sql.DB
	retain int
	logger zerolog.Logger
}

// OpenSQLite opens or creates the database at path. An existing file is
// integrity checked first; a damaged one is reported, not repaired.
func OpenSQLite(ctx context.Context, path string, retain int) (*SQLiteStore, error) {
	logger := xglog.WithComponent("history")

	if issues, err := sqlite.VerifyIntegrity(ctx, path, "quick"); err == nil && len(issues) > 0 {
		logger.Warn().
			Str(xglog.FieldPath, path).
			Strs("issues", issues).
			Msg("run history database failed integrity check")
	}

	db, err := sqlite.Open(ctx, path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(ctx, db, schemaVersion, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: %w", err)
	}
	return &SQLiteStore{db: db, retain: retain, logger: logger}, nil
}

// Record inserts run and prunes old rows.
func (s *SQLiteStore) Record(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, outcome, channels, programmes, sources_ok, sources_failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(), run.Outcome,
		run.Channels, run.Programmes, run.SourcesOK, run.SourcesFailed, run.Error,
	)
	if err != nil {
		return fmt.Errorf("history: insert run: %w", err)
	}
	if s.retain > 0 {
		_, err = s.db.ExecContext(ctx, `
			DELETE FROM runs WHERE id NOT IN (
				SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
			)`, s.retain)
		if err != nil {
			s.logger.Warn().Err(err).Msg("pruning run history failed")
		}
	}
	return nil
}

// List returns up to limit runs, newest first. A non-positive limit means 20.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, outcome, channels, programmes, sources_ok, sources_failed, error
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished int64
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Outcome, &r.Channels, &r.Programmes,
			&r.SourcesOK, &r.SourcesFailed, &r.Error); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started).UTC()
		r.FinishedAt = time.UnixMilli(finished).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

type noopStore struct{}

// NewNoopStore returns a store that keeps nothing.
func NewNoopStore() Store { return noopStore{} }

func (noopStore) Record(context.Context, Run) error         { return nil }
func (noopStore) List(context.Context, int) ([]Run, error) { return nil, ErrDisabled }
func (noopStore) Close() error                             { return nil }
