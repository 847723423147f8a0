// Package store persists simulation runs in SQLite: one row per run, the
// periodic agent samples and every mode change.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/trafficsim/internal/sim"
	"github.com/banshee-data/trafficsim/internal/traffic"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// Store is a run database.
type Store struct {
	*sql.DB
	path string
}

// Open opens or creates the database at path and migrates it to the latest
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers; one connection keeps pragmas and
	// in-memory databases consistent.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}

	s := &Store{DB: db, path: path}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database path given to Open.
func (s *Store) Path() string { return s.path }

// Run is one simulation session.
type Run struct {
	ID         string          `json:"run_id"`
	Track      string          `json:"track"`
	Agents     int             `json:"agents"`
	Config     json.RawMessage `json:"config"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Ticks      int64           `json:"ticks"`
}

// StartRun inserts a new run. cfg is stored as JSON.
func (s *Store) StartRun(ctx context.Context, track string, agents int, cfg any) (*Run, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run config: %w", err)
	}
	run := &Run{
		ID:        uuid.NewString(),
		Track:     track,
		Agents:    agents,
		Config:    raw,
		StartedAt: time.Now().UTC(),
	}
	_, err = s.ExecContext(ctx,
		`INSERT INTO runs (run_id, track, agents, config_json, started_unix_nanos) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Track, run.Agents, string(raw), run.StartedAt.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	return run, nil
}

// FinishRun marks a run finished after ticks steps.
func (s *Store) FinishRun(ctx context.Context, id string, ticks int64) error {
	res, err := s.ExecContext(ctx,
		`UPDATE runs SET finished_unix_nanos = ?, ticks = ? WHERE run_id = ?`,
		time.Now().UTC().UnixNano(), ticks, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

const runColumns = `run_id, track, agents, config_json, started_unix_nanos, finished_unix_nanos, ticks`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run      Run
		cfg      string
		started  int64
		finished sql.NullInt64
	)
	if err := row.Scan(&run.ID, &run.Track, &run.Agents, &cfg, &started, &finished, &run.Ticks); err != nil {
		return nil, err
	}
	run.Config = json.RawMessage(cfg)
	run.StartedAt = time.Unix(0, started).UTC()
	if finished.Valid {
		t := time.Unix(0, finished.Int64).UTC()
		run.FinishedAt = &t
	}
	return &run, nil
}

// GetRun loads a single run.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ListRuns returns the most recent runs first. A non-positive limit returns
// all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Recorder returns a sim.Recorder writing into run id.
func (s *Store) Recorder(runID string) *RunRecorder {
	return &RunRecorder{store: s, runID: runID}
}

// RunRecorder writes world output for one run.
type RunRecorder struct {
	store *Store
	runID string
}

var _ sim.Recorder = (*RunRecorder)(nil)

// RecordSamples inserts a batch of samples in one transaction.
func (r *RunRecorder) RecordSamples(ctx context.Context, samples []sim.Sample) error {
	tx, err := r.store.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO agent_samples (
			run_id, tick, agent_id, lane, segment, t, completion, speed, speed_parameter, mode, x, z
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, smp := range samples {
		if _, err := stmt.ExecContext(ctx,
			r.runID, smp.Tick, smp.AgentID, smp.Lane, smp.Segment, smp.T, smp.Completion,
			smp.Speed, smp.SpeedParameter, smp.Mode.String(), smp.X, smp.Z,
		); err != nil {
			return fmt.Errorf("failed to insert sample for %s at tick %d: %w", smp.AgentID, smp.Tick, err)
		}
	}
	return tx.Commit()
}

// RecordModeChange inserts one mode transition.
func (r *RunRecorder) RecordModeChange(ctx context.Context, c sim.ModeChange) error {
	_, err := r.store.ExecContext(ctx,
		`INSERT INTO mode_changes (run_id, tick, agent_id, from_mode, to_mode, lane) VALUES (?, ?, ?, ?, ?, ?)`,
		r.runID, c.Tick, c.AgentID, c.From.String(), c.To.String(), c.Lane,
	)
	if err != nil {
		return fmt.Errorf("failed to insert mode change: %w", err)
	}
	return nil
}

// Samples returns the samples of a run in tick order. An empty agentID
// returns every agent.
func (s *Store) Samples(ctx context.Context, runID, agentID string) ([]sim.Sample, error) {
	query := `SELECT tick, agent_id, lane, segment, t, completion, speed, speed_parameter, mode, x, z
		FROM agent_samples WHERE run_id = ?`
	args := []any{runID}
	if agentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY tick, agent_id`

	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []sim.Sample
	for rows.Next() {
		var (
			smp  sim.Sample
			mode string
		)
		if err := rows.Scan(&smp.Tick, &smp.AgentID, &smp.Lane, &smp.Segment, &smp.T, &smp.Completion,
			&smp.Speed, &smp.SpeedParameter, &mode, &smp.X, &smp.Z); err != nil {
			return nil, err
		}
		if smp.Mode, err = parseMode(mode); err != nil {
			return nil, err
		}
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

// ModeChanges returns the mode transitions of a run in tick order.
func (s *Store) ModeChanges(ctx context.Context, runID string) ([]sim.ModeChange, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT tick, agent_id, from_mode, to_mode, lane FROM mode_changes WHERE run_id = ? ORDER BY tick, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []sim.ModeChange
	for rows.Next() {
		var (
			c        sim.ModeChange
			from, to string
		)
		if err := rows.Scan(&c.Tick, &c.AgentID, &from, &to, &c.Lane); err != nil {
			return nil, err
		}
		if c.From, err = parseMode(from); err != nil {
			return nil, err
		}
		if c.To, err = parseMode(to); err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func parseMode(s string) (traffic.ModeType, error) {
	var m traffic.ModeType
	if err := m.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return m, nil
}
