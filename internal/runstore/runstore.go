package runstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/raysh454/casprobe/internal/logging"
	"github.com/raysh454/casprobe/internal/scenario"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema.sql
var schemaFS embed.FS

var ErrRunNotFound = errors.New("run not found")

// Store keeps the history of scenario runs in SQLite. It implements
// scenario.Recorder.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

var _ scenario.Recorder = (*Store)(nil)

// New returns a Store on db and runs the schema.
func New(db *sql.DB, logger logging.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	return &Store{db: db, logger: logger.With(logging.Field{Key: "component", Value: "runstore"})}, nil
}

// Open opens (creating if needed) the SQLite file at path.
func Open(path string, logger logging.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening run database: %w", err)
	}
	db.SetMaxOpenConns(1)
	s, err := New(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores res and its steps in one transaction.
func (s *Store) Record(ctx context.Context, res *scenario.Result) error {
	if res == nil || res.RunID == "" {
		return fmt.Errorf("result without run id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, scenario, status, error, started_at, ended_at, page_html)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, res.RunID, res.Scenario, string(res.Status), res.Error,
		res.StartedAt.UnixMilli(), res.EndedAt.UnixMilli(), res.PageHTML); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, st := range res.Steps {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO steps (run_id, position, name, status, error, started_at, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, res.RunID, i, st.Name, string(st.Status), st.Error,
			st.StartedAt.UnixMilli(), st.Duration.Milliseconds()); err != nil {
			return fmt.Errorf("insert step %s: %w", st.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("run recorded",
		logging.Field{Key: "run_id", Value: res.RunID},
		logging.Field{Key: "steps", Value: len(res.Steps)})
	return nil
}

// Get loads one run with its steps. PageHTML is left empty; use Artifact.
func (s *Store) Get(ctx context.Context, runID string) (*scenario.Result, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, scenario, status, error, started_at, ended_at
		FROM runs WHERE id = ?
	`, runID)
	res, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	if err := s.loadSteps(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// List returns the most recent runs, newest first. scenarioName filters when non-empty.
func (s *Store) List(ctx context.Context, scenarioName string, limit int) ([]*scenario.Result, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, scenario, status, error, started_at, ended_at FROM runs`
	args := []any{}
	if scenarioName != "" {
		query += ` WHERE scenario = ?`
		args = append(args, scenarioName)
	}
	query += ` ORDER BY started_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*scenario.Result
	for rows.Next() {
		res, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	for _, res := range out {
		if err := s.loadSteps(ctx, res); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Artifact returns the page HTML captured for a failed run.
func (s *Store) Artifact(ctx context.Context, runID string) (string, error) {
	var html string
	err := s.db.QueryRowContext(ctx, `SELECT page_html FROM runs WHERE id = ?`, runID).Scan(&html)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRunNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load artifact %s: %w", runID, err)
	}
	return html, nil
}

// Prune deletes runs that started before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ms := cutoff.UnixMilli()
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM steps WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)
	`, ms); err != nil {
		return 0, fmt.Errorf("prune steps: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, ms)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*scenario.Result, error) {
	var (
		res              scenario.Result
		status           string
		started, stopped int64
	)
	if err := sc.Scan(&res.RunID, &res.Scenario, &status, &res.Error, &started, &stopped); err != nil {
		return nil, err
	}
	res.Status = scenario.Status(status)
	res.StartedAt = time.UnixMilli(started).UTC()
	res.EndedAt = time.UnixMilli(stopped).UTC()
	return &res, nil
}

func (s *Store) loadSteps(ctx context.Context, res *scenario.Result) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, status, error, started_at, duration_ms
		FROM steps WHERE run_id = ? ORDER BY position
	`, res.RunID)
	if err != nil {
		return fmt.Errorf("load steps of %s: %w", res.RunID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			st         scenario.StepResult
			status     string
			started    int64
			durationMS int64
		)
		if err := rows.Scan(&st.Name, &status, &st.Error, &started, &durationMS); err != nil {
			return fmt.Errorf("scan step: %w", err)
		}
		st.Status = scenario.Status(status)
		st.StartedAt = time.UnixMilli(started).UTC()
		st.Duration = time.Duration(durationMS) * time.Millisecond
		res.Steps = append(res.Steps, st)
	}
	return rows.Err()
}
