package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/streampanel/resolvd/internal/model"

	_ "modernc.org/sqlite"
)

const createTables = `
CREATE TABLE IF NOT EXISTS program_state (
    id           INTEGER PRIMARY KEY CHECK (id = 1),
    path         TEXT NOT NULL,
    source_url   TEXT,
    version      TEXT NOT NULL,
    installed_at DATETIME
);
CREATE TABLE IF NOT EXISTS schedule_state (
    id       INTEGER PRIMARY KEY CHECK (id = 1),
    interval TEXT NOT NULL,
    active   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
    id           TEXT PRIMARY KEY,
    fingerprint  TEXT NOT NULL,
    channel_name TEXT,
    status       TEXT NOT NULL,
    error        TEXT,
    duration_ms  INTEGER NOT NULL,
    created_at   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createTables); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveProgramState upserts the single program-state row.
func (s *SQLiteStore) SaveProgramState(ctx context.Context, ps *model.ProgramState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO program_state (id, path, source_url, version, installed_at)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     path = excluded.path,
		     source_url = excluded.source_url,
		     version = excluded.version,
		     installed_at = excluded.installed_at`,
		ps.Path, ps.SourceURL, ps.Version, ps.InstalledAt,
	)
	if err != nil {
		return fmt.Errorf("save program state: %w", err)
	}
	return nil
}

// GetProgramState returns the program-state row, or ErrNotFound if no
// program has ever been installed.
func (s *SQLiteStore) GetProgramState(ctx context.Context) (*model.ProgramState, error) {
	ps := &model.ProgramState{}
	var sourceURL sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT path, source_url, version, installed_at FROM program_state WHERE id = 1",
	).Scan(&ps.Path, &sourceURL, &ps.Version, &ps.InstalledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get program state: %w", err)
	}
	ps.SourceURL = sourceURL.String
	return ps, nil
}

// SaveScheduleState upserts the single schedule-state row.
func (s *SQLiteStore) SaveScheduleState(ctx context.Context, ss *model.ScheduleState) error {
	active := 0
	if ss.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedule_state (id, interval, active) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET interval = excluded.interval, active = excluded.active`,
		ss.HumanInterval, active,
	)
	if err != nil {
		return fmt.Errorf("save schedule state: %w", err)
	}
	return nil
}

// GetScheduleState returns the schedule-state row, or ErrNotFound if no
// schedule was ever configured.
func (s *SQLiteStore) GetScheduleState(ctx context.Context) (*model.ScheduleState, error) {
	ss := &model.ScheduleState{}
	var active int
	err := s.db.QueryRowContext(ctx,
		"SELECT interval, active FROM schedule_state WHERE id = 1",
	).Scan(&ss.HumanInterval, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule state: %w", err)
	}
	ss.Active = active != 0
	return ss, nil
}

// InsertRun inserts a resolution run record.
func (s *SQLiteStore) InsertRun(ctx context.Context, r *model.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, fingerprint, channel_name, status, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Fingerprint, r.DisplayName, r.Status, r.Error, r.DurationMS, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// ListRuns returns a paginated list of runs ordered by created_at DESC,
// along with the total count of all runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, fingerprint, channel_name, status, error, duration_ms, created_at
		 FROM runs ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		r := &model.Run{}
		var channel, errText sql.NullString
		if err := rows.Scan(&r.ID, &r.Fingerprint, &channel, &r.Status, &errText, &r.DurationMS, &r.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		r.DisplayName = channel.String
		r.Error = errText.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, total, nil
}

// GetRunStats aggregates run counts by status and the average duration of
// runs that actually invoked the program (cache hits are excluded from the
// average; their duration is not meaningful).
func (s *SQLiteStore) GetRunStats(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{CountByStatus: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM runs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count runs by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan run count: %w", err)
		}
		stats.CountByStatus[status] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run counts: %w", err)
	}

	var avg sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		"SELECT AVG(duration_ms) FROM runs WHERE status != ?", model.RunCacheHit,
	).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("average run duration: %w", err)
	}
	stats.AvgDurationMS = avg.Float64

	return stats, nil
}

// PruneRuns deletes all but the most recent keep runs.
func (s *SQLiteStore) PruneRuns(ctx context.Context, keep int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id NOT IN (
		     SELECT id FROM runs ORDER BY created_at DESC, id DESC LIMIT ?
		 )`, keep,
	)
	if err != nil {
		return fmt.Errorf("prune runs: %w", err)
	}
	return nil
}
