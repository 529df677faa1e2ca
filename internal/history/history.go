package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

var ErrClosed = errors.New("history store closed")

const timeLayout = time.RFC3339Nano

// Run is one recorded breath hold.
type Run struct {
	ID         string
	SetID      string
	Session    int
	Held       time.Duration
	EmptyLungs bool
	RecordedAt time.Time
}

// Stats summarises every recorded hold.
type Stats struct {
	Count     int
	Best      time.Duration
	Mean      time.Duration
	MeanFull  time.Duration
	MeanEmpty time.Duration
}

// Store persists recorded holds in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(ctx context.Context, dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS session_runs (
  id TEXT PRIMARY KEY,
  set_id TEXT NOT NULL,
  session INTEGER NOT NULL,
  held_s REAL NOT NULL,
  empty_lungs INTEGER NOT NULL,
  recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS session_runs_recorded ON session_runs(recorded_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create session_runs table: %w", err)
	}
	return nil
}

// NewSetID names a session set; every hold of the set shares it.
func NewSetID() string { return uuid.NewString() }

// Record stores r, filling in the ID and timestamp when missing.
func (s *Store) Record(ctx context.Context, r Run) (Run, error) {
	if s.db == nil {
		return Run{}, ErrClosed
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = s.now()
	}
	const stmt = `
INSERT INTO session_runs (id, set_id, session, held_s, empty_lungs, recorded_at)
VALUES (?, ?, ?, ?, ?, ?);
`
	_, err := s.db.ExecContext(ctx, stmt,
		r.ID,
		r.SetID,
		r.Session,
		r.Held.Seconds(),
		r.EmptyLungs,
		r.RecordedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return r, nil
}

// List returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	q := `SELECT id, set_id, session, held_s, empty_lungs, recorded_at FROM session_runs ORDER BY recorded_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Set returns the holds of one session set in session order.
func (s *Store) Set(ctx context.Context, setID string) ([]Run, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, set_id, session, held_s, empty_lungs, recorded_at FROM session_runs WHERE set_id = ? ORDER BY session`, setID)
	if err != nil {
		return nil, fmt.Errorf("list set %s: %w", setID, err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	if s.db == nil {
		return Stats{}, ErrClosed
	}
	const q = `
SELECT
  COUNT(*),
  COALESCE(MAX(held_s), 0),
  COALESCE(AVG(held_s), 0),
  COALESCE(AVG(CASE WHEN empty_lungs = 0 THEN held_s END), 0),
  COALESCE(AVG(CASE WHEN empty_lungs = 1 THEN held_s END), 0)
FROM session_runs;
`
	var (
		st                            Stats
		best, mean, meanFull, meanEmp float64
	)
	if err := s.db.QueryRowContext(ctx, q).Scan(&st.Count, &best, &mean, &meanFull, &meanEmp); err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	st.Best = secs(best)
	st.Mean = secs(mean)
	st.MeanFull = secs(meanFull)
	st.MeanEmpty = secs(meanEmp)
	return st, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return ErrClosed
	}
	err := s.db.Close()
	s.db = nil
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r     Run
		held  float64
		empty int
		at    string
	)
	if err := sc.Scan(&r.ID, &r.SetID, &r.Session, &held, &empty, &at); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	t, err := time.Parse(timeLayout, at)
	if err != nil {
		return Run{}, fmt.Errorf("run %s recorded_at: %w", r.ID, err)
	}
	r.Held = secs(held)
	r.EmptyLungs = empty != 0
	r.RecordedAt = t
	return r, nil
}

func secs(s float64) time.Duration {
	return time.Duration(s * float64(time.Second)).Round(time.Millisecond)
}
