package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("storage: run not found")

// Store wraps SQLite-backed persistence of fit runs.
type Store struct {
	DB *sql.DB
}

// New opens (or creates) the database at path and ensures schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; serialise through a single connection.
	db.SetMaxOpenConns(1)
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fit_runs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            source TEXT NOT NULL,
            exposure_id INTEGER NOT NULL,
            n_reads INTEGER NOT NULL,
            n_rows INTEGER NOT NULL,
            n_cols INTEGER NOT NULL,
            workers INTEGER NOT NULL,
            pixels INTEGER NOT NULL DEFAULT 0,
            clean INTEGER NOT NULL DEFAULT 0,
            saturated INTEGER NOT NULL DEFAULT 0,
            jumps INTEGER NOT NULL DEFAULT 0,
            insufficient INTEGER NOT NULL DEFAULT 0,
            low_dof INTEGER NOT NULL DEFAULT 0,
            masked INTEGER NOT NULL DEFAULT 0,
            mean_rate REAL NOT NULL DEFAULT 0,
            duration_ns INTEGER NOT NULL DEFAULT 0,
            status TEXT NOT NULL,
            error_message TEXT,
            output_path TEXT,
            created_at INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_fit_runs_created_at ON fit_runs(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Run status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// RunRecord captures one fitted exposure.
type RunRecord struct {
	ID           int64         `json:"id"`
	Source       string        `json:"source"`
	ExposureID   int           `json:"exposure_id"`
	Reads        int           `json:"reads"`
	Rows         int           `json:"rows"`
	Cols         int           `json:"cols"`
	Workers      int           `json:"workers"`
	Pixels       int           `json:"pixels"`
	Clean        int           `json:"clean"`
	Saturated    int           `json:"saturated"`
	Jumps        int           `json:"jumps"`
	Insufficient int           `json:"insufficient"`
	LowDOF       int           `json:"low_dof"`
	Masked       int           `json:"masked"`
	MeanRate     float64       `json:"mean_rate"`
	Duration     time.Duration `json:"duration_ns"`
	Status       string        `json:"status"`
	Error        string        `json:"error,omitempty"`
	OutputPath   string        `json:"output_path,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// RecordRun inserts rec and returns its id. A zero CreatedAt is set to now.
func (s *Store) RecordRun(rec RunRecord) (int64, error) {
	if s == nil {
		return 0, nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.Status == "" {
		rec.Status = StatusOK
	}
	res, err := s.DB.Exec(`INSERT INTO fit_runs (source, exposure_id, n_reads, n_rows, n_cols, workers, pixels, clean, saturated, jumps, insufficient, low_dof, masked, mean_rate, duration_ns, status, error_message, output_path, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		rec.Source, rec.ExposureID, rec.Reads, rec.Rows, rec.Cols, rec.Workers,
		rec.Pixels, rec.Clean, rec.Saturated, rec.Jumps, rec.Insufficient, rec.LowDOF, rec.Masked,
		rec.MeanRate, int64(rec.Duration), rec.Status, rec.Error, rec.OutputPath, rec.CreatedAt.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("record run: %w", err)
	}
	return res.LastInsertId()
}

const runColumns = `id, source, exposure_id, n_reads, n_rows, n_cols, workers, pixels, clean, saturated, jumps, insufficient, low_dof, masked, mean_rate, duration_ns, status, error_message, output_path, created_at`

// RecentRuns returns the latest runs, newest first, up to limit.
func (s *Store) RecentRuns(limit int) ([]RunRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	if limit < 1 {
		limit = 50
	}
	rows, err := s.DB.Query(`SELECT `+runColumns+` FROM fit_runs ORDER BY created_at DESC, id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Run returns the run with the given id.
func (s *Store) Run(id int64) (RunRecord, error) {
	if s == nil {
		return RunRecord{}, errors.New("store not initialized")
	}
	row := s.DB.QueryRow(`SELECT `+runColumns+` FROM fit_runs WHERE id = ?;`, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var rec RunRecord
	var duration, created int64
	var errorMsg, outputPath sql.NullString
	if err := sc.Scan(&rec.ID, &rec.Source, &rec.ExposureID, &rec.Reads, &rec.Rows, &rec.Cols, &rec.Workers,
		&rec.Pixels, &rec.Clean, &rec.Saturated, &rec.Jumps, &rec.Insufficient, &rec.LowDOF, &rec.Masked,
		&rec.MeanRate, &duration, &rec.Status, &errorMsg, &outputPath, &created); err != nil {
		return RunRecord{}, err
	}
	rec.Duration = time.Duration(duration)
	rec.CreatedAt = time.Unix(0, created)
	rec.Error = errorMsg.String
	rec.OutputPath = outputPath.String
	return rec, nil
}
