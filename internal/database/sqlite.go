package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"compsynth/internal/database/migrations"
	"compsynth/internal/model"
	"compsynth/internal/synth"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements synth.Ledger using SQLite.
type SQLiteDatabase struct {
	db    *sql.DB
	path  string
	clock synth.Clock
}

// NewSQLiteDatabase opens the ledger at path and migrates it to the latest schema.
// path can be a file path or ":memory:" for an in-memory ledger.
func NewSQLiteDatabase(path string, clock synth.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating ledger: %w", err)
	}

	return NewSQLiteDatabaseFromDB(db, path, clock), nil
}

// NewSQLiteDatabaseFromDB wraps an existing, already migrated connection.
// A nil clock falls back to synth.RealClock.
func NewSQLiteDatabaseFromDB(db *sql.DB, path string, clock synth.Clock) *SQLiteDatabase {
	if clock == nil {
		clock = synth.RealClock{}
	}
	return &SQLiteDatabase{db: db, path: path, clock: clock}
}

// OpenConnection opens and configures a SQLite connection with appropriate PRAGMAs.
// Exported for tests that need a properly configured connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The ledger sees one writer per process; a single connection also keeps
	// ":memory:" databases from splitting across pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Run operations

const runColumns = "id, uuid, operation, parameters, started_at, finished_at, status"

func (s *SQLiteDatabase) CreateRun(uuid, operation, parameters string) (*model.Run, error) {
	run := &model.Run{
		UUID:       uuid,
		Operation:  operation,
		Parameters: parameters,
		StartedAt:  s.clock.Now().UTC(),
		Status:     "running",
	}

	res, err := s.db.ExecContext(context.Background(),
		"INSERT INTO runs (uuid, operation, parameters, started_at, status) VALUES (?, ?, ?, ?, ?)",
		run.UUID, run.Operation, run.Parameters, run.StartedAt, run.Status)
	if err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}

	run.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading run id: %w", err)
	}
	return run, nil
}

func (s *SQLiteDatabase) FinishRun(id int64, status string) error {
	res, err := s.db.ExecContext(context.Background(),
		"UPDATE runs SET finished_at = ?, status = ? WHERE id = ?",
		s.clock.Now().UTC(), status, id)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finishing run: run %d not found", id)
	}
	return nil
}

func (s *SQLiteDatabase) FindRunByUUID(uuid string) (*model.Run, error) {
	row := s.db.QueryRowContext(context.Background(),
		"SELECT "+runColumns+" FROM runs WHERE uuid = ?", uuid)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding run by uuid: %w", err)
	}
	return run, nil
}

func (s *SQLiteDatabase) ListRuns(limit int) ([]*model.Run, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT "+runColumns+" FROM runs ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

func (s *SQLiteDatabase) MaxRunID() (int64, error) {
	var id int64
	err := s.db.QueryRowContext(context.Background(), "SELECT COALESCE(MAX(id), 0) FROM runs").Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("getting max run ID: %w", err)
	}
	return id, nil
}

// Dataset operations

const datasetColumns = `id, run_id, perc_compromised, prob_compromised, seed, corpus_path,
	user_list_path, output_path, users, written, injected, omitted, encrypted, archive_key, created_at`

func (s *SQLiteDatabase) CreateDataset(ds *model.Dataset) error {
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = s.clock.Now()
	}
	ds.CreatedAt = ds.CreatedAt.UTC()

	res, err := s.db.ExecContext(context.Background(), `
		INSERT INTO datasets (run_id, perc_compromised, prob_compromised, seed, corpus_path,
			user_list_path, output_path, users, written, injected, omitted, encrypted, archive_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ds.RunID, ds.PercCompromised, ds.ProbCompromised, ds.Seed, ds.CorpusPath,
		ds.UserListPath, ds.OutputPath, ds.Users, ds.Written, ds.Injected, ds.Omitted,
		ds.Encrypted, ds.ArchiveKey, ds.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating dataset: %w", err)
	}

	ds.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading dataset id: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListDatasets(runID int64) ([]*model.Dataset, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT "+datasetColumns+" FROM datasets WHERE run_id = ? ORDER BY id", runID)
	if err != nil {
		return nil, fmt.Errorf("listing datasets: %w", err)
	}
	defer rows.Close()

	var datasets []*model.Dataset
	for rows.Next() {
		var ds model.Dataset
		if err := rows.Scan(
			&ds.ID, &ds.RunID, &ds.PercCompromised, &ds.ProbCompromised, &ds.Seed, &ds.CorpusPath,
			&ds.UserListPath, &ds.OutputPath, &ds.Users, &ds.Written, &ds.Injected, &ds.Omitted,
			&ds.Encrypted, &ds.ArchiveKey, &ds.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning dataset: %w", err)
		}
		datasets = append(datasets, &ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing datasets: %w", err)
	}
	return datasets, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo writes a complete copy of the database to destPath using VACUUM INTO.
// destPath must not exist or must be empty.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var run model.Run
	if err := row.Scan(&run.ID, &run.UUID, &run.Operation, &run.Parameters,
		&run.StartedAt, &run.FinishedAt, &run.Status); err != nil {
		return nil, err
	}
	return &run, nil
}

// Compile-time check that SQLiteDatabase implements synth.Ledger
var _ synth.Ledger = (*SQLiteDatabase)(nil)
