package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/templdeploy/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	// Open database connection
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database: "+err.Error(), fmt.Errorf("%w: %w", ErrConnectionFailed, err))
	}

	// Every connection to :memory: is a separate database
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open "+dsn+": "+err.Error(), fmt.Errorf("%w: %w", ErrConnectionFailed, err))
	}

	// Run migrations
	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordRun stores a run and its units atomically.
func (s *SQLiteStore) RecordRun(ctx context.Context, report *domain.RunReport) error {
	return s.WithTx(ctx, func(tx Store) error {
		return tx.RecordRun(ctx, report)
	})
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts ListOptions) ([]domain.RunReport, error) {
	return listRuns(ctx, s.db, "", opts)
}

func (s *SQLiteStore) ListRunsByTarget(ctx context.Context, target string, opts ListOptions) ([]domain.RunReport, error) {
	return listRuns(ctx, s.db, target, opts)
}

// WithTx runs fn inside a transaction. The transaction is rolled back when
// fn returns an error.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction: "+err.Error(), fmt.Errorf("%w: %w", ErrTxFailed, err))
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction: "+err.Error(), fmt.Errorf("%w: %w", ErrTxFailed, err))
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) RecordRun(ctx context.Context, report *domain.RunReport) error {
	return recordRun(ctx, s.tx, report)
}

func (s *txSQLiteStore) ListRuns(ctx context.Context, opts ListOptions) ([]domain.RunReport, error) {
	return listRuns(ctx, s.tx, "", opts)
}

func (s *txSQLiteStore) ListRunsByTarget(ctx context.Context, target string, opts ListOptions) ([]domain.RunReport, error) {
	return listRuns(ctx, s.tx, target, opts)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Rows
// =============================================================================

// runRow represents a run row in the database.
type runRow struct {
	ID         string `db:"id"`
	Target     string `db:"target"`
	DryRun     bool   `db:"dry_run"`
	Status     string `db:"status"`
	StartedAt  string `db:"started_at"`
	FinishedAt string `db:"finished_at"`
}

// unitRow represents a unit row in the database.
type unitRow struct {
	RunID            string  `db:"run_id"`
	Position         int     `db:"position"`
	Name             string  `db:"name"`
	Kind             string  `db:"kind"`
	Status           string  `db:"status"`
	Params           *string `db:"params"`
	TransferCommand  *string `db:"transfer_command"`
	TransferExitCode *int    `db:"transfer_exit_code"`
	TransferSkipped  bool    `db:"transfer_skipped"`
	TransferDryRun   bool    `db:"transfer_dry_run"`
	RemoteCommand    *string `db:"remote_command"`
	RemoteExitCode   *int    `db:"remote_exit_code"`
	RemoteStderr     *string `db:"remote_stderr"`
	RemoteAttempts   int     `db:"remote_attempts"`
	RemoteSkipped    bool    `db:"remote_skipped"`
	ErrorMessage     *string `db:"error_message"`
}

// =============================================================================
// Shared Implementation Functions
// =============================================================================

func recordRun(ctx context.Context, exec executor, report *domain.RunReport) error {
	if report.ID == "" {
		return NewStoreError("RecordRun", "run", "", "run ID is required", ErrInvalidData)
	}

	status := domain.UnitSucceeded
	if report.Failed() {
		status = domain.UnitFailed
	}

	run := runRow{
		ID:         report.ID,
		Target:     report.Target,
		DryRun:     report.DryRun,
		Status:     string(status),
		StartedAt:  report.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt: report.FinishedAt.UTC().Format(time.RFC3339),
	}

	query := `
		INSERT INTO runs (id, target, dry_run, status, started_at, finished_at)
		VALUES (:id, :target, :dry_run, :status, :started_at, :finished_at)
	`
	if _, err := exec.NamedExecContext(ctx, query, run); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: runs.id") {
			return NewStoreError("RecordRun", "run", report.ID, "run with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("RecordRun", "run", report.ID, err.Error(), err)
	}

	query = `
		INSERT INTO units (
			run_id, position, name, kind, status, params,
			transfer_command, transfer_exit_code, transfer_skipped, transfer_dry_run,
			remote_command, remote_exit_code, remote_stderr, remote_attempts, remote_skipped,
			error_message
		) VALUES (
			:run_id, :position, :name, :kind, :status, :params,
			:transfer_command, :transfer_exit_code, :transfer_skipped, :transfer_dry_run,
			:remote_command, :remote_exit_code, :remote_stderr, :remote_attempts, :remote_skipped,
			:error_message
		)
	`
	for i, unit := range report.Units {
		row, err := unitToRow(report.ID, i, unit)
		if err != nil {
			return err
		}
		if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
			return NewStoreError("RecordRun", "unit", unit.Name, err.Error(), err)
		}
	}

	return nil
}

func listRuns(ctx context.Context, exec executor, target string, opts ListOptions) ([]domain.RunReport, error) {
	opts = opts.Normalize()

	var (
		rows []runRow
		err  error
	)
	if target == "" {
		query := `SELECT * FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ? OFFSET ?`
		err = exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset)
	} else {
		query := `SELECT * FROM runs WHERE target = ? ORDER BY started_at DESC, rowid DESC LIMIT ? OFFSET ?`
		err = exec.SelectContext(ctx, &rows, query, target, opts.Limit, opts.Offset)
	}
	if err != nil {
		return nil, NewStoreError("ListRuns", "run", "", err.Error(), err)
	}

	reports := make([]domain.RunReport, 0, len(rows))
	for i := range rows {
		report, err := loadUnits(ctx, exec, &rows[i])
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}

	return reports, nil
}

func loadUnits(ctx context.Context, exec executor, row *runRow) (*domain.RunReport, error) {
	var units []unitRow
	err := exec.SelectContext(ctx, &units, `SELECT * FROM units WHERE run_id = ? ORDER BY position`, row.ID)
	if err != nil {
		return nil, NewStoreError("ListRuns", "unit", row.ID, err.Error(), err)
	}

	report := rowToRun(row)
	report.Units = make([]domain.UnitReport, 0, len(units))
	for i := range units {
		unit, err := rowToUnit(&units[i])
		if err != nil {
			return nil, err
		}
		report.Units = append(report.Units, unit)
	}

	return report, nil
}

// =============================================================================
// Conversion
// =============================================================================

func unitToRow(runID string, position int, unit domain.UnitReport) (*unitRow, error) {
	row := &unitRow{
		RunID:    runID,
		Position: position,
		Name:     unit.Name,
		Kind:     string(unit.Kind),
		Status:   string(unit.Status),
	}

	if unit.Params != nil {
		params := *unit.Params
		params.Identity.PrivateKey = ""
		data, err := json.Marshal(params)
		if err != nil {
			return nil, NewStoreError("RecordRun", "unit", unit.Name, "failed to serialize parameters", ErrInvalidData)
		}
		s := string(data)
		row.Params = &s
	}

	if t := unit.Transfer; t != nil {
		row.TransferCommand = &t.Command
		row.TransferSkipped = t.Skipped
		row.TransferDryRun = t.DryRun
		if !t.Skipped && !t.DryRun {
			code := t.ExitCode
			row.TransferExitCode = &code
		}
	}

	if r := unit.Remote; r != nil {
		row.RemoteCommand = &r.Command
		code := r.ExitCode
		row.RemoteExitCode = &code
		row.RemoteStderr = &r.Stderr
		row.RemoteAttempts = r.Attempts
		row.RemoteSkipped = r.Skipped
	}

	if unit.Err != nil {
		msg := unit.Err.Error()
		row.ErrorMessage = &msg
	}

	return row, nil
}

func rowToRun(row *runRow) *domain.RunReport {
	startedAt, _ := time.Parse(time.RFC3339, row.StartedAt)
	finishedAt, _ := time.Parse(time.RFC3339, row.FinishedAt)

	return &domain.RunReport{
		ID:         row.ID,
		Target:     row.Target,
		DryRun:     row.DryRun,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}
}

func rowToUnit(row *unitRow) (domain.UnitReport, error) {
	unit := domain.UnitReport{
		Name:   row.Name,
		Kind:   domain.UnitKind(row.Kind),
		Status: domain.UnitStatus(row.Status),
	}
	if !unit.Status.IsValid() {
		return unit, NewStoreError("ListRuns", "unit", row.Name, "unknown status "+row.Status, ErrInvalidData)
	}

	if row.Params != nil {
		var params domain.EffectiveParameters
		if err := json.Unmarshal([]byte(*row.Params), &params); err != nil {
			return unit, NewStoreError("ListRuns", "unit", row.Name, "failed to deserialize parameters", ErrInvalidData)
		}
		unit.Params = &params
	}

	if row.TransferCommand != nil {
		unit.Transfer = &domain.TransferResult{
			Command: *row.TransferCommand,
			Skipped: row.TransferSkipped,
			DryRun:  row.TransferDryRun,
		}
		if row.TransferExitCode != nil {
			unit.Transfer.ExitCode = *row.TransferExitCode
		}
	}

	if row.RemoteCommand != nil {
		unit.Remote = &domain.RemoteCommandResult{
			Command:  *row.RemoteCommand,
			Attempts: row.RemoteAttempts,
			Skipped:  row.RemoteSkipped,
		}
		if row.RemoteExitCode != nil {
			unit.Remote.ExitCode = *row.RemoteExitCode
		}
		if row.RemoteStderr != nil {
			unit.Remote.Stderr = *row.RemoteStderr
		}
	}

	if row.ErrorMessage != nil {
		unit.Err = errors.New(*row.ErrorMessage)
	}

	return unit, nil
}
