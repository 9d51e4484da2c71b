// Package history persists completed runs to a local SQLite database so
// past results stay queryable after workspaces and logs are gone.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/walther/conveyor/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// ErrRunNotFound is returned by GetRun when no stored run matches.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one row of the runs table.
type RunRecord struct {
	RunID        string
	WorkflowName string
	WorkflowPath string
	Event        string
	Status       models.Status
	BranchCount  int
	Succeeded    int
	StartedAt    time.Time
	Duration     time.Duration
}

// BranchRecord is one stored branch with its steps.
type BranchRecord struct {
	JobID    string
	Name     string
	Matrix   string
	Status   models.Status
	Duration time.Duration
	Steps    []StepRecord
}

// StepRecord is one stored step outcome.
type StepRecord struct {
	Name     string
	Status   models.Status
	ExitCode int
	Duration time.Duration
}

// RunDetail is a full stored run: the run row plus branches and steps.
type RunDetail struct {
	RunRecord
	Branches []BranchRecord
}

// Store manages the SQLite history database.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (creating if needed) the history database at dbPath
// and initializes the schema. ":memory:" is accepted for tests.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// busy_timeout first so later statements wait on locks instead of
	// failing when another runner process holds the database.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := execWithRetry(db, schemaSQL, 5, 10*time.Millisecond); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// execWithRetry executes a statement with exponential backoff on
// "database is locked" errors, which can occur while two runner
// processes initialize the same database file.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordRun persists a completed run with all branches and steps in one
// transaction.
func (s *Store) RecordRun(ctx context.Context, result *models.RunResult) error {
	if result == nil {
		return errors.New("nil run result")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, workflow_name, workflow_path, event, status, branch_count, succeeded, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID,
		result.WorkflowName,
		result.WorkflowPath,
		string(result.Event.Type),
		string(result.Status),
		len(result.Branches),
		result.Succeeded(),
		result.StartedAt,
		result.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	runRowID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("run row id: %w", err)
	}

	for i, br := range result.Branches {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO branches (run_id, position, job_id, name, matrix, status, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runRowID,
			i,
			br.Branch.JobID,
			br.Branch.Name,
			br.Branch.Combination.Label(),
			string(br.Status),
			br.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert branch %s: %w", br.Branch.Name, err)
		}
		branchRowID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("branch row id: %w", err)
		}

		for j, step := range br.Steps {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO steps (branch_id, position, name, status, exit_code, duration_ms)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				branchRowID,
				j,
				step.Name,
				string(step.Status),
				step.ExitCode,
				step.Duration.Milliseconds(),
			); err != nil {
				return fmt.Errorf("insert step %s: %w", step.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. A non-positive
// limit defaults to 20.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, workflow_name, workflow_path, event, status, branch_count, succeeded, started_at, duration_ms
		 FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return records, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var (
		record     RunRecord
		path       sql.NullString
		status     string
		durationMS int64
	)
	err := row.Scan(
		&record.RunID,
		&record.WorkflowName,
		&path,
		&record.Event,
		&status,
		&record.BranchCount,
		&record.Succeeded,
		&record.StartedAt,
		&durationMS,
	)
	if err != nil {
		return RunRecord{}, fmt.Errorf("scan run row: %w", err)
	}
	record.WorkflowPath = path.String
	record.Status = models.Status(status)
	record.Duration = time.Duration(durationMS) * time.Millisecond
	return record, nil
}

// GetRun loads one run with branches and steps. The id may be a full
// run ID or a unique prefix of one.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunDetail, error) {
	rowID, record, err := s.findRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	detail := &RunDetail{RunRecord: record}

	branchRows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, name, matrix, status, duration_ms
		 FROM branches WHERE run_id = ? ORDER BY position`, rowID)
	if err != nil {
		return nil, fmt.Errorf("query branches: %w", err)
	}
	defer branchRows.Close()

	var branchIDs []int64
	for branchRows.Next() {
		var (
			id         int64
			branch     BranchRecord
			matrix     sql.NullString
			status     string
			durationMS int64
		)
		if err := branchRows.Scan(&id, &branch.JobID, &branch.Name, &matrix, &status, &durationMS); err != nil {
			return nil, fmt.Errorf("scan branch row: %w", err)
		}
		branch.Matrix = matrix.String
		branch.Status = models.Status(status)
		branch.Duration = time.Duration(durationMS) * time.Millisecond
		detail.Branches = append(detail.Branches, branch)
		branchIDs = append(branchIDs, id)
	}
	if err := branchRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate branches: %w", err)
	}

	for i, branchID := range branchIDs {
		steps, err := s.loadSteps(ctx, branchID)
		if err != nil {
			return nil, err
		}
		detail.Branches[i].Steps = steps
	}
	return detail, nil
}

// findRun resolves a run ID or unique prefix to its row.
func (s *Store) findRun(ctx context.Context, runID string) (int64, RunRecord, error) {
	const columns = `id, run_id, workflow_name, workflow_path, event, status, branch_count, succeeded, started_at, duration_ms`

	scan := func(row rowScanner) (int64, RunRecord, error) {
		var (
			rowID      int64
			record     RunRecord
			path       sql.NullString
			status     string
			durationMS int64
		)
		err := row.Scan(&rowID, &record.RunID, &record.WorkflowName, &path, &record.Event,
			&status, &record.BranchCount, &record.Succeeded, &record.StartedAt, &durationMS)
		if err != nil {
			return 0, RunRecord{}, err
		}
		record.WorkflowPath = path.String
		record.Status = models.Status(status)
		record.Duration = time.Duration(durationMS) * time.Millisecond
		return rowID, record, nil
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM runs WHERE run_id = ?`, runID)
	rowID, record, err := scan(row)
	if err == nil {
		return rowID, record, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, RunRecord{}, fmt.Errorf("query run: %w", err)
	}

	// Prefix lookup, for typing shortened run IDs on the CLI.
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM runs WHERE run_id LIKE ? || '%' LIMIT 2`, runID)
	if err != nil {
		return 0, RunRecord{}, fmt.Errorf("query run prefix: %w", err)
	}
	defer rows.Close()

	found := 0
	for rows.Next() {
		found++
		if found > 1 {
			return 0, RunRecord{}, fmt.Errorf("run id %q is ambiguous", runID)
		}
		rowID, record, err = scan(rows)
		if err != nil {
			return 0, RunRecord{}, fmt.Errorf("scan run row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, RunRecord{}, fmt.Errorf("iterate runs: %w", err)
	}
	if found == 0 {
		return 0, RunRecord{}, fmt.Errorf("run %q: %w", runID, ErrRunNotFound)
	}
	return rowID, record, nil
}

func (s *Store) loadSteps(ctx context.Context, branchID int64) ([]StepRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, status, exit_code, duration_ms
		 FROM steps WHERE branch_id = ? ORDER BY position`, branchID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		var (
			step       StepRecord
			status     string
			durationMS int64
		)
		if err := rows.Scan(&step.Name, &status, &step.ExitCode, &durationMS); err != nil {
			return nil, fmt.Errorf("scan step row: %w", err)
		}
		step.Status = models.Status(status)
		step.Duration = time.Duration(durationMS) * time.Millisecond
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}

// Prune deletes old runs. Runs older than keepDays go first, then all
// but the newest maxRuns. Zero disables the respective rule. Branches
// and steps cascade. Returns the number of runs removed.
func (s *Store) Prune(ctx context.Context, keepDays, maxRuns int) (int, error) {
	pruned := 0

	if keepDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -keepDays)
		res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff)
		if err != nil {
			return pruned, fmt.Errorf("prune by age: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return pruned, fmt.Errorf("prune by age count: %w", err)
		}
		pruned += int(n)
	}

	if maxRuns > 0 {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM runs WHERE id NOT IN
			 (SELECT id FROM runs ORDER BY started_at DESC, id DESC LIMIT ?)`, maxRuns)
		if err != nil {
			return pruned, fmt.Errorf("prune by count: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return pruned, fmt.Errorf("prune by count count: %w", err)
		}
		pruned += int(n)
	}

	return pruned, nil
}
