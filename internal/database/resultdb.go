package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/proxyprobe/internal/endpoint"
	"github.com/nao1215/proxyprobe/internal/model"
)

// DBFileName is the name of the SQLite file inside the database directory.
const DBFileName = "proxyprobe.db"

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// ResultDB provides SQLite-based storage for probe runs and their results.
type ResultDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures ResultDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a ResultDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*ResultDB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	dsn := dbPath + "?mode=rwc"
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	} else {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (run a probe first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &ResultDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return rdb, nil
}

// Path returns the database file path.
func (rdb *ResultDB) Path() string {
	return rdb.dbPath
}

// Close closes the database connection.
func (rdb *ResultDB) Close() error {
	return rdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (rdb *ResultDB) createTables() error {
	schema := `
	-- One row per orchestrator run
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		concurrency INTEGER NOT NULL,
		timeout_ms INTEGER NOT NULL,
		total INTEGER NOT NULL,
		alive INTEGER NOT NULL,
		skipped TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- One row per probed candidate
	CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		protocol TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		link TEXT NOT NULL,
		status TEXT NOT NULL,
		ping_ms INTEGER,
		reason TEXT,
		detail TEXT,
		checked_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id);
	CREATE INDEX IF NOT EXISTS idx_results_fingerprint ON results(fingerprint);
	`

	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// RunMetadata contains summary information about a stored run.
type RunMetadata struct {
	// ID is the unique identifier of the run.
	ID int64

	// StartedAt is when the run began.
	StartedAt time.Time

	// Duration is the wall-clock time of the run.
	Duration time.Duration

	// Concurrency and Timeout are the settings the run used.
	Concurrency int
	Timeout     time.Duration

	// Total and Alive are the result counts.
	Total int
	Alive int
}

// Dead returns the number of dead results.
func (m RunMetadata) Dead() int {
	return m.Total - m.Alive
}

// SaveRun stores a batch report and all its results in one transaction.
// It returns the new run ID.
func (rdb *ResultDB) SaveRun(ctx context.Context, report *model.BatchReport) (id int64, err error) {
	skipped, err := json.Marshal(report.Skipped)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize skipped protocols: %w", err)
	}

	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
	INSERT INTO runs (started_at, duration_ms, concurrency, timeout_ms, total, alive, skipped)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		report.StartedAt.UTC().Format(time.RFC3339Nano),
		report.Duration.Milliseconds(),
		report.Concurrency,
		report.Timeout.Milliseconds(),
		report.Total(),
		report.AliveCount(),
		string(skipped),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save run: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO results (run_id, protocol, fingerprint, link, status, ping_ms, reason, detail, checked_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer stmt.Close()

	for _, protocol := range report.Protocols() {
		for _, r := range report.Results[protocol] {
			var ping sql.NullInt64
			if r.PingMS != nil {
				ping = sql.NullInt64{Int64: *r.PingMS, Valid: true}
			}
			if _, err = stmt.ExecContext(ctx,
				id,
				protocol.String(),
				endpoint.Fingerprint(protocol, r.Link),
				r.Link,
				string(r.Status),
				ping,
				r.Reason.String(),
				r.Detail,
				r.CheckedAt.UTC().Format(time.RFC3339Nano),
			); err != nil {
				return 0, fmt.Errorf("failed to save result: %w", err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return id, nil
}

// ListRuns returns the most recent runs, newest first.
// A non-positive limit returns every run.
func (rdb *ResultDB) ListRuns(ctx context.Context, limit int) ([]RunMetadata, error) {
	query := `
	SELECT id, started_at, duration_ms, concurrency, timeout_ms, total, alive
	FROM runs
	ORDER BY id DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := rdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunMetadata
	for rows.Next() {
		var (
			meta                RunMetadata
			startedAt           string
			durationMS, timeout int64
		)
		if err := rows.Scan(&meta.ID, &startedAt, &durationMS, &meta.Concurrency, &timeout, &meta.Total, &meta.Alive); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		meta.StartedAt = parseTimestamp(startedAt)
		meta.Duration = time.Duration(durationMS) * time.Millisecond
		meta.Timeout = time.Duration(timeout) * time.Millisecond
		runs = append(runs, meta)
	}
	return runs, rows.Err()
}

// GetRun reconstructs the batch report of a stored run.
// It returns ErrRunNotFound when the ID does not exist.
func (rdb *ResultDB) GetRun(ctx context.Context, id int64) (*model.BatchReport, error) {
	var (
		startedAt, skipped  string
		durationMS, timeout int64
		concurrency         int
	)
	err := rdb.db.QueryRowContext(ctx, `
	SELECT started_at, duration_ms, concurrency, timeout_ms, COALESCE(skipped, '')
	FROM runs WHERE id = ?
	`, id).Scan(&startedAt, &durationMS, &concurrency, &timeout, &skipped)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	report := model.NewBatchReport()
	report.StartedAt = parseTimestamp(startedAt)
	report.Duration = time.Duration(durationMS) * time.Millisecond
	report.Concurrency = concurrency
	report.Timeout = time.Duration(timeout) * time.Millisecond
	if skipped != "" {
		if err := json.Unmarshal([]byte(skipped), &report.Skipped); err != nil {
			report.Skipped = nil
		}
	}

	results, err := rdb.runResults(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		report.Results[r.Protocol] = append(report.Results[r.Protocol], r.ProbeResult)
	}
	return report, nil
}

// StoredResult is a probe result together with its server fingerprint.
type StoredResult struct {
	*model.ProbeResult

	// Fingerprint identifies the server independently of the candidate text.
	Fingerprint string
}

// runResults loads every result of a run in insertion order.
func (rdb *ResultDB) runResults(ctx context.Context, runID int64) ([]StoredResult, error) {
	rows, err := rdb.db.QueryContext(ctx, `
	SELECT protocol, fingerprint, link, status, ping_ms, COALESCE(reason, ''), COALESCE(detail, ''), checked_at
	FROM results
	WHERE run_id = ?
	ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run results: %w", err)
	}
	defer rows.Close()

	var results []StoredResult
	for rows.Next() {
		var (
			r                 model.ProbeResult
			protocol, status  string
			reason, checkedAt string
			fingerprint       string
			ping              sql.NullInt64
		)
		if err := rows.Scan(&protocol, &fingerprint, &r.Link, &status, &ping, &reason, &r.Detail, &checkedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Protocol = model.Protocol(protocol)
		r.Status = model.Status(status)
		if ping.Valid {
			ms := ping.Int64
			r.PingMS = &ms
		}
		if parsed, err := model.ParseFailureReason(reason); err == nil {
			r.Reason = parsed
		} else {
			r.Reason = model.ReasonInternalError
		}
		r.CheckedAt = parseTimestamp(checkedAt)
		results = append(results, StoredResult{ProbeResult: &r, Fingerprint: fingerprint})
	}
	return results, rows.Err()
}

// RunDiff describes how server liveness changed between two runs.
type RunDiff struct {
	// OldRunID and NewRunID are the compared runs.
	OldRunID int64
	NewRunID int64

	// NewlyAlive are servers alive in the new run but not in the old one.
	NewlyAlive []*model.ProbeResult

	// NewlyDead are servers alive in the old run but dead or absent in the new one.
	NewlyDead []*model.ProbeResult

	// StillAlive counts servers alive in both runs.
	StillAlive int
}

// CompareRuns compares two runs server by server using fingerprints.
func (rdb *ResultDB) CompareRuns(ctx context.Context, oldID, newID int64) (*RunDiff, error) {
	if err := rdb.ensureRun(ctx, oldID); err != nil {
		return nil, err
	}
	if err := rdb.ensureRun(ctx, newID); err != nil {
		return nil, err
	}

	oldResults, err := rdb.runResults(ctx, oldID)
	if err != nil {
		return nil, err
	}
	newResults, err := rdb.runResults(ctx, newID)
	if err != nil {
		return nil, err
	}

	oldAlive := aliveByFingerprint(oldResults)
	newAlive := aliveByFingerprint(newResults)

	diff := &RunDiff{OldRunID: oldID, NewRunID: newID}
	for fp, r := range newAlive {
		if _, ok := oldAlive[fp]; ok {
			diff.StillAlive++
			continue
		}
		diff.NewlyAlive = append(diff.NewlyAlive, r)
	}
	for fp, r := range oldAlive {
		if _, ok := newAlive[fp]; !ok {
			diff.NewlyDead = append(diff.NewlyDead, r)
		}
	}

	byLink := func(results []*model.ProbeResult) {
		sort.Slice(results, func(i, j int) bool { return results[i].Link < results[j].Link })
	}
	byLink(diff.NewlyAlive)
	byLink(diff.NewlyDead)
	return diff, nil
}

// ensureRun returns ErrRunNotFound when the run does not exist.
func (rdb *ResultDB) ensureRun(ctx context.Context, id int64) error {
	var exists int
	err := rdb.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to check run: %w", err)
	}
	return nil
}

// aliveByFingerprint indexes the alive results of a run by fingerprint.
func aliveByFingerprint(results []StoredResult) map[string]*model.ProbeResult {
	alive := make(map[string]*model.ProbeResult, len(results))
	for _, r := range results {
		if r.Alive() {
			alive[r.Fingerprint] = r.ProbeResult
		}
	}
	return alive
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, it returns the zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
