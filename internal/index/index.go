// Package index maintains the sqlite catalog of known test definitions and
// the outcome history of past runs.
package index

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"gridstone.dev/internal/result"
	"gridstone.dev/internal/spec"
)

// DB is the test index. A single connection with WAL keeps writes cheap
// without a writer goroutine; index traffic is a handful of rows per run.
type DB struct {
	db *sql.DB
}

// Open creates or opens the index database at path.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tests (
			name TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			tags_json TEXT NOT NULL DEFAULT '[]',
			timeline_items INTEGER NOT NULL,
			max_tick INTEGER NOT NULL,
			digest TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tests_path ON tests(path);`,
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			total INTEGER NOT NULL,
			passed INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			errored INTEGER NOT NULL,
			skipped INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS run_tests (
			run_id INTEGER NOT NULL REFERENCES runs(id),
			seq INTEGER NOT NULL,
			name TEXT NOT NULL,
			outcome TEXT NOT NULL,
			reason TEXT,
			ticks INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_run_tests_name ON run_tests(name, run_id);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) Close() error { return d.db.Close() }

// Entry is one indexed test definition.
type Entry struct {
	Name          string
	Path          string
	Description   string
	Tags          []string
	TimelineItems int
	MaxTick       int
	Digest        string
}

// Reload replaces the test catalog with the given set in one transaction.
// Tests no longer present on disk drop out of the index; run history is
// untouched.
func (d *DB) Reload(ctx context.Context, tests []*spec.Test) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tests`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO tests(name,path,description,tags_json,timeline_items,max_tick,digest,updated_at)
		 VALUES(?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range tests {
		tags, _ := json.Marshal(t.Tags)
		if len(t.Tags) == 0 {
			tags = []byte("[]")
		}
		if _, err := stmt.ExecContext(ctx,
			t.Name, t.Path, t.Description, string(tags),
			len(t.Timeline), t.MaxTick(), testDigest(t), now,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// testDigest fingerprints a definition so reloads can tell changed tests
// from merely re-read ones.
func testDigest(t *spec.Test) string {
	data, err := spec.EncodeTest(t)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Tests lists the catalog, ordered by name.
func (d *DB) Tests(ctx context.Context) ([]Entry, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT name,path,description,tags_json,timeline_items,max_tick,digest
		 FROM tests ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var tags string
		if err := rows.Scan(&e.Name, &e.Path, &e.Description, &tags,
			&e.TimelineItems, &e.MaxTick, &e.Digest); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
			return nil, fmt.Errorf("test %q: bad tags json: %w", e.Name, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Lookup returns one catalog entry by test name.
func (d *DB) Lookup(ctx context.Context, name string) (*Entry, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT name,path,description,tags_json,timeline_items,max_tick,digest
		 FROM tests WHERE name = ?`, name)
	var e Entry
	var tags string
	if err := row.Scan(&e.Name, &e.Path, &e.Description, &tags,
		&e.TimelineItems, &e.MaxTick, &e.Digest); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("test %q not indexed", name)
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		return nil, fmt.Errorf("test %q: bad tags json: %w", name, err)
	}
	return &e, nil
}

// RunRecord is one archived run.
type RunRecord struct {
	ID        int64
	StartedAt time.Time
	Summary   result.Summary
}

// RecordRun archives a finished run and its per-test outcomes.
func (d *DB) RecordRun(ctx context.Context, started time.Time, r result.RunResult) (int64, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs(started_at,duration_ms,total,passed,failed,errored,skipped) VALUES(?,?,?,?,?,?,?)`,
		started.UTC().Format(time.RFC3339Nano),
		r.Summary.Duration.Milliseconds(),
		r.Summary.Total, r.Summary.Passed, r.Summary.Failed, r.Summary.Errored, r.Summary.Skipped,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_tests(run_id,seq,name,outcome,reason,ticks,elapsed_ms) VALUES(?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for i, tr := range r.PerTest {
		if _, err := stmt.ExecContext(ctx,
			id, i, tr.Name, tr.Outcome.String(), tr.Reason, tr.Ticks, tr.Elapsed.Milliseconds(),
		); err != nil {
			return 0, err
		}
	}
	return id, tx.Commit()
}

// Runs lists the most recent runs, newest first.
func (d *DB) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT id,started_at,duration_ms,total,passed,failed,errored,skipped
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var started string
		var durMs int64
		if err := rows.Scan(&rec.ID, &started, &durMs,
			&rec.Summary.Total, &rec.Summary.Passed, &rec.Summary.Failed,
			&rec.Summary.Errored, &rec.Summary.Skipped); err != nil {
			return nil, err
		}
		rec.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		rec.Summary.Duration = time.Duration(durMs) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Outcomes returns the per-test rows of one run, in execution order.
func (d *DB) Outcomes(ctx context.Context, runID int64) ([]result.TestResult, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT name,outcome,reason,ticks,elapsed_ms FROM run_tests WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []result.TestResult
	for rows.Next() {
		var tr result.TestResult
		var outcome string
		var reason sql.NullString
		var elapsedMs int64
		if err := rows.Scan(&tr.Name, &outcome, &reason, &tr.Ticks, &elapsedMs); err != nil {
			return nil, err
		}
		tr.Outcome = parseOutcome(outcome)
		tr.Reason = reason.String
		tr.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		out = append(out, tr)
	}
	return out, rows.Err()
}

func parseOutcome(s string) result.Outcome {
	for _, o := range []result.Outcome{result.Passed, result.Failed, result.Errored, result.Skipped} {
		if o.String() == s {
			return o
		}
	}
	return 0
}
