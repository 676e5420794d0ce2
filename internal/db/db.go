// Package db provides SQL persistence for testdesk on SQLite (default) or Postgres.
package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Schema is valid on both SQLite and Postgres. Ids are application generated UUIDs and
// timestamps are RFC3339 text.
const schema = `
CREATE TABLE IF NOT EXISTS test_suites (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    parent_id TEXT REFERENCES test_suites(id) ON DELETE SET NULL,
    position INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- suite_id has no ON DELETE action: cases must be reassigned before their suite is removed
CREATE TABLE IF NOT EXISTS test_cases (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    suite_id TEXT REFERENCES test_suites(id),
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    test_type TEXT NOT NULL DEFAULT 'web',
    priority TEXT NOT NULL DEFAULT 'medium',
    status TEXT NOT NULL DEFAULT 'draft',
    position INTEGER NOT NULL DEFAULT 0,
    steps TEXT NOT NULL DEFAULT '[]',
    preconditions TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS test_plans (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS test_plan_cases (
    test_plan_id TEXT NOT NULL REFERENCES test_plans(id) ON DELETE CASCADE,
    test_case_id TEXT NOT NULL REFERENCES test_cases(id) ON DELETE CASCADE,
    position INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (test_plan_id, test_case_id)
);

CREATE TABLE IF NOT EXISTS test_runs (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    test_plan_id TEXT REFERENCES test_plans(id) ON DELETE SET NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    environment TEXT NOT NULL DEFAULT '',
    run_status TEXT NOT NULL DEFAULT 'not_started',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS test_run_results (
    id TEXT PRIMARY KEY,
    test_run_id TEXT NOT NULL REFERENCES test_runs(id) ON DELETE CASCADE,
    test_case_id TEXT NOT NULL REFERENCES test_cases(id) ON DELETE CASCADE,
    result_status TEXT NOT NULL DEFAULT 'untested',
    actual_result TEXT NOT NULL DEFAULT '',
    comments TEXT NOT NULL DEFAULT '',
    attachments TEXT NOT NULL DEFAULT '[]',
    execution_time INTEGER,
    executed_by TEXT NOT NULL DEFAULT '',
    executed_at TEXT,
    position INTEGER NOT NULL DEFAULT 0,
    UNIQUE (test_run_id, test_case_id)
);

CREATE INDEX IF NOT EXISTS idx_test_suites_project ON test_suites(project_id, position);
CREATE INDEX IF NOT EXISTS idx_test_cases_project ON test_cases(project_id, position);
CREATE INDEX IF NOT EXISTS idx_test_cases_suite ON test_cases(suite_id);
CREATE INDEX IF NOT EXISTS idx_test_runs_project ON test_runs(project_id, created_at);
CREATE INDEX IF NOT EXISTS idx_test_run_results_run ON test_run_results(test_run_id, position)
`

// DefaultDBPath returns the default database path (~/.testdesk/testdesk.db)
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".testdesk/testdesk.db"
	}
	return filepath.Join(home, ".testdesk", "testdesk.db")
}

// Open connects to the database and creates the schema. For SQLite source is a file path
// (empty means DefaultDBPath); for Postgres it is a DSN.
func Open(ctx context.Context, driver, source string) (*sqlx.DB, error) {
	var dsn string
	switch driver {
	case "", DriverSQLite:
		driver = DriverSQLite
		path := source
		if path == "" {
			path = DefaultDBPath()
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		// WAL allows concurrent readers with one writer; busy_timeout waits for locks
		dsn = path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	case DriverPostgres, "postgres":
		driver = DriverPostgres
		if source == "" {
			return nil, fmt.Errorf("postgres needs a dsn")
		}
		dsn = source
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, classify("ping", err)
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// initSchema creates tables if they don't exist, one statement at a time
func initSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range strings.Split(schema, ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
