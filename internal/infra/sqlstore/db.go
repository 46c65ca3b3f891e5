package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Driver selects the SQL backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

const defaultSQLiteDSN = "file:quiz.db?cache=shared&mode=rwc"

// Open connects to the database. SQLite databases get their schema created
// here; Postgres is migrated by the migrate command.
func Open(ctx context.Context, driver Driver, dsn string) (*bun.DB, error) {
	var db *bun.DB
	switch driver {
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("postgres dsn not configured")
		}
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		db = bun.NewDB(sqldb, pgdialect.New())
	case DriverSQLite:
		sqldb, err := sql.Open("sqlite", sqliteDSN(dsn))
		if err != nil {
			return nil, err
		}
		// one writer; immediate transactions serialize submit and finish
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if driver == DriverSQLite {
		if err := ensureSQLiteSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = defaultSQLiteDSN
	}
	params := []struct{ name, value string }{
		{"busy_timeout", "_pragma=busy_timeout(5000)"},
		{"foreign_keys", "_pragma=foreign_keys(1)"},
		{"_txlock", "_txlock=immediate"},
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for _, p := range params {
		if strings.Contains(dsn, p.name) {
			continue
		}
		dsn += sep + p.value
		sep = "&"
	}
	return dsn
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS quizzes (
  id            TEXT PRIMARY KEY,
  slug          TEXT NOT NULL UNIQUE,
  title         TEXT NOT NULL,
  data          TEXT NOT NULL,
  timer_minutes INTEGER NOT NULL DEFAULT 0,
  owner_token   TEXT NOT NULL,
  created_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS attempts (
  id               TEXT PRIMARY KEY,
  quiz_id          TEXT NOT NULL,
  participant_name TEXT NOT NULL,
  state            TEXT NOT NULL DEFAULT 'in_progress',
  created_at       TIMESTAMP NOT NULL,
  finished_at      TIMESTAMP,
  time_taken_ms    INTEGER,
  score            INTEGER
);

CREATE INDEX IF NOT EXISTS attempts_quiz_id_idx ON attempts (quiz_id);

CREATE TABLE IF NOT EXISTS responses (
  seq             INTEGER PRIMARY KEY AUTOINCREMENT,
  attempt_id      TEXT NOT NULL REFERENCES attempts (id) ON DELETE CASCADE,
  question_idx    INTEGER NOT NULL CHECK (question_idx >= 0),
  selected_option TEXT NOT NULL,
  accepted_at     TIMESTAMP NOT NULL,
  is_locked       BOOLEAN NOT NULL DEFAULT 1,
  UNIQUE (attempt_id, question_idx)
);
`

func ensureSQLiteSchema(ctx context.Context, db *bun.DB) error {
	for _, stmt := range strings.Split(schemaSQLite, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func isPostgres(db bun.IDB) bool {
	return db.Dialect().Name() == dialect.PG
}

// isUniqueViolation reports a duplicate (attempt_id, question_idx) insert.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
