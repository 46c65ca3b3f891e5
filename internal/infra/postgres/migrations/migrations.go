package migrations

import (
	"context"
	_ "embed"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_quizzes.sql
var createQuizzesSQL string

//go:embed 0002_create_attempts.sql
var createAttemptsSQL string

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.Add(migrate.Migration{
		Name:    "20241122010000",
		Comment: "create_quizzes",
		Up:      execSQL(createQuizzesSQL),
		Down:    execSQL(`DROP TABLE IF EXISTS quizzes`),
	})
	Migrations.Add(migrate.Migration{
		Name:    "20241122020000",
		Comment: "create_attempts_and_responses",
		Up:      execSQL(createAttemptsSQL),
		Down:    execSQL(`DROP TABLE IF EXISTS responses; DROP TABLE IF EXISTS attempts`),
	})
}

// execSQL runs each statement of query in order.
func execSQL(query string) migrate.MigrationFunc {
	return func(ctx context.Context, db *bun.DB) error {
		for _, stmt := range strings.Split(query, ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	}
}
