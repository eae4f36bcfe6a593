package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 0001_create_schema.sql
var createSchemaSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(createSchemaSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(`DROP TABLE IF EXISTS
				attempt_answer_selections, attempt_answers, attempts,
				answer_options, questions, quizzes,
				memberships, companies, users`)
			return err
		},
	)
}
