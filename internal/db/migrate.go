package db

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	// Registers the "pgx" driver with database/sql. goose wants a *sql.DB,
	// so migrations go through the stdlib adapter rather than the pool.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// RunMigrations executes all pending goose migrations. It opens a dedicated
// short-lived database/sql connection — the pgxpool serves queries only.
func RunMigrations(databaseURL string) error {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer sqlDB.Close()

	goose.SetBaseFS(EmbedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}

	if err := goose.Up(sqlDB, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}
