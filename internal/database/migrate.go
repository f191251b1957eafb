// Package database owns the schema: embedded goose migrations applied at
// startup when the service is launched with -migrate.
package database

import (
	"embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// gooseLogger adapts goose's Printf-style logging onto slog.
type gooseLogger struct {
	logger *slog.Logger
}

func (l *gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info("Migration: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error("Migration failed: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Migrate applies all pending migrations.
func Migrate(db *sqlx.DB, logger *slog.Logger) error {
	goose.SetLogger(&gooseLogger{logger: logger})
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
