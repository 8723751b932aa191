package sessionstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var schema embed.FS

// migrate brings the sessions schema up to date and returns the resulting
// schema version.
func migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) (int64, error) {
	dir, err := fs.Sub(schema, "migrations")
	if err != nil {
		return 0, fmt.Errorf("sessionstore: opening embedded migrations: %w", err)
	}

	p, err := goose.NewProvider(goose.DialectSQLite3, db, dir)
	if err != nil {
		return 0, fmt.Errorf("sessionstore: loading migrations: %w", err)
	}

	applied, err := p.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("sessionstore: migrating session schema: %w", err)
	}

	for _, r := range applied {
		logger.Info("session schema migrated",
			slog.Int64("version", r.Source.Version),
			slog.Duration("took", r.Duration),
		)
	}

	version, err := p.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("sessionstore: reading schema version: %w", err)
	}

	return version, nil
}
