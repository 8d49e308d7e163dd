package database

import (
	"context"
	dbsql "database/sql"
	"fmt"
	"io/fs"
	"sort"

	schemafs "github.com/MyBlackCandy/TG-Bot/internal/database/sql"
	"github.com/MyBlackCandy/TG-Bot/internal/logging"
)

// InitSchema applies the embedded schema files in lexical order. All
// statements are idempotent (CREATE ... IF NOT EXISTS), so running this on
// every startup is safe.
func InitSchema(ctx context.Context, db *dbsql.DB, logger logging.Logger) error {
	entries, err := fs.Glob(schemafs.Content, "schema/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list schema files: %w", err)
	}
	sort.Strings(entries)

	for _, name := range entries {
		contents, err := fs.ReadFile(schemafs.Content, name)
		if err != nil {
			return fmt.Errorf("failed to read schema file %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(contents)); err != nil {
			return fmt.Errorf("failed to apply schema file %s: %w", name, err)
		}
		logger.WithField("file", name).Debug("Applied schema file")
	}

	return nil
}
