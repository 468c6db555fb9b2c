package sqlite

import (
	"context"
	"database/sql"
	"log/slog"
)

// migration is one step of the schema ladder. Statements are strictly
// additive and guarded by IF NOT EXISTS, so re-running a partially applied
// step after a crash converges on the same schema. Nothing here ever drops
// a table or index.
type migration struct {
	version    int
	name       string
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "base stores",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS sources (
				uri TEXT PRIMARY KEY,
				record TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS episodes (
				uri TEXT PRIMARY KEY,
				source TEXT NOT NULL DEFAULT '',
				played INTEGER NOT NULL DEFAULT 0,
				record TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS files (
				url TEXT PRIMARY KEY,
				mime TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE TABLE IF NOT EXISTS file_chunks (
				url TEXT NOT NULL,
				seq INTEGER NOT NULL,
				chunk BLOB NOT NULL,
				PRIMARY KEY (url, seq)
			)`,
		},
	},
	{
		version: 2,
		name:    "episode indexes and settings",
		statements: []string{
			`CREATE INDEX IF NOT EXISTS idx_episodes_source ON episodes (source)`,
			`CREATE INDEX IF NOT EXISTS idx_episodes_played ON episodes (played)`,
			`CREATE TABLE IF NOT EXISTS settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`,
		},
	},
}

// migrate applies every ladder step newer than the stored version, each in
// its own transaction together with its version bookkeeping.
func migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return err
	}

	var stored int
	if err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&stored); err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= stored {
			continue
		}
		logger.Info("upgrading storage schema",
			"from", stored, "to", m.version, "step", m.name)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := applyStep(ctx, tx, m); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		stored = m.version
	}
	return nil
}

func applyStep(ctx context.Context, tx *sql.Tx, m migration) error {
	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`,
		m.version, m.name)
	return err
}
