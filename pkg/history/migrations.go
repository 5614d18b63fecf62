package history

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Migration is a schema change versioned by timestamp (YYYYMMDDHHmmss)
type Migration struct {
	Version     int64
	Description string
	Up          func(*sql.Tx) error
}

// migrations is the history schema, oldest first
var migrations = []Migration{
	{
		Version:     20260301120000,
		Description: "Create snapshots table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS snapshots (
					id TEXT PRIMARY KEY,
					skill_id TEXT NOT NULL,
					model TEXT NOT NULL,
					runs INTEGER NOT NULL,
					accuracy REAL NOT NULL,
					tokens_total INTEGER NOT NULL,
					cost_usd REAL NOT NULL,
					pass_rate REAL NOT NULL,
					security_score REAL,
					trigger_score REAL,
					consistency_score REAL,
					token_reduction REAL,
					timestamp_ms INTEGER NOT NULL,
					content_hash TEXT NOT NULL
				)
			`)
			return errors.Wrap(err, "failed to create snapshots table")
		},
	},
	{
		Version:     20260301120001,
		Description: "Index snapshots by skill and time",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_snapshots_skill_time ON snapshots(skill_id, timestamp_ms DESC)`)
			return errors.Wrap(err, "failed to create snapshot index")
		},
	},
	{
		Version:     20260315090000,
		Description: "Store the full report alongside each snapshot",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`ALTER TABLE snapshots ADD COLUMN report TEXT`)
			return errors.Wrap(err, "failed to add report column")
		},
	},
}

// migrate applies every pending migration in version order
func migrate(ctx context.Context, db *sqlx.DB, all []Migration) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL,
			description TEXT
		)
	`); err != nil {
		return errors.Wrap(err, "failed to create schema_migrations table")
	}

	var versions []int64
	if err := db.SelectContext(ctx, &versions, "SELECT version FROM schema_migrations"); err != nil {
		return errors.Wrap(err, "failed to get applied migrations")
	}
	applied := make(map[int64]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}

	sorted := make([]Migration, len(all))
	copy(sorted, all)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})

	for _, m := range sorted {
		if applied[m.Version] {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return errors.Wrapf(err, "failed to apply migration %d: %s", m.Version, m.Description)
		}
	}
	return nil
}

func apply(ctx context.Context, db *sqlx.DB, m Migration) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := m.Up(tx.Tx); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
		m.Version, time.Now().UTC().Format(time.RFC3339), m.Description); err != nil {
		return errors.Wrap(err, "failed to record migration")
	}

	return tx.Commit()
}
