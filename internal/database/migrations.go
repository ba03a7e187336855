package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    strictness TEXT NOT NULL,
    criteria TEXT,
    max_tokens INTEGER NOT NULL,
    kept INTEGER NOT NULL,
    filtered INTEGER NOT NULL,
    degraded INTEGER NOT NULL,
    digest TEXT
);

CREATE TABLE IF NOT EXISTS items (
    run_id TEXT NOT NULL REFERENCES runs(run_id),
    position INTEGER NOT NULL,
    row_index INTEGER NOT NULL,
    idea_id TEXT NOT NULL,
    problem TEXT NOT NULL,
    solution TEXT NOT NULL,
    decision TEXT NOT NULL,
    score INTEGER,
    rationale TEXT,
    conclusion TEXT,
    analysis TEXT NOT NULL,
    degraded INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, position)
);

CREATE TABLE IF NOT EXISTS citations (
    run_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    quote TEXT NOT NULL,
    url TEXT NOT NULL,
    basis TEXT NOT NULL,
    confidence REAL NOT NULL,
    FOREIGN KEY (run_id, position) REFERENCES items(run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_items_decision ON items(run_id, decision);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "duplicate groups, issues and skipped rows",
		Up: func(tx *sql.Tx) error {
			stmts := []string{
				`ALTER TABLE items ADD COLUMN duplicate_group INTEGER NOT NULL DEFAULT 0`,
				`ALTER TABLE items ADD COLUMN issues TEXT`,
				`CREATE TABLE IF NOT EXISTS skipped_rows (
    run_id TEXT NOT NULL REFERENCES runs(run_id),
    row_index INTEGER NOT NULL,
    PRIMARY KEY (run_id, row_index)
)`,
			}
			for _, s := range stmts {
				if _, err := tx.Exec(s); err != nil {
					return err
				}
			}
			return nil
		},
	},
}

// latestVersion returns the highest migration version.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
