package database

import (
	"database/sql"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// getSchemaVersion reads PRAGMA user_version from the database.
func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, eris.Wrap(err, "reading schema version")
	}
	return version, nil
}

// migrate brings the schema up to the latest version, tracked in
// PRAGMA user_version.
func migrate(conn *sql.DB) error {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return err
	}
	if current >= latestVersion() {
		return nil
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		zap.L().Debug("applying archive migration", zap.Int("version", m.Version), zap.String("description", m.Description))

		tx, err := conn.Begin()
		if err != nil {
			return eris.Wrapf(err, "begin migration %d", m.Version)
		}
		if err := m.Up(tx); err != nil {
			tx.Rollback()
			return eris.Wrapf(err, "migration %d (%s)", m.Version, m.Description)
		}
		if err := tx.Commit(); err != nil {
			return eris.Wrapf(err, "commit migration %d", m.Version)
		}

		// modernc/sqlite does not accept user_version inside the transaction.
		if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			return eris.Wrapf(err, "setting version %d", m.Version)
		}
	}
	return nil
}
