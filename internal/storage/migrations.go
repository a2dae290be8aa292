package storage

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

const createAlertsTable = `
CREATE TABLE IF NOT EXISTS alerts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user TEXT NOT NULL,
	network_id TEXT NOT NULL,
	target_kind TEXT NOT NULL,
	target_name TEXT NOT NULL,
	message TEXT NOT NULL,
	created_at DATETIME NOT NULL
)`

const createBuffersTable = `
CREATE TABLE IF NOT EXISTS buffers (
	user TEXT NOT NULL,
	network_id TEXT NOT NULL,
	target_kind TEXT NOT NULL,
	target_name TEXT NOT NULL,
	PRIMARY KEY (user, network_id, target_kind, target_name)
)`

const createIndexes = `
CREATE INDEX IF NOT EXISTS idx_alerts_user ON alerts(user)`

// Migrate runs all database migrations.
func Migrate(db *sqlx.DB) error {
	migrations := []string{
		createAlertsTable,
		createBuffersTable,
		createIndexes,
	}
	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
