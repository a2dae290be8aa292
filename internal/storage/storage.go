// Package storage persists the small durable state that is not in the
// buffer log files: alerts queued while a user has no client attached,
// and the catalog of buffers to recreate after a restart.
package storage

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/matt0x6f/ircquill/internal/logger"
	"github.com/matt0x6f/ircquill/internal/proto"
)

// Storage handles database operations.
type Storage struct {
	db *sqlx.DB
}

// Open opens or creates the state database and runs migrations.
func Open(dbPath string) (*Storage, error) {
	// WAL mode for better concurrent writes.
	db, err := sqlx.Connect("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single connection in WAL mode.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

type alertRow struct {
	ID         int64     `db:"id"`
	User       string    `db:"user"`
	NetworkID  string    `db:"network_id"`
	TargetKind string    `db:"target_kind"`
	TargetName string    `db:"target_name"`
	Message    string    `db:"message"`
	CreatedAt  time.Time `db:"created_at"`
}

// QueueAlert stores an alert for a user with no attached client. It
// is delivered and removed when a client next attaches.
func (s *Storage) QueueAlert(user string, alert proto.Alert) {
	_, err := s.db.Exec(`
		INSERT INTO alerts (user, network_id, target_kind, target_name, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user, alert.NetworkID, string(alert.Target.Kind), alert.Target.Name,
		alert.Message, time.Now())
	if err != nil {
		logger.Log.Error().
			Err(err).
			Str("user", user).
			Msg("Failed to queue alert")
	}
}

// TakeAlerts returns and clears a user's queued alerts, oldest first.
func (s *Storage) TakeAlerts(user string) []proto.Alert {
	var rows []alertRow
	if err := s.db.Select(&rows, `
		SELECT id, user, network_id, target_kind, target_name, message, created_at
		FROM alerts WHERE user = ? ORDER BY id`, user); err != nil {
		logger.Log.Error().
			Err(err).
			Str("user", user).
			Msg("Failed to load queued alerts")
		return nil
	}
	if len(rows) == 0 {
		return nil
	}

	if _, err := s.db.Exec(`DELETE FROM alerts WHERE user = ?`, user); err != nil {
		logger.Log.Error().
			Err(err).
			Str("user", user).
			Msg("Failed to clear queued alerts")
	}

	alerts := make([]proto.Alert, 0, len(rows))
	for _, row := range rows {
		alerts = append(alerts, proto.Alert{
			NetworkID: row.NetworkID,
			Target: proto.Target{
				Kind: proto.TargetKind(row.TargetKind),
				Name: row.TargetName,
			},
			Message: row.Message,
		})
	}
	return alerts
}

// RememberBuffer records a buffer in the catalog so it is recreated,
// with its history pageable, on the next start.
func (s *Storage) RememberBuffer(user, networkID string, target proto.Target) {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO buffers (user, network_id, target_kind, target_name)
		VALUES (?, ?, ?, ?)`,
		user, networkID, string(target.Kind), target.Name)
	if err != nil {
		logger.Log.Error().
			Err(err).
			Str("user", user).
			Str("network", networkID).
			Msg("Failed to catalog buffer")
	}
}

// Buffers returns the cataloged buffers for one of a user's networks.
func (s *Storage) Buffers(user, networkID string) []proto.Target {
	var rows []struct {
		TargetKind string `db:"target_kind"`
		TargetName string `db:"target_name"`
	}
	if err := s.db.Select(&rows, `
		SELECT target_kind, target_name FROM buffers
		WHERE user = ? AND network_id = ? ORDER BY target_name`,
		user, networkID); err != nil {
		logger.Log.Error().
			Err(err).
			Str("user", user).
			Str("network", networkID).
			Msg("Failed to load buffer catalog")
		return nil
	}
	targets := make([]proto.Target, 0, len(rows))
	for _, row := range rows {
		targets = append(targets, proto.Target{
			Kind: proto.TargetKind(row.TargetKind),
			Name: row.TargetName,
		})
	}
	return targets
}
