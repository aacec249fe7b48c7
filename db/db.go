package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Open opens (creating if needed) the bridge's journal database. The
// journal is an operator audit trail of connectivity transitions and
// alert observations; the live system state itself is never persisted.
func Open(dbPath string) (*sql.DB, error) {
	database, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := migrate(database); err != nil {
		database.Close()
		return nil, err
	}
	log.Info().Str("path", dbPath).Msg("Journal database ready")
	return database, nil
}

func migrate(database *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS status_transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		status TEXT NOT NULL,
		observed_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS alert_observations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		gateway_sn TEXT NOT NULL,
		alarm_number INTEGER NOT NULL,
		alarm_type TEXT NOT NULL,
		description TEXT NOT NULL,
		status TEXT NOT NULL,
		set_at TEXT NOT NULL,
		observed_at TEXT NOT NULL,
		UNIQUE(gateway_sn, alarm_number, set_at)
	);

	CREATE INDEX IF NOT EXISTS idx_alert_gateway ON alert_observations(gateway_sn, observed_at);
	`
	if _, err := database.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
