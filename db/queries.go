package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thermostat-io/icomfort-bridge/internal/api"
)

// StatusTransition is one journaled connectivity change.
type StatusTransition struct {
	Status     string
	ObservedAt time.Time
}

// AlertObservation is one journaled alarm record.
type AlertObservation struct {
	GatewaySN   string
	AlarmNumber int
	AlarmType   string
	Description string
	Status      string
	SetAt       time.Time
	ObservedAt  time.Time
}

// RecordStatusTransition appends a connectivity change to the journal.
func RecordStatusTransition(database *sql.DB, status string) error {
	_, err := database.Exec(
		`INSERT INTO status_transitions (status, observed_at) VALUES (?, ?)`,
		status, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record status transition: %w", err)
	}
	return nil
}

// RecordAlert journals one alarm observation. The same alarm seen on
// later cycles is ignored; a re-raised alarm has a new set time and gets
// a fresh row.
func RecordAlert(database *sql.DB, gatewaySN string, a api.Alert) (bool, error) {
	res, err := database.Exec(
		`INSERT OR IGNORE INTO alert_observations
		 (gateway_sn, alarm_number, alarm_type, description, status, set_at, observed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		gatewaySN, a.Number, a.Type, a.Description, a.Status.String(),
		a.SetAt.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("failed to record alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return n > 0, nil
}

// RecentAlerts returns the newest alert observations for a gateway, most
// recent first.
func RecentAlerts(database *sql.DB, gatewaySN string, limit int) ([]AlertObservation, error) {
	rows, err := database.Query(
		`SELECT gateway_sn, alarm_number, alarm_type, description, status, set_at, observed_at
		 FROM alert_observations WHERE gateway_sn = ?
		 ORDER BY observed_at DESC, id DESC LIMIT ?`,
		gatewaySN, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var out []AlertObservation
	for rows.Next() {
		var obs AlertObservation
		var setAt, observedAt string
		if err := rows.Scan(&obs.GatewaySN, &obs.AlarmNumber, &obs.AlarmType,
			&obs.Description, &obs.Status, &setAt, &observedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		obs.SetAt = parseJournalTime("set_at", setAt)
		obs.ObservedAt = parseJournalTime("observed_at", observedAt)
		out = append(out, obs)
	}
	return out, rows.Err()
}

// parseJournalTime decodes a stored timestamp. A corrupt value is logged
// and read as the zero time so one bad row cannot hide the rest of the
// journal.
func parseJournalTime(column, value string) time.Time {
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		log.Warn().Err(err).Str("column", column).Str("value", value).
			Msg("Corrupt journal timestamp")
		return time.Time{}
	}
	return ts
}

// RecentStatusTransitions returns the newest connectivity changes, most
// recent first.
func RecentStatusTransitions(database *sql.DB, limit int) ([]StatusTransition, error) {
	rows, err := database.Query(
		`SELECT status, observed_at FROM status_transitions
		 ORDER BY observed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query status transitions: %w", err)
	}
	defer rows.Close()

	var out []StatusTransition
	for rows.Next() {
		var st StatusTransition
		var observedAt string
		if err := rows.Scan(&st.Status, &observedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status transition: %w", err)
		}
		st.ObservedAt = parseJournalTime("observed_at", observedAt)
		out = append(out, st)
	}
	return out, rows.Err()
}
