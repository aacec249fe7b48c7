package db

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thermostat-io/icomfort-bridge/internal/api"
)

func openTestDB(t *testing.T) *sql.DB {
	database, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, migrate(database))
	return database
}

func testAlert(number int, setAt time.Time) api.Alert {
	return api.Alert{
		Number:      number,
		Type:        "Major",
		Description: "Low pressure switch open",
		Status:      api.AlertRaised,
		SetAt:       api.JSONDate{Time: setAt},
	}
}

func TestRecordAlert_DeduplicatesRepeatObservations(t *testing.T) {
	database := openTestDB(t)
	setAt := time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)

	inserted, err := RecordAlert(database, "WS1234567890", testAlert(434, setAt))
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same alarm seen on the next poll cycle.
	inserted, err = RecordAlert(database, "WS1234567890", testAlert(434, setAt))
	require.NoError(t, err)
	assert.False(t, inserted)

	// Re-raised later: new set time, new row.
	inserted, err = RecordAlert(database, "WS1234567890", testAlert(434, setAt.Add(2*time.Hour)))
	require.NoError(t, err)
	assert.True(t, inserted)

	alerts, err := RecentAlerts(database, "WS1234567890", 10)
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
}

func TestRecentAlerts_ScopedToGateway(t *testing.T) {
	database := openTestDB(t)
	setAt := time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)

	_, err := RecordAlert(database, "GW_A", testAlert(1, setAt))
	require.NoError(t, err)
	_, err = RecordAlert(database, "GW_B", testAlert(2, setAt))
	require.NoError(t, err)

	alerts, err := RecentAlerts(database, "GW_A", 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, 1, alerts[0].AlarmNumber)
	assert.Equal(t, "GW_A", alerts[0].GatewaySN)
	assert.Equal(t, setAt, alerts[0].SetAt)
}

func TestRecentAlerts_CorruptTimestampDoesNotHideJournal(t *testing.T) {
	database := openTestDB(t)
	setAt := time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)

	_, err := RecordAlert(database, "WS1", testAlert(11, setAt))
	require.NoError(t, err)
	_, err = database.Exec(
		`INSERT INTO alert_observations
		 (gateway_sn, alarm_number, alarm_type, description, status, set_at, observed_at)
		 VALUES ('WS1', 12, 'Minor', 'Replace filter', 'RAISED', 'not-a-time', '2099-01-01T00:00:00Z')`)
	require.NoError(t, err)

	alerts, err := RecentAlerts(database, "WS1", 10)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, 12, alerts[0].AlarmNumber)
	assert.True(t, alerts[0].SetAt.IsZero(), "unparseable set time reads as zero")
	assert.Equal(t, setAt, alerts[1].SetAt)
}

func TestRecordStatusTransition(t *testing.T) {
	database := openTestDB(t)

	require.NoError(t, RecordStatusTransition(database, "ONLINE"))
	require.NoError(t, RecordStatusTransition(database, "OFFLINE"))

	transitions, err := RecentStatusTransitions(database, 10)
	require.NoError(t, err)
	require.Len(t, transitions, 2)
	assert.Equal(t, "OFFLINE", transitions[0].Status)
	assert.Equal(t, "ONLINE", transitions[1].Status)
}

func TestRecentAlerts_EmptyJournal(t *testing.T) {
	database := openTestDB(t)

	alerts, err := RecentAlerts(database, "NOPE", 10)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}
