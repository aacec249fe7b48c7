package rest

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thermostat-io/icomfort-bridge/internal/api"
	"github.com/thermostat-io/icomfort-bridge/internal/dispatch"
	"github.com/thermostat-io/icomfort-bridge/internal/poller"
	"github.com/thermostat-io/icomfort-bridge/internal/state"
)

type stubCloud struct{}

func (stubCloud) Login(ctx context.Context) error { return nil }
func (stubCloud) Logout()                         {}

func (stubCloud) OwnerProfile(ctx context.Context) (api.OwnerProfile, error) {
	return api.OwnerProfile{ReturnStatus: api.StatusSuccess}, nil
}

func (stubCloud) Buildings(ctx context.Context) (api.Buildings, error) {
	return api.Buildings{ReturnStatus: api.StatusSuccess}, nil
}

func (stubCloud) Systems(ctx context.Context) (api.SystemsInfo, error) {
	return api.SystemsInfo{
		ReturnStatus: api.StatusSuccess,
		Systems:      []api.SystemInfo{{GatewaySN: "WS1", SystemName: "Home"}},
	}, nil
}

func (stubCloud) GatewayInfo(ctx context.Context, sn string, unit api.TempUnit) (api.GatewayInfo, error) {
	return api.GatewayInfo{
		ReturnStatus:             api.StatusSuccess,
		PreferredTemperatureUnit: unit,
		HeatSetPointLowLimit:     40,
		HeatSetPointHighLimit:    90,
		CoolSetPointLowLimit:     60,
		CoolSetPointHighLimit:    99,
		HeatCoolDeadBand:         3,
	}, nil
}

func (stubCloud) Alerts(ctx context.Context, sn string, lang api.PreferredLanguage, count int) (api.Alerts, error) {
	return api.Alerts{ReturnStatus: api.StatusSuccess}, nil
}

func (stubCloud) ZoneStatusList(ctx context.Context, sn string, unit api.TempUnit) (api.ZonesStatus, error) {
	return api.ZonesStatus{
		ReturnStatus: api.StatusSuccess,
		Zones: []api.ZoneStatus{{
			GatewaySN:     "WS1",
			ZoneNumber:    1,
			ZoneName:      "Main Floor",
			IndoorTemp:    71.5,
			HeatSetPoint:  68,
			CoolSetPoint:  75,
			OperationMode: api.OperationHeatOrCool,
		}},
	}, nil
}

type recordingGateway struct {
	tstat []api.SetTStatInfoRequest
	away  []api.SetAwayModeRequest
}

func (g *recordingGateway) SetTStatInfo(ctx context.Context, req api.SetTStatInfoRequest) error {
	g.tstat = append(g.tstat, req)
	return nil
}

func (g *recordingGateway) SetAwayMode(ctx context.Context, req api.SetAwayModeRequest) (api.ZonesStatus, error) {
	g.away = append(g.away, req)
	return api.ZonesStatus{ReturnStatus: api.StatusUnknown}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *recordingGateway) {
	t.Helper()
	repo := state.NewRepository(stubCloud{}, 10)
	require.NoError(t, repo.Login(context.Background()))
	require.NoError(t, repo.Refresh(context.Background()))

	p := poller.New(repo, time.Hour)
	gw := &recordingGateway{}
	d := dispatch.New(gw, repo, p)

	database, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	_, err = database.Exec(`CREATE TABLE alert_observations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		gateway_sn TEXT NOT NULL, alarm_number INTEGER NOT NULL,
		alarm_type TEXT NOT NULL, description TEXT NOT NULL,
		status TEXT NOT NULL, set_at TEXT NOT NULL, observed_at TEXT NOT NULL)`)
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(repo, d, p, database).Handler())
	t.Cleanup(srv.Close)
	return srv, gw
}

func doJSON(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestGetZones(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/zones", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var zones []ZoneResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&zones))
	require.Len(t, zones, 1)
	assert.Equal(t, "WS1_1", zones[0].ID)
	assert.Equal(t, "Main Floor", zones[0].Name)
	assert.Equal(t, 71.5, zones[0].Temperature)
	assert.Equal(t, "heatcool", zones[0].Mode)
}

func TestGetZone_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/zones/WS9_1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPutHeatSetpoint(t *testing.T) {
	srv, gw := newTestServer(t)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/zones/WS1_1/heat-setpoint", `{"value":70}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, gw.tstat, 1)
	assert.Equal(t, 70.0, gw.tstat[0].HeatSetPoint)
}

func TestPutHeatSetpoint_OutOfRange(t *testing.T) {
	srv, gw := newTestServer(t)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/zones/WS1_1/heat-setpoint", `{"value":120}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, gw.tstat)
}

func TestPutHeatSetpoint_AlternateUnitSwitchesFirst(t *testing.T) {
	srv, gw := newTestServer(t)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/zones/WS1_1/heat-setpoint", `{"value":70,"unit":"celsius"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, gw.tstat, 1)
	assert.Equal(t, 70.0, gw.tstat[0].HeatSetPoint)

	zones := doJSON(t, http.MethodGet, srv.URL+"/api/zones/WS1_1", "")
	var z ZoneResponse
	require.NoError(t, json.NewDecoder(zones.Body).Decode(&z))
	assert.Equal(t, "celsius", z.TemperatureUnit)
}

func TestPutHeatSetpoint_InvalidUnit(t *testing.T) {
	srv, gw := newTestServer(t)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/zones/WS1_1/heat-setpoint", `{"value":70,"unit":"kelvin"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, gw.tstat)
}

func TestPutMode(t *testing.T) {
	srv, gw := newTestServer(t)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/zones/WS1_1/mode", `{"mode":"heat"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, gw.tstat, 1)
	assert.Equal(t, int(api.OperationHeatOnly), gw.tstat[0].OperationMode)
}

func TestPutMode_Invalid(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPut, srv.URL+"/api/zones/WS1_1/mode", `{"mode":"defrost"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPutAway(t *testing.T) {
	srv, gw := newTestServer(t)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/zones/WS1_1/away", `{"away":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, gw.away, 1)
	assert.Equal(t, 1, gw.away[0].AwayMode)
}

func TestGetSystems(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/systems", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var systems []SystemResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&systems))
	require.Len(t, systems, 1)
	assert.Equal(t, "WS1", systems[0].GatewaySN)
	assert.Equal(t, []string{"WS1_1"}, systems[0].Zones)
}

func TestPutUnit(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/systems/WS1/unit", `{"unit":"celsius"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	zones := doJSON(t, http.MethodGet, srv.URL+"/api/zones/WS1_1", "")
	var z ZoneResponse
	require.NoError(t, json.NewDecoder(zones.Body).Decode(&z))
	assert.Equal(t, "celsius", z.TemperatureUnit)
}

func TestGetAlertHistory_Empty(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/systems/WS1/alerts/history", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var history []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	assert.Empty(t, history)
}

func TestGetStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "OFFLINE", status.Status)
	assert.Equal(t, 1, status.Systems)
}
