package dispatch

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thermostat-io/icomfort-bridge/internal/api"
	"github.com/thermostat-io/icomfort-bridge/internal/state"
)

// stubCloud feeds the repository one healthy system with known limits.
type stubCloud struct {
	zones   api.ZonesStatus
	gateway *api.GatewayInfo
}

func (s *stubCloud) Login(ctx context.Context) error { return nil }
func (s *stubCloud) Logout()                         {}

func (s *stubCloud) OwnerProfile(ctx context.Context) (api.OwnerProfile, error) {
	return api.OwnerProfile{ReturnStatus: api.StatusSuccess}, nil
}

func (s *stubCloud) Buildings(ctx context.Context) (api.Buildings, error) {
	return api.Buildings{ReturnStatus: api.StatusSuccess}, nil
}

func (s *stubCloud) Systems(ctx context.Context) (api.SystemsInfo, error) {
	return api.SystemsInfo{
		ReturnStatus: api.StatusSuccess,
		Systems:      []api.SystemInfo{{GatewaySN: "WS1", SystemName: "Home"}},
	}, nil
}

func (s *stubCloud) GatewayInfo(ctx context.Context, sn string, unit api.TempUnit) (api.GatewayInfo, error) {
	if s.gateway != nil {
		gw := *s.gateway
		gw.PreferredTemperatureUnit = unit
		return gw, nil
	}
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

func (s *stubCloud) Alerts(ctx context.Context, sn string, lang api.PreferredLanguage, count int) (api.Alerts, error) {
	return api.Alerts{ReturnStatus: api.StatusSuccess}, nil
}

func (s *stubCloud) ZoneStatusList(ctx context.Context, sn string, unit api.TempUnit) (api.ZonesStatus, error) {
	return s.zones, nil
}

// fakeGateway records write calls.
type fakeGateway struct {
	tstatCalls []api.SetTStatInfoRequest
	awayCalls  []api.SetAwayModeRequest
	tstatErr   error
	awayErr    error
	awayReply  api.ZonesStatus
}

func (g *fakeGateway) SetTStatInfo(ctx context.Context, req api.SetTStatInfoRequest) error {
	if g.tstatErr != nil {
		return g.tstatErr
	}
	g.tstatCalls = append(g.tstatCalls, req)
	return nil
}

func (g *fakeGateway) SetAwayMode(ctx context.Context, req api.SetAwayModeRequest) (api.ZonesStatus, error) {
	if g.awayErr != nil {
		return api.ZonesStatus{ReturnStatus: api.StatusUnknown}, g.awayErr
	}
	g.awayCalls = append(g.awayCalls, req)
	return g.awayReply, nil
}

type fakeReporter struct {
	timeouts int
}

func (r *fakeReporter) ReportTimeout() { r.timeouts++ }

func setup(t *testing.T, zone api.ZoneStatus) (*Dispatcher, *fakeGateway, *fakeReporter, *state.Repository) {
	t.Helper()
	zone.GatewaySN = "WS1"
	if zone.ZoneNumber == 0 {
		zone.ZoneNumber = 1
	}
	cloud := &stubCloud{zones: api.ZonesStatus{
		ReturnStatus: api.StatusSuccess,
		Zones:        []api.ZoneStatus{zone},
	}}
	repo := state.NewRepository(cloud, 10)
	require.NoError(t, repo.Login(context.Background()))
	require.NoError(t, repo.Refresh(context.Background()))

	gw := &fakeGateway{awayReply: api.ZonesStatus{ReturnStatus: api.StatusUnknown}}
	reporter := &fakeReporter{}
	return New(gw, repo, reporter), gw, reporter, repo
}

func TestSetHeatingSetpoint_SendsFullPayload(t *testing.T) {
	d, gw, _, _ := setup(t, api.ZoneStatus{
		HeatSetPoint: 68, CoolSetPoint: 75,
		OperationMode: api.OperationHeatOrCool, FanMode: api.FanAuto,
	})

	require.NoError(t, d.SetHeatingSetpoint(context.Background(), "WS1_1", 70))

	require.Len(t, gw.tstatCalls, 1)
	req := gw.tstatCalls[0]
	assert.Equal(t, 70.0, req.HeatSetPoint)
	assert.Equal(t, 75.0, req.CoolSetPoint)
	assert.Equal(t, int(api.OperationHeatOrCool), req.OperationMode)
	assert.Equal(t, "WS1", req.GatewaySN)
	assert.Equal(t, 1, req.ZoneNumber)
}

func TestSetHeatingSetpoint_PushesCoolAcrossDeadBand(t *testing.T) {
	d, gw, _, _ := setup(t, api.ZoneStatus{HeatSetPoint: 68, CoolSetPoint: 72})

	require.NoError(t, d.SetHeatingSetpoint(context.Background(), "WS1_1", 71))

	require.Len(t, gw.tstatCalls, 1)
	assert.Equal(t, 74.0, gw.tstatCalls[0].CoolSetPoint, "cool must keep the dead band distance")
}

func TestSetpoint_DeadBandPushClampedToCompanionLimits(t *testing.T) {
	cloud := &stubCloud{
		zones: api.ZonesStatus{ReturnStatus: api.StatusSuccess, Zones: []api.ZoneStatus{{
			GatewaySN: "WS1", ZoneNumber: 1, HeatSetPoint: 68, CoolSetPoint: 72,
		}}},
		gateway: &api.GatewayInfo{
			ReturnStatus:          api.StatusSuccess,
			HeatSetPointLowLimit:  58,
			HeatSetPointHighLimit: 90,
			CoolSetPointLowLimit:  60,
			CoolSetPointHighLimit: 92,
			HeatCoolDeadBand:      3,
		},
	}
	repo := state.NewRepository(cloud, 10)
	require.NoError(t, repo.Login(context.Background()))
	require.NoError(t, repo.Refresh(context.Background()))
	gw := &fakeGateway{}
	d := New(gw, repo, &fakeReporter{})

	// Heat at its high limit would push cool past cool's own ceiling.
	require.NoError(t, d.SetHeatingSetpoint(context.Background(), "WS1_1", 90))
	require.Len(t, gw.tstatCalls, 1)
	assert.Equal(t, 92.0, gw.tstatCalls[0].CoolSetPoint, "pushed cool must stop at its high limit")

	// Cool at its low limit would push heat below heat's own floor.
	require.NoError(t, d.SetCoolingSetpoint(context.Background(), "WS1_1", 60))
	require.Len(t, gw.tstatCalls, 2)
	assert.Equal(t, 58.0, gw.tstatCalls[1].HeatSetPoint, "pushed heat must stop at its low limit")
}

func TestSetpoint_OutOfRangeNeverWrites(t *testing.T) {
	d, gw, _, _ := setup(t, api.ZoneStatus{HeatSetPoint: 68, CoolSetPoint: 75})

	err := d.SetHeatingSetpoint(context.Background(), "WS1_1", 95)
	assert.ErrorIs(t, err, ErrSetpointOutOfRange)

	err = d.SetCoolingSetpoint(context.Background(), "WS1_1", 50)
	assert.ErrorIs(t, err, ErrSetpointOutOfRange)

	assert.Empty(t, gw.tstatCalls, "out-of-range setpoints must not reach the service")
}

func TestSetpoint_UnknownZone(t *testing.T) {
	d, _, _, _ := setup(t, api.ZoneStatus{})
	err := d.SetHeatingSetpoint(context.Background(), "WS9_1", 70)
	assert.ErrorIs(t, err, ErrUnknownZone)
}

func TestWrite_TimeoutIsReportedAndSwallowed(t *testing.T) {
	d, gw, reporter, _ := setup(t, api.ZoneStatus{HeatSetPoint: 68, CoolSetPoint: 75})
	gw.tstatErr = fmt.Errorf("put: %w", api.ErrTimeout)

	err := d.SetOperationMode(context.Background(), "WS1_1", api.OperationHeatOnly)
	assert.NoError(t, err, "timeouts reconcile via polling, they are not command failures")
	assert.Equal(t, 1, reporter.timeouts)
}

func TestSetAwayMode_MergesReply(t *testing.T) {
	d, gw, _, repo := setup(t, api.ZoneStatus{AwayMode: api.AwayOff})
	gw.awayReply = api.ZonesStatus{
		ReturnStatus: api.StatusSuccess,
		Zones:        []api.ZoneStatus{{GatewaySN: "WS1", ZoneNumber: 1, AwayMode: api.AwayOn}},
	}

	require.NoError(t, d.SetAwayMode(context.Background(), "WS1_1", api.AwayOn))

	require.Len(t, gw.awayCalls, 1)
	assert.Equal(t, 1, gw.awayCalls[0].AwayMode)

	zone, _ := repo.Snapshot().ZoneByID("WS1_1")
	require.NotNil(t, zone)
	assert.Equal(t, api.AwayOn, zone.AwayMode, "reply must be folded into the snapshot")
}

func TestSetUnifiedMode_Decomposition(t *testing.T) {
	tests := []struct {
		name     string
		zone     api.ZoneStatus
		mode     api.UnifiedMode
		wantOp   []int
		wantFan  []int
		wantAway []int
	}{
		{
			name:   "heat",
			zone:   api.ZoneStatus{OperationMode: api.OperationOff},
			mode:   api.UnifiedHeat,
			wantOp: []int{int(api.OperationHeatOnly)},
		},
		{
			name:     "eco from normal",
			zone:     api.ZoneStatus{OperationMode: api.OperationHeatOnly},
			mode:     api.UnifiedEco,
			wantAway: []int{int(api.AwayOn)},
		},
		{
			name:     "cool while away lifts away first",
			zone:     api.ZoneStatus{AwayMode: api.AwayOn, OperationMode: api.OperationHeatOnly},
			mode:     api.UnifiedCool,
			wantAway: []int{int(api.AwayOff)},
			wantOp:   []int{int(api.OperationCoolOnly)},
		},
		{
			name:    "fan only",
			zone:    api.ZoneStatus{OperationMode: api.OperationHeatOnly},
			mode:    api.UnifiedFanOnly,
			wantOp:  []int{int(api.OperationOff)},
			wantFan: []int{int(api.FanCirculate)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, gw, _, _ := setup(t, tt.zone)

			require.NoError(t, d.SetUnifiedMode(context.Background(), "WS1_1", tt.mode))

			var gotOp, gotFan, gotAway []int
			for _, c := range gw.tstatCalls {
				if c.OperationMode != int(tt.zone.OperationMode) {
					gotOp = append(gotOp, c.OperationMode)
				}
				if c.FanMode != int(tt.zone.FanMode) {
					gotFan = append(gotFan, c.FanMode)
				}
			}
			for _, c := range gw.awayCalls {
				gotAway = append(gotAway, c.AwayMode)
			}
			assert.Equal(t, tt.wantOp, gotOp)
			assert.Equal(t, tt.wantFan, gotFan)
			assert.Equal(t, tt.wantAway, gotAway)
		})
	}
}

func TestSetUnifiedMode_EcoWhileAwayIsNoop(t *testing.T) {
	d, gw, _, _ := setup(t, api.ZoneStatus{AwayMode: api.AwayOn})

	require.NoError(t, d.SetUnifiedMode(context.Background(), "WS1_1", api.UnifiedEco))
	assert.Empty(t, gw.awayCalls)
	assert.Empty(t, gw.tstatCalls)
}
