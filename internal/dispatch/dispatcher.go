package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thermostat-io/icomfort-bridge/internal/api"
	"github.com/thermostat-io/icomfort-bridge/internal/datadog"
	"github.com/thermostat-io/icomfort-bridge/internal/state"
)

// ErrSetpointOutOfRange is returned when a requested setpoint falls
// outside the limits the gateway reports. The write is never attempted.
var ErrSetpointOutOfRange = errors.New("setpoint outside gateway limits")

// ErrUnknownZone is returned when no cached zone matches the given id.
var ErrUnknownZone = errors.New("unknown zone")

// Gateway is the subset of the cloud client the dispatcher writes through.
type Gateway interface {
	SetTStatInfo(ctx context.Context, req api.SetTStatInfoRequest) error
	SetAwayMode(ctx context.Context, req api.SetAwayModeRequest) (api.ZonesStatus, error)
}

// ConnectivityReporter is told about write-path timeouts so the scheduler
// can flip the bridge offline without waiting for the next poll.
type ConnectivityReporter interface {
	ReportTimeout()
}

// Dispatcher turns intent-level commands into vendor write calls. Every
// command reads the zone's current state from the repository snapshot,
// changes one aspect, and sends the full payload back. A command that
// times out is reported and swallowed: the next successful poll shows
// whether the write landed.
type Dispatcher struct {
	gateway Gateway
	repo    *state.Repository
	conn    ConnectivityReporter
}

func New(gateway Gateway, repo *state.Repository, conn ConnectivityReporter) *Dispatcher {
	return &Dispatcher{gateway: gateway, repo: repo, conn: conn}
}

// SetHeatingSetpoint writes a new heat setpoint, validated against the
// owning system's heat limits and the heat/cool dead band.
func (d *Dispatcher) SetHeatingSetpoint(ctx context.Context, zoneID string, value float64) error {
	zone, sys, err := d.lookup(zoneID)
	if err != nil {
		return err
	}

	gw := sys.Gateway
	if value < gw.HeatSetPointLowLimit || value > gw.HeatSetPointHighLimit {
		return fmt.Errorf("%w: heat setpoint %.1f not in [%.1f, %.1f]",
			ErrSetpointOutOfRange, value, gw.HeatSetPointLowLimit, gw.HeatSetPointHighLimit)
	}

	req := api.NewSetTStatInfoRequest(*zone)
	req.HeatSetPoint = value
	if req.CoolSetPoint < value+gw.HeatCoolDeadBand {
		req.CoolSetPoint = clamp(value+gw.HeatCoolDeadBand, gw.CoolSetPointLowLimit, gw.CoolSetPointHighLimit)
	}
	return d.write(ctx, "heat_setpoint", zoneID, req)
}

// SetCoolingSetpoint writes a new cool setpoint, validated against the
// owning system's cool limits and the heat/cool dead band.
func (d *Dispatcher) SetCoolingSetpoint(ctx context.Context, zoneID string, value float64) error {
	zone, sys, err := d.lookup(zoneID)
	if err != nil {
		return err
	}

	gw := sys.Gateway
	if value < gw.CoolSetPointLowLimit || value > gw.CoolSetPointHighLimit {
		return fmt.Errorf("%w: cool setpoint %.1f not in [%.1f, %.1f]",
			ErrSetpointOutOfRange, value, gw.CoolSetPointLowLimit, gw.CoolSetPointHighLimit)
	}

	req := api.NewSetTStatInfoRequest(*zone)
	req.CoolSetPoint = value
	if req.HeatSetPoint > value-gw.HeatCoolDeadBand {
		req.HeatSetPoint = clamp(value-gw.HeatCoolDeadBand, gw.HeatSetPointLowLimit, gw.HeatSetPointHighLimit)
	}
	return d.write(ctx, "cool_setpoint", zoneID, req)
}

// SetOperationMode writes a raw thermostat mode. No validation beyond zone
// existence: the service rejects what the equipment cannot do.
func (d *Dispatcher) SetOperationMode(ctx context.Context, zoneID string, mode api.OperationMode) error {
	zone, _, err := d.lookup(zoneID)
	if err != nil {
		return err
	}
	req := api.NewSetTStatInfoRequest(*zone)
	req.OperationMode = int(mode)
	return d.write(ctx, "operation_mode", zoneID, req)
}

// SetFanMode writes a raw fan mode.
func (d *Dispatcher) SetFanMode(ctx context.Context, zoneID string, mode api.FanMode) error {
	zone, _, err := d.lookup(zoneID)
	if err != nil {
		return err
	}
	req := api.NewSetTStatInfoRequest(*zone)
	req.FanMode = int(mode)
	return d.write(ctx, "fan_mode", zoneID, req)
}

// SetAwayMode flips the away flag. Unlike the other writes this endpoint
// answers with a fresh zone list, which is folded straight back into the
// snapshot so readers see the change before the next poll.
func (d *Dispatcher) SetAwayMode(ctx context.Context, zoneID string, away api.AwayStatus) error {
	zone, sys, err := d.lookup(zoneID)
	if err != nil {
		return err
	}

	req := api.NewSetAwayModeRequest(*zone)
	req.AwayMode = int(away)

	zones, err := d.gateway.SetAwayMode(ctx, req)
	if err != nil {
		return d.absorbTimeout("away_mode", zoneID, err)
	}
	datadog.Count("dispatch.command", 1, "command:away_mode")

	if zones.ReturnStatus == api.StatusSuccess {
		d.repo.MergeZones(sys.GatewaySN, zones)
	} else {
		log.Warn().Str("zone_id", zoneID).Str("status", string(zones.ReturnStatus)).
			Msg("Away-mode response not merged")
	}
	return nil
}

// SetUnifiedMode decomposes a normalized mode into the away flag and raw
// mode writes the service understands.
func (d *Dispatcher) SetUnifiedMode(ctx context.Context, zoneID string, mode api.UnifiedMode) error {
	zone, _, err := d.lookup(zoneID)
	if err != nil {
		return err
	}

	if mode == api.UnifiedEco {
		if zone.AwayMode != api.AwayOn {
			return d.SetAwayMode(ctx, zoneID, api.AwayOn)
		}
		return nil
	}

	// Every non-eco mode implies away off first.
	if zone.AwayMode == api.AwayOn {
		if err := d.SetAwayMode(ctx, zoneID, api.AwayOff); err != nil {
			return err
		}
	}

	switch mode {
	case api.UnifiedOff:
		return d.SetOperationMode(ctx, zoneID, api.OperationOff)
	case api.UnifiedHeat:
		return d.SetOperationMode(ctx, zoneID, api.OperationHeatOnly)
	case api.UnifiedCool:
		return d.SetOperationMode(ctx, zoneID, api.OperationCoolOnly)
	case api.UnifiedHeatCool:
		return d.SetOperationMode(ctx, zoneID, api.OperationHeatOrCool)
	case api.UnifiedFanOnly:
		if err := d.SetOperationMode(ctx, zoneID, api.OperationOff); err != nil {
			return err
		}
		return d.SetFanMode(ctx, zoneID, api.FanCirculate)
	}
	return fmt.Errorf("unsupported mode %q", mode)
}

// SetTemperatureUnit switches every system to the given display unit by
// forcing a full refresh in that unit; the service has no per-zone unit
// write.
func (d *Dispatcher) SetTemperatureUnit(ctx context.Context, unit api.TempUnit) error {
	err := d.repo.RefreshWithUnit(ctx, unit)
	if err != nil && errors.Is(err, api.ErrTimeout) {
		if d.conn != nil {
			d.conn.ReportTimeout()
		}
		return nil
	}
	return err
}

// clamp keeps a pushed companion setpoint inside its own limit range.
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (d *Dispatcher) lookup(zoneID string) (*api.ZoneStatus, *api.SystemInfo, error) {
	zone, sys := d.repo.Snapshot().ZoneByID(zoneID)
	if zone == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownZone, zoneID)
	}
	return zone, sys, nil
}

func (d *Dispatcher) write(ctx context.Context, command, zoneID string, req api.SetTStatInfoRequest) error {
	if err := d.gateway.SetTStatInfo(ctx, req); err != nil {
		return d.absorbTimeout(command, zoneID, err)
	}
	datadog.Count("dispatch.command", 1, "command:"+command)
	log.Info().Str("zone_id", zoneID).Str("command", command).Msg("Command dispatched")

	// The write endpoint returns no body; re-poll so the snapshot shows
	// the observed outcome instead of the assumed one.
	if err := d.repo.Refresh(ctx); err != nil {
		return d.absorbTimeout(command+"_reconcile", zoneID, err)
	}
	return nil
}

// absorbTimeout reports transport timeouts to the connectivity reporter
// and swallows them; anything else bubbles up.
func (d *Dispatcher) absorbTimeout(command, zoneID string, err error) error {
	if errors.Is(err, api.ErrTimeout) {
		log.Warn().Str("zone_id", zoneID).Str("command", command).
			Msg("Command timed out, state will reconcile on next poll")
		datadog.Count("dispatch.timeout", 1, "command:"+command)
		if d.conn != nil {
			d.conn.ReportTimeout()
		}
		return nil
	}
	return err
}
