package view

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thermostat-io/icomfort-bridge/internal/api"
	"github.com/thermostat-io/icomfort-bridge/internal/datadog"
	"github.com/thermostat-io/icomfort-bridge/internal/state"
)

// Channel names published for each zone.
const (
	ChannelTemperature      = "temperature"
	ChannelHumidity         = "humidity"
	ChannelHeatSetpoint     = "heat_setpoint"
	ChannelCoolSetpoint     = "cool_setpoint"
	ChannelOperationMode    = "operation_mode"
	ChannelFanMode          = "fan_mode"
	ChannelAwayMode         = "away_mode"
	ChannelUnifiedMode      = "mode"
	ChannelSystemStatus     = "system_status"
	ChannelConnectionStatus = "connection_status"
)

// Channel names published for each system.
const (
	ChannelTemperatureUnit = "temperature_unit"
	ChannelAlert           = "alert"
	ChannelAlertCount      = "alert_count"
)

// BridgeSubject and its connectivity channel carry bridge-wide status.
const (
	BridgeSubject       = "bridge"
	ChannelConnectivity = "connectivity"
)

// ChannelPublisher receives channel updates. Subject is a zone id, a
// gateway serial or BridgeSubject depending on the channel.
type ChannelPublisher interface {
	Publish(subject, channel string, value any)
}

// PublisherFunc adapts a function to ChannelPublisher.
type PublisherFunc func(subject, channel string, value any)

func (f PublisherFunc) Publish(subject, channel string, value any) { f(subject, channel, value) }

// StatusSink receives bridge connectivity transitions. *Registry
// implements it so the poller's status listener can feed the channel
// surface directly.
type StatusSink interface {
	SetStatus(online bool)
}

// SystemView projects one system's gateway info and alert list onto
// channels. The alert index selects which record of the list is surfaced
// on the alert text channel.
type SystemView struct {
	gatewaySN  string
	alertIndex int
}

// ZoneView projects one zone's readings and modes onto channels.
type ZoneView struct {
	zoneID string
}

// Registry owns the SystemView/ZoneView set, correlates snapshot entries
// to views by gateway serial / zone id (creating views on first sight),
// and publishes only values that changed since the last snapshot. One
// instance per bridge; feed it from the poller's snapshot callback.
type Registry struct {
	pub ChannelPublisher

	mu      sync.Mutex
	last    map[string]any // subject+"/"+channel -> last published value
	systems map[string]*SystemView
	zones   map[string]*ZoneView
}

func NewRegistry(pub ChannelPublisher) *Registry {
	return &Registry{
		pub:     pub,
		last:    make(map[string]any),
		systems: make(map[string]*SystemView),
		zones:   make(map[string]*ZoneView),
	}
}

// SetAlertIndex selects which alert record of a system's list is surfaced
// on its alert channel. Out-of-range selections publish an empty string
// until the list grows. The next snapshot republishes.
func (r *Registry) SetAlertIndex(gatewaySN string, index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 {
		index = 0
	}
	r.systemView(gatewaySN).alertIndex = index
	delete(r.last, key(gatewaySN, ChannelAlert))
}

// SetStatus publishes bridge connectivity; repeats are absorbed by the
// change filter like any other channel.
func (r *Registry) SetStatus(online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publish(BridgeSubject, ChannelConnectivity, online)
}

// Apply walks the snapshot and lets each correlated view publish its
// changed channels.
func (r *Registry) Apply(snap *state.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range snap.Systems.Systems {
		sys := &snap.Systems.Systems[i]
		r.systemView(sys.GatewaySN).applyUpdate(r, sys)
		for j := range sys.Zones.Zones {
			z := &sys.Zones.Zones[j]
			r.zoneView(z.ZoneID()).applyUpdate(r, z)
		}
	}
}

func (r *Registry) systemView(gatewaySN string) *SystemView {
	v, ok := r.systems[gatewaySN]
	if !ok {
		v = &SystemView{gatewaySN: gatewaySN}
		r.systems[gatewaySN] = v
	}
	return v
}

func (r *Registry) zoneView(zoneID string) *ZoneView {
	v, ok := r.zones[zoneID]
	if !ok {
		v = &ZoneView{zoneID: zoneID}
		r.zones[zoneID] = v
	}
	return v
}

func (v *SystemView) applyUpdate(r *Registry, sys *api.SystemInfo) {
	if sys.Gateway.ReturnStatus == api.StatusSuccess {
		r.publish(v.gatewaySN, ChannelTemperatureUnit, sys.Gateway.PreferredTemperatureUnit.String())
	}
	if sys.Alerts.ReturnStatus != api.StatusSuccess {
		return
	}
	r.publish(v.gatewaySN, ChannelAlertCount, len(sys.Alerts.Alerts))
	text := ""
	if v.alertIndex < len(sys.Alerts.Alerts) {
		a := sys.Alerts.Alerts[v.alertIndex]
		text = fmt.Sprintf("%d: %s", a.Number, a.Description)
	}
	r.publish(v.gatewaySN, ChannelAlert, text)
}

func (v *ZoneView) applyUpdate(r *Registry, z *api.ZoneStatus) {
	unknown := z.SystemStatus == api.SystemStatusUnknown && z.ConnectionStatus == api.ConnectionUnknown
	if unknown {
		// Invalidated zone: readings are stale, only say the link is gone.
		r.publish(v.zoneID, ChannelConnectionStatus, string(api.ConnectionUnknown))
		return
	}

	r.publish(v.zoneID, ChannelTemperature, z.IndoorTemp)
	r.publish(v.zoneID, ChannelHumidity, z.IndoorHumidity)
	r.publish(v.zoneID, ChannelHeatSetpoint, z.HeatSetPoint)
	r.publish(v.zoneID, ChannelCoolSetpoint, z.CoolSetPoint)
	r.publish(v.zoneID, ChannelOperationMode, z.OperationMode.String())
	r.publish(v.zoneID, ChannelFanMode, z.FanMode.String())
	r.publish(v.zoneID, ChannelAwayMode, z.AwayMode == api.AwayOn)
	r.publish(v.zoneID, ChannelUnifiedMode, string(z.UnifiedMode()))
	r.publish(v.zoneID, ChannelSystemStatus, z.SystemStatus.String())
	r.publish(v.zoneID, ChannelConnectionStatus, string(z.ConnectionStatus))

	datadog.Gauge("zone.temperature", z.IndoorTemp, "zone_id:"+v.zoneID)
	datadog.Gauge("zone.humidity", float64(z.IndoorHumidity), "zone_id:"+v.zoneID)
}

func (r *Registry) publish(subject, channel string, value any) {
	k := key(subject, channel)
	if prev, ok := r.last[k]; ok && prev == value {
		return
	}
	r.last[k] = value
	log.Debug().Str("subject", subject).Str("channel", channel).Interface("value", value).
		Msg("Channel updated")
	r.pub.Publish(subject, channel, value)
}

func key(subject, channel string) string {
	return subject + "/" + channel
}
