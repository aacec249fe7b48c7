package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/thermostat-io/icomfort-bridge/internal/api"
	"github.com/thermostat-io/icomfort-bridge/internal/datadog"
)

// DefaultAlertsCount is how many alert records are requested per system per
// cycle.
const DefaultAlertsCount = 20

// CloudClient is the read-side of the vendor client the repository polls
// through. Satisfied by *api.Client.
type CloudClient interface {
	Login(ctx context.Context) error
	Logout()
	OwnerProfile(ctx context.Context) (api.OwnerProfile, error)
	Buildings(ctx context.Context) (api.Buildings, error)
	Systems(ctx context.Context) (api.SystemsInfo, error)
	GatewayInfo(ctx context.Context, gatewaySN string, unit api.TempUnit) (api.GatewayInfo, error)
	Alerts(ctx context.Context, gatewaySN string, lang api.PreferredLanguage, count int) (api.Alerts, error)
	ZoneStatusList(ctx context.Context, gatewaySN string, unit api.TempUnit) (api.ZonesStatus, error)
}

// Snapshot is one immutable view of everything known about the account.
// Snapshots are replaced wholesale, never mutated in place: readers can
// hold one across a refresh without seeing torn state.
type Snapshot struct {
	Profile   api.OwnerProfile
	Buildings api.Buildings
	Systems   api.SystemsInfo
}

// SystemBySN returns the system with the given gateway serial, or nil.
func (s *Snapshot) SystemBySN(gatewaySN string) *api.SystemInfo {
	for i := range s.Systems.Systems {
		if s.Systems.Systems[i].GatewaySN == gatewaySN {
			return &s.Systems.Systems[i]
		}
	}
	return nil
}

// ZoneByID returns the zone with the given id (gatewaySN_zoneNumber) and
// its owning system, or nils when unknown.
func (s *Snapshot) ZoneByID(zoneID string) (*api.ZoneStatus, *api.SystemInfo) {
	for i := range s.Systems.Systems {
		sys := &s.Systems.Systems[i]
		for j := range sys.Zones.Zones {
			if sys.Zones.Zones[j].ZoneID() == zoneID {
				return &sys.Zones.Zones[j], sys
			}
		}
	}
	return nil, nil
}

// clone copies the snapshot and its systems slice so merge steps never
// write into a published snapshot. Nested slices are replaced wholesale by
// the merge, so a shallow system copy is enough.
func (s *Snapshot) clone() *Snapshot {
	next := &Snapshot{
		Profile:   s.Profile,
		Buildings: s.Buildings,
		Systems:   s.Systems,
	}
	next.Systems.Systems = make([]api.SystemInfo, len(s.Systems.Systems))
	copy(next.Systems.Systems, s.Systems.Systems)
	return next
}

// Repository is the in-memory snapshot of the account's systems plus the
// refresh cycle that keeps it current. Mutation is single-writer: every
// refresh/merge runs under one mutex, while readers get the last published
// snapshot lock-free.
type Repository struct {
	client      CloudClient
	alertsCount int

	mu   sync.Mutex // serializes login/refresh/merge cycles
	snap atomic.Pointer[Snapshot]
}

func NewRepository(client CloudClient, alertsCount int) *Repository {
	if alertsCount <= 0 {
		alertsCount = DefaultAlertsCount
	}
	r := &Repository{client: client, alertsCount: alertsCount}
	r.snap.Store(&Snapshot{})
	return r
}

// Snapshot returns the last published snapshot. Never nil.
func (r *Repository) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Login authenticates and bootstraps the snapshot: profile and buildings
// are fetched once here, the systems list seeds the refresh cycle. Each
// system starts with placeholder nested objects (Fahrenheit, English);
// the first refresh replaces them.
func (r *Repository) Login(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.client.Login(ctx); err != nil {
		return err
	}

	profile, err := r.client.OwnerProfile(ctx)
	if err != nil {
		r.client.Logout()
		return fmt.Errorf("owner profile: %w", err)
	}
	buildings, err := r.client.Buildings(ctx)
	if err != nil {
		r.client.Logout()
		return fmt.Errorf("buildings: %w", err)
	}
	systems, err := r.client.Systems(ctx)
	if err != nil {
		r.client.Logout()
		return fmt.Errorf("systems: %w", err)
	}
	if systems.ReturnStatus != api.StatusSuccess {
		r.client.Logout()
		return fmt.Errorf("systems list unavailable: %w", api.ErrAuthenticationFailed)
	}

	for i := range systems.Systems {
		systems.Systems[i].Gateway = placeholderGateway(api.Fahrenheit, api.LanguageEnglish)
		systems.Systems[i].Alerts = api.Alerts{ReturnStatus: api.StatusUnknown}
		systems.Systems[i].Zones = api.ZonesStatus{ReturnStatus: api.StatusUnknown}
	}

	r.snap.Store(&Snapshot{Profile: profile, Buildings: buildings, Systems: systems})
	log.Info().Int("systems", len(systems.Systems)).Msg("Logged in, systems inventory loaded")
	return nil
}

// Logout clears the session and resets all cached state.
func (r *Repository) Logout() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.client.Logout()
	r.snap.Store(&Snapshot{})
}

// Refresh runs one full cycle, keeping each system's own last-known
// preferred temperature unit.
func (r *Repository) Refresh(ctx context.Context) error {
	return r.refresh(ctx, nil)
}

// RefreshWithUnit runs one full cycle forcing every system to the given
// unit.
func (r *Repository) RefreshWithUnit(ctx context.Context, unit api.TempUnit) error {
	return r.refresh(ctx, &unit)
}

// refresh is the merge cycle. Policy (the per-system failure handling is
// deliberate, see DESIGN.md):
//
//   - account-level status not SUCCESS: skip the whole cycle, snapshot
//     untouched
//   - GatewayInfo fetch fails: invalidate that system's gateway info and
//     zones (alerts untouched), move on to the next system
//   - Alerts fetch fails: install an explicit empty UNKNOWN list, never a
//     stale one
//   - ZonesStatus fetch fails: invalidate the zones; the fresh gateway
//     info is kept since an empty zone list cannot be unit-inconsistent
//     with it
//
// Successful sub-fetches are stamped with the unit that was requested
// (the service does not reliably echo it) on fresh value copies. Each
// rebuilt system replaces the previous entry at the same index. A timeout
// invalidates the current system, finishes nothing further for it, and is
// reported after the cycle so the scheduler can flip connectivity; systems
// merged before it stand as a partial result.
func (r *Repository) refresh(ctx context.Context, force *api.TempUnit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.snap.Load()
	if prev.Systems.ReturnStatus != api.StatusSuccess {
		log.Debug().Str("status", string(prev.Systems.ReturnStatus)).Msg("Skipping refresh, systems inventory not available")
		return nil
	}

	next := prev.clone()
	var timeoutErr error

	for i := range next.Systems.Systems {
		sys := next.Systems.Systems[i]

		unit := sys.Gateway.PreferredTemperatureUnit
		if force != nil {
			unit = *force
		}
		if unit == api.TempUnitUnknown {
			unit = api.Fahrenheit
		}

		gateway, err := r.client.GatewayInfo(ctx, sys.GatewaySN, unit)
		if err != nil || gateway.ReturnStatus != api.StatusSuccess {
			if err != nil {
				timeoutErr = fmt.Errorf("gateway info for %s: %w", sys.GatewaySN, err)
			} else {
				log.Warn().Str("gateway_sn", sys.GatewaySN).Msg("Failed to retrieve gateway info")
			}
			sys.Gateway = placeholderGateway(unit, sys.Gateway.PreferredLanguage)
			sys.Zones = api.ZonesStatus{ReturnStatus: api.StatusUnknown}
			next.Systems.Systems[i] = sys
			datadog.Count("refresh.system_failure", 1, "stage:gateway_info", "gateway_sn:"+sys.GatewaySN)
			if timeoutErr != nil && errorIsCancel(timeoutErr) {
				break
			}
			continue
		}
		gateway.PreferredTemperatureUnit = unit
		sys.Gateway = gateway

		alerts, err := r.client.Alerts(ctx, sys.GatewaySN, gateway.PreferredLanguage, r.alertsCount)
		if err != nil || alerts.ReturnStatus != api.StatusSuccess {
			if err != nil {
				timeoutErr = fmt.Errorf("alerts for %s: %w", sys.GatewaySN, err)
				sys.Alerts = api.Alerts{ReturnStatus: api.StatusUnknown}
				sys.Zones = api.ZonesStatus{ReturnStatus: api.StatusUnknown}
				next.Systems.Systems[i] = sys
				datadog.Count("refresh.system_failure", 1, "stage:alerts", "gateway_sn:"+sys.GatewaySN)
				if errorIsCancel(timeoutErr) {
					break
				}
				continue
			}
			log.Warn().Str("gateway_sn", sys.GatewaySN).Msg("Failed to retrieve alerts")
			sys.Alerts = api.Alerts{ReturnStatus: api.StatusUnknown}
		} else {
			sys.Alerts = alerts
		}

		zones, err := r.client.ZoneStatusList(ctx, sys.GatewaySN, unit)
		if err != nil || zones.ReturnStatus != api.StatusSuccess {
			if err != nil {
				timeoutErr = fmt.Errorf("zone status for %s: %w", sys.GatewaySN, err)
			} else {
				log.Warn().Str("gateway_sn", sys.GatewaySN).Msg("Failed to retrieve zone status")
			}
			sys.Zones = api.ZonesStatus{ReturnStatus: api.StatusUnknown}
			next.Systems.Systems[i] = sys
			datadog.Count("refresh.system_failure", 1, "stage:zones", "gateway_sn:"+sys.GatewaySN)
			if timeoutErr != nil && errorIsCancel(timeoutErr) {
				break
			}
			continue
		}
		sys.Zones = stampZoneUnits(zones, unit)

		next.Systems.Systems[i] = sys
	}

	r.snap.Store(next)
	if timeoutErr != nil {
		return timeoutErr
	}
	return nil
}

// MergeZones installs a fresh zone-status payload into the system with the
// matching gateway serial, stamping the zones with that system's current
// unit. Used to fold the away-mode write response back in without a full
// cycle. Returns false when no system matches.
func (r *Repository) MergeZones(gatewaySN string, zones api.ZonesStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.snap.Load()
	for i := range prev.Systems.Systems {
		if prev.Systems.Systems[i].GatewaySN != gatewaySN {
			continue
		}
		next := prev.clone()
		sys := next.Systems.Systems[i]
		sys.Zones = stampZoneUnits(zones, sys.Gateway.PreferredTemperatureUnit)
		next.Systems.Systems[i] = sys
		r.snap.Store(next)
		return true
	}
	log.Warn().Str("gateway_sn", gatewaySN).Msg("No system matches zone-status payload")
	return false
}

// stampZoneUnits returns a copy of the payload with every zone's unit set
// to the one the request was issued with; the decoded input is left alone.
func stampZoneUnits(zones api.ZonesStatus, unit api.TempUnit) api.ZonesStatus {
	stamped := zones
	stamped.Zones = make([]api.ZoneStatus, len(zones.Zones))
	for i, z := range zones.Zones {
		z.PreferredTemperatureUnit = unit
		stamped.Zones[i] = z
	}
	return stamped
}

func placeholderGateway(unit api.TempUnit, lang api.PreferredLanguage) api.GatewayInfo {
	return api.GatewayInfo{
		PreferredTemperatureUnit: unit,
		PreferredLanguage:        lang,
		ReturnStatus:             api.StatusUnknown,
	}
}

// errorIsCancel reports whether the failure came from caller cancellation
// rather than an individual request timing out; cancellation stops the
// whole cycle instead of moving on to the next system.
func errorIsCancel(err error) bool {
	return errors.Is(err, context.Canceled)
}
