package rest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thermostat-io/icomfort-bridge/db"
	"github.com/thermostat-io/icomfort-bridge/internal/api"
	"github.com/thermostat-io/icomfort-bridge/internal/dispatch"
	"github.com/thermostat-io/icomfort-bridge/internal/poller"
	"github.com/thermostat-io/icomfort-bridge/internal/state"
)

type Server struct {
	repo       *state.Repository
	dispatcher *dispatch.Dispatcher
	poller     *poller.Poller
	journal    *sql.DB
}

type StatusResponse struct {
	Status  string `json:"status"`
	Systems int    `json:"systems"`
}

type SystemResponse struct {
	GatewaySN       string          `json:"gateway_sn"`
	Name            string          `json:"name"`
	FirmwareVersion string          `json:"firmware_version"`
	TemperatureUnit string          `json:"temperature_unit"`
	Alerts          []AlertResponse `json:"alerts"`
	Zones           []string        `json:"zones"`
}

type AlertResponse struct {
	Number      int    `json:"number"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

type ZoneResponse struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	GatewaySN        string  `json:"gateway_sn"`
	Temperature      float64 `json:"temperature"`
	Humidity         int     `json:"humidity"`
	HeatSetpoint     float64 `json:"heat_setpoint"`
	CoolSetpoint     float64 `json:"cool_setpoint"`
	Mode             string  `json:"mode"`
	OperationMode    string  `json:"operation_mode"`
	FanMode          string  `json:"fan_mode"`
	Away             bool    `json:"away"`
	SystemStatus     string  `json:"system_status"`
	ConnectionStatus string  `json:"connection_status"`
	TemperatureUnit  string  `json:"temperature_unit"`
}

type SetpointRequest struct {
	Value float64 `json:"value"`
	// Optional. When the value is expressed in a unit other than the
	// system's current one, the whole account is switched to that unit
	// before the setpoint is validated and written.
	Unit string `json:"unit,omitempty"`
}

type ModeRequest struct {
	Mode string `json:"mode"`
}

type AwayRequest struct {
	Away bool `json:"away"`
}

type UnitRequest struct {
	Unit string `json:"unit"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

var errInvalidUnit = errors.New("invalid unit, valid units: fahrenheit, celsius")

func NewServer(repo *state.Repository, dispatcher *dispatch.Dispatcher, p *poller.Poller, journal *sql.DB) *Server {
	return &Server{
		repo:       repo,
		dispatcher: dispatcher,
		poller:     p,
		journal:    journal,
	}
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Info().Str("address", addr).Msg("Starting REST API server")
	return http.ListenAndServe(addr, s.Handler())
}

// Handler builds the route table. Split from Start for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/systems", s.handleSystems)
	mux.HandleFunc("/api/systems/", s.handleSystemOperations)
	mux.HandleFunc("/api/zones", s.handleZones)
	mux.HandleFunc("/api/zones/", s.handleZoneOperations)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		mux.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	snap := s.repo.Snapshot()
	s.writeJSON(w, http.StatusOK, StatusResponse{
		Status:  string(s.poller.Status()),
		Systems: len(snap.Systems.Systems),
	})
}

func (s *Server) handleSystems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || r.URL.Path != "/api/systems" {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	snap := s.repo.Snapshot()
	response := []SystemResponse{}
	for i := range snap.Systems.Systems {
		response = append(response, systemResponse(&snap.Systems.Systems[i]))
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleSystemOperations(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/systems/")
	parts := strings.Split(path, "/")

	if len(parts) < 1 || parts[0] == "" {
		s.writeError(w, http.StatusNotFound, "Gateway serial required")
		return
	}
	gatewaySN := parts[0]

	snap := s.repo.Snapshot()
	sys := snap.SystemBySN(gatewaySN)
	if sys == nil {
		s.writeError(w, http.StatusNotFound, "System not found")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.writeJSON(w, http.StatusOK, systemResponse(sys))
	case len(parts) == 2 && parts[1] == "unit" && r.Method == http.MethodPut:
		s.setUnit(w, r)
	case len(parts) == 3 && parts[1] == "alerts" && parts[2] == "history" && r.Method == http.MethodGet:
		s.getAlertHistory(w, gatewaySN)
	default:
		s.writeError(w, http.StatusNotFound, "Unknown operation")
	}
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || r.URL.Path != "/api/zones" {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	snap := s.repo.Snapshot()
	response := []ZoneResponse{}
	for i := range snap.Systems.Systems {
		sys := &snap.Systems.Systems[i]
		for j := range sys.Zones.Zones {
			response = append(response, zoneResponse(&sys.Zones.Zones[j]))
		}
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleZoneOperations(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/zones/")
	parts := strings.Split(path, "/")

	if len(parts) < 1 || parts[0] == "" {
		s.writeError(w, http.StatusNotFound, "Zone ID required")
		return
	}
	zoneID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		zone, _ := s.repo.Snapshot().ZoneByID(zoneID)
		if zone == nil {
			s.writeError(w, http.StatusNotFound, "Zone not found")
			return
		}
		s.writeJSON(w, http.StatusOK, zoneResponse(zone))
		return
	}

	if len(parts) != 2 || r.Method != http.MethodPut {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	switch parts[1] {
	case "heat-setpoint":
		s.setSetpoint(w, r, zoneID, s.dispatcher.SetHeatingSetpoint)
	case "cool-setpoint":
		s.setSetpoint(w, r, zoneID, s.dispatcher.SetCoolingSetpoint)
	case "mode":
		s.setMode(w, r, zoneID)
	case "fan":
		s.setFan(w, r, zoneID)
	case "away":
		s.setAway(w, r, zoneID)
	default:
		s.writeError(w, http.StatusNotFound, "Unknown operation")
	}
}

func (s *Server) setSetpoint(w http.ResponseWriter, r *http.Request, zoneID string,
	set func(ctx context.Context, zoneID string, value float64) error) {
	var req SetpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if req.Unit != "" {
		if err := s.alignUnit(r.Context(), zoneID, req.Unit); err != nil {
			s.writeDispatchError(w, zoneID, err)
			return
		}
	}

	if err := set(r.Context(), zoneID, req.Value); err != nil {
		s.writeDispatchError(w, zoneID, err)
		return
	}

	log.Info().Str("zone_id", zoneID).Float64("setpoint", req.Value).Msg("Zone setpoint updated via API")
	w.WriteHeader(http.StatusOK)
}

// alignUnit switches the whole account's temperature unit when a
// command's value is expressed in a unit the zone's system is not
// currently using.
func (s *Server) alignUnit(ctx context.Context, zoneID, unit string) error {
	var want api.TempUnit
	switch strings.ToLower(unit) {
	case "fahrenheit", "f":
		want = api.Fahrenheit
	case "celsius", "c":
		want = api.Celsius
	default:
		return errInvalidUnit
	}

	zone, sys := s.repo.Snapshot().ZoneByID(zoneID)
	if zone == nil {
		return dispatch.ErrUnknownZone
	}
	if sys.Gateway.PreferredTemperatureUnit == want {
		return nil
	}
	log.Info().Str("zone_id", zoneID).Str("unit", want.String()).
		Msg("Switching temperature unit to match commanded value")
	return s.dispatcher.SetTemperatureUnit(ctx, want)
}

func (s *Server) setMode(w http.ResponseWriter, r *http.Request, zoneID string) {
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	mode, err := api.ParseUnifiedMode(req.Mode)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid mode. Valid modes: off, heat, cool, heatcool, fan-only, eco")
		return
	}

	if err := s.dispatcher.SetUnifiedMode(r.Context(), zoneID, mode); err != nil {
		s.writeDispatchError(w, zoneID, err)
		return
	}

	log.Info().Str("zone_id", zoneID).Str("mode", req.Mode).Msg("Zone mode updated via API")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) setFan(w http.ResponseWriter, r *http.Request, zoneID string) {
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	var fan api.FanMode
	switch strings.ToLower(req.Mode) {
	case "auto":
		fan = api.FanAuto
	case "on":
		fan = api.FanOn
	case "circulate":
		fan = api.FanCirculate
	default:
		s.writeError(w, http.StatusBadRequest, "Invalid fan mode. Valid modes: auto, on, circulate")
		return
	}

	if err := s.dispatcher.SetFanMode(r.Context(), zoneID, fan); err != nil {
		s.writeDispatchError(w, zoneID, err)
		return
	}

	log.Info().Str("zone_id", zoneID).Str("fan_mode", req.Mode).Msg("Zone fan mode updated via API")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) setAway(w http.ResponseWriter, r *http.Request, zoneID string) {
	var req AwayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	away := api.AwayOff
	if req.Away {
		away = api.AwayOn
	}

	if err := s.dispatcher.SetAwayMode(r.Context(), zoneID, away); err != nil {
		s.writeDispatchError(w, zoneID, err)
		return
	}

	log.Info().Str("zone_id", zoneID).Bool("away", req.Away).Msg("Zone away mode updated via API")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) setUnit(w http.ResponseWriter, r *http.Request) {
	var req UnitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	var unit api.TempUnit
	switch strings.ToLower(req.Unit) {
	case "fahrenheit", "f":
		unit = api.Fahrenheit
	case "celsius", "c":
		unit = api.Celsius
	default:
		s.writeError(w, http.StatusBadRequest, "Invalid unit. Valid units: fahrenheit, celsius")
		return
	}

	if err := s.dispatcher.SetTemperatureUnit(r.Context(), unit); err != nil {
		log.Error().Err(err).Str("unit", req.Unit).Msg("Failed to switch temperature unit")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("unit", req.Unit).Msg("Temperature unit updated via API")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) getAlertHistory(w http.ResponseWriter, gatewaySN string) {
	if s.journal == nil {
		s.writeJSON(w, http.StatusOK, []db.AlertObservation{})
		return
	}
	alerts, err := db.RecentAlerts(s.journal, gatewaySN, 50)
	if err != nil {
		log.Error().Err(err).Str("gateway_sn", gatewaySN).Msg("Failed to query alert history")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if alerts == nil {
		alerts = []db.AlertObservation{}
	}
	s.writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) writeDispatchError(w http.ResponseWriter, zoneID string, err error) {
	switch {
	case errors.Is(err, dispatch.ErrUnknownZone):
		s.writeError(w, http.StatusNotFound, "Zone not found")
	case errors.Is(err, dispatch.ErrSetpointOutOfRange), errors.Is(err, errInvalidUnit):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Str("zone_id", zoneID).Msg("Command failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

func systemResponse(sys *api.SystemInfo) SystemResponse {
	alerts := []AlertResponse{}
	for _, a := range sys.Alerts.Alerts {
		alerts = append(alerts, AlertResponse{
			Number:      a.Number,
			Type:        a.Type,
			Description: a.Description,
			Status:      a.Status.String(),
		})
	}
	zones := []string{}
	for i := range sys.Zones.Zones {
		zones = append(zones, sys.Zones.Zones[i].ZoneID())
	}
	return SystemResponse{
		GatewaySN:       sys.GatewaySN,
		Name:            sys.SystemName,
		FirmwareVersion: sys.FirmwareVersion,
		TemperatureUnit: sys.Gateway.PreferredTemperatureUnit.String(),
		Alerts:          alerts,
		Zones:           zones,
	}
}

func zoneResponse(z *api.ZoneStatus) ZoneResponse {
	return ZoneResponse{
		ID:               z.ZoneID(),
		Name:             z.ZoneName,
		GatewaySN:        z.GatewaySN,
		Temperature:      z.IndoorTemp,
		Humidity:         z.IndoorHumidity,
		HeatSetpoint:     z.HeatSetPoint,
		CoolSetpoint:     z.CoolSetPoint,
		Mode:             string(z.UnifiedMode()),
		OperationMode:    z.OperationMode.String(),
		FanMode:          z.FanMode.String(),
		Away:             z.AwayMode == api.AwayOn,
		SystemStatus:     z.SystemStatus.String(),
		ConnectionStatus: string(z.ConnectionStatus),
		TemperatureUnit:  z.PreferredTemperatureUnit.String(),
	}
}
