package api

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RequestStatus is the envelope status the service attaches to every read
// payload. Anything other than SUCCESS or FAILURE decodes as UNKNOWN.
type RequestStatus string

const (
	StatusSuccess RequestStatus = "SUCCESS"
	StatusFailure RequestStatus = "FAILURE"
	StatusUnknown RequestStatus = "UNKNOWN"
)

func (s *RequestStatus) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(data), `"`) {
	case "SUCCESS":
		*s = StatusSuccess
	case "FAILURE":
		*s = StatusFailure
	default:
		*s = StatusUnknown
	}
	return nil
}

// codedInt parses the numeric enum codes the service emits either as bare
// numbers or quoted strings. Unparsable input reports ok=false so callers
// can fall back to their unknown member.
func codedInt(data []byte) (int, bool) {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// TempUnit is the temperature scale a payload is expressed in. The service
// encodes it as "0" (Fahrenheit) or "1" (Celsius).
type TempUnit int

const (
	Fahrenheit      TempUnit = 0
	Celsius         TempUnit = 1
	TempUnitUnknown TempUnit = -1
)

func (u TempUnit) Code() string {
	return strconv.Itoa(int(u))
}

func (u TempUnit) String() string {
	switch u {
	case Fahrenheit:
		return "fahrenheit"
	case Celsius:
		return "celsius"
	}
	return "unknown"
}

func (u TempUnit) Symbol() string {
	switch u {
	case Fahrenheit:
		return "°F"
	case Celsius:
		return "°C"
	}
	return ""
}

func (u *TempUnit) UnmarshalJSON(data []byte) error {
	if n, ok := codedInt(data); ok && (n == 0 || n == 1) {
		*u = TempUnit(n)
	} else {
		*u = TempUnitUnknown
	}
	return nil
}

func (u TempUnit) MarshalJSON() ([]byte, error) {
	return []byte(`"` + u.Code() + `"`), nil
}

// OperationMode is the raw thermostat mode.
type OperationMode int

const (
	OperationOff         OperationMode = 0
	OperationHeatOnly    OperationMode = 1
	OperationCoolOnly    OperationMode = 2
	OperationHeatOrCool  OperationMode = 3
	OperationModeUnknown OperationMode = -1
)

func (m OperationMode) String() string {
	switch m {
	case OperationOff:
		return "off"
	case OperationHeatOnly:
		return "heat_only"
	case OperationCoolOnly:
		return "cool_only"
	case OperationHeatOrCool:
		return "heat_or_cool"
	}
	return "unknown"
}

func (m *OperationMode) UnmarshalJSON(data []byte) error {
	if n, ok := codedInt(data); ok && n >= 0 && n <= 3 {
		*m = OperationMode(n)
	} else {
		*m = OperationModeUnknown
	}
	return nil
}

// FanMode is the blower setting for a zone.
type FanMode int

const (
	FanAuto        FanMode = 0
	FanOn          FanMode = 1
	FanCirculate   FanMode = 2
	FanModeUnknown FanMode = -1
)

func (m FanMode) String() string {
	switch m {
	case FanAuto:
		return "auto"
	case FanOn:
		return "on"
	case FanCirculate:
		return "circulate"
	}
	return "unknown"
}

func (m *FanMode) UnmarshalJSON(data []byte) error {
	if n, ok := codedInt(data); ok && n >= 0 && n <= 2 {
		*m = FanMode(n)
	} else {
		*m = FanModeUnknown
	}
	return nil
}

// AwayStatus reports whether a zone is in away (energy saving) mode.
type AwayStatus int

const (
	AwayOff           AwayStatus = 0
	AwayOn            AwayStatus = 1
	AwayStatusUnknown AwayStatus = -1
)

func (s AwayStatus) String() string {
	switch s {
	case AwayOff:
		return "away_off"
	case AwayOn:
		return "away_on"
	}
	return "unknown"
}

func (s *AwayStatus) UnmarshalJSON(data []byte) error {
	if n, ok := codedInt(data); ok && (n == 0 || n == 1) {
		*s = AwayStatus(n)
	} else {
		*s = AwayStatusUnknown
	}
	return nil
}

// SystemStatus is what the equipment is actually doing right now, as
// opposed to OperationMode which is what it is allowed to do.
type SystemStatus int

const (
	SystemIdle          SystemStatus = 0
	SystemHeating       SystemStatus = 1
	SystemCooling       SystemStatus = 2
	SystemWaiting       SystemStatus = 3
	SystemEmergencyHeat SystemStatus = 4
	SystemStatusUnknown SystemStatus = -1
)

func (s SystemStatus) String() string {
	switch s {
	case SystemIdle:
		return "idle"
	case SystemHeating:
		return "heating"
	case SystemCooling:
		return "cooling"
	case SystemWaiting:
		return "waiting"
	case SystemEmergencyHeat:
		return "emergency_heat"
	}
	return "unknown"
}

func (s *SystemStatus) UnmarshalJSON(data []byte) error {
	if n, ok := codedInt(data); ok && n >= 0 && n <= 4 {
		*s = SystemStatus(n)
	} else {
		*s = SystemStatusUnknown
	}
	return nil
}

// ConnectionStatus is the gateway's own link quality report for a zone.
type ConnectionStatus string

const (
	ConnectionGood    ConnectionStatus = "GOOD"
	ConnectionBad     ConnectionStatus = "BAD"
	ConnectionUnknown ConnectionStatus = "UNKNOWN"
)

func (s *ConnectionStatus) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(data), `"`) {
	case "GOOD":
		*s = ConnectionGood
	case "BAD":
		*s = ConnectionBad
	default:
		*s = ConnectionUnknown
	}
	return nil
}

// PreferredLanguage selects the language alert texts come back in.
type PreferredLanguage int

const (
	LanguageEnglish PreferredLanguage = 0
	LanguageFrench  PreferredLanguage = 1
	LanguageSpanish PreferredLanguage = 2
	LanguageUnknown PreferredLanguage = -1
)

func (l PreferredLanguage) Code() string {
	return strconv.Itoa(int(l))
}

func (l *PreferredLanguage) UnmarshalJSON(data []byte) error {
	if n, ok := codedInt(data); ok && n >= 0 && n <= 2 {
		*l = PreferredLanguage(n)
	} else {
		*l = LanguageUnknown
	}
	return nil
}

// AlertStatus says whether an alert is currently raised or has cleared.
type AlertStatus int

const (
	AlertCleared       AlertStatus = 0
	AlertRaised        AlertStatus = 1
	AlertStatusUnknown AlertStatus = -1
)

func (s AlertStatus) String() string {
	switch s {
	case AlertCleared:
		return "cleared"
	case AlertRaised:
		return "raised"
	}
	return "unknown"
}

func (s *AlertStatus) UnmarshalJSON(data []byte) error {
	if n, ok := codedInt(data); ok && (n == 0 || n == 1) {
		*s = AlertStatus(n)
	} else {
		*s = AlertStatusUnknown
	}
	return nil
}

// ProgramScheduleMode and ProgramScheduleSelection are decoded for
// completeness and exposed read-only; the bridge never writes them.
type ProgramScheduleMode int

const (
	ScheduleManual             ProgramScheduleMode = 0
	ScheduleProgram            ProgramScheduleMode = 1
	ProgramScheduleModeUnknown ProgramScheduleMode = -1
)

func (m *ProgramScheduleMode) UnmarshalJSON(data []byte) error {
	if n, ok := codedInt(data); ok && (n == 0 || n == 1) {
		*m = ProgramScheduleMode(n)
	} else {
		*m = ProgramScheduleModeUnknown
	}
	return nil
}

type ProgramScheduleSelection int

const (
	ScheduleSummer     ProgramScheduleSelection = 0
	ScheduleWinter     ProgramScheduleSelection = 1
	ScheduleSpringFall ProgramScheduleSelection = 2
	ScheduleSaveEnergy ProgramScheduleSelection = 3
	ScheduleCustom     ProgramScheduleSelection = 4

	ProgramScheduleSelectionUnknown ProgramScheduleSelection = -1
)

func (s *ProgramScheduleSelection) UnmarshalJSON(data []byte) error {
	if n, ok := codedInt(data); ok && n >= 0 && n <= 4 {
		*s = ProgramScheduleSelection(n)
	} else {
		*s = ProgramScheduleSelectionUnknown
	}
	return nil
}

// UnifiedMode is the normalized mode derived from the raw operation mode
// plus the away flag, for simplified external consumption.
type UnifiedMode string

const (
	UnifiedOff      UnifiedMode = "off"
	UnifiedHeat     UnifiedMode = "heat"
	UnifiedCool     UnifiedMode = "cool"
	UnifiedHeatCool UnifiedMode = "heatcool"
	UnifiedFanOnly  UnifiedMode = "fan-only"
	UnifiedEco      UnifiedMode = "eco"
	UnifiedUnknown  UnifiedMode = "unknown"
)

func ParseUnifiedMode(s string) (UnifiedMode, error) {
	switch UnifiedMode(strings.ToLower(s)) {
	case UnifiedOff, UnifiedHeat, UnifiedCool, UnifiedHeatCool, UnifiedFanOnly, UnifiedEco:
		return UnifiedMode(strings.ToLower(s)), nil
	}
	return UnifiedUnknown, fmt.Errorf("unknown unified mode %q", s)
}

// JSONDate decodes the service's non-standard date strings of the form
// "/Date(1499999999999-0500)/" (milliseconds since epoch with an optional
// zone suffix). Malformed input decodes as the current time; that loss is
// the documented behavior, not an error.
type JSONDate struct {
	time.Time
}

func (d *JSONDate) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	millis, ok := parseEpochMillis(s)
	if !ok {
		d.Time = time.Now()
		return nil
	}
	d.Time = time.UnixMilli(millis)
	return nil
}

func (d JSONDate) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`"/Date(%d)/"`, d.Time.UnixMilli())), nil
}

func parseEpochMillis(s string) (int64, bool) {
	const prefix = "/Date("
	const suffix = ")/"
	if !strings.HasPrefix(s, prefix) || !strings.HasSuffix(s, suffix) {
		return 0, false
	}
	body := s[len(prefix) : len(s)-len(suffix)]
	// Strip a trailing zone offset such as -0500 or +0100. The offset is
	// informational; the digits are already UTC milliseconds.
	if i := strings.IndexAny(body[1:], "+-"); i >= 0 {
		body = body[:i+1]
	}
	millis, err := strconv.ParseInt(body, 10, 64)
	if err != nil {
		return 0, false
	}
	return millis, true
}
