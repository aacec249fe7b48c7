package api

import "strconv"

// UserValidation is the response to the ValidateUser call.
type UserValidation struct {
	MsgCode RequestStatus `json:"msg_code"`
	MsgDesc string        `json:"msg_desc"`
}

// OwnerProfile is the account profile, fetched once at login.
type OwnerProfile struct {
	FirstName            string        `json:"FirstName"`
	LastName             string        `json:"LastName"`
	Email                string        `json:"eMail"`
	Phone                string        `json:"Phone"`
	MobilePhone          string        `json:"MobilePhone"`
	UserID               string        `json:"UserID"`
	NewGatewayPending    bool          `json:"NewGatewayPending"`
	RegistrationComplete bool          `json:"RegistrationComplete"`
	ReturnStatus         RequestStatus `json:"ReturnStatus"`
}

// Building is a location owning one or more systems. Only the fields the
// bridge surfaces are decoded; the service sends many more.
type Building struct {
	BuildingID      int     `json:"BuildingID"`
	BuildingName    string  `json:"Building_Name"`
	Address1        string  `json:"Addr1"`
	Address2        string  `json:"Addr2"`
	City            string  `json:"City"`
	Country         string  `json:"Country"`
	Latitude        float64 `json:"Latitude"`
	Longitude       float64 `json:"Longitude"`
	DefaultBuilding bool    `json:"DefaultBuilding"`
}

// Buildings is the list of locations for an account.
type Buildings struct {
	ReturnStatus RequestStatus `json:"ReturnStatus"`
	Buildings    []Building    `json:"Buildings"`
}

// GatewayInfo carries per-system configuration and the setpoint limits
// commands are validated against.
type GatewayInfo struct {
	CoolSetPointHighLimit    float64           `json:"Cool_Set_Point_High_Limit"`
	CoolSetPointLowLimit     float64           `json:"Cool_Set_Point_Low_Limit"`
	DaylightSavingsTime      int               `json:"Daylight_Savings_Time"`
	HeatCoolDeadBand         float64           `json:"Heat_Cool_Dead_Band"`
	HeatSetPointHighLimit    float64           `json:"Heat_Set_Point_High_Limit"`
	HeatSetPointLowLimit     float64           `json:"Heat_Set_Point_Low_Limit"`
	PreferredLanguage        PreferredLanguage `json:"Pref_Language_Nbr"`
	PreferredTemperatureUnit TempUnit          `json:"Pref_Temp_Unit"`
	ReturnStatus             RequestStatus     `json:"ReturnStatus"`
	SystemID                 int               `json:"SystemID"`
}

// Alert is a single gateway alarm record.
type Alert struct {
	Description string      `json:"Alarm_Description"`
	Number      int         `json:"Alarm_Nbr"`
	Type        string      `json:"Alarm_Type"`
	Value       string      `json:"Alarm_Value"`
	ResetAt     JSONDate    `json:"DateTime_Reset"`
	SetAt       JSONDate    `json:"DateTime_Set"`
	Status      AlertStatus `json:"Status"`
}

// Alerts is the per-system alarm list. A ReturnStatus other than SUCCESS
// marks the list as not trustworthy for the current cycle.
type Alerts struct {
	ReturnStatus RequestStatus `json:"ReturnStatus"`
	Alerts       []Alert       `json:"Alerts"`
}

// ZoneStatus is the full state of one controllable zone.
type ZoneStatus struct {
	AwayMode                 AwayStatus               `json:"Away_Mode"`
	CentralZonedAway         int                      `json:"Central_Zoned_Away"`
	ConnectionStatus         ConnectionStatus         `json:"ConnectionStatus"`
	CoolSetPoint             float64                  `json:"Cool_Set_Point"`
	DateTimeMark             JSONDate                 `json:"DateTime_Mark"`
	FanMode                  FanMode                  `json:"Fan_Mode"`
	GMTToLocal               int                      `json:"GMT_To_Local"`
	GatewaySN                string                   `json:"GatewaySN"`
	GoldenTableUpdated       bool                     `json:"Golden_Table_Updated"`
	HeatSetPoint             float64                  `json:"Heat_Set_Point"`
	IndoorHumidity           int                      `json:"Indoor_Humidity"`
	IndoorTemp               float64                  `json:"Indoor_Temp"`
	OperationMode            OperationMode            `json:"Operation_Mode"`
	PreferredTemperatureUnit TempUnit                 `json:"Pref_Temp_Units"`
	ProgramScheduleMode      ProgramScheduleMode      `json:"Program_Schedule_Mode"`
	ProgramScheduleSelection ProgramScheduleSelection `json:"Program_Schedule_Selection"`
	SystemStatus             SystemStatus             `json:"System_Status"`
	ZoneEnabled              int                      `json:"Zone_Enabled"`
	ZoneName                 string                   `json:"Zone_Name"`
	ZoneNumber               int                      `json:"Zone_Number"`
	ZonesInstalled           int                      `json:"Zones_Installed"`
}

// ZoneID is the stable key for a zone: gateway serial plus zone number.
func (z ZoneStatus) ZoneID() string {
	return z.GatewaySN + "_" + strconv.Itoa(z.ZoneNumber)
}

// UnifiedMode derives the normalized mode from the away flag and the raw
// operation mode. Away wins over everything else.
func (z ZoneStatus) UnifiedMode() UnifiedMode {
	if z.AwayMode == AwayOn {
		return UnifiedEco
	}
	switch z.OperationMode {
	case OperationOff:
		return UnifiedOff
	case OperationHeatOnly:
		return UnifiedHeat
	case OperationCoolOnly:
		return UnifiedCool
	case OperationHeatOrCool:
		return UnifiedHeatCool
	}
	return UnifiedUnknown
}

// ZonesStatus is the zone list for one system.
type ZonesStatus struct {
	ReturnStatus RequestStatus `json:"ReturnStatus"`
	Zones        []ZoneStatus  `json:"tStatInfo"`
}

// SystemInfo is one physical gateway/controller as listed by the systems
// call. Gateway, Alerts and Zones are not part of the vendor payload; the
// state repository fills them in on each refresh cycle.
type SystemInfo struct {
	BuildingID           int    `json:"BuildingID"`
	FirmwareVersion      string `json:"Firmware_Ver"`
	GatewaySN            string `json:"Gateway_SN"`
	RegistrationComplete bool   `json:"RegistrationCompleteFlag"`
	Status               string `json:"Status"`
	SystemID             int    `json:"SystemID"`
	SystemName           string `json:"System_Name"`

	Gateway GatewayInfo `json:"-"`
	Alerts  Alerts      `json:"-"`
	Zones   ZonesStatus `json:"-"`
}

// SystemsInfo is the ordered list of systems for an account. Order is
// significant: refresh replaces entries in place, never reorders.
type SystemsInfo struct {
	ReturnStatus RequestStatus `json:"ReturnStatus"`
	Systems      []SystemInfo  `json:"Systems"`
}

// SetTStatInfoRequest is the write payload for setpoint, operation-mode and
// fan-mode changes. It always carries the zone's full identity so the
// service can correlate the single changed field.
type SetTStatInfoRequest struct {
	CoolSetPoint  float64 `json:"Cool_Set_Point"`
	HeatSetPoint  float64 `json:"Heat_Set_Point"`
	FanMode       int     `json:"Fan_Mode"`
	OperationMode int     `json:"Operation_Mode"`
	PrefTempUnits string  `json:"Pref_Temp_Units"`
	ZoneNumber    int     `json:"Zone_Number"`
	GatewaySN     string  `json:"GatewaySN"`
}

// NewSetTStatInfoRequest seeds a write request from the zone's current
// state; the caller then overrides the one field it wants to change.
func NewSetTStatInfoRequest(z ZoneStatus) SetTStatInfoRequest {
	return SetTStatInfoRequest{
		CoolSetPoint:  z.CoolSetPoint,
		HeatSetPoint:  z.HeatSetPoint,
		FanMode:       int(z.FanMode),
		OperationMode: int(z.OperationMode),
		PrefTempUnits: z.PreferredTemperatureUnit.Code(),
		ZoneNumber:    z.ZoneNumber,
		GatewaySN:     z.GatewaySN,
	}
}

// SetAwayModeRequest is the write payload for away-mode changes. Unlike
// SetTStatInfo, this endpoint answers with a fresh ZonesStatus payload.
type SetAwayModeRequest struct {
	GatewaySN    string  `json:"GatewaySN"`
	ZoneNumber   int     `json:"ZoneNumber"`
	AwayMode     int     `json:"AwayMode"`
	HeatSetPoint float64 `json:"HeatSetPoint"`
	CoolSetPoint float64 `json:"CoolSetPoint"`
	FanMode      int     `json:"FanMode"`
	TempScale    string  `json:"TempScale"`
}

func NewSetAwayModeRequest(z ZoneStatus) SetAwayModeRequest {
	return SetAwayModeRequest{
		GatewaySN:    z.GatewaySN,
		ZoneNumber:   z.ZoneNumber,
		AwayMode:     int(z.AwayMode),
		HeatSetPoint: z.HeatSetPoint,
		CoolSetPoint: z.CoolSetPoint,
		FanMode:      int(z.FanMode),
		TempScale:    z.PreferredTemperatureUnit.Code(),
	}
}
