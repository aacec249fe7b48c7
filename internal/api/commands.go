package api

import (
	"fmt"
	"net/url"
	"strconv"
)

// DefaultBaseURL is the production service endpoint.
const DefaultBaseURL = "https://services.myicomfort.com/DBAcessService.svc"

// commands builds the fixed set of service URLs. Usernames and serials are
// query-escaped here so callers never have to think about it.
type commands struct {
	base string
}

func (c commands) validateUser(username string) string {
	return fmt.Sprintf("%s/ValidateUser?UserName=%s&lang_nbr=0", c.base, url.QueryEscape(username))
}

func (c commands) ownerProfile(username string) string {
	return fmt.Sprintf("%s/GetOwnerProfileInfo?UserName=%s", c.base, url.QueryEscape(username))
}

func (c commands) buildings(username string) string {
	return fmt.Sprintf("%s/GetBuildingsInfo?UserName=%s", c.base, url.QueryEscape(username))
}

func (c commands) systems(username string) string {
	return fmt.Sprintf("%s/GetSystemsInfo?UserName=%s", c.base, url.QueryEscape(username))
}

func (c commands) gatewayInfo(gatewaySN string, unit TempUnit) string {
	return fmt.Sprintf("%s/GetGatewayInfo?GatewaySN=%s&TempUnit=%s",
		c.base, url.QueryEscape(gatewaySN), unit.Code())
}

func (c commands) alerts(gatewaySN string, lang PreferredLanguage, count int) string {
	return fmt.Sprintf("%s/GetGatewaysAlerts?gatewaySN=%s&LanguageNbr=%s&Count=%d",
		c.base, url.QueryEscape(gatewaySN), lang.Code(), count)
}

func (c commands) zoneStatusList(gatewaySN string, unit TempUnit) string {
	return fmt.Sprintf("%s/GetTStatInfoList?GatewaySN=%s&TempUnit=%s",
		c.base, url.QueryEscape(gatewaySN), unit.Code())
}

func (c commands) setTStatInfo() string {
	return c.base + "/SetTStatInfo"
}

// setAwayMode carries its parameters in the query string; the JSON body is
// sent as well but the service keys off the URL.
func (c commands) setAwayMode(r SetAwayModeRequest) string {
	q := url.Values{}
	q.Set("gatewaysn", r.GatewaySN)
	q.Set("zonenumber", strconv.Itoa(r.ZoneNumber))
	q.Set("awaymode", strconv.Itoa(r.AwayMode))
	q.Set("heatsetpoint", strconv.FormatFloat(r.HeatSetPoint, 'f', -1, 64))
	q.Set("coolsetpoint", strconv.FormatFloat(r.CoolSetPoint, 'f', -1, 64))
	q.Set("fanmode", strconv.Itoa(r.FanMode))
	q.Set("tempscale", r.TempScale)
	return c.base + "/SetAwayModeNew?" + q.Encode()
}
