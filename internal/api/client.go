package api

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// Client talks to the iComfort WiFi cloud service. It owns the session
// credential; all other state lives in the state repository.
type Client struct {
	access   *access
	session  *Session
	commands commands
	username string
	password string
}

// NewClient builds a client for one account. httpClient may be nil, in
// which case a default client is used; the per-request timeout is applied
// by the client itself either way.
func NewClient(baseURL, username, password string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	session := &Session{}
	return &Client{
		access:   newAccess(httpClient, session),
		session:  session,
		commands: commands{base: strings.TrimRight(baseURL, "/")},
		username: username,
		password: password,
	}
}

// Session exposes the credential store, mainly so tests and logout paths
// can observe or clear it.
func (c *Client) Session() *Session {
	return c.session
}

// Username returns the configured account name as used in service URLs.
func (c *Client) Username() string {
	return c.username
}

// Login validates the username/password with a Basic-authenticated
// ValidateUser call and stores the credential for later authenticated
// calls on success. A rejection clears any previously stored credential
// and returns ErrAuthenticationFailed.
func (c *Client) Login(ctx context.Context) error {
	credential := c.basicCredential()
	headers := map[string]string{
		"Authorization": credential,
		"Accept":        acceptHeader,
	}

	var validation UserValidation
	err := c.access.doRequest(ctx, http.MethodPut, c.commands.validateUser(c.username),
		headers, nil, "application/x-www-form-urlencoded", &validation)
	if err != nil {
		c.session.Clear()
		return err
	}
	if validation.MsgCode != StatusSuccess {
		log.Debug().Str("msg_desc", validation.MsgDesc).Msg("User validation rejected")
		c.session.Clear()
		return ErrAuthenticationFailed
	}
	c.session.set(credential)
	return nil
}

// Logout drops the session credential. In-flight requests fail with a
// clean not-authenticated result rather than a crash.
func (c *Client) Logout() {
	c.session.Clear()
}

// basicCredential builds the Basic auth value. Usernames containing a
// space or colon are percent-encoded before joining, since a raw colon
// would corrupt the user:password split.
func (c *Client) basicCredential() string {
	username := c.username
	if strings.ContainsAny(username, " :") {
		username = url.QueryEscape(username)
	}
	auth := base64.StdEncoding.EncodeToString([]byte(username + ":" + c.password))
	return "Basic " + auth
}

func (c *Client) OwnerProfile(ctx context.Context) (OwnerProfile, error) {
	var profile OwnerProfile
	err := c.access.get(ctx, c.commands.ownerProfile(c.username), &profile)
	return profile, err
}

func (c *Client) Buildings(ctx context.Context) (Buildings, error) {
	var buildings Buildings
	err := c.access.get(ctx, c.commands.buildings(c.username), &buildings)
	return buildings, err
}

func (c *Client) Systems(ctx context.Context) (SystemsInfo, error) {
	var systems SystemsInfo
	err := c.access.get(ctx, c.commands.systems(c.username), &systems)
	return systems, err
}

func (c *Client) GatewayInfo(ctx context.Context, gatewaySN string, unit TempUnit) (GatewayInfo, error) {
	var info GatewayInfo
	err := c.access.get(ctx, c.commands.gatewayInfo(gatewaySN, unit), &info)
	return info, err
}

func (c *Client) Alerts(ctx context.Context, gatewaySN string, lang PreferredLanguage, count int) (Alerts, error) {
	var alerts Alerts
	err := c.access.get(ctx, c.commands.alerts(gatewaySN, lang, count), &alerts)
	return alerts, err
}

func (c *Client) ZoneStatusList(ctx context.Context, gatewaySN string, unit TempUnit) (ZonesStatus, error) {
	var zones ZonesStatus
	err := c.access.get(ctx, c.commands.zoneStatusList(gatewaySN, unit), &zones)
	return zones, err
}

// SetTStatInfo writes a setpoint/mode/fan change. The service answers with
// an empty 201 on success; observed state is reconciled by the follow-up
// refresh the dispatcher issues.
func (c *Client) SetTStatInfo(ctx context.Context, req SetTStatInfoRequest) error {
	return c.access.put(ctx, c.commands.setTStatInfo(), req, nil)
}

// SetAwayMode writes an away-mode change and returns the fresh zone-status
// payload the service echoes back for the affected gateway.
func (c *Client) SetAwayMode(ctx context.Context, req SetAwayModeRequest) (ZonesStatus, error) {
	var zones ZonesStatus
	err := c.access.put(ctx, c.commands.setAwayMode(req), req, &zones)
	return zones, err
}
