package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thermostat-io/icomfort-bridge/internal/api"
)

var client *http.Client
var topic string
var initialized bool

// Init initializes the notification client
func Init(ntfyTopic string) {
	if ntfyTopic == "" {
		log.Warn().Msg("Ntfy topic not configured - notifications disabled")
		return
	}

	client = &http.Client{
		Timeout: 10 * time.Second,
	}
	topic = ntfyTopic
	initialized = true

	log.Info().
		Str("topic", topic).
		Msg("Ntfy notifications initialized")
}

// Send sends a notification to ntfy.sh
func Send(title, message string) error {
	if !initialized {
		return fmt.Errorf("notifications not initialized")
	}

	url := fmt.Sprintf("https://ntfy.sh/%s", topic)

	payload := map[string]interface{}{
		"topic":   topic,
		"title":   title,
		"message": message,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().
		Str("title", title).
		Int("status", resp.StatusCode).
		Msg("Notification sent successfully")

	return nil
}

// NotifyConnectivity announces bridge online/offline transitions.
func NotifyConnectivity(online bool) {
	if !initialized {
		return
	}
	title := "iComfort bridge offline"
	message := "Lost contact with the iComfort service, retrying on the next cycle"
	if online {
		title = "iComfort bridge online"
		message = "Connection to the iComfort service restored"
	}
	if err := Send(title, message); err != nil {
		log.Warn().Err(err).Msg("Failed to send connectivity notification")
	}
}

// NotifyAlert announces a newly raised equipment alarm.
func NotifyAlert(systemName string, a api.Alert) {
	if !initialized {
		return
	}
	title := fmt.Sprintf("HVAC alert on %s", systemName)
	message := fmt.Sprintf("Alarm %d (%s): %s", a.Number, a.Type, a.Description)
	if err := Send(title, message); err != nil {
		log.Warn().Err(err).Msg("Failed to send alert notification")
	}
}
