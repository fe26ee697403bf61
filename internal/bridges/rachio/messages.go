package rachio

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-rachio/internal/rachio/command"
	"github.com/nerrad567/gray-logic-rachio/internal/rachio/events"
	"github.com/nerrad567/gray-logic-rachio/internal/rachio/model"
)

// MQTT message types exchanged between Gray Logic Core and the Rachio bridge.

// Protocol is the protocol identifier carried in every message.
const Protocol = "rachio"

// CommandMessage is sent from Core to the bridge to act on a device or zone.
// Topic: graylogic/command/rachio/{id}
type CommandMessage struct {
	// ID correlates the command with its acknowledgement.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the Rachio device or zone id the command targets.
	DeviceID string `json:"device_id"`

	// Command is the command name (e.g. "start", "stop", "rain_delay").
	Command string `json:"command"`

	// Parameters contains command-specific values.
	// Examples:
	//   {"duration": 600} for start
	//   {"zones": "1,3"} for set_run_zones
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated ("api", "mqtt", "scene").
	Source string `json:"source"`

	// UserID is the user who triggered the command, if known.
	UserID string `json:"user_id,omitempty"`
}

// AckStatus represents the acknowledgement status of a command.
type AckStatus string

const (
	// AckAccepted indicates the provider accepted the command.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// AckMessage is sent from the bridge to Core to acknowledge a command.
// Topic: graylogic/ack/rachio/{id}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`

	// Account is the connection that handled the command.
	Account string `json:"account,omitempty"`

	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeRejected          = "REJECTED"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// Entity kinds carried in state messages.
const (
	KindAccount = "account"
	KindDevice  = "device"
	KindZone    = "zone"
)

// StateMessage is sent from the bridge to Core when a device or zone changes.
// Topic: graylogic/state/rachio/{id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string    `json:"device_id"`
	Kind      string    `json:"kind"`
	Account   string    `json:"account"`
	Timestamp time.Time `json:"timestamp"`
	Protocol  string    `json:"protocol"`

	// State is a model.Device, a model.Zone or, for the account kind,
	// {"connected": bool}.
	State any `json:"state"`
}

// DiscoveryMessage announces the devices of an account after a connect.
// Topic: graylogic/discovery/rachio
type DiscoveryMessage struct {
	Timestamp time.Time      `json:"timestamp"`
	Bridge    string         `json:"bridge"`
	Account   string         `json:"account"`
	Person    model.Person   `json:"person"`
	Devices   []model.Device `json:"devices"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates every account reaches the cloud.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates MQTT or at least one account is impaired.
	HealthDegraded HealthStatus = "degraded"

	// HealthUnhealthy indicates no account reaches the cloud.
	HealthUnhealthy HealthStatus = "unhealthy"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: graylogic/health/rachio
// QoS: 1, Retained: Yes
// Interval: Every 30 seconds
type HealthMessage struct {
	Bridge        string          `json:"bridge"`
	Timestamp     time.Time       `json:"timestamp"`
	Status        HealthStatus    `json:"status"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Accounts      []AccountHealth `json:"accounts,omitempty"`
	WebhookIntake *WebhookStats   `json:"webhook_intake,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// WebhookStats counts inbound webhook payloads by what happened to them.
type WebhookStats struct {
	Applied   uint64 `json:"applied"`
	Duplicate uint64 `json:"duplicate"`
	Ignored   uint64 `json:"ignored"`
	Malformed uint64 `json:"malformed"`
	Unrouted  uint64 `json:"unrouted"`
}

// AccountHealth is the per-connection part of a health message.
type AccountHealth struct {
	ID            string           `json:"id"`
	Connected     bool             `json:"connected"`
	Devices       int              `json:"devices"`
	Webhooks      int              `json:"webhooks"`
	LastPoll      *time.Time       `json:"last_poll,omitempty"`
	Polls         uint64           `json:"polls"`
	PollFailures  uint64           `json:"poll_failures"`
	SkippedPolls  uint64           `json:"skipped_polls"`
	LastPollError string           `json:"last_poll_error,omitempty"`
	Breaker       string           `json:"breaker"`
	RateRemaining int              `json:"rate_remaining"`
	Events        events.Stats     `json:"events"`
	LastCommand   *command.Failure `json:"last_command_error,omitempty"`
}

// NewAckMessage creates an acknowledgement for a command.
func NewAckMessage(cmd CommandMessage, status AckStatus, account string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    status,
		Protocol:  Protocol,
		Account:   account,
	}
}

// NewAckError creates a failed acknowledgement with error details.
func NewAckError(cmd CommandMessage, account, code, message string) AckMessage {
	ack := NewAckMessage(cmd, AckFailed, account)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// NewStateMessage creates a state message for an entity.
func NewStateMessage(entityID, kind, account string, state any) StateMessage {
	return StateMessage{
		DeviceID:  entityID,
		Kind:      kind,
		Account:   account,
		Timestamp: time.Now().UTC(),
		Protocol:  Protocol,
		State:     state,
	}
}

// intParam reads a whole number parameter. JSON numbers decode as float64;
// numeric strings are accepted for form-style callers.
func intParam(params map[string]any, key string) (int, bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return 0, false, nil
	}

	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, true, fmt.Errorf("%w: %q must be a whole number", ErrInvalidParameters, key)
		}
		return int(n), true, nil
	case int:
		return n, true, nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, true, fmt.Errorf("%w: %q must be a number", ErrInvalidParameters, key)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("%w: %q must be a number", ErrInvalidParameters, key)
	}
}

// stringParam reads a string parameter.
func stringParam(params map[string]any, key string) (string, bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", true, fmt.Errorf("%w: %q must be a string", ErrInvalidParameters, key)
	}
	return s, true, nil
}
