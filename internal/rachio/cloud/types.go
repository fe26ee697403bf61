package cloud

// Wire types for the provider's REST API. Only the fields the bridge
// consumes are declared; unknown fields are ignored by encoding/json.

// PersonDTO is the response of GET /person/info.
type PersonDTO struct {
	ID       string      `json:"id"`
	Username string      `json:"username"`
	FullName string      `json:"fullName"`
	Email    string      `json:"email"`
	Devices  []DeviceDTO `json:"devices"`
}

// DeviceDTO is a controller as returned by /person/info and /device/{id}.
type DeviceDTO struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Status       string  `json:"status"`
	SerialNumber string  `json:"serialNumber"`
	Model        string  `json:"model"`
	MACAddress   string  `json:"macAddress"`
	TimeZone     string  `json:"timeZone"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	On           bool    `json:"on"`
	Paused       bool    `json:"paused"`
	Deleted      bool    `json:"deleted"`

	// RainDelayExpirationDate is epoch milliseconds, zero when no delay is set.
	RainDelayExpirationDate int64 `json:"rainDelayExpirationDate"`

	ScheduleRules []ScheduleRuleDTO `json:"scheduleRules"`
	Zones         []ZoneDTO         `json:"zones"`
}

// ScheduleRuleDTO is one watering schedule of a device.
type ScheduleRuleDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// ZoneDTO is an irrigation zone of a device.
type ZoneDTO struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	ZoneNumber   int     `json:"zoneNumber"`
	Enabled      bool    `json:"enabled"`
	Runtime      int     `json:"runtime"`
	MaxRuntime   int     `json:"maxRuntime"`
	ImageURL     string  `json:"imageUrl"`
	Efficiency   float64 `json:"efficiency"`
	DepthOfWater float64 `json:"depthOfWater"`
}

// ZoneRun is one entry of a start_multiple request.
type ZoneRun struct {
	ZoneID    string `json:"id"`
	Duration  int    `json:"duration"`
	SortOrder int    `json:"sortOrder"`
}

// WebhookEventType is one entry of the event-type catalogue.
type WebhookEventType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// EventTypeRef names an event type inside a webhook registration.
type EventTypeRef struct {
	ID string `json:"id"`
}

// Webhook is a registered notification callback.
type Webhook struct {
	ID         string         `json:"id"`
	URL        string         `json:"url"`
	ExternalID string         `json:"externalId"`
	EventTypes []EventTypeRef `json:"eventTypes,omitempty"`
}

type idRequest struct {
	ID string `json:"id"`
}

type durationRequest struct {
	ID       string `json:"id"`
	Duration int    `json:"duration"`
}

type multiZoneRequest struct {
	Zones []ZoneRun `json:"zones"`
}

type webhookRequest struct {
	Device     idRequest      `json:"device"`
	ExternalID string         `json:"externalId"`
	URL        string         `json:"url"`
	EventTypes []EventTypeRef `json:"eventTypes"`
}
