package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-rachio/internal/rachio/model"
)

// Event types and subtypes the router acts on.
const (
	TypeZoneStatus     = "ZONE_STATUS"
	TypeDeviceStatus   = "DEVICE_STATUS"
	TypeScheduleStatus = "SCHEDULE_STATUS"
	TypeRainDelay      = "RAIN_DELAY"
	TypeRainSensor     = "RAIN_SENSOR_DETECTION"

	SubTypeZoneDelta         = "ZONE_DELTA"
	SubTypeColdReboot        = "COLD_REBOOT"
	SubTypeOnline            = "ONLINE"
	SubTypeOffline           = "OFFLINE"
	SubTypeOfflineNotify     = "OFFLINE_NOTIFICATION"
	SubTypeSleepModeOn       = "SLEEP_MODE_ON"
	SubTypeSleepModeOff      = "SLEEP_MODE_OFF"
	SubTypeRainDelayOn       = "RAIN_DELAY_ON"
	SubTypeRainDelayOff      = "RAIN_DELAY_OFF"
	SubTypeRainSensorOn      = "RAIN_SENSOR_DETECTION_ON"
	SubTypeRainSensorOff     = "RAIN_SENSOR_DETECTION_OFF"
	SubTypeScheduleStarted   = "SCHEDULE_STARTED"
	SubTypeScheduleCompleted = "SCHEDULE_COMPLETED"
	SubTypeScheduleStopped   = "SCHEDULE_STOPPED"
)

// Event is a parsed webhook notification. It lives for one Route call.
type Event struct {
	ID           string
	ExternalID   string
	Type         string
	SubType      string
	DeviceID     string
	ZoneID       string
	Summary      string
	ScheduleName string

	ZoneRunStatus *ZoneRunStatus
	Network       *model.NetworkInfo

	// Delta maps a changed zone property to its new value (ZONE_DELTA).
	Delta map[string]string

	// Timestamp is when the provider produced the event; zero if unknown.
	Timestamp time.Time
}

// ZoneRunStatus is the run state block of a ZONE_STATUS event.
type ZoneRunStatus struct {
	State      string
	ZoneNumber int
	Duration   int
	StartTime  time.Time
	EndTime    time.Time
}

type wireEvent struct {
	ID           string          `json:"id"`
	ExternalID   string          `json:"externalId"`
	Type         string          `json:"type"`
	SubType      string          `json:"subType"`
	DeviceID     string          `json:"deviceId"`
	ZoneID       string          `json:"zoneId"`
	Summary      string          `json:"summary"`
	ScheduleName string          `json:"scheduleName"`
	Timestamp    json.RawMessage `json:"timestamp"`
	EventDate    int64           `json:"eventDate"`

	ZoneRunStatus *wireZoneRunStatus `json:"zoneRunStatus"`
	ZoneRunState  string             `json:"zoneRunState"`
	ZoneNumber    int                `json:"zoneNumber"`

	Network         *wireNetwork             `json:"network"`
	DeltaProperties map[string]wireDeltaProp `json:"deltaProperties"`
}

type wireZoneRunStatus struct {
	State      string          `json:"state"`
	ZoneNumber int             `json:"zoneNumber"`
	Duration   int             `json:"duration"`
	StartTime  json.RawMessage `json:"startTime"`
	EndTime    json.RawMessage `json:"endTime"`
}

type wireNetwork struct {
	IP   string `json:"ip"`
	NM   string `json:"nm"`
	GW   string `json:"gw"`
	DNS1 string `json:"dns1"`
	DNS2 string `json:"dns2"`
	RSSI int    `json:"rssi"`
}

type wireDeltaProp struct {
	OldValue json.RawMessage `json:"oldValue"`
	NewValue json.RawMessage `json:"newValue"`
}

// Parse decodes a webhook payload.
//
// Returns:
//   - *Event: The decoded event
//   - error: ErrMalformedEvent for invalid JSON or a missing type/deviceId
func Parse(raw []byte) (*Event, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if w.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	if w.DeviceID == "" {
		return nil, fmt.Errorf("%w: missing deviceId", ErrMalformedEvent)
	}

	ev := &Event{
		ID:           w.ID,
		ExternalID:   w.ExternalID,
		Type:         w.Type,
		SubType:      w.SubType,
		DeviceID:     w.DeviceID,
		ZoneID:       w.ZoneID,
		Summary:      w.Summary,
		ScheduleName: w.ScheduleName,
		Timestamp:    parseTime(w.Timestamp),
	}
	if ev.Timestamp.IsZero() && w.EventDate > 0 {
		ev.Timestamp = time.UnixMilli(w.EventDate).UTC()
	}

	switch {
	case w.ZoneRunStatus != nil:
		ev.ZoneRunStatus = &ZoneRunStatus{
			State:      w.ZoneRunStatus.State,
			ZoneNumber: w.ZoneRunStatus.ZoneNumber,
			Duration:   w.ZoneRunStatus.Duration,
			StartTime:  parseTime(w.ZoneRunStatus.StartTime),
			EndTime:    parseTime(w.ZoneRunStatus.EndTime),
		}
	case w.ZoneRunState != "":
		ev.ZoneRunStatus = &ZoneRunStatus{State: w.ZoneRunState, ZoneNumber: w.ZoneNumber}
	}

	if w.Network != nil {
		ev.Network = &model.NetworkInfo{
			IP:      w.Network.IP,
			Netmask: w.Network.NM,
			Gateway: w.Network.GW,
			DNS1:    w.Network.DNS1,
			DNS2:    w.Network.DNS2,
			RSSI:    w.Network.RSSI,
		}
	}

	if len(w.DeltaProperties) > 0 {
		ev.Delta = make(map[string]string, len(w.DeltaProperties))
		for name, prop := range w.DeltaProperties {
			ev.Delta[name] = scalarString(prop.NewValue)
		}
	}

	return ev, nil
}

// scalarString renders a JSON string, number or boolean as text. Strings are
// unquoted; numbers and booleans keep their literal form. Anything else,
// including null, yields "".
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '{', '[', 'n':
		return ""
	default:
		return string(raw)
	}
}

// parseTime accepts an RFC3339 string, an epoch-millisecond number or a
// numeric string. Anything else yields the zero time.
func parseTime(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC()
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
			return time.UnixMilli(ms).UTC()
		}
		return time.Time{}
	}

	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}

// zoneDelta converts ZONE_DELTA properties into a model delta. Unknown or
// unparsable properties are skipped.
func (e *Event) zoneDelta() model.ZoneDelta {
	var d model.ZoneDelta
	for name, value := range e.Delta {
		switch name {
		case "name":
			d.Name = model.Ptr(value)
		case "enabled":
			if b, err := strconv.ParseBool(value); err == nil {
				d.Enabled = &b
			}
		case "imageUrl":
			d.ImageURL = model.Ptr(value)
		case "runtime":
			if n, ok := wholeNumber(value); ok {
				d.Runtime = &n
			}
		case "maxRuntime":
			if n, ok := wholeNumber(value); ok {
				d.MaxRuntime = &n
			}
		case "efficiency":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				d.Efficiency = &f
			}
		case "depthOfWater":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				d.DepthOfWater = &f
			}
		}
	}
	return d
}

// wholeNumber parses an integer, accepting a float with no fraction.
func wholeNumber(value string) (int, bool) {
	if n, err := strconv.Atoi(value); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
