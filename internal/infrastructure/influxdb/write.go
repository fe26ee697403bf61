package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the bridge.
const (
	MeasurementZone         = "rachio_zone"
	MeasurementDevice       = "rachio_device"
	MeasurementConnectivity = "rachio_connectivity"
)

// ZoneSample is one observation of a zone's run state.
type ZoneSample struct {
	Account           string
	DeviceID          string
	ZoneID            string
	ZoneNumber        int
	Running           bool
	RequestedDuration int
	Runtime           int
}

// DeviceSample is one observation of a controller's state.
type DeviceSample struct {
	Account  string
	DeviceID string
	Online   bool
	Paused   bool
	Enabled  bool
	RSSI     int
}

// WriteZone records a zone observation.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Booleans are stored as 0/1 so they can be summed into watering minutes.
func (c *Client) WriteZone(s ZoneSample, ts time.Time) {
	c.write(MeasurementZone,
		map[string]string{
			"account":   s.Account,
			"device_id": s.DeviceID,
			"zone_id":   s.ZoneID,
		},
		map[string]any{
			"zone_number":        s.ZoneNumber,
			"running":            boolValue(s.Running),
			"requested_duration": s.RequestedDuration,
			"runtime":            s.Runtime,
		},
		ts)
}

// WriteDevice records a controller observation.
func (c *Client) WriteDevice(s DeviceSample, ts time.Time) {
	fields := map[string]any{
		"online":  boolValue(s.Online),
		"paused":  boolValue(s.Paused),
		"enabled": boolValue(s.Enabled),
	}
	if s.RSSI != 0 {
		fields["rssi"] = s.RSSI
	}

	c.write(MeasurementDevice,
		map[string]string{
			"account":   s.Account,
			"device_id": s.DeviceID,
		},
		fields,
		ts)
}

// WriteConnectivity records whether an account could reach the Rachio cloud.
func (c *Client) WriteConnectivity(account string, reachable bool, ts time.Time) {
	c.write(MeasurementConnectivity,
		map[string]string{"account": account},
		map[string]any{"reachable": boolValue(reachable)},
		ts)
}

// write queues one point unless the client has been closed.
func (c *Client) write(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.isOpen() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}

func boolValue(b bool) int {
	if b {
		return 1
	}
	return 0
}
