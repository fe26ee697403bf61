package rachio

import (
	"time"

	"github.com/nerrad567/gray-logic-rachio/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-rachio/internal/rachio/model"
)

// TelemetryWriter receives time-series samples. Satisfied by *influxdb.Client.
type TelemetryWriter interface {
	WriteZone(s influxdb.ZoneSample, ts time.Time)
	WriteDevice(s influxdb.DeviceSample, ts time.Time)
	WriteConnectivity(account string, reachable bool, ts time.Time)
}

// telemetryListener turns model changes into InfluxDB points.
type telemetryListener struct {
	account string
	writer  TelemetryWriter
	now     func() time.Time
}

func newTelemetryListener(account string, writer TelemetryWriter) *telemetryListener {
	return &telemetryListener{account: account, writer: writer, now: time.Now}
}

// OnDeviceChanged implements model.Listener.
func (t *telemetryListener) OnDeviceChanged(d model.Device) {
	t.writer.WriteDevice(influxdb.DeviceSample{
		Account:  t.account,
		DeviceID: d.ID,
		Online:   d.Online(),
		Paused:   d.Paused,
		Enabled:  d.Enabled,
		RSSI:     d.Network.RSSI,
	}, t.now())
}

// OnZoneChanged implements model.Listener.
func (t *telemetryListener) OnZoneChanged(z model.Zone) {
	t.writer.WriteZone(influxdb.ZoneSample{
		Account:           t.account,
		DeviceID:          z.DeviceID,
		ZoneID:            z.ID,
		ZoneNumber:        z.Number,
		Running:           z.Running,
		RequestedDuration: z.RequestedDuration,
		Runtime:           z.Runtime,
	}, t.now())
}

// OnConnectivityChanged implements model.Listener.
func (t *telemetryListener) OnConnectivityChanged(connected bool) {
	t.writer.WriteConnectivity(t.account, connected, t.now())
}
