// Package influxdb provides InfluxDB v2 connectivity for irrigation telemetry.
//
// The bridge writes three measurements:
//   - rachio_zone: running flag, requested duration and runtime per zone
//   - rachio_device: online/paused/enabled per controller
//   - rachio_connectivity: whether polling could reach the Rachio cloud
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry is optional
//	}
//	defer client.Close()
//
//	client.WriteZone(influxdb.ZoneSample{ZoneID: id, Running: true}, time.Now())
//
// # Error Handling
//
// Writes are non-blocking and batched. Async write errors are delivered to the
// callback registered with SetOnError.
package influxdb
