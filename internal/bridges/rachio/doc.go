// Package rachio connects Rachio cloud accounts to the Gray Logic platform.
//
// Each configured account becomes a Connection that owns a resilient cloud
// client, an in-memory device/zone model, a webhook event router, a
// snapshot poller and a command façade. The Bridge runs the connections
// and translates between them and the rest of the platform:
//
//	┌─────────────────┐          ┌─────────────────┐   HTTPS   ┌──────────────┐
//	│   Gray Logic    │   MQTT   │  Rachio Bridge  │◄─────────►│ Rachio cloud │
//	│      Core       │◄────────►│   (this pkg)    │◄──────────│  (webhooks)  │
//	└─────────────────┘          └─────────────────┘           └──────────────┘
//
// # Topics
//
//   - graylogic/state/rachio/{id}: retained device and zone state
//   - graylogic/command/rachio/{id}: commands addressed to a device or zone
//   - graylogic/ack/rachio/{id}: command acknowledgements
//   - graylogic/health/rachio: bridge health every 30 seconds
//   - graylogic/discovery/rachio: device inventory after each connect
//
// # Sinks
//
// Model changes also feed optional InfluxDB telemetry and a SQLite zone
// run history, both registered as model listeners.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package rachio
