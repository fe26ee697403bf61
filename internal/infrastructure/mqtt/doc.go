// Package mqtt provides MQTT client connectivity for the Rachio bridge.
//
// This package manages:
//   - Connection to the platform broker with auto-reconnect
//   - Retained state publishing for Rachio devices and zones
//   - Command subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The platform core and its protocol bridges talk over MQTT. This service is
// the bridge for the Rachio cloud: it publishes what it learns from polling
// and webhooks, and turns command messages into Rachio API calls.
//
//	Gray Logic Core ↔ MQTT Broker ↔ Rachio bridge ↔ Rachio cloud
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.SubscribeCommands(func(entityID string, payload []byte) error {
//	    return bridge.HandleCommand(entityID, payload)
//	})
//	err = client.PublishState(zoneID, payload)
package mqtt
