package rachio

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/gray-logic-rachio/internal/rachio/model"
)

// statePublisher mirrors model changes onto retained MQTT state topics.
type statePublisher struct {
	bridge  string
	account string
	client  MQTTClient
	logger  Logger
}

func newStatePublisher(bridge, account string, client MQTTClient, logger Logger) *statePublisher {
	return &statePublisher{bridge: bridge, account: account, client: client, logger: logger}
}

// OnDeviceChanged implements model.Listener.
func (p *statePublisher) OnDeviceChanged(d model.Device) {
	p.publish(d.ID, NewStateMessage(d.ID, KindDevice, p.account, d))
}

// OnZoneChanged implements model.Listener.
func (p *statePublisher) OnZoneChanged(z model.Zone) {
	p.publish(z.ID, NewStateMessage(z.ID, KindZone, p.account, z))
}

// OnConnectivityChanged implements model.Listener.
func (p *statePublisher) OnConnectivityChanged(connected bool) {
	p.publish(p.account, NewStateMessage(p.account, KindAccount, p.account,
		map[string]any{"connected": connected}))
}

// publishDiscovery announces the account's device inventory.
func (p *statePublisher) publishDiscovery(person model.Person, devices []model.Device) {
	msg := DiscoveryMessage{
		Timestamp: time.Now().UTC(),
		Bridge:    p.bridge,
		Account:   p.account,
		Person:    person,
		Devices:   devices,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		p.logError("failed to marshal discovery", err)
		return
	}
	if err := p.client.PublishDiscovery(payload); err != nil {
		p.logError("failed to publish discovery", err)
	}
}

func (p *statePublisher) publish(entityID string, msg StateMessage) {
	if !p.client.IsConnected() {
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		p.logError("failed to marshal state", err)
		return
	}
	if err := p.client.PublishState(entityID, payload); err != nil {
		p.logError("failed to publish state", err)
	}
}

func (p *statePublisher) logError(msg string, err error) {
	if p.logger != nil {
		p.logger.Error(msg, "account", p.account, "error", err)
	}
}
