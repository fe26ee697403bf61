package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// PublishState publishes the retained state of a device, zone or account.
func (c *Client) PublishState(entityID string, payload []byte) error {
	if entityID == "" {
		return ErrMissingEntity
	}
	return c.publish(Topics{}.State(entityID), payload, true)
}

// PublishAck publishes a command acknowledgement for the entity the command
// was addressed to. Acks describe one command and are not retained.
func (c *Client) PublishAck(entityID string, payload []byte) error {
	if entityID == "" {
		return ErrMissingEntity
	}
	return c.publish(Topics{}.Ack(entityID), payload, false)
}

// PublishHealth publishes the retained bridge health message.
func (c *Client) PublishHealth(payload []byte) error {
	return c.publish(Topics{}.Health(), payload, true)
}

// PublishDiscovery announces an account's device and zone inventory.
func (c *Client) PublishDiscovery(payload []byte) error {
	return c.publish(Topics{}.Discovery(), payload, false)
}

func (c *Client) publish(topic string, payload []byte, retained bool) error {
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes for %s", ErrPayloadTooLarge, len(payload), topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return wait(c.client.Publish(topic, c.qos(), retained, payload), ErrPublishFailed)
}

// wait blocks on a paho token for at most operationTimeout and reports any
// failure wrapped in sentinel.
func wait(token pahomqtt.Token, sentinel error) error {
	if !token.WaitTimeout(operationTimeout) {
		return fmt.Errorf("%w: no broker response within %v", sentinel, operationTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}
