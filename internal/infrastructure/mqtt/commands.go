package mqtt

import (
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// CommandHandler receives a platform command. entityID is the device or zone
// id taken from the command topic and may be empty when the topic ends in a
// bare slash.
//
// Paho runs handlers on its own goroutines; a handler that blocks holds up
// later commands.
type CommandHandler func(entityID string, payload []byte) error

// SubscribeCommands delivers every bridge command topic to handler. The
// subscription is re-established after each reconnect until
// UnsubscribeCommands is called.
func (c *Client) SubscribeCommands(handler CommandHandler) error {
	if handler == nil {
		return ErrSubscribeFailed
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.commands = handler
	c.subMu.Unlock()

	if err := c.subscribeCommands(handler); err != nil {
		c.subMu.Lock()
		c.commands = nil
		c.subMu.Unlock()
		return err
	}
	return nil
}

// UnsubscribeCommands stops command delivery and forgets the handler.
func (c *Client) UnsubscribeCommands() error {
	c.subMu.Lock()
	c.commands = nil
	c.subMu.Unlock()

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return wait(c.client.Unsubscribe(Topics{}.AllCommands()), ErrSubscribeFailed)
}

func (c *Client) subscribeCommands(handler CommandHandler) error {
	return wait(c.client.Subscribe(Topics{}.AllCommands(), c.qos(), c.commandCallback(handler)), ErrSubscribeFailed)
}

// restoreCommands re-subscribes after a reconnect when a handler is set.
func (c *Client) restoreCommands() {
	c.subMu.Lock()
	handler := c.commands
	c.subMu.Unlock()
	if handler == nil {
		return
	}
	if err := c.subscribeCommands(handler); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT command resubscribe failed", "error", err)
		}
	}
}

// commandCallback adapts handler to paho, recovering panics and logging
// handler errors.
func (c *Client) commandCallback(handler CommandHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT command handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(EntityFromTopic(msg.Topic()), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT command rejected", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
