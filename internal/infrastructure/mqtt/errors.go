package mqtt

import "errors"

// Errors returned by the bridge's MQTT client. Match them with errors.Is.
var (
	// ErrNotConnected is returned while the broker connection is down.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	// ErrConnectionFailed is returned when Connect cannot reach the broker.
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")

	// ErrPublishFailed wraps broker-side publish failures and timeouts.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed wraps failures to add or remove the command subscription.
	ErrSubscribeFailed = errors.New("mqtt: command subscription failed")

	// ErrMissingEntity is returned when a state or ack publish names no device or zone.
	ErrMissingEntity = errors.New("mqtt: entity id is required")

	// ErrPayloadTooLarge is returned for payloads above maxPayloadSize.
	ErrPayloadTooLarge = errors.New("mqtt: payload exceeds size limit")
)
