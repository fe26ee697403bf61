package mqtt

import "fmt"

// Topic layout for the Rachio bridge. Bridge topics follow the platform's flat
// scheme graylogic/{category}/{protocol}/{id}, where id is a Rachio device or
// zone id (both are provider-assigned UUIDs and never collide).
const (
	// TopicPrefix is the base for all platform topics.
	TopicPrefix = "graylogic"

	// Protocol is the bridge segment of every topic this service owns.
	Protocol = "rachio"
)

// Topics provides builders for the bridge's MQTT topics.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.State("d3f1c0de-...")
//	// Returns: "graylogic/state/rachio/d3f1c0de-..."
type Topics struct{}

// State returns the retained state topic for a device or zone.
func (Topics) State(entityID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, Protocol, entityID)
}

// Command returns the topic commands for a device or zone arrive on.
func (Topics) Command(entityID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, Protocol, entityID)
}

// AllCommands returns the wildcard subscription for every command topic.
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, Protocol)
}

// Ack returns the topic command acknowledgements are published on.
func (Topics) Ack(entityID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, Protocol, entityID)
}

// Health returns the bridge health topic.
func (Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Protocol)
}

// Discovery returns the topic the device/zone inventory is announced on.
func (Topics) Discovery() string {
	return fmt.Sprintf("%s/discovery/%s", TopicPrefix, Protocol)
}

// Status returns the retained online/offline topic, also used for the LWT.
func (Topics) Status() string {
	return fmt.Sprintf("%s/system/%s/status", TopicPrefix, Protocol)
}

// EntityFromTopic extracts the trailing id segment of a bridge topic.
// It returns "" when the topic has no id segment.
func EntityFromTopic(topic string) string {
	for i := len(topic) - 1; i >= 0; i-- {
		if topic[i] == '/' {
			return topic[i+1:]
		}
	}
	return ""
}
