package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-rachio/internal/infrastructure/config"
)

// These tests exercise the client without a broker.

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *recordingLogger) Info(string, ...any) {}
func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}
func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errs = append(l.errs, msg)
	l.mu.Unlock()
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}
	if client.IsConnected() {
		t.Error("IsConnected() = true for unconnected client")
	}
}

func TestPublishValidation(t *testing.T) {
	client := &Client{}
	oversized := make([]byte, maxPayloadSize+1)

	tests := []struct {
		name    string
		publish func() error
		want    error
	}{
		{"state without entity", func() error { return client.PublishState("", []byte("{}")) }, ErrMissingEntity},
		{"ack without entity", func() error { return client.PublishAck("", []byte("{}")) }, ErrMissingEntity},
		{"oversized state", func() error { return client.PublishState("z1", oversized) }, ErrPayloadTooLarge},
		{"oversized health", func() error { return client.PublishHealth(oversized) }, ErrPayloadTooLarge},
		{"state disconnected", func() error { return client.PublishState("z1", []byte("{}")) }, ErrNotConnected},
		{"ack disconnected", func() error { return client.PublishAck("d1", []byte("{}")) }, ErrNotConnected},
		{"health disconnected", func() error { return client.PublishHealth([]byte("{}")) }, ErrNotConnected},
		{"discovery disconnected", func() error { return client.PublishDiscovery([]byte("{}")) }, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.publish(); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribeCommandsValidation(t *testing.T) {
	client := &Client{}
	noop := func(string, []byte) error { return nil }

	if err := client.SubscribeCommands(nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("SubscribeCommands(nil) error = %v", err)
	}
	if err := client.SubscribeCommands(noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SubscribeCommands(disconnected) error = %v", err)
	}
	if client.commands != nil {
		t.Error("handler kept after failed subscribe")
	}
	if err := client.UnsubscribeCommands(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("UnsubscribeCommands(disconnected) error = %v", err)
	}
}

func TestCommandCallback_RecoversPanic(t *testing.T) {
	logger := &recordingLogger{}
	client := &Client{}
	client.SetLogger(logger)

	callback := client.commandCallback(func(string, []byte) error {
		panic("boom")
	})
	callback(nil, fakeMessage{topic: "graylogic/command/rachio/z1"})

	if len(logger.errs) != 1 {
		t.Errorf("expected one panic log, got %v", logger.errs)
	}
}

func TestCommandCallback_PassesEntityAndLogsError(t *testing.T) {
	logger := &recordingLogger{}
	client := &Client{}
	client.SetLogger(logger)

	var gotEntity string
	var gotPayload []byte
	callback := client.commandCallback(func(entityID string, payload []byte) error {
		gotEntity, gotPayload = entityID, payload
		return errors.New("bad command")
	})
	callback(nil, fakeMessage{topic: "graylogic/command/rachio/z1", payload: []byte(`{"a":1}`)})

	if gotEntity != "z1" || string(gotPayload) != `{"a":1}` {
		t.Errorf("handler got (%q, %q)", gotEntity, gotPayload)
	}
	if len(logger.warns) != 1 {
		t.Errorf("expected one warning, got %v", logger.warns)
	}
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		broker config.MQTTBrokerConfig
		want   string
	}{
		{config.MQTTBrokerConfig{Host: "localhost", Port: 1883}, "tcp://localhost:1883"},
		{config.MQTTBrokerConfig{Host: "broker.lan", Port: 8883, TLS: true}, "ssl://broker.lan:8883"},
	}
	for _, tt := range tests {
		if got := brokerURL(tt.broker); got != tt.want {
			t.Errorf("brokerURL(%+v) = %q, want %q", tt.broker, got, tt.want)
		}
	}
}

func TestNewClientOptions(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{Host: "broker.lan", Port: 8883, ClientID: "rachio-1", TLS: true},
		Auth:   config.MQTTAuthConfig{Username: "bridge", Password: "secret"},
		QoS:    1,
	}
	opts := newClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://broker.lan:8883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "rachio-1" || opts.Username != "bridge" || opts.Password != "secret" {
		t.Errorf("identity = %q %q %q", opts.ClientID, opts.Username, opts.Password)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tls.VersionTLS12 {
		t.Errorf("TLSConfig = %+v", opts.TLSConfig)
	}
	if !opts.WillEnabled || opts.WillTopic != "graylogic/system/rachio/status" || !opts.WillRetained {
		t.Errorf("will = %v %q retained=%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}

	var will StatusMessage
	if err := json.Unmarshal(opts.WillPayload, &will); err != nil {
		t.Fatalf("will payload: %v", err)
	}
	if will.Status != StatusOffline || will.Reason != reasonCrash || will.ClientID != "rachio-1" {
		t.Errorf("will = %+v", will)
	}
}

var _ pahomqtt.Message = fakeMessage{}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		got, want string
	}{
		{topics.State("z1"), "graylogic/state/rachio/z1"},
		{topics.Command("z1"), "graylogic/command/rachio/z1"},
		{topics.AllCommands(), "graylogic/command/rachio/+"},
		{topics.Ack("z1"), "graylogic/ack/rachio/z1"},
		{topics.Health(), "graylogic/health/rachio"},
		{topics.Discovery(), "graylogic/discovery/rachio"},
		{topics.Status(), "graylogic/system/rachio/status"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestEntityFromTopic(t *testing.T) {
	if got := EntityFromTopic("graylogic/command/rachio/abc-123"); got != "abc-123" {
		t.Errorf("EntityFromTopic() = %q", got)
	}
	if got := EntityFromTopic("noslash"); got != "" {
		t.Errorf("EntityFromTopic(noslash) = %q, want empty", got)
	}
}
