package rachio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-rachio/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-rachio/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-rachio/internal/rachio/cloud"
	"github.com/nerrad567/gray-logic-rachio/internal/rachio/events"
	"github.com/nerrad567/gray-logic-rachio/internal/rachio/model"
)

// Bridge operation constants.
const (
	// DefaultBridgeID names the bridge in health and discovery messages.
	DefaultBridgeID = "rachio"

	// commandTimeout bounds one command including retries.
	commandTimeout = 60 * time.Second
)

// Logger is the structured logging interface used by the bridge.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MQTTClient is the bridge's view of the broker connection. Topics are
// derived from entity ids by the client. Satisfied by *mqtt.Client.
type MQTTClient interface {
	PublishState(entityID string, payload []byte) error
	PublishAck(entityID string, payload []byte) error
	PublishHealth(payload []byte) error
	PublishDiscovery(payload []byte) error
	SubscribeCommands(handler mqtt.CommandHandler) error
	UnsubscribeCommands() error
	IsConnected() bool
}

// ListenerFactory builds a model listener for one account.
type ListenerFactory func(account string) model.Listener

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Config is the rachio section of the loaded configuration.
	Config *config.RachioConfig

	// BridgeID names the bridge in health and discovery. Default: "rachio".
	BridgeID string

	// Version is reported in health messages.
	Version string

	// MQTTClient is optional. Without it no state, acks or health are
	// published and no commands are consumed over MQTT.
	MQTTClient MQTTClient

	// Registry owns the per-account cloud clients. Default: a new registry.
	Registry *cloud.Registry

	// HTTPClient overrides the HTTP client of every cloud client.
	HTTPClient cloud.Doer

	// Telemetry is an optional InfluxDB sink.
	Telemetry TelemetryWriter

	// History is an optional zone run history recorder.
	History *History

	// Listeners build extra model listeners, one per connection.
	Listeners []ListenerFactory

	// HealthInterval overrides DefaultHealthInterval.
	HealthInterval time.Duration

	// Logger is an optional structured logger.
	Logger Logger
}

// Bridge runs one Connection per configured account and connects them to
// MQTT, the webhook endpoint and the optional sinks.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg        *config.RachioConfig
	bridgeID   string
	mqtt       MQTTClient
	registry   *cloud.Registry
	httpClient cloud.Doer
	telemetry  TelemetryWriter
	history    *History
	listeners  []ListenerFactory
	health     *HealthReporter

	connMu      sync.RWMutex
	connections map[string]*Connection
	started     bool

	// Webhook payloads no connection could take
	malformedHooks atomic.Uint64
	unroutedHooks  atomic.Uint64

	// Shutdown coordination
	inflightMu sync.Mutex
	closing    bool
	wg         sync.WaitGroup
	stopOnce   sync.Once
	ctx        context.Context
	ctxCancel  context.CancelFunc

	logger Logger
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if len(opts.Config.Accounts) == 0 {
		return nil, fmt.Errorf("at least one account is required")
	}

	seen := make(map[string]bool, len(opts.Config.Accounts))
	for _, a := range opts.Config.Accounts {
		if seen[a.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAccount, a.ID)
		}
		seen[a.ID] = true
	}

	bridgeID := opts.BridgeID
	if bridgeID == "" {
		bridgeID = DefaultBridgeID
	}
	registry := opts.Registry
	if registry == nil {
		registry = cloud.NewRegistry()
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:         opts.Config,
		bridgeID:    bridgeID,
		mqtt:        opts.MQTTClient,
		registry:    registry,
		httpClient:  opts.HTTPClient,
		telemetry:   opts.Telemetry,
		history:     opts.History,
		listeners:   opts.Listeners,
		connections: make(map[string]*Connection),
		ctx:         ctx,
		ctxCancel:   ctxCancel,
		logger:      opts.Logger,
	}

	var publisher HealthPublisher
	if opts.MQTTClient != nil {
		publisher = opts.MQTTClient
	}
	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  bridgeID,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: publisher,
		Source:    b,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start opens every account connection, subscribes to commands and starts
// health reporting. An account whose credential cannot be registered
// fails the start; an account whose cloud is unreachable does not.
func (b *Bridge) Start(ctx context.Context) error {
	if b.mqtt != nil {
		if err := b.health.PublishStarting(); err != nil {
			b.logError("failed to publish starting status", err)
		}
	}

	for _, acct := range b.cfg.Accounts {
		client, err := b.registry.Register(acct.ID, acct.APIKey, b.cloudOptions())
		if err != nil {
			b.stopConnections()
			return fmt.Errorf("registering account %s: %w", acct.ID, err)
		}

		conn := newConnection(acct, client, b.logger)
		listeners := b.accountListeners(conn)

		b.connMu.Lock()
		b.connections[acct.ID] = conn
		b.connMu.Unlock()

		conn.start(b.ctx, listeners)
		b.logInfo("account connected", "account", acct.ID,
			"devices", len(conn.store.Devices()), "connected", conn.store.Connected())
	}

	if b.mqtt != nil {
		if err := b.mqtt.SubscribeCommands(b.handleMQTTMessage); err != nil {
			b.stopConnections()
			return fmt.Errorf("subscribe to commands: %w", err)
		}
		b.logInfo("subscribed to commands", "topic", mqtt.Topics{}.AllCommands())

		b.health.Start(ctx)
	}

	b.connMu.Lock()
	b.started = true
	b.connMu.Unlock()

	b.logInfo("bridge started", "bridge_id", b.bridgeID, "accounts", len(b.cfg.Accounts))
	return nil
}

// Stop gracefully shuts down the bridge.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.inflightMu.Lock()
		b.closing = true
		b.inflightMu.Unlock()

		b.ctxCancel()

		if b.mqtt != nil {
			if err := b.mqtt.UnsubscribeCommands(); err != nil {
				b.logError("failed to unsubscribe from commands", err)
			}
		}

		// Wait for in-flight MQTT commands
		b.wg.Wait()

		b.stopConnections()

		if b.mqtt != nil {
			b.health.Stop()
		}

		b.logInfo("bridge stopped")
	})
}

func (b *Bridge) stopConnections() {
	b.connMu.Lock()
	conns := b.connections
	b.connections = make(map[string]*Connection)
	b.started = false
	b.connMu.Unlock()

	for id, conn := range conns {
		conn.stop()
		b.registry.Unregister(id)
	}
}

// accountListeners assembles the listeners attached to one connection.
func (b *Bridge) accountListeners(conn *Connection) []model.Listener {
	var ls []model.Listener
	if b.mqtt != nil {
		pub := newStatePublisher(b.bridgeID, conn.id, b.mqtt, b.logger)
		conn.announce = pub
		ls = append(ls, pub)
	}
	if b.telemetry != nil {
		ls = append(ls, newTelemetryListener(conn.id, b.telemetry))
	}
	if b.history != nil {
		ls = append(ls, b.history.Listener(conn.id))
	}
	for _, factory := range b.listeners {
		ls = append(ls, factory(conn.id))
	}
	return ls
}

// cloudOptions maps configuration onto client policy options.
func (b *Bridge) cloudOptions() cloud.Options {
	opts := cloud.DefaultOptions()
	if b.cfg.APIURL != "" {
		opts.BaseURL = b.cfg.APIURL
	}
	if b.cfg.RequestTimeout > 0 {
		opts.Timeout = time.Duration(b.cfg.RequestTimeout) * time.Second
	}
	if b.cfg.RateLimit.Quota > 0 {
		opts.Quota = b.cfg.RateLimit.Quota
	}
	if b.cfg.RateLimit.Period > 0 {
		opts.Period = time.Duration(b.cfg.RateLimit.Period) * time.Second
	}
	if b.cfg.Retry.MaxAttempts > 0 {
		opts.Retry.MaxAttempts = b.cfg.Retry.MaxAttempts
	}
	if b.cfg.Retry.BaseDelay > 0 {
		opts.Retry.BaseDelay = time.Duration(b.cfg.Retry.BaseDelay) * time.Second
	}
	if b.cfg.Retry.MaxDelay > 0 {
		opts.Retry.MaxDelay = time.Duration(b.cfg.Retry.MaxDelay) * time.Second
	}
	if b.cfg.CircuitBreaker.FailureThreshold > 0 {
		opts.Breaker.FailureThreshold = b.cfg.CircuitBreaker.FailureThreshold
	}
	if b.cfg.CircuitBreaker.Cooldown > 0 {
		opts.Breaker.Cooldown = time.Duration(b.cfg.CircuitBreaker.Cooldown) * time.Second
	}
	opts.HTTPClient = b.httpClient
	opts.Logger = b.logger
	return opts
}

// Connections returns the running connections ordered by account id.
func (b *Bridge) Connections() []*Connection {
	b.connMu.RLock()
	defer b.connMu.RUnlock()

	out := make([]*Connection, 0, len(b.connections))
	for _, c := range b.connections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Connection returns the connection of an account.
func (b *Bridge) Connection(account string) (*Connection, bool) {
	b.connMu.RLock()
	defer b.connMu.RUnlock()
	c, ok := b.connections[account]
	return c, ok
}

// Owner returns the connection whose model holds the device or zone.
func (b *Bridge) Owner(entityID string) (*Connection, error) {
	for _, c := range b.Connections() {
		if c.owns(entityID) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoConnection, entityID)
}

// Devices returns the devices of every account.
func (b *Bridge) Devices() []model.Device {
	var out []model.Device
	for _, c := range b.Connections() {
		out = append(out, c.store.Devices()...)
	}
	return out
}

// Device looks a device up across accounts.
func (b *Bridge) Device(deviceID string) (model.Device, bool) {
	for _, c := range b.Connections() {
		if d, ok := c.store.Device(deviceID); ok {
			return d, true
		}
	}
	return model.Device{}, false
}

// Zone looks a zone up across accounts.
func (b *Bridge) Zone(zoneID string) (model.Zone, bool) {
	for _, c := range b.Connections() {
		if z, ok := c.store.Zone(zoneID); ok {
			return z, true
		}
	}
	return model.Zone{}, false
}

// HandleWebhook routes a webhook payload to the connection whose external
// id matches, or else to the connection that owns the device.
//
// Returns:
//   - events.Outcome: What the router did with the event
//   - error: events.ErrMalformedEvent or ErrNoConnection
func (b *Bridge) HandleWebhook(ctx context.Context, raw []byte) (events.Outcome, error) {
	ev, err := events.Parse(raw)
	if err != nil {
		b.malformedHooks.Add(1)
		b.logWarn("dropping malformed webhook event", "error", err)
		return events.OutcomeIgnored, err
	}

	conns := b.Connections()
	var target *Connection
	if ev.ExternalID != "" {
		for _, c := range conns {
			if c.externalID == ev.ExternalID {
				target = c
				break
			}
		}
	}
	if target == nil {
		for _, c := range conns {
			if c.store.HasDevice(ev.DeviceID) {
				target = c
				break
			}
		}
	}
	if target == nil {
		b.unroutedHooks.Add(1)
		b.logWarn("webhook event for unknown account",
			"external_id", ev.ExternalID, "device_id", ev.DeviceID, "type", ev.Type)
		return events.OutcomeIgnored, fmt.Errorf("%w: device %s", ErrNoConnection, ev.DeviceID)
	}

	return target.router.RouteEvent(ctx, ev), nil
}

// WebhookStats totals webhook intake across connections. Malformed and
// unrouted payloads are counted by the bridge, which sees them first.
func (b *Bridge) WebhookStats() WebhookStats {
	stats := WebhookStats{
		Malformed: b.malformedHooks.Load(),
		Unrouted:  b.unroutedHooks.Load(),
	}
	for _, c := range b.Connections() {
		s := c.router.Stats()
		stats.Applied += s.Applied
		stats.Duplicate += s.Duplicate
		stats.Ignored += s.Ignored
		stats.Malformed += s.Malformed
	}
	return stats
}

// AccountsHealth implements HealthSource.
func (b *Bridge) AccountsHealth() []AccountHealth {
	conns := b.Connections()
	out := make([]AccountHealth, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.health())
	}
	return out
}

// Health returns the current health message.
func (b *Bridge) Health() HealthMessage {
	return b.health.Snapshot()
}

// Ready reports whether Start has completed.
func (b *Bridge) Ready() error {
	b.connMu.RLock()
	defer b.connMu.RUnlock()
	if !b.started {
		return ErrNotStarted
	}
	return nil
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error if logger is set.
func (b *Bridge) logError(msg string, err error, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}

// isContextErr reports cancellation or deadline errors.
func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
