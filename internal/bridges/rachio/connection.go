package rachio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-rachio/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-rachio/internal/rachio/cloud"
	"github.com/nerrad567/gray-logic-rachio/internal/rachio/command"
	"github.com/nerrad567/gray-logic-rachio/internal/rachio/events"
	"github.com/nerrad567/gray-logic-rachio/internal/rachio/model"
	"github.com/nerrad567/gray-logic-rachio/internal/rachio/poller"
)

// webhookTimeout bounds the webhook setup or teardown of one connection.
const webhookTimeout = 60 * time.Second

// Connection is one cloud account: its credential, model, event router,
// poller and command façade.
//
// Webhooks are registered the first time the connection reaches the cloud
// and again after every reconnect whose previous attempt failed.
type Connection struct {
	id         string
	externalID string

	client   *cloud.Client
	store    *model.Store
	router   *events.Router
	poller   *poller.Poller
	commands *command.Facade
	webhooks *webhookRegistrar
	announce *statePublisher // nil without MQTT

	unsubscribe  []func()
	webhooksDone atomic.Bool
	registering  atomic.Bool
	wg           sync.WaitGroup
	ctx          context.Context
	ctxCancel    context.CancelFunc

	logger Logger
}

// newConnection builds a connection around an already registered client.
func newConnection(acct config.RachioAccountConfig, client *cloud.Client, logger Logger) *Connection {
	externalID := acct.ExternalID
	if externalID == "" {
		externalID = uuid.NewString()
	}

	store := model.NewStore(acct.DefaultRuntime)
	router := events.NewRouter(store)
	p := poller.New(poller.Config{
		Name:     acct.ID,
		Interval: acct.PollInterval(),
		Source:   client,
		Sink:     store,
	})
	facade := command.New(command.Config{
		Cloud:      client,
		Model:      store,
		Refresher:  p,
		Optimistic: true,
	})

	if logger != nil {
		store.SetLogger(logger)
		router.SetLogger(logger)
		p.SetLogger(logger)
		facade.SetLogger(logger)
		client.SetLogger(logger)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		id:         acct.ID,
		externalID: externalID,
		client:     client,
		store:      store,
		router:     router,
		poller:     p,
		commands:   facade,
		webhooks: newWebhookRegistrar(client, acct.ID, externalID,
			acct.CallbackURL, acct.ClearAllCallbacks, logger),
		ctx:       ctx,
		ctxCancel: cancel,
		logger:    logger,
	}
}

// ID returns the account id.
func (c *Connection) ID() string { return c.id }

// ExternalID returns the tag carried by this connection's webhooks.
func (c *Connection) ExternalID() string { return c.externalID }

// Store returns the connection's model.
func (c *Connection) Store() *model.Store { return c.store }

// Commands returns the connection's command façade.
func (c *Connection) Commands() *command.Facade { return c.commands }

// Router returns the connection's webhook event router.
func (c *Connection) Router() *events.Router { return c.router }

// start subscribes listeners, polls once synchronously and starts the
// schedule. A failed first poll is not fatal: the model stays empty and
// connectivity is reported as lost until a later poll succeeds.
func (c *Connection) start(ctx context.Context, listeners []model.Listener) {
	c.unsubscribe = append(c.unsubscribe, c.store.Subscribe(model.ListenerFuncs{
		Connectivity: c.onConnectivity,
	}))
	for _, l := range listeners {
		c.unsubscribe = append(c.unsubscribe, c.store.Subscribe(l))
	}

	if err := c.poller.PollOnce(); err != nil {
		c.logWarn("initial poll failed", "error", err)
	}
	c.poller.Start(ctx)
}

// stop halts polling, waits for webhook setup, removes our webhooks and
// detaches listeners.
func (c *Connection) stop() {
	c.poller.Stop()
	c.ctxCancel()
	c.wg.Wait()

	if c.webhooks.enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
		c.webhooks.unregister(ctx)
		cancel()
	}

	for _, unsub := range c.unsubscribe {
		unsub()
	}
	c.unsubscribe = nil
}

// onConnectivity runs on the notifying goroutine and must not block.
func (c *Connection) onConnectivity(connected bool) {
	if !connected {
		return
	}
	if c.webhooksDone.Load() || !c.registering.CompareAndSwap(false, true) {
		return
	}
	if c.ctx.Err() != nil {
		c.registering.Store(false)
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.registering.Store(false)
		c.onConnected()
	}()
}

// onConnected announces the inventory and registers webhooks.
func (c *Connection) onConnected() {
	devices := c.store.Devices()
	if c.announce != nil {
		c.announce.publishDiscovery(c.store.Person(), devices)
	}

	if !c.webhooks.enabled() {
		c.webhooksDone.Store(true)
		return
	}

	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.ID)
	}

	ctx, cancel := context.WithTimeout(c.ctx, webhookTimeout)
	defer cancel()

	if err := c.webhooks.register(ctx, ids); err != nil {
		c.logWarn("webhook registration failed, relying on polling", "error", err)
		return
	}
	c.webhooksDone.Store(true)
}

// health reports the connection's state for the health payload.
func (c *Connection) health() AccountHealth {
	stats := c.poller.Stats()
	h := AccountHealth{
		ID:            c.id,
		Connected:     c.store.Connected(),
		Devices:       len(c.store.Devices()),
		Webhooks:      c.webhooks.count(),
		Polls:         stats.Polls,
		PollFailures:  stats.Failures,
		SkippedPolls:  stats.Skipped,
		LastPollError: stats.LastError,
		Breaker:       c.client.BreakerState().String(),
		RateRemaining: c.client.RateRemaining(),
		Events:        c.router.Stats(),
	}
	if !stats.LastPoll.IsZero() {
		last := stats.LastPoll.UTC()
		h.LastPoll = &last
	}
	if f, ok := c.commands.LastFailure(); ok {
		h.LastCommand = &f
	}
	return h
}

// owns reports whether the device or zone id belongs to this connection.
func (c *Connection) owns(entityID string) bool {
	if c.store.HasDevice(entityID) {
		return true
	}
	_, ok := c.store.Zone(entityID)
	return ok
}

func (c *Connection) logWarn(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, append([]any{"account", c.id}, keysAndValues...)...)
	}
}
