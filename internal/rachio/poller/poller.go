package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nerrad567/gray-logic-rachio/internal/rachio/cloud"
	"github.com/nerrad567/gray-logic-rachio/internal/rachio/model"
)

// DefaultInterval is the snapshot poll period when none is configured.
const DefaultInterval = 120 * time.Second

// Source fetches the cloud truth. Satisfied by *cloud.Client.
type Source interface {
	GetPerson(ctx context.Context) (*cloud.PersonDTO, error)
	GetDevice(ctx context.Context, deviceID string) (*cloud.DeviceDTO, error)
}

// Sink receives snapshots and connectivity. Satisfied by *model.Store.
type Sink interface {
	ApplySnapshot(person model.Person, devices []model.Device) model.SnapshotResult
	SetConnectivity(connected bool)
}

// Logger is the optional logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Config holds configuration for a Poller.
type Config struct {
	// Name identifies the connection in logs.
	Name string

	// Interval is the poll period. Default: DefaultInterval.
	Interval time.Duration

	// InitialPoll makes Start poll immediately instead of waiting one
	// interval.
	InitialPoll bool

	Source Source
	Sink   Sink
}

// Stats is a point-in-time view of poller activity.
type Stats struct {
	Polls     uint64
	Failures  uint64
	Skipped   uint64
	LastPoll  time.Time
	LastError string
}

// Poller periodically replaces the model with a fresh cloud snapshot.
//
// Ticks never overlap: a tick or TriggerNow request that arrives while a
// poll is running is skipped and counted. On failure the model is left
// untouched and connectivity is reported as lost.
//
// Thread Safety: All methods are safe for concurrent use.
type Poller struct {
	name     string
	interval time.Duration
	initial  bool
	source   Source
	sink     Sink

	cron      *cron.Cron
	ctx       context.Context
	ctxCancel context.CancelFunc
	stopCtx   func() bool
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	mu       sync.Mutex
	inFlight bool
	stopped  bool
	stats    Stats

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a poller. Call Start to begin polling.
func New(cfg Config) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Poller{
		name:      cfg.Name,
		interval:  interval,
		initial:   cfg.InitialPoll,
		source:    cfg.Source,
		sink:      cfg.Sink,
		cron:      cron.New(),
		ctx:       ctx,
		ctxCancel: cancel,
	}
}

// SetLogger sets the logger for the poller.
func (p *Poller) SetLogger(logger Logger) {
	p.loggerMu.Lock()
	p.logger = logger
	p.loggerMu.Unlock()
}

// Start polls every interval, and once immediately when InitialPoll is
// set. Cancelling ctx has the same effect as Stop.
func (p *Poller) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.stopCtx = context.AfterFunc(ctx, p.ctxCancel)
		p.cron.Schedule(cron.Every(p.interval), cron.FuncJob(p.tick))
		p.cron.Start()
		if p.initial {
			go p.tick()
		}
		p.logInfo("poller started", "connection", p.name, "interval", p.interval.String())
	})
}

// Stop cancels the in-flight poll, if any, and waits for it to return.
// Safe to call multiple times.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()

		p.ctxCancel()
		if p.stopCtx != nil {
			p.stopCtx()
		}
		<-p.cron.Stop().Done()
		p.wg.Wait()
		p.logInfo("poller stopped", "connection", p.name)
	})
}

// TriggerNow requests an out-of-band poll without waiting for it. The
// request is skipped if a poll is already running.
func (p *Poller) TriggerNow() {
	go p.tick()
}

// PollOnce runs a poll synchronously under the same no-overlap rule.
//
// Returns:
//   - error: ErrPollInFlight, ErrStopped, or the poll failure
func (p *Poller) PollOnce() error {
	return p.run()
}

// Stats returns a snapshot of the counters.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Poller) tick() {
	if err := p.run(); errors.Is(err, ErrPollInFlight) {
		p.logDebug("poll skipped, previous still running", "connection", p.name)
	}
}

// run enforces the single-flight rule around poll.
func (p *Poller) run() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	if p.inFlight {
		p.stats.Skipped++
		p.mu.Unlock()
		return ErrPollInFlight
	}
	p.inFlight = true
	p.wg.Add(1)
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
		p.wg.Done()
	}()

	return p.poll(p.ctx)
}

// poll fetches and applies one snapshot.
func (p *Poller) poll(ctx context.Context) error {
	started := time.Now()

	person, err := p.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("poll interrupted: %w", err)
		}
		p.mu.Lock()
		p.stats.Failures++
		p.stats.LastError = err.Error()
		p.mu.Unlock()

		p.logWarn("poll failed, keeping last known state", "connection", p.name, "error", err)
		p.sink.SetConnectivity(false)
		return err
	}

	mp, devices := model.FromPerson(person)
	res := p.sink.ApplySnapshot(mp, devices)
	p.sink.SetConnectivity(true)

	p.mu.Lock()
	p.stats.Polls++
	p.stats.LastPoll = started
	p.stats.LastError = ""
	p.mu.Unlock()

	p.logDebug("snapshot applied", "connection", p.name,
		"devices", len(devices),
		"devices_changed", res.DevicesChanged,
		"zones_changed", res.ZonesChanged,
		"collisions", res.Collisions,
		"duration", time.Since(started).String())
	return nil
}

// fetch reads the person tree and completes devices listed without zones.
func (p *Poller) fetch(ctx context.Context) (*cloud.PersonDTO, error) {
	person, err := p.source.GetPerson(ctx)
	if err != nil {
		return nil, err
	}

	for i, d := range person.Devices {
		if d.Deleted || len(d.Zones) > 0 {
			continue
		}
		full, err := p.source.GetDevice(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		person.Devices[i] = *full
	}
	return person, nil
}

func (p *Poller) getLogger() Logger {
	p.loggerMu.RLock()
	defer p.loggerMu.RUnlock()
	return p.logger
}

func (p *Poller) logDebug(msg string, keysAndValues ...any) {
	if l := p.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (p *Poller) logInfo(msg string, keysAndValues ...any) {
	if l := p.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (p *Poller) logWarn(msg string, keysAndValues ...any) {
	if l := p.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}
