// Package command validates user commands against the model, sends them
// through the resilient cloud client and applies optimistic updates.
package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-rachio/internal/rachio/cloud"
	"github.com/nerrad567/gray-logic-rachio/internal/rachio/model"
)

// Duration limits accepted by the provider, in seconds.
const (
	MinZoneDuration = 1
	MaxZoneDuration = 10800
	MaxRainDelay    = 604800

	// FallbackRuntime is used when neither the zone nor the device carries
	// a runtime.
	FallbackRuntime = 300
)

// Cloud is the write side of the provider API. Satisfied by *cloud.Client.
type Cloud interface {
	StartZone(ctx context.Context, zoneID string, seconds int) error
	StartMultipleZones(ctx context.Context, runs []cloud.ZoneRun) error
	StopWatering(ctx context.Context, deviceID string) error
	SetRainDelay(ctx context.Context, deviceID string, seconds int) error
	EnableDevice(ctx context.Context, deviceID string) error
	DisableDevice(ctx context.Context, deviceID string) error
}

// Model is the part of *model.Store the façade reads and updates.
type Model interface {
	Device(deviceID string) (model.Device, bool)
	Zone(zoneID string) (model.Zone, bool)
	ZonesOf(deviceID string) []model.Zone
	SetZoneRunning(zoneID string, running bool) error
	StopDevice(deviceID string) error
	ApplyDeviceDelta(deviceID string, delta model.DeviceDelta) error
	ApplyZoneDelta(zoneID string, delta model.ZoneDelta) error
}

// Refresher requests an out-of-band poll. Satisfied by *poller.Poller.
type Refresher interface {
	TriggerNow()
}

// Logger is the optional logging interface used by this package.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Failure describes the most recent failed command.
type Failure struct {
	Command string    `json:"command"`
	Target  string    `json:"target"`
	Error   string    `json:"error"`
	At      time.Time `json:"at"`
}

// Config holds configuration for a Facade.
type Config struct {
	Cloud     Cloud
	Model     Model
	Refresher Refresher // optional

	// Optimistic applies the expected model change after a successful
	// command instead of waiting for the next poll or event.
	Optimistic bool

	// Clock overrides time.Now. Used for rain delay expiry and failures.
	Clock func() time.Time
}

// Facade is the command entry point for one connection.
//
// Thread Safety: All methods are safe for concurrent use.
type Facade struct {
	cloud      Cloud
	model      Model
	refresher  Refresher
	optimistic bool
	now        func() time.Time

	mu      sync.Mutex
	lastErr *Failure

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a command façade.
func New(cfg Config) *Facade {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Facade{
		cloud:      cfg.Cloud,
		model:      cfg.Model,
		refresher:  cfg.Refresher,
		optimistic: cfg.Optimistic,
		now:        now,
	}
}

// SetLogger sets the logger for the façade.
func (f *Facade) SetLogger(logger Logger) {
	f.loggerMu.Lock()
	f.logger = logger
	f.loggerMu.Unlock()
}

// LastFailure returns the most recent failed command, if any.
func (f *Facade) LastFailure() (Failure, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastErr == nil {
		return Failure{}, false
	}
	return *f.lastErr, true
}

// StartZone waters one zone for seconds.
//
// Parameters:
//   - zoneID: zone in the model
//   - seconds: 1 to MaxZoneDuration
//
// Returns:
//   - error: ErrInvalidArgument, ErrUnknownEntity or the cloud error
func (f *Facade) StartZone(ctx context.Context, zoneID string, seconds int) error {
	if err := requireID("zone", zoneID); err != nil {
		return err
	}
	if err := checkDuration(seconds); err != nil {
		return err
	}
	if _, ok := f.model.Zone(zoneID); !ok {
		return fmt.Errorf("%w: zone %s", ErrUnknownEntity, zoneID)
	}

	if err := f.cloud.StartZone(ctx, zoneID, seconds); err != nil {
		return f.fail("start_zone", zoneID, err)
	}

	if f.optimistic {
		_ = f.model.SetZoneRunning(zoneID, true)
	}
	f.succeeded("start_zone", zoneID)
	return nil
}

// ZoneRun is one entry of a multi-zone run.
type ZoneRun struct {
	ZoneID  string `json:"zone_id"`
	Seconds int    `json:"duration"`
}

// StartMultipleZones waters the given zones in order.
func (f *Facade) StartMultipleZones(ctx context.Context, runs []ZoneRun) error {
	if len(runs) == 0 {
		return fmt.Errorf("%w: no zones given", ErrInvalidArgument)
	}

	req := make([]cloud.ZoneRun, 0, len(runs))
	for i, r := range runs {
		if err := requireID("zone", r.ZoneID); err != nil {
			return err
		}
		if err := checkDuration(r.Seconds); err != nil {
			return err
		}
		if _, ok := f.model.Zone(r.ZoneID); !ok {
			return fmt.Errorf("%w: zone %s", ErrUnknownEntity, r.ZoneID)
		}
		req = append(req, cloud.ZoneRun{ZoneID: r.ZoneID, Duration: r.Seconds, SortOrder: i + 1})
	}

	if err := f.cloud.StartMultipleZones(ctx, req); err != nil {
		return f.fail("start_multiple_zones", req[0].ZoneID, err)
	}

	// Only the first zone of the sequence is running now.
	if f.optimistic {
		_ = f.model.SetZoneRunning(req[0].ZoneID, true)
	}
	f.succeeded("start_multiple_zones", req[0].ZoneID)
	return nil
}

// RunAllZones waters every enabled zone of a device in number order.
// seconds of zero uses each zone's resolved duration.
func (f *Facade) RunAllZones(ctx context.Context, deviceID string, seconds int) error {
	zones, err := f.deviceZones(deviceID, seconds)
	if err != nil {
		return err
	}
	return f.runZones(ctx, "run_all_zones", deviceID, zones, seconds)
}

// RunSelectedZones waters the zones chosen by the device's RunZones
// selector. An empty selector selects every enabled zone.
func (f *Facade) RunSelectedZones(ctx context.Context, deviceID string, seconds int) error {
	zones, err := f.deviceZones(deviceID, seconds)
	if err != nil {
		return err
	}

	d, _ := f.model.Device(deviceID)
	numbers, err := ParseRunZones(d.RunZones)
	if err != nil {
		return err
	}
	if len(numbers) > 0 {
		selected := zones[:0]
		for _, z := range zones {
			if numbers[z.Number] {
				selected = append(selected, z)
			}
		}
		zones = selected
	}
	return f.runZones(ctx, "run_selected_zones", deviceID, zones, seconds)
}

// RunNextZone starts the enabled zone after the highest numbered running
// zone, wrapping to the first. With nothing running it starts the first
// enabled zone.
func (f *Facade) RunNextZone(ctx context.Context, deviceID string, seconds int) error {
	zones, err := f.deviceZones(deviceID, seconds)
	if err != nil {
		return err
	}
	if len(zones) == 0 {
		return fmt.Errorf("%w: device %s has no enabled zones", ErrInvalidArgument, deviceID)
	}

	current := 0
	for _, z := range zones {
		if z.Running && z.Number > current {
			current = z.Number
		}
	}

	next := zones[0]
	for _, z := range zones {
		if z.Number > current {
			next = z
			break
		}
	}

	if seconds == 0 {
		seconds = f.DurationFor(next.ID)
	}
	return f.StartZone(ctx, next.ID, seconds)
}

// StopWatering stops all watering on a device.
func (f *Facade) StopWatering(ctx context.Context, deviceID string) error {
	if err := f.requireDevice(deviceID); err != nil {
		return err
	}

	if err := f.cloud.StopWatering(ctx, deviceID); err != nil {
		return f.fail("stop_watering", deviceID, err)
	}

	if f.optimistic {
		_ = f.model.StopDevice(deviceID)
	}
	f.succeeded("stop_watering", deviceID)
	return nil
}

// SetRainDelay suspends schedules for seconds. Zero clears the delay.
func (f *Facade) SetRainDelay(ctx context.Context, deviceID string, seconds int) error {
	if err := f.requireDevice(deviceID); err != nil {
		return err
	}
	if seconds < 0 || seconds > MaxRainDelay {
		return fmt.Errorf("%w: rain delay %ds outside 0..%d", ErrInvalidArgument, seconds, MaxRainDelay)
	}

	if err := f.cloud.SetRainDelay(ctx, deviceID, seconds); err != nil {
		return f.fail("set_rain_delay", deviceID, err)
	}

	if f.optimistic {
		var until time.Time
		if seconds > 0 {
			until = f.now().UTC().Add(time.Duration(seconds) * time.Second)
		}
		_ = f.model.ApplyDeviceDelta(deviceID, model.DeviceDelta{RainDelayUntil: &until})
	}
	f.succeeded("set_rain_delay", deviceID)
	return nil
}

// EnableDevice turns the controller on.
func (f *Facade) EnableDevice(ctx context.Context, deviceID string) error {
	return f.setEnabled(ctx, deviceID, true)
}

// DisableDevice turns the controller off.
func (f *Facade) DisableDevice(ctx context.Context, deviceID string) error {
	return f.setEnabled(ctx, deviceID, false)
}

func (f *Facade) setEnabled(ctx context.Context, deviceID string, enabled bool) error {
	if err := f.requireDevice(deviceID); err != nil {
		return err
	}

	name := "disable_device"
	call := f.cloud.DisableDevice
	if enabled {
		name = "enable_device"
		call = f.cloud.EnableDevice
	}

	if err := call(ctx, deviceID); err != nil {
		return f.fail(name, deviceID, err)
	}

	if f.optimistic {
		_ = f.model.ApplyDeviceDelta(deviceID, model.DeviceDelta{Enabled: &enabled})
	}
	f.succeeded(name, deviceID)
	return nil
}

// SetRequestedDuration stores the duration used by the next start of a
// zone that does not name one. Zero clears it. Local only.
func (f *Facade) SetRequestedDuration(zoneID string, seconds int) error {
	if err := requireID("zone", zoneID); err != nil {
		return err
	}
	if seconds != 0 {
		if err := checkDuration(seconds); err != nil {
			return err
		}
	}
	return f.model.ApplyZoneDelta(zoneID, model.ZoneDelta{RequestedDuration: &seconds})
}

// SetDefaultRuntime sets the device fallback duration. Local only.
func (f *Facade) SetDefaultRuntime(deviceID string, seconds int) error {
	if err := requireID("device", deviceID); err != nil {
		return err
	}
	if err := checkDuration(seconds); err != nil {
		return err
	}
	return f.model.ApplyDeviceDelta(deviceID, model.DeviceDelta{DefaultRuntime: &seconds})
}

// SetRunZones stores the selector used by RunSelectedZones. Local only.
func (f *Facade) SetRunZones(deviceID, selector string) error {
	if err := requireID("device", deviceID); err != nil {
		return err
	}
	if _, err := ParseRunZones(selector); err != nil {
		return err
	}
	selector = strings.TrimSpace(selector)
	return f.model.ApplyDeviceDelta(deviceID, model.DeviceDelta{RunZones: &selector})
}

// DurationFor resolves how long a zone runs when no duration is given:
// the zone's requested duration, then the device default, then
// FallbackRuntime. The result is capped at MaxZoneDuration.
func (f *Facade) DurationFor(zoneID string) int {
	z, ok := f.model.Zone(zoneID)
	if !ok {
		return FallbackRuntime
	}

	seconds := z.RequestedDuration
	if seconds <= 0 {
		if d, ok := f.model.Device(z.DeviceID); ok {
			seconds = d.DefaultRuntime
		}
	}
	if seconds <= 0 {
		seconds = FallbackRuntime
	}
	return min(seconds, MaxZoneDuration)
}

// ParseRunZones parses a comma separated list of zone numbers into a set.
// An empty selector yields an empty set.
func ParseRunZones(selector string) (map[int]bool, error) {
	set := make(map[int]bool)
	for part := range strings.SplitSeq(selector, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: bad zone number %q in run zones", ErrInvalidArgument, part)
		}
		set[n] = true
	}
	return set, nil
}

// deviceZones validates a device-wide run and returns its enabled zones.
func (f *Facade) deviceZones(deviceID string, seconds int) ([]model.Zone, error) {
	if err := f.requireDevice(deviceID); err != nil {
		return nil, err
	}
	if seconds != 0 {
		if err := checkDuration(seconds); err != nil {
			return nil, err
		}
	}

	all := f.model.ZonesOf(deviceID)
	enabled := make([]model.Zone, 0, len(all))
	for _, z := range all {
		if z.Enabled {
			enabled = append(enabled, z)
		}
	}
	return enabled, nil
}

func (f *Facade) runZones(ctx context.Context, name, deviceID string, zones []model.Zone, seconds int) error {
	if len(zones) == 0 {
		return fmt.Errorf("%w: device %s has no zones to run", ErrInvalidArgument, deviceID)
	}

	runs := make([]ZoneRun, 0, len(zones))
	for _, z := range zones {
		d := seconds
		if d == 0 {
			d = f.DurationFor(z.ID)
		}
		runs = append(runs, ZoneRun{ZoneID: z.ID, Seconds: d})
	}

	if err := f.StartMultipleZones(ctx, runs); err != nil {
		return fmt.Errorf("%s on device %s: %w", name, deviceID, err)
	}
	return nil
}

func (f *Facade) requireDevice(deviceID string) error {
	if err := requireID("device", deviceID); err != nil {
		return err
	}
	if _, ok := f.model.Device(deviceID); !ok {
		return fmt.Errorf("%w: device %s", ErrUnknownEntity, deviceID)
	}
	return nil
}

func requireID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty %s id", ErrInvalidArgument, kind)
	}
	return nil
}

func checkDuration(seconds int) error {
	if seconds < MinZoneDuration || seconds > MaxZoneDuration {
		return fmt.Errorf("%w: duration %ds outside %d..%d",
			ErrInvalidArgument, seconds, MinZoneDuration, MaxZoneDuration)
	}
	return nil
}

// fail records a cloud failure and returns it wrapped with the command.
func (f *Facade) fail(name, target string, err error) error {
	f.mu.Lock()
	f.lastErr = &Failure{Command: name, Target: target, Error: err.Error(), At: f.now().UTC()}
	f.mu.Unlock()

	if l := f.getLogger(); l != nil {
		l.Warn("command failed", "command", name, "target", target, "error", err)
	}
	return fmt.Errorf("%s %s: %w", name, target, err)
}

func (f *Facade) succeeded(name, target string) {
	if l := f.getLogger(); l != nil {
		l.Info("command sent", "command", name, "target", target)
	}
	if f.refresher != nil {
		f.refresher.TriggerNow()
	}
}

func (f *Facade) getLogger() Logger {
	f.loggerMu.RLock()
	defer f.loggerMu.RUnlock()
	return f.logger
}
