package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-rachio/internal/rachio/model"
)

// Outcome describes what Route did with an event.
type Outcome int

const (
	// OutcomeApplied means the model was updated.
	OutcomeApplied Outcome = iota
	// OutcomeDuplicate means the event was seen recently and dropped.
	OutcomeDuplicate
	// OutcomeIgnored means the event was valid but changed nothing:
	// informational, stale or referring to an unknown entity.
	OutcomeIgnored
)

// String returns a string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Store is the part of model.Store the router writes to.
type Store interface {
	HasDevice(deviceID string) bool
	Zone(zoneID string) (model.Zone, bool)
	ZoneByNumber(deviceID string, number int) (model.Zone, bool)
	ApplyZoneRunEvent(zoneID, state string, ts time.Time) (bool, error)
	ApplyZoneDelta(zoneID string, delta model.ZoneDelta) error
	ApplyDeviceDelta(deviceID string, delta model.DeviceDelta) error
}

// Logger is the optional logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Stats counts routed events by outcome.
type Stats struct {
	Applied   uint64 `json:"applied"`
	Duplicate uint64 `json:"duplicate"`
	Ignored   uint64 `json:"ignored"`
	Malformed uint64 `json:"malformed"`
}

// Router turns webhook payloads into model mutations.
//
// Thread Safety: safe for concurrent use.
type Router struct {
	store  Store
	dedupe *dedupe

	applied   atomic.Uint64
	duplicate atomic.Uint64
	ignored   atomic.Uint64
	malformed atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// NewRouter creates a router writing into store.
func NewRouter(store Store) *Router {
	return &Router{
		store:  store,
		dedupe: newDedupe(),
	}
}

// SetLogger sets the logger for the router.
func (r *Router) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

// SetClock replaces the dedupe time source. Used by tests.
func (r *Router) SetClock(now func() time.Time) {
	r.dedupe.mu.Lock()
	r.dedupe.now = now
	r.dedupe.mu.Unlock()
}

// Route parses raw and dispatches it.
//
// Returns:
//   - Outcome: What happened to the event
//   - error: ErrMalformedEvent for an unusable payload; nothing else
func (r *Router) Route(ctx context.Context, raw []byte) (Outcome, error) {
	ev, err := Parse(raw)
	if err != nil {
		r.malformed.Add(1)
		r.logWarn("dropping malformed webhook event", "error", err)
		return OutcomeIgnored, err
	}
	return r.RouteEvent(ctx, ev), nil
}

// RouteEvent dispatches an already parsed event.
func (r *Router) RouteEvent(_ context.Context, ev *Event) Outcome {
	if r.dedupe.seen(ev) {
		r.duplicate.Add(1)
		r.logDebug("duplicate webhook event dropped", "event_id", ev.ID, "type", ev.Type, "sub_type", ev.SubType)
		return OutcomeDuplicate
	}

	outcome := r.dispatch(ev)
	if outcome == OutcomeApplied {
		r.applied.Add(1)
	} else {
		r.ignored.Add(1)
	}
	return outcome
}

// Stats returns the outcome counters.
func (r *Router) Stats() Stats {
	return Stats{
		Applied:   r.applied.Load(),
		Duplicate: r.duplicate.Load(),
		Ignored:   r.ignored.Load(),
		Malformed: r.malformed.Load(),
	}
}

func (r *Router) dispatch(ev *Event) Outcome {
	switch {
	case ev.Type == TypeZoneStatus:
		return r.zoneStatus(ev)
	case ev.SubType == SubTypeZoneDelta:
		return r.zoneDelta(ev)
	case ev.Type == TypeDeviceStatus:
		return r.deviceStatus(ev)
	case ev.Type == TypeScheduleStatus:
		r.logInfo("schedule event", "device_id", ev.DeviceID, "sub_type", ev.SubType,
			"schedule", ev.ScheduleName, "summary", ev.Summary)
		return OutcomeIgnored
	default:
		r.logDebug("unhandled webhook event", "type", ev.Type, "sub_type", ev.SubType, "device_id", ev.DeviceID)
		return OutcomeIgnored
	}
}

func (r *Router) zoneStatus(ev *Event) Outcome {
	if ev.ZoneRunStatus == nil {
		r.logDebug("zone status event without run status", "device_id", ev.DeviceID, "zone_id", ev.ZoneID)
		return OutcomeIgnored
	}

	zone, ok := r.store.ZoneByNumber(ev.DeviceID, ev.ZoneRunStatus.ZoneNumber)
	if !ok && ev.ZoneID != "" {
		zone, ok = r.store.Zone(ev.ZoneID)
	}
	if !ok {
		r.logInfo("zone event for unknown zone dropped", "device_id", ev.DeviceID,
			"zone_number", ev.ZoneRunStatus.ZoneNumber, "zone_id", ev.ZoneID)
		return OutcomeIgnored
	}

	applied, err := r.store.ApplyZoneRunEvent(zone.ID, ev.ZoneRunStatus.State, ev.Timestamp)
	if err != nil || !applied {
		return OutcomeIgnored
	}
	r.logInfo("zone run state", "device_id", ev.DeviceID, "zone", zone.Number,
		"name", zone.Name, "state", ev.ZoneRunStatus.State)
	return OutcomeApplied
}

func (r *Router) zoneDelta(ev *Event) Outcome {
	if err := r.store.ApplyZoneDelta(ev.ZoneID, ev.zoneDelta()); err != nil {
		if errors.Is(err, model.ErrUnknownEntity) {
			r.logInfo("zone delta for unknown zone dropped", "device_id", ev.DeviceID, "zone_id", ev.ZoneID)
		}
		return OutcomeIgnored
	}
	return OutcomeApplied
}

func (r *Router) deviceStatus(ev *Event) Outcome {
	if !r.store.HasDevice(ev.DeviceID) {
		r.logInfo("device event for unknown device dropped", "device_id", ev.DeviceID, "sub_type", ev.SubType)
		return OutcomeIgnored
	}

	var delta model.DeviceDelta
	switch ev.SubType {
	case SubTypeColdReboot:
		if ev.Network == nil {
			r.logDebug("cold reboot without network block", "device_id", ev.DeviceID)
			return OutcomeIgnored
		}
		delta.Network = ev.Network
	case SubTypeOnline:
		delta.Status = model.Ptr(model.StatusOnline)
	case SubTypeOffline:
		delta.Status = model.Ptr(model.StatusOffline)
	case SubTypeOfflineNotify:
		delta.Status = model.Ptr(model.StatusOfflineNotification)
	case SubTypeSleepModeOn:
		delta.Paused = model.Ptr(true)
	case SubTypeSleepModeOff:
		delta.Paused = model.Ptr(false)
	default:
		r.logInfo("device event", "device_id", ev.DeviceID, "sub_type", ev.SubType, "summary", ev.Summary)
		return OutcomeIgnored
	}

	if err := r.store.ApplyDeviceDelta(ev.DeviceID, delta); err != nil {
		return OutcomeIgnored
	}
	r.logInfo("device status", "device_id", ev.DeviceID, "sub_type", ev.SubType)
	return OutcomeApplied
}

func (r *Router) getLogger() Logger {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	return r.logger
}

func (r *Router) logDebug(msg string, keysAndValues ...any) {
	if l := r.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (r *Router) logInfo(msg string, keysAndValues ...any) {
	if l := r.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (r *Router) logWarn(msg string, keysAndValues ...any) {
	if l := r.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}
