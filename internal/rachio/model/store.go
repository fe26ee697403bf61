package model

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"
)

// Logger is the optional logging interface used by this package.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type zoneKey struct {
	deviceID string
	number   int
}

// deviceEntry is the stored form of a device. Its zones live in Store.zones.
type deviceEntry struct {
	device  Device // Zones is always nil
	zoneIDs []string
}

// Store is the in-memory device/zone tree of one connection.
//
// Mutations run under a single mutex. The resulting change notifications
// are queued in mutation order and delivered after the mutex is released,
// so a slow listener never delays readers or other writers.
//
// Thread Safety: All methods are safe for concurrent use.
type Store struct {
	mu             sync.Mutex
	person         Person
	devices        map[string]*deviceEntry
	deviceOrder    []string
	zones          map[string]*Zone
	zoneByNumber   map[zoneKey]string
	lastRunEventAt map[string]time.Time
	defaultRuntime int

	connected       bool
	connectivitySet bool

	queueMu  sync.Mutex
	queue    []notification
	draining bool

	listenersMu sync.RWMutex
	listeners   []listenerEntry
	nextID      int

	logger   Logger
	loggerMu sync.RWMutex
}

// NewStore creates an empty store. defaultRuntime seeds DefaultRuntime on
// devices seen for the first time.
func NewStore(defaultRuntime int) *Store {
	return &Store{
		devices:        make(map[string]*deviceEntry),
		zones:          make(map[string]*Zone),
		zoneByNumber:   make(map[zoneKey]string),
		lastRunEventAt: make(map[string]time.Time),
		defaultRuntime: defaultRuntime,
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// ApplySnapshot replaces the tree with a freshly polled one.
//
// Static fields are overwritten. Running and RequestedDuration are carried
// over by zone id; Network, RunZones and DefaultRuntime by device id.
// Devices and zones that are new or differ from the previous tree are
// notified. A zone id already placed under an earlier device is dropped.
//
// Parameters:
//   - person: Account owner
//   - devices: Complete device list in provider order
//
// Returns:
//   - SnapshotResult: What changed
func (s *Store) ApplySnapshot(person Person, devices []Device) SnapshotResult {
	var result SnapshotResult
	var batch []notification

	s.mu.Lock()

	newDevices := make(map[string]*deviceEntry, len(devices))
	newOrder := make([]string, 0, len(devices))
	newZones := make(map[string]*Zone)
	newByNumber := make(map[zoneKey]string)

	for _, incoming := range devices {
		if _, dup := newDevices[incoming.ID]; dup {
			s.logWarn("duplicate device in snapshot", "device_id", incoming.ID)
			continue
		}

		dev := incoming
		dev.Zones = nil
		old, known := s.devices[dev.ID]
		if known {
			dev.Network = old.device.Network
			dev.RunZones = old.device.RunZones
			dev.DefaultRuntime = old.device.DefaultRuntime
		} else if dev.DefaultRuntime == 0 {
			dev.DefaultRuntime = s.defaultRuntime
		}

		entry := &deviceEntry{device: dev}
		var changedZones []Zone

		for _, z := range incoming.Zones {
			if owner, taken := newZones[z.ID]; taken {
				result.Collisions++
				s.logWarn("zone id collision in snapshot, keeping first",
					"zone_id", z.ID, "kept_device", owner.DeviceID, "dropped_device", dev.ID)
				continue
			}

			zone := z
			zone.DeviceID = dev.ID
			prev, seen := s.zones[zone.ID]
			if seen {
				zone.Running = prev.Running
				zone.RequestedDuration = prev.RequestedDuration
			} else {
				zone.Running = false
				zone.RequestedDuration = 0
			}

			zp := &zone
			newZones[zone.ID] = zp
			newByNumber[zoneKey{dev.ID, zone.Number}] = zone.ID
			entry.zoneIDs = append(entry.zoneIDs, zone.ID)

			if !seen || *prev != zone {
				changedZones = append(changedZones, zone)
			}
		}

		newDevices[dev.ID] = entry
		newOrder = append(newOrder, dev.ID)

		deviceChanged := !known || !reflect.DeepEqual(old.device, dev) || !sameIDs(old.zoneIDs, entry.zoneIDs)
		if deviceChanged {
			result.DevicesChanged++
		}
		result.ZonesChanged += len(changedZones)

		if deviceChanged || len(changedZones) > 0 {
			batch = append(batch, notification{deviceID: dev.ID, deviceChanged: deviceChanged, zones: changedZones})
		}
	}

	for id := range s.devices {
		if _, kept := newDevices[id]; !kept {
			result.DevicesRemoved++
			s.logInfo("device no longer reported, removing", "device_id", id)
		}
	}
	for id := range s.lastRunEventAt {
		if _, kept := newZones[id]; !kept {
			delete(s.lastRunEventAt, id)
		}
	}

	s.person = clonePerson(person)
	s.devices = newDevices
	s.deviceOrder = newOrder
	s.zones = newZones
	s.zoneByNumber = newByNumber

	for i := range batch {
		if batch[i].deviceChanged {
			d := s.deviceLocked(batch[i].deviceID)
			batch[i].device = &d
		}
	}

	s.publish(batch)
	return result
}

// ApplyDeviceDelta applies the non-nil fields of delta and notifies the
// device.
//
// Returns:
//   - error: ErrUnknownEntity if deviceID is not in the model
func (s *Store) ApplyDeviceDelta(deviceID string, delta DeviceDelta) error {
	s.mu.Lock()

	entry, ok := s.devices[deviceID]
	if !ok {
		s.mu.Unlock()
		s.logDebug("device delta for unknown device", "device_id", deviceID)
		return fmt.Errorf("%w: device %s", ErrUnknownEntity, deviceID)
	}

	d := &entry.device
	if delta.Name != nil {
		d.Name = *delta.Name
	}
	if delta.Status != nil {
		d.Status = *delta.Status
	}
	if delta.Enabled != nil {
		d.Enabled = *delta.Enabled
	}
	if delta.Paused != nil {
		d.Paused = *delta.Paused
	}
	if delta.Network != nil {
		d.Network = *delta.Network
	}
	if delta.DefaultRuntime != nil {
		d.DefaultRuntime = *delta.DefaultRuntime
	}
	if delta.RunZones != nil {
		d.RunZones = *delta.RunZones
	}
	if delta.RainDelayUntil != nil {
		d.RainDelayUntil = *delta.RainDelayUntil
	}
	if delta.ScheduleName != nil {
		d.ScheduleName = *delta.ScheduleName
	}

	payload := s.deviceLocked(deviceID)
	s.publish([]notification{{deviceID: deviceID, deviceChanged: true, device: &payload}})
	return nil
}

// ApplyZoneDelta applies the non-nil static fields of delta and notifies
// the zone. Running is not touched.
//
// Returns:
//   - error: ErrUnknownEntity if zoneID is not in the model
func (s *Store) ApplyZoneDelta(zoneID string, delta ZoneDelta) error {
	s.mu.Lock()

	z, ok := s.zones[zoneID]
	if !ok {
		s.mu.Unlock()
		s.logDebug("zone delta for unknown zone", "zone_id", zoneID)
		return fmt.Errorf("%w: zone %s", ErrUnknownEntity, zoneID)
	}

	if delta.Name != nil {
		z.Name = *delta.Name
	}
	if delta.Enabled != nil {
		z.Enabled = *delta.Enabled
	}
	if delta.ImageURL != nil {
		z.ImageURL = *delta.ImageURL
	}
	if delta.Runtime != nil {
		z.Runtime = *delta.Runtime
	}
	if delta.MaxRuntime != nil {
		z.MaxRuntime = *delta.MaxRuntime
	}
	if delta.Efficiency != nil {
		z.Efficiency = *delta.Efficiency
	}
	if delta.DepthOfWater != nil {
		z.DepthOfWater = *delta.DepthOfWater
	}
	if delta.RequestedDuration != nil {
		z.RequestedDuration = *delta.RequestedDuration
	}

	s.publish([]notification{{deviceID: z.DeviceID, zones: []Zone{*z}}})
	return nil
}

// ApplyZoneRunEvent applies a run state reported by the provider.
//
// STARTED sets Running; STOPPED, COMPLETED, ZONE_STOPPED and
// ZONE_COMPLETED clear it; any other state is informational. Re-applying
// the same state notifies again. An event strictly older than the last
// applied run event for the zone is ignored. A zero ts skips the staleness
// check.
//
// Returns:
//   - bool: true if the event was applied and notified
//   - error: ErrUnknownEntity if zoneID is not in the model
func (s *Store) ApplyZoneRunEvent(zoneID, state string, ts time.Time) (bool, error) {
	var running bool
	switch state {
	case RunStarted:
		running = true
	case RunStopped, RunCompleted, RunZoneStopped, RunZoneCompleted:
		running = false
	default:
		s.logDebug("informational zone run state", "zone_id", zoneID, "state", state)
		return false, nil
	}

	s.mu.Lock()

	z, ok := s.zones[zoneID]
	if !ok {
		s.mu.Unlock()
		s.logDebug("run event for unknown zone", "zone_id", zoneID)
		return false, fmt.Errorf("%w: zone %s", ErrUnknownEntity, zoneID)
	}

	if !ts.IsZero() {
		if last, seen := s.lastRunEventAt[zoneID]; seen && ts.Before(last) {
			s.mu.Unlock()
			s.logDebug("stale run event ignored", "zone_id", zoneID, "state", state,
				"event_time", ts, "last_applied", last)
			return false, nil
		}
		s.lastRunEventAt[zoneID] = ts
	}

	z.Running = running
	s.publish([]notification{{deviceID: z.DeviceID, zones: []Zone{*z}}})
	return true, nil
}

// SetZoneRunning is the optimistic update after a successful start command.
// It does not take part in run event staleness tracking.
func (s *Store) SetZoneRunning(zoneID string, running bool) error {
	s.mu.Lock()

	z, ok := s.zones[zoneID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: zone %s", ErrUnknownEntity, zoneID)
	}
	z.Running = running
	s.publish([]notification{{deviceID: z.DeviceID, zones: []Zone{*z}}})
	return nil
}

// StopDevice marks every zone of a device as not running and notifies the
// zones that were running.
func (s *Store) StopDevice(deviceID string) error {
	s.mu.Lock()

	entry, ok := s.devices[deviceID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: device %s", ErrUnknownEntity, deviceID)
	}

	var changed []Zone
	for _, id := range entry.zoneIDs {
		z := s.zones[id]
		if z.Running {
			z.Running = false
			changed = append(changed, *z)
		}
	}

	var batch []notification
	if len(changed) > 0 {
		batch = append(batch, notification{deviceID: deviceID, zones: changed})
	}
	s.publish(batch)
	return nil
}

// Person returns a copy of the account owner.
func (s *Store) Person() Person {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clonePerson(s.person)
}

// HasDevice reports whether deviceID is in the model.
func (s *Store) HasDevice(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.devices[deviceID]
	return ok
}

// Device returns a copy of one device with its zones.
func (s *Store) Device(deviceID string) (Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[deviceID]; !ok {
		return Device{}, false
	}
	return s.deviceLocked(deviceID), true
}

// Devices returns copies of all devices in provider order.
func (s *Store) Devices() []Device {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Device, 0, len(s.deviceOrder))
	for _, id := range s.deviceOrder {
		out = append(out, s.deviceLocked(id))
	}
	return out
}

// Zone returns a copy of one zone.
func (s *Store) Zone(zoneID string) (Zone, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	z, ok := s.zones[zoneID]
	if !ok {
		return Zone{}, false
	}
	return *z, true
}

// ZoneByNumber resolves a zone by its device and 1-based number.
func (s *Store) ZoneByNumber(deviceID string, number int) (Zone, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.zoneByNumber[zoneKey{deviceID, number}]; ok {
		if z, ok := s.zones[id]; ok {
			return *z, true
		}
	}

	entry, ok := s.devices[deviceID]
	if !ok {
		return Zone{}, false
	}
	for _, id := range entry.zoneIDs {
		if z := s.zones[id]; z.Number == number {
			s.zoneByNumber[zoneKey{deviceID, number}] = id
			return *z, true
		}
	}
	return Zone{}, false
}

// ZonesOf returns copies of a device's zones ordered by number.
func (s *Store) ZonesOf(deviceID string) []Zone {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.devices[deviceID]
	if !ok {
		return nil
	}
	return s.zonesLocked(entry)
}

// deviceLocked builds a device copy with its zones. Caller holds mu.
func (s *Store) deviceLocked(deviceID string) Device {
	entry := s.devices[deviceID]
	d := entry.device
	d.Zones = s.zonesLocked(entry)
	return d
}

// zonesLocked copies an entry's zones ordered by number. Caller holds mu.
func (s *Store) zonesLocked(entry *deviceEntry) []Zone {
	zones := make([]Zone, 0, len(entry.zoneIDs))
	for _, id := range entry.zoneIDs {
		zones = append(zones, *s.zones[id])
	}
	sort.SliceStable(zones, func(i, j int) bool {
		return zones[i].Number < zones[j].Number
	})
	return zones
}

func clonePerson(p Person) Person {
	p.DeviceIDs = append([]string(nil), p.DeviceIDs...)
	return p
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s *Store) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

func (s *Store) logDebug(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (s *Store) logInfo(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (s *Store) logWarn(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (s *Store) logError(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Error(msg, keysAndValues...)
	}
}
