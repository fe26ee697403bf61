package model

// Listener observes model changes. Callbacks receive copies, one
// notification at a time, in mutation order. They run on the goroutine of
// the mutation that found no delivery in progress; a mutation made while
// another goroutine is delivering returns at once and its notifications are
// delivered by that goroutine. The model lock is never held during a
// callback. A panicking callback is recovered and logged; other listeners
// still receive the notification.
type Listener interface {
	OnDeviceChanged(d Device)
	OnZoneChanged(z Zone)
	OnConnectivityChanged(connected bool)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Device       func(Device)
	Zone         func(Zone)
	Connectivity func(bool)
}

// OnDeviceChanged implements Listener.
func (f ListenerFuncs) OnDeviceChanged(d Device) {
	if f.Device != nil {
		f.Device(d)
	}
}

// OnZoneChanged implements Listener.
func (f ListenerFuncs) OnZoneChanged(z Zone) {
	if f.Zone != nil {
		f.Zone(z)
	}
}

// OnConnectivityChanged implements Listener.
func (f ListenerFuncs) OnConnectivityChanged(connected bool) {
	if f.Connectivity != nil {
		f.Connectivity(connected)
	}
}

type listenerEntry struct {
	id int
	l  Listener
}

// notification is one unit of fan-out produced by a mutation.
type notification struct {
	deviceID      string
	deviceChanged bool
	device        *Device
	zones         []Zone
	connectivity  *bool
}

// Subscribe registers l for all future notifications.
//
// Returns:
//   - func(): Removes the listener; safe to call more than once
func (s *Store) Subscribe(l Listener) func() {
	s.listenersMu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry{id: id, l: l})
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		for i, e := range s.listeners {
			if e.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// SetConnectivity records whether the cloud is reachable. Listeners are
// told only when the value changes; the first report always notifies.
func (s *Store) SetConnectivity(connected bool) {
	s.mu.Lock()
	if s.connectivitySet && s.connected == connected {
		s.mu.Unlock()
		return
	}
	s.connectivitySet = true
	s.connected = connected
	s.publish([]notification{{connectivity: &connected}})
}

// Connected returns the last reported connectivity.
func (s *Store) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// publish queues the batch and releases mu. Appending under mu keeps the
// queue in mutation order; mu is released before any listener runs.
// Caller must hold mu.
func (s *Store) publish(batch []notification) {
	if len(batch) == 0 {
		s.mu.Unlock()
		return
	}

	s.queueMu.Lock()
	s.queue = append(s.queue, batch...)
	start := !s.draining
	s.draining = true
	s.queueMu.Unlock()
	s.mu.Unlock()

	if start {
		s.drain()
	}
}

// drain delivers queued notifications until the queue is empty.
// Only one goroutine drains at a time.
func (s *Store) drain() {
	for {
		s.queueMu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.queueMu.Unlock()
			return
		}
		batch := s.queue
		s.queue = nil
		s.queueMu.Unlock()

		s.listenersMu.RLock()
		listeners := make([]listenerEntry, len(s.listeners))
		copy(listeners, s.listeners)
		s.listenersMu.RUnlock()

		for _, n := range batch {
			for _, e := range listeners {
				s.deliver(e.l, n)
			}
		}
	}
}

// deliver sends one notification to one listener.
func (s *Store) deliver(l Listener, n notification) {
	if n.connectivity != nil {
		s.safeCall("connectivity", n.deviceID, func() { l.OnConnectivityChanged(*n.connectivity) })
		return
	}
	if n.device != nil {
		d := *n.device
		d.Zones = append([]Zone(nil), n.device.Zones...)
		s.safeCall("device", n.deviceID, func() { l.OnDeviceChanged(d) })
	}
	for _, z := range n.zones {
		s.safeCall("zone", z.ID, func() { l.OnZoneChanged(z) })
	}
}

// safeCall runs fn, recovering and logging a panic.
func (s *Store) safeCall(kind, id string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logError("listener panicked", "notification", kind, "id", id, "panic", r)
		}
	}()
	fn()
}
