package events

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Duplicate suppression windows.
const (
	// IDWindow is how long an event id is remembered.
	IDWindow = 10 * time.Minute

	// TupleWindow is how long an id-less event's identifying tuple is remembered.
	TupleWindow = 2 * time.Minute

	pruneInterval = time.Minute
)

// dedupe remembers recently seen events. Pruning is lazy.
type dedupe struct {
	mu        sync.Mutex
	byID      map[string]time.Time
	byTuple   map[string]time.Time
	now       func() time.Time
	lastPrune time.Time
}

func newDedupe() *dedupe {
	return &dedupe{
		byID:    make(map[string]time.Time),
		byTuple: make(map[string]time.Time),
		now:     time.Now,
	}
}

// seen reports whether ev was already recorded inside its window and
// records it otherwise. Events with neither id nor timestamp are never
// treated as duplicates.
func (d *dedupe) seen(ev *Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if now.Sub(d.lastPrune) >= pruneInterval {
		d.pruneLocked(now)
	}

	table, key := d.byID, ev.ID
	if key == "" {
		if ev.Timestamp.IsZero() {
			return false
		}
		table, key = d.byTuple, tupleKey(ev)
	}

	if expires, ok := table[key]; ok && now.Before(expires) {
		return true
	}

	window := IDWindow
	if ev.ID == "" {
		window = TupleWindow
	}
	table[key] = now.Add(window)
	return false
}

func (d *dedupe) pruneLocked(now time.Time) {
	for k, expires := range d.byID {
		if !now.Before(expires) {
			delete(d.byID, k)
		}
	}
	for k, expires := range d.byTuple {
		if !now.Before(expires) {
			delete(d.byTuple, k)
		}
	}
	d.lastPrune = now
}

func (d *dedupe) size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.byID) + len(d.byTuple)
}

// tupleKey identifies an id-less event. Zone number, duration and start
// time are part of it because ZONE_STATUS events usually carry no zoneId.
func tupleKey(ev *Event) string {
	var state, number, duration, start string
	if rs := ev.ZoneRunStatus; rs != nil {
		state = rs.State
		number = strconv.Itoa(rs.ZoneNumber)
		duration = strconv.Itoa(rs.Duration)
		if !rs.StartTime.IsZero() {
			start = rs.StartTime.UTC().Format(time.RFC3339Nano)
		}
	}
	return strings.Join([]string{
		ev.DeviceID,
		ev.ZoneID,
		ev.Timestamp.UTC().Format(time.RFC3339Nano),
		ev.Type,
		ev.SubType,
		state,
		number,
		duration,
		start,
	}, "|")
}
