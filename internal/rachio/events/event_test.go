package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParse_Fields(t *testing.T) {
	raw := []byte(`{
		"id": "e1",
		"externalId": "ext-1",
		"type": "ZONE_STATUS",
		"subType": "ZONE_COMPLETED",
		"deviceId": "d1",
		"zoneId": "z1",
		"summary": "Lawn completed watering",
		"timestamp": "2026-03-01T06:10:00Z",
		"zoneRunStatus": {"state": "COMPLETED", "zoneNumber": 1, "duration": 600,
			"startTime": 1772344800000, "endTime": "2026-03-01T06:10:00Z"}
	}`)

	ev, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if ev.ID != "e1" || ev.ExternalID != "ext-1" || ev.ZoneID != "z1" {
		t.Errorf("event = %+v", ev)
	}
	want := time.Date(2026, 3, 1, 6, 10, 0, 0, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", ev.Timestamp, want)
	}
	rs := ev.ZoneRunStatus
	if rs == nil || rs.State != "COMPLETED" || rs.ZoneNumber != 1 || rs.Duration != 600 {
		t.Fatalf("ZoneRunStatus = %+v", rs)
	}
	if !rs.StartTime.Equal(time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)) || !rs.EndTime.Equal(want) {
		t.Errorf("run window = %v .. %v", rs.StartTime, rs.EndTime)
	}
}

func TestParse_LegacyRunState(t *testing.T) {
	ev, err := Parse([]byte(`{"type":"ZONE_STATUS","deviceId":"d1","zoneRunState":"STARTED","zoneNumber":3}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if ev.ZoneRunStatus == nil || ev.ZoneRunStatus.State != "STARTED" || ev.ZoneRunStatus.ZoneNumber != 3 {
		t.Errorf("ZoneRunStatus = %+v", ev.ZoneRunStatus)
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	tests := []struct {
		raw  string
		want time.Time
	}{
		{`"2026-03-01T06:00:00Z"`, want},
		{`1772344800000`, want},
		{`"1772344800000"`, want},
		{`null`, time.Time{}},
		{`"yesterday"`, time.Time{}},
		{``, time.Time{}},
	}
	for _, tt := range tests {
		if got := parseTime(json.RawMessage(tt.raw)); !got.Equal(tt.want) {
			t.Errorf("parseTime(%s) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestDedupe_PrunesLazily(t *testing.T) {
	d := newDedupe()
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	d.seen(&Event{ID: "a", DeviceID: "d1", Type: "X"})
	d.seen(&Event{DeviceID: "d1", Type: "X", Timestamp: now})
	if got := d.size(); got != 2 {
		t.Fatalf("size = %d, want 2", got)
	}

	now = now.Add(IDWindow + time.Minute)
	d.seen(&Event{ID: "b", DeviceID: "d1", Type: "X"})
	if got := d.size(); got != 1 {
		t.Errorf("size after prune = %d, want 1", got)
	}
}

func TestDedupe_NoIdentityNeverDuplicate(t *testing.T) {
	d := newDedupe()
	ev := &Event{DeviceID: "d1", Type: "ZONE_STATUS"}
	if d.seen(ev) || d.seen(ev) {
		t.Error("event with neither id nor timestamp treated as duplicate")
	}
}

func TestParse_DeltaScalarValues(t *testing.T) {
	ev, err := Parse([]byte(`{"type":"ZONE_STATUS_DELTA","subType":"ZONE_DELTA","deviceId":"d1","zoneId":"z1",
		"deltaProperties":{"runtime":{"oldValue":300,"newValue":600},"maxRuntime":{"newValue":1800.0},
		"enabled":{"oldValue":true,"newValue":false},"efficiency":{"newValue":0.75},
		"name":{"newValue":"Lawn"},"imageUrl":{"newValue":null},"schedule":{"newValue":{"id":"s1"}}}}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := map[string]string{
		"runtime":    "600",
		"maxRuntime": "1800.0",
		"enabled":    "false",
		"efficiency": "0.75",
		"name":       "Lawn",
		"imageUrl":   "",
		"schedule":   "",
	}
	for name, v := range want {
		if got := ev.Delta[name]; got != v {
			t.Errorf("Delta[%s] = %q, want %q", name, got, v)
		}
	}

	d := ev.zoneDelta()
	if d.Runtime == nil || *d.Runtime != 600 {
		t.Errorf("Runtime = %v, want 600", d.Runtime)
	}
	if d.MaxRuntime == nil || *d.MaxRuntime != 1800 {
		t.Errorf("MaxRuntime = %v, want 1800", d.MaxRuntime)
	}
	if d.Enabled == nil || *d.Enabled {
		t.Errorf("Enabled = %v, want false", d.Enabled)
	}
	if d.Efficiency == nil || *d.Efficiency != 0.75 {
		t.Errorf("Efficiency = %v, want 0.75", d.Efficiency)
	}
}

func TestWholeNumber(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"600", 600, true},
		{"600.0", 600, true},
		{"600.5", 0, false},
		{"", 0, false},
		{"ten", 0, false},
	}
	for _, tt := range tests {
		got, ok := wholeNumber(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("wholeNumber(%q) = %d, %v, want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDedupe_TupleIncludesZone(t *testing.T) {
	d := newDedupe()
	ts := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	zone := func(n int) *Event {
		return &Event{DeviceID: "d1", Type: TypeZoneStatus, Timestamp: ts,
			ZoneRunStatus: &ZoneRunStatus{State: "STARTED", ZoneNumber: n}}
	}

	if d.seen(zone(1)) {
		t.Fatal("first event for zone 1 treated as duplicate")
	}
	if d.seen(zone(2)) {
		t.Error("event for zone 2 collapsed into zone 1")
	}
	if !d.seen(zone(1)) {
		t.Error("redelivery for zone 1 not detected")
	}
}
