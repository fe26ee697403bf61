package command

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-rachio/internal/rachio/cloud"
	"github.com/nerrad567/gray-logic-rachio/internal/rachio/model"
)

// fakeCloud records calls and fails with err when set.
type fakeCloud struct {
	mu    sync.Mutex
	calls []string
	runs  []cloud.ZoneRun
	err   error
}

func (c *fakeCloud) record(call string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	return c.err
}

func (c *fakeCloud) StartZone(_ context.Context, zoneID string, seconds int) error {
	return c.record("start:" + zoneID)
}

func (c *fakeCloud) StartMultipleZones(_ context.Context, runs []cloud.ZoneRun) error {
	c.mu.Lock()
	c.runs = runs
	c.mu.Unlock()
	return c.record("start_multiple")
}

func (c *fakeCloud) StopWatering(_ context.Context, deviceID string) error {
	return c.record("stop:" + deviceID)
}

func (c *fakeCloud) SetRainDelay(_ context.Context, deviceID string, _ int) error {
	return c.record("rain_delay:" + deviceID)
}

func (c *fakeCloud) EnableDevice(_ context.Context, deviceID string) error {
	return c.record("on:" + deviceID)
}

func (c *fakeCloud) DisableDevice(_ context.Context, deviceID string) error {
	return c.record("off:" + deviceID)
}

func (c *fakeCloud) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type countingRefresher struct{ n int }

func (r *countingRefresher) TriggerNow() { r.n++ }

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestFacade(t *testing.T) (*Facade, *fakeCloud, *model.Store, *countingRefresher) {
	t.Helper()

	store := model.NewStore(600)
	store.ApplySnapshot(model.Person{ID: "p1", DeviceIDs: []string{"d1"}}, []model.Device{{
		ID:      "d1",
		Name:    "Front",
		Status:  model.StatusOnline,
		Enabled: true,
		Zones: []model.Zone{
			{ID: "z1", DeviceID: "d1", Number: 1, Enabled: true},
			{ID: "z2", DeviceID: "d1", Number: 2, Enabled: false},
			{ID: "z3", DeviceID: "d1", Number: 3, Enabled: true},
		},
	}})

	fc := &fakeCloud{}
	ref := &countingRefresher{}
	f := New(Config{
		Cloud:      fc,
		Model:      store,
		Refresher:  ref,
		Optimistic: true,
		Clock:      func() time.Time { return testNow },
	})
	return f, fc, store, ref
}

func TestValidation_NoNetworkCall(t *testing.T) {
	f, fc, _, _ := newTestFacade(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"empty zone id", func() error { return f.StartZone(ctx, "", 60) }, ErrInvalidArgument},
		{"zero duration", func() error { return f.StartZone(ctx, "z1", 0) }, ErrInvalidArgument},
		{"duration too long", func() error { return f.StartZone(ctx, "z1", MaxZoneDuration+1) }, ErrInvalidArgument},
		{"unknown zone", func() error { return f.StartZone(ctx, "nope", 60) }, ErrUnknownEntity},
		{"unknown device stop", func() error { return f.StopWatering(ctx, "nope") }, ErrUnknownEntity},
		{"empty device id", func() error { return f.EnableDevice(ctx, " ") }, ErrInvalidArgument},
		{"negative rain delay", func() error { return f.SetRainDelay(ctx, "d1", -1) }, ErrInvalidArgument},
		{"rain delay too long", func() error { return f.SetRainDelay(ctx, "d1", MaxRainDelay+1) }, ErrInvalidArgument},
		{"no zones", func() error { return f.StartMultipleZones(ctx, nil) }, ErrInvalidArgument},
		{"bad run duration", func() error { return f.RunAllZones(ctx, "d1", -5) }, ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	if n := fc.callCount(); n != 0 {
		t.Errorf("cloud calls = %d, want 0", n)
	}
}

func TestStartZone_Optimistic(t *testing.T) {
	f, fc, store, ref := newTestFacade(t)

	if err := f.StartZone(context.Background(), "z1", 60); err != nil {
		t.Fatalf("StartZone() error = %v", err)
	}

	if z, _ := store.Zone("z1"); !z.Running {
		t.Error("zone not marked running")
	}
	if fc.calls[0] != "start:z1" {
		t.Errorf("calls = %v", fc.calls)
	}
	if ref.n != 1 {
		t.Errorf("re-poll requests = %d, want 1", ref.n)
	}
}

func TestStartZone_FailureLeavesModel(t *testing.T) {
	f, fc, store, ref := newTestFacade(t)
	fc.err = &cloud.HTTPError{Method: "PUT", Path: "/zone/start", StatusCode: 500}

	err := f.StartZone(context.Background(), "z1", 60)
	var httpErr *cloud.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 500 {
		t.Fatalf("error = %v, want HTTPError 500", err)
	}

	if z, _ := store.Zone("z1"); z.Running {
		t.Error("zone marked running after failure")
	}
	if ref.n != 0 {
		t.Errorf("re-poll requests = %d, want 0", ref.n)
	}

	failure, ok := f.LastFailure()
	if !ok || failure.Command != "start_zone" || failure.Target != "z1" || !failure.At.Equal(testNow) {
		t.Errorf("LastFailure() = %+v, %v", failure, ok)
	}
}

func TestStopWatering_ClearsRunning(t *testing.T) {
	f, _, store, _ := newTestFacade(t)
	ctx := context.Background()

	_ = store.SetZoneRunning("z1", true)
	_ = store.SetZoneRunning("z3", true)

	if err := f.StopWatering(ctx, "d1"); err != nil {
		t.Fatalf("StopWatering() error = %v", err)
	}
	for _, z := range store.ZonesOf("d1") {
		if z.Running {
			t.Errorf("zone %s still running", z.ID)
		}
	}
}

func TestEnableDisable(t *testing.T) {
	f, fc, store, _ := newTestFacade(t)
	ctx := context.Background()

	if err := f.DisableDevice(ctx, "d1"); err != nil {
		t.Fatalf("DisableDevice() error = %v", err)
	}
	if d, _ := store.Device("d1"); d.Enabled {
		t.Error("device still enabled")
	}

	if err := f.EnableDevice(ctx, "d1"); err != nil {
		t.Fatalf("EnableDevice() error = %v", err)
	}
	if d, _ := store.Device("d1"); !d.Enabled {
		t.Error("device not enabled")
	}

	want := []string{"off:d1", "on:d1"}
	for i, c := range want {
		if fc.calls[i] != c {
			t.Errorf("calls[%d] = %q, want %q", i, fc.calls[i], c)
		}
	}
}

func TestSetRainDelay(t *testing.T) {
	f, _, store, _ := newTestFacade(t)
	ctx := context.Background()

	if err := f.SetRainDelay(ctx, "d1", 3600); err != nil {
		t.Fatalf("SetRainDelay() error = %v", err)
	}
	d, _ := store.Device("d1")
	if want := testNow.Add(time.Hour); !d.RainDelayUntil.Equal(want) {
		t.Errorf("RainDelayUntil = %v, want %v", d.RainDelayUntil, want)
	}

	if err := f.SetRainDelay(ctx, "d1", 0); err != nil {
		t.Fatalf("SetRainDelay(0) error = %v", err)
	}
	d, _ = store.Device("d1")
	if !d.RainDelayUntil.IsZero() {
		t.Errorf("RainDelayUntil = %v, want zero", d.RainDelayUntil)
	}
}

func TestRunAllZones_EnabledOnlyWithResolvedDurations(t *testing.T) {
	f, fc, store, _ := newTestFacade(t)

	if err := f.SetRequestedDuration("z3", 120); err != nil {
		t.Fatalf("SetRequestedDuration() error = %v", err)
	}
	if err := f.RunAllZones(context.Background(), "d1", 0); err != nil {
		t.Fatalf("RunAllZones() error = %v", err)
	}

	if len(fc.runs) != 2 {
		t.Fatalf("runs = %+v, want 2 enabled zones", fc.runs)
	}
	if fc.runs[0].ZoneID != "z1" || fc.runs[0].Duration != 600 || fc.runs[0].SortOrder != 1 {
		t.Errorf("runs[0] = %+v, want z1 for device default 600s", fc.runs[0])
	}
	if fc.runs[1].ZoneID != "z3" || fc.runs[1].Duration != 120 || fc.runs[1].SortOrder != 2 {
		t.Errorf("runs[1] = %+v, want z3 for requested 120s", fc.runs[1])
	}
	if z, _ := store.Zone("z1"); !z.Running {
		t.Error("first zone of the run not marked running")
	}
}

func TestRunSelectedZones(t *testing.T) {
	f, fc, _, _ := newTestFacade(t)

	if err := f.SetRunZones("d1", "3, 2"); err != nil {
		t.Fatalf("SetRunZones() error = %v", err)
	}
	if err := f.RunSelectedZones(context.Background(), "d1", 90); err != nil {
		t.Fatalf("RunSelectedZones() error = %v", err)
	}

	// Zone 2 is disabled, so only zone 3 runs.
	if len(fc.runs) != 1 || fc.runs[0].ZoneID != "z3" || fc.runs[0].Duration != 90 {
		t.Errorf("runs = %+v, want only z3 for 90s", fc.runs)
	}
}

func TestRunNextZone(t *testing.T) {
	tests := []struct {
		name    string
		running []string
		want    string
	}{
		{"nothing running", nil, "start:z1"},
		{"after first", []string{"z1"}, "start:z3"},
		{"wraps from last", []string{"z3"}, "start:z1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, fc, store, _ := newTestFacade(t)
			for _, id := range tt.running {
				_ = store.SetZoneRunning(id, true)
			}

			if err := f.RunNextZone(context.Background(), "d1", 0); err != nil {
				t.Fatalf("RunNextZone() error = %v", err)
			}
			if len(fc.calls) != 1 || fc.calls[0] != tt.want {
				t.Errorf("calls = %v, want [%s]", fc.calls, tt.want)
			}
		})
	}
}

func TestParseRunZones(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"", nil, false},
		{"1,2, 5", []int{1, 2, 5}, false},
		{" 4 ,", []int{4}, false},
		{"1,x", nil, true},
		{"0", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRunZones(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidArgument) {
					t.Errorf("error = %v, want ErrInvalidArgument", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for _, n := range tt.want {
				if !got[n] {
					t.Errorf("missing zone %d", n)
				}
			}
		})
	}
}

func TestDurationFor(t *testing.T) {
	f, _, store, _ := newTestFacade(t)

	if got := f.DurationFor("z1"); got != 600 {
		t.Errorf("DurationFor(z1) = %d, want device default 600", got)
	}
	if err := f.SetDefaultRuntime("d1", MaxZoneDuration); err != nil {
		t.Fatalf("SetDefaultRuntime() error = %v", err)
	}
	if got := f.DurationFor("z1"); got != MaxZoneDuration {
		t.Errorf("DurationFor(z1) = %d, want %d", got, MaxZoneDuration)
	}
	if got := f.DurationFor("missing"); got != FallbackRuntime {
		t.Errorf("DurationFor(missing) = %d, want %d", got, FallbackRuntime)
	}

	_ = store.ApplyZoneDelta("z1", model.ZoneDelta{RequestedDuration: model.Ptr(45)})
	if got := f.DurationFor("z1"); got != 45 {
		t.Errorf("DurationFor(z1) = %d, want requested 45", got)
	}
}

func TestFailureWrapsCommandName(t *testing.T) {
	f, fc, _, _ := newTestFacade(t)
	fc.err = cloud.ErrCircuitOpen

	err := f.RunAllZones(context.Background(), "d1", 60)
	if !errors.Is(err, cloud.ErrCircuitOpen) {
		t.Fatalf("error = %v, want ErrCircuitOpen", err)
	}
	if !strings.Contains(err.Error(), "run_all_zones") {
		t.Errorf("error %q does not name the command", err)
	}
}
