package rachio

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-rachio/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-rachio/internal/rachio/model"
	_ "github.com/nerrad567/gray-logic-rachio/migrations"
)

func newTestHistory(t *testing.T) (*History, *time.Time) {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	h := NewHistory(db, 30)
	h.now = func() time.Time { return now }
	return h, &now
}

func TestHistoryListener_RecordsTransitionsOnly(t *testing.T) {
	h, now := newTestHistory(t)
	l := h.Listener("acct1")
	ctx := context.Background()

	zone := model.Zone{ID: "z1", DeviceID: "d1", Number: 1, RequestedDuration: 600}

	l.OnZoneChanged(zone) // first sighting, idle: not a transition
	zone.Running = true
	l.OnZoneChanged(zone)
	l.OnZoneChanged(zone) // re-notification of the same state
	*now = now.Add(7 * time.Minute)
	zone.Running = false
	l.OnZoneChanged(zone)

	rows, err := h.ZoneHistory(ctx, "z1", 0)
	if err != nil {
		t.Fatalf("ZoneHistory() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %+v, want start and stop", rows)
	}

	stop, start := rows[0], rows[1]
	if stop.Running || stop.Duration != 420 {
		t.Errorf("stop row = %+v, want not running for 420s", stop)
	}
	if !start.Running || start.Duration != 600 || start.Account != "acct1" || start.ZoneNumber != 1 {
		t.Errorf("start row = %+v, want running with requested 600s", start)
	}
	if !stop.OccurredAt.After(start.OccurredAt) {
		t.Errorf("stop at %v not after start at %v", stop.OccurredAt, start.OccurredAt)
	}
}

func TestHistoryListener_StopWithoutObservedStart(t *testing.T) {
	h, _ := newTestHistory(t)
	l := h.Listener("acct1")

	// Seen running on first sighting, then stopped: both are recorded.
	l.OnZoneChanged(model.Zone{ID: "z2", DeviceID: "d1", Number: 2, Running: true})
	l.OnZoneChanged(model.Zone{ID: "z2", DeviceID: "d1", Number: 2})

	rows, err := h.ZoneHistory(context.Background(), "z2", 10)
	if err != nil {
		t.Fatalf("ZoneHistory() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
}

func TestHistory_Prune(t *testing.T) {
	h, now := newTestHistory(t)
	ctx := context.Background()

	old := RunRecord{Account: "a", DeviceID: "d1", ZoneID: "z1", ZoneNumber: 1, Running: true,
		OccurredAt: now.Add(-31 * 24 * time.Hour)}
	recent := old
	recent.OccurredAt = now.Add(-time.Hour)

	for _, r := range []RunRecord{old, recent} {
		if err := h.Record(ctx, r); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	n, err := h.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}

	rows, _ := h.ZoneHistory(ctx, "z1", 0)
	if len(rows) != 1 || !rows[0].OccurredAt.Equal(recent.OccurredAt.Truncate(time.Second)) {
		t.Errorf("rows = %+v, want only the recent one", rows)
	}
}

func TestHistory_RetentionDisabled(t *testing.T) {
	h := NewHistory(nil, 0)

	n, err := h.Prune(context.Background())
	if err != nil || n != 0 {
		t.Errorf("Prune() = %d, %v, want 0, nil", n, err)
	}
	if err := h.Start(context.Background()); err != nil {
		t.Errorf("Start() error = %v", err)
	}
	h.Stop()
}
