package rachio

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nerrad567/gray-logic-rachio/internal/rachio/model"
)

// History timing constants.
const (
	// historyWriteTimeout bounds one insert from a listener callback.
	historyWriteTimeout = 2 * time.Second

	// DefaultHistoryLimit is the number of rows ZoneHistory returns when
	// the caller passes no limit.
	DefaultHistoryLimit = 100

	// maxHistoryLimit caps a single ZoneHistory read.
	maxHistoryLimit = 1000
)

// HistoryDB is the subset of *database.DB used by History.
type HistoryDB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// RunRecord is one zone running transition.
type RunRecord struct {
	ID         int64     `json:"id"`
	Account    string    `json:"account"`
	DeviceID   string    `json:"device_id"`
	ZoneID     string    `json:"zone_id"`
	ZoneNumber int       `json:"zone_number"`
	Running    bool      `json:"running"`
	Duration   int       `json:"duration"`
	OccurredAt time.Time `json:"occurred_at"`
}

// History appends zone running transitions to the zone_run_history table
// and prunes rows older than the retention period once a day.
//
// For a start, Duration is the requested duration. For a stop it is the
// number of seconds the zone was seen running, or 0 if the start was not
// observed.
type History struct {
	db        HistoryDB
	retention time.Duration
	now       func() time.Time
	cron      *cron.Cron

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHistory creates a history recorder. retentionDays of 0 keeps all rows.
func NewHistory(db HistoryDB, retentionDays int) *History {
	return &History{
		db:        db,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
		cron:      cron.New(),
	}
}

// SetLogger sets the logger for the recorder.
func (h *History) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// Start prunes once and schedules the daily prune. It is a no-op when
// retention is disabled.
func (h *History) Start(ctx context.Context) error {
	if h.retention <= 0 {
		return nil
	}

	if _, err := h.Prune(ctx); err != nil {
		return err
	}
	if _, err := h.cron.AddFunc("@daily", func() {
		if _, err := h.Prune(context.Background()); err != nil {
			h.logError("history prune failed", err)
		}
	}); err != nil {
		return fmt.Errorf("scheduling history prune: %w", err)
	}
	h.cron.Start()
	return nil
}

// Stop stops the prune schedule and waits for a running prune.
func (h *History) Stop() {
	<-h.cron.Stop().Done()
}

// Record inserts one transition.
func (h *History) Record(ctx context.Context, r RunRecord) error {
	running := 0
	if r.Running {
		running = 1
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO zone_run_history
			(account, device_id, zone_id, zone_number, running, duration, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Account, r.DeviceID, r.ZoneID, r.ZoneNumber, running, r.Duration, r.OccurredAt.Unix())
	if err != nil {
		return fmt.Errorf("recording zone run: %w", err)
	}
	return nil
}

// ZoneHistory returns the most recent transitions of a zone, newest first.
func (h *History) ZoneHistory(ctx context.Context, zoneID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	rows, err := h.db.QueryContext(ctx,
		`SELECT id, account, device_id, zone_id, zone_number, running, duration, occurred_at
		FROM zone_run_history
		WHERE zone_id = ?
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?`, zoneID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying zone history: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r        RunRecord
			running  int
			occurred int64
		)
		if err := rows.Scan(&r.ID, &r.Account, &r.DeviceID, &r.ZoneID, &r.ZoneNumber,
			&running, &r.Duration, &occurred); err != nil {
			return nil, fmt.Errorf("scanning zone history: %w", err)
		}
		r.Running = running == 1
		r.OccurredAt = time.Unix(occurred, 0).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating zone history: %w", err)
	}
	return out, nil
}

// Prune deletes rows older than the retention period.
//
// Returns:
//   - int64: Number of rows deleted
func (h *History) Prune(ctx context.Context) (int64, error) {
	if h.retention <= 0 {
		return 0, nil
	}

	cutoff := h.now().Add(-h.retention).Unix()
	res, err := h.db.ExecContext(ctx, `DELETE FROM zone_run_history WHERE occurred_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning zone history: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		h.logInfo("pruned zone run history", "rows", n)
	}
	return n, nil
}

// Listener returns a model listener that records the transitions of one
// account's zones.
func (h *History) Listener(account string) model.Listener {
	return &historyListener{
		history: h,
		account: account,
		running: make(map[string]bool),
		started: make(map[string]time.Time),
	}
}

// historyListener tracks the last seen running flag per zone so only
// transitions are written. The first sighting of an idle zone is not a
// transition.
type historyListener struct {
	history *History
	account string

	mu      sync.Mutex
	running map[string]bool
	started map[string]time.Time
}

// OnDeviceChanged implements model.Listener.
func (l *historyListener) OnDeviceChanged(model.Device) {}

// OnConnectivityChanged implements model.Listener.
func (l *historyListener) OnConnectivityChanged(bool) {}

// OnZoneChanged implements model.Listener.
func (l *historyListener) OnZoneChanged(z model.Zone) {
	now := l.history.now().UTC()

	l.mu.Lock()
	was, seen := l.running[z.ID]
	l.running[z.ID] = z.Running
	if (seen && was == z.Running) || (!seen && !z.Running) {
		l.mu.Unlock()
		return
	}

	duration := z.RequestedDuration
	if z.Running {
		l.started[z.ID] = now
	} else {
		duration = 0
		if at, ok := l.started[z.ID]; ok {
			duration = int(now.Sub(at).Seconds())
			delete(l.started, z.ID)
		}
	}
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()

	err := l.history.Record(ctx, RunRecord{
		Account:    l.account,
		DeviceID:   z.DeviceID,
		ZoneID:     z.ID,
		ZoneNumber: z.Number,
		Running:    z.Running,
		Duration:   duration,
		OccurredAt: now,
	})
	if err != nil {
		l.history.logError("failed to record zone run", err)
	}
}

func (h *History) logInfo(msg string, keysAndValues ...any) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()
	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (h *History) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()
	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
