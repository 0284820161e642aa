// Package scheduler keeps every machine's report fresh: it re-projects the
// fleet on an interval, caches the results, records history and announces
// status changes.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nwcai/pm-rul/internal/machine"
	"github.com/nwcai/pm-rul/internal/notify"
	"github.com/nwcai/pm-rul/internal/observability"
	"github.com/nwcai/pm-rul/internal/policy"
	"github.com/nwcai/pm-rul/internal/projector"
	"github.com/nwcai/pm-rul/internal/storage"
)

// Scheduler manages periodic fleet projections
type Scheduler struct {
	projector *projector.Projector
	cache     *ReportCache
	interval  time.Duration
	history   storage.HistoryStorage
	publisher notify.Publisher
	metrics   *observability.Metrics
	now       func() time.Time

	trigger chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool

	// serializes record so status transitions are compared in order
	recordMu sync.Mutex
}

// NewScheduler creates a new scheduler refreshing every interval
func NewScheduler(p *projector.Projector, interval time.Duration) *Scheduler {
	return &Scheduler{
		projector: p,
		cache:     NewReportCache(),
		interval:  interval,
		publisher: notify.Nop{},
		now:       time.Now,
		trigger:   make(chan struct{}, 1),
	}
}

// SetHistoryStorage sets the history storage backend (optional)
func (s *Scheduler) SetHistoryStorage(history storage.HistoryStorage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = history
}

// SetPublisher sets the status change publisher (optional)
func (s *Scheduler) SetPublisher(publisher notify.Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if publisher == nil {
		publisher = notify.Nop{}
	}
	s.publisher = publisher
}

// SetMetrics sets the metrics sink (optional)
func (s *Scheduler) SetMetrics(metrics *observability.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = metrics
}

// Start begins the refresh loop
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	if s.interval <= 0 {
		s.mu.Unlock()
		return fmt.Errorf("refresh interval must be positive, got %s", s.interval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.refreshLoop(ctx)

	slog.Info("scheduler: started", "interval", s.interval)
	return nil
}

// Stop stops the scheduler and waits for the running refresh to complete
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}

	s.cancel()
	s.running = false
	s.mu.Unlock()

	slog.Info("scheduler: stopping")
	s.wg.Wait()
	slog.Info("scheduler: stopped")
}

// Trigger requests an immediate fleet refresh without waiting for the
// next tick. Requests made while one is pending are merged.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Scheduler) refreshLoop(ctx context.Context) {
	defer s.wg.Done()

	// Initial refresh
	s.refreshAndLog(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshAndLog(ctx)
		case <-s.trigger:
			s.refreshAndLog(ctx)
		}
	}
}

func (s *Scheduler) refreshAndLog(ctx context.Context) {
	if err := s.RefreshAll(ctx); err != nil && ctx.Err() == nil {
		slog.Error("scheduler: fleet refresh failed", "err", err)
	}
}

// RefreshAll projects the whole fleet and records every report. Machines
// that disappeared from the source are dropped from the cache.
func (s *Scheduler) RefreshAll(ctx context.Context) error {
	start := s.now()

	reports, failures, err := s.projector.ProjectAll(ctx, start)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(reports)+len(failures))
	for _, r := range reports {
		s.record(ctx, r)
		seen[r.Machine.ID] = struct{}{}
	}
	for _, f := range failures {
		seen[f.MachineID] = struct{}{}
	}
	if removed := s.cache.Retain(seen); removed > 0 {
		slog.Info("scheduler: dropped machines no longer in fleet", "count", removed)
	}

	s.getMetrics().SetFleetSize(len(seen))

	slog.Info("scheduler: fleet refreshed",
		"machines", len(reports), "failed", len(failures), "duration", time.Since(start))
	return nil
}

// RefreshNow forces immediate projection of one machine. A machine the
// source no longer knows is dropped from the cache.
func (s *Scheduler) RefreshNow(ctx context.Context, machineID string) (*projector.Report, error) {
	report, err := s.projector.Project(ctx, machineID, s.now())
	if err != nil {
		if errors.Is(err, machine.ErrNotFound) {
			s.cache.Delete(machineID)
		}
		return nil, err
	}
	s.record(ctx, report)
	return report, nil
}

// Report returns the cached report for a machine, projecting it when the
// cache is empty or stale or fresh is set.
func (s *Scheduler) Report(ctx context.Context, machineID string, fresh bool) (*projector.Report, error) {
	if !fresh {
		if state, ok := s.cache.Get(machineID); ok && !state.IsStale(s.now()) {
			s.getMetrics().CacheHit()
			return state.Report, nil
		}
	}
	s.getMetrics().CacheMiss()
	return s.RefreshNow(ctx, machineID)
}

// record caches a report, persists it and publishes a status change
func (s *Scheduler) record(ctx context.Context, report *projector.Report) {
	s.recordMu.Lock()
	defer s.recordMu.Unlock()

	id := report.Machine.ID
	previous := s.previousStatus(id)

	s.cache.Set(id, &ReportState{
		Report:    report,
		UpdatedAt: s.now(),
		TTL:       s.interval,
	})

	s.mu.RLock()
	history := s.history
	publisher := s.publisher
	s.mu.RUnlock()

	if history != nil {
		if err := history.StoreMachine(report.Machine); err != nil {
			slog.Warn("scheduler: failed to store machine", "machine", id, "err", err)
		} else {
			if err := history.StoreReport(report); err != nil {
				slog.Warn("scheduler: failed to store report", "machine", id, "err", err)
			}
			if err := history.UpdateLatestState(report); err != nil {
				slog.Warn("scheduler: failed to update latest state", "machine", id, "err", err)
			}
		}
	}

	current := report.Status()
	if previous == "" || previous == current {
		return
	}

	s.getMetrics().StatusChanged(string(current))
	slog.Info("scheduler: status changed", "machine", id, "from", previous, "to", current)

	change := notify.StatusChange{
		MachineID: id,
		Previous:  previous,
		Current:   current,
		Health:    report.Assessment.Health,
		ReportID:  report.ID,
		At:        report.GeneratedAt,
	}
	if err := publisher.Publish(ctx, change); err != nil {
		slog.Warn("scheduler: failed to publish status change", "machine", id, "err", err)
	}
}

// previousStatus looks in the cache first, then in history so transitions
// survive restarts
func (s *Scheduler) previousStatus(machineID string) policy.Status {
	if state, ok := s.cache.Get(machineID); ok {
		return state.Report.Status()
	}

	s.mu.RLock()
	history := s.history
	s.mu.RUnlock()
	if history == nil {
		return ""
	}

	latest, err := history.GetLatestState(machineID)
	if err != nil || latest == nil {
		return ""
	}
	status, err := policy.ParseStatus(latest.Status)
	if err != nil {
		return ""
	}
	return status
}

func (s *Scheduler) getMetrics() *observability.Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics
}

// GetCache returns the report cache
func (s *Scheduler) GetCache() *ReportCache {
	return s.cache
}

// GetHistoryStorage returns the history storage backend
func (s *Scheduler) GetHistoryStorage() storage.HistoryStorage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history
}

// Projector returns the projector the scheduler drives
func (s *Scheduler) Projector() *projector.Projector {
	return s.projector
}

// Running reports whether the refresh loop is active
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
