// Package projector runs the projection pipeline: fetch a machine and its
// events, assemble model input, project the health curve, locate the
// threshold crossings and current position, and classify the result.
package projector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nwcai/pm-rul/internal/machine"
	"github.com/nwcai/pm-rul/internal/policy"
	"github.com/nwcai/pm-rul/internal/rul"
)

// DataSource supplies machines and their event histories. Implementations
// return an error wrapping machine.ErrNotFound for unknown ids.
type DataSource interface {
	ListMachines(ctx context.Context) ([]machine.Machine, error)
	GetMachine(ctx context.Context, id string) (machine.Machine, error)
	ListEvents(ctx context.Context, id string) ([]machine.EventRecord, error)
}

// Observer receives projection outcomes
type Observer interface {
	ObserveProjection(status string, duration time.Duration)
	ProjectionFailed()
}

type nopObserver struct{}

func (nopObserver) ObserveProjection(string, time.Duration) {}
func (nopObserver) ProjectionFailed()                       {}

// DefaultWorkers bounds fleet fan-out when no limit is configured
const DefaultWorkers = 4

// Option configures a Projector
type Option func(*Projector)

// WithModelOptions passes options to every rul.Project call
func WithModelOptions(opts ...rul.Option) Option {
	return func(p *Projector) { p.modelOpts = append(p.modelOpts, opts...) }
}

// WithWorkers sets the number of machines projected concurrently by ProjectAll
func WithWorkers(n int) Option {
	return func(p *Projector) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithObserver reports projection outcomes to o
func WithObserver(o Observer) Option {
	return func(p *Projector) {
		if o != nil {
			p.observer = o
		}
	}
}

// Projector produces reports for machines served by a data source
type Projector struct {
	source    DataSource
	engine    *policy.Engine
	modelOpts []rul.Option
	workers   int
	observer  Observer
}

// New creates a projector. source may be nil when only Build and
// ProjectAdHoc are used.
func New(source DataSource, engine *policy.Engine, opts ...Option) *Projector {
	p := &Projector{
		source:   source,
		engine:   engine,
		workers:  DefaultWorkers,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Source returns the projector's data source
func (p *Projector) Source() DataSource {
	return p.source
}

// Project runs the pipeline for a single machine as of now
func (p *Projector) Project(ctx context.Context, machineID string, now time.Time) (*Report, error) {
	if p.source == nil {
		return nil, fmt.Errorf("projector has no data source")
	}

	m, err := p.source.GetMachine(ctx, machineID)
	if err != nil {
		p.observer.ProjectionFailed()
		return nil, err
	}

	records, err := p.source.ListEvents(ctx, machineID)
	if err != nil {
		p.observer.ProjectionFailed()
		return nil, err
	}

	return p.Build(m, records, now)
}

// Build projects a machine from records already in hand
func (p *Projector) Build(m machine.Machine, records []machine.EventRecord, now time.Time) (*Report, error) {
	start := time.Now()

	events, issues := machine.Assemble(m, records)
	for _, issue := range issues {
		slog.Warn("projector: event record adjusted",
			"machine", m.ID, "index", issue.Index, "event", issue.Event, "issue", issue.Message)
	}

	proj, err := rul.Project(m.LifeTime, events, p.modelOpts...)
	if err != nil {
		p.observer.ProjectionFailed()
		return nil, fmt.Errorf("project machine %s: %w", m.ID, err)
	}

	report := p.analyze(proj, machine.HoursSince(m.CreateDate, now), now)
	report.Machine = m
	report.EventCount = len(events)
	report.Issues = issues

	p.observer.ObserveProjection(string(report.Status()), time.Since(start))
	slog.Debug("projector: machine projected",
		"machine", m.ID, "status", report.Status(), "events", report.EventCount, "elapsed_hours", report.ElapsedHours)

	return report, nil
}

// ProjectAdHoc runs the model on caller-supplied hour-based input. Unlike
// Build it applies no corrections: malformed events are rejected.
func (p *Projector) ProjectAdHoc(req AdHocRequest, now time.Time) (*Report, error) {
	start := time.Now()

	events := make([]rul.Event, 0, len(req.Events))
	for _, ev := range req.Events {
		e := rul.Event{
			Name:                machine.EventName(ev.Name),
			Time:                ev.Time,
			Severity:            ev.Severity,
			RepairTime:          ev.RepairTime,
			RepairEffectiveness: machine.DefaultRepairEffectiveness,
		}
		if ev.RepairEffectiveness != nil {
			e.RepairEffectiveness = *ev.RepairEffectiveness
		}
		events = append(events, e)
	}

	proj, err := rul.Project(req.Lifetime, events, p.modelOpts...)
	if err != nil {
		p.observer.ProjectionFailed()
		return nil, err
	}

	report := p.analyze(proj, req.ElapsedHours, now)
	report.Machine = machine.Machine{LifeTime: req.Lifetime}
	report.EventCount = len(events)

	p.observer.ObserveProjection(string(report.Status()), time.Since(start))
	return report, nil
}

// ProjectAll projects every machine of the source, at most workers at a
// time. A machine that fails is reported in the failures and never stops
// the others. Reports are ordered as the source lists machines.
func (p *Projector) ProjectAll(ctx context.Context, now time.Time) ([]*Report, []Failure, error) {
	if p.source == nil {
		return nil, nil, fmt.Errorf("projector has no data source")
	}

	machines, err := p.source.ListMachines(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list machines: %w", err)
	}

	results := make([]*Report, len(machines))
	var (
		mu       sync.Mutex
		failures []Failure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, m := range machines {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			report, err := p.Project(gctx, m.ID, now)
			if err != nil {
				slog.Error("projector: machine failed", "machine", m.ID, "err", err)
				mu.Lock()
				failures = append(failures, Failure{MachineID: m.ID, Err: err})
				mu.Unlock()
				return nil
			}
			results[i] = report
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, failures, err
	}

	reports := make([]*Report, 0, len(results))
	for _, r := range results {
		if r != nil {
			reports = append(reports, r)
		}
	}
	return reports, failures, nil
}

// analyze derives threshold times, current position and assessment
func (p *Projector) analyze(proj *rul.Projection, elapsed float64, now time.Time) *Report {
	th := p.engine.Thresholds()

	report := &Report{
		ID:           uuid.NewString(),
		GeneratedAt:  now,
		ElapsedHours: elapsed,
		Projection:   proj,
		Thresholds:   th,
	}

	if t, ok := rul.TimeToThreshold(proj.Series, th.Warning); ok {
		report.TimeToWarning = &t
	}
	if t, ok := rul.TimeToThreshold(proj.Series, th.Critical); ok {
		report.TimeToCritical = &t
	}
	if t, ok := rul.CrossingTime(proj.Series, th.Warning); ok {
		report.WarningCrossing = &t
	}
	if t, ok := rul.CrossingTime(proj.Series, th.Critical); ok {
		report.CriticalCrossing = &t
	}
	if s, ok := rul.CurrentPosition(proj.Series, elapsed); ok {
		report.Current = &s
	}

	report.Assessment = p.engine.Evaluate(policy.Input{
		Lifetime:       proj.Lifetime,
		Horizon:        proj.Horizon(),
		ElapsedHours:   elapsed,
		Current:        report.Current,
		TimeToWarning:  report.TimeToWarning,
		TimeToCritical: report.TimeToCritical,
	})

	return report
}
