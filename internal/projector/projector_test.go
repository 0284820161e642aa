package projector_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nwcai/pm-rul/internal/adapter/fleetfile"
	"github.com/nwcai/pm-rul/internal/machine"
	"github.com/nwcai/pm-rul/internal/policy"
	"github.com/nwcai/pm-rul/internal/projector"
	"github.com/nwcai/pm-rul/internal/rul"
)

var pumpCreated = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func loadFleet(t *testing.T) *fleetfile.Source {
	t.Helper()
	source, err := fleetfile.NewSource("../../fixtures/machines/valid")
	if err != nil {
		t.Fatalf("failed to load fleet: %v", err)
	}
	return source
}

func newProjector(source projector.DataSource, opts ...projector.Option) *projector.Projector {
	return projector.New(source, policy.NewEngine(policy.DefaultThresholds()), opts...)
}

func TestScenarios(t *testing.T) {
	source := loadFleet(t)
	p := newProjector(source)

	// pump-03: lifetime 100h, severity 10 event at 10h repaired at 20h with
	// effectiveness 0.8, leaving residual decay 0.002*(t-20)^2.
	tests := []struct {
		name           string
		elapsed        float64
		expectedStatus policy.Status
		expectedHealth float64
	}{
		{name: "healthy", elapsed: 50, expectedStatus: policy.StatusHealthy, expectedHealth: 73.2},
		{name: "warning", elapsed: 75, expectedStatus: policy.StatusWarning, expectedHealth: 37.7},
		{name: "critical", elapsed: 90, expectedStatus: policy.StatusCritical, expectedHealth: 9.2},
		{name: "expired", elapsed: 150, expectedStatus: policy.StatusExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := pumpCreated.Add(time.Duration(tt.elapsed * float64(time.Hour)))

			report, err := p.Project(context.Background(), "pump-03", now)
			if err != nil {
				t.Fatalf("projection failed: %v", err)
			}

			if report.Status() != tt.expectedStatus {
				t.Errorf("expected status %s, got %s (reasons: %v)",
					tt.expectedStatus, report.Status(), report.Assessment.Reasons)
			}

			if tt.expectedStatus == policy.StatusExpired {
				if report.Current != nil {
					t.Errorf("expected no current position past the horizon, got %+v", report.Current)
				}
				return
			}

			if report.Current == nil {
				t.Fatal("expected current position")
			}
			if math.Abs(report.Current.Health-tt.expectedHealth) > 1e-6 {
				t.Errorf("expected health %.4f, got %.4f", tt.expectedHealth, report.Current.Health)
			}
			if math.Abs(report.ElapsedHours-tt.elapsed) > 1e-9 {
				t.Errorf("expected elapsed %v, got %v", tt.elapsed, report.ElapsedHours)
			}
		})
	}
}

func TestProject_ReportContents(t *testing.T) {
	p := newProjector(loadFleet(t))

	report, err := p.Project(context.Background(), "pump-03", pumpCreated.Add(50*time.Hour))
	if err != nil {
		t.Fatalf("projection failed: %v", err)
	}

	if report.ID == "" {
		t.Error("expected report id")
	}
	if report.Machine.ID != "pump-03" || report.EventCount != 1 {
		t.Errorf("unexpected machine/event count: %s/%d", report.Machine.ID, report.EventCount)
	}
	if len(report.Projection.EventMarkers) != 1 || len(report.Projection.RepairMarkers) != 1 {
		t.Errorf("expected one event and one repair marker, got %d/%d",
			len(report.Projection.EventMarkers), len(report.Projection.RepairMarkers))
	}
	if report.TimeToWarning == nil || report.TimeToCritical == nil {
		t.Fatal("expected both thresholds to be reached within the lifetime")
	}
	if *report.TimeToCritical <= *report.TimeToWarning {
		t.Errorf("critical crossing %v should follow warning crossing %v", *report.TimeToCritical, *report.TimeToWarning)
	}
	if report.WarningCrossing == nil || *report.WarningCrossing > *report.TimeToWarning {
		t.Errorf("interpolated warning crossing %v should not follow sampled %v", report.WarningCrossing, *report.TimeToWarning)
	}
	if report.Assessment.HoursToWarning == nil {
		t.Error("expected hours to warning from now")
	}
}

func TestProject_NotFound(t *testing.T) {
	p := newProjector(loadFleet(t))

	_, err := p.Project(context.Background(), "ghost", time.Now())
	if !errors.Is(err, machine.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProject_ReportsIssues(t *testing.T) {
	source := fleetfile.NewEmptySource()
	source.Add(&machine.Document{
		Metadata: machine.Metadata{ID: "lathe"},
		Spec: machine.Spec{
			LifeTime:   100,
			CreateDate: pumpCreated,
			Events: []machine.EventSpec{
				{Name: "Overload", Timestamp: pumpCreated.Add(5 * time.Hour), Severity: 15},
				{Name: "Before install", Timestamp: pumpCreated.Add(-time.Hour), Severity: 3},
			},
		},
	})

	report, err := newProjector(source).Project(context.Background(), "lathe", pumpCreated.Add(10*time.Hour))
	if err != nil {
		t.Fatalf("projection failed: %v", err)
	}

	if len(report.Issues) != 2 {
		t.Fatalf("expected 2 issues, got %d: %v", len(report.Issues), report.Issues)
	}
	if report.EventCount != 1 {
		t.Errorf("expected 1 assembled event, got %d", report.EventCount)
	}
}

func TestProjectAdHoc(t *testing.T) {
	p := newProjector(nil)

	report, err := p.ProjectAdHoc(projector.AdHocRequest{Lifetime: 12, ElapsedHours: 6}, time.Now())
	if err != nil {
		t.Fatalf("ad hoc projection failed: %v", err)
	}
	if report.Current == nil || math.Abs(report.Current.Health-75) > 1e-9 {
		t.Errorf("expected health 75 at 6h, got %+v", report.Current)
	}
	if report.Status() != policy.StatusHealthy {
		t.Errorf("expected HEALTHY, got %s", report.Status())
	}

	repair := 30.0
	report, err = p.ProjectAdHoc(projector.AdHocRequest{
		Lifetime: 100,
		Events: []projector.AdHocEvent{
			{Name: "", Time: 10, Severity: 5, RepairTime: &repair},
		},
	}, time.Now())
	if err != nil {
		t.Fatalf("ad hoc projection failed: %v", err)
	}
	if got := report.Projection.EventMarkers[0].Label; got != machine.DefaultEventName {
		t.Errorf("expected default event name, got %q", got)
	}
}

func TestProjectAdHoc_ExpiredNamesHorizon(t *testing.T) {
	report, err := newProjector(nil).ProjectAdHoc(projector.AdHocRequest{Lifetime: 10, ElapsedHours: 20}, time.Now())
	if err != nil {
		t.Fatalf("ad hoc projection failed: %v", err)
	}
	if report.Status() != policy.StatusExpired {
		t.Fatalf("expected EXPIRED, got %s", report.Status())
	}
	if !strings.Contains(report.Assessment.Reasons[0], "horizon of 10.0h") {
		t.Errorf("expected the horizon in the reason, got %v", report.Assessment.Reasons)
	}
}

func TestProjectAdHoc_Invalid(t *testing.T) {
	p := newProjector(nil)

	tests := []struct {
		name     string
		req      projector.AdHocRequest
		expected error
	}{
		{
			name:     "zero lifetime",
			req:      projector.AdHocRequest{Lifetime: 0},
			expected: rul.ErrInvalidLifetime,
		},
		{
			name: "severity out of range",
			req: projector.AdHocRequest{
				Lifetime: 100,
				Events:   []projector.AdHocEvent{{Time: 1, Severity: 11}},
			},
			expected: rul.ErrMalformedEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ProjectAdHoc(tt.req, time.Now())
			if !errors.Is(err, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}
		})
	}
}

// failingSource fails event lookups for one machine
type failingSource struct {
	projector.DataSource
	failID string
}

func (f failingSource) ListEvents(ctx context.Context, id string) ([]machine.EventRecord, error) {
	if id == f.failID {
		return nil, errors.New("upstream unavailable")
	}
	return f.DataSource.ListEvents(ctx, id)
}

func TestProjectAll(t *testing.T) {
	source := loadFleet(t)
	p := newProjector(failingSource{DataSource: source, failID: "press-01"}, projector.WithWorkers(2))

	reports, failures, err := p.ProjectAll(context.Background(), pumpCreated.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("fleet projection failed: %v", err)
	}

	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].Machine.ID != "conveyor-02" || reports[1].Machine.ID != "pump-03" {
		t.Errorf("expected reports in source order, got %s, %s", reports[0].Machine.ID, reports[1].Machine.ID)
	}

	if len(failures) != 1 || failures[0].MachineID != "press-01" {
		t.Fatalf("expected press-01 to fail, got %v", failures)
	}
}

func TestProjectAll_OversizedLifetime(t *testing.T) {
	source := fleetfile.NewEmptySource()
	source.Add(&machine.Document{
		Metadata: machine.Metadata{ID: "ancient"},
		Spec:     machine.Spec{LifeTime: 1e300, CreateDate: pumpCreated},
	})
	source.Add(&machine.Document{
		Metadata: machine.Metadata{ID: "lathe"},
		Spec:     machine.Spec{LifeTime: 100, CreateDate: pumpCreated},
	})

	reports, failures, err := newProjector(source).ProjectAll(context.Background(), pumpCreated.Add(10*time.Hour))
	if err != nil {
		t.Fatalf("fleet projection failed: %v", err)
	}
	if len(reports) != 1 || reports[0].Machine.ID != "lathe" {
		t.Fatalf("expected only lathe to project, got %d reports", len(reports))
	}
	if len(failures) != 1 || !errors.Is(failures[0], rul.ErrTooManySamples) {
		t.Fatalf("expected ancient to fail with ErrTooManySamples, got %v", failures)
	}
}

func TestProjectAll_Cancelled(t *testing.T) {
	p := newProjector(loadFleet(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := p.ProjectAll(ctx, time.Now()); err == nil {
		t.Error("expected error for cancelled context")
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	statuses []string
	failures int
}

func (r *recordingObserver) ObserveProjection(status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recordingObserver) ProjectionFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
}

func TestProjector_Observer(t *testing.T) {
	obs := &recordingObserver{}
	p := newProjector(loadFleet(t), projector.WithObserver(obs))

	p.Project(context.Background(), "pump-03", pumpCreated.Add(50*time.Hour))
	p.Project(context.Background(), "ghost", pumpCreated)

	if len(obs.statuses) != 1 || obs.statuses[0] != string(policy.StatusHealthy) {
		t.Errorf("expected one HEALTHY observation, got %v", obs.statuses)
	}
	if obs.failures != 1 {
		t.Errorf("expected one failure, got %d", obs.failures)
	}
}

func TestProjector_ModelOptions(t *testing.T) {
	p := newProjector(nil, projector.WithModelOptions(rul.WithStep(1)))

	report, err := p.ProjectAdHoc(projector.AdHocRequest{Lifetime: 10}, time.Now())
	if err != nil {
		t.Fatalf("projection failed: %v", err)
	}
	if len(report.Projection.Series) != 11 {
		t.Errorf("expected 11 samples with step 1, got %d", len(report.Projection.Series))
	}
}
