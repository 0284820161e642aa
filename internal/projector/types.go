package projector

import (
	"time"

	"github.com/nwcai/pm-rul/internal/machine"
	"github.com/nwcai/pm-rul/internal/policy"
	"github.com/nwcai/pm-rul/internal/rul"
)

// Report is the outcome of one projection run
type Report struct {
	ID           string          `json:"id"`
	Machine      machine.Machine `json:"machine"`
	GeneratedAt  time.Time       `json:"generatedAt"`
	ElapsedHours float64         `json:"elapsedHours"`
	EventCount   int             `json:"eventCount"`
	Issues       []machine.Issue `json:"issues,omitempty"`

	Projection *rul.Projection `json:"projection"`

	// First sample at or below each threshold, in hours since creation
	TimeToWarning  *float64 `json:"timeToWarning"`
	TimeToCritical *float64 `json:"timeToCritical"`

	// Interpolated crossing times, in hours since creation
	WarningCrossing  *float64 `json:"warningCrossing,omitempty"`
	CriticalCrossing *float64 `json:"criticalCrossing,omitempty"`

	Current    *rul.HealthSample  `json:"currentPosition"`
	Thresholds policy.Thresholds  `json:"thresholds"`
	Assessment *policy.Assessment `json:"assessment"`
}

// Status is shorthand for the assessed status
func (r *Report) Status() policy.Status {
	if r.Assessment == nil {
		return ""
	}
	return r.Assessment.Status
}

// AdHocEvent is a caller-supplied event already expressed in hours
type AdHocEvent struct {
	Name                string   `json:"name"`
	Time                float64  `json:"time"`
	Severity            int      `json:"severity"`
	RepairTime          *float64 `json:"repairTime,omitempty"`
	RepairEffectiveness *float64 `json:"repairEffectiveness,omitempty"`
}

// AdHocRequest runs the model without a data source
type AdHocRequest struct {
	Lifetime     float64      `json:"lifetime"`
	Events       []AdHocEvent `json:"events"`
	ElapsedHours float64      `json:"elapsedHours"`
}

// Failure records a machine whose projection failed during a fleet run
type Failure struct {
	MachineID string
	Err       error
}

func (f Failure) Error() string {
	return f.MachineID + ": " + f.Err.Error()
}

func (f Failure) Unwrap() error {
	return f.Err
}
