package policy

import (
	"fmt"
	"strings"

	"github.com/nwcai/pm-rul/internal/rul"
)

// Status is the health classification of a machine at the current time
type Status string

const (
	StatusHealthy  Status = "HEALTHY"
	StatusWarning  Status = "WARNING"
	StatusCritical Status = "CRITICAL"
	StatusExpired  Status = "EXPIRED"
)

// Rank orders statuses from best to worst
func (s Status) Rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusWarning:
		return 1
	case StatusCritical:
		return 2
	case StatusExpired:
		return 3
	default:
		return -1
	}
}

// ParseStatus accepts a status name in any case
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusHealthy, StatusWarning, StatusCritical, StatusExpired:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Thresholds are the health percentages that trigger warning and critical states
type Thresholds struct {
	Warning  float64 `json:"warning"`
	Critical float64 `json:"critical"`
}

// DefaultThresholds returns the reference policy: warning at 50%, critical at 30%
func DefaultThresholds() Thresholds {
	return Thresholds{Warning: 50, Critical: 30}
}

// Validate requires 0 < critical < warning < 100
func (t Thresholds) Validate() error {
	if t.Critical <= 0 || t.Critical >= 100 {
		return fmt.Errorf("critical threshold must be within (0, 100): %v", t.Critical)
	}
	if t.Warning <= 0 || t.Warning >= 100 {
		return fmt.Errorf("warning threshold must be within (0, 100): %v", t.Warning)
	}
	if t.Critical >= t.Warning {
		return fmt.Errorf("critical threshold (%v) must be below warning threshold (%v)", t.Critical, t.Warning)
	}
	return nil
}

// Input is what the engine needs from a projection run
type Input struct {
	Lifetime       float64
	Horizon        float64 // time of the last projected sample
	ElapsedHours   float64
	Current        *rul.HealthSample // nil once elapsed time is past the horizon
	TimeToWarning  *float64
	TimeToCritical *float64
}

// Assessment is the classification of a machine's current health
type Assessment struct {
	Status          Status   `json:"status"`
	Health          float64  `json:"health"`
	HoursToWarning  *float64 `json:"hoursToWarning"` // from now; nil when already reached or never reached
	HoursToCritical *float64 `json:"hoursToCritical"`
	Reasons         []string `json:"reasons"`
}
