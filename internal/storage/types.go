package storage

import (
	"time"

	"github.com/nwcai/pm-rul/internal/machine"
	"github.com/nwcai/pm-rul/internal/projector"
)

// HistoryStorage defines the interface for persisting projection reports
type HistoryStorage interface {
	// StoreMachine upserts a machine record
	StoreMachine(m machine.Machine) error

	// StoreReport appends a report to the projection history
	StoreReport(r *projector.Report) error

	// UpdateLatestState replaces the latest state for the report's machine
	UpdateLatestState(r *projector.Report) error

	// QueryHistory retrieves history records with optional filtering
	QueryHistory(filter HistoryFilter) ([]HistoryRecord, error)

	// GetLatestState retrieves the latest state for a machine, nil when unknown
	GetLatestState(machineID string) (*LatestState, error)

	// Close closes the storage connection
	Close() error
}

// HistoryFilter defines filtering options for history queries
type HistoryFilter struct {
	MachineID string
	Status    string // HEALTHY, WARNING, CRITICAL, EXPIRED
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// HistoryRecord represents a single stored projection
type HistoryRecord struct {
	ID             int64     `json:"id"`
	ReportID       string    `json:"reportId"`
	MachineID      string    `json:"machineId"`
	MachineName    string    `json:"machineName,omitempty"`
	Status         string    `json:"status"`
	Health         float64   `json:"health"`
	MinHealth      float64   `json:"minHealth"`
	ElapsedHours   float64   `json:"elapsedHours"`
	TimeToWarning  *float64  `json:"timeToWarning"`
	TimeToCritical *float64  `json:"timeToCritical"`
	EventCount     int       `json:"eventCount"`
	Reasons        []string  `json:"reasons"`
	Timestamp      time.Time `json:"timestamp"`
	CreatedAt      time.Time `json:"createdAt"`
}

// LatestState represents the most recent projection for a machine
type LatestState struct {
	MachineID      string    `json:"machineId"`
	ReportID       string    `json:"reportId"`
	Status         string    `json:"status"`
	Health         float64   `json:"health"`
	MinHealth      float64   `json:"minHealth"`
	ElapsedHours   float64   `json:"elapsedHours"`
	TimeToWarning  *float64  `json:"timeToWarning"`
	TimeToCritical *float64  `json:"timeToCritical"`
	EventCount     int       `json:"eventCount"`
	Reasons        []string  `json:"reasons"`
	Timestamp      time.Time `json:"timestamp"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
