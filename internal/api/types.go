package api

import (
	"time"

	"github.com/nwcai/pm-rul/internal/chart"
	"github.com/nwcai/pm-rul/internal/projector"
	"github.com/nwcai/pm-rul/internal/storage"
)

// MachineListResponse represents the fleet with cached status
type MachineListResponse struct {
	Machines []MachineSummary `json:"machines"`
}

// MachineSummary contains summary information about a machine
type MachineSummary struct {
	ID         string     `json:"id"`
	Name       string     `json:"name,omitempty"`
	Type       string     `json:"type,omitempty"`
	LifeTime   float64    `json:"lifeTime"`
	CreateDate time.Time  `json:"createDate"`
	Status     string     `json:"status,omitempty"` // empty until first projection
	Health     *float64   `json:"health,omitempty"`
	UpdatedAt  *time.Time `json:"updatedAt,omitempty"`
}

// ProjectionResponse wraps a report with its cache metadata
type ProjectionResponse struct {
	Report *projector.Report `json:"report"`
	TTL    int               `json:"ttl"` // seconds
}

// AdHocResponse is returned by POST /v1/projections
type AdHocResponse struct {
	Report *projector.Report `json:"report"`
	Chart  chart.Chart       `json:"chart"`
}

// HistoryResponse represents a history query result
type HistoryResponse struct {
	Records []storage.HistoryRecord `json:"records"`
	Total   int                     `json:"total"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse represents readiness check response
type ReadyResponse struct {
	Ready          bool     `json:"ready"`
	MachinesLoaded int      `json:"machinesLoaded"`
	ReportsCached  int      `json:"reportsCached"`
	Reasons        []string `json:"reasons,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}
