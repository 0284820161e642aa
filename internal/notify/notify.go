// Package notify publishes machine status transitions.
package notify

import (
	"context"
	"time"

	"github.com/nwcai/pm-rul/internal/policy"
)

// StatusChange is emitted when a machine's assessed status changes
type StatusChange struct {
	MachineID string        `json:"machineId"`
	Previous  policy.Status `json:"previous"`
	Current   policy.Status `json:"current"`
	Health    float64       `json:"health"`
	ReportID  string        `json:"reportId"`
	At        time.Time     `json:"at"`
}

// Publisher delivers status changes to interested parties
type Publisher interface {
	Publish(ctx context.Context, change StatusChange) error
	Close() error
}

// Nop discards every status change
type Nop struct{}

func (Nop) Publish(context.Context, StatusChange) error { return nil }
func (Nop) Close() error                                { return nil }
