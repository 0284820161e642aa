package scheduler

import (
	"sync"
	"time"

	"github.com/nwcai/pm-rul/internal/projector"
)

// ReportState represents the cached report for a machine
type ReportState struct {
	Report    *projector.Report
	UpdatedAt time.Time
	TTL       time.Duration
}

// IsStale returns true if the cached state is older than its TTL
func (s *ReportState) IsStale(now time.Time) bool {
	return now.Sub(s.UpdatedAt) > s.TTL
}

// ReportCache is a thread-safe cache of the latest report per machine
type ReportCache struct {
	mu     sync.RWMutex
	states map[string]*ReportState
}

// NewReportCache creates a new report cache
func NewReportCache() *ReportCache {
	return &ReportCache{
		states: make(map[string]*ReportState),
	}
}

// Get retrieves the cached state for a machine
func (c *ReportCache) Get(machineID string) (*ReportState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, exists := c.states[machineID]
	return state, exists
}

// Set stores the state for a machine
func (c *ReportCache) Set(machineID string, state *ReportState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.states[machineID] = state
}

// GetAll returns a snapshot of all cached states
func (c *ReportCache) GetAll() map[string]*ReportState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make(map[string]*ReportState, len(c.states))
	for k, v := range c.states {
		snapshot[k] = v
	}

	return snapshot
}

// Delete removes a cached state
func (c *ReportCache) Delete(machineID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.states, machineID)
}

// Retain drops every state whose machine id is not in keep
func (c *ReportCache) Retain(keep map[string]struct{}) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id := range c.states {
		if _, ok := keep[id]; !ok {
			delete(c.states, id)
			removed++
		}
	}
	return removed
}

// Size returns the number of cached states
func (c *ReportCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.states)
}
