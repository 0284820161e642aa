// Package machine holds the machine and event records supplied by the
// console's data sources and turns them into model input.
package machine

import (
	"errors"
	"time"
)

// ErrNotFound is returned by data sources for an unknown machine id
var ErrNotFound = errors.New("machine not found")

// Machine is the record a projection run is anchored to
type Machine struct {
	ID         string    `json:"id_machine"`
	Name       string    `json:"machine_name,omitempty"`
	Type       string    `json:"machine_type,omitempty"`
	CreateDate time.Time `json:"create_date"`
	LifeTime   float64   `json:"life_time"` // hours
}

// EventRecord is a recorded degradation event with an optional repair
type EventRecord struct {
	ID                  string     `json:"id,omitempty"`
	Timestamp           time.Time  `json:"timestamp"`
	Severity            int        `json:"severity"`
	RepairDate          *time.Time `json:"repair_date,omitempty"`
	RepairEffectiveness *float64   `json:"repair_effectiveness,omitempty"`
	EventName           string     `json:"event_name,omitempty"`
}

// Document is a machine definition file
type Document struct {
	APIVersion string   `yaml:"apiVersion"`
	Kind       string   `yaml:"kind"`
	Metadata   Metadata `yaml:"metadata"`
	Spec       Spec     `yaml:"spec"`
}

// Metadata identifies the machine
type Metadata struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name,omitempty"`
	Type        string `yaml:"type,omitempty"`
	Owner       string `yaml:"owner,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Spec holds the lifetime and event history
type Spec struct {
	LifeTime   float64     `yaml:"lifeTime"`
	CreateDate time.Time   `yaml:"createDate"`
	Events     []EventSpec `yaml:"events,omitempty"`
}

// EventSpec is one event entry of a machine document
type EventSpec struct {
	Name                string     `yaml:"name,omitempty"`
	Timestamp           time.Time  `yaml:"timestamp"`
	Severity            int        `yaml:"severity"`
	RepairDate          *time.Time `yaml:"repairDate,omitempty"`
	RepairEffectiveness *float64   `yaml:"repairEffectiveness,omitempty"`
}

// Machine converts the document into a machine record
func (d *Document) Machine() Machine {
	return Machine{
		ID:         d.Metadata.ID,
		Name:       d.Metadata.Name,
		Type:       d.Metadata.Type,
		CreateDate: d.Spec.CreateDate,
		LifeTime:   d.Spec.LifeTime,
	}
}

// EventRecords converts the document's events into event records
func (d *Document) EventRecords() []EventRecord {
	records := make([]EventRecord, 0, len(d.Spec.Events))
	for _, ev := range d.Spec.Events {
		records = append(records, EventRecord{
			Timestamp:           ev.Timestamp,
			Severity:            ev.Severity,
			RepairDate:          ev.RepairDate,
			RepairEffectiveness: ev.RepairEffectiveness,
			EventName:           ev.Name,
		})
	}
	return records
}

// DocumentWithFile pairs a parsed document with its source file and the
// untyped tree used for schema validation
type DocumentWithFile struct {
	Document *Document
	File     string
	Raw      any
}

// ValidationError represents a validation error for a specific file
type ValidationError struct {
	File    string
	Path    string
	Message string
}

// Error implements the error interface
func (e ValidationError) Error() string {
	if e.Path != "" {
		return e.File + ": " + e.Path + ": " + e.Message
	}
	return e.File + ": " + e.Message
}
