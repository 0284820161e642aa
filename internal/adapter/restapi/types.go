package restapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/nwcai/pm-rul/internal/machine"
)

// flexString accepts a JSON string or number. Machine ids come back as
// integers from some deployments and as strings from others.
type flexString string

// UnmarshalJSON implements json.Unmarshaler
func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

// flexFloat accepts a JSON number or a numeric string, as returned for
// DECIMAL columns.
type flexFloat float64

// UnmarshalJSON implements json.Unmarshaler
func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("number %q: %w", s, err)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// MachineRecord is a row of the machine table
type MachineRecord struct {
	IDMachine   flexString `json:"id_machine"`
	MachineName string     `json:"machine_name"`
	MachineType string     `json:"machine_type"`
	CreateDate  time.Time  `json:"create_date"`
	LifeTime    flexFloat  `json:"life_time"`
}

// EventRow is a row of the machine event table
type EventRow struct {
	ID                  flexString `json:"id"`
	Timestamp           time.Time  `json:"timestamp"`
	Severity            flexFloat  `json:"severity"`
	RepairDate          *time.Time `json:"repair_date"`
	RepairEffectiveness *flexFloat `json:"repair_effectiveness"`
	EventName           string     `json:"event_name"`
}

func (r MachineRecord) toMachine() machine.Machine {
	return machine.Machine{
		ID:         string(r.IDMachine),
		Name:       r.MachineName,
		Type:       r.MachineType,
		CreateDate: r.CreateDate,
		LifeTime:   float64(r.LifeTime),
	}
}

func (r EventRow) toRecord() machine.EventRecord {
	rec := machine.EventRecord{
		ID:         string(r.ID),
		Timestamp:  r.Timestamp,
		Severity:   int(math.Round(float64(r.Severity))),
		RepairDate: r.RepairDate,
		EventName:  r.EventName,
	}
	if r.RepairEffectiveness != nil {
		eff := float64(*r.RepairEffectiveness)
		rec.RepairEffectiveness = &eff
	}
	return rec
}
