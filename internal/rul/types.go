package rul

// Event is a degradation event expressed in hours since machine creation.
type Event struct {
	Name                string
	Time                float64
	Severity            int
	RepairTime          *float64
	RepairEffectiveness float64
}

// Repaired reports whether the event has a repair attached
func (e Event) Repaired() bool {
	return e.RepairTime != nil
}

// activeAt reports whether the event contributes degradation at time t
func (e Event) activeAt(t float64) bool {
	if e.Time > t {
		return false
	}
	return !e.Repaired() || *e.RepairTime > t
}

// HealthSample is one point of a health curve
type HealthSample struct {
	Time   float64 `json:"time"`
	Health float64 `json:"health"`
}

// Marker annotates a sample of the projected series
type Marker struct {
	Time   float64 `json:"time"`
	Health float64 `json:"health"`
	Label  string  `json:"label"`
}

// Projection is the output of a single model run
type Projection struct {
	Lifetime      float64        `json:"lifetime"`
	Step          float64        `json:"step"`
	Series        []HealthSample `json:"series"`
	Baseline      []HealthSample `json:"baseline"`
	EventMarkers  []Marker       `json:"eventMarkers"`
	RepairMarkers []Marker       `json:"repairMarkers"`
}

// Horizon returns the time of the last sample
func (p *Projection) Horizon() float64 {
	if len(p.Series) == 0 {
		return 0
	}
	return p.Series[len(p.Series)-1].Time
}

// MinHealth returns the lowest health reached by the series
func (p *Projection) MinHealth() float64 {
	lowest := MaxHealth
	for _, s := range p.Series {
		if s.Health < lowest {
			lowest = s.Health
		}
	}
	return lowest
}
