// Package chart reshapes a projection into the structure the console's
// chart.js line chart consumes. It performs no computation of its own.
package chart

import (
	"fmt"
	"strconv"

	"github.com/nwcai/pm-rul/internal/policy"
	"github.com/nwcai/pm-rul/internal/rul"
)

// Dataset labels
const (
	LabelBaseline = "Base RUL (%)"
	LabelRUL      = "RUL (%)"
	LabelEvents   = "Events"
	LabelRepairs  = "Repairs"
	LabelCurrent  = "Current Position"
)

// Point is a scatter point
type Point struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Name string  `json:"name,omitempty"`
}

// Dataset is one layer of the chart. Line layers carry Values aligned with
// Chart.Labels; scatter layers carry Points.
type Dataset struct {
	Label           string    `json:"label"`
	Type            string    `json:"type"`
	Values          []float64 `json:"values,omitempty"`
	Points          []Point   `json:"points,omitempty"`
	BorderColor     string    `json:"borderColor"`
	BackgroundColor string    `json:"backgroundColor"`
	BorderWidth     int       `json:"borderWidth,omitempty"`
	PointRadius     int       `json:"pointRadius"`
	Tension         float64   `json:"tension,omitempty"`
	Order           int       `json:"order"`
}

// Annotation is a fixed horizontal line
type Annotation struct {
	Type        string  `json:"type"`
	YMin        float64 `json:"yMin"`
	YMax        float64 `json:"yMax"`
	BorderColor string  `json:"borderColor"`
	BorderWidth int     `json:"borderWidth"`
	Label       string  `json:"label"`
}

// Axis describes an axis title and range
type Axis struct {
	Title string   `json:"title"`
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`
}

// Chart is the chart-ready structure
type Chart struct {
	Labels      []string              `json:"labels"`
	Datasets    []Dataset             `json:"datasets"`
	Annotations map[string]Annotation `json:"annotations"`
	XAxis       Axis                  `json:"xAxis"`
	YAxis       Axis                  `json:"yAxis"`
}

// Input is everything the adapter reshapes
type Input struct {
	Projection *rul.Projection
	EventCount int
	Current    *rul.HealthSample
	Thresholds policy.Thresholds
}

// Build lays out the baseline, the disturbed series and its markers, the
// current position, and the two threshold lines.
func Build(in Input) Chart {
	p := in.Projection
	decimals := max(1, rul.Decimals(p.Step))

	c := Chart{
		Labels:   make([]string, len(p.Baseline)),
		Datasets: []Dataset{},
		Annotations: map[string]Annotation{
			"warningThreshold":  threshold(in.Thresholds.Warning, "orange", "Warning Threshold"),
			"criticalThreshold": threshold(in.Thresholds.Critical, "red", "Critical Threshold"),
		},
		XAxis: Axis{Title: "Time (Hours)"},
		YAxis: Axis{Title: "RUL (%)", Min: ptr(0), Max: ptr(rul.MaxHealth)},
	}

	baseline := make([]float64, len(p.Baseline))
	for i, s := range p.Baseline {
		c.Labels[i] = strconv.FormatFloat(s.Time, 'f', decimals, 64)
		baseline[i] = s.Health
	}

	c.Datasets = append(c.Datasets, Dataset{
		Label:           LabelBaseline,
		Type:            "line",
		Values:          baseline,
		BorderColor:     "#cccccc",
		BackgroundColor: "rgba(200, 200, 200, 0.5)",
		BorderWidth:     1,
		Tension:         0.4,
		Order:           1,
	})

	if in.EventCount > 0 {
		series := make([]float64, len(p.Series))
		for i, s := range p.Series {
			series[i] = s.Health
		}

		c.Datasets = append(c.Datasets,
			Dataset{
				Label:           LabelRUL,
				Type:            "line",
				Values:          series,
				BorderColor:     "#8884d8",
				BackgroundColor: "rgba(136, 132, 216, 0.5)",
				BorderWidth:     1,
				Tension:         0.4,
				Order:           2,
			},
			scatter(LabelEvents, "red", 5, 3, markerPoints(p.EventMarkers)),
			scatter(LabelRepairs, "green", 5, 4, markerPoints(p.RepairMarkers)),
		)
	}

	if in.Current != nil {
		c.Datasets = append(c.Datasets, scatter(LabelCurrent, "blue", 7, 5, []Point{{X: in.Current.Time, Y: in.Current.Health}}))
	}

	return c
}

func markerPoints(markers []rul.Marker) []Point {
	points := make([]Point, 0, len(markers))
	for _, m := range markers {
		points = append(points, Point{X: m.Time, Y: m.Health, Name: m.Label})
	}
	return points
}

func scatter(label, color string, radius, order int, points []Point) Dataset {
	return Dataset{
		Label:           label,
		Type:            "scatter",
		Points:          points,
		BorderColor:     color,
		BackgroundColor: color,
		PointRadius:     radius,
		Order:           order,
	}
}

func threshold(level float64, color, name string) Annotation {
	return Annotation{
		Type:        "line",
		YMin:        level,
		YMax:        level,
		BorderColor: color,
		BorderWidth: 2,
		Label:       fmt.Sprintf("%s (%s%%)", name, strconv.FormatFloat(level, 'f', -1, 64)),
	}
}

func ptr(f float64) *float64 { return &f }
