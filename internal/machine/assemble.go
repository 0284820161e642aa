package machine

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/nwcai/pm-rul/internal/rul"
	"golang.org/x/text/unicode/norm"
)

// Defaults applied to incomplete event records
const (
	DefaultRepairEffectiveness = 0.5
	DefaultEventName           = "Unnamed Event"
)

// Issue records a correction made while assembling model input
type Issue struct {
	Index   int    `json:"index"`
	Event   string `json:"event"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("event %d (%s): %s", i.Index, i.Event, i.Message)
}

// Assemble anchors event records to the machine's creation date and
// converts them into model events. Records the model would reject are
// repaired or dropped, and every such change is reported as an Issue.
func Assemble(m Machine, records []EventRecord) ([]rul.Event, []Issue) {
	events := make([]rul.Event, 0, len(records))
	var issues []Issue

	for i, rec := range records {
		name := EventName(rec.EventName)
		report := func(format string, args ...any) {
			issues = append(issues, Issue{Index: i, Event: name, Message: fmt.Sprintf(format, args...)})
		}

		at := HoursSince(m.CreateDate, rec.Timestamp)
		if at < 0 {
			report("timestamp %s precedes machine creation, dropped", rec.Timestamp.Format(time.RFC3339))
			continue
		}

		ev := rul.Event{
			Name:                name,
			Time:                at,
			Severity:            rec.Severity,
			RepairEffectiveness: DefaultRepairEffectiveness,
		}

		if ev.Severity < rul.MinSeverity || ev.Severity > rul.MaxSeverity {
			clamped := min(max(ev.Severity, rul.MinSeverity), rul.MaxSeverity)
			report("severity %d clamped to %d", ev.Severity, clamped)
			ev.Severity = clamped
		}

		if rec.RepairEffectiveness != nil {
			eff := *rec.RepairEffectiveness
			switch {
			case math.IsNaN(eff):
				report("repair effectiveness is not a number, using %.1f", DefaultRepairEffectiveness)
			case eff < 0 || eff > 1:
				ev.RepairEffectiveness = math.Max(0, math.Min(1, eff))
				report("repair effectiveness %v clamped to %v", eff, ev.RepairEffectiveness)
			default:
				ev.RepairEffectiveness = eff
			}
		}

		if rec.RepairDate != nil {
			repairAt := HoursSince(m.CreateDate, *rec.RepairDate)
			if repairAt <= at {
				report("repair at %.2fh does not follow event at %.2fh, repair ignored", repairAt, at)
			} else {
				ev.RepairTime = &repairAt
			}
		}

		events = append(events, ev)
	}

	return events, issues
}

// HoursSince returns the offset of t from origin in hours
func HoursSince(origin, t time.Time) float64 {
	return t.Sub(origin).Hours()
}

// EventName trims and NFC-normalises a display name, substituting the
// default for blank names.
func EventName(name string) string {
	name = strings.TrimSpace(norm.NFC.String(name))
	if name == "" {
		return DefaultEventName
	}
	return name
}
