package rul

// severityFactors maps severity 0..10 to the decay-rate multiplier.
var severityFactors = [...]float64{
	1.00, // 0
	1.05,
	1.10,
	1.20,
	1.30,
	1.50,
	1.70,
	2.00,
	2.50,
	3.00,
	5.00, // 10 and above
}

// Severity bounds accepted for recorded events
const (
	MinSeverity = 1
	MaxSeverity = 10
)

// SeverityFactor returns the multiplier applied to the decay-rate constant
// while an event of the given severity is active. Values above 10 share the
// factor of 10; values at or below 0 have no effect.
func SeverityFactor(severity int) float64 {
	if severity <= 0 {
		return severityFactors[0]
	}
	if severity >= len(severityFactors)-1 {
		return severityFactors[len(severityFactors)-1]
	}
	return severityFactors[severity]
}
