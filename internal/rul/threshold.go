package rul

// TimeToThreshold returns the time of the first sample whose health is at or
// below threshold. The boolean is false when health never reaches it.
func TimeToThreshold(series []HealthSample, threshold float64) (float64, bool) {
	for _, s := range series {
		if s.Health <= threshold {
			return s.Time, true
		}
	}
	return 0, false
}

// CrossingTime linearly interpolates the moment the curve reaches threshold
// between the last sample above it and the first sample at or below it.
func CrossingTime(series []HealthSample, threshold float64) (float64, bool) {
	for i, s := range series {
		if s.Health > threshold {
			continue
		}
		if i == 0 {
			return s.Time, true
		}
		prev := series[i-1]
		drop := prev.Health - s.Health
		if drop <= 0 {
			return s.Time, true
		}
		frac := (prev.Health - threshold) / drop
		return prev.Time + frac*(s.Time-prev.Time), true
	}
	return 0, false
}

// CurrentPosition returns the first sample at or after elapsedHours. It is
// absent once elapsedHours is past the end of the series.
func CurrentPosition(series []HealthSample, elapsedHours float64) (HealthSample, bool) {
	for _, s := range series {
		if s.Time >= elapsedHours {
			return s, true
		}
	}
	return HealthSample{}, false
}
