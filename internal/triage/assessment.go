package triage

import "fmt"

// Synthesize derives the overall assessment from the findings. It is a pure
// function of its inputs and is recomputed for every result.
func Synthesize(critical, priority, health []Finding) Assessment {
	a := Assessment{
		CriticalCount: countWhere(critical, func(f Finding) bool { return f.Concerning }),
		PriorityCount: countWhere(priority, func(f Finding) bool { return f.Concerning }),
		PositiveCount: countWhere(health, func(f Finding) bool { return f.Positive }),
	}

	switch {
	case a.CriticalCount > 0:
		a.UrgencyLevel = UrgencyCritical
		a.Condition = "Critical veterinary concerns detected"
		a.Recommendations = []string{"Seek immediate veterinary attention"}
	case a.PriorityCount > 1:
		a.UrgencyLevel = UrgencyHigh
		a.Condition = "Multiple health concerns detected"
		a.Recommendations = []string{"Schedule veterinary consultation within 24 hours"}
	case a.PriorityCount == 1:
		a.UrgencyLevel = UrgencyMedium
		a.Condition = "Health concern detected"
		a.Recommendations = []string{"Schedule veterinary consultation within 48 hours"}
	default:
		a.UrgencyLevel = UrgencyLow
		a.Condition = "Animal appears healthy"
		a.Recommendations = []string{"Continue regular care"}
	}

	a.Confidence = 0.7
	if a.CriticalCount > 0 || a.PriorityCount > 0 {
		a.Confidence = 0.8
	}
	a.Summary = fmt.Sprintf("Critical: %d, Priority: %d, Positive: %d", a.CriticalCount, a.PriorityCount, a.PositiveCount)
	return a
}

func countWhere(fs []Finding, pred func(Finding) bool) int {
	n := 0
	for _, f := range fs {
		if pred(f) {
			n++
		}
	}
	return n
}
