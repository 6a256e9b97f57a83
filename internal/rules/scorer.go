package rules

import "slices"

// Score maps a raw answer to a confidence in [0,1]. Rules are evaluated in
// order and the first match wins; anything unmatched, including the empty
// string, gets DefaultConfidence.
func (r *Ruleset) Score(answer string) float64 {
	a := normalize(answer)
	for _, rule := range r.Confidence {
		switch rule.Match {
		case MatchExact:
			if slices.Contains(rule.Words, a) {
				return clamp(rule.Confidence)
			}
		case MatchContains:
			if containsAny(a, rule.Words) {
				return clamp(rule.Confidence)
			}
		}
	}
	return clamp(r.DefaultConfidence)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
