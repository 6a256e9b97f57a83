package rules

// IsConcerning reports whether an answer to a critical or priority question
// indicates a problem. Answers below ConcernFloor never count.
func (r *Ruleset) IsConcerning(question, answer string, confidence float64) bool {
	if confidence < r.ConcernFloor {
		return false
	}

	a := normalize(answer)
	q := normalize(question)
	for _, rule := range r.Concern {
		if rule.Answer == "" {
			continue
		}
		if containsAny(a, []string{rule.Answer}) && containsAny(q, rule.QuestionKeywords) {
			return true
		}
	}
	return false
}

// IsPositive reports whether an answer to a health question is reassuring.
func (r *Ruleset) IsPositive(answer string) bool {
	return containsAny(normalize(answer), r.Positive)
}
