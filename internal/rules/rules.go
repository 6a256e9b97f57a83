// Package rules holds the versioned data that drives a triage run: the tiered
// question catalog, the answer confidence table and the keyword rules that
// decide whether an answer is concerning or positive.
package rules

import "strings"

// DefaultVersion identifies the shipped rule set.
const DefaultVersion = "2025.1"

// Tier groups questions into phases.
type Tier string

const (
	// TierCritical questions run first and can suppress the health phase.
	TierCritical Tier = "critical"

	// TierPriority questions always run after the critical phase.
	TierPriority Tier = "priority"

	// TierHealth questions run last, only when nothing critical was found.
	TierHealth Tier = "health"
)

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierCritical, TierPriority, TierHealth:
		return true
	}
	return false
}

// Question is a single catalog entry.
type Question struct {
	Text string `yaml:"text"`
	Tier Tier   `yaml:"tier"`
}

// MatchKind selects how a confidence rule compares the answer to its words.
type MatchKind string

const (
	MatchExact    MatchKind = "exact"
	MatchContains MatchKind = "contains"
)

// ConfidenceRule maps answers to a confidence value.
type ConfidenceRule struct {
	Match      MatchKind `yaml:"match"`
	Words      []string  `yaml:"words"`
	Confidence float64   `yaml:"confidence"`
}

// ConcernRule flags an answer as concerning when the answer contains Answer
// and the question contains any of QuestionKeywords.
type ConcernRule struct {
	Answer           string   `yaml:"answer"`
	QuestionKeywords []string `yaml:"question_keywords"`
}

// Ruleset is the complete configuration consumed by the scorer and classifier.
// A Ruleset is read-only once built and safe for concurrent use.
type Ruleset struct {
	Version           string           `yaml:"version"`
	Questions         []Question       `yaml:"questions"`
	Confidence        []ConfidenceRule `yaml:"confidence"`
	DefaultConfidence float64          `yaml:"default_confidence"`
	ConcernFloor      float64          `yaml:"concern_floor"`
	Concern           []ConcernRule    `yaml:"concern"`
	Positive          []string         `yaml:"positive"`
}

// DefaultQuestions is the shipped question battery.
func DefaultQuestions() []Question {
	return []Question{
		{Text: "Are there any visible wounds or bleeding on the animal?", Tier: TierCritical},
		{Text: "Does the animal appear to be in severe distress or pain?", Tier: TierCritical},
		{Text: "Does the animal appear unconscious or unresponsive?", Tier: TierCritical},

		{Text: "Are there any swollen areas on the animal's body?", Tier: TierPriority},
		{Text: "Is there any discharge from the eyes, nose, or ears?", Tier: TierPriority},
		{Text: "Does the animal appear lethargic or very weak?", Tier: TierPriority},
		{Text: "Is the animal limping or favoring one leg?", Tier: TierPriority},

		{Text: "Are the animal's eyes clear and bright?", Tier: TierHealth},
		{Text: "Does the animal appear alert and responsive?", Tier: TierHealth},
		{Text: "Does the animal's coat appear healthy?", Tier: TierHealth},
	}
}

// Default returns the shipped rule set.
func Default() *Ruleset {
	return &Ruleset{
		Version:   DefaultVersion,
		Questions: DefaultQuestions(),
		Confidence: []ConfidenceRule{
			{Match: MatchExact, Words: []string{"yes", "no"}, Confidence: 0.85},
			{Match: MatchExact, Words: []string{"healthy", "normal", "clear", "good"}, Confidence: 0.80},
			{Match: MatchExact, Words: []string{"visible", "appears", "seems"}, Confidence: 0.70},
			{Match: MatchContains, Words: []string{"maybe", "possibly", "unclear", "unknown"}, Confidence: 0.30},
		},
		DefaultConfidence: 0.60,
		ConcernFloor:      0.4,
		Concern: []ConcernRule{
			{Answer: "yes", QuestionKeywords: []string{"wound", "bleeding", "distress", "swollen", "discharge"}},
			// "alert" also matches the health-tier alertness question; kept as shipped.
			{Answer: "no", QuestionKeywords: []string{"clear", "healthy", "alert"}},
		},
		Positive: []string{"yes", "healthy", "normal", "clear", "good", "bright"},
	}
}

// Tier returns the question texts of tier t in catalog order.
func (r *Ruleset) Tier(t Tier) []string {
	var out []string
	for _, q := range r.Questions {
		if q.Tier == t {
			out = append(out, q.Text)
		}
	}
	return out
}

// TierOf returns the tier of a catalog question.
func (r *Ruleset) TierOf(text string) (Tier, bool) {
	for _, q := range r.Questions {
		if q.Text == text {
			return q.Tier, true
		}
	}
	return "", false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(s, w) {
			return true
		}
	}
	return false
}
