package rules

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// file mirrors Ruleset with optional scalars so absent keys can fall back to
// the defaults.
type file struct {
	Version           string           `yaml:"version"`
	Questions         []Question       `yaml:"questions"`
	Confidence        []ConfidenceRule `yaml:"confidence"`
	DefaultConfidence *float64         `yaml:"default_confidence"`
	ConcernFloor      *float64         `yaml:"concern_floor"`
	Concern           []ConcernRule    `yaml:"concern"`
	Positive          []string         `yaml:"positive"`
}

// Load reads a YAML rule file. Sections missing from the file keep their
// default values.
func Load(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	rs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rules %s: %w", path, err)
	}
	return rs, nil
}

// Parse decodes and validates a YAML rule document.
func Parse(data []byte) (*Ruleset, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	rs := Default()
	if f.Version != "" {
		rs.Version = f.Version
	}
	if len(f.Questions) > 0 {
		rs.Questions = f.Questions
	}
	if len(f.Confidence) > 0 {
		rs.Confidence = f.Confidence
	}
	if f.DefaultConfidence != nil {
		rs.DefaultConfidence = *f.DefaultConfidence
	}
	if f.ConcernFloor != nil {
		rs.ConcernFloor = *f.ConcernFloor
	}
	if len(f.Concern) > 0 {
		rs.Concern = f.Concern
	}
	if len(f.Positive) > 0 {
		rs.Positive = f.Positive
	}

	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

// Validate checks the rule set for structural errors.
func (r *Ruleset) Validate() error {
	var errs []error

	if r.Version == "" {
		errs = append(errs, errors.New("version is required"))
	}

	seen := make(map[string]bool, len(r.Questions))
	for i, q := range r.Questions {
		if q.Text == "" {
			errs = append(errs, fmt.Errorf("question %d: empty text", i))
			continue
		}
		if !q.Tier.Valid() {
			errs = append(errs, fmt.Errorf("question %q: unknown tier %q", q.Text, q.Tier))
		}
		if seen[q.Text] {
			errs = append(errs, fmt.Errorf("question %q: duplicate", q.Text))
		}
		seen[q.Text] = true
	}
	for _, t := range []Tier{TierCritical, TierPriority, TierHealth} {
		if len(r.Tier(t)) == 0 {
			errs = append(errs, fmt.Errorf("tier %s has no questions", t))
		}
	}

	for i, c := range r.Confidence {
		if c.Match != MatchExact && c.Match != MatchContains {
			errs = append(errs, fmt.Errorf("confidence rule %d: unknown match %q", i, c.Match))
		}
		if c.Confidence < 0 || c.Confidence > 1 {
			errs = append(errs, fmt.Errorf("confidence rule %d: %v out of range 0..1", i, c.Confidence))
		}
	}
	if r.DefaultConfidence < 0 || r.DefaultConfidence > 1 {
		errs = append(errs, fmt.Errorf("default_confidence %v out of range 0..1", r.DefaultConfidence))
	}
	if r.ConcernFloor < 0 || r.ConcernFloor > 1 {
		errs = append(errs, fmt.Errorf("concern_floor %v out of range 0..1", r.ConcernFloor))
	}
	for i, c := range r.Concern {
		if c.Answer == "" || len(c.QuestionKeywords) == 0 {
			errs = append(errs, fmt.Errorf("concern rule %d: answer and question_keywords are required", i))
		}
	}

	return errors.Join(errs...)
}
