package triage

import (
	"encoding/json"
	"time"

	"github.com/linnemanlabs/vettriage/internal/rules"
	"github.com/linnemanlabs/vettriage/internal/vqa"
)

// Urgency is the overall triage level of an analysis.
type Urgency string

const (
	UrgencyCritical Urgency = "CRITICAL"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyMedium   Urgency = "MEDIUM"
	UrgencyLow      Urgency = "LOW"
)

// Notable reports whether the urgency warrants notifying someone.
func (u Urgency) Notable() bool {
	return u == UrgencyCritical || u == UrgencyHigh
}

// Finding is the scored answer to one catalog question.
type Finding struct {
	Tier       rules.Tier
	Question   string
	Answer     string
	Confidence float64

	// Concerning is only derived for critical and priority questions.
	Concerning bool
	// Positive is only derived for health questions.
	Positive bool
}

type concernJSON struct {
	Question     string  `json:"question"`
	Answer       string  `json:"answer"`
	Confidence   float64 `json:"confidence"`
	IsConcerning bool    `json:"is_concerning"`
}

type healthJSON struct {
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
	IsPositive bool    `json:"is_positive"`
}

// MarshalJSON emits is_positive for health findings and is_concerning for
// everything else.
func (f Finding) MarshalJSON() ([]byte, error) {
	if f.Tier == rules.TierHealth {
		return json.Marshal(healthJSON{f.Question, f.Answer, f.Confidence, f.Positive})
	}
	return json.Marshal(concernJSON{f.Question, f.Answer, f.Confidence, f.Concerning})
}

// Assessment is the overall verdict derived from the three finding lists.
type Assessment struct {
	UrgencyLevel    Urgency  `json:"urgency_level"`
	Condition       string   `json:"condition"`
	Confidence      float64  `json:"confidence"`
	Recommendations []string `json:"recommendations"`
	Summary         string   `json:"summary"`

	CriticalCount int `json:"-"`
	PriorityCount int `json:"-"`
	PositiveCount int `json:"-"`
}

// Result is the outcome of one analysis. It is built per request and handed
// to the caller; only a RunRecord summary is stored.
type Result struct {
	CriticalFindings  []Finding  `json:"critical_findings"`
	PriorityFindings  []Finding  `json:"priority_findings"`
	HealthFindings    []Finding  `json:"health_findings"`
	OverallAssessment Assessment `json:"overall_assessment"`
	ProcessingTime    float64    `json:"processing_time"`
	Error             string     `json:"error,omitempty"`
	Truncated         bool       `json:"truncated,omitempty"`
	ModelUsed         string     `json:"model_used,omitempty"`
	ExecutionMode     vqa.Mode   `json:"execution_mode,omitempty"`

	ImageFingerprint string `json:"-"`
}

// QuickAnswer is the reply to a single ad hoc question.
type QuickAnswer struct {
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
}

// RunRecord is the audit summary written to the run log for every analysis.
type RunRecord struct {
	ID               string    `json:"id"`
	ImageFingerprint string    `json:"image_fingerprint"`
	Urgency          Urgency   `json:"urgency"`
	Confidence       float64   `json:"confidence"`
	CriticalCount    int       `json:"critical_count"`
	PriorityCount    int       `json:"priority_count"`
	PositiveCount    int       `json:"positive_count"`
	Summary          string    `json:"summary"`
	Truncated        bool      `json:"truncated"`
	Error            string    `json:"error,omitempty"`
	ProcessingTime   float64   `json:"processing_time"`
	ExecutionMode    string    `json:"execution_mode"`
	ModelUsed        string    `json:"model_used"`
	CreatedAt        time.Time `json:"created_at"`
}
