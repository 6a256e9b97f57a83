package triage

import (
	"testing"

	"github.com/linnemanlabs/vettriage/internal/rules"
)

func concerning(n int) []Finding {
	fs := make([]Finding, 0, n+1)
	for range n {
		fs = append(fs, Finding{Tier: rules.TierPriority, Answer: "yes", Confidence: 0.85, Concerning: true})
	}
	// a non-concerning finding must not count
	return append(fs, Finding{Tier: rules.TierPriority, Answer: "no", Confidence: 0.85})
}

func positive(n int) []Finding {
	fs := make([]Finding, 0, n)
	for range n {
		fs = append(fs, Finding{Tier: rules.TierHealth, Answer: "yes", Confidence: 0.85, Positive: true})
	}
	return fs
}

func TestSynthesize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		critical       []Finding
		priority       []Finding
		health         []Finding
		wantUrgency    Urgency
		wantConfidence float64
		wantCondition  string
		wantRec        string
		wantSummary    string
	}{
		{
			name:           "critical wins over priority",
			critical:       concerning(1),
			priority:       concerning(3),
			wantUrgency:    UrgencyCritical,
			wantConfidence: 0.8,
			wantCondition:  "Critical veterinary concerns detected",
			wantRec:        "Seek immediate veterinary attention",
			wantSummary:    "Critical: 1, Priority: 3, Positive: 0",
		},
		{
			name:           "two priority concerns",
			priority:       concerning(2),
			health:         positive(3),
			wantUrgency:    UrgencyHigh,
			wantConfidence: 0.8,
			wantCondition:  "Multiple health concerns detected",
			wantRec:        "Schedule veterinary consultation within 24 hours",
			wantSummary:    "Critical: 0, Priority: 2, Positive: 3",
		},
		{
			name:           "one priority concern",
			priority:       concerning(1),
			health:         positive(1),
			wantUrgency:    UrgencyMedium,
			wantConfidence: 0.8,
			wantCondition:  "Health concern detected",
			wantRec:        "Schedule veterinary consultation within 48 hours",
			wantSummary:    "Critical: 0, Priority: 1, Positive: 1",
		},
		{
			name:           "nothing concerning",
			critical:       concerning(0),
			priority:       concerning(0),
			health:         positive(2),
			wantUrgency:    UrgencyLow,
			wantConfidence: 0.7,
			wantCondition:  "Animal appears healthy",
			wantRec:        "Continue regular care",
			wantSummary:    "Critical: 0, Priority: 0, Positive: 2",
		},
		{
			name:           "empty",
			wantUrgency:    UrgencyLow,
			wantConfidence: 0.7,
			wantCondition:  "Animal appears healthy",
			wantRec:        "Continue regular care",
			wantSummary:    "Critical: 0, Priority: 0, Positive: 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := Synthesize(tt.critical, tt.priority, tt.health)
			if a.UrgencyLevel != tt.wantUrgency {
				t.Errorf("urgency = %q, want %q", a.UrgencyLevel, tt.wantUrgency)
			}
			if a.Confidence != tt.wantConfidence {
				t.Errorf("confidence = %v, want %v", a.Confidence, tt.wantConfidence)
			}
			if a.Condition != tt.wantCondition {
				t.Errorf("condition = %q, want %q", a.Condition, tt.wantCondition)
			}
			if len(a.Recommendations) != 1 || a.Recommendations[0] != tt.wantRec {
				t.Errorf("recommendations = %v, want [%s]", a.Recommendations, tt.wantRec)
			}
			if a.Summary != tt.wantSummary {
				t.Errorf("summary = %q, want %q", a.Summary, tt.wantSummary)
			}
		})
	}
}

func TestUrgency_Notable(t *testing.T) {
	t.Parallel()

	for u, want := range map[Urgency]bool{
		UrgencyCritical: true,
		UrgencyHigh:     true,
		UrgencyMedium:   false,
		UrgencyLow:      false,
	} {
		if got := u.Notable(); got != want {
			t.Errorf("%s.Notable() = %v, want %v", u, got, want)
		}
	}
}
