package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestScore(t *testing.T) {
	t.Parallel()

	rs := Default()

	tests := []struct {
		answer string
		want   float64
	}{
		{"yes", 0.85},
		{"YES", 0.85},
		{"  No ", 0.85},
		{"healthy", 0.80},
		{"Good", 0.80},
		{"visible", 0.70},
		{"seems", 0.70},
		{"possibly", 0.30},
		{"maybe yes", 0.30},
		{"unknown", 0.30},
		{"it is unclear", 0.30},
		{"", 0.60},
		{"a brown dog", 0.60},
		{"yes it is", 0.60},
	}

	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			t.Parallel()
			if got := rs.Score(tt.answer); got != tt.want {
				t.Errorf("Score(%q) = %v, want %v", tt.answer, got, tt.want)
			}
		})
	}
}

func TestScore_Deterministic(t *testing.T) {
	t.Parallel()

	rs := Default()
	if rs.Score("YES") != rs.Score("yes") {
		t.Error("Score must be case-insensitive")
	}
	for range 100 {
		if got := rs.Score("possibly"); got != 0.30 {
			t.Fatalf("Score(possibly) = %v, want 0.30", got)
		}
	}
}

func TestScore_ClampsOutOfRange(t *testing.T) {
	t.Parallel()

	rs := Default()
	rs.Confidence = []ConfidenceRule{{Match: MatchExact, Words: []string{"yes"}, Confidence: 1.7}}
	rs.DefaultConfidence = -2

	if got := rs.Score("yes"); got != 1 {
		t.Errorf("Score(yes) = %v, want 1", got)
	}
	if got := rs.Score("other"); got != 0 {
		t.Errorf("Score(other) = %v, want 0", got)
	}
}

func TestIsConcerning(t *testing.T) {
	t.Parallel()

	rs := Default()

	tests := []struct {
		name       string
		question   string
		answer     string
		confidence float64
		want       bool
	}{
		{"yes to wound question", "Are there any visible wounds?", "yes", 0.85, true},
		{"below confidence floor", "Are there any visible wounds?", "yes", 0.3, false},
		{"at confidence floor", "Are there any visible wounds?", "yes", 0.4, true},
		{"no to clear question", "Are the animal's eyes clear?", "no", 0.85, true},
		{"no to wound question", "Are there any visible wounds?", "no", 0.85, false},
		{"yes to limping question", "Is the animal limping or favoring one leg?", "yes", 0.85, false},
		{"case insensitive", "Is there BLEEDING?", "Yes", 0.85, true},
		{"no to alert question", "Does the animal appear alert and responsive?", "no", 0.85, true},
		{"unknown sentinel", "Are there any visible wounds?", "unknown", 0.0, false},
		{"empty answer", "Are there any visible wounds?", "", 0.6, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := rs.IsConcerning(tt.question, tt.answer, tt.confidence); got != tt.want {
				t.Errorf("IsConcerning(%q, %q, %v) = %v, want %v", tt.question, tt.answer, tt.confidence, got, tt.want)
			}
		})
	}
}

func TestIsPositive(t *testing.T) {
	t.Parallel()

	rs := Default()

	tests := []struct {
		answer string
		want   bool
	}{
		{"yes", true},
		{"Bright", true},
		{"looks healthy", true},
		{"no", false},
		{"dull", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := rs.IsPositive(tt.answer); got != tt.want {
			t.Errorf("IsPositive(%q) = %v, want %v", tt.answer, got, tt.want)
		}
	}
}

func TestTier_PreservesOrder(t *testing.T) {
	t.Parallel()

	rs := Default()

	if n := len(rs.Tier(TierCritical)); n != 3 {
		t.Errorf("critical questions = %d, want 3", n)
	}
	if n := len(rs.Tier(TierPriority)); n != 4 {
		t.Errorf("priority questions = %d, want 4", n)
	}
	health := rs.Tier(TierHealth)
	if len(health) != 3 {
		t.Fatalf("health questions = %d, want 3", len(health))
	}
	if health[0] != "Are the animal's eyes clear and bright?" {
		t.Errorf("health[0] = %q", health[0])
	}

	tier, ok := rs.TierOf("Is the animal limping or favoring one leg?")
	if !ok || tier != TierPriority {
		t.Errorf("TierOf = %q, %v; want priority, true", tier, ok)
	}
	if _, ok := rs.TierOf("not in catalog"); ok {
		t.Error("TierOf should miss unknown questions")
	}
}

func TestDefault_Validates(t *testing.T) {
	t.Parallel()

	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestParse_PartialOverride(t *testing.T) {
	t.Parallel()

	doc := `
version: "2025.2-test"
concern_floor: 0.5
positive: ["fine"]
`
	rs, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rs.Version != "2025.2-test" {
		t.Errorf("Version = %q", rs.Version)
	}
	if rs.ConcernFloor != 0.5 {
		t.Errorf("ConcernFloor = %v, want 0.5", rs.ConcernFloor)
	}
	if rs.DefaultConfidence != 0.60 {
		t.Errorf("DefaultConfidence = %v, want default 0.60", rs.DefaultConfidence)
	}
	if len(rs.Questions) != len(DefaultQuestions()) {
		t.Errorf("Questions = %d, want defaults", len(rs.Questions))
	}
	if !rs.IsPositive("fine") || rs.IsPositive("yes") {
		t.Error("positive words not overridden")
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "bad yaml",
			doc:     "questions: [",
			wantErr: "decode",
		},
		{
			name: "unknown tier",
			doc: `
questions:
  - {text: "a?", tier: critical}
  - {text: "b?", tier: priority}
  - {text: "c?", tier: health}
  - {text: "d?", tier: urgent}
`,
			wantErr: "unknown tier",
		},
		{
			name: "duplicate question",
			doc: `
questions:
  - {text: "a?", tier: critical}
  - {text: "a?", tier: priority}
  - {text: "c?", tier: health}
`,
			wantErr: "duplicate",
		},
		{
			name: "empty tier",
			doc: `
questions:
  - {text: "a?", tier: critical}
  - {text: "c?", tier: health}
`,
			wantErr: "tier priority has no questions",
		},
		{
			name: "confidence out of range",
			doc: `
confidence:
  - {match: exact, words: ["yes"], confidence: 1.5}
`,
			wantErr: "out of range",
		},
		{
			name:    "unknown match",
			doc:     `confidence: [{match: regex, words: ["x"], confidence: 0.5}]`,
			wantErr: "unknown match",
		},
		{
			name:    "concern rule without keywords",
			doc:     `concern: [{answer: "yes"}]`,
			wantErr: "question_keywords",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("version: file-v1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	rs, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rs.Version != "file-v1" {
		t.Errorf("Version = %q, want file-v1", rs.Version)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
