package analyzer

import "testing"

func TestVerdictClassifierBoundaries(t *testing.T) {
	classifier, err := NewVerdictClassifier(DefaultThresholds())
	if err != nil {
		t.Fatalf("NewVerdictClassifier() error = %v", err)
	}

	tests := []struct {
		score float64
		want  Verdict
	}{
		{0, VerdictSafe},
		{0.1, VerdictSafe},
		{0.29, VerdictSafe},
		{0.2999999, VerdictSafe},
		{0.30, VerdictModerate},
		{0.5, VerdictModerate},
		{0.70, VerdictModerate},
		{0.7000001, VerdictHigh},
		{0.95, VerdictHigh},
		{1, VerdictHigh},
	}

	for _, tt := range tests {
		if got := classifier.Classify(tt.score); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestVerdictClassifierCustomThresholds(t *testing.T) {
	classifier, err := NewVerdictClassifier(Thresholds{Safe: 50, High: 50})
	if err != nil {
		t.Fatalf("NewVerdictClassifier() error = %v", err)
	}

	if got := classifier.Classify(0.49); got != VerdictSafe {
		t.Errorf("Classify(0.49) = %s, want SAFE", got)
	}
	if got := classifier.Classify(0.5); got != VerdictModerate {
		t.Errorf("Classify(0.5) = %s, want MODERATE", got)
	}
	if got := classifier.Classify(0.51); got != VerdictHigh {
		t.Errorf("Classify(0.51) = %s, want HIGH", got)
	}
}

func TestNewVerdictClassifierRejectsInvalidThresholds(t *testing.T) {
	tests := []Thresholds{
		{Safe: 80, High: 20},
		{Safe: -1, High: 50},
		{Safe: 10, High: 101},
	}

	for _, th := range tests {
		if _, err := NewVerdictClassifier(th); err == nil {
			t.Errorf("expected error for thresholds %+v", th)
		}
	}
}

func TestPercent(t *testing.T) {
	if got := Percent(0.7); got != 70 {
		t.Errorf("Percent(0.7) = %v, want 70", got)
	}
	if got := Percent(0.3); got != 30 {
		t.Errorf("Percent(0.3) = %v, want 30", got)
	}
}

func TestVerdictLabel(t *testing.T) {
	if VerdictHigh.Label() != "High plagiarism" {
		t.Errorf("unexpected label %q", VerdictHigh.Label())
	}
	if Verdict("OTHER").Label() != "OTHER" {
		t.Errorf("unknown verdict should label as itself")
	}
}
