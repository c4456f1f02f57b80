package analyzer

import (
	"fmt"
	"math"
)

type Verdict string

const (
	VerdictSafe     Verdict = "SAFE"
	VerdictModerate Verdict = "MODERATE"
	VerdictHigh     Verdict = "HIGH"
)

// Label is the human readable form used in reports.
func (v Verdict) Label() string {
	switch v {
	case VerdictSafe:
		return "Safe"
	case VerdictModerate:
		return "Moderate"
	case VerdictHigh:
		return "High plagiarism"
	default:
		return string(v)
	}
}

// Thresholds are percentages in [0,100].
type Thresholds struct {
	Safe float64 `json:"safe" mapstructure:"safe_threshold"`
	High float64 `json:"high" mapstructure:"high_threshold"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Safe: 30, High: 70}
}

func (t Thresholds) Validate() error {
	if t.Safe < 0 || t.Safe > 100 || math.IsNaN(t.Safe) {
		return fmt.Errorf("safe threshold must be between 0 and 100, got %v", t.Safe)
	}
	if t.High < 0 || t.High > 100 || math.IsNaN(t.High) {
		return fmt.Errorf("high threshold must be between 0 and 100, got %v", t.High)
	}
	if t.Safe > t.High {
		return fmt.Errorf("safe threshold %v is greater than high threshold %v", t.Safe, t.High)
	}
	return nil
}

type VerdictClassifier struct {
	thresholds Thresholds
}

func NewVerdictClassifier(thresholds Thresholds) (*VerdictClassifier, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}
	return &VerdictClassifier{thresholds: thresholds}, nil
}

func (c *VerdictClassifier) Thresholds() Thresholds {
	return c.thresholds
}

// Classify maps a score in [0,1] onto a verdict. Both thresholds belong to
// the Moderate band.
func (c *VerdictClassifier) Classify(score float64) Verdict {
	p := Percent(score)
	switch {
	case p < c.thresholds.Safe:
		return VerdictSafe
	case p <= c.thresholds.High:
		return VerdictModerate
	default:
		return VerdictHigh
	}
}

// Percent converts a score to a percentage rounded to 9 decimals, so 0.7
// yields exactly 70.
func Percent(score float64) float64 {
	return math.Round(score*100*1e9) / 1e9
}
