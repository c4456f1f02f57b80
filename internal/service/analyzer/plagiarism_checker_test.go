package analyzer

import (
	"testing"

	"github.com/RubachokBoss/plagiarism-ledger/internal/models"
	"github.com/rs/zerolog"
)

func newTestChecker(t *testing.T) PlagiarismChecker {
	t.Helper()

	classifier, err := NewVerdictClassifier(DefaultThresholds())
	if err != nil {
		t.Fatalf("NewVerdictClassifier() error = %v", err)
	}
	return NewPlagiarismChecker(NewSimilarityEngine(zerolog.Nop()), classifier, Cosine, zerolog.Nop())
}

func TestCheckPair(t *testing.T) {
	checker := newTestChecker(t)

	docA := models.NewDocument("Essay", "Alice", "2024-03-01", "AI is transforming education")
	docB := models.NewDocument("Learning", "Bob", "2024-03-02", "AI helps improve modern learning")

	result := checker.CheckPair(docA, docB, Cosine)
	if result.Verdict != VerdictSafe {
		t.Errorf("Verdict = %s, want SAFE", result.Verdict)
	}
	if result.Algorithm != Cosine {
		t.Errorf("Algorithm = %s, want cosine", result.Algorithm)
	}
	if result.Percent != Percent(result.Score) {
		t.Errorf("Percent = %v, want %v", result.Percent, Percent(result.Score))
	}

	copied := checker.CheckPair(docA, docA, Jaccard)
	if copied.Score != 1 || copied.Verdict != VerdictHigh {
		t.Errorf("identical documents = %+v, want score 1 and HIGH", copied)
	}
}

func TestCheckPairwise(t *testing.T) {
	checker := newTestChecker(t)

	docs := []models.Document{
		models.NewDocument("A", "x", "2024-01-01", "alpha beta gamma"),
		models.NewDocument("B", "y", "2024-01-02", "alpha beta gamma"),
		models.NewDocument("C", "z", "2024-01-03", "delta epsilon"),
	}

	results := checker.CheckPairwise(docs, Cosine)
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}

	wantPairs := [][2]int{{0, 1}, {0, 2}, {1, 2}}
	for i, pair := range wantPairs {
		if results[i].IndexA != pair[0] || results[i].IndexB != pair[1] {
			t.Errorf("results[%d] = (%d,%d), want (%d,%d)", i, results[i].IndexA, results[i].IndexB, pair[0], pair[1])
		}
	}

	if results[0].Result.Verdict != VerdictHigh {
		t.Errorf("A/B verdict = %s, want HIGH", results[0].Result.Verdict)
	}
	if results[1].Result.Score != 0 || results[1].Result.Verdict != VerdictSafe {
		t.Errorf("A/C = %+v, want score 0 and SAFE", results[1].Result)
	}
	if results[2].TitleA != "B" || results[2].TitleB != "C" {
		t.Errorf("unexpected titles %q/%q", results[2].TitleA, results[2].TitleB)
	}

	if got := checker.CheckPairwise(docs[:1], Cosine); len(got) != 0 {
		t.Errorf("single document should yield no pairs, got %d", len(got))
	}
}

func TestGetCheckerInfo(t *testing.T) {
	info := newTestChecker(t).GetCheckerInfo()
	if len(info.Algorithms) != 4 {
		t.Errorf("Algorithms = %v, want 4 entries", info.Algorithms)
	}
	if info.Default != "cosine" {
		t.Errorf("Default = %q, want cosine", info.Default)
	}
	if info.Thresholds != DefaultThresholds() {
		t.Errorf("Thresholds = %+v, want defaults", info.Thresholds)
	}
}
