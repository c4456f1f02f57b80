package analyzer

import (
	"time"

	"github.com/RubachokBoss/plagiarism-ledger/internal/models"
	"github.com/rs/zerolog"
)

type PlagiarismChecker interface {
	CheckPair(docA, docB models.Document, alg Algorithm) ScoreResult
	CheckPairwise(docs []models.Document, alg Algorithm) []PairResult
	Classifier() *VerdictClassifier
	GetCheckerInfo() CheckerInfo
}

type ScoreResult struct {
	Score     float64   `json:"score"`
	Percent   float64   `json:"percent"`
	Verdict   Verdict   `json:"verdict"`
	Algorithm Algorithm `json:"algorithm"`
}

// PairResult refers to documents by their position in the checked slice.
type PairResult struct {
	IndexA int         `json:"index_a"`
	IndexB int         `json:"index_b"`
	TitleA string      `json:"title_a"`
	TitleB string      `json:"title_b"`
	Result ScoreResult `json:"result"`
}

type CheckerInfo struct {
	Name        string     `json:"name"`
	Version     string     `json:"version"`
	Algorithms  []string   `json:"algorithms"`
	Default     string     `json:"default_algorithm"`
	Thresholds  Thresholds `json:"thresholds"`
	Description string     `json:"description"`
}

type plagiarismChecker struct {
	engine     SimilarityEngine
	classifier *VerdictClassifier
	defaultAlg Algorithm
	logger     zerolog.Logger
}

func NewPlagiarismChecker(
	engine SimilarityEngine,
	classifier *VerdictClassifier,
	defaultAlg Algorithm,
	logger zerolog.Logger,
) PlagiarismChecker {
	return &plagiarismChecker{
		engine:     engine,
		classifier: classifier,
		defaultAlg: defaultAlg,
		logger:     logger,
	}
}

func (c *plagiarismChecker) CheckPair(docA, docB models.Document, alg Algorithm) ScoreResult {
	score := c.engine.Score(docA, docB, alg)
	result := ScoreResult{
		Score:     score,
		Percent:   Percent(score),
		Verdict:   c.classifier.Classify(score),
		Algorithm: alg,
	}

	c.logger.Info().
		Str("title_a", docA.Title).
		Str("title_b", docB.Title).
		Str("algorithm", alg.String()).
		Float64("score", score).
		Str("verdict", string(result.Verdict)).
		Msg("Plagiarism check completed")

	return result
}

// CheckPairwise scores every unordered pair (i < j) in input order.
func (c *plagiarismChecker) CheckPairwise(docs []models.Document, alg Algorithm) []PairResult {
	startTime := time.Now()

	if len(docs) < 2 {
		return []PairResult{}
	}

	results := make([]PairResult, 0, len(docs)*(len(docs)-1)/2)
	for i := 0; i < len(docs); i++ {
		for j := i + 1; j < len(docs); j++ {
			score := c.engine.Score(docs[i], docs[j], alg)
			results = append(results, PairResult{
				IndexA: i,
				IndexB: j,
				TitleA: docs[i].Title,
				TitleB: docs[j].Title,
				Result: ScoreResult{
					Score:     score,
					Percent:   Percent(score),
					Verdict:   c.classifier.Classify(score),
					Algorithm: alg,
				},
			})
		}
	}

	c.logger.Info().
		Int("documents", len(docs)).
		Int("pairs", len(results)).
		Str("algorithm", alg.String()).
		Dur("processing_time", time.Since(startTime)).
		Msg("Pairwise check completed")

	return results
}

func (c *plagiarismChecker) Classifier() *VerdictClassifier {
	return c.classifier
}

func (c *plagiarismChecker) GetCheckerInfo() CheckerInfo {
	names := make([]string, 0, len(Algorithms()))
	for _, alg := range Algorithms() {
		names = append(names, alg.String())
	}

	return CheckerInfo{
		Name:        "Plagiarism Checker",
		Version:     "1.0.0",
		Algorithms:  names,
		Default:     c.defaultAlg.String(),
		Thresholds:  c.classifier.Thresholds(),
		Description: "Scores documents with token based similarity and records them in a hash-chained ledger",
	}
}
