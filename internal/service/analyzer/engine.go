package analyzer

import (
	"time"

	"github.com/RubachokBoss/plagiarism-ledger/internal/models"
	"github.com/rs/zerolog"
)

type SimilarityEngine interface {
	Score(docA, docB models.Document, alg Algorithm) float64
	ScoreTexts(textA, textB string, alg Algorithm) float64
}

type similarityEngine struct {
	logger zerolog.Logger
}

func NewSimilarityEngine(logger zerolog.Logger) SimilarityEngine {
	return &similarityEngine{
		logger: logger,
	}
}

// Score compares the documents' texts only; metadata does not take part.
func (e *similarityEngine) Score(docA, docB models.Document, alg Algorithm) float64 {
	return e.ScoreTexts(docA.Text, docB.Text, alg)
}

func (e *similarityEngine) ScoreTexts(textA, textB string, alg Algorithm) float64 {
	startTime := time.Now()

	tokensA := Tokenize(textA)
	tokensB := Tokenize(textB)
	score := Similarity(alg, tokensA, tokensB)

	e.logger.Debug().
		Str("algorithm", alg.String()).
		Int("tokens_a", len(tokensA)).
		Int("tokens_b", len(tokensB)).
		Float64("score", score).
		Dur("processing_time", time.Since(startTime)).
		Msg("Similarity calculated")

	return score
}
