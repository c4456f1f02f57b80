package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/RubachokBoss/plagiarism-ledger/internal/codec"
	"github.com/RubachokBoss/plagiarism-ledger/internal/ledger"
	"github.com/RubachokBoss/plagiarism-ledger/internal/models"
	"github.com/RubachokBoss/plagiarism-ledger/internal/service/analyzer"
	"github.com/rs/zerolog"
)

// FileReport is the outcome of checking a ledger file offline.
type FileReport struct {
	Path    string
	Format  codec.Format
	Entries int
	Skipped []codec.SkippedLine
	Meta    *codec.Meta
	// Err is nil for a valid chain and a *ledger.ValidationError or
	// ledger.ErrEmptyChain otherwise.
	Err error
}

func (r *FileReport) Valid() bool {
	return r.Err == nil
}

// FormatForPath picks the codec from the file extension and falls back to
// the configured one.
func FormatForPath(path string, fallback codec.Format) codec.Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return codec.FormatJSONL
	case ".txt", ".ledger":
		return codec.FormatDelimited
	}
	return fallback
}

// VerifyFile decodes a ledger file and validates its chain. The returned
// error covers I/O and decoding; chain problems are reported in FileReport.Err.
func VerifyFile(path string, format codec.Format) (*FileReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger file: %w", err)
	}

	result, err := codec.Unmarshal(format, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ledger file: %w", err)
	}

	report := &FileReport{
		Path:    path,
		Format:  format,
		Entries: len(result.Entries),
		Skipped: result.Skipped,
		Meta:    result.Meta,
	}
	if len(result.Entries) == 0 {
		report.Err = ledger.ErrEmptyChain
		return report, nil
	}

	report.Err = ledger.Validate(result.Entries)
	return report, nil
}

// CompareFiles scores the contents of two text files. Each document is
// titled with its file name.
func CompareFiles(pathA, pathB string, alg analyzer.Algorithm, thresholds analyzer.Thresholds, log zerolog.Logger) (analyzer.ScoreResult, error) {
	docA, err := documentFromFile(pathA)
	if err != nil {
		return analyzer.ScoreResult{}, err
	}
	docB, err := documentFromFile(pathB)
	if err != nil {
		return analyzer.ScoreResult{}, err
	}

	classifier, err := analyzer.NewVerdictClassifier(thresholds)
	if err != nil {
		return analyzer.ScoreResult{}, err
	}

	checker := analyzer.NewPlagiarismChecker(analyzer.NewSimilarityEngine(log), classifier, alg, log)
	return checker.CheckPair(docA, docB, alg), nil
}

func documentFromFile(path string) (models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	return models.NewDocument(filepath.Base(path), "", info.ModTime().UTC().Format("2006-01-02"), string(data)), nil
}
