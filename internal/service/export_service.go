package service

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/RubachokBoss/plagiarism-ledger/internal/ledger"
	"github.com/RubachokBoss/plagiarism-ledger/internal/service/analyzer"
)

type ExportService interface {
	WriteCheckJSON(w io.Writer, result *CheckResult) error
	WritePairwiseCSV(w io.Writer, result *PairwiseResult) error
	WriteChainJSON(w io.Writer, entries []ledger.Entry, report VerifyReport) error
	WriteDetailedReport(w io.Writer, result *CheckResult) error
}

type exportService struct {
	thresholds analyzer.Thresholds
	now        func() time.Time
}

func NewExportService(thresholds analyzer.Thresholds) ExportService {
	return &exportService{
		thresholds: thresholds,
		now:        time.Now,
	}
}

type exportedDocument struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	URL           string `json:"url,omitempty"`
	ContentLength int    `json:"content_length"`
}

type checkReport struct {
	CheckID    string           `json:"check_id"`
	Timestamp  string           `json:"timestamp"`
	Submission exportedDocument `json:"submission"`
	Source     exportedDocument `json:"source"`
	Result     struct {
		Algorithm            string  `json:"algorithm"`
		SimilarityScore      float64 `json:"similarity_score"`
		SimilarityPercentage float64 `json:"similarity_percentage"`
		Verdict              string  `json:"verdict"`
	} `json:"result"`
	EntryIndex *int `json:"entry_index,omitempty"`
}

func (s *exportService) WriteCheckJSON(w io.Writer, result *CheckResult) error {
	report := checkReport{
		CheckID:   result.CheckID,
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Submission: exportedDocument{
			Title:         result.DocumentA.Title,
			Author:        result.DocumentA.Author,
			ContentLength: utf8.RuneCountInString(result.DocumentA.Text),
		},
		Source: exportedDocument{
			Title:         result.DocumentB.Title,
			Author:        result.DocumentB.Author,
			URL:           result.DocumentB.SourceURL,
			ContentLength: utf8.RuneCountInString(result.DocumentB.Text),
		},
	}
	report.Result.Algorithm = result.Result.Algorithm.String()
	report.Result.SimilarityScore = result.Result.Score
	report.Result.SimilarityPercentage = result.Result.Percent
	report.Result.Verdict = string(result.Result.Verdict)
	if result.Entry != nil {
		index := result.Entry.Index
		report.EntryIndex = &index
	}

	return writeJSON(w, report)
}

func (s *exportService) WritePairwiseCSV(w io.Writer, result *PairwiseResult) error {
	cw := csv.NewWriter(w)

	header := []string{"Document A", "Document B", "Algorithm", "Similarity Score", "Similarity %", "Verdict"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, pair := range result.Pairs {
		record := []string{
			pair.TitleA,
			pair.TitleB,
			pair.Result.Algorithm.String(),
			strconv.FormatFloat(pair.Result.Score, 'f', 4, 64),
			strconv.FormatFloat(pair.Result.Percent, 'f', 2, 64),
			string(pair.Result.Verdict),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

type chainExport struct {
	ExportedAt  string         `json:"exported_at"`
	IsValid     bool           `json:"is_valid"`
	TotalBlocks int            `json:"total_blocks"`
	Report      VerifyReport   `json:"verification"`
	Blockchain  []ledger.Entry `json:"blockchain"`
}

func (s *exportService) WriteChainJSON(w io.Writer, entries []ledger.Entry, report VerifyReport) error {
	if entries == nil {
		entries = []ledger.Entry{}
	}
	return writeJSON(w, chainExport{
		ExportedAt:  s.now().UTC().Format(time.RFC3339),
		IsValid:     report.Valid,
		TotalBlocks: len(entries),
		Report:      report,
		Blockchain:  entries,
	})
}

func (s *exportService) WriteDetailedReport(w io.Writer, result *CheckResult) error {
	bw := bufio.NewWriter(w)
	rule := strings.Repeat("-", 80)

	fmt.Fprintln(bw, "PLAGIARISM DETECTION REPORT")
	fmt.Fprintln(bw, strings.Repeat("=", 80))
	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "Generated: %s\n", s.now().UTC().Format(time.RFC3339))
	if result.CheckID != "" {
		fmt.Fprintf(bw, "Check ID: %s\n", result.CheckID)
	}
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "SUBMISSION DETAILS")
	fmt.Fprintln(bw, rule)
	fmt.Fprintf(bw, "Title: %s\n", result.DocumentA.Title)
	fmt.Fprintf(bw, "Author: %s\n", result.DocumentA.Author)
	fmt.Fprintf(bw, "Submission Date: %s\n", result.DocumentA.SubmissionDate)
	fmt.Fprintf(bw, "Content Length: %d characters\n", utf8.RuneCountInString(result.DocumentA.Text))
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "SOURCE DETAILS")
	fmt.Fprintln(bw, rule)
	fmt.Fprintf(bw, "Title: %s\n", result.DocumentB.Title)
	if result.DocumentB.HasSource() {
		fmt.Fprintf(bw, "URL: %s\n", result.DocumentB.SourceURL)
	}
	fmt.Fprintf(bw, "Content Length: %d characters\n", utf8.RuneCountInString(result.DocumentB.Text))
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "ANALYSIS RESULTS")
	fmt.Fprintln(bw, rule)
	fmt.Fprintf(bw, "Algorithm Used: %s\n", result.Result.Algorithm)
	fmt.Fprintf(bw, "Similarity Score: %.4f\n", result.Result.Score)
	fmt.Fprintf(bw, "Similarity Percentage: %.2f%%\n", result.Result.Percent)
	fmt.Fprintf(bw, "Verdict: %s\n", result.Result.Verdict.Label())
	if result.Entry != nil {
		fmt.Fprintf(bw, "Ledger Entry: #%d (%s)\n", result.Entry.Index, result.Entry.Hash)
	}
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "INTERPRETATION")
	fmt.Fprintln(bw, rule)
	fmt.Fprintln(bw, s.interpretation(result.Result.Verdict))

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func (s *exportService) interpretation(v analyzer.Verdict) string {
	safe := formatPercent(s.thresholds.Safe)
	high := formatPercent(s.thresholds.High)

	switch v {
	case analyzer.VerdictSafe:
		return fmt.Sprintf("The similarity is below %s%%, indicating low overlap. This is generally acceptable.", safe)
	case analyzer.VerdictModerate:
		return fmt.Sprintf("The similarity is between %s-%s%%, indicating moderate overlap. Further review recommended.", safe, high)
	default:
		return fmt.Sprintf("The similarity exceeds %s%%, indicating high overlap. This requires immediate attention.", high)
	}
}

func formatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}
