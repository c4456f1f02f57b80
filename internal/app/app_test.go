package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RubachokBoss/plagiarism-ledger/internal/codec"
	"github.com/RubachokBoss/plagiarism-ledger/internal/config"
	"github.com/RubachokBoss/plagiarism-ledger/internal/ledger"
	"github.com/RubachokBoss/plagiarism-ledger/internal/models"
	"github.com/RubachokBoss/plagiarism-ledger/internal/service/analyzer"
	"github.com/rs/zerolog"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	chdir(t, t.TempDir())

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	cfg.Ledger.Path = filepath.Join(t.TempDir(), "ledger.txt")
	return cfg
}

func sampleChain() []ledger.Entry {
	l := ledger.New()
	l.Append(models.NewDocument("Essay", "Alice", "2024-03-01", "AI is transforming education").WithScore(0.8))
	l.Append(models.NewDocument("Report", "Bob", "2024-03-02", "Ledgers | pipes\nand newlines"))
	return l.Entries()
}

func writeChain(t *testing.T, path string, format codec.Format, entries []ledger.Entry) {
	t.Helper()
	data, err := codec.Marshal(format, entries, codec.NewMeta(len(entries), time.Now()))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write ledger: %v", err)
	}
}

func TestNewServesWithAdaptersDisabled(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Shutdown(context.Background())

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"healthy"`) {
		t.Errorf("GET /health = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/check/async", strings.NewReader("{}")))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("async check without broker = %d, want 503", rec.Code)
	}

	if err := a.RunWorker(context.Background()); err == nil {
		t.Error("RunWorker() without rabbitmq should fail")
	}
}

func TestNewWorkerRequiresBroker(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger.AutoSave = true
	writeChain(t, cfg.Ledger.Path, codec.FormatDelimited, sampleChain())

	if _, err := NewWorker(cfg, zerolog.Nop()); err == nil {
		t.Fatal("NewWorker() without rabbitmq should fail")
	}

	report, err := VerifyFile(cfg.Ledger.Path, codec.FormatDelimited)
	if err != nil || !report.Valid() || report.Entries != 3 {
		t.Errorf("ledger file changed by a refused worker: %+v, %v", report, err)
	}
}

func TestWorkerModeDoesNotOwnLedger(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger.AutoSave = true
	cfg.Database.Enabled = true
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "mirror.db")

	// rabbitmq stays disabled so the build stops short of dialing a broker;
	// everything that decides ownership runs before that point.
	a := &App{mode: ModeWorker, logger: zerolog.Nop(), config: cfg}
	if err := a.build(); err != nil {
		t.Fatalf("build() error = %v", err)
	}

	if a.db != nil {
		t.Error("worker opened the database mirror")
	}
	if a.Handler() != nil {
		t.Error("worker built an HTTP handler")
	}

	a.LedgerService().Record(context.Background(), models.NewDocument("Essay", "Alice", "2024-03-01", "text"))
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if _, err := os.Stat(cfg.Ledger.Path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("worker wrote the ledger file: stat error = %v", err)
	}
}

func TestNewLoadsLedgerOnStart(t *testing.T) {
	cfg := testConfig(t)
	writeChain(t, cfg.Ledger.Path, codec.FormatDelimited, sampleChain())

	a, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := len(a.LedgerService().Entries()); got != 3 {
		t.Errorf("loaded %d entries, want 3", got)
	}
}

func TestNewRefusesInvalidLedger(t *testing.T) {
	cfg := testConfig(t)

	entries := sampleChain()
	entries[1].Document.Title = "Tampered"
	writeChain(t, cfg.Ledger.Path, codec.FormatDelimited, entries)

	if _, err := New(cfg, zerolog.Nop()); err == nil {
		t.Fatal("New() accepted a tampered ledger")
	}
}

func TestShutdownSavesLedger(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger.AutoSave = true

	a, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	report, err := VerifyFile(cfg.Ledger.Path, codec.FormatDelimited)
	if err != nil {
		t.Fatalf("VerifyFile() error = %v", err)
	}
	if !report.Valid() || report.Entries != 1 {
		t.Errorf("saved ledger report = %+v", report)
	}
}

func TestVerifyFile(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.jsonl")
	writeChain(t, valid, codec.FormatJSONL, sampleChain())

	report, err := VerifyFile(valid, FormatForPath(valid, codec.FormatDelimited))
	if err != nil {
		t.Fatalf("VerifyFile() error = %v", err)
	}
	if !report.Valid() || report.Entries != 3 || report.Format != codec.FormatJSONL {
		t.Errorf("report = %+v", report)
	}

	entries := sampleChain()
	entries[2].Document.PlagiarismScore = 0.99
	tampered := filepath.Join(dir, "tampered.txt")
	writeChain(t, tampered, codec.FormatDelimited, entries)

	report, err = VerifyFile(tampered, codec.FormatDelimited)
	if err != nil {
		t.Fatalf("VerifyFile() error = %v", err)
	}
	var verr *ledger.ValidationError
	if !errors.As(report.Err, &verr) || verr.Index != 2 || verr.Violation != ledger.ViolationHash {
		t.Errorf("report.Err = %v, want hash mismatch at 2", report.Err)
	}

	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	report, err = VerifyFile(empty, codec.FormatDelimited)
	if err != nil {
		t.Fatalf("VerifyFile() error = %v", err)
	}
	if !errors.Is(report.Err, ledger.ErrEmptyChain) {
		t.Errorf("empty file error = %v, want ErrEmptyChain", report.Err)
	}

	if _, err := VerifyFile(filepath.Join(dir, "missing.txt"), codec.FormatDelimited); err == nil {
		t.Error("VerifyFile() on a missing file should fail")
	}
}

func TestFormatForPath(t *testing.T) {
	tests := map[string]codec.Format{
		"ledger.jsonl":  codec.FormatJSONL,
		"ledger.NDJSON": codec.FormatJSONL,
		"ledger.txt":    codec.FormatDelimited,
		"ledger":        codec.FormatJSONL,
	}
	for path, want := range tests {
		if got := FormatForPath(path, codec.FormatJSONL); got != want {
			t.Errorf("FormatForPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestCompareFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	if err := os.WriteFile(a, []byte("AI is transforming education"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("AI is transforming education"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := CompareFiles(a, b, analyzer.Jaccard, analyzer.DefaultThresholds(), zerolog.Nop())
	if err != nil {
		t.Fatalf("CompareFiles() error = %v", err)
	}
	if result.Score != 1 || result.Verdict != analyzer.VerdictHigh || result.Algorithm != analyzer.Jaccard {
		t.Errorf("result = %+v", result)
	}

	if _, err := CompareFiles(a, filepath.Join(dir, "missing.txt"), analyzer.Cosine, analyzer.DefaultThresholds(), zerolog.Nop()); err == nil {
		t.Error("CompareFiles() with a missing file should fail")
	}
}
