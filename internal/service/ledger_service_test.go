package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/RubachokBoss/plagiarism-ledger/internal/codec"
	"github.com/RubachokBoss/plagiarism-ledger/internal/ledger"
	"github.com/RubachokBoss/plagiarism-ledger/internal/models"
	"github.com/RubachokBoss/plagiarism-ledger/internal/service/analyzer"
	"github.com/rs/zerolog"
)

type testEnv struct {
	svc       *ledgerService
	ledger    *ledger.Ledger
	store     *memoryFileStore
	repo      *recordingEntryRepo
	publisher *recordingPublisher
	snapshots *memorySnapshots
}

func newTestEnv(t *testing.T, autoSave bool, deps Dependencies) *testEnv {
	t.Helper()

	classifier, err := analyzer.NewVerdictClassifier(analyzer.DefaultThresholds())
	if err != nil {
		t.Fatalf("NewVerdictClassifier() error = %v", err)
	}
	checker := analyzer.NewPlagiarismChecker(analyzer.NewSimilarityEngine(zerolog.Nop()), classifier, analyzer.Cosine, zerolog.Nop())

	c, err := codec.New(codec.FormatDelimited)
	if err != nil {
		t.Fatalf("codec.New() error = %v", err)
	}

	env := &testEnv{
		ledger:    ledger.New(),
		store:     &memoryFileStore{},
		repo:      &recordingEntryRepo{},
		publisher: &recordingPublisher{},
		snapshots: newMemorySnapshots(),
	}
	if deps.EntryRepo == nil {
		deps.EntryRepo = env.repo
	}
	if deps.Publisher == nil {
		deps.Publisher = env.publisher
	}
	if deps.Snapshots == nil {
		deps.Snapshots = env.snapshots
	}

	env.svc = NewLedgerService(env.ledger, checker, c, env.store, deps, zerolog.Nop(), LedgerConfig{
		DefaultAlgorithm: analyzer.Cosine,
		AutoSave:         autoSave,
	}).(*ledgerService)

	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	env.svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return env
}

var (
	essay    = models.NewDocument("Essay", "Alice", "2024-03-01", "AI is transforming education")
	learning = models.NewDocument("Learning", "Bob", "2024-03-02", "AI helps improve modern learning")
)

func TestCheckWithoutRecording(t *testing.T) {
	env := newTestEnv(t, false, Dependencies{})

	result, err := env.svc.Check(context.Background(), models.CheckRequest{
		DocumentA: essay,
		DocumentB: &learning,
	})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if result.Result.Verdict != analyzer.VerdictSafe {
		t.Errorf("Verdict = %s, want SAFE", result.Result.Verdict)
	}
	if result.Result.Score < 0 || result.Result.Score > 0.3 {
		t.Errorf("Score = %v, want within [0, 0.3]", result.Result.Score)
	}
	if result.CheckID == "" {
		t.Error("CheckID is empty")
	}
	if result.Entry != nil || env.ledger.Len() != 1 {
		t.Errorf("check without record must not append, ledger length %d", env.ledger.Len())
	}
}

func TestCheckRecordsScoredDocument(t *testing.T) {
	env := newTestEnv(t, true, Dependencies{})
	source := learning.WithSource("https://example.com/learning")

	result, err := env.svc.Check(context.Background(), models.CheckRequest{
		DocumentA: essay,
		DocumentB: &source,
		Algorithm: "JACCARD",
		Record:    true,
	})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if result.Result.Algorithm != analyzer.Jaccard {
		t.Errorf("Algorithm = %s, want jaccard", result.Result.Algorithm)
	}
	if result.Entry == nil || result.Entry.Index != 1 {
		t.Fatalf("Entry = %+v, want index 1", result.Entry)
	}

	stored, err := env.svc.Entry(1)
	if err != nil {
		t.Fatalf("Entry(1) error = %v", err)
	}
	if stored.Document.PlagiarismScore != result.Result.Score {
		t.Errorf("stored score = %v, want %v", stored.Document.PlagiarismScore, result.Result.Score)
	}
	if stored.Document.SourceURL != source.SourceURL {
		t.Errorf("stored source = %q, want %q", stored.Document.SourceURL, source.SourceURL)
	}
	if essay.PlagiarismScore != 0 {
		t.Error("input document was mutated")
	}

	if len(env.repo.saved) != 1 || env.repo.saved[0].Hash != stored.Hash {
		t.Errorf("mirror saved %+v", env.repo.saved)
	}
	if len(env.publisher.events) != 1 || env.publisher.events[0].Index != 1 || env.publisher.events[0].EventID == "" {
		t.Errorf("published events %+v", env.publisher.events)
	}
	if env.store.writes != 1 {
		t.Errorf("auto-save wrote %d times, want 1", env.store.writes)
	}
	if !env.svc.Verify().Valid {
		t.Error("ledger invalid after record")
	}
}

func TestCheckRequiresSecondDocument(t *testing.T) {
	env := newTestEnv(t, false, Dependencies{})

	_, err := env.svc.Check(context.Background(), models.CheckRequest{DocumentA: essay})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Check() error = %v, want ErrInvalidRequest", err)
	}
}

func TestCheckWithSourceDiscovery(t *testing.T) {
	found := models.NewDocument("Original", "example.com", "2024-06-01", "AI is transforming education").
		WithSource("https://example.com/original")

	t.Run("found", func(t *testing.T) {
		env := newTestEnv(t, false, Dependencies{SourceFinder: stubFinder{doc: &found}})

		result, err := env.svc.Check(context.Background(), models.CheckRequest{DocumentA: essay, Record: true})
		if err != nil {
			t.Fatalf("Check() error = %v", err)
		}
		if result.Source == nil || result.Source.SourceURL != found.SourceURL {
			t.Errorf("Source = %+v", result.Source)
		}
		if result.Result.Verdict != analyzer.VerdictHigh {
			t.Errorf("Verdict = %s, want HIGH", result.Result.Verdict)
		}
		if result.Entry.Document.SourceURL != found.SourceURL {
			t.Errorf("recorded source = %q", result.Entry.Document.SourceURL)
		}
	})

	t.Run("nothing found", func(t *testing.T) {
		env := newTestEnv(t, false, Dependencies{SourceFinder: stubFinder{}})

		_, err := env.svc.Check(context.Background(), models.CheckRequest{DocumentA: essay})
		if !errors.Is(err, ErrSourceNotFound) {
			t.Errorf("Check() error = %v, want ErrSourceNotFound", err)
		}
	})

	t.Run("connectivity failure", func(t *testing.T) {
		env := newTestEnv(t, false, Dependencies{SourceFinder: stubFinder{err: errBoom}})

		_, err := env.svc.Check(context.Background(), models.CheckRequest{DocumentA: essay})
		if !errors.Is(err, errBoom) {
			t.Errorf("Check() error = %v, want wrapped errBoom", err)
		}
	})
}

func TestCheckUnknownAlgorithmFallsBackToCosine(t *testing.T) {
	env := newTestEnv(t, false, Dependencies{})

	result, err := env.svc.Check(context.Background(), models.CheckRequest{
		DocumentA: essay,
		DocumentB: &learning,
		Algorithm: "soundex",
	})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if result.Result.Algorithm != analyzer.Cosine {
		t.Errorf("Algorithm = %s, want cosine", result.Result.Algorithm)
	}
}

func TestCheckPairwise(t *testing.T) {
	env := newTestEnv(t, false, Dependencies{})

	result, err := env.svc.CheckPairwise(context.Background(), models.PairwiseRequest{
		Documents: []models.Document{essay, learning, essay},
	})
	if err != nil {
		t.Fatalf("CheckPairwise() error = %v", err)
	}
	if len(result.Pairs) != 3 || result.Documents != 3 {
		t.Errorf("result = %+v, want 3 pairs", result)
	}
	if result.Pairs[1].Result.Verdict != analyzer.VerdictHigh {
		t.Errorf("essay/essay verdict = %s, want HIGH", result.Pairs[1].Result.Verdict)
	}

	if _, err := env.svc.CheckPairwise(context.Background(), models.PairwiseRequest{Documents: []models.Document{essay}}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("CheckPairwise() with one document error = %v, want ErrInvalidRequest", err)
	}
}

func TestCheckPairwiseDedupe(t *testing.T) {
	env := newTestEnv(t, false, Dependencies{})

	result, err := env.svc.CheckPairwise(context.Background(), models.PairwiseRequest{
		Documents: []models.Document{essay, learning, essay.WithScore(0.4)},
		Dedupe:    true,
	})
	if err != nil {
		t.Fatalf("CheckPairwise() error = %v", err)
	}
	if result.Documents != 2 || result.Duplicates != 1 || len(result.Pairs) != 1 {
		t.Errorf("result = %+v, want one pair after removing one duplicate", result)
	}

	_, err = env.svc.CheckPairwise(context.Background(), models.PairwiseRequest{
		Documents: []models.Document{essay, essay},
		Dedupe:    true,
	})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("CheckPairwise() of duplicates only error = %v, want ErrInvalidRequest", err)
	}
}

func TestAutoSaveFailureKeepsAppend(t *testing.T) {
	env := newTestEnv(t, true, Dependencies{})
	env.store.writeErr = errBoom

	entry := env.svc.Record(context.Background(), essay)
	if entry.Index != 1 || env.ledger.Len() != 2 {
		t.Errorf("append rolled back: entry %d, length %d", entry.Index, env.ledger.Len())
	}

	if _, err := env.svc.Save(context.Background()); !errors.Is(err, errBoom) {
		t.Errorf("Save() error = %v, want errBoom", err)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	env := newTestEnv(t, false, Dependencies{})
	env.svc.Record(context.Background(), essay.WithScore(0.2))
	env.svc.Record(context.Background(), models.NewDocument("Pipes", "A|B", "2024-01-01", "line\nbreak \\ \"quoted\"").WithScore(0.9))

	saved, err := env.svc.Save(context.Background())
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if saved.Entries != 3 {
		t.Errorf("saved %d entries, want 3", saved.Entries)
	}

	other := newTestEnv(t, false, Dependencies{})
	other.store.data = env.store.data
	other.store.exists = true

	loaded, err := other.svc.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Entries != 3 || loaded.Meta == nil || loaded.Meta.Entries != 3 {
		t.Errorf("LoadResult = %+v", loaded)
	}
	if !reflect.DeepEqual(other.svc.Entries(), env.svc.Entries()) {
		t.Error("loaded entries differ from saved ones")
	}
	if len(other.repo.replaced) != 3 {
		t.Errorf("mirror replaced with %d entries, want 3", len(other.repo.replaced))
	}

	appended := other.svc.Record(context.Background(), learning)
	if appended.Index != 3 || !other.svc.Verify().Valid {
		t.Errorf("append after load broke the chain: %+v", other.svc.Verify())
	}
}

func TestLoadMissingFile(t *testing.T) {
	env := newTestEnv(t, false, Dependencies{})

	if _, err := env.svc.Load(context.Background()); !errors.Is(err, ErrLedgerNotFound) {
		t.Errorf("Load() error = %v, want ErrLedgerNotFound", err)
	}
}

func TestLoadRefusesTamperedChain(t *testing.T) {
	env := newTestEnv(t, false, Dependencies{})
	env.svc.Record(context.Background(), essay)
	if _, err := env.svc.Save(context.Background()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	tampered := strings.Replace(string(env.store.data), "|Essay|", "|Essay (edited)|", 1)
	other := newTestEnv(t, false, Dependencies{})
	other.svc.Record(context.Background(), learning)
	before := other.svc.Entries()
	other.store.data = []byte(tampered)
	other.store.exists = true

	_, err := other.svc.Load(context.Background())
	if !errors.Is(err, ErrInvalidChain) {
		t.Fatalf("Load() error = %v, want ErrInvalidChain", err)
	}
	var verr *ledger.ValidationError
	if !errors.As(err, &verr) || verr.Index != 1 || verr.Violation != ledger.ViolationHash {
		t.Errorf("Load() error = %v, want hash violation at index 1", err)
	}
	if !reflect.DeepEqual(other.svc.Entries(), before) {
		t.Error("refused load modified the in-memory ledger")
	}
}

func TestLoadRefusesEmptyFile(t *testing.T) {
	env := newTestEnv(t, false, Dependencies{})
	env.store.data = []byte("garbage line\n")
	env.store.exists = true

	_, err := env.svc.Load(context.Background())
	if !errors.Is(err, ErrInvalidChain) || !errors.Is(err, ledger.ErrEmptyChain) {
		t.Errorf("Load() error = %v, want ErrInvalidChain wrapping ErrEmptyChain", err)
	}
}

func TestBackupAndRestore(t *testing.T) {
	env := newTestEnv(t, false, Dependencies{})
	env.svc.Record(context.Background(), essay)

	info, err := env.svc.Backup(context.Background())
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if !strings.HasPrefix(info.Key, "snapshots/ledger-") || !strings.HasSuffix(info.Key, ".txt") {
		t.Errorf("snapshot key = %q", info.Key)
	}

	env.svc.Record(context.Background(), learning)
	if env.ledger.Len() != 3 {
		t.Fatalf("ledger length = %d, want 3", env.ledger.Len())
	}

	restored, err := env.svc.Restore(context.Background(), "")
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if restored.Entries != 2 || env.ledger.Len() != 2 {
		t.Errorf("restored %d entries, ledger length %d, want 2", restored.Entries, env.ledger.Len())
	}

	if _, err := env.svc.Restore(context.Background(), "snapshots/missing.txt"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Restore(missing) error = %v, want ErrSnapshotNotFound", err)
	}

	snapshots, err := env.svc.ListSnapshots(context.Background())
	if err != nil || len(snapshots) != 1 {
		t.Errorf("ListSnapshots() = (%v, %v), want one snapshot", snapshots, err)
	}
}

func TestSnapshotsDisabled(t *testing.T) {
	env := newTestEnv(t, false, Dependencies{})
	env.svc.snapshots = nil

	if _, err := env.svc.Backup(context.Background()); !errors.Is(err, ErrSnapshotsDisabled) {
		t.Errorf("Backup() error = %v, want ErrSnapshotsDisabled", err)
	}
	if _, err := env.svc.Restore(context.Background(), ""); !errors.Is(err, ErrSnapshotsDisabled) {
		t.Errorf("Restore() error = %v, want ErrSnapshotsDisabled", err)
	}
}

func TestVerifyReport(t *testing.T) {
	env := newTestEnv(t, false, Dependencies{})
	env.svc.Record(context.Background(), essay)

	report := env.svc.Verify()
	if !report.Valid || report.Length != 2 || report.Index != nil {
		t.Errorf("Verify() = %+v, want valid chain of 2", report)
	}

	if _, err := env.svc.Entry(5); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Entry(5) error = %v, want ErrEntryNotFound", err)
	}
}

func TestVerifyEntriesChecksTheGivenCopy(t *testing.T) {
	env := newTestEnv(t, false, Dependencies{})
	env.svc.Record(context.Background(), essay)
	env.svc.Record(context.Background(), learning)

	entries := env.svc.Entries()
	entries[1].Document.PlagiarismScore = 0.99

	report := VerifyEntries(entries)
	if report.Valid || report.Index == nil || *report.Index != 1 {
		t.Errorf("VerifyEntries(tampered) = %+v, want invalid at 1", report)
	}
	if !env.svc.Verify().Valid {
		t.Error("tampering a copy must not affect the ledger")
	}
}

func TestStatsReportsMirrorState(t *testing.T) {
	env := newTestEnv(t, false, Dependencies{})
	env.svc.Record(context.Background(), essay)

	stats := env.svc.Stats(context.Background())
	if stats.Length != 2 || !stats.Valid || !stats.Mirror.Enabled {
		t.Fatalf("Stats() = %+v", stats)
	}
	if stats.Mirror.Entries != 1 || stats.Mirror.InSync {
		t.Errorf("mirror before sync = %+v, want 1 entry out of sync", stats.Mirror)
	}

	if err := env.svc.SyncMirror(context.Background()); err != nil {
		t.Fatalf("SyncMirror() error = %v", err)
	}
	if len(env.repo.replaced) != 2 {
		t.Errorf("mirror replaced with %d entries, want 2", len(env.repo.replaced))
	}

	stats = env.svc.Stats(context.Background())
	if stats.Mirror.Entries != 2 || !stats.Mirror.InSync {
		t.Errorf("mirror after sync = %+v, want 2 entries in sync", stats.Mirror)
	}

	env.repo.saved[1].Hash = strings.Repeat("0", 64)
	if stats := env.svc.Stats(context.Background()); stats.Mirror.InSync {
		t.Errorf("mirror with a diverging hash reported in sync: %+v", stats.Mirror)
	}
}

func TestStatsWithoutMirror(t *testing.T) {
	env := newTestEnv(t, false, Dependencies{})
	env.svc.mirrored = false

	stats := env.svc.Stats(context.Background())
	if stats.Mirror.Enabled || stats.Length != 1 {
		t.Errorf("Stats() = %+v, want mirror disabled", stats)
	}
	if err := env.svc.SyncMirror(context.Background()); err != nil {
		t.Errorf("SyncMirror() without mirror error = %v", err)
	}
}
