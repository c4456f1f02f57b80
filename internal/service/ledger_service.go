package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RubachokBoss/plagiarism-ledger/internal/codec"
	"github.com/RubachokBoss/plagiarism-ledger/internal/ledger"
	"github.com/RubachokBoss/plagiarism-ledger/internal/models"
	"github.com/RubachokBoss/plagiarism-ledger/internal/repository"
	"github.com/RubachokBoss/plagiarism-ledger/internal/service/analyzer"
	"github.com/RubachokBoss/plagiarism-ledger/internal/service/integration"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type LedgerService interface {
	Check(ctx context.Context, req models.CheckRequest) (*CheckResult, error)
	CheckPairwise(ctx context.Context, req models.PairwiseRequest) (*PairwiseResult, error)
	Record(ctx context.Context, doc models.Document) ledger.Entry
	Entries() []ledger.Entry
	Entry(index int) (ledger.Entry, error)
	Verify() VerifyReport
	Save(ctx context.Context) (*SaveResult, error)
	Load(ctx context.Context) (*LoadResult, error)
	Backup(ctx context.Context) (*repository.SnapshotInfo, error)
	Restore(ctx context.Context, key string) (*LoadResult, error)
	ListSnapshots(ctx context.Context) ([]repository.SnapshotInfo, error)
	CheckerInfo() analyzer.CheckerInfo
	Stats(ctx context.Context) LedgerStats
	SyncMirror(ctx context.Context) error
}

// EventPublisher is satisfied by the queue publisher.
type EventPublisher interface {
	PublishEntryAppended(ctx context.Context, event models.EntryAppendedEvent) error
}

type CheckResult struct {
	CheckID   string               `json:"check_id"`
	Result    analyzer.ScoreResult `json:"result"`
	DocumentA models.Document      `json:"document_a"`
	DocumentB models.Document      `json:"document_b"`
	Source    *models.Document     `json:"discovered_source,omitempty"`
	Entry     *ledger.Entry        `json:"entry,omitempty"`
	CheckedAt time.Time            `json:"checked_at"`
}

// ScoredDocument is DocumentA as it is recorded: with the check's score and,
// when DocumentB has one, its source URL.
func (r *CheckResult) ScoredDocument() models.Document {
	scored := r.DocumentA.WithScore(r.Result.Score)
	if r.DocumentB.HasSource() {
		scored = scored.WithSource(r.DocumentB.SourceURL)
	}
	return scored
}

type PairwiseResult struct {
	Algorithm  analyzer.Algorithm    `json:"algorithm"`
	Documents  int                   `json:"documents"`
	Duplicates int                   `json:"duplicates_removed,omitempty"`
	Pairs      []analyzer.PairResult `json:"pairs"`
}

type VerifyReport struct {
	Valid     bool   `json:"valid"`
	Length    int    `json:"length"`
	Index     *int   `json:"broken_index,omitempty"`
	Violation string `json:"violation,omitempty"`
	Error     string `json:"error,omitempty"`
}

type SaveResult struct {
	Path    string `json:"path"`
	Entries int    `json:"entries"`
	Bytes   int    `json:"bytes"`
}

type LoadResult struct {
	Entries int                 `json:"entries"`
	Skipped []codec.SkippedLine `json:"skipped,omitempty"`
	Meta    *codec.Meta         `json:"meta,omitempty"`
}

type MirrorStatus struct {
	Enabled bool   `json:"enabled"`
	Entries int    `json:"entries"`
	InSync  bool   `json:"in_sync"`
	Error   string `json:"error,omitempty"`
}

type LedgerStats struct {
	Length int          `json:"length"`
	Valid  bool         `json:"valid"`
	Mirror MirrorStatus `json:"mirror"`
}

type LedgerConfig struct {
	DefaultAlgorithm analyzer.Algorithm
	AutoSave         bool
	MirrorTimeout    time.Duration
}

type ledgerService struct {
	ledger       *ledger.Ledger
	checker      analyzer.PlagiarismChecker
	codec        codec.Codec
	fileStore    repository.FileStore
	entryRepo    repository.EntryRepository
	snapshots    repository.SnapshotRepository
	publisher    EventPublisher
	sourceFinder integration.SourceFinder
	mirrored     bool
	logger       zerolog.Logger
	config       LedgerConfig
	now          func() time.Time

	saveMu sync.Mutex
}

// Dependencies groups the optional collaborators; nil members disable the
// matching feature.
type Dependencies struct {
	EntryRepo    repository.EntryRepository
	Snapshots    repository.SnapshotRepository
	Publisher    EventPublisher
	SourceFinder integration.SourceFinder
}

func NewLedgerService(
	l *ledger.Ledger,
	checker analyzer.PlagiarismChecker,
	c codec.Codec,
	fileStore repository.FileStore,
	deps Dependencies,
	logger zerolog.Logger,
	config LedgerConfig,
) LedgerService {
	mirrored := deps.EntryRepo != nil
	if !mirrored {
		deps.EntryRepo = repository.NopEntryRepository{}
	}
	if config.MirrorTimeout <= 0 {
		config.MirrorTimeout = 5 * time.Second
	}

	return &ledgerService{
		ledger:       l,
		checker:      checker,
		codec:        c,
		fileStore:    fileStore,
		entryRepo:    deps.EntryRepo,
		snapshots:    deps.Snapshots,
		publisher:    deps.Publisher,
		sourceFinder: deps.SourceFinder,
		mirrored:     mirrored,
		logger:       logger,
		config:       config,
		now:          time.Now,
	}
}

func (s *ledgerService) algorithm(name string) analyzer.Algorithm {
	if name == "" {
		return s.config.DefaultAlgorithm
	}
	alg, known := analyzer.ParseAlgorithm(name)
	if !known {
		s.logger.Warn().
			Str("requested", name).
			Str("algorithm", alg.String()).
			Msg("Unknown algorithm, falling back")
	}
	return alg
}

func (s *ledgerService) Check(ctx context.Context, req models.CheckRequest) (*CheckResult, error) {
	checkID := uuid.New().String()
	alg := s.algorithm(req.Algorithm)

	var (
		docB   models.Document
		source *models.Document
	)

	switch {
	case req.DocumentB != nil:
		docB = *req.DocumentB
	case s.sourceFinder != nil:
		found, err := s.sourceFinder.FindSource(ctx, req.DocumentA)
		if err != nil {
			return nil, fmt.Errorf("failed to discover source: %w", err)
		}
		if found == nil {
			return nil, ErrSourceNotFound
		}
		docB = *found
		source = found
	default:
		return nil, fmt.Errorf("%w: document_b is required", ErrInvalidRequest)
	}

	result := s.checker.CheckPair(req.DocumentA, docB, alg)

	checkResult := &CheckResult{
		CheckID:   checkID,
		Result:    result,
		DocumentA: req.DocumentA,
		DocumentB: docB,
		Source:    source,
		CheckedAt: s.now().UTC(),
	}

	if req.Record {
		entry := s.Record(ctx, checkResult.ScoredDocument())
		checkResult.Entry = &entry
	}

	s.logger.Info().
		Str("check_id", checkID).
		Str("algorithm", alg.String()).
		Float64("score", result.Score).
		Str("verdict", string(result.Verdict)).
		Bool("recorded", req.Record).
		Msg("Check completed")

	return checkResult, nil
}

func (s *ledgerService) CheckPairwise(ctx context.Context, req models.PairwiseRequest) (*PairwiseResult, error) {
	docs := req.Documents
	if req.Dedupe {
		docs = models.DedupeDocuments(docs)
	}
	if len(docs) < 2 {
		return nil, fmt.Errorf("%w: at least two distinct documents are required", ErrInvalidRequest)
	}

	alg := s.algorithm(req.Algorithm)
	return &PairwiseResult{
		Algorithm:  alg,
		Documents:  len(docs),
		Duplicates: len(req.Documents) - len(docs),
		Pairs:      s.checker.CheckPairwise(docs, alg),
	}, nil
}

// Record appends doc and propagates the new entry to the mirror, the event
// bus and the ledger file. Propagation failures are logged; the append
// itself always stands.
func (s *ledgerService) Record(ctx context.Context, doc models.Document) ledger.Entry {
	entry := s.ledger.Append(doc)

	s.logger.Info().
		Int("index", entry.Index).
		Str("hash", entry.Hash).
		Str("title", doc.Title).
		Float64("score", doc.PlagiarismScore).
		Msg("Entry appended")

	mirrorCtx, cancel := context.WithTimeout(ctx, s.config.MirrorTimeout)
	defer cancel()

	if err := s.entryRepo.Save(mirrorCtx, entry); err != nil {
		s.logger.Error().Err(err).Int("index", entry.Index).Msg("Failed to mirror entry")
	}

	if s.publisher != nil {
		event := models.EntryAppendedEvent{
			EventID:         uuid.New().String(),
			Index:           entry.Index,
			Hash:            entry.Hash,
			PreviousHash:    entry.PreviousHash,
			Title:           entry.Document.Title,
			Author:          entry.Document.Author,
			PlagiarismScore: entry.Document.PlagiarismScore,
			SourceURL:       entry.Document.SourceURL,
			AppendedAt:      s.now().UTC(),
		}
		if err := s.publisher.PublishEntryAppended(mirrorCtx, event); err != nil {
			s.logger.Error().Err(err).Int("index", entry.Index).Msg("Failed to publish entry appended event")
		}
	}

	if s.config.AutoSave {
		if _, err := s.Save(ctx); err != nil {
			s.logger.Error().Err(err).Int("index", entry.Index).Msg("Auto-save failed")
		}
	}

	return entry
}

func (s *ledgerService) Entries() []ledger.Entry {
	return s.ledger.Entries()
}

func (s *ledgerService) Entry(index int) (ledger.Entry, error) {
	entry, ok := s.ledger.Get(index)
	if !ok {
		return ledger.Entry{}, fmt.Errorf("%w: index %d", ErrEntryNotFound, index)
	}
	return entry, nil
}

func (s *ledgerService) Verify() VerifyReport {
	return VerifyEntries(s.ledger.Entries())
}

// VerifyEntries reports on exactly the entries given, so a caller that
// already holds a copy of the chain gets a verdict for that copy.
func VerifyEntries(entries []ledger.Entry) VerifyReport {
	report := VerifyReport{Valid: true, Length: len(entries)}

	if err := ledger.Validate(entries); err != nil {
		report.Valid = false
		report.Error = err.Error()

		var verr *ledger.ValidationError
		if errors.As(err, &verr) {
			index := verr.Index
			report.Index = &index
			report.Violation = string(verr.Violation)
		}
	}

	return report
}

// Save snapshots the chain under the ledger's read lock and encodes and
// writes it outside of it. Saves are serialised so an older snapshot never
// overwrites a newer one.
func (s *ledgerService) Save(ctx context.Context) (*SaveResult, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	entries := s.ledger.Entries()

	data, err := s.encode(entries)
	if err != nil {
		return nil, err
	}

	if err := s.fileStore.Write(data); err != nil {
		return nil, fmt.Errorf("failed to save ledger: %w", err)
	}

	s.logger.Info().
		Str("path", s.fileStore.Path()).
		Int("entries", len(entries)).
		Msg("Ledger saved")

	return &SaveResult{
		Path:    s.fileStore.Path(),
		Entries: len(entries),
		Bytes:   len(data),
	}, nil
}

func (s *ledgerService) Load(ctx context.Context) (*LoadResult, error) {
	data, err := s.fileStore.Read()
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrLedgerNotFound, s.fileStore.Path())
		}
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	result, err := s.install(ctx, data)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("path", s.fileStore.Path()).
		Int("entries", result.Entries).
		Int("skipped", len(result.Skipped)).
		Msg("Ledger loaded")

	return result, nil
}

func (s *ledgerService) Backup(ctx context.Context) (*repository.SnapshotInfo, error) {
	if s.snapshots == nil {
		return nil, ErrSnapshotsDisabled
	}

	entries := s.ledger.Entries()
	data, err := s.encode(entries)
	if err != nil {
		return nil, err
	}

	key := repository.SnapshotKey(s.snapshots.Prefix(), s.now(), s.extension())
	info, err := s.snapshots.Upload(ctx, key, data)
	if err != nil {
		return nil, fmt.Errorf("failed to upload snapshot: %w", err)
	}

	s.logger.Info().
		Str("key", info.Key).
		Int("entries", len(entries)).
		Msg("Ledger snapshot created")

	return info, nil
}

func (s *ledgerService) Restore(ctx context.Context, key string) (*LoadResult, error) {
	if s.snapshots == nil {
		return nil, ErrSnapshotsDisabled
	}

	if key == "" {
		latest, err := s.snapshots.Latest(ctx)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrSnapshotNotFound
			}
			return nil, fmt.Errorf("failed to find latest snapshot: %w", err)
		}
		key = latest.Key
	}

	data, err := s.snapshots.Download(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, key)
		}
		return nil, fmt.Errorf("failed to download snapshot: %w", err)
	}

	result, err := s.install(ctx, data)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("key", key).
		Int("entries", result.Entries).
		Msg("Ledger restored from snapshot")

	return result, nil
}

func (s *ledgerService) ListSnapshots(ctx context.Context) ([]repository.SnapshotInfo, error) {
	if s.snapshots == nil {
		return nil, ErrSnapshotsDisabled
	}
	return s.snapshots.List(ctx)
}

func (s *ledgerService) CheckerInfo() analyzer.CheckerInfo {
	return s.checker.GetCheckerInfo()
}

// Stats reports the chain state and, when a database mirror is configured,
// whether the mirror holds exactly the ledger's entries.
func (s *ledgerService) Stats(ctx context.Context) LedgerStats {
	stats := LedgerStats{
		Length: s.ledger.Len(),
		Valid:  s.ledger.IsValid(),
	}
	if !s.mirrored {
		return stats
	}

	stats.Mirror.Enabled = true

	mirrorCtx, cancel := context.WithTimeout(ctx, s.config.MirrorTimeout)
	defer cancel()

	if err := s.entryRepo.Ping(mirrorCtx); err != nil {
		stats.Mirror.Error = err.Error()
		return stats
	}

	mirrored, err := s.entryRepo.List(mirrorCtx)
	if err != nil {
		stats.Mirror.Error = err.Error()
		return stats
	}
	stats.Mirror.Entries = len(mirrored)
	stats.Mirror.InSync = sameHashes(s.ledger.Entries(), mirrored)
	return stats
}

func sameHashes(a, b []ledger.Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Index != b[i].Index || a[i].Hash != b[i].Hash {
			return false
		}
	}
	return true
}

// SyncMirror rewrites the database mirror from the in-memory chain.
func (s *ledgerService) SyncMirror(ctx context.Context) error {
	if !s.mirrored {
		return nil
	}

	entries := s.ledger.Entries()

	mirrorCtx, cancel := context.WithTimeout(ctx, s.config.MirrorTimeout)
	defer cancel()

	if err := s.entryRepo.ReplaceAll(mirrorCtx, entries); err != nil {
		return fmt.Errorf("failed to sync ledger mirror: %w", err)
	}

	s.logger.Info().Int("entries", len(entries)).Msg("Ledger mirror synchronised")
	return nil
}

// install decodes, validates and swaps in a chain. Nothing is touched when
// validation fails.
func (s *ledgerService) install(ctx context.Context, data []byte) (*LoadResult, error) {
	decoded, err := s.codec.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode ledger: %w", err)
	}

	for _, skipped := range decoded.Skipped {
		s.logger.Warn().
			Int("line", skipped.Line).
			Str("reason", skipped.Reason).
			Msg("Skipped corrupt ledger line")
	}

	if len(decoded.Entries) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidChain, ledger.ErrEmptyChain)
	}

	candidate := ledger.FromEntries(decoded.Entries)
	if err := candidate.Verify(); err != nil {
		s.logger.Error().Err(err).Msg("Refusing to install invalid ledger")
		return nil, fmt.Errorf("%w: %w", ErrInvalidChain, err)
	}

	if err := s.ledger.ReplaceAll(decoded.Entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidChain, err)
	}

	mirrorCtx, cancel := context.WithTimeout(ctx, s.config.MirrorTimeout)
	defer cancel()
	if err := s.entryRepo.ReplaceAll(mirrorCtx, decoded.Entries); err != nil {
		s.logger.Error().Err(err).Msg("Failed to replace ledger mirror")
	}

	return &LoadResult{
		Entries: len(decoded.Entries),
		Skipped: decoded.Skipped,
		Meta:    decoded.Meta,
	}, nil
}

func (s *ledgerService) encode(entries []ledger.Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.codec.Encode(&buf, entries, codec.NewMeta(len(entries), s.now())); err != nil {
		return nil, fmt.Errorf("failed to encode ledger: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *ledgerService) extension() string {
	if s.codec.Format() == codec.FormatJSONL {
		return "jsonl"
	}
	return "txt"
}
