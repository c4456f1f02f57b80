package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/RubachokBoss/plagiarism-ledger/internal/ledger"
	"github.com/RubachokBoss/plagiarism-ledger/internal/models"
	"github.com/RubachokBoss/plagiarism-ledger/internal/repository"
)

type memoryFileStore struct {
	mu       sync.Mutex
	data     []byte
	exists   bool
	writeErr error
	writes   int
}

func (m *memoryFileStore) Write(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.data = append([]byte(nil), data...)
	m.exists = true
	m.writes++
	return nil
}

func (m *memoryFileStore) Read() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.exists {
		return nil, repository.ErrNotFound
	}
	return append([]byte(nil), m.data...), nil
}

func (m *memoryFileStore) Path() string { return "memory://ledger" }

type recordingEntryRepo struct {
	mu       sync.Mutex
	saved    []ledger.Entry
	replaced []ledger.Entry
}

func (r *recordingEntryRepo) Save(_ context.Context, e ledger.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, e)
	return nil
}

func (r *recordingEntryRepo) ReplaceAll(_ context.Context, entries []ledger.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaced = append([]ledger.Entry(nil), entries...)
	r.saved = append([]ledger.Entry(nil), entries...)
	return nil
}

func (r *recordingEntryRepo) List(context.Context) ([]ledger.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ledger.Entry(nil), r.saved...), nil
}

func (r *recordingEntryRepo) Ping(context.Context) error { return nil }

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.EntryAppendedEvent
	err    error
}

func (p *recordingPublisher) PublishEntryAppended(_ context.Context, event models.EntryAppendedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

type stubFinder struct {
	doc *models.Document
	err error
}

func (f stubFinder) FindSource(context.Context, models.Document) (*models.Document, error) {
	return f.doc, f.err
}

type memorySnapshots struct {
	mu      sync.Mutex
	objects map[string][]byte
	order   []string
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{objects: make(map[string][]byte)}
}

func (m *memorySnapshots) Upload(_ context.Context, key string, data []byte) (*repository.SnapshotInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	m.order = append(m.order, key)
	return &repository.SnapshotInfo{Key: key, Size: int64(len(data)), LastModified: time.Now()}, nil
}

func (m *memorySnapshots) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return data, nil
}

func (m *memorySnapshots) List(context.Context) ([]repository.SnapshotInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := append([]string(nil), m.order...)
	sort.Strings(keys)
	infos := make([]repository.SnapshotInfo, 0, len(keys))
	for _, k := range keys {
		infos = append(infos, repository.SnapshotInfo{Key: k, Size: int64(len(m.objects[k]))})
	}
	return infos, nil
}

func (m *memorySnapshots) Latest(ctx context.Context) (*repository.SnapshotInfo, error) {
	infos, _ := m.List(ctx)
	if len(infos) == 0 {
		return nil, repository.ErrNotFound
	}
	return &infos[len(infos)-1], nil
}

func (m *memorySnapshots) Prefix() string { return "snapshots/" }

var errBoom = errors.New("boom")
