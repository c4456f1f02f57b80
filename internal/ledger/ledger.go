// Package ledger implements the append-only, hash-linked chain of scored
// documents. A single RWMutex guards the whole sequence: appends and
// replacements are exclusive, verification and reads may overlap.
package ledger

import (
	"strconv"
	"sync"
	"time"

	"github.com/RubachokBoss/plagiarism-ledger/internal/models"
)

type Clock func() time.Time

type Option func(*Ledger)

// WithClock replaces the timestamp source.
func WithClock(clock Clock) Option {
	return func(l *Ledger) {
		if clock != nil {
			l.now = clock
		}
	}
}

type Ledger struct {
	mu      sync.RWMutex
	entries []Entry
	now     Clock
}

// New creates a ledger holding only the genesis entry.
func New(opts ...Option) *Ledger {
	l := &Ledger{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}

	ts := l.timestamp()
	l.entries = []Entry{NewEntry(0, ts, models.GenesisDocument(ts), GenesisPreviousHash)}
	return l
}

// FromEntries wraps an already-built sequence without validating it.
// Callers must run IsValid or Verify before trusting the result.
func FromEntries(entries []Entry, opts ...Option) *Ledger {
	l := &Ledger{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	l.entries = cloneEntries(entries)
	return l
}

// Append links doc to the current tip and returns the new entry. Invalid
// UTF-8 in doc is replaced before hashing.
func (l *Ledger) Append(doc models.Document) Entry {
	doc = doc.ValidUTF8()

	l.mu.Lock()
	defer l.mu.Unlock()

	previousHash := GenesisPreviousHash
	if n := len(l.entries); n > 0 {
		previousHash = l.entries[n-1].Hash
	}

	entry := NewEntry(len(l.entries), l.timestamp(), doc, previousHash)
	l.entries = append(l.entries, entry)
	return entry
}

func (l *Ledger) IsValid() bool {
	return l.Verify() == nil
}

// Verify returns nil for an intact chain or a *ValidationError naming the
// first broken entry.
func (l *Ledger) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return Validate(l.entries)
}

// ReplaceAll installs entries wholesale. An invalid or empty sequence is
// refused and the ledger keeps its current contents.
func (l *Ledger) ReplaceAll(entries []Entry) error {
	if len(entries) == 0 {
		return ErrEmptyChain
	}
	if err := Validate(entries); err != nil {
		return err
	}

	replacement := cloneEntries(entries)

	l.mu.Lock()
	l.entries = replacement
	l.mu.Unlock()
	return nil
}

// Entries returns a copy of the chain.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return cloneEntries(l.entries)
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.entries)
}

func (l *Ledger) Get(index int) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if index < 0 || index >= len(l.entries) {
		return Entry{}, false
	}
	return l.entries[index], true
}

func (l *Ledger) Last() (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Validate walks entries from index 1, checking the dense index, the link to
// the predecessor and the recomputed hash. Empty and genesis-only sequences
// are valid.
func Validate(entries []Entry) error {
	for i := 1; i < len(entries); i++ {
		current := entries[i]
		previous := entries[i-1]

		if current.Index != i {
			return &ValidationError{
				Index:     i,
				Violation: ViolationIndex,
				Expected:  strconv.Itoa(i),
				Actual:    strconv.Itoa(current.Index),
			}
		}

		if current.PreviousHash != previous.Hash {
			return &ValidationError{
				Index:     i,
				Violation: ViolationPreviousHash,
				Expected:  previous.Hash,
				Actual:    current.PreviousHash,
			}
		}

		if computed := current.ComputeHash(); computed != current.Hash {
			return &ValidationError{
				Index:     i,
				Violation: ViolationHash,
				Expected:  computed,
				Actual:    current.Hash,
			}
		}
	}
	return nil
}

func (l *Ledger) timestamp() string {
	return l.now().UTC().Format(time.RFC3339Nano)
}

func cloneEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}
