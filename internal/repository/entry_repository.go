package repository

import (
	"context"
	"fmt"

	"github.com/RubachokBoss/plagiarism-ledger/internal/ledger"
)

// EntryRepository mirrors the ledger into the ledger_entries table.
type EntryRepository interface {
	Save(ctx context.Context, entry ledger.Entry) error
	ReplaceAll(ctx context.Context, entries []ledger.Entry) error
	List(ctx context.Context) ([]ledger.Entry, error)
	Ping(ctx context.Context) error
}

type entryRepository struct {
	*SQLRepository
}

func NewEntryRepository(base *SQLRepository) EntryRepository {
	return &entryRepository{SQLRepository: base}
}

// Stored rows are never rewritten: a second insert for an index is a no-op.
const insertEntryQuery = `
	INSERT INTO ledger_entries (
		entry_index, entry_timestamp, previous_hash, hash,
		title, author, submission_date, document_text, source_url, plagiarism_score
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (entry_index) DO NOTHING
`

func entryArgs(e ledger.Entry) []any {
	return []any{
		e.Index,
		e.Timestamp,
		e.PreviousHash,
		e.Hash,
		e.Document.Title,
		e.Document.Author,
		e.Document.SubmissionDate,
		e.Document.Text,
		e.Document.SourceURL,
		e.Document.PlagiarismScore,
	}
}

// Save inserts entry. Saving an index that is already stored with the same
// hash succeeds; a different hash is ErrEntryConflict and the row is kept.
func (r *entryRepository) Save(ctx context.Context, entry ledger.Entry) error {
	result, err := r.db.ExecContext(ctx, r.rebind(insertEntryQuery), entryArgs(entry)...)
	if err != nil {
		return fmt.Errorf("failed to save entry %d: %w", entry.Index, err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save entry %d: %w", entry.Index, err)
	}

	if inserted == 0 {
		var stored string
		err := r.db.QueryRowContext(ctx, r.rebind(`SELECT hash FROM ledger_entries WHERE entry_index = ?`), entry.Index).Scan(&stored)
		if err != nil {
			return fmt.Errorf("failed to read stored entry %d: %w", entry.Index, err)
		}
		if stored != entry.Hash {
			return fmt.Errorf("entry %d is stored with hash %s: %w", entry.Index, stored, ErrEntryConflict)
		}
		return nil
	}

	r.logger.Debug().
		Int("index", entry.Index).
		Str("hash", entry.Hash).
		Msg("Ledger entry mirrored")

	return nil
}

func (r *entryRepository) ReplaceAll(ctx context.Context, entries []ledger.Entry) error {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_entries`); err != nil {
		return fmt.Errorf("failed to clear ledger entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, r.rebind(insertEntryQuery))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, entryArgs(e)...); err != nil {
			return fmt.Errorf("failed to insert entry %d: %w", e.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger entries: %w", err)
	}

	r.logger.Info().
		Int("entries", len(entries)).
		Msg("Ledger mirror replaced")

	return nil
}

func (r *entryRepository) List(ctx context.Context) ([]ledger.Entry, error) {
	query := `
		SELECT
			entry_index, entry_timestamp, previous_hash, hash,
			title, author, submission_date, document_text, source_url, plagiarism_score
		FROM ledger_entries
		ORDER BY entry_index ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := []ledger.Entry{}
	for rows.Next() {
		var e ledger.Entry
		err := rows.Scan(
			&e.Index,
			&e.Timestamp,
			&e.PreviousHash,
			&e.Hash,
			&e.Document.Title,
			&e.Document.Author,
			&e.Document.SubmissionDate,
			&e.Document.Text,
			&e.Document.SourceURL,
			&e.Document.PlagiarismScore,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}

	return entries, nil
}

// NopEntryRepository is used when no database is configured.
type NopEntryRepository struct{}

func (NopEntryRepository) Save(context.Context, ledger.Entry) error         { return nil }
func (NopEntryRepository) ReplaceAll(context.Context, []ledger.Entry) error { return nil }
func (NopEntryRepository) List(context.Context) ([]ledger.Entry, error)     { return nil, nil }
func (NopEntryRepository) Ping(context.Context) error                       { return nil }
