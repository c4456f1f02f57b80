package repository

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

type FileStore interface {
	Write(data []byte) error
	Read() ([]byte, error)
	Path() string
}

type fileStore struct {
	path   string
	logger zerolog.Logger
}

func NewFileStore(path string, logger zerolog.Logger) FileStore {
	return &fileStore{
		path:   path,
		logger: logger,
	}
}

func (s *fileStore) Path() string {
	return s.path
}

// Write replaces the file atomically: data goes to a temp file in the same
// directory which is then renamed over the target.
func (s *fileStore) Write(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write ledger file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync ledger file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close ledger file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace ledger file: %w", err)
	}

	s.logger.Debug().
		Str("path", s.path).
		Int("bytes", len(data)).
		Msg("Ledger file written")

	return nil
}

func (s *fileStore) Read() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("ledger file %s: %w", s.path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read ledger file: %w", err)
	}
	return data, nil
}
