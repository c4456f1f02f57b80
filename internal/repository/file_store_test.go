package repository

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestFileStoreWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "ledger.txt")
	store := NewFileStore(path, zerolog.Nop())

	if _, err := store.Read(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read() on missing file error = %v, want ErrNotFound", err)
	}

	if err := store.Write([]byte("first\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := store.Write([]byte("second\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := store.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(data) != "second\n" {
		t.Errorf("Read() = %q, want %q", data, "second\n")
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the ledger file, found %d entries", len(entries))
	}
}

func TestFileStoreWriteFailureKeepsPreviousContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.txt")
	store := NewFileStore(path, zerolog.Nop())

	if err := store.Write([]byte("kept")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	// a directory in place of the target makes the rename fail
	blocked := NewFileStore(filepath.Join(dir, "sub"), zerolog.Nop())
	if err := os.MkdirAll(filepath.Join(dir, "sub", "child"), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := blocked.Write([]byte("lost")); err == nil {
		t.Fatal("expected Write() over a directory to fail")
	}

	data, err := store.Read()
	if err != nil || string(data) != "kept" {
		t.Errorf("Read() = (%q, %v), want kept", data, err)
	}
}
