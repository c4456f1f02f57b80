package repository

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrEntryConflict    = errors.New("entry already stored with a different hash")
)
