package service

import "errors"

// Sentinel errors mapped onto HTTP status codes by the delivery layer.
var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrEntryNotFound     = errors.New("ledger entry not found")
	ErrSourceNotFound    = errors.New("no source found for document")
	ErrInvalidChain      = errors.New("ledger chain is invalid")
	ErrLedgerNotFound    = errors.New("ledger file not found")
	ErrSnapshotNotFound  = errors.New("snapshot not found")
	ErrSnapshotsDisabled = errors.New("snapshot storage is not configured")
)
