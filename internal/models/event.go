package models

import "time"

const (
	EventEntryAppended   = "ledger.entry_appended"
	EventCheckRequested  = "check.requested"
	EventRecordRequested = "ledger.record_requested"
)

type EntryAppendedEvent struct {
	EventID         string    `json:"event_id"`
	Index           int       `json:"index"`
	Hash            string    `json:"hash"`
	PreviousHash    string    `json:"previous_hash"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	PlagiarismScore float64   `json:"plagiarism_score"`
	SourceURL       string    `json:"source_url,omitempty"`
	AppendedAt      time.Time `json:"appended_at"`
}

type CheckRequestedEvent struct {
	CheckID     string       `json:"check_id"`
	Request     CheckRequest `json:"request"`
	RequestedAt time.Time    `json:"requested_at"`
}

// RecordRequestedEvent carries an already scored document from a standalone
// worker to the process that owns the ledger.
type RecordRequestedEvent struct {
	EventID     string    `json:"event_id"`
	CheckID     string    `json:"check_id"`
	Document    Document  `json:"document"`
	RequestedAt time.Time `json:"requested_at"`
}
