package ledger

import (
	"strconv"
	"strings"

	"github.com/RubachokBoss/plagiarism-ledger/internal/models"
	"github.com/RubachokBoss/plagiarism-ledger/pkg/hash"
)

const (
	// GenesisPreviousHash is the sentinel link stored in entry 0.
	GenesisPreviousHash = "0"

	// HashedTextLimit caps how many runes of the document text enter the hash.
	HashedTextLimit = 256

	hashFieldSeparator = "|"
)

// Entry is one immutable record of the chain. It is passed by value; there
// are no setters.
type Entry struct {
	Index        int             `json:"index"`
	Timestamp    string          `json:"timestamp"`
	Document     models.Document `json:"document"`
	PreviousHash string          `json:"previous_hash"`
	Hash         string          `json:"hash"`
}

// NewEntry builds an entry and computes its hash.
func NewEntry(index int, timestamp string, doc models.Document, previousHash string) Entry {
	e := Entry{
		Index:        index,
		Timestamp:    timestamp,
		Document:     doc,
		PreviousHash: previousHash,
	}
	e.Hash = e.ComputeHash()
	return e
}

// ComputeHash recomputes the digest from the stored fields.
func (e Entry) ComputeHash() string {
	return hash.SHA256Hex(HashPayload(e.Index, e.Timestamp, e.Document, e.PreviousHash))
}

// HasValidHash reports whether the stored hash matches the recomputed one.
func (e Entry) HasValidHash() bool {
	return e.Hash == e.ComputeHash()
}

func (e Entry) IsGenesis() bool {
	return e.Index == 0 && e.PreviousHash == GenesisPreviousHash
}

// HashPayload is the canonical pre-image of an entry hash:
// index|timestamp|title|author|date|score(%.6f)|text(first 256 runes)|previousHash
func HashPayload(index int, timestamp string, doc models.Document, previousHash string) string {
	fields := []string{
		strconv.Itoa(index),
		timestamp,
		doc.Title,
		doc.Author,
		doc.SubmissionDate,
		strconv.FormatFloat(doc.PlagiarismScore, 'f', 6, 64),
		truncateRunes(doc.Text, HashedTextLimit),
		previousHash,
	}
	return strings.Join(fields, hashFieldSeparator)
}

func truncateRunes(s string, limit int) string {
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
