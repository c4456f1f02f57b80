package models

import (
	"math"
	"strings"

	"github.com/RubachokBoss/plagiarism-ledger/pkg/hash"
)

// Document is a value type. Scoring and provenance produce copies, so a
// Document held by a ledger entry never changes.
type Document struct {
	Title           string  `json:"title"`
	Author          string  `json:"author"`
	SubmissionDate  string  `json:"submission_date"`
	Text            string  `json:"text"`
	SourceURL       string  `json:"source_url,omitempty"`
	PlagiarismScore float64 `json:"plagiarism_score"`
}

const (
	GenesisTitle  = "Genesis"
	GenesisAuthor = "System"
	GenesisText   = "Genesis block"
)

func NewDocument(title, author, submissionDate, text string) Document {
	return Document{
		Title:          title,
		Author:         author,
		SubmissionDate: submissionDate,
		Text:           text,
	}
}

// ValidUTF8 replaces every run of invalid UTF-8 bytes in the string fields
// with U+FFFD. Both ledger formats can only store valid UTF-8, so entries
// hash the same text they are written with.
func (d Document) ValidUTF8() Document {
	for _, field := range []*string{&d.Title, &d.Author, &d.SubmissionDate, &d.Text, &d.SourceURL} {
		*field = strings.ToValidUTF8(*field, "\uFFFD")
	}
	return d
}

// GenesisDocument is the placeholder stored in entry 0 of every ledger.
func GenesisDocument(submissionDate string) Document {
	return NewDocument(GenesisTitle, GenesisAuthor, submissionDate, GenesisText)
}

// WithScore clamps score into [0,1]; NaN becomes 0.
func (d Document) WithScore(score float64) Document {
	d.PlagiarismScore = ClampScore(score)
	return d
}

func (d Document) WithSource(url string) Document {
	d.SourceURL = strings.TrimSpace(url)
	return d
}

func (d Document) HasSource() bool {
	return d.SourceURL != ""
}

// ContentKey is a stable digest of the identity fields: title, author, date
// and text. Score and source URL are not part of a document's identity.
func (d Document) ContentKey() string {
	var b strings.Builder
	for _, field := range []string{d.Title, d.Author, d.SubmissionDate, d.Text} {
		b.WriteString(field)
		b.WriteByte(0)
	}
	return hash.SHA256Hex(b.String())
}

func ClampScore(score float64) float64 {
	switch {
	case math.IsNaN(score), score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}

// DedupeDocuments keeps the first occurrence of every content identity.
func DedupeDocuments(docs []Document) []Document {
	seen := make(map[string]struct{}, len(docs))
	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		key := doc.ContentKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, doc)
	}
	return out
}
