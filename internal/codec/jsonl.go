package codec

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/RubachokBoss/plagiarism-ledger/internal/ledger"
	"github.com/RubachokBoss/plagiarism-ledger/internal/models"
)

type jsonlDocument struct {
	Title           string  `json:"title"`
	Author          string  `json:"author"`
	SubmissionDate  string  `json:"submissionDate"`
	Text            string  `json:"text"`
	SourceURL       string  `json:"sourceUrl,omitempty"`
	PlagiarismScore float64 `json:"plagiarismScore"`
}

type jsonlRecord struct {
	Index        *int           `json:"index"`
	Timestamp    string         `json:"timestamp"`
	PreviousHash string         `json:"previousHash"`
	Hash         string         `json:"hash"`
	Document     *jsonlDocument `json:"document"`
}

type jsonlHeader struct {
	Meta *Meta `json:"meta"`
}

type jsonlCodec struct{}

func (jsonlCodec) Format() Format {
	return FormatJSONL
}

func (jsonlCodec) Encode(w io.Writer, entries []ledger.Entry, meta *Meta) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)

	if meta != nil {
		if err := enc.Encode(jsonlHeader{Meta: meta}); err != nil {
			return fmt.Errorf("failed to write ledger header: %w", err)
		}
	}

	for _, e := range entries {
		index := e.Index
		record := jsonlRecord{
			Index:        &index,
			Timestamp:    e.Timestamp,
			PreviousHash: e.PreviousHash,
			Hash:         e.Hash,
			Document: &jsonlDocument{
				Title:           e.Document.Title,
				Author:          e.Document.Author,
				SubmissionDate:  e.Document.SubmissionDate,
				Text:            e.Document.Text,
				SourceURL:       e.Document.SourceURL,
				PlagiarismScore: e.Document.PlagiarismScore,
			},
		}
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("failed to write entry %d: %w", e.Index, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush ledger: %w", err)
	}
	return nil
}

func (jsonlCodec) Decode(r io.Reader) (*Result, error) {
	result := &Result{Entries: []ledger.Entry{}}

	err := readLines(r, func(number int, line string) {
		if result.Meta == nil && len(result.Entries) == 0 {
			var header jsonlHeader
			if err := json.Unmarshal([]byte(line), &header); err == nil && header.Meta != nil {
				result.Meta = header.Meta
				return
			}
		}

		entry, err := decodeRecord([]byte(line))
		if err != nil {
			result.skip(number, err)
			return
		}
		result.Entries = append(result.Entries, entry)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func decodeRecord(line []byte) (ledger.Entry, error) {
	var record jsonlRecord
	if err := json.Unmarshal(line, &record); err != nil {
		return ledger.Entry{}, fmt.Errorf("invalid json: %w", err)
	}
	if record.Index == nil {
		return ledger.Entry{}, errors.New("missing index")
	}
	if record.Hash == "" {
		return ledger.Entry{}, errors.New("missing hash")
	}
	if record.Document == nil {
		return ledger.Entry{}, errors.New("missing document")
	}

	return ledger.Entry{
		Index:        *record.Index,
		Timestamp:    record.Timestamp,
		PreviousHash: record.PreviousHash,
		Hash:         record.Hash,
		Document: models.Document{
			Title:           record.Document.Title,
			Author:          record.Document.Author,
			SubmissionDate:  record.Document.SubmissionDate,
			Text:            record.Document.Text,
			SourceURL:       record.Document.SourceURL,
			PlagiarismScore: record.Document.PlagiarismScore,
		},
	}, nil
}
