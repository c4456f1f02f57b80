// Package codec reads and writes ledger snapshots as line oriented text.
//
// Two formats are supported: a pipe delimited one (the default) and JSON
// lines. Decoding never recomputes hashes and never validates the chain;
// callers must run ledger.Validate on the result before installing it.
package codec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/RubachokBoss/plagiarism-ledger/internal/ledger"
)

type Format string

const (
	FormatDelimited Format = "delimited"
	FormatJSONL     Format = "jsonl"
)

const CurrentVersion = 1

var ErrUnknownFormat = errors.New("unknown ledger format")

func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "delimited", "pipe", "txt":
		return FormatDelimited, nil
	case "jsonl", "ndjson", "json-lines":
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// Meta is the optional header line of a snapshot.
type Meta struct {
	Version int    `json:"version"`
	SavedAt string `json:"savedAt"`
	Entries int    `json:"entries"`
}

func NewMeta(entries int, savedAt time.Time) *Meta {
	return &Meta{
		Version: CurrentVersion,
		SavedAt: savedAt.UTC().Format(time.RFC3339Nano),
		Entries: entries,
	}
}

// SkippedLine describes an input line that could not be parsed.
type SkippedLine struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

type Result struct {
	Entries []ledger.Entry
	Skipped []SkippedLine
	Meta    *Meta
}

func (r *Result) skip(line int, err error) {
	r.Skipped = append(r.Skipped, SkippedLine{Line: line, Reason: err.Error()})
}

type Codec interface {
	Format() Format
	Encode(w io.Writer, entries []ledger.Entry, meta *Meta) error
	Decode(r io.Reader) (*Result, error)
}

func New(format Format) (Codec, error) {
	switch format {
	case FormatDelimited, "":
		return delimitedCodec{}, nil
	case FormatJSONL:
		return jsonlCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func Marshal(format Format, entries []ledger.Entry, meta *Meta) ([]byte, error) {
	c, err := New(format)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := c.Encode(&buf, entries, meta); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Unmarshal(format Format, data []byte) (*Result, error) {
	c, err := New(format)
	if err != nil {
		return nil, err
	}
	return c.Decode(bytes.NewReader(data))
}

// readLines calls fn for every non-blank line with its 1-based number. Line
// terminators (LF or CRLF) are stripped. Lines have no length limit.
func readLines(r io.Reader, fn func(number int, line string)) error {
	br := bufio.NewReader(r)
	number := 0
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			number++
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			if strings.TrimSpace(line) != "" {
				fn(number, line)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read ledger line %d: %w", number+1, err)
		}
	}
}
