package codec

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/RubachokBoss/plagiarism-ledger/internal/ledger"
	"github.com/RubachokBoss/plagiarism-ledger/internal/models"
)

const (
	fieldSeparator = '|'
	escapeChar     = '\\'
	fieldCount     = 10
	metaPrefix     = "#ledger"
	commentPrefix  = "#"
)

var errDanglingEscape = errors.New("line ends with an unfinished escape")

// delimitedCodec writes one entry per line:
// index|timestamp|previousHash|hash|title|author|submissionDate|score|sourceUrl|text
type delimitedCodec struct{}

func (delimitedCodec) Format() Format {
	return FormatDelimited
}

func (delimitedCodec) Encode(w io.Writer, entries []ledger.Entry, meta *Meta) error {
	bw := bufio.NewWriter(w)

	if meta != nil {
		line := strings.Join([]string{
			metaPrefix,
			"v" + strconv.Itoa(meta.Version),
			escapeField(meta.SavedAt),
			strconv.Itoa(meta.Entries),
		}, string(fieldSeparator))
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("failed to write ledger header: %w", err)
		}
	}

	for _, e := range entries {
		if _, err := bw.WriteString(encodeEntry(e) + "\n"); err != nil {
			return fmt.Errorf("failed to write entry %d: %w", e.Index, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush ledger: %w", err)
	}
	return nil
}

func (delimitedCodec) Decode(r io.Reader) (*Result, error) {
	result := &Result{Entries: []ledger.Entry{}}

	err := readLines(r, func(number int, line string) {
		if strings.HasPrefix(line, commentPrefix) {
			if result.Meta == nil && len(result.Entries) == 0 && strings.HasPrefix(line, metaPrefix+string(fieldSeparator)) {
				meta, err := decodeMeta(line)
				if err != nil {
					result.skip(number, err)
					return
				}
				result.Meta = meta
			}
			return
		}

		entry, err := decodeEntry(line)
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

func encodeEntry(e ledger.Entry) string {
	fields := []string{
		strconv.Itoa(e.Index),
		e.Timestamp,
		e.PreviousHash,
		e.Hash,
		e.Document.Title,
		e.Document.Author,
		e.Document.SubmissionDate,
		strconv.FormatFloat(e.Document.PlagiarismScore, 'g', -1, 64),
		e.Document.SourceURL,
		e.Document.Text,
	}

	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(fieldSeparator)
		}
		b.WriteString(escapeField(f))
	}
	return b.String()
}

func decodeEntry(line string) (ledger.Entry, error) {
	fields, err := splitFields(line)
	if err != nil {
		return ledger.Entry{}, err
	}
	if len(fields) != fieldCount {
		return ledger.Entry{}, fmt.Errorf("expected %d fields, got %d", fieldCount, len(fields))
	}

	index, err := strconv.Atoi(fields[0])
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("invalid index %q", fields[0])
	}

	score, err := strconv.ParseFloat(fields[7], 64)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("invalid score %q", fields[7])
	}

	return ledger.Entry{
		Index:        index,
		Timestamp:    fields[1],
		PreviousHash: fields[2],
		Hash:         fields[3],
		Document: models.Document{
			Title:           fields[4],
			Author:          fields[5],
			SubmissionDate:  fields[6],
			PlagiarismScore: score,
			SourceURL:       fields[8],
			Text:            fields[9],
		},
	}, nil
}

func decodeMeta(line string) (*Meta, error) {
	fields, err := splitFields(line)
	if err != nil {
		return nil, err
	}
	if len(fields) != 4 || !strings.HasPrefix(fields[1], "v") {
		return nil, fmt.Errorf("malformed header %q", line)
	}

	version, err := strconv.Atoi(strings.TrimPrefix(fields[1], "v"))
	if err != nil {
		return nil, fmt.Errorf("invalid header version %q", fields[1])
	}
	count, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, fmt.Errorf("invalid header entry count %q", fields[3])
	}

	return &Meta{Version: version, SavedAt: fields[2], Entries: count}, nil
}

func escapeField(s string) string {
	if !strings.ContainsAny(s, "\\|\n\r") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		switch r {
		case escapeChar:
			b.WriteString(`\\`)
		case fieldSeparator:
			b.WriteString(`\|`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// splitFields splits on unescaped separators and resolves escapes.
func splitFields(line string) ([]string, error) {
	var (
		fields  []string
		current strings.Builder
		escaped bool
	)

	for _, r := range line {
		if escaped {
			switch r {
			case 'n':
				current.WriteRune('\n')
			case 'r':
				current.WriteRune('\r')
			default:
				current.WriteRune(r)
			}
			escaped = false
			continue
		}

		switch r {
		case escapeChar:
			escaped = true
		case fieldSeparator:
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}

	if escaped {
		return nil, errDanglingEscape
	}
	return append(fields, current.String()), nil
}
