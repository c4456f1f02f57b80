package ledger

import (
	"errors"
	"fmt"
)

var ErrEmptyChain = errors.New("ledger chain is empty")

type Violation string

const (
	ViolationIndex        Violation = "index_mismatch"
	ViolationPreviousHash Violation = "previous_hash_mismatch"
	ViolationHash         Violation = "hash_mismatch"
)

// ValidationError points at the first entry that breaks the chain.
type ValidationError struct {
	Index     int
	Violation Violation
	Expected  string
	Actual    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ledger entry %d: %s (expected %q, got %q)", e.Index, e.Violation, e.Expected, e.Actual)
}
