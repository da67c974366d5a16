package normalizer

import (
	"fmt"
	"strings"
)

// InvalidInputError reports a batch that is not a well-formed table.
// No partial batch accompanies it.
type InvalidInputError struct {
	Reason  string
	Columns []string
}

func (e *InvalidInputError) Error() string {
	if len(e.Columns) == 0 {
		return "invalid input: " + e.Reason
	}
	quoted := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Reason, strings.Join(quoted, ", "))
}

func invalid(reason string, columns ...string) *InvalidInputError {
	return &InvalidInputError{Reason: reason, Columns: columns}
}
