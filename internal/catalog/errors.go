package catalog

import (
	"errors"
	"fmt"
)

// ErrMissingReference marks a cast write whose catalog entry does not exist
// in the sink. Callers count it and move on; it never aborts a run.
var ErrMissingReference = errors.New("no catalog entry for cast record")

// FormatError reports a missing or malformed structured index listing.
// It is fatal to the run: retrying cannot conjure up a missing block.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("index format: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("index format: %s", e.Reason)
}

func (e *FormatError) Unwrap() error { return e.Err }

// TerminalFetchError marks a work item whose retry budget is exhausted.
// It is local to the item; the rest of the run continues.
type TerminalFetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *TerminalFetchError) Error() string {
	return fmt.Sprintf("fetch %s failed terminally after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *TerminalFetchError) Unwrap() error { return e.Err }
