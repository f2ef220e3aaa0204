package feed

import (
	"context"
	"errors"
	"fmt"
)

// FetchError reports a failed source. It is never fatal for a run,
// the source contributes zero items and is retried on the next run.
type FetchError struct {
	Source string
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %q from %s: %v", e.Source, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Timeout reports whether the fetch ran out of its time budget
func (e *FetchError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// ItemParseError describes a single malformed item skipped within an otherwise good feed
type ItemParseError struct {
	Source string
	Index  int // position of the item in the feed
	Reason string
}

func (e ItemParseError) Error() string {
	return fmt.Sprintf("item #%d of %q skipped: %s", e.Index, e.Source, e.Reason)
}

var errUnsupportedScheme = errors.New("unsupported link scheme")
