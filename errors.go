package tickwatch

import (
	"errors"
	"fmt"
)

// ErrNoValue is the sentinel wrapped by an [ExtractionError] when every
// strategy fell through without resolving a value.
var ErrNoValue = errors.New("no strategy resolved a value")

// ErrNotStarted is returned by boundary operations invoked before
// [Watcher.Start].
var ErrNotStarted = errors.New("watcher not started")

// AcquisitionError reports that a page handle could not be opened for a
// ticker. It is fatal to the AddTicker call that triggered it and to
// nothing else; the ticker is never registered.
type AcquisitionError struct {
	Ticker string
	URL    string
	Err    error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire page for %s (%s): %v", e.Ticker, e.URL, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// ExtractionError reports that one sampling cycle resolved no value for a
// ticker. It is transient: the monitor logs it and keeps sampling, and no
// sample reaches any subscriber. A zero price is never reported as data;
// this error is the only possible outcome of a cycle without a value.
type ExtractionError struct {
	Ticker string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Ticker, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
