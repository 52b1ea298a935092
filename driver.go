package tickwatch

import "context"

// PageHandle is an opaque, live, navigable rendered source for one
// ticker. A handle is owned exclusively by the monitor that acquired it
// and is never shared across tickers.
//
// Read operations report absence with a false second return rather than
// an error: a missing field is an expected outcome the extraction chain
// falls through on, not a fault.
type PageHandle interface {
	// Refresh brings the handle up to date with the live source. The
	// monitor calls it once at the start of every sampling cycle.
	Refresh(ctx context.Context) error

	// ReadField returns the text content of the first element matching
	// the selector, or false if no such element exists.
	ReadField(ctx context.Context, selector string) (string, bool)

	// EvaluateScript resolves a probe against the page's script context
	// (for example a known global data object) and returns its raw
	// textual value, or false if the probe resolves to nothing.
	EvaluateScript(ctx context.Context, probe string) (string, bool)

	// Text returns the page's text-bearing nodes, one string per node.
	Text(ctx context.Context) []string

	// Title returns the document title, or the empty string if there is
	// none.
	Title(ctx context.Context) string

	// Close releases the handle. It is called exactly once, when the
	// ticker is removed or the watcher shuts down.
	Close() error
}

// PageDriver opens page handles. It is the capability the core consumes
// from the rendering collaborator; implementations decide what "rendered"
// means (a plain HTTP fetch, a headless browser, a recorded fixture).
type PageDriver interface {
	Open(ctx context.Context, url string) (PageHandle, error)
}
