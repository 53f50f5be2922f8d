// Package browser defines the boundary to the headless-browser driver. The
// driver itself (CDP, WebDriver, whatever) is an external collaborator;
// the inspection pipeline only needs the small surface below.
//
// HTTPBrowser is the built-in fallback: plain GETs with no script
// execution, enough for the HTTP-status and PHP-error channels when no real
// driver is attached.
package browser

import "context"

// WaitMode is the navigation wait discipline.
type WaitMode int

const (
	// WaitLoad waits for the load event. Public pages use this.
	WaitLoad WaitMode = iota
	// WaitCommit returns as soon as the navigation commits. Admin pages
	// use this plus a bounded sentinel wait; their network never idles.
	WaitCommit
)

// ConsoleMessage is one console entry. The pipeline filters to error level.
type ConsoleMessage struct {
	Level     string
	Text      string
	SourceURL string
	Line      int
}

// PageError is an uncaught exception surfaced by the page.
type PageError struct {
	Message string
	Stack   string
}

// NavigateOptions parameterise one navigation.
type NavigateOptions struct {
	Wait    WaitMode
	Timeout int // milliseconds; 0 means driver default
}

// NavigateResult reports where a navigation ended up.
type NavigateResult struct {
	Status   int
	FinalURL string
}

// JSONResponse is the outcome of a direct (non-navigating) JSON request.
type JSONResponse struct {
	Status      int
	ContentType string
	Body        []byte
}

// Page is one browser tab/context. Methods that cross the driver boundary
// take a context; subscription methods register handlers and return
// synchronously (they are not suspension points).
type Page interface {
	// OnConsole registers a console listener and returns its detach func.
	// Registration must happen before Navigate or early errors are lost.
	// Drivers may invoke handlers from their own goroutines; detach must
	// not return while a handler is still running.
	OnConsole(fn func(ConsoleMessage)) (detach func())
	// OnPageError registers an uncaught-exception listener.
	OnPageError(fn func(PageError)) (detach func())

	Navigate(ctx context.Context, url string, opts NavigateOptions) (NavigateResult, error)

	// Content returns the full rendered HTML.
	Content(ctx context.Context) (string, error)
	// URL returns the page's current URL.
	URL(ctx context.Context) (string, error)
	// Evaluate runs a script in page context and returns its JSON result.
	Evaluate(ctx context.Context, script string) ([]byte, error)
	// WaitForAny resolves when any of the selectors matches, or errors on
	// timeout. timeoutMS bounds the wait.
	WaitForAny(ctx context.Context, selectors []string, timeoutMS int) error
	// Screenshot renders the full page as PNG. Drivers without rendering
	// return ErrNotSupported.
	Screenshot(ctx context.Context) ([]byte, error)

	// Request performs a direct JSON-API request without navigating.
	Request(ctx context.Context, url string) (JSONResponse, error)

	Close(ctx context.Context) error
}

// Browser creates pages. One page per worker.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}
