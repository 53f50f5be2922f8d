// Package inspect runs the per-page inspection pipeline: navigate, assert
// the HTTP and auth state, scan the rendered HTML for server-side errors,
// check content expectations, and hand the render to the snapshot store.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"crossfit/internal/browser"
	"crossfit/internal/snapshot"
	logx "crossfit/pkg/logx"
)

// Sentinel selectors that mark a usable admin render. Admin screens keep
// heartbeat traffic open, so load-event waits never settle there; the
// pipeline commits and then waits for any of these.
var adminSentinels = []string{"#wpadminbar", "#adminmenu", "body.wp-admin", "#wpbody-content"}

const (
	defaultAdminSettleMS = 15000
	retryDelay           = 500 * time.Millisecond
)

// Expect is a content expectation. Values are plain substrings unless
// wrapped in slashes, in which case they are compiled as regular
// expressions ("/^Dashboard/" style).
type Expect struct {
	Title     string
	BodyClass string
}

// Allow masks inspection channels that are expected to be noisy for a
// particular page. A masked channel is still collected and reported, it
// just cannot fail the page.
type Allow struct {
	Console    bool
	PageErrors bool
	PHP        bool
}

// Request describes one page to inspect.
type Request struct {
	// Name keys the snapshot store and the report line.
	Name string
	URL  string
	// Admin switches to commit-plus-sentinel navigation and expects an
	// authenticated session.
	Admin bool

	Expect Expect
	Allow  Allow

	// ExpectStatus is the HTTP status the navigation must settle on;
	// 0 means 200.
	ExpectStatus int

	// TimeoutMS bounds the navigation; 0 uses the driver default.
	TimeoutMS int
	// SkipSnapshot bypasses the visual channel for this page alone.
	SkipSnapshot bool
}

// Failure is one channel's verdict against a page.
type Failure struct {
	Channel string
	Detail  string
}

func (f Failure) String() string { return f.Channel + ": " + f.Detail }

// Result aggregates everything observed about one page.
type Result struct {
	Name     string
	URL      string
	FinalURL string
	Status   int

	Console    []browser.ConsoleMessage
	PageErrors []browser.PageError
	PHPErrors  []PHPError
	Visual     snapshot.Outcome

	Failures []Failure
	Duration time.Duration
}

// OK reports whether every channel passed.
func (r *Result) OK() bool { return len(r.Failures) == 0 }

func (r *Result) fail(channel, format string, args ...any) {
	r.Failures = append(r.Failures, Failure{Channel: channel, Detail: fmt.Sprintf(format, args...)})
}

// Inspector drives the pipeline. One inspector is shared across workers;
// it holds no per-page state.
type Inspector struct {
	Snapshots *snapshot.Manager
	Log       logx.Logger
}

// Inspect runs the full pipeline for one page on the given tab. Listener
// registration precedes navigation so early console errors are not lost;
// a page closed mid-inspection degrades to channel failures, never a
// panic.
func (in *Inspector) Inspect(ctx context.Context, page browser.Page, req Request) Result {
	start := time.Now()
	res := Result{Name: req.Name, URL: req.URL}
	defer func() { res.Duration = time.Since(start) }()

	// Async drivers deliver console and pageerror events on their own
	// goroutines, so every touch of these slices goes through the mutex.
	var obsMu sync.Mutex
	detachConsole := page.OnConsole(func(m browser.ConsoleMessage) {
		if strings.EqualFold(m.Level, "error") {
			obsMu.Lock()
			res.Console = append(res.Console, m)
			obsMu.Unlock()
		}
	})
	defer detachConsole()

	detachErrors := page.OnPageError(func(e browser.PageError) {
		obsMu.Lock()
		res.PageErrors = append(res.PageErrors, e)
		obsMu.Unlock()
	})
	defer detachErrors()

	nav, err := in.navigate(ctx, page, req)
	if err != nil {
		res.fail("navigation", "%s: %v", req.URL, err)
		return res
	}
	res.Status = nav.Status
	res.FinalURL = nav.FinalURL

	in.assertResponse(&res, req, nav)

	html, err := page.Content(ctx)
	if err != nil {
		res.fail("content", "read rendered HTML: %v", err)
	} else {
		res.PHPErrors = DetectPHPErrors(html)
		in.assertExpectations(&res, req, html)
	}

	obsMu.Lock()
	in.applyMask(&res, req)
	obsMu.Unlock()
	in.captureVisual(ctx, page, &res, req)

	return res
}

// navigate runs the mode-appropriate navigation, retrying once after a
// short delay when the driver reports an abort-class error (WordPress
// occasionally self-redirects while a navigation is in flight).
func (in *Inspector) navigate(ctx context.Context, page browser.Page, req Request) (browser.NavigateResult, error) {
	opts := browser.NavigateOptions{Wait: browser.WaitLoad, Timeout: req.TimeoutMS}
	if req.Admin {
		opts.Wait = browser.WaitCommit
	}

	nav, err := page.Navigate(ctx, req.URL, opts)
	if err != nil && isAbortError(err) {
		in.Log.Debug("navigation aborted, retrying once",
			logx.String("url", req.URL), logx.Err(err))
		select {
		case <-ctx.Done():
			return nav, ctx.Err()
		case <-time.After(retryDelay):
		}
		nav, err = page.Navigate(ctx, req.URL, opts)
	}
	if err != nil {
		return nav, err
	}

	if req.Admin {
		settle := req.TimeoutMS
		if settle <= 0 {
			settle = defaultAdminSettleMS
		}
		if werr := page.WaitForAny(ctx, adminSentinels, settle); werr != nil {
			return nav, fmt.Errorf("admin page never settled: %w", werr)
		}
	}
	return nav, nil
}

// isAbortError matches driver errors worth a single retry.
func isAbortError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, frag := range []string{"err_aborted", "aborted", "frame detached", "navigation canceled", "navigation cancelled"} {
		if strings.Contains(s, frag) {
			return true
		}
	}
	return false
}

// assertResponse checks the final HTTP status against the expected one
// and that authenticated pages did not bounce to the login screen.
func (in *Inspector) assertResponse(res *Result, req Request, nav browser.NavigateResult) {
	want := req.ExpectStatus
	if want == 0 {
		want = 200
	}
	if nav.Status != want {
		res.fail("status", "HTTP %d for %s, want %d", nav.Status, req.URL, want)
	}
	if strings.Contains(nav.FinalURL, "wp-login.php") && !strings.Contains(req.URL, "wp-login.php") {
		res.fail("auth", "redirected to login screen (%s)", nav.FinalURL)
	}
}

var (
	reTitleTag = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	reBodyTag  = regexp.MustCompile(`(?is)<body[^>]*\bclass\s*=\s*["']([^"']*)["']`)
)

func (in *Inspector) assertExpectations(res *Result, req Request, html string) {
	if req.Expect.Title != "" {
		title := ""
		if m := reTitleTag.FindStringSubmatch(html); m != nil {
			title = strings.TrimSpace(m[1])
		}
		if ok, err := matchExpectation(req.Expect.Title, title); err != nil {
			res.fail("expect", "bad title pattern %q: %v", req.Expect.Title, err)
		} else if !ok {
			res.fail("expect", "title %q does not match %q", title, req.Expect.Title)
		}
	}

	if req.Expect.BodyClass != "" {
		classes := ""
		if m := reBodyTag.FindStringSubmatch(html); m != nil {
			classes = m[1]
		}
		if ok, err := matchExpectation(req.Expect.BodyClass, classes); err != nil {
			res.fail("expect", "bad body-class pattern %q: %v", req.Expect.BodyClass, err)
		} else if !ok {
			res.fail("expect", "body classes %q do not match %q", classes, req.Expect.BodyClass)
		}
	}
}

// matchExpectation treats /.../-wrapped patterns as regular expressions
// and everything else as a substring test.
func matchExpectation(pattern, actual string) (bool, error) {
	if len(pattern) >= 2 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") {
		re, err := regexp.Compile(pattern[1 : len(pattern)-1])
		if err != nil {
			return false, err
		}
		return re.MatchString(actual), nil
	}
	return strings.Contains(actual, pattern), nil
}

// applyMask turns unmasked channel observations into failures. Masked
// channels stay visible in the result but cannot fail the page.
func (in *Inspector) applyMask(res *Result, req Request) {
	if !req.Allow.Console {
		for _, m := range res.Console {
			res.fail("console", "%s (%s:%d)", m.Text, m.SourceURL, m.Line)
		}
	}
	if !req.Allow.PageErrors {
		for _, e := range res.PageErrors {
			res.fail("pageerror", "%s", e.Message)
		}
	}
	if !req.Allow.PHP {
		for _, e := range res.PHPErrors {
			if e.File != "" {
				res.fail("php", "%s: %s in %s on line %d", e.Kind, e.Message, e.File, e.Line)
			} else {
				res.fail("php", "%s: %s", e.Kind, e.Message)
			}
		}
	}
}

// captureVisual renders the page and runs it through the snapshot store.
// Drivers without rendering support simply skip the channel.
func (in *Inspector) captureVisual(ctx context.Context, page browser.Page, res *Result, req Request) {
	if in.Snapshots == nil || req.SkipSnapshot {
		res.Visual = snapshot.Outcome{Status: snapshot.StatusSkipped}
		return
	}
	if in.Snapshots.Mode == snapshot.ModeSkip || in.Snapshots.Mode == snapshot.ModeClear || in.Snapshots.Excluded(req.Name) {
		res.Visual = snapshot.Outcome{Status: snapshot.StatusSkipped}
		return
	}

	shot, err := page.Screenshot(ctx)
	if err != nil {
		if errors.Is(err, browser.ErrNotSupported) {
			res.Visual = snapshot.Outcome{Status: snapshot.StatusSkipped}
			return
		}
		res.Visual = snapshot.Outcome{Status: snapshot.StatusFailed, Err: err}
		res.fail("visual", "screenshot: %v", err)
		return
	}

	res.Visual = in.Snapshots.Process(req.Name, shot)
	if res.Visual.Failed() {
		res.fail("visual", "%v", res.Visual.Err)
	}
}
