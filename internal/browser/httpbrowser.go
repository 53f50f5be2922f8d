package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"
)

// ErrNotSupported marks driver capabilities the fallback cannot provide
// (script execution, rendering).
var ErrNotSupported = errors.New("browser: not supported by this driver")

// HTTPBrowser is the scriptless fallback driver. Pages share one cookie jar
// per browser so the admin session survives across navigations.
type HTTPBrowser struct {
	client *http.Client
}

func NewHTTPBrowser() (*HTTPBrowser, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &HTTPBrowser{
		client: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
	}, nil
}

func (b *HTTPBrowser) NewPage(ctx context.Context) (Page, error) {
	return &httpPage{client: b.client}, nil
}

func (b *HTTPBrowser) Close(ctx context.Context) error { return nil }

type httpPage struct {
	client *http.Client

	mu       sync.Mutex
	closed   bool
	finalURL string
	html     string
}

// OnConsole never fires: no script execution happens, so the console
// channel is legitimately empty rather than unknown.
func (p *httpPage) OnConsole(fn func(ConsoleMessage)) func() { return func() {} }

func (p *httpPage) OnPageError(fn func(PageError)) func() { return func() {} }

func (p *httpPage) Navigate(ctx context.Context, url string, opts NavigateOptions) (NavigateResult, error) {
	if err := p.alive(); err != nil {
		return NavigateResult{}, err
	}

	navCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, time.Duration(opts.Timeout)*time.Millisecond)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(navCtx, http.MethodGet, url, nil)
	if err != nil {
		return NavigateResult{}, err
	}
	req.Header.Set("User-Agent", "crossfit (httpbrowser)")

	resp, err := p.client.Do(req)
	if err != nil {
		return NavigateResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return NavigateResult{}, err
	}

	p.mu.Lock()
	p.finalURL = resp.Request.URL.String()
	p.html = string(body)
	p.mu.Unlock()

	return NavigateResult{Status: resp.StatusCode, FinalURL: resp.Request.URL.String()}, nil
}

func (p *httpPage) Content(ctx context.Context) (string, error) {
	if err := p.alive(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *httpPage) URL(ctx context.Context) (string, error) {
	if err := p.alive(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finalURL, nil
}

func (p *httpPage) Evaluate(ctx context.Context, script string) ([]byte, error) {
	return nil, ErrNotSupported
}

// WaitForAny degrades to a lexical check: with no DOM the best this driver
// can do is confirm a selector's id/class token appears in the HTML.
func (p *httpPage) WaitForAny(ctx context.Context, selectors []string, timeoutMS int) error {
	html, err := p.Content(ctx)
	if err != nil {
		return err
	}
	for _, sel := range selectors {
		token := sel
		if len(token) > 0 && (token[0] == '#' || token[0] == '.') {
			token = token[1:]
		}
		if token != "" && containsToken(html, token) {
			return nil
		}
	}
	return fmt.Errorf("browser: none of %v found", selectors)
}

func containsToken(html, token string) bool {
	// Cheap containment; this driver is a fallback, not a DOM engine.
	return token != "" && strings.Contains(html, token)
}

func (p *httpPage) Screenshot(ctx context.Context) ([]byte, error) {
	return nil, ErrNotSupported
}

func (p *httpPage) Request(ctx context.Context, url string) (JSONResponse, error) {
	if err := p.alive(); err != nil {
		return JSONResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return JSONResponse{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return JSONResponse{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return JSONResponse{}, err
	}
	return JSONResponse{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (p *httpPage) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *httpPage) alive() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("browser: page closed")
	}
	return nil
}
