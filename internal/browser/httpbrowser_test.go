package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPBrowserNavigateAndContent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/redirect":
			http.Redirect(w, r, "/target", http.StatusFound)
		case "/missing":
			http.NotFound(w, r)
		default:
			w.Write([]byte(`<html><body id="wpadminbar">hello</body></html>`))
		}
	}))
	defer srv.Close()

	b, err := NewHTTPBrowser()
	require.NoError(t, err)
	page, err := b.NewPage(context.Background())
	require.NoError(t, err)

	res, err := page.Navigate(context.Background(), srv.URL+"/redirect", NavigateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, srv.URL+"/target", res.FinalURL)

	html, err := page.Content(context.Background())
	require.NoError(t, err)
	assert.Contains(t, html, "hello")

	res, err = page.Navigate(context.Background(), srv.URL+"/missing", NavigateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 404, res.Status)
}

func TestHTTPBrowserCookiesSharedAcrossPages(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			http.SetCookie(w, &http.Cookie{Name: "wordpress_logged_in", Value: "yes", Path: "/"})
			w.Write([]byte("ok"))
			return
		}
		if c, err := r.Cookie("wordpress_logged_in"); err == nil && c.Value == "yes" {
			w.Write([]byte("authed"))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	b, err := NewHTTPBrowser()
	require.NoError(t, err)

	first, err := b.NewPage(context.Background())
	require.NoError(t, err)
	_, err = first.Navigate(context.Background(), srv.URL+"/login", NavigateOptions{})
	require.NoError(t, err)

	second, err := b.NewPage(context.Background())
	require.NoError(t, err)
	res, err := second.Navigate(context.Background(), srv.URL+"/admin", NavigateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Status)
}

func TestHTTPBrowserWaitForAnyLexical(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body class="wp-admin"><div id="wpbody-content"></div></body></html>`))
	}))
	defer srv.Close()

	b, err := NewHTTPBrowser()
	require.NoError(t, err)
	page, err := b.NewPage(context.Background())
	require.NoError(t, err)
	_, err = page.Navigate(context.Background(), srv.URL, NavigateOptions{})
	require.NoError(t, err)

	assert.NoError(t, page.WaitForAny(context.Background(), []string{"#wpadminbar", "#wpbody-content"}, 100))
	assert.Error(t, page.WaitForAny(context.Background(), []string{"#nonexistent"}, 100))
}

func TestHTTPBrowserUnsupportedCapabilities(t *testing.T) {
	t.Parallel()

	b, err := NewHTTPBrowser()
	require.NoError(t, err)
	page, err := b.NewPage(context.Background())
	require.NoError(t, err)

	_, err = page.Evaluate(context.Background(), "1+1")
	assert.ErrorIs(t, err, ErrNotSupported)
	_, err = page.Screenshot(context.Background())
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestHTTPBrowserClosedPage(t *testing.T) {
	t.Parallel()

	b, err := NewHTTPBrowser()
	require.NoError(t, err)
	page, err := b.NewPage(context.Background())
	require.NoError(t, err)
	require.NoError(t, page.Close(context.Background()))

	_, err = page.Navigate(context.Background(), "http://127.0.0.1:1/", NavigateOptions{})
	assert.Error(t, err)
	_, err = page.Content(context.Background())
	assert.Error(t, err)
}

func TestHTTPBrowserRequestJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		w.Write([]byte(`{"name":"Demo"}`))
	}))
	defer srv.Close()

	b, err := NewHTTPBrowser()
	require.NoError(t, err)
	page, err := b.NewPage(context.Background())
	require.NoError(t, err)

	resp, err := page.Request(context.Background(), srv.URL+"/wp-json/")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Contains(t, resp.ContentType, "application/json")
	assert.JSONEq(t, `{"name":"Demo"}`, string(resp.Body))
}
