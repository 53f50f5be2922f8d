package slugs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossfit/internal/sitehealth"
	logx "crossfit/pkg/logx"
)

func TestDerive(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"Akismet Anti-spam: Spam Protection", "akismet-anti-spam"},
		{"Gutenberg", "gutenberg"},
		{"Hello  Dolly", "hello-dolly"},
		{"WP Über Cache!", "wp-ber-cache"},
		{"--:", ""},
		{"日本語プラグイン", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Derive(tt.in), "input %q", tt.in)
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(logx.Nop())
	c.Endpoint = srv.URL
	c.Limiter = nil
	return c
}

func TestResolveBatchedLookup(t *testing.T) {
	t.Parallel()

	var gotForm url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm

		// Slugs come back split across the two maps.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"plugins": map[string]any{
				"plugin-0/plugin-0.php": map[string]any{"slug": "akismet", "new_version": "5.7"},
			},
			"no_update": map[string]any{
				"plugin-1/plugin-1.php": map[string]any{"slug": "gutenberg"},
			},
		})
	})

	got := c.Resolve(context.Background(), []sitehealth.Plugin{
		{DisplayName: "Akismet Anti-spam: Spam Protection", Version: "5.6", Author: "Automattic"},
		{DisplayName: "Gutenberg", Version: "22.2.0"},
	})

	assert.Equal(t, map[string]string{
		"Akismet Anti-spam: Spam Protection": "akismet",
		"Gutenberg":                          "gutenberg",
	}, got)

	// One POST carried the whole batch.
	require.NotNil(t, gotForm)
	assert.Equal(t, "true", gotForm.Get("all"))

	var payload struct {
		Plugins map[string]map[string]string `json:"plugins"`
		Active  []string                     `json:"active"`
	}
	require.NoError(t, json.Unmarshal([]byte(gotForm.Get("plugins")), &payload))
	require.Len(t, payload.Plugins, 2)
	assert.Equal(t, "Akismet Anti-spam: Spam Protection", payload.Plugins["plugin-0/plugin-0.php"]["Name"])
	assert.Equal(t, "5.6", payload.Plugins["plugin-0/plugin-0.php"]["Version"])
	assert.Equal(t, "Automattic", payload.Plugins["plugin-0/plugin-0.php"]["Author"])
	assert.ElementsMatch(t, []string{"plugin-0/plugin-0.php", "plugin-1/plugin-1.php"}, payload.Active)
}

func TestResolveFallbackOnUnknownPlugin(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// The endpoint only knows the first plugin.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"plugins": map[string]any{
				"plugin-0/plugin-0.php": map[string]any{"slug": "akismet"},
			},
			"no_update": map[string]any{},
		})
	})

	got := c.Resolve(context.Background(), []sitehealth.Plugin{
		{DisplayName: "Akismet", Version: "5.6"},
		{DisplayName: "My In-House Plugin", Version: "1.0"},
	})

	assert.Equal(t, "akismet", got["Akismet"])
	assert.Equal(t, "my-in-house-plugin", got["My In-House Plugin"])
}

func TestResolveFallbackOnTransportFailure(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	})

	got := c.Resolve(context.Background(), []sitehealth.Plugin{
		{DisplayName: "Hello Dolly", Version: "1.7.2"},
	})
	assert.Equal(t, map[string]string{"Hello Dolly": "hello-dolly"}, got)
}

func TestResolveFallbackOnShapeDrift(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`["totally","different","shape"]`))
	})

	got := c.Resolve(context.Background(), []sitehealth.Plugin{
		{DisplayName: "Hello Dolly", Version: "1.7.2"},
	})
	assert.Equal(t, map[string]string{"Hello Dolly": "hello-dolly"}, got)
}

func TestResolveDropsUnderivableNames(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})

	got := c.Resolve(context.Background(), []sitehealth.Plugin{
		{DisplayName: "図書館", Version: "1.0"},
	})
	assert.Empty(t, got)
}

func TestResolveEmptyInput(t *testing.T) {
	t.Parallel()
	c := New(logx.Nop())
	assert.Empty(t, c.Resolve(context.Background(), nil))
}
