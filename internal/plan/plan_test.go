package plan

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceDownloadURL(t *testing.T) {
	t.Parallel()

	r := Resource{Kind: KindSlug, Slug: "akismet", Version: "5.2"}
	u, ok := r.DownloadURL("plugin")
	require.True(t, ok)
	assert.Equal(t, "https://downloads.wordpress.org/plugin/akismet.5.2.zip", u)

	unpinned := Resource{Kind: KindSlug, Slug: "akismet"}
	_, ok = unpinned.DownloadURL("plugin")
	assert.False(t, ok)

	url := Resource{Kind: KindURL, URL: "https://example.com/x.zip"}
	_, ok = url.DownloadURL("plugin")
	assert.False(t, ok)
}

func TestResourceRefForms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		r    Resource
		want map[string]any
	}{
		{
			name: "pinned slug becomes direct url",
			r:    Resource{Kind: KindSlug, Slug: "twentytwentyone", Version: "2.7"},
			want: map[string]any{"resource": "url", "url": "https://downloads.wordpress.org/theme/twentytwentyone.2.7.zip"},
		},
		{
			name: "unpinned slug stays a registry reference",
			r:    Resource{Kind: KindSlug, Slug: "twentytwentyone"},
			want: map[string]any{"resource": "wordpress.org/themes", "slug": "twentytwentyone"},
		},
		{
			name: "remote url passes through",
			r:    Resource{Kind: KindURL, URL: "https://example.com/t.zip"},
			want: map[string]any{"resource": "url", "url": "https://example.com/t.zip"},
		},
		{
			name: "local file becomes a vfs reference",
			r:    Resource{Kind: KindPath, Path: "/wordpress/uploads-crossfit/t.zip"},
			want: map[string]any{"resource": "vfs", "path": "/wordpress/uploads-crossfit/t.zip"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.Ref("theme"))
		})
	}
}

func TestStepJSONRoundTrip(t *testing.T) {
	t.Parallel()

	// User-supplied steps must survive unknown fields.
	raw := `{"step":"unzip","zipFile":{"resource":"url","url":"https://x/z.zip"},"extractToPath":"/wordpress"}`
	var s Step
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	assert.Equal(t, "unzip", s.Name)

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestStepRejectsMissingName(t *testing.T) {
	t.Parallel()
	var s Step
	err := json.Unmarshal([]byte(`{"code":"<?php ?>"}`), &s)
	require.Error(t, err)
}

func TestDebugConstsAlwaysPresent(t *testing.T) {
	t.Parallel()

	p := New(SiteRoot)
	require.NotNil(t, p.DebugConsts)
	assert.Equal(t, true, p.DebugConsts["WP_DEBUG"])
	assert.Equal(t, "/wordpress/wp-content/debug.log", p.DebugConsts["WP_DEBUG_LOG"])
	assert.Equal(t, true, p.DebugConsts["AUTOMATIC_UPDATER_DISABLED"])
	assert.Equal(t, true, p.DebugConsts["DISALLOW_FILE_MODS"])
}

func TestStripPins(t *testing.T) {
	t.Parallel()

	p := New(SiteRoot)
	p.WPVersion = "6.5"
	p.PHPVersion = "8.1"
	theme := Resource{Kind: KindSlug, Slug: "twentytwentyone", Version: "2.7"}
	p.Theme = &theme
	p.Plugins = []Resource{
		{Kind: KindSlug, Slug: "akismet", Version: "5.6"},
		{Kind: KindSlug, Slug: "gutenberg", Version: "22.2.0"},
	}
	p.StripPins()

	assert.Equal(t, DefaultWPVersion, p.WPVersion)
	assert.Equal(t, "latest", p.PHPVersion)
	assert.Empty(t, p.Theme.Version)
	for _, r := range p.Plugins {
		assert.Empty(t, r.Version)
	}
}

func TestDigestStableAndSensitive(t *testing.T) {
	t.Parallel()

	a := New(SiteRoot)
	b := New(SiteRoot)
	assert.Equal(t, a.Digest(), b.Digest())

	b.Plugins = append(b.Plugins, Resource{Kind: KindSlug, Slug: "akismet"})
	assert.NotEqual(t, a.Digest(), b.Digest())
}
