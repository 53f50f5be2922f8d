package inspect

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossfit/internal/browser"
)

func TestInspectRESTIndex(t *testing.T) {
	t.Parallel()

	page := &fakePage{restResp: browser.JSONResponse{
		Status:      200,
		ContentType: "application/json; charset=UTF-8",
		Body:        []byte(`{"name":"Demo","routes":{"/":{},"/wp/v2":{}}}`),
	}}

	res := newInspector(t).InspectREST(context.Background(), page, RESTCheck{
		Name:     "rest-index",
		URL:      "http://x/wp-json/",
		Validate: ValidateSiteIndex,
	})
	assert.True(t, res.OK(), "failures: %v", res.Failures)
	assert.Equal(t, 200, res.Status)
}

func TestInspectRESTFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		page *fakePage
		want string
	}{
		{
			name: "transport error",
			page: &fakePage{restErr: errors.New("connection refused")},
			want: "request",
		},
		{
			name: "non-200",
			page: &fakePage{restResp: browser.JSONResponse{Status: 404, ContentType: "application/json", Body: []byte(`{}`)}},
			want: "HTTP 404",
		},
		{
			name: "wrong content type",
			page: &fakePage{restResp: browser.JSONResponse{Status: 200, ContentType: "text/html", Body: []byte(`{}`)}},
			want: "not JSON",
		},
		{
			name: "invalid body",
			page: &fakePage{restResp: browser.JSONResponse{Status: 200, ContentType: "application/json", Body: []byte(`{broken`)}},
			want: "valid JSON",
		},
		{
			name: "validator rejects",
			page: &fakePage{restResp: browser.JSONResponse{Status: 200, ContentType: "application/json", Body: []byte(`{"name":"x","routes":{}}`)}},
			want: "no routes",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			res := newInspector(t).InspectREST(context.Background(), tc.page, RESTCheck{
				Name: "rest-index", URL: "http://x/wp-json/", Validate: ValidateSiteIndex,
			})
			require.False(t, res.OK())
			assert.Contains(t, res.Failures[0].Detail, tc.want)
		})
	}
}

func TestInspectFeed(t *testing.T) {
	t.Parallel()

	feed := `<?xml version="1.0"?>
<rss version="2.0"><channel>
  <title>Demo Site</title>
  <description>Just another site</description>
  <item><title>Hello world!</title></item>
</channel></rss>`

	page := &fakePage{restResp: browser.JSONResponse{Status: 200, ContentType: "application/rss+xml", Body: []byte(feed)}}
	res := newInspector(t).InspectFeed(context.Background(), page, "feed", "http://x/feed/")
	assert.True(t, res.OK(), "failures: %v", res.Failures)
}

func TestInspectFeedRejectsUntitledChannel(t *testing.T) {
	t.Parallel()

	feed := `<rss version="2.0"><channel><title></title><description></description></channel></rss>`
	page := &fakePage{restResp: browser.JSONResponse{Status: 200, ContentType: "text/xml", Body: []byte(feed)}}

	res := newInspector(t).InspectFeed(context.Background(), page, "feed", "http://x/feed/")
	require.False(t, res.OK())
	assert.Len(t, res.Failures, 2)
}

func TestInspectFeedRejectsNonXMLContentType(t *testing.T) {
	t.Parallel()

	page := &fakePage{restResp: browser.JSONResponse{Status: 200, ContentType: "text/html", Body: []byte("<html>not a feed</html>")}}
	res := newInspector(t).InspectFeed(context.Background(), page, "feed", "http://x/feed/")
	require.False(t, res.OK())
	assert.Contains(t, res.Failures[0].Detail, "content type")
}

func TestInspectFeedRejectsUnparseableBody(t *testing.T) {
	t.Parallel()

	page := &fakePage{restResp: browser.JSONResponse{Status: 200, ContentType: "application/rss+xml", Body: []byte("<rss><channel><title>")}}
	res := newInspector(t).InspectFeed(context.Background(), page, "feed", "http://x/feed/")
	require.False(t, res.OK())
	assert.Contains(t, res.Failures[0].Detail, "RSS")
}
