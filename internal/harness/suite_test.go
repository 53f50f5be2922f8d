package harness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossfit/internal/discovery"
	"crossfit/internal/inspect"
	"crossfit/internal/wpruntime"
	logx "crossfit/pkg/logx"
)

func testSite(t *testing.T) *wpruntime.Site {
	t.Helper()
	return wpruntime.NewSite("http://127.0.0.1:9400", t.TempDir(), nil, logx.Nop())
}

func names(tests []Test) []string {
	out := make([]string, 0, len(tests))
	for _, tc := range tests {
		out = append(out, tc.Name)
	}
	return out
}

func TestBuildSuiteCorePages(t *testing.T) {
	t.Parallel()

	tests := BuildSuite(testSite(t), nil, &inspect.Inspector{Log: logx.Nop()}, SuiteConfig{})
	got := names(tests)

	for _, want := range []string{"home", "feed", "rest-index", "admin-dashboard", "serial-tagline"} {
		assert.Contains(t, got, want)
	}
	// Without a discovery document the stock admin screens are walked.
	assert.Contains(t, got, "admin-plugins")
	assert.Contains(t, got, "admin-settings")
}

func TestBuildSuiteDiscoveryFanOut(t *testing.T) {
	t.Parallel()

	doc := &discovery.Document{
		CommonPages: []discovery.CommonPage{
			{Path: "/sample-page/", Description: "Sample Page"},
		},
		AdminMenuItems: []discovery.AdminMenu{
			{Slug: "edit.php", Title: "Posts", URL: "/wp-admin/edit.php"},
		},
	}

	tests := BuildSuite(testSite(t), doc, &inspect.Inspector{Log: logx.Nop()}, SuiteConfig{})
	got := names(tests)

	assert.Contains(t, got, "sample-page")
	assert.Contains(t, got, "admin-posts")
	// Stock admin fallback must not fire when discovery is present.
	assert.NotContains(t, got, "admin-users")
}

func TestBuildSuiteDeduplicates(t *testing.T) {
	t.Parallel()

	doc := &discovery.Document{
		CommonPages: []discovery.CommonPage{
			{Path: "/about/", Description: "About"},
			{Path: "/about/", Description: "About"},
		},
	}

	tests := BuildSuite(testSite(t), doc, &inspect.Inspector{Log: logx.Nop()}, SuiteConfig{})
	count := 0
	for _, name := range names(tests) {
		if name == "about" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestBuildSuiteSerialIsLast(t *testing.T) {
	t.Parallel()

	tests := BuildSuite(testSite(t), nil, &inspect.Inspector{Log: logx.Nop()}, SuiteConfig{})

	serial := 0
	for _, tc := range tests {
		if tc.Serial {
			serial++
			assert.Equal(t, "serial-tagline", tc.Name)
		}
	}
	require.Equal(t, 1, serial)
}

func TestTestNameDerivation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		target discovery.Target
		want   string
	}{
		{discovery.Target{Description: "Sample Page"}, "sample-page"},
		{discovery.Target{Description: "Posts", Admin: true}, "admin-posts"},
		{discovery.Target{Path: "/wp-admin/edit.php?post_type=page", Admin: true}, "admin-wp-admin-edit-php-post-type-page"},
		{discovery.Target{Description: "Hello, World!"}, "hello-world"},
		{discovery.Target{}, "page"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, testName(tc.target))
	}
}

func TestAdminTargetsCarryTimeout(t *testing.T) {
	t.Parallel()

	tests := BuildSuite(testSite(t), nil, &inspect.Inspector{Log: logx.Nop()}, SuiteConfig{})
	for _, tc := range tests {
		if tc.Name == "admin-plugins" {
			assert.Equal(t, defaultAdminTimeout, tc.Timeout)
		}
	}
}

// evalPage overrides Evaluate with a canned script result.
type evalPage struct {
	stubPage
	out []byte
}

func (p evalPage) Evaluate(context.Context, string) ([]byte, error) { return p.out, nil }

func TestTaglineVerdicts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		out  string
		ok   bool
	}{
		{"round trip", `{"after":"crossfit-tagline-probe"}`, true},
		{"skipped driver", `{"skipped":true}`, true},
		{"wrong value", `{"after":"Just another WordPress site"}`, false},
		{"garbage", `not json`, false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tt := taglineTest(testSite(t), &inspect.Inspector{Log: logx.Nop()}, time.Minute)
			res := tt.Run(context.Background(), evalPage{out: []byte(tc.out)})
			if tc.ok {
				assert.True(t, res.OK(), "failures: %v", res.Failures)
			} else {
				require.False(t, res.OK())
				assert.Equal(t, "mutation", res.Failures[0].Channel)
			}
		})
	}
}
