package harness

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"crossfit/internal/browser"
	"crossfit/internal/discovery"
	"crossfit/internal/inspect"
	"crossfit/internal/wpruntime"
)

// SuiteConfig selects what the generated suite covers.
type SuiteConfig struct {
	// Full widens discovery fan-out to every post item and admin submenu.
	Full bool
	// Admin timeouts get this much room on top of the runner default;
	// dashboards load widgets long after commit.
	AdminTimeout time.Duration
}

const defaultAdminTimeout = 60 * time.Second

// BuildSuite assembles the run's tests: the fixed core pages, the
// discovery fan-out, the admin traversal, and the serial tagline check.
func BuildSuite(site *wpruntime.Site, doc *discovery.Document, insp *inspect.Inspector, cfg SuiteConfig) []Test {
	adminTimeout := cfg.AdminTimeout
	if adminTimeout <= 0 {
		adminTimeout = defaultAdminTimeout
	}

	tests := corePages(site, insp)

	sel := discovery.Selection{Full: cfg.Full}
	if doc != nil {
		for _, target := range discovery.Select(doc, sel) {
			tests = append(tests, pageTest(site, insp, target, 0))
		}
		for _, target := range discovery.SelectAdmin(doc, sel) {
			tests = append(tests, pageTest(site, insp, target, adminTimeout))
		}
	} else {
		// No discovery document: still walk the stock admin screens.
		for _, target := range stockAdminTargets() {
			tests = append(tests, pageTest(site, insp, target, adminTimeout))
		}
	}

	tests = append(tests, taglineTest(site, insp, adminTimeout))
	return dedupeTests(tests)
}

func corePages(site *wpruntime.Site, insp *inspect.Inspector) []Test {
	return []Test{
		{
			Name: "home",
			Run: func(ctx context.Context, page browser.Page) inspect.Result {
				return insp.Inspect(ctx, page, inspect.Request{
					Name: "home",
					URL:  site.URL("/"),
				})
			},
		},
		{
			Name: "feed",
			Run: func(ctx context.Context, page browser.Page) inspect.Result {
				return insp.InspectFeed(ctx, page, "feed", site.URL("/feed/"))
			},
		},
		{
			Name: "rest-index",
			Run: func(ctx context.Context, page browser.Page) inspect.Result {
				return insp.InspectREST(ctx, page, inspect.RESTCheck{
					Name:     "rest-index",
					URL:      site.URL("/wp-json/"),
					Validate: inspect.ValidateSiteIndex,
				})
			},
		},
		{
			Name:    "admin-dashboard",
			Timeout: defaultAdminTimeout,
			Run: func(ctx context.Context, page browser.Page) inspect.Result {
				return insp.Inspect(ctx, page, inspect.Request{
					Name:   "admin-dashboard",
					URL:    site.URL("/wp-admin/"),
					Admin:  true,
					Expect: inspect.Expect{BodyClass: "wp-admin"},
				})
			},
		},
	}
}

// stockAdminTargets is the fallback admin walk when discovery never ran.
func stockAdminTargets() []discovery.Target {
	paths := []struct{ path, desc string }{
		{"/wp-admin/edit.php", "Posts"},
		{"/wp-admin/edit.php?post_type=page", "Pages"},
		{"/wp-admin/upload.php", "Media"},
		{"/wp-admin/themes.php", "Themes"},
		{"/wp-admin/plugins.php", "Plugins"},
		{"/wp-admin/users.php", "Users"},
		{"/wp-admin/options-general.php", "Settings"},
	}
	out := make([]discovery.Target, 0, len(paths))
	for _, p := range paths {
		out = append(out, discovery.Target{Path: p.path, Description: p.desc, Admin: true})
	}
	return out
}

func pageTest(site *wpruntime.Site, insp *inspect.Inspector, target discovery.Target, timeout time.Duration) Test {
	name := testName(target)
	return Test{
		Name:    name,
		Timeout: timeout,
		Run: func(ctx context.Context, page browser.Page) inspect.Result {
			return insp.Inspect(ctx, page, inspect.Request{
				Name:  name,
				URL:   site.URL(target.Path),
				Admin: target.Admin,
				Expect: inspect.Expect{
					Title:     target.ExpectedTitle,
					BodyClass: target.ExpectedBodyClass,
				},
			})
		},
	}
}

// taglineTest flips the site tagline through the REST settings API and
// verifies the change landed, then restores it. Drivers without script
// execution skip the mutation and just inspect the settings screen.
func taglineTest(site *wpruntime.Site, insp *inspect.Inspector, timeout time.Duration) Test {
	const probe = "crossfit-tagline-probe"

	script := `(async () => {
  const api = window.wp && window.wp.apiFetch;
  if (!api) return {skipped: true};
  const before = (await api({path: '/wp/v2/settings'})).description;
  await api({path: '/wp/v2/settings', method: 'POST', data: {description: '` + probe + `'}});
  const after = (await api({path: '/wp/v2/settings'})).description;
  await api({path: '/wp/v2/settings', method: 'POST', data: {description: before}});
  return {after: after};
})()`

	return Test{
		Name:    "serial-tagline",
		Serial:  true,
		Timeout: timeout,
		Run: func(ctx context.Context, page browser.Page) inspect.Result {
			res := insp.Inspect(ctx, page, inspect.Request{
				Name:         "admin-settings-general",
				URL:          site.URL("/wp-admin/options-general.php"),
				Admin:        true,
				SkipSnapshot: true,
			})
			res.Name = "serial-tagline"
			if !res.OK() {
				return res
			}

			out, err := page.Evaluate(ctx, script)
			if err != nil {
				// Scriptless drivers stop at the settings-screen check.
				return res
			}
			var verdict struct {
				Skipped bool   `json:"skipped"`
				After   string `json:"after"`
			}
			if jerr := json.Unmarshal(out, &verdict); jerr != nil {
				res.Failures = append(res.Failures, inspect.Failure{
					Channel: "mutation",
					Detail:  "unreadable tagline result: " + string(out),
				})
				return res
			}
			if verdict.Skipped {
				// Pages without wp.apiFetch (mu-plugin filtered, classic
				// admin) cannot run the mutation.
				return res
			}
			if verdict.After != probe {
				res.Failures = append(res.Failures, inspect.Failure{
					Channel: "mutation",
					Detail:  "tagline write did not round-trip: " + string(out),
				})
			}
			return res
		},
	}
}

var reNonName = regexp.MustCompile(`[^a-z0-9]+`)

// testName derives a stable snapshot-safe name from a target.
func testName(t discovery.Target) string {
	base := t.Description
	if base == "" {
		base = t.Path
	}
	name := reNonName.ReplaceAllString(strings.ToLower(base), "-")
	name = strings.Trim(name, "-")
	if name == "" {
		name = "page"
	}
	if t.Admin && !strings.HasPrefix(name, "admin-") {
		name = "admin-" + name
	}
	return name
}

// dedupeTests keeps the first test per name; discovery occasionally lists
// the same screen under two menus.
func dedupeTests(tests []Test) []Test {
	seen := map[string]bool{}
	out := tests[:0]
	for _, t := range tests {
		if seen[t.Name] {
			continue
		}
		seen[t.Name] = true
		out = append(out, t)
	}
	return out
}
