// Package slugs maps plugin display names (as printed in a Site-Health dump)
// to their canonical wordpress.org slugs.
//
// The registry has no "lookup by display name" API, but its update-check
// endpoint will happily echo back the slug for any plugin manifest you claim
// to have installed. So we synthesise a manifest per display name, POST the
// whole batch once, and read the slugs out of the response. Anything the
// endpoint does not recognise falls back to a lexical derivation.
//
// Resolution failures never abort a run.
package slugs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"crossfit/internal/sitehealth"
	logx "crossfit/pkg/logx"
)

// DefaultEndpoint is the upstream batch update-check endpoint.
const DefaultEndpoint = "https://api.wordpress.org/plugins/update-check/1.1/"

// Client resolves display names against the registry.
type Client struct {
	Endpoint string
	HTTP     *http.Client

	// Limiter spaces out requests; api.wordpress.org throttles bursts.
	Limiter *rate.Limiter

	Log logx.Logger
}

// New returns a Client with sane defaults.
func New(log logx.Logger) *Client {
	return &Client{
		Endpoint: DefaultEndpoint,
		HTTP:     &http.Client{Timeout: 15 * time.Second},
		Limiter:  rate.NewLimiter(rate.Every(time.Second), 2),
		Log:      log,
	}
}

// Resolve maps each plugin's display name to a canonical slug. The returned
// map always has one entry per input whose slug could be determined; names
// that resolve to an empty slug even after fallback are absent (callers drop
// them with a warning).
func (c *Client) Resolve(ctx context.Context, plugins []sitehealth.Plugin) map[string]string {
	out := make(map[string]string, len(plugins))
	if len(plugins) == 0 {
		return out
	}

	remote, err := c.lookup(ctx, plugins)
	if err != nil {
		c.Log.Warn("slug lookup failed; falling back to derived slugs", logx.Err(err))
	}

	for i, p := range plugins {
		if slug, ok := remote[syntheticPath(i)]; ok && slug != "" {
			out[p.DisplayName] = slug
			continue
		}
		if slug := Derive(p.DisplayName); slug != "" {
			c.Log.Debug("slug derived lexically",
				logx.String("plugin", p.DisplayName), logx.String("slug", slug))
			out[p.DisplayName] = slug
		} else {
			c.Log.Warn("cannot derive slug; plugin dropped", logx.String("plugin", p.DisplayName))
		}
	}
	return out
}

// syntheticPath names the i-th plugin file in the fabricated manifest.
// Positional, so the response maps back to the input by index.
func syntheticPath(i int) string {
	return fmt.Sprintf("plugin-%d/plugin-%d.php", i, i)
}

type updateCheckResponse struct {
	Plugins  map[string]struct{ Slug string `json:"slug"` } `json:"plugins"`
	NoUpdate map[string]struct{ Slug string `json:"slug"` } `json:"no_update"`
}

// lookup performs the single batched POST. The response splits plugins into
// "has an update" and "no update" maps; both carry slugs, so union them.
func (c *Client) lookup(ctx context.Context, plugins []sitehealth.Plugin) (map[string]string, error) {
	manifest := make(map[string]map[string]string, len(plugins))
	active := make([]string, 0, len(plugins))
	for i, p := range plugins {
		path := syntheticPath(i)
		entry := map[string]string{
			"Name":    p.DisplayName,
			"Version": p.Version,
		}
		if p.Author != "" {
			entry["Author"] = p.Author
		}
		manifest[path] = entry
		active = append(active, path)
	}

	pluginsJSON, err := json.Marshal(map[string]any{
		"plugins": manifest,
		"active":  active,
	})
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("plugins", string(pluginsJSON))
	form.Set("all", "true")

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "crossfit")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("update-check endpoint returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	var decoded updateCheckResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		// Endpoint shape drift is handled like a transport failure: the
		// caller derives every slug lexically.
		return nil, fmt.Errorf("unexpected update-check response: %w", err)
	}

	out := make(map[string]string, len(decoded.Plugins)+len(decoded.NoUpdate))
	for path, v := range decoded.NoUpdate {
		out[path] = v.Slug
	}
	for path, v := range decoded.Plugins {
		out[path] = v.Slug
	}
	return out, nil
}

// Derive reduces a display name to a plausible slug: the part before the
// first colon, lower-cased, whitespace collapsed to single hyphens, stripped
// to [a-z0-9-], consecutive hyphens collapsed, outer hyphens trimmed.
func Derive(displayName string) string {
	name := displayName
	if i := strings.Index(name, ":"); i >= 0 {
		name = name[:i]
	}
	return sitehealth.NormalizeSlug(name)
}
