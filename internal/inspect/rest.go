package inspect

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"crossfit/internal/browser"
)

// RESTCheck probes a JSON endpoint without a navigation. Validate, when
// set, receives the raw body after the status and content-type pass.
type RESTCheck struct {
	Name     string
	URL      string
	Validate func(body []byte) error
}

// InspectREST requests a JSON endpoint on the given tab and asserts a 200
// response with a JSON content type and a parseable body.
func (in *Inspector) InspectREST(ctx context.Context, page browser.Page, check RESTCheck) Result {
	res := Result{Name: check.Name, URL: check.URL}

	resp, err := page.Request(ctx, check.URL)
	if err != nil {
		res.fail("rest", "request %s: %v", check.URL, err)
		return res
	}
	res.Status = resp.Status
	res.FinalURL = check.URL

	if resp.Status != 200 {
		res.fail("rest", "HTTP %d for %s", resp.Status, check.URL)
		return res
	}
	if !strings.Contains(resp.ContentType, "application/json") {
		res.fail("rest", "content type %q is not JSON", resp.ContentType)
		return res
	}
	if !json.Valid(resp.Body) {
		res.fail("rest", "body is not valid JSON")
		return res
	}
	if check.Validate != nil {
		if err := check.Validate(resp.Body); err != nil {
			res.fail("rest", "%v", err)
		}
	}
	return res
}

// rssDocument is the minimal slice of an RSS 2.0 feed the harness cares
// about: the channel must carry a title and a description.
type rssDocument struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Title       string `xml:"title"`
		Description string `xml:"description"`
	} `xml:"channel"`
}

// InspectFeed requests the site feed and asserts it parses as RSS with a
// titled channel.
func (in *Inspector) InspectFeed(ctx context.Context, page browser.Page, name, url string) Result {
	res := Result{Name: name, URL: url}

	resp, err := page.Request(ctx, url)
	if err != nil {
		res.fail("feed", "request %s: %v", url, err)
		return res
	}
	res.Status = resp.Status
	res.FinalURL = url

	if resp.Status != 200 {
		res.fail("feed", "HTTP %d for %s", resp.Status, url)
		return res
	}
	if !strings.Contains(strings.ToLower(resp.ContentType), "xml") {
		res.fail("feed", "content type %q is not XML", resp.ContentType)
		return res
	}

	var doc rssDocument
	if err := xml.Unmarshal(resp.Body, &doc); err != nil {
		res.fail("feed", "not parseable RSS: %v", err)
		return res
	}
	if strings.TrimSpace(doc.Channel.Title) == "" {
		res.fail("feed", "channel has no title")
	}
	if strings.TrimSpace(doc.Channel.Description) == "" {
		res.fail("feed", "channel has no description")
	}
	if errs := DetectPHPErrors(string(resp.Body)); len(errs) > 0 {
		for _, e := range errs {
			res.fail("php", "%s: %s", e.Kind, e.Message)
		}
		res.PHPErrors = errs
	}
	return res
}

// ValidateSiteIndex is the stock validator for the REST API index: it must
// expose a name and a routes map.
func ValidateSiteIndex(body []byte) error {
	var idx struct {
		Name   string                     `json:"name"`
		Routes map[string]json.RawMessage `json:"routes"`
	}
	if err := json.Unmarshal(body, &idx); err != nil {
		return fmt.Errorf("decode index: %w", err)
	}
	if len(idx.Routes) == 0 {
		return fmt.Errorf("index exposes no routes")
	}
	return nil
}
