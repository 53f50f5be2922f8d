// Package sitehealth parses the plaintext Site-Health info dump that
// WordPress offers under Tools > Site Health > Info ("copy to clipboard").
//
// The format is loose: `### section ###` headers (the trailing count in
// parentheses varies by WordPress version), `key: value` lines inside, one
// plugin per line in the plugins section. Everything unknown is ignored;
// malformed lines are skipped with a warning rather than failing the run.
package sitehealth

import (
	"os"
	"regexp"
	"strings"

	logx "crossfit/pkg/logx"
)

// Report is the parsed subset of a Site-Health dump that the plan needs.
type Report struct {
	WPVersion  string // as printed, e.g. "6.8.3"
	PHPVersion string // major.minor only

	Theme   Theme
	Plugins []Plugin

	// Options holds the handful of wp-core options worth re-applying.
	Options map[string]string
}

// Theme is the active theme as reported by Site-Health.
type Theme struct {
	Slug    string
	Version string
}

// Plugin is one active-plugin line before slug resolution.
type Plugin struct {
	DisplayName string
	Version     string
	Author      string
}

var (
	reSection  = regexp.MustCompile(`^###\s+([a-zA-Z0-9_-]+)(?:\s+\(\d+\))?\s*#*\s*$`)
	reKeyValue = regexp.MustCompile(`^([a-zA-Z0-9_]+):\s*(.*)$`)

	// php_version lines look like "8.2.12 (Supports 64bit values)".
	rePHPMajorMinor = regexp.MustCompile(`(\d+\.\d+)`)

	// Theme names often carry the slug in parentheses: "Twenty Twenty-One (twentytwentyone)".
	reParenSlug = regexp.MustCompile(`\(([a-z0-9_-]+)\)\s*$`)

	// Plugin line grammar:
	//   <display-name>: version: <v>[, author: <a>][, (Updates|Auto-updates) ...]
	// The author may itself contain commas, so match the trailer lazily.
	rePluginLine = regexp.MustCompile(`^(.+?):\s*version:\s*([^,]+?)\s*(?:,\s*author:\s*(.+?)\s*)?(?:,\s*\(?(?:Updates|Auto-updates)\b.*)?$`)

	reWhitespace = regexp.MustCompile(`\s+`)
	reNonSlug    = regexp.MustCompile(`[^a-z0-9-]`)
	reManyHyphen = regexp.MustCompile(`-{2,}`)
)

// ParseFile reads and parses a Site-Health dump from disk.
func ParseFile(path string, log logx.Logger) (*Report, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(b), log), nil
}

// Parse parses a Site-Health dump. It never fails: unknown sections and
// malformed lines are skipped (with a warning for the latter).
func Parse(text string, log logx.Logger) *Report {
	r := &Report{Options: map[string]string{}}

	// Some exports wrap the whole dump in a single leading backtick.
	text = strings.TrimPrefix(strings.TrimSpace(text), "`")

	var themeName, themePath string

	section := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if m := reSection.FindStringSubmatch(trimmed); m != nil {
			section = m[1]
			continue
		}

		switch section {
		case "wp-core":
			r.parseCoreLine(trimmed)
		case "wp-server":
			if kv := reKeyValue.FindStringSubmatch(trimmed); kv != nil && kv[1] == "php_version" {
				if v := rePHPMajorMinor.FindString(kv[2]); v != "" {
					r.PHPVersion = v
				}
			}
		case "wp-active-theme":
			kv := reKeyValue.FindStringSubmatch(trimmed)
			if kv == nil {
				continue
			}
			switch kv[1] {
			case "name":
				themeName = strings.TrimSpace(kv[2])
			case "version":
				r.Theme.Version = strings.TrimSpace(kv[2])
			case "theme_path":
				themePath = strings.TrimSpace(kv[2])
			}
		case "wp-plugins-active":
			p, ok := parsePluginLine(trimmed)
			if !ok {
				log.Warn("site-health: skipping malformed plugin line", logx.String("line", trimmed))
				continue
			}
			r.Plugins = append(r.Plugins, p)
		}
	}

	r.Theme.Slug = deriveThemeSlug(themeName, themePath)
	return r
}

// deriveThemeSlug prefers, in order: a parenthesised suffix in the name,
// the trailing directory of theme_path, and finally a normalisation of the
// display name.
func deriveThemeSlug(name, themePath string) string {
	if m := reParenSlug.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	if themePath != "" {
		p := strings.TrimRight(themePath, "/\\")
		p = strings.ReplaceAll(p, "\\", "/")
		if i := strings.LastIndex(p, "/"); i >= 0 {
			p = p[i+1:]
		}
		if p != "" {
			return p
		}
	}
	return NormalizeSlug(name)
}

func (r *Report) parseCoreLine(line string) {
	kv := reKeyValue.FindStringSubmatch(line)
	if kv == nil {
		return
	}
	key, val := kv[1], strings.TrimSpace(kv[2])
	switch key {
	case "version":
		r.WPVersion = val
	case "permalink", "permalink_structure":
		// The dump prints "permalink"; the option is permalink_structure.
		r.Options["permalink_structure"] = val
	case "blog_public", "default_comment_status":
		r.Options[key] = val
	}
}

func parsePluginLine(line string) (Plugin, bool) {
	m := rePluginLine.FindStringSubmatch(line)
	if m == nil {
		return Plugin{}, false
	}
	p := Plugin{
		DisplayName: strings.TrimSpace(m[1]),
		Version:     strings.TrimSpace(m[2]),
		Author:      strings.TrimSpace(m[3]),
	}
	if p.DisplayName == "" || p.Version == "" {
		return Plugin{}, false
	}
	return p, true
}

// NormalizeSlug lower-cases a display name and reduces it to [a-z0-9-].
// Shared with the slug-resolution fallback.
func NormalizeSlug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = reWhitespace.ReplaceAllString(s, "-")
	s = reNonSlug.ReplaceAllString(s, "")
	s = reManyHyphen.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
