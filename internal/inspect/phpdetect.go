package inspect

import (
	"regexp"
	"strconv"
	"strings"
)

// PHPErrorKind classifies a detected server-side error.
type PHPErrorKind string

const (
	KindFatal      PHPErrorKind = "fatal"
	KindParse      PHPErrorKind = "parse"
	KindWarning    PHPErrorKind = "warning"
	KindNotice     PHPErrorKind = "notice"
	KindDeprecated PHPErrorKind = "deprecated"
	KindStrict     PHPErrorKind = "strict"
	KindDatabase   PHPErrorKind = "database"
)

// PHPError is one server-side error found in rendered HTML.
type PHPError struct {
	Kind    PHPErrorKind
	Message string
	File    string
	Line    int
	Raw     string
}

// The detector covers both display_errors forms WordPress emits: bare text
// (error log style) and the HTML-bolded markup of display-on pages, each
// with an optional "in <file> on line <n>" tail whose parts may themselves
// be bolded. Case-insensitive throughout.
var (
	rePHPError = regexp.MustCompile(`(?i)(?:<b>\s*)?` +
		`(Fatal error|Parse error|Warning|Notice|Deprecated|Strict Standards)` +
		`(?:\s*</b>)?\s*:\s*` +
		`(.+?)` +
		`(?:\s+in\s+(?:<b>)?([^<\r\n]+?)(?:</b>)?\s+on\s+line\s+(?:<b>)?(\d+)(?:</b>)?)?` +
		`\s*(?:<br\s*/?>|</b>|\r|\n|$)`)

	reDBError = regexp.MustCompile(`(?i)WordPress database error:?\s*(.+?)\s*(?:<br\s*/?>|\r|\n|$)`)
)

// DetectPHPErrors scans rendered HTML for PHP error output. The result set
// is duplicate-free by (message, file, line), and detect(H+H) == detect(H)
// up to ordering.
func DetectPHPErrors(html string) []PHPError {
	var out []PHPError
	seen := map[string]bool{}

	add := func(e PHPError) {
		key := e.Message + "\x00" + e.File + "\x00" + strconv.Itoa(e.Line)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, e)
	}

	for _, m := range rePHPError.FindAllStringSubmatch(html, -1) {
		e := PHPError{
			Message: strings.TrimSpace(stripTags(m[2])),
			File:    strings.TrimSpace(m[3]),
			Raw:     strings.TrimSpace(m[0]),
		}
		if m[4] != "" {
			e.Line, _ = strconv.Atoi(m[4])
		}
		// The same text can match through both the bare and the bolded
		// pattern arm; a second lexical pass over the raw match decides
		// the kind and is authoritative.
		e.Kind = classifyPHPError(e.Raw)
		add(e)
	}

	for _, m := range reDBError.FindAllStringSubmatch(html, -1) {
		add(PHPError{
			Kind:    KindDatabase,
			Message: strings.TrimSpace(stripTags(m[1])),
			Raw:     strings.TrimSpace(m[0]),
		})
	}

	return out
}

// classifyPHPError derives the kind from raw matched text. Ordering
// matters: "parse" before "fatal" because PHP 7+ prints parse errors as
// "Parse error" but some wrappers re-emit them under a fatal banner.
func classifyPHPError(raw string) PHPErrorKind {
	low := strings.ToLower(raw)
	switch {
	case strings.Contains(low, "parse error"):
		return KindParse
	case strings.Contains(low, "fatal"):
		return KindFatal
	case strings.Contains(low, "strict standards"):
		return KindStrict
	case strings.Contains(low, "deprecated"):
		return KindDeprecated
	case strings.Contains(low, "warning"):
		return KindWarning
	case strings.Contains(low, "database error"):
		return KindDatabase
	default:
		return KindNotice
	}
}

var reTag = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)

func stripTags(s string) string {
	return reTag.ReplaceAllString(s, "")
}
