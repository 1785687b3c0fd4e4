// Package textclean normalizes upstream text: HTML removal, entity
// decoding, rune-safe truncation and date normalization.
package textclean

import (
	"html"
	"regexp"
	"strings"
	"time"
)

// ISOLayout is the single date format emitted by every adapter.
const ISOLayout = "2006-01-02T15:04:05Z"

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
	urlPattern   = regexp.MustCompile(`https?://\S+`)
)

// StripHTML removes markup tags.
func StripHTML(s string) string {
	return tagPattern.ReplaceAllString(s, " ")
}

// DecodeEntities unescapes HTML entities twice, which handles feeds that
// double-encode ("&amp;#039;").
func DecodeEntities(s string) string {
	return html.UnescapeString(html.UnescapeString(s))
}

// CollapseSpace trims s and folds runs of whitespace into one space.
func CollapseSpace(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

// StripURLs removes http(s) links.
func StripURLs(s string) string {
	return urlPattern.ReplaceAllString(s, "")
}

// Clean decodes entities, strips tags and collapses whitespace. Entities
// are decoded first so escaped markup is removed too.
func Clean(s string) string {
	return CollapseSpace(StripHTML(DecodeEntities(s)))
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// TruncateEllipsis cuts s to at most n runes, ending in "..." when cut.
func TruncateEllipsis(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05-0700",
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"02 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses the date formats seen across feeds. Values without a
// zone are taken as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// NormalizeDate converts s to ISOLayout in UTC.
func NormalizeDate(s string) (string, bool) {
	t, ok := ParseTime(s)
	if !ok {
		return "", false
	}
	return FormatISO(t), true
}

func FormatISO(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}
