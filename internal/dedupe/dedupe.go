// Package dedupe merges ordered item sequences and drops duplicates without
// reordering.
package dedupe

import (
	"net/url"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feed"
)

const titleKeyLen = 80

var trackingParams = map[string]bool{
	"fbclid": true,
	"gclid":  true,
	"ocid":   true,
	"cmpid":  true,
}

// Key identifies an item for duplicate detection: the normalized URL when
// it points at a concrete page, else the normalized title, else the id.
func Key(item feed.Item) string {
	if k, ok := urlKey(item.URL); ok {
		return "u:" + k
	}
	if k := titleKey(item.Title); k != "" {
		return "t:" + k
	}
	return "i:" + strings.ToLower(item.ID)
}

// Merge concatenates seqs in order, keeps the first item for each Key and
// stops at limit items. A limit <= 0 means no cap.
func Merge(limit int, seqs ...[]feed.Item) []feed.Item {
	total := 0
	for _, s := range seqs {
		total += len(s)
	}
	if limit > 0 && total > limit {
		total = limit
	}
	out := make([]feed.Item, 0, total)
	seen := make(map[string]struct{}, total)
	for _, s := range seqs {
		for _, item := range s {
			k := Key(item)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, item)
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}

// urlKey rejects URLs that cannot tell two stories apart: unparseable,
// hostless, or pointing at a site root.
func urlKey(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	path := strings.TrimRight(u.EscapedPath(), "/")
	if path == "" {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")

	q := u.Query()
	for name := range q {
		if strings.HasPrefix(strings.ToLower(name), "utm_") || trackingParams[strings.ToLower(name)] {
			q.Del(name)
		}
	}
	key := host + path
	if enc := q.Encode(); enc != "" {
		key += "?" + enc
	}
	return key, true
}

func titleKey(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() >= titleKeyLen {
				break
			}
		}
	}
	return b.String()
}
