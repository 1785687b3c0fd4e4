// Package rss fetches syndicated feeds concurrently, parses them with
// gofeed and keeps the entries that mention a monitored keyword.
package rss

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/dedupe"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feed"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/source"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/textclean"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/errors"
)

const upstream = "rss"

type Adapter struct {
	cfg      config.RSSConfig
	keywords []string
	client   *source.Client
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Adapter)

func WithClient(c *source.Client) Option {
	return func(a *Adapter) { a.client = c }
}

func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

func New(cfg config.RSSConfig, keywords []string, opts ...Option) *Adapter {
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			lowered = append(lowered, kw)
		}
	}
	a := &Adapter{
		cfg:      cfg,
		keywords: lowered,
		client:   source.NewClient(cfg.Timeout, cfg.UserAgent),
		now:      time.Now,
		logger:   slog.Default().With("component", "rss"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string { return upstream }

type feedResult struct {
	items  []feed.Item
	parsed int
	err    error
}

// Fetch pulls every configured feed with at most Workers in flight and
// merges the matches in configured feed order. It fails only when every
// feed failed.
func (a *Adapter) Fetch(ctx context.Context) (source.Result, error) {
	feeds := a.cfg.Feeds
	counters := map[string]int{"feeds": len(feeds)}
	if len(feeds) == 0 {
		return source.Result{Counters: counters}, nil
	}

	workers := a.cfg.Workers
	if workers <= 0 || workers > len(feeds) {
		workers = len(feeds)
	}
	results := make([]feedResult, len(feeds))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = a.fetchOne(ctx, feeds[idx])
			}
		}()
	}
	for idx := range feeds {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	perFeed := make([][]feed.Item, 0, len(feeds))
	var firstErr error
	failed := 0
	for i, r := range results {
		if r.err != nil {
			failed++
			if firstErr == nil {
				firstErr = r.err
			}
			level := slog.LevelWarn
			if apperrors.Kind(r.err) == apperrors.KindAuth {
				level = slog.LevelError
			}
			a.logger.Log(ctx, level, "feed fetch failed",
				"upstream", feeds[i].Name,
				"kind", apperrors.Kind(r.err),
				"status", apperrors.StatusOf(r.err),
				"error", r.err,
			)
			continue
		}
		counters["parsed"] += r.parsed
		counters["matched"] += len(r.items)
		perFeed = append(perFeed, r.items)
	}
	counters["feedsFailed"] = failed
	if failed == len(feeds) {
		return source.Result{Counters: counters}, fmt.Errorf("all %d feeds failed: %w", len(feeds), firstErr)
	}

	merged := dedupe.Merge(a.cfg.MergeLimit, perFeed...)
	counters["merged"] = len(merged)
	return source.Result{Items: merged, Counters: counters}, nil
}

func (a *Adapter) fetchOne(ctx context.Context, src config.FeedSource) feedResult {
	body, err := a.client.Get(ctx, upstream, src.URL, nil)
	if err != nil {
		return feedResult{err: fmt.Errorf("%s: %w", src.Name, err)}
	}
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return feedResult{err: fmt.Errorf("%s: %w", src.Name, apperrors.Malformed(upstream, err))}
	}
	items, seen := a.normalize(parsed, src)
	return feedResult{items: items, parsed: seen}
}

// normalize converts the first MaxPerFeed entries and applies the keyword
// gate. Entries without a title are skipped.
func (a *Adapter) normalize(parsed *gofeed.Feed, src config.FeedSource) ([]feed.Item, int) {
	entries := parsed.Items
	if a.cfg.MaxPerFeed > 0 && len(entries) > a.cfg.MaxPerFeed {
		entries = entries[:a.cfg.MaxPerFeed]
	}
	fetchedAt := textclean.FormatISO(a.now())

	out := make([]feed.Item, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		title := textclean.Clean(entry.Title)
		if title == "" {
			a.logger.Debug("skipping entry without title", "feed", src.Name)
			continue
		}
		desc := entry.Description
		if strings.TrimSpace(desc) == "" {
			desc = entry.Content
		}
		desc = textclean.Clean(desc)
		if !a.matches(title + " " + desc) {
			continue
		}

		link := strings.TrimSpace(entry.Link)
		if link == "" && len(entry.Links) > 0 {
			link = strings.TrimSpace(entry.Links[0])
		}

		ts := entryTime(entry)
		if ts == "" {
			ts = fetchedAt
		}
		out = append(out, feed.Item{
			ID:        ItemID(title, link),
			Kind:      feed.KindArticle,
			Category:  src.Category,
			Source:    src.Name,
			Title:     title,
			Excerpt:   textclean.Truncate(desc, a.cfg.ExcerptSize),
			URL:       link,
			Time:      ts,
			Timestamp: ts,
		})
	}
	return out, len(entries)
}

func (a *Adapter) matches(text string) bool {
	if len(a.keywords) == 0 {
		return true
	}
	lowered := strings.ToLower(text)
	for _, kw := range a.keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

func entryTime(entry *gofeed.Item) string {
	switch {
	case entry.PublishedParsed != nil:
		return textclean.FormatISO(*entry.PublishedParsed)
	case entry.UpdatedParsed != nil:
		return textclean.FormatISO(*entry.UpdatedParsed)
	}
	for _, raw := range []string{entry.Published, entry.Updated} {
		if ts, ok := textclean.NormalizeDate(raw); ok {
			return ts
		}
	}
	return ""
}

// ItemID is stable across refreshes for the same title and link.
func ItemID(title, link string) string {
	sum := md5.Sum([]byte(title + link))
	return "rss-" + hex.EncodeToString(sum[:])[:12]
}
