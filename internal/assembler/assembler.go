// Package assembler composes the live response from the per-class results:
// one time-ordered news list, a separate market list, the odds history and
// the diagnostic metadata.
package assembler

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/dedupe"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feed"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/market"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/textclean"
	apperrors "github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/errors"
)

type Config struct {
	FeedCap        int
	MarketCap      int
	ReservedSocial int
}

// Input carries one result per class. Classes the caller did not run stay
// zero-valued and are reported as empty.
type Input struct {
	Articles feed.StageResult[feed.Batch]
	Social   feed.StageResult[feed.Batch]
	Markets  feed.StageResult[feed.Batch]
	Now      time.Time
}

type ClassMeta struct {
	Served    feed.Served `json:"served"`
	Degraded  bool        `json:"degraded"`
	Reason    string      `json:"reason,omitempty"`
	Count     int         `json:"count"`
	StoredAt  string      `json:"storedAt,omitempty"`
	ExpiresAt string      `json:"expiresAt,omitempty"`
}

type Meta struct {
	NewsCount    int                      `json:"newsCount"`
	MarketsCount int                      `json:"marketsCount"`
	FetchedAt    string                   `json:"fetchedAt"`
	Degraded     bool                     `json:"degraded"`
	Classes      map[feed.Class]ClassMeta `json:"classes"`
	Stages       []feed.StageReport       `json:"stages"`
}

// OddsHistory maps a market question to its charted outcome label and
// that outcome's price series.
type OddsHistory map[string]map[string][]feed.PricePoint

type Response struct {
	Timestamp   string             `json:"timestamp"`
	LastUpdated string             `json:"lastUpdated"`
	News        []feed.Item        `json:"news"`
	Markets     []feed.MarketQuote `json:"markets"`
	OddsHistory OddsHistory        `json:"oddsHistory"`
	Meta        Meta               `json:"meta"`
}

type Assembler struct {
	cfg Config
}

func New(cfg Config) *Assembler {
	return &Assembler{cfg: cfg}
}

// Assemble builds the response. It only fails on a configuration it
// cannot honor.
func (a *Assembler) Assemble(in Input) (Response, error) {
	if a.cfg.FeedCap <= 0 || a.cfg.MarketCap <= 0 {
		return Response{}, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusInternalServerError,
			"assembler caps must be positive (feed %d, markets %d)", a.cfg.FeedCap, a.cfg.MarketCap)
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	nowISO := textclean.FormatISO(now)

	articles := in.Articles.Data.Items
	social := in.Social.Data.Items
	news := MergeNews(articles, social, a.cfg.FeedCap, a.cfg.ReservedSocial)

	markets := in.Markets.Data.Markets
	if len(markets) > a.cfg.MarketCap {
		markets = markets[:a.cfg.MarketCap]
	}
	if markets == nil {
		markets = []feed.MarketQuote{}
	}

	classes := map[feed.Class]ClassMeta{
		feed.ClassArticles: classMeta(in.Articles, len(articles)),
		feed.ClassSocial:   classMeta(in.Social, len(social)),
		feed.ClassMarkets:  classMeta(in.Markets, len(in.Markets.Data.Markets)),
	}

	var stages []feed.StageReport
	degraded := false
	for _, pair := range []struct {
		class feed.Class
		res   feed.StageResult[feed.Batch]
	}{
		{feed.ClassArticles, in.Articles},
		{feed.ClassSocial, in.Social},
		{feed.ClassMarkets, in.Markets},
	} {
		stages = append(stages, batchStages(pair.res)...)
		stages = append(stages, cacheStage(pair.class, pair.res))
		if pair.res.Degraded {
			degraded = true
		}
	}
	for _, s := range stages {
		if s.Degraded {
			degraded = true
		}
	}
	stages = append(stages, feed.StageReport{
		Name:     "assemble",
		Input:    len(articles) + len(social),
		Output:   len(news),
		Executed: true,
		Counters: map[string]int{
			"markets":   len(markets),
			"feedCap":   a.cfg.FeedCap,
			"marketCap": a.cfg.MarketCap,
		},
	})

	return Response{
		Timestamp:   nowISO,
		LastUpdated: lastUpdated(now, in.Articles, in.Social, in.Markets),
		News:        news,
		Markets:     markets,
		OddsHistory: BuildOddsHistory(markets),
		Meta: Meta{
			NewsCount:    len(news),
			MarketsCount: len(markets),
			FetchedAt:    nowISO,
			Degraded:     degraded,
			Classes:      classes,
			Stages:       stages,
		},
	}, nil
}

// MergeNews unions articles and social posts (articles win duplicates),
// orders them newest first and cuts to limit while keeping up to reserved
// slots for social posts.
func MergeNews(articles, social []feed.Item, limit, reserved int) []feed.Item {
	if limit <= 0 {
		return []feed.Item{}
	}
	unique := dedupe.Merge(0, articles, social)
	sortByTime(unique)

	var posts, others []feed.Item
	for _, it := range unique {
		if isSocial(it) {
			posts = append(posts, it)
		} else {
			others = append(others, it)
		}
	}

	reserve := min(max(reserved, 0), len(posts), limit)
	selected := make([]feed.Item, 0, limit)
	selected = append(selected, others[:min(len(others), limit-reserve)]...)
	selected = append(selected, posts[:reserve]...)

	if len(selected) < limit {
		taken := make(map[string]bool, len(selected))
		for _, it := range selected {
			taken[dedupe.Key(it)] = true
		}
		for _, it := range unique {
			if len(selected) >= limit {
				break
			}
			if !taken[dedupe.Key(it)] {
				selected = append(selected, it)
			}
		}
	}

	sortByTime(selected)
	return selected
}

func isSocial(it feed.Item) bool {
	return it.Kind == feed.KindSocialPost
}

// sortByTime orders newest first. Times share one ISO layout, so string
// order is time order; undated items sort last.
func sortByTime(items []feed.Item) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Time > items[j].Time })
}

// BuildOddsHistory keys each market's history by question and charted
// label. Markets without history are left out.
func BuildOddsHistory(markets []feed.MarketQuote) OddsHistory {
	out := make(OddsHistory, len(markets))
	for _, m := range markets {
		if len(m.History) == 0 {
			continue
		}
		out[m.Question] = map[string][]feed.PricePoint{
			market.HistoryLabel(m.Outcomes): m.History,
		}
	}
	return out
}

func classMeta(res feed.StageResult[feed.Batch], count int) ClassMeta {
	served := res.Served
	if served == "" {
		served = feed.ServedEmpty
	}
	cm := ClassMeta{
		Served:   served,
		Degraded: res.Degraded,
		Reason:   res.Reason,
		Count:    count,
	}
	if !res.StoredAt.IsZero() {
		cm.StoredAt = textclean.FormatISO(res.StoredAt)
	}
	if !res.ExpiresAt.IsZero() {
		cm.ExpiresAt = textclean.FormatISO(res.ExpiresAt)
	}
	return cm
}

// batchStages returns the stage reports stored with the batch. Reports of a
// batch served from the cache describe an earlier request, so they are
// marked as not executed.
func batchStages(res feed.StageResult[feed.Batch]) []feed.StageReport {
	if res.Served == feed.ServedFresh {
		return res.Data.Stages
	}
	out := make([]feed.StageReport, len(res.Data.Stages))
	for i, st := range res.Data.Stages {
		st.Executed = false
		out[i] = st
	}
	return out
}

func cacheStage(class feed.Class, res feed.StageResult[feed.Batch]) feed.StageReport {
	served := res.Served
	if served == "" {
		served = feed.ServedEmpty
	}
	n := res.Data.Len()
	return feed.StageReport{
		Name:     "cache",
		Class:    class,
		Input:    n,
		Output:   n,
		Executed: served != feed.ServedDisabled,
		Degraded: res.Degraded,
		Reason:   reasonOrServed(res.Reason, served),
	}
}

func reasonOrServed(reason string, served feed.Served) string {
	if reason != "" {
		return fmt.Sprintf("%s:%s", served, reason)
	}
	return string(served)
}

func lastUpdated(now time.Time, results ...feed.StageResult[feed.Batch]) string {
	var latest time.Time
	for _, r := range results {
		if r.StoredAt.After(latest) {
			latest = r.StoredAt
		}
	}
	if latest.IsZero() {
		latest = now
	}
	return textclean.FormatISO(latest)
}
