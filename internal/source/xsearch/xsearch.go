// Package xsearch queries the X recent-search API for posts from an
// allowlist of accounts and keeps only high-signal ones.
package xsearch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feed"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/source"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/textclean"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/errors"
)

const (
	upstream    = "x"
	searchPath  = "/2/tweets/search/recent"
	budgetKey   = "x-search"
	titleLimit  = 160
	excerptSize = 180
	category    = "osint"
)

type searchResponse struct {
	Data     []post `json:"data"`
	Includes struct {
		Users []user `json:"users"`
	} `json:"includes"`
}

type post struct {
	ID            string        `json:"id"`
	AuthorID      string        `json:"author_id"`
	Text          string        `json:"text"`
	CreatedAt     string        `json:"created_at"`
	PublicMetrics publicMetrics `json:"public_metrics"`
}

type publicMetrics struct {
	LikeCount    int `json:"like_count"`
	RetweetCount int `json:"retweet_count"`
	ReplyCount   int `json:"reply_count"`
	QuoteCount   int `json:"quote_count"`
}

type user struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Adapter struct {
	cfg      config.XConfig
	accounts map[string]bool
	client   *source.Client
	budget   *ratelimit.Limiter
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

// WithBudget replaces the request budget built from RequestsPerWindow.
func WithBudget(l *ratelimit.Limiter) Option {
	return func(a *Adapter) { a.budget = l }
}

func New(cfg config.XConfig, opts ...Option) *Adapter {
	accounts := make(map[string]bool, len(cfg.Accounts))
	for _, acct := range cfg.Accounts {
		accounts[normalizeAccount(acct)] = true
	}
	a := &Adapter{
		cfg:      cfg,
		accounts: accounts,
		client:   source.NewClient(cfg.Timeout, ""),
		budget:   ratelimit.New(cfg.RequestsPerWindow, cfg.BudgetWindow),
		now:      time.Now,
		logger:   slog.Default().With("component", "xsearch"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string { return upstream }

// Enabled reports whether a bearer token is configured.
func (a *Adapter) Enabled() bool {
	return strings.TrimSpace(a.cfg.BearerToken) != ""
}

// BuildQuery renders the recent-search query for accounts and keywords.
// Multi-word keywords are quoted.
func BuildQuery(accounts, keywords []string) string {
	from := make([]string, 0, len(accounts))
	for _, acct := range accounts {
		if acct = normalizeAccount(acct); acct != "" {
			from = append(from, "from:"+acct)
		}
	}
	terms := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(kw, " ") {
			kw = strconv.Quote(kw)
		}
		terms = append(terms, kw)
	}
	return fmt.Sprintf("(%s) (%s) -is:retweet -is:reply -is:quote lang:en",
		strings.Join(from, " OR "), strings.Join(terms, " OR "))
}

func clampResults(n int) int {
	switch {
	case n < 10:
		return 10
	case n > 100:
		return 100
	}
	return n
}

func normalizeAccount(acct string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(acct), "@"))
}

type candidate struct {
	score    float64
	username string
	item     feed.Item
}

// Fetch runs one search and returns the selected posts, best first.
// It returns ErrNotConfigured without a token and ErrBudgetExhausted when
// the local request budget is spent.
func (a *Adapter) Fetch(ctx context.Context) (source.Result, error) {
	counters := map[string]int{}
	if !a.Enabled() {
		return source.Result{Counters: counters}, fmt.Errorf("x search: %w", apperrors.ErrNotConfigured)
	}
	if !a.budget.Allow(budgetKey) {
		return source.Result{Counters: counters}, &apperrors.UpstreamError{
			Upstream: upstream,
			Err:      apperrors.ErrBudgetExhausted,
		}
	}

	params := url.Values{}
	params.Set("query", BuildQuery(a.cfg.Accounts, a.cfg.Keywords))
	params.Set("max_results", strconv.Itoa(clampResults(a.cfg.MaxResults)))
	params.Set("tweet.fields", "created_at,author_id,text,public_metrics")
	params.Set("expansions", "author_id")
	params.Set("user.fields", "username,name,verified,public_metrics")
	endpoint := strings.TrimRight(a.cfg.BaseURL, "/") + searchPath + "?" + params.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+strings.TrimSpace(a.cfg.BearerToken))
	header.Set("Accept", "application/json")

	var resp searchResponse
	if err := a.client.GetJSON(ctx, upstream, endpoint, header, &resp); err != nil {
		return source.Result{Counters: counters}, err
	}
	counters["fetched"] = len(resp.Data)
	counters["users"] = len(resp.Includes.Users)

	usernames := make(map[string]string, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		usernames[u.ID] = u.Username
	}

	now := a.now().UTC()
	candidates := make([]candidate, 0, len(resp.Data))
	for _, p := range resp.Data {
		if strings.TrimSpace(p.ID) == "" {
			counters["skipped"]++
			a.logger.Warn("skipping post without id", "author_id", p.AuthorID)
			continue
		}
		username := usernames[p.AuthorID]
		score, ok := a.signal(p, username, now)
		if !ok {
			continue
		}
		counters["passedScore"]++
		candidates = append(candidates, candidate{
			score:    score,
			username: strings.ToLower(username),
			item:     normalize(p, username),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].item.Time > candidates[j].item.Time
	})

	perAccount := make(map[string]int)
	items := make([]feed.Item, 0, a.cfg.MaxItems)
	for _, c := range candidates {
		if a.cfg.MaxPerAccount > 0 && perAccount[c.username] >= a.cfg.MaxPerAccount {
			continue
		}
		perAccount[c.username]++
		items = append(items, c.item)
		if a.cfg.MaxItems > 0 && len(items) >= a.cfg.MaxItems {
			break
		}
	}
	counters["selected"] = len(items)

	a.logger.Debug("x search complete",
		"fetched", counters["fetched"],
		"passed", counters["passedScore"],
		"selected", len(items),
	)
	return source.Result{Items: items, Counters: counters}, nil
}

// signal applies the allowlist, length, keyword, age, engagement and score
// gates in that order and returns the post's score.
func (a *Adapter) signal(p post, username string, now time.Time) (float64, bool) {
	username = normalizeAccount(username)
	if username == "" || !a.accounts[username] {
		return 0, false
	}
	text := SanitizeText(p.Text)
	if len(text) < a.cfg.MinTextLength {
		return 0, false
	}
	lowered := strings.ToLower(text)
	hits := 0
	for _, kw := range a.cfg.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(lowered, kw) {
			hits++
		}
	}
	if hits == 0 {
		return 0, false
	}
	created, ok := textclean.ParseTime(p.CreatedAt)
	if !ok {
		return 0, false
	}
	if a.cfg.MaxAge > 0 && created.Before(now.Add(-a.cfg.MaxAge)) {
		return 0, false
	}
	engagement := Engagement(p.PublicMetrics.LikeCount, p.PublicMetrics.RetweetCount, p.PublicMetrics.ReplyCount, p.PublicMetrics.QuoteCount)
	if engagement < a.cfg.MinEngagement {
		return 0, false
	}
	weight, ok := a.cfg.AccountWeights[username]
	if !ok {
		weight = 1.0
	}
	score := Score(engagement, hits, weight)
	if score < a.cfg.MinScore {
		return 0, false
	}
	return score, true
}

func Engagement(likes, reposts, replies, quotes int) int {
	return likes + 2*reposts + replies + quotes
}

// Score is rounded to two decimals.
func Score(engagement, keywordHits int, weight float64) float64 {
	raw := float64(engagement) + float64(keywordHits*4) + weight*5
	return float64(int64(raw*100+0.5)) / 100
}

// SanitizeText drops links and collapses whitespace.
func SanitizeText(s string) string {
	return textclean.CollapseSpace(textclean.StripURLs(s))
}

func normalize(p post, username string) feed.Item {
	username = strings.TrimPrefix(username, "@")
	text := SanitizeText(p.Text)
	ts, ok := textclean.NormalizeDate(p.CreatedAt)
	if !ok {
		ts = textclean.FormatISO(time.Now())
	}
	src := "X"
	link := "https://x.com"
	if username != "" {
		src = "@" + username
		if p.ID != "" {
			link = "https://x.com/" + username + "/status/" + p.ID
		}
	}
	return feed.Item{
		ID:        "x-" + p.ID,
		Kind:      feed.KindSocialPost,
		Category:  category,
		Source:    src,
		Title:     textclean.TruncateEllipsis(text, titleLimit),
		Excerpt:   textclean.TruncateEllipsis(text, excerptSize),
		URL:       link,
		Time:      ts,
		Timestamp: ts,
	}
}
