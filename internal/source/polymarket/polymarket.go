// Package polymarket reads active prediction-market events from the gamma
// API and price history from the CLOB API.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feed"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/market"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/source"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/textclean"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/errors"
)

const (
	upstream        = "polymarket"
	historyUpstream = "polymarket-clob"
	sourceName      = "Polymarket"
	eventBaseURL    = "https://polymarket.com/event/"
)

var brokenTemplate = regexp.MustCompile(`\bover__\b`)

type event struct {
	ID         flexID      `json:"id"`
	Title      string      `json:"title"`
	Slug       string      `json:"slug"`
	EndDate    string      `json:"endDate"`
	EndDateIso string      `json:"endDateIso"`
	Markets    []rawMarket `json:"markets"`
}

type rawMarket struct {
	Question       string      `json:"question"`
	GroupItemTitle string      `json:"groupItemTitle"`
	OutcomePrices  flexStrings `json:"outcomePrices"`
	Volume         flexFloat   `json:"volume"`
	Closed         bool        `json:"closed"`
	ClobTokenIDs   flexStrings `json:"clobTokenIds"`
}

type historyResponse struct {
	History []struct {
		T int64   `json:"t"`
		P float64 `json:"p"`
	} `json:"history"`
}

type Adapter struct {
	cfg      config.PolymarketConfig
	keywords []string
	client   *source.Client
	history  *source.Client
	logger   *slog.Logger
}

type Option func(*Adapter)

// WithClients replaces the events and history HTTP clients.
func WithClients(events, history *source.Client) Option {
	return func(a *Adapter) {
		a.client = events
		a.history = history
	}
}

func New(cfg config.PolymarketConfig, keywords []string, opts ...Option) *Adapter {
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			lowered = append(lowered, kw)
		}
	}
	a := &Adapter{
		cfg:      cfg,
		keywords: lowered,
		client:   source.NewClient(cfg.Timeout, ""),
		history:  source.NewClient(cfg.HistoryTimeout, ""),
		logger:   slog.Default().With("component", "polymarket"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string { return upstream }

// HistoryEnabled reports whether price history should be fetched.
func (a *Adapter) HistoryEnabled() bool { return a.cfg.HistoryEnabled }

// Relevant reports whether an event title mentions a keyword and is not a
// broken template.
func (a *Adapter) Relevant(title string) bool {
	lowered := strings.ToLower(strings.TrimSpace(title))
	if lowered == "" || brokenTemplate.MatchString(lowered) {
		return false
	}
	for _, kw := range a.keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// Fetch returns relevant active events as quotes, highest volume first.
// Events that fail to decode are skipped.
func (a *Adapter) Fetch(ctx context.Context) ([]feed.MarketQuote, map[string]int, error) {
	counters := map[string]int{}
	params := url.Values{}
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("order", "volume24hr")
	params.Set("ascending", "false")
	params.Set("limit", strconv.Itoa(a.cfg.EventLimit))
	endpoint := strings.TrimRight(a.cfg.GammaURL, "/") + "/events?" + params.Encode()

	var raw []json.RawMessage
	if err := a.client.GetJSON(ctx, upstream, endpoint, nil, &raw); err != nil {
		return nil, counters, err
	}
	counters["events"] = len(raw)

	quotes := make([]feed.MarketQuote, 0, len(raw))
	for i, msg := range raw {
		var ev event
		if err := json.Unmarshal(msg, &ev); err != nil {
			counters["skipped"]++
			a.logger.Warn("skipping malformed event", "index", i, "error", err)
			continue
		}
		if !a.Relevant(ev.Title) {
			continue
		}
		counters["relevant"]++
		q, ok := a.quote(ev)
		if !ok {
			continue
		}
		quotes = append(quotes, q)
	}

	sort.SliceStable(quotes, func(i, j int) bool { return quotes[i].Volume > quotes[j].Volume })
	counters["markets"] = len(quotes)
	return quotes, counters, nil
}

// quote converts an event. Events with no active outcome, or whose
// placeholder title cannot be expanded, are dropped.
func (a *Adapter) quote(ev event) (feed.MarketQuote, bool) {
	var active, closed []rawMarket
	for _, m := range ev.Markets {
		if m.Closed {
			closed = append(closed, m)
		} else {
			active = append(active, m)
		}
	}

	maxOutcomes := a.cfg.MaxOutcomes
	if maxOutcomes <= 0 || maxOutcomes > len(active) {
		maxOutcomes = len(active)
	}
	var volume float64
	outcomes := make([]feed.Outcome, 0, maxOutcomes)
	for _, m := range active[:maxOutcomes] {
		volume += float64(m.Volume)
		label := m.GroupItemTitle
		if label == "" {
			label = m.Question
		}
		if label == "" {
			label = ev.Title
		}
		outcomes = append(outcomes, feed.Outcome{
			Label:       label,
			Probability: firstPrice(m.OutcomePrices),
			Active:      true,
		})
	}
	for _, m := range closed {
		volume += float64(m.Volume)
	}
	if len(outcomes) == 0 {
		return feed.MarketQuote{}, false
	}
	if !market.CanExpand(ev.Title, outcomes) {
		a.logger.Debug("dropping unexpandable template", "title", ev.Title)
		return feed.MarketQuote{}, false
	}

	var token string
	if len(active) > 0 && len(active[0].ClobTokenIDs) > 0 {
		token = active[0].ClobTokenIDs[0]
	}
	endDate := ev.EndDate
	if endDate == "" {
		endDate = ev.EndDateIso
	}
	if iso, ok := textclean.NormalizeDate(endDate); ok {
		endDate = iso
	} else {
		endDate = ""
	}
	id := string(ev.ID)
	if id == "" {
		id = ev.Slug
	}

	return feed.MarketQuote{
		ID:              "pm-" + id,
		Question:        ev.Title,
		EndDate:         endDate,
		Outcomes:        outcomes,
		Volume:          volume,
		VolumeFormatted: market.FormatVolume(volume),
		Direction:       feed.DirectionFlat,
		Status:          "active",
		Source:          sourceName,
		URL:             eventBaseURL + ev.Slug,
		ClobTokenID:     token,
	}, true
}

func firstPrice(prices flexStrings) float64 {
	if len(prices) == 0 {
		return 0
	}
	p, err := strconv.ParseFloat(strings.TrimSpace(prices[0]), 64)
	if err != nil {
		return 0
	}
	return round1(p * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// History fetches the full price series for a CLOB token, Y in percent.
func (a *Adapter) History(ctx context.Context, token string) ([]feed.PricePoint, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("price history: %w", apperrors.ErrInvalidInput)
	}
	params := url.Values{}
	params.Set("market", token)
	params.Set("interval", "max")
	params.Set("fidelity", "120")
	endpoint := strings.TrimRight(a.cfg.ClobURL, "/") + "/prices-history?" + params.Encode()

	var resp historyResponse
	if err := a.history.GetJSON(ctx, historyUpstream, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	points := make([]feed.PricePoint, 0, len(resp.History))
	for _, h := range resp.History {
		points = append(points, feed.PricePoint{
			T: textclean.FormatISO(time.Unix(h.T, 0)),
			Y: round1(h.P * 100),
		})
	}
	return points, nil
}
