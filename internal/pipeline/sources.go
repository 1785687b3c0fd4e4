package pipeline

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/assembler"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feed"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/source"
)

// ItemSource is an article or social adapter.
type ItemSource interface {
	Name() string
	Fetch(ctx context.Context) (source.Result, error)
}

// SocialSource can be switched off by missing credentials.
type SocialSource interface {
	ItemSource
	Enabled() bool
}

type MarketSource interface {
	Name() string
	Fetch(ctx context.Context) ([]feed.MarketQuote, map[string]int, error)
	History(ctx context.Context, token string) ([]feed.PricePoint, error)
	HistoryEnabled() bool
}

type ItemFilter interface {
	Apply(ctx context.Context, class feed.Class, items []feed.Item) (feed.StageResult[[]feed.Item], feed.RelevanceMeta)
}

type MarketRanker interface {
	Select(ctx context.Context, markets []feed.MarketQuote) ([]feed.MarketQuote, feed.StageReport)
}

type Assembler interface {
	Assemble(in assembler.Input) (assembler.Response, error)
}
