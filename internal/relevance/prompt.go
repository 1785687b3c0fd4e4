package relevance

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feed"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/market"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/textclean"
)

// DefaultTopic describes what the dashboard monitors.
const DefaultTopic = "the Iran crisis: Iran military and nuclear activity, the IRGC, " +
	"the Strait of Hormuz, Hezbollah, US-Iran-Israel escalation, and market impacts of the conflict"

const listingExcerptLen = 160

// Prompt is one classifier request.
type Prompt struct {
	Model     string
	System    string
	User      string
	MaxTokens int64
}

// Listing renders items as "N. source: title — excerpt", one per line.
func Listing(items []feed.Item) string {
	var b strings.Builder
	for i, it := range items {
		src := it.Source
		if src == "" {
			src = "unknown"
		}
		fmt.Fprintf(&b, "%d. %s: %s", i+1, src, it.Title)
		if ex := textclean.Truncate(it.Excerpt, listingExcerptLen); ex != "" && ex != it.Title {
			b.WriteString(" — ")
			b.WriteString(ex)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func filterPrompt(class feed.Class, model, topic string, items []feed.Item, maxTokens int64) Prompt {
	noun := "news articles"
	if class == feed.ClassSocial {
		noun = "X posts"
	}
	return Prompt{
		Model: model,
		System: fmt.Sprintf("You are filtering %s for a situational-awareness dashboard covering %s. "+
			"Keep items directly relevant to that situation and drop everything else.", noun, topic),
		User: "Reply with ONLY item numbers, comma-separated, or NONE.\n\nItems:\n" + Listing(items),
		MaxTokens: maxTokens,
	}
}

func marketPrompt(model, topic string, pool []feed.MarketQuote, keep int, maxTokens int64) Prompt {
	var lines strings.Builder
	for i, m := range pool {
		resolves := m.EndDate
		if resolves == "" {
			resolves = "unknown"
		}
		yes := "n/a"
		if p, ok := market.YesProbability(m.Outcomes); ok {
			yes = fmt.Sprintf("%.1f%%", p)
		}
		vol := m.VolumeFormatted
		if vol == "" {
			vol = "n/a"
		}
		fmt.Fprintf(&lines, "%d. %s | resolves %s | yes %s | volume %s\n",
			i+1, market.DisplayQuestion(m.Question, m.Outcomes), resolves, yes, vol)
	}
	return Prompt{
		Model: model,
		System: "You are selecting prediction markets for a dashboard covering " + topic + ". " +
			"Prioritize strategic, decision-relevant markets about escalation, regional spillover, " +
			"regime stability, and macro-energy impacts. Reject malformed placeholder markets and " +
			"low-signal date-picker trivia. Return only a comma-separated list of item numbers.",
		User: fmt.Sprintf("Pick up to %d items that are most relevant for crisis monitoring.\n"+
			"Return only item numbers, comma-separated (example: 3,1,7,2).\n\n%s", keep, strings.TrimRight(lines.String(), "\n")),
		MaxTokens: maxTokens,
	}
}
