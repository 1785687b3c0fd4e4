// Package feed defines the normalized records that flow through the
// pipeline: feed items, market quotes, per-class batches and the stage
// reports attached to the live response.
package feed

import "time"

// Kind distinguishes long-form articles from social posts.
type Kind string

const (
	KindArticle    Kind = "article"
	KindSocialPost Kind = "social-post"
)

// Item is a single article or social post. Time and Timestamp carry the
// upstream's own date in "2006-01-02T15:04:05Z" form and are never
// recomputed after normalization.
type Item struct {
	ID        string `json:"id"`
	Kind      Kind   `json:"kind"`
	Category  string `json:"category"`
	Source    string `json:"source"`
	Title     string `json:"title"`
	Excerpt   string `json:"excerpt"`
	URL       string `json:"url"`
	Time      string `json:"time"`
	Timestamp string `json:"timestamp"`
}

type Outcome struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
	Active      bool    `json:"active"`
}

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// PricePoint is one probability sample, Y in percent.
type PricePoint struct {
	T string  `json:"t"`
	Y float64 `json:"y"`
}

// MarketQuote is a prediction-market event with its outcomes. Question may
// be an ellipsis template; see market.DisplayQuestion.
type MarketQuote struct {
	ID              string       `json:"id"`
	Question        string       `json:"question"`
	EndDate         string       `json:"endDate,omitempty"`
	Outcomes        []Outcome    `json:"outcomes"`
	Volume          float64      `json:"volume"`
	VolumeFormatted string       `json:"volumeFormatted"`
	Direction       Direction    `json:"direction"`
	Status          string       `json:"status"`
	Source          string       `json:"source"`
	URL             string       `json:"url"`
	History         []PricePoint `json:"history,omitempty"`
	ClobTokenID     string       `json:"-"`
}

// Class names an independently fetched and cached stream.
type Class string

const (
	ClassArticles Class = "articles"
	ClassSocial   Class = "social"
	ClassMarkets  Class = "markets"
)

var Classes = []Class{ClassArticles, ClassSocial, ClassMarkets}

// ParseClass returns the class named s.
func ParseClass(s string) (Class, bool) {
	for _, c := range Classes {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Batch is the product of one successful refresh of a class. Items is set
// for articles and social, Markets for markets. Batches are replaced
// wholesale and must not be mutated once cached.
type Batch struct {
	Class     Class         `json:"class"`
	Items     []Item        `json:"items,omitempty"`
	Markets   []MarketQuote `json:"markets,omitempty"`
	Stages    []StageReport `json:"stages,omitempty"`
	FetchedAt time.Time     `json:"fetchedAt"`
}

// Len reports the number of records in the batch.
func (b Batch) Len() int {
	if b.Class == ClassMarkets {
		return len(b.Markets)
	}
	return len(b.Items)
}
