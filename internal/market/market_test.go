package market

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feed"
)

func TestResolutionSuffix(t *testing.T) {
	tests := []struct{ in, want string }{
		{"2026-03-31T23:59:59Z", " · Resolves Mar 31, 2026"},
		{"2026-03-31", " · Resolves Mar 31, 2026"},
		{"2026-04-01T02:00:00+05:00", " · Resolves Mar 31, 2026"},
		{"", ""},
		{"soon", ""},
	}
	for _, tt := range tests {
		if got := ResolutionSuffix(tt.in); got != tt.want {
			t.Errorf("ResolutionSuffix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDisplayQuestion(t *testing.T) {
	outcomes := []feed.Outcome{
		{Label: "Feb 28, 2026", Probability: 12},
		{Label: "Mar 1, 2026", Probability: 41.5},
		{Label: "Mar 2, 2026", Probability: 9},
	}
	tests := []struct {
		name     string
		question string
		outcomes []feed.Outcome
		want     string
	}{
		{"ascii ellipsis", "US next strikes Iran on...?", outcomes, "US next strikes Iran on Mar 1, 2026?"},
		{"unicode ellipsis", "Iran strike on Israel by…?", outcomes, "Iran strike on Israel by Mar 1, 2026?"},
		{"ellipsis mid sentence", "Khamenei out by... in 2026?", outcomes, "Khamenei out by Mar 1, 2026 in 2026?"},
		{"plain question unchanged", "Will Iran close the Strait of Hormuz by 2027?", outcomes, "Will Iran close the Strait of Hormuz by 2027?"},
		{"no outcomes unchanged", "US next strikes Iran on...?", nil, "US next strikes Iran on...?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DisplayQuestion(tt.question, tt.outcomes); got != tt.want {
				t.Errorf("DisplayQuestion = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanExpand(t *testing.T) {
	if CanExpand("Strike on...?", []feed.Outcome{{Label: " ", Probability: 50}}) {
		t.Error("blank label should not expand")
	}
	if !CanExpand("Will the regime fall?", nil) {
		t.Error("non-template always displayable")
	}
	if CanExpand("Strike on...?", []feed.Outcome{{Label: "Strike on...?", Probability: 50}}) {
		t.Error("template label should not expand")
	}
	if !CanExpand("Strike on...?", []feed.Outcome{{Label: "March 3", Probability: 50}}) {
		t.Error("dated label should expand")
	}
}

func TestFormatVolume(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{12_345_678, "$12.3M"},
		{1_000_000, "$1.0M"},
		{45_600, "$46K"},
		{999, "$999"},
		{0, "$0"},
	}
	for _, tt := range tests {
		if got := FormatVolume(tt.in); got != tt.want {
			t.Errorf("FormatVolume(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDirection(t *testing.T) {
	tests := []struct {
		name    string
		history []feed.PricePoint
		want    feed.Direction
	}{
		{"no history", nil, feed.DirectionFlat},
		{"single point", []feed.PricePoint{{T: "2026-03-01T00:00:00Z", Y: 40}}, feed.DirectionFlat},
		{"up inside window", []feed.PricePoint{
			{T: "2026-02-27T00:00:00Z", Y: 80},
			{T: "2026-02-28T04:00:00Z", Y: 30},
			{T: "2026-03-01T00:00:00Z", Y: 35},
		}, feed.DirectionUp},
		{"down", []feed.PricePoint{
			{T: "2026-02-28T12:00:00Z", Y: 35},
			{T: "2026-03-01T00:00:00Z", Y: 30},
		}, feed.DirectionDown},
		{"within deadband", []feed.PricePoint{
			{T: "2026-02-28T12:00:00Z", Y: 35},
			{T: "2026-03-01T00:00:00Z", Y: 35.4},
		}, feed.DirectionFlat},
		{"only stale points", []feed.PricePoint{
			{T: "2026-02-20T00:00:00Z", Y: 10},
			{T: "2026-03-01T00:00:00Z", Y: 90},
		}, feed.DirectionFlat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Direction(tt.history); got != tt.want {
				t.Errorf("Direction = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTopOutcomeTiesKeepFirst(t *testing.T) {
	top, ok := TopOutcome([]feed.Outcome{{Label: "a", Probability: 50}, {Label: "b", Probability: 50}})
	if !ok || top.Label != "a" {
		t.Errorf("TopOutcome = %+v", top)
	}
}
