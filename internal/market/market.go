// Package market holds the display and scoring helpers for prediction-market
// quotes.
package market

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feed"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/textclean"
)

// DirectionDeadband is the minimum move, in percentage points, that counts
// as a direction change.
const DirectionDeadband = 0.5

// DirectionWindow is the trailing span Direction compares across.
const DirectionWindow = 24 * time.Hour

var ellipses = []string{"...", "…"}

// ResolutionSuffix renders " · Resolves Jan 2, 2006" for a parseable end
// date and "" otherwise.
func ResolutionSuffix(endDate string) string {
	t, ok := textclean.ParseTime(endDate)
	if !ok {
		return ""
	}
	return " · Resolves " + t.UTC().Format("Jan 2, 2006")
}

// IsTemplate reports whether question contains an ellipsis placeholder.
func IsTemplate(question string) bool {
	_, _, ok := splitTemplate(question)
	return ok
}

// CanExpand reports whether a template question has an outcome label to
// substitute. A label that is itself a template does not count.
func CanExpand(question string, outcomes []feed.Outcome) bool {
	if !IsTemplate(question) {
		return true
	}
	top, ok := TopOutcome(outcomes)
	label := strings.TrimSpace(top.Label)
	return ok && label != "" && !IsTemplate(label)
}

// TopOutcome returns the outcome with the highest probability, the first
// one on ties.
func TopOutcome(outcomes []feed.Outcome) (feed.Outcome, bool) {
	if len(outcomes) == 0 {
		return feed.Outcome{}, false
	}
	best := outcomes[0]
	for _, o := range outcomes[1:] {
		if o.Probability > best.Probability {
			best = o
		}
	}
	return best, true
}

// DisplayQuestion replaces the ellipsis placeholder in question with the
// top outcome's label. Questions without a placeholder, or without a label
// to substitute, are returned unchanged.
func DisplayQuestion(question string, outcomes []feed.Outcome) string {
	before, after, ok := splitTemplate(question)
	if !ok {
		return question
	}
	top, found := TopOutcome(outcomes)
	label := strings.TrimSpace(top.Label)
	if !found || label == "" {
		return question
	}
	out := strings.TrimRight(before, " ") + " " + label
	after = strings.TrimLeft(after, " ")
	if after != "" {
		if r := []rune(after)[0]; unicode.IsLetter(r) || unicode.IsDigit(r) {
			out += " "
		}
	}
	return out + after
}

func splitTemplate(q string) (before, after string, ok bool) {
	for _, e := range ellipses {
		if i := strings.Index(q, e); i >= 0 {
			return q[:i], q[i+len(e):], true
		}
	}
	return "", "", false
}

// FormatVolume renders a dollar volume as $X.XM, $XK or $X.
func FormatVolume(v float64) string {
	switch {
	case v >= 1e6:
		return fmt.Sprintf("$%.1fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("$%.0fK", v/1e3)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}

// Direction compares the last point against the first point inside the
// DirectionWindow ending at the last point. Fewer than two usable points
// yields flat.
func Direction(history []feed.PricePoint) feed.Direction {
	if len(history) < 2 {
		return feed.DirectionFlat
	}
	last := history[len(history)-1]
	lastT, ok := textclean.ParseTime(last.T)
	if !ok {
		return feed.DirectionFlat
	}
	cutoff := lastT.Add(-DirectionWindow)
	first := -1
	for i, p := range history[:len(history)-1] {
		t, ok := textclean.ParseTime(p.T)
		if ok && !t.Before(cutoff) {
			first = i
			break
		}
	}
	if first < 0 {
		return feed.DirectionFlat
	}
	delta := last.Y - history[first].Y
	switch {
	case delta > DirectionDeadband:
		return feed.DirectionUp
	case delta < -DirectionDeadband:
		return feed.DirectionDown
	default:
		return feed.DirectionFlat
	}
}

// HistoryLabel picks the outcome whose series is charted: "Yes" when
// present, else the first outcome.
func HistoryLabel(outcomes []feed.Outcome) string {
	for _, o := range outcomes {
		if o.Label == "Yes" {
			return o.Label
		}
	}
	if len(outcomes) > 0 {
		return outcomes[0].Label
	}
	return "Yes"
}

// YesProbability returns the "yes" probability used in ranking prompts.
func YesProbability(outcomes []feed.Outcome) (float64, bool) {
	for _, o := range outcomes {
		if strings.EqualFold(o.Label, "yes") {
			return o.Probability, true
		}
	}
	if len(outcomes) > 0 {
		return outcomes[0].Probability, true
	}
	return 0, false
}
