package relevance

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Selection is a parsed classifier reply. None is set for the literal
// NONE. Indices are 0-based, unique and ascending.
type Selection struct {
	None    bool
	Indices []int
}

// Parsed reports whether the reply carried a usable answer.
func (s Selection) Parsed() bool {
	return s.None || len(s.Indices) > 0
}

// ParseSelection reads a reply of the form "NONE" or "3, 1, 7" against a
// listing of n items. Tokens that are not plain digits, repeat, or fall
// outside 1..n are dropped.
func ParseSelection(reply string, n int) Selection {
	cleaned := strings.TrimSpace(reply)
	if cleaned == "" {
		return Selection{}
	}
	if strings.EqualFold(cleaned, "NONE") {
		return Selection{None: true}
	}
	seen := make(map[int]bool)
	var out []int
	for _, tok := range strings.Split(cleaned, ",") {
		tok = strings.TrimSpace(tok)
		if !isDigits(tok) {
			continue
		}
		v, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		idx := v - 1
		if idx < 0 || idx >= n || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	sort.Ints(out)
	return Selection{Indices: out}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var numberPattern = regexp.MustCompile(`\d+`)

// RankedIDs extracts up to maxCount unique 1-based ids in 1..maxIndex from
// free-form text, in the order they appear.
func RankedIDs(text string, maxCount, maxIndex int) []int {
	var ranked []int
	seen := make(map[int]bool)
	for _, tok := range numberPattern.FindAllString(text, -1) {
		if len(ranked) >= maxCount {
			break
		}
		v, err := strconv.Atoi(tok)
		if err != nil || v < 1 || v > maxIndex || seen[v] {
			continue
		}
		seen[v] = true
		ranked = append(ranked, v)
	}
	return ranked
}
