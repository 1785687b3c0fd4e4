package dedupe

import (
	"reflect"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feed"
)

func item(id, title, url string) feed.Item {
	return feed.Item{ID: id, Title: title, URL: url}
}

func ids(items []feed.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestKey(t *testing.T) {
	tests := []struct {
		name string
		a, b feed.Item
		same bool
	}{
		{"tracking params and www ignored",
			item("1", "x", "https://www.reuters.com/world/iran-strike/?utm_source=rss"),
			item("2", "y", "https://reuters.com/world/iran-strike"), true},
		{"different paths",
			item("1", "Same title", "https://example.com/a"),
			item("2", "Same title", "https://example.com/b"), false},
		{"site root falls back to title",
			item("1", "Iran confirms strike in Tehran", "https://example.com/"),
			item("2", "IRAN confirms strike, in Tehran!", "https://other.example"), true},
		{"missing url falls back to title",
			item("1", "Hormuz closed", ""),
			item("2", "hormuz closed", ""), true},
		{"no url or title falls back to id",
			item("rss-1", "", ""),
			item("rss-2", "", ""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.a) == Key(tt.b); got != tt.same {
				t.Errorf("Key(%+v)=%q Key(%+v)=%q same=%v want %v", tt.a, Key(tt.a), tt.b, Key(tt.b), got, tt.same)
			}
		})
	}
}

func TestMergePreservesOrder(t *testing.T) {
	a := item("A", "a", "https://e.com/a")
	b := item("B", "b", "https://e.com/b")
	c := item("C", "c", "https://e.com/c")
	b2 := item("B2", "b again", "https://e.com/b")

	got := ids(Merge(0, []feed.Item{a, b}, []feed.Item{c, b2}))
	if want := []string{"A", "B", "C"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Merge = %v, want %v", got, want)
	}
}

func TestMergeIdempotent(t *testing.T) {
	seq := []feed.Item{
		item("1", "one", "https://e.com/1"),
		item("2", "two", "https://e.com/2"),
		item("3", "one", "https://e.com/1?utm_medium=x"),
		item("4", "four", ""),
		item("5", "Four", ""),
	}
	once := Merge(10, seq)
	twice := Merge(10, once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("merge not idempotent: %v vs %v", ids(once), ids(twice))
	}
	if want := []string{"1", "2", "4"}; !reflect.DeepEqual(ids(once), want) {
		t.Errorf("Merge = %v, want %v", ids(once), want)
	}
}

func TestMergeLimit(t *testing.T) {
	seq := []feed.Item{item("1", "a", ""), item("2", "b", ""), item("3", "c", "")}
	if got := ids(Merge(2, seq)); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Errorf("Merge(2) = %v", got)
	}
}
