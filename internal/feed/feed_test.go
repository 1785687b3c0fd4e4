package feed

import "testing"

func TestParseClass(t *testing.T) {
	for _, c := range Classes {
		got, ok := ParseClass(string(c))
		if !ok || got != c {
			t.Errorf("ParseClass(%q) = %q, %v", c, got, ok)
		}
	}
	if _, ok := ParseClass("weather"); ok {
		t.Error("unknown class accepted")
	}
}

func TestBatchLen(t *testing.T) {
	b := Batch{Class: ClassMarkets, Markets: make([]MarketQuote, 2), Items: make([]Item, 5)}
	if b.Len() != 2 {
		t.Errorf("markets batch Len = %d, want 2", b.Len())
	}
	b.Class = ClassSocial
	if b.Len() != 5 {
		t.Errorf("social batch Len = %d, want 5", b.Len())
	}
}
