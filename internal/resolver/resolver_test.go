package resolver

import (
	"context"
	"testing"

	"github.com/kota-kawa/web-agent01-sub000/internal/dsl"
)

func TestMakeIDDeterministic(t *testing.T) {
	a := MakeID("div:nth-of-type(1) > button:nth-of-type(2)", "Buy now")
	b := MakeID("div:nth-of-type(1) > button:nth-of-type(2)", "Buy now")
	if a != b {
		t.Fatalf("MakeID not deterministic: %q != %q", a, b)
	}
	if len(a) != stableIDLen {
		t.Fatalf("MakeID length = %d, want %d", len(a), stableIDLen)
	}
}

func TestTextDigestTruncates(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	digest := TextDigest(string(long))
	if len(digest) != textDigestLen {
		t.Fatalf("TextDigest length = %d, want %d", len(digest), textDigestLen)
	}
}

func TestRatcliffObershelpIdentical(t *testing.T) {
	if r := RatcliffObershelp("Buy now", "Buy now"); r != 1.0 {
		t.Fatalf("RatcliffObershelp identical strings = %v, want 1.0", r)
	}
	if r := RatcliffObershelp("", "anything"); r != 0.0 {
		t.Fatalf("RatcliffObershelp empty vs non-empty = %v, want 0.0", r)
	}
}

func TestScoreVisibleClickableAddsBonus(t *testing.T) {
	visible := Candidate{Tag: "button", Visible: true, InViewport: true}
	hidden := Candidate{Tag: "button", Visible: false, InViewport: false}
	params := ScoreParams{}
	if Score(visible, params) <= Score(hidden, params) {
		t.Fatalf("visible+inViewport candidate should outscore hidden one")
	}
}

func TestScoreOrdinalPenalty(t *testing.T) {
	idx := 3
	params := ScoreParams{OrdinalIndex: &idx}
	exact := Candidate{Position: 3}
	far := Candidate{Position: 10}
	if Score(exact, params) <= Score(far, params) {
		t.Fatalf("exact ordinal match should outscore a distant one")
	}
}

// fakeQuerier implements PageQuerier over an in-memory candidate list for
// deterministic, browser-free resolver tests.
type fakeQuerier struct {
	byCSS  map[string][]Candidate
	byPath map[string]Candidate
	all    []Candidate
}

func (f *fakeQuerier) QueryStrategy(ctx context.Context, strategy dsl.Strategy, value string) ([]Candidate, error) {
	if strategy == dsl.StrategyCSS {
		return f.byCSS[value], nil
	}
	return nil, nil
}

func (f *fakeQuerier) QueryOrdinal(ctx context.Context, index int) (Candidate, bool, error) {
	for _, c := range f.all {
		if c.Position == index {
			return c, true, nil
		}
	}
	return Candidate{}, false, nil
}

func (f *fakeQuerier) QueryByDOMPath(ctx context.Context, domPath string) (Candidate, bool, error) {
	c, ok := f.byPath[domPath]
	return c, ok, nil
}

func (f *fakeQuerier) ResolveNearTextAnchor(ctx context.Context, anchor string) (float64, float64, bool, error) {
	return 0, 0, false, nil
}

func TestResolveOrdinalIndexReachability(t *testing.T) {
	var all []Candidate
	for i := 0; i < 20; i++ {
		all = append(all, Candidate{Tag: "button", Visible: true, Position: i, DOMPath: "p" + string(rune('a'+i))})
	}
	q := &fakeQuerier{all: all}
	store := NewStableNodeStore()
	r := New(q, store)

	idx := 17
	sel := dsl.Selector{OrdinalIndex: &idx, Priority: []dsl.Strategy{dsl.StrategyOrdinal}}
	node, err := r.Resolve(context.Background(), sel)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if node.DOMPath != "p"+string(rune('a'+17)) {
		t.Fatalf("resolved wrong element for ordinal_index 17: dom_path=%q", node.DOMPath)
	}
}

func TestResolveDeterministicAcrossCalls(t *testing.T) {
	q := &fakeQuerier{byCSS: map[string][]Candidate{
		"#buy": {{Tag: "button", Visible: true, DOMPath: "div > button", InnerText: "Buy"}},
	}}
	store := NewStableNodeStore()
	r := New(q, store)
	sel := dsl.Selector{CSS: "#buy"}

	first, err := r.Resolve(context.Background(), sel)
	if err != nil {
		t.Fatalf("Resolve (1): %v", err)
	}
	second, err := r.Resolve(context.Background(), sel)
	if err != nil {
		t.Fatalf("Resolve (2): %v", err)
	}
	if first.StableID != second.StableID {
		t.Fatalf("resolution not deterministic: %q != %q", first.StableID, second.StableID)
	}
}

func TestResolveFailsWithNoCandidates(t *testing.T) {
	q := &fakeQuerier{}
	r := New(q, NewStableNodeStore())
	sel := dsl.Selector{CSS: "#missing"}
	_, err := r.Resolve(context.Background(), sel)
	if err == nil {
		t.Fatal("expected resolution failure for a selector with no matching candidates")
	}
	if _, ok := err.(*ResolutionFailedError); !ok {
		t.Fatalf("expected *ResolutionFailedError, got %T", err)
	}
}
