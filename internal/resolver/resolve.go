package resolver

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"github.com/kota-kawa/web-agent01-sub000/internal/apierr"
	"github.com/kota-kawa/web-agent01-sub000/internal/dsl"
)

// ResolvedNode is the product of a successful resolution (spec §3).
type ResolvedNode struct {
	Selector      dsl.Selector
	StableID      string
	Score         float64
	DOMPath       string
	TextDigest    string
	Strategy      dsl.Strategy
	ElementHandle any
}

// maxCandidatesPerStrategy is N=6 from spec §4.3.
const maxCandidatesPerStrategy = 6

// PageQuerier abstracts the in-page DOM queries the resolver issues,
// letting the scoring/strategy-selection logic (this file) be tested
// independently of a live chromedp connection.
type PageQuerier interface {
	// QueryStrategy returns up to maxCandidatesPerStrategy candidates for
	// the given strategy/value pair, in document order.
	QueryStrategy(ctx context.Context, strategy dsl.Strategy, value string) ([]Candidate, error)
	// QueryOrdinal returns the single candidate at the given ordinal
	// index, regardless of N (spec §4.3 "also collect candidate at
	// ordinal_index even if it lies outside the first N").
	QueryOrdinal(ctx context.Context, index int) (Candidate, bool, error)
	// QueryByDOMPath attempts to reconstruct an element from a stored
	// dom_path (stable_id fast path).
	QueryByDOMPath(ctx context.Context, domPath string) (Candidate, bool, error)
	// ResolveNearTextAnchor finds the bounding-box center of the first
	// element whose text matches anchor, for proximity scoring.
	ResolveNearTextAnchor(ctx context.Context, anchor string) (x, y float64, ok bool, err error)
}

// Resolver drives the strategy loop and stable-ID bookkeeping.
type Resolver struct {
	querier PageQuerier
	store   *StableNodeStore
}

// New builds a Resolver bound to a page querier and a session-scoped
// stable node store.
func New(querier PageQuerier, store *StableNodeStore) *Resolver {
	return &Resolver{querier: querier, store: store}
}

// ResolutionFailedError is SelectorResolutionFailed from spec §4.3.
type ResolutionFailedError struct {
	Selector            dsl.Selector
	AttemptedStrategies []dsl.Strategy
	BestScoreSeen        float64
}

func (e *ResolutionFailedError) Error() string {
	return fmt.Sprintf("selector resolution failed after trying %v (best score seen: %.2f)", e.AttemptedStrategies, e.BestScoreSeen)
}

// Resolve implements spec §4.3: try stable_id fast path, then each
// strategy in priority order until one yields candidates, score all
// candidates from that strategy, and pick the max.
func (r *Resolver) Resolve(ctx context.Context, sel dsl.Selector) (*ResolvedNode, error) {
	if sel.StableID != "" {
		if node, err := r.resolveByStableID(ctx, sel); err == nil {
			return node, nil
		}
		// Fast path failure falls through to ordinary strategies.
	}

	var (
		attempted []dsl.Strategy
		bestScore = 0.0
	)

	for _, strategy := range sel.EffectivePriority() {
		if strategy == dsl.StrategyStableID {
			continue
		}
		value, ok := strategyValue(sel, strategy)
		if !ok {
			continue
		}
		attempted = append(attempted, strategy)

		candidates, err := r.querier.QueryStrategy(ctx, strategy, value)
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeElementNotFound, "strategy query failed", err)
		}

		if strategy == dsl.StrategyOrdinal && sel.OrdinalIndex != nil {
			if extra, ok, err := r.querier.QueryOrdinal(ctx, *sel.OrdinalIndex); err == nil && ok {
				candidates = appendIfMissing(candidates, extra)
			}
		}

		if len(candidates) == 0 {
			continue
		}

		var nearX, nearY *float64
		if sel.NearText != "" {
			if x, y, ok, err := r.querier.ResolveNearTextAnchor(ctx, sel.NearText); err == nil && ok {
				nearX, nearY = &x, &y
			}
		}
		params := ParamsFromSelector(sel, nearX, nearY)

		best, bestIdx := pickBest(candidates, params)
		node := r.finalize(sel, candidates[bestIdx], strategy, best)
		return node, nil
	}

	return nil, &ResolutionFailedError{Selector: sel, AttemptedStrategies: attempted, BestScoreSeen: bestScore}
}

func pickBest(candidates []Candidate, params ScoreParams) (float64, int) {
	bestScore := -1e9
	bestIdx := 0
	for i, c := range candidates {
		s := Score(c, params)
		if s > bestScore {
			bestScore = s
			bestIdx = i
		}
	}
	return bestScore, bestIdx
}

func appendIfMissing(candidates []Candidate, extra Candidate) []Candidate {
	for _, c := range candidates {
		if c.DOMPath == extra.DOMPath {
			return candidates
		}
	}
	return append(candidates, extra)
}

func (r *Resolver) resolveByStableID(ctx context.Context, sel dsl.Selector) (*ResolvedNode, error) {
	rec, ok := r.store.Get(sel.StableID)
	if !ok {
		return nil, fmt.Errorf("resolver: stable_id %q not found in store", sel.StableID)
	}
	cand, found, err := r.querier.QueryByDOMPath(ctx, rec.DOMPath)
	if err != nil || !found {
		return nil, fmt.Errorf("resolver: stable_id %q dom_path %q no longer resolves", sel.StableID, rec.DOMPath)
	}
	node := r.finalize(sel, cand, dsl.StrategyStableID, 0)
	return node, nil
}

func (r *Resolver) finalize(sel dsl.Selector, c Candidate, strategy dsl.Strategy, score float64) *ResolvedNode {
	textDigest := TextDigest(c.InnerText)
	stableID := MakeID(c.DOMPath, textDigest)
	r.store.Put(stableID, NodeRecord{DOMPath: c.DOMPath, TextDigest: textDigest})
	return &ResolvedNode{
		Selector:      sel,
		StableID:      stableID,
		Score:         score,
		DOMPath:       c.DOMPath,
		TextDigest:    textDigest,
		Strategy:      strategy,
		ElementHandle: c.ElementHandle,
	}
}

func strategyValue(sel dsl.Selector, strategy dsl.Strategy) (string, bool) {
	switch strategy {
	case dsl.StrategyCSS:
		return sel.CSS, sel.CSS != ""
	case dsl.StrategyRole:
		return sel.Role, sel.Role != ""
	case dsl.StrategyText:
		return sel.Text, sel.Text != ""
	case dsl.StrategyAriaLabel:
		return sel.AriaLabel, sel.AriaLabel != ""
	case dsl.StrategyXPath:
		return sel.XPath, sel.XPath != ""
	case dsl.StrategyNearText:
		return sel.NearText, sel.NearText != ""
	case dsl.StrategyOrdinal:
		if sel.OrdinalIndex == nil {
			return "", false
		}
		return fmt.Sprintf("%d", *sel.OrdinalIndex), true
	default:
		return "", false
	}
}

// chromedpQuerier is the production PageQuerier backed by a live chromedp
// context, evaluating the collection script defined in collect.go.
type chromedpQuerier struct {
	ctx context.Context
}

// NewChromedpQuerier builds a PageQuerier bound to an active chromedp
// context (the Connector's shared page).
func NewChromedpQuerier(ctx context.Context) PageQuerier {
	return &chromedpQuerier{ctx: ctx}
}

func (q *chromedpQuerier) QueryStrategy(ctx context.Context, strategy dsl.Strategy, value string) ([]Candidate, error) {
	var raw []jsCandidate
	script := buildStrategyScript(strategy, value, maxCandidatesPerStrategy)
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &raw)); err != nil {
		return nil, err
	}
	return fromJSCandidates(raw), nil
}

func (q *chromedpQuerier) QueryOrdinal(ctx context.Context, index int) (Candidate, bool, error) {
	var raw *jsCandidate
	script := buildOrdinalScript(index)
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &raw)); err != nil {
		return Candidate{}, false, err
	}
	if raw == nil {
		return Candidate{}, false, nil
	}
	return raw.toCandidate(), true, nil
}

func (q *chromedpQuerier) QueryByDOMPath(ctx context.Context, domPath string) (Candidate, bool, error) {
	var raw *jsCandidate
	script := buildDOMPathScript(domPath)
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &raw)); err != nil {
		return Candidate{}, false, err
	}
	if raw == nil {
		return Candidate{}, false, nil
	}
	return raw.toCandidate(), true, nil
}

func (q *chromedpQuerier) ResolveNearTextAnchor(ctx context.Context, anchor string) (float64, float64, bool, error) {
	var point *struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	script := buildNearTextScript(anchor)
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &point)); err != nil {
		return 0, 0, false, err
	}
	if point == nil {
		return 0, 0, false, nil
	}
	return point.X, point.Y, true, nil
}
