package resolver

import (
	"math"
	"strings"

	"github.com/kota-kawa/web-agent01-sub000/internal/dsl"
)

// ClickableTags mirrors spec §4.3's clickable-tag set.
var clickableTags = map[string]bool{
	"a": true, "button": true, "input": true, "select": true, "textarea": true,
}

var clickableRoles = map[string]bool{"button": true, "link": true}

// Candidate is one element fetched from the page for scoring. Fields are
// populated by the in-page collection script (collect.go); position is
// the element's index within the set fetched for the winning strategy.
type Candidate struct {
	Tag              string
	Role             string
	AriaLabel        string
	InnerText        string
	Visible          bool
	InViewport       bool
	TabIndex         int
	ContentEditable  bool
	Position         int
	BBoxCenterX      float64
	BBoxCenterY      float64
	DOMPath          string
	ElementHandle    any // opaque chromedp remote object id, threaded through unchanged
}

func (c Candidate) isClickable() bool {
	if clickableTags[strings.ToLower(c.Tag)] {
		return true
	}
	if clickableRoles[strings.ToLower(c.Role)] {
		return true
	}
	if c.TabIndex >= 0 && c.TabIndex != 0 {
		return true
	}
	if c.ContentEditable {
		return true
	}
	return false
}

// ScoreParams carries the selector-derived inputs the scoring function
// needs beyond the candidate itself.
type ScoreParams struct {
	Text         string
	AriaLabel    string
	Role         string
	OrdinalIndex *int
	NearTextX    *float64
	NearTextY    *float64
	// NearTextSet distinguishes "near_text anchor present" from "no
	// anchor", per the Open Question decision in SPEC_FULL.md: the
	// proximity bonus is computed only when near_text is explicitly set.
	NearTextSet bool
}

// maxProximityBonus and the distance at which it decays to zero, chosen
// so nearby elements (within ~150px) get a meaningful bonus while distant
// ones get none (spec §4.3 "up to +1.5").
const (
	maxProximityBonus = 1.5
	proximityDecayPx  = 400.0
)

// Score implements spec §4.3's additive composite scoring model.
func Score(c Candidate, p ScoreParams) float64 {
	var score float64

	if c.Visible {
		score += 2.0
	}
	if c.isClickable() {
		score += 1.0
	}
	if c.InViewport {
		score += 0.5
	}

	if p.Text != "" {
		score += RatcliffObershelp(p.Text, c.InnerText) * 2.0
	}
	if p.AriaLabel != "" {
		score += RatcliffObershelp(p.AriaLabel, c.AriaLabel) * 1.5
	}
	if p.Role != "" && strings.EqualFold(p.Role, c.Role) {
		score += 1.0
	}

	if p.OrdinalIndex != nil {
		diff := math.Abs(float64(*p.OrdinalIndex - c.Position))
		score -= math.Min(0.5*diff, 2.0)
	}

	if p.NearTextSet && p.NearTextX != nil && p.NearTextY != nil {
		dx := c.BBoxCenterX - *p.NearTextX
		dy := c.BBoxCenterY - *p.NearTextY
		dist := math.Sqrt(dx*dx + dy*dy)
		bonus := maxProximityBonus * (1.0 - math.Min(dist/proximityDecayPx, 1.0))
		if bonus > 0 {
			score += bonus
		}
	}

	return score
}

// ParamsFromSelector projects a dsl.Selector into ScoreParams; the
// near-text anchor's screen position is supplied separately once the
// anchor text has itself been located in-page.
func ParamsFromSelector(sel dsl.Selector, nearTextX, nearTextY *float64) ScoreParams {
	return ScoreParams{
		Text:         sel.Text,
		AriaLabel:    sel.AriaLabel,
		Role:         sel.Role,
		OrdinalIndex: sel.OrdinalIndex,
		NearTextX:    nearTextX,
		NearTextY:    nearTextY,
		NearTextSet:  sel.NearText != "",
	}
}
