package catalog

import (
	"fmt"

	"github.com/kota-kawa/web-agent01-sub000/internal/apierr"
	"github.com/kota-kawa/web-agent01-sub000/internal/resolver"
)

// rebindThreshold is the 0.6 confidence threshold from spec §4.4.
const rebindThreshold = 0.6

// weightDOMPath, weightLabel, weightNearestTexts are the weighted
// similarity components from spec §4.4: DOM-path equality 0.5,
// primary-label ratio 0.3, nearest-texts overlap 0.2.
const (
	weightDOMPath      = 0.5
	weightLabel        = 0.3
	weightNearestTexts = 0.2
)

// RebindResult carries the new index and a human-readable note for the
// executor's warnings list, per spec §4.4.
type RebindResult struct {
	NewIndex int
	Note     string
}

// Rebind matches an old entry from a stale catalog against the current
// catalog's entries using the weighted similarity model; it returns a
// match if the best score exceeds rebindThreshold, else a typed
// CatalogOutdated error (spec §4.4).
func Rebind(oldEntry Entry, current *Catalog) (*RebindResult, error) {
	bestScore := -1.0
	bestIdx := -1

	for _, candidate := range current.Entries {
		score := similarity(oldEntry, candidate)
		if score > bestScore {
			bestScore = score
			bestIdx = candidate.Index
		}
	}

	if bestIdx == -1 || bestScore <= rebindThreshold {
		return nil, apierr.New(apierr.CodeCatalogOutdated, "plan references a stale catalog version and no confident rebind match was found")
	}

	return &RebindResult{
		NewIndex: bestIdx,
		Note:     fmt.Sprintf("Catalog index %d rebound to %d", oldEntry.Index, bestIdx),
	}, nil
}

func similarity(a, b Entry) float64 {
	var score float64
	if a.DOMPathHash != "" && a.DOMPathHash == b.DOMPathHash {
		score += weightDOMPath
	}
	score += weightLabel * resolver.RatcliffObershelp(a.PrimaryLabel, b.PrimaryLabel)
	score += weightNearestTexts * nearestTextsOverlap(a.NearestTexts, b.NearestTexts)
	return score
}

func nearestTextsOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(b))
	for _, t := range b {
		set[t] = true
	}
	matches := 0
	for _, t := range a {
		if set[t] {
			matches++
		}
	}
	denom := len(a)
	if len(b) > denom {
		denom = len(b)
	}
	return float64(matches) / float64(denom)
}
