// Package catalog implements the Element Catalog (C4): enumerating a
// page's interactable elements into a dense, ordinally-indexed list with a
// content-addressed catalog_version, plus the rebind protocol used when an
// executor-held plan references a stale version (spec §4.4). Collection
// runs a single in-page script, grounded on the DOM-walk/JS-evaluation
// pattern in cloudrouter/cmd/worker/browser.go (buildAccessibilitySnapshot),
// generalized from an accessibility-tree walk to the catalog's own
// interactive-tag/role/attribute criteria.
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/chromedp/chromedp"
)

// Entry is one catalog row (spec §3 ElementCatalog.entries).
type Entry struct {
	Index           int      `json:"index"`
	Tag             string   `json:"tag"`
	Role            string   `json:"role"`
	PrimaryLabel    string   `json:"primary_label"`
	SecondaryLabel  string   `json:"secondary_label"`
	SectionHint     string   `json:"section_hint"`
	StateHint       string   `json:"state_hint"`
	HrefShort       string   `json:"href_short,omitempty"`
	RobustSelectors []string `json:"robust_selectors"`
	NearestTexts    []string `json:"nearest_texts"`
	DOMPathHash     string   `json:"dom_path_hash"`
	BBox            [4]float64 `json:"bbox"`
	Visible         bool     `json:"visible"`
	Disabled        bool     `json:"disabled"`
}

// Catalog is the full per-page enumeration (spec §3).
type Catalog struct {
	CatalogVersion string  `json:"catalog_version"`
	URL            string  `json:"url"`
	Title          string  `json:"title"`
	Entries        []Entry `json:"entries"`
}

// robustSelectorK is K=5 from spec §4.4.
const robustSelectorK = 5

// collectionScript walks the DOM for the interactive-tag/role/attribute
// criteria in spec §4.4: the base tag set, ARIA roles, onclick/tabindex/
// contenteditable, excluding elements that are display:none or
// visibility:hidden (still including off-viewport-but-interactable ones).
const collectionScript = `
(function() {
  function isExcluded(el) {
    var cs = window.getComputedStyle(el);
    return cs.display === 'none' || cs.visibility === 'hidden';
  }
  function primaryLabel(el) {
    var text = (el.innerText || '').trim();
    if (text) return text;
    var aria = el.getAttribute('aria-label');
    if (aria) return aria;
    var placeholder = el.getAttribute('placeholder');
    if (placeholder) return placeholder;
    if (el.value) return el.value;
    var alt = el.getAttribute('alt');
    if (alt) return alt;
    return el.tagName.toLowerCase();
  }
  function secondaryLabel(el) {
    if (el.id) {
      var lbl = document.querySelector('label[for="' + el.id + '"]');
      if (lbl) return (lbl.innerText || '').trim();
    }
    var parentLabel = el.closest('label');
    if (parentLabel) return (parentLabel.innerText || '').trim();
    return '';
  }
  function stateHint(el) {
    var states = [];
    if (el.disabled) states.push('disabled');
    if (el.checked) states.push('checked');
    if (el.selected) states.push('selected');
    if (el.getAttribute('aria-expanded') === 'true') states.push('expanded');
    if (el.required) states.push('required');
    return states.join(',');
  }
  function sectionHint(el) {
    var landmark = el.closest('nav, main, header, footer, aside, form[id]');
    if (!landmark) return '';
    if (landmark.id) return landmark.tagName.toLowerCase() + '#' + landmark.id;
    return landmark.tagName.toLowerCase();
  }
  function domPath(el) {
    var parts = [];
    var node = el;
    while (node && node.nodeType === 1 && node !== document.documentElement) {
      var tag = node.tagName.toLowerCase();
      var parent = node.parentElement;
      var idx = 1;
      if (parent) {
        var sibs = Array.prototype.filter.call(parent.children, function(c){ return c.tagName === node.tagName; });
        idx = sibs.indexOf(node) + 1;
      }
      parts.unshift(tag + ':nth-of-type(' + idx + ')');
      node = parent;
    }
    return parts.join(' > ');
  }
  function robustSelectors(el) {
    var out = [];
    if (el.id) out.push('id=' + el.id);
    var role = el.getAttribute('role');
    if (role) out.push('role=' + role);
    var testid = el.getAttribute('data-testid');
    if (testid) out.push('testid=' + testid);
    out.push('css=' + domPath(el));
    out.push('xpath=//' + el.tagName.toLowerCase());
    var text = (el.innerText || '').trim();
    if (text) out.push('text=' + text.slice(0, 40));
    return out.slice(0, 5);
  }
  function nearestTexts(el) {
    var out = [];
    var prev = el.previousElementSibling;
    if (prev && prev.innerText) out.push(prev.innerText.trim().slice(0, 40));
    var next = el.nextElementSibling;
    if (next && next.innerText) out.push(next.innerText.trim().slice(0, 40));
    return out.filter(Boolean);
  }

  var candidates = Array.prototype.slice.call(document.querySelectorAll(
    'a, button, input:not([type=hidden]), select, textarea, summary, option, ' +
    '[role=button], [role=link], [role=textbox], [role=checkbox], [role=radio], ' +
    '[role=menuitem], [role=tab], [role=switch], [role=combobox], [role=slider], ' +
    '[role=spinbutton], [role=searchbox], [onclick], [tabindex], [contenteditable=true]'
  ));

  var entries = [];
  var idx = 0;
  candidates.forEach(function(el) {
    if (isExcluded(el)) return;
    var r = el.getBoundingClientRect();
    var inViewport = r.bottom > 0 && r.top < (window.innerHeight||0) && r.right > 0 && r.left < (window.innerWidth||0);
    entries.push({
      index: idx,
      tag: el.tagName.toLowerCase(),
      role: el.getAttribute('role') || '',
      primary_label: primaryLabel(el),
      secondary_label: secondaryLabel(el),
      section_hint: sectionHint(el),
      state_hint: stateHint(el),
      href_short: (el.getAttribute('href') || '').slice(0, 60),
      robust_selectors: robustSelectors(el),
      nearest_texts: nearestTexts(el),
      dom_path_hash: domPath(el),
      bbox: [r.left, r.top, r.width, r.height],
      visible: (r.width > 0 && r.height > 0 && window.getComputedStyle(el).opacity !== '0'),
      disabled: !!el.disabled
    });
    idx++;
  });
  return {url: window.location.href, title: document.title, entries: entries};
})()
`

type rawCollection struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Entries []Entry `json:"entries"`
}

// Collect runs the in-page collection script and assembles a Catalog with
// a freshly computed catalog_version (spec §4.4).
func Collect(ctx context.Context) (*Catalog, error) {
	var raw rawCollection
	if err := chromedp.Run(ctx, chromedp.Evaluate(collectionScript, &raw)); err != nil {
		return nil, err
	}
	for i := range raw.Entries {
		raw.Entries[i].Index = i
	}
	version := ComputeVersion(raw.URL, raw.Entries)
	return &Catalog{CatalogVersion: version, URL: raw.URL, Title: raw.Title, Entries: raw.Entries}, nil
}

// versionKey is the per-entry fingerprint hashed into catalog_version
// (spec §4.4: "(url, sorted sequence of (dom_path_hash, primary_label,
// state_hint))").
type versionKey struct {
	DOMPathHash  string
	PrimaryLabel string
	StateHint    string
}

// ComputeVersion hashes (url, sorted (dom_path_hash, primary_label,
// state_hint) triples) into the content-addressed catalog_version.
func ComputeVersion(url string, entries []Entry) string {
	keys := make([]versionKey, len(entries))
	for i, e := range entries {
		keys[i] = versionKey{DOMPathHash: e.DOMPathHash, PrimaryLabel: e.PrimaryLabel, StateHint: e.StateHint}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].DOMPathHash != keys[j].DOMPathHash {
			return keys[i].DOMPathHash < keys[j].DOMPathHash
		}
		if keys[i].PrimaryLabel != keys[j].PrimaryLabel {
			return keys[i].PrimaryLabel < keys[j].PrimaryLabel
		}
		return keys[i].StateHint < keys[j].StateHint
	})

	var sb strings.Builder
	sb.WriteString(url)
	sb.WriteString("|")
	payload, _ := json.Marshal(keys)
	sb.Write(payload)

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])[:24]
}
