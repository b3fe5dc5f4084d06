package resolver

import (
	"fmt"
	"strconv"

	"github.com/kota-kawa/web-agent01-sub000/internal/dsl"
)

// jsCandidate mirrors the shape the in-page collection script returns for
// one candidate element.
type jsCandidate struct {
	Tag             string  `json:"tag"`
	Role            string  `json:"role"`
	AriaLabel       string  `json:"ariaLabel"`
	InnerText       string  `json:"innerText"`
	Visible         bool    `json:"visible"`
	InViewport      bool    `json:"inViewport"`
	TabIndex        int     `json:"tabIndex"`
	ContentEditable bool    `json:"contentEditable"`
	Position        int     `json:"position"`
	CenterX         float64 `json:"centerX"`
	CenterY         float64 `json:"centerY"`
	DOMPath         string  `json:"domPath"`
	BackendNodeID   int64   `json:"backendNodeId"`
}

func (j jsCandidate) toCandidate() Candidate {
	return Candidate{
		Tag:             j.Tag,
		Role:            j.Role,
		AriaLabel:       j.AriaLabel,
		InnerText:       j.InnerText,
		Visible:         j.Visible,
		InViewport:      j.InViewport,
		TabIndex:        j.TabIndex,
		ContentEditable: j.ContentEditable,
		Position:        j.Position,
		BBoxCenterX:     j.CenterX,
		BBoxCenterY:     j.CenterY,
		DOMPath:         j.DOMPath,
		ElementHandle:   j.BackendNodeID,
	}
}

func fromJSCandidates(raw []jsCandidate) []Candidate {
	out := make([]Candidate, len(raw))
	for i, j := range raw {
		out[i] = j.toCandidate()
	}
	return out
}

// runtimeHelpers is shared JS defining visibility (the computed-style
// definition SPEC_FULL.md's Open Question decision picks, not the
// bbox!=[0,0,0,0] shortcut), viewport membership, dom-path computation,
// and per-element descriptor extraction. Injected at the top of every
// collection script below.
const runtimeHelpers = `
function __isVisible(el) {
  var cs = window.getComputedStyle(el);
  if (cs.display === 'none' || cs.visibility === 'hidden' || cs.opacity === '0') return false;
  var r = el.getBoundingClientRect();
  return r.width > 0 && r.height > 0;
}
function __inViewport(el) {
  var r = el.getBoundingClientRect();
  return r.bottom > 0 && r.top < (window.innerHeight || document.documentElement.clientHeight) &&
         r.right > 0 && r.left < (window.innerWidth || document.documentElement.clientWidth);
}
function __domPath(el) {
  var parts = [];
  var node = el;
  while (node && node.nodeType === 1 && node !== document.documentElement) {
    var tag = node.tagName.toLowerCase();
    var parent = node.parentElement;
    var idx = 1;
    if (parent) {
      var siblings = Array.prototype.filter.call(parent.children, function(c) { return c.tagName === node.tagName; });
      idx = siblings.indexOf(node) + 1;
    }
    parts.unshift(tag + ':nth-of-type(' + idx + ')');
    node = parent;
  }
  return parts.join(' > ');
}
function __describe(el, position) {
  var r = el.getBoundingClientRect();
  return {
    tag: el.tagName.toLowerCase(),
    role: el.getAttribute('role') || '',
    ariaLabel: el.getAttribute('aria-label') || '',
    innerText: (el.innerText || el.textContent || '').trim(),
    visible: __isVisible(el),
    inViewport: __inViewport(el),
    tabIndex: el.tabIndex || 0,
    contentEditable: el.isContentEditable === true,
    position: position,
    centerX: r.left + r.width / 2,
    centerY: r.top + r.height / 2,
    domPath: __domPath(el),
    backendNodeId: 0
  };
}
`

// interactiveSelector is the CSS selector for the base interactive-tag set
// used when enumerating by role/text/aria-label/ordinal (spec §4.4's tag
// set, reused here for strategies that scan "all interactable elements").
const interactiveSelector = `a, button, input:not([type=hidden]), select, textarea, summary, option, [role], [onclick], [tabindex], [contenteditable=true]`

func buildStrategyScript(strategy dsl.Strategy, value string, limit int) string {
	quoted := strconv.Quote(value)
	switch strategy {
	case dsl.StrategyCSS:
		return fmt.Sprintf(`(function(){%s
var els = Array.prototype.slice.call(document.querySelectorAll(%s)).slice(0, %d);
return els.map(function(el, i){ return __describe(el, i); });
})()`, runtimeHelpers, quoted, limit)
	case dsl.StrategyXPath:
		return fmt.Sprintf(`(function(){%s
var result = document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
var out = [];
for (var i = 0; i < Math.min(result.snapshotLength, %d); i++) { out.push(__describe(result.snapshotItem(i), i)); }
return out;
})()`, runtimeHelpers, quoted, limit)
	case dsl.StrategyRole:
		return fmt.Sprintf(`(function(){%s
var all = Array.prototype.slice.call(document.querySelectorAll(%s));
var matched = all.filter(function(el){ return (el.getAttribute('role')||'').toLowerCase() === %s.toLowerCase(); });
return matched.slice(0, %d).map(function(el, i){ return __describe(el, i); });
})()`, runtimeHelpers, strconv.Quote(interactiveSelector), quoted, limit)
	case dsl.StrategyText, dsl.StrategyAriaLabel, dsl.StrategyNearText:
		return fmt.Sprintf(`(function(){%s
var all = Array.prototype.slice.call(document.querySelectorAll(%s));
var needle = %s.toLowerCase();
var matched = all.filter(function(el){
  var t = (el.innerText || el.textContent || '').toLowerCase();
  var a = (el.getAttribute('aria-label') || '').toLowerCase();
  return t.indexOf(needle) !== -1 || a.indexOf(needle) !== -1;
});
return matched.slice(0, %d).map(function(el, i){ return __describe(el, i); });
})()`, runtimeHelpers, strconv.Quote(interactiveSelector), quoted, limit)
	case dsl.StrategyOrdinal:
		idx, _ := strconv.Atoi(value)
		return fmt.Sprintf(`(function(){%s
var all = Array.prototype.slice.call(document.querySelectorAll(%s));
var el = all[%d];
return el ? [__describe(el, %d)] : [];
})()`, runtimeHelpers, strconv.Quote(interactiveSelector), idx, idx)
	default:
		return `(function(){ return []; })()`
	}
}

func buildOrdinalScript(index int) string {
	return fmt.Sprintf(`(function(){%s
var all = Array.prototype.slice.call(document.querySelectorAll(%s));
var el = all[%d];
return el ? __describe(el, %d) : null;
})()`, runtimeHelpers, strconv.Quote(interactiveSelector), index, index)
}

func buildDOMPathScript(domPath string) string {
	path := strconv.Quote(domPath)
	return fmt.Sprintf(`(function(){%s
var parts = %s.split(' > ');
var node = document;
for (var i = 0; i < parts.length; i++) {
  var m = parts[i].match(/^(\w+):nth-of-type\((\d+)\)$/);
  if (!m) return null;
  var tag = m[1], n = parseInt(m[2], 10);
  var scope = node === document ? document.documentElement : node;
  var children = Array.prototype.filter.call(scope.children || [], function(c){ return c.tagName.toLowerCase() === tag; });
  node = children[n-1];
  if (!node) return null;
}
return node ? __describe(node, 0) : null;
})()`, runtimeHelpers, path)
}

func buildNearTextScript(anchor string) string {
	quoted := strconv.Quote(anchor)
	return fmt.Sprintf(`(function(){
var needle = %s.toLowerCase();
var walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT, null);
var node;
while ((node = walker.nextNode())) {
  if (node.textContent && node.textContent.toLowerCase().indexOf(needle) !== -1) {
    var r = node.parentElement.getBoundingClientRect();
    return {x: r.left + r.width/2, y: r.top + r.height/2};
  }
}
return null;
})()`, quoted)
}
