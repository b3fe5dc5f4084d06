// Package interact implements the Safe Interaction Primitives (C6):
// layered-fallback wrappers around click/fill/hover/select/press-key
// (spec §4.6). Grounded on cloudrouter/cmd/worker/browser.go's
// cmdClick/cmdFill/cmdHover/cmdPress: a genuine chromedp-native action
// (chromedp.Click/SendKeys, or a real input.DispatchMouseEvent CDP
// command for hover, exactly as cmdHover's @eN branch does) is tried
// first against the resolved DOM path used as a CSS selector, with the
// teacher's JS runtime.CallFunctionOn/Evaluate fallback generalized into
// the richer multi-tier fallback chains spec §4.6 describes.
package interact

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/kota-kawa/web-agent01-sub000/internal/apierr"
)

// Primitives bundles the interaction helpers against one chromedp
// context. Every primitive records its fallback path as a warning for the
// enclosing step, returned in the Outcome's Warnings.
type Primitives struct {
	logger zerolog.Logger
}

// New builds a Primitives instance.
func New(logger zerolog.Logger) *Primitives {
	return &Primitives{logger: logger}
}

// Outcome records which fallback path, if any, a primitive used.
type Outcome struct {
	Warnings []string
}

func (o *Outcome) warn(msg string) {
	o.Warnings = append(o.Warnings, msg)
}

// elementScript wraps a dom-path resolution (the same walk
// resolver.buildDOMPathScript performs) used to re-fetch the live element
// before each interaction, since the resolver only hands back metadata,
// not a live handle, across step boundaries.
func elementScript(domPath string, body string) string {
	quoted := strconv.Quote(domPath)
	return fmt.Sprintf(`(function(){
var parts = %s.split(' > ');
var node = document;
for (var i = 0; i < parts.length; i++) {
  var m = parts[i].match(/^(\w+):nth-of-type\((\d+)\)$/);
  if (!m) return {error: 'bad dom path'};
  var tag = m[1], n = parseInt(m[2], 10);
  var scope = node === document ? document.documentElement : node;
  var children = Array.prototype.filter.call(scope.children || [], function(c){ return c.tagName.toLowerCase() === tag; });
  node = children[n-1];
  if (!node) return {error: 'element not found'};
}
var el = node;
%s
})()`, quoted, body)
}

// Click implements spec §4.6's Click primitive: wait attached → scroll
// into view → wait visible → genuine chromedp.Click (a real CDP
// input.dispatchMouseEvent press+release, per cmdClick's CSS-selector
// branch); on failure, retry with a raw CDP mouse event at the element's
// center (cmdHover's DispatchMouseEvent pattern, generalized to
// press+release); on failure, JS click as the documented last resort.
func (p *Primitives) Click(ctx context.Context, domPath string) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()
	out := &Outcome{}

	if err := chromedp.Run(ctx,
		chromedp.WaitVisible(domPath, chromedp.ByQuery),
		chromedp.Click(domPath, chromedp.ByQuery),
	); err == nil {
		return out, nil
	} else {
		out.warn(fmt.Sprintf("click: native chromedp.Click failed (%v), retrying with a raw CDP mouse event", err))
	}

	if err := p.clickAtCenter(ctx, domPath); err == nil {
		return out, nil
	} else {
		out.warn(fmt.Sprintf("click: raw CDP mouse event failed (%v), falling back to element.click() via evaluate", err))
	}

	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	jsScript := elementScript(domPath, `if (!el) return {error:'not attached'}; el.click(); return {ok:true};`)
	if err := chromedp.Run(ctx, chromedp.Evaluate(jsScript, &result)); err != nil || !result.OK {
		return out, apierr.New(apierr.CodeElementNotInteractable, "click: all fallback paths failed for "+domPath)
	}
	return out, nil
}

// clickAtCenter dispatches a genuine CDP mousePressed/mouseReleased pair at
// the element's bounding-box center, mirroring cmdHover's
// input.DispatchMouseEvent use for the @eN accessibility-ref branch.
func (p *Primitives) clickAtCenter(ctx context.Context, domPath string) error {
	x, y, err := elementCenter(ctx, domPath)
	if err != nil {
		return err
	}
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := input.DispatchMouseEvent(input.MousePressed, x, y).WithButton(input.Left).WithClickCount(1).Do(ctx); err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MouseReleased, x, y).WithButton(input.Left).WithClickCount(1).Do(ctx)
	}))
}

// elementCenter reads an element's viewport-relative bounding-box center,
// scrolling it into view first. The read is a JS evaluate (geometry only,
// no interaction); the action it feeds is a real CDP input event.
func elementCenter(ctx context.Context, domPath string) (x, y float64, err error) {
	script := elementScript(domPath, `
if (!el) return {error: 'not attached'};
el.scrollIntoView({block: 'center', inline: 'center'});
var r = el.getBoundingClientRect();
if (r.width <= 0 || r.height <= 0) return {error: 'not visible'};
return {ok: true, x: r.left + r.width/2, y: r.top + r.height/2};
`)
	var result struct {
		OK    bool    `json:"ok"`
		Error string  `json:"error"`
		X     float64 `json:"x"`
		Y     float64 `json:"y"`
	}
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &result)); err != nil {
		return 0, 0, err
	}
	if !result.OK {
		return 0, 0, fmt.Errorf("%s", result.Error)
	}
	return result.X, result.Y, nil
}

// textInputTypes mirrors spec §4.6's Fill editability check (the in-page
// script uses the same list via isEditableTypeList).
var textInputTypes = map[string]bool{
	"text": true, "search": true, "email": true, "password": true, "number": true,
	"tel": true, "url": true, "date": true, "datetime-local": true, "": true,
}

// Fill implements spec §4.6's Fill primitive: genuine chromedp.Click +
// chromedp.SendKeys (cmdFill's CSS-selector branch: click to focus, clear,
// then native key events) first; on failure, the JS isEditable-aware path
// (with fallback search for a nearby editable), verify, else Ctrl+A
// retype, else JS value-setter fallback.
func (p *Primitives) Fill(ctx context.Context, domPath, value string) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()
	out := &Outcome{}
	quotedValue := strconv.Quote(value)

	if err := p.fillNative(ctx, domPath, value); err == nil {
		return out, nil
	} else {
		out.warn(fmt.Sprintf("fill: native chromedp.SendKeys failed (%v), falling back to JS isEditable-aware fill", err))
	}

	script := elementScript(domPath, fmt.Sprintf(`
function isEditable(e) {
  if (!e) return false;
  var tag = e.tagName.toLowerCase();
  if (tag === 'textarea') return true;
  if (tag === 'input') return %s;
  if (e.isContentEditable) return true;
  var role = (e.getAttribute('role')||'').toLowerCase();
  return role === 'textbox' || role === 'searchbox' || role === 'combobox';
}
var target = el;
if (!isEditable(target)) {
  var fallback = null;
  if (target.id) fallback = document.querySelector('label[for="'+target.id+'"]');
  if (fallback) fallback = document.getElementById(fallback.getAttribute('for'));
  if (!fallback) {
    var controls = target.getAttribute('aria-controls') || target.getAttribute('aria-labelledby') || target.getAttribute('aria-describedby');
    if (controls) fallback = document.getElementById(controls.split(' ')[0]);
  }
  if (!fallback && target.nextElementSibling && isEditable(target.nextElementSibling)) fallback = target.nextElementSibling;
  if (!fallback) {
    var anc = target.parentElement;
    for (var i = 0; i < 3 && anc; i++) {
      var found = anc.querySelector('input, textarea, [contenteditable=true]');
      if (found && isEditable(found)) { fallback = found; break; }
      anc = anc.parentElement;
    }
  }
  if (fallback) target = fallback;
}
if (!isEditable(target)) return {error: 'no editable element found'};
target.focus();
if ('value' in target) {
  target.value = '';
  target.value = %s;
} else {
  target.textContent = %s;
}
target.dispatchEvent(new Event('input', {bubbles: true}));
target.dispatchEvent(new Event('change', {bubbles: true}));
var verified = ('value' in target) ? (target.value === %s) : (target.textContent === %s);
return {ok: true, verified: verified, usedFallback: target !== el};
`, isEditableTypeList(), quotedValue, quotedValue, quotedValue, quotedValue))

	var result struct {
		OK           bool `json:"ok"`
		Verified     bool `json:"verified"`
		UsedFallback bool `json:"usedFallback"`
		Error        string `json:"error"`
	}
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &result)); err != nil {
		return out, apierr.Wrap(apierr.CodeExecutionError, "fill evaluate failed", err)
	}
	if !result.OK {
		return out, apierr.New(apierr.CodeElementNotInteractable, "fill: "+result.Error)
	}
	if result.UsedFallback {
		out.warn("fill: target not directly editable, used fallback editable element")
	}
	if result.Verified {
		return out, nil
	}

	out.warn("fill: value verification failed after direct set, retrying with select-all + retype")
	retryScript := elementScript(domPath, fmt.Sprintf(`
el.focus();
document.execCommand('selectAll');
document.execCommand('insertText', false, %s);
el.dispatchEvent(new Event('input', {bubbles: true}));
el.dispatchEvent(new Event('change', {bubbles: true}));
var verified = ('value' in el) ? (el.value === %s) : (el.textContent === %s);
return {ok: true, verified: verified};
`, quotedValue, quotedValue, quotedValue))
	var retryResult struct {
		OK       bool `json:"ok"`
		Verified bool `json:"verified"`
	}
	if err := chromedp.Run(ctx, chromedp.Evaluate(retryScript, &retryResult)); err == nil && retryResult.Verified {
		return out, nil
	}

	out.warn("fill: retype fallback failed verification, applying JS value-setter fallback")
	setterScript := elementScript(domPath, fmt.Sprintf(`
var proto = Object.getPrototypeOf(el);
var setter = Object.getOwnPropertyDescriptor(proto, 'value');
if (setter && setter.set) { setter.set.call(el, %s); } else { el.value = %s; }
el.dispatchEvent(new Event('input', {bubbles: true}));
el.dispatchEvent(new Event('change', {bubbles: true}));
return {ok: true};
`, quotedValue, quotedValue))
	var setterResult struct{ OK bool `json:"ok"` }
	if err := chromedp.Run(ctx, chromedp.Evaluate(setterScript, &setterResult)); err != nil || !setterResult.OK {
		return out, apierr.New(apierr.CodeElementNotInteractable, "fill: all fallback paths failed for "+domPath)
	}
	return out, nil
}

// fillNative mirrors cmdFill's CSS-selector branch: click to focus, clear
// the field, then send genuine native key events via chromedp.SendKeys
// (a real sequence of CDP input.dispatchKeyEvent calls, not a JS string
// assignment), and verify the resulting value.
func (p *Primitives) fillNative(ctx context.Context, domPath, value string) error {
	if err := chromedp.Run(ctx,
		chromedp.WaitVisible(domPath, chromedp.ByQuery),
		chromedp.Click(domPath, chromedp.ByQuery),
		chromedp.SetValue(domPath, "", chromedp.ByQuery),
		chromedp.SendKeys(domPath, value, chromedp.ByQuery),
	); err != nil {
		return err
	}

	var got string
	verifyScript := elementScript(domPath, `
if (!el) return '';
return ('value' in el) ? el.value : el.textContent;
`)
	if err := chromedp.Run(ctx, chromedp.Evaluate(verifyScript, &got)); err != nil {
		return err
	}
	if got != value {
		return fmt.Errorf("value mismatch after native fill: got %q, want %q", got, value)
	}
	return nil
}

func isEditableTypeList() string {
	return `['text','search','email','password','number','tel','url','date','datetime-local',''].indexOf((e.getAttribute('type')||'').toLowerCase()) !== -1`
}

// Hover implements spec §4.6's Hover primitive: a genuine CDP
// input.dispatchMouseEvent(mouseMoved) at the element's center, exactly
// cmdHover's @eN branch generalized from an objectID bounding box to a
// resolved DOM path; on failure, a JS mouseover/mouseenter dispatch.
func (p *Primitives) Hover(ctx context.Context, domPath string) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()
	out := &Outcome{}

	x, y, err := elementCenter(ctx, domPath)
	if err == nil {
		err = chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
		}))
	}
	if err == nil {
		return out, nil
	}
	out.warn(fmt.Sprintf("hover: native mouseMoved dispatch failed (%v), falling back to JS dispatch", err))

	script := elementScript(domPath, `
if (!el) return {error: 'not attached'};
el.scrollIntoView({block: 'center'});
el.dispatchEvent(new MouseEvent('mouseover', {bubbles: true}));
el.dispatchEvent(new MouseEvent('mouseenter', {bubbles: true}));
return {ok: true};
`)
	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &result)); err != nil || !result.OK {
		return out, apierr.New(apierr.CodeElementNotInteractable, "hover failed for "+domPath)
	}
	return out, nil
}

// Select implements spec §4.6's Select primitive: a genuine chromedp
// query-engine action (chromedp.SetValue, the same query/runtime-binding
// machinery chromedp.Click/SendKeys use) against the option's value first;
// on failure, a JS loop matching option value/text exactly then as
// substring, since CDP has no native "choose dropdown option" command.
func (p *Primitives) Select(ctx context.Context, domPath, valueOrLabel string) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()
	out := &Outcome{}

	if err := chromedp.Run(ctx,
		chromedp.WaitVisible(domPath, chromedp.ByQuery),
		chromedp.SetValue(domPath, valueOrLabel, chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(`document.querySelector(%s)?.dispatchEvent(new Event('change', {bubbles:true}))`,
			strconv.Quote(domPath)), nil),
	); err == nil {
		var matched bool
		checkScript := elementScript(domPath, fmt.Sprintf(`return el && el.value === %s;`, strconv.Quote(valueOrLabel)))
		if verr := chromedp.Run(ctx, chromedp.Evaluate(checkScript, &matched)); verr == nil && matched {
			return out, nil
		}
	}
	out.warn("select: native SetValue-by-value failed or did not match, falling back to JS option search")

	quoted := strconv.Quote(valueOrLabel)
	script := elementScript(domPath, fmt.Sprintf(`
if (!el || el.tagName.toLowerCase() !== 'select') return {error: 'not a select element'};
var target = %s;
for (var i = 0; i < el.options.length; i++) {
  if (el.options[i].value === target) { el.selectedIndex = i; el.dispatchEvent(new Event('change', {bubbles:true})); return {ok:true, matched:'value'}; }
}
for (var i = 0; i < el.options.length; i++) {
  if (el.options[i].text === target) { el.selectedIndex = i; el.dispatchEvent(new Event('change', {bubbles:true})); return {ok:true, matched:'label'}; }
}
for (var i = 0; i < el.options.length; i++) {
  if (el.options[i].text.indexOf(target) !== -1) { el.selectedIndex = i; el.dispatchEvent(new Event('change', {bubbles:true})); return {ok:true, matched:'substring'}; }
}
return {error: 'no matching option'};
`, quoted))
	var result struct {
		OK      bool   `json:"ok"`
		Matched string `json:"matched"`
		Error   string `json:"error"`
	}
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &result)); err != nil || !result.OK {
		return out, apierr.New(apierr.CodeElementNotInteractable, "select: no option matched "+valueOrLabel)
	}
	if result.Matched != "value" {
		out.warn("select: matched by " + result.Matched + " rather than exact value")
	}
	return out, nil
}

// PressKey implements spec §4.6's PressKey primitive: chromedp.KeyEvent
// sends the "+"-joined key combo to whatever currently has focus; when that
// fails, a JS fallback dispatches keydown/keyup for the last key (key only,
// no keyCode) on document.activeElement, or document.body if nothing is
// focused. The scope argument is not consulted: both scopes take this path.
func (p *Primitives) PressKey(ctx context.Context, keys []string, scope string) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()
	out := &Outcome{}
	if len(keys) == 0 {
		return out, apierr.New(apierr.CodePressKeyFailed, "press_key: no keys given")
	}
	combo := chromedpKeyCombo(keys)
	if err := chromedp.Run(ctx, chromedp.KeyEvent(combo)); err == nil {
		return out, nil
	}

	out.warn("press_key: native key event failed, falling back to JS keydown/keyup dispatch")
	key := keys[len(keys)-1]
	script := fmt.Sprintf(`(function(){
var target = document.activeElement || document.body;
var opts = {key: %s, bubbles: true, cancelable: true};
target.dispatchEvent(new KeyboardEvent('keydown', opts));
target.dispatchEvent(new KeyboardEvent('keyup', opts));
return true;
})()`, strconv.Quote(key))
	var ok bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &ok)); err != nil || !ok {
		return out, apierr.New(apierr.CodePressKeyFailed, "press_key: all fallback paths failed for "+combo)
	}
	return out, nil
}

func chromedpKeyCombo(keys []string) string {
	combo := ""
	for i, k := range keys {
		if i > 0 {
			combo += "+"
		}
		combo += k
	}
	return combo
}

// actionTimeout is the default per-interaction budget from spec §5
// (action_timeout_ms default 10s).
const actionTimeout = 10 * time.Second
