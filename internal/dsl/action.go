package dsl

import (
	"fmt"
	"strings"
)

// ActionType enumerates the tagged-union variants spec §3 names.
type ActionType string

const (
	ActionNavigate       ActionType = "navigate"
	ActionClick          ActionType = "click"
	ActionHover          ActionType = "hover"
	ActionType_          ActionType = "type"
	ActionSelect         ActionType = "select"
	ActionPressKey       ActionType = "press_key"
	ActionWait           ActionType = "wait"
	ActionScroll         ActionType = "scroll"
	ActionScrollToText   ActionType = "scroll_to_text"
	ActionSwitchTab      ActionType = "switch_tab"
	ActionFocusIframe    ActionType = "focus_iframe"
	ActionRefreshCatalog ActionType = "refresh_catalog"
	ActionScreenshot     ActionType = "screenshot"
	ActionExtract        ActionType = "extract"
	ActionAssert         ActionType = "assert"
	ActionEvalJS         ActionType = "eval_js"
	ActionClickBlankArea ActionType = "click_blank_area"
	ActionClosePopup     ActionType = "close_popup"
	ActionStop           ActionType = "stop"
)

// WaitCondition is the variant described in spec §3.
type WaitCondition struct {
	ForState     string    `json:"for_state,omitempty"` // load|domcontentloaded|networkidle
	ForSelector  *Selector `json:"for_selector,omitempty"`
	State        string    `json:"state,omitempty"` // attached|detached|visible|hidden
	TimeoutMs    int       `json:"timeout_ms,omitempty"`
	ForTimeoutMs *int      `json:"for_timeout_ms,omitempty"`
}

// Kind reports which wait variant is populated.
func (w WaitCondition) Kind() string {
	switch {
	case w.ForState != "":
		return "for_state"
	case w.ForSelector != nil:
		return "for_selector"
	case w.ForTimeoutMs != nil:
		return "for_timeout"
	default:
		return ""
	}
}

// Action is the sum type over every DSL action variant. Rather than a
// class hierarchy (the original's dynamic dispatch on dataclass
// subclasses), fields for every variant live on one struct and Type
// discriminates — the "tagged actions over class hierarchy" choice spec
// §9 calls for, dispatched by switch in the executor.
type Action struct {
	Type       ActionType `json:"type"`
	Version    int        `json:"version"`
	Deprecated bool       `json:"deprecated,omitempty"`

	// navigate
	URL string `json:"url,omitempty"`

	// click / hover / type / select / assert / scroll_to_text / close_popup target
	Selector *Selector `json:"selector,omitempty"`

	// type
	Text        string `json:"text,omitempty"`
	PressEnter  bool   `json:"press_enter,omitempty"`
	Clear       bool   `json:"clear,omitempty"`

	// select
	ValueOrLabel string `json:"value_or_label,omitempty"`

	// press_key
	Keys  []string `json:"keys,omitempty"`
	Scope string   `json:"scope,omitempty"` // active_element|page

	// wait
	Wait *WaitCondition `json:"wait,omitempty"`

	// scroll
	ScrollTo        string `json:"to,omitempty"`
	ScrollDirection string `json:"direction,omitempty"`
	ScrollContainer *Selector `json:"container,omitempty"`
	ScrollAmount    int    `json:"amount,omitempty"`

	// scroll_to_text
	ScrollText string `json:"scroll_text,omitempty"`

	// switch_tab
	TabStrategy string `json:"strategy,omitempty"` // index|url|title|previous|next|latest
	TabIndex    *int   `json:"tab_index,omitempty"`
	TabMatch    string `json:"tab_match,omitempty"`

	// focus_iframe
	IframeStrategy string `json:"iframe_strategy,omitempty"` // index|name|url|element|parent|root
	IframeTarget   string `json:"iframe_target,omitempty"`

	// extract
	ExtractKind string `json:"extract_kind,omitempty"` // text|article|ocr

	// assert
	AssertState string `json:"assert_state,omitempty"` // visible|hidden|attached|detached

	// eval_js
	Script string `json:"script,omitempty"`

	// common
	TimeoutMs int `json:"timeout_ms,omitempty"`
}

var validAssertStates = map[string]bool{"visible": true, "hidden": true, "attached": true, "detached": true}

// Validate enforces spec §4.2's per-action validation rules.
func (a Action) Validate() error {
	switch a.Type {
	case ActionNavigate:
		if strings.TrimSpace(a.URL) == "" {
			return fmt.Errorf("navigate.url must be non-empty")
		}
	case ActionClick, ActionHover, ActionClickBlankArea, ActionClosePopup:
		if a.Type != ActionClickBlankArea && a.Type != ActionClosePopup {
			if a.Selector == nil || !a.Selector.HasDiscriminator() {
				return fmt.Errorf("%s.selector must have at least one discriminator field set", a.Type)
			}
		}
	case ActionType_:
		if a.Selector == nil || !a.Selector.HasDiscriminator() {
			return fmt.Errorf("type.selector must have at least one discriminator field set")
		}
		// text may be empty string per spec, so no presence check beyond being set in the payload.
	case ActionSelect:
		if a.Selector == nil || !a.Selector.HasDiscriminator() {
			return fmt.Errorf("select.selector must have at least one discriminator field set")
		}
		if a.ValueOrLabel == "" {
			return fmt.Errorf("select.value_or_label is required")
		}
	case ActionPressKey:
		if len(a.Keys) == 0 {
			return fmt.Errorf("press_key.keys must be non-empty")
		}
	case ActionScroll:
		if a.ScrollTo == "" && a.ScrollDirection == "" && a.ScrollContainer == nil {
			return fmt.Errorf("scroll requires one of to, direction, container")
		}
	case ActionScrollToText:
		if strings.TrimSpace(a.ScrollText) == "" {
			return fmt.Errorf("scroll_to_text.text must be non-empty")
		}
	case ActionFocusIframe:
		if a.IframeStrategy == "" {
			return fmt.Errorf("focus_iframe.strategy is required")
		}
	case ActionAssert:
		if a.Selector == nil || !a.Selector.HasDiscriminator() {
			return fmt.Errorf("assert.selector must have at least one discriminator field set")
		}
		if !validAssertStates[a.AssertState] {
			return fmt.Errorf("assert.state must be one of visible, hidden, attached, detached")
		}
	case ActionWait:
		if a.Wait == nil || a.Wait.Kind() == "" {
			return fmt.Errorf("wait requires for_state, for_selector, or for_timeout")
		}
	case ActionRefreshCatalog, ActionScreenshot, ActionStop, ActionSwitchTab, ActionExtract, ActionEvalJS:
		// no required discriminators beyond type itself.
	default:
		return fmt.Errorf("unsupported action type %q", a.Type)
	}
	return nil
}

// IsDOMMutating reports whether this action may change the DOM structure,
// which forces a catalog refresh before the next ordinal_index lookup
// (spec §4.4 invalidation triggers).
func (a Action) IsDOMMutating() bool {
	switch a.Type {
	case ActionClick, ActionType_, ActionNavigate, ActionScrollToText, ActionSelect, ActionPressKey:
		return true
	default:
		return false
	}
}

// UsesOrdinalIndex reports whether this action's selector targets an
// ordinal index.
func (a Action) UsesOrdinalIndex() bool {
	return a.Selector != nil && a.Selector.OrdinalIndex != nil
}
