package dsl

import "strings"

// Payload renders the action in new/canonical form, keyed by "type"
// (spec §4.2).
func (a Action) Payload() map[string]any {
	m := map[string]any{
		"type":    string(a.Type),
		"version": a.Version,
	}
	if a.Deprecated {
		m["deprecated"] = true
	}
	if a.Selector != nil {
		m["selector"] = a.Selector.ToMap()
	}
	switch a.Type {
	case ActionNavigate:
		m["url"] = a.URL
	case ActionType_:
		m["text"] = a.Text
		if a.PressEnter {
			m["press_enter"] = true
		}
		if a.Clear {
			m["clear"] = true
		}
	case ActionSelect:
		m["value_or_label"] = a.ValueOrLabel
	case ActionPressKey:
		keys := make([]any, len(a.Keys))
		for i, k := range a.Keys {
			keys[i] = k
		}
		m["keys"] = keys
		if a.Scope != "" {
			m["scope"] = a.Scope
		}
	case ActionWait:
		if a.Wait != nil {
			m["wait"] = waitToMap(*a.Wait)
		}
	case ActionScroll:
		if a.ScrollTo != "" {
			m["to"] = a.ScrollTo
		}
		if a.ScrollDirection != "" {
			m["direction"] = a.ScrollDirection
		}
		if a.ScrollContainer != nil {
			m["container"] = a.ScrollContainer.ToMap()
		}
		if a.ScrollAmount != 0 {
			m["amount"] = a.ScrollAmount
		}
	case ActionScrollToText:
		m["scroll_text"] = a.ScrollText
	case ActionSwitchTab:
		m["strategy"] = a.TabStrategy
		if a.TabIndex != nil {
			m["tab_index"] = *a.TabIndex
		}
		if a.TabMatch != "" {
			m["tab_match"] = a.TabMatch
		}
	case ActionFocusIframe:
		m["iframe_strategy"] = a.IframeStrategy
		if a.IframeTarget != "" {
			m["iframe_target"] = a.IframeTarget
		}
	case ActionExtract:
		if a.ExtractKind != "" {
			m["extract_kind"] = a.ExtractKind
		}
	case ActionAssert:
		m["assert_state"] = a.AssertState
	case ActionEvalJS:
		m["script"] = a.Script
	}
	if a.TimeoutMs != 0 {
		m["timeout_ms"] = a.TimeoutMs
	}
	return m
}

func waitToMap(w WaitCondition) map[string]any {
	m := map[string]any{}
	if w.ForState != "" {
		m["for_state"] = w.ForState
	}
	if w.ForSelector != nil {
		m["for_selector"] = w.ForSelector.ToMap()
		if w.State != "" {
			m["state"] = w.State
		}
		if w.TimeoutMs != 0 {
			m["timeout_ms"] = w.TimeoutMs
		}
	}
	if w.ForTimeoutMs != nil {
		m["for_timeout_ms"] = *w.ForTimeoutMs
	}
	return m
}

// LegacyPayload renders the action in legacy form, keyed by "action", with
// legacy field names (spec §4.2): type.text → value, press_key.keys →
// key joined with "+", wait.for_selector → flat {until:"selector",
// target, state}.
func (a Action) LegacyPayload() map[string]any {
	m := map[string]any{"action": string(a.Type)}
	if a.Selector != nil {
		if a.Selector.IsSimple() {
			m["target"] = a.Selector.AsLegacyString()
		} else {
			m["target"] = a.Selector.ToMap()
		}
	}
	switch a.Type {
	case ActionNavigate:
		m["url"] = a.URL
	case ActionType_:
		m["value"] = a.Text
		if a.PressEnter {
			m["press_enter"] = true
		}
		if a.Clear {
			m["clear"] = true
		}
	case ActionSelect:
		m["value_or_label"] = a.ValueOrLabel
	case ActionPressKey:
		m["key"] = strings.Join(a.Keys, "+")
	case ActionWait:
		if a.Wait != nil {
			switch a.Wait.Kind() {
			case "for_state":
				m["until"] = a.Wait.ForState
			case "for_selector":
				m["until"] = "selector"
				if a.Wait.ForSelector != nil {
					if a.Wait.ForSelector.IsSimple() {
						m["target"] = a.Wait.ForSelector.AsLegacyString()
					} else {
						m["target"] = a.Wait.ForSelector.ToMap()
					}
				}
				m["state"] = a.Wait.State
				if a.Wait.TimeoutMs != 0 {
					m["timeout_ms"] = a.Wait.TimeoutMs
				}
			case "for_timeout":
				m["until"] = "timeout"
				if a.Wait.ForTimeoutMs != nil {
					m["timeout_ms"] = *a.Wait.ForTimeoutMs
				}
			}
		}
	case ActionScroll:
		if a.ScrollTo != "" {
			m["to"] = a.ScrollTo
		}
		if a.ScrollDirection != "" {
			m["direction"] = a.ScrollDirection
		}
	case ActionScrollToText:
		m["text"] = a.ScrollText
	case ActionAssert:
		m["assert_state"] = a.AssertState
	case ActionEvalJS:
		m["script"] = a.Script
	}
	return m
}
