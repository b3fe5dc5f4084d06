package dsl

import (
	"fmt"
	"strings"
)

// Plan is an ordered sequence of actions (spec §3 "Plan / RunRequest").
type Plan struct {
	Actions []Action `json:"actions"`
}

// RunRequest is the top-level submitted payload (spec §3/§6).
type RunRequest struct {
	RunID    string         `json:"run_id,omitempty"`
	Plan     Plan           `json:"plan"`
	Config   map[string]any `json:"config,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ParseAction accepts either the new tagged-union form (keyed by "type")
// or the legacy form (keyed by "action"), routes through the registry,
// and validates the result (spec §4.2).
func ParseAction(registry *Registry, value map[string]any) (Action, error) {
	if raw, ok := value["type"]; ok {
		name, _ := raw.(string)
		return parseTypedAction(registry, ActionType(name), value)
	}
	if raw, ok := value["action"]; ok {
		name, _ := raw.(string)
		canonical, err := resolveActionName(name)
		if err != nil {
			return Action{}, err
		}
		return parseLegacyAction(registry, canonical, value)
	}
	return Action{}, errMissingTag
}

func parseTypedAction(registry *Registry, name ActionType, value map[string]any) (Action, error) {
	if !registry.Registered(name) {
		return Action{}, fmt.Errorf("dsl: %w: %q", errUnsupportedAction, name)
	}
	entry, _ := registry.Lookup(name)

	a := Action{Type: name, Version: entry.Version, Deprecated: entry.Deprecated}

	if v, ok := value["version"]; ok {
		if n, err := toInt(v); err == nil {
			a.Version = n
		}
	}
	if v, ok := value["selector"]; ok {
		sel, err := ParseSelector(v)
		if err != nil {
			return Action{}, err
		}
		a.Selector = &sel
	}

	a.URL, _ = value["url"].(string)
	a.Text, _ = value["text"].(string)
	a.PressEnter, _ = value["press_enter"].(bool)
	a.Clear, _ = value["clear"].(bool)
	a.ValueOrLabel, _ = value["value_or_label"].(string)
	a.Scope, _ = value["scope"].(string)
	if a.Scope == "" {
		a.Scope = "active_element"
	}
	if raw, ok := value["keys"].([]any); ok {
		for _, k := range raw {
			if s, ok := k.(string); ok {
				a.Keys = append(a.Keys, s)
			}
		}
	}
	if raw, ok := value["wait"].(map[string]any); ok {
		w, err := parseWaitCondition(raw)
		if err != nil {
			return Action{}, err
		}
		a.Wait = &w
	}
	a.ScrollTo, _ = value["to"].(string)
	a.ScrollDirection, _ = value["direction"].(string)
	if raw, ok := value["container"]; ok {
		sel, err := ParseSelector(raw)
		if err != nil {
			return Action{}, err
		}
		a.ScrollContainer = &sel
	}
	if n, err := toInt(value["amount"]); err == nil {
		a.ScrollAmount = n
	}
	a.ScrollText, _ = value["scroll_text"].(string)
	a.TabStrategy, _ = value["strategy"].(string)
	a.TabMatch, _ = value["tab_match"].(string)
	if raw, ok := value["tab_index"]; ok {
		if n, err := toInt(raw); err == nil {
			a.TabIndex = &n
		}
	}
	a.IframeStrategy, _ = value["iframe_strategy"].(string)
	a.IframeTarget, _ = value["iframe_target"].(string)
	a.ExtractKind, _ = value["extract_kind"].(string)
	a.AssertState, _ = value["assert_state"].(string)
	a.Script, _ = value["script"].(string)
	if n, err := toInt(value["timeout_ms"]); err == nil {
		a.TimeoutMs = n
	}

	if err := a.Validate(); err != nil {
		return Action{}, fmt.Errorf("dsl: %w: %v", errValidation, err)
	}
	return a, nil
}

// parseLegacyAction maps the legacy flat field names onto the canonical
// Action fields (spec §4.2 LegacyPayload's inverse).
func parseLegacyAction(registry *Registry, name ActionType, value map[string]any) (Action, error) {
	norm := map[string]any{"type": string(name)}

	if v, ok := value["target"]; ok {
		norm["selector"] = v
	}
	if v, ok := value["selector"]; ok {
		norm["selector"] = v
	}
	if v, ok := value["value"]; ok {
		norm["text"] = v
	}
	if v, ok := value["text"]; ok {
		norm["text"] = v
	}
	if v, ok := value["url"]; ok {
		norm["url"] = v
	}
	if v, ok := value["clear"]; ok {
		norm["clear"] = v
	}
	if v, ok := value["press_enter"]; ok {
		norm["press_enter"] = v
	}
	if v, ok := value["value_or_label"]; ok {
		norm["value_or_label"] = v
	}
	if key, ok := value["key"].(string); ok {
		norm["keys"] = splitKeyCombo(key)
	}
	if v, ok := value["keys"]; ok {
		norm["keys"] = v
	}
	if until, ok := value["until"].(string); ok {
		w := map[string]any{}
		switch until {
		case "selector":
			sel := map[string]any{}
			if t, ok := value["target"]; ok {
				parsed, _ := ParseSelector(t)
				sel = parsed.ToMap()
			}
			w["for_selector"] = sel
			if st, ok := value["state"].(string); ok {
				w["state"] = st
			}
			if t, ok := value["timeout_ms"]; ok {
				w["timeout_ms"] = t
			}
		case "timeout":
			if t, ok := value["timeout_ms"]; ok {
				w["for_timeout_ms"] = t
			}
		default:
			w["for_state"] = until
		}
		norm["wait"] = w
	}
	if v, ok := value["timeout_ms"]; ok {
		norm["timeout_ms"] = v
	}

	return parseTypedAction(registry, name, norm)
}

func splitKeyCombo(key string) []any {
	parts := strings.Split(key, "+")
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

func parseWaitCondition(m map[string]any) (WaitCondition, error) {
	w := WaitCondition{}
	w.ForState, _ = m["for_state"].(string)
	w.State, _ = m["state"].(string)
	if n, err := toInt(m["timeout_ms"]); err == nil {
		w.TimeoutMs = n
	}
	if raw, ok := m["for_selector"]; ok {
		sel, err := ParseSelector(raw)
		if err != nil {
			return WaitCondition{}, err
		}
		w.ForSelector = &sel
	}
	if raw, ok := m["for_timeout_ms"]; ok {
		if n, err := toInt(raw); err == nil {
			w.ForTimeoutMs = &n
		}
	}
	return w, nil
}

// ParseRunRequest accepts both {actions:[...]} and {plan:{actions:[...]}}
// top-level forms (spec §4.2).
func ParseRunRequest(registry *Registry, value map[string]any) (RunRequest, error) {
	req := RunRequest{}
	req.RunID, _ = value["run_id"].(string)
	if m, ok := value["config"].(map[string]any); ok {
		req.Config = m
	}
	if m, ok := value["metadata"].(map[string]any); ok {
		req.Metadata = m
	}

	var rawActions []any
	if plan, ok := value["plan"].(map[string]any); ok {
		if list, ok := plan["actions"].([]any); ok {
			rawActions = list
		}
	} else if list, ok := value["actions"].([]any); ok {
		rawActions = list
	}
	if rawActions == nil {
		return RunRequest{}, fmt.Errorf("dsl: %w: request must contain actions or plan.actions", errValidation)
	}

	for i, raw := range rawActions {
		am, ok := raw.(map[string]any)
		if !ok {
			return RunRequest{}, fmt.Errorf("dsl: %w: action %d is not an object", errValidation, i)
		}
		a, err := ParseAction(registry, am)
		if err != nil {
			return RunRequest{}, fmt.Errorf("action %d: %w", i, err)
		}
		req.Plan.Actions = append(req.Plan.Actions, a)
	}
	return req, nil
}

var (
	errUnsupportedAction = fmt.Errorf("unsupported action")
	errValidation        = fmt.Errorf("validation failed")
)
