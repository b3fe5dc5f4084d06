// Package dsl defines the canonical Action DSL: the typed, versioned plan
// language described in spec §3/§4.2. It owns Selector/Action/WaitCondition
// parsing, canonical and legacy payload serialization, and the action
// registry, generalizing the teacher's ad hoc `map[string]any` command
// bodies (cloudrouter/cmd/worker/main.go's handleBrowserCommand) into a
// typed sum type with round-trip guarantees.
package dsl

import (
	"fmt"
	"strconv"
	"strings"
)

// Strategy is one of the selector resolution strategies tried in
// priority order (spec §3/§4.3).
type Strategy string

const (
	StrategyStableID Strategy = "stable_id"
	StrategyCSS      Strategy = "css"
	StrategyRole     Strategy = "role"
	StrategyText     Strategy = "text"
	StrategyAriaLabel Strategy = "aria_label"
	StrategyXPath    Strategy = "xpath"
	StrategyNearText Strategy = "near_text"
	StrategyOrdinal  Strategy = "ordinal_index"
)

// DefaultPriority is the order strategies are tried when Selector.Priority
// is empty (spec §3).
var DefaultPriority = []Strategy{
	StrategyStableID, StrategyCSS, StrategyRole, StrategyText,
	StrategyAriaLabel, StrategyXPath, StrategyNearText, StrategyOrdinal,
}

// Selector is the composite target descriptor (spec §3). All fields are
// optional; at least one discriminator must be set (enforced by Validate).
type Selector struct {
	CSS          string     `json:"css,omitempty"`
	XPath        string     `json:"xpath,omitempty"`
	Text         string     `json:"text,omitempty"`
	Role         string     `json:"role,omitempty"`
	AriaLabel    string     `json:"aria_label,omitempty"`
	NearText     string     `json:"near_text,omitempty"`
	OrdinalIndex *int       `json:"ordinal_index,omitempty"`
	StableID     string     `json:"stable_id,omitempty"`
	Priority     []Strategy `json:"priority,omitempty"`

	// LegacyValue preserves the original unparsed string for a legacy
	// bare-string or "css=..."-style selector, so AsLegacyString() can emit it
	// back unchanged (spec §3 "legacy string form").
	LegacyValue string `json:"-"`
}

// HasDiscriminator reports whether at least one target field is set.
func (s Selector) HasDiscriminator() bool {
	return s.CSS != "" || s.XPath != "" || s.Text != "" || s.Role != "" ||
		s.AriaLabel != "" || s.NearText != "" || s.OrdinalIndex != nil || s.StableID != ""
}

// EffectivePriority returns the strategy order to try: stable_id first
// always (spec §3 invariant), regardless of declared priority, then the
// declared or default priority with stable_id removed to avoid repeats.
func (s Selector) EffectivePriority() []Strategy {
	order := s.Priority
	if len(order) == 0 {
		order = DefaultPriority
	}
	out := make([]Strategy, 0, len(order)+1)
	if s.StableID != "" {
		out = append(out, StrategyStableID)
	}
	for _, st := range order {
		if st == StrategyStableID {
			continue
		}
		out = append(out, st)
	}
	return out
}

// ParseSelector accepts the legacy string forms ("css=...", "xpath=...",
// "index=N", bare CSS) as well as an already-structured map, per spec §3
// "Legacy string form ... must parse into this structure."
func ParseSelector(value any) (Selector, error) {
	switch v := value.(type) {
	case string:
		return parseLegacySelectorString(v), nil
	case map[string]any:
		return parseSelectorMap(v)
	case Selector:
		return v, nil
	case nil:
		return Selector{}, fmt.Errorf("dsl: selector is required")
	default:
		return Selector{}, fmt.Errorf("dsl: unsupported selector value type %T", value)
	}
}

func parseLegacySelectorString(v string) Selector {
	sel := Selector{LegacyValue: v}
	switch {
	case strings.HasPrefix(v, "css="):
		sel.CSS = strings.TrimPrefix(v, "css=")
	case strings.HasPrefix(v, "xpath="):
		sel.XPath = strings.TrimPrefix(v, "xpath=")
	case strings.HasPrefix(v, "text="):
		sel.Text = strings.TrimPrefix(v, "text=")
	case strings.HasPrefix(v, "role="):
		sel.Role = strings.TrimPrefix(v, "role=")
	case strings.HasPrefix(v, "index="):
		if n, err := strconv.Atoi(strings.TrimPrefix(v, "index=")); err == nil {
			sel.OrdinalIndex = &n
		}
	default:
		sel.CSS = v
	}
	return sel
}

func parseSelectorMap(m map[string]any) (Selector, error) {
	sel := Selector{}
	sel.CSS, _ = m["css"].(string)
	sel.XPath, _ = m["xpath"].(string)
	sel.Text, _ = m["text"].(string)
	sel.Role, _ = m["role"].(string)
	sel.AriaLabel, _ = m["aria_label"].(string)
	sel.NearText, _ = m["near_text"].(string)
	sel.StableID, _ = m["stable_id"].(string)

	if idx, ok := m["ordinal_index"]; ok {
		n, err := toInt(idx)
		if err != nil {
			return Selector{}, fmt.Errorf("dsl: ordinal_index: %w", err)
		}
		sel.OrdinalIndex = &n
	}
	if raw, ok := m["priority"]; ok {
		list, ok := raw.([]any)
		if !ok {
			return Selector{}, fmt.Errorf("dsl: priority must be a list")
		}
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return Selector{}, fmt.Errorf("dsl: priority entries must be strings")
			}
			sel.Priority = append(sel.Priority, Strategy(s))
		}
	}
	return sel, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}

// IsSimple reports whether this selector round-trips as a bare legacy
// string (mirrors original_source Selector.is_simple()).
func (s Selector) IsSimple() bool {
	return s.LegacyValue != ""
}

// AsLegacyString renders the selector back into the "css=...", "xpath=...",
// "index=N" legacy string form used by legacy action payloads.
func (s Selector) AsLegacyString() string {
	if s.LegacyValue != "" {
		return s.LegacyValue
	}
	switch {
	case s.StableID != "":
		return s.StableID
	case s.CSS != "":
		return "css=" + s.CSS
	case s.XPath != "":
		return "xpath=" + s.XPath
	case s.Role != "":
		return "role=" + s.Role
	case s.Text != "":
		return "text=" + s.Text
	case s.OrdinalIndex != nil:
		return "index=" + strconv.Itoa(*s.OrdinalIndex)
	default:
		return ""
	}
}

// ToMap renders the selector as a plain map for canonical JSON payloads.
func (s Selector) ToMap() map[string]any {
	m := map[string]any{}
	if s.CSS != "" {
		m["css"] = s.CSS
	}
	if s.XPath != "" {
		m["xpath"] = s.XPath
	}
	if s.Text != "" {
		m["text"] = s.Text
	}
	if s.Role != "" {
		m["role"] = s.Role
	}
	if s.AriaLabel != "" {
		m["aria_label"] = s.AriaLabel
	}
	if s.NearText != "" {
		m["near_text"] = s.NearText
	}
	if s.OrdinalIndex != nil {
		m["ordinal_index"] = *s.OrdinalIndex
	}
	if s.StableID != "" {
		m["stable_id"] = s.StableID
	}
	if len(s.Priority) > 0 {
		prio := make([]string, len(s.Priority))
		for i, p := range s.Priority {
			prio[i] = string(p)
		}
		m["priority"] = prio
	}
	return m
}
