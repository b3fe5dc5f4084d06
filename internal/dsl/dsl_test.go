package dsl

import (
	"reflect"
	"testing"
)

func idxPtr(n int) *int { return &n }

func TestRegistryRoundTrip(t *testing.T) {
	registry := NewRegistry()

	cases := []map[string]any{
		{"type": "navigate", "url": "https://example.com"},
		{"type": "click", "selector": map[string]any{"css": "#buy"}},
		{"type": "type", "selector": map[string]any{"css": "#query"}, "text": "hello", "clear": true},
		{"type": "press_key", "keys": []any{"Control", "S"}},
		{"type": "wait", "wait": map[string]any{"for_state": "networkidle"}},
	}

	for _, c := range cases {
		a, err := ParseAction(registry, c)
		if err != nil {
			t.Fatalf("ParseAction(%v): %v", c, err)
		}
		payload := a.Payload()
		roundTripped, err := ParseAction(registry, payload)
		if err != nil {
			t.Fatalf("ParseAction(Payload(%v)): %v", c, err)
		}
		if !reflect.DeepEqual(a, roundTripped) {
			t.Fatalf("round trip mismatch:\n  original: %+v\n  reparsed: %+v", a, roundTripped)
		}
	}
}

func TestPressKeyLegacyRoundTrip(t *testing.T) {
	registry := NewRegistry()

	legacy := map[string]any{"action": "press_key", "key": "Control+S"}
	a, err := ParseAction(registry, legacy)
	if err != nil {
		t.Fatalf("ParseAction: %v", err)
	}
	if a.Type != ActionPressKey {
		t.Fatalf("Type = %q, want press_key", a.Type)
	}
	if !reflect.DeepEqual(a.Keys, []string{"Control", "S"}) {
		t.Fatalf("Keys = %v, want [Control S]", a.Keys)
	}
	if a.Scope != "active_element" {
		t.Fatalf("Scope = %q, want active_element", a.Scope)
	}

	lp := a.LegacyPayload()
	if lp["key"] != "Control+S" {
		t.Fatalf("LegacyPayload key = %v, want Control+S", lp["key"])
	}
	if lp["action"] != "press_key" {
		t.Fatalf("LegacyPayload action = %v, want press_key", lp["action"])
	}
}

func TestParseSelectorLegacyForms(t *testing.T) {
	tests := []struct {
		in   string
		want Selector
	}{
		{"css=#buy", Selector{CSS: "#buy", LegacyValue: "css=#buy"}},
		{"index=5", Selector{OrdinalIndex: idxPtr(5), LegacyValue: "index=5"}},
		{"#bare-css", Selector{CSS: "#bare-css", LegacyValue: "#bare-css"}},
	}
	for _, tc := range tests {
		got, err := ParseSelector(tc.in)
		if err != nil {
			t.Fatalf("ParseSelector(%q): %v", tc.in, err)
		}
		if got.CSS != tc.want.CSS {
			t.Fatalf("ParseSelector(%q).CSS = %q, want %q", tc.in, got.CSS, tc.want.CSS)
		}
		if tc.want.OrdinalIndex != nil {
			if got.OrdinalIndex == nil || *got.OrdinalIndex != *tc.want.OrdinalIndex {
				t.Fatalf("ParseSelector(%q).OrdinalIndex mismatch", tc.in)
			}
		}
	}
}

func TestParseRunRequestBothForms(t *testing.T) {
	registry := NewRegistry()

	flat := map[string]any{
		"actions": []any{
			map[string]any{"action": "click", "target": "#buy"},
		},
	}
	req, err := ParseRunRequest(registry, flat)
	if err != nil {
		t.Fatalf("ParseRunRequest(flat): %v", err)
	}
	if len(req.Plan.Actions) != 1 || req.Plan.Actions[0].Type != ActionClick {
		t.Fatalf("unexpected plan: %+v", req.Plan)
	}

	nested := map[string]any{
		"run_id": "run-1",
		"plan": map[string]any{
			"actions": []any{
				map[string]any{"type": "navigate", "url": "https://example.com"},
			},
		},
	}
	req2, err := ParseRunRequest(registry, nested)
	if err != nil {
		t.Fatalf("ParseRunRequest(nested): %v", err)
	}
	if req2.RunID != "run-1" {
		t.Fatalf("RunID = %q, want run-1", req2.RunID)
	}
	if len(req2.Plan.Actions) != 1 || req2.Plan.Actions[0].Type != ActionNavigate {
		t.Fatalf("unexpected plan: %+v", req2.Plan)
	}
}

func TestValidatePlanRaceWarning(t *testing.T) {
	plan := Plan{Actions: []Action{
		{Type: ActionClick, Version: 1, Selector: &Selector{CSS: "#a"}},
		{Type: ActionClick, Version: 1, Selector: &Selector{CSS: "#b"}},
	}}
	warnings, err := ValidatePlan(plan)
	if err != nil {
		t.Fatalf("ValidatePlan: %v", err)
	}
	if len(warnings) != 2 {
		t.Fatalf("warnings = %v, want exactly 2 (neither click has a guard within the next 2 actions)", warnings)
	}

	guarded := Plan{Actions: []Action{
		{Type: ActionClick, Version: 1, Selector: &Selector{CSS: "#a"}},
		{Type: ActionWait, Version: 1, Wait: &WaitCondition{ForState: "networkidle"}},
	}}
	warnings2, err := ValidatePlan(guarded)
	if err != nil {
		t.Fatalf("ValidatePlan: %v", err)
	}
	if len(warnings2) != 0 {
		t.Fatalf("warnings = %v, want none", warnings2)
	}
}

func TestValidateRejectsMissingDiscriminator(t *testing.T) {
	a := Action{Type: ActionClick, Version: 1, Selector: &Selector{}}
	if err := a.Validate(); err == nil {
		t.Fatalf("expected validation error for selector with no discriminator")
	}
}
