package dsl

import "fmt"

// ValidatePlan runs the run-level validator from spec §4.2: it emits a
// warning (not an error) when a click is not followed within 2 actions
// by an explicit wait, assert, or navigate action — a likely race.
func ValidatePlan(plan Plan) (warnings []string, err error) {
	for i, a := range plan.Actions {
		if verr := a.Validate(); verr != nil {
			return nil, fmt.Errorf("action %d: %w", i, verr)
		}
		if a.Type != ActionClick {
			continue
		}
		if hasFollowupGuard(plan.Actions, i) {
			continue
		}
		warnings = append(warnings, fmt.Sprintf(
			"action %d: click is not followed within 2 actions by an explicit wait, assert, or navigate — likely race", i))
	}
	return warnings, nil
}

func hasFollowupGuard(actions []Action, clickIdx int) bool {
	for j := clickIdx + 1; j <= clickIdx+2 && j < len(actions); j++ {
		switch actions[j].Type {
		case ActionWait, ActionAssert, ActionNavigate:
			return true
		}
	}
	return false
}
