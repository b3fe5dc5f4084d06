package dsl

import "fmt"

// RegistryEntry describes one registered action name, mirroring spec
// §4.2's "Registry holds name → {model, version, deprecated}".
type RegistryEntry struct {
	Name       ActionType
	Version    int
	Deprecated bool
}

// Registry is the canonical table of known action types.
type Registry struct {
	entries map[ActionType]RegistryEntry
}

// NewRegistry builds the registry with every action variant spec §3 names,
// all at version 1 and not deprecated, matching the teacher's convention
// of registering every worker command up front (cloudrouter/cmd/worker
// main.go's path switch) rather than discovering them dynamically.
func NewRegistry() *Registry {
	r := &Registry{entries: map[ActionType]RegistryEntry{}}
	for _, name := range []ActionType{
		ActionNavigate, ActionClick, ActionHover, ActionType_, ActionSelect,
		ActionPressKey, ActionWait, ActionScroll, ActionScrollToText,
		ActionSwitchTab, ActionFocusIframe, ActionRefreshCatalog,
		ActionScreenshot, ActionExtract, ActionAssert, ActionEvalJS,
		ActionClickBlankArea, ActionClosePopup, ActionStop,
	} {
		r.entries[name] = RegistryEntry{Name: name, Version: 1}
	}
	return r
}

// Lookup returns the registry entry for name, or ok=false if unregistered
// (the UNSUPPORTED_ACTION condition, spec §7).
func (r *Registry) Lookup(name ActionType) (RegistryEntry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Registered reports whether name is a known action.
func (r *Registry) Registered(name ActionType) bool {
	_, ok := r.entries[name]
	return ok
}

// legacyActionAliases maps legacy `action:` names that differ from the
// canonical `type:` tag onto the canonical ActionType, per the original
// implementation's looser legacy vocabulary.
var legacyActionAliases = map[string]ActionType{
	"goto":      ActionNavigate,
	"navigate":  ActionNavigate,
	"click":     ActionClick,
	"hover":     ActionHover,
	"type":      ActionType_,
	"fill":      ActionType_,
	"select":    ActionSelect,
	"press_key": ActionPressKey,
	"key":       ActionPressKey,
	"wait":      ActionWait,
	"scroll":    ActionScroll,
	"stop":      ActionStop,
}

func resolveActionName(raw string) (ActionType, error) {
	if at, ok := legacyActionAliases[raw]; ok {
		return at, nil
	}
	at := ActionType(raw)
	return at, nil
}

var errMissingTag = fmt.Errorf("dsl: action object must have a %q or %q field", "type", "action")
