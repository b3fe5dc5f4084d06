package catalog

import (
	"fmt"
	"strings"
)

// AbbreviatedEntry is the label/role/index-only view GET /catalog?view=abbreviated
// returns, sized for LLM prompt budgets (SPEC_FULL.md supplemented feature #4,
// grounded on original_source/agent/element_catalog.py's abbreviated/full
// distinction).
type AbbreviatedEntry struct {
	Index        int    `json:"index"`
	Role         string `json:"role"`
	PrimaryLabel string `json:"primary_label"`
}

// Abbreviated projects a Catalog down to its abbreviated view.
func Abbreviated(c *Catalog) []AbbreviatedEntry {
	out := make([]AbbreviatedEntry, len(c.Entries))
	for i, e := range c.Entries {
		out[i] = AbbreviatedEntry{Index: e.Index, Role: e.Role, PrimaryLabel: e.PrimaryLabel}
	}
	return out
}

// FormatForPrompt renders the catalog as human-readable lines suitable for
// an LLM prompt, the Go equivalent of format_catalog_for_prompt: "[{index}]
// {role}: {primary} — {secondary}; section: X; {state}; href: H", where
// role falls back to the tag and each empty extra is omitted.
func FormatForPrompt(c *Catalog) string {
	var sb strings.Builder
	for _, e := range c.Entries {
		role := e.Role
		if role == "" {
			role = e.Tag
		}
		line := fmt.Sprintf("[%d] %s: %s", e.Index, role, e.PrimaryLabel)
		var extras []string
		if e.SecondaryLabel != "" {
			extras = append(extras, e.SecondaryLabel)
		}
		if e.SectionHint != "" {
			extras = append(extras, "section: "+e.SectionHint)
		}
		if e.StateHint != "" {
			extras = append(extras, e.StateHint)
		}
		if e.HrefShort != "" {
			extras = append(extras, "href: "+e.HrefShort)
		}
		if len(extras) > 0 {
			line += " — " + strings.Join(extras, "; ")
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}
