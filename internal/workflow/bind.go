package workflow

import (
	"fmt"
	"sort"
	"strings"
)

// Binding is the result of resolving every placeholder in a template
// against one record: a fully literal step list in the original order.
type Binding struct {
	TemplateName string
	SourceID     string
	Steps        []Step
}

// BindingError reports every unresolvable placeholder across all steps.
//
// Validation is exhaustive, not fail-fast: the caller gets the complete
// list of missing fields in one error, before any side effect occurs.
type BindingError struct {
	TemplateName string
	SourceID     string
	Missing      []string // unique, sorted token names
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("template %q: record %q: missing fields: %s",
		e.TemplateName, e.SourceID, strings.Join(e.Missing, ", "))
}

// Bind resolves every placeholder in tpl against record.
//
// Lookup is case-insensitive (after NFC normalization) against the
// record's field names. Literal-valued steps pass through untouched. If
// any token cannot be resolved, Bind returns a *BindingError listing all
// missing tokens and no Binding.
//
// Bind is pure: it never mutates tpl or record and is safe to retry.
// The template must be finalized first.
func Bind(tpl *Template, record Record) (*Binding, error) {
	if !tpl.Finalized() {
		return nil, fmt.Errorf("template %q: not finalized", tpl.Name)
	}

	missing := make(map[string]bool)
	for _, s := range tpl.Steps {
		for _, tok := range Tokens(s.Value) {
			if _, ok := record.Field(tok); !ok {
				missing[tok] = true
			}
		}
	}
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for tok := range missing {
			names = append(names, tok)
		}
		sort.Strings(names)
		return nil, &BindingError{
			TemplateName: tpl.Name,
			SourceID:     record.SourceID,
			Missing:      names,
		}
	}

	bound := make([]Step, len(tpl.Steps))
	copy(bound, tpl.Steps)
	for i := range bound {
		if HasTokens(bound[i].Value) {
			bound[i].Value = expand(bound[i].Value, record.Field)
		}
	}

	return &Binding{
		TemplateName: tpl.Name,
		SourceID:     record.SourceID,
		Steps:        bound,
	}, nil
}
