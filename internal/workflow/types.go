// Package workflow defines the recorded-workflow data model: templates,
// steps, records, bindings, and the per-session result types shared by the
// engine, store, and export packages.
//
// A Template is an ordered sequence of Steps captured during a one-time
// learning session. Once finalized it is immutable; replay never
// reinterprets step order. Placeholder tokens ({{NAME}}) inside step values
// are resolved against a Record's fields by Bind.
package workflow

import (
	"fmt"
	"sort"
	"time"
)

// ActionKind identifies what a step does against the live destination.
type ActionKind string

const (
	ActionNavigate ActionKind = "navigate"
	ActionClick    ActionKind = "click"
	ActionType     ActionKind = "type"
	ActionSelect   ActionKind = "select"
	ActionUpload   ActionKind = "upload"
	ActionWaitFor  ActionKind = "wait_for"
)

// ValidActions defines the supported action kinds.
var ValidActions = map[ActionKind]bool{
	ActionNavigate: true,
	ActionClick:    true,
	ActionType:     true,
	ActionSelect:   true,
	ActionUpload:   true,
	ActionWaitFor:  true,
}

// selectorRequired lists the actions that must carry a selector.
// navigate targets a URL (carried in Value) and needs none.
var selectorRequired = map[ActionKind]bool{
	ActionClick:   true,
	ActionType:    true,
	ActionSelect:  true,
	ActionUpload:  true,
	ActionWaitFor: true,
}

// Step is one recorded interaction.
//
// Value holds either a literal or a string containing one or more
// {{TOKEN}} placeholders. For navigate steps Value is the target URL.
// ExpectText is the success indicator checked by wait_for steps.
type Step struct {
	Order      int        `json:"order" yaml:"order"`
	Action     ActionKind `json:"action" yaml:"action"`
	Selector   string     `json:"selector,omitempty" yaml:"selector,omitempty"`
	Value      string     `json:"value,omitempty" yaml:"value,omitempty"`
	Label      string     `json:"label,omitempty" yaml:"label,omitempty"`
	ExpectText string     `json:"expect_text,omitempty" yaml:"expect_text,omitempty"`
	TimeoutMs  int        `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

// Template is an ordered sequence of recorded steps.
//
// Templates are produced by the learning-mode collaborator and must be
// finalized before first replay. Finalize sorts by Order, validates every
// step, and freezes the sequence; mutation after finalization is a
// programming error.
type Template struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []Step `json:"steps" yaml:"steps"`
	finalized   bool
}

// Finalized reports whether the template has been frozen for replay.
func (t *Template) Finalized() bool {
	return t.finalized
}

// Finalize validates the step sequence and freezes the template.
// Idempotent: finalizing twice is a no-op.
//
// Validation rules:
//   - at least one step
//   - every action kind is known
//   - element actions carry a selector
//   - wait_for steps carry an expected success text
//   - step orders are unique
func (t *Template) Finalize() error {
	if t.finalized {
		return nil
	}
	if len(t.Steps) == 0 {
		return fmt.Errorf("template %q: no steps", t.Name)
	}

	sort.SliceStable(t.Steps, func(i, j int) bool {
		return t.Steps[i].Order < t.Steps[j].Order
	})

	seen := make(map[int]bool, len(t.Steps))
	for i, s := range t.Steps {
		if !ValidActions[s.Action] {
			return fmt.Errorf("template %q: step %d: unknown action %q", t.Name, i, s.Action)
		}
		if selectorRequired[s.Action] && s.Selector == "" {
			return fmt.Errorf("template %q: step %d: action %q requires a selector", t.Name, i, s.Action)
		}
		if s.Action == ActionWaitFor && s.ExpectText == "" {
			return fmt.Errorf("template %q: step %d: wait_for requires expect_text", t.Name, i)
		}
		if seen[s.Order] {
			return fmt.Errorf("template %q: duplicate step order %d", t.Name, s.Order)
		}
		seen[s.Order] = true
	}

	t.finalized = true
	return nil
}

// Record is one row of a batch data source: a flat field dictionary plus
// identity. SourceID keys the duplicate-detection ledger; Label is the
// human-readable handle surfaced in results and progress callbacks.
type Record struct {
	SourceID string
	Label    string
	Fields   map[string]string
}

// Field looks up a field by token, case-insensitively, after NFC
// normalization. Returns the value and whether it was found.
func (r Record) Field(token string) (string, bool) {
	want := foldKey(token)
	for k, v := range r.Fields {
		if foldKey(k) == want {
			return v, true
		}
	}
	return "", false
}

// SyncStatus is the terminal status of one record in one session.
// skipped (duplicate) and failed (error) are distinct categories and are
// never merged when computing aggregate counts.
type SyncStatus string

const (
	StatusSuccess SyncStatus = "success"
	StatusSkipped SyncStatus = "skipped"
	StatusFailed  SyncStatus = "failed"
)

// SyncResult is the terminal outcome for one record. Exactly one is
// produced per fetched record per session; no record is silently dropped.
type SyncResult struct {
	SourceID      string     `json:"source_id"`
	Label         string     `json:"label"`
	Status        SyncStatus `json:"status"`
	Message       string     `json:"message,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
	DestinationID string     `json:"destination_id,omitempty"`
}

// SyncSession is one batch run across a set of candidate records.
// Mutated incrementally by the orchestrator and persisted at session end
// or on cooperative stop.
type SyncSession struct {
	ID           string       `json:"id"`
	StartTime    time.Time    `json:"start_time"`
	EndTime      time.Time    `json:"end_time,omitempty"`
	TotalRecords int          `json:"total_records"`
	Posted       int          `json:"posted"`
	Skipped      int          `json:"skipped"`
	Failed       int          `json:"failed"`
	Results      []SyncResult `json:"results"`
}

// Append records one result and updates the per-status counters.
func (s *SyncSession) Append(r SyncResult) {
	s.Results = append(s.Results, r)
	switch r.Status {
	case StatusSuccess:
		s.Posted++
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	}
}

// LedgerStatus is the lifecycle state of a ledger entry.
type LedgerStatus string

const (
	LedgerActive  LedgerStatus = "active"
	LedgerDeleted LedgerStatus = "deleted"
)

// LedgerEntry is the persisted idempotency record for one source record.
// At most one entry exists per SourceID. Deleted entries are tombstones,
// never physical removals.
type LedgerEntry struct {
	SourceID      string       `json:"source_id"`
	DestinationID string       `json:"destination_id"`
	Status        LedgerStatus `json:"status"`
	SyncedAt      time.Time    `json:"synced_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}
