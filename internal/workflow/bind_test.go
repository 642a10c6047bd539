package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listingTemplate(t *testing.T) *Template {
	t.Helper()
	tpl := &Template{
		Name: "post-listing",
		Steps: []Step{
			{Order: 1, Action: ActionNavigate, Value: "https://example.com/new"},
			{Order: 2, Action: ActionType, Selector: "#title", Value: "{{TITLE}}"},
			{Order: 3, Action: ActionType, Selector: "#price", Value: "{{PRICE}}"},
			{Order: 4, Action: ActionType, Selector: "#blurb", Value: "{{TITLE}} in {{CITY}}"},
			{Order: 5, Action: ActionClick, Selector: "#submit"},
			{Order: 6, Action: ActionWaitFor, Selector: ".flash", ExpectText: "Saved", TimeoutMs: 5000},
		},
	}
	require.NoError(t, tpl.Finalize())
	return tpl
}

func TestBind_AllPlaceholdersResolve(t *testing.T) {
	tpl := listingTemplate(t)
	rec := Record{
		SourceID: "rec-1",
		Fields: map[string]string{
			"Title": "Sunny Flat",
			"price": "1200",
			"CITY":  "Lisbon",
		},
	}

	b, err := Bind(tpl, rec)
	require.NoError(t, err)
	require.Len(t, b.Steps, 6)

	// Every bound value must be literal.
	for i, s := range b.Steps {
		assert.False(t, HasTokens(s.Value), "step %d still has tokens: %q", i, s.Value)
	}
	assert.Equal(t, "Sunny Flat", b.Steps[1].Value)
	assert.Equal(t, "1200", b.Steps[2].Value)
	assert.Equal(t, "Sunny Flat in Lisbon", b.Steps[3].Value)
}

func TestBind_CollectsEveryMissingField(t *testing.T) {
	tpl := listingTemplate(t)
	rec := Record{
		SourceID: "rec-2",
		Fields:   map[string]string{"title": "Loft"},
	}

	_, err := Bind(tpl, rec)
	require.Error(t, err)

	var be *BindingError
	require.True(t, errors.As(err, &be))
	// Both missing fields reported together, not just the first.
	assert.Equal(t, []string{"CITY", "PRICE"}, be.Missing)
	assert.Equal(t, "rec-2", be.SourceID)
}

func TestBind_IsPureAndRetriable(t *testing.T) {
	tpl := listingTemplate(t)
	rec := Record{
		SourceID: "rec-3",
		Fields:   map[string]string{"title": "A", "price": "1", "city": "B"},
	}

	b1, err := Bind(tpl, rec)
	require.NoError(t, err)
	b2, err := Bind(tpl, rec)
	require.NoError(t, err)

	assert.Equal(t, b1.Steps, b2.Steps)
	// Template value untouched by expansion.
	assert.Equal(t, "{{TITLE}}", tpl.Steps[1].Value)
}

func TestBind_RequiresFinalizedTemplate(t *testing.T) {
	tpl := &Template{Name: "raw", Steps: []Step{{Order: 1, Action: ActionNavigate, Value: "x"}}}
	_, err := Bind(tpl, Record{SourceID: "r"})
	require.Error(t, err)
}

func TestTokens(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{"literal", "hello", nil},
		{"single", "{{NAME}}", []string{"NAME"}},
		{"multiple", "{{A}}-{{B}}", []string{"A", "B"}},
		{"embedded", "call {{PHONE}} now", []string{"PHONE"}},
		{"unterminated", "{{NAME", nil},
		{"empty token", "{{}}", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokens(tt.value))
		})
	}
}

func TestRecordField_CaseAndNormalizationInsensitive(t *testing.T) {
	rec := Record{Fields: map[string]string{"Café Name": "ok"}} // composed é
	// Decomposed e + combining accent must still match.
	v, ok := rec.Field("CAFÉ NAME")
	require.True(t, ok)
	assert.Equal(t, "ok", v)
}

func TestTemplateFinalize_Validation(t *testing.T) {
	tests := []struct {
		name    string
		steps   []Step
		wantErr bool
	}{
		{"empty", nil, true},
		{"unknown action", []Step{{Order: 1, Action: "hover"}}, true},
		{"click without selector", []Step{{Order: 1, Action: ActionClick}}, true},
		{"wait_for without expect", []Step{{Order: 1, Action: ActionWaitFor, Selector: ".x"}}, true},
		{"duplicate order", []Step{
			{Order: 1, Action: ActionNavigate, Value: "a"},
			{Order: 1, Action: ActionNavigate, Value: "b"},
		}, true},
		{"valid", []Step{{Order: 1, Action: ActionNavigate, Value: "a"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := &Template{Name: "t", Steps: tt.steps}
			err := tpl.Finalize()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTemplateFinalize_SortsByOrder(t *testing.T) {
	tpl := &Template{Name: "t", Steps: []Step{
		{Order: 3, Action: ActionClick, Selector: "#c"},
		{Order: 1, Action: ActionNavigate, Value: "url"},
		{Order: 2, Action: ActionType, Selector: "#b", Value: "x"},
	}}
	require.NoError(t, tpl.Finalize())
	assert.Equal(t, []int{1, 2, 3}, []int{tpl.Steps[0].Order, tpl.Steps[1].Order, tpl.Steps[2].Order})
}

func TestSyncSessionAppend_CountsPerStatus(t *testing.T) {
	var s SyncSession
	s.Append(SyncResult{Status: StatusSuccess})
	s.Append(SyncResult{Status: StatusSkipped})
	s.Append(SyncResult{Status: StatusFailed})
	s.Append(SyncResult{Status: StatusFailed})

	assert.Equal(t, 1, s.Posted)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 2, s.Failed)
	assert.Len(t, s.Results, 4)
}
