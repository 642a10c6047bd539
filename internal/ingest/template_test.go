package ingest

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syndicate/internal/workflow"
)

const goodTemplate = `
name: post-listing
description: recorded against the staging portal
steps:
  - order: 0
    action: navigate
    value: https://portal.example.com/listings/new
  - order: 1
    action: type
    selector: "#title"
    value: "{{ADDRESS}}"
  - order: 2
    action: click
    selector: "#save"
  - order: 3
    action: wait_for
    selector: ".banner"
    expect_text: Saved
    timeout_ms: 5000
`

func TestParseTemplateAccepts(t *testing.T) {
	tpl, err := ParseTemplate([]byte(goodTemplate), "post-listing.yaml")
	require.NoError(t, err)

	assert.Equal(t, "post-listing", tpl.Name)
	require.Len(t, tpl.Steps, 4)
	assert.Equal(t, workflow.ActionWaitFor, tpl.Steps[3].Action)
	assert.Equal(t, "Saved", tpl.Steps[3].ExpectText)

	// Finalized templates bind without further preparation.
	_, err = workflow.Bind(tpl, workflow.Record{
		SourceID: "mls-1",
		Fields:   map[string]string{"address": "12 Oak St"},
	})
	assert.NoError(t, err)
}

func TestParseTemplateAcceptsJSON(t *testing.T) {
	doc := `{"name":"j","steps":[{"order":0,"action":"navigate","value":"https://x"}]}`
	tpl, err := ParseTemplate([]byte(doc), "j.json")
	require.NoError(t, err)
	assert.Equal(t, "j", tpl.Name)
}

func TestParseTemplateRejects(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unknown action",
			doc:  "name: t\nsteps:\n  - order: 0\n    action: hover\n    selector: \"#x\"\n",
			want: "action",
		},
		{
			name: "missing name",
			doc:  "steps:\n  - order: 0\n    action: navigate\n    value: https://x\n",
			want: "name",
		},
		{
			name: "empty steps",
			doc:  "name: t\nsteps: []\n",
			want: "steps",
		},
		{
			name: "negative order",
			doc:  "name: t\nsteps:\n  - order: -1\n    action: navigate\n    value: https://x\n",
			want: "order",
		},
		{
			name: "not yaml",
			doc:  "{{{{",
			want: "not valid YAML/JSON",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTemplate([]byte(tc.doc), tc.name+".yaml")
			require.Error(t, err)

			var terr *TemplateError
			require.True(t, errors.As(err, &terr))
			assert.Contains(t, strings.ToLower(err.Error()), "template")
			found := false
			for _, p := range terr.Problems {
				if strings.Contains(strings.ToLower(p), strings.ToLower(tc.want)) {
					found = true
				}
			}
			assert.True(t, found, "problems %v should mention %q", terr.Problems, tc.want)
		})
	}
}

func TestParseTemplateDuplicateOrder(t *testing.T) {
	doc := "name: t\nsteps:\n" +
		"  - order: 1\n    action: click\n    selector: \"#a\"\n" +
		"  - order: 1\n    action: click\n    selector: \"#b\"\n"
	_, err := ParseTemplate([]byte(doc), "dup.yaml")

	var terr *TemplateError
	require.ErrorAs(t, err, &terr)
}

func TestLoadTemplate(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "tpl/post.yaml", []byte(goodTemplate), 0o644))

	tpl, err := LoadTemplate(fs, "tpl/post.yaml")
	require.NoError(t, err)
	assert.Equal(t, "post-listing", tpl.Name)

	_, err = LoadTemplate(fs, "tpl/missing.yaml")
	assert.Error(t, err)
}
