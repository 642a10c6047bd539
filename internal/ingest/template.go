// Package ingest validates external inputs at the boundary: recorded
// workflow templates and tabular record batches.
//
// Templates arrive as YAML or JSON documents produced by the learning-mode
// collaborator. They are schema-checked with CUE before being decoded into
// the typed workflow entities, so nothing downstream ever handles a
// malformed step.
package ingest

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/roach88/syndicate/internal/workflow"
)

//go:embed schema.cue
var schemaCUE string

// TemplateError reports a template that failed schema validation.
type TemplateError struct {
	Path     string
	Problems []string
}

func (e *TemplateError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("template %s: %s", e.Path, e.Problems[0])
	}
	return fmt.Sprintf("template %s: %d schema violations", e.Path, len(e.Problems))
}

// LoadTemplate reads, schema-validates, decodes, and finalizes a template
// file. YAML and JSON are both accepted (JSON is a YAML subset).
//
// The returned template is finalized and ready for binding.
func LoadTemplate(fs afero.Fs, path string) (*workflow.Template, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return ParseTemplate(data, path)
}

// ParseTemplate validates and decodes raw template bytes. The path is
// used for error reporting only.
func ParseTemplate(data []byte, path string) (*workflow.Template, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &TemplateError{Path: path, Problems: []string{fmt.Sprintf("not valid YAML/JSON: %v", err)}}
	}

	if err := validateSchema(doc); err != nil {
		return nil, &TemplateError{Path: path, Problems: schemaProblems(err)}
	}

	var tpl workflow.Template
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, &TemplateError{Path: path, Problems: []string{fmt.Sprintf("decode: %v", err)}}
	}

	// Structural rules CUE cannot see (duplicate orders, per-action
	// selector requirements) are enforced by finalization.
	if err := tpl.Finalize(); err != nil {
		return nil, &TemplateError{Path: path, Problems: []string{err.Error()}}
	}
	return &tpl, nil
}

// validateSchema unifies the document with the embedded #Template schema.
func validateSchema(doc any) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile embedded schema: %w", err)
	}
	tplDef := schema.LookupPath(cue.ParsePath("#Template"))
	if err := tplDef.Err(); err != nil {
		return fmt.Errorf("lookup #Template: %w", err)
	}

	val := ctx.Encode(doc)
	if err := val.Err(); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	unified := tplDef.Unify(val)
	if err := unified.Err(); err != nil {
		return err
	}
	return unified.Validate(cue.Concrete(true))
}

// schemaProblems flattens CUE's error list into printable lines.
func schemaProblems(err error) []string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Error())
	}
	return out
}
