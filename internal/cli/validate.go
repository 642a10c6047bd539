package cli

import (
	"errors"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/roach88/syndicate/internal/ingest"
)

// ValidationResult is the payload for validate output.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Template string   `json:"template,omitempty"`
	Steps    int      `json:"steps,omitempty"`
	Problems []string `json:"problems,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <template>",
		Short: "Validate a recorded workflow template",
		Long: `Validate a recorded workflow template file (YAML or JSON) against the
step schema without touching the destination. Reports every schema
violation, not just the first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	tpl, err := ingest.LoadTemplate(afero.NewOsFs(), path)
	if err != nil {
		var terr *ingest.TemplateError
		if errors.As(err, &terr) {
			if formatter.Format == "json" {
				if jerr := formatter.JSON(ValidationResult{Valid: false, Problems: terr.Problems}); jerr != nil {
					return jerr
				}
			} else {
				formatter.Textf("Template %s is invalid:\n", path)
				for _, p := range terr.Problems {
					formatter.Textf("  - %s\n", p)
				}
			}
			return NewExitError(ExitFailure, "template validation failed")
		}
		return WrapExitError(ExitCommandError, "cannot read template", err)
	}

	formatter.VerboseLog("Parsed %d step(s) from %s", len(tpl.Steps), path)

	if formatter.Format == "json" {
		return formatter.JSON(ValidationResult{
			Valid:    true,
			Template: tpl.Name,
			Steps:    len(tpl.Steps),
		})
	}
	formatter.Textf("Template %q is valid (%d steps)\n", tpl.Name, len(tpl.Steps))
	return nil
}
