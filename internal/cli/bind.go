package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/roach88/syndicate/internal/ingest"
	"github.com/roach88/syndicate/internal/workflow"
)

// BindReport is the per-record outcome of a dry-run bind.
type BindReport struct {
	SourceID string   `json:"source_id"`
	Label    string   `json:"label"`
	Bound    bool     `json:"bound"`
	Missing  []string `json:"missing,omitempty"`
}

// NewBindCommand creates the bind command.
func NewBindCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bind <template> <records>",
		Short: "Dry-run bind every record against a template",
		Long: `Bind every record in a batch file against a template without posting
anything. Reports, per record, every placeholder the record cannot
fill. Use this to vet a feed before starting a session.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBind(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runBind(opts *RootOptions, templatePath, recordsPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	fs := afero.NewOsFs()

	tpl, err := ingest.LoadTemplate(fs, templatePath)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot load template", err)
	}
	records, err := ingest.LoadRecords(fs, recordsPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot load records", err)
	}
	formatter.VerboseLog("Binding %d record(s) against template %q", len(records), tpl.Name)

	reports := make([]BindReport, 0, len(records))
	unbound := 0
	for _, rec := range records {
		report := BindReport{SourceID: rec.SourceID, Label: rec.Label, Bound: true}
		if _, err := workflow.Bind(tpl, rec); err != nil {
			report.Bound = false
			unbound++
			var berr *workflow.BindingError
			if errors.As(err, &berr) {
				report.Missing = berr.Missing
			} else {
				report.Missing = []string{err.Error()}
			}
		}
		reports = append(reports, report)
	}

	if formatter.Format == "json" {
		if err := formatter.JSON(reports); err != nil {
			return err
		}
	} else {
		for _, r := range reports {
			if r.Bound {
				formatter.Textf("ok      %s (%s)\n", r.SourceID, r.Label)
			} else {
				formatter.Textf("missing %s (%s): %v\n", r.SourceID, r.Label, r.Missing)
			}
		}
		formatter.Textf("%d of %d record(s) bind cleanly\n", len(records)-unbound, len(records))
	}

	if unbound > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d record(s) cannot be bound", unbound))
	}
	return nil
}
