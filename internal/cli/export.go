package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/syndicate/internal/export"
	"github.com/roach88/syndicate/internal/store"
	"github.com/roach88/syndicate/internal/workflow"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	DB      string
	Summary bool
	Output  string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export [session-id]",
		Short: "Export a sync session as CSV",
		Long: `Export a persisted sync session as CSV. Without a session id the most
recent session is exported. --summary emits the one-row counter roll-up
instead of the per-record rows.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runExport(opts, id, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "synd.db", "path to the ledger/session database")
	cmd.Flags().BoolVar(&opts.Summary, "summary", false, "export the session roll-up instead of per-record rows")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write to file instead of stdout")

	return cmd
}

func runExport(opts *ExportOptions, sessionID string, cmd *cobra.Command) error {
	st, err := store.Open(opts.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	var sess *workflow.SyncSession
	if sessionID != "" {
		sess, err = st.Session(ctx, sessionID)
		if err != nil {
			return WrapExitError(ExitCommandError, "cannot read session", err)
		}
		if sess == nil {
			return NewExitError(ExitFailure, fmt.Sprintf("no session %s", sessionID))
		}
	} else {
		all, err := st.Sessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "cannot list sessions", err)
		}
		if len(all) == 0 {
			return NewExitError(ExitFailure, "no sessions recorded yet")
		}
		sess, err = st.Session(ctx, all[0].ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "cannot read session", err)
		}
	}

	var out io.Writer = cmd.OutOrStdout()
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return WrapExitError(ExitCommandError, "cannot create output file", err)
		}
		defer f.Close()
		out = f
	}

	if opts.Summary {
		err = export.WriteSummary(out, sess)
	} else {
		err = export.WriteResults(out, sess)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "export failed", err)
	}
	return nil
}
