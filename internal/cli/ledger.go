package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/syndicate/internal/store"
)

// LedgerOptions holds flags shared by the ledger subcommands.
type LedgerOptions struct {
	*RootOptions
	DB string
}

// NewLedgerCommand creates the ledger command group.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and maintain the duplicate-detection ledger",
	}
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "synd.db", "path to the ledger/session database")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List ledger entries",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedgerList(opts, cmd)
		},
	}

	forget := &cobra.Command{
		Use:   "forget <source-id>",
		Short: "Tombstone a ledger entry so the record syncs again",
		Long: `Mark a ledger entry deleted. The next session treats the record as
never posted and submits it again. Unknown ids are a no-op.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedgerForget(opts, args[0], cmd)
		},
	}

	cmd.AddCommand(list)
	cmd.AddCommand(forget)
	return cmd
}

func runLedgerList(opts *LedgerOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(opts.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot open database", err)
	}
	defer st.Close()

	entries, err := st.Entries(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot read ledger", err)
	}

	if formatter.Format == "json" {
		return formatter.JSON(entries)
	}
	if len(entries) == 0 {
		formatter.Textf("ledger is empty\n")
		return nil
	}
	for _, e := range entries {
		formatter.Textf("%-8s %s -> %s (synced %s)\n",
			e.Status, e.SourceID, e.DestinationID, e.SyncedAt.Format(time.RFC3339))
	}
	return nil
}

func runLedgerForget(opts *LedgerOptions, sourceID string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(opts.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot open database", err)
	}
	defer st.Close()

	if err := st.MarkDeleted(cmd.Context(), sourceID); err != nil {
		return WrapExitError(ExitCommandError, "cannot update ledger", err)
	}

	if formatter.Format == "json" {
		return formatter.JSON(map[string]string{"forgotten": sourceID})
	}
	formatter.Textf("forgot %s\n", sourceID)
	return nil
}
