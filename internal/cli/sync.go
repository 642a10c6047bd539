package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/roach88/syndicate/internal/assets"
	"github.com/roach88/syndicate/internal/browser"
	"github.com/roach88/syndicate/internal/browser/remote"
	"github.com/roach88/syndicate/internal/destination"
	"github.com/roach88/syndicate/internal/engine"
	"github.com/roach88/syndicate/internal/executor"
	"github.com/roach88/syndicate/internal/ingest"
	"github.com/roach88/syndicate/internal/store"
	"github.com/roach88/syndicate/internal/workflow"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	DB          string
	Delay       time.Duration
	StagingDir  string
	BaseURL     string
	LoginPath   string
	Username    string
	Password    string
	DriverCmd   string
	StepTimeout time.Duration
}

// newDriver builds the automation session for a sync run. Package-level
// so tests can substitute a scripted driver.
var newDriver = spawnBridgeDriver

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync <template> <records>",
		Short: "Run a full sync session against the destination",
		Long: `Replay the template once per record: records already on the ledger are
skipped, each remaining record is bound, its photos staged, and the
filled-in workflow replayed through the automation bridge. Results are
persisted to the session log as they accumulate.

The bridge collaborator is launched from --driver-cmd and spoken to
over stdin/stdout using length-prefixed JSON frames.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "synd.db", "path to the ledger/session database")
	cmd.Flags().DurationVar(&opts.Delay, "delay", engine.DefaultRecordDelay, "pause between records")
	cmd.Flags().StringVar(&opts.StagingDir, "staging-dir", filepath.Join(os.TempDir(), "synd-staging"), "directory for staged assets")
	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "", "destination base URL (required)")
	cmd.Flags().StringVar(&opts.LoginPath, "login-path", "", "destination login path (default /login)")
	cmd.Flags().StringVar(&opts.Username, "username", "", "destination account username")
	cmd.Flags().StringVar(&opts.Password, "password", "", "destination account password (or SYND_PASSWORD)")
	cmd.Flags().StringVar(&opts.DriverCmd, "driver-cmd", "", "command launching the automation bridge (required)")
	cmd.Flags().DurationVar(&opts.StepTimeout, "step-timeout", executor.DefaultStepTimeout, "per-step wait budget")

	return cmd
}

func runSync(opts *SyncOptions, templatePath, recordsPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.BaseURL == "" {
		return NewExitError(ExitCommandError, "--base-url is required")
	}
	if opts.Password == "" {
		opts.Password = os.Getenv("SYND_PASSWORD")
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
	formatter.VerboseLog("Loaded template %q and %d record(s)", tpl.Name, len(records))

	st, err := store.Open(opts.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	driver, err := newDriver(ctx, opts, fs)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot start automation bridge", err)
	}

	adapter := destination.New(driver, destination.Config{
		BaseURL:     opts.BaseURL,
		LoginPath:   opts.LoginPath,
		Username:    opts.Username,
		Password:    opts.Password,
		StepTimeout: opts.StepTimeout,
	})

	orc, err := engine.New(engine.Config{
		Template: tpl,
		Source: engine.RecordSourceFunc(func(context.Context) ([]workflow.Record, error) {
			return records, nil
		}),
		Store:       st,
		Stager:      assets.New(fs, opts.StagingDir),
		Dest:        adapter,
		RecordDelay: opts.Delay,
		Progress: func(current, total int, label string) {
			formatter.Textf("[%d/%d] %s\n", current, total, label)
		},
		Result: func(r workflow.SyncResult) {
			formatter.VerboseLog("  %s: %s %s", r.SourceID, r.Status, r.Message)
		},
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot configure session", err)
	}

	sess, runErr := orc.Start(ctx)
	if runErr != nil {
		if engine.IsAlreadyRunning(runErr) {
			return WrapExitError(ExitFailure, "session refused", runErr)
		}
		return WrapExitError(ExitCommandError, "session aborted", runErr)
	}

	if formatter.Format == "json" {
		if err := formatter.JSON(sess); err != nil {
			return err
		}
	} else {
		formatter.Textf("Session %s: %d total, %d posted, %d skipped, %d failed\n",
			sess.ID, sess.TotalRecords, sess.Posted, sess.Skipped, sess.Failed)
	}

	if sess.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d record(s) failed", sess.Failed))
	}
	return nil
}

// spawnBridgeDriver launches the automation collaborator and wires the
// frame protocol over its stdin/stdout.
func spawnBridgeDriver(ctx context.Context, opts *SyncOptions, fs afero.Fs) (browser.Driver, error) {
	if opts.DriverCmd == "" {
		return nil, fmt.Errorf("--driver-cmd is required")
	}

	parts := strings.Fields(opts.DriverCmd)
	proc := exec.CommandContext(ctx, parts[0], parts[1:]...)
	proc.Stderr = os.Stderr

	stdin, err := proc.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("bridge stdin: %w", err)
	}
	stdout, err := proc.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("bridge stdout: %w", err)
	}
	if err := proc.Start(); err != nil {
		return nil, fmt.Errorf("start bridge: %w", err)
	}

	return remote.New(&bridgeConn{Reader: stdout, WriteCloser: stdin, proc: proc}, fs), nil
}

// bridgeConn adapts a child process's pipes to one ReadWriteCloser.
type bridgeConn struct {
	io.Reader
	io.WriteCloser
	proc *exec.Cmd
}

// Close ends the conversation and reaps the child. The peer exits when
// its stdin closes, so Wait does not hang on a healthy bridge.
func (c *bridgeConn) Close() error {
	closeErr := c.WriteCloser.Close()
	waitErr := c.proc.Wait()
	if closeErr != nil {
		return closeErr
	}
	return waitErr
}
