// Package destination implements the adapter that owns one authenticated
// automation session against the listing destination and drives the
// multi-stage submission flow for each record.
//
// Stage model: LoggedOut -> LoggingIn -> LoggedIn -> Stage1 (recorded
// steps) -> Stage2 (mapped detail fields) -> Submitted -> AssetUpload
// (best-effort) -> Done. The session is memoized across PostRecord calls;
// a silent logout is repaired with exactly one re-login per record.
package destination

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/syndicate/internal/browser"
	"github.com/roach88/syndicate/internal/executor"
	"github.com/roach88/syndicate/internal/retry"
	"github.com/roach88/syndicate/internal/workflow"
)

// State is the adapter's session state.
type State string

const (
	StateLoggedOut   State = "logged_out"
	StateLoggingIn   State = "logging_in"
	StateLoggedIn    State = "logged_in"
	StateStage1      State = "stage1"
	StateStage2      State = "stage2"
	StateSubmitted   State = "submitted"
	StateAssetUpload State = "asset_upload"
	StateDone        State = "done"
)

// SessionExpiredError is returned when the destination logs the session
// out twice while processing a single record: the first detection triggers
// a re-login and resume, the second fails the record.
type SessionExpiredError struct {
	SourceID string
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("record %q: session expired after re-login", e.SourceID)
}

// Config describes one destination deployment. Selector fields default to
// the destination's current markup; tests and alternate deployments
// override them.
type Config struct {
	BaseURL   string
	LoginPath string
	Username  string
	Password  string

	UsernameSelector string
	PasswordSelector string
	LoginSubmit      string

	CategorySelector  string
	StreetNumSelector string
	StreetSelector    string
	StreetTypeSel     string
	BathsFullSelector string
	BathsHalfSelector string
	PriceSelector     string
	AreaSelector      string
	YearSelector      string

	SubmitSelector  string
	SuccessSelector string
	SuccessText     string
	UploadSelector  string

	StepTimeout time.Duration
	LoginRetry  retry.Policy
}

func (c *Config) applyDefaults() {
	def := func(s *string, v string) {
		if *s == "" {
			*s = v
		}
	}
	def(&c.LoginPath, "/login")
	def(&c.UsernameSelector, "#username")
	def(&c.PasswordSelector, "#password")
	def(&c.LoginSubmit, "#login-submit")
	def(&c.CategorySelector, "#listing-category")
	def(&c.StreetNumSelector, "#addr-number")
	def(&c.StreetSelector, "#addr-street")
	def(&c.StreetTypeSel, "#addr-type")
	def(&c.BathsFullSelector, "#baths-full")
	def(&c.BathsHalfSelector, "#baths-half")
	def(&c.PriceSelector, "#price")
	def(&c.AreaSelector, "#area")
	def(&c.YearSelector, "#year-built")
	def(&c.SubmitSelector, "#listing-submit")
	def(&c.SuccessSelector, ".alert-success")
	def(&c.SuccessText, "published")
	def(&c.UploadSelector, "input.photo-upload")
	if c.StepTimeout <= 0 {
		c.StepTimeout = executor.DefaultStepTimeout
	}
	if c.LoginRetry.Attempts == 0 {
		c.LoginRetry = retry.Policy{Attempts: 2, BaseDelay: time.Second}
	}
}

// PostResult is the outcome of one submission.
type PostResult struct {
	DestinationID string
	// Warning carries non-fatal degradation, currently only failed asset
	// uploads. A submitted record is never rolled back for a warning.
	Warning string
}

// Adapter owns one driver session and replays submissions against it.
// Not safe for concurrent use: one orchestrator drives one adapter.
type Adapter struct {
	cfg    Config
	driver browser.Driver
	exec   *executor.Executor
	state  State
}

// New creates an Adapter around an explicitly owned driver session. The
// caller constructs the driver and must arrange for Release; there is no
// ambient shared session.
func New(driver browser.Driver, cfg Config, opts ...executor.Option) *Adapter {
	cfg.applyDefaults()
	opts = append([]executor.Option{executor.WithStepTimeout(cfg.StepTimeout)}, opts...)
	return &Adapter{
		cfg:    cfg,
		driver: driver,
		exec:   executor.New(driver, opts...),
		state:  StateLoggedOut,
	}
}

// State reports the adapter's current session state.
func (a *Adapter) State() State {
	return a.state
}

// Release closes the underlying automation session. Idempotent enough for
// deferred use; the orchestrator calls it on every exit path.
func (a *Adapter) Release(ctx context.Context) error {
	a.state = StateLoggedOut
	return a.driver.Close(ctx)
}

// PostRecord submits one bound record. On adapter success the record is
// submitted even if asset upload degraded; the warning rides along in
// PostResult. The error return is the record-level failure.
func (a *Adapter) PostRecord(ctx context.Context, binding *workflow.Binding, rec workflow.Record, assetPaths []string) (PostResult, error) {
	if err := a.ensureLoggedIn(ctx); err != nil {
		return PostResult{}, err
	}

	id, err := a.submit(ctx, binding, rec)
	if err != nil {
		// A silent logout surfaces as a failed step plus a redirect to the
		// login stage. Repair it once and resume from the top of the flow.
		if !a.loggedOut(ctx) {
			return PostResult{}, err
		}
		slog.Warn("silent logout detected, re-logging in", "source_id", rec.SourceID)
		a.state = StateLoggedOut
		if err := a.ensureLoggedIn(ctx); err != nil {
			return PostResult{}, &SessionExpiredError{SourceID: rec.SourceID}
		}
		id, err = a.submit(ctx, binding, rec)
		if err != nil {
			if a.loggedOut(ctx) {
				return PostResult{}, &SessionExpiredError{SourceID: rec.SourceID}
			}
			return PostResult{}, err
		}
	}

	// Asset upload is best-effort and decoupled from submission success.
	a.state = StateAssetUpload
	warning := a.uploadAssets(ctx, rec.SourceID, assetPaths)

	a.state = StateDone
	return PostResult{DestinationID: id, Warning: warning}, nil
}

// ensureLoggedIn performs the memoized login. Reused across many
// PostRecord calls; only the first (or a post-logout repair) hits the
// login form.
func (a *Adapter) ensureLoggedIn(ctx context.Context) error {
	if a.state != StateLoggedOut {
		return nil
	}
	a.state = StateLoggingIn

	err := a.cfg.LoginRetry.Do(ctx, func(ctx context.Context) error {
		return a.login(ctx)
	})
	if err != nil {
		a.state = StateLoggedOut
		return fmt.Errorf("login: %w", err)
	}
	a.state = StateLoggedIn
	slog.Info("destination session established", "base_url", a.cfg.BaseURL)
	return nil
}

func (a *Adapter) login(ctx context.Context) error {
	steps := []workflow.Step{
		{Order: 1, Action: workflow.ActionNavigate, Value: a.cfg.BaseURL + a.cfg.LoginPath},
		{Order: 2, Action: workflow.ActionType, Selector: a.cfg.UsernameSelector, Value: a.cfg.Username},
		{Order: 3, Action: workflow.ActionType, Selector: a.cfg.PasswordSelector, Value: a.cfg.Password},
		{Order: 4, Action: workflow.ActionClick, Selector: a.cfg.LoginSubmit},
	}
	if _, err := a.exec.Run(ctx, steps); err != nil {
		return err
	}
	if a.loggedOut(ctx) {
		return fmt.Errorf("still on login page after submit")
	}
	return nil
}

// submit runs the two submission stages and returns the destination id.
func (a *Adapter) submit(ctx context.Context, binding *workflow.Binding, rec workflow.Record) (string, error) {
	// Stage 1: recorded steps, already bound to this record.
	a.state = StateStage1
	if _, err := a.exec.Run(ctx, binding.Steps); err != nil {
		return "", fmt.Errorf("stage1: %w", err)
	}

	// Stage 2: destination-specific detail fields from the pure mapping.
	a.state = StateStage2
	if _, err := a.exec.Run(ctx, a.detailSteps(rec)); err != nil {
		return "", fmt.Errorf("stage2: %w", err)
	}

	a.state = StateSubmitted
	id, err := a.destinationID(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve destination id: %w", err)
	}
	return id, nil
}

// detailSteps builds the stage-2 step list from the mapped fields.
func (a *Adapter) detailSteps(rec workflow.Record) []workflow.Step {
	f := MapFields(rec.Field)
	return []workflow.Step{
		{Order: 1, Action: workflow.ActionSelect, Selector: a.cfg.CategorySelector, Value: f.Category},
		{Order: 2, Action: workflow.ActionType, Selector: a.cfg.StreetNumSelector, Value: f.StreetNumber},
		{Order: 3, Action: workflow.ActionType, Selector: a.cfg.StreetSelector, Value: f.StreetName},
		{Order: 4, Action: workflow.ActionType, Selector: a.cfg.StreetTypeSel, Value: f.StreetType},
		{Order: 5, Action: workflow.ActionType, Selector: a.cfg.BathsFullSelector, Value: strconv.Itoa(f.BathsFull)},
		{Order: 6, Action: workflow.ActionType, Selector: a.cfg.BathsHalfSelector, Value: strconv.Itoa(f.BathsHalf)},
		{Order: 7, Action: workflow.ActionType, Selector: a.cfg.PriceSelector, Value: strconv.FormatInt(f.Price, 10)},
		{Order: 8, Action: workflow.ActionType, Selector: a.cfg.AreaSelector, Value: strconv.Itoa(f.AreaSqft)},
		{Order: 9, Action: workflow.ActionType, Selector: a.cfg.YearSelector, Value: strconv.Itoa(f.YearBuilt)},
		{Order: 10, Action: workflow.ActionClick, Selector: a.cfg.SubmitSelector},
		{Order: 11, Action: workflow.ActionWaitFor, Selector: a.cfg.SuccessSelector, ExpectText: a.cfg.SuccessText,
			TimeoutMs: int(a.cfg.StepTimeout / time.Millisecond)},
	}
}

// uploadAssets injects each staged file into the photo control. Failures
// never fail the record; they accumulate into one warning string.
func (a *Adapter) uploadAssets(ctx context.Context, sourceID string, paths []string) string {
	var failed []string
	for _, p := range paths {
		steps := []workflow.Step{
			{Order: 1, Action: workflow.ActionUpload, Selector: a.cfg.UploadSelector, Value: p},
		}
		if _, err := a.exec.Run(ctx, steps); err != nil {
			slog.Warn("asset upload failed",
				"source_id", sourceID,
				"path", p,
				"error", err,
			)
			failed = append(failed, p)
		}
	}
	if len(failed) == 0 {
		return ""
	}
	return fmt.Sprintf("asset upload failed for %d of %d files: %s",
		len(failed), len(paths), strings.Join(failed, ", "))
}

// loggedOut reports whether the driver landed back on the login stage.
func (a *Adapter) loggedOut(ctx context.Context) bool {
	loc, err := a.driver.Location(ctx)
	if err != nil {
		return false
	}
	return strings.Contains(loc, a.cfg.LoginPath)
}

// destinationID extracts the new listing's id from the post-submit URL,
// e.g. https://dest.example.com/listings/8412 -> "8412".
func (a *Adapter) destinationID(ctx context.Context) (string, error) {
	loc, err := a.driver.Location(ctx)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(loc)
	if err != nil {
		return "", err
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) == 0 || segs[len(segs)-1] == "" {
		return "", fmt.Errorf("no id segment in %q", loc)
	}
	return segs[len(segs)-1], nil
}
