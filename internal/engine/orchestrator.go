// Package engine drives the per-record sync pipeline across a batch.
//
// The orchestrator owns the record loop: dedupe check, binding, asset
// staging, replay through the destination adapter, ledger update, and
// cleanup. Records are processed strictly one at a time because the
// adapter holds a single stateful authenticated session; only asset
// staging inside a record is parallel.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/roach88/syndicate/internal/assets"
	"github.com/roach88/syndicate/internal/destination"
	"github.com/roach88/syndicate/internal/store"
	"github.com/roach88/syndicate/internal/workflow"
)

// DefaultRecordDelay bounds the request rate against the destination.
const DefaultRecordDelay = time.Second

// RecordSource supplies the candidate records for one session.
type RecordSource interface {
	Fetch(ctx context.Context) ([]workflow.Record, error)
}

// RecordSourceFunc adapts a function to the RecordSource interface.
type RecordSourceFunc func(ctx context.Context) ([]workflow.Record, error)

func (f RecordSourceFunc) Fetch(ctx context.Context) ([]workflow.Record, error) {
	return f(ctx)
}

// Destination is the replay surface the orchestrator drives. Implemented
// by destination.Adapter; tests substitute fakes.
type Destination interface {
	PostRecord(ctx context.Context, binding *workflow.Binding, rec workflow.Record, assetPaths []string) (destination.PostResult, error)
	Release(ctx context.Context) error
}

// Config assembles the collaborators for one orchestrator.
//
// Template, Source, Store, Stager, and Dest are required. The rest have
// working defaults.
type Config struct {
	Template *workflow.Template
	Source   RecordSource
	Store    *store.Store
	Stager   *assets.Stager
	Dest     Destination

	// RecordDelay is the fixed pause between records. Zero means
	// DefaultRecordDelay; negative disables the delay (tests).
	RecordDelay time.Duration

	// Progress and Result are invoked after each record, in loop order,
	// from the orchestrator goroutine. Either may be nil.
	Progress func(current, total int, label string)
	Result   func(workflow.SyncResult)

	Tokens TokenGenerator
	Logger *slog.Logger
	Now    func() time.Time
}

// Orchestrator runs sync sessions one at a time over a shared store.
//
// Start owns all mutation; Stop only sets a cooperative flag. One
// orchestrator per persisted store.
type Orchestrator struct {
	cfg     Config
	running atomic.Bool
	stop    atomic.Bool
}

// New creates an Orchestrator and applies config defaults.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Template == nil || cfg.Source == nil || cfg.Store == nil || cfg.Stager == nil || cfg.Dest == nil {
		return nil, fmt.Errorf("engine: template, source, store, stager, and dest are all required")
	}
	if err := cfg.Template.Finalize(); err != nil {
		return nil, fmt.Errorf("finalize template: %w", err)
	}
	if cfg.RecordDelay == 0 {
		cfg.RecordDelay = DefaultRecordDelay
	}
	if cfg.Tokens == nil {
		cfg.Tokens = UUIDv7Generator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{cfg: cfg}, nil
}

// Stop requests a cooperative stop. The in-flight record finishes before
// the loop exits; there is no mid-step cancellation because aborting a
// half-submitted form can leave the destination inconsistent.
func (o *Orchestrator) Stop() {
	o.stop.Store(true)
}

// Running reports whether a session is in progress.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Start runs one full sync session and returns it.
//
// A concurrent Start fails immediately with AlreadyRunningError and
// leaves the in-progress session untouched. On every exit path the
// accumulated session is persisted, staged assets are removed, and the
// destination session is released.
func (o *Orchestrator) Start(ctx context.Context) (*workflow.SyncSession, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, &AlreadyRunningError{}
	}
	defer o.running.Store(false)
	o.stop.Store(false)

	log := o.cfg.Logger
	sess := &workflow.SyncSession{
		ID:        o.cfg.Tokens.Generate(),
		StartTime: o.cfg.Now(),
	}
	log.Info("session starting", "session_id", sess.ID, "template", o.cfg.Template.Name)

	defer func() {
		o.cfg.Stager.CleanupAll()
		if err := o.cfg.Dest.Release(ctx); err != nil {
			log.Warn("destination release failed", "session_id", sess.ID, "error", err)
		}
	}()

	records, err := o.cfg.Source.Fetch(ctx)
	if err != nil {
		sess.EndTime = o.cfg.Now()
		o.persist(ctx, sess)
		return sess, fmt.Errorf("fetch records: %w", err)
	}
	sess.TotalRecords = len(records)

	for i, rec := range records {
		if o.stop.Load() {
			log.Info("session stopped", "session_id", sess.ID, "processed", i, "total", len(records))
			break
		}
		if ctx.Err() != nil {
			log.Info("session canceled", "session_id", sess.ID, "processed", i, "total", len(records))
			break
		}

		res := o.processRecord(ctx, rec)
		sess.Append(res)
		if o.cfg.Progress != nil {
			o.cfg.Progress(i+1, len(records), rec.Label)
		}
		if o.cfg.Result != nil {
			o.cfg.Result(res)
		}

		if i < len(records)-1 && !o.stop.Load() {
			o.pause(ctx)
		}
	}

	sess.EndTime = o.cfg.Now()
	o.persist(ctx, sess)
	log.Info("session finished",
		"session_id", sess.ID,
		"total", sess.TotalRecords,
		"posted", sess.Posted,
		"skipped", sess.Skipped,
		"failed", sess.Failed)
	return sess, nil
}

// processRecord runs the full pipeline for one record and always returns
// a terminal result. Staged assets for the record are removed on every
// path out.
func (o *Orchestrator) processRecord(ctx context.Context, rec workflow.Record) workflow.SyncResult {
	log := o.cfg.Logger
	res := workflow.SyncResult{
		SourceID:  rec.SourceID,
		Label:     rec.Label,
		Timestamp: o.cfg.Now(),
	}

	synced, err := o.cfg.Store.IsSynced(ctx, rec.SourceID)
	if err != nil {
		// A ledger read failure must not lose the record; treat it as
		// unsynced and let the upsert settle it.
		log.Warn("ledger check failed", "source_id", rec.SourceID, "error", err)
	}
	if synced {
		res.Status = workflow.StatusSkipped
		res.Message = "already synced"
		log.Info("record skipped", "source_id", rec.SourceID)
		return res
	}

	binding, err := workflow.Bind(o.cfg.Template, rec)
	if err != nil {
		res.Status = workflow.StatusFailed
		res.Message = err.Error()
		log.Warn("binding failed", "source_id", rec.SourceID, "error", err)
		return res
	}

	staged := o.cfg.Stager.FetchAll(ctx, assetURLs(rec), rec.SourceID)
	defer o.cfg.Stager.Cleanup(staged)

	var paths []string
	var warnings []string
	for _, st := range staged {
		if st.OK {
			paths = append(paths, st.LocalPath)
		} else {
			warnings = append(warnings, st.Err.Error())
			log.Warn("asset staging failed", "source_id", rec.SourceID, "url", st.URL, "error", st.Err)
		}
	}

	post, err := o.cfg.Dest.PostRecord(ctx, binding, rec, paths)
	if err != nil {
		res.Status = workflow.StatusFailed
		res.Message = err.Error()
		log.Warn("replay failed", "source_id", rec.SourceID, "error", err)
		return res
	}

	res.Status = workflow.StatusSuccess
	res.DestinationID = post.DestinationID
	if post.Warning != "" {
		warnings = append(warnings, post.Warning)
	}
	res.Message = strings.Join(warnings, "; ")

	if err := o.cfg.Store.RecordSynced(ctx, rec.SourceID, post.DestinationID); err != nil {
		// The post went through; a ledger write failure is logged, not
		// allowed to flip an already-computed success.
		log.Error("ledger write failed", "source_id", rec.SourceID, "error", err)
	}
	log.Info("record posted", "source_id", rec.SourceID, "destination_id", post.DestinationID)
	return res
}

// persist writes the session log. Storage failure is logged and does not
// discard the in-memory session the caller already holds.
func (o *Orchestrator) persist(ctx context.Context, sess *workflow.SyncSession) {
	if err := o.cfg.Store.SaveSession(ctx, sess); err != nil {
		var serr *store.StorageError
		if errors.As(err, &serr) {
			o.cfg.Logger.Error("session persist failed", "session_id", sess.ID, "op", serr.Op, "error", serr.Err)
			return
		}
		o.cfg.Logger.Error("session persist failed", "session_id", sess.ID, "error", err)
	}
}

// pause applies the inter-record delay, cut short by cancellation.
func (o *Orchestrator) pause(ctx context.Context) {
	if o.cfg.RecordDelay < 0 {
		return
	}
	t := time.NewTimer(o.cfg.RecordDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// assetURLs extracts binary asset references from a record. Any field
// whose name mentions photos or images contributes; values may list
// several URLs separated by commas, pipes, or whitespace. Field order is
// sorted so staging order is stable across runs.
func assetURLs(rec workflow.Record) []string {
	names := make([]string, 0, len(rec.Fields))
	for name := range rec.Fields {
		lower := strings.ToLower(name)
		if strings.Contains(lower, "photo") || strings.Contains(lower, "image") || strings.Contains(lower, "asset") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var urls []string
	for _, name := range names {
		for _, part := range strings.FieldsFunc(rec.Fields[name], func(r rune) bool {
			return r == ',' || r == '|' || r == ' ' || r == '\t' || r == '\n'
		}) {
			if strings.HasPrefix(part, "http://") || strings.HasPrefix(part, "https://") {
				urls = append(urls, part)
			}
		}
	}
	return urls
}
