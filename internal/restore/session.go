package restore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/scripthost-io/restorer/internal/assets"
	"github.com/scripthost-io/restorer/internal/feed"
)

// Status is the observable session state.
type Status int32

const (
	StatusIdle Status = iota
	StatusRestoring
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRestoring:
		return "restoring"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SessionOptions configures a Session.
type SessionOptions struct {
	// Registry supplies the sources and config paths for restore requests.
	Registry *feed.Registry
	// Engine performs the actual dependency resolution.
	Engine Engine
	// Host receives completion callbacks. Optional.
	Host Host
	// Reporter receives unexpected errors. Optional.
	Reporter Reporter
	// Logger defaults to log.Default().
	Logger *log.Logger
	// Metrics is optional; nil disables instrumentation.
	Metrics *Metrics
	// ProjectName is the opaque name of the ephemeral project.
	ProjectName string
	// OutputPath is the fixed per-session restore output directory; the
	// assets manifest is written beneath it.
	OutputPath string
	// PackagesDir is the root under which the engine installs packages.
	PackagesDir string
	// Framework is the initial target framework moniker.
	Framework string
}

// Session is the restore state machine. At most one restore attempt executes
// at a time; a new trigger cancels the in-flight attempt and starts a fresh
// one, and triggers are never queued. Reference and framework mutations are
// expected from the host's interaction thread; attempts read captured
// snapshots only.
type Session struct {
	registry *feed.Registry
	engine   Engine
	host     Host
	reporter Reporter
	logger   *log.Logger
	metrics  *Metrics

	projectName string
	outputPath  string
	packagesDir string

	gate      sync.Mutex // single-flight restore gate
	restoring atomic.Bool
	status    atomic.Int32

	mu           sync.Mutex // guards the fields below
	cancel       context.CancelFunc
	refs         *refSet
	fw           Framework
	lastResolved assets.Resolved
	lastErrors   []string
}

// NewSession validates the options and builds an idle session. No restore
// runs until the first trigger.
func NewSession(opts SessionOptions) (*Session, error) {
	if opts.Registry == nil {
		return nil, errors.New("restore: registry is required")
	}

	if opts.Engine == nil {
		return nil, errors.New("restore: engine is required")
	}

	fw, err := ParseFramework(opts.Framework)
	if err != nil {
		return nil, err
	}

	s := &Session{
		registry:    opts.Registry,
		engine:      opts.Engine,
		host:        opts.Host,
		reporter:    opts.Reporter,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		projectName: opts.ProjectName,
		outputPath:  opts.OutputPath,
		packagesDir: opts.PackagesDir,
		refs:        newRefSet(),
		fw:          fw,
	}

	if s.host == nil {
		s.host = nopHost{}
	}

	if s.reporter == nil {
		s.reporter = nopReporter{}
	}

	if s.logger == nil {
		s.logger = log.Default()
	}

	if s.projectName == "" {
		s.projectName = "scripthost-session"
	}

	return s, nil
}

// UpdateReferences replaces the requested reference set and reports whether
// it changed. A change triggers a restore; the first-ever update is always a
// change, establishing the baseline.
func (s *Session) UpdateReferences(next []PackageReference) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := s.refs.update(next)
	if changed {
		s.triggerLocked()
	}

	return changed
}

// SetTargetFramework re-parses the moniker and always triggers a restore,
// since the resolved artifact set depends on the framework.
func (s *Session) SetTargetFramework(moniker string) error {
	fw, err := ParseFramework(moniker)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.fw = fw
	s.triggerLocked()

	return nil
}

// TriggerRestore forces a restore with the current reference set and
// framework, canceling any in-flight attempt.
func (s *Session) TriggerRestore() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.triggerLocked()
}

// triggerLocked swaps the current cancellation context and schedules a fresh
// attempt on a background goroutine. Caller holds s.mu.
func (s *Session) triggerLocked() {
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	refs := s.refs.snapshot()
	fw := s.fw

	go s.attempt(ctx, refs, fw)
}

// attempt runs one restore. The gate serializes attempts; cancellation is
// observed before and after acquiring it so a superseded attempt never
// overwrites fresher state.
func (s *Session) attempt(ctx context.Context, refs []PackageReference, fw Framework) {
	if ctx.Err() != nil {
		return
	}

	s.gate.Lock()
	s.restoring.Store(true)

	defer func() {
		s.restoring.Store(false)
		s.gate.Unlock()
	}()

	if ctx.Err() != nil {
		return
	}

	s.status.Store(int32(StatusRestoring))

	start := time.Now()

	req, err := s.buildRequest(refs, fw)
	if err != nil {
		s.fail(err, start)

		return
	}

	outcome, err := s.engine.Restore(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			s.canceled(start)

			return
		}

		s.fail(fmt.Errorf("restore engine: %w", err), start)

		return
	}

	if !outcome.Success {
		if ctx.Err() != nil {
			s.canceled(start)

			return
		}

		errs := append([]string(nil), outcome.Errors...)

		s.mu.Lock()
		s.lastErrors = errs
		s.mu.Unlock()

		s.status.Store(int32(StatusFailed))
		s.metrics.restoreDone(resultFailed, time.Since(start))
		s.logger.Warn("restore failed", "project", s.projectName, "errors", len(errs))
		s.host.RestoreFailed(errs)

		return
	}

	if outcome.NoOp {
		// Prior resolved references stay untouched.
		s.status.Store(int32(StatusSucceeded))
		s.metrics.restoreDone(resultNoOp, time.Since(start))

		return
	}

	if ctx.Err() != nil {
		s.canceled(start)

		return
	}

	res, err := assets.Read(assets.PathIn(req.OutputPath), req.PackagesDir, fw.Key())
	if err != nil {
		s.fail(fmt.Errorf("read assets manifest: %w", err), start)

		return
	}

	if ctx.Err() != nil {
		s.canceled(start)

		return
	}

	s.mu.Lock()
	s.lastResolved = res
	s.lastErrors = nil
	s.mu.Unlock()

	s.status.Store(int32(StatusSucceeded))
	s.metrics.restoreDone(resultSucceeded, time.Since(start))
	s.logger.Info("restore completed", "project", s.projectName,
		"framework", fw.Key(), "compile", len(res.Compile), "runtime", len(res.Runtime),
		"elapsed", time.Since(start))
	s.host.RestoreCompleted(res)
}

// fail reports an unexpected attempt error and returns the session to idle.
func (s *Session) fail(err error, start time.Time) {
	s.reporter.Report(err)
	s.logger.Error("restore attempt aborted", "project", s.projectName, "err", err)
	s.metrics.restoreDone(resultError, time.Since(start))
	s.status.Store(int32(StatusIdle))
}

// canceled discards a superseded attempt without publishing anything.
func (s *Session) canceled(start time.Time) {
	s.metrics.restoreDone(resultCanceled, time.Since(start))
	s.status.Store(int32(StatusIdle))
}

// buildRequest assembles the engine request from the attempt snapshot plus
// the registry's current sources and config paths. Managed runtime frameworks
// get the implicit platform dependency appended.
func (s *Session) buildRequest(refs []PackageReference, fw Framework) (*Request, error) {
	sources, err := s.registry.Sources()
	if err != nil {
		return nil, err
	}

	configPaths, err := s.registry.ConfigPaths()
	if err != nil {
		return nil, err
	}

	deps := append([]PackageReference(nil), refs...)

	if pd, ok := fw.PlatformDependency(); ok {
		present := false

		for _, ref := range deps {
			if ref.ID == pd.ID {
				present = true

				break
			}
		}

		if !present {
			deps = append(deps, pd)
		}
	}

	return &Request{
		ProjectName: s.projectName,
		Framework:   fw.Key(),
		OutputPath:  s.outputPath,
		PackagesDir: s.packagesDir,
		ConfigPaths: configPaths,
		Sources:     sources,
		References:  deps,
	}, nil
}

// References returns the current requested reference set in stable order.
func (s *Session) References() []PackageReference {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.refs.snapshot()
}

// Resolved returns the most recently published resolved references. A failed
// or no-op restore leaves the previous value in place.
func (s *Session) Resolved() assets.Resolved {
	s.mu.Lock()
	defer s.mu.Unlock()

	return assets.Resolved{
		Compile: append([]string(nil), s.lastResolved.Compile...),
		Runtime: append([]string(nil), s.lastResolved.Runtime...),
	}
}

// Errors returns the error messages of the last failed restore, if any.
func (s *Session) Errors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.lastErrors...)
}

// IsRestoring reports whether an attempt currently holds the gate.
func (s *Session) IsRestoring() bool { return s.restoring.Load() }

// Status returns the observable session state.
func (s *Session) Status() Status { return Status(s.status.Load()) }

// Close cancels any in-flight attempt and waits for it to release the gate.
func (s *Session) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	// Acquire-release drains the in-flight attempt.
	s.gate.Lock()
	s.gate.Unlock()
}
