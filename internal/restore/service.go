package restore

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/scripthost-io/restorer/internal/search"
)

// Service is the host-facing facade: it pairs a restore session with a search
// federator and exposes the editing-session commands. Search text changes
// cancel the previous search the same way restore triggers cancel the
// previous attempt.
type Service struct {
	session   *Session
	federator *search.Federator
	host      Host
	reporter  Reporter
	logger    *log.Logger
	metrics   *Metrics

	mu                sync.Mutex // guards the search state below
	searchCancel      context.CancelFunc
	searchText        string
	includePrerelease bool
	exactMatch        bool
}

// NewService wires a session and federator behind one command surface. The
// session's host, reporter and metrics are reused for search notifications.
func NewService(session *Session, federator *search.Federator) (*Service, error) {
	if session == nil {
		return nil, errors.New("restore: session is required")
	}

	if federator == nil {
		return nil, errors.New("restore: federator is required")
	}

	return &Service{
		session:   session,
		federator: federator,
		host:      session.host,
		reporter:  session.reporter,
		logger:    session.logger,
		metrics:   session.metrics,
	}, nil
}

// Session exposes the underlying restore session.
func (s *Service) Session() *Session { return s.session }

// UpdateReferences replaces the requested reference set; a change triggers a
// restore.
func (s *Service) UpdateReferences(refs []PackageReference) bool {
	return s.session.UpdateReferences(refs)
}

// SetTargetFramework changes the target framework and always triggers a
// restore.
func (s *Service) SetTargetFramework(moniker string) error {
	return s.session.SetTargetFramework(moniker)
}

// SetSearchText starts a fresh federated search, superseding any in-flight
// one. Results arrive via the host's SearchCompleted callback.
func (s *Service) SetSearchText(text string) {
	s.mu.Lock()
	s.searchText = text
	s.startSearchLocked()
	s.mu.Unlock()
}

// SetIncludePrerelease toggles prerelease inclusion and re-runs the current
// search.
func (s *Service) SetIncludePrerelease(include bool) {
	s.mu.Lock()
	s.includePrerelease = include
	s.startSearchLocked()
	s.mu.Unlock()
}

// SetExactMatch toggles exact-match narrowing and re-runs the current search.
func (s *Service) SetExactMatch(exact bool) {
	s.mu.Lock()
	s.exactMatch = exact
	s.startSearchLocked()
	s.mu.Unlock()
}

// startSearchLocked swaps the search cancellation context and schedules the
// query on a background goroutine. Caller holds s.mu.
func (s *Service) startSearchLocked() {
	if s.searchCancel != nil {
		s.searchCancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.searchCancel = cancel

	text, include, exact := s.searchText, s.includePrerelease, s.exactMatch

	go s.runSearch(ctx, text, include, exact)
}

func (s *Service) runSearch(ctx context.Context, text string, includePrerelease, exactMatch bool) {
	results, err := s.federator.Search(ctx, text, includePrerelease, exactMatch)

	if ctx.Err() != nil {
		// Superseded; the fresher search publishes instead.
		return
	}

	if err != nil {
		// A failed search is indistinguishable from an empty one for the
		// host; the error goes out of band.
		s.logger.Debug("search failed", "query", text, "err", err)
		s.reporter.Report(err)
		s.metrics.searchDone(resultError)
		s.host.SearchCompleted(nil)

		return
	}

	s.metrics.searchDone(resultSucceeded)
	s.host.SearchCompleted(results)
}

// Install adds an exact-version reference for the selected package and
// triggers a restore. The version is the summary's reported version, falling
// back to the newest hydrated one.
func (s *Service) Install(pkg search.Summary) error {
	ver := pkg.Version
	if ver == nil && len(pkg.Versions) > 0 {
		ver = pkg.Versions[0]
	}

	if ver == nil {
		return errors.New("restore: package summary carries no version")
	}

	ref := PackageReference{ID: pkg.ID, Range: "=" + ver.String()}
	refs := append(s.session.References(), ref)

	s.session.UpdateReferences(refs)
	s.host.PackageInstalled(pkg)

	return nil
}

// Close cancels in-flight search and restore work.
func (s *Service) Close() {
	s.mu.Lock()
	if s.searchCancel != nil {
		s.searchCancel()
	}
	s.mu.Unlock()

	s.session.Close()
}
