package restore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/scripthost-io/restorer/internal/assets"
	"github.com/scripthost-io/restorer/internal/feed"
	"github.com/scripthost-io/restorer/internal/search"
)

// fakeEngine returns a scripted outcome and records the requests it saw. A
// non-nil block channel holds the next attempt inside the engine until
// released or canceled; it applies to one call only.
type fakeEngine struct {
	mu       sync.Mutex
	outcome  Outcome
	err      error
	block    chan struct{}
	requests []*Request
}

func (e *fakeEngine) set(outcome Outcome, err error) {
	e.mu.Lock()
	e.outcome, e.err = outcome, err
	e.mu.Unlock()
}

func (e *fakeEngine) Restore(ctx context.Context, req *Request) (Outcome, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	outcome, err, block := e.outcome, e.err, e.block
	e.block = nil
	e.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	}

	if ctx.Err() != nil {
		return Outcome{}, ctx.Err()
	}

	return outcome, err
}

func (e *fakeEngine) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.requests)
}

func (e *fakeEngine) lastRequest() *Request {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.requests) == 0 {
		return nil
	}

	return e.requests[len(e.requests)-1]
}

// recordingHost collects callbacks; completion channels let tests block until
// an attempt settles.
type recordingHost struct {
	mu        sync.Mutex
	completed []assets.Resolved
	failed    [][]string
	searched  [][]search.Summary
	installed []search.Summary

	completedCh chan struct{}
	failedCh    chan struct{}
	searchedCh  chan struct{}
}

func newRecordingHost() *recordingHost {
	return &recordingHost{
		completedCh: make(chan struct{}, 16),
		failedCh:    make(chan struct{}, 16),
		searchedCh:  make(chan struct{}, 16),
	}
}

func (h *recordingHost) RestoreCompleted(res assets.Resolved) {
	h.mu.Lock()
	h.completed = append(h.completed, res)
	h.mu.Unlock()
	h.completedCh <- struct{}{}
}

func (h *recordingHost) RestoreFailed(errs []string) {
	h.mu.Lock()
	h.failed = append(h.failed, errs)
	h.mu.Unlock()
	h.failedCh <- struct{}{}
}

func (h *recordingHost) SearchCompleted(results []search.Summary) {
	h.mu.Lock()
	h.searched = append(h.searched, results)
	h.mu.Unlock()
	h.searchedCh <- struct{}{}
}

func (h *recordingHost) PackageInstalled(pkg search.Summary) {
	h.mu.Lock()
	h.installed = append(h.installed, pkg)
	h.mu.Unlock()
}

func (h *recordingHost) completions() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.completed)
}

type recordingReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingReporter) Report(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.errs)
}

func testRegistry() *feed.Registry {
	src := feed.Source{Name: "test", URL: "mem://test", Enabled: true}

	return feed.NewRegistry(func() ([]feed.Source, []string, error) {
		return []feed.Source{src}, []string{"sources.yaml"}, nil
	}, func(s feed.Source) (feed.Repository, error) {
		return feed.NewMemoryRepository(s), nil
	})
}

// writeSessionManifest places a manifest with one package under the session's
// output dir so a non-no-op success has something to parse.
func writeSessionManifest(t *testing.T, outputDir, frameworkKey string) {
	t.Helper()

	manifest := `{
  "targets": {
    "` + frameworkKey + `": {
      "Foo/1.0.0": {
        "compile": {"lib/foo.dll": {}, "_._": {}},
        "runtime": {"lib/foo.dll": {}}
      }
    }
  }
}`

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(assets.PathIn(outputDir), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestSession(t *testing.T, engine Engine, host Host, reporter Reporter) (*Session, string) {
	t.Helper()

	dir := t.TempDir()
	out := filepath.Join(dir, "obj")

	s, err := NewSession(SessionOptions{
		Registry:    testRegistry(),
		Engine:      engine,
		Host:        host,
		Reporter:    reporter,
		OutputPath:  out,
		PackagesDir: filepath.Join(dir, "packages"),
		Framework:   "net8.0",
	})
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(s.Close)

	return s, out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)

	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", what)
}

func awaitSignal(t *testing.T, ch chan struct{}, what string) {
	t.Helper()

	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestSession_BaselineRestorePublishesResolved(t *testing.T) {
	engine := &fakeEngine{outcome: Outcome{Success: true}}
	host := newRecordingHost()
	session, out := newTestSession(t, engine, host, nil)

	writeSessionManifest(t, out, "net8.0")

	if !session.UpdateReferences(nil) {
		t.Fatal("first-ever update must report a change even for an empty set")
	}

	awaitSignal(t, host.completedCh, "restore completion")

	res := session.Resolved()
	pkgRoot := filepath.Join(filepath.Dir(out), "packages", "Foo", "1.0.0")
	want := filepath.Join(pkgRoot, "lib", "foo.dll")

	if len(res.Compile) != 1 || res.Compile[0] != want {
		t.Fatalf("compile = %v, want [%s]", res.Compile, want)
	}

	if len(res.Runtime) != 1 || res.Runtime[0] != want {
		t.Fatalf("runtime = %v, want [%s]", res.Runtime, want)
	}

	if session.Status() != StatusSucceeded {
		t.Fatalf("status = %s, want succeeded", session.Status())
	}

	if session.IsRestoring() {
		t.Fatal("gate flag still set after completion")
	}
}

func TestSession_ReferenceDiffTriggersRestore(t *testing.T) {
	engine := &fakeEngine{outcome: Outcome{Success: true}}
	host := newRecordingHost()
	session, out := newTestSession(t, engine, host, nil)

	writeSessionManifest(t, out, "net8.0")

	p1 := PackageReference{ID: "P1", Range: ">=1.0.0"}
	p2 := PackageReference{ID: "P2", Range: ">=2.0.0"}

	if !session.UpdateReferences([]PackageReference{p1}) {
		t.Fatal("baseline update must change")
	}

	awaitSignal(t, host.completedCh, "first restore")

	if session.UpdateReferences([]PackageReference{p1}) {
		t.Fatal("identical set must not report a change")
	}

	if got := engine.calls(); got != 1 {
		t.Fatalf("no-change update ran the engine: %d calls, want 1", got)
	}

	if !session.UpdateReferences([]PackageReference{p1, p2}) {
		t.Fatal("adding a reference must report a change")
	}

	awaitSignal(t, host.completedCh, "second restore")

	if got := engine.calls(); got != 2 {
		t.Fatalf("engine ran %d times, want 2", got)
	}

	refs := engine.lastRequest().References
	if len(refs) != 3 { // P1, P2 plus the implicit platform dependency
		t.Fatalf("request references = %+v, want 3 entries", refs)
	}
}

func TestSession_SetTargetFrameworkAlwaysTriggers(t *testing.T) {
	engine := &fakeEngine{outcome: Outcome{Success: true}}
	host := newRecordingHost()
	session, out := newTestSession(t, engine, host, nil)

	writeSessionManifest(t, out, "net8.0")
	session.UpdateReferences(nil)
	awaitSignal(t, host.completedCh, "baseline restore")

	writeSessionManifest(t, out, "net472")

	if err := session.SetTargetFramework("net472"); err != nil {
		t.Fatal(err)
	}

	awaitSignal(t, host.completedCh, "framework restore")

	req := engine.lastRequest()
	if req.Framework != "net472" {
		t.Fatalf("request framework = %s, want net472", req.Framework)
	}

	// .NET Framework targets carry no implicit platform dependency.
	for _, ref := range req.References {
		if ref.ID == "Microsoft.NETCore.App" {
			t.Fatalf("unexpected platform dependency in %+v", req.References)
		}
	}
}

func TestSession_SetTargetFrameworkInvalid(t *testing.T) {
	engine := &fakeEngine{outcome: Outcome{Success: true}}
	session, _ := newTestSession(t, engine, newRecordingHost(), nil)

	if err := session.SetTargetFramework("bogus"); err == nil {
		t.Fatal("expected error for invalid moniker")
	}

	if got := engine.calls(); got != 0 {
		t.Fatalf("invalid moniker triggered %d restores, want 0", got)
	}
}

func TestSession_SingleFlightCancelAndRestart(t *testing.T) {
	block := make(chan struct{})
	engine := &fakeEngine{outcome: Outcome{Success: true}, block: block}
	host := newRecordingHost()
	session, out := newTestSession(t, engine, host, nil)

	writeSessionManifest(t, out, "net8.0")

	session.UpdateReferences([]PackageReference{{ID: "P1", Range: ">=1.0.0"}})

	// first attempt is inside the engine and holding the gate
	waitFor(t, "first attempt to reach the engine", func() bool { return engine.calls() == 1 })

	// superseding trigger cancels it; the blocked engine observes ctx.Done
	session.UpdateReferences([]PackageReference{{ID: "P1", Range: ">=1.0.0"}, {ID: "P2", Range: ">=1.0.0"}})

	awaitSignal(t, host.completedCh, "superseding restore")

	if got := engine.calls(); got != 2 {
		t.Fatalf("engine ran %d times, want 2", got)
	}

	if got := host.completions(); got != 1 {
		t.Fatalf("%d attempts published, want exactly 1", got)
	}

	close(block)
}

func TestSession_FailurePublishesErrorsAndKeepsResolved(t *testing.T) {
	engine := &fakeEngine{outcome: Outcome{Success: true}}
	host := newRecordingHost()
	session, out := newTestSession(t, engine, host, nil)

	writeSessionManifest(t, out, "net8.0")
	session.UpdateReferences(nil)
	awaitSignal(t, host.completedCh, "baseline restore")

	prior := session.Resolved()

	engine.set(Outcome{Success: false, Errors: []string{"NU1101: Foo not found", "NU1202: Bar incompatible"}}, nil)
	session.TriggerRestore()
	awaitSignal(t, host.failedCh, "failure callback")

	host.mu.Lock()
	errs := host.failed[0]
	host.mu.Unlock()

	if len(errs) != 2 || errs[0] != "NU1101: Foo not found" || errs[1] != "NU1202: Bar incompatible" {
		t.Fatalf("failure errors out of order: %v", errs)
	}

	if session.Status() != StatusFailed {
		t.Fatalf("status = %s, want failed", session.Status())
	}

	after := session.Resolved()
	if len(after.Compile) != len(prior.Compile) || after.Compile[0] != prior.Compile[0] {
		t.Fatalf("failed restore mutated resolved references: %v -> %v", prior.Compile, after.Compile)
	}
}

func TestSession_NoOpKeepsResolved(t *testing.T) {
	engine := &fakeEngine{outcome: Outcome{Success: true}}
	host := newRecordingHost()
	session, out := newTestSession(t, engine, host, nil)

	writeSessionManifest(t, out, "net8.0")
	session.UpdateReferences(nil)
	awaitSignal(t, host.completedCh, "baseline restore")

	prior := session.Resolved()

	engine.set(Outcome{Success: true, NoOp: true}, nil)
	session.TriggerRestore()

	waitFor(t, "no-op attempt to settle", func() bool {
		return engine.calls() == 2 && !session.IsRestoring() && session.Status() == StatusSucceeded
	})

	if got := host.completions(); got != 1 {
		t.Fatalf("no-op restore published a completion: %d, want 1", got)
	}

	after := session.Resolved()
	if len(after.Compile) != len(prior.Compile) {
		t.Fatalf("no-op restore mutated resolved references: %v -> %v", prior.Compile, after.Compile)
	}
}

func TestSession_EngineErrorReportedNotPublished(t *testing.T) {
	engine := &fakeEngine{err: errors.New("transport exploded")}
	host := newRecordingHost()
	reporter := &recordingReporter{}
	session, _ := newTestSession(t, engine, host, reporter)

	session.UpdateReferences(nil)

	waitFor(t, "reporter to receive the error", func() bool { return reporter.count() == 1 })
	waitFor(t, "attempt to settle", func() bool { return !session.IsRestoring() })

	if got := host.completions(); got != 0 {
		t.Fatalf("errored attempt published %d completions, want 0", got)
	}

	if session.Status() != StatusIdle {
		t.Fatalf("status = %s, want idle after unexpected error", session.Status())
	}
}

func TestRefSet_Update(t *testing.T) {
	rs := newRefSet()

	if !rs.update(nil) {
		t.Fatal("first update must always change")
	}

	if rs.update(nil) {
		t.Fatal("empty -> empty must not change")
	}

	p1 := PackageReference{ID: "P1", Range: "1.0.0"}

	if !rs.update([]PackageReference{p1}) {
		t.Fatal("addition must change")
	}

	if rs.update([]PackageReference{p1}) {
		t.Fatal("same set must not change")
	}

	if !rs.update(nil) {
		t.Fatal("removal must change")
	}

	// same id, different range is a different reference
	if !rs.update([]PackageReference{{ID: "P1", Range: "2.0.0"}}) {
		t.Fatal("range change must change the set")
	}
}
