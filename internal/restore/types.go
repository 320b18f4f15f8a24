// Package restore drives the restore engine for a single ephemeral project:
// it tracks the requested package references and target framework, runs
// cancelable single-flight restore attempts, and surfaces resolved artifact
// paths to the host.
package restore

import (
	"context"

	"github.com/scripthost-io/restorer/internal/assets"
	"github.com/scripthost-io/restorer/internal/feed"
	"github.com/scripthost-io/restorer/internal/search"
)

// PackageReference is a requested dependency: a package id plus a version
// range expression. References compare by value; the session's reference set
// is keyed on the full struct.
type PackageReference struct {
	ID    string `json:"id"`
	Range string `json:"range"`
}

// Request is the specification handed to the restore engine for one attempt.
// It is built fresh per attempt from a snapshot of session state and never
// mutated afterwards.
type Request struct {
	ProjectName string             `json:"projectName"`
	Framework   string             `json:"framework"`
	OutputPath  string             `json:"outputPath"`
	PackagesDir string             `json:"packagesDir"`
	ConfigPaths []string           `json:"configPaths,omitempty"`
	Sources     []feed.Source      `json:"sources"`
	References  []PackageReference `json:"references"`
}

// Outcome is the engine's verdict for one restore attempt.
type Outcome struct {
	Success bool     `json:"success"`
	NoOp    bool     `json:"noop"`
	Errors  []string `json:"errors,omitempty"`
}

// CombineOutcomes aggregates sub-restore outcomes: success means all
// succeeded, no-op means all were no-ops, and errors concatenate in
// sub-restore order. An empty input is a successful no-op.
func CombineOutcomes(outcomes []Outcome) Outcome {
	agg := Outcome{Success: true, NoOp: true}

	for _, o := range outcomes {
		agg.Success = agg.Success && o.Success
		agg.NoOp = agg.NoOp && o.NoOp
		agg.Errors = append(agg.Errors, o.Errors...)
	}

	return agg
}

// Engine resolves a request into installed packages and writes the assets
// manifest under the request's output path. Implementations must honor the
// context promptly at every network and disk suspension point.
type Engine interface {
	Restore(ctx context.Context, req *Request) (Outcome, error)
}

// Host receives completion callbacks. Callbacks run on background goroutines;
// the host is responsible for marshaling onto its interaction thread.
type Host interface {
	// RestoreCompleted fires after a successful non-no-op restore.
	RestoreCompleted(res assets.Resolved)
	// RestoreFailed fires when the engine reports failure, with its ordered
	// error messages.
	RestoreFailed(errs []string)
	// SearchCompleted fires with the (possibly empty) results of the most
	// recent search.
	SearchCompleted(results []search.Summary)
	// PackageInstalled fires when an install request has been applied to the
	// reference set.
	PackageInstalled(pkg search.Summary)
}

// Reporter receives unexpected non-cancellation errors for out-of-band
// telemetry. It never affects control flow.
type Reporter interface {
	Report(err error)
}

type nopReporter struct{}

func (nopReporter) Report(error) {}

type nopHost struct{}

func (nopHost) RestoreCompleted(assets.Resolved) {}
func (nopHost) RestoreFailed([]string)           {}
func (nopHost) SearchCompleted([]search.Summary) {}
func (nopHost) PackageInstalled(search.Summary)  {}
