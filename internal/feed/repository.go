package feed

import (
	"context"
	"errors"

	semver "github.com/Masterminds/semver/v3"
)

var (
	// ErrNotFound is returned when a package is unknown to a repository.
	ErrNotFound = errors.New("not found")
)

// PackageInfo is one row of a search result: the package identifier and the
// version the feed considers current for it.
type PackageInfo struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}

// SearchOptions bounds a repository search.
type SearchOptions struct {
	// Take caps the number of results a single query may return.
	Take int
	// Prerelease includes prerelease packages in the result.
	Prerelease bool
}

// Repository is a live handle to one package source. Implementations must be
// safe for concurrent use; all calls honor the passed context.
type Repository interface {
	// Source returns the source this repository was opened for.
	Source() Source
	// Search queries the feed for packages matching the query string.
	Search(ctx context.Context, query string, opts SearchOptions) ([]PackageInfo, error)
	// Versions lists all known versions of a package. Prerelease versions are
	// included only when requested. Order is unspecified; callers sort.
	Versions(ctx context.Context, id string, includePrerelease bool) ([]*semver.Version, error)
}
