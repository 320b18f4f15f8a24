// Package search federates package queries across the configured sources.
//
// Sources are queried strictly in priority order and the first source that
// yields results wins: a local or private feed earlier in the list shadows
// the public ones after it. Version lists for the winning result set are
// hydrated concurrently before the results are returned.
package search

import (
	"context"
	"sort"
	"strings"

	semver "github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/scripthost-io/restorer/internal/feed"
)

// pageSize caps the result count requested from each source. Exact-match
// narrowing runs over this first page only; a package beyond it is reported
// as not found even if the source knows it.
const pageSize = 50

// Summary is one search hit: the package id, the version the feed reported
// for the hit, and the full hydrated version list.
//
// Versions ordering: the latest non-prerelease version first (if any),
// followed by all remaining versions in descending order. Prerelease versions
// appear only when the search requested them.
type Summary struct {
	ID       string
	Version  *semver.Version
	Versions []*semver.Version
}

// Federator runs federated searches over a source registry.
type Federator struct {
	registry *feed.Registry
	logger   *log.Logger
}

// NewFederator builds a federator. A nil logger falls back to log.Default().
func NewFederator(registry *feed.Registry, logger *log.Logger) *Federator {
	if logger == nil {
		logger = log.Default()
	}

	return &Federator{registry: registry, logger: logger}
}

// Search queries sources in registry order and returns summaries from the
// first source with a non-empty result set; later sources are never queried.
// With exactMatch set, each source's page is narrowed to the single entry
// whose id equals the query case-insensitively. A source failing with a
// recoverable error is skipped. Registry initialization failures propagate.
func (f *Federator) Search(ctx context.Context, query string, includePrerelease, exactMatch bool) ([]Summary, error) {
	repos, err := f.registry.Repositories()
	if err != nil {
		return nil, err
	}

	opts := feed.SearchOptions{Take: pageSize, Prerelease: includePrerelease}

	for _, repo := range repos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		infos, err := repo.Search(ctx, query, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			f.logger.Debug("skipping source after search error",
				"source", repo.Source().Name, "err", err)

			continue
		}

		if exactMatch {
			infos = narrowExact(infos, query)
		}

		if len(infos) == 0 {
			continue
		}

		return f.hydrate(ctx, repo, infos, includePrerelease)
	}

	return nil, nil
}

// narrowExact keeps the single entry whose id matches the query
// case-insensitively, or nothing.
func narrowExact(infos []feed.PackageInfo, query string) []feed.PackageInfo {
	for _, info := range infos {
		if strings.EqualFold(info.ID, query) {
			return []feed.PackageInfo{info}
		}
	}

	return nil
}

// hydrate fetches the full version list for every matched package, all
// concurrently, and joins before returning.
func (f *Federator) hydrate(ctx context.Context, repo feed.Repository, infos []feed.PackageInfo, includePrerelease bool) ([]Summary, error) {
	out := make([]Summary, len(infos))

	g, gctx := errgroup.WithContext(ctx)

	for i, info := range infos {
		i, info := i, info

		g.Go(func() error {
			vers, err := repo.Versions(gctx, info.ID, includePrerelease)
			if err != nil {
				return err
			}

			sum := Summary{ID: info.ID, Versions: OrderVersions(vers)}

			if sv, err := semver.NewVersion(info.Version); err == nil {
				sum.Version = sv
			} else if len(sum.Versions) > 0 {
				sum.Version = sum.Versions[0]
			}

			out[i] = sum

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// OrderVersions sorts versions descending and promotes the latest
// non-prerelease version, if any, to the front. The input slice is not
// modified.
func OrderVersions(in []*semver.Version) []*semver.Version {
	vs := append([]*semver.Version(nil), in...)
	sort.Slice(vs, func(i, j int) bool { return vs[i].GreaterThan(vs[j]) })

	for i, sv := range vs {
		if sv.Prerelease() != "" {
			continue
		}

		if i > 0 {
			stable := vs[i]
			copy(vs[1:i+1], vs[:i])
			vs[0] = stable
		}

		break
	}

	return vs
}
