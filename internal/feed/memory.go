package feed

import (
	"context"
	"sort"
	"strings"
	"sync"

	semver "github.com/Masterminds/semver/v3"
)

// MemoryRepository is an in-process feed. It backs tests and ad-hoc local
// feeds wired through a custom Opener.
type MemoryRepository struct {
	src Source

	mu    sync.RWMutex
	order []string
	index map[string][]*semver.Version
	names map[string]string
}

// NewMemoryRepository constructs an empty in-process feed for a source.
func NewMemoryRepository(src Source) *MemoryRepository {
	return &MemoryRepository{
		src:   src,
		index: make(map[string][]*semver.Version),
		names: make(map[string]string),
	}
}

func (r *MemoryRepository) Source() Source { return r.src }

// Publish registers a package version. Unparseable versions are rejected by
// semver.NewVersion at the call site; Publish takes parsed versions only.
func (r *MemoryRepository) Publish(id string, versions ...*semver.Version) {
	k := strings.ToLower(id)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[k]; !ok {
		r.order = append(r.order, k)
		r.names[k] = id
	}

	r.index[k] = append(r.index[k], versions...)
	sort.Sort(semver.Collection(r.index[k]))
}

func (r *MemoryRepository) Search(ctx context.Context, query string, opts SearchOptions) ([]PackageInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := strings.ToLower(query)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []PackageInfo

	for _, k := range r.order {
		if q != "" && !strings.Contains(k, q) {
			continue
		}

		var best *semver.Version

		for _, sv := range r.index[k] {
			if !opts.Prerelease && sv.Prerelease() != "" {
				continue
			}

			if best == nil || sv.GreaterThan(best) {
				best = sv
			}
		}

		if best == nil {
			continue
		}

		out = append(out, PackageInfo{ID: r.names[k], Version: best.Original()})

		if opts.Take > 0 && len(out) >= opts.Take {
			break
		}
	}

	return out, nil
}

func (r *MemoryRepository) Versions(ctx context.Context, id string, includePrerelease bool) ([]*semver.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	vers, ok := r.index[strings.ToLower(id)]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	out := make([]*semver.Version, 0, len(vers))

	for _, sv := range vers {
		if !includePrerelease && sv.Prerelease() != "" {
			continue
		}

		out = append(out, sv)
	}

	return out, nil
}
