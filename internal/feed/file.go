package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	semver "github.com/Masterminds/semver/v3"
)

// FileRepository serves a local feed from a directory containing index.json:
//
//	{"packages": [{"id": "Foo", "versions": ["1.0.0", "2.0.0"]}]}
//
// The index is read once at open time; local feeds are small and rewritten
// wholesale by publishing tools.
type FileRepository struct {
	src Source

	mu    sync.RWMutex
	order []string            // ids in index order
	index map[string][]string // lowercase id -> versions
	names map[string]string   // lowercase id -> display id
}

type fileIndex struct {
	Packages []struct {
		ID       string   `json:"id"`
		Versions []string `json:"versions"`
	} `json:"packages"`
}

// NewFileRepository loads the index for a file-protocol source whose URL is a
// directory path.
func NewFileRepository(src Source) (*FileRepository, error) {
	b, err := os.ReadFile(filepath.Join(src.URL, "index.json"))
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.Name, err)
	}

	var idx fileIndex
	if err := json.Unmarshal(b, &idx); err != nil {
		return nil, fmt.Errorf("source %s: parse index: %w", src.Name, err)
	}

	fr := &FileRepository{
		src:   src,
		index: make(map[string][]string, len(idx.Packages)),
		names: make(map[string]string, len(idx.Packages)),
	}

	for _, p := range idx.Packages {
		k := strings.ToLower(p.ID)
		if _, ok := fr.index[k]; ok {
			continue
		}

		fr.order = append(fr.order, k)
		fr.index[k] = p.Versions
		fr.names[k] = p.ID
	}

	return fr, nil
}

func (r *FileRepository) Source() Source { return r.src }

// Search matches packages whose id contains the query, case-insensitively.
// An empty query matches everything.
func (r *FileRepository) Search(ctx context.Context, query string, opts SearchOptions) ([]PackageInfo, error) {
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

		v, ok := r.latest(k, opts.Prerelease)
		if !ok {
			continue
		}

		out = append(out, PackageInfo{ID: r.names[k], Version: v})

		if opts.Take > 0 && len(out) >= opts.Take {
			break
		}
	}

	return out, nil
}

// latest picks the highest parseable version, optionally considering
// prereleases. Caller holds the read lock.
func (r *FileRepository) latest(key string, includePrerelease bool) (string, bool) {
	var best *semver.Version

	var bestRaw string

	for _, vs := range r.index[key] {
		sv, err := semver.NewVersion(vs)
		if err != nil {
			continue
		}

		if !includePrerelease && sv.Prerelease() != "" {
			continue
		}

		if best == nil || sv.GreaterThan(best) {
			best, bestRaw = sv, vs
		}
	}

	return bestRaw, best != nil
}

func (r *FileRepository) Versions(ctx context.Context, id string, includePrerelease bool) ([]*semver.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	raw, ok := r.index[strings.ToLower(id)]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	out := make([]*semver.Version, 0, len(raw))

	for _, vs := range raw {
		sv, err := semver.NewVersion(vs)
		if err != nil {
			continue
		}

		if !includePrerelease && sv.Prerelease() != "" {
			continue
		}

		out = append(out, sv)
	}

	return out, nil
}
