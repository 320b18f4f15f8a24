package feed

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Opener constructs a repository handle for a source. Opening may perform
// network-capable client construction; it must not block on I/O.
type Opener func(Source) (Repository, error)

// DefaultOpener opens HTTP(S) and filesystem-backed sources.
func DefaultOpener(src Source) (Repository, error) {
	switch src.Protocol {
	case ProtocolFile:
		return NewFileRepository(src)
	case ProtocolHTTP, ProtocolHTTP3, "":
		return NewHTTPRepository(src), nil
	default:
		return nil, fmt.Errorf("source %s: unknown protocol %q", src.Name, src.Protocol)
	}
}

// Registry owns the ordered source list and a process-wide cache of one
// repository handle per distinct source. The source list is loaded lazily on
// first use; a load failure is captured once and returned on every subsequent
// call, leaving the registry unusable.
type Registry struct {
	load func() ([]Source, []string, error)
	open Opener

	loadOnce    sync.Once
	sources     []Source
	configPaths []string
	loadErr     error

	mu      sync.RWMutex
	handles map[string]Repository
	sf      singleflight.Group
}

// NewRegistry builds a registry over an explicit loader. The loader runs at
// most once, on first use.
func NewRegistry(load func() ([]Source, []string, error), open Opener) *Registry {
	if open == nil {
		open = DefaultOpener
	}

	return &Registry{load: load, open: open, handles: make(map[string]Repository)}
}

// NewConfigRegistry builds a registry that loads its sources from the given
// config files, merged in order with first-URL-wins de-duplication.
func NewConfigRegistry(open Opener, configPaths ...string) *Registry {
	paths := append([]string(nil), configPaths...)

	return NewRegistry(func() ([]Source, []string, error) {
		srcs, err := LoadSources(paths...)

		return srcs, paths, err
	}, open)
}

func (r *Registry) ensureLoaded() error {
	r.loadOnce.Do(func() {
		r.sources, r.configPaths, r.loadErr = r.load()
	})

	return r.loadErr
}

// Sources returns the configured sources in priority order, enabled or not.
func (r *Registry) Sources() ([]Source, error) {
	if err := r.ensureLoaded(); err != nil {
		return nil, err
	}

	return append([]Source(nil), r.sources...), nil
}

// ConfigPaths returns the config files the source list was loaded from.
func (r *Registry) ConfigPaths() ([]string, error) {
	if err := r.ensureLoaded(); err != nil {
		return nil, err
	}

	return append([]string(nil), r.configPaths...), nil
}

// Repositories returns one handle per enabled source, in configured order.
func (r *Registry) Repositories() ([]Repository, error) {
	if err := r.ensureLoaded(); err != nil {
		return nil, err
	}

	out := make([]Repository, 0, len(r.sources))

	for _, src := range r.sources {
		if !src.Enabled {
			continue
		}

		h, err := r.Handle(src)
		if err != nil {
			return nil, err
		}

		out = append(out, h)
	}

	return out, nil
}

// Handle returns the repository handle for a source, constructing it on first
// use. Repeated calls with an equal source return the same handle instance;
// concurrent first calls for the same source construct exactly one handle.
func (r *Registry) Handle(src Source) (Repository, error) {
	key := src.key()

	r.mu.RLock()
	h, ok := r.handles[key]
	r.mu.RUnlock()

	if ok {
		return h, nil
	}

	v, err, _ := r.sf.Do(key, func() (any, error) {
		// Re-check under the group: a winner may have stored the handle
		// between the fast path and the singleflight call.
		r.mu.RLock()
		h, ok := r.handles[key]
		r.mu.RUnlock()

		if ok {
			return h, nil
		}

		h, err := r.open(src)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.handles[key] = h
		r.mu.Unlock()

		return h, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(Repository), nil
}
