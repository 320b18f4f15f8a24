package feed

// Protocol selects the transport used to talk to a source.
const (
	ProtocolHTTP  = "http"
	ProtocolHTTP3 = "http3"
	ProtocolFile  = "file"
)

// Source is one configured package feed. Sources are value types: two sources
// are the same source iff all fields are equal, and the handle cache is keyed
// accordingly. Order within a source list is priority order.
type Source struct {
	Name     string `yaml:"name" json:"name"`
	URL      string `yaml:"url" json:"url"`
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Protocol string `yaml:"protocol,omitempty" json:"protocol,omitempty"`
	Token    string `yaml:"token,omitempty" json:"token,omitempty"`
}

// key returns the cache key for the handle cache. Equality of key implies
// equality of source for caching purposes.
func (s Source) key() string {
	return s.Name + "\x00" + s.URL + "\x00" + s.Protocol
}

// DedupeSources removes duplicate sources (same URL), keeping the first
// occurrence so that priority order is preserved.
func DedupeSources(in []Source) []Source {
	seen := make(map[string]bool, len(in))
	out := make([]Source, 0, len(in))

	for _, s := range in {
		if seen[s.URL] {
			continue
		}

		seen[s.URL] = true
		out = append(out, s)
	}

	return out
}
