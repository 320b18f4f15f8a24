package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	semver "github.com/Masterminds/semver/v3"
	"github.com/quic-go/quic-go/http3"
	"golang.org/x/sync/singleflight"
)

// TokenEnv names the environment variable consulted for a Bearer token when
// the source config carries none.
const TokenEnv = "RESTORER_FEED_TOKEN"

// HTTPRepository talks to a remote feed over HTTP(S), or HTTP/3 when the
// source asks for it. Version lookups are coalesced with singleflight and
// cached with a short TTL plus ETag revalidation.
type HTTPRepository struct {
	src    Source
	base   string
	client *http.Client
	token  string

	mu    sync.RWMutex
	vcach map[string]versionCacheEntry
	ttl   time.Duration
	sf    singleflight.Group
}

type versionCacheEntry struct {
	at       time.Time
	versions []string
	etag     string
}

// NewHTTPRepository creates a client for a remote source. The Bearer token
// comes from the source config, falling back to RESTORER_FEED_TOKEN.
func NewHTTPRepository(src Source) *HTTPRepository {
	tok := strings.TrimSpace(src.Token)
	if tok == "" {
		tok = strings.TrimSpace(os.Getenv(TokenEnv))
	}

	var rt http.RoundTripper
	if src.Protocol == ProtocolHTTP3 {
		rt = &http3.Transport{}
	} else {
		rt = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          128,
			MaxIdleConnsPerHost:   64,
			IdleConnTimeout:       120 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}

	return &HTTPRepository{
		src:    src,
		base:   strings.TrimRight(src.URL, "/"),
		client: &http.Client{Transport: rt, Timeout: 30 * time.Second},
		token:  tok,
		vcach:  make(map[string]versionCacheEntry),
		ttl:    30 * time.Second,
	}
}

func (r *HTTPRepository) Source() Source { return r.src }

func (r *HTTPRepository) doWithRetry(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < 3; attempt++ {
		resp, err := r.client.Do(req)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
		// backoff: 100ms, 200ms, 400ms.
		select {
		case <-time.After(time.Duration(100*(1<<attempt)) * time.Millisecond):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}

	return nil, lastErr
}

// Search queries the feed's query endpoint. The page size is bounded by
// opts.Take; the feed may return fewer.
func (r *HTTPRepository) Search(ctx context.Context, query string, opts SearchOptions) ([]PackageInfo, error) {
	q := url.Values{}
	q.Set("q", query)

	if opts.Take > 0 {
		q.Set("take", strconv.Itoa(opts.Take))
	}

	q.Set("prerelease", strconv.FormatBool(opts.Prerelease))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+"/query?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, err
	}

	r.authorize(req)

	resp, err := r.doWithRetry(req)
	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)

		return nil, fmt.Errorf("source %s: search failed: %s", r.src.Name, strings.TrimSpace(string(body)))
	}

	var out struct {
		Data []PackageInfo `json:"data"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	if opts.Take > 0 && len(out.Data) > opts.Take {
		out.Data = out.Data[:opts.Take]
	}

	return out.Data, nil
}

// Versions lists a package's versions from the feed, filtered for prerelease
// on the client side so the cache can hold one entry per package.
func (r *HTTPRepository) Versions(ctx context.Context, id string, includePrerelease bool) ([]*semver.Version, error) {
	raw, err := r.rawVersions(ctx, id)
	if err != nil {
		return nil, err
	}

	out := make([]*semver.Version, 0, len(raw))

	for _, vs := range raw {
		sv, err := semver.NewVersion(vs)
		if err != nil {
			// Feeds occasionally carry unparseable legacy versions; skip them.
			continue
		}

		if !includePrerelease && sv.Prerelease() != "" {
			continue
		}

		out = append(out, sv)
	}

	return out, nil
}

func (r *HTTPRepository) rawVersions(ctx context.Context, id string) ([]string, error) {
	r.mu.RLock()
	if c, ok := r.vcach[id]; ok && time.Since(c.at) < r.ttl {
		r.mu.RUnlock()

		return c.versions, nil
	}
	r.mu.RUnlock()

	v, err, _ := r.sf.Do("versions:"+id, func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+"/versions?id="+url.QueryEscape(id), http.NoBody)
		if err != nil {
			return nil, err
		}

		r.authorize(req)

		// conditional request with ETag.
		r.mu.RLock()
		if c, ok := r.vcach[id]; ok && c.etag != "" {
			req.Header.Set("If-None-Match", c.etag)
		}
		r.mu.RUnlock()

		resp, err := r.doWithRetry(req)
		if err != nil {
			return nil, err
		}

		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusNotModified:
			r.mu.Lock()
			c := r.vcach[id]
			c.at = time.Now()
			r.vcach[id] = c
			r.mu.Unlock()

			return c.versions, nil
		case http.StatusNotFound:
			return nil, ErrNotFound
		case http.StatusOK:
		default:
			body, _ := io.ReadAll(resp.Body)

			return nil, fmt.Errorf("source %s: versions failed: %s", r.src.Name, strings.TrimSpace(string(body)))
		}

		var out struct {
			Versions []string `json:"versions"`
		}

		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.vcach[id] = versionCacheEntry{at: time.Now(), versions: out.Versions, etag: resp.Header.Get("ETag")}
		r.mu.Unlock()

		return out.Versions, nil
	})
	if err != nil {
		return nil, err
	}

	return v.([]string), nil
}

func (r *HTTPRepository) authorize(req *http.Request) {
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
}
