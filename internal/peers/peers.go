// Package peers keeps the discovered-peer list and resolves peer display names.
package peers

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Peer is one discovered address and its resolved name.
type Peer struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// Directory is the ordered, session-scoped list of peers found by the current scan.
type Directory struct {
	peers []Peer
}

// Reset clears the list at the start of a scan.
func (d *Directory) Reset() { d.peers = nil }

// Add appends p.
func (d *Directory) Add(p Peer) { d.peers = append(d.peers, p) }

// SetName records the resolved name for address. It reports false when address is unknown.
func (d *Directory) SetName(address, name string) bool {
	for i := range d.peers {
		if d.peers[i].Address == address {
			d.peers[i].Name = name
			return true
		}
	}
	return false
}

// List returns a copy in discovery order.
func (d *Directory) List() []Peer { return append([]Peer(nil), d.peers...) }

// Resolver looks up the display name a peer advertises.
type Resolver interface {
	Resolve(ctx context.Context, address string, port int) string
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, address string, port int) string

func (f ResolverFunc) Resolve(ctx context.Context, address string, port int) string {
	return f(ctx, address, port)
}

const maxNameBytes = 256

const cleanupInterval = 10 * time.Minute

// HTTPResolver fetches http://<address>:<port>/name and caches successful answers.
type HTTPResolver struct {
	client *http.Client
	cache  *gocache.Cache
}

// NewHTTPResolver builds a resolver with a per-request timeout and cache TTL.
func NewHTTPResolver(timeout, ttl time.Duration) *HTTPResolver {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &HTTPResolver{
		client: &http.Client{Timeout: timeout},
		cache:  gocache.New(ttl, cleanupInterval),
	}
}

// Resolve returns the advertised name, or "" when the lookup fails.
func (r *HTTPResolver) Resolve(ctx context.Context, address string, port int) string {
	key := net.JoinHostPort(address, strconv.Itoa(port))
	if v, ok := r.cache.Get(key); ok {
		if name, ok := v.(string); ok {
			return name
		}
	}

	name, err := r.fetch(ctx, key)
	if err != nil {
		return ""
	}
	r.cache.SetDefault(key, name)
	return name
}

func (r *HTTPResolver) fetch(ctx context.Context, hostport string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+hostport+"/name", nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("name lookup %s: status %d", hostport, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxNameBytes))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// Forget drops cached names, e.g. after the target port changes.
func (r *HTTPResolver) Forget() {
	r.cache.Flush()
}
