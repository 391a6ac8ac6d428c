// Package resolver bridges the externally supplied backend lookups into a
// single "intent → target" call. The lookups themselves (service discovery,
// instance lifecycle) live outside this repo.
package resolver

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	expirable "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/cmux/edge/internal/route"
)

// Lookups holds the three collaborator functions. Each returns a base URL
// for the backend serving the given identifier, or an error if the backend
// is unknown or not ready.
type Lookups struct {
	WorkspaceTarget  func(ctx context.Context, instanceID string) (string, error)
	MorphPortTarget  func(ctx context.Context, scope string, port uint16) (string, error)
	MorphScopeTarget func(ctx context.Context, scope string) (string, error)
}

// Target is a resolved upstream: the base URL requests are copied onto, and
// the scope label threaded through to redirect rewriting.
type Target struct {
	URL   *url.URL
	Scope string
}

// Config configures the bridge.
type Config struct {
	// AllowInsecureUpstream permits http:// targets. Default posture is
	// TLS-only upstreams.
	AllowInsecureUpstream bool
	// CacheTTL enables an expirable LRU of successful resolutions when > 0.
	CacheTTL  time.Duration
	CacheSize int
	// CacheObserver, when set, is called once per cached-path lookup with the
	// intent kind label and whether the cache answered it.
	CacheObserver func(kind string, hit bool)
}

// Bridge resolves route intents against the configured lookups.
type Bridge struct {
	lookups       Lookups
	allowInsecure bool
	cache         *expirable.LRU[string, Target]
	observe       func(kind string, hit bool)
}

// New creates a bridge. All three lookups must be provided.
func New(lookups Lookups, cfg Config) (*Bridge, error) {
	if lookups.WorkspaceTarget == nil || lookups.MorphPortTarget == nil || lookups.MorphScopeTarget == nil {
		return nil, fmt.Errorf("resolver: all three lookups are required")
	}

	b := &Bridge{
		lookups:       lookups,
		allowInsecure: cfg.AllowInsecureUpstream,
		observe:       cfg.CacheObserver,
	}

	if cfg.CacheTTL > 0 {
		size := cfg.CacheSize
		if size <= 0 {
			size = 1024
		}
		b.cache = expirable.NewLRU[string, Target](size, nil, cfg.CacheTTL)
	}

	return b, nil
}

// Resolve maps an intent to its upstream target. Apex and asset intents never
// reach this stage. Lookup failures are surfaced to the caller unchanged and
// never cached; there is no fallback to a different intent.
func (b *Bridge) Resolve(ctx context.Context, intent route.Intent) (Target, error) {
	key := cacheKey(intent)
	if b.cache != nil {
		if t, ok := b.cache.Get(key); ok {
			b.observeCache(intent.Kind.String(), true)
			return t, nil
		}
		b.observeCache(intent.Kind.String(), false)
	}

	var (
		raw   string
		scope string
		err   error
	)

	switch intent.Kind {
	case route.KindWorkspace:
		// The workspace endpoint demultiplexes by header; the port flows only
		// into the injected markers, never into target selection.
		raw, err = b.lookups.WorkspaceTarget(ctx, intent.InstanceID)
		scope = intent.InstanceID
	case route.KindDirectPort:
		raw, err = b.lookups.MorphPortTarget(ctx, intent.ScopeLabel, intent.Port)
		scope = intent.ScopeLabel
	case route.KindScopeDefault:
		raw, err = b.lookups.MorphScopeTarget(ctx, intent.ScopeLabel)
		scope = intent.ScopeLabel
	default:
		return Target{}, fmt.Errorf("resolver: intent %s is not resolvable", intent.Kind)
	}

	if err != nil {
		return Target{}, err
	}
	if raw == "" {
		return Target{}, fmt.Errorf("resolver: empty target for %s scope %q", intent.Kind, scope)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("resolver: invalid target URL: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "https":
	case "http":
		if !b.allowInsecure {
			return Target{}, fmt.Errorf("resolver: insecure target scheme %q for scope %q (allow_insecure_upstream is off)", u.Scheme, scope)
		}
	default:
		return Target{}, fmt.Errorf("resolver: unsupported target scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return Target{}, fmt.Errorf("resolver: target URL has no host")
	}

	t := Target{URL: u, Scope: scope}
	if b.cache != nil {
		b.cache.Add(key, t)
	}
	return t, nil
}

func (b *Bridge) observeCache(kind string, hit bool) {
	if b.observe != nil {
		b.observe(kind, hit)
	}
}

func cacheKey(intent route.Intent) string {
	switch intent.Kind {
	case route.KindWorkspace:
		return "w|" + intent.InstanceID
	case route.KindDirectPort:
		return "p|" + intent.ScopeLabel + "|" + strconv.Itoa(int(intent.Port))
	default:
		return "s|" + intent.ScopeLabel
	}
}
