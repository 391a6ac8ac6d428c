package config

import (
	"time"
)

// Config represents the complete edge router configuration.
type Config struct {
	Listen        ListenConfig        `yaml:"listen"`
	Domain        DomainConfig        `yaml:"domain"`
	Upstreams     UpstreamConfig      `yaml:"upstreams"`
	Proxy         ProxyConfig         `yaml:"proxy"`
	Rewrite       RewriteConfig       `yaml:"rewrite"`
	CORS          CORSConfig          `yaml:"cors"`
	ServiceWorker ServiceWorkerConfig `yaml:"service_worker"`
	ResolverCache ResolverCacheConfig `yaml:"resolver_cache"`
	Logging       LoggingConfig       `yaml:"logging"`
	Admin         AdminConfig         `yaml:"admin"`
}

// ListenConfig configures the public HTTP listener.
type ListenConfig struct {
	Address           string        `yaml:"address"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
}

// DomainConfig describes the wildcard public domain.
type DomainConfig struct {
	// PublicSuffix is the apex domain all proxied hostnames hang off of,
	// e.g. "cmux.sh" for workspace-3000-vm.cmux.sh.
	PublicSuffix string `yaml:"public_suffix"`
}

// UpstreamConfig holds URL templates the binary turns into backend lookups.
// Placeholders: {instance} in workspace_url, {scope} and {port} in the
// others. Embedders that link the edge as a library inject their own lookups
// and leave this empty.
type UpstreamConfig struct {
	WorkspaceURL string `yaml:"workspace_url"`
	PortURL      string `yaml:"port_url"`
	ScopeURL     string `yaml:"scope_url"`
}

// ProxyConfig configures the upstream forwarder.
type ProxyConfig struct {
	// RequestTimeout bounds resolver lookups plus the upstream round-trip.
	// WebSocket connections are exempt once upgraded.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	// AllowInsecureUpstream permits resolvers to return http:// targets.
	// Defaults to false; only local/integration setups should enable it.
	AllowInsecureUpstream bool `yaml:"allow_insecure_upstream"`
	MaxIdleConns          int  `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost   int  `yaml:"max_idle_conns_per_host"`
}

// RewriteConfig bounds the buffering rewrite rules.
type RewriteConfig struct {
	// MaxBufferBytes caps how much of an HTML or JavaScript body is buffered
	// for injection. Larger documents are relayed unmodified.
	MaxBufferBytes int64 `yaml:"max_buffer_bytes"`
}

// CORSConfig configures the special-port CORS policy.
type CORSConfig struct {
	// SpecialPorts always receive wildcard CORS regardless of what the
	// upstream response carries.
	SpecialPorts []uint16 `yaml:"special_ports"`
	// EmbedOrigins replaces any frame-ancestors CSP directive on special
	// ports so the dashboard can embed the proxied service.
	EmbedOrigins []string `yaml:"embed_origins"`
	MaxAge       int      `yaml:"max_age"`
}

// ServiceWorkerConfig configures the fixed static asset.
type ServiceWorkerConfig struct {
	// MaxAge is the Cache-Control max-age for /proxy-sw.js, in seconds.
	MaxAge int `yaml:"max_age"`
}

// ResolverCacheConfig configures the resolved-target cache.
type ResolverCacheConfig struct {
	// TTL of 0 disables caching.
	TTL  time.Duration `yaml:"ttl"`
	Size int           `yaml:"size"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// AdminConfig configures the optional admin listener (metrics, health).
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen: ListenConfig{
			Address:           ":8080",
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      0, // streaming and websockets manage their own lifetimes
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
		},
		Proxy: ProxyConfig{
			RequestTimeout:      30 * time.Second,
			DialTimeout:         10 * time.Second,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
		},
		Rewrite: RewriteConfig{
			MaxBufferBytes: 4 << 20,
		},
		CORS: CORSConfig{
			SpecialPorts: []uint16{39378},
			MaxAge:       86400,
		},
		ServiceWorker: ServiceWorkerConfig{
			MaxAge: 60,
		},
		ResolverCache: ResolverCacheConfig{
			TTL:  2 * time.Second,
			Size: 1024,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Admin: AdminConfig{
			Address: ":9090",
		},
	}
}
