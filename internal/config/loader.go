package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"
)

// Loader handles configuration loading and parsing.
type Loader struct {
	envPattern *regexp.Regexp
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPattern: regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`),
	}
}

// Load reads and parses a configuration file.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return l.Parse(data)
}

// Parse parses configuration from YAML bytes.
func (l *Loader) Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := l.expandEnvVars(string(data))

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := l.validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} with environment variable values.
func (l *Loader) expandEnvVars(input string) string {
	return l.envPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match // Keep original if env var not set
	})
}

// validate checks configuration for errors.
func (l *Loader) validate(cfg *Config) error {
	if cfg.Listen.Address == "" {
		return fmt.Errorf("listen.address is required")
	}
	if _, _, err := net.SplitHostPort(cfg.Listen.Address); err != nil {
		return fmt.Errorf("listen.address %q: %w", cfg.Listen.Address, err)
	}

	suffix := cfg.Domain.PublicSuffix
	if suffix == "" {
		return fmt.Errorf("domain.public_suffix is required")
	}
	if strings.HasPrefix(suffix, ".") || strings.HasSuffix(suffix, ".") {
		return fmt.Errorf("domain.public_suffix %q must not have leading or trailing dots", suffix)
	}
	if net.ParseIP(suffix) != nil {
		return fmt.Errorf("domain.public_suffix %q must be a domain name, not an IP", suffix)
	}
	// Subdomain labels are matched case-insensitively against a lowered suffix.
	cfg.Domain.PublicSuffix = strings.ToLower(suffix)

	up := cfg.Upstreams
	if up.WorkspaceURL != "" || up.PortURL != "" || up.ScopeURL != "" {
		if up.WorkspaceURL == "" || up.PortURL == "" || up.ScopeURL == "" {
			return fmt.Errorf("upstreams: workspace_url, port_url, and scope_url must all be set together")
		}
		if !strings.Contains(up.WorkspaceURL, "{instance}") {
			return fmt.Errorf("upstreams.workspace_url must contain {instance}")
		}
		if !strings.Contains(up.PortURL, "{scope}") || !strings.Contains(up.PortURL, "{port}") {
			return fmt.Errorf("upstreams.port_url must contain {scope} and {port}")
		}
		if !strings.Contains(up.ScopeURL, "{scope}") {
			return fmt.Errorf("upstreams.scope_url must contain {scope}")
		}
	}

	if cfg.Proxy.RequestTimeout <= 0 {
		return fmt.Errorf("proxy.request_timeout must be positive")
	}
	if cfg.Rewrite.MaxBufferBytes <= 0 {
		return fmt.Errorf("rewrite.max_buffer_bytes must be positive")
	}

	seen := make(map[uint16]bool, len(cfg.CORS.SpecialPorts))
	for _, p := range cfg.CORS.SpecialPorts {
		if p == 0 {
			return fmt.Errorf("cors.special_ports: port 0 is not valid")
		}
		if seen[p] {
			return fmt.Errorf("cors.special_ports: duplicate port %d", p)
		}
		seen[p] = true
	}

	for _, o := range cfg.CORS.EmbedOrigins {
		if !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return fmt.Errorf("cors.embed_origins: %q must be an absolute origin", o)
		}
	}

	if cfg.ResolverCache.TTL > 0 && cfg.ResolverCache.Size <= 0 {
		return fmt.Errorf("resolver_cache.size must be positive when caching is enabled")
	}

	if cfg.Admin.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Admin.Address); err != nil {
			return fmt.Errorf("admin.address %q: %w", cfg.Admin.Address, err)
		}
	}

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level)
	}

	return nil
}
