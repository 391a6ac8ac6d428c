// Package route classifies inbound hostnames into route intents. It is pure
// string parsing: no I/O, no lookups, fully deterministic.
package route

import (
	"net"
	"strconv"
	"strings"

	"github.com/cmux/edge/internal/errors"
)

// ServiceWorkerPath is the fixed path of the proxied service-worker asset.
// It resolves for any host, before hostname classification.
const ServiceWorkerPath = "/proxy-sw.js"

// Kind identifies the classified meaning of a request's hostname.
type Kind int

const (
	// KindApex targets the bare public domain.
	KindApex Kind = iota
	// KindServiceWorkerAsset matches the fixed static-asset path on any host.
	KindServiceWorkerAsset
	// KindWorkspace matches workspace-<port>-<instanceId>.<suffix>.
	KindWorkspace
	// KindDirectPort matches port-<port>-<scope>.<suffix>.
	KindDirectPort
	// KindScopeDefault matches <scope>.<suffix> with no recognized prefix.
	KindScopeDefault
)

// String returns the kind label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindApex:
		return "apex"
	case KindServiceWorkerAsset:
		return "service_worker"
	case KindWorkspace:
		return "workspace"
	case KindDirectPort:
		return "port"
	case KindScopeDefault:
		return "scope_default"
	}
	return "unknown"
}

// Intent is the classified meaning of a request's hostname, produced once per
// request and immutable afterwards.
type Intent struct {
	Kind Kind

	// Port is set for Workspace and DirectPort intents.
	Port uint16
	// InstanceID is set for Workspace intents.
	InstanceID string
	// ScopeLabel is set for DirectPort and ScopeDefault intents.
	ScopeLabel string
}

// Scope returns the identifier used for redirect rewriting: the instance ID
// for workspace routes, the scope label otherwise. Empty for apex and asset
// intents.
func (in Intent) Scope() string {
	if in.Kind == KindWorkspace {
		return in.InstanceID
	}
	return in.ScopeLabel
}

// Classifier turns (host, path) pairs into intents for one public suffix.
type Classifier struct {
	suffix string // lowercased, no leading dot
}

// NewClassifier creates a classifier for the given public domain suffix.
func NewClassifier(publicSuffix string) *Classifier {
	return &Classifier{suffix: strings.ToLower(publicSuffix)}
}

// Classify maps a request's host and path to an intent. Precedence: the
// service-worker asset path wins for any host; then apex, workspace, direct
// port, and scope-default hostnames; anything else is an invalid-host error.
func (c *Classifier) Classify(host, path string) (Intent, error) {
	if path == ServiceWorkerPath {
		return Intent{Kind: KindServiceWorkerAsset}, nil
	}

	host = normalizeHost(host)

	if host == c.suffix {
		return Intent{Kind: KindApex}, nil
	}

	label, ok := strings.CutSuffix(host, "."+c.suffix)
	if !ok || label == "" || strings.Contains(label, ".") {
		return Intent{}, errors.ErrInvalidHost
	}

	segs := strings.Split(label, "-")
	switch segs[0] {
	case "workspace":
		if len(segs) != 3 || segs[2] == "" {
			return Intent{}, errors.ErrInvalidHost
		}
		port, err := parsePort(segs[1])
		if err != nil {
			return Intent{}, err
		}
		return Intent{Kind: KindWorkspace, Port: port, InstanceID: segs[2]}, nil
	case "port":
		if len(segs) != 3 || segs[2] == "" {
			return Intent{}, errors.ErrInvalidHost
		}
		port, err := parsePort(segs[1])
		if err != nil {
			return Intent{}, err
		}
		return Intent{Kind: KindDirectPort, Port: port, ScopeLabel: segs[2]}, nil
	}

	// A dashed label without a reserved prefix is a malformed attempt at a
	// workspace/port route, not a scope.
	if len(segs) != 1 {
		return Intent{}, errors.ErrInvalidHost
	}

	return Intent{Kind: KindScopeDefault, ScopeLabel: label}, nil
}

// normalizeHost lowercases the host and strips an optional :port.
func normalizeHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(strings.TrimSuffix(host, "."))
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil || n == 0 {
		return 0, errors.ErrInvalidPort
	}
	return uint16(n), nil
}
