package resolver

import (
	"context"
	"strconv"
	"strings"
)

// Placeholders recognized in upstream URL templates.
const (
	PlaceholderInstance = "{instance}"
	PlaceholderScope    = "{scope}"
	PlaceholderPort     = "{port}"
)

// NewTemplateLookups builds Lookups from URL templates, for deployments
// where backend addresses are derivable from the identifier alone.
// Example: "https://{instance}.sandbox.internal:8443". Deployments with a
// real discovery service supply their own Lookups instead.
func NewTemplateLookups(workspaceURL, portURL, scopeURL string) Lookups {
	return Lookups{
		WorkspaceTarget: func(ctx context.Context, instanceID string) (string, error) {
			return strings.ReplaceAll(workspaceURL, PlaceholderInstance, instanceID), nil
		},
		MorphPortTarget: func(ctx context.Context, scope string, port uint16) (string, error) {
			out := strings.ReplaceAll(portURL, PlaceholderScope, scope)
			return strings.ReplaceAll(out, PlaceholderPort, strconv.Itoa(int(port))), nil
		},
		MorphScopeTarget: func(ctx context.Context, scope string) (string, error) {
			return strings.ReplaceAll(scopeURL, PlaceholderScope, scope), nil
		},
	}
}
