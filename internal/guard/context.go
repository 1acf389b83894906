// Package guard gates kernel-mediated operations with capability and quota
// checks. Policy is deny-by-default: an unknown app, or one declaring no
// capabilities, is granted nothing.
package guard

import (
	"github.com/promptforge/backend/internal/shared/types"
)

// AppContext is the immutable per-request view of an app's grants, built
// once per call from the current AppRecord.
type AppContext struct {
	AppID        string               `json:"app_id"`
	Capabilities []string             `json:"capabilities"`
	Quotas       types.ResourceQuotas `json:"quotas"`

	granted map[string]struct{}
}

// NewContext builds a context from explicit grants, order preserved.
func NewContext(appID string, capabilities []string, quotas types.ResourceQuotas) *AppContext {
	granted := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		granted[c] = struct{}{}
	}
	return &AppContext{
		AppID:        appID,
		Capabilities: capabilities,
		Quotas:       quotas,
		granted:      granted,
	}
}

// FromManifest builds a context granting the manifest's required then
// optional capabilities, order preserved.
func FromManifest(m *types.AppManifest) *AppContext {
	return NewContext(m.ID, m.AllCapabilities(), m.ResourceQuotas)
}

// Has reports whether the exact capability token was granted. Tokens are
// compared by exact string match, never prefix or wildcard.
func (c *AppContext) Has(capability string) bool {
	_, ok := c.granted[capability]
	return ok
}

// Limit returns the configured ceiling for a resource, zero meaning none.
func (c *AppContext) Limit(resource string) int {
	switch resource {
	case ResourceAPICalls:
		return c.Quotas.MaxAPICallsPerHour
	case ResourceDocuments:
		return c.Quotas.MaxDocuments
	default:
		return 0
	}
}

// Quota-bounded resource names. Any other resource name has no configured
// ceiling; checks still count its usage.
const (
	ResourceAPICalls  = "api_calls"
	ResourceDocuments = "documents"
)
