package guard

import (
	"github.com/promptforge/backend/internal/infrastructure/logging"
	"github.com/promptforge/backend/internal/infrastructure/monitoring"
	"github.com/promptforge/backend/internal/shared/errs"
	"github.com/promptforge/backend/internal/shared/types"
	"github.com/promptforge/backend/internal/store"
)

// RecordSource resolves an app id to its current registry record.
type RecordSource interface {
	Record(appID string) (*types.AppRecord, bool)
}

// legacyCapabilities is the fixed grant set of the legacy open-access mode.
// It exists only for compatibility deployments and is never the default.
var legacyCapabilities = []string{
	"events:publish",
	"events:subscribe",
	"jobs:submit",
	"storage:read",
	"storage:write",
}

// Guard enforces capability and quota policy against the app registry.
type Guard struct {
	records    RecordSource
	usage      *store.Usage
	audit      *store.Audit
	logger     *logging.Logger
	metrics    *monitoring.Metrics
	legacyOpen bool
}

// New creates a guard over the given record source and usage store.
func New(records RecordSource, usage *store.Usage, audit *store.Audit, logger *logging.Logger) *Guard {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Guard{
		records: records,
		usage:   usage,
		audit:   audit,
		logger:  logger,
	}
}

// WithMetrics adds metrics tracking to the guard.
func (g *Guard) WithMetrics(metrics *monitoring.Metrics) *Guard {
	g.metrics = metrics
	return g
}

// WithLegacyOpenAccess enables the permissive legacy fallback for apps
// unknown to the registry. Off by default; deny-by-default is canonical.
func (g *Guard) WithLegacyOpenAccess(enabled bool) *Guard {
	g.legacyOpen = enabled
	if enabled {
		g.logger.Warn("Legacy open-access mode enabled; unknown apps receive a fixed capability set")
	}
	return g
}

// Resolve builds the per-request AppContext for an app id.
//
// A disabled app fails with ErrAppUnavailable. An unknown app receives an
// empty deny-by-default context (or, in legacy mode, the fixed legacy set).
func (g *Guard) Resolve(appID string) (*AppContext, error) {
	record, ok := g.records.Record(appID)
	if !ok {
		if g.legacyOpen {
			return NewContext(appID, legacyCapabilities, types.ResourceQuotas{}), nil
		}
		return NewContext(appID, nil, types.ResourceQuotas{}), nil
	}

	if record.Status == types.StatusDisabled {
		return nil, errs.AppUnavailable(appID)
	}
	return FromManifest(&record.Manifest), nil
}

// CheckCapability fails with ErrCapabilityDenied unless the exact token is
// present in the context's grant set.
func (g *Guard) CheckCapability(ctx *AppContext, required string) error {
	if ctx.Has(required) {
		return nil
	}

	if g.metrics != nil {
		g.metrics.RecordCapabilityDenial(ctx.AppID, required)
	}
	if g.audit != nil {
		g.audit.Record(ctx.AppID, "capability_denied", "capability", required, nil)
	}
	return errs.CapabilityDenied(ctx.AppID, required)
}

// CheckQuota enforces the hourly ceiling for a resource, counting usage as a
// side effect. Denial happens before the increment, so rejected calls do not
// consume quota.
//
// The read and the increment are separate steps; two concurrent checks can
// both pass before either counts. Acceptable for soft quotas, not for
// billing-grade limits.
func (g *Guard) CheckQuota(ctx *AppContext, resource string) error {
	limit := ctx.Limit(resource)
	if limit > 0 {
		current := g.usage.Current(ctx.AppID, resource)
		if current >= limit {
			if g.metrics != nil {
				g.metrics.RecordQuotaDenial(ctx.AppID, resource)
			}
			if g.audit != nil {
				g.audit.Record(ctx.AppID, "quota_exceeded", "quota", resource, map[string]interface{}{
					"limit": limit,
					"used":  current,
				})
			}
			return errs.QuotaExceeded(ctx.AppID, resource, limit)
		}
	}

	g.usage.Increment(ctx.AppID, resource)
	return nil
}

// Usage returns this hour's counters for one app.
func (g *Guard) Usage(appID string) map[string]int {
	return g.usage.Snapshot(appID)
}
