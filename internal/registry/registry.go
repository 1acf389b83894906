// Package registry owns the set of hosted apps and their lifecycle: manifest
// discovery, enable/disable orchestration, state persistence, router
// mounting, and tool aggregation.
package registry

import (
	"context"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/promptforge/backend/internal/bus"
	"github.com/promptforge/backend/internal/infrastructure/logging"
	"github.com/promptforge/backend/internal/infrastructure/monitoring"
	"github.com/promptforge/backend/internal/job"
	"github.com/promptforge/backend/internal/service"
	"github.com/promptforge/backend/internal/shared/types"
	"github.com/promptforge/backend/internal/store"
)

// contributions tracks what an enabled app registered, for teardown.
type contributions struct {
	subscriptionIDs []string
	jobTypes        []string
	contractTypes   []string
}

// Manager orchestrates app lifecycle.
type Manager struct {
	mu      sync.RWMutex
	records map[string]*types.AppRecord // Protected by mu
	order   []string                    // Registration order, for stable listings
	active  map[string]*contributions   // Protected by mu

	factory  *Factory
	services *service.Registry
	bus      *bus.Bus
	jobs     *job.Queue
	settings *store.Settings
	audit    *store.Audit
	logger   *logging.Logger
	metrics  *monitoring.Metrics
}

// NewManager creates a new app registry manager.
func NewManager(factory *Factory, services *service.Registry, eventBus *bus.Bus, jobs *job.Queue, settings *store.Settings, audit *store.Audit, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Manager{
		records:  make(map[string]*types.AppRecord),
		active:   make(map[string]*contributions),
		factory:  factory,
		services: services,
		bus:      eventBus,
		jobs:     jobs,
		settings: settings,
		audit:    audit,
		logger:   logger,
	}
}

// WithMetrics adds metrics tracking to the manager.
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// Register adds an app record. Duplicate ids are skipped with a warning;
// the first registration wins.
func (m *Manager) Register(manifest types.AppManifest, instance types.App, status types.AppStatus, errMsg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[manifest.ID]; exists {
		m.logger.Warn("Duplicate app id, first registration wins",
			zap.String("app_id", manifest.ID))
		return false
	}

	m.records[manifest.ID] = &types.AppRecord{
		Manifest: manifest,
		Instance: instance,
		Status:   status,
		Error:    errMsg,
	}
	m.order = append(m.order, manifest.ID)
	m.updateGaugesLocked()
	return true
}

// Record retrieves a copy of an app record by id.
func (m *Manager) Record(appID string) (*types.AppRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[appID]
	if !ok {
		return nil, false
	}
	snapshot := *record
	return &snapshot, true
}

// List returns copies of all records in registration order.
func (m *Manager) List() []*types.AppRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.AppRecord, 0, len(m.order))
	for _, appID := range m.order {
		if record, ok := m.records[appID]; ok {
			snapshot := *record
			out = append(out, &snapshot)
		}
	}
	return out
}

// EnableApp transitions an app to ENABLED: status first, then contribution
// registration, then the on_enable and on_startup hooks. Hook failure is
// logged and never blocks the transition. Returns the updated record, or
// false for an unknown id.
func (m *Manager) EnableApp(ctx context.Context, appID string) (*types.AppRecord, bool) {
	m.mu.Lock()
	record, ok := m.records[appID]
	if !ok {
		m.mu.Unlock()
		return nil, false
	}
	if record.Status == types.StatusEnabled {
		snapshot := *record
		m.mu.Unlock()
		return &snapshot, true
	}
	record.Status = types.StatusEnabled
	record.Error = ""
	instance := record.Instance
	m.updateGaugesLocked()
	m.mu.Unlock()

	m.registerContributions(appID, instance)

	m.runHook(ctx, appID, "on_enable", instance.OnEnable)
	m.runHook(ctx, appID, "on_startup", instance.OnStartup)

	if m.audit != nil {
		m.audit.Record(appID, "app_enabled", "app", appID, nil)
	}
	m.logger.Info("App enabled", zap.String("app_id", appID))

	return m.snapshot(appID), true
}

// DisableApp transitions an app to DISABLED: the on_shutdown and on_disable
// hooks run first (while the app is still ENABLED), then contributions are
// torn down and the status applied. Hook failure never blocks the
// transition. Returns the updated record, or false for an unknown id.
func (m *Manager) DisableApp(ctx context.Context, appID string) (*types.AppRecord, bool) {
	m.mu.RLock()
	record, ok := m.records[appID]
	if !ok {
		m.mu.RUnlock()
		return nil, false
	}
	alreadyDisabled := record.Status == types.StatusDisabled
	instance := record.Instance
	m.mu.RUnlock()

	if alreadyDisabled {
		return m.snapshot(appID), true
	}

	m.runHook(ctx, appID, "on_shutdown", instance.OnShutdown)
	m.runHook(ctx, appID, "on_disable", instance.OnDisable)

	m.teardownContributions(appID)

	m.mu.Lock()
	record.Status = types.StatusDisabled
	m.updateGaugesLocked()
	m.mu.Unlock()

	if m.audit != nil {
		m.audit.Record(appID, "app_disabled", "app", appID, nil)
	}
	m.logger.Info("App disabled", zap.String("app_id", appID))

	return m.snapshot(appID), true
}

// ActivateDiscovered runs the enable flow for every record discovery left
// ENABLED. Called once at startup, after RestoreStates.
func (m *Manager) ActivateDiscovered(ctx context.Context) {
	for _, record := range m.List() {
		if record.Status != types.StatusEnabled {
			continue
		}
		m.mu.RLock()
		instance := m.records[record.Manifest.ID].Instance
		m.mu.RUnlock()

		m.registerContributions(record.Manifest.ID, instance)
		m.runHook(ctx, record.Manifest.ID, "on_enable", instance.OnEnable)
		m.runHook(ctx, record.Manifest.ID, "on_startup", instance.OnStartup)
	}
}

// PersistStates serializes {app_id: status} into the reserved settings key.
func (m *Manager) PersistStates() error {
	m.mu.RLock()
	states := make(map[string]interface{}, len(m.records))
	for appID, record := range m.records {
		states[appID] = string(record.Status)
	}
	m.mu.RUnlock()

	return m.settings.Set(store.AppStatesKey, states)
}

// RestoreStates reapplies persisted statuses. Only DISABLED entries are
// honored; nothing is ever force-enabled on restore.
func (m *Manager) RestoreStates(ctx context.Context) {
	raw, ok := m.settings.Get(store.AppStatesKey)
	if !ok {
		return
	}
	states, ok := raw.(map[string]interface{})
	if !ok {
		m.logger.Warn("Ignoring malformed persisted app states")
		return
	}

	for appID, rawStatus := range states {
		status, _ := rawStatus.(string)
		if types.AppStatus(status) != types.StatusDisabled {
			continue
		}
		m.mu.Lock()
		if record, exists := m.records[appID]; exists {
			record.Status = types.StatusDisabled
			m.updateGaugesLocked()
			m.logger.Info("Restored disabled state", zap.String("app_id", appID))
		}
		m.mu.Unlock()
	}
}

// MountRouters attaches each ENABLED app's declared routers to the engine.
// Mount failure degrades only the offending app's router, never startup.
func (m *Manager) MountRouters(engine *gin.Engine, exclude map[string]bool) {
	for _, record := range m.List() {
		appID := record.Manifest.ID
		if record.Status != types.StatusEnabled || exclude[appID] {
			continue
		}
		if !record.Instance.Declares(types.FeatureRouter) {
			continue
		}

		for _, spec := range record.Manifest.Routers {
			group := engine.Group(spec.Prefix)
			if err := record.Instance.MountRouter(group); err != nil {
				m.logger.Error("Failed to mount app router",
					zap.String("app_id", appID),
					zap.String("prefix", spec.Prefix),
					zap.Error(err),
				)
				continue
			}
			m.logger.Info("Mounted app router",
				zap.String("app_id", appID),
				zap.String("prefix", spec.Prefix),
				zap.Strings("tags", spec.Tags),
			)
		}
	}
}

// CollectTools aggregates tool lists from apps that expose them. A failing
// app is skipped with a logged error.
func (m *Manager) CollectTools() []types.Tool {
	var tools []types.Tool
	for _, record := range m.List() {
		if record.Status != types.StatusEnabled || !record.Instance.Declares(types.FeatureTools) {
			continue
		}

		appTools := m.safeTools(record)
		for i := range appTools {
			appTools[i].AppID = record.Manifest.ID
		}
		tools = append(tools, appTools...)
	}
	return tools
}

// safeTools isolates a panicking Tools implementation.
func (m *Manager) safeTools(record *types.AppRecord) (tools []types.Tool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("App tool collection panicked",
				zap.String("app_id", record.Manifest.ID),
				zap.Any("panic", r),
			)
			tools = nil
		}
	}()
	return record.Instance.Tools()
}

// Stats returns registry statistics.
func (m *Manager) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byStatus := make(map[string]int)
	for _, record := range m.records {
		byStatus[string(record.Status)]++
	}

	return map[string]interface{}{
		"total_apps": len(m.records),
		"by_status":  byStatus,
	}
}

// registerContributions wires an app's declared contracts, subscriptions,
// and job handlers into the kernel.
func (m *Manager) registerContributions(appID string, instance types.App) {
	contrib := &contributions{}

	if instance.Declares(types.FeatureContracts) {
		for _, contract := range instance.Contracts() {
			if contract.SourceApp == "" {
				contract.SourceApp = appID
			}
			if err := m.bus.Contracts().Register(contract); err != nil {
				m.logger.Error("Failed to register contract",
					zap.String("app_id", appID),
					zap.String("event_type", contract.EventType),
					zap.Error(err),
				)
				continue
			}
			contrib.contractTypes = append(contrib.contractTypes, contract.EventType)
		}
	}

	if instance.Declares(types.FeatureSubscriptions) {
		for eventType, handler := range instance.Subscriptions() {
			subID := m.bus.Subscribe(eventType, handler, appID)
			contrib.subscriptionIDs = append(contrib.subscriptionIDs, subID)
		}
	}

	if instance.Declares(types.FeatureJobs) {
		for jobType, handler := range instance.JobHandlers() {
			m.jobs.RegisterHandler(jobType, handler)
			contrib.jobTypes = append(contrib.jobTypes, jobType)
		}
	}

	m.mu.Lock()
	m.active[appID] = contrib
	m.mu.Unlock()
}

// teardownContributions removes everything registerContributions added.
func (m *Manager) teardownContributions(appID string) {
	m.mu.Lock()
	contrib := m.active[appID]
	delete(m.active, appID)
	m.mu.Unlock()

	if contrib == nil {
		return
	}
	for _, subID := range contrib.subscriptionIDs {
		m.bus.Unsubscribe(subID)
	}
	for _, jobType := range contrib.jobTypes {
		m.jobs.UnregisterHandler(jobType)
	}
	for _, eventType := range contrib.contractTypes {
		m.bus.Contracts().Unregister(eventType)
	}
}

// runHook invokes one lifecycle hook with panic and error isolation.
func (m *Manager) runHook(ctx context.Context, appID, name string, hook func(context.Context) error) {
	logger := m.logger.WithApp(appID)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Lifecycle hook panicked",
				zap.String("hook", name),
				zap.Any("panic", r),
			)
		}
	}()

	if err := hook(ctx); err != nil {
		logger.Error("Lifecycle hook failed",
			zap.String("hook", name),
			zap.Error(err),
		)
	}
}

func (m *Manager) snapshot(appID string) *types.AppRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if record, ok := m.records[appID]; ok {
		snapshot := *record
		return &snapshot
	}
	return nil
}

// updateGaugesLocked refreshes app gauges. Caller must hold mu.
func (m *Manager) updateGaugesLocked() {
	if m.metrics == nil {
		return
	}
	var enabled int
	for _, record := range m.records {
		if record.Status == types.StatusEnabled {
			enabled++
		}
	}
	m.metrics.SetAppsRegistered(len(m.records))
	m.metrics.SetAppsEnabled(enabled)
}
