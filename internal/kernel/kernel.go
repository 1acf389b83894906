// Package kernel assembles the microkernel: every subsystem is constructed
// here, wired explicitly, and torn down in reverse order.
package kernel

import (
	"context"

	"go.uber.org/zap"

	"github.com/promptforge/backend/internal/apps/prompts"
	"github.com/promptforge/backend/internal/bus"
	"github.com/promptforge/backend/internal/guard"
	"github.com/promptforge/backend/internal/infrastructure/config"
	"github.com/promptforge/backend/internal/infrastructure/logging"
	"github.com/promptforge/backend/internal/infrastructure/monitoring"
	"github.com/promptforge/backend/internal/job"
	"github.com/promptforge/backend/internal/registry"
	"github.com/promptforge/backend/internal/service"
	"github.com/promptforge/backend/internal/shared/types"
	"github.com/promptforge/backend/internal/store"
)

// Kernel is the composition root. All cross-component references flow
// through it; nothing reaches for globals.
type Kernel struct {
	Config    *config.Config
	Logger    *logging.Logger
	Metrics   *monitoring.Metrics
	Services  *service.Registry
	Contracts *bus.ContractRegistry
	Bus       *bus.Bus
	Replay    *bus.ReplayBuffer
	Jobs      *job.Queue
	Settings  *store.Settings
	Usage     *store.Usage
	Audit     *store.Audit
	Guard     *guard.Guard
	Apps      *registry.Manager
	Factory   *registry.Factory
}

// New wires a complete kernel from configuration. Nothing starts running
// until Start; construction is side-effect free apart from settings load.
func New(cfg *config.Config, logger *logging.Logger, metrics *monitoring.Metrics) (*Kernel, error) {
	services := service.NewRegistry()

	contracts := bus.NewContractRegistry(logger)
	eventBus := bus.New(contracts, logger).WithMetrics(metrics)
	replay := bus.NewReplayBuffer(cfg.Kernel.ReplayCapacity)

	settings := store.NewSettings(cfg.Kernel.StatePath)
	usage := store.NewUsage()
	audit := store.NewAudit(cfg.Kernel.AuditCapacity, logger)

	jobs := job.NewQueue(cfg.Jobs.MaxWorkers, eventBus, logger).
		WithMetrics(metrics).
		WithHistory(cfg.Jobs.History)

	factory := registry.NewFactory()
	factory.Register(prompts.Module, prompts.New)
	registry.RegisterScripted(factory, cfg.Kernel.AppsDir)

	apps := registry.NewManager(factory, services, eventBus, jobs, settings, audit, logger).
		WithMetrics(metrics)

	g := guard.New(apps, usage, audit, logger).
		WithMetrics(metrics).
		WithLegacyOpenAccess(cfg.Kernel.LegacyOpenAccess)

	k := &Kernel{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		Services:  services,
		Contracts: contracts,
		Bus:       eventBus,
		Replay:    replay,
		Jobs:      jobs,
		Settings:  settings,
		Usage:     usage,
		Audit:     audit,
		Guard:     g,
		Apps:      apps,
		Factory:   factory,
	}

	for name, svc := range map[string]interface{}{
		service.NameBus:       eventBus,
		service.NameContracts: contracts,
		service.NameJobs:      jobs,
		service.NameGuard:     g,
		service.NameSettings:  settings,
		service.NameAudit:     audit,
	} {
		if err := services.Register(name, svc); err != nil {
			return nil, err
		}
	}

	return k, nil
}

// Start discovers apps, restores persisted states, and spins up the worker
// pool.
func (k *Kernel) Start(ctx context.Context) {
	k.Jobs.Start()

	k.Apps.Discover(k.Config.Kernel.AppsDir)
	k.Apps.RestoreStates(ctx)
	k.Apps.ActivateDiscovered(ctx)
}

// Close shuts the kernel down. States are persisted first, so a restart
// sees the pre-shutdown enabled/disabled split; only then do shutdown hooks
// run and the worker pool drain.
func (k *Kernel) Close(ctx context.Context) {
	if err := k.Apps.PersistStates(); err != nil {
		k.Logger.Error("Failed to persist app states", zap.Error(err))
	}
	for _, record := range k.Apps.List() {
		if record.Status == types.StatusEnabled {
			k.Apps.DisableApp(ctx, record.Manifest.ID)
		}
	}
	k.Jobs.Stop()
}
