package types

import (
	"context"

	"github.com/gin-gonic/gin"
)

// AppStatus represents an app's lifecycle state.
type AppStatus string

const (
	StatusDiscovered AppStatus = "DISCOVERED"
	StatusEnabled    AppStatus = "ENABLED"
	StatusDisabled   AppStatus = "DISABLED"
	StatusError      AppStatus = "ERROR"
)

// Optional app features, tested via App.Declares before the corresponding
// accessor is called.
const (
	FeatureContracts     = "contracts"
	FeatureSubscriptions = "subscriptions"
	FeatureJobs          = "jobs"
	FeatureRouter        = "router"
	FeatureTools         = "tools"
)

// App is the capability interface every hosted app implements. BaseApp
// provides no-op defaults for everything optional.
type App interface {
	// Lifecycle hooks. Hook failure is logged by the registry and never
	// blocks the surrounding state transition.
	OnEnable(ctx context.Context) error
	OnStartup(ctx context.Context) error
	OnShutdown(ctx context.Context) error
	OnDisable(ctx context.Context) error

	// Declares reports whether the app contributes the named feature.
	Declares(feature string) bool

	// Optional contributions, consulted only when declared.
	Contracts() []Contract
	Subscriptions() map[string]EventHandler
	JobHandlers() map[string]JobHandler
	MountRouter(group *gin.RouterGroup) error
	Tools() []Tool
}

// Tool describes an app-exposed tool for aggregation.
type Tool struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	AppID       string `json:"app_id,omitempty"`
}

// BaseApp provides no-op implementations for every optional App method.
// Concrete apps embed it and override what they need.
type BaseApp struct{}

func (BaseApp) OnEnable(ctx context.Context) error   { return nil }
func (BaseApp) OnStartup(ctx context.Context) error  { return nil }
func (BaseApp) OnShutdown(ctx context.Context) error { return nil }
func (BaseApp) OnDisable(ctx context.Context) error  { return nil }

func (BaseApp) Declares(feature string) bool { return false }

func (BaseApp) Contracts() []Contract                    { return nil }
func (BaseApp) Subscriptions() map[string]EventHandler   { return nil }
func (BaseApp) JobHandlers() map[string]JobHandler       { return nil }
func (BaseApp) MountRouter(group *gin.RouterGroup) error { return nil }
func (BaseApp) Tools() []Tool                            { return nil }

// StubApp stands in for an app whose constructor failed, keeping the record
// registered with StatusError.
type StubApp struct {
	BaseApp
}

// AppRecord is the registry's bookkeeping for one app.
type AppRecord struct {
	Manifest AppManifest `json:"manifest"`
	Instance App         `json:"-"`
	Status   AppStatus   `json:"status"`
	Error    string      `json:"error,omitempty"`
}
