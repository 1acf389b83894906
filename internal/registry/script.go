package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dop251/goja"

	"github.com/promptforge/backend/internal/service"
	"github.com/promptforge/backend/internal/shared/types"
)

// ScriptModule is the factory entry module name for script-backed apps. It
// is the one narrow dynamic-loading path: the manifest's entry point names a
// JavaScript file whose exported functions become lifecycle hooks.
const ScriptModule = "script"

// RegisterScripted installs the scripted-app constructor on a factory.
// baseDir anchors relative entry points.
func RegisterScripted(factory *Factory, baseDir string) {
	factory.Register(ScriptModule, func(manifest types.AppManifest, _ *service.Registry) (types.App, error) {
		return newScriptedApp(manifest, baseDir)
	})
}

// scriptedApp hosts a goja VM. The VM is not goroutine safe; every entry
// into it holds mu.
type scriptedApp struct {
	types.BaseApp
	mu    sync.Mutex
	vm    *goja.Runtime
	hooks map[string]goja.Callable
}

func newScriptedApp(manifest types.AppManifest, baseDir string) (*scriptedApp, error) {
	path := manifest.Entry.Point
	if path == "" {
		return nil, fmt.Errorf("script app %q has no entry point", manifest.ID)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script %s: %w", path, err)
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(1024)
	if _, err := vm.RunString(string(source)); err != nil {
		return nil, fmt.Errorf("failed to evaluate script %s: %w", path, err)
	}

	app := &scriptedApp{
		vm:    vm,
		hooks: make(map[string]goja.Callable),
	}
	for _, name := range []string{"onEnable", "onStartup", "onShutdown", "onDisable"} {
		if fn, ok := goja.AssertFunction(vm.Get(name)); ok {
			app.hooks[name] = fn
		}
	}
	return app, nil
}

func (a *scriptedApp) call(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	fn, ok := a.hooks[name]
	if !ok {
		return nil
	}
	if _, err := fn(goja.Undefined()); err != nil {
		return fmt.Errorf("script hook %s failed: %w", name, err)
	}
	return nil
}

func (a *scriptedApp) OnEnable(ctx context.Context) error   { return a.call("onEnable") }
func (a *scriptedApp) OnStartup(ctx context.Context) error  { return a.call("onStartup") }
func (a *scriptedApp) OnShutdown(ctx context.Context) error { return a.call("onShutdown") }
func (a *scriptedApp) OnDisable(ctx context.Context) error  { return a.call("onDisable") }
