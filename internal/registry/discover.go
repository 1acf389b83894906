package registry

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"
	"github.com/charlievieth/fastwalk"
	"github.com/goccy/go-yaml"
	"github.com/microcosm-cc/bluemonday"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/promptforge/backend/internal/shared/types"
)

// manifestPattern matches the manifest files discovery looks for.
const manifestPattern = "manifest.{yaml,yml,toml,json}"

var sanitizer = bluemonday.StrictPolicy()

// Discover scans dir for app manifests, parses each, and instantiates its
// entry point through the static factory table.
//
// Failure is always contained to the single manifest: parse errors skip the
// file, duplicate ids keep the first registration, and a failing constructor
// still registers the app with StatusError and a stub instance. Successfully
// built apps start ENABLED; hooks run later via ActivateDiscovered.
func (m *Manager) Discover(dir string) (loaded, failed int) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		m.logger.Warn("Apps directory not found", zap.String("dir", dir))
		return 0, 0
	}

	conf := fastwalk.Config{Follow: false}

	err := fastwalk.Walk(&conf, dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			m.logger.Warn("Walk error during discovery", zap.String("path", path), zap.Error(err))
			return nil
		}
		if d.IsDir() {
			return nil
		}

		match, _ := doublestar.Match(manifestPattern, strings.ToLower(d.Name()))
		if !match {
			return nil
		}

		if m.loadManifest(path) {
			loaded++
		} else {
			failed++
		}
		return nil
	})
	if err != nil {
		m.logger.Error("Discovery walk failed", zap.String("dir", dir), zap.Error(err))
	}

	m.logger.Info("App discovery complete",
		zap.String("dir", dir),
		zap.Int("loaded", loaded),
		zap.Int("failed", failed),
	)
	return loaded, failed
}

// loadManifest parses and registers a single manifest file.
func (m *Manager) loadManifest(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		m.logger.Warn("Failed to read manifest", zap.String("path", path), zap.Error(err))
		return false
	}

	manifest, err := parseManifest(path, data)
	if err != nil {
		m.logger.Warn("Failed to parse manifest", zap.String("path", path), zap.Error(err))
		return false
	}
	if manifest.ID == "" || manifest.Version == "" || manifest.Name == "" {
		m.logger.Warn("Manifest missing id, version, or name", zap.String("path", path))
		return false
	}

	// App-provided text is served back through the API; strip any markup.
	manifest.Name = sanitizer.Sanitize(manifest.Name)
	manifest.Description = sanitizer.Sanitize(manifest.Description)

	instance, err := m.factory.New(manifest, m.services)
	if err != nil {
		// A broken app must never abort startup; keep the record with a
		// stub instance so operators can see what failed.
		m.logger.Error("Failed to instantiate app",
			zap.String("app_id", manifest.ID),
			zap.String("entry_module", manifest.Entry.Module),
			zap.Error(err),
		)
		return m.Register(manifest, &types.StubApp{}, types.StatusError, err.Error())
	}

	return m.Register(manifest, instance, types.StatusEnabled, "")
}

// parseManifest decodes by file extension.
func parseManifest(path string, data []byte) (types.AppManifest, error) {
	var manifest types.AppManifest
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &manifest)
	case ".toml":
		err = toml.Unmarshal(data, &manifest)
	default:
		err = sonic.Unmarshal(data, &manifest)
	}
	return manifest, err
}
