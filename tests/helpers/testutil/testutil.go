// Package testutil provides shared helpers for kernel integration tests.
package testutil

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/promptforge/backend/internal/infrastructure/config"
	"github.com/promptforge/backend/internal/server"
)

// PromptsManifest is a minimal manifest for the built-in prompts app with
// job submission granted and its router mounted under /apps/prompts.
const PromptsManifest = `id: prompts
version: 1.0.0
name: Prompt Library
description: Template storage and rendering
entry:
  module: prompts
capabilities:
  required:
    - "jobs:submit"
routers:
  - module: prompts
    prefix: /apps/prompts
`

// WriteManifest writes a manifest file into its own app directory under
// appsDir and returns the file path.
func WriteManifest(t *testing.T, appsDir, appID, content string) string {
	t.Helper()
	dir := filepath.Join(appsDir, appID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("Failed to create app dir: %v", err)
	}
	path := filepath.Join(dir, "manifest.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}
	return path
}

// TestConfig returns a config pointing at temp dirs with rate limiting off.
func TestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Kernel.AppsDir = t.TempDir()
	cfg.Kernel.StatePath = filepath.Join(t.TempDir(), "kernel-state.json")
	cfg.RateLimit.Enabled = false
	return cfg
}

// TestServer is a fully wired kernel server listening on an ephemeral port.
type TestServer struct {
	Server *server.Server
	HTTP   *httptest.Server
	Client *resty.Client
}

// NewTestServer discovers the given config's apps dir, mounts all routes,
// and starts an httptest listener around the router.
func NewTestServer(t *testing.T, cfg *config.Config) *TestServer {
	t.Helper()

	srv, err := server.NewServer(cfg)
	if err != nil {
		t.Fatalf("Failed to build server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())

	client := resty.New().
		SetBaseURL(ts.URL).
		SetTimeout(5 * time.Second)

	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return &TestServer{Server: srv, HTTP: ts, Client: client}
}

// WaitForJobStatus polls the job endpoint until the job reaches the wanted
// status or the deadline passes.
func WaitForJobStatus(t *testing.T, client *resty.Client, jobID, want string, timeout time.Duration) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var job map[string]interface{}
		resp, err := client.R().SetResult(&job).Get("/kernel/jobs/" + jobID)
		if err != nil {
			t.Fatalf("Failed to fetch job: %v", err)
		}
		if resp.StatusCode() == 200 && job["status"] == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Job %s never reached status %s", jobID, want)
	return nil
}
