//go:build integration
// +build integration

package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptforge/backend/tests/helpers/testutil"
)

func TestKernelEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testutil.TestConfig(t)
	testutil.WriteManifest(t, cfg.Kernel.AppsDir, "prompts", testutil.PromptsManifest)
	ts := testutil.NewTestServer(t, cfg)

	t.Run("health", func(t *testing.T) {
		var health map[string]interface{}
		resp, err := ts.Client.R().SetResult(&health).Get("/health")
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode())
		assert.Equal(t, "healthy", health["status"])
	})

	t.Run("discovered app is enabled", func(t *testing.T) {
		var body map[string]interface{}
		resp, err := ts.Client.R().SetResult(&body).Get("/kernel/apps/prompts")
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode())
		assert.Equal(t, "ENABLED", body["status"])
	})

	t.Run("app router mounted", func(t *testing.T) {
		var body map[string]interface{}
		resp, err := ts.Client.R().
			SetBody(map[string]interface{}{
				"variables": map[string]interface{}{
					"name":    "Ada",
					"product": "PromptForge",
				},
			}).
			SetResult(&body).
			Post("/apps/prompts/templates/greeting/render")
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode())
		assert.Equal(t, "Hello Ada, welcome to PromptForge.", body["output"])
	})

	t.Run("job lifecycle", func(t *testing.T) {
		var submitted map[string]interface{}
		resp, err := ts.Client.R().
			SetBody(map[string]interface{}{
				"app_id":   "prompts",
				"job_type": "prompt.batch_render",
				"payload": map[string]interface{}{
					"template_id": "greeting",
					"variable_sets": []map[string]interface{}{
						{"name": "Ada", "product": "PromptForge"},
						{"name": "Grace", "product": "PromptForge"},
					},
				},
			}).
			SetResult(&submitted).
			Post("/kernel/jobs/submit")
		require.NoError(t, err)
		require.Equal(t, 202, resp.StatusCode())

		jobID, ok := submitted["job_id"].(string)
		require.True(t, ok, "missing job_id in %v", submitted)

		job := testutil.WaitForJobStatus(t, ts.Client, jobID, "COMPLETED", 5*time.Second)
		assert.Equal(t, float64(1), job["progress"])
	})

	t.Run("publish and export", func(t *testing.T) {
		resp, err := ts.Client.R().
			SetBody(map[string]interface{}{
				"event_type": "deploy.finished",
				"data":       map[string]interface{}{"env": "staging"},
				"source_app": "ci",
			}).
			Post("/kernel/bus/publish")
		require.NoError(t, err)
		require.Equal(t, 202, resp.StatusCode())

		// The bridge appends to the replay buffer asynchronously.
		deadline := time.Now().Add(2 * time.Second)
		for ts.Server.Kernel().Replay.Len() == 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		require.NotZero(t, ts.Server.Kernel().Replay.Len(), "event never reached replay buffer")

		resp, err = ts.Client.R().Get("/kernel/bus/events/export")
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode())
		assert.Contains(t, string(resp.Body()), "deploy.finished")
	})

	t.Run("tools listed", func(t *testing.T) {
		var body map[string]interface{}
		resp, err := ts.Client.R().SetResult(&body).Get("/kernel/tools")
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode())

		tools, ok := body["tools"].([]interface{})
		require.True(t, ok)
		ids := make([]string, 0, len(tools))
		for _, raw := range tools {
			tool := raw.(map[string]interface{})
			ids = append(ids, tool["id"].(string))
		}
		assert.Contains(t, ids, "prompts.render")
	})

	t.Run("audit recorded", func(t *testing.T) {
		var body map[string]interface{}
		resp, err := ts.Client.R().SetResult(&body).Get("/kernel/audit")
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode())
		assert.NotEmpty(t, body["entries"])
	})
}

func TestDisabledAppRejectsJobs(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testutil.TestConfig(t)
	testutil.WriteManifest(t, cfg.Kernel.AppsDir, "prompts", testutil.PromptsManifest)
	ts := testutil.NewTestServer(t, cfg)

	resp, err := ts.Client.R().Post("/kernel/apps/prompts/disable")
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode())

	resp, err = ts.Client.R().
		SetBody(map[string]interface{}{"app_id": "prompts", "job_type": "prompt.batch_render"}).
		Post("/kernel/jobs/submit")
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode())
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testutil.TestConfig(t)
	testutil.WriteManifest(t, cfg.Kernel.AppsDir, "prompts", testutil.PromptsManifest)

	first := testutil.NewTestServer(t, cfg)
	resp, err := first.Client.R().Post("/kernel/apps/prompts/disable")
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode())
	first.HTTP.Close()
	first.Server.Close()

	second := testutil.NewTestServer(t, cfg)
	var body map[string]interface{}
	resp, err = second.Client.R().SetResult(&body).Get("/kernel/apps/prompts")
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode())
	assert.Equal(t, "DISABLED", body["status"])
}
