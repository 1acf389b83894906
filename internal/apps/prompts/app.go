// Package prompts is the built-in prompt-template app. It exercises every
// optional app contribution: an event contract, a subscription, a batch job
// handler, an HTTP router, and tool descriptors.
package prompts

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/promptforge/backend/internal/bus"
	"github.com/promptforge/backend/internal/service"
	"github.com/promptforge/backend/internal/shared/types"
)

// Module is the manifest entry module name this app registers under.
const Module = "prompts"

// Event types owned by this app.
const (
	EventRender   = "prompt.render"
	EventRendered = "prompt.rendered"
)

// App stores named prompt templates and renders them with {{variable}}
// substitution.
type App struct {
	types.BaseApp

	id  string
	bus *bus.Bus

	mu        sync.RWMutex
	templates map[string]string
}

// New constructs the app from its manifest, resolving the event bus from
// the service registry.
func New(manifest types.AppManifest, services *service.Registry) (types.App, error) {
	eventBus, err := service.Resolve[*bus.Bus](services, service.NameBus)
	if err != nil {
		return nil, fmt.Errorf("prompts app: %w", err)
	}
	return &App{
		id:  manifest.ID,
		bus: eventBus,
		templates: map[string]string{
			"greeting": "Hello {{name}}, welcome to {{product}}.",
		},
	}, nil
}

func (a *App) Declares(feature string) bool {
	switch feature {
	case types.FeatureContracts, types.FeatureSubscriptions, types.FeatureJobs,
		types.FeatureRouter, types.FeatureTools:
		return true
	}
	return false
}

func (a *App) Contracts() []types.Contract {
	return []types.Contract{
		{
			EventType: EventRendered,
			SourceApp: a.id,
			Payload: types.Schema{
				"template_id": {Type: types.FieldString, Required: true},
				"output":      {Type: types.FieldString, Required: true},
			},
		},
	}
}

func (a *App) Subscriptions() map[string]types.EventHandler {
	return map[string]types.EventHandler{
		EventRender: a.handleRender,
	}
}

func (a *App) JobHandlers() map[string]types.JobHandler {
	return map[string]types.JobHandler{
		"prompt.batch_render": a.handleBatchRender,
	}
}

func (a *App) Tools() []types.Tool {
	return []types.Tool{
		{
			ID:          "prompts.render",
			Name:        "Render Prompt",
			Description: "Render a stored prompt template with variables",
		},
		{
			ID:          "prompts.list",
			Name:        "List Prompt Templates",
			Description: "List stored prompt template ids",
		},
	}
}

// MountRouter exposes template CRUD and rendering under the app's prefix.
func (a *App) MountRouter(group *gin.RouterGroup) error {
	group.GET("/templates", a.listTemplates)
	group.PUT("/templates/:id", a.putTemplate)
	group.GET("/templates/:id", a.getTemplate)
	group.POST("/templates/:id/render", a.renderTemplate)
	return nil
}

// Render substitutes {{key}} markers in the named template.
func (a *App) Render(templateID string, vars map[string]interface{}) (string, error) {
	a.mu.RLock()
	tpl, ok := a.templates[templateID]
	a.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown template %q", templateID)
	}

	out := tpl
	for key, value := range vars {
		out = strings.ReplaceAll(out, "{{"+key+"}}", fmt.Sprintf("%v", value))
	}
	return out, nil
}

func (a *App) handleRender(ctx context.Context, data map[string]interface{}) (interface{}, error) {
	templateID, _ := data["template_id"].(string)
	vars, _ := data["variables"].(map[string]interface{})

	out, err := a.Render(templateID, vars)
	if err != nil {
		return nil, err
	}

	// Announce the result; the payload satisfies this app's own contract.
	if err := a.bus.Publish(EventRendered, map[string]interface{}{
		"template_id": templateID,
		"output":      out,
	}, a.id); err != nil {
		return nil, err
	}
	return map[string]interface{}{"output": out}, nil
}

func (a *App) handleBatchRender(ctx context.Context, job *types.Job) (interface{}, error) {
	templateID, _ := job.Payload["template_id"].(string)
	raw, _ := job.Payload["variable_sets"].([]interface{})

	outputs := make([]string, 0, len(raw))
	for _, entry := range raw {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vars, _ := entry.(map[string]interface{})
		out, err := a.Render(templateID, vars)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	return map[string]interface{}{"outputs": outputs, "count": len(outputs)}, nil
}

func (a *App) listTemplates(c *gin.Context) {
	a.mu.RLock()
	ids := make([]string, 0, len(a.templates))
	for id := range a.templates {
		ids = append(ids, id)
	}
	a.mu.RUnlock()
	sort.Strings(ids)

	c.JSON(http.StatusOK, gin.H{"templates": ids})
}

func (a *App) getTemplate(c *gin.Context) {
	id := c.Param("id")
	a.mu.RLock()
	tpl, ok := a.templates[id]
	a.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "template": tpl})
}

func (a *App) putTemplate(c *gin.Context) {
	var body struct {
		Template string `json:"template" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	a.mu.Lock()
	a.templates[id] = body.Template
	a.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (a *App) renderTemplate(c *gin.Context) {
	var body struct {
		Variables map[string]interface{} `json:"variables"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := a.Render(c.Param("id"), body.Variables)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"output": out})
}
