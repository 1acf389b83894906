// Package http contains the kernel's HTTP handlers.
package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/promptforge/backend/internal/bus"
	"github.com/promptforge/backend/internal/guard"
	"github.com/promptforge/backend/internal/infrastructure/monitoring"
	"github.com/promptforge/backend/internal/job"
	"github.com/promptforge/backend/internal/registry"
	"github.com/promptforge/backend/internal/shared/errs"
	"github.com/promptforge/backend/internal/shared/types"
	"github.com/promptforge/backend/internal/store"
)

// Handlers contains all kernel HTTP handlers.
type Handlers struct {
	apps             *registry.Manager
	bus              *bus.Bus
	replay           *bus.ReplayBuffer
	jobs             *job.Queue
	guard            *guard.Guard
	audit            *store.Audit
	metrics          *monitoring.Metrics
	publishTokenHash string
	requestTimeout   time.Duration
}

// DefaultRequestTimeout bounds synchronous bus requests when the config
// does not override it.
const DefaultRequestTimeout = 30 * time.Second

// NewHandlers creates a new handler set.
func NewHandlers(
	apps *registry.Manager,
	eventBus *bus.Bus,
	replay *bus.ReplayBuffer,
	jobs *job.Queue,
	g *guard.Guard,
	audit *store.Audit,
	metrics *monitoring.Metrics,
) *Handlers {
	return &Handlers{
		apps:           apps,
		bus:            eventBus,
		replay:         replay,
		jobs:           jobs,
		guard:          g,
		audit:          audit,
		metrics:        metrics,
		requestTimeout: DefaultRequestTimeout,
	}
}

// WithRequestTimeout overrides the synchronous bus request deadline.
func (h *Handlers) WithRequestTimeout(timeout time.Duration) *Handlers {
	if timeout > 0 {
		h.requestTimeout = timeout
	}
	return h
}

// WithPublishTokenHash requires a bcrypt-verified token on the external
// publish endpoint.
func (h *Handlers) WithPublishTokenHash(hash string) *Handlers {
	h.publishTokenHash = hash
	return h
}

// Root handles health check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "PromptForge Kernel",
		"version": "0.3.0",
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"apps":      h.apps.Stats(),
		"bus":       h.bus.Stats(),
		"jobs":      h.jobs.Stats(),
		"replay":    gin.H{"retained": h.replay.Len(), "latest_id": h.replay.LatestID()},
		"audit_len": h.audit.Len(),
	})
}

// ListApps lists all registered apps
func (h *Handlers) ListApps(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"apps":  h.apps.List(),
		"stats": h.apps.Stats(),
	})
}

// GetApp returns one app record
func (h *Handlers) GetApp(c *gin.Context) {
	appID := c.Param("id")
	record, ok := h.apps.Record(appID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "app not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}

// GetAppStatus returns just an app's lifecycle status
func (h *Handlers) GetAppStatus(c *gin.Context) {
	appID := c.Param("id")
	record, ok := h.apps.Record(appID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "app not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"app_id": appID,
		"status": record.Status,
		"error":  record.Error,
	})
}

// EnableApp transitions an app to ENABLED
func (h *Handlers) EnableApp(c *gin.Context) {
	appID := c.Param("id")
	record, ok := h.apps.EnableApp(c.Request.Context(), appID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "app not found"})
		return
	}
	if err := h.apps.PersistStates(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, record)
}

// DisableApp transitions an app to DISABLED
func (h *Handlers) DisableApp(c *gin.Context) {
	appID := c.Param("id")
	record, ok := h.apps.DisableApp(c.Request.Context(), appID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "app not found"})
		return
	}
	if err := h.apps.PersistStates(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, record)
}

// GetAppUsage returns this hour's usage counters for an app
func (h *Handlers) GetAppUsage(c *gin.Context) {
	appID := c.Param("id")
	if _, ok := h.apps.Record(appID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "app not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"app_id": appID,
		"usage":  h.guard.Usage(appID),
	})
}

// ListContracts lists all registered event contracts
func (h *Handlers) ListContracts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"contracts": h.bus.Contracts().List()})
}

// ListSubscriptions lists all bus subscriptions
func (h *Handlers) ListSubscriptions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"subscriptions": h.bus.Subscriptions()})
}

// BusStats returns bus statistics
func (h *Handlers) BusStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.bus.Stats())
}

// publishRequest is the external publish payload.
type publishRequest struct {
	EventType string                 `json:"event_type" binding:"required"`
	Data      map[string]interface{} `json:"data"`
	SourceApp string                 `json:"source_app"`
}

// PublishEvent pushes an external event onto the bus. The payload is
// contract-validated exactly like an internal publish: 202 on acceptance,
// 422 on violation.
func (h *Handlers) PublishEvent(c *gin.Context) {
	if h.publishTokenHash != "" {
		token := c.GetHeader("X-Publish-Token")
		if bcrypt.CompareHashAndPassword([]byte(h.publishTokenHash), []byte(token)) != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid publish token"})
			return
		}
	}

	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.bus.Publish(req.EventType, req.Data, req.SourceApp); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// BusRequest performs a synchronous request against the bus: the first
// registered subscriber for the event type handles it and the result is
// returned inline. No subscriber maps to 404, expiry to 504.
func (h *Handlers) BusRequest(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.bus.Request(c.Request.Context(), req.EventType, req.Data, req.SourceApp, h.requestTimeout)
	if err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// submitRequest is the job submission payload.
type submitRequest struct {
	AppID      string                 `json:"app_id" binding:"required"`
	JobType    string                 `json:"job_type" binding:"required"`
	Payload    map[string]interface{} `json:"payload"`
	Priority   int                    `json:"priority"`
	MaxRetries int                    `json:"max_retries"`
}

// SubmitJob enqueues a job for the submitting app, subject to capability
// and quota checks.
func (h *Handlers) SubmitJob(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	appCtx, err := h.guard.Resolve(req.AppID)
	if err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	if err := h.guard.CheckCapability(appCtx, "jobs:submit"); err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	if err := h.guard.CheckQuota(appCtx, guard.ResourceAPICalls); err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	jobID := h.jobs.Submit(req.AppID, req.JobType, req.Payload, req.Priority, req.MaxRetries)
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// GetJob returns one job record
func (h *Handlers) GetJob(c *gin.Context) {
	jobID := c.Param("id")
	record, ok := h.jobs.Get(jobID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}

// CancelJob cancels a PENDING job. Jobs in any other state, including
// unknown ids, report cancelled=false.
func (h *Handlers) CancelJob(c *gin.Context) {
	jobID := c.Param("id")
	c.JSON(http.StatusOK, gin.H{
		"job_id":    jobID,
		"cancelled": h.jobs.Cancel(jobID),
	})
}

// ListJobs lists jobs with optional app_id, status, and limit filters
func (h *Handlers) ListJobs(c *gin.Context) {
	appID := c.Query("app_id")
	status := types.JobStatus(c.Query("status"))
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	jobs := h.jobs.List(appID, status, limit)
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// JobStats returns scheduler statistics
func (h *Handlers) JobStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.jobs.Stats())
}

// ListAudit returns recent audit entries, newest first
func (h *Handlers) ListAudit(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	c.JSON(http.StatusOK, gin.H{"entries": h.audit.Recent(limit)})
}

// ListTools aggregates tools exposed by enabled apps
func (h *Handlers) ListTools(c *gin.Context) {
	tools := h.apps.CollectTools()
	c.JSON(http.StatusOK, gin.H{
		"tools": tools,
		"count": len(tools),
	})
}

// MetricsSnapshot returns the JSON metrics dashboard payload
func (h *Handlers) MetricsSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}
