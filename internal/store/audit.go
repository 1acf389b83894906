package store

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/promptforge/backend/internal/infrastructure/logging"
	"github.com/promptforge/backend/internal/shared/id"
)

// AuditEntry records one kernel-mediated action.
type AuditEntry struct {
	ID           string                 `json:"id"`
	AppID        string                 `json:"app_id"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Audit is a bounded in-memory audit trail. Every entry is also written to
// the structured log, so the ring is a convenience view, not the archive.
type Audit struct {
	mu       sync.RWMutex
	entries  []AuditEntry
	capacity int
	logger   *logging.Logger
}

// NewAudit creates an audit log retaining at most capacity entries.
func NewAudit(capacity int, logger *logging.Logger) *Audit {
	if capacity <= 0 {
		capacity = 1000
	}
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Audit{
		entries:  make([]AuditEntry, 0, capacity),
		capacity: capacity,
		logger:   logger,
	}
}

// Record appends an entry, evicting the oldest once full.
func (a *Audit) Record(appID, action, resourceType, resourceID string, details map[string]interface{}) {
	entry := AuditEntry{
		ID:           id.NewAuditID().String(),
		AppID:        appID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		Timestamp:    time.Now(),
	}

	a.mu.Lock()
	if len(a.entries) == a.capacity {
		copy(a.entries, a.entries[1:])
		a.entries[len(a.entries)-1] = entry
	} else {
		a.entries = append(a.entries, entry)
	}
	a.mu.Unlock()

	a.logger.Info("audit",
		zap.String("app_id", appID),
		zap.String("action", action),
		zap.String("resource_type", resourceType),
		zap.String("resource_id", resourceID),
	)
}

// Recent returns up to limit entries, newest first.
func (a *Audit) Recent(limit int) []AuditEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if limit <= 0 || limit > len(a.entries) {
		limit = len(a.entries)
	}

	out := make([]AuditEntry, limit)
	for i := 0; i < limit; i++ {
		out[i] = a.entries[len(a.entries)-1-i]
	}
	return out
}

// Len returns the number of retained entries.
func (a *Audit) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}
