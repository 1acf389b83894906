// Package ws bridges the event bus onto resumable WebSocket streams.
package ws

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/promptforge/backend/internal/bus"
	"github.com/promptforge/backend/internal/infrastructure/logging"
	"github.com/promptforge/backend/internal/infrastructure/monitoring"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in dev
	},
}

const (
	// DefaultKeepaliveInterval is the server-side ping cadence.
	DefaultKeepaliveInterval = 30 * time.Second
	// DefaultSendBuffer is the per-connection outbound event buffer.
	DefaultSendBuffer = 64
)

// Bridge fans relay traffic out to WebSocket clients. It owns the single
// relay subscription that records events in the replay buffer, so every
// connected client observes the same id sequence.
type Bridge struct {
	bus       *bus.Bus
	replay    *bus.ReplayBuffer
	logger    *logging.Logger
	metrics   *monitoring.Metrics
	keepalive time.Duration
	buffer    int

	mu    sync.RWMutex
	conns map[string]chan bus.ReplayEvent
	subID string
}

// NewBridge creates a bridge over the given bus and replay buffer.
func NewBridge(eventBus *bus.Bus, replay *bus.ReplayBuffer, logger *logging.Logger) *Bridge {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Bridge{
		bus:       eventBus,
		replay:    replay,
		logger:    logger,
		keepalive: DefaultKeepaliveInterval,
		buffer:    DefaultSendBuffer,
		conns:     make(map[string]chan bus.ReplayEvent),
	}
}

// WithMetrics enables metrics collection
func (b *Bridge) WithMetrics(metrics *monitoring.Metrics) *Bridge {
	b.metrics = metrics
	return b
}

// WithKeepalive overrides the ping cadence.
func (b *Bridge) WithKeepalive(interval time.Duration) *Bridge {
	if interval > 0 {
		b.keepalive = interval
	}
	return b
}

// WithSendBuffer overrides the per-connection outbound buffer size.
func (b *Bridge) WithSendBuffer(size int) *Bridge {
	if size > 0 {
		b.buffer = size
	}
	return b
}

// Start subscribes the bridge to the relay channel. Every relayed event is
// appended to the replay buffer, assigned its id there, and broadcast.
func (b *Bridge) Start() {
	b.subID = b.bus.Subscribe(bus.RelayChannel, b.onRelay, "_stream")
}

// Stop unsubscribes the bridge and closes all connection channels.
func (b *Bridge) Stop() {
	if b.subID != "" {
		b.bus.Unsubscribe(b.subID)
	}
	b.mu.Lock()
	for id, ch := range b.conns {
		close(ch)
		delete(b.conns, id)
	}
	b.mu.Unlock()
}

func (b *Bridge) onRelay(_ context.Context, data map[string]interface{}) (interface{}, error) {
	eventType, _ := data["event_type"].(string)
	sourceApp, _ := data["source_app"].(string)
	payload := make(map[string]interface{}, len(data))
	for k, v := range data {
		if k == "event_type" || k == "source_app" {
			continue
		}
		payload[k] = v
	}

	event := b.replay.Append(eventType, payload, sourceApp)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.conns {
		select {
		case ch <- event:
		default:
			// Slow consumer: drop rather than block the relay. The client
			// recovers the gap on reconnect via last_event_id.
			b.logger.Warn("Dropping event for slow stream consumer",
				zap.String("connection_id", id),
				zap.Uint64("event_id", event.ID),
			)
		}
	}
	return nil, nil
}

func (b *Bridge) register(ch chan bus.ReplayEvent) string {
	id := "con_" + uuid.New().String()
	b.mu.Lock()
	b.conns[id] = ch
	b.mu.Unlock()
	return id
}

func (b *Bridge) unregister(id string) {
	b.mu.Lock()
	delete(b.conns, id)
	b.mu.Unlock()
}

// Connections returns the current client count.
func (b *Bridge) Connections() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}

// lastEventID extracts the resume cursor from the X-Last-Event-ID header or
// the last_event_id query parameter, header winning.
func lastEventID(c *gin.Context) uint64 {
	raw := c.GetHeader("X-Last-Event-ID")
	if raw == "" {
		raw = c.Query("last_event_id")
	}
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// HandleConnection upgrades the request and streams events. A client
// presenting a last-seen event id first receives every retained event after
// that id, then live traffic; without one it receives live traffic only.
func (b *Bridge) HandleConnection(c *gin.Context) {
	resumeFrom := lastEventID(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		b.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ch := make(chan bus.ReplayEvent, b.buffer)
	connID := b.register(ch)
	defer b.unregister(connID)

	if b.metrics != nil {
		b.metrics.IncWSConnections()
		defer b.metrics.DecWSConnections()
	}
	b.logger.Info("Stream client connected",
		zap.String("connection_id", connID),
		zap.Uint64("resume_from", resumeFrom),
	)

	if err := b.send(conn, gin.H{
		"type":          "connected",
		"connection_id": connID,
		"latest_id":     b.replay.LatestID(),
		"oldest_id":     b.replay.OldestID(),
	}); err != nil {
		return
	}

	// Backlog first, so a resumed client never sees an id gap. Live events
	// queue in ch meanwhile; duplicates across the boundary are filtered by
	// id below.
	var lastSent uint64
	if resumeFrom > 0 {
		for _, event := range b.replay.After(resumeFrom) {
			if err := b.sendEvent(conn, event); err != nil {
				return
			}
			lastSent = event.ID
		}
	}

	// Reader drains client frames and signals close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			if b.metrics != nil {
				b.metrics.RecordWSMessage("in", "frame")
			}
		}
	}()

	ticker := time.NewTicker(b.keepalive)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.ID <= lastSent {
				continue
			}
			if err := b.sendEvent(conn, event); err != nil {
				return
			}
			lastSent = event.ID
		case <-ticker.C:
			if err := b.send(conn, gin.H{"type": "ping", "timestamp": time.Now().Unix()}); err != nil {
				return
			}
		case <-done:
			b.logger.Info("Stream client disconnected", zap.String("connection_id", connID))
			return
		}
	}
}

func (b *Bridge) sendEvent(conn *websocket.Conn, event bus.ReplayEvent) error {
	return b.send(conn, gin.H{"type": "event", "event": event})
}

func (b *Bridge) send(conn *websocket.Conn, data interface{}) error {
	if b.metrics != nil {
		b.metrics.RecordWSMessage("out", "json")
	}
	return conn.WriteJSON(data)
}
