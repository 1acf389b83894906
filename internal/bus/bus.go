package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/promptforge/backend/internal/infrastructure/logging"
	"github.com/promptforge/backend/internal/infrastructure/monitoring"
	"github.com/promptforge/backend/internal/shared/errs"
	"github.com/promptforge/backend/internal/shared/id"
	"github.com/promptforge/backend/internal/shared/types"
)

// RelayChannel is the reserved channel every non-relay event is mirrored to,
// with event_type merged into the payload. The stream bridge and webhook
// forwarder subscribe here.
const RelayChannel = "_relay"

// Subscription describes one registered handler, for introspection.
type Subscription struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	AppID     string `json:"app_id,omitempty"`
}

type subscription struct {
	Subscription
	handler types.EventHandler
	seq     uint64 // registration order, Request picks the lowest
}

// Bus is the kernel's publish/subscribe and request/response hub.
//
// Publish never blocks its caller: each matching handler runs on its own
// goroutine and failures are isolated per handler. Callers that need a
// handler's result use Request.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string]map[string]*subscription // event type -> sub id -> sub
	nextSeq   uint64
	contracts *ContractRegistry
	logger    *logging.Logger
	metrics   *monitoring.Metrics
}

// New creates a bus backed by the given contract registry.
func New(contracts *ContractRegistry, logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Bus{
		subs:      make(map[string]map[string]*subscription),
		contracts: contracts,
		logger:    logger,
	}
}

// WithMetrics adds metrics tracking to the bus.
func (b *Bus) WithMetrics(metrics *monitoring.Metrics) *Bus {
	b.metrics = metrics
	return b
}

// Contracts exposes the bus's contract registry.
func (b *Bus) Contracts() *ContractRegistry { return b.contracts }

// Subscribe registers a handler for an event type and returns an opaque
// subscription id. appID is optional and kept for introspection.
func (b *Bus) Subscribe(eventType string, handler types.EventHandler, appID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	subID := id.NewSubscriptionID().String()
	if b.subs[eventType] == nil {
		b.subs[eventType] = make(map[string]*subscription)
	}
	b.nextSeq++
	b.subs[eventType][subID] = &subscription{
		Subscription: Subscription{ID: subID, EventType: eventType, AppID: appID},
		handler:      handler,
		seq:          b.nextSeq,
	}
	return subID
}

// Unsubscribe removes a subscription by id. Unknown ids return false.
func (b *Bus) Unsubscribe(subID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subs {
		if _, ok := subs[subID]; ok {
			delete(subs, subID)
			if len(subs) == 0 {
				delete(b.subs, eventType)
			}
			return true
		}
	}
	return false
}

// Publish delivers an event to every subscriber of its type, fire-and-forget.
//
// If a contract exists for the event type the payload is validated first; on
// violation the publish is dropped entirely and the error returned. Events
// without a contract are delivered unvalidated. Every event except relay
// traffic itself is additionally mirrored to RelayChannel with event_type
// and source_app merged into the payload.
func (b *Bus) Publish(eventType string, data map[string]interface{}, sourceApp string) error {
	if data == nil {
		data = map[string]interface{}{}
	}

	if b.contracts != nil {
		if _, ok := b.contracts.Get(eventType); !ok {
			b.logger.Debug("Publishing uncontracted event", zap.String("event_type", eventType))
		} else if err := b.contracts.ValidatePublish(eventType, data); err != nil {
			b.logger.Warn("Dropping event failing contract validation",
				zap.String("event_type", eventType),
				zap.String("source_app", sourceApp),
				zap.Error(err),
			)
			if b.metrics != nil {
				b.metrics.RecordEventDropped(eventType)
			}
			return err
		}
	}

	b.dispatch(eventType, data, sourceApp)

	if eventType != RelayChannel {
		merged := make(map[string]interface{}, len(data)+2)
		for k, v := range data {
			merged[k] = v
		}
		merged["event_type"] = eventType
		if sourceApp != "" {
			merged["source_app"] = sourceApp
		}
		b.dispatch(RelayChannel, merged, sourceApp)
	}

	if b.metrics != nil {
		b.metrics.RecordEventPublished(eventType)
	}
	return nil
}

func (b *Bus) dispatch(eventType string, data map[string]interface{}, sourceApp string) {
	b.mu.RLock()
	targets := make([]*subscription, 0, len(b.subs[eventType]))
	for _, sub := range b.subs[eventType] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		go b.invoke(sub, eventType, data, sourceApp)
	}
}

// invoke runs one handler with panic and error isolation.
func (b *Bus) invoke(sub *subscription, eventType string, data map[string]interface{}, sourceApp string) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked",
				zap.String("event_type", eventType),
				zap.String("subscription_id", sub.ID),
				zap.String("app_id", sub.AppID),
				zap.Any("panic", r),
			)
		}
	}()

	if _, err := sub.handler(context.Background(), data); err != nil {
		b.logger.Error("Event handler failed",
			zap.String("event_type", eventType),
			zap.String("subscription_id", sub.ID),
			zap.String("app_id", sub.AppID),
			zap.String("source_app", sourceApp),
			zap.Error(err),
		)
	}
}

// Request invokes the first-registered handler for an event type and waits
// for its result up to timeout.
//
// Zero subscribers fail with ErrNoHandler; expiry fails with ErrTimeout. A
// timed-out handler is not cancelled, its eventual result is discarded.
// Non-map handler results are wrapped as {"result": value}.
func (b *Bus) Request(ctx context.Context, eventType string, data map[string]interface{}, sourceApp string, timeout time.Duration) (map[string]interface{}, error) {
	b.mu.RLock()
	var target *subscription
	for _, sub := range b.subs[eventType] {
		if target == nil || sub.seq < target.seq {
			target = sub
		}
	}
	b.mu.RUnlock()

	if target == nil {
		return nil, errs.NoHandler(eventType)
	}
	if data == nil {
		data = map[string]interface{}{}
	}

	type outcome struct {
		result interface{}
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("handler for %q panicked: %v", eventType, r)}
			}
		}()
		result, err := target.handler(ctx, data)
		done <- outcome{result: result, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		if m, ok := out.result.(map[string]interface{}); ok {
			return m, nil
		}
		return map[string]interface{}{"result": out.result}, nil
	case <-timer.C:
		return nil, errs.Timeout(eventType)
	case <-ctx.Done():
		return nil, errs.Timeout(eventType)
	}
}

// Subscriptions returns a snapshot of all registrations.
func (b *Bus) Subscriptions() []Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Subscription, 0)
	for _, subs := range b.subs {
		for _, sub := range subs {
			out = append(out, sub.Subscription)
		}
	}
	return out
}

// Stats returns bus statistics.
func (b *Bus) Stats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total int
	perType := make(map[string]int)
	for eventType, subs := range b.subs {
		total += len(subs)
		perType[eventType] = len(subs)
	}

	return map[string]interface{}{
		"total_subscriptions": total,
		"event_types":         perType,
	}
}
