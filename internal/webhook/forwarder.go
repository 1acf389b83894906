// Package webhook forwards bus traffic to external HTTP targets.
package webhook

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/promptforge/backend/internal/bus"
	"github.com/promptforge/backend/internal/infrastructure/logging"
	"github.com/promptforge/backend/internal/infrastructure/resilience"
)

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 10 * time.Second

// target pairs a webhook URL with its circuit breaker. A target that keeps
// failing is skipped until its breaker half-opens.
type target struct {
	url     string
	breaker *resilience.Breaker
}

// Forwarder delivers every relayed event to each configured target as a
// JSON POST. Deliveries are fire-and-forget with bounded retries.
type Forwarder struct {
	bus     *bus.Bus
	targets []*target
	client  *retryablehttp.Client
	logger  *logging.Logger
	subID   string
}

// NewForwarder creates a forwarder for the given target URLs. An empty
// target list yields a forwarder whose Start is a no-op.
func NewForwarder(eventBus *bus.Bus, urls []string, timeout time.Duration, logger *logging.Logger) *Forwarder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = nil

	f := &Forwarder{
		bus:    eventBus,
		client: client,
		logger: logger,
	}
	for _, url := range urls {
		f.targets = append(f.targets, &target{
			url: url,
			breaker: resilience.New(url, resilience.Options{
				Cooldown: 30 * time.Second,
				OnStateChange: func(name string, from, to resilience.State) {
					logger.Warn("Webhook breaker state change",
						zap.String("target", name),
						zap.String("from", from.String()),
						zap.String("to", to.String()),
					)
				},
			}),
		})
	}
	return f
}

// Start subscribes the forwarder to the relay channel.
func (f *Forwarder) Start() {
	if len(f.targets) == 0 {
		return
	}
	f.subID = f.bus.Subscribe(bus.RelayChannel, f.onRelay, "_webhooks")
}

// Stop unsubscribes the forwarder.
func (f *Forwarder) Stop() {
	if f.subID != "" {
		f.bus.Unsubscribe(f.subID)
	}
}

func (f *Forwarder) onRelay(ctx context.Context, data map[string]interface{}) (interface{}, error) {
	body, err := sonic.Marshal(data)
	if err != nil {
		return nil, err
	}

	for _, t := range f.targets {
		go f.deliver(ctx, t, body)
	}
	return nil, nil
}

func (f *Forwarder) deliver(ctx context.Context, t *target, body []byte) {
	err := t.breaker.Do(func() error {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusBadRequest {
			return &DeliveryError{URL: t.url, Status: resp.StatusCode}
		}
		return nil
	})
	if err != nil {
		f.logger.Warn("Webhook delivery failed",
			zap.String("target", t.url),
			zap.Error(err),
		)
	}
}

// DeliveryError reports a non-2xx webhook response.
type DeliveryError struct {
	URL    string
	Status int
}

func (e *DeliveryError) Error() string {
	return "webhook " + e.URL + " returned status " + http.StatusText(e.Status)
}
