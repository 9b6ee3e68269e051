// Package notify delivers status-transition webhooks detached from the
// state-machine call path. Delivery runs on a bounded queue with a
// supervised retry schedule: exhaustion and drops are observable through
// metrics and logs, and never surface to the caller that triggered the
// notification.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/chainmint/issuer/internal/core/domain"
	"github.com/chainmint/issuer/internal/issuance/metrics"
)

// Sender performs one delivery attempt for a notification.
type Sender interface {
	Send(ctx context.Context, n domain.Notification) error
}

// Config tunes the dispatcher.
type Config struct {
	QueueSize   int
	Workers     int
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:   256,
		Workers:     4,
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
	}
}

// Dispatcher queues notifications and delivers them in the background.
type Dispatcher struct {
	sender Sender
	cfg    Config
	queue  chan domain.Notification
	log    *slog.Logger
	group  *errgroup.Group
}

// NewDispatcher creates a dispatcher. Call Start before triggering
// notifications.
func NewDispatcher(sender Sender, cfg Config, log *slog.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultConfig().BaseDelay
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		sender: sender,
		cfg:    cfg,
		queue:  make(chan domain.Notification, cfg.QueueSize),
		log:    log,
	}
}

// Start launches the delivery workers. Workers drain the queue until it is
// closed or ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	d.group = g
	for i := 0; i < d.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case n, ok := <-d.queue:
					if !ok {
						return nil
					}
					d.deliver(gctx, n)
				}
			}
		})
	}
}

// Close stops accepting notifications and waits for in-flight deliveries.
func (d *Dispatcher) Close() error {
	close(d.queue)
	if d.group != nil {
		return d.group.Wait()
	}
	return nil
}

// TriggerNotification enqueues a notification without blocking. A full
// queue drops the notification: the state machine must never stall on
// webhook delivery.
func (d *Dispatcher) TriggerNotification(ctx context.Context, n domain.Notification) error {
	select {
	case d.queue <- n:
		return nil
	default:
		metrics.WebhookQueueDropped.Inc()
		return fmt.Errorf("notification queue full, dropped %s for deployment %s", n.Event, n.DeploymentID)
	}
}

// deliver attempts one notification with capped exponential backoff.
// Exhausted retries are logged and counted, never propagated.
func (d *Dispatcher) deliver(ctx context.Context, n domain.Notification) {
	backoff := retry.WithMaxRetries(uint64(d.cfg.MaxAttempts-1), retry.NewExponential(d.cfg.BaseDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := d.sender.Send(ctx, n); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues(string(n.Event), "failed").Inc()
		d.log.Warn("webhook delivery exhausted retries",
			"event", n.Event,
			"deployment_id", n.DeploymentID,
			"attempts", d.cfg.MaxAttempts,
			"error", err)
		return
	}
	metrics.WebhookDeliveries.WithLabelValues(string(n.Event), "delivered").Inc()
	d.log.Debug("webhook delivered",
		"event", n.Event,
		"deployment_id", n.DeploymentID)
}
