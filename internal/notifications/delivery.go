package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"marketplace/internal/cache"
	"marketplace/internal/models"
	"marketplace/internal/observability"
	"marketplace/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// Realtime message types.
const (
	MessageNewNotification = "new-notification"
	MessageUnseenCount     = "unseen-count"
)

// ErrDeliveryStopped is returned by Deliver after Stop.
var ErrDeliveryStopped = errors.New("notification delivery stopped")

// Message is the realtime envelope written to sessions.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// UnseenPayload carries the receiver's unseen count and, for new notifications, the notification.
type UnseenPayload struct {
	Unseen       int64                `json:"unseen"`
	Notification *models.Notification `json:"notification,omitempty"`
}

// LiveChecker reports whether a user has a live session anywhere.
type LiveChecker interface {
	IsOnline(userID uint) bool
}

// DeliveryConfig sizes the fan-out worker pool. Zero workers runs fan-out inline.
type DeliveryConfig struct {
	Workers   int
	QueueSize int
}

type fanOutJob struct {
	ctx context.Context
	n   *models.Notification
}

// Delivery persists notifications, then fans them out to live sessions and push devices.
type Delivery struct {
	notifications repository.NotificationRepository
	devices       repository.PushSubscriptionRepository
	bridge        Bridge
	live          LiveChecker
	push          PushTransport

	workers int
	jobs    chan fanOutJob

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewDelivery creates the delivery channel. Call Start to run the workers.
func NewDelivery(
	notifications repository.NotificationRepository,
	devices repository.PushSubscriptionRepository,
	bridge Bridge,
	live LiveChecker,
	push PushTransport,
	cfg DeliveryConfig,
) *Delivery {
	if push == nil {
		push = NoopPushTransport{}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	d := &Delivery{
		notifications: notifications,
		devices:       devices,
		bridge:        bridge,
		live:          live,
		push:          push,
		workers:       cfg.Workers,
	}
	if d.workers > 0 {
		d.jobs = make(chan fanOutJob, cfg.QueueSize)
	}
	return d
}

// Start launches the fan-out workers.
func (d *Delivery) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for job := range d.jobs {
				observability.DeliveryQueueDepth.Dec()
				d.fanOut(job.ctx, job.n)
			}
		}()
	}
}

// Stop drains queued jobs and waits for the workers, or returns when ctx ends.
func (d *Delivery) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	if d.jobs != nil {
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver persists n and schedules its realtime and push fan-out. Only the
// persistence error is returned; fan-out failures are logged per recipient.
func (d *Delivery) Deliver(ctx context.Context, n *models.Notification) error {
	ctx, span := observability.StartSpan(ctx, "notifications.Deliver",
		attribute.Int64("receiver_id", int64(n.ReceiverID)),
		attribute.String("type", string(n.Type)),
	)
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if err = d.notifications.Create(ctx, n); err != nil {
		observability.NotificationsDelivered.WithLabelValues("store", "failed").Inc()
		return fmt.Errorf("persist notification: %w", err)
	}
	observability.NotificationsDelivered.WithLabelValues("store", "ok").Inc()
	cache.InvalidateUnseen(ctx, n.ReceiverID)

	detached := context.WithoutCancel(ctx)
	if d.workers == 0 {
		d.fanOut(detached, n)
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		err = ErrDeliveryStopped
		return err
	}
	select {
	case d.jobs <- fanOutJob{ctx: detached, n: n}:
		observability.DeliveryQueueDepth.Inc()
	default:
		observability.NotificationsDelivered.WithLabelValues("queue", "dropped").Inc()
		observability.GlobalLogger.WarnContext(ctx, "delivery queue full, fan-out dropped",
			slog.Uint64("notification_id", uint64(n.ID)),
			slog.Uint64("receiver_id", uint64(n.ReceiverID)))
	}
	return nil
}

// PushUnseen sends the receiver's current unseen count to their live sessions.
func (d *Delivery) PushUnseen(ctx context.Context, userID uint) error {
	unseen, err := d.unseen(ctx, userID)
	if err != nil {
		return err
	}
	return d.publish(ctx, userID, Message{Type: MessageUnseenCount, Payload: UnseenPayload{Unseen: unseen}})
}

func (d *Delivery) fanOut(ctx context.Context, n *models.Notification) {
	if d.live == nil || d.live.IsOnline(n.ReceiverID) {
		d.realtime(ctx, n)
	}
	d.pushDevices(ctx, n)
}

func (d *Delivery) realtime(ctx context.Context, n *models.Notification) {
	unseen, err := d.unseen(ctx, n.ReceiverID)
	if err != nil {
		observability.NotificationsDelivered.WithLabelValues("realtime", "failed").Inc()
		observability.GlobalLogger.WarnContext(ctx, "unseen count failed",
			slog.Uint64("receiver_id", uint64(n.ReceiverID)), observability.ErrAttr(err))
		return
	}
	msg := Message{Type: MessageNewNotification, Payload: UnseenPayload{Unseen: unseen, Notification: n}}
	if err := d.publish(ctx, n.ReceiverID, msg); err != nil {
		observability.NotificationsDelivered.WithLabelValues("realtime", "failed").Inc()
		observability.GlobalLogger.WarnContext(ctx, "realtime publish failed",
			slog.Uint64("receiver_id", uint64(n.ReceiverID)), observability.ErrAttr(err))
		return
	}
	observability.NotificationsDelivered.WithLabelValues("realtime", "ok").Inc()
}

func (d *Delivery) pushDevices(ctx context.Context, n *models.Notification) {
	devices, err := d.devices.ListByUser(ctx, n.ReceiverID)
	if err != nil {
		observability.GlobalLogger.WarnContext(ctx, "push subscriptions lookup failed",
			slog.Uint64("receiver_id", uint64(n.ReceiverID)), observability.ErrAttr(err))
		return
	}
	payload := NewPushPayload(n)
	for _, device := range devices {
		err := d.push.Send(ctx, device, payload)
		switch {
		case err == nil:
			observability.NotificationsDelivered.WithLabelValues("push", "ok").Inc()
		case errors.Is(err, ErrSubscriptionGone):
			observability.NotificationsDelivered.WithLabelValues("push", "gone").Inc()
			if delErr := d.devices.DeleteByEndpoint(ctx, device.Endpoint); delErr != nil {
				observability.GlobalLogger.WarnContext(ctx, "failed to prune push subscription", observability.ErrAttr(delErr))
			}
		default:
			observability.NotificationsDelivered.WithLabelValues("push", "failed").Inc()
			observability.GlobalLogger.WarnContext(ctx, "push delivery failed",
				slog.Uint64("receiver_id", uint64(n.ReceiverID)),
				slog.Uint64("push_subscription_id", uint64(device.ID)),
				observability.ErrAttr(err))
		}
	}
}

func (d *Delivery) unseen(ctx context.Context, userID uint) (int64, error) {
	return cache.CachedCount(ctx, cache.UnseenKey(userID), func() (int64, error) {
		return d.notifications.CountUnseen(ctx, userID)
	})
}

func (d *Delivery) publish(ctx context.Context, userID uint, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal realtime message: %w", err)
	}
	return d.bridge.Publish(ctx, userID, string(raw))
}
