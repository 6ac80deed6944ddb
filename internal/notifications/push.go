package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/observability"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/sony/gobreaker/v2"
)

// Defaults added to every push payload.
const (
	DefaultPushIcon  = "/assets/images/logo.svg"
	DefaultPushBadge = "/assets/images/icons/notification.svg"
	DefaultPushSound = "default"
)

// ErrSubscriptionGone is returned when the push service no longer knows the endpoint.
var ErrSubscriptionGone = errors.New("push subscription gone")

// PushData is the data block of a push payload.
type PushData struct {
	URL string `json:"url"`
}

// PushPayload is the body delivered to a device.
type PushPayload struct {
	Title string   `json:"title"`
	Data  PushData `json:"data"`
	Icon  string   `json:"icon"`
	Badge string   `json:"badge"`
	Sound string   `json:"sound"`
}

// NewPushPayload builds the device payload of a notification with the channel defaults.
func NewPushPayload(n *models.Notification) PushPayload {
	return PushPayload{
		Title: n.Title,
		Data:  PushData{URL: n.URL},
		Icon:  DefaultPushIcon,
		Badge: DefaultPushBadge,
		Sound: DefaultPushSound,
	}
}

// PushTransport delivers a payload to one device descriptor.
type PushTransport interface {
	Send(ctx context.Context, sub models.PushSubscription, payload PushPayload) error
}

// WebPushConfig holds the VAPID identity of the server.
type WebPushConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string
	TTL        time.Duration
}

type sendFunc func(ctx context.Context, message []byte, s *webpush.Subscription, options *webpush.Options) (*http.Response, error)

// WebPushTransport sends VAPID web push messages behind a circuit breaker.
type WebPushTransport struct {
	cfg  WebPushConfig
	cb   *gobreaker.CircuitBreaker[struct{}]
	send sendFunc
}

// NewWebPushTransport creates a transport. The breaker opens after five consecutive
// push service failures and probes again after thirty seconds.
func NewWebPushTransport(cfg WebPushConfig) *WebPushTransport {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "webpush",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// A dead endpoint is the device's problem, not the push service's.
			return err == nil || errors.Is(err, ErrSubscriptionGone)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.GlobalLogger.Warn("push breaker state change",
				slog.String("breaker", name), slog.String("from", from.String()), slog.String("to", to.String()))
			observability.PushBreakerState.Set(breakerStateValue(to))
		},
	})
	return &WebPushTransport{cfg: cfg, cb: cb, send: webpush.SendNotificationWithContext}
}

func (t *WebPushTransport) Send(ctx context.Context, sub models.PushSubscription, payload PushPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	_, err = t.cb.Execute(func() (struct{}, error) {
		resp, err := t.send(ctx, body, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
		}, &webpush.Options{
			Subscriber:      t.cfg.Subject,
			VAPIDPublicKey:  t.cfg.PublicKey,
			VAPIDPrivateKey: t.cfg.PrivateKey,
			TTL:             int(t.cfg.TTL / time.Second),
			Urgency:         webpush.UrgencyNormal,
		})
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			return struct{}{}, ErrSubscriptionGone
		case resp.StatusCode >= 400:
			return struct{}{}, fmt.Errorf("push service answered %d", resp.StatusCode)
		}
		return struct{}{}, nil
	})
	return err
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	}
	return 0
}

// NoopPushTransport is used when no VAPID keys are configured.
type NoopPushTransport struct{}

func (NoopPushTransport) Send(context.Context, models.PushSubscription, PushPayload) error {
	return nil
}
