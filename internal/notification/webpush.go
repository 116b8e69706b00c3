package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog/log"

	"archean-status-relay/internal/store"
)

// PushTimeout bounds one push service request.
const PushTimeout = 10 * time.Second

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotificationWithContext(ctx, payload, sub, options)
}

// WebPushSink delivers direct messages to every browser subscription of a user.
type WebPushSink struct {
	subs    store.SubscriptionStore
	options *webpush.Options
	sender  NotificationSender
	timeout time.Duration
}

// NewWebPushSink creates a sink that signs pushes with the given VAPID options.
func NewWebPushSink(subs store.SubscriptionStore, options *webpush.Options) *WebPushSink {
	return &WebPushSink{
		subs:    subs,
		options: options,
		sender:  &WebPushSender{},
		timeout: PushTimeout,
	}
}

// NotifyDirect pushes msg to the user's subscriptions. It succeeds when at least one
// push service accepted the message. Subscriptions reported gone are deleted.
func (s *WebPushSink) NotifyDirect(ctx context.Context, userID string, msg Message) error {
	subs, err := s.subs.SubscriptionsForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	if len(subs) == 0 {
		return fmt.Errorf("%w: user %s has no push subscription", ErrDeliveryFailed, userID)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: encode payload: %w", ErrDeliveryFailed, err)
	}

	delivered := 0
	for _, sub := range subs {
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256DH,
				Auth:   sub.Auth,
			},
		}

		resp, err := s.send(ctx, payload, wpSub)
		if err != nil {
			log.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("web push failed")
			continue
		}

		switch {
		case resp.StatusCode == http.StatusGone:
			log.Info().Str("endpoint", sub.Endpoint).Msg("push subscription expired, deleting")
			if err := s.subs.DeleteSubscription(ctx, sub.Endpoint); err != nil {
				log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to delete expired subscription")
			}
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			delivered++
		default:
			log.Warn().Int("status", resp.StatusCode).Str("endpoint", sub.Endpoint).Msg("push service rejected message")
		}
	}

	if delivered == 0 {
		return fmt.Errorf("%w: no push service accepted the message for %s", ErrDeliveryFailed, userID)
	}
	return nil
}

func (s *WebPushSink) send(ctx context.Context, payload []byte, sub *webpush.Subscription) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	resp, err := s.sender.Send(ctx, payload, sub, s.options)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	return resp, nil
}
