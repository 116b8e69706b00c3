// Package notification delivers relay messages to users and chat channels.
package notification

import (
	"context"
	"errors"
)

var (
	// ErrDeliveryFailed is returned when a message could not be delivered.
	ErrDeliveryFailed = errors.New("notification delivery failed")
	// ErrMessageNotFound is returned when editing a message that no longer exists.
	ErrMessageNotFound = errors.New("message not found")
)

// Message is a plain-text notification.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// DirectSink delivers a message to a user personally.
type DirectSink interface {
	NotifyDirect(ctx context.Context, userID string, msg Message) error
}

// FallbackSink delivers a message to a shared location, addressing the user there.
type FallbackSink interface {
	NotifyFallback(ctx context.Context, locationID, userID string, msg Message) error
}

// Sink is the pair of delivery routes used for reminders.
type Sink interface {
	DirectSink
	FallbackSink
}

type combinedSink struct {
	DirectSink
	FallbackSink
}

// Combine joins a direct and a fallback route into one Sink. A nil route
// always fails with ErrDeliveryFailed.
func Combine(direct DirectSink, fallback FallbackSink) Sink {
	if direct == nil {
		direct = unavailable{}
	}
	if fallback == nil {
		fallback = unavailable{}
	}
	return combinedSink{DirectSink: direct, FallbackSink: fallback}
}

type unavailable struct{}

func (unavailable) NotifyDirect(context.Context, string, Message) error {
	return ErrDeliveryFailed
}

func (unavailable) NotifyFallback(context.Context, string, string, Message) error {
	return ErrDeliveryFailed
}
