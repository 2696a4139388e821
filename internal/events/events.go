// Package events records analytics events emitted by the chat controller.
package events

import (
	"context"
	"errors"
	"time"
)

// Event names recorded by the chat controller.
const (
	ChatStart               = "chat_start"
	QualifiedChat           = "qualified_chat"
	GoalSelect              = "goal_select"
	RecommendationOffered   = "recommendation_offered"
	RecommendationShown     = "recommendation_shown"
	RecommendationDeclined  = "recommendation_declined"
	RecommendationDismissed = "recommendation_dismissed"
	AffiliateClick          = "affiliate_click"
	CompletionFailed        = "completion_failed"
)

// Attrs are event attributes.
type Attrs map[string]any

// Event is the serialized form of a recorded event.
type Event struct {
	Timestamp string `json:"ts"`
	Name      string `json:"event"`
	Attrs     Attrs  `json:"attrs,omitempty"`
}

// Sink receives analytics events. Implementations must not block the caller
// on network or disk I/O.
type Sink interface {
	RecordEvent(ctx context.Context, name string, attrs Attrs)
	Close() error
}

func newEvent(name string, attrs Attrs) Event {
	return Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Name:      name,
		Attrs:     attrs,
	}
}

func (a Attrs) str(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

// Nop discards events.
type Nop struct{}

// RecordEvent implements Sink.
func (Nop) RecordEvent(context.Context, string, Attrs) {}

// Close implements Sink.
func (Nop) Close() error { return nil }

// Multi fans events out to several sinks.
type Multi []Sink

// RecordEvent implements Sink.
func (m Multi) RecordEvent(ctx context.Context, name string, attrs Attrs) {
	for _, s := range m {
		s.RecordEvent(ctx, name, attrs)
	}
}

// Close closes every sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
