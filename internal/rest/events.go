package rest

import (
	"time"

	"github.com/luciancaetano/knet/internal/async"
)

// Event names published by the limiters.
const (
	EventRateLimited     = "RateLimited"
	EventRequestDeferred = "RequestDeferred"
)

// Event is published on the emitter passed in Options.
type Event interface {
	EventName() string
}

// RateLimited is published when the server answers 429.
type RateLimited struct {
	// Route is empty for global limits.
	Route   string
	Global  bool
	ResetAt time.Time
}

func (RateLimited) EventName() string { return EventRateLimited }

// RequestDeferred is published when a route's local budget is spent and a
// request waits for the window to reset instead of being sent.
type RequestDeferred struct {
	Route string
	Until time.Time
}

func (RequestDeferred) EventName() string { return EventRequestDeferred }

func emit(events *async.Emitter[Event], e Event) {
	if events != nil {
		events.Emit(e.EventName(), e)
	}
}
