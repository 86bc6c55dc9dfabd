package rest

import "time"

// Window is a fixed-duration request quota. It is a value type: every change
// produces a new Window. The zero Window means no limit is known yet.
type Window struct {
	Limit     int
	Period    time.Duration
	Remaining int
	ResetAt   time.Time
}

// NewWindow returns a full window that resets one period after now.
func NewWindow(limit int, period time.Duration, now time.Time) Window {
	return Window{Limit: limit, Period: period, Remaining: limit, ResetAt: now.Add(period)}
}

// IsZero reports whether no limit is known.
func (w Window) IsZero() bool {
	return w.Limit <= 0 || w.Period <= 0
}

// Advance replaces an elapsed window with a full one whose reset is moved
// forward by one period, or by one period from now when more than a whole
// period has passed since the reset.
func (w Window) Advance(now time.Time) Window {
	if w.IsZero() || now.Before(w.ResetAt) {
		return w
	}
	next := w.ResetAt.Add(w.Period)
	if !next.After(now) {
		next = now.Add(w.Period)
	}
	return Window{Limit: w.Limit, Period: w.Period, Remaining: w.Limit, ResetAt: next}
}

// Refill returns a full window that resets one period after now.
func (w Window) Refill(now time.Time) Window {
	if w.IsZero() {
		return w
	}
	return NewWindow(w.Limit, w.Period, now)
}

// Consume takes one request from the window. It reports false, leaving the
// window unchanged, when none remain.
func (w Window) Consume() (Window, bool) {
	if w.IsZero() {
		return w, true
	}
	if w.Remaining <= 0 {
		return w, false
	}
	w.Remaining--
	return w, true
}

// Exhaust returns the window with nothing remaining until resetAt.
func (w Window) Exhaust(resetAt time.Time) Window {
	w.Remaining = 0
	w.ResetAt = resetAt
	return w
}

// Matches reports whether the window already uses limit and period.
func (w Window) Matches(limit int, period time.Duration) bool {
	return w.Limit == limit && w.Period == period
}
