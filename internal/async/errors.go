package async

import "errors"

var (
	// ErrDisposed is returned when a primitive is used after Close.
	ErrDisposed = errors.New("async: object disposed")

	// ErrSemaphoreFull is returned when a release would push a semaphore past
	// its maximum count.
	ErrSemaphoreFull = errors.New("async: semaphore is full")

	// ErrInvalidCount is returned for non-positive release counts or
	// inconsistent semaphore bounds.
	ErrInvalidCount = errors.New("async: invalid count")

	// ErrChannelCompleted is returned when writing to, or completing, a
	// channel that is already completed.
	ErrChannelCompleted = errors.New("async: channel completed")

	// ErrChannelEmpty is returned by Read when no item is queued.
	ErrChannelEmpty = errors.New("async: channel empty")

	// ErrNilItem is returned when writing a nil value to a channel.
	ErrNilItem = errors.New("async: nil item")

	// ErrNilListener is returned when registering a nil listener.
	ErrNilListener = errors.New("async: nil listener")
)
