package registry

import "time"

// Option defines a functional configuration type for the Hub.
type Option func(*Hub)

// WithMailboxSize sets how many ids a subscription may buffer before publishers start waiting on it.
func WithMailboxSize(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.config.mailboxSize = size
		}
	}
}

// WithSendTimeout bounds how long one publish waits on full mailboxes before dropping.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d >= 0 {
			h.config.sendTimeout = d
		}
	}
}

// WithPublishObserver reports how long each publish took, from queuing for the fan-out to return.
// A stalled subscriber shows up here as publishes near the send timeout.
func WithPublishObserver(fn func(time.Duration)) Option {
	return func(h *Hub) {
		h.observe = fn
	}
}
