/*
Package registry distributes pool ids from every producer to every live subscription.

Key Architectural Concepts:
  - Common Order: Publishes are serialized, so every subscription observes ids in the same relative order.
  - Mailboxes: Each subscription owns a bounded buffer that decouples publishers from slow writers.
  - Backpressure: A full mailbox gets a short grace period shared by the whole publish, after which the
    id is dropped for that subscription only and counted.
  - Future Only: A subscription never sees ids published before it was created.
*/
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/danmaku-relay/internal/domain/pool"
)

var (
	ErrHubClosed      = errors.New("registry: hub closed")
	ErrSlowSubscriber = errors.New("registry: subscriber mailbox full")
)

// Hubber is the fan-out contract consumed by the service layer.
type Hubber interface {
	Publish(id pool.ID) error
	Subscribe(ctx context.Context) (Subscriber, error)
	Len() int
	Dropped() uint64
	Close()
}

var _ Hubber = (*Hub)(nil)

type hubConfig struct {
	mailboxSize int
	sendTimeout time.Duration
}

type Hub struct {
	// [ORDERING] held for the whole publish so deliveries never interleave
	pubMu sync.Mutex

	mu     sync.RWMutex
	subs   map[uuid.UUID]*subscription
	closed bool

	config  hubConfig
	dropped atomic.Uint64
	observe func(time.Duration)
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subs: make(map[uuid.UUID]*subscription),
		config: hubConfig{
			mailboxSize: 20,
			sendTimeout: 500 * time.Millisecond,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish delivers id to every subscription that is live when the call starts.
// A non-nil error wrapping ErrSlowSubscriber means at least one subscription missed the id;
// every other subscription still received it.
// Publishes are serialized, so a subscriber that stays full delays every producer by up to the
// send timeout per publish until its session ends.
func (h *Hub) Publish(id pool.ID) error {
	if h.observe != nil {
		defer func(start time.Time) { h.observe(time.Since(start)) }(time.Now())
	}

	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrHubClosed
	}
	targets := make([]*subscription, 0, len(h.subs))
	for _, s := range h.subs {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return nil
	}

	g := newGrace(h.config.sendTimeout)
	defer g.stop()

	var slow int
	for _, s := range targets {
		if s.deliver(id, g) == errSlow {
			slow++
		}
	}

	if slow > 0 {
		h.dropped.Add(uint64(slow))
		return fmt.Errorf("publish %s: %d of %d subscribers: %w", id, slow, len(targets), ErrSlowSubscriber)
	}
	return nil
}

// Subscribe registers a subscription that ends when ctx is done, when it is closed,
// or when the hub closes.
func (h *Hub) Subscribe(ctx context.Context) (Subscriber, error) {
	s := newSubscription(h, h.config.mailboxSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.subs[s.id] = s
	h.mu.Unlock()

	go s.watch(ctx)
	return s, nil
}

func (h *Hub) remove(id uuid.UUID) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Len is the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped is the total number of deliveries lost to full mailboxes.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Close ends every subscription and rejects further publishes. It is idempotent.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[uuid.UUID]*subscription)
	h.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}

// grace is the backpressure window of a single publish.
// It starts lazily on the first full mailbox and is shared by all later ones.
type grace struct {
	timeout time.Duration
	timer   *time.Timer
	expired bool
}

func newGrace(timeout time.Duration) *grace {
	return &grace{timeout: timeout}
}

func (g *grace) wait() <-chan time.Time {
	if g.timer == nil {
		g.timer = time.NewTimer(g.timeout)
	}
	return g.timer.C
}

func (g *grace) stop() {
	if g.timer != nil {
		g.timer.Stop()
	}
}
