package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/webitel/danmaku-relay/internal/domain/pool"
)

// Subscriber is a per-connection cursor over published ids.
type Subscriber interface {
	ID() uuid.UUID
	// Next blocks until the next id, ctx cancellation or the end of the subscription.
	Next(ctx context.Context) (pool.ID, bool)
	// TryNext returns a buffered id without blocking.
	TryNext() (pool.ID, bool)
	// Done is closed once the subscription has ended.
	Done() <-chan struct{}
	Dropped() uint64
	Close()
}

var _ Subscriber = (*subscription)(nil)

var (
	errSlow  = errors.New("slow")
	errEnded = errors.New("ended")
)

type subscription struct {
	id  uuid.UUID
	hub *Hub

	// [MAILBOX] never closed; done signals the end instead, so a racing publish cannot panic
	mailbox chan pool.ID
	done    chan struct{}

	closeOnce sync.Once
	dropped   atomic.Uint64
}

func newSubscription(h *Hub, size int) *subscription {
	return &subscription{
		id:      uuid.New(),
		hub:     h,
		mailbox: make(chan pool.ID, size),
		done:    make(chan struct{}),
	}
}

func (s *subscription) ID() uuid.UUID         { return s.id }
func (s *subscription) Done() <-chan struct{} { return s.done }
func (s *subscription) Dropped() uint64       { return s.dropped.Load() }

// watch ends the subscription together with ctx.
func (s *subscription) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		s.Close()
	case <-s.done:
	}
}

func (s *subscription) deliver(id pool.ID, g *grace) error {
	// 1. [FAST_PATH]
	select {
	case <-s.done:
		return errEnded
	case s.mailbox <- id:
		return nil
	default:
	}

	// 2. [GRACE_EXHAUSTED] an earlier mailbox already used up the window
	if g.expired {
		s.dropped.Add(1)
		return errSlow
	}

	// 3. [BACKPRESSURE]
	select {
	case <-s.done:
		return errEnded
	case s.mailbox <- id:
		return nil
	case <-g.wait():
		g.expired = true
		s.dropped.Add(1)
		return errSlow
	}
}

func (s *subscription) Next(ctx context.Context) (pool.ID, bool) {
	select {
	case id := <-s.mailbox:
		return id, true
	case <-s.done:
		return pool.ID{}, false
	case <-ctx.Done():
		return pool.ID{}, false
	}
}

func (s *subscription) TryNext() (pool.ID, bool) {
	select {
	case id := <-s.mailbox:
		return id, true
	default:
		return pool.ID{}, false
	}
}

// Close detaches the subscription from the hub. It is idempotent and safe to call concurrently.
func (s *subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.hub.remove(s.id)
	})
}
