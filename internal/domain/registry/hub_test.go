package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/danmaku-relay/internal/domain/model"
	"github.com/webitel/danmaku-relay/internal/domain/pool"
)

func ids(t *testing.T, n int) []pool.ID {
	t.Helper()
	p, err := pool.New(n)
	require.NoError(t, err)
	out := make([]pool.ID, n)
	for i := range out {
		out[i] = p.Insert(model.Danmaku{Text: "x"})
	}
	return out
}

func drain(t *testing.T, s Subscriber, n int) []pool.ID {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got := make([]pool.ID, 0, n)
	for len(got) < n {
		id, ok := s.Next(ctx)
		require.True(t, ok, "subscription ended after %d of %d ids", len(got), n)
		got = append(got, id)
	}
	return got
}

func TestPublishWithoutSubscribers(t *testing.T) {
	h := NewHub()
	assert.NoError(t, h.Publish(ids(t, 1)[0]))
}

func TestFanOutCompletenessAndOrder(t *testing.T) {
	const (
		producers = 4
		perProd   = 10
		consumers = 5
	)
	h := NewHub(WithMailboxSize(producers * perProd))
	all := ids(t, producers*perProd)

	subs := make([]Subscriber, consumers)
	for i := range subs {
		s, err := h.Subscribe(context.Background())
		require.NoError(t, err)
		defer s.Close()
		subs[i] = s
	}
	assert.Equal(t, consumers, h.Len())

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, id := range all[p*perProd : (p+1)*perProd] {
				assert.NoError(t, h.Publish(id))
			}
		}()
	}
	wg.Wait()

	first := drain(t, subs[0], len(all))
	assert.ElementsMatch(t, all, first, "every id exactly once")
	for _, s := range subs[1:] {
		assert.Equal(t, first, drain(t, s, len(all)), "same relative order for every subscriber")
	}
}

func TestSubscriberSeesOnlyFuturePublications(t *testing.T) {
	h := NewHub()
	all := ids(t, 2)

	require.NoError(t, h.Publish(all[0]))

	s, err := h.Subscribe(context.Background())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, h.Publish(all[1]))
	assert.Equal(t, []pool.ID{all[1]}, drain(t, s, 1))
}

func TestSlowSubscriberIsDroppedNotBlocking(t *testing.T) {
	h := NewHub(WithMailboxSize(1), WithSendTimeout(20*time.Millisecond))
	all := ids(t, 3)

	slow, err := h.Subscribe(context.Background())
	require.NoError(t, err)
	defer slow.Close()

	require.NoError(t, h.Publish(all[0]))

	start := time.Now()
	err = h.Publish(all[1])
	assert.ErrorIs(t, err, ErrSlowSubscriber)
	assert.Less(t, time.Since(start), time.Second)
	assert.EqualValues(t, 1, h.Dropped())
	assert.EqualValues(t, 1, slow.Dropped())

	// the mailbox still holds the first id; the dropped one is gone for good
	assert.Equal(t, []pool.ID{all[0]}, drain(t, slow, 1))
	require.NoError(t, h.Publish(all[2]))
	assert.Equal(t, []pool.ID{all[2]}, drain(t, slow, 1))
}

func TestPublishObserverSeesMailboxWait(t *testing.T) {
	const timeout = 30 * time.Millisecond
	var waits []time.Duration
	h := NewHub(
		WithMailboxSize(1),
		WithSendTimeout(timeout),
		WithPublishObserver(func(d time.Duration) { waits = append(waits, d) }),
	)
	all := ids(t, 2)

	s, err := h.Subscribe(context.Background())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, h.Publish(all[0]))
	assert.ErrorIs(t, h.Publish(all[1]), ErrSlowSubscriber)

	require.Len(t, waits, 2)
	assert.Less(t, waits[0], timeout, "an empty mailbox takes the fast path")
	assert.GreaterOrEqual(t, waits[1], timeout, "a full mailbox holds the publish for the grace period")
}

func TestSlowSubscriberDoesNotStarveOthers(t *testing.T) {
	h := NewHub(WithMailboxSize(1), WithSendTimeout(10*time.Millisecond))
	all := ids(t, 2)

	slow, err := h.Subscribe(context.Background())
	require.NoError(t, err)
	defer slow.Close()
	fast, err := h.Subscribe(context.Background())
	require.NoError(t, err)
	defer fast.Close()

	require.NoError(t, h.Publish(all[0]))
	assert.Equal(t, []pool.ID{all[0]}, drain(t, fast, 1))

	assert.ErrorIs(t, h.Publish(all[1]), ErrSlowSubscriber)
	assert.Equal(t, []pool.ID{all[1]}, drain(t, fast, 1))
}

func TestWaitingPublishCompletesWhenReaderCatchesUp(t *testing.T) {
	h := NewHub(WithMailboxSize(1), WithSendTimeout(time.Second))
	all := ids(t, 2)

	s, err := h.Subscribe(context.Background())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, h.Publish(all[0]))

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Next(context.Background())
	}()
	assert.NoError(t, h.Publish(all[1]))
}

func TestSubscriptionLifecycle(t *testing.T) {
	t.Run("close is idempotent and detaches", func(t *testing.T) {
		h := NewHub()
		s, err := h.Subscribe(context.Background())
		require.NoError(t, err)

		s.Close()
		s.Close()
		assert.Zero(t, h.Len())

		_, ok := s.Next(context.Background())
		assert.False(t, ok)
		assert.NoError(t, h.Publish(ids(t, 1)[0]))
	})

	t.Run("context cancellation ends the subscription", func(t *testing.T) {
		h := NewHub()
		ctx, cancel := context.WithCancel(context.Background())
		s, err := h.Subscribe(ctx)
		require.NoError(t, err)

		cancel()
		select {
		case <-s.Done():
		case <-time.After(time.Second):
			t.Fatal("subscription outlived its context")
		}
		assert.Eventually(t, func() bool { return h.Len() == 0 }, time.Second, time.Millisecond)
	})

	t.Run("next honours its own context", func(t *testing.T) {
		h := NewHub()
		s, err := h.Subscribe(context.Background())
		require.NoError(t, err)
		defer s.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, ok := s.Next(ctx)
		assert.False(t, ok)
	})
}

func TestHubClose(t *testing.T) {
	h := NewHub()
	s, err := h.Subscribe(context.Background())
	require.NoError(t, err)

	h.Close()
	h.Close()

	_, ok := s.Next(context.Background())
	assert.False(t, ok)
	assert.Zero(t, h.Len())

	assert.ErrorIs(t, h.Publish(ids(t, 1)[0]), ErrHubClosed)
	_, err = h.Subscribe(context.Background())
	assert.ErrorIs(t, err, ErrHubClosed)
}

func TestTryNext(t *testing.T) {
	h := NewHub()
	s, err := h.Subscribe(context.Background())
	require.NoError(t, err)
	defer s.Close()

	_, ok := s.TryNext()
	assert.False(t, ok)

	id := ids(t, 1)[0]
	require.NoError(t, h.Publish(id))
	got, ok := s.TryNext()
	require.True(t, ok)
	assert.Equal(t, id, got)
}
