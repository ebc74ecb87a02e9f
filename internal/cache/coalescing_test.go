package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_CachesWithinTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(Options[string]{Clock: clock})
	var calls atomic.Int32

	fetch := func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "sunny", nil
	}

	ctx := context.Background()
	v1, err := c.Get(ctx, "weather:ludhiana", time.Hour, fetch)
	require.NoError(t, err)
	v2, err := c.Get(ctx, "weather:ludhiana", time.Hour, fetch)
	require.NoError(t, err)

	assert.Equal(t, "sunny", v1)
	assert.Equal(t, "sunny", v2)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(1), c.Stats().Hits)
}

func TestGet_RefetchesAfterExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(Options[int]{Clock: clock})
	var calls atomic.Int32

	fetch := func(ctx context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}

	ctx := context.Background()
	first, _ := c.Get(ctx, "k", time.Minute, fetch)
	clock.Advance(61 * time.Second)
	second, _ := c.Get(ctx, "k", time.Minute, fetch)

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestGet_CoalescesConcurrentCallers(t *testing.T) {
	c := New(Options[string]{Clock: clockwork.NewFakeClock()})
	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})

	fetch := func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "price", nil
	}

	const callers = 8
	results := make([]string, callers)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = c.Get(context.Background(), "market:rice", time.Hour, fetch)
	}()
	<-started

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.Get(context.Background(), "market:rice", time.Hour, fetch)
		}(i)
	}

	require.Eventually(t, func() bool { return c.Stats().Coalesced == callers-1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "price", r)
	}
}

func TestGet_WaiterLeavingDoesNotCancelSharedFetch(t *testing.T) {
	c := New(Options[string]{Clock: clockwork.NewFakeClock()})
	release := make(chan struct{})
	started := make(chan struct{})
	var fetchErr atomic.Value

	fetch := func(ctx context.Context) (string, error) {
		close(started)
		select {
		case <-release:
			return "done", nil
		case <-ctx.Done():
			fetchErr.Store(ctx.Err())
			return "", ctx.Err()
		}
	}

	impatient, cancel := context.WithCancel(context.Background())
	impatientErr := make(chan error, 1)
	go func() {
		_, err := c.Get(impatient, "k", time.Hour, fetch)
		impatientErr <- err
	}()
	<-started

	patient := make(chan string, 1)
	go func() {
		v, _ := c.Get(context.Background(), "k", time.Hour, fetch)
		patient <- v
	}()
	require.Eventually(t, func() bool { return c.Stats().Coalesced == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-impatientErr, context.Canceled)

	close(release)
	assert.Equal(t, "done", <-patient)
	assert.Nil(t, fetchErr.Load())
}

func TestGet_LastWaiterLeavingCancelsFetch(t *testing.T) {
	c := New(Options[string]{Clock: clockwork.NewFakeClock()})
	cancelled := make(chan struct{})

	fetch := func(ctx context.Context) (string, error) {
		<-ctx.Done()
		close(cancelled)
		return "", ctx.Err()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Get(ctx, "slow", time.Hour, fetch)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("fetch was not cancelled after the last waiter left")
	}
	assert.Zero(t, c.Len())
}

func TestGet_ErrorsAndFilteredValuesAreNotCached(t *testing.T) {
	c := New(Options[string]{
		Clock:     clockwork.NewFakeClock(),
		Cacheable: func(v string) bool { return v != "failed" },
	})
	var calls atomic.Int32
	ctx := context.Background()

	_, err := c.Get(ctx, "a", time.Hour, func(context.Context) (string, error) {
		calls.Add(1)
		return "", errors.New("boom")
	})
	require.Error(t, err)

	for i := 0; i < 2; i++ {
		v, err := c.Get(ctx, "b", time.Hour, func(context.Context) (string, error) {
			calls.Add(1)
			return "failed", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "failed", v)
	}

	assert.Equal(t, int32(3), calls.Load())
	assert.Zero(t, c.Len())
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func TestGet_SharesThroughStore(t *testing.T) {
	store := &memStore{data: map[string][]byte{}}
	var calls atomic.Int32
	fetch := func(context.Context) (map[string]int, error) {
		calls.Add(1)
		return map[string]int{"modal": 2300}, nil
	}

	replicaA := New(Options[map[string]int]{Clock: clockwork.NewFakeClock(), Store: store})
	replicaB := New(Options[map[string]int]{Clock: clockwork.NewFakeClock(), Store: store})

	_, err := replicaA.Get(context.Background(), "market:wheat", time.Hour, fetch)
	require.NoError(t, err)
	got, err := replicaB.Get(context.Background(), "market:wheat", time.Hour, fetch)
	require.NoError(t, err)

	assert.Equal(t, 2300, got["modal"])
	assert.Equal(t, int32(1), calls.Load())
}

func TestPeekSetPurge(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(Options[string]{Clock: clock})

	c.Set("weather:a", "x", time.Minute)
	c.Set("market:b", "y", time.Minute)

	v, ok := c.Peek("weather:a")
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	assert.Equal(t, 1, c.Purge("weather:"))
	_, ok = c.Peek("weather:a")
	assert.False(t, ok)

	clock.Advance(2 * time.Minute)
	_, ok = c.Peek("market:b")
	assert.False(t, ok)
}

func TestSweepDropsExpiredEntries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(Options[int]{Clock: clock, SweepInterval: time.Minute})

	for i := 0; i < 1000; i++ {
		_, err := c.Get(context.Background(), fmt.Sprintf("weather:%d", i), time.Minute,
			func(context.Context) (int, error) { return i, nil })
		require.NoError(t, err)
	}
	assert.Equal(t, 1000, c.Len())

	clock.Advance(48 * time.Hour)
	assert.Zero(t, c.Len())
	assert.Equal(t, 1000, c.Size())

	_, err := c.Get(context.Background(), "weather:new", time.Minute,
		func(context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, c.Size())
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(1000), c.Stats().Evicted)
}

func TestSetRespectsMaxEntries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(Options[string]{Clock: clock, MaxEntries: 2, SweepInterval: time.Hour})

	c.Set("a", "soonest", time.Minute)
	c.Set("b", "later", time.Hour)
	c.Set("c", "newest", time.Hour)

	assert.Equal(t, 2, c.Size())
	_, ok := c.Peek("a")
	assert.False(t, ok)
	_, ok = c.Peek("b")
	assert.True(t, ok)
	_, ok = c.Peek("c")
	assert.True(t, ok)

	// Overwriting an existing key never evicts.
	c.Set("b", "again", time.Hour)
	assert.Equal(t, 2, c.Size())
}
