package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClock_SleepAdvances(t *testing.T) {
	clock := NewFakeClock()
	start := clock.Now()

	require.NoError(t, clock.Sleep(context.Background(), 3*time.Second))
	require.NoError(t, clock.Sleep(context.Background(), time.Second))

	assert.Equal(t, 4*time.Second, clock.Now().Sub(start))
	assert.Equal(t, []time.Duration{3 * time.Second, time.Second}, clock.Sleeps())
}

func TestFakeClock_AdvanceDoesNotRecord(t *testing.T) {
	clock := NewFakeClock()
	start := clock.Now()
	clock.Advance(time.Minute)

	assert.Equal(t, time.Minute, clock.Now().Sub(start))
	assert.Empty(t, clock.Sleeps())
}

func TestFakeClock_SleepHonoursCancelledContext(t *testing.T) {
	clock := NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, clock.Sleep(ctx, time.Second), context.Canceled)
	assert.Empty(t, clock.Sleeps())
}

func TestFakeClock_OnSleepHook(t *testing.T) {
	clock := NewFakeClock()
	var seen []time.Time
	clock.OnSleep = func(now time.Time) { seen = append(seen, now) }

	require.NoError(t, clock.Sleep(context.Background(), time.Second))
	require.Len(t, seen, 1)
	assert.Equal(t, clock.Now(), seen[0])
}

func TestFakeClock_ThreadSafe(t *testing.T) {
	clock := NewFakeClock()
	start := clock.Now()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = clock.Sleep(context.Background(), time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50*time.Millisecond, clock.Now().Sub(start))
	assert.Len(t, clock.Sleeps(), 50)
}
