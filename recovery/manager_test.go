package recovery

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObserver struct {
	mu    sync.Mutex
	state NetworkState
	subs  []func(NetworkState)
}

func newFakeObserver(state NetworkState) *fakeObserver {
	return &fakeObserver{state: state}
}

func (f *fakeObserver) State() NetworkState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeObserver) Subscribe(fn func(NetworkState)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
	return func() {}
}

func (f *fakeObserver) set(state NetworkState) {
	f.mu.Lock()
	f.state = state
	subs := append([]func(NetworkState){}, f.subs...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(state)
	}
}

func TestDelaySequence(t *testing.T) {
	m := NewManager(Config{Reconnect: func() error { return nil }})

	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second, 64 * time.Second, 64 * time.Second,
		64 * time.Second, 64 * time.Second,
	}
	for attempt, expected := range want {
		assert.Equal(t, expected, m.Delay(attempt), "attempt %d", attempt)
	}
}

func TestRecoverySucceedsAndDeactivates(t *testing.T) {
	attempts := make(chan struct{}, 16)
	m := NewManager(Config{
		InitialDelay: time.Millisecond,
		Reconnect: func() error {
			attempts <- struct{}{}
			return nil
		},
	})
	defer m.Close()

	m.StartRecovery(errors.New("abnormal close"))

	select {
	case <-attempts:
	case <-time.After(time.Second):
		t.Fatal("reconnect attempt never ran")
	}

	require.Eventually(t, func() bool { return !m.State().Recovering }, time.Second, time.Millisecond)
	assert.Equal(t, 0, m.State().Attempt)
}

func TestStartRecoveryIdempotentWhileRecovering(t *testing.T) {
	var calls atomic.Int32
	block := make(chan struct{})
	m := NewManager(Config{
		InitialDelay: time.Millisecond,
		Reconnect: func() error {
			calls.Add(1)
			<-block
			return nil
		},
	})
	defer m.Close()
	defer close(block)

	m.StartRecovery(errors.New("first"))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	// A second start while recovering must not schedule another attempt.
	m.StartRecovery(errors.New("second"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRecoveryExhaustsAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	exhausted := make(chan error, 1)
	m := NewManager(Config{
		InitialDelay: time.Microsecond,
		MaxDelay:     time.Millisecond,
		MaxAttempts:  3,
		Reconnect: func() error {
			calls.Add(1)
			return errors.New("still down")
		},
		OnExhausted: func(err error) { exhausted <- err },
	})
	defer m.Close()

	m.StartRecovery(errors.New("gone"))

	select {
	case err := <-exhausted:
		assert.EqualError(t, err, "still down")
	case <-time.After(time.Second):
		t.Fatal("recovery never exhausted")
	}

	assert.Equal(t, int32(3), calls.Load())
	assert.False(t, m.State().Recovering)
}

func TestStopCancelsPendingAttempt(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(Config{
		InitialDelay: 50 * time.Millisecond,
		Reconnect: func() error {
			calls.Add(1)
			return errors.New("fail")
		},
	})
	defer m.Close()

	m.StartRecovery(errors.New("gone"))

	// Let the immediate attempt fail and the 50ms retry get scheduled.
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	m.Stop()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "attempt fired after Stop")
	assert.False(t, m.State().Recovering)
}

func TestNetworkDownSkipsAttempt(t *testing.T) {
	observer := newFakeObserver(NetworkDisconnected)
	var calls atomic.Int32
	m := NewManager(Config{
		InitialDelay: time.Millisecond,
		Observer:     observer,
		Reconnect: func() error {
			calls.Add(1)
			return nil
		},
	})
	defer m.Close()

	m.StartRecovery(errors.New("gone"))

	// The immediate attempt is skipped: no network, counter untouched.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
	state := m.State()
	assert.True(t, state.Recovering)
	assert.Equal(t, 0, state.Attempt)

	// Connectivity returning retries immediately.
	observer.set(NetworkWiFi)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return !m.State().Recovering }, time.Second, time.Millisecond)
}

func TestNetworkChangeIgnoredWhileIdle(t *testing.T) {
	observer := newFakeObserver(NetworkWiFi)
	var calls atomic.Int32
	m := NewManager(Config{
		InitialDelay: time.Millisecond,
		Observer:     observer,
		Reconnect: func() error {
			calls.Add(1)
			return nil
		},
	})
	defer m.Close()

	observer.set(NetworkOther)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestHealthCheckerFiresOnceAndStops(t *testing.T) {
	var fails atomic.Int32
	healthy := atomic.Bool{}
	healthy.Store(false)

	h := NewHealthChecker(5*time.Millisecond, func() bool { return healthy.Load() }, func() {
		fails.Add(1)
	})
	h.Start()

	require.Eventually(t, func() bool { return fails.Load() == 1 }, time.Second, time.Millisecond)
	assert.False(t, h.Running())

	// Stopped checker does not probe again.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), fails.Load())
}

func TestHealthCheckerStopIdempotent(t *testing.T) {
	h := NewHealthChecker(time.Hour, func() bool { return true }, nil)
	h.Start()
	h.Start() // no-op
	h.Stop()
	h.Stop() // no-op
	assert.False(t, h.Running())
}
