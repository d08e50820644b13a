package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

func TestThresholdFlipsInvalid(t *testing.T) {
	fired := 0
	m := NewMonitor(func() { fired++ })

	for i := 0; i < DefaultThreshold-1; i++ {
		m.RecordFailure()
	}
	assert.False(t, m.Invalid())
	assert.Equal(t, 0, fired)

	m.RecordFailure()
	assert.True(t, m.Invalid())
	assert.Equal(t, 1, fired)

	// Further failures do not re-fire the callback.
	m.RecordFailure()
	assert.Equal(t, 1, fired)
}

func TestSuccessResetsWindow(t *testing.T) {
	m := NewMonitor(nil)

	for i := 0; i < DefaultThreshold; i++ {
		m.RecordFailure()
	}
	assert.True(t, m.Invalid())

	m.RecordSuccess()
	assert.False(t, m.Invalid())
	assert.Equal(t, 0, m.FailureCount())

	// The counter starts over after a success.
	m.RecordFailure()
	assert.False(t, m.Invalid())
	assert.Equal(t, 1, m.FailureCount())
}

func TestFailuresAgeOutOfWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	m := NewMonitor(nil)
	m.SetTimeProvider(clock)

	for i := 0; i < DefaultThreshold-1; i++ {
		m.RecordFailure()
	}

	clock.advance(DefaultWindow + time.Second)
	assert.Equal(t, 0, m.FailureCount())

	// Old failures no longer count toward the threshold.
	m.RecordFailure()
	assert.False(t, m.Invalid())
	assert.Equal(t, 1, m.FailureCount())
}

func TestSpreadFailuresWithinWindowStillTrip(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	m := NewMonitor(nil)
	m.SetTimeProvider(clock)

	for i := 0; i < DefaultThreshold; i++ {
		m.RecordFailure()
		clock.advance(2 * time.Second)
	}
	assert.True(t, m.Invalid())
}

func TestConcurrentRecording(t *testing.T) {
	m := NewMonitor(nil)
	done := make(chan struct{})

	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			m.RecordFailure()
			m.RecordSuccess()
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}
