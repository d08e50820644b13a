// Package health tracks session validity for the hushwire client.
//
// The monitor keeps a rolling window of explicit authentication failures.
// Transport failures never feed it: only auth rejections recorded by the
// request layer count, so network blips cannot invalidate a session. When
// enough failures accumulate inside the window the session is flagged
// invalid and the application layer is expected to re-authenticate.
package health

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultWindow is the rolling failure window.
	DefaultWindow = 30 * time.Second
	// DefaultThreshold is the failure count that invalidates the session.
	DefaultThreshold = 5
)

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
}

type systemTime struct{}

func (systemTime) Now() time.Time { return time.Now() }

// Monitor is a concurrency-safe rolling failure counter. Failures may be
// recorded from transport callbacks and interceptor callbacks concurrently.
type Monitor struct {
	mu        sync.Mutex
	failures  []time.Time
	window    time.Duration
	threshold int
	invalid   bool
	onInvalid func()
	clock     TimeProvider
}

// NewMonitor creates a monitor with the default window and threshold.
// onInvalid fires once per transition to the invalid state; it may be nil.
func NewMonitor(onInvalid func()) *Monitor {
	return &Monitor{
		window:    DefaultWindow,
		threshold: DefaultThreshold,
		onInvalid: onInvalid,
		clock:     systemTime{},
	}
}

// SetTimeProvider sets a custom time provider for deterministic testing.
func (m *Monitor) SetTimeProvider(tp TimeProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tp == nil {
		tp = systemTime{}
	}
	m.clock = tp
}

// RecordFailure records an authentication failure. Reaching the threshold
// within the window flips the session to invalid.
func (m *Monitor) RecordFailure() {
	m.mu.Lock()
	now := m.clock.Now()
	m.failures = append(m.prune(now), now)
	count := len(m.failures)
	fire := false
	if count >= m.threshold && !m.invalid {
		m.invalid = true
		fire = true
	}
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":      "RecordFailure",
		"failure_count": count,
		"threshold":     m.threshold,
	}).Warn("Session health failure recorded")

	if fire && m.onInvalid != nil {
		m.onInvalid()
	}
}

// RecordSuccess clears the failure window. A single success resets the
// session to valid.
func (m *Monitor) RecordSuccess() {
	m.mu.Lock()
	m.failures = nil
	m.invalid = false
	m.mu.Unlock()
}

// Reset clears all recorded state.
func (m *Monitor) Reset() {
	m.RecordSuccess()
}

// Invalid reports whether the session is currently flagged invalid.
func (m *Monitor) Invalid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Failures aging out of the window do not un-flag the session; only an
	// explicit success or reset does.
	return m.invalid
}

// FailureCount returns the number of failures inside the current window.
func (m *Monitor) FailureCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = m.prune(m.clock.Now())
	return len(m.failures)
}

// prune drops failures older than the window. Caller holds the lock.
func (m *Monitor) prune(now time.Time) []time.Time {
	cutoff := now.Add(-m.window)
	kept := m.failures[:0]
	for _, ts := range m.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
