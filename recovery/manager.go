package recovery

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultInitialDelay is the backoff base delay.
	DefaultInitialDelay = 1 * time.Second
	// DefaultMaxDelay caps the backoff delay.
	DefaultMaxDelay = 64 * time.Second
	// DefaultMaxAttempts is the reconnect attempt ceiling.
	DefaultMaxAttempts = 10
)

// State is a read-only snapshot of the recovery process.
type State struct {
	Recovering     bool
	Attempt        int
	NextRetryDelay time.Duration
	LastError      error
}

// Config parameterizes a Manager.
type Config struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int

	// Reconnect is invoked for each attempt; a nil return deactivates
	// recovery, an error schedules the next attempt.
	Reconnect func() error

	// Observer gates attempts on network availability. Optional; without it
	// every attempt runs.
	Observer NetworkObserver

	// OnStateChange publishes recovery state snapshots. Optional.
	OnStateChange func(State)

	// OnExhausted fires when the attempt ceiling is reached. Optional.
	OnExhausted func(lastError error)
}

// Manager is the connection recovery state machine. It is either idle or
// recovering; StartRecovery while recovering is a no-op.
type Manager struct {
	mu         sync.Mutex
	cfg        Config
	recovering bool
	attempt    int
	nextDelay  time.Duration
	lastErr    error
	timer      *time.Timer
	generation int
	unsub      func()
}

// NewManager creates an idle manager. Zero config fields get defaults.
func NewManager(cfg Config) *Manager {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}

	m := &Manager{cfg: cfg}
	if cfg.Observer != nil {
		m.unsub = cfg.Observer.Subscribe(m.onNetworkChange)
	}
	return m
}

// Delay returns the backoff delay for a zero-based attempt index:
// min(initial * 2^attempt, max).
func (m *Manager) Delay(attempt int) time.Duration {
	delay := m.cfg.InitialDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= m.cfg.MaxDelay {
			return m.cfg.MaxDelay
		}
	}
	if delay > m.cfg.MaxDelay {
		return m.cfg.MaxDelay
	}
	return delay
}

// StartRecovery activates recovery and schedules the first attempt with
// zero delay. A no-op while already recovering.
func (m *Manager) StartRecovery(reason error) {
	m.mu.Lock()
	if m.recovering {
		m.mu.Unlock()
		return
	}
	m.recovering = true
	m.attempt = 0
	m.nextDelay = 0
	m.lastErr = reason
	gen := m.generation
	m.scheduleLocked(0, gen)
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "StartRecovery",
		"reason":   reason,
	}).Info("Connection recovery started")

	m.publish()
}

// Stop deactivates recovery and cancels any pending attempt synchronously.
// No attempt scheduled before Stop returns will fire afterwards.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.generation++ // invalidate in-flight timers
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	wasRecovering := m.recovering
	m.recovering = false
	m.attempt = 0
	m.nextDelay = 0
	m.mu.Unlock()

	if wasRecovering {
		m.publish()
	}
}

// Close stops recovery and unregisters the network subscription.
func (m *Manager) Close() {
	m.Stop()
	m.mu.Lock()
	unsub := m.unsub
	m.unsub = nil
	m.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// State returns a snapshot of the recovery state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		Recovering:     m.recovering,
		Attempt:        m.attempt,
		NextRetryDelay: m.nextDelay,
		LastError:      m.lastErr,
	}
}

// scheduleLocked arms the retry timer. Caller holds the lock.
func (m *Manager) scheduleLocked(delay time.Duration, gen int) {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.nextDelay = delay
	m.timer = time.AfterFunc(delay, func() { m.runAttempt(gen) })
}

func (m *Manager) runAttempt(gen int) {
	m.mu.Lock()
	if gen != m.generation || !m.recovering {
		m.mu.Unlock()
		return
	}

	// Skip the attempt while the network is down; the network-change
	// subscription retries immediately once connectivity returns. The
	// attempt counter is not incremented for skips.
	attempt := m.attempt
	if m.cfg.Observer != nil && !m.cfg.Observer.State().Connected() {
		m.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "runAttempt",
			"attempt":  attempt,
		}).Info("Network unavailable, deferring reconnect attempt")
		return
	}

	reconnect := m.cfg.Reconnect
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "runAttempt",
		"attempt":  attempt,
	}).Info("Attempting reconnect")

	err := reconnect()
	if err == nil {
		m.Stop()
		return
	}

	m.mu.Lock()
	if gen != m.generation || !m.recovering {
		m.mu.Unlock()
		return
	}
	m.lastErr = err
	delay := m.Delay(m.attempt)
	m.attempt++
	exhausted := m.attempt >= m.cfg.MaxAttempts
	if !exhausted {
		m.scheduleLocked(delay, gen)
	} else {
		m.recovering = false
		m.nextDelay = 0
	}
	m.mu.Unlock()

	if exhausted {
		logrus.WithFields(logrus.Fields{
			"function": "runAttempt",
			"attempts": m.cfg.MaxAttempts,
			"error":    err,
		}).Error("Recovery attempt ceiling reached")
		if m.cfg.OnExhausted != nil {
			m.cfg.OnExhausted(err)
		}
	} else {
		logrus.WithFields(logrus.Fields{
			"function":   "runAttempt",
			"attempt":    attempt,
			"next_delay": delay,
			"error":      err,
		}).Warn("Reconnect attempt failed")
	}

	m.publish()
}

// onNetworkChange cancels the pending backoff and retries immediately when
// connectivity returns during recovery.
func (m *Manager) onNetworkChange(state NetworkState) {
	if !state.Connected() {
		return
	}

	m.mu.Lock()
	if !m.recovering {
		m.mu.Unlock()
		return
	}
	gen := m.generation
	m.scheduleLocked(0, gen)
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "onNetworkChange",
		"state":    state.String(),
	}).Info("Network available, retrying immediately")
}

func (m *Manager) publish() {
	if m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(m.State())
	}
}
