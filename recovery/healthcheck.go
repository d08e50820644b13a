package recovery

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultHealthCheckInterval is how often the connection is probed.
const DefaultHealthCheckInterval = 30 * time.Second

// HealthChecker probes an established connection on a fixed interval. A
// negative probe fires OnUnhealthy once and stops the checker; the session
// restarts it after the next successful connect.
type HealthChecker struct {
	mu       sync.Mutex
	interval time.Duration
	check    func() bool
	onFail   func()
	stopCh   chan struct{}
}

// NewHealthChecker creates a stopped checker.
func NewHealthChecker(interval time.Duration, check func() bool, onUnhealthy func()) *HealthChecker {
	if interval <= 0 {
		interval = DefaultHealthCheckInterval
	}
	return &HealthChecker{
		interval: interval,
		check:    check,
		onFail:   onUnhealthy,
	}
}

// Start begins periodic probing. A no-op if already running.
func (h *HealthChecker) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopCh != nil {
		return
	}
	h.stopCh = make(chan struct{})
	go h.run(h.stopCh)
}

// Stop cancels probing synchronously. Idempotent.
func (h *HealthChecker) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopCh == nil {
		return
	}
	close(h.stopCh)
	h.stopCh = nil
}

// Running reports whether the checker is active.
func (h *HealthChecker) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopCh != nil
}

func (h *HealthChecker) run(stopCh chan struct{}) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if h.check() {
				continue
			}

			logrus.WithFields(logrus.Fields{
				"function": "run",
			}).Warn("Health check failed")

			// Stop before signalling so a recovery-triggered restart
			// cannot race a second failure from this checker.
			h.mu.Lock()
			if h.stopCh == stopCh {
				h.stopCh = nil
			}
			h.mu.Unlock()

			if h.onFail != nil {
				h.onFail()
			}
			return
		}
	}
}
