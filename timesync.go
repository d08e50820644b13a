package hushwire

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ResyncThresholdMillis is the offset jump beyond which a new sample is
// treated as a resynchronization rather than drift.
const ResyncThresholdMillis = 1000

// Clock estimates the server clock offset from acknowledgment timestamps.
//
// The first observation sets the offset directly. Later observations are
// smoothed with a 70/30 weighted moving average, except when the new sample
// deviates by more than ResyncThresholdMillis, which snaps the estimate.
type Clock struct {
	mu       sync.Mutex
	offsetMs int64
	primed   bool
}

// Observe feeds one sample: the server timestamp from an ack and the client
// timestamp at receipt, both in unix seconds.
func (c *Clock) Observe(serverTs, clientTs int64) {
	sample := (serverTs - clientTs) * 1000

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case !c.primed:
		c.offsetMs = sample
		c.primed = true
	case abs64(sample-c.offsetMs) > ResyncThresholdMillis:
		logrus.WithFields(logrus.Fields{
			"function": "Observe",
			"previous": c.offsetMs,
			"sample":   sample,
		}).Info("Server clock resynchronized")
		c.offsetMs = sample
	default:
		c.offsetMs = (c.offsetMs*7 + sample*3) / 10
	}
}

// OffsetMillis returns the current (server − client) estimate.
func (c *Clock) OffsetMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offsetMs
}

// Now returns the current time adjusted to the server clock.
func (c *Clock) Now() time.Time {
	return time.Now().Add(time.Duration(c.OffsetMillis()) * time.Millisecond)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
