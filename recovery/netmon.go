package recovery

import (
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// NetworkState classifies the active network.
type NetworkState int

const (
	NetworkDisconnected NetworkState = iota
	NetworkWiFi
	NetworkMetered
	NetworkOther
)

func (s NetworkState) String() string {
	switch s {
	case NetworkDisconnected:
		return "disconnected"
	case NetworkWiFi:
		return "wifi"
	case NetworkMetered:
		return "metered"
	default:
		return "connected"
	}
}

// Connected reports whether the state allows traffic.
func (s NetworkState) Connected() bool {
	return s != NetworkDisconnected
}

// NetworkObserver reports the current network state and notifies on change.
// Unsubscribe functions must tolerate being called more than once.
type NetworkObserver interface {
	State() NetworkState
	Subscribe(func(NetworkState)) (unsubscribe func())
}

// InterfaceObserver polls the OS network interfaces and classifies the
// active network by interface name: wireless LAN interfaces map to WiFi,
// cellular/point-to-point interfaces to metered, anything else that is up
// and addressable to other-connected.
type InterfaceObserver struct {
	mu          sync.Mutex
	state       NetworkState
	subscribers map[int]func(NetworkState)
	nextID      int
	interval    time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// DefaultPollInterval is how often the network interfaces are re-read.
const DefaultPollInterval = 10 * time.Second

// NewInterfaceObserver starts a poller with the given interval. A
// non-positive interval gets the default.
func NewInterfaceObserver(interval time.Duration) *InterfaceObserver {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	o := &InterfaceObserver{
		state:       classifyInterfaces(),
		subscribers: make(map[int]func(NetworkState)),
		interval:    interval,
		stopCh:      make(chan struct{}),
	}
	go o.poll()
	return o
}

// State returns the last observed network state.
func (o *InterfaceObserver) State() NetworkState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Subscribe registers a change listener and returns its unsubscribe
// function. Unsubscribing twice is a no-op.
func (o *InterfaceObserver) Subscribe(fn func(NetworkState)) func() {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subscribers[id] = fn
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subscribers, id)
			o.mu.Unlock()
		})
	}
}

// Close stops the poller. Idempotent.
func (o *InterfaceObserver) Close() {
	o.stopOnce.Do(func() { close(o.stopCh) })
}

func (o *InterfaceObserver) poll() {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.update(classifyInterfaces())
		}
	}
}

func (o *InterfaceObserver) update(state NetworkState) {
	o.mu.Lock()
	if state == o.state {
		o.mu.Unlock()
		return
	}
	o.state = state
	listeners := make([]func(NetworkState), 0, len(o.subscribers))
	for _, fn := range o.subscribers {
		listeners = append(listeners, fn)
	}
	o.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "update",
		"state":    state.String(),
	}).Info("Network state changed")

	for _, fn := range listeners {
		fn(state)
	}
}

func classifyInterfaces() NetworkState {
	ifaces, err := net.Interfaces()
	if err != nil {
		return NetworkDisconnected
	}

	best := NetworkDisconnected
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}

		name := strings.ToLower(iface.Name)
		switch {
		case strings.HasPrefix(name, "wl"):
			return NetworkWiFi
		case strings.HasPrefix(name, "wwan"), strings.HasPrefix(name, "rmnet"), strings.HasPrefix(name, "ppp"):
			best = NetworkMetered
		default:
			if best == NetworkDisconnected {
				best = NetworkOther
			}
		}
	}

	return best
}
