package platform

import (
	"net"
	"sync"
	"time"

	"github.com/torsvc/tor-runtime/capability"
)

// PollingNetworkObserver is a minimal capability.NetworkObserver that
// polls a well-known loopback-reachable check target rather than reading
// native OS connectivity notifications. Real deployments should inject a
// platform-native observer (Android ConnectivityManager, NetworkManager
// D-Bus signals, …); this implementation only exists so the runtime has a
// usable default when the host application supplies none, matching
// SPEC_FULL.md §9's treatment of NetworkObserver as an external
// collaborator reached only through its capability interface.
type PollingNetworkObserver struct {
	target   string
	interval time.Duration

	mu   sync.Mutex
	subs map[int]func(capability.NetworkState)
	next int

	stop chan struct{}
}

// NewPollingNetworkObserver starts polling target (host:port) every
// interval. Call Close to stop the background goroutine.
func NewPollingNetworkObserver(target string, interval time.Duration) *PollingNetworkObserver {
	o := &PollingNetworkObserver{
		target:   target,
		interval: interval,
		subs:     make(map[int]func(capability.NetworkState)),
		stop:     make(chan struct{}),
	}
	go o.loop()
	return o
}

func (o *PollingNetworkObserver) loop() {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	last := capability.NetworkUnknown
	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			state := capability.NetworkDisconnected
			conn, err := net.DialTimeout("tcp", o.target, o.interval/2)
			if err == nil {
				state = capability.NetworkConnected
				conn.Close()
			}
			if state != last {
				last = state
				o.notify(state)
			}
		}
	}
}

func (o *PollingNetworkObserver) notify(state capability.NetworkState) {
	o.mu.Lock()
	fns := make([]func(capability.NetworkState), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.mu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}

func (o *PollingNetworkObserver) Subscribe(fn func(capability.NetworkState)) (cancel func()) {
	o.mu.Lock()
	id := o.next
	o.next++
	o.subs[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

// Close stops the polling goroutine.
func (o *PollingNetworkObserver) Close() {
	close(o.stop)
}
