package assemble

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/drand/assemble/log"
	"github.com/drand/assemble/metrics"
)

// PutCallback fires once per put conclusion. A responseCount of 0
// means no peer accepted the write.
type PutCallback func(entry []byte, responseCount int)

// GetCallback fires on each DHT response for a get. Non-authoritative
// responses are forwarded but callers may ignore them.
type GetCallback func(item []byte, authoritative bool)

// SendCallback fires once for a relay send. An empty successNodes
// means no delivery.
type SendCallback func(payload []byte, successNodes []PubKey)

// Network is the upstream kademlia layer, consumed only through this
// interface: routing table, RPC wire format, and transport are out of
// scope for this module and are supplied by whatever implements
// Network (see package dht for a reference implementation used by
// tests and the demo daemon).
type Network interface {
	LiveNodeCount() int
	Put(entry []byte, salt Hash, cb PutCallback, branch, window, limit int)
	Get(key PubKey, salt Hash, timestamp int64, cb GetCallback, branch, window, limit int)
	Send(receiver PubKey, payload []byte, cb SendCallback, branch, window, limit, hitLimit int)
	OnRelay(fn func(from PubKey, payload []byte))
}

// RelayListener receives every incoming relay frame the Transporter
// demultiplexes, in registration order. Listeners must not block.
type RelayListener interface {
	OnIncomingRelay(from PubKey, payload []byte)
}

// Transporter owns the single FIFO of pending DHT invocations and
// drains it one-at-a-time on a timer paced by a CongestionController.
// It is the only component in this module that issues Network's Put,
// Get, and Send calls; the other components only read LiveNodeCount.
type Transporter struct {
	log        log.Logger
	network    Network
	congestion CongestionController
	clock      clockwork.Clock

	bufferThreshold int

	mu        sync.Mutex
	queue     []queuedInvocation
	running   bool
	stopCh    chan struct{}
	listeners []RelayListener
}

// queuedInvocation pairs a pending dispatch closure with the kind
// label metrics report it under.
type queuedInvocation struct {
	kind string
	fn   func()
}

// NewTransporter builds a Transporter over network, paced by
// congestion, admitting at most bufferThreshold queued invocations at
// a time.
func NewTransporter(l log.Logger, network Network, congestion CongestionController, clock clockwork.Clock, bufferThreshold int) *Transporter {
	return &Transporter{
		log:             l,
		network:         network,
		congestion:      congestion,
		clock:           clock,
		bufferThreshold: bufferThreshold,
	}
}

// Start begins dispatching queued invocations and registers the
// Transporter to receive incoming relay frames from the network.
func (t *Transporter) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	stopCh := t.stopCh
	t.mu.Unlock()

	t.network.OnRelay(t.onIncomingRelay)

	go t.dispatchLoop(stopCh)
}

// Stop halts dispatch and drops every queued invocation. Pending
// closures are not invoked; their contexts will never observe "done",
// which is the expected terminal state per spec's failure model.
func (t *Transporter) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	close(t.stopCh)
	t.queue = nil
}

func (t *Transporter) dispatchLoop(stopCh chan struct{}) {
	timer := t.clock.NewTimer(delayDuration(t.congestion.CurrentDelayMS()))
	defer timer.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-timer.Chan():
			t.dispatchOne()
			timer.Reset(delayDuration(t.congestion.CurrentDelayMS()))
		}
	}
}

func (t *Transporter) dispatchOne() {
	t.mu.Lock()
	if !t.running || len(t.queue) == 0 {
		t.mu.Unlock()
		return
	}
	if t.network.LiveNodeCount() <= 0 {
		t.mu.Unlock()
		return
	}
	next := t.queue[0]
	t.queue = t.queue[1:]
	depth := len(t.queue)
	t.mu.Unlock()

	metrics.SetQueueDepth(depth)
	next.fn()
	metrics.ObserveDispatch(next.kind)
	t.congestion.Tick()
}

// HasEnoughBuffer reports whether the queue has room for n more
// invocations under the configured threshold.
func (t *Transporter) HasEnoughBuffer(n int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)+n <= t.bufferThreshold
}

func (t *Transporter) enqueue(kind string, fn func()) ErrorCode {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return ErrTransportStopped
	}
	if len(t.queue) >= t.bufferThreshold {
		return ErrTransportBufferFull
	}
	t.queue = append(t.queue, queuedInvocation{kind, fn})
	metrics.ObserveEnqueue(kind)
	metrics.SetQueueDepth(len(t.queue))
	return NoError
}

// Get enqueues a get invocation.
func (t *Transporter) Get(key PubKey, salt Hash, timestamp int64, cb GetCallback, branch, window, limit int) ErrorCode {
	return t.enqueue("get", func() {
		t.network.Get(key, salt, timestamp, cb, branch, window, limit)
	})
}

// Put enqueues a put invocation.
func (t *Transporter) Put(entry []byte, salt Hash, cb PutCallback, branch, window, limit int) ErrorCode {
	return t.enqueue("put", func() {
		t.network.Put(entry, salt, cb, branch, window, limit)
	})
}

// Send enqueues a relay send invocation.
func (t *Transporter) Send(receiver PubKey, payload []byte, cb SendCallback, branch, window, limit, hitLimit int) ErrorCode {
	return t.enqueue("relay", func() {
		t.network.Send(receiver, payload, cb, branch, window, limit, hitLimit)
	})
}

// RegisterRelayListener adds l to the listener set, idempotently.
func (t *Transporter) RegisterRelayListener(l RelayListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.listeners {
		if existing == l {
			return
		}
	}
	t.listeners = append(t.listeners, l)
}

// UnregisterRelayListener removes l from the listener set.
func (t *Transporter) UnregisterRelayListener(l RelayListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, existing := range t.listeners {
		if existing == l {
			t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
			return
		}
	}
}

func (t *Transporter) onIncomingRelay(from PubKey, payload []byte) {
	t.mu.Lock()
	listeners := make([]RelayListener, len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()

	for _, l := range listeners {
		l.OnIncomingRelay(from, payload)
	}
}

// queueLen reports the current queue depth, for metrics and tests.
func (t *Transporter) queueLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// QueueDepth reports the number of invocations currently queued for
// dispatch, for status and metrics reporting.
func (t *Transporter) QueueDepth() int {
	return t.queueLen()
}

// CurrentDelay reports the dispatch loop's current inter-tick pacing,
// as read from the configured CongestionController.
func (t *Transporter) CurrentDelay() time.Duration {
	return delayDuration(t.congestion.CurrentDelayMS())
}

// LiveNodeCount reports the Network's current live node count.
func (t *Transporter) LiveNodeCount() int {
	return t.network.LiveNodeCount()
}
