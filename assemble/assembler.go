package assemble

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/drand/assemble/log"
)

// Assembler is the façade an embedding application talks to: it holds
// the Transporter and the three verb sub-components, and forwards each
// user verb after stamping it with the current self public key.
type Assembler struct {
	log         log.Logger
	transporter *Transporter
	putter      *Putter
	getter      *Getter
	relayer     *Relayer
	dispatcher  *RelayDispatcher

	mu   sync.RWMutex
	self PubKey
}

// NewAssembler wires a Transporter and its Putter/Getter/Relayer over
// network, reporting to sink and bounded by limits.
func NewAssembler(l log.Logger, network Network, congestion CongestionController, clock clockwork.Clock, bufferThreshold int, sink Sink, limits Limits) *Assembler {
	transporter := NewTransporter(l.Named("transporter"), network, congestion, clock, bufferThreshold)
	putter := NewPutter(l.Named("putter"), network, transporter, sink, limits)
	getter := NewGetter(l.Named("getter"), network, transporter, sink, limits)
	relayer := NewRelayer(l.Named("relayer"), network, transporter, sink, limits)
	dispatcher := NewRelayDispatcher(l.Named("dispatcher"), getter, relayer)

	return &Assembler{
		log:         l,
		transporter: transporter,
		putter:      putter,
		getter:      getter,
		relayer:     relayer,
		dispatcher:  dispatcher,
	}
}

// Start begins dispatching and registers the relay dispatcher.
func (a *Assembler) Start() {
	a.transporter.Start()
	a.transporter.RegisterRelayListener(a.dispatcher)
}

// Stop halts dispatch; see Transporter.Stop for the failure model this
// implies for any in-flight operation.
func (a *Assembler) Stop() {
	a.transporter.Stop()
}

// UpdateNodeID sets the public key the Assembler stamps onto outgoing
// puts and relays as "self".
func (a *Assembler) UpdateNodeID(self PubKey) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.self = self
}

func (a *Assembler) selfKey() PubKey {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.self
}

// SelfKey returns the public key the Assembler stamps onto outgoing
// puts and relays, for status reporting.
func (a *Assembler) SelfKey() PubKey {
	return a.selfKey()
}

// QueueDepth reports the Transporter's current queue depth.
func (a *Assembler) QueueDepth() int {
	return a.transporter.QueueDepth()
}

// CurrentDelay reports the Transporter's current dispatch pacing.
func (a *Assembler) CurrentDelay() time.Duration {
	return a.transporter.CurrentDelay()
}

// LiveNodeCount reports the Network's current live node count.
func (a *Assembler) LiveNodeCount() int {
	return a.transporter.LiveNodeCount()
}

// Put publishes blob under (self, uri).
func (a *Assembler) Put(uri URI, blob []byte) ErrorCode {
	return a.putter.Put(a.selfKey(), uri, blob)
}

// Get fetches the blob published by sender under (uri, ts).
func (a *Assembler) Get(sender PubKey, uri URI, ts int64) ErrorCode {
	return a.getter.Get(sender, uri, ts)
}

// RelayMessage sends an opaque message to receiver.
func (a *Assembler) RelayMessage(receiver PubKey, message []byte) ErrorCode {
	return a.relayer.RelayMessage(a.selfKey(), receiver, message)
}

// RelayURI announces that self has published uri at ts, to receiver.
func (a *Assembler) RelayURI(receiver PubKey, uri URI, ts int64) ErrorCode {
	return a.relayer.RelayURI(a.selfKey(), receiver, uri, ts)
}
