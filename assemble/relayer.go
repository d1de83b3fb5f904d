package assemble

import (
	"sync"

	"github.com/drand/assemble/log"
	"github.com/drand/assemble/metrics"
)

// Relayer implements spec's two relay verbs — opaque message relay and
// URI-announcement relay — plus the incoming-message half of the
// relay dispatcher's fan-out.
type Relayer struct {
	log         log.Logger
	network     Network
	transporter *Transporter
	sink        Sink
	limits      Limits

	// mu guards contexts: RelayMessage/RelayURI run on the caller's
	// goroutine, while onSendCallback runs on the Transporter's dispatch
	// goroutine, and both touch the same map and context.
	mu       sync.Mutex
	contexts map[uint32]*RelayContext
}

// NewRelayer builds a Relayer over transporter, posting terminal
// outcomes to sink.
func NewRelayer(l log.Logger, network Network, transporter *Transporter, sink Sink, limits Limits) *Relayer {
	return &Relayer{
		log:         l,
		network:     network,
		transporter: transporter,
		sink:        sink,
		limits:      limits,
		contexts:    make(map[uint32]*RelayContext),
	}
}

// RelayMessage sends an opaque message to receiver. Terminal outcome
// is reported via RelayMessageDone.
func (r *Relayer) RelayMessage(self PubKey, receiver PubKey, message []byte) ErrorCode {
	if len(message) > r.limits.RelayMsgMTU {
		return ErrBlobTooLarge
	}
	if r.network.LiveNodeCount() <= 0 {
		return ErrDHTLiveNodesZero
	}
	if !r.transporter.HasEnoughBuffer(1) {
		return ErrTransportBufferFull
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	msgID := MessageID(message, receiver)
	ctx := NewRelayContext(receiver, msgID, RelayVariantMessage)
	r.contexts[ctx.ID] = ctx

	frame := RelayMsgFrame{Message: message}
	params := ParamsFor(OpRelay)
	err := r.transporter.Send(receiver, frame.encode(), r.onSendCallback(ctx), params.Branch, params.Window, params.Limit, params.HitLimit)
	if err != NoError {
		delete(r.contexts, ctx.ID)
		metrics.ObserveTerminalError(err.String())
		r.sink.RelayMessageDone(receiver, err)
		return NoError
	}
	return NoError
}

// RelayURI announces that self has published uri at ts, to receiver.
// Terminal outcome is reported via RelayURIDone.
func (r *Relayer) RelayURI(self PubKey, receiver PubKey, uri URI, ts int64) ErrorCode {
	if r.network.LiveNodeCount() <= 0 {
		return ErrDHTLiveNodesZero
	}
	if !r.transporter.HasEnoughBuffer(1) {
		return ErrTransportBufferFull
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	msgID := URIMessageID(receiver, uri)
	ctx := NewRelayContext(receiver, msgID, RelayVariantURI)
	ctx.URI = uri
	ctx.Ts = ts
	r.contexts[ctx.ID] = ctx

	frame := RelayURIFrame{Sender: self, URI: uri, Ts: ts}
	params := ParamsFor(OpRelay)
	err := r.transporter.Send(receiver, frame.encode(), r.onSendCallback(ctx), params.Branch, params.Window, params.Limit, params.HitLimit)
	if err != NoError {
		delete(r.contexts, ctx.ID)
		metrics.ObserveTerminalError(err.String())
		r.sink.RelayURIDone(receiver, uri, ts, err)
		return NoError
	}
	return NoError
}

func (r *Relayer) onSendCallback(ctx *RelayContext) SendCallback {
	return func(_ []byte, successNodes []PubKey) {
		r.mu.Lock()
		defer r.mu.Unlock()

		delete(r.contexts, ctx.ID)
		if len(successNodes) == 0 {
			ctx.Err = ErrRelayResponseZero
		}
		metrics.ObserveTerminalError(ctx.Err.String())
		switch ctx.Variant {
		case RelayVariantMessage:
			r.sink.RelayMessageDone(ctx.Receiver, ctx.Err)
		case RelayVariantURI:
			r.sink.RelayURIDone(ctx.Receiver, ctx.URI, ctx.Ts, ctx.Err)
		}
	}
}

// HandleIncomingMessage is invoked by the relay dispatcher when a
// decoded relay-msg frame arrives from from.
func (r *Relayer) HandleIncomingMessage(from PubKey, payload []byte) {
	r.sink.IncomingRelayMessage(from, payload)
}
