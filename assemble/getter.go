package assemble

import (
	"sync"

	"github.com/drand/assemble/log"
	"github.com/drand/assemble/metrics"
)

// Getter implements spec's get state machine: fetch the index record,
// then fan out one fetch per listed segment hash, reassembling the
// blob once every fetch has resolved.
type Getter struct {
	log         log.Logger
	network     Network
	transporter *Transporter
	sink        Sink
	limits      Limits

	// mu guards contexts and every field of the *GetContext values it
	// holds: Get runs on the caller's goroutine, while the index/segment
	// callbacks run on the Transporter's dispatch goroutine, and both
	// touch the same context.
	mu       sync.Mutex
	contexts map[uint32]*GetContext
}

// NewGetter builds a Getter over transporter, posting terminal
// outcomes to sink.
func NewGetter(l log.Logger, network Network, transporter *Transporter, sink Sink, limits Limits) *Getter {
	return &Getter{
		log:         l,
		network:     network,
		transporter: transporter,
		sink:        sink,
		limits:      limits,
		contexts:    make(map[uint32]*GetContext),
	}
}

// Get fetches the blob published by sender under (uri, ts). The
// terminal outcome — payload or error — is reported via GetDone.
func (g *Getter) Get(sender PubKey, uri URI, ts int64) ErrorCode {
	if g.network.LiveNodeCount() <= 0 {
		return ErrDHTLiveNodesZero
	}
	if !g.transporter.HasEnoughBuffer(1) {
		return ErrTransportBufferFull
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ctx := NewGetContext(sender, uri, ts)
	g.contexts[ctx.ID] = ctx
	g.fetchIndex(ctx)
	return NoError
}

// fetchIndex and everything below it assumes g.mu is already held.

func (g *Getter) fetchIndex(ctx *GetContext) {
	params := ParamsFor(OpGet)
	err := g.transporter.Get(ctx.Sender, ctx.URIHash, ctx.Ts, g.onIndexCallback(ctx), params.Branch, params.Window, params.Limit)
	if err == NoError {
		ctx.MarkInFlight(ctx.URIHash)
	} else {
		ctx.Err = err
		g.maybeFinishLocked(ctx)
	}
}

func (g *Getter) onIndexCallback(ctx *GetContext) GetCallback {
	return func(item []byte, authoritative bool) {
		if !authoritative {
			return
		}
		g.mu.Lock()
		defer g.mu.Unlock()

		ctx.Resolve(ctx.URIHash)

		frame, code := DecodeFrame(item)
		if code != NoError {
			g.retryOrFail(ctx, ctx.URIHash, g.fetchIndex, code)
			return
		}
		indexFrame, ok := frame.(IndexFrame)
		if !ok {
			g.retryOrFail(ctx, ctx.URIHash, g.fetchIndex, ErrAssembleNameError)
			return
		}
		if len(indexFrame.Hashes) == 0 {
			ctx.Err = ErrEmptyBlobIndex
			g.maybeFinishLocked(ctx)
			return
		}

		ctx.RootIndex = indexFrame.Hashes
		g.fanOutSegments(ctx)
	}
}

func (g *Getter) fanOutSegments(ctx *GetContext) {
	params := ParamsFor(OpGet)
	for _, h := range ctx.RootIndex {
		h := h
		if !g.transporter.HasEnoughBuffer(1) {
			ctx.Err = ErrTransportBufferFull
			continue
		}
		err := g.transporter.Get(ctx.Sender, h, ctx.Ts, g.onSegmentCallback(ctx, h), params.Branch, params.Window, params.Limit)
		if err == NoError {
			ctx.MarkInFlight(h)
		} else {
			ctx.Err = err
		}
	}
	g.maybeFinishLocked(ctx)
}

func (g *Getter) onSegmentCallback(ctx *GetContext, h Hash) GetCallback {
	return func(item []byte, authoritative bool) {
		if !authoritative {
			return
		}
		g.mu.Lock()
		defer g.mu.Unlock()

		ctx.Resolve(h)

		frame, code := DecodeFrame(item)
		if code != NoError {
			g.retryOrFailSegment(ctx, h, code)
			return
		}
		segFrame, ok := frame.(SegmentFrame)
		if !ok {
			g.retryOrFailSegment(ctx, h, ErrAssembleNameError)
			return
		}
		ctx.Segments[h] = segFrame.Payload
		ctx.PayloadSize += len(segFrame.Payload)
		g.maybeFinishLocked(ctx)
	}
}

func (g *Getter) retryOrFail(ctx *GetContext, h Hash, retry func(*GetContext), code ErrorCode) {
	if ctx.CanRetry(h, g.limits.RegetTimesLimit) {
		metrics.ObserveRetry("get")
		retry(ctx)
		return
	}
	ctx.Err = code
	g.maybeFinishLocked(ctx)
}

func (g *Getter) retryOrFailSegment(ctx *GetContext, h Hash, code ErrorCode) {
	if ctx.CanRetry(h, g.limits.RegetTimesLimit) {
		metrics.ObserveRetry("get")
		params := ParamsFor(OpGet)
		err := g.transporter.Get(ctx.Sender, h, ctx.Ts, g.onSegmentCallback(ctx, h), params.Branch, params.Window, params.Limit)
		if err == NoError {
			ctx.MarkInFlight(h)
		} else {
			ctx.Err = err
			g.maybeFinishLocked(ctx)
		}
		return
	}
	ctx.Err = code
	g.maybeFinishLocked(ctx)
}

func (g *Getter) maybeFinishLocked(ctx *GetContext) {
	if !ctx.Done() {
		return
	}
	delete(g.contexts, ctx.ID)

	if ctx.RootIndex == nil {
		err := errOr(ctx.Err, ErrGetTooManyTimes)
		metrics.ObserveTerminalError(err.String())
		g.sink.GetDone(ctx.Sender, ctx.URI, ctx.Ts, nil, err)
		return
	}

	payload, ok := ctx.Reassemble()
	if !ok {
		err := ctx.Err
		if err == NoError {
			err = ErrGetTooManyTimes
		}
		metrics.ObserveTerminalError(err.String())
		g.sink.GetDone(ctx.Sender, ctx.URI, ctx.Ts, nil, err)
		return
	}
	metrics.ObserveTerminalError(ctx.Err.String())
	g.sink.GetDone(ctx.Sender, ctx.URI, ctx.Ts, payload, ctx.Err)
}

// HandleIncomingURI is invoked by the relay dispatcher when a decoded
// relay-URI frame arrives. Per spec it only posts an event; the
// application decides whether to follow up with Get.
func (g *Getter) HandleIncomingURI(sender PubKey, uri URI, ts int64) {
	g.sink.IncomingRelayURI(sender, uri, ts)
}

func errOr(primary, fallback ErrorCode) ErrorCode {
	if primary != NoError {
		return primary
	}
	return fallback
}
