package assemble

import (
	"sync"

	"github.com/drand/assemble/log"
	"github.com/drand/assemble/metrics"
)

// Putter implements spec's put algorithm: split a blob into segments,
// publish the last segment first, then the remaining segments
// front-to-back, then the index record — in that dispatch order, so
// the index is never observably enqueued before every segment it
// references.
type Putter struct {
	log         log.Logger
	network     Network
	transporter *Transporter
	sink        Sink
	limits      Limits

	// mu guards contexts and every field of the *PutContext values it
	// holds: Put runs on the caller's goroutine, while onPutCallback
	// runs on the Transporter's dispatch goroutine, and both touch the
	// same context.
	mu       sync.Mutex
	contexts map[uint32]*PutContext
}

// NewPutter builds a Putter over transporter, posting terminal events
// to sink.
func NewPutter(l log.Logger, network Network, transporter *Transporter, sink Sink, limits Limits) *Putter {
	return &Putter{
		log:         l,
		network:     network,
		transporter: transporter,
		sink:        sink,
		limits:      limits,
		contexts:    make(map[uint32]*PutContext),
	}
}

// Put splits blob into segments, publishes them and the index record
// for (owner, uri), and returns a local admission error synchronously.
// The terminal outcome is reported to the Sink via PutDone.
func (p *Putter) Put(owner PubKey, uri URI, blob []byte) ErrorCode {
	if len(blob) > p.limits.BlobMTU {
		return ErrBlobTooLarge
	}
	if p.network.LiveNodeCount() <= 0 {
		return ErrDHTLiveNodesZero
	}

	segCount := segmentCount(len(blob), p.limits.BlobSegMTU)
	if !p.transporter.HasEnoughBuffer(segCount + 1) {
		return ErrTransportBufferFull
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ctx := NewPutContext(owner, uri, segCount)
	p.contexts[ctx.ID] = ctx

	segments := splitSegments(blob, p.limits.BlobSegMTU, segCount)

	hashes := make([]Hash, segCount)
	for i, seg := range segments {
		hashes[i] = ContentHash(seg)
	}

	// Publish the last segment first.
	lastIdx := segCount - 1
	p.enqueueSegment(ctx, hashes[lastIdx], segments[lastIdx])

	// Then the remaining segments, front-to-back.
	for i := 0; i < lastIdx; i++ {
		p.enqueueSegment(ctx, hashes[i], segments[i])
	}

	// The index is always enqueued after every segment enqueue attempt,
	// whether or not all of them succeeded (invariant 4, spec §8).
	ctx.RootIndex = hashes
	p.enqueueIndex(ctx)

	p.maybeFinishLocked(ctx)
	return NoError
}

// enqueueSegment and everything below it assumes p.mu is already held.

func (p *Putter) enqueueSegment(ctx *PutContext, h Hash, payload []byte) {
	entry := SegmentFrame{Payload: payload}.encode()
	ctx.Entries[h] = entry
	p.dispatchPut(ctx, h, entry)
}

func (p *Putter) enqueueIndex(ctx *PutContext) {
	salt := Hash(ctx.URI)
	entry := IndexFrame{Hashes: ctx.RootIndex}.encode()
	ctx.Entries[salt] = entry
	p.dispatchPut(ctx, salt, entry)
}

func (p *Putter) dispatchPut(ctx *PutContext, h Hash, entry []byte) {
	params := ParamsFor(OpPut)
	err := p.transporter.Put(entry, h, p.onPutCallback(ctx, h), params.Branch, params.Window, params.Limit)
	if err == NoError {
		ctx.MarkInFlight(h)
	} else {
		ctx.Err = err
	}
}

func (p *Putter) onPutCallback(ctx *PutContext, h Hash) PutCallback {
	return func(_ []byte, responseCount int) {
		p.mu.Lock()
		defer p.mu.Unlock()

		ctx.Resolve(h, responseCount)
		if responseCount == 0 {
			if ctx.CanRetry(h, p.limits.ReputTimesLimit) {
				metrics.ObserveRetry("put")
				p.dispatchPut(ctx, h, ctx.Entries[h])
				return
			}
			ctx.Err = ErrPutResponseZero
		}
		p.maybeFinishLocked(ctx)
	}
}

func (p *Putter) maybeFinishLocked(ctx *PutContext) {
	if !ctx.Done() {
		return
	}
	delete(p.contexts, ctx.ID)
	metrics.ObserveTerminalError(ctx.Err.String())
	p.sink.PutDone(ctx.URI, ctx.Err)
}

func segmentCount(blobLen, segMTU int) int {
	if blobLen == 0 {
		return 1
	}
	return (blobLen + segMTU - 1) / segMTU
}

func splitSegments(blob []byte, segMTU, segCount int) [][]byte {
	segments := make([][]byte, segCount)
	for i := 0; i < segCount; i++ {
		start := i * segMTU
		end := start + segMTU
		if end > len(blob) {
			end = len(blob)
		}
		segments[i] = blob[start:end]
	}
	return segments
}
