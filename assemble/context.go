package assemble

import "sync/atomic"

// PubKey is a publisher or receiver's 32-byte public key.
type PubKey [pubKeySize]byte

// URI is the application-chosen 20-byte label for a logical blob owned
// by one PubKey.
type URI [hashSize]byte

// Hash is a 20-byte content hash, used as a segment's salt and as a
// map key throughout the put/get contexts.
type Hash [hashSize]byte

var nextContextID uint32

// newContextID hands out a process-unique, monotonically increasing
// 32-bit id. The id keys each sub-component's map of running
// contexts. Pending callback closures capture the context pointer
// itself, not the id, so a callback still acts on its context after
// the context has been removed from that map.
func newContextID() uint32 {
	return atomic.AddUint32(&nextContextID, 1)
}

// RelayVariant distinguishes the two kinds of relay a RelayContext can
// track.
type RelayVariant int

const (
	// RelayVariantMessage is an opaque message relay.
	RelayVariantMessage RelayVariant = iota
	// RelayVariantURI is a blob-announcement relay.
	RelayVariantURI
)

// PutContext tracks one in-flight put operation: the owner and URI it
// is publishing under, every segment hash it has enqueued (and how
// many times), and which of those are still outstanding.
type PutContext struct {
	ID    uint32
	Owner PubKey
	URI   URI

	SegCount int

	// RootIndex is filled in once every segment has been enqueued,
	// front-to-back order, immediately before the index record itself
	// is enqueued.
	RootIndex []Hash

	Invocations  map[Hash]int
	LastResponse map[Hash]int
	InFlight     map[Hash]struct{}

	// Entries retains the encoded frame bytes last enqueued for each
	// hash, so a zero-response retry can resubmit the identical record
	// without regenerating it from the original blob.
	Entries map[Hash][]byte

	Err ErrorCode
}

// NewPutContext allocates a fresh context for a put of segCount
// segments under (owner, uri).
func NewPutContext(owner PubKey, uri URI, segCount int) *PutContext {
	return &PutContext{
		ID:           newContextID(),
		Owner:        owner,
		URI:          uri,
		SegCount:     segCount,
		Invocations:  make(map[Hash]int),
		LastResponse: make(map[Hash]int),
		InFlight:     make(map[Hash]struct{}),
		Entries:      make(map[Hash][]byte),
	}
}

// MarkInFlight records that an invocation for hash has been enqueued.
func (c *PutContext) MarkInFlight(h Hash) {
	c.InFlight[h] = struct{}{}
	c.Invocations[h]++
}

// Resolve removes hash from the in-flight set after its put callback
// fires, recording the response count observed.
func (c *PutContext) Resolve(h Hash, responseCount int) {
	delete(c.InFlight, h)
	c.LastResponse[h] = responseCount
}

// Done reports whether every enqueued record has resolved.
func (c *PutContext) Done() bool {
	return len(c.InFlight) == 0
}

// CanRetry reports whether hash may be re-enqueued under the
// configured reput limit.
func (c *PutContext) CanRetry(h Hash, reputTimesLimit int) bool {
	return c.Invocations[h] < reputTimesLimit
}

// GetContext tracks one in-flight get operation: the index fetch, the
// segment fan-out it spawns once the index decodes, and the payload
// map being assembled.
type GetContext struct {
	ID     uint32
	Sender PubKey
	URI    URI
	Ts     int64

	// URIHash is the salt the index record is stored under; spec
	// defines it as the first 20 bytes of the URI, which — since URI is
	// itself exactly 20 bytes — is the URI verbatim.
	URIHash Hash

	FetchCount map[Hash]int
	InFlight   map[Hash]struct{}

	// RootIndex is nil until the index record has been fetched and
	// decoded successfully.
	RootIndex []Hash
	Segments  map[Hash][]byte

	PayloadSize int
	Err         ErrorCode
}

// NewGetContext allocates a fresh context for a get of (sender, uri,
// ts).
func NewGetContext(sender PubKey, uri URI, ts int64) *GetContext {
	return &GetContext{
		ID:         newContextID(),
		Sender:     sender,
		URI:        uri,
		Ts:         ts,
		URIHash:    Hash(uri),
		FetchCount: make(map[Hash]int),
		InFlight:   make(map[Hash]struct{}),
		Segments:   make(map[Hash][]byte),
	}
}

// MarkInFlight records that a fetch for hash has been enqueued.
func (c *GetContext) MarkInFlight(h Hash) {
	c.InFlight[h] = struct{}{}
	c.FetchCount[h]++
}

// Resolve removes hash from the in-flight set once its callback fires
// with an authoritative response.
func (c *GetContext) Resolve(h Hash) {
	delete(c.InFlight, h)
}

// Done reports whether every in-flight fetch has resolved.
func (c *GetContext) Done() bool {
	return len(c.InFlight) == 0
}

// CanRetry reports whether hash may be re-fetched under the configured
// reget limit.
func (c *GetContext) CanRetry(h Hash, regetTimesLimit int) bool {
	return c.FetchCount[h] < regetTimesLimit
}

// Reassemble concatenates the payload of every hash listed in
// RootIndex, in order. It fails if the index and payload map
// disagree in size or membership — spec's admission rule for
// reassembly.
func (c *GetContext) Reassemble() ([]byte, bool) {
	if len(c.RootIndex) != len(c.Segments) {
		return nil, false
	}
	out := make([]byte, 0, len(c.Segments)*BlobSegMTU)
	for _, h := range c.RootIndex {
		seg, ok := c.Segments[h]
		if !ok {
			return nil, false
		}
		out = append(out, seg...)
	}
	return out, true
}

// RelayContext tracks one in-flight relay (message or URI
// announcement).
type RelayContext struct {
	ID       uint32
	Receiver PubKey
	MsgID    Hash
	Variant  RelayVariant

	// URI and Ts are only meaningful when Variant == RelayVariantURI.
	URI URI
	Ts  int64

	Err ErrorCode
}

// NewRelayContext allocates a fresh relay context.
func NewRelayContext(receiver PubKey, msgID Hash, variant RelayVariant) *RelayContext {
	return &RelayContext{
		ID:       newContextID(),
		Receiver: receiver,
		MsgID:    msgID,
		Variant:  variant,
	}
}
