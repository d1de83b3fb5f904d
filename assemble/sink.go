package assemble

// Sink is the downstream event collaborator: every terminal outcome
// and unsolicited incoming frame is posted here, never returned from a
// verb call. Implementations must not block — they run on the same
// loop as the rest of this module (see package events for a
// channel-backed implementation).
type Sink interface {
	PutDone(uri URI, err ErrorCode)
	GetDone(sender PubKey, uri URI, ts int64, payload []byte, err ErrorCode)
	RelayMessageDone(receiver PubKey, err ErrorCode)
	RelayURIDone(receiver PubKey, uri URI, ts int64, err ErrorCode)
	IncomingRelayURI(sender PubKey, uri URI, ts int64)
	IncomingRelayMessage(from PubKey, payload []byte)
}

// Limits gathers the tunable bounds spec names as constants:
// blob/segment/relay MTUs, index fan-out width, and the two retry
// budgets. Config loading lives in package config; this struct is what
// every assemble component actually reads.
type Limits struct {
	BlobMTU         int
	BlobSegMTU      int
	RelayMsgMTU     int
	IndexHashCount  int
	ReputTimesLimit int
	RegetTimesLimit int
}

// DefaultLimits returns the limits named in spec.
func DefaultLimits() Limits {
	return Limits{
		BlobMTU:         BlobMTU,
		BlobSegMTU:      BlobSegMTU,
		RelayMsgMTU:     RelayMsgMTU,
		IndexHashCount:  IndexHashCount,
		ReputTimesLimit: 3,
		RegetTimesLimit: 3,
	}
}
