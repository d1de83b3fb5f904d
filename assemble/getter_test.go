package assemble

import (
	"bytes"
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/drand/assemble/log/testlogger"
)

func newTestGetter(t *testing.T, network *fakeNetwork, sink *fakeSink) *Getter {
	t.Helper()
	l := testlogger.New(t)
	congestion := NewFixedCongestionController(1)
	tr := NewTransporter(l, network, congestion, clockwork.NewRealClock(), 64)
	tr.Start()
	t.Cleanup(tr.Stop)
	return NewGetter(l, network, tr, sink, DefaultLimits())
}

func TestGetFetchesIndexThenSegmentsAndReassembles(t *testing.T) {
	network := newFakeNetwork(1)
	sink := newFakeSink()
	getter := newTestGetter(t, network, sink)

	var sender PubKey
	sender[0] = 1
	var uri URI
	uri[0] = 2
	seg0 := []byte("first segment payload")
	seg1 := []byte("second segment payload")
	hash0 := ContentHash(seg0)
	hash1 := ContentHash(seg1)

	indexFrame := IndexFrame{Hashes: [][hashSize]byte{hash0, hash1}}
	network.setGetResponses(Hash(uri), indexFrame.encode())
	network.setGetResponses(hash0, SegmentFrame{Payload: seg0}.encode())
	network.setGetResponses(hash1, SegmentFrame{Payload: seg1}.encode())

	if err := getter.Get(sender, uri, 42); err != NoError {
		t.Fatalf("Get returned %v", err)
	}
	waitOrTimeout(t, sink.getDoneCh, "get done")

	if sink.lastGetErr != NoError {
		t.Fatalf("get finished with error %v", sink.lastGetErr)
	}
	want := append(append([]byte{}, seg0...), seg1...)
	if !bytes.Equal(sink.lastPayload, want) {
		t.Fatalf("got %q, want %q", sink.lastPayload, want)
	}
}

func TestGetFailsOnEmptyIndex(t *testing.T) {
	network := newFakeNetwork(1)
	sink := newFakeSink()
	getter := newTestGetter(t, network, sink)

	var uri URI
	uri[0] = 3
	network.setGetResponses(Hash(uri), IndexFrame{}.encode())

	if err := getter.Get(PubKey{}, uri, 1); err != NoError {
		t.Fatalf("Get returned %v", err)
	}
	waitOrTimeout(t, sink.getDoneCh, "get done on empty index")

	if sink.lastGetErr != ErrEmptyBlobIndex {
		t.Fatalf("got %v, want ErrEmptyBlobIndex", sink.lastGetErr)
	}
}

func TestGetRetriesUndecodableIndexThenSucceeds(t *testing.T) {
	network := newFakeNetwork(1)
	sink := newFakeSink()
	getter := newTestGetter(t, network, sink)

	var uri URI
	uri[0] = 4
	seg := []byte("only segment")
	segHash := ContentHash(seg)
	indexFrame := IndexFrame{Hashes: [][hashSize]byte{segHash}}

	network.setGetResponses(Hash(uri), []byte("garbage, not a frame"), indexFrame.encode())
	network.setGetResponses(segHash, SegmentFrame{Payload: seg}.encode())

	if err := getter.Get(PubKey{}, uri, 1); err != NoError {
		t.Fatalf("Get returned %v", err)
	}
	waitOrTimeout(t, sink.getDoneCh, "get done after index retry")

	if sink.lastGetErr != NoError {
		t.Fatalf("expected eventual success, got %v", sink.lastGetErr)
	}
	if !bytes.Equal(sink.lastPayload, seg) {
		t.Fatalf("got %q, want %q", sink.lastPayload, seg)
	}
}

func TestGetExhaustsRetriesAndReportsDecodeFailure(t *testing.T) {
	network := newFakeNetwork(1)
	sink := newFakeSink()
	getter := newTestGetter(t, network, sink)

	var uri URI
	uri[0] = 5
	network.setGetResponses(Hash(uri), []byte("x"), []byte("y"), []byte("z"))

	if err := getter.Get(PubKey{}, uri, 1); err != NoError {
		t.Fatalf("Get returned %v", err)
	}
	waitOrTimeout(t, sink.getDoneCh, "get done after exhausted retries")

	if sink.lastGetErr != ErrGetTooManyTimes && sink.lastGetErr != ErrAssembleProtocolFormatError {
		t.Fatalf("got %v, want a terminal decode failure code", sink.lastGetErr)
	}
}

func TestGetRejectsWithoutLiveNodes(t *testing.T) {
	network := newFakeNetwork(0)
	sink := newFakeSink()
	getter := newTestGetter(t, network, sink)

	if err := getter.Get(PubKey{}, URI{}, 1); err != ErrDHTLiveNodesZero {
		t.Fatalf("got %v, want ErrDHTLiveNodesZero", err)
	}
}

func TestHandleIncomingURIOnlyPostsEvent(t *testing.T) {
	network := newFakeNetwork(1)
	sink := newFakeSink()
	getter := newTestGetter(t, network, sink)

	var sender PubKey
	sender[0] = 6
	var uri URI
	uri[0] = 7
	getter.HandleIncomingURI(sender, uri, 99)

	if len(sink.incomingURIs) != 1 {
		t.Fatalf("got %d incoming uri events, want 1", len(sink.incomingURIs))
	}
	got := sink.incomingURIs[0]
	if got.sender != sender || got.uri != uri || got.ts != 99 {
		t.Fatalf("got %+v", got)
	}

	network.mu.Lock()
	getCount := len(network.getLog)
	network.mu.Unlock()
	if getCount != 0 {
		t.Fatal("HandleIncomingURI must not trigger an automatic fetch")
	}
}
