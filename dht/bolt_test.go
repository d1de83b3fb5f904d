package dht

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/drand/assemble/assemble"
	"github.com/drand/assemble/log/testlogger"
)

func newTestBoltNetwork(t *testing.T, self assemble.PubKey, liveNodes int) *BoltNetwork {
	t.Helper()
	n, err := NewBoltNetwork(testlogger.New(t), filepath.Join(t.TempDir(), "assemble.db"), self, liveNodes)
	if err != nil {
		t.Fatalf("NewBoltNetwork: %v", err)
	}
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func TestBoltNetworkPutThenGetRoundTrips(t *testing.T) {
	n := newTestBoltNetwork(t, pubKey(1), 2)

	var putResp int
	n.Put([]byte("entry"), hash(1), func(entry []byte, responseCount int) {
		putResp = responseCount
	}, 0, 0, 0)
	if putResp != 2 {
		t.Fatalf("got responseCount %d, want 2", putResp)
	}

	var got []byte
	n.Get(pubKey(1), hash(1), 0, func(item []byte, authoritative bool) {
		got = item
	}, 0, 0, 0)
	if !bytes.Equal(got, []byte("entry")) {
		t.Fatalf("got %q, want %q", got, "entry")
	}
}

func TestBoltNetworkPersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "assemble.db")
	self := pubKey(1)

	n1, err := NewBoltNetwork(testlogger.New(t), dbPath, self, 1)
	if err != nil {
		t.Fatalf("NewBoltNetwork: %v", err)
	}
	n1.Put([]byte("persisted"), hash(7), func([]byte, int) {}, 0, 0, 0)
	if err := n1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	n2, err := NewBoltNetwork(testlogger.New(t), dbPath, self, 1)
	if err != nil {
		t.Fatalf("reopening NewBoltNetwork: %v", err)
	}
	defer n2.Close()

	var got []byte
	n2.Get(self, hash(7), 0, func(item []byte, authoritative bool) { got = item }, 0, 0, 0)
	if !bytes.Equal(got, []byte("persisted")) {
		t.Fatalf("got %q, want the entry to survive reopening the store", got)
	}
}

func TestBoltNetworkSendLoopsBackToSelf(t *testing.T) {
	self := pubKey(1)
	n := newTestBoltNetwork(t, self, 1)

	var gotFrom assemble.PubKey
	var gotPayload []byte
	n.OnRelay(func(from assemble.PubKey, payload []byte) {
		gotFrom = from
		gotPayload = payload
	})

	var successNodes []assemble.PubKey
	n.Send(self, []byte("loopback"), func(payload []byte, nodes []assemble.PubKey) {
		successNodes = nodes
	}, 0, 0, 0, 0)

	if gotFrom != self {
		t.Fatalf("got sender %v, want self", gotFrom)
	}
	if !bytes.Equal(gotPayload, []byte("loopback")) {
		t.Fatalf("got payload %q", gotPayload)
	}
	if len(successNodes) != 1 {
		t.Fatalf("got successNodes %v, want one entry", successNodes)
	}
}

func TestBoltNetworkSendToOtherReportsZeroSuccess(t *testing.T) {
	n := newTestBoltNetwork(t, pubKey(1), 1)

	var successNodes []assemble.PubKey
	n.Send(pubKey(2), []byte("hello"), func(payload []byte, nodes []assemble.PubKey) {
		successNodes = nodes
	}, 0, 0, 0, 0)
	if len(successNodes) != 0 {
		t.Fatalf("got %v, want no success nodes", successNodes)
	}
}

func TestBoltNetworkInjectBufferFull(t *testing.T) {
	n := newTestBoltNetwork(t, pubKey(1), 4)
	n.InjectBufferFull(1)

	if n.LiveNodeCount() != 0 {
		t.Fatal("expected the faulted call to report zero live nodes")
	}
	if n.LiveNodeCount() != 4 {
		t.Fatal("expected the next call to recover")
	}
}
