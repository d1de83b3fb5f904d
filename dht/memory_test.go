package dht

import (
	"bytes"
	"testing"

	"github.com/drand/assemble/assemble"
)

func pubKey(b byte) assemble.PubKey {
	var k assemble.PubKey
	k[0] = b
	return k
}

func hash(b byte) assemble.Hash {
	var h assemble.Hash
	h[0] = b
	return h
}

func TestMemoryNetworkPutThenGetRoundTrips(t *testing.T) {
	n := NewMemoryNetwork(pubKey(1), 3)

	var putResp int
	n.Put([]byte("entry"), hash(1), func(entry []byte, responseCount int) {
		putResp = responseCount
	}, 0, 0, 0)
	if putResp != 3 {
		t.Fatalf("got responseCount %d, want 3", putResp)
	}

	var got []byte
	n.Get(pubKey(1), hash(1), 0, func(item []byte, authoritative bool) {
		got = item
		if !authoritative {
			t.Fatal("expected an authoritative response")
		}
	}, 0, 0, 0)
	if !bytes.Equal(got, []byte("entry")) {
		t.Fatalf("got %q, want %q", got, "entry")
	}
}

func TestMemoryNetworkGetMissingKeyReturnsNil(t *testing.T) {
	n := NewMemoryNetwork(pubKey(1), 3)

	var got []byte
	called := false
	n.Get(pubKey(1), hash(9), 0, func(item []byte, authoritative bool) {
		called = true
		got = item
	}, 0, 0, 0)
	if !called {
		t.Fatal("expected the callback to fire")
	}
	if got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}

func TestMemoryNetworkInjectZeroResponsePuts(t *testing.T) {
	n := NewMemoryNetwork(pubKey(1), 5)
	n.InjectZeroResponsePuts(1)

	var first, second int
	n.Put([]byte("a"), hash(1), func(entry []byte, responseCount int) { first = responseCount }, 0, 0, 0)
	n.Put([]byte("b"), hash(2), func(entry []byte, responseCount int) { second = responseCount }, 0, 0, 0)

	if first != 0 {
		t.Fatalf("got %d, want the first put to be faulted to zero", first)
	}
	if second != 5 {
		t.Fatalf("got %d, want the second put to recover to liveNodes", second)
	}
}

func TestMemoryNetworkInjectBufferFull(t *testing.T) {
	n := NewMemoryNetwork(pubKey(1), 5)
	n.InjectBufferFull(2)

	if n.LiveNodeCount() != 0 {
		t.Fatal("expected the first faulted call to report zero live nodes")
	}
	if n.LiveNodeCount() != 0 {
		t.Fatal("expected the second faulted call to report zero live nodes")
	}
	if n.LiveNodeCount() != 5 {
		t.Fatal("expected the third call to recover to the real live node count")
	}
}

func TestMemoryNetworkInjectUndecodableGet(t *testing.T) {
	n := NewMemoryNetwork(pubKey(1), 3)
	n.Put([]byte("real entry"), hash(1), func([]byte, int) {}, 0, 0, 0)
	n.InjectUndecodableGets(1)

	var got []byte
	n.Get(pubKey(1), hash(1), 0, func(item []byte, authoritative bool) { got = item }, 0, 0, 0)
	if bytes.Equal(got, []byte("real entry")) {
		t.Fatal("expected the faulted get to return garbage, not the real entry")
	}
}

func TestClusterRelaysBetweenJoinedNodes(t *testing.T) {
	c := NewCluster()
	alice := c.Join(pubKey(1), 1)
	bob := c.Join(pubKey(2), 1)

	var gotFrom assemble.PubKey
	var gotPayload []byte
	bob.OnRelay(func(from assemble.PubKey, payload []byte) {
		gotFrom = from
		gotPayload = payload
	})

	var successNodes []assemble.PubKey
	alice.Send(pubKey(2), []byte("hello"), func(payload []byte, nodes []assemble.PubKey) {
		successNodes = nodes
	}, 0, 0, 0, 0)

	if gotFrom != pubKey(1) {
		t.Fatalf("got sender %v, want alice", gotFrom)
	}
	if !bytes.Equal(gotPayload, []byte("hello")) {
		t.Fatalf("got payload %q", gotPayload)
	}
	if len(successNodes) != 1 || successNodes[0] != pubKey(2) {
		t.Fatalf("got successNodes %v, want [bob]", successNodes)
	}
}

func TestClusterSendToUnknownReceiverReportsZeroSuccess(t *testing.T) {
	c := NewCluster()
	alice := c.Join(pubKey(1), 1)

	var successNodes []assemble.PubKey
	called := false
	alice.Send(pubKey(99), []byte("hello"), func(payload []byte, nodes []assemble.PubKey) {
		called = true
		successNodes = nodes
	}, 0, 0, 0, 0)

	if !called {
		t.Fatal("expected the callback to fire")
	}
	if len(successNodes) != 0 {
		t.Fatalf("got %v, want no success nodes", successNodes)
	}
}
