// Package dht supplies assemble.Network test doubles: Cluster/MemoryNetwork
// simulate an in-process DHT fabric over github.com/ipfs/go-datastore,
// and BoltNetwork persists entries with go.etcd.io/bbolt for the
// standalone demo daemon. Both support the same fault-injection hooks
// for admission rejection, zero-response puts, and undecodable payloads.
// The engine's own tests in package assemble use an in-package fake
// Network rather than these doubles.
package dht

import (
	"context"
	"encoding/hex"
	"sync"

	datastore "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"

	"github.com/drand/assemble/assemble"
)

// Cluster is the shared storage and relay fabric behind every
// MemoryNetwork handle joined to it. One Cluster simulates one DHT;
// each node in a test topology joins it with its own identity and its
// own fault-injection knobs.
type Cluster struct {
	store datastore.Datastore

	mu        sync.Mutex
	listeners map[assemble.PubKey]func(from assemble.PubKey, payload []byte)
}

// NewCluster returns an empty, thread-safe simulated DHT fabric.
func NewCluster() *Cluster {
	return &Cluster{
		store:     dssync.MutexWrap(datastore.NewMapDatastore()),
		listeners: make(map[assemble.PubKey]func(from assemble.PubKey, payload []byte)),
	}
}

func saltKey(salt assemble.Hash) datastore.Key {
	return datastore.NewKey("/" + hex.EncodeToString(salt[:]))
}

// MemoryNetwork is one node's view onto a Cluster: it implements
// assemble.Network, storing entries in the cluster's shared
// datastore and routing relay sends through the cluster's per-node
// listener registry.
type MemoryNetwork struct {
	self    assemble.PubKey
	cluster *Cluster

	mu        sync.Mutex
	liveNodes int

	faultState
}

// Join returns a MemoryNetwork bound to self, sharing c's storage and
// relay registry with every other node joined to c. liveNodes is the
// simulated replica count LiveNodeCount and Put report back.
func (c *Cluster) Join(self assemble.PubKey, liveNodes int) *MemoryNetwork {
	return &MemoryNetwork{self: self, cluster: c, liveNodes: liveNodes}
}

// NewMemoryNetwork returns a MemoryNetwork on a fresh, single-node
// Cluster — the common case for tests that don't need multi-node
// relay fan-out.
func NewMemoryNetwork(self assemble.PubKey, liveNodes int) *MemoryNetwork {
	return NewCluster().Join(self, liveNodes)
}

// SetLiveNodeCount changes the simulated replica count reported by
// LiveNodeCount and Put.
func (n *MemoryNetwork) SetLiveNodeCount(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.liveNodes = count
}

// LiveNodeCount implements assemble.Network.
func (n *MemoryNetwork) LiveNodeCount() int {
	if n.takeBufferFull() {
		return 0
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.liveNodes
}

// Put implements assemble.Network, storing entry under salt in the
// cluster's shared datastore.
func (n *MemoryNetwork) Put(entry []byte, salt assemble.Hash, cb assemble.PutCallback, branch, window, limit int) {
	if n.takeZeroResponse() {
		cb(entry, 0)
		return
	}

	if err := n.cluster.store.Put(context.Background(), saltKey(salt), entry); err != nil {
		cb(entry, 0)
		return
	}

	n.mu.Lock()
	count := n.liveNodes
	n.mu.Unlock()
	cb(entry, count)
}

// Get implements assemble.Network, returning whatever is stored under
// salt, or nil if nothing has been put there yet. Every response is
// reported authoritative: a simulated single-round DHT lookup.
func (n *MemoryNetwork) Get(key assemble.PubKey, salt assemble.Hash, timestamp int64, cb assemble.GetCallback, branch, window, limit int) {
	if n.takeUndecodableGet() {
		cb([]byte{0xff, 0xfe, 0xfd}, true)
		return
	}

	item, err := n.cluster.store.Get(context.Background(), saltKey(salt))
	if err != nil {
		cb(nil, true)
		return
	}
	cb(item, true)
}

// Send implements assemble.Network: it delivers payload to receiver's
// registered relay listener within the same cluster, if any.
func (n *MemoryNetwork) Send(receiver assemble.PubKey, payload []byte, cb assemble.SendCallback, branch, window, limit, hitLimit int) {
	n.cluster.mu.Lock()
	listener, ok := n.cluster.listeners[receiver]
	n.cluster.mu.Unlock()

	if !ok {
		cb(payload, nil)
		return
	}
	listener(n.self, payload)
	cb(payload, []assemble.PubKey{receiver})
}

// OnRelay implements assemble.Network, registering fn as self's relay
// listener within the cluster.
func (n *MemoryNetwork) OnRelay(fn func(from assemble.PubKey, payload []byte)) {
	n.cluster.mu.Lock()
	defer n.cluster.mu.Unlock()
	n.cluster.listeners[n.self] = fn
}
