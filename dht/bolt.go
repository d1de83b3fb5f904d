package dht

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"
	xerrors "golang.org/x/xerrors"

	"github.com/drand/assemble/assemble"
	"github.com/drand/assemble/log"
)

var entriesBucket = []byte("assemble_entries")

// BoltStoreOpenPerm is the file permission bbolt opens its database
// with.
const BoltStoreOpenPerm = 0600

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0700)
}

// BoltNetwork implements assemble.Network on a single bbolt database,
// for the standalone demo daemon: state survives a process restart,
// at the cost of the multi-node relay fan-out MemoryNetwork's Cluster
// provides. A relay Send to self loops back locally; a relay Send to
// any other key reports zero success nodes, since a lone BoltNetwork
// has no peers to route through.
type BoltNetwork struct {
	log  log.Logger
	db   *bolt.DB
	self assemble.PubKey

	mu        sync.Mutex
	liveNodes int

	relayFn func(from assemble.PubKey, payload []byte)

	faultState
}

// NewBoltNetwork opens (creating if absent) the bbolt database at
// dbPath, bound to self's identity, reporting liveNodes as the
// simulated replica count.
func NewBoltNetwork(l log.Logger, dbPath string, self assemble.PubKey, liveNodes int) (*BoltNetwork, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := ensureDir(dir); err != nil {
			return nil, xerrors.Errorf("creating store directory %q: %w", dir, err)
		}
	}

	db, err := bolt.Open(dbPath, BoltStoreOpenPerm, nil)
	if err != nil {
		return nil, xerrors.Errorf("opening bolt store %q: %w", dbPath, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entriesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, xerrors.Errorf("creating entries bucket: %w", err)
	}

	return &BoltNetwork{log: l, db: db, self: self, liveNodes: liveNodes}, nil
}

// Close releases the underlying bbolt database.
func (n *BoltNetwork) Close() error {
	return n.db.Close()
}

// SetLiveNodeCount changes the simulated replica count reported by
// LiveNodeCount and Put.
func (n *BoltNetwork) SetLiveNodeCount(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.liveNodes = count
}

func saltBoltKey(salt assemble.Hash) []byte {
	return []byte(hex.EncodeToString(salt[:]))
}

// LiveNodeCount implements assemble.Network.
func (n *BoltNetwork) LiveNodeCount() int {
	if n.takeBufferFull() {
		return 0
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.liveNodes
}

// Put implements assemble.Network, persisting entry under salt.
func (n *BoltNetwork) Put(entry []byte, salt assemble.Hash, cb assemble.PutCallback, branch, window, limit int) {
	if n.takeZeroResponse() {
		cb(entry, 0)
		return
	}

	err := n.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).Put(saltBoltKey(salt), entry)
	})
	if err != nil {
		n.log.Warnw("", "dht", "bolt put failed", "err", err)
		cb(entry, 0)
		return
	}

	n.mu.Lock()
	count := n.liveNodes
	n.mu.Unlock()
	cb(entry, count)
}

// Get implements assemble.Network, returning whatever is persisted
// under salt, or nil if nothing has been put there. Every response is
// reported authoritative.
func (n *BoltNetwork) Get(key assemble.PubKey, salt assemble.Hash, timestamp int64, cb assemble.GetCallback, branch, window, limit int) {
	if n.takeUndecodableGet() {
		cb([]byte{0xff, 0xfe, 0xfd}, true)
		return
	}

	var item []byte
	err := n.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(entriesBucket).Get(saltBoltKey(salt))
		if v != nil {
			item = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		n.log.Warnw("", "dht", "bolt get failed", "err", err)
		cb(nil, true)
		return
	}
	cb(item, true)
}

// Send implements assemble.Network. A BoltNetwork knows only itself,
// so a send to its own identity loops back to its own relay listener;
// any other receiver reports zero success nodes.
func (n *BoltNetwork) Send(receiver assemble.PubKey, payload []byte, cb assemble.SendCallback, branch, window, limit, hitLimit int) {
	if receiver == n.self {
		n.mu.Lock()
		fn := n.relayFn
		n.mu.Unlock()
		if fn != nil {
			fn(n.self, payload)
			cb(payload, []assemble.PubKey{receiver})
			return
		}
	}
	cb(payload, nil)
}

// OnRelay implements assemble.Network.
func (n *BoltNetwork) OnRelay(fn func(from assemble.PubKey, payload []byte)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.relayFn = fn
}
