// Package identity derives the Ed25519 key pair a node signs and is
// addressed by, the same way the teacher's lp2p package loads or
// creates a libp2p identity — except deterministically, from a
// configured seed, rather than from the OS random source or a file on
// disk.
package identity

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/libp2p/go-libp2p-core/crypto"
	xerrors "golang.org/x/xerrors"
)

// KeyPair is a node's signing identity. Its raw 32-byte public half is
// the PubKey the assemble package addresses puts, gets, and relays by.
type KeyPair struct {
	priv crypto.PrivKey
	pub  crypto.PubKey
}

// FromSeed derives a KeyPair deterministically from seed: the same seed
// always yields the same key pair, which is what lets a node configured
// with a fixed account_seed keep a stable identity across restarts
// without persisting a key file.
func FromSeed(seed []byte) (*KeyPair, error) {
	priv, pub, err := crypto.GenerateEd25519Key(newSeededReader(seed))
	if err != nil {
		return nil, xerrors.Errorf("generating ed25519 key from seed: %w", err)
	}
	return &KeyPair{priv: priv, pub: pub}, nil
}

// PublicKeyBytes returns the raw 32-byte Ed25519 public key.
func (k *KeyPair) PublicKeyBytes() ([32]byte, error) {
	raw, err := k.pub.Raw()
	if err != nil {
		return [32]byte{}, xerrors.Errorf("marshaling public key: %w", err)
	}
	if len(raw) != 32 {
		return [32]byte{}, xerrors.Errorf("unexpected ed25519 public key length %d", len(raw))
	}
	var out [32]byte
	copy(out[:], raw)
	return out, nil
}

// Sign signs msg with the private key half.
func (k *KeyPair) Sign(msg []byte) ([]byte, error) {
	sig, err := k.priv.Sign(msg)
	if err != nil {
		return nil, xerrors.Errorf("signing message: %w", err)
	}
	return sig, nil
}

// Verify checks sig against msg using the public key half.
func (k *KeyPair) Verify(msg, sig []byte) (bool, error) {
	ok, err := k.pub.Verify(msg, sig)
	if err != nil {
		return false, xerrors.Errorf("verifying signature: %w", err)
	}
	return ok, nil
}

// seededReader stretches a fixed seed into an arbitrarily long byte
// stream by hashing seed alongside an incrementing counter, one SHA-256
// block (32 bytes) at a time. It implements io.Reader, which is all
// crypto.GenerateEd25519Key needs from its entropy source.
type seededReader struct {
	seed    []byte
	counter uint64
	block   []byte
}

func newSeededReader(seed []byte) *seededReader {
	return &seededReader{seed: append([]byte{}, seed...)}
}

func (r *seededReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(r.block) == 0 {
			r.block = r.nextBlock()
		}
		copied := copy(p[n:], r.block)
		r.block = r.block[copied:]
		n += copied
	}
	return n, nil
}

func (r *seededReader) nextBlock() []byte {
	var counterBytes [8]byte
	binary.BigEndian.PutUint64(counterBytes[:], r.counter)
	r.counter++

	h := sha256.New()
	h.Write(r.seed)
	h.Write(counterBytes[:])
	return h.Sum(nil)
}
