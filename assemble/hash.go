package assemble

import "golang.org/x/crypto/blake2b"

// ContentHash returns the 20-byte content hash used as a segment's
// salt. blake2b supports arbitrary digest sizes natively, so no
// truncation of a longer digest is needed — unlike sha1 or sha256,
// which would require taking a prefix.
func ContentHash(payload []byte) Hash {
	h, err := blake2b.New(hashSize, nil)
	if err != nil {
		// Only non-nil for an out-of-range size or a MAC key longer than
		// the block size; hashSize is a compile-time constant in range
		// and no key is passed.
		panic(err)
	}
	h.Write(payload)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// MessageID returns the 20-byte id tagging a message-relay context:
// H(message ∥ receiver). Two different receivers of the same bytes
// get distinct ids.
func MessageID(message []byte, receiver PubKey) Hash {
	h, err := blake2b.New(hashSize, nil)
	if err != nil {
		panic(err)
	}
	h.Write(message)
	h.Write(receiver[:])
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// URIMessageID returns the 20-byte id tagging a URI-relay context:
// H(receiver ∥ uri).
func URIMessageID(receiver PubKey, uri URI) Hash {
	h, err := blake2b.New(hashSize, nil)
	if err != nil {
		panic(err)
	}
	h.Write(receiver[:])
	h.Write(uri[:])
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}
