package snapshot

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// Hash is a fingerprint over a snapshot's canonical serialization.
type Hash [sha256.Size]byte

// ErrInvalidHash is returned when parsing a malformed fingerprint.
var ErrInvalidHash = errors.New("invalid fingerprint hash")

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether the hash is unset.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// ParseHash decodes a hex fingerprint produced by Hash.String.
func ParseHash(s string) (Hash, error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != sha256.Size {
		return Hash{}, fmt.Errorf("%w: %q", ErrInvalidHash, s)
	}
	var h Hash
	copy(h[:], raw)
	return h, nil
}

// EmptyFingerprint is the reserved fingerprint of the empty snapshot.
var EmptyFingerprint = Snapshot{}.Fingerprint()

// Fingerprint computes the content hash of the snapshot. Elements are
// hashed in key order with length-prefixed fields, so the result does not
// depend on the order elements were produced in.
func (s Snapshot) Fingerprint() Hash {
	h := sha256.New()
	var lenBuf [8]byte
	writeField := func(b []byte) {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(b)))
		h.Write(lenBuf[:])
		h.Write(b)
	}
	for _, e := range s.sorted() {
		writeField([]byte(e.Key))
		writeField([]byte(e.Kind))
		writeField(e.Value)
	}
	var out Hash
	h.Sum(out[:0])
	return out
}
