package trinity

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

var (
	ErrInvalidID = errors.New("invalid trinity id")
	ErrExhausted = errors.New("trinity id space exhausted")
)

const (
	// MaxSeq is the largest sequence number a shard can allocate (48 bits).
	MaxSeq uint64 = 1<<48 - 1
	// MaxShard is the largest shard number (16 bits).
	MaxShard uint16 = 1<<16 - 1
)

// ID is a globally unique commit identifier. Seq is monotonic within a
// shard, Shard identifies the allocating session, and Check is a checksum
// over the other two parts.
type ID struct {
	Seq   uint64
	Shard uint16
	Check uint8
}

// New composes an ID from a sequence number and shard, computing the checksum.
func New(seq uint64, shard uint16) (ID, error) {
	if seq > MaxSeq {
		return ID{}, fmt.Errorf("%w: sequence %d exceeds %d", ErrExhausted, seq, MaxSeq)
	}
	return ID{Seq: seq, Shard: shard, Check: checksum(seq, shard)}, nil
}

// checksum derives the validation byte from the sequence and shard parts.
func checksum(seq uint64, shard uint16) uint8 {
	var buf [10]byte
	binary.BigEndian.PutUint64(buf[:8], seq)
	binary.BigEndian.PutUint16(buf[8:], shard)
	return uint8(crc32.ChecksumIEEE(buf[:]))
}

// String returns the canonical form "ssssssssssss-hhhh-cc" (zero-padded hex).
// Within one shard, lexicographic order of the canonical form matches
// allocation order.
func (id ID) String() string {
	return fmt.Sprintf("%012x-%04x-%02x", id.Seq, id.Shard, id.Check)
}

// IsZero reports whether the ID is the zero value (no commit).
func (id ID) IsZero() bool {
	return id == ID{}
}

// Valid reports whether the checksum matches the sequence and shard parts.
func (id ID) Valid() bool {
	return id.Check == checksum(id.Seq, id.Shard)
}

// Compare orders IDs by sequence, then shard. The result is negative, zero,
// or positive in the usual way.
func (id ID) Compare(other ID) int {
	switch {
	case id.Seq < other.Seq:
		return -1
	case id.Seq > other.Seq:
		return 1
	case id.Shard < other.Shard:
		return -1
	case id.Shard > other.Shard:
		return 1
	default:
		return 0
	}
}

// Parse decodes the canonical string form, validating the checksum.
func Parse(s string) (ID, error) {
	var id ID
	if len(s) != 20 {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	n, err := fmt.Sscanf(s, "%12x-%4x-%2x", &id.Seq, &id.Shard, &id.Check)
	if err != nil || n != 3 {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	if !id.Valid() {
		return ID{}, fmt.Errorf("%w: checksum mismatch in %q", ErrInvalidID, s)
	}
	return id, nil
}
