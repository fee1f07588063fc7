// Package ring implements the Chord-style identifier space: 160-bit
// node/key hashing, cyclic arc arithmetic, and the Overlay Manager that
// tracks a peer's successor, predecessor, and neighbor liveness.
//
// Big idea:
//
// Every peer and every key is placed on a circle of 2^160 positions by
// hashing its canonical string with SHA-1. A peer owns the half-open
// arc between its predecessor (exclusive) and itself (inclusive). As
// peers join and leave, only the arcs next to the change move — unlike
// a plain hash(key) % N scheme, where almost every key would remap.
package ring

import (
	"crypto/sha1"
	"encoding/hex"
	"math/big"
)

// idLen is the digest size of SHA-1 in bytes: 160 bits.
const idLen = sha1.Size

// ID is a 160-bit ring position, held as the raw SHA-1 digest so two
// IDs compare with bytes.Compare without any big.Int conversion.
type ID [idLen]byte

// Hash computes the ring position of s: the SHA-1 digest of its UTF-8
// bytes, interpreted as an unsigned big-endian integer. Deterministic —
// Hash(s) == Hash(s) always — and used for both node IDs (hashed from
// "ip:port") and key IDs.
func Hash(s string) ID {
	return ID(sha1.Sum([]byte(s)))
}

// String renders the ID as a lowercase hex string, e.g. for logging.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Decimal renders the ID as the decimal string of its unsigned
// big-endian integer value — the form carried on the wire as an
// envelope's sender_id (spec.md §4.3/§6).
func (id ID) Decimal() string {
	var n big.Int
	n.SetBytes(id[:])
	return n.String()
}

// IDFromDecimal parses the decimal string of an unsigned integer (as
// carried in an envelope's sender_id) back into an ID, left-padding
// with zero bytes to idLen. An unparseable string yields the zero ID,
// which is indistinguishable from a sender_id of "0".
func IDFromDecimal(s string) ID {
	var n big.Int
	if _, ok := n.SetString(s, 10); !ok {
		return ID{}
	}
	b := n.Bytes()
	if len(b) > idLen {
		b = b[len(b)-idLen:]
	}
	var id ID
	copy(id[idLen-len(b):], b)
	return id
}

// Cmp returns -1, 0, or 1 as id is less than, equal to, or greater than
// other, treating both as big-endian unsigned integers.
func (id ID) Cmp(other ID) int {
	for i := range id {
		if id[i] != other[i] {
			if id[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// InArc reports whether x falls in the cyclic half-open interval
// (a, b]: a excluded, b included, wrapping around the ring when a >= b.
//
//   - a < b:  a < x <= b
//   - a >= b: x > a  or  x <= b   (the arc wraps past the ring's origin)
func InArc(x, a, b ID) bool {
	if a.Cmp(b) < 0 {
		return x.Cmp(a) > 0 && x.Cmp(b) <= 0
	}
	return x.Cmp(a) > 0 || x.Cmp(b) <= 0
}
