// Package fingerprint computes the 128-bit digest that routes a key through
// the Directory, Segment, and Block hierarchy. A Fingerprint is split at a
// movable boundary, FPIndex: the leading bits select a directory slot (and,
// inside a Block, an l-slot), the trailing bits identify the key within
// that l-slot's tenancy trie.
package fingerprint

import "github.com/cespare/xxhash/v2"

// Width is the number of bits in a Fingerprint.
const Width = 128

const (
	seedLow  = 0
	seedHigh = 1
)

// Fingerprint is a 128-bit digest, stored as two 64-bit words: in Bit's
// numbering, Hi holds bits [0,64) and Lo holds bits [64,128).
type Fingerprint struct {
	Lo uint64
	Hi uint64
}

// Of hashes key into a Fingerprint using two independently seeded xxhash64
// digests. Two seeds rather than one avoids the correlated collisions a
// single hash function's internal state would otherwise produce between
// Lo and Hi.
func Of(key []byte) Fingerprint {
	return Fingerprint{
		Lo: xxhash.Sum64(withSeed(key, seedLow)),
		Hi: xxhash.Sum64(withSeed(key, seedHigh)),
	}
}

// withSeed prepends a single differentiating byte to key so that the two
// digests draw from distinct input streams. xxhash.Sum64 has no seeded
// variant in this package's API, so the seed is folded into the message
// instead of the hash state.
func withSeed(key []byte, seed byte) []byte {
	buf := make([]byte, len(key)+1)
	buf[0] = seed
	copy(buf[1:], key)
	return buf
}

// Bit returns the value of bit i, where bit 0 is the most significant bit of
// Hi and bit 127 is the least significant bit of Lo. The tenancy trie and
// l-slot selection rely on this most-significant-first ordering.
func (f Fingerprint) Bit(i int) bool {
	if i < 64 {
		return f.Hi&(1<<uint(63-i)) != 0
	}
	return f.Lo&(1<<uint(127-i)) != 0
}

// Prefix returns the leading n bits of the fingerprint as an unsigned
// integer, used to select a directory slot or a home block's l-slot.
func (f Fingerprint) Prefix(n int) uint64 {
	if n == 0 {
		return 0
	}
	if n <= 64 {
		return f.Hi >> uint(64-n)
	}
	low := n - 64
	return (f.Hi << uint(low)) | (f.Lo >> uint(64-low))
}

// WithLSlotIndex returns a copy of the fingerprint with its leading
// indexBits bits overwritten by index.
func (f Fingerprint) WithLSlotIndex(index uint64, indexBits int) Fingerprint {
	if indexBits == 0 {
		return f
	}
	if indexBits <= 64 {
		mask := ^(^uint64(0) >> uint(indexBits))
		shifted := index << uint(64-indexBits)
		return Fingerprint{Lo: f.Lo, Hi: (f.Hi &^ mask) | shifted}
	}
	low := indexBits - 64
	hiMask := uint64(0)
	loMask := ^(^uint64(0) >> uint(low))
	return Fingerprint{
		Hi: hiMask | (index >> uint(low)),
		Lo: (f.Lo &^ loMask) | (index << uint(64-low)),
	}
}

// Bits returns the width bits starting at position from (MSB-first, same
// convention as Bit), packed into a big-endian unsigned integer. A Block
// uses this to read the fingerprint bits just past its own FPIndex, the
// chunk a payload entry's reserve bits cache for a fast negative lookup.
func (f Fingerprint) Bits(from, width int) uint64 {
	var v uint64
	for i := 0; i < width; i++ {
		v <<= 1
		if f.Bit(from + i) {
			v |= 1
		}
	}
	return v
}

// Equal reports whether two fingerprints are identical.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.Lo == other.Lo && f.Hi == other.Hi
}
