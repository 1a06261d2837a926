// Package trie implements the per-l-slot tenancy encoding: a small binary
// tree over the fingerprints sharing an l-slot, used to resolve which
// payload-list entry a given fingerprint owns. Tenancy 0 or 1 needs no tree
// at all; tenancy 2 needs only a unary gap; tenancy 3 and above builds a
// proper binary tree, two header bits and a unary gap per internal node,
// terminated by a delimiter bit.
//
// Nodes are addressed by index into a slice living on the Trie itself
// rather than linked by pointer, the arena style the rest of this store's
// hot paths use instead of per-node heap allocation and ownership churn.
package trie

import (
	"fmt"
	"math/bits"

	"github.com/sfmqrb/sphinx/internal/bitvector"
	"github.com/sfmqrb/sphinx/internal/fingerprint"
)

const noChild = -1

// node is one binary-tree node. Index is the fingerprint bit position this
// node branches on; Left and Right are arena indices, or noChild.
type node struct {
	Index int
	Left  int
	Right int
}

// Trie holds the tenancy-ordered set of fingerprint bit positions for one
// l-slot. StartingIndex is where this l-slot's encoded bit region begins in
// its Block; FPIndex is the fingerprint bit the l-slot's own selection
// already consumed, so node indices recorded here pick up where that left off.
type Trie struct {
	nodes         []node
	root          int
	tenSize       int
	startingIndex int
	fpIndex       int
}

// New creates an empty Trie for an l-slot of the given tenancy.
func New(tenSize, startingIndex, fpIndex int) *Trie {
	return &Trie{root: noChild, tenSize: tenSize, startingIndex: startingIndex, fpIndex: fpIndex}
}

// TenSize returns the number of fingerprints this trie currently tracks.
func (t *Trie) TenSize() int { return t.tenSize }

// Clone returns an independent copy of t, so a caller can speculatively
// mutate the copy (insert or remove) and discard it without disturbing t.
func (t *Trie) Clone() *Trie {
	nodes := make([]node, len(t.nodes))
	copy(nodes, t.nodes)
	return &Trie{
		nodes:         nodes,
		root:          t.root,
		tenSize:       t.tenSize,
		startingIndex: t.startingIndex,
		fpIndex:       t.fpIndex,
	}
}

// FPIndex returns the fingerprint bit position this l-slot's own nodes are
// measured from.
func (t *Trie) FPIndex() int { return t.fpIndex }

func (t *Trie) alloc(index int) int {
	t.nodes = append(t.nodes, node{Index: index, Left: noChild, Right: noChild})
	return len(t.nodes) - 1
}

// Build decodes a trie from its persisted bit representation, the inverse of
// Serialize. bv holds the tenancy-trie region read from a Block.
func (t *Trie) Build(bv *bitvector.BitVector) {
	if t.tenSize == 0 || t.tenSize == 1 {
		t.root = noChild
		return
	}

	if t.tenSize == 2 {
		count, _ := bv.CountContiguous(0)
		t.root = t.alloc(count + t.fpIndex)
		return
	}

	t.root = t.alloc(0)
	cursor := t.startingIndex
	remaining := t.buildFrom3OrMore(bv, t.tenSize, &cursor, t.root, -1+t.fpIndex)
	if remaining != 0 {
		panic(fmt.Sprintf("trie: expected 0 remaining tenancy after decode, got %d", remaining))
	}
}

func (t *Trie) buildFrom3OrMore(bv *bitvector.BitVector, tenRemaining int, cursor *int, nodeIdx, prevCount int) int {
	indexBits := uint64(0b11)
	if tenRemaining != 2 {
		indexBits = bv.Range(*cursor-t.startingIndex, *cursor-t.startingIndex+2)
		*cursor += 2
	}

	count := 1
	zeros, next := bv.CountContiguous(*cursor - t.startingIndex)
	count += zeros
	*cursor = t.startingIndex + next

	t.nodes[nodeIdx].Index = prevCount + count

	switch indexBits {
	case 0b11:
		return tenRemaining - 2
	case 0b10:
		right := t.alloc(0)
		t.nodes[nodeIdx].Right = right
		return t.buildFrom3OrMore(bv, tenRemaining-1, cursor, right, t.nodes[nodeIdx].Index)
	case 0b01:
		left := t.alloc(0)
		t.nodes[nodeIdx].Left = left
		return t.buildFrom3OrMore(bv, tenRemaining-1, cursor, left, t.nodes[nodeIdx].Index)
	case 0b00:
		left := t.alloc(0)
		right := t.alloc(0)
		t.nodes[nodeIdx].Left = left
		t.nodes[nodeIdx].Right = right
		remaining := t.buildFrom3OrMore(bv, tenRemaining, cursor, left, t.nodes[nodeIdx].Index)
		return t.buildFrom3OrMore(bv, remaining, cursor, right, t.nodes[nodeIdx].Index)
	default:
		panic("trie: unreachable header bits")
	}
}

func (t *Trie) count(nodeIdx int) int {
	if nodeIdx == noChild {
		return 1
	}
	return t.count(t.nodes[nodeIdx].Left) + t.count(t.nodes[nodeIdx].Right)
}

// OffsetIndex walks the trie for fp and returns which payload-list entry,
// relative to the l-slot's first entry, owns it.
func (t *Trie) OffsetIndex(fp fingerprint.Fingerprint) int {
	return t.offsetIndex(fp, t.root)
}

func (t *Trie) offsetIndex(fp fingerprint.Fingerprint, nodeIdx int) int {
	if nodeIdx == noChild {
		return 0
	}
	n := t.nodes[nodeIdx]
	if fp.Bit(n.Index) {
		return t.count(n.Left) + t.offsetIndex(fp, n.Right)
	}
	return t.offsetIndex(fp, n.Left)
}

func setContiguous(count int, cursor *int, startingIndex int, bv *bitvector.BitVector) {
	for counter := 1; counter < count; counter++ {
		bv.Set(*cursor-startingIndex, false)
		*cursor++
	}
	bv.Set(*cursor-startingIndex, true)
	*cursor++
}

func (t *Trie) serializeFrom(nodeIdx int, cursor *int, tenRemaining int, bv *bitvector.BitVector, prevCount int) int {
	if tenRemaining == 0 || tenRemaining == 1 {
		return tenRemaining
	}
	if tenRemaining == 2 {
		setContiguous(t.nodes[nodeIdx].Index-prevCount, cursor, t.startingIndex, bv)
		return 0
	}

	n := t.nodes[nodeIdx]
	hasLeft := n.Left != noChild
	hasRight := n.Right != noChild

	bv.Set(*cursor-t.startingIndex, !hasLeft)
	*cursor++
	bv.Set(*cursor-t.startingIndex, !hasRight)
	*cursor++
	setContiguous(n.Index-prevCount, cursor, t.startingIndex, bv)

	if !hasLeft {
		tenRemaining--
	}
	if !hasRight {
		tenRemaining--
	}
	if hasLeft {
		tenRemaining = t.serializeFrom(n.Left, cursor, tenRemaining, bv, n.Index)
	}
	if hasRight {
		tenRemaining = t.serializeFrom(n.Right, cursor, tenRemaining, bv, n.Index)
	}
	return tenRemaining
}

// Serialize encodes the trie into its register-sized bit representation,
// returning the vector and the number of bits actually used.
func (t *Trie) Serialize(registerSize int) (*bitvector.BitVector, int) {
	bv := bitvector.New(registerSize)
	cursor := t.startingIndex
	t.serializeFrom(t.root, &cursor, t.tenSize, bv, -1+t.fpIndex)
	if t.tenSize >= 2 {
		bv.Set(cursor-t.startingIndex, true)
		cursor++
	}
	return bv, cursor - t.startingIndex
}

// Insert adds newFP to the trie, branching on firstBit (the first bit
// position at which newFP differs from every fingerprint already present).
func (t *Trie) Insert(newFP fingerprint.Fingerprint, firstBit int) {
	if t.tenSize == 0 {
		panic("trie: insert requires tenancy greater than 0")
	}

	newIdx := t.alloc(firstBit)

	if t.root == noChild {
		t.root = newIdx
		t.tenSize++
		return
	}

	current := t.root
	previous := noChild

	for {
		if t.nodes[current].Index > firstBit {
			if previous == noChild {
				if newFP.Bit(firstBit) {
					t.nodes[newIdx].Left = t.root
				} else {
					t.nodes[newIdx].Right = t.root
				}
				t.root = newIdx
			} else {
				var child int
				if newFP.Bit(t.nodes[previous].Index) {
					child = t.nodes[previous].Right
				} else {
					child = t.nodes[previous].Left
				}
				if newFP.Bit(firstBit) {
					t.nodes[newIdx].Left = child
				} else {
					t.nodes[newIdx].Right = child
				}
				if newFP.Bit(t.nodes[previous].Index) {
					t.nodes[previous].Right = newIdx
				} else {
					t.nodes[previous].Left = newIdx
				}
			}
			t.tenSize++
			return
		}

		previous = current
		if newFP.Bit(t.nodes[current].Index) {
			current = t.nodes[current].Right
		} else {
			current = t.nodes[current].Left
		}

		if current == noChild {
			if newFP.Bit(t.nodes[previous].Index) {
				t.nodes[previous].Right = newIdx
			} else {
				t.nodes[previous].Left = newIdx
			}
			t.tenSize++
			return
		}
	}
}

// Remove deletes the fingerprint that walks fp's path to a leaf, replacing
// its parent's link with the leaf's sibling.
func (t *Trie) Remove(fp fingerprint.Fingerprint) {
	if t.tenSize <= 1 {
		panic("trie: remove requires tenancy greater than 1")
	}
	t.tenSize--
	if t.root == noChild {
		return
	}

	current := t.root
	previous := noChild
	preprevious := noChild

	for current != noChild {
		preprevious = previous
		previous = current
		if fp.Bit(t.nodes[current].Index) {
			current = t.nodes[current].Right
		} else {
			current = t.nodes[current].Left
		}
	}

	if preprevious == noChild {
		if fp.Bit(t.nodes[t.root].Index) {
			t.root = t.nodes[t.root].Left
		} else {
			t.root = t.nodes[t.root].Right
		}
		return
	}

	var sibling int
	if fp.Bit(t.nodes[previous].Index) {
		sibling = t.nodes[previous].Left
	} else {
		sibling = t.nodes[previous].Right
	}

	if fp.Bit(t.nodes[preprevious].Index) {
		t.nodes[preprevious].Right = sibling
	} else {
		t.nodes[preprevious].Left = sibling
	}
}

// FirstDiffIndex returns the first fingerprint bit position at which oldFP
// and newFP differ, scanning bit 0 (the most significant bit of Hi) toward
// bit 127 (the least significant bit of Lo) — the same direction
// Fingerprint.Bit indexes in. This is the position a freshly-inserted key
// branches the trie on.
func FirstDiffIndex(oldFP, newFP fingerprint.Fingerprint) int {
	if xorHi := oldFP.Hi ^ newFP.Hi; xorHi != 0 {
		return bits.LeadingZeros64(xorHi)
	}
	xorLo := oldFP.Lo ^ newFP.Lo
	if xorLo == 0 {
		return 128
	}
	return 64 + bits.LeadingZeros64(xorLo)
}
