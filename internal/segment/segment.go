// Package segment implements the directory's unit of ownership: a Segment
// holds block.SlotCount home blocks (the fingerprint's next log2(SlotCount)
// bits select one of them) plus a ring of ExtensionBlockSize extension
// blocks shared across all of them. A home block that runs out of bit or
// payload budget displaces its highest still-resident l-slot into the ring;
// a Segment that can no longer displace anywhere splits in two.
//
// Grounded on original_source/directory/directory.h, whose Segment::expand
// allocates two successor segments one FPIndex bit deeper and redistributes
// every fingerprint between them by the bit the split consumed, and on
// original_source/extension_block/extension_block.h's displacement search,
// which always moves the home block's last (highest-indexed) l-slot still
// resident, never an arbitrary one.
package segment

import (
	"sync"

	"github.com/sfmqrb/sphinx/internal/block"
	"github.com/sfmqrb/sphinx/internal/extension"
	"github.com/sfmqrb/sphinx/internal/fingerprint"
	"github.com/sfmqrb/sphinx/internal/sslog"
	appErrors "github.com/sfmqrb/sphinx/pkg/errors"
	"github.com/sfmqrb/sphinx/pkg/options"
)

// blockSelectBits is log2(block.SlotCount), the width of the fingerprint
// field a Segment consumes to choose a home block.
const blockSelectBits = 6

// placement records where a home block's displaced l-slot currently lives in
// the extension ring, so Read/Remove can find it again without re-probing
// every ring position.
type placement struct {
	ring     int
	physical int
}

// Segment is one directory slot's worth of storage: blockSelectBits of
// fingerprint choose which of its block.SlotCount home blocks an operation
// lands on; that home block's own l-slot selection and tenancy trie take it
// from there.
type Segment struct {
	mu sync.RWMutex

	cfg     *options.Config
	fpIndex int // directory depth this segment was created at

	homeBlocks [block.SlotCount]*block.Block
	ring       []*extension.Block
	displaced  map[extension.Owner]placement
}

// New allocates a Segment born at directory depth fpIndex: fpIndex bits have
// already been consumed selecting this segment; the next blockSelectBits
// choose a home block, and the blockSelectBits after that choose an l-slot
// within it.
func New(cfg *options.Config, fpIndex int) *Segment {
	s := &Segment{
		cfg:       cfg,
		fpIndex:   fpIndex,
		displaced: make(map[extension.Owner]placement),
	}
	homeFPBits := fpIndex + blockSelectBits
	for i := range s.homeBlocks {
		s.homeBlocks[i] = block.New(cfg, homeFPBits)
	}
	s.ring = make([]*extension.Block, cfg.ExtensionBlockSize)
	for i := range s.ring {
		s.ring[i] = extension.New(cfg, homeFPBits)
	}
	return s
}

// FPIndex returns the directory depth this segment was created at.
func (s *Segment) FPIndex() int { return s.fpIndex }

func (s *Segment) blockIndex(fp fingerprint.Fingerprint) int {
	return int(fp.Prefix(s.fpIndex+blockSelectBits) & (block.SlotCount - 1))
}

// Write inserts or updates fp's payload with addr, transparently displacing
// an overflowing l-slot into the extension ring, or reporting that the
// segment must split when the ring has no room left either.
func (s *Segment) Write(fp fingerprint.Fingerprint, log *sslog.Log, addr sslog.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blkIdx := s.blockIndex(fp)
	blk := s.homeBlocks[blkIdx]
	lslotIdx := blk.LSlotIndex(fp)

	if owner, ok := s.findDisplaced(blkIdx, lslotIdx); ok {
		ring := s.ring[owner.ring]
		_, err := ring.Write(owner.physical, fp, log, addr)
		if isCapacityError(err) {
			return appErrors.NewSplitRequiredError("Write")
		}
		return err
	}

	_, err := blk.Write(fp, log, addr)
	if err == nil {
		return nil
	}
	if !isCapacityError(err) {
		return err
	}

	if s.displaceHighestSlot(blk, blkIdx, log) {
		if owner, ok := s.findDisplaced(blkIdx, lslotIdx); ok {
			_, err2 := s.ring[owner.ring].Write(owner.physical, fp, log, addr)
			if err2 == nil || !isCapacityError(err2) {
				return err2
			}
		} else if _, err2 := blk.Write(fp, log, addr); err2 == nil {
			return nil
		} else if !isCapacityError(err2) {
			return err2
		}
	}

	return appErrors.NewSplitRequiredError("Write")
}

// Read resolves fp, checking the extension ring when the home block reports
// its l-slot has been displaced.
func (s *Segment) Read(fp fingerprint.Fingerprint, log *sslog.Log) (sslog.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blkIdx := s.blockIndex(fp)
	blk := s.homeBlocks[blkIdx]
	lslotIdx := blk.LSlotIndex(fp)

	if owner, ok := s.findDisplaced(blkIdx, lslotIdx); ok {
		return s.ring[owner.ring].Read(owner.physical, fp, log)
	}

	return blk.Read(fp, log)
}

// Remove deletes fp, releasing its ring slot back to the pool once the
// l-slot it was displaced from reaches tenancy zero.
func (s *Segment) Remove(fp fingerprint.Fingerprint, log *sslog.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blkIdx := s.blockIndex(fp)
	blk := s.homeBlocks[blkIdx]
	lslotIdx := blk.LSlotIndex(fp)

	if owner, ok := s.findDisplaced(blkIdx, lslotIdx); ok {
		ring := s.ring[owner.ring]
		_, err := ring.Remove(owner.physical, fp, log)
		if err != nil {
			return err
		}
		if ring.Tenancy(owner.physical) == 0 {
			ring.Release(owner.physical)
			delete(s.displaced, extension.Owner{SourceBlockIndex: blkIdx, SourceLSlot: lslotIdx})
		}
		return nil
	}

	_, err := blk.Remove(fp, log)
	return err
}

func (s *Segment) findDisplaced(blkIdx, lslotIdx int) (placement, bool) {
	p, ok := s.displaced[extension.Owner{SourceBlockIndex: blkIdx, SourceLSlot: lslotIdx}]
	return p, ok
}

// displaceHighestSlot moves blk's highest still-resident l-slot into the
// first ring position with room for it, mirroring extension_block.h's
// displacement search: only ever the last l-slot, never an arbitrary one,
// since that is the only slot whose entries the home block can still name
// without re-deriving every fingerprint in the block.
func (s *Segment) displaceHighestSlot(blk *block.Block, blkIdx int, log *sslog.Log) bool {
	info := blk.Info()
	if info.FirstExtendedLSlot == 0 {
		return false
	}
	victim := info.FirstExtendedLSlot - 1
	addrs := blk.SlotAddresses(victim)

	owner := extension.Owner{SourceBlockIndex: blkIdx, SourceLSlot: victim}
	for ringIdx, eb := range s.ring {
		physical, ok := eb.Allocate(owner)
		if !ok {
			continue
		}

		moved := true
		for _, addr := range addrs {
			entry, err := log.Read(addr)
			if err != nil {
				moved = false
				break
			}
			fp := fingerprint.Of(entry.Key)
			if _, err := eb.Write(physical, fp, log, addr); err != nil {
				moved = false
				break
			}
		}

		if !moved {
			eb.Release(physical)
			continue
		}

		blk.ClearSlot(victim)
		blk.SetExtensionBoundary(victim)
		s.displaced[owner] = placement{ring: ringIdx, physical: physical}
		return true
	}
	return false
}

// Successors allocates the two segments this one splits into, one FPIndex
// bit deeper, and redistributes every fingerprint currently held here
// between them by the newly-significant bit. The caller (Directory) is
// responsible for installing both successors in place of this segment and
// for discarding this segment afterwards; it must never be written to again
// once split.
func (s *Segment) Successors(log *sslog.Log) (lo, hi *Segment, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	childFPIndex := s.fpIndex + 1
	lo = New(s.cfg, childFPIndex)
	hi = New(s.cfg, childFPIndex)

	redistribute := func(addrs []sslog.Address) error {
		for _, addr := range addrs {
			entry, rerr := log.Read(addr)
			if rerr != nil {
				return rerr
			}
			fp := fingerprint.Of(entry.Key)
			target := lo
			if fp.Bit(s.fpIndex) {
				target = hi
			}
			if werr := target.Write(fp, log, addr); werr != nil {
				return werr
			}
		}
		return nil
	}

	for _, blk := range s.homeBlocks {
		info := blk.Info()
		for lslotIdx := 0; lslotIdx < info.FirstExtendedLSlot; lslotIdx++ {
			if err := redistribute(blk.SlotAddresses(lslotIdx)); err != nil {
				return nil, nil, err
			}
		}
	}

	for _, p := range s.displaced {
		if err := redistribute(s.ring[p.ring].SlotAddresses(p.physical)); err != nil {
			return nil, nil, err
		}
	}

	return lo, hi, nil
}

func isCapacityError(err error) bool {
	code := appErrors.GetErrorCode(err)
	return code == appErrors.ErrorCodeBlockFull || code == appErrors.ErrorCodePayloadFull
}
