// Package extension implements the overflow ring a Segment falls back to
// when a home block's l-slot runs out of metadata-bit budget or payload
// room. An ExtensionBlock holds up to block.SlotCount physical l-slots,
// shared across every home block in the segment's ring position; a side map
// remembers which home block (and which of its displaced l-slots) owns each
// physical slot, so a later Read/Remove for that l-slot can find it again.
//
// Grounded on original_source/extension_block/extension_block.h. The
// original's lslotSizesBW side map is a packed bitset addressed with
// rank/select so that "how many l-slots has source block B displaced here,
// and which physical slots do they occupy" can be answered in O(1) without
// a separate allocation. This port tracks the same fact with a plain Go map
// instead: displacement is already a cold path (triggered only when a block
// is full), so the rank/select structure's performance edge does not carry
// its complexity cost here.
package extension

import (
	"github.com/sfmqrb/sphinx/internal/fingerprint"
	"github.com/sfmqrb/sphinx/internal/payload"
	"github.com/sfmqrb/sphinx/internal/sslog"
	"github.com/sfmqrb/sphinx/internal/trie"
	appErrors "github.com/sfmqrb/sphinx/pkg/errors"
	"github.com/sfmqrb/sphinx/pkg/options"
)

// SlotCount is the number of physical l-slots one ExtensionBlock offers.
const SlotCount = 64

const scratchBits = 4096
const metaBitBudget = 256 - SlotCount

// Owner identifies a displaced l-slot by the home block and l-slot index it
// was displaced from.
type Owner struct {
	SourceBlockIndex int
	SourceLSlot      int
}

type slot struct {
	occupied bool
	owner    Owner
	tenancy  int
	trie     *trie.Trie
}

// Block is one ring position's overflow storage.
type Block struct {
	cfg    *options.Config
	fpBits int
	dht    bool

	slots        [SlotCount]slot
	payloads     *payload.List
	usedPayloads int
	usedMetaBits int
}

// New allocates an empty ExtensionBlock. fpBits is the FPIndex value the
// segment's home blocks are already routing on; a displaced l-slot's
// fingerprints are written here unchanged, so this value lines up with the
// home block's own.
func New(cfg *options.Config, fpBits int) *Block {
	return &Block{
		cfg:      cfg,
		fpBits:   fpBits,
		dht:      cfg.ReadStrategy == options.ReadStrategyDHT,
		payloads: payload.New(cfg.PayloadListLength(), cfg.BitsPerEntry, cfg.ReserveBits),
	}
}

func (eb *Block) fpIndex() int { return eb.fpBits }

// Info reports remaining capacity, mirroring block.Info.
type Info struct {
	RemainingBits    int
	RemainingPayload int
}

func (eb *Block) Info() Info {
	return Info{
		RemainingBits:    metaBitBudget - eb.usedMetaBits,
		RemainingPayload: eb.cfg.PayloadListLength() - eb.usedPayloads,
	}
}

// Allocate reserves the next free physical slot for owner, returning the
// physical slot index. It returns ok=false when the ring position has no
// free physical slot left at all (distinct from running out of bit or
// payload budget, which Write/Remove report separately).
func (eb *Block) Allocate(owner Owner) (physical int, ok bool) {
	for i := range eb.slots {
		if !eb.slots[i].occupied {
			eb.slots[i].occupied = true
			eb.slots[i].owner = owner
			return i, true
		}
	}
	return 0, false
}

// Release frees a physical slot back to the pool once its displaced l-slot
// has been fully removed (tenancy dropped to zero).
func (eb *Block) Release(physical int) {
	eb.slots[physical] = slot{}
}

// Find returns the physical slot currently assigned to owner, if any.
func (eb *Block) Find(owner Owner) (physical int, ok bool) {
	for i := range eb.slots {
		if eb.slots[i].occupied && eb.slots[i].owner == owner {
			return i, true
		}
	}
	return 0, false
}

func (eb *Block) payloadStart(physical int) int {
	start := 0
	for i := 0; i < physical; i++ {
		start += eb.slots[i].tenancy
	}
	return start
}

func (eb *Block) openPayloadGap(index, steps int) {
	if eb.usedPayloads > index {
		eb.payloads.ShiftRightFromIndex(index, steps, eb.usedPayloads-1)
	}
}

func (eb *Block) closePayloadGap(index, steps int) {
	if eb.usedPayloads > index+steps {
		eb.payloads.ShiftLeftFromIndex(index, steps, eb.usedPayloads-1)
	}
}

func (eb *Block) refreshExtraBits(idx int, fp fingerprint.Fingerprint) {
	if eb.cfg.ReserveBits <= 1 {
		return
	}
	width := eb.cfg.ReserveBits - 1
	eb.payloads.SetExtraBitsAt(fp.Bits(eb.fpIndex(), width), idx, 0)
}

// Write inserts or updates fp at the physical slot, the same verify-by-
// readback protocol block.Block.Write uses.
func (eb *Block) Write(physical int, fp fingerprint.Fingerprint, log *sslog.Log, addr sslog.Address) (Info, error) {
	if eb.dht {
		return eb.writeDHT(physical, fp, log, addr)
	}
	return eb.writeTrie(physical, fp, log, addr)
}

// writeDHT mirrors block.Block.writeDHT: no trie, linear scan within the
// physical slot's payload range.
func (eb *Block) writeDHT(physical int, fp fingerprint.Fingerprint, log *sslog.Log, addr sslog.Address) (Info, error) {
	s := &eb.slots[physical]
	start := eb.payloadStart(physical)

	for i := 0; i < s.tenancy; i++ {
		idx := start + i
		candidateAddr := sslog.Address(eb.payloads.GetPayloadAt(idx))
		entry, err := log.Read(candidateAddr)
		if err != nil {
			return Info{}, err
		}
		if fingerprint.Of(entry.Key).Equal(fp) {
			eb.payloads.SetPayloadAt(idx, uint64(addr))
			eb.refreshExtraBits(idx, fp)
			return eb.Info(), nil
		}
	}

	if eb.usedPayloads >= eb.payloads.Len() {
		return Info{}, appErrors.NewPayloadFullError("Write")
	}

	insertIdx := start + s.tenancy
	eb.openPayloadGap(insertIdx, 1)
	eb.payloads.SetPayloadAt(insertIdx, uint64(addr))
	eb.refreshExtraBits(insertIdx, fp)
	s.tenancy++
	eb.usedPayloads++

	return eb.Info(), nil
}

func (eb *Block) writeTrie(physical int, fp fingerprint.Fingerprint, log *sslog.Log, addr sslog.Address) (Info, error) {
	s := &eb.slots[physical]
	start := eb.payloadStart(physical)

	if s.tenancy == 0 {
		if eb.usedPayloads >= eb.payloads.Len() {
			return Info{}, appErrors.NewPayloadFullError("Write")
		}
		eb.openPayloadGap(start, 1)
		eb.payloads.SetPayloadAt(start, uint64(addr))
		eb.refreshExtraBits(start, fp)
		s.tenancy = 1
		s.trie = trie.New(1, 0, eb.fpIndex())
		eb.usedPayloads++
		return eb.Info(), nil
	}

	offset := s.trie.OffsetIndex(fp)
	candidateIdx := start + offset
	candidateAddr := sslog.Address(eb.payloads.GetPayloadAt(candidateIdx))
	candidateEntry, err := log.Read(candidateAddr)
	if err != nil {
		return Info{}, err
	}
	candidateFP := fingerprint.Of(candidateEntry.Key)

	if candidateFP.Equal(fp) {
		eb.payloads.SetPayloadAt(candidateIdx, uint64(addr))
		eb.refreshExtraBits(candidateIdx, fp)
		return eb.Info(), nil
	}

	firstDiff := trie.FirstDiffIndex(candidateFP, fp)
	_, oldUsed := s.trie.Serialize(scratchBits)
	candidateTrie := s.trie.Clone()
	candidateTrie.Insert(fp, firstDiff)
	_, newUsed := candidateTrie.Serialize(scratchBits)
	delta := newUsed - oldUsed

	if eb.usedMetaBits+delta > metaBitBudget {
		return Info{}, appErrors.NewBlockFullError("Write")
	}
	if eb.usedPayloads >= eb.payloads.Len() {
		return Info{}, appErrors.NewPayloadFullError("Write")
	}

	s.trie = candidateTrie
	eb.usedMetaBits += delta
	newOffset := s.trie.OffsetIndex(fp)
	insertIdx := start + newOffset

	eb.openPayloadGap(insertIdx, 1)
	eb.payloads.SetPayloadAt(insertIdx, uint64(addr))
	eb.refreshExtraBits(insertIdx, fp)
	s.tenancy++
	eb.usedPayloads++

	return eb.Info(), nil
}

// Read resolves fp at the physical slot, verifying against the log the same
// way block.Block.Read does.
func (eb *Block) Read(physical int, fp fingerprint.Fingerprint, log *sslog.Log) (sslog.Entry, bool, error) {
	if eb.dht {
		return eb.readDHT(physical, fp, log)
	}
	return eb.readTrie(physical, fp, log)
}

// readDHT mirrors block.Block.readDHT.
func (eb *Block) readDHT(physical int, fp fingerprint.Fingerprint, log *sslog.Log) (sslog.Entry, bool, error) {
	s := &eb.slots[physical]
	start := eb.payloadStart(physical)
	for i := 0; i < s.tenancy; i++ {
		idx := start + i
		addr := sslog.Address(eb.payloads.GetPayloadAt(idx))
		entry, err := log.Read(addr)
		if err != nil {
			return sslog.Entry{}, false, err
		}
		if fingerprint.Of(entry.Key).Equal(fp) {
			eb.refreshExtraBits(idx, fp)
			return entry, true, nil
		}
	}
	return sslog.Entry{}, false, nil
}

func (eb *Block) readTrie(physical int, fp fingerprint.Fingerprint, log *sslog.Log) (sslog.Entry, bool, error) {
	s := &eb.slots[physical]
	if s.tenancy == 0 {
		return sslog.Entry{}, false, nil
	}

	start := eb.payloadStart(physical)
	offset := s.trie.OffsetIndex(fp)
	idx := start + offset

	if eb.cfg.ReserveBits > 1 {
		ebits := eb.payloads.GetExtraBitsAt(idx)
		if ebits.Width > 0 && fp.Bits(eb.fpIndex(), ebits.Width) != ebits.Value {
			return sslog.Entry{}, false, nil
		}
	}

	addr := sslog.Address(eb.payloads.GetPayloadAt(idx))
	entry, err := log.Read(addr)
	if err != nil {
		return sslog.Entry{}, false, err
	}
	candidateFP := fingerprint.Of(entry.Key)
	if !candidateFP.Equal(fp) {
		return sslog.Entry{}, false, nil
	}
	eb.refreshExtraBits(idx, candidateFP)
	return entry, true, nil
}

// Remove deletes fp from the physical slot. The caller is responsible for
// calling Release once the owning l-slot's tenancy reaches zero, since a
// displaced l-slot's identity (Owner) must survive a Remove that leaves
// other fingerprints behind.
func (eb *Block) Remove(physical int, fp fingerprint.Fingerprint, log *sslog.Log) (Info, error) {
	if eb.dht {
		return eb.removeDHT(physical, fp, log)
	}
	return eb.removeTrie(physical, fp, log)
}

// removeDHT mirrors block.Block.removeDHT.
func (eb *Block) removeDHT(physical int, fp fingerprint.Fingerprint, log *sslog.Log) (Info, error) {
	s := &eb.slots[physical]
	start := eb.payloadStart(physical)
	for i := 0; i < s.tenancy; i++ {
		idx := start + i
		addr := sslog.Address(eb.payloads.GetPayloadAt(idx))
		entry, err := log.Read(addr)
		if err != nil {
			return Info{}, err
		}
		if !fingerprint.Of(entry.Key).Equal(fp) {
			continue
		}
		eb.closePayloadGap(idx, 1)
		s.tenancy--
		eb.usedPayloads--
		return eb.Info(), nil
	}
	return Info{}, appErrors.NewNotFoundError("")
}

func (eb *Block) removeTrie(physical int, fp fingerprint.Fingerprint, log *sslog.Log) (Info, error) {
	s := &eb.slots[physical]
	if s.tenancy == 0 {
		return Info{}, appErrors.NewNotFoundError("")
	}

	start := eb.payloadStart(physical)
	offset := s.trie.OffsetIndex(fp)
	idx := start + offset

	addr := sslog.Address(eb.payloads.GetPayloadAt(idx))
	entry, err := log.Read(addr)
	if err != nil {
		return Info{}, err
	}
	if !fingerprint.Of(entry.Key).Equal(fp) {
		return Info{}, appErrors.NewNotFoundError("")
	}

	if s.tenancy == 1 {
		s.tenancy = 0
		s.trie = nil
		eb.closePayloadGap(idx, 1)
		eb.usedPayloads--
		return eb.Info(), nil
	}

	_, oldUsed := s.trie.Serialize(scratchBits)
	candidateTrie := s.trie.Clone()
	candidateTrie.Remove(fp)
	_, newUsed := candidateTrie.Serialize(scratchBits)

	s.trie = candidateTrie
	eb.usedMetaBits += newUsed - oldUsed
	s.tenancy--

	eb.closePayloadGap(idx, 1)
	eb.usedPayloads--

	return eb.Info(), nil
}

// Tenancy returns the current tenancy of the l-slot at physical, so a
// caller can decide whether to Release it after a Remove.
func (eb *Block) Tenancy(physical int) int { return eb.slots[physical].tenancy }

// SlotAddresses returns the log addresses of every entry currently stored at
// physical, the same operation block.Block.SlotAddresses offers, used when a
// Segment redistributes a displaced l-slot during a split.
func (eb *Block) SlotAddresses(physical int) []sslog.Address {
	s := &eb.slots[physical]
	if s.tenancy == 0 {
		return nil
	}
	start := eb.payloadStart(physical)
	addrs := make([]sslog.Address, s.tenancy)
	for i := 0; i < s.tenancy; i++ {
		addrs[i] = sslog.Address(eb.payloads.GetPayloadAt(start + i))
	}
	return addrs
}
