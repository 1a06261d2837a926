// Package block implements a Segment's home block: 64 l-slots, each holding
// zero or more fingerprints that share the same leading FPIndex bits, backed
// by a single PayloadList shared across the whole block. An l-slot's
// fingerprints are disambiguated by a tenancy trie once more than one
// fingerprint lands in it; the trie encoding's bit cost is metered against a
// per-block budget, and once that budget (or the PayloadList) is exhausted
// the owning Segment displaces the block's highest still-resident l-slot
// into an extension block.
//
// A 64-slot occupancy bitmap and the tenancy-trie region could share one
// packed register, addressed with rank/select and leading-zero-count
// tricks; this implementation keeps the l-slot and tenancy-trie semantics
// that scheme would produce but drops the packing itself: tenancy is
// tracked per l-slot in an explicit array, and the bit budget a block has
// already spent is kept as a running counter instead of being recovered
// from a shared register's layout. An l-slot's displaced/extended state is
// recorded directly rather than inferred from trailing bits.
package block

import (
	"github.com/sfmqrb/sphinx/internal/fingerprint"
	"github.com/sfmqrb/sphinx/internal/payload"
	"github.com/sfmqrb/sphinx/internal/sslog"
	"github.com/sfmqrb/sphinx/internal/trie"
	appErrors "github.com/sfmqrb/sphinx/pkg/errors"
	"github.com/sfmqrb/sphinx/pkg/options"
)

// SlotCount is the number of l-slots in one block.
const SlotCount = 64

// metaBitBudget is the number of bits available for tenancy-trie encoding
// across all 64 l-slots, out of a 256-bit budget that would otherwise also
// need to cover a 64-bit occupancy bitmap; since occupancy (tenancy > 0)
// is tracked directly instead of in a bitmap, the full remainder is
// available to the trie region.
const metaBitBudget = 256 - SlotCount

// scratchBits sizes the scratch bitvector used only to measure how many
// bits a candidate trie would serialize to, before committing it against
// the real metaBitBudget. It must be large enough that no plausible tenancy
// overflows it; metaBitBudget itself is too tight for that, since a
// speculative insert is measured before we know whether it fits.
const scratchBits = 4096

// Info summarises a block's remaining capacity after a Write or Remove,
// the detail a Segment needs to decide whether to extend or split.
type Info struct {
	IsExtended         bool
	FirstExtendedLSlot int
	RemainingBits      int
	RemainingPayload   int
}

type lslot struct {
	tenancy int
	trie    *trie.Trie
}

// Block is one segment's home block.
type Block struct {
	cfg    *options.Config
	fpBits int // FPIndex: fingerprint bits already consumed selecting this block
	dht    bool

	lslots             [SlotCount]lslot
	payloads           *payload.List
	usedPayloads       int
	usedMetaBits       int
	firstExtendedLSlot int // SlotCount when nothing has been displaced
}

// New allocates an empty Block. fpBits is the number of leading fingerprint
// bits already consumed selecting this block within its segment; the next
// log2(SlotCount) bits select an l-slot, and bits past that feed the l-slot's
// tenancy trie (unless cfg.ReadStrategy is ReadStrategyDHT, in which case no
// trie is ever built — see the *DHT methods below).
func New(cfg *options.Config, fpBits int) *Block {
	return &Block{
		cfg:                cfg,
		fpBits:             fpBits,
		dht:                cfg.ReadStrategy == options.ReadStrategyDHT,
		payloads:           payload.New(cfg.PayloadListLength(), cfg.BitsPerEntry, cfg.ReserveBits),
		firstExtendedLSlot: SlotCount,
	}
}

func (b *Block) lslotIndex(fp fingerprint.Fingerprint) int {
	const lslotBits = 6 // log2(SlotCount)
	return int(fp.Prefix(b.fpBits+lslotBits) & (SlotCount - 1))
}

// LSlotIndex returns the l-slot fp routes to, the same computation Write,
// Read and Remove use internally. A Segment calls this to decide whether an
// l-slot has already been pushed past the extension boundary before it even
// attempts a home-block operation.
func (b *Block) LSlotIndex(fp fingerprint.Fingerprint) int { return b.lslotIndex(fp) }

func (b *Block) fpIndex() int { return b.fpBits + 6 }

// SlotAddresses returns the log addresses of every entry currently stored in
// lslot, in trie order. A Segment reads these back through the log to
// recover each entry's key (and so its fingerprint) when displacing the
// l-slot into an extension block.
func (b *Block) SlotAddresses(lslotIdx int) []sslog.Address {
	slot := &b.lslots[lslotIdx]
	if slot.tenancy == 0 {
		return nil
	}
	start := b.payloadStart(lslotIdx)
	addrs := make([]sslog.Address, slot.tenancy)
	for i := 0; i < slot.tenancy; i++ {
		addrs[i] = sslog.Address(b.payloads.GetPayloadAt(start + i))
	}
	return addrs
}

// ClearSlot empties lslot, releasing its payload-list entries and trie bits
// back to the block's shared budget. The caller (Segment) is responsible for
// having already relocated lslot's entries elsewhere, and for calling
// SetExtensionBoundary to keep the l-slot from being written to again here.
func (b *Block) ClearSlot(lslotIdx int) {
	slot := &b.lslots[lslotIdx]
	if slot.tenancy == 0 {
		return
	}
	start := b.payloadStart(lslotIdx)
	if slot.tenancy > 1 {
		_, used := slot.trie.Serialize(scratchBits)
		b.usedMetaBits -= used
	}
	b.closePayloadGap(start, slot.tenancy)
	b.usedPayloads -= slot.tenancy
	slot.tenancy = 0
	slot.trie = nil
}

func (b *Block) payloadStart(slotIdx int) int {
	start := 0
	for i := 0; i < slotIdx; i++ {
		start += b.lslots[i].tenancy
	}
	return start
}

// Info reports the block's remaining capacity.
func (b *Block) Info() Info {
	return Info{
		IsExtended:         b.firstExtendedLSlot < SlotCount,
		FirstExtendedLSlot: b.firstExtendedLSlot,
		RemainingBits:      metaBitBudget - b.usedMetaBits,
		RemainingPayload:   b.cfg.PayloadListLength() - b.usedPayloads,
	}
}

// SetExtensionBoundary records that l-slots at or past lslot have been
// displaced into an extension block.
func (b *Block) SetExtensionBoundary(lslot int) {
	b.firstExtendedLSlot = lslot
}

func (b *Block) refreshExtraBits(idx int, fp fingerprint.Fingerprint) {
	if b.cfg.ReserveBits <= 1 {
		return
	}
	width := b.cfg.ReserveBits - 1
	b.payloads.SetExtraBitsAt(fp.Bits(b.fpIndex(), width), idx, 0)
}

// Write inserts or updates fp's payload with addr. It returns the block's
// new Info on success, or a CoreError (LslotExtended, BlockFull,
// PayloadFull) when the caller must resolve capacity elsewhere first.
func (b *Block) Write(fp fingerprint.Fingerprint, log *sslog.Log, addr sslog.Address) (Info, error) {
	if b.dht {
		return b.writeDHT(fp, log, addr)
	}
	return b.writeTrie(fp, log, addr)
}

// writeDHT is ReadStrategyDHT's Write: no tenancy trie is built for an
// l-slot with more than one occupant, so disambiguation walks the l-slot's
// payload range directly, reading each candidate's key back from the log.
// Fan-out within the l-slot is carried purely by slot.tenancy, per spec's
// "one payload slot per fingerprint, with per-l-slot fan-out encoded in
// tenancy bits only."
func (b *Block) writeDHT(fp fingerprint.Fingerprint, log *sslog.Log, addr sslog.Address) (Info, error) {
	slotIdx := b.lslotIndex(fp)
	if slotIdx >= b.firstExtendedLSlot {
		return Info{}, appErrors.NewLslotExtendedError(slotIdx)
	}

	slot := &b.lslots[slotIdx]
	start := b.payloadStart(slotIdx)

	for i := 0; i < slot.tenancy; i++ {
		idx := start + i
		candidateAddr := sslog.Address(b.payloads.GetPayloadAt(idx))
		entry, err := log.Read(candidateAddr)
		if err != nil {
			return Info{}, err
		}
		if fingerprint.Of(entry.Key).Equal(fp) {
			b.payloads.SetPayloadAt(idx, uint64(addr))
			b.refreshExtraBits(idx, fp)
			return b.Info(), nil
		}
	}

	if b.usedPayloads >= b.payloads.Len() {
		return Info{}, appErrors.NewPayloadFullError("Write")
	}

	insertIdx := start + slot.tenancy
	b.openPayloadGap(insertIdx, 1)
	b.payloads.SetPayloadAt(insertIdx, uint64(addr))
	b.refreshExtraBits(insertIdx, fp)
	slot.tenancy++
	b.usedPayloads++

	return b.Info(), nil
}

func (b *Block) writeTrie(fp fingerprint.Fingerprint, log *sslog.Log, addr sslog.Address) (Info, error) {
	slotIdx := b.lslotIndex(fp)
	if slotIdx >= b.firstExtendedLSlot {
		return Info{}, appErrors.NewLslotExtendedError(slotIdx)
	}

	slot := &b.lslots[slotIdx]
	start := b.payloadStart(slotIdx)

	if slot.tenancy == 0 {
		if b.usedPayloads >= b.payloads.Len() {
			return Info{}, appErrors.NewPayloadFullError("Write")
		}
		b.openPayloadGap(start, 1)
		b.payloads.SetPayloadAt(start, uint64(addr))
		b.refreshExtraBits(start, fp)
		slot.tenancy = 1
		slot.trie = trie.New(1, 0, b.fpIndex())
		b.usedPayloads++
		return b.Info(), nil
	}

	offset := slot.trie.OffsetIndex(fp)
	candidateIdx := start + offset
	candidateAddr := sslog.Address(b.payloads.GetPayloadAt(candidateIdx))
	candidateEntry, err := log.Read(candidateAddr)
	if err != nil {
		return Info{}, err
	}
	candidateFP := fingerprint.Of(candidateEntry.Key)

	if candidateFP.Equal(fp) {
		b.payloads.SetPayloadAt(candidateIdx, uint64(addr))
		b.refreshExtraBits(candidateIdx, fp)
		return b.Info(), nil
	}

	firstDiff := trie.FirstDiffIndex(candidateFP, fp)
	_, oldUsed := slot.trie.Serialize(scratchBits)
	candidateTrie := slot.trie.Clone()
	candidateTrie.Insert(fp, firstDiff)
	_, newUsed := candidateTrie.Serialize(scratchBits)
	delta := newUsed - oldUsed

	if b.usedMetaBits+delta > metaBitBudget {
		return Info{}, appErrors.NewBlockFullError("Write")
	}
	if b.usedPayloads >= b.payloads.Len() {
		return Info{}, appErrors.NewPayloadFullError("Write")
	}

	slot.trie = candidateTrie
	b.usedMetaBits += delta
	newOffset := slot.trie.OffsetIndex(fp)
	insertIdx := start + newOffset

	b.openPayloadGap(insertIdx, 1)
	b.payloads.SetPayloadAt(insertIdx, uint64(addr))
	b.refreshExtraBits(insertIdx, fp)
	slot.tenancy++
	b.usedPayloads++

	return b.Info(), nil
}

func (b *Block) openPayloadGap(index, steps int) {
	if b.usedPayloads > index {
		b.payloads.ShiftRightFromIndex(index, steps, b.usedPayloads-1)
	}
}

func (b *Block) closePayloadGap(index, steps int) {
	if b.usedPayloads > index+steps {
		b.payloads.ShiftLeftFromIndex(index, steps, b.usedPayloads-1)
	}
}

// Read looks up fp, resolving it through the sslog.Log to confirm the
// fingerprint actually stored there matches (the l-slot and trie walk alone
// only narrow the search; a 128-bit fingerprint is trusted not to collide,
// but a read always verifies before returning a hit).
func (b *Block) Read(fp fingerprint.Fingerprint, log *sslog.Log) (sslog.Entry, bool, error) {
	if b.dht {
		return b.readDHT(fp, log)
	}
	return b.readTrie(fp, log)
}

// readDHT is ReadStrategyDHT's Read: a linear scan over the l-slot's
// payload range instead of a trie-directed offset.
func (b *Block) readDHT(fp fingerprint.Fingerprint, log *sslog.Log) (sslog.Entry, bool, error) {
	slotIdx := b.lslotIndex(fp)
	if slotIdx >= b.firstExtendedLSlot {
		return sslog.Entry{}, false, appErrors.NewLslotExtendedError(slotIdx)
	}

	slot := &b.lslots[slotIdx]
	start := b.payloadStart(slotIdx)
	for i := 0; i < slot.tenancy; i++ {
		idx := start + i
		addr := sslog.Address(b.payloads.GetPayloadAt(idx))
		entry, err := log.Read(addr)
		if err != nil {
			return sslog.Entry{}, false, err
		}
		if fingerprint.Of(entry.Key).Equal(fp) {
			b.refreshExtraBits(idx, fp)
			return entry, true, nil
		}
	}
	return sslog.Entry{}, false, nil
}

func (b *Block) readTrie(fp fingerprint.Fingerprint, log *sslog.Log) (sslog.Entry, bool, error) {
	slotIdx := b.lslotIndex(fp)
	if slotIdx >= b.firstExtendedLSlot {
		return sslog.Entry{}, false, appErrors.NewLslotExtendedError(slotIdx)
	}

	slot := &b.lslots[slotIdx]
	if slot.tenancy == 0 {
		return sslog.Entry{}, false, nil
	}

	start := b.payloadStart(slotIdx)
	offset := slot.trie.OffsetIndex(fp)
	idx := start + offset

	if b.cfg.ReserveBits > 1 {
		eb := b.payloads.GetExtraBitsAt(idx)
		if eb.Width > 0 && fp.Bits(b.fpIndex(), eb.Width) != eb.Value {
			return sslog.Entry{}, false, nil
		}
	}

	addr := sslog.Address(b.payloads.GetPayloadAt(idx))
	entry, err := log.Read(addr)
	if err != nil {
		return sslog.Entry{}, false, err
	}

	candidateFP := fingerprint.Of(entry.Key)
	if !candidateFP.Equal(fp) {
		return sslog.Entry{}, false, nil
	}

	b.refreshExtraBits(idx, candidateFP)
	return entry, true, nil
}

// Remove deletes fp's entry, if present, compacting its l-slot's trie and
// the shared payload list.
func (b *Block) Remove(fp fingerprint.Fingerprint, log *sslog.Log) (Info, error) {
	if b.dht {
		return b.removeDHT(fp, log)
	}
	return b.removeTrie(fp, log)
}

// removeDHT is ReadStrategyDHT's Remove: linear scan to find fp's entry,
// since there is no trie offset to resolve it with directly.
func (b *Block) removeDHT(fp fingerprint.Fingerprint, log *sslog.Log) (Info, error) {
	slotIdx := b.lslotIndex(fp)
	if slotIdx >= b.firstExtendedLSlot {
		return Info{}, appErrors.NewLslotExtendedError(slotIdx)
	}

	slot := &b.lslots[slotIdx]
	start := b.payloadStart(slotIdx)
	for i := 0; i < slot.tenancy; i++ {
		idx := start + i
		addr := sslog.Address(b.payloads.GetPayloadAt(idx))
		entry, err := log.Read(addr)
		if err != nil {
			return Info{}, err
		}
		if !fingerprint.Of(entry.Key).Equal(fp) {
			continue
		}
		b.closePayloadGap(idx, 1)
		slot.tenancy--
		b.usedPayloads--
		return b.Info(), nil
	}
	return Info{}, appErrors.NewNotFoundError("")
}

func (b *Block) removeTrie(fp fingerprint.Fingerprint, log *sslog.Log) (Info, error) {
	slotIdx := b.lslotIndex(fp)
	if slotIdx >= b.firstExtendedLSlot {
		return Info{}, appErrors.NewLslotExtendedError(slotIdx)
	}

	slot := &b.lslots[slotIdx]
	if slot.tenancy == 0 {
		return Info{}, appErrors.NewNotFoundError("")
	}

	start := b.payloadStart(slotIdx)
	offset := slot.trie.OffsetIndex(fp)
	idx := start + offset

	addr := sslog.Address(b.payloads.GetPayloadAt(idx))
	entry, err := log.Read(addr)
	if err != nil {
		return Info{}, err
	}
	if !fingerprint.Of(entry.Key).Equal(fp) {
		return Info{}, appErrors.NewNotFoundError("")
	}

	if slot.tenancy == 1 {
		slot.tenancy = 0
		slot.trie = nil
		b.closePayloadGap(idx, 1)
		b.usedPayloads--
		return b.Info(), nil
	}

	_, oldUsed := slot.trie.Serialize(scratchBits)
	candidateTrie := slot.trie.Clone()
	candidateTrie.Remove(fp)
	_, newUsed := candidateTrie.Serialize(scratchBits)

	slot.trie = candidateTrie
	b.usedMetaBits += newUsed - oldUsed
	slot.tenancy--

	b.closePayloadGap(idx, 1)
	b.usedPayloads--

	return b.Info(), nil
}
