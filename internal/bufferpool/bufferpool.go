// Package bufferpool implements the capacity-bounded read-cache in front of
// the SSD log: a sorted-by-hash, linear-probing hash table keyed by
// sslog.Address, caching the Entry last read or written at that address, with
// clock eviction once the table's load factor crosses a threshold.
//
// Grounded on original_source/buffer_pool2/buffer_pool2.h's
// LinearProbingHashTable: entries within a probe run are kept sorted by
// hash so a lookup can stop the moment it passes where its key would have
// been (the `e_hash > hash -> not found` check in both Put and Get), and
// eviction sweeps from a persistent clock hand, skipping any entry whose
// reference bit is set (clearing it instead, the classic second-chance
// policy) until one is evicted or two full sweeps of the table have found
// none.
package bufferpool

import (
	"encoding/binary"

	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/sfmqrb/sphinx/internal/sslog"
	"github.com/sfmqrb/sphinx/pkg/options"
)

type entry struct {
	occupied  bool
	valid     bool
	reference bool
	hash      uint64
	addr      sslog.Address
	record    sslog.Entry
}

// Pool is a fixed-capacity, clock-evicted cache from log address to the
// Entry stored there. A zero-capacity Pool is always a miss, matching
// options.Config.BufferPoolCap == 0 disabling the cache outright.
type Pool struct {
	mu sync.Mutex

	capacity      int
	maxLoadFactor float64
	batchEviction bool

	table     []entry
	size      int
	clockHand int

	cacheHits  uint64
	totalQuery uint64
}

// New constructs a Pool sized cfg.BufferPoolCap. A zero capacity is valid
// and produces a Pool that never caches anything.
func New(cfg *options.Config) *Pool {
	return &Pool{
		capacity:      cfg.BufferPoolCap,
		maxLoadFactor: cfg.MaxLoadFactor,
		batchEviction: cfg.BatchEviction,
		table:         make([]entry, cfg.BufferPoolCap),
	}
}

func hashAddr(addr sslog.Address) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(addr))
	return xxhash.Sum64(buf[:])
}

func (p *Pool) loadFactor() float64 {
	if p.capacity == 0 {
		return 0
	}
	return float64(p.size) / float64(p.capacity)
}

// Put caches record under addr, evicting first if the load factor requires
// it. It returns false when the table is disabled or full.
func (p *Pool) Put(addr sslog.Address, record sslog.Entry) bool {
	if p.capacity == 0 {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.maxLoadFactor > 0 && p.loadFactor() > p.maxLoadFactor {
		var evicted bool
		if p.batchEviction {
			evicted = p.batchEvictLocked()
		} else {
			evicted = p.evictLocked()
		}
		if !evicted {
			return false
		}
	}

	hash := hashAddr(addr)
	current := int(hash % uint64(p.capacity))

	for probes := 0; probes < p.capacity; probes++ {
		e := &p.table[current]
		if !e.occupied {
			*e = entry{occupied: true, valid: true, reference: true, hash: hash, addr: addr, record: record}
			p.size++
			return true
		}
		switch {
		case e.hash == hash:
			e.record = record
			e.reference = true
			e.valid = true
			return true
		case e.hash > hash:
			if !p.shiftRightFrom(current) {
				return false
			}
			*e = entry{occupied: true, valid: true, reference: true, hash: hash, addr: addr, record: record}
			p.size++
			return true
		default:
			current = (current + 1) % p.capacity
		}
	}
	return false
}

// Get resolves addr's cached Entry, if present and still valid, setting its
// reference bit for the clock-eviction policy.
func (p *Pool) Get(addr sslog.Address) (sslog.Entry, bool) {
	if p.capacity == 0 {
		return sslog.Entry{}, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.totalQuery++

	hash := hashAddr(addr)
	current := int(hash % uint64(p.capacity))

	for probes := 0; probes < p.capacity; probes++ {
		e := &p.table[current]
		if !e.occupied {
			return sslog.Entry{}, false
		}
		switch {
		case e.hash == hash && e.valid:
			e.reference = true
			p.cacheHits++
			return e.record, true
		case e.hash > hash:
			return sslog.Entry{}, false
		default:
			current = (current + 1) % p.capacity
		}
	}
	return sslog.Entry{}, false
}

// Invalidate marks addr's cached entry stale without removing it, so a
// concurrent Get sees a miss but eviction can still reclaim the slot later.
func (p *Pool) Invalidate(addr sslog.Address) bool {
	if p.capacity == 0 {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	hash := hashAddr(addr)
	current := int(hash % uint64(p.capacity))

	for probes := 0; probes < p.capacity; probes++ {
		e := &p.table[current]
		if !e.occupied {
			return false
		}
		switch {
		case e.hash == hash && e.valid:
			e.valid = false
			return true
		case e.hash > hash:
			return false
		default:
			current = (current + 1) % p.capacity
		}
	}
	return false
}

// shiftRightFrom makes room at index by pushing the run of occupied entries
// starting there one slot further along their probe sequence, stopping (and
// reporting failure) if the run wraps all the way back around.
func (p *Pool) shiftRightFrom(index int) bool {
	end := index
	for probes := 0; probes < p.capacity; probes++ {
		next := (end + 1) % p.capacity
		if !p.table[next].occupied {
			for i := next; i != index; {
				prev := (i - 1 + p.capacity) % p.capacity
				p.table[i] = p.table[prev]
				i = prev
			}
			return true
		}
		end = next
	}
	return false
}

// shiftLeftFrom closes the gap left by evicting index, pulling the
// following entries of the run back one slot, up to the first empty slot or
// the first entry that already sits in its home slot.
func (p *Pool) shiftLeftFrom(index int) {
	i := index
	for probes := 0; probes < p.capacity; probes++ {
		next := (i + 1) % p.capacity
		if !p.table[next].occupied || int(p.table[next].hash%uint64(p.capacity)) == next {
			p.table[i] = entry{}
			return
		}
		p.table[i] = p.table[next]
		i = next
	}
	p.table[i] = entry{}
}

// evictLocked runs the clock hand forward one slot at a time, evicting the
// first occupied entry it finds whose reference bit is clear (or whose
// entry has been invalidated), clearing reference bits as it passes them
// over (the second-chance policy). Caller must hold p.mu.
func (p *Pool) evictLocked() bool {
	for scanned := 0; scanned < p.capacity*2; scanned++ {
		e := &p.table[p.clockHand]
		if e.occupied {
			if !e.reference || !e.valid {
				p.shiftLeftFrom(p.clockHand)
				p.size--
				p.clockHand = (p.clockHand + 1) % p.capacity
				return true
			}
			e.reference = false
		}
		p.clockHand = (p.clockHand + 1) % p.capacity
	}
	return false
}

// batchEvictLocked sweeps one capacity-sized pass from the clock hand,
// evicting every entry that is unreferenced or invalid instead of stopping
// at the first one, trading a larger single pause for fewer future pauses.
// Caller must hold p.mu.
func (p *Pool) batchEvictLocked() bool {
	evicted := false
	start := p.clockHand
	for i := 0; i < p.capacity; i++ {
		idx := (start + i) % p.capacity
		e := &p.table[idx]
		if e.occupied && (!e.reference || !e.valid) {
			p.shiftLeftFrom(idx)
			p.size--
			evicted = true
		} else if e.occupied {
			e.reference = false
		}
	}
	p.clockHand = start
	return evicted
}

// Stats reports cache effectiveness since the last ResetStats call.
type Stats struct {
	CacheHits  uint64
	TotalQuery uint64
	Size       int
	Capacity   int
}

// Stats returns the pool's current hit-rate counters and occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{CacheHits: p.cacheHits, TotalQuery: p.totalQuery, Size: p.size, Capacity: p.capacity}
}

// ResetStats zeroes the hit-rate counters without touching cached entries.
func (p *Pool) ResetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cacheHits = 0
	p.totalQuery = 0
}
