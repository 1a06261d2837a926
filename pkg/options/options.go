// Package options provides data structures and functions for configuring
// the storage core. Every parameter here is drawn from a closed, enumerated
// set rather than an arbitrary runtime value, fixed when a store is
// constructed.
package options

import "fmt"

// ReadStrategy selects how a Block resolves a fingerprint to an offset
// within an l-slot's payload list.
type ReadStrategy string

const (
	// ReadStrategyOptimised uses the fastest available offset-resolution
	// path for the configured tenancy.
	ReadStrategyOptimised ReadStrategy = "optimised"

	// ReadStrategyNoHashtable skips any precomputed acceleration structure
	// and always walks the tenancy trie directly.
	ReadStrategyNoHashtable ReadStrategy = "no-hashtable"

	// ReadStrategyNoHashtableNoTen2Fastpath additionally disables the
	// tenancy-2 shortcut, always going through the general trie walk.
	ReadStrategyNoHashtableNoTen2Fastpath ReadStrategy = "no-hashtable-no-ten2-fastpath"

	// ReadStrategyDHT turns off trie encoding entirely: one payload slot
	// per fingerprint, with per-l-slot fan-out encoded in tenancy bits only.
	ReadStrategyDHT ReadStrategy = "DHT"
)

// Config holds every enumerated parameter that controls the storage core's
// behaviour, performance, and resource utilisation. A Config is validated
// once at construction and is not modified afterwards; components keep a
// pointer to it and read fields such as Expand and ReserveBits during
// operations.
type Config struct {
	// DataDir is the base path where the SSD log file lives when InMemory
	// is false.
	DataDir string

	// ExtensionBlockSize is K, the number of extension blocks in a
	// segment's overflow ring.
	//
	//  - Default: 4
	ExtensionBlockSize int

	// BitsPerEntry is the width of one PayloadList entry in bits.
	//
	//  - Must be one of: 4, 8, 16, 32, 64.
	//  - Default: 64
	BitsPerEntry int

	// ReserveBits is R, the number of fingerprint-extension bits carried
	// next to each payload pointer. R <= 1 disables the reserve-bit
	// feature entirely.
	//
	//  - Default: 8
	ReserveBits int

	// ReadStrategy selects the offset-resolution algorithm a Block uses.
	//
	//  - Default: ReadStrategyOptimised
	ReadStrategy ReadStrategy

	// Expand controls whether the Directory may double when a segment
	// can no longer absorb an insert. When false, a full segment
	// surfaces NoSpace instead of splitting.
	//
	//  - Default: true
	Expand bool

	// BufferPoolCap is the capacity of the clock-evicted read cache in
	// front of the SSD log. Zero disables it.
	//
	//  - Default: 0 (disabled)
	BufferPoolCap int

	// MaxLoadFactor is the BufferPool load-factor threshold that triggers
	// eviction. Zero disables eviction altogether: once the table is full,
	// Put returns false.
	//
	//  - Default: 0
	MaxLoadFactor float64

	// LockLength is validated as positive but not read by the BufferPool,
	// which guards its whole table with a single mutex.
	//
	//  - Default: 100
	LockLength int

	// BatchEviction selects a single full-region sweep instead of the
	// incremental clock-hand sweep when the BufferPool evicts.
	//
	//  - Default: false
	BatchEviction bool

	// InMemory backs the SSD log with a growable in-memory buffer
	// instead of a file.
	//
	//  - Default: true
	InMemory bool

	// LogPages is the number of fixed-size pages the SSD log allocates
	// up front.
	//
	//  - Default: 1024
	LogPages int
}

// OptionFunc is a function type that modifies a Config's fields.
type OptionFunc func(*Config)

// WithDefaultConfig applies every default value to the Config.
func WithDefaultConfig() OptionFunc {
	return func(c *Config) {
		*c = NewDefaultConfig()
	}
}

// WithDataDir sets the base directory used when the SSD log is file-backed.
func WithDataDir(dir string) OptionFunc {
	return func(c *Config) {
		if dir != "" {
			c.DataDir = dir
		}
	}
}

// WithExtensionBlockSize sets K, the extension-block ring size.
func WithExtensionBlockSize(k int) OptionFunc {
	return func(c *Config) {
		if k > 0 {
			c.ExtensionBlockSize = k
		}
	}
}

// WithBitsPerEntry sets the PayloadList entry width. Values outside the
// enumerated set {4,8,16,32,64} are ignored, leaving the previous value in
// place.
func WithBitsPerEntry(bits int) OptionFunc {
	return func(c *Config) {
		if isValidEntryWidth(bits) {
			c.BitsPerEntry = bits
		}
	}
}

// WithReserveBits sets R. A value <= 1 disables reserve bits.
func WithReserveBits(bits int) OptionFunc {
	return func(c *Config) {
		if bits >= 0 {
			c.ReserveBits = bits
		}
	}
}

// WithReadStrategy sets the Block offset-resolution strategy.
func WithReadStrategy(strategy ReadStrategy) OptionFunc {
	return func(c *Config) {
		switch strategy {
		case ReadStrategyOptimised, ReadStrategyNoHashtable, ReadStrategyNoHashtableNoTen2Fastpath, ReadStrategyDHT:
			c.ReadStrategy = strategy
		}
	}
}

// WithExpand toggles whether the Directory may double on overflow.
func WithExpand(expand bool) OptionFunc {
	return func(c *Config) { c.Expand = expand }
}

// WithBufferPoolCap sets the read-cache capacity. Zero disables it.
func WithBufferPoolCap(cap int) OptionFunc {
	return func(c *Config) {
		if cap >= 0 {
			c.BufferPoolCap = cap
		}
	}
}

// WithLockLength sets the BufferPool lock-region size.
func WithLockLength(length int) OptionFunc {
	return func(c *Config) {
		if length > 0 {
			c.LockLength = length
		}
	}
}

// WithBatchEviction toggles the BufferPool's eviction sweep strategy.
func WithBatchEviction(batch bool) OptionFunc {
	return func(c *Config) { c.BatchEviction = batch }
}

// WithInMemory toggles whether the SSD log is file- or memory-backed.
func WithInMemory(inMemory bool) OptionFunc {
	return func(c *Config) { c.InMemory = inMemory }
}

// WithLogPages sets the number of pages the SSD log pre-allocates.
func WithLogPages(pages int) OptionFunc {
	return func(c *Config) {
		if pages > 0 {
			c.LogPages = pages
		}
	}
}

func isValidEntryWidth(bits int) bool {
	switch bits {
	case 4, 8, 16, 32, 64:
		return true
	default:
		return false
	}
}

// Validate checks that every field holds a value from its enumerated set.
// It returns the first violation found, in field-declaration order.
func (c *Config) Validate() error {
	if !isValidEntryWidth(c.BitsPerEntry) {
		return fmt.Errorf("options: BitsPerEntry must be one of 4, 8, 16, 32, 64, got %d", c.BitsPerEntry)
	}
	if c.ExtensionBlockSize <= 0 {
		return fmt.Errorf("options: ExtensionBlockSize must be positive, got %d", c.ExtensionBlockSize)
	}
	if c.ReserveBits < 0 {
		return fmt.Errorf("options: ReserveBits must be non-negative, got %d", c.ReserveBits)
	}
	switch c.ReadStrategy {
	case ReadStrategyOptimised, ReadStrategyNoHashtable, ReadStrategyNoHashtableNoTen2Fastpath, ReadStrategyDHT:
	default:
		return fmt.Errorf("options: unknown ReadStrategy %q", c.ReadStrategy)
	}
	if c.LockLength <= 0 {
		return fmt.Errorf("options: LockLength must be positive, got %d", c.LockLength)
	}
	if c.LogPages <= 0 {
		return fmt.Errorf("options: LogPages must be positive, got %d", c.LogPages)
	}
	return nil
}

// PayloadListLength returns the number of PayloadList entries a Block
// allocates: one entry per four of the 256 metadata bits, plus a small
// safety margin for entries displaced during a shift. The count is the same
// for every BitsPerEntry, which sets only the width of each entry.
func (c *Config) PayloadListLength() int {
	const metadataBits = 256
	const metadataBitsPerEntry = 4
	const safetyPayloads = 4
	return metadataBits/metadataBitsPerEntry + safetyPayloads
}
