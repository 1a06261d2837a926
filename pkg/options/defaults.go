package options

const (
	// DefaultDataDir is the base path used when the SSD log is file-backed
	// and no other directory is specified.
	DefaultDataDir = "/var/lib/sphinx"

	// DefaultExtensionBlockSize is K, the extension-block ring size.
	DefaultExtensionBlockSize = 4

	// DefaultBitsPerEntry is the width, in bits, of one PayloadList entry.
	DefaultBitsPerEntry = 64

	// DefaultReserveBits is R, the fingerprint-extension bit width carried
	// next to each payload pointer.
	DefaultReserveBits = 8

	// DefaultBufferPoolCap is the read-cache capacity; zero disables it.
	DefaultBufferPoolCap = 0

	// DefaultMaxLoadFactor is the BufferPool proactive-eviction threshold;
	// zero disables proactive eviction.
	DefaultMaxLoadFactor = 0.0

	// DefaultLockLength is the default Config.LockLength, which the
	// BufferPool does not read.
	DefaultLockLength = 100

	// DefaultLogPages is the number of pages the SSD log pre-allocates.
	DefaultLogPages = 1024
)

// defaultConfig holds the default configuration settings for a store instance.
var defaultConfig = Config{
	DataDir:             DefaultDataDir,
	ExtensionBlockSize:  DefaultExtensionBlockSize,
	BitsPerEntry:        DefaultBitsPerEntry,
	ReserveBits:         DefaultReserveBits,
	ReadStrategy:        ReadStrategyOptimised,
	Expand:              true,
	BufferPoolCap:       DefaultBufferPoolCap,
	MaxLoadFactor:       DefaultMaxLoadFactor,
	LockLength:          DefaultLockLength,
	BatchEviction:       false,
	InMemory:            true,
	LogPages:            DefaultLogPages,
}

// NewDefaultConfig returns a Config populated with the default values above.
func NewDefaultConfig() Config {
	return defaultConfig
}
