package bufferpool_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sfmqrb/sphinx/internal/bufferpool"
	"github.com/sfmqrb/sphinx/internal/sslog"
	"github.com/sfmqrb/sphinx/pkg/options"
)

func newPool(t *testing.T, cap int, maxLF float64, batch bool) *bufferpool.Pool {
	t.Helper()
	cfg := options.NewDefaultConfig()
	cfg.BufferPoolCap = cap
	cfg.MaxLoadFactor = maxLF
	cfg.BatchEviction = batch
	return bufferpool.New(&cfg)
}

func TestDisabledPoolAlwaysMisses(t *testing.T) {
	t.Parallel()

	p := newPool(t, 0, 0, false)
	require.False(t, p.Put(1, sslog.Entry{Key: []byte("k"), Value: []byte("v")}))
	_, found := p.Get(1)
	require.False(t, found)
}

func TestPutThenGetHits(t *testing.T) {
	t.Parallel()

	p := newPool(t, 64, 0, false)
	require.True(t, p.Put(10, sslog.Entry{Key: []byte("k1"), Value: []byte("v1")}))
	require.True(t, p.Put(20, sslog.Entry{Key: []byte("k2"), Value: []byte("v2")}))

	entry, found := p.Get(10)
	require.True(t, found)
	require.Equal(t, "k1", string(entry.Key))
	require.Equal(t, "v1", string(entry.Value))

	entry, found = p.Get(20)
	require.True(t, found)
	require.Equal(t, "k2", string(entry.Key))
	require.Equal(t, "v2", string(entry.Value))
}

func TestPutOverwritesExistingAddress(t *testing.T) {
	t.Parallel()

	p := newPool(t, 64, 0, false)
	require.True(t, p.Put(1, sslog.Entry{Key: []byte("k"), Value: []byte("v1")}))
	require.True(t, p.Put(1, sslog.Entry{Key: []byte("k"), Value: []byte("v2")}))

	entry, found := p.Get(1)
	require.True(t, found)
	require.Equal(t, "v2", string(entry.Value))
}

func TestInvalidateHidesEntryFromGet(t *testing.T) {
	t.Parallel()

	p := newPool(t, 64, 0, false)
	require.True(t, p.Put(1, sslog.Entry{Key: []byte("k"), Value: []byte("v")}))
	require.True(t, p.Invalidate(1))

	_, found := p.Get(1)
	require.False(t, found)
}

func TestEvictionReclaimsSpaceUnderLoad(t *testing.T) {
	t.Parallel()

	p := newPool(t, 32, 0.5, false)
	for i := 0; i < 64; i++ {
		p.Put(sslog.Address(i), sslog.Entry{Key: []byte(fmt.Sprintf("key-%d", i)), Value: []byte("v")})
	}

	stats := p.Stats()
	require.LessOrEqual(t, stats.Size, stats.Capacity)
}

func TestBatchEvictionReclaimsSpaceUnderLoad(t *testing.T) {
	t.Parallel()

	p := newPool(t, 32, 0.5, true)
	for i := 0; i < 64; i++ {
		p.Put(sslog.Address(i), sslog.Entry{Key: []byte(fmt.Sprintf("key-%d", i)), Value: []byte("v")})
	}

	stats := p.Stats()
	require.LessOrEqual(t, stats.Size, stats.Capacity)
}

// Scenario F (spec §8): with capacity c, inserting c+1 distinct keys forces
// an eviction before the last insert can succeed. With capacity 1 there is
// only one possible victim, so the outcome is pinned exactly: key 0 (the
// sole, untouched occupant) must miss afterward, and key 1 (the key that
// triggered the eviction) must still be retrievable.
func TestScenarioF_CapacityOnePlusOneEvictsTheSoleUntouchedKey(t *testing.T) {
	t.Parallel()

	const c = 1
	p := newPool(t, c, 0.99, false)

	require.True(t, p.Put(sslog.Address(0), sslog.Entry{Key: []byte("k0"), Value: []byte("v0")}))
	require.True(t, p.Put(sslog.Address(1), sslog.Entry{Key: []byte("k1"), Value: []byte("v1")}))

	_, found := p.Get(sslog.Address(0))
	require.False(t, found, "get on the oldest untouched key must return None")

	entry, found := p.Get(sslog.Address(1))
	require.True(t, found, "get on the touched key must return its value")
	require.Equal(t, "v1", string(entry.Value))
}

// Scenario F (spec §8), general capacity c: inserting c+1 distinct keys with
// no intervening Gets must evict exactly one of them (the clock hand's
// single full sweep-then-revisit finds exactly one untouched victim), and
// every other key must still resolve to its original value.
func TestScenarioF_CapacityCPlusOneEvictsExactlyOneKey(t *testing.T) {
	t.Parallel()

	const c = 6
	p := newPool(t, c, 0.99, false)

	entryFor := func(i int) sslog.Entry {
		return sslog.Entry{Key: []byte(fmt.Sprintf("k%d", i)), Value: []byte(fmt.Sprintf("v%d", i))}
	}

	for i := 0; i < c; i++ {
		require.True(t, p.Put(sslog.Address(i), entryFor(i)))
	}
	// The c+1th distinct key: the pool is full, so Put must evict one of
	// the c untouched entries above before it can succeed.
	require.True(t, p.Put(sslog.Address(c), entryFor(c)))

	misses, hits := 0, 0
	for i := 0; i <= c; i++ {
		entry, found := p.Get(sslog.Address(i))
		if !found {
			misses++
			continue
		}
		hits++
		require.Equal(t, fmt.Sprintf("v%d", i), string(entry.Value))
	}
	require.Equal(t, 1, misses, "the c+1th insert must evict exactly the oldest untouched key")
	require.Equal(t, c, hits)
}

func TestStatsTrackHitsAndQueries(t *testing.T) {
	t.Parallel()

	p := newPool(t, 64, 0, false)
	p.Put(1, sslog.Entry{Key: []byte("k"), Value: []byte("v")})
	p.Get(1)
	p.Get(999)

	stats := p.Stats()
	require.Equal(t, uint64(2), stats.TotalQuery)
	require.Equal(t, uint64(1), stats.CacheHits)

	p.ResetStats()
	stats = p.Stats()
	require.Equal(t, uint64(0), stats.TotalQuery)
	require.Equal(t, uint64(0), stats.CacheHits)
}
