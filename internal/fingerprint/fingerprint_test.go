package fingerprint_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sfmqrb/sphinx/internal/fingerprint"
)

func TestOfIsDeterministic(t *testing.T) {
	t.Parallel()

	a := fingerprint.Of([]byte("alpha"))
	b := fingerprint.Of([]byte("alpha"))
	require.True(t, a.Equal(b))
}

func TestOfDiffersAcrossKeys(t *testing.T) {
	t.Parallel()

	a := fingerprint.Of([]byte("alpha"))
	b := fingerprint.Of([]byte("beta"))
	require.False(t, a.Equal(b))
}

func TestPrefixMatchesBitAccessors(t *testing.T) {
	t.Parallel()

	fp := fingerprint.Of([]byte("gamma"))
	for _, n := range []int{1, 7, 64, 65, 127} {
		var want uint64
		for i := 0; i < n; i++ {
			want <<= 1
			if fp.Bit(i) {
				want |= 1
			}
		}
		require.Equal(t, want, fp.Prefix(n), "prefix length %d", n)
	}
}

func TestWithLSlotIndexOverwritesLeadingBits(t *testing.T) {
	t.Parallel()

	fp := fingerprint.Of([]byte("delta"))
	updated := fp.WithLSlotIndex(0b101, 3)
	require.Equal(t, uint64(0b101), updated.Prefix(3))

	for i := 3; i < 128; i++ {
		require.Equal(t, fp.Bit(i), updated.Bit(i), "bit %d should be unchanged", i)
	}
}
