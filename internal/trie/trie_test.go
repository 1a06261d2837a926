package trie_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sfmqrb/sphinx/internal/bitvector"
	"github.com/sfmqrb/sphinx/internal/fingerprint"
	"github.com/sfmqrb/sphinx/internal/trie"
)

func TestSerializeThenBuildRoundTrips(t *testing.T) {
	t.Parallel()

	fp1 := fingerprint.Of([]byte("one"))
	fp2 := fingerprint.Of([]byte("two"))
	fp3 := fingerprint.Of([]byte("three"))

	tr := trie.New(1, 0, 0)
	for _, fp := range []fingerprint.Fingerprint{fp2, fp3} {
		bit := trie.FirstDiffIndex(fp1, fp)
		tr.Insert(fp, bit)
	}
	require.Equal(t, 3, tr.TenSize())

	serialized, used := tr.Serialize(64)
	require.Greater(t, used, 0)

	rebuilt := trie.New(3, 0, 0)
	rebuilt.Build(serialized)

	for _, fp := range []fingerprint.Fingerprint{fp1, fp2, fp3} {
		require.Equal(t, tr.OffsetIndex(fp), rebuilt.OffsetIndex(fp), "mismatched offset for fingerprint %+v", fp)
	}
}

func TestOffsetIndexDistinguishesTenancyTwo(t *testing.T) {
	t.Parallel()

	fp1 := fingerprint.Of([]byte("alpha"))
	fp2 := fingerprint.Of([]byte("beta"))

	tr := trie.New(1, 0, 0)
	tr.Insert(fp2, trie.FirstDiffIndex(fp1, fp2))

	require.NotEqual(t, tr.OffsetIndex(fp1), tr.OffsetIndex(fp2))
}

func TestRemoveDropsFingerprintFromTree(t *testing.T) {
	t.Parallel()

	fp1 := fingerprint.Of([]byte("cat"))
	fp2 := fingerprint.Of([]byte("dog"))
	fp3 := fingerprint.Of([]byte("fox"))

	tr := trie.New(1, 0, 0)
	tr.Insert(fp2, trie.FirstDiffIndex(fp1, fp2))
	tr.Insert(fp3, trie.FirstDiffIndex(fp1, fp3))
	require.Equal(t, 3, tr.TenSize())

	tr.Remove(fp3)
	require.Equal(t, 2, tr.TenSize())
}

func TestFirstDiffIndexIs128ForIdenticalFingerprints(t *testing.T) {
	t.Parallel()

	fp := fingerprint.Of([]byte("same"))
	require.Equal(t, 128, trie.FirstDiffIndex(fp, fp))
}

// fpFromBits builds a Fingerprint whose Bit(i) equals bits[i] for every i in
// range, bit 0 landing on Hi's most significant bit per Fingerprint.Bit's
// documented convention. Bits past len(bits) are left zero.
func fpFromBits(bitstring string) fingerprint.Fingerprint {
	var fp fingerprint.Fingerprint
	for i, c := range bitstring {
		if c != '1' {
			continue
		}
		if i < 64 {
			fp.Hi |= 1 << uint(63-i)
		} else {
			fp.Lo |= 1 << uint(127-i)
		}
	}
	return fp
}

// bvFromBits builds a register-sized BitVector whose index-0-first String()
// reproduces bitstring over its first len(bitstring) bits.
func bvFromBits(bitstring string) *bitvector.BitVector {
	bv := bitvector.New(64)
	for i, c := range bitstring {
		bv.Set(i, c == '1')
	}
	return bv
}

// Scenario A (spec §8): tenancy-3 trie decoded from "01111" must re-encode
// to the same literal bit string.
func TestScenarioA_TenancyThreeEncodeRoundTrip(t *testing.T) {
	t.Parallel()

	tr := trie.New(3, 0, 0)
	tr.Build(bvFromBits("01111"))

	serialized, used := tr.Serialize(64)
	require.Equal(t, "01111", serialized.String()[:used])
}

// Scenario B (spec §8): tenancy-5 trie decoded from "001101110111" must
// re-encode to the same literal bit string.
func TestScenarioB_TenancyFiveEncodeRoundTrip(t *testing.T) {
	t.Parallel()

	tr := trie.New(5, 0, 0)
	tr.Build(bvFromBits("001101110111"))

	serialized, used := tr.Serialize(64)
	require.Equal(t, "001101110111", serialized.String()[:used])
}

// scenarioCDFingerprints returns the six fingerprints spec §8 Scenarios C
// and D insert in order, matching original_source/BST/BST_tests.cpp's
// "insertion test 1" / "delete test 1" fixtures verbatim.
func scenarioCDFingerprints() (fp1, fp2, fp3, fp4, fp5, fp6 fingerprint.Fingerprint) {
	return fpFromBits("0101111"),
		fpFromBits("0011111"),
		fpFromBits("1111111"),
		fpFromBits("1111101"),
		fpFromBits("1110111"),
		fpFromBits("1111011")
}

// Scenario C (spec §8): inserting fp2..fp6 into a tenancy-1 trie seeded with
// fp1, each new fingerprint compared against the incumbent representative
// the original test fixture compares it against (fp1 for fp2/fp3, fp3 for
// fp4/fp5/fp6), must reproduce this exact sequence of encoded bit strings.
func TestScenarioC_InsertThenReEncodeSequence(t *testing.T) {
	t.Parallel()

	fp1, fp2, fp3, fp4, fp5, fp6 := scenarioCDFingerprints()

	tr := trie.New(1, 0, 0) // fp1 already present

	encode := func() string {
		serialized, used := tr.Serialize(64)
		return serialized.String()[:used]
	}

	tr.Insert(fp2, trie.FirstDiffIndex(fp1, fp2))
	require.Equal(t, "011", encode())

	tr.Insert(fp3, trie.FirstDiffIndex(fp1, fp3))
	require.Equal(t, "01111", encode())

	tr.Insert(fp4, trie.FirstDiffIndex(fp3, fp4))
	require.Equal(t, "001111000011", encode())

	tr.Insert(fp5, trie.FirstDiffIndex(fp3, fp5))
	require.Equal(t, "00111110001011", encode())

	tr.Insert(fp6, trie.FirstDiffIndex(fp3, fp6))
	require.Equal(t, "0011111000110111", encode())
}

// Scenario D (spec §8): reverse-deleting F, E, D, C, B from the state left
// by Scenario C must retrace Scenario C's encodings in reverse, ending in
// an empty encoding with tenSize back down to 1.
func TestScenarioD_DeleteBackToEmptySequence(t *testing.T) {
	t.Parallel()

	fp1, fp2, fp3, fp4, fp5, fp6 := scenarioCDFingerprints()

	tr := trie.New(1, 0, 0)
	tr.Insert(fp2, trie.FirstDiffIndex(fp1, fp2))
	tr.Insert(fp3, trie.FirstDiffIndex(fp1, fp3))
	tr.Insert(fp4, trie.FirstDiffIndex(fp3, fp4))
	tr.Insert(fp5, trie.FirstDiffIndex(fp3, fp5))
	tr.Insert(fp6, trie.FirstDiffIndex(fp3, fp6))

	encode := func() string {
		serialized, used := tr.Serialize(64)
		return serialized.String()[:used]
	}
	require.Equal(t, "0011111000110111", encode())

	tr.Remove(fp6)
	require.Equal(t, "00111110001011", encode())

	tr.Remove(fp5)
	require.Equal(t, "001111000011", encode())

	tr.Remove(fp4)
	require.Equal(t, "01111", encode())

	tr.Remove(fp3)
	require.Equal(t, "011", encode())

	tr.Remove(fp2)
	require.Equal(t, 1, tr.TenSize())
	_, used := tr.Serialize(64)
	require.Equal(t, 0, used)
}
