package payload_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sfmqrb/sphinx/internal/payload"
)

func TestSetGetPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	list := payload.New(8, 32, 8)
	list.SetPayloadAt(3, 0xABCDEF)

	require.Equal(t, uint64(0xABCDEF), list.GetPayloadAt(3))
}

func TestExtraBitsAgeOutWidth(t *testing.T) {
	t.Parallel()

	list := payload.New(4, 32, 8)
	list.SetExtraBitsAt(0b101, 0, 0)

	eb := list.GetExtraBitsAt(0)
	require.Equal(t, 7, eb.Width)
	require.Equal(t, uint64(0b101), eb.Value)
	require.Equal(t, 0, list.GetAgeAt(0))
}

func TestSwapAgesReserveBitsOnRequest(t *testing.T) {
	t.Parallel()

	src := payload.New(4, 32, 8)
	src.SetPayloadAt(0, 42)
	src.SetExtraBitsAt(0b11, 0, 2)

	dst := payload.New(4, 32, 8)
	payload.Swap(src, 0, dst, 1, true)

	require.Equal(t, uint64(42), dst.GetPayloadAt(1))

	srcEb := src.GetExtraBitsAt(0)
	dstEb := dst.GetExtraBitsAt(1)
	require.Equal(t, srcEb.Width-1, dstEb.Width)
}

func TestShiftRightFromIndexOpensGap(t *testing.T) {
	t.Parallel()

	list := payload.New(6, 32, 0)
	for i := 0; i < 3; i++ {
		list.SetPayloadAt(i, uint64(i+1))
	}

	list.ShiftRightFromIndex(1, 2, 2)

	require.Equal(t, uint64(1), list.GetPayloadAt(0))
	require.Equal(t, uint64(2), list.GetPayloadAt(3))
	require.Equal(t, uint64(3), list.GetPayloadAt(4))
}

func TestShiftLeftFromIndexClosesGap(t *testing.T) {
	t.Parallel()

	list := payload.New(6, 32, 0)
	for i := 0; i < 6; i++ {
		list.SetPayloadAt(i, uint64(i+1))
	}

	list.ShiftLeftFromIndex(1, 2, 5)

	require.Equal(t, uint64(1), list.GetPayloadAt(0))
	require.Equal(t, uint64(4), list.GetPayloadAt(1))
	require.Equal(t, uint64(5), list.GetPayloadAt(2))
	require.Equal(t, uint64(6), list.GetPayloadAt(3))
}
