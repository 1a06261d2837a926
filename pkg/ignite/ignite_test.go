package ignite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	appErrors "github.com/sfmqrb/sphinx/pkg/errors"
	"github.com/sfmqrb/sphinx/pkg/ignite"
	"github.com/sfmqrb/sphinx/pkg/options"
)

func newTestInstance(t *testing.T, opts ...options.OptionFunc) *ignite.Instance {
	t.Helper()
	inst, err := ignite.NewInstance(context.Background(), "ignite_test", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Close(context.Background()) })
	return inst
}

func TestSetGetRoundTrips(t *testing.T) {
	t.Parallel()

	inst := newTestInstance(t)
	ctx := context.Background()

	require.NoError(t, inst.Set(ctx, "k1", []byte("v1")))
	require.NoError(t, inst.Set(ctx, "k2", []byte("v2")))

	v, err := inst.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, "v1", string(v))

	v, err = inst.Get(ctx, "k2")
	require.NoError(t, err)
	require.Equal(t, "v2", string(v))
}

func TestExistsReflectsSetAndDelete(t *testing.T) {
	t.Parallel()

	inst := newTestInstance(t)
	ctx := context.Background()

	ok, err := inst.Exists(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, inst.Set(ctx, "k", []byte("v")))
	ok, err = inst.Exists(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, inst.Delete(ctx, "k"))
	ok, err = inst.Exists(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteUnknownKeyReturnsNotFound(t *testing.T) {
	t.Parallel()

	inst := newTestInstance(t)
	err := inst.Delete(context.Background(), "never-set")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrorCodeNotFound, appErrors.GetErrorCode(err))
}

func TestNewInstanceIgnoresInvalidOptions(t *testing.T) {
	t.Parallel()

	_, err := ignite.NewInstance(context.Background(), "ignite_test", options.WithBitsPerEntry(3))
	require.NoError(t, err) // invalid width is ignored by WithBitsPerEntry, default stands

	_, err = ignite.NewInstance(context.Background(), "ignite_test", options.WithExtensionBlockSize(0))
	require.NoError(t, err) // non-positive size is ignored, default stands
}
