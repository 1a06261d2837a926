package block_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sfmqrb/sphinx/internal/block"
	"github.com/sfmqrb/sphinx/internal/fingerprint"
	"github.com/sfmqrb/sphinx/internal/sslog"
	"github.com/sfmqrb/sphinx/pkg/options"
)

func newTestBlock(t *testing.T) (*block.Block, *sslog.Log) {
	t.Helper()
	cfg := options.NewDefaultConfig()
	cfg.BitsPerEntry = 64
	cfg.ReserveBits = 8

	log, err := sslog.New(sslog.Config{InMemory: true, EntriesPerPage: 64, LogPages: 16})
	require.NoError(t, err)

	return block.New(&cfg, 0), log
}

func putEntry(t *testing.T, b *block.Block, log *sslog.Log, key string) fingerprint.Fingerprint {
	t.Helper()
	addr, err := log.Write(sslog.Entry{Key: []byte(key), Value: []byte("v-" + key)})
	require.NoError(t, err)
	fp := fingerprint.Of([]byte(key))
	_, err = b.Write(fp, log, addr)
	require.NoError(t, err)
	return fp
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	t.Parallel()

	b, log := newTestBlock(t)
	fp := putEntry(t, b, log, "hello")

	entry, found, err := b.Read(fp, log)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v-hello", string(entry.Value))
}

func TestReadMissingKeyReturnsNotFound(t *testing.T) {
	t.Parallel()

	b, log := newTestBlock(t)
	fp := fingerprint.Of([]byte("absent"))

	_, found, err := b.Read(fp, log)
	require.NoError(t, err)
	require.False(t, found)
}

func TestWriteManyKeysAllReadBack(t *testing.T) {
	t.Parallel()

	b, log := newTestBlock(t)
	var fps []fingerprint.Fingerprint
	for i := 0; i < 20; i++ {
		fps = append(fps, putEntry(t, b, log, fmt.Sprintf("key-%d", i)))
	}

	for i, fp := range fps {
		entry, found, err := b.Read(fp, log)
		require.NoError(t, err)
		require.True(t, found, "key-%d", i)
		require.Equal(t, fmt.Sprintf("v-key-%d", i), string(entry.Value))
	}
}

func TestWriteUpdatesExistingFingerprintInPlace(t *testing.T) {
	t.Parallel()

	b, log := newTestBlock(t)
	fp := putEntry(t, b, log, "dup")

	newAddr, err := log.Write(sslog.Entry{Key: []byte("dup"), Value: []byte("v2")})
	require.NoError(t, err)
	info, err := b.Write(fp, log, newAddr)
	require.NoError(t, err)
	require.False(t, info.IsExtended)

	entry, found, err := b.Read(fp, log)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v2", string(entry.Value))
}

func TestRemoveDeletesEntry(t *testing.T) {
	t.Parallel()

	b, log := newTestBlock(t)
	fp := putEntry(t, b, log, "gone")

	_, err := b.Remove(fp, log)
	require.NoError(t, err)

	_, found, err := b.Read(fp, log)
	require.NoError(t, err)
	require.False(t, found)
}

func TestRemoveUnknownFingerprintErrors(t *testing.T) {
	t.Parallel()

	b, log := newTestBlock(t)
	putEntry(t, b, log, "present")

	_, err := b.Remove(fingerprint.Of([]byte("absent")), log)
	require.Error(t, err)
}

func TestExtendedLSlotRejectsWrite(t *testing.T) {
	t.Parallel()

	b, log := newTestBlock(t)
	fp := fingerprint.Of([]byte("x"))
	b.SetExtensionBoundary(0)

	addr, err := log.Write(sslog.Entry{Key: []byte("x"), Value: []byte("y")})
	require.NoError(t, err)

	_, err = b.Write(fp, log, addr)
	require.Error(t, err)
}

func newDHTTestBlock(t *testing.T) (*block.Block, *sslog.Log) {
	t.Helper()
	cfg := options.NewDefaultConfig()
	cfg.BitsPerEntry = 64
	cfg.ReserveBits = 8
	cfg.ReadStrategy = options.ReadStrategyDHT

	log, err := sslog.New(sslog.Config{InMemory: true, EntriesPerPage: 64, LogPages: 16})
	require.NoError(t, err)

	return block.New(&cfg, 0), log
}

func TestDHTWriteThenReadRoundTrips(t *testing.T) {
	t.Parallel()

	b, log := newDHTTestBlock(t)
	fps := make([]fingerprint.Fingerprint, 0, 20)
	for i := 0; i < 20; i++ {
		fps = append(fps, putEntry(t, b, log, fmt.Sprintf("dht-key-%d", i)))
	}

	for i, fp := range fps {
		entry, found, err := b.Read(fp, log)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, fmt.Sprintf("v-dht-key-%d", i), string(entry.Value))
	}
}

func TestDHTWriteUpdatesExistingFingerprintInPlace(t *testing.T) {
	t.Parallel()

	b, log := newDHTTestBlock(t)
	fp := putEntry(t, b, log, "k1")
	putEntry(t, b, log, "k2")

	addr, err := log.Write(sslog.Entry{Key: []byte("k1"), Value: []byte("updated")})
	require.NoError(t, err)
	_, err = b.Write(fp, log, addr)
	require.NoError(t, err)

	entry, found, err := b.Read(fp, log)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "updated", string(entry.Value))
}

func TestDHTRemoveDeletesEntry(t *testing.T) {
	t.Parallel()

	b, log := newDHTTestBlock(t)
	fp := putEntry(t, b, log, "gone")
	putEntry(t, b, log, "stays")

	_, err := b.Remove(fp, log)
	require.NoError(t, err)

	_, found, err := b.Read(fp, log)
	require.NoError(t, err)
	require.False(t, found)
}
