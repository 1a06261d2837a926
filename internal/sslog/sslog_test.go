package sslog_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sfmqrb/sphinx/internal/sslog"
)

func newInMemoryLog(t *testing.T) *sslog.Log {
	t.Helper()
	log, err := sslog.New(sslog.Config{InMemory: true, EntriesPerPage: 4, LogPages: 8})
	require.NoError(t, err)
	return log
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	t.Parallel()

	log := newInMemoryLog(t)
	addr, err := log.Write(sslog.Entry{Key: []byte("k1"), Value: []byte("v1")})
	require.NoError(t, err)

	got, err := log.Read(addr)
	require.NoError(t, err)
	require.Equal(t, "k1", string(got.Key))
	require.Equal(t, "v1", string(got.Value))
}

func TestWriteAcrossPageBoundary(t *testing.T) {
	t.Parallel()

	log := newInMemoryLog(t)
	var addrs []sslog.Address
	for i := 0; i < 10; i++ {
		addr, err := log.Write(sslog.Entry{Key: []byte{byte(i)}, Value: []byte{byte(i * 2)}})
		require.NoError(t, err)
		addrs = append(addrs, addr)
	}

	for i, addr := range addrs {
		got, err := log.Read(addr)
		require.NoError(t, err)
		require.Equal(t, byte(i), got.Key[0])
		require.Equal(t, byte(i*2), got.Value[0])
	}
}

func TestReadUnwrittenAddressFails(t *testing.T) {
	t.Parallel()

	log := newInMemoryLog(t)
	_, err := log.Read(sslog.Address(999))
	require.Error(t, err)
}

func TestFileBackedWriteThenReadRoundTrips(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	log, err := sslog.New(sslog.Config{DataDir: dir, FileName: "sslog", EntriesPerPage: 4, LogPages: 8})
	require.NoError(t, err)
	defer log.Close()

	addr, err := log.Write(sslog.Entry{Key: []byte("k1"), Value: []byte("v1")})
	require.NoError(t, err)

	got, err := log.Read(addr)
	require.NoError(t, err)
	require.Equal(t, "k1", string(got.Key))
	require.Equal(t, "v1", string(got.Value))
}

// Scenario E (spec §8): writing keys 1..1200 with value=2*key into a log of
// 100 pages with 64 entries per page, the write for key=258 must land at
// address (4<<6)|1 = 257 and read back as key=258, value=516.
func TestScenarioE_LogRoundTripAtLiteralAddress(t *testing.T) {
	t.Parallel()

	log, err := sslog.New(sslog.Config{InMemory: true, EntriesPerPage: 64, LogPages: 100})
	require.NoError(t, err)

	var addrForKey258 sslog.Address
	for key := 1; key <= 1200; key++ {
		addr, err := log.Write(sslog.Entry{
			Key:   []byte(strconv.Itoa(key)),
			Value: []byte(strconv.Itoa(2 * key)),
		})
		require.NoError(t, err)
		if key == 258 {
			addrForKey258 = addr
		}
	}

	require.Equal(t, sslog.Address(257), addrForKey258)

	got, err := log.Read(addrForKey258)
	require.NoError(t, err)
	require.Equal(t, "258", string(got.Key))
	require.Equal(t, "516", string(got.Value))
}

func TestFileBackedLogRecoversSameSegmentAcrossRestart(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := sslog.Config{DataDir: dir, FileName: "sslog", EntriesPerPage: 4, LogPages: 8}

	first, err := sslog.New(cfg)
	require.NoError(t, err)
	addr, err := first.Write(sslog.Entry{Key: []byte("k1"), Value: []byte("v1")})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := sslog.New(cfg)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Read(addr)
	require.NoError(t, err)
	require.Equal(t, "v1", string(got.Value))
}
