package outbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendAndPeekBatch(t *testing.T) {
	dir := t.TempDir()
	o, err := Open(dir, "device-1", 10000)
	require.NoError(t, err)
	defer o.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, o.Append("vehicle/speed/device-1", []byte(`{"n":1}`), 1, float64(i), float64(i)))
	}

	records, err := o.PeekBatch(10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "vehicle/speed/device-1", records[0].Topic)

	size, err := o.Size()
	require.NoError(t, err)
	require.Equal(t, 3, size)
}

func TestAckRemovesOnlyAcknowledged(t *testing.T) {
	dir := t.TempDir()
	o, err := Open(dir, "device-2", 10000)
	require.NoError(t, err)
	defer o.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, o.Append("t", []byte("p"), 1, float64(i), float64(i)))
	}

	records, err := o.PeekBatch(3)
	require.NoError(t, err)
	require.Len(t, records, 3)

	ids := []int64{records[0].ID, records[1].ID}
	require.NoError(t, o.Ack(ids))

	size, err := o.Size()
	require.NoError(t, err)
	require.Equal(t, 3, size)

	remaining, err := o.PeekBatch(10)
	require.NoError(t, err)
	require.Len(t, remaining, 3)
	require.Equal(t, records[2].ID, remaining[0].ID)
}

func TestAppendEvictsOldestWhenFull(t *testing.T) {
	dir := t.TempDir()
	o, err := Open(dir, "device-3", 3)
	require.NoError(t, err)
	defer o.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, o.Append("t", []byte("p"), 1, float64(i), float64(i)))
	}

	size, err := o.Size()
	require.NoError(t, err)
	require.Equal(t, 3, size)

	records, err := o.PeekBatch(10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, 2.0, records[0].Timestamp) // the two oldest (0, 1) were evicted
}

func TestClearEmptiesQueue(t *testing.T) {
	dir := t.TempDir()
	o, err := Open(dir, "device-4", 10000)
	require.NoError(t, err)
	defer o.Close()

	require.NoError(t, o.Append("t", []byte("p"), 1, 0, 0))
	require.NoError(t, o.Clear())

	size, err := o.Size()
	require.NoError(t, err)
	require.Equal(t, 0, size)
}
