package writer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Mahaashree/realtime-datastreaming/internal/config"
	"github.com/Mahaashree/realtime-datastreaming/internal/shaper"
	"github.com/Mahaashree/realtime-datastreaming/internal/store"
)

type fakeStore struct {
	mu       sync.Mutex
	batches  [][]shaper.Point
	failN    int // fail this many times before succeeding
	schemaErr bool
}

func (f *fakeStore) WriteBatch(_ context.Context, points []shaper.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.schemaErr {
		return &store.StoreSchemaConflict{Err: errors.New("field type conflict")}
	}
	if f.failN > 0 {
		f.failN--
		return errors.New("connection refused")
	}
	f.batches = append(f.batches, points)
	return nil
}

func testCollectorConfig() config.Collector {
	return config.Collector{
		BatchSize:     2,
		FlushInterval: 20 * time.Millisecond,
		MaxRetries:    3,
		RetryInterval: 5 * time.Millisecond,
		MaxRetryDelay: 20 * time.Millisecond,
	}
}

func TestWriteTriggersFlushAtBatchSize(t *testing.T) {
	fs := &fakeStore{}
	w := New(fs, testCollectorConfig(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer cancel()

	w.Write(shaper.Point{Measurement: "m"})
	w.Write(shaper.Point{Measurement: "m"})

	require.Eventually(t, func() bool {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		return len(fs.batches) == 1 && len(fs.batches[0]) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestFlushRetriesTransientErrors(t *testing.T) {
	fs := &fakeStore{failN: 2}
	w := New(fs, testCollectorConfig(), zerolog.Nop())
	w.Write(shaper.Point{Measurement: "m"})

	w.flush(context.Background())

	require.Equal(t, int64(2), w.Stats.WriteRetries())
	require.Equal(t, int64(1), w.Stats.PointsWritten())
}

func TestFlushAbortsOnSchemaConflict(t *testing.T) {
	fs := &fakeStore{schemaErr: true}
	w := New(fs, testCollectorConfig(), zerolog.Nop())
	w.Write(shaper.Point{Measurement: "m"})

	w.flush(context.Background())

	require.Equal(t, int64(0), w.Stats.WriteRetries())
	require.Equal(t, int64(1), w.Stats.WriteFailures())
}

func TestFlushGivesUpAfterMaxRetries(t *testing.T) {
	fs := &fakeStore{failN: 100}
	cfg := testCollectorConfig()
	cfg.MaxRetries = 2
	w := New(fs, cfg, zerolog.Nop())
	w.Write(shaper.Point{Measurement: "m"})

	w.flush(context.Background())

	require.Equal(t, int64(2), w.Stats.WriteRetries())
	require.Equal(t, int64(1), w.Stats.WriteFailures())
}
