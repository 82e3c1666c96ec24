package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Mahaashree/realtime-datastreaming/internal/shaper"
)

type fakeWriter struct {
	mu     sync.Mutex
	points []shaper.Point
}

func (f *fakeWriter) Write(p shaper.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p)
}

func (f *fakeWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.points)
}

func TestWorkerPoolShapesValidPayloads(t *testing.T) {
	ring := NewRing(10)
	fw := &fakeWriter{}
	pool := NewWorkerPool(ring, fw, 2, "test-collector", zerolog.Nop())

	ring.Offer(Item{Payload: []byte(`{"device_id":"d1","speed":10}`), Topic: "device/data/d1", ReceiveTime: time.Now()})
	ring.Offer(Item{Payload: []byte(`not json`), Topic: "device/data/d2", ReceiveTime: time.Now()})

	ctx, cancel := context.WithCancel(context.Background())
	go pool.Run(ctx)

	require.Eventually(t, func() bool { return fw.count() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return pool.Stats.DecodeErrors() == int64(1) }, time.Second, 5*time.Millisecond)

	cancel()
}
