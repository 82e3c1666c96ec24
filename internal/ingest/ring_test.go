package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOfferAndTakeFIFO(t *testing.T) {
	r := NewRing(2)
	require.True(t, r.Offer(Item{Topic: "a"}))
	require.True(t, r.Offer(Item{Topic: "b"}))
	require.False(t, r.Offer(Item{Topic: "c"})) // full, dropped
	require.Equal(t, int64(1), r.Dropped())

	item, ok := r.Take(time.Second)
	require.True(t, ok)
	require.Equal(t, "a", item.Topic)

	item, ok = r.Take(time.Second)
	require.True(t, ok)
	require.Equal(t, "b", item.Topic)
}

func TestTakeTimesOutWhenEmpty(t *testing.T) {
	r := NewRing(1)
	_, ok := r.Take(20 * time.Millisecond)
	require.False(t, ok)
}

func TestSizeIsApproximateDepth(t *testing.T) {
	r := NewRing(5)
	r.Offer(Item{Topic: "a"})
	r.Offer(Item{Topic: "b"})
	require.Equal(t, 2, r.Size())
}
