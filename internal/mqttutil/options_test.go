package mqttutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExponentialBackoffCapsAt120Seconds(t *testing.T) {
	require.Equal(t, 2*time.Second, ExponentialBackoff(1))
	require.Equal(t, 4*time.Second, ExponentialBackoff(2))
	require.Equal(t, 120*time.Second, ExponentialBackoff(10))
}

func TestExponentialBackoffZeroAttemptsIsBase(t *testing.T) {
	require.Equal(t, 1*time.Second, ExponentialBackoff(0))
}
