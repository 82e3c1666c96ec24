package shaper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestShapeFlatPayload(t *testing.T) {
	payload := []byte(`{
		"device_id": "dev-1",
		"timestamp": 1700000000.5,
		"speed": 42.3,
		"cpu_usage": 12.5,
		"memory_total": 1024,
		"detection_label": "yawning",
		"detection_confidence": 0.81
	}`)

	p, err := Shape(payload, time.Unix(1700000001, 0), "go-collector")
	require.NoError(t, err)
	require.Equal(t, "dev-1", p.Tags["device_id"])
	require.Equal(t, "go-collector", p.Tags["collector"])
	require.Equal(t, "yawning", p.Tags["detection_label"])
	require.Equal(t, 42.3, p.Fields["speed"])
	require.Equal(t, int64(1024), p.Fields["memory_total"])
	require.Equal(t, 1700000000.5, p.Fields["publish_timestamp"])
}

func TestShapeNestedLegacyPayload(t *testing.T) {
	payload := []byte(`{
		"device_id": "dev-2",
		"telemetry": {
			"cpu_usage": 5.0,
			"memory": {"total": 2048, "used": 1024, "percent": 50.0},
			"disk": {"total": 100, "free": 20},
			"network": {"bytes_sent": 10, "bytes_recv": 20}
		},
		"detection": {"label": "smoking", "confidence": 0.9}
	}`)

	p, err := Shape(payload, time.Now(), "go-collector")
	require.NoError(t, err)
	require.Equal(t, "smoking", p.Tags["detection_label"])
	require.Equal(t, 5.0, p.Fields["cpu_usage"])
	require.Equal(t, int64(2048), p.Fields["memory_total"])
	require.Equal(t, 50.0, p.Fields["memory_percent"])
	require.Equal(t, int64(10), p.Fields["network_bytes_sent"])
	require.Equal(t, 0.9, p.Fields["detection_confidence"])
}

func TestShapeMissingDeviceIDIsRejected(t *testing.T) {
	_, err := Shape([]byte(`{"speed": 1.0}`), time.Now(), "go-collector")
	require.ErrorIs(t, err, ErrMissingIdentity)
}

func TestShapeInvalidJSONIsRejected(t *testing.T) {
	_, err := Shape([]byte(`not json`), time.Now(), "go-collector")
	require.ErrorIs(t, err, ErrDecodeFailed)
}
