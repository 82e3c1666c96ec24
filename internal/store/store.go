// Package store wraps the time-series store client used by the batching
// writer (write path) and the test harness (query path for latency and
// device-status measurement).
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/Mahaashree/realtime-datastreaming/internal/config"
	"github.com/Mahaashree/realtime-datastreaming/internal/shaper"
)

// StoreSchemaConflict is the non-retriable error classification for a
// field-type mismatch at the store (spec.md §4.5 / §8).
type StoreSchemaConflict struct {
	Field string
	Err   error
}

func (e *StoreSchemaConflict) Error() string {
	return fmt.Sprintf("schema conflict on field %q: %v", e.Field, e.Err)
}

func (e *StoreSchemaConflict) Unwrap() error { return e.Err }

// Client wraps the time-series store's blocking write API and its query
// API, used respectively by the batching writer and the harness.
type Client struct {
	client influxdb2.Client
	writer api.WriteAPIBlocking
	query  api.QueryAPI
	org    string
	bucket string
}

// New opens a store client using the given configuration.
func New(cfg config.Store) *Client {
	c := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Client{
		client: c,
		writer: c.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		query:  c.QueryAPI(cfg.Org),
		org:    cfg.Org,
		bucket: cfg.Bucket,
	}
}

// Close releases the underlying HTTP client.
func (c *Client) Close() {
	c.client.Close()
}

// WriteBatch writes a batch of shaped points, classifying the resulting
// error as retriable or a StoreSchemaConflict (spec.md §8). The store's
// own timestamp is assigned on write; points never carry an explicit one.
func (c *Client) WriteBatch(ctx context.Context, points []shaper.Point) error {
	wps := make([]*write.Point, 0, len(points))
	for _, p := range points {
		wps = append(wps, influxdb2.NewPoint(p.Measurement, p.Tags, p.Fields, time.Time{}))
	}
	if err := c.writer.WritePoint(ctx, wps...); err != nil {
		if isSchemaConflict(err) {
			return &StoreSchemaConflict{Err: err}
		}
		return err
	}
	return nil
}

// LatencySample is one (publish_timestamp, store write time) pair used
// to compute end-to-end latency (spec.md §4.7).
type LatencySample struct {
	PublishTimestamp float64
	WriteTime        time.Time
}

// QueryLatencySamples fetches publish_timestamp field values written in
// the last `window` alongside their storage-assigned write times, for
// the harness's latency measurement.
func (c *Client) QueryLatencySamples(ctx context.Context, window time.Duration) ([]LatencySample, error) {
	flux := fmt.Sprintf(`
from(bucket: "%s")
  |> range(start: -%ds)
  |> filter(fn: (r) => r._measurement == "device_data")
  |> filter(fn: (r) => r._field == "publish_timestamp")
`, c.bucket, int(window.Seconds()))

	result, err := c.query.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("querying latency samples: %w", err)
	}
	defer result.Close()

	var samples []LatencySample
	for result.Next() {
		record := result.Record()
		v, ok := record.Value().(float64)
		if !ok {
			continue
		}
		samples = append(samples, LatencySample{
			PublishTimestamp: v,
			WriteTime:        record.Time(),
		})
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("reading latency samples: %w", result.Err())
	}
	return samples, nil
}

// DeviceStatus is one device's last-seen record (spec.md §6's device
// status query shape).
type DeviceStatus struct {
	DeviceID string
	LastSeen time.Time
	Online   bool
}

const onlineWindow = 10 * time.Second

// QueryDeviceStatus fetches the last-seen time per device over the last
// hour and classifies each as online iff now - last_seen < 10s.
func (c *Client) QueryDeviceStatus(ctx context.Context) ([]DeviceStatus, error) {
	flux := fmt.Sprintf(`
from(bucket: "%s")
  |> range(start: -1h)
  |> filter(fn: (r) => r._measurement == "device_data" or r._measurement == "vehicle_speed")
  |> filter(fn: (r) => r._field == "speed")
  |> group(columns: ["device_id"])
  |> last()
`, c.bucket)

	result, err := c.query.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("querying device status: %w", err)
	}
	defer result.Close()

	now := time.Now()
	var statuses []DeviceStatus
	for result.Next() {
		record := result.Record()
		deviceID, _ := record.ValueByKey("device_id").(string)
		lastSeen := record.Time()
		statuses = append(statuses, DeviceStatus{
			DeviceID: deviceID,
			LastSeen: lastSeen,
			Online:   now.Sub(lastSeen) < onlineWindow,
		})
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("reading device status: %w", result.Err())
	}
	return statuses, nil
}

// isSchemaConflict reports whether err looks like a field-type mismatch
// rather than a transient/network failure. The store's HTTP API returns
// a 422/400 class error with "field type conflict" in the body for this
// case; anything else is treated as retriable.
func isSchemaConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, sub := range []string{"field type", "schema conflict", "unprocessable"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
