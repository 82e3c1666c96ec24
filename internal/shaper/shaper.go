// Package shaper implements the point shaper (spec.md C8): it decodes
// raw telemetry payloads, normalizes the flat and nested-legacy wire
// shapes, and builds a store-ready Point with type-stable fields.
package shaper

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrDecodeFailed signals malformed JSON / non-UTF-8 input.
var ErrDecodeFailed = errors.New("shaper: decode failed")

// ErrMissingIdentity signals a payload with no device_id.
var ErrMissingIdentity = errors.New("shaper: missing device_id")

// Point is the collector's internal representation of one telemetry
// observation, ready for the batching writer (spec.md §4.4).
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]interface{}
}

// floatFields and intFields fix the numeric type per field name for the
// lifetime of the system (spec.md's type-discipline invariant): a field
// name must never be written with two different numeric types.
var floatFields = map[string]bool{
	"speed": true, "cpu_usage": true, "ram_usage": true,
	"memory_percent": true, "disk_percent": true, "detection_confidence": true,
}

var intFields = map[string]bool{
	"memory_total": true, "memory_used": true, "memory_available": true,
	"disk_total": true, "disk_used": true, "disk_free": true,
	"network_bytes_sent": true, "network_bytes_recv": true,
}

// Shape decodes a raw payload and produces a Point, per spec.md §4.4's
// algorithm. collectorLabel identifies this collector instance in the
// collector tag.
func Shape(payload []byte, receiveTime time.Time, collectorLabel string) (Point, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Point{}, ErrDecodeFailed
	}

	deviceID, ok := raw["device_id"].(string)
	if !ok || deviceID == "" {
		return Point{}, ErrMissingIdentity
	}

	normalized := normalize(raw)

	p := Point{
		Measurement: "device_data",
		Tags: map[string]string{
			"device_id": deviceID,
			"collector": collectorLabel,
		},
		Fields: map[string]interface{}{},
	}

	if label, ok := normalized["detection_label"].(string); ok && label != "" {
		p.Tags["detection_label"] = label
	}

	for name := range floatFields {
		if v, ok := asFloat(normalized[name]); ok {
			p.Fields[name] = v
		}
	}
	for name := range intFields {
		if v, ok := asInt(normalized[name]); ok {
			p.Fields[name] = v
		}
	}

	p.Fields["collector_receive_time"] = float64(receiveTime.UnixNano()) / 1e9
	if ts, ok := asFloat(normalized["timestamp"]); ok {
		p.Fields["publish_timestamp"] = ts
	}

	return p, nil
}

// normalize maps both the flat and nested-legacy payload shapes onto a
// single flat key space (spec.md §4.4 step 5). The source partially
// clears legacy subclasses; this normalizer is the single place that
// decision is made, matching the spec's "no branching subclasses" goal.
func normalize(raw map[string]interface{}) map[string]interface{} {
	flat := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		flat[k] = v
	}

	telemetry, hasTelemetry := raw["telemetry"].(map[string]interface{})
	if hasTelemetry {
		for _, key := range []string{"cpu_usage", "ram_usage"} {
			if v, ok := telemetry[key]; ok {
				flat[key] = v
			}
		}
		if mem, ok := telemetry["memory"].(map[string]interface{}); ok {
			copyPrefixed(flat, mem, "memory_", "")
		}
		if disk, ok := telemetry["disk"].(map[string]interface{}); ok {
			copyPrefixed(flat, disk, "disk_", "")
		}
		if net, ok := telemetry["network"].(map[string]interface{}); ok {
			copyPrefixed(flat, net, "network_", "")
		}
	}

	if detection, ok := raw["detection"].(map[string]interface{}); ok {
		if label, ok := detection["label"]; ok {
			flat["detection_label"] = label
		}
		if conf, ok := detection["confidence"]; ok {
			flat["detection_confidence"] = conf
		}
	}

	return flat
}

// copyPrefixed copies nested.[total/used/...] into flat[prefix+total].
func copyPrefixed(flat, nested map[string]interface{}, prefix, _ string) {
	for _, suffix := range []string{"total", "used", "available", "free", "percent", "bytes_sent", "bytes_recv"} {
		if v, ok := nested[suffix]; ok {
			flat[prefix+suffix] = v
		}
	}
}

func asFloat(v interface{}) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func asInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}
