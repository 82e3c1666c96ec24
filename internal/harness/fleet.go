package harness

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Mahaashree/realtime-datastreaming/internal/config"
	"github.com/Mahaashree/realtime-datastreaming/internal/device"
)

// DeviceHandle is one launched device client plus the cancel function
// that stops its publish loop on fleet shutdown.
type DeviceHandle struct {
	ID     string
	Client *device.Client
	cancel context.CancelFunc
}

// OutboxSize reports the device's current outbox depth for queue-depth
// sampling.
func (h *DeviceHandle) OutboxSize() (int, error) {
	return h.Client.OutboxSizeForHarness()
}

// Sever disconnects this device from the broker, simulating a severed
// connection without stopping its publish loop (spec.md §4.7 step 2);
// ticks continue and fall back to the outbox while severed.
func (h *DeviceHandle) Sever() {
	h.Client.Sever()
}

// Reconnect re-establishes this device's connection to the broker.
func (h *DeviceHandle) Reconnect() {
	h.Client.Reconnect()
}

// Fleet is a launched set of device clients.
type Fleet struct {
	Devices []*DeviceHandle
	group   *errgroup.Group
}

// Launch starts n device clients against the given base config, each
// with a distinct device ID and its own outbox file in base.QueueDir, and returns
// once every client has been told to connect. The caller is responsible
// for waiting out a steady-state warm-up period before driving scenarios
// against the returned fleet (spec.md §4.7 step 1).
func Launch(ctx context.Context, base config.Device, n int, logger zerolog.Logger) (*Fleet, error) {
	g, gctx := errgroup.WithContext(ctx)
	fleet := &Fleet{group: g}

	for i := 0; i < n; i++ {
		cfg := base
		cfg.DeviceID = fmt.Sprintf("harness-%04d", i)

		client, err := device.New(cfg, logger.With().Str("device_id", cfg.DeviceID).Logger())
		if err != nil {
			return nil, fmt.Errorf("creating device %s: %w", cfg.DeviceID, err)
		}
		client.Connect()

		devCtx, cancel := context.WithCancel(gctx)
		handle := &DeviceHandle{ID: cfg.DeviceID, Client: client, cancel: cancel}
		fleet.Devices = append(fleet.Devices, handle)

		g.Go(func() error {
			defer client.Close()
			return client.Run(devCtx)
		})
	}

	return fleet, nil
}

// Wait blocks until every device's Run loop has returned.
func (f *Fleet) Wait() error {
	return f.group.Wait()
}

// Victims returns the first floor(n*percent/100) devices, per spec.md
// §4.7 step 2's deterministic victim selection.
func (f *Fleet) Victims(percent int) []*DeviceHandle {
	count := len(f.Devices) * percent / 100
	if count > len(f.Devices) {
		count = len(f.Devices)
	}
	return f.Devices[:count]
}
