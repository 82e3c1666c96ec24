package device

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/Mahaashree/realtime-datastreaming/internal/config"
	"github.com/Mahaashree/realtime-datastreaming/internal/logging"
	"github.com/Mahaashree/realtime-datastreaming/internal/mqttutil"
	"github.com/Mahaashree/realtime-datastreaming/internal/outbox"
	"github.com/Mahaashree/realtime-datastreaming/internal/sample"
)

const (
	replayBatchSize  = 100
	replayYieldEvery = 10
	replayYieldFor   = 10 * time.Millisecond
	partialAckRatio  = 0.90
)

// Client maintains one device's persistent publish session: it
// direct-publishes while connected, falls back to the outbox on any
// failure, and replays the outbox on reconnect (spec.md C4).
type Client struct {
	deviceID string
	topic    string
	cfg      config.Device
	logger   zerolog.Logger

	mqttClient mqtt.Client
	outbox     *outbox.Outbox
	source     *sample.Source

	mu      sync.Mutex
	state   ConnectionState
	attempt int

	Stats Stats
}

// Stats are the observable counters named in spec.md §7.
type Stats struct {
	published          int64
	queued             int64
	replayedRecords    int64
	connectTransitions int64
}

func (s *Stats) incPublished()        { atomic.AddInt64(&s.published, 1) }
func (s *Stats) incQueued()           { atomic.AddInt64(&s.queued, 1) }
func (s *Stats) incReplayed(n int64)  { atomic.AddInt64(&s.replayedRecords, n) }
func (s *Stats) incTransitions()      { atomic.AddInt64(&s.connectTransitions, 1) }

// Published returns the running count of directly published samples.
func (s *Stats) Published() int64 { return atomic.LoadInt64(&s.published) }

// Queued returns the running count of samples appended to the outbox.
func (s *Stats) Queued() int64 { return atomic.LoadInt64(&s.queued) }

// ReplayedRecords returns the running count of outbox records acked
// after a successful broker handoff during replay.
func (s *Stats) ReplayedRecords() int64 { return atomic.LoadInt64(&s.replayedRecords) }

// ConnectTransitions returns the running count of Disconnected-to-Connected transitions.
func (s *Stats) ConnectTransitions() int64 { return atomic.LoadInt64(&s.connectTransitions) }

// New creates a device client bound to its own durable outbox file.
func New(cfg config.Device, logger zerolog.Logger) (*Client, error) {
	ob, err := outbox.Open(cfg.QueueDir, cfg.DeviceID, cfg.OutboxMaxCapacity)
	if err != nil {
		return nil, fmt.Errorf("opening outbox: %w", err)
	}

	c := &Client{
		deviceID: cfg.DeviceID,
		topic:    fmt.Sprintf("device/data/%s", cfg.DeviceID),
		cfg:      cfg,
		logger:   logger,
		outbox:   ob,
		source:   sample.NewSource(cfg.DeviceID, nil),
		state:    Disconnected,
	}

	clientID := fmt.Sprintf("device_%s", cfg.DeviceID)
	opts, err := mqttutil.BuildOptions(cfg.Transport, clientID, false, logger)
	if err != nil {
		ob.Close()
		return nil, fmt.Errorf("building mqtt options: %w", err)
	}
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		c.logger.Info().Str("device_id", c.deviceID).Msg("connected, starting outbox replay")
		c.setState(Connected)
		c.Stats.incTransitions()
		go c.replay()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Warn().Err(err).Str("device_id", c.deviceID).Msg("connection lost")
		c.setState(Disconnected)
	})

	c.mqttClient = mqtt.NewClient(opts)
	return c, nil
}

// Close releases the outbox and disconnects from the broker.
func (c *Client) Close() error {
	if c.mqttClient.IsConnected() {
		c.mqttClient.Disconnect(250)
	}
	return c.outbox.Close()
}

func (c *Client) setState(s ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) getState() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OutboxSizeForHarness reports the current outbox depth, used by the
// test harness's queue-depth sampling (spec.md §4.7 step 3).
func (c *Client) OutboxSizeForHarness() (int, error) {
	return c.outbox.Size()
}

// Sever forcibly disconnects from the broker without disabling
// auto-reconnect, simulating a severed connection for the harness's
// disconnect/reconnect controller (spec.md §4.7 step 2).
func (c *Client) Sever() {
	c.mqttClient.Disconnect(0)
	c.setState(Disconnected)
}

// Reconnect re-initiates the connection after a harness-induced Sever.
func (c *Client) Reconnect() {
	c.Connect()
}

// Connect attempts the initial connection. Failure does not error out;
// paho's connect-retry (enabled in New) keeps retrying, and ticks
// continue to append to the outbox until a connection succeeds.
func (c *Client) Connect() {
	c.setState(Connecting)
	token := c.mqttClient.Connect()
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			c.logger.Warn().Err(err).Msg("initial connect failed, will keep retrying")
			c.setState(Disconnected)
		}
	}()
}

// Run ticks the publish loop at cfg.PublishIntervalS until ctx is canceled.
func (c *Client) Run(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			logging.LogPanic(c.logger, r, "device run loop panic", map[string]any{"device_id": c.deviceID})
		}
	}()

	interval := time.Duration(c.cfg.PublishIntervalS * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.tick(); err != nil {
				c.logger.Error().Err(err).Msg("tick failed")
			}
		}
	}
}

// tick implements the publish algorithm in spec.md §4.2: generate,
// serialize, then direct-publish-or-queue.
func (c *Client) tick() error {
	s, err := c.source.Next()
	if err != nil {
		return fmt.Errorf("generating sample: %w", err)
	}
	payload, err := sample.Serialize(s)
	if err != nil {
		return fmt.Errorf("serializing sample: %w", err)
	}

	now := float64(time.Now().UnixNano()) / 1e9
	if c.getState() == Connected {
		token := c.mqttClient.Publish(c.topic, 1, false, payload)
		if token.WaitTimeout(5*time.Second) && token.Error() == nil {
			c.Stats.incPublished()
			return nil
		}
		c.logger.Warn().Err(token.Error()).Msg("direct publish failed, falling back to outbox")
		c.setState(Disconnected)
	}

	if err := c.outbox.Append(c.topic, payload, 1, now, now); err != nil {
		return fmt.Errorf("appending to outbox: %w", err)
	}
	c.Stats.incQueued()
	return nil
}

// replay drains the outbox in bounded batches after a reconnect, per
// spec.md §4.2's reconnect-and-replay algorithm. No record is ever
// acked before its successful handoff to the broker.
func (c *Client) replay() {
	c.setState(ReplayingOutbox)

	for {
		records, err := c.outbox.PeekBatch(replayBatchSize)
		if err != nil {
			c.logger.Error().Err(err).Msg("replay: peek_batch failed")
			return
		}
		if len(records) == 0 {
			break
		}

		var handedOff []int64
		publishCount := 0
		failed := false

		for _, r := range records {
			if c.getState() != ReplayingOutbox && c.getState() != Connected {
				failed = true
				break
			}
			token := c.mqttClient.Publish(r.Topic, r.QoS, false, r.Payload)
			if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
				failed = true
				break
			}
			handedOff = append(handedOff, r.ID)
			publishCount++
			if publishCount%replayYieldEvery == 0 {
				time.Sleep(replayYieldFor)
			}
		}

		successRatio := float64(len(handedOff)) / float64(len(records))
		if !failed {
			if err := c.outbox.Ack(handedOff); err != nil {
				c.logger.Error().Err(err).Msg("replay: ack failed")
				return
			}
			c.Stats.incReplayed(int64(len(handedOff)))
			continue
		}

		// Partial success heuristic (spec.md §4.2 step 5): ack everything
		// successfully handed off if the batch was at least 90% complete.
		// Records not handed off are never acked.
		if successRatio >= partialAckRatio && len(handedOff) > 0 {
			if err := c.outbox.Ack(handedOff); err != nil {
				c.logger.Error().Err(err).Msg("replay: partial ack failed")
			} else {
				c.Stats.incReplayed(int64(len(handedOff)))
			}
		}
		c.logger.Warn().Float64("success_ratio", successRatio).Msg("replay batch interrupted, will resume next connect")
		return
	}

	c.setState(Connected)
}
