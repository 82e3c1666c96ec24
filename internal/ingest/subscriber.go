package ingest

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/Mahaashree/realtime-datastreaming/internal/config"
	"github.com/Mahaashree/realtime-datastreaming/internal/metrics"
	"github.com/Mahaashree/realtime-datastreaming/internal/mqttutil"
)

const (
	topicCurrent = "device/data/+"
	topicLegacy  = "vehicle/speed/+"
)

// IngestGuard is consulted before every enqueue attempt; it lets a CPU
// emergency brake or rate limiter shed load ahead of the ring's own
// bounded-drop behavior (spec.md §5).
type IngestGuard interface {
	Allow() bool
}

// Subscriber owns the collector's broker connection and the non-blocking
// delivery callback that feeds the ring (spec.md §4.3). Decoding never
// happens on the callback path.
type Subscriber struct {
	client mqtt.Client
	ring   *Ring
	guard  IngestGuard
	logger zerolog.Logger
}

// NewSubscriber builds a Subscriber bound to a ring; call Connect to
// establish the session and subscriptions. guard may be nil, in which
// case every delivery is offered to the ring unconditionally.
func NewSubscriber(cfg config.Collector, ring *Ring, guard IngestGuard, logger zerolog.Logger) (*Subscriber, error) {
	s := &Subscriber{ring: ring, guard: guard, logger: logger}

	clientID := cfg.CollectorLabel
	opts, err := mqttutil.BuildOptions(cfg.Transport, clientID, false, logger)
	if err != nil {
		return nil, fmt.Errorf("building mqtt options: %w", err)
	}
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		s.subscribe(c)
	})

	s.client = mqtt.NewClient(opts)
	return s, nil
}

// Connect opens the broker connection and blocks until the connect
// attempt completes, fails, or 10 s elapse. Subscriptions are made by the
// on-connect handler and are not awaited here.
func (s *Subscriber) Connect() error {
	token := s.client.Connect()
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		return fmt.Errorf("connecting to broker: %w", token.Error())
	}
	return nil
}

// Close disconnects from the broker.
func (s *Subscriber) Close() {
	s.client.Disconnect(250)
}

func (s *Subscriber) subscribe(c mqtt.Client) {
	for _, topic := range []string{topicCurrent, topicLegacy} {
		token := c.Subscribe(topic, 1, s.onMessage)
		if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
			s.logger.Error().Err(token.Error()).Str("topic", topic).Msg("subscribe failed")
		}
	}
}

// onMessage is the broker delivery callback. It must never block: it
// stamps the receive time and offers to the ring, dropping on overflow.
func (s *Subscriber) onMessage(_ mqtt.Client, m mqtt.Message) {
	metrics.Received.Inc()
	if s.guard != nil && !s.guard.Allow() {
		return
	}
	item := Item{
		Payload:     m.Payload(),
		Topic:       m.Topic(),
		ReceiveTime: time.Now(),
	}
	s.ring.Offer(item)
}
