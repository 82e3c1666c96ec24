// Package mqttutil builds paho.mqtt.golang client options shared by the
// device client and the collector subscriber: broker addressing, TLS,
// auth, keepalive, and reconnect behavior (spec.md C4/C5/C6).
package mqttutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/Mahaashree/realtime-datastreaming/internal/config"
)

// BuildOptions constructs client options from a Transport config. cleanSession
// should be false for the device client (persistent session, per spec.md
// C5) and can be true for short-lived or harness-controlled connections.
func BuildOptions(t config.Transport, clientID string, cleanSession bool, logger zerolog.Logger) (*mqtt.ClientOptions, error) {
	scheme := "tcp"
	if t.UseTLS {
		scheme = "ssl"
	}
	broker := fmt.Sprintf("%s://%s:%d", scheme, t.BrokerHost, t.BrokerPort)

	opts := mqtt.NewClientOptions().AddBroker(broker)
	if clientID == "" {
		clientID = t.ClientID
	}
	opts.SetClientID(clientID)
	opts.SetCleanSession(cleanSession)
	opts.SetKeepAlive(time.Duration(t.KeepAliveSecs) * time.Second)
	opts.SetConnectTimeout(t.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(120 * time.Second)
	opts.SetResumeSubs(true)
	opts.SetOrderMatters(false)

	if t.Username != "" {
		opts.SetUsername(t.Username)
		opts.SetPassword(t.Password)
	}

	if t.UseTLS {
		tlsConfig, err := buildTLSConfig(t)
		if err != nil {
			return nil, fmt.Errorf("building tls config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		logger.Info().Str("broker", broker).Str("client_id", clientID).Msg("mqtt connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("mqtt connection lost")
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info().Msg("mqtt reconnecting")
	})

	return opts, nil
}

// buildTLSConfig builds a tls.Config from the CA/cert/key paths named in
// spec.md §6 (MQTT_CA_CERTS / MQTT_CERTFILE / MQTT_KEYFILE), mirroring
// original_source's TLS setup.
func buildTLSConfig(t config.Transport) (*tls.Config, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: t.TLSInsecure}

	if t.CACerts != "" {
		caCert, err := os.ReadFile(t.CACerts)
		if err != nil {
			return nil, fmt.Errorf("reading CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("parsing CA cert %s", t.CACerts)
		}
		tlsConfig.RootCAs = pool
	}

	if t.CertFile != "" && t.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client cert/key: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// ExponentialBackoff returns the reconnect delay for the given consecutive
// failure count, per spec.md C4's 1s-to-120s exponential backoff.
func ExponentialBackoff(attempt int) time.Duration {
	const (
		base = 1 * time.Second
		max  = 120 * time.Second
	)
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	return delay
}
