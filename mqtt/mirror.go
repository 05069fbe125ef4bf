// Package mqtt mirrors decoded measurements to an MQTT broker as
// ThingsBoard-style telemetry.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/rs/zerolog"

	"github.com/dratasich/ndn-orion-adapter/events"
)

// ErrNotConnected is returned by PublishMeasurement while the connection is down.
var ErrNotConnected = errors.New("mqtt: not connected")

// MQTT configuration of the telemetry mirror
type Config struct {
	ServerURL string `env:"SERVER_URL"` // MQTT server URL, empty disables the mirror
	ClientID  string `env:"CLIENT_ID,default=ndn-orion-adapter"`
	// set username = tb access token (and leave password empty)
	Username string `env:"USERNAME"` // MQTT Username to use when connecting to server
	Password string `env:"PASSWORD"` // MQTT Password to use when connecting to server

	KeepAlive uint16 `env:"KEEP_ALIVE,default=60"` // seconds between keepalive packets
	Topic     string `env:"TOPIC,default=v1/devices/me/telemetry"`
}

// Enabled reports whether a server is configured.
func (c Config) Enabled() bool { return c.ServerURL != "" }

const (
	qos = byte(1) // qos to utilise when publishing

	publishTimeout = 5 * time.Second
)

type Mirror struct {
	config      Config
	client      *autopaho.ConnectionManager
	isConnected atomic.Bool
	log         zerolog.Logger
}

func NewMirror(cfg Config, logger zerolog.Logger) *Mirror {
	return &Mirror{
		config: cfg,
		log:    logger.With().Str("component", "mqtt").Logger(),
	}
}

func (m *Mirror) clientConfig() (autopaho.ClientConfig, error) {
	parsedURL, err := url.Parse(m.config.ServerURL)
	if err != nil {
		return autopaho.ClientConfig{}, fmt.Errorf("parse server URL (%s): %w", m.config.ServerURL, err)
	}

	cliCfg := autopaho.ClientConfig{
		BrokerUrls:                    []*url.URL{parsedURL},
		KeepAlive:                     m.config.KeepAlive,
		CleanStartOnInitialConnection: true,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, connAck *paho.Connack) {
			m.log.Info().Msg("MQTT connection up")
			m.isConnected.Store(true)
		},

		OnConnectError: func(err error) {
			m.isConnected.Store(false)
			m.log.Error().Msgf("Error whilst attempting connection: %s", err)
		},

		ClientConfig: paho.ClientConfig{
			ClientID: m.config.ClientID,
			OnClientError: func(err error) {
				m.isConnected.Store(false)
				m.log.Error().Msgf("Client error: %s", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				m.isConnected.Store(false)
				if d.Properties != nil {
					m.log.Error().Msgf("Server requested disconnect: %s", d.Properties.ReasonString)
				} else {
					m.log.Error().Msgf("Server requested disconnect with reason code: %d", d.ReasonCode)
				}
			},
		},
	}

	if m.config.Username != "" {
		cliCfg.ConnectUsername = m.config.Username
		cliCfg.ConnectPassword = []byte(m.config.Password)
	}
	return cliCfg, nil
}

// Connect starts the connection manager and waits for the first
// connection until ctx is done. The manager keeps reconnecting afterwards.
func (m *Mirror) Connect(ctx context.Context) error {
	cliCfg, err := m.clientConfig()
	if err != nil {
		return err
	}

	m.log.Info().Msgf("Connect to MQTT %s...", m.config.ServerURL)
	m.client, err = autopaho.NewConnection(ctx, cliCfg)
	if err != nil {
		return fmt.Errorf("connect to MQTT: %w", err)
	}
	// Wait for the connection to come up
	if err = m.client.AwaitConnection(ctx); err != nil {
		return fmt.Errorf("connect to MQTT: %w", err)
	}
	return nil
}

// Connected reports whether the last connection attempt is up.
func (m *Mirror) Connected() bool { return m.isConnected.Load() }

func (m *Mirror) Disconnect(ctx context.Context) {
	if m.client != nil {
		err := m.client.Disconnect(ctx)
		if err != nil {
			m.log.Error().Msgf("Failed to disconnect: %s", err)
		}
	}
	m.isConnected.Store(false)
	m.log.Info().Msg("Disconnected from MQTT")
}

// PublishMeasurement publishes {"ts": <at ms>, "values": {<entityID>: value}}.
// It fails fast with ErrNotConnected instead of waiting for a reconnect.
func (m *Mirror) PublishMeasurement(ctx context.Context, entityID string, value float64, at time.Time) error {
	if m.client == nil || !m.Connected() {
		return ErrNotConnected
	}
	payload, err := telemetryPayload(entityID, value, at)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	msg := &paho.Publish{
		QoS:     qos,
		Topic:   m.config.Topic,
		Payload: payload,
	}
	if _, err := m.client.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", m.config.Topic, err)
	}
	m.log.Debug().Msgf("Published telemetry: %s", payload)
	return nil
}

func telemetryPayload(entityID string, value float64, at time.Time) ([]byte, error) {
	t := events.NewTelemetry(at, map[string]any{entityID: value})
	payload, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode telemetry: %w", err)
	}
	return payload, nil
}
