package config

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	// act
	c, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{}))

	// assert
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:1026", c.BrokerURL())
	assert.Equal(t, "localhost:6363", c.NDNAddress())
	assert.Equal(t, "/esp/fiware", c.Prefix().String())
	assert.Equal(t, "SensorValue", c.EntityType)
	assert.Equal(t, "value", c.AttributeName)
	assert.Equal(t, "[ESP1]", c.SubscriptionTag)
	assert.Equal(t, "Notify Quantumleap of changes of sensor values", c.SubscriptionDescription)
	assert.Equal(t, "http://quantumleap:8668/v2/notify", c.NotificationURL)
	assert.Equal(t, 10*time.Second, c.StartupTimeout)
	assert.Equal(t, 100*time.Millisecond, c.HealthPollInterval)
	assert.Equal(t, 5*time.Millisecond, c.TickInterval)
	assert.Equal(t, 10*time.Second, c.StallTimeout)
	assert.Equal(t, time.Second, c.ReconnectDelay)
	assert.Equal(t, 8, c.DispatchWorkers)
	assert.Equal(t, zerolog.InfoLevel, c.Level())
	assert.Empty(t, c.MetricsAddr)
	assert.False(t, c.MQTT.Enabled())
	assert.Equal(t, uint16(60), c.MQTT.KeepAlive)
	assert.Equal(t, "v1/devices/me/telemetry", c.MQTT.Topic)
}

func TestOverrides(t *testing.T) {
	// arrange
	env := envconfig.MapLookuper(map[string]string{
		"FIWARE_HOST":     "orion",
		"FIWARE_PORT":     "1027",
		"NDN_HOST":        "nfd",
		"NDN_PREFIX":      "/building/floor1",
		"LOG_LEVEL":       "DEBUG",
		"STALL_TIMEOUT":   "30s",
		"MQTT_SERVER_URL": "mqtt://thingsboard:1883",
		"MQTT_USERNAME":   "token",
		"METRICS_ADDR":    ":9102",
	})

	// act
	c, err := LoadWith(context.Background(), env)

	// assert
	require.NoError(t, err)
	assert.Equal(t, "http://orion:1027", c.BrokerURL())
	assert.Equal(t, "nfd:6363", c.NDNAddress())
	assert.Equal(t, "/building/floor1", c.Prefix().String())
	assert.Equal(t, zerolog.DebugLevel, c.Level())
	assert.Equal(t, 30*time.Second, c.StallTimeout)
	assert.True(t, c.MQTT.Enabled())
	assert.Equal(t, "token", c.MQTT.Username)
	assert.Equal(t, ":9102", c.MetricsAddr)
}

func TestInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"port out of range":    {"FIWARE_PORT": "70000"},
		"zero tick":            {"TICK_INTERVAL": "0s"},
		"stall shorter":        {"TICK_INTERVAL": "1s", "STALL_TIMEOUT": "500ms"},
		"empty prefix":         {"NDN_PREFIX": "/"},
		"bad escape in prefix": {"NDN_PREFIX": "/esp/%zz"},
		"no workers":           {"DISPATCH_WORKERS": "0"},
		"unknown log format":   {"LOG_FORMAT": "xml"},
		"unparsable duration":  {"STALL_TIMEOUT": "soon"},
		"negative reconnect":   {"RECONNECT_DELAY": "-1s"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadWith(context.Background(), envconfig.MapLookuper(env))
			assert.Error(t, err)
		})
	}
}

func TestLevelFallback(t *testing.T) {
	for level, want := range map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
		"WARN":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
	} {
		c := Config{LogLevel: level}
		assert.Equal(t, want, c.Level(), level)
	}
}
