// Package config loads the adapter configuration from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"

	"github.com/dratasich/ndn-orion-adapter/mqtt"
	"github.com/dratasich/ndn-orion-adapter/ndn"
)

type Config struct {
	// Context broker (FIWARE Orion)
	FiwareHost string `env:"FIWARE_HOST, default=localhost"`
	FiwarePort int    `env:"FIWARE_PORT, default=1026"`

	// NDN forwarder
	NDNHost   string `env:"NDN_HOST, default=localhost"`
	NDNPort   int    `env:"NDN_PORT, default=6363"`
	NDNPrefix string `env:"NDN_PREFIX, default=/esp/fiware"`

	LogLevel  string `env:"LOG_LEVEL, default=info"`
	LogFormat string `env:"LOG_FORMAT, default=json"` // json or console

	EntityType              string `env:"ENTITY_TYPE, default=SensorValue"`
	AttributeName           string `env:"ATTRIBUTE_NAME, default=value"`
	SubscriptionTag         string `env:"SUBSCRIPTION_TAG, default=[ESP1]"`
	SubscriptionDescription string `env:"SUBSCRIPTION_DESCRIPTION, default=Notify Quantumleap of changes of sensor values"`
	NotificationURL         string `env:"NOTIFICATION_URL, default=http://quantumleap:8668/v2/notify"`

	BrokerTimeout      time.Duration `env:"BROKER_TIMEOUT, default=5s"` // per request
	StartupTimeout     time.Duration `env:"STARTUP_TIMEOUT, default=10s"`
	HealthPollInterval time.Duration `env:"HEALTH_POLL_INTERVAL, default=100ms"`
	TickInterval       time.Duration `env:"TICK_INTERVAL, default=5ms"`
	StallTimeout       time.Duration `env:"STALL_TIMEOUT, default=10s"`
	ReconnectDelay     time.Duration `env:"RECONNECT_DELAY, default=1s"`
	RegisterTimeout    time.Duration `env:"REGISTER_TIMEOUT, default=4s"`

	DispatchWorkers   int `env:"DISPATCH_WORKERS, default=8"`
	DispatchQueueSize int `env:"DISPATCH_QUEUE_SIZE, default=1024"`

	// empty disables /metrics and /health
	MetricsAddr string `env:"METRICS_ADDR"`

	MQTT mqtt.Config `env:", prefix=MQTT_"`
}

// Load reads the process environment.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads variables from l and validates the result.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var c Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &c,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects settings the adapter cannot run with.
func (c *Config) Validate() error {
	var errs []error
	for name, port := range map[string]int{"FIWARE_PORT": c.FiwarePort, "NDN_PORT": c.NDNPort} {
		if port < 1 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s %d out of range", name, port))
		}
	}
	for name, d := range map[string]time.Duration{
		"BROKER_TIMEOUT":       c.BrokerTimeout,
		"STARTUP_TIMEOUT":      c.StartupTimeout,
		"HEALTH_POLL_INTERVAL": c.HealthPollInterval,
		"TICK_INTERVAL":        c.TickInterval,
		"STALL_TIMEOUT":        c.StallTimeout,
		"REGISTER_TIMEOUT":     c.RegisterTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.ReconnectDelay < 0 {
		errs = append(errs, fmt.Errorf("RECONNECT_DELAY must not be negative, got %s", c.ReconnectDelay))
	}
	if c.TickInterval > 0 && c.StallTimeout < c.TickInterval {
		errs = append(errs, fmt.Errorf("STALL_TIMEOUT %s is shorter than TICK_INTERVAL %s", c.StallTimeout, c.TickInterval))
	}
	if prefix, err := ndn.ParseName(c.NDNPrefix); err != nil {
		errs = append(errs, fmt.Errorf("NDN_PREFIX: %w", err))
	} else if len(prefix) == 0 {
		errs = append(errs, errors.New("NDN_PREFIX must not be empty"))
	}
	if c.EntityType == "" || c.AttributeName == "" {
		errs = append(errs, errors.New("ENTITY_TYPE and ATTRIBUTE_NAME must be set"))
	}
	if c.SubscriptionTag == "" {
		errs = append(errs, errors.New("SUBSCRIPTION_TAG must be set"))
	}
	if c.DispatchWorkers < 1 || c.DispatchQueueSize < 1 {
		errs = append(errs, fmt.Errorf("DISPATCH_WORKERS and DISPATCH_QUEUE_SIZE must be positive, got %d and %d", c.DispatchWorkers, c.DispatchQueueSize))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q is neither json nor console", c.LogFormat))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// BrokerURL is the base URL of the context broker.
func (c *Config) BrokerURL() string {
	return "http://" + net.JoinHostPort(c.FiwareHost, strconv.Itoa(c.FiwarePort))
}

// NDNAddress is the forwarder's TCP address.
func (c *Config) NDNAddress() string {
	return net.JoinHostPort(c.NDNHost, strconv.Itoa(c.NDNPort))
}

// Prefix is the measurement name prefix. Only valid after Validate.
func (c *Config) Prefix() ndn.Name {
	return ndn.MustParseName(c.NDNPrefix)
}

// Level maps LOG_LEVEL to a zerolog level; unknown names mean info.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
