// Package config loads eviqo-mqtt-bridge configuration from the process
// environment.
//
// Configuration loading from environment is the only supported source
// (no YAML/JSON config file, no hot-reload) — wiring config from a file
// format is an external collaborator's concern, not this package's.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variable names recognised by Load.
const (
	EnvEmail               = "EVIQO_EMAIL"
	EnvPassword            = "EVIQO_PASSWORD"
	EnvMQTTURL             = "EVIQO_MQTT_URL"
	EnvTopicPrefix         = "EVIQO_TOPIC_PREFIX"
	EnvDiscoveryPrefix     = "HASS_DISCOVERY_PREFIX"
	EnvPollInterval        = "EVIQO_POLL_INTERVAL"
	EnvLogLevel            = "EVIQO_LOG_LEVEL"
	EnvWSReconnectInterval = "EVIQO_WS_RECONNECT_INTERVAL"
)

// Defaults per spec.md §6.
const (
	DefaultTopicPrefix         = "eviqo"
	DefaultDiscoveryPrefix     = "homeassistant"
	DefaultPollInterval        = 30 * time.Second
	DefaultLogLevel            = "info"
	DefaultWSReconnectInterval = 24 * time.Hour
)

// ErrConfigError is returned for any configuration validation failure.
// Per spec.md §7 this is fatal — callers should exit(1).
var ErrConfigError = errors.New("config: invalid configuration")

// Config is the fully-resolved bridge configuration.
type Config struct {
	Email    string
	Password string

	// MQTTURL is the broker URL, with any auto_* tokens already substituted.
	MQTTURL string

	TopicPrefix     string
	DiscoveryPrefix string

	PollInterval time.Duration
	LogLevel     string

	// WSReconnectInterval is the periodic forced-reconnect cadence.
	// Zero disables the periodic reconnect (only error-triggered
	// reconnects remain).
	WSReconnectInterval time.Duration

	Debug bool
}

// Load reads configuration from the process environment, applies
// defaults, substitutes auto_* MQTT URL tokens, and validates the
// result.
func Load(lookup func(string) string) (*Config, error) {
	if lookup == nil {
		lookup = os.Getenv
	}

	cfg := &Config{
		Email:               lookup(EnvEmail),
		Password:            lookup(EnvPassword),
		MQTTURL:             lookup(EnvMQTTURL),
		TopicPrefix:         orDefault(lookup(EnvTopicPrefix), DefaultTopicPrefix),
		DiscoveryPrefix:     orDefault(lookup(EnvDiscoveryPrefix), DefaultDiscoveryPrefix),
		LogLevel:            orDefault(lookup(EnvLogLevel), DefaultLogLevel),
		PollInterval:        DefaultPollInterval,
		WSReconnectInterval: DefaultWSReconnectInterval,
	}

	if raw := lookup(EnvPollInterval); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q: %w", ErrConfigError, EnvPollInterval, raw, err)
		}
		cfg.PollInterval = time.Duration(ms) * time.Millisecond
	}

	if raw := lookup(EnvWSReconnectInterval); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q: %w", ErrConfigError, EnvWSReconnectInterval, raw, err)
		}
		cfg.WSReconnectInterval = time.Duration(ms) * time.Millisecond
	}

	cfg.MQTTURL = SubstituteMQTTURL(cfg.MQTTURL, lookup)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Email) == "" {
		problems = append(problems, EnvEmail+" is required")
	}
	if c.Password == "" {
		problems = append(problems, EnvPassword+" is required")
	}
	if strings.TrimSpace(c.MQTTURL) == "" {
		problems = append(problems, EnvMQTTURL+" is required")
	}
	if c.PollInterval <= 0 {
		problems = append(problems, EnvPollInterval+" must be positive")
	}
	if c.WSReconnectInterval < 0 {
		problems = append(problems, EnvWSReconnectInterval+" must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigError, strings.Join(problems, "; "))
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Environment variable names the host broker add-on is expected to
// expose, consulted when the configured MQTT URL uses the literal
// auto_username/auto_password/auto_hostname tokens instead of real
// values (the Home Assistant add-on service-discovery convention).
const (
	EnvAutoMQTTHost     = "MQTT_HOST"
	EnvAutoMQTTUsername = "MQTT_USERNAME"
	EnvAutoMQTTPassword = "MQTT_PASSWORD"
)

const (
	autoUsername = "auto_username"
	autoPassword = "auto_password"
	autoHostname = "auto_hostname"
)

// SubstituteMQTTURL replaces the literal auto_username, auto_password,
// and auto_hostname tokens in rawURL with values read via lookup from
// the host broker add-on's environment. A missing auto_username
// substitution drops credentials from the URL entirely rather than
// connecting with the literal token as a username.
//
// rawURL is returned unchanged if it doesn't parse as a URL, so Load's
// later validation can report the real problem.
func SubstituteMQTTURL(rawURL string, lookup func(string) string) string {
	if rawURL == "" {
		return rawURL
	}
	if lookup == nil {
		lookup = os.Getenv
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	host := u.Hostname()
	port := u.Port()
	if host == autoHostname {
		host = lookup(EnvAutoMQTTHost)
	}
	if port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}

	if u.User != nil {
		username := u.User.Username()
		password, hasPassword := u.User.Password()

		if username == autoUsername {
			username = lookup(EnvAutoMQTTUsername)
		}
		if hasPassword && password == autoPassword {
			password = lookup(EnvAutoMQTTPassword)
		}

		switch {
		case username == "":
			u.User = nil
		case hasPassword:
			u.User = url.UserPassword(username, password)
		default:
			u.User = url.User(username)
		}
	}

	return u.String()
}
