package bridge

import (
	"context"
	"time"

	"github.com/eviqo/mqtt-bridge/internal/protocol"
)

// chargingPin is the empirical constant spec.md §9 calls out: the
// charging switch always writes pin "15". The number entity's bound is
// read by the discovery publisher from the device's "Current max"
// stream. The Current control's own pin is
// never hardcoded — it is read from the device's own registry, since
// only the charging pin is empirical per spec.md §9.
const chargingPin = "15"

// Session is the subset of *protocol.Session the bridge depends on.
// Defined as an interface so tests can substitute a fake session
// without a real WebSocket.
type Session interface {
	FetchDevicePage(ctx context.Context, deviceID string) (protocol.DevicePage, error)
	SendCommand(deviceID, pin, value string) error
	Close() error
}

// Connector opens a new session, mirroring protocol.Connect's
// signature through the Session interface.
type Connector func(ctx context.Context, opts protocol.Options) (Session, []protocol.Device, error)

// DefaultConnector wraps protocol.Connect.
func DefaultConnector(ctx context.Context, opts protocol.Options) (Session, []protocol.Device, error) {
	return protocol.Connect(ctx, opts)
}

// MessageHandler mirrors internal/infrastructure/mqtt.MessageHandler,
// restated here so this package doesn't need to import the concrete
// mqtt package just for a function type.
type MessageHandler func(topic string, payload []byte) error

// MQTTClient is the subset of *mqtt.Client the bridge depends on.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Unsubscribe(topic string) error
	Close() error
}

// Logger is satisfied by *logging.Logger and anything shaped like it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Bridge.
type Options struct {
	Email    string
	Password string

	CookieFetcher protocol.CookieFetcher
	MQTT          MQTTClient

	TopicPrefix     string
	DiscoveryPrefix string

	// ReconnectBackoff is the fixed delay between a lost session and
	// the next handshake attempt. Defaults to 30s per spec.md §4.5 —
	// deliberately fixed, not exponential, since the vendor service is
	// tolerant of frequent reconnect attempts.
	ReconnectBackoff time.Duration

	HandshakeTimeout time.Duration
	SendInit         bool

	// PollInterval, if positive, is the cadence at which every device's
	// page is re-fetched and republished as a resync fallback alongside
	// the push-based telemetry path, per spec.md §6's
	// EVIQO_POLL_INTERVAL. Zero disables the poll loop entirely.
	PollInterval time.Duration

	// WSReconnectInterval, if positive, forces a fresh handshake after
	// this long even without a session error, per spec.md §6's
	// EVIQO_WS_RECONNECT_INTERVAL ("0 disables"). Zero (the default
	// zero value, not spec.md's documented env-var default — callers
	// wire the resolved config value through) disables it.
	WSReconnectInterval time.Duration

	Logger Logger

	// Connector overrides how a session is opened. Defaults to
	// DefaultConnector; tests substitute a fake.
	Connector Connector
}

const defaultReconnectBackoff = 30 * time.Second
