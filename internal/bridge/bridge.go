// Package bridge composes the protocol session client, the widget
// registry, and the discovery publisher into the running supervisor:
// connect, handshake, enumerate devices, publish discovery, route
// commands and telemetry, and reconnect on failure.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/eviqo/mqtt-bridge/internal/discovery"
	"github.com/eviqo/mqtt-bridge/internal/protocol"
	"github.com/eviqo/mqtt-bridge/internal/registry"
)

// pinRef identifies a (device, pin) pair a command topic writes to.
type pinRef struct {
	DeviceID string
	Pin      string
}

// Bridge owns the MQTT client, the widget registries, and the bridge
// state described in spec.md §3. The session owns the WebSocket; this
// type never reaches into session internals, only calling its public
// methods and reacting to its callbacks.
type Bridge struct {
	opts      Options
	mqtt      MQTTClient
	publisher *discovery.Publisher
	topics    discovery.Topics
	logger    Logger

	mu           sync.RWMutex
	session      Session
	devices      []protocol.Device
	devicePages  map[string]protocol.DevicePage
	registries   map[string]registry.Registry
	deviceStatus map[string]string

	commandTopics  map[string]pinRef // direct controllable-widget command topics
	chargingTopics map[string]string // charging command topic -> deviceID

	// cycleStop is closed by Run when the current connect cycle ends
	// (session lost, forced periodic reconnect, or shutdown), signaling
	// the poll loop spawned for that cycle to stop. Recreated fresh each
	// connectAndSetup call.
	cycleStop chan struct{}

	shutdownRequested atomic.Bool
	sessionDone       chan struct{}
	sessionDoneMu     sync.Mutex

	done     chan struct{}
	stopOnce sync.Once
}

// New validates opts and constructs a Bridge. It does not connect;
// call Run to start the supervised lifecycle.
func New(opts Options) (*Bridge, error) {
	if strings.TrimSpace(opts.Email) == "" || opts.Password == "" {
		return nil, fmt.Errorf("%w: Email and Password are required", ErrMissingOptions)
	}
	if opts.CookieFetcher == nil {
		return nil, fmt.Errorf("%w: CookieFetcher is required", ErrMissingOptions)
	}
	if opts.MQTT == nil {
		return nil, fmt.Errorf("%w: MQTT client is required", ErrMissingOptions)
	}
	if opts.ReconnectBackoff <= 0 {
		opts.ReconnectBackoff = defaultReconnectBackoff
	}
	if opts.Connector == nil {
		opts.Connector = DefaultConnector
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	topics := discovery.Topics{TopicPrefix: opts.TopicPrefix, DiscoveryPrefix: opts.DiscoveryPrefix}
	return &Bridge{
		opts:           opts,
		mqtt:           opts.MQTT,
		publisher:      discovery.NewPublisher(opts.MQTT, topics, opts.Logger),
		topics:         topics,
		logger:         opts.Logger,
		devicePages:    make(map[string]protocol.DevicePage),
		registries:     make(map[string]registry.Registry),
		deviceStatus:   make(map[string]string),
		commandTopics:  make(map[string]pinRef),
		chargingTopics: make(map[string]string),
		done:           make(chan struct{}),
	}, nil
}

// Run drives the full lifecycle: connect, supervise, reconnect on
// failure, until ctx is cancelled or a fatal (non-retryable) error
// occurs — at present only authentication failure, per spec.md §7.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		if b.shutdownRequested.Load() || ctx.Err() != nil {
			b.shutdown()
			return nil
		}

		cycleID := uuid.NewString()
		log := b.logger
		log.Info("starting connect cycle", "cycle", cycleID)

		if err := b.connectAndSetup(ctx, cycleID); err != nil {
			if errors.Is(err, protocol.ErrAuthFailed) {
				log.Error("authentication failed, not retrying", "error", err)
				return err
			}
			log.Warn("connect cycle failed, backing off", "cycle", cycleID, "error", err, "backoff", b.opts.ReconnectBackoff)
			if !b.waitBackoff(ctx) {
				b.shutdown()
				return nil
			}
			continue
		}

		log.Info("connect cycle ready", "cycle", cycleID)
		b.waitForSessionEnd(ctx)
		b.closeCycleStop()

		if b.shutdownRequested.Load() || ctx.Err() != nil {
			b.shutdown()
			return nil
		}

		log.Warn("session ended, marking devices offline before reconnect", "cycle", cycleID)
		b.markAllOffline()
		if !b.waitBackoff(ctx) {
			b.shutdown()
			return nil
		}
	}
}

// waitBackoff waits opts.ReconnectBackoff, checking shutdown/ctx
// cancellation as it does. Returns false if the wait was aborted by
// shutdown, in which case the caller must not proceed to reconnect.
func (b *Bridge) waitBackoff(ctx context.Context) bool {
	timer := time.NewTimer(b.opts.ReconnectBackoff)
	defer timer.Stop()
	select {
	case <-timer.C:
		return !b.shutdownRequested.Load() && ctx.Err() == nil
	case <-ctx.Done():
		return false
	case <-b.done:
		return false
	}
}

// waitForSessionEnd blocks until the current session reports a
// terminal state transition, ctx is cancelled, or — if
// opts.WSReconnectInterval is positive — that interval elapses, in
// which case it closes the still-healthy session itself to force a
// fresh handshake, per spec.md §6's periodic reconnect cadence. A
// non-positive WSReconnectInterval leaves reconnectC nil, which never
// fires in the select below.
func (b *Bridge) waitForSessionEnd(ctx context.Context) {
	b.sessionDoneMu.Lock()
	ch := b.sessionDone
	b.sessionDoneMu.Unlock()
	if ch == nil {
		return
	}

	var reconnectC <-chan time.Time
	if b.opts.WSReconnectInterval > 0 {
		timer := time.NewTimer(b.opts.WSReconnectInterval)
		defer timer.Stop()
		reconnectC = timer.C
	}

	select {
	case <-ch:
	case <-ctx.Done():
	case <-b.done:
	case <-reconnectC:
		b.logger.Info("periodic reconnect interval elapsed, forcing fresh handshake", "interval", b.opts.WSReconnectInterval)
		b.mu.RLock()
		session := b.session
		b.mu.RUnlock()
		if session != nil {
			if err := session.Close(); err != nil {
				b.logger.Warn("session close during periodic reconnect returned error", "error", err)
			}
		}
	}
}

// closeCycleStop signals the current cycle's poll loop, if any, to
// stop. Safe to call more than once or when no poll loop was started.
func (b *Bridge) closeCycleStop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cycleStop != nil {
		close(b.cycleStop)
		b.cycleStop = nil
	}
}

// connectAndSetup performs §4.5's Start sequence for one connect
// cycle: handshake, then for every enumerated device, page fetch,
// registry build, discovery publish, initial values, and command-topic
// subscription.
func (b *Bridge) connectAndSetup(ctx context.Context, cycleID string) error {
	sessionDone := make(chan struct{}, 1)
	b.sessionDoneMu.Lock()
	b.sessionDone = sessionDone
	b.sessionDoneMu.Unlock()

	opts := protocol.Options{
		Email:            b.opts.Email,
		Password:         b.opts.Password,
		CookieFetcher:    b.opts.CookieFetcher,
		SendInit:         b.opts.SendInit,
		HandshakeTimeout: b.opts.HandshakeTimeout,
		Logger:           b.logger,
		OnWidgetUpdate:   b.onWidgetUpdate,
		OnCommandSent:    b.onCommandSent,
		OnStateChange: func(state protocol.State) {
			if state == protocol.StateError || state == protocol.StateDisconnected {
				select {
				case sessionDone <- struct{}{}:
				default:
				}
			}
		},
	}

	session, devices, err := b.opts.Connector(ctx, opts)
	if err != nil {
		return err
	}

	b.mu.Lock()
	previousCommandTopics := b.commandTopics
	previousChargingTopics := b.chargingTopics
	b.session = session
	b.devices = devices
	b.commandTopics = make(map[string]pinRef)
	b.chargingTopics = make(map[string]string)
	cycleStop := make(chan struct{})
	b.cycleStop = cycleStop
	b.mu.Unlock()

	for _, device := range devices {
		if err := b.setupDevice(ctx, session, device, cycleID); err != nil {
			return fmt.Errorf("bridge: device %s setup: %w", device.DeviceID, err)
		}
	}

	b.unsubscribeStaleCommandTopics(previousCommandTopics, previousChargingTopics)

	if b.opts.PollInterval > 0 {
		go b.runPollLoop(ctx, session, devices, cycleStop)
	}

	return nil
}

// unsubscribeStaleCommandTopics drops the broker subscription for any
// command topic that was registered in the previous connect cycle but
// has no entry in the freshly rebuilt maps — e.g. a device that is no
// longer enumerated. Without this, spec.md §3's invariant that "every
// command topic the bridge has subscribed to has an entry in both the
// forward and reverse command maps" would be violated after such a
// device drops out.
func (b *Bridge) unsubscribeStaleCommandTopics(previousCommand map[string]pinRef, previousCharging map[string]string) {
	b.mu.RLock()
	currentCommand := b.commandTopics
	currentCharging := b.chargingTopics
	b.mu.RUnlock()

	for topic := range previousCommand {
		if _, ok := currentCommand[topic]; ok {
			continue
		}
		if err := b.mqtt.Unsubscribe(topic); err != nil {
			b.logger.Warn("unsubscribe stale command topic failed", "topic", topic, "error", err)
		}
	}
	for topic := range previousCharging {
		if _, ok := currentCharging[topic]; ok {
			continue
		}
		if err := b.mqtt.Unsubscribe(topic); err != nil {
			b.logger.Warn("unsubscribe stale charging topic failed", "topic", topic, "error", err)
		}
	}
}

// runPollLoop periodically re-fetches every device's page and
// republishes a fresh retained snapshot, as a resync fallback for any
// widget update the push-based telemetry path might have dropped (see
// session.go's dispatchWidgetUpdate queue-full warning), per spec.md
// §6's EVIQO_POLL_INTERVAL. It stops when the cycle ends, ctx is
// cancelled, or the bridge shuts down.
func (b *Bridge) runPollLoop(ctx context.Context, session Session, devices []protocol.Device, stop <-chan struct{}) {
	ticker := time.NewTicker(b.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case <-stop:
			return
		case <-ticker.C:
			b.refreshDevices(ctx, session, devices)
		}
	}
}

// refreshDevices re-fetches and republishes every device's page,
// refreshing registries and deviceStatus the same way setupDevice does
// on initial connect.
func (b *Bridge) refreshDevices(ctx context.Context, session Session, devices []protocol.Device) {
	for _, device := range devices {
		deviceID := string(device.DeviceID)

		page, err := session.FetchDevicePage(ctx, deviceID)
		if err != nil {
			b.logger.Warn("poll refresh: fetch device page failed", "deviceId", deviceID, "error", err)
			continue
		}
		reg := registry.Build(page, b.logger)

		b.mu.Lock()
		b.devicePages[deviceID] = page
		b.registries[deviceID] = reg
		if status, ok := reg.ByName["Status"]; ok {
			b.deviceStatus[deviceID] = status.Visualization.Value
		}
		b.mu.Unlock()

		if err := b.publisher.PublishInitialValues(device, reg); err != nil {
			b.logger.Warn("poll refresh: publish values failed", "deviceId", deviceID, "error", err)
		}
	}
}

func (b *Bridge) setupDevice(ctx context.Context, session Session, device protocol.Device, cycleID string) error {
	deviceID := string(device.DeviceID)

	page, err := session.FetchDevicePage(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("fetch device page: %w", err)
	}
	reg := registry.Build(page, b.logger)

	b.mu.Lock()
	b.devicePages[deviceID] = page
	b.registries[deviceID] = reg
	if status, ok := reg.ByName["Status"]; ok {
		b.deviceStatus[deviceID] = status.Visualization.Value
	}
	b.mu.Unlock()

	if err := b.publisher.PublishDevice(device, reg); err != nil {
		return fmt.Errorf("publish discovery: %w", err)
	}
	if err := b.publisher.PublishInitialValues(device, reg); err != nil {
		return fmt.Errorf("publish initial values: %w", err)
	}

	if err := b.subscribeDeviceCommands(deviceID, reg); err != nil {
		return err
	}

	b.logger.Info("device online", "cycle", cycleID, "deviceId", deviceID, "name", device.Name)
	return nil
}

// shutdown runs the graceful teardown sequence (§4.5's Shutdown):
// publish offline/OFF for every known device, close the session and
// the MQTT client.
func (b *Bridge) shutdown() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.closeCycleStop()
		b.markAllOffline()

		b.mu.RLock()
		session := b.session
		b.mu.RUnlock()
		if session != nil {
			if err := session.Close(); err != nil {
				b.logger.Warn("session close returned error", "error", err)
			}
		}
		if err := b.mqtt.Close(); err != nil {
			b.logger.Warn("mqtt close returned error", "error", err)
		}
	})
}

// Stop requests a graceful shutdown and runs the teardown sequence,
// blocking until it has completed (or until a teardown already begun
// by Run has completed). It does not wait for Run itself to return.
// Safe to call more than once.
func (b *Bridge) Stop() {
	b.shutdownRequested.Store(true)
	b.shutdown()
}

func (b *Bridge) markAllOffline() {
	b.mu.RLock()
	devices := append([]protocol.Device(nil), b.devices...)
	b.mu.RUnlock()

	for _, d := range devices {
		if err := b.publisher.PublishAvailability(string(d.DeviceID), false); err != nil {
			b.logger.Warn("publish offline availability failed", "deviceId", d.DeviceID, "error", err)
		}
	}
}
