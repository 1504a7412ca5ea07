package bridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/eviqo/mqtt-bridge/internal/discovery"
	"github.com/eviqo/mqtt-bridge/internal/registry"
)

// chargingSequenceGap is the load-bearing delay between the second
// and third commands of the "ON from stopped" charging sequence, per
// spec.md §4.5's table.
const chargingSequenceGap = 250 * time.Millisecond

// subscribeDeviceCommands subscribes one MQTT command topic per
// controllable widget present on the device, plus the charging switch
// command topic — refusing the latter if the device's registry lacks
// the empirical charging pin, per spec.md §9.
func (b *Bridge) subscribeDeviceCommands(deviceID string, reg registry.Registry) error {
	for _, ce := range b.publisher.ControllableEntities(reg) {
		pin := string(ce.Stream.Pin)
		topic := b.topics.Command(deviceID, ce.EntityID)

		b.mu.Lock()
		b.commandTopics[topic] = pinRef{DeviceID: deviceID, Pin: pin}
		b.mu.Unlock()

		if err := b.mqtt.Subscribe(topic, 1, b.handleMQTTMessage); err != nil {
			return err
		}
	}

	if !reg.HasPin(chargingPin) {
		err := fmt.Errorf("%w: deviceId=%s pin=%s", ErrChargingPinUnavailable, deviceID, chargingPin)
		b.logger.Warn("refusing to subscribe charging switch", "error", err)
		return nil
	}

	chargingTopic := b.topics.Command(deviceID, discovery.EntityCharging)
	b.mu.Lock()
	b.chargingTopics[chargingTopic] = deviceID
	b.mu.Unlock()

	return b.mqtt.Subscribe(chargingTopic, 1, b.handleMQTTMessage)
}

// handleMQTTMessage dispatches one inbound MQTT command message to
// either the direct controllable-widget path or the charging-switch
// multi-step sequence.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) error {
	value := strings.TrimSpace(string(payload))

	b.mu.RLock()
	ref, isDirect := b.commandTopics[topic]
	chargingDeviceID, isCharging := b.chargingTopics[topic]
	session := b.session
	b.mu.RUnlock()

	if session == nil {
		return nil
	}

	switch {
	case isDirect:
		return session.SendCommand(ref.DeviceID, ref.Pin, value)
	case isCharging:
		b.handleChargingCommand(session, chargingDeviceID, value)
		return nil
	default:
		return nil
	}
}

// handleChargingCommand runs the multi-step charging sequence table
// from spec.md §4.5, gated on the device's last-observed Status.
// Rejections are logged at warn and never surfaced back over MQTT, per
// spec.md §7's CommandRejected row.
func (b *Bridge) handleChargingCommand(session Session, deviceID, target string) {
	b.mu.RLock()
	status := b.deviceStatus[deviceID]
	b.mu.RUnlock()

	send := func(value string) {
		if err := session.SendCommand(deviceID, chargingPin, value); err != nil {
			b.logger.Warn("charging sequence command failed", "deviceId", deviceID, "value", value, "error", err)
		}
	}

	reject := func(reason string) {
		err := fmt.Errorf("%w: deviceId=%s status=%s target=%s: %s", ErrCommandRejected, deviceID, status, target, reason)
		b.logger.Warn("charging command rejected", "error", err)
	}

	switch strings.ToUpper(target) {
	case "OFF":
		if status != "2" {
			reject("device not charging")
			return
		}
		send("3")
		send("0")

	case "ON":
		switch status {
		case "0":
			reject("device unplugged")
		case "2":
			// already charging, no-op
		case "1":
			send("2")
			send("0")
		case "3":
			send("1")
			send("0")
			time.Sleep(chargingSequenceGap)
			send("2")
			send("0")
		default:
			reject("unknown device status")
		}

	default:
		reject("unrecognised command payload")
	}
}

// onWidgetUpdate is the protocol session's telemetry callback: it
// publishes the value to MQTT and, for Status updates, refreshes the
// bridge's tracked device status so the charging sequence guard sees
// it on the next command.
func (b *Bridge) onWidgetUpdate(deviceID, pin, value string) {
	b.mu.RLock()
	reg := b.registries[deviceID]
	b.mu.RUnlock()

	name, published, err := b.publisher.PublishWidgetValue(deviceID, reg, pin, value)
	if err != nil {
		b.logger.Warn("publish widget value failed", "deviceId", deviceID, "pin", pin, "error", err)
	}
	if !published {
		return
	}

	if name == "Status" {
		b.mu.Lock()
		b.deviceStatus[deviceID] = value
		b.mu.Unlock()
	}
}

// onCommandSent is the protocol session's command-emission callback:
// it publishes an optimistic, non-retained state echo ahead of the
// vendor's own widget-update confirmation.
func (b *Bridge) onCommandSent(deviceID, pin, value string) {
	b.mu.RLock()
	reg := b.registries[deviceID]
	b.mu.RUnlock()

	if err := b.publisher.PublishCommandEcho(deviceID, reg, pin, value); err != nil {
		b.logger.Warn("publish command echo failed", "deviceId", deviceID, "pin", pin, "error", err)
	}
}
