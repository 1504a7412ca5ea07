// Package discovery translates a device page into Home Assistant MQTT
// discovery documents and publishes/retracts them, and applies the
// one value transform the observed telemetry requires (the Status
// stream's numeric code).
package discovery

import (
	"encoding/json"
	"fmt"

	"github.com/eviqo/mqtt-bridge/internal/protocol"
	"github.com/eviqo/mqtt-bridge/internal/registry"
)

const (
	componentSensor       = "sensor"
	componentBinarySensor = "binary_sensor"
	componentSwitch       = "switch"
	componentNumber       = "number"

	entityConnectivity = "connectivity"
	entityCharging     = "charging"
)

// EntityCharging is the entity id the Charging switch is published
// under; exported so the bridge package can build its command topic.
const EntityCharging = entityCharging

// MQTTPublisher is the subset of the MQTT client the publisher needs.
// Satisfied by *mqtt.Client.
type MQTTPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger is satisfied by *logging.Logger and anything shaped like it.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// target describes one discovery topic this bridge knows about,
// current or legacy.
type target struct {
	component string
	entityID  string
}

// Publisher renders and publishes Home Assistant discovery documents
// and their state/command topics for eviqo chargers.
type Publisher struct {
	mqtt     MQTTPublisher
	topics   Topics
	mappings []WidgetMapping
	byName   mappingIndex
	logger   Logger
}

// NewPublisher builds a Publisher using the embedded WIDGET_MAPPINGS table.
func NewPublisher(client MQTTPublisher, topics Topics, logger Logger) *Publisher {
	if logger == nil {
		logger = noopLogger{}
	}
	mappings := LoadMappings()
	return &Publisher{
		mqtt:     client,
		topics:   topics,
		mappings: mappings,
		byName:   indexMappings(mappings),
		logger:   logger,
	}
}

// targets enumerates every discovery target for a device given its
// registry: one sensor per mapped stream present, one number per
// controllable stream present, plus Connectivity and Charging. The
// pre-switch binary_sensor Charging path is not included; RemoveDevice
// retracts it separately.
func (p *Publisher) targets(reg registry.Registry) []target {
	var out []target
	for _, m := range p.mappings {
		if _, ok := reg.ByName[m.Name]; !ok {
			continue
		}
		entityID := EntityID(m)
		out = append(out, target{component: componentSensor, entityID: entityID})
		if m.Controllable {
			out = append(out, target{component: componentNumber, entityID: entityID})
		}
	}
	out = append(out, target{component: componentBinarySensor, entityID: entityConnectivity})
	out = append(out, target{component: componentSwitch, entityID: entityCharging})
	return out
}

// ControllableEntity pairs a controllable widget mapping with the
// device's actual stream for it, so the bridge can subscribe the
// right MQTT command topic to the right protocol pin.
type ControllableEntity struct {
	Mapping  WidgetMapping
	Stream   protocol.Stream
	EntityID string
}

// ControllableEntities returns every controllable mapping present in
// reg, for command-topic subscription.
func (p *Publisher) ControllableEntities(reg registry.Registry) []ControllableEntity {
	var out []ControllableEntity
	for _, m := range p.mappings {
		if !m.Controllable {
			continue
		}
		stream, ok := reg.ByName[m.Name]
		if !ok {
			continue
		}
		out = append(out, ControllableEntity{Mapping: m, Stream: stream, EntityID: EntityID(m)})
	}
	return out
}

// PublishDevice publishes discovery documents for every mapped stream
// present in reg, plus the Connectivity and Charging entities, for the
// given device.
func (p *Publisher) PublishDevice(device protocol.Device, reg registry.Registry) error {
	deviceID := string(device.DeviceID)
	info := deviceInfo(deviceID, device.Name, device.ProductName, device.HardwareInfo.Version)
	avail := p.topics.Availability(deviceID)

	for _, m := range p.mappings {
		stream, ok := reg.ByName[m.Name]
		if !ok {
			continue
		}
		entityID := EntityID(m)
		cfg := SensorConfig{
			Name:                device.Name + " " + m.Name,
			UniqueID:            fmt.Sprintf("eviqo_%s_%s", deviceID, entityID),
			StateTopic:          p.topics.State(deviceID, entityID),
			AvailabilityTopic:   avail,
			PayloadAvailable:    payloadOnline,
			PayloadNotAvailable: payloadOffline,
			UnitOfMeasurement:   orUnits(m.Unit, stream.Units),
			DeviceClass:         m.DeviceClass,
			StateClass:          m.StateClass,
			Device:              info,
		}
		if err := p.publishJSON(p.topics.Discovery(componentSensor, deviceID, entityID), cfg); err != nil {
			return err
		}

		if m.Controllable {
			if err := p.publishNumber(deviceID, entityID, m, reg, info, avail); err != nil {
				return err
			}
		}
	}

	if err := p.publishConnectivityConfig(deviceID, info, avail); err != nil {
		return err
	}
	return p.publishChargingConfig(deviceID, info, avail)
}

func orUnits(mapped, observed string) string {
	if mapped != "" {
		return mapped
	}
	return observed
}

func (p *Publisher) publishNumber(deviceID, entityID string, m WidgetMapping, reg registry.Registry, info DeviceInfo, avail string) error {
	max := float64(defaultCurrentMax)
	if maxStream, ok := reg.ByName["Current max"]; ok {
		if v, err := parsePositiveFloat(maxStream.Visualization.Value); err == nil {
			max = v
		}
	}

	cfg := NumberConfig{
		Name:                "Set " + m.Name,
		UniqueID:            fmt.Sprintf("eviqo_%s_%s_set", deviceID, entityID),
		StateTopic:          p.topics.State(deviceID, entityID),
		CommandTopic:        p.topics.Command(deviceID, entityID),
		AvailabilityTopic:   avail,
		PayloadAvailable:    payloadOnline,
		PayloadNotAvailable: payloadOffline,
		Min:                 0,
		Max:                 max,
		Step:                1,
		Mode:                "slider",
		UnitOfMeasurement:   m.Unit,
		DeviceClass:         m.DeviceClass,
		Device:              info,
	}
	return p.publishJSON(p.topics.Discovery(componentNumber, deviceID, entityID), cfg)
}

func (p *Publisher) publishConnectivityConfig(deviceID string, info DeviceInfo, avail string) error {
	cfg := BinarySensorConfig{
		Name:                "Connectivity",
		UniqueID:            fmt.Sprintf("eviqo_%s_connectivity", deviceID),
		StateTopic:          p.topics.State(deviceID, entityConnectivity),
		AvailabilityTopic:   avail,
		PayloadAvailable:    payloadOnline,
		PayloadNotAvailable: payloadOffline,
		PayloadOn:           payloadOn,
		PayloadOff:          payloadOff,
		DeviceClass:         "connectivity",
		Device:              info,
	}
	return p.publishJSON(p.topics.Discovery(componentBinarySensor, deviceID, entityConnectivity), cfg)
}

func (p *Publisher) publishChargingConfig(deviceID string, info DeviceInfo, avail string) error {
	cfg := SwitchConfig{
		Name:                "Charging",
		UniqueID:            fmt.Sprintf("eviqo_%s_charging", deviceID),
		StateTopic:          p.topics.State(deviceID, entityCharging),
		CommandTopic:        p.topics.Command(deviceID, entityCharging),
		AvailabilityTopic:   avail,
		PayloadAvailable:    payloadOnline,
		PayloadNotAvailable: payloadOffline,
		PayloadOn:           payloadOn,
		PayloadOff:          payloadOff,
		Device:              info,
	}
	return p.publishJSON(p.topics.Discovery(componentSwitch, deviceID, entityCharging), cfg)
}

// PublishInitialValues publishes a retained snapshot of every mapped
// stream's current value, plus retained online availability and
// connectivity, so Home Assistant has values immediately on first
// subscribe.
func (p *Publisher) PublishInitialValues(device protocol.Device, reg registry.Registry) error {
	deviceID := string(device.DeviceID)
	for _, m := range p.mappings {
		stream, ok := reg.ByName[m.Name]
		if !ok {
			continue
		}
		value := stream.Visualization.Value
		if m.Name == "Status" {
			value = StatusLabel(value)
		}
		topic := p.topics.State(deviceID, EntityID(m))
		if err := p.mqtt.Publish(topic, []byte(value), 0, true); err != nil {
			return err
		}
		if m.Name == "Status" {
			chargingTopic := p.topics.State(deviceID, entityCharging)
			if err := p.mqtt.Publish(chargingTopic, []byte(ChargingSwitchState(stream.Visualization.Value)), 0, true); err != nil {
				return err
			}
		}
	}
	return p.PublishAvailability(deviceID, true)
}

// PublishAvailability publishes retained online/offline to the
// device's availability topic and ON/OFF to its Connectivity entity.
func (p *Publisher) PublishAvailability(deviceID string, online bool) error {
	availPayload, connPayload := payloadOffline, payloadOff
	if online {
		availPayload, connPayload = payloadOnline, payloadOn
	}
	if err := p.mqtt.Publish(p.topics.Availability(deviceID), []byte(availPayload), 0, true); err != nil {
		return err
	}
	return p.mqtt.Publish(p.topics.State(deviceID, entityConnectivity), []byte(connPayload), 0, true)
}

// PublishWidgetValue publishes a live (non-retained) telemetry update
// for the stream at pin, if that stream's name is one of the
// WIDGET_MAPPINGS. Unmapped pins are silently ignored — the bridge has
// no entity for them. Returns the mapping's widget name and whether a
// publish occurred, so the bridge can update deviceStatus when it was
// a Status update.
func (p *Publisher) PublishWidgetValue(deviceID string, reg registry.Registry, pin, value string) (name string, published bool, err error) {
	stream, ok := reg.ByPin[pin]
	if !ok {
		return "", false, nil
	}
	m, ok := p.byName[stream.Name]
	if !ok {
		return stream.Name, false, nil
	}

	entityID := EntityID(m)
	publishedValue := value
	if m.Name == "Status" {
		publishedValue = StatusLabel(value)
	}
	if err := p.mqtt.Publish(p.topics.State(deviceID, entityID), []byte(publishedValue), 0, false); err != nil {
		return m.Name, false, err
	}

	if m.Name == "Status" {
		if err := p.mqtt.Publish(p.topics.State(deviceID, entityCharging), []byte(ChargingSwitchState(value)), 0, false); err != nil {
			return m.Name, true, err
		}
	}
	return m.Name, true, nil
}

// PublishCommandEcho publishes an optimistic, non-retained state
// update for the entity mapped to pin, ahead of the vendor's own
// widget-update echo.
func (p *Publisher) PublishCommandEcho(deviceID string, reg registry.Registry, pin, value string) error {
	stream, ok := reg.ByPin[pin]
	if !ok {
		return nil
	}
	m, ok := p.byName[stream.Name]
	if !ok {
		return nil
	}
	return p.mqtt.Publish(p.topics.State(deviceID, EntityID(m)), []byte(value), 0, false)
}

// RemoveDevice publishes an empty retained payload to every discovery
// topic this bridge could ever have published for the device,
// including the legacy pre-switch binary_sensor Charging path, per
// spec.md §4.4's Retain policy.
func (p *Publisher) RemoveDevice(deviceID string, reg registry.Registry) error {
	for _, t := range p.targets(reg) {
		topic := p.topics.Discovery(t.component, deviceID, t.entityID)
		if err := p.mqtt.Publish(topic, nil, 0, true); err != nil {
			return err
		}
	}
	legacyChargingTopic := p.topics.Discovery(componentBinarySensor, deviceID, entityCharging)
	return p.mqtt.Publish(legacyChargingTopic, nil, 0, true)
}

func (p *Publisher) publishJSON(topic string, doc any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("discovery: marshal %s: %w", topic, err)
	}
	return p.mqtt.Publish(topic, payload, 0, true)
}

func parsePositiveFloat(s string) (float64, error) {
	var f float64
	if _, err := fmt.Sscanf(s, "%g", &f); err != nil {
		return 0, err
	}
	if f <= 0 {
		return 0, fmt.Errorf("discovery: non-positive value %q", s)
	}
	return f, nil
}
