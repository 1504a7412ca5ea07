package discovery

// DeviceInfo is the Home Assistant MQTT discovery "device" block shared
// by every entity belonging to one charger, so HA groups them together.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// SensorConfig is a Home Assistant MQTT sensor discovery document.
type SensorConfig struct {
	Name                string     `json:"name"`
	UniqueID            string     `json:"unique_id"`
	StateTopic          string     `json:"state_topic"`
	AvailabilityTopic   string     `json:"availability_topic"`
	PayloadAvailable    string     `json:"payload_available"`
	PayloadNotAvailable string     `json:"payload_not_available"`
	UnitOfMeasurement   string     `json:"unit_of_measurement,omitempty"`
	DeviceClass         string     `json:"device_class,omitempty"`
	StateClass          string     `json:"state_class,omitempty"`
	Device              DeviceInfo `json:"device"`
}

// BinarySensorConfig is a Home Assistant MQTT binary_sensor discovery document.
type BinarySensorConfig struct {
	Name                string     `json:"name"`
	UniqueID            string     `json:"unique_id"`
	StateTopic          string     `json:"state_topic"`
	AvailabilityTopic   string     `json:"availability_topic"`
	PayloadAvailable    string     `json:"payload_available"`
	PayloadNotAvailable string     `json:"payload_not_available"`
	PayloadOn           string     `json:"payload_on"`
	PayloadOff          string     `json:"payload_off"`
	DeviceClass         string     `json:"device_class,omitempty"`
	Device              DeviceInfo `json:"device"`
}

// SwitchConfig is a Home Assistant MQTT switch discovery document.
type SwitchConfig struct {
	Name                string     `json:"name"`
	UniqueID            string     `json:"unique_id"`
	StateTopic          string     `json:"state_topic"`
	CommandTopic        string     `json:"command_topic"`
	AvailabilityTopic   string     `json:"availability_topic"`
	PayloadAvailable    string     `json:"payload_available"`
	PayloadNotAvailable string     `json:"payload_not_available"`
	PayloadOn           string     `json:"payload_on"`
	PayloadOff          string     `json:"payload_off"`
	Device              DeviceInfo `json:"device"`
}

// NumberConfig is a Home Assistant MQTT number discovery document.
type NumberConfig struct {
	Name                string     `json:"name"`
	UniqueID            string     `json:"unique_id"`
	StateTopic          string     `json:"state_topic"`
	CommandTopic        string     `json:"command_topic"`
	AvailabilityTopic   string     `json:"availability_topic"`
	PayloadAvailable    string     `json:"payload_available"`
	PayloadNotAvailable string     `json:"payload_not_available"`
	Min                 float64    `json:"min"`
	Max                 float64    `json:"max"`
	Step                float64    `json:"step"`
	Mode                string     `json:"mode"`
	UnitOfMeasurement   string     `json:"unit_of_measurement,omitempty"`
	DeviceClass         string     `json:"device_class,omitempty"`
	Device              DeviceInfo `json:"device"`
}

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
	payloadOn      = "ON"
	payloadOff     = "OFF"

	// defaultCurrentMax is used when the device's own "Current max"
	// widget is absent or non-positive, per spec.md §4.4.
	defaultCurrentMax = 48
)

func deviceInfo(deviceID, name, productName, hwVersion string) DeviceInfo {
	return DeviceInfo{
		Identifiers:  []string{"eviqo_" + deviceID},
		Name:         name,
		Manufacturer: "eviqo",
		Model:        productName,
		SWVersion:    hwVersion,
	}
}
