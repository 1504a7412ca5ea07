package discovery

import (
	_ "embed"

	"gopkg.in/yaml.v3"
)

//go:embed mappings.yaml
var embeddedMappings []byte

// WidgetMapping declares how one vendor stream name translates into a
// Home Assistant sensor (and, if Controllable, a number entity plus a
// command topic).
type WidgetMapping struct {
	Name         string `yaml:"name"`
	TopicID      string `yaml:"topic_id"`
	Unit         string `yaml:"unit"`
	DeviceClass  string `yaml:"device_class"`
	StateClass   string `yaml:"state_class"`
	Controllable bool   `yaml:"controllable"`
}

type mappingsDocument struct {
	WidgetMappings []WidgetMapping `yaml:"widget_mappings"`
}

// defaultMappings is used only if the embedded YAML asset fails to
// parse, which can only happen from a corrupt build artifact, not a
// runtime condition.
var defaultMappings = []WidgetMapping{
	{Name: "Status", TopicID: "status"},
	{Name: "Current", TopicID: "current", Unit: "A", DeviceClass: "current", Controllable: true},
	{Name: "Current max", TopicID: "current_max", Unit: "A", DeviceClass: "current"},
	{Name: "Voltage", TopicID: "voltage", Unit: "V", DeviceClass: "voltage"},
	{Name: "Power", TopicID: "power", Unit: "W", DeviceClass: "power"},
	{Name: "Energy", TopicID: "energy", Unit: "kWh", DeviceClass: "energy", StateClass: "total_increasing"},
	{Name: "Temperature", TopicID: "temperature", Unit: "°C", DeviceClass: "temperature"},
}

// LoadMappings parses the embedded WIDGET_MAPPINGS/CONTROLLABLE_WIDGETS
// table, falling back to defaultMappings if the asset is unparsable.
func LoadMappings() []WidgetMapping {
	var doc mappingsDocument
	if err := yaml.Unmarshal(embeddedMappings, &doc); err != nil || len(doc.WidgetMappings) == 0 {
		return defaultMappings
	}
	return doc.WidgetMappings
}

// mappingIndex is a by-name lookup over a mapping table.
type mappingIndex map[string]WidgetMapping

func indexMappings(mappings []WidgetMapping) mappingIndex {
	idx := make(mappingIndex, len(mappings))
	for _, m := range mappings {
		idx[m.Name] = m
	}
	return idx
}
