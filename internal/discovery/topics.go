package discovery

import (
	"fmt"
	"regexp"
	"strings"
)

// Topics builds the MQTT topic strings this bridge publishes to and
// subscribes on, per spec.md §4.4's topic shapes:
//
//	discovery := <discoveryPrefix>/<component>/eviqo_<deviceId>/<entityId>/config
//	state     := <topicPrefix>/<deviceId>/<entityId>/state
//	command   := <topicPrefix>/<deviceId>/<entityId>/set
//	status    := <topicPrefix>/<deviceId>/status
type Topics struct {
	TopicPrefix     string
	DiscoveryPrefix string
}

// Discovery returns the retained config topic for one entity.
func (t Topics) Discovery(component, deviceID, entityID string) string {
	return fmt.Sprintf("%s/%s/eviqo_%s/%s/config", t.DiscoveryPrefix, component, deviceID, entityID)
}

// State returns the non-command state topic for one entity.
func (t Topics) State(deviceID, entityID string) string {
	return fmt.Sprintf("%s/%s/%s/state", t.TopicPrefix, deviceID, entityID)
}

// Command returns the topic a switch or number entity's writes arrive on.
func (t Topics) Command(deviceID, entityID string) string {
	return fmt.Sprintf("%s/%s/%s/set", t.TopicPrefix, deviceID, entityID)
}

// Availability returns the per-device online/offline topic.
func (t Topics) Availability(deviceID string) string {
	return fmt.Sprintf("%s/%s/status", t.TopicPrefix, deviceID)
}

// nonAlnum matches runs of characters that are not ASCII letters or digits.
var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// EntityID returns the mapping's topic_id if declared, else the
// widget name lowercased with non-alphanumeric runs collapsed to a
// single underscore and trimmed of leading/trailing underscores.
func EntityID(m WidgetMapping) string {
	if m.TopicID != "" {
		return m.TopicID
	}
	slug := nonAlnum.ReplaceAllString(strings.ToLower(m.Name), "_")
	return strings.Trim(slug, "_")
}
