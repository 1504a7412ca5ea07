package discovery

// statusLabels translates the raw Status stream value into the
// human-readable string published to the status/state topic, per
// spec.md §4.4.
var statusLabels = map[string]string{
	"0": "unplugged",
	"1": "plugged",
	"2": "charging",
	"3": "stopped",
}

// chargingRaw is the raw Status value that means "charging", mirrored
// onto the charging/state switch topic.
const chargingRaw = "2"

// StatusLabel returns the human-readable label for a raw Status value,
// or the raw value itself if it isn't one of the four known codes.
func StatusLabel(raw string) string {
	if label, ok := statusLabels[raw]; ok {
		return label
	}
	return raw
}

// ChargingSwitchState returns "ON" if raw Status denotes an active
// charging session, else "OFF".
func ChargingSwitchState(raw string) string {
	if raw == chargingRaw {
		return payloadOn
	}
	return payloadOff
}
