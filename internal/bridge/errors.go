package bridge

import "errors"

// Sentinel errors, per spec.md §7. Use errors.Is to test for them.
var (
	// ErrMissingOptions is returned by New when a required collaborator
	// or credential is missing.
	ErrMissingOptions = errors.New("bridge: missing required option")

	// ErrCommandRejected is wrapped into the warning logged (never
	// returned to the caller, never surfaced to MQTT) when a
	// charging-switch command is refused by the current device status
	// guard.
	ErrCommandRejected = errors.New("bridge: command rejected")

	// ErrChargingPinUnavailable means the device's widget registry has
	// no stream at the empirical charging pin ("15"); per spec.md §9
	// the bridge refuses to subscribe the charging switch rather than
	// write to an unknown pin.
	ErrChargingPinUnavailable = errors.New("bridge: charging control pin not present on device")
)
