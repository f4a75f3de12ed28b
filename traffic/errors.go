package traffic

import "fmt"

// ConfigError reports a malformed scenario input: an unknown road/route/
// vType reference, an out-of-range lane index, or a starting offset outside
// a lane's length. Surfaced to the host at setup; never caught locally.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config error: %s", e.Reason) }

func newConfigError(format string, args ...any) error {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// NewConfigError is the exported constructor for callers outside this
// package (e.g. provider.AddVehicle) that need to report the same
// ConfigError kind.
func NewConfigError(format string, args ...any) error {
	return newConfigError(format, args...)
}

// OwnershipViolation reports stop_managing/update_route_for_vehicle called
// for an id the provider does not manage. Assertion-level: a caller bug,
// not a recoverable runtime condition.
type OwnershipViolation struct {
	VehicleID string
}

func (e *OwnershipViolation) Error() string {
	return fmt.Sprintf("ownership violation: vehicle %q is not managed by this provider", e.VehicleID)
}

// MapInconsistency, SpawnRejected, HandoffConflict, and RouteDeparture are
// not modeled as error values (§7): they are non-fatal, per-actor
// conditions logged through the package logger and reflected in actor
// flags (OffRoute, DoneWithRoute) rather than propagated to the caller.
