// Package telemetry encodes slot occupancy transitions into the status
// topic schema and publishes them, best effort and at most once, over the
// broker session.
package telemetry

// Phase says whether a vehicle arrived at or left a slot.
type Phase string

// Phases.
const (
	PhaseEntry Phase = "entry"
	PhaseExit  Phase = "exit"
)

// Event is an occupancy transition of one slot. It is built at the moment
// of the transition, published once, and discarded.
type Event struct {
	SlotID    string
	VehicleID string
	Phase     Phase
	Occupied  bool
	// Timestamp is in seconds since the Unix epoch.
	Timestamp int64
}
