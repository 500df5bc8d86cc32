// Package gate drives a motorised barrier from its presence sensor.
//
// A gate opens when its sensor newly detects a vehicle and closes when
// the sensor clears. There is no auto-close timeout: a gate whose sensor
// never clears stays open. Edges are taken from the readings as given;
// filtering noise is the job of [sensor.Debouncer], not this package.
package gate

import (
	"log/slog"

	"github.com/nugget/smartpark/internal/hw"
)

// State is the barrier position.
type State int

// Gate states.
const (
	Closed State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "closed"
}

// Angles are the actuator positions for each state.
type Angles struct {
	Open   int
	Closed int
}

// Actuator is the edge-triggered open/close state machine for one gate.
type Actuator struct {
	id     string
	servo  hw.Actuator
	angles Angles
	state  State
	logger *slog.Logger
}

// New returns a closed gate and commands its actuator to the closed
// position.
func New(id string, servo hw.Actuator, angles Angles, logger *slog.Logger) *Actuator {
	a := &Actuator{
		id:     id,
		servo:  servo,
		angles: angles,
		state:  Closed,
		logger: logger,
	}
	servo.SetAngle(angles.Closed)
	return a
}

// ID returns the gate identifier.
func (a *Actuator) ID() string { return a.id }

// State returns the current barrier state.
func (a *Actuator) State() State { return a.state }

// Update applies one sensor reading. It returns the resulting state and
// whether a transition happened. Repeating the same reading never causes
// another transition.
func (a *Actuator) Update(present bool) (State, bool) {
	switch {
	case present && a.state == Closed:
		a.state = Open
		a.servo.SetAngle(a.angles.Open)
	case !present && a.state == Open:
		a.state = Closed
		a.servo.SetAngle(a.angles.Closed)
	default:
		return a.state, false
	}
	a.logger.Info("gate transition", "gate", a.id, "state", a.state)
	return a.state, true
}
