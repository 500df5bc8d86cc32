// Package hw defines the digital I/O and actuator collaborators the
// controller drives, with a Linux GPIO character-device implementation,
// a sysfs PWM servo, and simulated parts for bench runs and tests.
package hw

import "errors"

// Level is a raw digital line level.
type Level bool

// Line levels.
const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// DigitalIO reads and writes GPIO lines by number. Reads are assumed to
// succeed; implementations log I/O failures and report [High], the idle
// level of the active-low presence sensors.
type DigitalIO interface {
	Read(pin int) Level
	Write(pin int, level Level)
}

// Actuator positions a gate barrier.
type Actuator interface {
	SetAngle(deg int)
}

// ErrUnknownPin is returned when a pin was not requested at construction.
var ErrUnknownPin = errors.New("unknown pin")
