// Package sensor samples the four presence inputs of the facility once per
// control cycle. Inputs are active-low: an object in front of a sensor
// pulls its line to [hw.Low].
package sensor

import "github.com/nugget/smartpark/internal/hw"

// Pins maps each presence sensor to its input line.
type Pins struct {
	Entry int
	Exit  int
	Slot1 int
	Slot2 int
}

// Reading is one snapshot of the raw input levels.
type Reading struct {
	Entry hw.Level
	Exit  hw.Level
	Slot1 hw.Level
	Slot2 hw.Level
}

// Present reports whether a raw level means an object is detected.
func Present(l hw.Level) bool { return l == hw.Low }

// EntryPresent reports whether the entry sensor detects a vehicle.
func (r Reading) EntryPresent() bool { return Present(r.Entry) }

// ExitPresent reports whether the exit sensor detects a vehicle.
func (r Reading) ExitPresent() bool { return Present(r.Exit) }

// Slot1Present reports whether slot 1 is occupied.
func (r Reading) Slot1Present() bool { return Present(r.Slot1) }

// Slot2Present reports whether slot 2 is occupied.
func (r Reading) Slot2Present() bool { return Present(r.Slot2) }

// Sampler reads the four inputs. It holds no state between calls.
type Sampler struct {
	io   hw.DigitalIO
	pins Pins
}

// NewSampler returns a Sampler reading pins from io.
func NewSampler(io hw.DigitalIO, pins Pins) *Sampler {
	return &Sampler{io: io, pins: pins}
}

// Sample reads every input exactly once.
func (s *Sampler) Sample() Reading {
	return Reading{
		Entry: s.io.Read(s.pins.Entry),
		Exit:  s.io.Read(s.pins.Exit),
		Slot1: s.io.Read(s.pins.Slot1),
		Slot2: s.io.Read(s.pins.Slot2),
	}
}
