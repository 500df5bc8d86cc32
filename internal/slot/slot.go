// Package slot tracks occupancy of one parking slot and produces a
// telemetry event for every change.
package slot

import (
	"log/slog"

	"github.com/nugget/smartpark/internal/hw"
	"github.com/nugget/smartpark/internal/telemetry"
)

// Monitor is the edge-triggered Vacant/Occupied state machine for a slot.
// The indicator output is driven high while the slot is occupied.
type Monitor struct {
	id        string
	vehicleID string
	io        hw.DigitalIO
	indicator int
	occupied  bool
	logger    *slog.Logger
}

// Config identifies a slot and its indicator.
type Config struct {
	ID           string
	IndicatorPin int
	// VehicleID is reported with every event. Vehicles are not
	// identified; every arrival and departure carries this value.
	VehicleID string
}

// New returns a vacant slot with its indicator cleared.
func New(cfg Config, io hw.DigitalIO, logger *slog.Logger) *Monitor {
	m := &Monitor{
		id:        cfg.ID,
		vehicleID: cfg.VehicleID,
		io:        io,
		indicator: cfg.IndicatorPin,
		logger:    logger,
	}
	io.Write(cfg.IndicatorPin, hw.Low)
	return m
}

// ID returns the slot identifier.
func (m *Monitor) ID() string { return m.id }

// Occupied reports the current occupancy.
func (m *Monitor) Occupied() bool { return m.occupied }

// Update applies one sensor reading taken at now (Unix seconds). It
// returns an event and true exactly when occupancy changed.
func (m *Monitor) Update(present bool, now int64) (telemetry.Event, bool) {
	if present == m.occupied {
		return telemetry.Event{}, false
	}
	m.occupied = present

	phase := telemetry.PhaseExit
	level := hw.Low
	if present {
		phase = telemetry.PhaseEntry
		level = hw.High
	}
	m.io.Write(m.indicator, level)

	m.logger.Info("slot transition", "slot", m.id, "phase", phase, "occupied", present)
	return telemetry.Event{
		SlotID:    m.id,
		VehicleID: m.vehicleID,
		Phase:     phase,
		Occupied:  present,
		Timestamp: now,
	}, true
}
