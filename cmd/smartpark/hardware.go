package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/nugget/smartpark/internal/command"
	"github.com/nugget/smartpark/internal/config"
	"github.com/nugget/smartpark/internal/hw"
)

// hardware is the opened I/O for one controller.
type hardware struct {
	io          hw.DigitalIO
	entry, exit hw.Actuator
	closers     []io.Closer
	// sim is set for the sim driver so commands can move its inputs.
	sim *hw.SimIO
}

// Close releases every opened device.
func (h *hardware) Close() error {
	var errs []error
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openHardware opens the configured driver. On failure anything already
// opened is closed.
func openHardware(cfg config.HardwareConfig, logger *slog.Logger) (*hardware, error) {
	switch cfg.Driver {
	case config.DriverSim:
		logger.Warn("using simulated hardware, no gates will move; " +
			`publish {"message":"sim <entry|exit|slot1|slot2> <present|clear>"} on the command topic to change inputs`)
		sim := hw.NewSimIO()
		return &hardware{
			io:    sim,
			entry: &hw.SimServo{},
			exit:  &hw.SimServo{},
			sim:   sim,
		}, nil

	case config.DriverGPIOCdev:
		h := &hardware{}
		chip, err := hw.OpenChip(hw.ChipConfig{
			Chip:    cfg.GPIOChip,
			Inputs:  []int{cfg.EntrySensorPin, cfg.ExitSensorPin, cfg.Slot1SensorPin, cfg.Slot2SensorPin},
			Outputs: []int{cfg.Slot1LEDPin, cfg.Slot2LEDPin},
			PullUp:  cfg.PullUp,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("open gpio: %w", err)
		}
		h.io = chip
		h.closers = append(h.closers, chip)

		entry, err := hw.OpenSysfsServo(cfg.PWMChip, cfg.EntryServoPWM, logger)
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("open entry servo: %w", err)
		}
		h.entry = entry
		h.closers = append(h.closers, entry)

		exit, err := hw.OpenSysfsServo(cfg.PWMChip, cfg.ExitServoPWM, logger)
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("open exit servo: %w", err)
		}
		h.exit = exit
		h.closers = append(h.closers, exit)

		logger.Info("hardware opened", "gpio_chip", cfg.GPIOChip, "pwm_chip", cfg.PWMChip)
		return h, nil

	default:
		return nil, fmt.Errorf("unknown hardware driver %q", cfg.Driver)
	}
}

// simInputs moves simulated sensors on commands of the form
// "sim <sensor> <present|clear>". Every other command goes to next.
type simInputs struct {
	io     *hw.SimIO
	pins   map[string]int
	next   command.Handler
	logger *slog.Logger
}

func newSimInputs(io *hw.SimIO, cfg config.HardwareConfig, next command.Handler, logger *slog.Logger) *simInputs {
	return &simInputs{
		io: io,
		pins: map[string]int{
			"entry": cfg.EntrySensorPin,
			"exit":  cfg.ExitSensorPin,
			"slot1": cfg.Slot1SensorPin,
			"slot2": cfg.Slot2SensorPin,
		},
		next:   next,
		logger: logger,
	}
}

// HandleCommand implements [command.Handler].
func (s *simInputs) HandleCommand(cmd string) {
	fields := strings.Fields(cmd)
	if len(fields) == 0 || fields[0] != "sim" {
		s.next.HandleCommand(cmd)
		return
	}
	if len(fields) != 3 {
		s.logger.Warn("malformed sim command", "command", cmd)
		return
	}

	pin, ok := s.pins[fields[1]]
	if !ok {
		s.logger.Warn("unknown sim sensor", "sensor", fields[1])
		return
	}
	// Sensors are active-low.
	switch fields[2] {
	case "present":
		s.io.Set(pin, hw.Low)
	case "clear":
		s.io.Set(pin, hw.High)
	default:
		s.logger.Warn("unknown sim sensor state", "state", fields[2])
		return
	}
	s.logger.Info("sim input changed", "sensor", fields[1], "state", fields[2])
}
