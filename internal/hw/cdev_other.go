//go:build !linux

package hw

import (
	"errors"
	"log/slog"
)

// ErrNoGPIO is returned by OpenChip on platforms without the Linux GPIO
// character device. Use the sim driver instead.
var ErrNoGPIO = errors.New("gpio character device requires linux")

// Chip is unavailable off Linux.
type Chip struct{}

// ChipConfig names the chip and the lines to request.
type ChipConfig struct {
	Chip    string
	Inputs  []int
	Outputs []int
	PullUp  bool
}

// OpenChip always fails off Linux.
func OpenChip(ChipConfig, *slog.Logger) (*Chip, error) { return nil, ErrNoGPIO }

func (*Chip) Read(int) Level   { return High }
func (*Chip) Write(int, Level) {}
func (*Chip) Close() error     { return nil }
