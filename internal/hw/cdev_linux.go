//go:build linux

package hw

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "smartpark"

// Chip is a DigitalIO backed by the Linux GPIO character device. Lines
// are requested once at construction and held until Close.
type Chip struct {
	lines  map[int]*gpiocdev.Line
	logger *slog.Logger
}

// ChipConfig names the chip and the lines to request.
type ChipConfig struct {
	Chip    string
	Inputs  []int
	Outputs []int
	// PullUp biases the input lines high.
	PullUp bool
}

// OpenChip requests the configured input and output lines. Outputs start
// low. On failure any lines already requested are released.
func OpenChip(cfg ChipConfig, logger *slog.Logger) (*Chip, error) {
	c := &Chip{lines: make(map[int]*gpiocdev.Line), logger: logger}

	inOpts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithConsumer(consumer)}
	if cfg.PullUp {
		inOpts = append(inOpts, gpiocdev.WithPullUp)
	}
	for _, pin := range cfg.Inputs {
		l, err := gpiocdev.RequestLine(cfg.Chip, pin, inOpts...)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("request input line %s:%d: %w", cfg.Chip, pin, err)
		}
		c.lines[pin] = l
	}
	for _, pin := range cfg.Outputs {
		l, err := gpiocdev.RequestLine(cfg.Chip, pin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer))
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("request output line %s:%d: %w", cfg.Chip, pin, err)
		}
		c.lines[pin] = l
	}
	return c, nil
}

// Read returns the line level, or High if the read fails.
func (c *Chip) Read(pin int) Level {
	l, ok := c.lines[pin]
	if !ok {
		c.logger.Error("gpio read failed", "pin", pin, "error", ErrUnknownPin)
		return High
	}
	v, err := l.Value()
	if err != nil {
		c.logger.Error("gpio read failed", "pin", pin, "error", err)
		return High
	}
	return v != 0
}

// Write drives the line to level.
func (c *Chip) Write(pin int, level Level) {
	l, ok := c.lines[pin]
	if !ok {
		c.logger.Error("gpio write failed", "pin", pin, "error", ErrUnknownPin)
		return
	}
	v := 0
	if level {
		v = 1
	}
	if err := l.SetValue(v); err != nil {
		c.logger.Error("gpio write failed", "pin", pin, "error", err)
	}
}

// Close releases every requested line.
func (c *Chip) Close() error {
	var errs []error
	for pin, l := range c.lines {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", pin, err))
		}
		delete(c.lines, pin)
	}
	return errors.Join(errs...)
}
