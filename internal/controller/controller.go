// Package controller runs the fixed-order control cycle that ties the
// sensors, gates, slots and broker session together.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nugget/smartpark/internal/clock"
	"github.com/nugget/smartpark/internal/config"
	"github.com/nugget/smartpark/internal/gate"
	"github.com/nugget/smartpark/internal/sensor"
	"github.com/nugget/smartpark/internal/slot"
	"github.com/nugget/smartpark/internal/telemetry"
)

// DefaultCycle is the idle delay between control cycles.
const DefaultCycle = 200 * time.Millisecond

// Session is the broker session as seen by the control cycle.
type Session interface {
	telemetry.Session
	// Ensure blocks until the session is active or ctx is cancelled.
	Ensure(ctx context.Context) error
	// Poll dispatches inbound messages on the calling goroutine.
	Poll()
}

// Parts are the components one controller drives.
type Parts struct {
	Session   Session
	Sampler   *sensor.Sampler
	Debouncer *sensor.Debouncer
	Entry     *gate.Actuator
	Exit      *gate.Actuator
	Slots     []*slot.Monitor
	Publisher *telemetry.Publisher
}

// Stats counts cycles and publish outcomes since start.
type Stats struct {
	Cycles  int64 `json:"cycles"`
	Sent    int64 `json:"sent"`
	Dropped int64 `json:"dropped_not_connected"`
	Failed  int64 `json:"failed"`
}

// Controller runs the control cycle on a single goroutine.
type Controller struct {
	parts  Parts
	clock  clock.Clock
	cycle  time.Duration
	logger *slog.Logger

	cycles, sent, dropped, failed atomic.Int64
}

// New returns a Controller. A nil Debouncer passes readings through; a
// zero cycle uses [DefaultCycle].
func New(parts Parts, clk clock.Clock, cycle time.Duration, logger *slog.Logger) *Controller {
	if parts.Debouncer == nil {
		parts.Debouncer = sensor.NewDebouncer(1)
	}
	if clk == nil {
		clk = clock.System{}
	}
	if cycle <= 0 {
		cycle = DefaultCycle
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{parts: parts, clock: clk, cycle: cycle, logger: logger}
}

// Step runs one control cycle: make sure the session is up, dispatch
// inbound commands, take one sensor snapshot, update both gates, update
// each slot and publish its event. It returns an error only when ctx is
// cancelled while reconnecting.
func (c *Controller) Step(ctx context.Context) error {
	p := c.parts

	if err := p.Session.Ensure(ctx); err != nil {
		return err
	}
	p.Session.Poll()

	r := p.Debouncer.Filter(p.Sampler.Sample())
	c.logger.Log(ctx, config.LevelTrace, "sensor snapshot",
		"entry", r.Entry, "exit", r.Exit, "slot1", r.Slot1, "slot2", r.Slot2)

	p.Entry.Update(r.EntryPresent())
	p.Exit.Update(r.ExitPresent())

	now := c.clock.Now().Unix()
	present := []bool{r.Slot1Present(), r.Slot2Present()}
	for i, m := range p.Slots {
		if i >= len(present) {
			break
		}
		ev, changed := m.Update(present[i], now)
		if !changed {
			continue
		}
		switch p.Publisher.Publish(ctx, ev) {
		case telemetry.Sent:
			c.sent.Add(1)
		case telemetry.DroppedNotConnected:
			c.dropped.Add(1)
		case telemetry.Failed:
			c.failed.Add(1)
		}
	}

	c.cycles.Add(1)
	return nil
}

// Run repeats Step with the cycle delay between iterations until ctx is
// cancelled. It returns nil on cancellation.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("control loop started", "cycle", c.cycle.String())
	defer func() {
		st := c.Stats()
		c.logger.Info("control loop stopped",
			"cycles", st.Cycles,
			"sent", st.Sent,
			"dropped", st.Dropped,
			"failed", st.Failed,
		)
	}()

	for {
		if err := c.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.clock.Sleep(ctx, c.cycle); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// Stats returns the cycle and publish counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Cycles:  c.cycles.Load(),
		Sent:    c.sent.Load(),
		Dropped: c.dropped.Load(),
		Failed:  c.failed.Load(),
	}
}
