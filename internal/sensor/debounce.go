package sensor

import "github.com/nugget/smartpark/internal/hw"

// Debouncer accepts a level change on a channel only after it has been
// seen on n consecutive samples. With n <= 1 every sample passes through
// unchanged, so a single noisy reading is still treated as an edge.
//
// The first sample on each channel is accepted immediately as the
// baseline.
type Debouncer struct {
	n                         int
	entry, exit, slot1, slot2 channel
}

type channel struct {
	baselined bool
	stable    hw.Level
	pending   hw.Level
	count     int
}

// NewDebouncer returns a filter requiring n identical samples.
func NewDebouncer(n int) *Debouncer {
	return &Debouncer{n: n}
}

// Filter returns the debounced view of r.
func (d *Debouncer) Filter(r Reading) Reading {
	if d.n <= 1 {
		return r
	}
	return Reading{
		Entry: d.entry.update(r.Entry, d.n),
		Exit:  d.exit.update(r.Exit, d.n),
		Slot1: d.slot1.update(r.Slot1, d.n),
		Slot2: d.slot2.update(r.Slot2, d.n),
	}
}

func (c *channel) update(l hw.Level, n int) hw.Level {
	if !c.baselined {
		c.baselined = true
		c.stable = l
		return l
	}
	if l == c.stable {
		c.count = 0
		return c.stable
	}
	if c.count == 0 || l != c.pending {
		c.pending = l
		c.count = 1
	} else {
		c.count++
	}
	if c.count >= n {
		c.stable = l
		c.count = 0
	}
	return c.stable
}
