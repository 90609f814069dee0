// Package irqtest provides an in-memory irq.Gate for tests that drive the
// scheduler by hand instead of through a platform port.
package irqtest

import "mios/internal/irq"

// Gate records the mask level and reschedule requests. Requests are never
// acted on; the test decides when to switch.
type Gate struct {
	Mask       irq.Level
	Reschedule int // number of RequestReschedule calls not yet consumed
	MaxMask    irq.Level
}

func (g *Gate) Raise(level irq.Level) irq.Level {
	prev := g.Mask
	if level > g.Mask {
		g.Mask = level
	}
	if g.Mask > g.MaxMask {
		g.MaxMask = g.Mask
	}
	return prev
}

func (g *Gate) Restore(prev irq.Level) { g.Mask = prev }

func (g *Gate) Lower() irq.Level {
	prev := g.Mask
	g.Mask = irq.LevelNone
	return prev
}

func (g *Gate) RequestReschedule() { g.Reschedule++ }

// TakeReschedule reports whether a reschedule was requested and clears it.
func (g *Gate) TakeReschedule() bool {
	pending := g.Reschedule > 0
	g.Reschedule = 0
	return pending
}
