package irq

import (
	"sync"

	"mios/internal/fault"
)

// Handler services one interrupt.
type Handler func()

type entry struct {
	fn    Handler
	level Level
}

// Vector maps interrupt numbers to handlers and their priority.
// Numbers without a handler are spurious: dispatching one halts the system.
type Vector struct {
	mu      sync.Mutex
	entries []entry
}

// NewVector creates a table for interrupt numbers [0, n).
func NewVector(n int) *Vector {
	return &Vector{entries: make([]entry, n)}
}

// Len returns the number of interrupt numbers in the table.
func (v *Vector) Len() int { return len(v.entries) }

// Enable installs fn for irq at the given level.
func (v *Vector) Enable(irq int, level Level, fn Handler) {
	v.check(irq)
	v.mu.Lock()
	v.entries[irq] = entry{fn: fn, level: level}
	v.mu.Unlock()
}

// Disable removes the handler for irq.
func (v *Vector) Disable(irq int) {
	v.check(irq)
	v.mu.Lock()
	v.entries[irq] = entry{}
	v.mu.Unlock()
}

// Level returns the priority of irq and whether a handler is installed.
func (v *Vector) Level(irq int) (Level, bool) {
	if irq < 0 || irq >= len(v.entries) {
		return LevelNone, false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	e := v.entries[irq]
	return e.level, e.fn != nil
}

// Dispatch runs the handler for irq on the caller's stack.
func (v *Vector) Dispatch(irq int) {
	v.check(irq)
	v.mu.Lock()
	fn := v.entries[irq].fn
	v.mu.Unlock()
	if fn == nil {
		fault.Halt(fault.IRQf(irq, "spurious irq %d", irq))
	}
	fn()
}

func (v *Vector) check(irq int) {
	if irq < 0 || irq >= len(v.entries) {
		fault.Halt(fault.IRQf(irq, "irq %d out of range [0, %d)", irq, len(v.entries)))
	}
}
