// internal/timer/timer.go

package timer

import (
	"github.com/emirpasic/gods/trees/redblacktree"

	"mios/internal/irq"
)

// Timer is a one-shot countdown. It fires at most once per Arm.
type Timer struct {
	fn       func()
	deadline uint64
	seq      uint64
	armed    bool
}

// New creates a disarmed timer that calls fn when it fires.
// fn runs in interrupt context at irq.LevelClock.
func New(fn func()) *Timer {
	return &Timer{fn: fn}
}

// Armed reports whether the timer is waiting to fire.
func (t *Timer) Armed() bool { return t.armed }

// Wheel keeps the tick count and the armed timers ordered by deadline.
type Wheel struct {
	gate irq.Gate
	now  uint64
	seq  uint64
	rbt  *redblacktree.Tree // armed timers ordered by deadline, then arm order
}

// NewWheel creates an empty wheel whose state is guarded by g at irq.LevelClock.
func NewWheel(g irq.Gate) *Wheel {
	return &Wheel{
		gate: g,
		rbt:  redblacktree.NewWith(cmp),
	}
}

// Now returns the number of ticks seen so far.
func (w *Wheel) Now() uint64 {
	s := w.gate.Raise(irq.LevelClock)
	now := w.now
	w.gate.Restore(s)
	return now
}

// Pending returns the number of armed timers.
func (w *Wheel) Pending() int {
	s := w.gate.Raise(irq.LevelClock)
	n := w.rbt.Size()
	w.gate.Restore(s)
	return n
}

// Arm schedules t to fire after ticks ticks; values below one fire on the
// next tick. Arming an armed timer moves its deadline.
func (w *Wheel) Arm(t *Timer, ticks int) {
	if ticks < 1 {
		ticks = 1
	}
	s := w.gate.Raise(irq.LevelClock)
	if t.armed {
		w.rbt.Remove(nodeKey{t.deadline, t.seq})
	}
	w.seq++
	t.deadline = w.now + uint64(ticks)
	t.seq = w.seq
	t.armed = true
	w.rbt.Put(nodeKey{t.deadline, t.seq}, t)
	w.gate.Restore(s)
}

// Disarm cancels t. It has no effect if t already fired or was never armed.
func (w *Wheel) Disarm(t *Timer) {
	s := w.gate.Raise(irq.LevelClock)
	if t.armed {
		w.rbt.Remove(nodeKey{t.deadline, t.seq})
		t.armed = false
	}
	w.gate.Restore(s)
}

// Tick advances time by one tick and fires every timer that became due.
// It is called from the clock interrupt.
func (w *Wheel) Tick() {
	s := w.gate.Raise(irq.LevelClock)
	w.now++
	w.gate.Restore(s)

	for {
		s = w.gate.Raise(irq.LevelClock)
		node := w.rbt.Left()
		if node == nil || node.Key.(nodeKey).deadline > w.now {
			w.gate.Restore(s)
			return
		}
		t := node.Value.(*Timer)
		w.rbt.Remove(node.Key)
		t.armed = false
		w.gate.Restore(s)

		if t.fn != nil {
			t.fn()
		}
	}
}

// nodeKey is used as a key in the red-black tree.
type nodeKey struct {
	deadline uint64
	seq      uint64
}

// cmp orders timers by deadline, then by the order they were armed.
func cmp(a, b any) int {
	ka, kb := a.(nodeKey), b.(nodeKey)
	switch {
	case ka.deadline < kb.deadline:
		return -1
	case ka.deadline > kb.deadline:
		return 1
	case ka.seq < kb.seq:
		return -1
	case ka.seq > kb.seq:
		return 1
	default:
		return 0
	}
}
