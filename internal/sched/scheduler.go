// internal/sched/scheduler.go

package sched

import (
	"mios/internal/cpu"
	"mios/internal/evlog"
	"mios/internal/fault"
	"mios/internal/irq"
	"mios/internal/timer"
)

// Platform is what the kernel needs from the port it runs on.
type Platform interface {
	irq.Gate
	cpu.Bootstrap

	// InInterrupt reports whether the caller runs in interrupt context.
	InInterrupt() bool

	// WaitForInterrupt idles the core until at least one interrupt was taken.
	WaitForInterrupt()
}

// Kernel is the scheduler state of one core: the ready queue, the current
// task and the idle task. Every mutation happens inside a critical section
// at irq.LevelSched; there is no lock besides the interrupt mask.
type Kernel struct {
	cfg    Config
	plat   Platform
	log    *evlog.Logger
	timers *timer.Wheel

	ready Queue
	idle  *Task
	cur   *Task

	tasks     []*Task
	mutexes   []*Mutex
	nextID    TaskID
	stackUsed int
	switches  uint64

	events  chan Event
	dropped uint64
}

// New creates the scheduler state for one core. The caller's context becomes
// the idle task: it is current until the first switch, and it is selected
// whenever the ready queue is empty.
func New(cfg Config, p Platform) *Kernel {
	cfg = cfg.sanitize()
	k := &Kernel{
		cfg:    cfg,
		plat:   p,
		log:    evlog.Default(),
		timers: timer.NewWheel(p),
		ready:  *NewQueue("ready"),
	}
	k.idle = &Task{ID: 0, Name: "idle", state: Zombie}
	k.cur = k.idle
	if cfg.TraceBuffer > 0 {
		k.events = make(chan Event, cfg.TraceBuffer)
	}
	return k
}

// SetLogger replaces the logger used for task lifecycle messages.
func (k *Kernel) SetLogger(l *evlog.Logger) {
	if l != nil {
		k.log = l
	}
}

// Config returns the effective configuration.
func (k *Kernel) Config() Config { return k.cfg }

// Events exposes the read-only event stream (nil when tracing is off).
func (k *Kernel) Events() <-chan Event { return k.events }

// Dropped returns the number of events lost because the stream was full.
func (k *Kernel) Dropped() uint64 { return k.dropped }

// Current returns the task executing now.
func (k *Kernel) Current() *Task { return k.cur }

// Idle returns the idle task.
func (k *Kernel) Idle() *Task { return k.idle }

// Timers returns the timer wheel driven by Tick.
func (k *Kernel) Timers() *timer.Wheel { return k.timers }

// Now returns the current tick.
func (k *Kernel) Now() uint64 { return k.timers.Now() }

// Tick is the clock interrupt handler.
func (k *Kernel) Tick() { k.timers.Tick() }

// Switch is called from the switch trap with the saved context of the task
// being interrupted and returns the context to resume.
//
// The interrupted task goes to the tail of the ready queue if it is still
// running, which gives round-robin order. The head of the ready queue is
// selected, or the idle task when the queue is empty.
func (k *Kernel) Switch(sp cpu.Context) cpu.Context {
	cur := k.cur
	cur.ctx = sp

	s := k.plat.Raise(irq.LevelSched)

	if k.cfg.CheckGuard && !cur.GuardIntact() {
		fault.Halt(fault.Taskf(cur.Name, "stack overflow, guard at %p clobbered", &cur.stack[0]))
	}

	// An interrupt taken between Sleep and this trap may already have
	// woken cur and linked it on the ready queue.
	if cur.state == Running && cur.queue == nil {
		k.ready.push(cur)
	}

	t := k.ready.pop()
	if t == nil {
		t = k.idle
	}
	t.switches++
	k.switches++
	if t != cur {
		if t == k.idle {
			k.emit(EventIdle, t)
		} else {
			k.emit(EventDispatch, t)
		}
	}

	k.plat.Restore(s)

	k.cur = t
	return t.ctx
}

// Yield puts the current task at the tail of the ready queue and lets the
// tasks ahead of it run.
func (k *Kernel) Yield() {
	k.plat.RequestReschedule()
	k.plat.Restore(k.plat.Lower())
}

// assertCanBlock halts if the caller cannot be suspended.
func (k *Kernel) assertCanBlock(op string) {
	if k.plat.InInterrupt() {
		fault.Halt(fault.Taskf(k.cur.Name, "%s called from interrupt context", op))
	}
	if k.cur == k.idle {
		fault.Halt(fault.Taskf(k.cur.Name, "%s called from the idle task", op))
	}
}
