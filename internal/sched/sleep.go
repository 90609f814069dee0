package sched

import (
	"errors"

	"mios/internal/fault"
	"mios/internal/irq"
	"mios/internal/timer"
)

// ErrTimedOut is returned by Sleep when the timeout woke the task.
var ErrTimedOut = errors.New("sleep timed out")

type sleeper struct {
	task     *Task
	queue    *Queue
	timedOut bool
}

// Sleep blocks the current task on q until Wakeup releases it or, when
// ticks > 0, until ticks clock ticks have elapsed, whichever comes first.
// q may be nil to sleep on the timeout alone. With a nil q and no timeout
// the task never wakes.
//
// Sleep may be called inside a scheduling critical section; the mask is
// opened while waiting and restored before returning.
func (k *Kernel) Sleep(q *Queue, ticks int) error {
	k.assertCanBlock("sleep")

	s := k.plat.Raise(irq.LevelSched)
	cur := k.cur
	if cur.state != Running {
		fault.Halt(fault.Taskf(cur.Name, "sleep in state %s", cur.state))
	}
	cur.state = Sleeping
	k.emit(EventSleep, cur)

	var (
		sl sleeper
		tm *timer.Timer
	)
	if ticks > 0 {
		sl = sleeper{task: cur, queue: q}
		tm = timer.New(func() { k.sleepTimeout(&sl) })
		k.timers.Arm(tm, ticks)
	}

	if q != nil {
		q.push(cur)
	}

	for cur.state == Sleeping {
		k.plat.RequestReschedule()
		k.plat.Restore(k.plat.Lower())
	}

	if tm != nil {
		k.timers.Disarm(tm)
	}

	k.plat.Restore(s)

	if sl.timedOut {
		return ErrTimedOut
	}
	return nil
}

// Delay sleeps for ticks clock ticks.
func (k *Kernel) Delay(ticks int) {
	if ticks < 1 {
		k.Yield()
		return
	}
	_ = k.Sleep(nil, ticks)
}

// sleepTimeout runs from the clock interrupt. It only acts if the task is
// still sleeping; a task already released by Wakeup is left alone, so the
// first of the two to run wins and the other is a no-op.
func (k *Kernel) sleepTimeout(sl *sleeper) {
	s := k.plat.Raise(irq.LevelSched)

	t := sl.task
	if t.state == Sleeping {
		if sl.queue != nil {
			sl.queue.remove(t)
		}
		t.state = Running
		sl.timedOut = true
		k.ready.push(t)
		k.emit(EventTimeout, t)
		k.plat.RequestReschedule()
	}

	k.plat.Restore(s)
}

// Wakeup makes the longest waiting task on q runnable, or every task on q if
// all is set. It returns the number of tasks woken and may be called from
// interrupt context.
func (k *Kernel) Wakeup(q *Queue, all bool) int {
	s := k.plat.Raise(irq.LevelSched)

	n := 0
	for t := q.pop(); t != nil; t = q.pop() {
		if t.state != Sleeping {
			fault.Halt(fault.Taskf(t.Name, "woken from %s in state %s", q.Name(), t.state))
		}
		t.state = Running
		k.ready.push(t)
		k.emit(EventWakeup, t)
		k.plat.RequestReschedule()
		n++
		if !all {
			break
		}
	}

	k.plat.Restore(s)
	return n
}
