package sched

import (
	"sync"

	"mios/internal/fault"
	"mios/internal/irq"
)

// Mutex is a sleeping lock owned by at most one task.
//
// Unlock does not hand ownership to the waiter it wakes. The woken task
// competes for the mutex again when it next runs, so a task that was not
// waiting may take it first; the waiter then goes back to the tail of the
// waiter queue. Waiters are released in FIFO order.
type Mutex struct {
	k       *Kernel
	id      int
	name    string
	owner   *Task
	waiters Queue
}

var _ sync.Locker = (*Mutex)(nil)

// NewMutex creates an unowned mutex.
func (k *Kernel) NewMutex(name string) *Mutex {
	s := k.plat.Raise(irq.LevelSched)
	m := &Mutex{
		k:       k,
		id:      len(k.mutexes) + 1,
		name:    name,
		waiters: *NewQueue(name + ".waiters"),
	}
	k.mutexes = append(k.mutexes, m)
	k.plat.Restore(s)
	return m
}

// Name returns the diagnostic name of the mutex.
func (m *Mutex) Name() string { return m.name }

// Owner returns the owning task or nil.
func (m *Mutex) Owner() *Task { return m.owner }

// Waiters returns the number of blocked tasks.
func (m *Mutex) Waiters() int { return m.waiters.Len() }

// Lock takes the mutex, sleeping while another task owns it. Locking a mutex
// the caller already owns halts the system.
func (m *Mutex) Lock() {
	k := m.k
	s := k.plat.Raise(irq.LevelSched)

	cur := k.cur
	if m.owner == cur {
		fault.Halt(fault.Taskf(cur.Name, "recursive lock of mutex %s", m.name))
	}

	if m.owner != nil {
		k.assertCanBlock("lock")
		k.emit(EventContend, cur)
		for m.owner != nil {
			if cur.state == Running {
				cur.state = Sleeping
				cur.waitingOn = m
				m.waiters.push(cur)
			}
			k.plat.RequestReschedule()
			k.plat.Restore(k.plat.Lower())
		}
		cur.waitingOn = nil
	}

	m.owner = cur
	k.emit(EventLock, cur)
	k.plat.Restore(s)
}

// TryLock takes the mutex if it is free and reports whether it did.
func (m *Mutex) TryLock() bool {
	k := m.k
	s := k.plat.Raise(irq.LevelSched)
	defer k.plat.Restore(s)

	if m.owner != nil {
		return false
	}
	m.owner = k.cur
	k.emit(EventLock, k.cur)
	return true
}

// Unlock releases the mutex and makes the longest waiting task runnable.
// Unlocking a mutex the caller does not own halts the system.
func (m *Mutex) Unlock() {
	k := m.k
	s := k.plat.Raise(irq.LevelSched)

	cur := k.cur
	if m.owner != cur {
		owner := "nobody"
		if m.owner != nil {
			owner = m.owner.Name
		}
		fault.Halt(fault.Taskf(cur.Name, "unlock of mutex %s owned by %s", m.name, owner))
	}
	m.owner = nil
	k.emit(EventUnlock, cur)

	if t := m.waiters.pop(); t != nil {
		if t.state != Sleeping {
			fault.Halt(fault.Taskf(t.Name, "mutex %s waiter in state %s", m.name, t.state))
		}
		t.state = Running
		k.ready.push(t)
		k.emit(EventWakeup, t)
		k.plat.RequestReschedule()
	}

	k.plat.Restore(s)
}

// Cond is a condition variable over a kernel Mutex.
type Cond struct {
	L *Mutex
	q Queue
}

// NewCond creates a condition variable bound to m.
func (k *Kernel) NewCond(m *Mutex) *Cond {
	return &Cond{L: m, q: *NewQueue(m.name + ".cond")}
}

// Wait releases c.L, sleeps until signalled and takes c.L again. The unlock
// and the enqueue happen in one critical section, so a Signal issued after
// Wait released the mutex is never lost.
func (c *Cond) Wait() {
	_ = c.WaitTimeout(0)
}

// WaitTimeout is Wait with a timeout in ticks; ticks <= 0 waits forever.
// It returns ErrTimedOut if the timeout expired first. c.L is held again on
// return in both cases.
func (c *Cond) WaitTimeout(ticks int) error {
	k := c.L.k
	s := k.plat.Raise(irq.LevelSched)
	c.L.Unlock()
	err := k.Sleep(&c.q, ticks)
	c.L.Lock()
	k.plat.Restore(s)
	return err
}

// Signal wakes the longest waiting task.
func (c *Cond) Signal() { c.L.k.Wakeup(&c.q, false) }

// Broadcast wakes every waiting task.
func (c *Cond) Broadcast() { c.L.k.Wakeup(&c.q, true) }
