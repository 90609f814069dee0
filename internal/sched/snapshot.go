package sched

import (
	"golang.org/x/exp/slices"

	"mios/internal/irq"
)

// TaskInfo describes one task at the time of a snapshot.
type TaskInfo struct {
	ID        TaskID
	Name      string
	State     State
	Queue     string // name of the queue the task is linked on, empty if none
	WaitingOn int    // ID of the mutex the task is blocked on, 0 if none
	StackSize int
	Guard     bool // stack guard intact
	Switches  uint64
}

// MutexInfo describes one mutex at the time of a snapshot.
type MutexInfo struct {
	ID      int
	Name    string
	Owned   bool
	Owner   TaskID
	Waiters []TaskID
}

// Snapshot is a consistent copy of the scheduler state for diagnostics.
type Snapshot struct {
	Tick      uint64
	Current   TaskID
	Ready     []TaskID
	Tasks     []TaskInfo
	Mutexes   []MutexInfo
	Switches  uint64
	StackUsed int
	Dropped   uint64
}

// Snapshot copies the scheduler state inside a scheduling critical section.
func (k *Kernel) Snapshot() Snapshot {
	s := k.plat.Raise(irq.LevelSched)
	defer k.plat.Restore(s)

	snap := Snapshot{
		Tick:      k.timers.Now(),
		Current:   k.cur.ID,
		Ready:     k.ready.ids(),
		Switches:  k.switches,
		StackUsed: k.stackUsed,
		Dropped:   k.dropped,
	}

	all := append([]*Task{k.idle}, k.tasks...)
	for _, t := range all {
		ti := TaskInfo{
			ID:        t.ID,
			Name:      t.Name,
			State:     t.state,
			StackSize: len(t.stack),
			Guard:     t.GuardIntact(),
			Switches:  t.switches,
		}
		if t.queue != nil {
			ti.Queue = t.queue.Name()
		}
		if t.waitingOn != nil && t.state == Sleeping {
			ti.WaitingOn = t.waitingOn.id
		}
		snap.Tasks = append(snap.Tasks, ti)
	}

	for _, m := range k.mutexes {
		mi := MutexInfo{
			ID:      m.id,
			Name:    m.name,
			Waiters: m.waiters.ids(),
		}
		if m.owner != nil {
			mi.Owned = true
			mi.Owner = m.owner.ID
		}
		snap.Mutexes = append(snap.Mutexes, mi)
	}
	return snap
}

// Task returns the info for id.
func (s Snapshot) Task(id TaskID) (TaskInfo, bool) {
	i := slices.IndexFunc(s.Tasks, func(t TaskInfo) bool { return t.ID == id })
	if i < 0 {
		return TaskInfo{}, false
	}
	return s.Tasks[i], true
}

// IsReady reports whether id is on the ready queue.
func (s Snapshot) IsReady(id TaskID) bool {
	return slices.Contains(s.Ready, id)
}
