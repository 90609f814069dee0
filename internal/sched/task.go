package sched

import (
	"encoding/binary"
	"errors"
	"fmt"

	"mios/internal/cpu"
	"mios/internal/fault"
	"mios/internal/irq"
)

// TaskID identifies a task in diagnostics. The idle task is 0.
type TaskID uint32

// State is the scheduling state of a task.
type State uint8

const (
	// Running covers both the executing task and tasks on the ready queue.
	Running State = iota
	// Sleeping tasks are blocked on a wait queue, a timeout, or both.
	Sleeping
	// Zombie tasks returned from their entry function and are never scheduled again.
	Zombie
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Sleeping:
		return "sleeping"
	case Zombie:
		return "zombie"
	default:
		return "unknown"
	}
}

// StackGuard is written at the lowest address of every task stack.
const StackGuard = 0x0badc0de

// ErrNoMemory is returned by Create when the stack pool cannot hold the new stack.
var ErrNoMemory = errors.New("no memory for task stack")

// Task represents one schedulable unit with its own stack.
type Task struct {
	ID   TaskID
	Name string // diagnostic only, not unique

	state     State
	ctx       cpu.Context // saved while not executing
	stack     []byte      // nil for the idle task, which runs on the boot stack
	queue     *Queue      // ready queue or a wait queue, nil when unlinked
	waitingOn *Mutex      // mutex this task is blocked on
	switches  uint64      // times selected by Switch
}

// State returns the scheduling state. Only meaningful from kernel context.
func (t *Task) State() State { return t.state }

// StackSize returns the size of the task's stack in bytes.
func (t *Task) StackSize() int { return len(t.stack) }

// Switches returns how many times the task was selected to run.
func (t *Task) Switches() uint64 { return t.switches }

// GuardIntact reports whether the overflow canary is still in place.
func (t *Task) GuardIntact() bool {
	if len(t.stack) < 4 {
		return true
	}
	return binary.LittleEndian.Uint32(t.stack) == StackGuard
}

// Create allocates a task with a stack of stackSize bytes and makes it ready.
// The task runs entry(arg); when entry returns the task becomes a zombie.
// Create returns without waiting for the task to run.
//
// A stack below the configured minimum is a programming error and halts the
// system. An exhausted stack pool is reported as ErrNoMemory.
func (k *Kernel) Create(entry cpu.Entry, arg any, stackSize int, name string) (*Task, error) {
	if stackSize < k.cfg.MinStack {
		fault.Halt(fault.Taskf(name, "stack size %d below minimum %d", stackSize, k.cfg.MinStack))
	}

	s := k.plat.Raise(irq.LevelSched)
	if k.cfg.StackPool > 0 && k.stackUsed+stackSize > k.cfg.StackPool {
		used := k.stackUsed
		k.plat.Restore(s)
		return nil, fmt.Errorf("create %q (%d bytes, %d of %d in use): %w",
			name, stackSize, used, k.cfg.StackPool, ErrNoMemory)
	}
	k.stackUsed += stackSize
	k.nextID++
	t := &Task{
		ID:    k.nextID,
		Name:  name,
		state: Running,
		stack: make([]byte, stackSize),
	}
	k.plat.Restore(s)

	binary.LittleEndian.PutUint32(t.stack, StackGuard)
	t.ctx = k.plat.StackInit(t.stack, entry, arg, k.exit)

	k.log.Infof("Creating task %d %s", t.ID, name)

	s = k.plat.Raise(irq.LevelSched)
	k.tasks = append(k.tasks, t)
	k.ready.push(t)
	k.emit(EventCreate, t)
	k.plat.Restore(s)

	k.plat.RequestReschedule()
	return t, nil
}

// exit is where a task lands when its entry function returns. The task and
// its stack are never reclaimed.
func (k *Kernel) exit() {
	s := k.plat.Raise(irq.LevelSched)
	t := k.cur
	t.state = Zombie
	k.emit(EventExit, t)
	k.plat.Restore(s)

	k.log.Debugf("task %d %s exited", t.ID, t.Name)

	k.plat.RequestReschedule()
	k.plat.Lower()
	for {
		k.plat.WaitForInterrupt()
	}
}
