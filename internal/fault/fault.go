package fault

import (
	"fmt"
	"sync/atomic"

	"mios/internal/evlog"
)

// Violation describes a broken kernel contract. It is never recoverable:
// the scheduler state it was detected on can no longer be trusted.
type Violation struct {
	Task string // offending task, empty if none
	IRQ  int    // offending interrupt, -1 if none
	Msg  string
}

func (v *Violation) Error() string {
	switch {
	case v.IRQ >= 0 && v.Task != "":
		return fmt.Sprintf("halt: %s (task %q, irq %d)", v.Msg, v.Task, v.IRQ)
	case v.IRQ >= 0:
		return fmt.Sprintf("halt: %s (irq %d)", v.Msg, v.IRQ)
	case v.Task != "":
		return fmt.Sprintf("halt: %s (task %q)", v.Msg, v.Task)
	default:
		return "halt: " + v.Msg
	}
}

// Info is passed to the halt handler.
type Info struct {
	Violation *Violation
	Stack     []byte
}

var (
	halted  atomic.Bool
	handler atomic.Value // func(Info)
)

// Halted reports whether any violation has been raised in this process.
func Halted() bool {
	return halted.Load()
}

// SetHandler installs a process-wide halt handler. It must not panic.
func SetHandler(fn func(Info)) {
	handler.Store(fn)
}

// Taskf builds a violation attributed to a task.
func Taskf(task string, format string, args ...any) *Violation {
	return &Violation{Task: task, IRQ: -1, Msg: fmt.Sprintf(format, args...)}
}

// IRQf builds a violation attributed to an interrupt.
func IRQf(irq int, format string, args ...any) *Violation {
	return &Violation{IRQ: irq, Msg: fmt.Sprintf(format, args...)}
}

// Halt reports v and stops the current flow of execution by panicking with v.
// Platforms recover the panic at the task boundary and stop the machine.
func Halt(v *Violation) {
	halted.Store(true)
	evlog.Default().Emergf("%v", v)
	if fn, ok := handler.Load().(func(Info)); ok && fn != nil {
		fn(Info{Violation: v, Stack: captureStack()})
	}
	panic(v)
}

// AsViolation extracts a violation from a recovered panic value.
func AsViolation(r any) (*Violation, bool) {
	v, ok := r.(*Violation)
	return v, ok
}
