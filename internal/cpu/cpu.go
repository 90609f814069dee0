package cpu

// Context is the saved stack pointer of a task that is not executing.
// Its value is only meaningful to the Bootstrap that produced it.
type Context uintptr

// Entry is the body of a task.
type Entry func(arg any)

// Bootstrap builds initial execution contexts.
type Bootstrap interface {
	// StackInit lays out an initial frame at the top of stack and returns the
	// context that resumes it. Resuming the context calls entry(arg); if entry
	// returns, exit is called instead of running off the frame. StackInit
	// writes only into stack.
	StackInit(stack []byte, entry Entry, arg any, exit func()) Context
}
