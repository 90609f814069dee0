package irq

// Level is an interrupt priority. A mask at level L blocks every interrupt
// whose level is less than or equal to L; higher levels are more urgent.
type Level uint8

const (
	LevelNone   Level = iota // nothing masked
	LevelSwitch              // the reschedule request
	LevelIO                  // device interrupts that may wake tasks
	LevelClock               // system tick and timers
	LevelSched               // scheduler bookkeeping; masks everything at or below
	LevelHigh                // never masked by the scheduler, must not touch it
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelSwitch:
		return "switch"
	case LevelIO:
		return "io"
	case LevelClock:
		return "clock"
	case LevelSched:
		return "sched"
	case LevelHigh:
		return "high"
	default:
		return "invalid"
	}
}

// Gate is the interrupt priority mask of the core.
//
// Raise and Restore bracket every critical section:
//
//	s := g.Raise(irq.LevelSched)
//	...
//	g.Restore(s)
//
// Because the mask is a level, nested sections restore to the level that was
// in effect when they were entered rather than to LevelNone.
type Gate interface {
	// Raise masks interrupts at or below level and returns the previous mask.
	// It never lowers an already higher mask.
	Raise(level Level) Level

	// Restore sets the mask back to a value previously returned by Raise or Lower.
	Restore(prev Level)

	// Lower opens the mask completely and returns the value it replaced.
	// Used while busy-waiting so the interrupts that end the wait can fire.
	Lower() Level

	// RequestReschedule pends the switch interrupt. The context-switch engine
	// runs no later than the moment the mask drops below LevelSwitch, but not
	// necessarily before RequestReschedule returns.
	RequestReschedule()
}
