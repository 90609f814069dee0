// internal/sched/schedulerEvent.go

package sched

// EventKind represents the type of scheduler event
type EventKind int

const (
	EventCreate EventKind = iota
	EventDispatch
	EventIdle
	EventSleep
	EventWakeup
	EventTimeout
	EventLock
	EventContend
	EventUnlock
	EventExit
)

// Event is emitted on every scheduler state change
type Event struct {
	Tick   uint64
	Kind   EventKind
	TaskID TaskID
	Task   string
}

func (ek EventKind) String() string {
	switch ek {
	case EventCreate:
		return "Create"
	case EventDispatch:
		return "Dispatch"
	case EventIdle:
		return "Idle"
	case EventSleep:
		return "Sleep"
	case EventWakeup:
		return "Wakeup"
	case EventTimeout:
		return "Timeout"
	case EventLock:
		return "Lock"
	case EventContend:
		return "Contend"
	case EventUnlock:
		return "Unlock"
	case EventExit:
		return "Exit"
	default:
		return "Unknown"
	}
}

// emit publishes an event without ever blocking the caller, which may be
// the switch path. Events that do not fit are counted as dropped.
// Must be called inside a scheduling critical section.
func (k *Kernel) emit(kind EventKind, t *Task) {
	if k.events == nil {
		return
	}
	ev := Event{
		Tick:   k.timers.Now(),
		Kind:   kind,
		TaskID: t.ID,
		Task:   t.Name,
	}
	select {
	case k.events <- ev:
	default:
		k.dropped++
	}
}
