package sched

import (
	"github.com/emirpasic/gods/lists/doublylinkedlist"

	"mios/internal/fault"
)

// Queue is a FIFO of tasks: the ready queue, or a wait queue owned by
// whichever subsystem defines the event being waited for.
//
// A task is linked on at most one queue at a time. Linking a task that is
// already on a queue halts the system. The zero value is an empty queue.
// Queues are only mutated inside a scheduling critical section.
type Queue struct {
	name string
	list *doublylinkedlist.List
}

// NewQueue creates an empty named queue. The name is used in diagnostics.
func NewQueue(name string) *Queue {
	return &Queue{name: name, list: doublylinkedlist.New()}
}

// Name returns the diagnostic name of the queue.
func (q *Queue) Name() string {
	if q.name == "" {
		return "waitq"
	}
	return q.name
}

// Len returns the number of linked tasks.
func (q *Queue) Len() int {
	if q.list == nil {
		return 0
	}
	return q.list.Size()
}

// Empty reports whether no task is linked.
func (q *Queue) Empty() bool { return q.Len() == 0 }

func (q *Queue) push(t *Task) {
	if t.queue != nil {
		fault.Halt(fault.Taskf(t.Name, "task already linked on %s, cannot link on %s", t.queue.Name(), q.Name()))
	}
	if q.list == nil {
		q.list = doublylinkedlist.New()
	}
	t.queue = q
	q.list.Add(t)
}

func (q *Queue) pop() *Task {
	if q.Len() == 0 {
		return nil
	}
	v, _ := q.list.Get(0)
	q.list.Remove(0)
	t := v.(*Task)
	t.queue = nil
	return t
}

func (q *Queue) remove(t *Task) {
	if t.queue != q {
		fault.Halt(fault.Taskf(t.Name, "task is not linked on %s", q.Name()))
	}
	q.list.Remove(q.list.IndexOf(t))
	t.queue = nil
}

func (q *Queue) ids() []TaskID {
	if q.Len() == 0 {
		return nil
	}
	ids := make([]TaskID, 0, q.list.Size())
	it := q.list.Iterator()
	for it.Next() {
		ids = append(ids, it.Value().(*Task).ID)
	}
	return ids
}
