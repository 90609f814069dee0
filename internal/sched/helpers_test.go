package sched

import (
	"testing"

	"mios/internal/cpu"
	"mios/internal/evlog"
	"mios/internal/fault"
	"mios/internal/irq"
	"mios/internal/irq/irqtest"
)

// fakePlatform never switches on its own; tests call Switch explicitly.
type fakePlatform struct {
	irqtest.Gate
	next  cpu.Context
	inIRQ bool
	exits map[cpu.Context]func()
}

func (p *fakePlatform) StackInit(stack []byte, entry cpu.Entry, arg any, exit func()) cpu.Context {
	p.next += 0x100
	if p.exits == nil {
		p.exits = make(map[cpu.Context]func())
	}
	p.exits[p.next] = exit
	return p.next
}

func (p *fakePlatform) InInterrupt() bool { return p.inIRQ }

func (p *fakePlatform) WaitForInterrupt() { panic("fakePlatform: WaitForInterrupt") }

const bootContext cpu.Context = 0xb007

func newTestKernel(t *testing.T, mutate func(*Config)) (*Kernel, *fakePlatform) {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	p := &fakePlatform{}
	k := New(cfg, p)
	k.SetLogger(evlog.New(nil, evlog.Emerg))
	return k, p
}

func mustCreate(t *testing.T, k *Kernel, name string) *Task {
	t.Helper()
	task, err := k.Create(func(any) {}, nil, 512, name)
	if err != nil {
		t.Fatalf("Create(%s) error = %v", name, err)
	}
	return task
}

// runUntil switches until want is current, failing after a bounded number of switches.
func runUntil(t *testing.T, k *Kernel, want *Task) {
	t.Helper()
	for i := 0; i < 64; i++ {
		if k.Current() == want {
			return
		}
		k.Switch(k.Current().ctx)
	}
	t.Fatalf("task %s never became current", want.Name)
}

// block puts a ready task to sleep on q as if it had called Sleep(q, 0).
func block(t *testing.T, k *Kernel, task *Task, q *Queue) {
	t.Helper()
	s := k.plat.Raise(irq.LevelSched)
	if task.queue == &k.ready {
		k.ready.remove(task)
	}
	task.state = Sleeping
	if q != nil {
		q.push(task)
	}
	k.plat.Restore(s)
}

func expectHalt(t *testing.T, fn func()) *fault.Violation {
	t.Helper()
	var v *fault.Violation
	func() {
		defer func() {
			if r := recover(); r != nil {
				var ok bool
				if v, ok = fault.AsViolation(r); !ok {
					panic(r)
				}
			}
		}()
		fn()
	}()
	if v == nil {
		t.Fatal("expected a halt")
	}
	return v
}

// checkLinks verifies that every task is linked on at most one queue and
// that every running task other than the current one is on the ready queue.
func checkLinks(t *testing.T, k *Kernel, waitqs ...*Queue) {
	t.Helper()
	seen := make(map[TaskID]string)
	visit := func(q *Queue) {
		for _, id := range q.ids() {
			if prev, dup := seen[id]; dup {
				t.Fatalf("task %d linked on %s and %s", id, prev, q.Name())
			}
			seen[id] = q.Name()
		}
	}
	visit(&k.ready)
	for _, q := range waitqs {
		visit(q)
	}
	for _, task := range k.tasks {
		_, linked := seen[task.ID]
		switch {
		case task == k.cur && linked:
			t.Fatalf("current task %s is linked on %s", task.Name, seen[task.ID])
		case task != k.cur && task.state == Running && !linked:
			t.Fatalf("running task %s is not on the ready queue", task.Name)
		case task.state == Zombie && linked:
			t.Fatalf("zombie %s is linked on %s", task.Name, seen[task.ID])
		}
	}
}
