package sched

import (
	"strings"
	"testing"

	"mios/internal/irq"
	"mios/internal/timer"
)

func TestWakeupReleasesLongestWaiterFirst(t *testing.T) {
	k, p := newTestKernel(t, nil)
	q := NewQueue("rx")

	t1 := mustCreate(t, k, "T1")
	t2 := mustCreate(t, k, "T2")
	t3 := mustCreate(t, k, "T3")
	for _, task := range []*Task{t1, t2, t3} {
		block(t, k, task, q)
	}
	p.TakeReschedule()

	for _, want := range []*Task{t1, t2, t3} {
		if n := k.Wakeup(q, false); n != 1 {
			t.Fatalf("expected one task woken, got %d", n)
		}
		if want.State() != Running {
			t.Fatalf("expected %s running, got %s", want.Name, want.State())
		}
		if !p.TakeReschedule() {
			t.Fatal("expected Wakeup to request a reschedule")
		}
		ready := k.ready.ids()
		if ready[len(ready)-1] != want.ID {
			t.Fatalf("expected %s at the tail of the ready queue, got %v", want.Name, ready)
		}
	}
	if n := k.Wakeup(q, false); n != 0 {
		t.Fatalf("expected empty queue to wake nobody, got %d", n)
	}
	checkLinks(t, k, q)
}

func TestWakeupAll(t *testing.T) {
	k, _ := newTestKernel(t, nil)
	q := NewQueue("evt")

	var tasks []*Task
	for _, name := range []string{"a", "b", "c"} {
		task := mustCreate(t, k, name)
		block(t, k, task, q)
		tasks = append(tasks, task)
	}

	if n := k.Wakeup(q, true); n != 3 {
		t.Fatalf("expected 3 woken, got %d", n)
	}
	if !q.Empty() {
		t.Fatalf("expected empty wait queue, got %d", q.Len())
	}
	ready := k.ready.ids()
	for i, task := range tasks {
		if ready[i] != task.ID {
			t.Fatalf("expected wake order %v, got %v", []TaskID{tasks[0].ID, tasks[1].ID, tasks[2].ID}, ready)
		}
	}
}

func TestWakeupOfNonSleepingTaskHalts(t *testing.T) {
	k, _ := newTestKernel(t, nil)
	q := NewQueue("broken")
	a := mustCreate(t, k, "a")
	k.Switch(bootContext)

	// linked while running: queue and state disagree
	q.push(a)
	v := expectHalt(t, func() { k.Wakeup(q, false) })
	if v.Task != "a" || !strings.Contains(v.Msg, "state running") {
		t.Fatalf("unexpected violation %v", v)
	}
}

func TestTimeoutAfterWakeupIsNoop(t *testing.T) {
	k, p := newTestKernel(t, nil)
	q := NewQueue("io")
	a := mustCreate(t, k, "a")
	block(t, k, a, q)
	sl := &sleeper{task: a, queue: q}

	k.Wakeup(q, false)
	p.TakeReschedule()
	k.sleepTimeout(sl)

	if sl.timedOut {
		t.Fatal("expected timeout to lose the race")
	}
	if p.TakeReschedule() {
		t.Fatal("expected losing timeout not to request a reschedule")
	}
	if got := k.ready.ids(); len(got) != 1 || got[0] != a.ID {
		t.Fatalf("expected a on the ready queue exactly once, got %v", got)
	}
	checkLinks(t, k, q)
}

func TestWakeupAfterTimeoutFindsNothing(t *testing.T) {
	k, _ := newTestKernel(t, nil)
	q := NewQueue("io")
	a := mustCreate(t, k, "a")
	block(t, k, a, q)
	sl := &sleeper{task: a, queue: q}

	k.sleepTimeout(sl)
	if !sl.timedOut || a.State() != Running {
		t.Fatalf("expected timeout to wake a, got state %s", a.State())
	}
	if !q.Empty() {
		t.Fatal("expected timeout to unlink a from its wait queue")
	}
	if n := k.Wakeup(q, true); n != 0 {
		t.Fatalf("expected late wakeup to find nobody, got %d", n)
	}
	checkLinks(t, k, q)
}

func TestSleepTimeoutFiresAfterTicks(t *testing.T) {
	k, _ := newTestKernel(t, nil)
	z := mustCreate(t, k, "Z")
	k.Switch(bootContext)

	block(t, k, z, nil)
	sl := &sleeper{task: z}
	k.timers.Arm(timer.New(func() { k.sleepTimeout(sl) }), 50)
	k.Switch(z.ctx)

	for i := 0; i < 49; i++ {
		k.Tick()
	}
	if z.State() != Sleeping {
		t.Fatalf("expected Z asleep after 49 ticks, got %s", z.State())
	}
	k.Tick()
	if z.State() != Running || !sl.timedOut {
		t.Fatalf("expected Z woken by timeout at tick 50, got %s", z.State())
	}
	if got := k.Switch(k.Current().ctx); got != z.ctx {
		t.Fatalf("expected Z to be selected, got %#x", got)
	}
}

func TestSleepFromInterruptHalts(t *testing.T) {
	k, p := newTestKernel(t, nil)
	mustCreate(t, k, "a")
	k.Switch(bootContext)

	p.inIRQ = true
	v := expectHalt(t, func() { k.Sleep(nil, 1) })
	if !strings.Contains(v.Msg, "interrupt context") {
		t.Fatalf("unexpected violation %v", v)
	}
}

func TestSleepFromIdleHalts(t *testing.T) {
	k, _ := newTestKernel(t, nil)
	v := expectHalt(t, func() { k.Sleep(NewQueue("q"), 0) })
	if v.Task != "idle" {
		t.Fatalf("expected idle in violation, got %v", v)
	}
}

func TestSleepInWrongStateHalts(t *testing.T) {
	k, _ := newTestKernel(t, nil)
	a := mustCreate(t, k, "a")
	k.Switch(bootContext)
	a.state = Sleeping

	v := expectHalt(t, func() { k.Sleep(nil, 1) })
	if !strings.Contains(v.Msg, "sleep in state sleeping") {
		t.Fatalf("unexpected violation %v", v)
	}
}

// sleepCurrent puts the current task to sleep on q the way Sleep does before
// the switch trap runs: the task stays current and off the ready queue.
func sleepCurrent(t *testing.T, k *Kernel, q *Queue) *Task {
	t.Helper()
	s := k.plat.Raise(irq.LevelSched)
	cur := k.cur
	cur.state = Sleeping
	if q != nil {
		q.push(cur)
	}
	k.plat.Restore(s)
	return cur
}

func countReady(k *Kernel, id TaskID) int {
	n := 0
	for _, r := range k.ready.ids() {
		if r == id {
			n++
		}
	}
	return n
}

func TestWakeupOfCurrentTaskBeforeSwitch(t *testing.T) {
	k, _ := newTestKernel(t, nil)
	q := NewQueue("rx")
	a := mustCreate(t, k, "a")
	b := mustCreate(t, k, "b")
	runUntil(t, k, a)

	sleepCurrent(t, k, q)
	if n := k.Wakeup(q, false); n != 1 {
		t.Fatalf("expected a woken, got %d", n)
	}
	if got := k.Switch(a.ctx); got != b.ctx {
		t.Fatalf("expected B to run next, got %#x", got)
	}
	if n := countReady(k, a.ID); n != 1 {
		t.Fatalf("expected a on the ready queue once, got %d", n)
	}
	checkLinks(t, k, q)

	if got := k.Switch(b.ctx); got != a.ctx {
		t.Fatalf("expected a to run again, got %#x", got)
	}
	checkLinks(t, k, q)
}

func TestTimeoutOfCurrentTaskBeforeSwitch(t *testing.T) {
	k, _ := newTestKernel(t, nil)
	q := NewQueue("io")
	a := mustCreate(t, k, "a")
	runUntil(t, k, a)

	sleepCurrent(t, k, q)
	sl := &sleeper{task: a, queue: q}
	k.sleepTimeout(sl)
	if !sl.timedOut {
		t.Fatal("expected the timeout to wake a")
	}
	if got := k.Switch(a.ctx); got != a.ctx {
		t.Fatalf("expected a to keep the cpu, got %#x", got)
	}
	if k.ready.Len() != 0 || !q.Empty() {
		t.Fatalf("expected a unlinked everywhere, ready has %d", k.ready.Len())
	}
	checkLinks(t, k, q)
}
