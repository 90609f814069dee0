package sched

import (
	"strings"
	"testing"
)

func TestLockFreeMutexDoesNotBlock(t *testing.T) {
	k, p := newTestKernel(t, nil)
	m := k.NewMutex("m")
	x := mustCreate(t, k, "X")
	k.Switch(bootContext)
	p.TakeReschedule()

	m.Lock()
	if m.Owner() != x {
		t.Fatalf("expected X to own m, got %v", m.Owner())
	}
	if x.State() != Running {
		t.Fatalf("expected X to stay running, got %s", x.State())
	}
	if p.TakeReschedule() {
		t.Fatal("expected uncontended lock not to reschedule")
	}
}

func TestUnlockWakesOldestWaiterWithoutHandoff(t *testing.T) {
	k, p := newTestKernel(t, nil)
	m := k.NewMutex("m")
	x := mustCreate(t, k, "X")
	y := mustCreate(t, k, "Y")
	w := mustCreate(t, k, "W")
	runUntil(t, k, x)
	m.Lock()

	// Y then W block on m, as Lock does when the owner is set
	for _, task := range []*Task{y, w} {
		block(t, k, task, &m.waiters)
		task.waitingOn = m
	}

	m.Unlock()
	if m.Owner() != nil {
		t.Fatalf("expected no direct handoff, got owner %s", m.Owner().Name)
	}
	if y.State() != Running || !k.Snapshot().IsReady(y.ID) {
		t.Fatal("expected Y running and ready after unlock")
	}
	if w.State() != Sleeping || m.Waiters() != 1 {
		t.Fatal("expected W still waiting")
	}
	if !p.TakeReschedule() {
		t.Fatal("expected unlock to request a reschedule")
	}
	checkLinks(t, k, &m.waiters)
}

func TestRecursiveLockHalts(t *testing.T) {
	k, _ := newTestKernel(t, nil)
	m := k.NewMutex("m")
	mustCreate(t, k, "X")
	k.Switch(bootContext)

	m.Lock()
	v := expectHalt(t, m.Lock)
	if v.Task != "X" || !strings.Contains(v.Msg, "recursive lock of mutex m") {
		t.Fatalf("unexpected violation %v", v)
	}
}

func TestUnlockByNonOwnerHalts(t *testing.T) {
	k, _ := newTestKernel(t, nil)
	m := k.NewMutex("m")
	x := mustCreate(t, k, "X")
	y := mustCreate(t, k, "Y")
	runUntil(t, k, x)
	m.Lock()
	runUntil(t, k, y)

	v := expectHalt(t, m.Unlock)
	if v.Task != "Y" || !strings.Contains(v.Msg, "owned by X") {
		t.Fatalf("unexpected violation %v", v)
	}
}

func TestUnlockOfFreeMutexHalts(t *testing.T) {
	k, _ := newTestKernel(t, nil)
	m := k.NewMutex("m")
	mustCreate(t, k, "X")
	k.Switch(bootContext)

	v := expectHalt(t, m.Unlock)
	if !strings.Contains(v.Msg, "owned by nobody") {
		t.Fatalf("unexpected violation %v", v)
	}
}

func TestTryLock(t *testing.T) {
	k, _ := newTestKernel(t, nil)
	m := k.NewMutex("m")
	x := mustCreate(t, k, "X")
	y := mustCreate(t, k, "Y")

	runUntil(t, k, x)
	if !m.TryLock() {
		t.Fatal("expected TryLock on free mutex to succeed")
	}
	runUntil(t, k, y)
	if m.TryLock() {
		t.Fatal("expected TryLock on owned mutex to fail")
	}
	if m.Owner() != x {
		t.Fatal("expected X to keep ownership")
	}
}

func TestSnapshotReportsMutexWaiters(t *testing.T) {
	k, _ := newTestKernel(t, nil)
	m := k.NewMutex("bus")
	x := mustCreate(t, k, "X")
	y := mustCreate(t, k, "Y")
	runUntil(t, k, x)
	m.Lock()
	block(t, k, y, &m.waiters)
	y.waitingOn = m

	snap := k.Snapshot()
	if len(snap.Mutexes) != 1 {
		t.Fatalf("expected one mutex, got %d", len(snap.Mutexes))
	}
	mi := snap.Mutexes[0]
	if !mi.Owned || mi.Owner != x.ID || len(mi.Waiters) != 1 || mi.Waiters[0] != y.ID {
		t.Fatalf("unexpected mutex info %+v", mi)
	}
	yi, ok := snap.Task(y.ID)
	if !ok || yi.WaitingOn != mi.ID || yi.Queue != "bus.waiters" || yi.State != Sleeping {
		t.Fatalf("unexpected task info %+v", yi)
	}
	if snap.Current != x.ID {
		t.Fatalf("expected X current, got %d", snap.Current)
	}
}
