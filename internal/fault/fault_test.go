package fault

import (
	"bytes"
	"strings"
	"testing"

	"mios/internal/evlog"
)

func TestHaltPanicsWithViolation(t *testing.T) {
	var buf bytes.Buffer
	prev := evlog.Default()
	evlog.SetDefault(evlog.New(&buf, evlog.Debug))
	defer evlog.SetDefault(prev)

	var got Info
	SetHandler(func(info Info) { got = info })
	defer SetHandler(nil)

	func() {
		defer func() {
			v, ok := AsViolation(recover())
			if !ok {
				t.Fatal("expected a *Violation panic")
			}
			if v.Task != "worker" {
				t.Fatalf("expected task worker, got %q", v.Task)
			}
		}()
		Halt(Taskf("worker", "mutex %s unlocked by non-owner", "m0"))
	}()

	if !Halted() {
		t.Fatal("expected Halted() to be true")
	}
	if got.Violation == nil || len(got.Stack) == 0 {
		t.Fatal("expected handler to receive violation and stack")
	}
	if !strings.Contains(buf.String(), `EMERG   halt: mutex m0 unlocked by non-owner (task "worker")`) {
		t.Fatalf("unexpected log output %q", buf.String())
	}
}

func TestViolationError(t *testing.T) {
	if got := IRQf(42, "spurious irq").Error(); got != "halt: spurious irq (irq 42)" {
		t.Fatalf("unexpected message %q", got)
	}
	v := &Violation{Task: "t", IRQ: 3, Msg: "x"}
	if got := v.Error(); got != `halt: x (task "t", irq 3)` {
		t.Fatalf("unexpected message %q", got)
	}
}
