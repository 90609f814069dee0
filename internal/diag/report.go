package diag

import (
	"fmt"
	"io"
	"strings"

	"mios/internal/sched"
)

// Fprint writes a human-readable dump of snap: one line per task, one per
// mutex, then the deadlock report.
func Fprint(w io.Writer, snap sched.Snapshot) {
	fmt.Fprintf(w, "tick %d, %d switches, %d bytes of stack, %d events dropped\n",
		snap.Tick, snap.Switches, snap.StackUsed, snap.Dropped)

	for _, t := range snap.Tasks {
		mark := " "
		if t.ID == snap.Current {
			mark = "*"
		}
		guard := "ok"
		if !t.Guard {
			guard = "CLOBBERED"
		}
		fmt.Fprintf(w, "%s task %04d %-12s %-8s queue=%-16s stack=%-6d guard=%-9s switches=%d\n",
			mark, t.ID, t.Name, t.State, orDash(t.Queue), t.StackSize, guard, t.Switches)
	}

	for _, m := range snap.Mutexes {
		owner := "-"
		if m.Owned {
			owner = fmt.Sprintf("%04d", m.Owner)
		}
		fmt.Fprintf(w, "  mutex %04d %-12s owner=%s waiters=%v\n", m.ID, m.Name, owner, m.Waiters)
	}

	dl := Deadlocks(snap)
	if len(dl) == 0 {
		fmt.Fprintln(w, "no deadlocks")
		return
	}
	for _, c := range dl {
		fmt.Fprintf(w, "DEADLOCK: %s -> %s\n", strings.Join(c, " -> "), c[0])
	}
	fmt.Fprintf(w, "stuck tasks: %v\n", Stuck(snap))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
