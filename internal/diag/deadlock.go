// internal/diag/deadlock.go

package diag

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph/multi"
	"gonum.org/v1/gonum/graph/topo"

	"mios/internal/sched"
)

// taskNode is a task in the wait-for graph.
type taskNode struct {
	info sched.TaskInfo
}

func (n taskNode) ID() int64 { return int64(n.info.ID) }

// WaitGraph builds the wait-for graph of a snapshot: an edge runs from each
// task blocked on a mutex to the task owning that mutex.
func WaitGraph(snap sched.Snapshot) *multi.DirectedGraph {
	owners := make(map[int]sched.TaskID, len(snap.Mutexes))
	for _, m := range snap.Mutexes {
		if m.Owned {
			owners[m.ID] = m.Owner
		}
	}
	nodes := make(map[sched.TaskID]taskNode, len(snap.Tasks))
	for _, t := range snap.Tasks {
		nodes[t.ID] = taskNode{info: t}
	}

	graph := multi.NewDirectedGraph()
	for _, t := range snap.Tasks {
		if t.WaitingOn == 0 {
			continue
		}
		owner, ok := owners[t.WaitingOn]
		if !ok || owner == t.ID {
			continue
		}
		graph.SetLine(graph.NewLine(nodes[t.ID], nodes[owner]))
	}
	return graph
}

// cycles returns the wait-for cycles, each starting at its lowest task ID,
// ordered by their first IDs.
func cycles(snap sched.Snapshot) [][]sched.TaskID {
	var out [][]sched.TaskID
	for _, c := range topo.DirectedCyclesIn(WaitGraph(snap)) {
		// the first node is repeated at the end
		ids := make([]sched.TaskID, 0, len(c)-1)
		for _, n := range c[:len(c)-1] {
			ids = append(ids, sched.TaskID(n.ID()))
		}
		lo := 0
		for i, id := range ids {
			if id < ids[lo] {
				lo = i
			}
		}
		out = append(out, append(ids[lo:], ids[:lo]...))
	}
	slices.SortFunc(out, func(a, b []sched.TaskID) bool {
		for i := 0; i < len(a) && i < len(b); i++ {
			if a[i] != b[i] {
				return a[i] < b[i]
			}
		}
		return len(a) < len(b)
	})
	return out
}

// Deadlocks reports every cycle of tasks waiting on each other's mutexes,
// as task names.
func Deadlocks(snap sched.Snapshot) [][]string {
	var out [][]string
	for _, c := range cycles(snap) {
		names := make([]string, len(c))
		for i, id := range c {
			if t, ok := snap.Task(id); ok {
				names[i] = t.Name
			}
		}
		out = append(out, names)
	}
	return out
}

// Stuck returns the IDs of tasks that can never acquire the mutex they wait
// on: the members of a cycle and every task waiting behind one.
func Stuck(snap sched.Snapshot) []sched.TaskID {
	stuck := make(map[sched.TaskID]bool)
	for _, c := range cycles(snap) {
		for _, id := range c {
			stuck[id] = true
		}
	}
	if len(stuck) == 0 {
		return nil
	}

	graph := WaitGraph(snap)
	for changed := true; changed; {
		changed = false
		nodes := graph.Nodes()
		for nodes.Next() {
			id := sched.TaskID(nodes.Node().ID())
			if stuck[id] {
				continue
			}
			to := graph.From(int64(id))
			for to.Next() {
				if stuck[sched.TaskID(to.Node().ID())] {
					stuck[id] = true
					changed = true
					break
				}
			}
		}
	}

	ids := maps.Keys(stuck)
	slices.Sort(ids)
	return ids
}
