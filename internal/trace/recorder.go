// internal/trace/recorder.go

package trace

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"mios/internal/sched"
)

// Recorder consumes the scheduler event stream and renders it as console
// lines and, optionally, CSV records.
type Recorder struct {
	out       io.Writer
	now       func() time.Time
	csvFile   *os.File
	csvWriter *csv.Writer

	dispatched map[sched.TaskID]int
	counts     map[sched.EventKind]int
}

// NewRecorder creates a recorder printing to out. A nil out prints nothing.
func NewRecorder(out io.Writer) *Recorder {
	if out == nil {
		out = io.Discard
	}
	return &Recorder{
		out:        out,
		now:        time.Now,
		dispatched: make(map[sched.TaskID]int),
		counts:     make(map[sched.EventKind]int),
	}
}

// EnableCSVLogging opens the given file path for CSV logging of events.
// Creates or truncates the file and writes the header row.
func (r *Recorder) EnableCSVLogging(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)

	// write header
	w.Write([]string{"timestamp", "tick", "event", "task_id", "task"})
	w.Flush()
	r.csvFile = f
	r.csvWriter = w
	return nil
}

// Run handles events until ctx is done, then drains what is left in the
// channel and closes the CSV file.
func (r *Recorder) Run(ctx context.Context, events <-chan sched.Event) error {
	if events != nil {
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case ev, ok := <-events:
				if !ok {
					events = nil
					break loop
				}
				r.Handle(ev)
			}
		}
		r.Drain(events)
	}
	return r.Close()
}

// Drain handles the events already buffered in the channel without waiting.
func (r *Recorder) Drain(events <-chan sched.Event) {
	for events != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.Handle(ev)
		default:
			return
		}
	}
}

// Close flushes and closes the CSV file, if any.
func (r *Recorder) Close() error {
	if r.csvFile == nil {
		return nil
	}
	r.csvWriter.Flush()
	err := r.csvWriter.Error()
	if cerr := r.csvFile.Close(); err == nil {
		err = cerr
	}
	r.csvFile, r.csvWriter = nil, nil
	return err
}

// Counts returns how many events of each kind were handled.
func (r *Recorder) Counts() map[sched.EventKind]int {
	out := make(map[sched.EventKind]int, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out
}

// Handle renders one event.
func (r *Recorder) Handle(ev sched.Event) {
	r.counts[ev.Kind]++
	if ev.Kind == sched.EventDispatch {
		r.dispatched[ev.TaskID]++
	}
	ts := r.now()

	// an auxiliary function to center the event kind in the output
	center := func(str string, width int) string {
		spaces := (width - len(str)) / 2
		return strings.Repeat(" ", spaces) + str + strings.Repeat(" ", width-(spaces+len(str)))
	}

	fmt.Fprintf(r.out, "%s = Tick: %07d [%s] => Task: %04d %-12s dispatched %04d times\n",
		ts.Format("Jan 02 15:04:05.000"),
		ev.Tick,
		center(ev.Kind.String(), 10),
		ev.TaskID,
		ev.Task,
		r.dispatched[ev.TaskID],
	)

	// CSV output
	if r.csvWriter != nil {
		rec := []string{
			ts.Format(time.RFC3339Nano),
			strconv.FormatUint(ev.Tick, 10),
			ev.Kind.String(),
			strconv.FormatUint(uint64(ev.TaskID), 10),
			ev.Task,
		}
		r.csvWriter.Write(rec)
		r.csvWriter.Flush()
	}
}
