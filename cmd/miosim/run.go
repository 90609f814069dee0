package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mios/internal/diag"
	"mios/internal/evlog"
	"mios/internal/hosted"
	"mios/internal/job"
	"mios/internal/sched"
	"mios/internal/trace"
)

const taskStack = 1024

var (
	runOpts = struct {
		duration time.Duration
		csv      string
		tasks    int
		deadlock bool
		quiet    bool
	}{}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Boot the kernel and run the demo workloads",
		Long:  "Boot the kernel on the hosted machine, run sleepers, mutex contenders and a producer/consumer pair for the given duration, then print a snapshot with a deadlock report.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runOpts.tasks < 1 {
				return fmt.Errorf("--tasks must be at least 1, got %d", runOpts.tasks)
			}
			return simulate(cmd.Context())
		},
	}
)

func init() {
	runCmd.Flags().DurationVarP(&runOpts.duration, "duration", "d", 2*time.Second, "how long to run the machine")
	runCmd.Flags().StringVar(&runOpts.csv, "csv", "", "write scheduler events to this CSV file")
	runCmd.Flags().IntVarP(&runOpts.tasks, "tasks", "n", 3, "number of mutex contenders")
	runCmd.Flags().BoolVar(&runOpts.deadlock, "deadlock", false, "add two tasks that lock a pair of mutexes in opposite order")
	runCmd.Flags().BoolVarP(&runOpts.quiet, "quiet", "q", false, "do not print the event trace")
}

func simulate(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg := sched.Load(configPath)
	log := evlog.New(os.Stderr, cfg.Level())
	evlog.SetDefault(log)
	log.Infof("Loaded config: %+v", cfg)

	m := hosted.New(time.Duration(cfg.TickMS) * time.Millisecond)
	m.SetLogger(log)
	k := sched.New(cfg, m)
	k.SetLogger(log)
	m.Attach(k)

	var out io.Writer = os.Stdout
	if runOpts.quiet {
		out = io.Discard
	}
	rec := trace.NewRecorder(out)
	if runOpts.csv != "" {
		if err := rec.EnableCSVLogging(runOpts.csv); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runOpts.duration)
	defer cancel()

	recCtx, stopRec := context.WithCancel(context.Background())
	var g errgroup.Group
	g.Go(func() error { return rec.Run(recCtx, k.Events()) })

	runErr := m.Run(ctx, func() { boot(k, log) })
	stopRec()
	if err := g.Wait(); err != nil {
		log.Errorf("trace: %v", err)
	}

	if runErr != nil && !errors.Is(runErr, context.DeadlineExceeded) && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	snap := k.Snapshot()
	fmt.Println()
	diag.Fprint(os.Stdout, snap)
	for kind, n := range rec.Counts() {
		log.Debugf("%s events: %d", kind, n)
	}
	return nil
}

// boot runs on the boot context and creates the workloads.
func boot(k *sched.Kernel, log *evlog.Logger) {
	create := func(name string, entry func(any)) {
		if _, err := k.Create(entry, nil, taskStack, name); err != nil {
			log.Warningf("skipping %s: %v", name, err)
		}
	}

	create("sleeper-fast", job.Sleeper(k, 10, 1<<30, nil))
	create("sleeper-slow", job.Sleeper(k, 100, 1<<30, nil))

	counter := job.NewCounter(k, "counter")
	for i := 0; i < runOpts.tasks; i++ {
		create(fmt.Sprintf("contender-%d", i), job.Contender(k, counter, 1<<30, 1))
	}

	buf := job.NewBuffer(k, "buffer", 4)
	create("producer", job.Producer(buf, 1<<30))
	create("consumer", job.Consumer(buf, 1<<30, nil))

	if runOpts.deadlock {
		a, b := k.NewMutex("left"), k.NewMutex("right")
		create("crossed-a", job.Crossed(k, a, b, 5))
		create("crossed-b", job.Crossed(k, b, a, 5))
	}
}
