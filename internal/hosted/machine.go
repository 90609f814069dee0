package hosted

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sync/errgroup"

	"mios/internal/cpu"
	"mios/internal/evlog"
	"mios/internal/fault"
	"mios/internal/irq"
)

// Interrupt numbers used by the machine itself.
const (
	IRQClock = 15 // system tick
	NumIRQ   = 64
)

// ErrCPUStuck is returned by Run when the context holding the CPU does not
// reach an interrupt check point after the machine was stopped.
var ErrCPUStuck = errors.New("hosted: cpu did not stop")

const releaseTimeout = time.Second

// Kernel is the scheduler the machine traps into.
type Kernel interface {
	// Switch receives the interrupted context and returns the one to resume.
	Switch(sp cpu.Context) cpu.Context
	// Tick is the clock interrupt handler.
	Tick()
}

type thread struct {
	ctx     cpu.Context
	name    string
	entry   cpu.Entry
	arg     any
	exit    func()
	stack   []byte
	sp      int
	resume  chan struct{}
	started bool
}

// Machine is a single-core port on top of goroutines.
//
// Every task context is a goroutine, but only the goroutine holding the CPU
// executes; the others are parked on their resume channel. The CPU moves only
// in the switch trap, so kernel state is never touched by two goroutines at
// once. Interrupts are posted from any goroutine and taken by the CPU holder
// at its next check point: a mask change, RequestReschedule, Poll or the idle
// wait.
type Machine struct {
	mu      sync.Mutex
	mask    irq.Level
	depth   int    // nesting of interrupt handlers, including the switch trap
	resched bool   // switch interrupt pending
	pending []bool // pending interrupt lines
	threads map[cpu.Context]*thread
	cur     *thread
	kernel  Kernel
	err     error

	vector   *irq.Vector
	tick     time.Duration
	log      *evlog.Logger
	kick     chan struct{}
	done     chan struct{}
	released chan struct{}

	stopOnce    sync.Once
	releaseOnce sync.Once
	isReleased  bool
}

var (
	_ irq.Gate      = (*Machine)(nil)
	_ cpu.Bootstrap = (*Machine)(nil)
)

// New creates a machine whose clock interrupt fires every tick. A zero tick
// leaves the clock to Post(IRQClock).
func New(tick time.Duration) *Machine {
	bootStack := make([]byte, cpu.FrameSize)
	boot := &thread{
		ctx:     cpu.Context(uintptr(unsafe.Pointer(&bootStack[0]))),
		name:    "boot",
		stack:   bootStack,
		resume:  make(chan struct{}, 1),
		started: true,
	}
	return &Machine{
		mask:     irq.LevelSched,
		pending:  make([]bool, NumIRQ),
		threads:  map[cpu.Context]*thread{boot.ctx: boot},
		cur:      boot,
		vector:   irq.NewVector(NumIRQ),
		tick:     tick,
		log:      evlog.Default(),
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		released: make(chan struct{}),
	}
}

// SetLogger replaces the logger used for boot and halt messages.
func (m *Machine) SetLogger(l *evlog.Logger) {
	if l != nil {
		m.log = l
	}
}

// Attach installs the scheduler: its Switch becomes the switch trap and its
// Tick the clock interrupt handler.
func (m *Machine) Attach(k Kernel) {
	m.mu.Lock()
	m.kernel = k
	m.mu.Unlock()
	m.vector.Enable(IRQClock, irq.LevelClock, k.Tick)
}

// Vector returns the interrupt vector table.
func (m *Machine) Vector() *irq.Vector { return m.vector }

// Raise implements irq.Gate.
func (m *Machine) Raise(level irq.Level) irq.Level {
	m.mu.Lock()
	prev := m.mask
	if level > prev {
		m.mask = level
	}
	m.mu.Unlock()
	return prev
}

// Restore implements irq.Gate.
func (m *Machine) Restore(prev irq.Level) {
	m.mu.Lock()
	m.mask = prev
	m.mu.Unlock()
	m.deliver()
}

// Lower implements irq.Gate.
func (m *Machine) Lower() irq.Level {
	m.mu.Lock()
	prev := m.mask
	m.mask = irq.LevelNone
	m.mu.Unlock()
	m.deliver()
	return prev
}

// RequestReschedule implements irq.Gate.
func (m *Machine) RequestReschedule() {
	m.mu.Lock()
	m.resched = true
	m.mu.Unlock()
	m.deliver()
}

// InInterrupt reports whether the CPU is running an interrupt handler.
func (m *Machine) InInterrupt() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.depth > 0
}

// Mask returns the current priority mask.
func (m *Machine) Mask() irq.Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mask
}

// Post raises interrupt line n. It may be called from any goroutine.
// Posting a line that is already pending has no further effect.
func (m *Machine) Post(n int) {
	if n < 0 || n >= NumIRQ {
		fault.Halt(fault.IRQf(n, "irq %d out of range [0, %d)", n, NumIRQ))
	}
	m.mu.Lock()
	m.pending[n] = true
	m.mu.Unlock()
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// Poll takes pending interrupts. Long computations call it to be preemptible.
func (m *Machine) Poll() {
	m.deliver()
}

// WaitForInterrupt idles the CPU until something can be delivered.
func (m *Machine) WaitForInterrupt() {
	m.deliver()
	m.mu.Lock()
	for !m.deliverableLocked() {
		m.mu.Unlock()
		select {
		case <-m.kick:
		case <-m.done:
			m.release()
			runtime.Goexit()
		}
		m.mu.Lock()
	}
	m.mu.Unlock()
	m.deliver()
}

// StackInit implements cpu.Bootstrap. It writes a Cortex-M style initial
// frame at the top of stack and returns the address of that frame.
func (m *Machine) StackInit(stack []byte, entry cpu.Entry, arg any, exit func()) cpu.Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uint32(len(m.threads))
	sp, ok := cpu.WriteFrame(stack, cpu.Frame{R0: id, PC: id, LR: id, XPSR: cpu.InitialXPSR})
	if !ok {
		fault.Halt(fault.Taskf("", "stack of %d bytes cannot hold an initial frame", len(stack)))
	}
	t := &thread{
		ctx:    cpu.Context(uintptr(unsafe.Pointer(&stack[sp]))),
		name:   fmt.Sprintf("ctx%d", id),
		entry:  entry,
		arg:    arg,
		exit:   exit,
		stack:  stack,
		sp:     sp,
		resume: make(chan struct{}, 1),
	}
	m.threads[t.ctx] = t
	return t.ctx
}

// Run boots the machine. boot runs on the boot context with interrupts
// masked at irq.LevelSched; when it returns the mask opens and the boot
// context becomes the idle loop. Run returns when the machine halts: after
// Stop (nil), on a fatal violation (the *fault.Violation), or when ctx ends
// (ctx.Err()).
func (m *Machine) Run(ctx context.Context, boot func()) error {
	m.mu.Lock()
	k := m.kernel
	m.mu.Unlock()
	if k == nil {
		return errors.New("hosted: no kernel attached")
	}

	g, gctx := errgroup.WithContext(ctx)

	if m.tick > 0 {
		clock := NewTickClock(1)
		clock.Start(m.tick)
		g.Go(func() error {
			defer clock.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-m.done:
					return nil
				case _, ok := <-clock.Ch:
					if !ok {
						return nil
					}
					m.Post(IRQClock)
				}
			}
		})
	}

	g.Go(func() error {
		m.log.Noticef("hosted: booting, tick %v", m.tick)
		go m.bootstrap(boot)

		select {
		case <-gctx.Done():
			m.halt(gctx.Err())
		case <-m.done:
		}

		select {
		case <-m.released:
		case <-time.After(releaseTimeout):
			return ErrCPUStuck
		}
		return m.Err()
	})

	return g.Wait()
}

// Stop halts the machine. It may be called from a task or from outside.
func (m *Machine) Stop() {
	m.halt(nil)
}

// Done is closed when the machine halts.
func (m *Machine) Done() <-chan struct{} { return m.done }

// Err returns the reason the machine halted, nil after Stop.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *Machine) halt(err error) {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.err = err
		m.mu.Unlock()
		if err != nil {
			m.log.Errorf("hosted: halted: %v", err)
		} else {
			m.log.Noticef("hosted: stopped")
		}
		close(m.done)
	})
}

// release records that no goroutine holds the CPU any more.
func (m *Machine) release() {
	m.releaseOnce.Do(func() {
		m.mu.Lock()
		m.isReleased = true
		m.mu.Unlock()
		close(m.released)
	})
}

func (m *Machine) stopped() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

func (m *Machine) bootstrap(boot func()) {
	defer m.recoverHalt()
	if boot != nil {
		boot()
	}
	m.Restore(irq.LevelNone)
	for {
		m.WaitForInterrupt()
	}
}

// run is the first resumption of a task context.
func (m *Machine) run(t *thread) {
	defer m.recoverHalt()
	if f := cpu.ReadFrame(t.stack, t.sp); f.XPSR != cpu.InitialXPSR || f.PC != f.R0 {
		fault.Halt(fault.Taskf(t.name, "initial frame at %#x clobbered", uintptr(t.ctx)))
	}
	m.exceptionReturn()
	m.deliver()
	t.entry(t.arg)
	t.exit()
}

// recoverHalt turns a panic on the CPU holder into a machine halt.
func (m *Machine) recoverHalt() {
	r := recover()
	if r == nil {
		return
	}
	var err error
	if v, ok := fault.AsViolation(r); ok {
		err = v
	} else {
		err = fmt.Errorf("hosted: panic: %v", r)
	}
	m.halt(err)
	m.release()
}

// deliverableLocked reports whether deliver would do anything.
func (m *Machine) deliverableLocked() bool {
	if _, _, ok := m.nextIRQLocked(); ok {
		return true
	}
	return m.resched && m.mask == irq.LevelNone && m.depth == 0
}

// nextIRQLocked picks the most urgent pending line the mask admits and the
// level it runs at. Ties go to the lowest line number.
func (m *Machine) nextIRQLocked() (int, irq.Level, bool) {
	best, bestLevel := -1, irq.LevelNone
	for n, p := range m.pending {
		if !p {
			continue
		}
		lvl, ok := m.vector.Level(n)
		if !ok {
			// spurious lines are taken at once so that Dispatch can halt
			lvl = irq.LevelHigh
		}
		if lvl > m.mask && lvl > bestLevel {
			best, bestLevel = n, lvl
		}
	}
	return best, bestLevel, best >= 0
}

// deliver runs the interrupts the current mask admits, then the switch
// trap. Only the CPU holder calls it.
func (m *Machine) deliver() {
	for {
		m.mu.Lock()
		if m.isReleased {
			m.mu.Unlock()
			return
		}
		if m.stopped() {
			m.mu.Unlock()
			m.release()
			runtime.Goexit()
		}

		if n, lvl, ok := m.nextIRQLocked(); ok {
			m.pending[n] = false
			prev := m.mask
			m.mask = lvl
			m.depth++
			m.mu.Unlock()

			m.vector.Dispatch(n)

			m.mu.Lock()
			m.depth--
			m.mask = prev
			m.mu.Unlock()
			continue
		}

		if m.resched && m.mask == irq.LevelNone && m.depth == 0 {
			m.resched = false
			m.mask = irq.LevelSwitch
			m.depth++
			m.mu.Unlock()
			m.trap()
			continue
		}

		m.mu.Unlock()
		return
	}
}

// trap is the switch interrupt. It returns on the calling goroutine once
// its context is selected again.
func (m *Machine) trap() {
	m.mu.Lock()
	self := m.cur
	k := m.kernel
	m.mu.Unlock()

	next := k.Switch(self.ctx)

	m.mu.Lock()
	t, ok := m.threads[next]
	if !ok {
		m.mu.Unlock()
		fault.Halt(fault.Taskf(self.name, "switch to unknown context %#x", uintptr(next)))
	}
	m.cur = t
	start := !t.started
	t.started = true
	m.mu.Unlock()

	if t != self {
		if start {
			go m.run(t)
		} else {
			t.resume <- struct{}{}
		}
		m.park(self)
	}
	m.exceptionReturn()
}

// exceptionReturn leaves the switch trap on the resumed context. The switch
// only fires with the mask fully open, so that is what the context sees.
func (m *Machine) exceptionReturn() {
	m.mu.Lock()
	m.depth--
	m.mask = irq.LevelNone
	m.mu.Unlock()
}

// park blocks a context that gave up the CPU until it is selected again.
func (m *Machine) park(t *thread) {
	select {
	case <-t.resume:
	case <-m.done:
		m.mu.Lock()
		holder := m.cur == t
		m.mu.Unlock()
		if holder {
			m.release()
		}
		runtime.Goexit()
	}
}
