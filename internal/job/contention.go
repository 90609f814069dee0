package job

import (
	"mios/internal/cpu"
	"mios/internal/sched"
)

// Counter is an integer shared between tasks and guarded by a kernel mutex.
type Counter struct {
	mu *sched.Mutex
	n  int
}

// NewCounter creates a counter guarded by a mutex named name.
func NewCounter(k *sched.Kernel, name string) *Counter {
	return &Counter{mu: k.NewMutex(name)}
}

// Value returns the current count. Only meaningful from task context.
func (c *Counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Contender returns an entry that increments c rounds times. Each increment
// reads the count, holds the mutex for hold ticks and writes it back, so
// lost updates show up as a short count.
func Contender(k *sched.Kernel, c *Counter, rounds, hold int) cpu.Entry {
	return func(any) {
		for i := 0; i < rounds; i++ {
			c.mu.Lock()
			n := c.n
			k.Delay(hold)
			c.n = n + 1
			c.mu.Unlock()
			k.Yield()
		}
	}
}

// Crossed returns an entry that takes first, waits hold ticks and then
// takes second. Two tasks created with the mutexes swapped deadlock.
func Crossed(k *sched.Kernel, first, second *sched.Mutex, hold int) cpu.Entry {
	return func(any) {
		first.Lock()
		k.Delay(hold)
		second.Lock()
		second.Unlock()
		first.Unlock()
	}
}
