package job

import (
	"mios/internal/cpu"
	"mios/internal/sched"
)

// Buffer is a bounded FIFO of ints shared by producer and consumer tasks.
type Buffer struct {
	mu       *sched.Mutex
	notEmpty *sched.Cond
	notFull  *sched.Cond
	items    []int
	size     int
}

// NewBuffer creates a buffer holding at most size items.
func NewBuffer(k *sched.Kernel, name string, size int) *Buffer {
	if size < 1 {
		size = 1
	}
	mu := k.NewMutex(name)
	return &Buffer{
		mu:       mu,
		notEmpty: k.NewCond(mu),
		notFull:  k.NewCond(mu),
		size:     size,
	}
}

// Put appends v, waiting while the buffer is full.
func (b *Buffer) Put(v int) {
	b.mu.Lock()
	for len(b.items) == b.size {
		b.notFull.Wait()
	}
	b.items = append(b.items, v)
	b.notEmpty.Signal()
	b.mu.Unlock()
}

// Get removes the oldest item, waiting while the buffer is empty.
func (b *Buffer) Get() int {
	b.mu.Lock()
	for len(b.items) == 0 {
		b.notEmpty.Wait()
	}
	v := b.items[0]
	b.items = b.items[1:]
	b.notFull.Signal()
	b.mu.Unlock()
	return v
}

// Producer returns an entry that puts 1..n into b.
func Producer(b *Buffer, n int) cpu.Entry {
	return func(any) {
		for i := 1; i <= n; i++ {
			b.Put(i)
		}
	}
}

// Consumer returns an entry that gets n items from b and appends them to got.
func Consumer(b *Buffer, n int, got *[]int) cpu.Entry {
	return func(any) {
		for i := 0; i < n; i++ {
			v := b.Get()
			if got != nil {
				*got = append(*got, v)
			}
		}
	}
}
