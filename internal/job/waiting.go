package job

import (
	"mios/internal/cpu"
	"mios/internal/sched"
)

// Sleeper returns an entry that sleeps ticks clock ticks, rounds times, and
// counts the rounds it completed in done (which may be nil).
func Sleeper(k *sched.Kernel, ticks, rounds int, done *int) cpu.Entry {
	return func(any) {
		for i := 0; i < rounds; i++ {
			k.Delay(ticks)
			if done != nil {
				*done++
			}
		}
	}
}

// Waiter returns an entry that sleeps on q with a timeout and records
// whether it was woken (true) or timed out (false).
func Waiter(k *sched.Kernel, q *sched.Queue, timeout int, woken *bool) cpu.Entry {
	return func(any) {
		err := k.Sleep(q, timeout)
		if woken != nil {
			*woken = err == nil
		}
	}
}
