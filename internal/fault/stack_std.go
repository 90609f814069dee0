//go:build !tinygo

package fault

import "runtime/debug"

func captureStack() []byte {
	return debug.Stack()
}
