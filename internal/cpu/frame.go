package cpu

import "encoding/binary"

// Frame is the initial register image a port writes at the top of a new
// stack. The layout follows a Cortex-M exception frame: eight callee-saved
// registers, then r0-r3, r12, lr, pc and xpsr, one 32-bit word each.
type Frame struct {
	R0   uint32 // argument handle
	LR   uint32 // exit trampoline handle
	PC   uint32 // entry handle
	XPSR uint32
}

const (
	// FrameSize is the number of bytes a frame occupies.
	FrameSize = 16 * 4

	// InitialXPSR has only the Thumb bit set.
	InitialXPSR = 0x01000000

	offR0   = 8 * 4
	offLR   = 13 * 4
	offPC   = 14 * 4
	offXPSR = 15 * 4
)

// WriteFrame stores f at the top of stack, zeroing the other registers, and
// returns the offset of the resulting stack pointer. It reports false when
// the stack cannot hold a frame.
func WriteFrame(stack []byte, f Frame) (int, bool) {
	if len(stack) < FrameSize {
		return 0, false
	}
	sp := (len(stack) - FrameSize) &^ 7
	img := stack[sp : sp+FrameSize]
	clear(img)
	binary.LittleEndian.PutUint32(img[offR0:], f.R0)
	binary.LittleEndian.PutUint32(img[offLR:], f.LR)
	binary.LittleEndian.PutUint32(img[offPC:], f.PC)
	binary.LittleEndian.PutUint32(img[offXPSR:], f.XPSR)
	return sp, true
}

// ReadFrame decodes the frame stored at offset sp.
func ReadFrame(stack []byte, sp int) Frame {
	img := stack[sp : sp+FrameSize]
	return Frame{
		R0:   binary.LittleEndian.Uint32(img[offR0:]),
		LR:   binary.LittleEndian.Uint32(img[offLR:]),
		PC:   binary.LittleEndian.Uint32(img[offPC:]),
		XPSR: binary.LittleEndian.Uint32(img[offXPSR:]),
	}
}
