// Package memory implements the machine's storage hierarchy: the
// 2048-word main memory, the unified write-through L1 cache, and the
// write buffer drained by a dedicated memory-controller goroutine.
//
// The Bus ties the three together and is the only type the execution
// engine talks to. Reads happen synchronously on the caller's
// goroutine; completed writes travel through the buffer and are
// persisted by the controller.
package memory

import (
	"github.com/mhjnchetan/vn18/word"
)

const (
	// Size is the number of addressable words.
	Size = 2048
	// MaxAddr is the highest valid address.
	MaxAddr = Size - 1
)

// Reserved addresses.
const (
	// TrapTableBaseAddr holds the base of the trap-subroutine table.
	TrapTableBaseAddr = 0
	// FaultHandlerAddr holds the machine-fault handler entry address.
	FaultHandlerAddr = 1
	// TrapSavedPCAddr receives the PC on a TRAP.
	TrapSavedPCAddr = 2
	// FaultSavedPCAddr receives the PC on a machine fault.
	FaultSavedPCAddr = 4
	// FaultSavedMSRAddr receives the MSR on a machine fault.
	FaultSavedMSRAddr = 5
	// TrampolineAddr is the jump-indirection slot.
	TrampolineAddr = 8
	// BootProgramAddr is the start of the boot-program region.
	BootProgramAddr = 24
	// GeneralProgramAddr is the start of the general program region.
	GeneralProgramAddr = 100
	// DataRegionAddr is where bundled program data is prefetched.
	DataRegionAddr = 1000
)

// Memory is the flat word-addressable backing store. Writes are
// exclusive to the memory controller; the execution goroutine only
// reads, and the dirty-line rule keeps those reads off addresses with
// writes still in flight.
type Memory struct {
	words [Size]word.Word
}

// Read returns the word at addr.
func (m *Memory) Read(addr int) (w word.Word, err error) {
	if addr < 0 || addr > MaxAddr {
		err = ErrAddressRange(addr)
		return
	}
	w = m.words[addr]
	return
}

// Write stores a word at addr.
func (m *Memory) Write(w word.Word, addr int) (err error) {
	if addr < 0 || addr > MaxAddr {
		err = ErrAddressRange(addr)
		return
	}
	m.words[addr] = w
	return
}

// Block returns the 8-word block containing addr, together with the
// block base (addr with the low three bits cleared).
func (m *Memory) Block(addr int) (block [WordsPerLine]word.Word, tag int, err error) {
	if addr < 0 || addr > MaxAddr {
		err = ErrAddressRange(addr)
		return
	}
	tag = addr &^ (WordsPerLine - 1)
	copy(block[:], m.words[tag:tag+WordsPerLine])
	return
}
