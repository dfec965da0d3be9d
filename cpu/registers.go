package cpu

import (
	"iter"

	"github.com/mhjnchetan/vn18/word"
)

// RegID names a register in the file. Lookup is a direct index.
type RegID int

const (
	// General purpose registers.
	R0 = RegID(iota)
	R1
	R2
	R3

	// Index registers.
	X1
	X2
	X3

	// Special registers.
	PC
	IR
	CC
	MAR
	MDR
	MSR
	MFR
	EA

	// ALU staging registers.
	OP1
	OP2
	OP3
	OP4
	RESULT
	RESULT2

	// Decode-time field registers.
	OPCODE
	IX
	R
	I
	ADDR
	RX
	RY
	AL
	LR
	COUNT
	DEVID
	TRAPCODE

	numRegs
)

var regNames = [numRegs]string{
	"R0", "R1", "R2", "R3",
	"X1", "X2", "X3",
	"PC", "IR", "CC", "MAR", "MDR", "MSR", "MFR", "EA",
	"OP1", "OP2", "OP3", "OP4", "RESULT", "RESULT2",
	"OPCODE", "IX", "R", "I", "ADDR", "RX", "RY", "AL", "LR", "COUNT",
	"DEVID", "TRAPCODE",
}

var regWidths = [numRegs]uint{
	18, 18, 18, 18,
	18, 18, 18,
	12, 18, 4, 18, 18, 18, 4, 18,
	18, 18, 18, 18, 18, 18,
	OpcodeBits, 2, 2, 1, AddrBits, 2, 2, 1, 1, 4,
	5, 4,
}

func (id RegID) String() string {
	return regNames[id]
}

// Condition-code flag positions within CC. Bit 0 is the MSB.
const (
	FlagOverflow   = uint(0)
	FlagUnderflow  = uint(1)
	FlagDivZero    = uint(2)
	FlagEqualOrNot = uint(3)
)

// Reg returns the register for direct manipulation. Mutating through
// the returned pointer bypasses front-end notification; prefer the
// setReg helpers inside the engine.
func (c *Cpu) Reg(id RegID) *word.Register {
	return &c.regs[id]
}

// registerFile maps the contents of the R field register to a general
// purpose register.
func (c *Cpu) registerFile() RegID {
	return R0 + RegID(c.regs[R].Unsigned())
}

// indexRegisterFile maps the contents of the IX field register to an
// index register. IX must be 1..3.
func (c *Cpu) indexRegisterFile() RegID {
	return X1 + RegID(c.regs[IX].Unsigned()-1)
}

// Registers yields the program-visible registers as (name, bit-string)
// pairs.
func (c *Cpu) Registers() iter.Seq2[string, string] {
	return c.registerRange(R0, RESULT2)
}

// Fields yields the decode-time field registers as (name, bit-string)
// pairs.
func (c *Cpu) Fields() iter.Seq2[string, string] {
	return c.registerRange(OPCODE, TRAPCODE)
}

func (c *Cpu) registerRange(lo, hi RegID) iter.Seq2[string, string] {
	return func(yield func(name, bits string) bool) {
		for id := lo; id <= hi; id++ {
			if !yield(id.String(), c.regs[id].String()) {
				return
			}
		}
	}
}
