package cpu

import (
	"github.com/mhjnchetan/vn18/word"
)

// ALU implements the arithmetic and logical operations. Inputs are
// staged in OP1..OP4, results land in RESULT (and RESULT2 for multiply
// and divide). At most one condition-code flag is set per call.
type ALU struct {
	c *Cpu
}

// NewALU creates an ALU bound to the engine's register file.
func NewALU(c *Cpu) *ALU {
	return &ALU{c: c}
}

// setCC clears the condition code register and sets the single flag.
func (a *ALU) setCC(flag uint) {
	cc := a.c.Reg(CC)
	cc.Clear()
	cc.SetBit(flag, true)
	a.c.notifyReg(CC)
}

// add leaves OP1+value in RESULT. A zero operand short-circuits: the
// original value passes through untouched and no flag is set.
func (a *ALU) add(value int32) {
	c := a.c
	if value == 0 {
		c.setReg(RESULT, c.Reg(OP1))
		return
	}

	c.Reg(CC).Clear()
	c.notifyReg(CC)
	before := c.Reg(OP1).Signed()
	after := before + value
	if uint32(before)&word.Mask > uint32(after)&word.Mask {
		a.setCC(FlagOverflow)
	}
	c.setRegSigned(RESULT, after)
}

// subtract leaves OP1-value in RESULT, with the same zero-operand
// short-circuit as add.
func (a *ALU) subtract(value int32) {
	c := a.c
	if value == 0 {
		c.setReg(RESULT, c.Reg(OP1))
		return
	}

	c.Reg(CC).Clear()
	c.notifyReg(CC)
	before := c.Reg(OP1).Signed()
	after := before - value
	if after > before {
		a.setCC(FlagUnderflow)
	}
	c.setRegSigned(RESULT, after)
}

// AIR adds the immediate in OP2 to OP1.
func (a *ALU) AIR() {
	a.add(a.c.Reg(OP2).Signed())
}

// AMR adds the memory operand in OP2 to OP1.
func (a *ALU) AMR() {
	a.AIR()
}

// SIR subtracts the immediate in OP2 from OP1.
func (a *ALU) SIR() {
	a.subtract(a.c.Reg(OP2).Signed())
}

// SMR subtracts the memory operand in OP2 from OP1.
func (a *ALU) SMR() {
	a.SIR()
}

// MLT multiplies OP1 by OP2 as unsigned values. RESULT takes the high
// 18 bits of the 36-bit product, RESULT2 the low 18.
func (a *ALU) MLT() {
	c := a.c
	c.Reg(CC).Clear()
	c.notifyReg(CC)
	product := uint64(c.Reg(OP1).Unsigned()) * uint64(c.Reg(OP2).Unsigned())

	if product >= 1<<(2*word.Bits) {
		a.setCC(FlagOverflow)
	}

	c.setRegValue(RESULT, uint32(product>>word.Bits))
	c.setRegValue(RESULT2, uint32(product)&word.Mask)
}

// DVD divides OP1 by OP2, leaving the quotient in RESULT and the
// remainder in RESULT2. Division by zero sets the flag and aborts
// without touching the result registers.
func (a *ALU) DVD() {
	c := a.c
	c.Reg(CC).Clear()
	c.notifyReg(CC)
	dividend := c.Reg(OP1).Signed()
	divisor := c.Reg(OP2).Signed()

	if divisor == 0 {
		a.setCC(FlagDivZero)
		return
	}

	c.setRegSigned(RESULT, dividend/divisor)
	c.setRegSigned(RESULT2, dividend%divisor)
}

// TRR compares OP1 and OP2 for equality. Equal sets the EQUALORNOT
// flag (clearing the rest); unequal explicitly clears only that flag.
func (a *ALU) TRR() {
	c := a.c
	if c.Reg(OP1).Signed() == c.Reg(OP2).Signed() {
		a.setCC(FlagEqualOrNot)
	} else {
		c.Reg(CC).SetBit(FlagEqualOrNot, false)
		c.notifyReg(CC)
	}
}

// AND leaves the bitwise AND of OP1 and OP2 in RESULT.
func (a *ALU) AND() {
	c := a.c
	c.setRegValue(RESULT, c.Reg(OP1).Unsigned()&c.Reg(OP2).Unsigned())
}

// ORR leaves the bitwise OR of OP1 and OP2 in RESULT.
func (a *ALU) ORR() {
	c := a.c
	c.setRegValue(RESULT, c.Reg(OP1).Unsigned()|c.Reg(OP2).Unsigned())
}

// NOT leaves the width-preserving complement of OP1 in RESULT.
func (a *ALU) NOT() {
	c := a.c
	c.setRegValue(RESULT, ^c.Reg(OP1).Unsigned()&word.Mask)
}

// SRC shifts OP1 by the count in OP2. OP3 selects left, OP4 selects
// logical; left shifts are identical either way, a right arithmetic
// shift extends the sign bit.
func (a *ALU) SRC() {
	c := a.c
	value := c.Reg(OP1).Unsigned()
	count := c.Reg(OP2).Unsigned()
	left := !c.Reg(OP3).IsZero()
	logical := !c.Reg(OP4).IsZero()

	var out uint32
	switch {
	case count >= word.Bits:
		if !left && !logical && value&(1<<(word.Bits-1)) != 0 {
			out = word.Mask
		}
	case left:
		out = value << count
	case logical:
		out = value >> count
	default:
		out = uint32(int32(value<<(32-word.Bits)) >> (32 - word.Bits) >> count)
	}

	c.setRegValue(RESULT, out&word.Mask)
}

// RRC rotates OP1 by the count in OP2 within the word width. OP3
// selects left; OP4 is ignored.
func (a *ALU) RRC() {
	c := a.c
	value := c.Reg(OP1).Unsigned()
	count := c.Reg(OP2).Unsigned() % word.Bits
	left := !c.Reg(OP3).IsZero()

	var out uint32
	if left {
		out = value<<count | value>>(word.Bits-count)
	} else {
		out = value>>count | value<<(word.Bits-count)
	}

	c.setRegValue(RESULT, out&word.Mask)
}

// GTE leaves 1 in RESULT when OP1 >= OP2 as signed values, else 0.
func (a *ALU) GTE() {
	c := a.c
	if c.Reg(OP1).Signed() >= c.Reg(OP2).Signed() {
		c.setRegValue(RESULT, 1)
	} else {
		c.setRegValue(RESULT, 0)
	}
}
