package cpu

import (
	"github.com/mhjnchetan/vn18/word"
)

// IRDecoder splits the instruction register into the decode-time field
// registers. The opcode is always the top six bits; the remaining
// fields depend on the opcode's format.
type IRDecoder struct {
	c *Cpu
}

// NewIRDecoder creates a decoder bound to the engine's register file.
func NewIRDecoder(c *Cpu) *IRDecoder {
	return &IRDecoder{c: c}
}

// ParseIR decodes the given instruction word into the field registers.
// Fields absent from the instruction's format are cleared.
func (d *IRDecoder) ParseIR(ir *word.Register) {
	c := d.c
	w := ir.Word()

	for id := OPCODE; id <= TRAPCODE; id++ {
		c.regs[id].Clear()
	}

	op := Opcode(unpackField(w, 0, OpcodeBits))
	c.setRegValue(OPCODE, uint32(op))

	switch opcodeFormats[op] {
	case FormatLS:
		c.setRegValue(R, unpackField(w, lsRStart, 2))
		c.setRegValue(IX, unpackField(w, lsIXStart, 2))
		c.setRegValue(I, unpackField(w, lsIStart, 1))
		c.setRegValue(ADDR, unpackField(w, lsAddrStart, AddrBits))
	case FormatLX:
		c.setRegValue(IX, unpackField(w, lxIXStart, 2))
		c.setRegValue(I, unpackField(w, lxIStart, 1))
		c.setRegValue(ADDR, unpackField(w, lxAddrStart, AddrBits))
	case FormatImm:
		c.setRegValue(R, unpackField(w, immRStart, 2))
		c.setRegValue(ADDR, unpackField(w, immAddrStart, AddrBits))
	case FormatTrap:
		c.setRegValue(TRAPCODE, unpackField(w, trapCodeStart, 4))
	case FormatXY:
		c.setRegValue(RX, unpackField(w, xyRXStart, 2))
		c.setRegValue(RY, unpackField(w, xyRYStart, 2))
	case FormatMonoX:
		c.setRegValue(RX, unpackField(w, xyRXStart, 2))
	case FormatShift:
		c.setRegValue(R, unpackField(w, shiftRStart, 2))
		c.setRegValue(AL, unpackField(w, shiftALStart, 1))
		c.setRegValue(LR, unpackField(w, shiftLRStart, 1))
		c.setRegValue(COUNT, unpackField(w, shiftCountStart, 4))
	case FormatIO:
		c.setRegValue(R, unpackField(w, ioRStart, 2))
		c.setRegValue(DEVID, unpackField(w, ioDevidStart, 5))
	}
}
