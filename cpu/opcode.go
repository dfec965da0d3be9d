package cpu

import (
	"github.com/mhjnchetan/vn18/word"
)

const (
	// OpcodeBits is the width of the opcode field, always the top six
	// bits of the instruction word.
	OpcodeBits = 6
	// AddrBits is the width of the address field.
	AddrBits = 5
	// MaxDirectAddr is the largest address encodable in the address
	// field; larger targets go through the indirection slot.
	MaxDirectAddr = (1 << AddrBits) - 1
)

// Opcode is the 6-bit operation tag.
type Opcode uint8

const (
	HLT = Opcode(0o00)
	LDR = Opcode(0o01)
	STR = Opcode(0o02)
	LDA = Opcode(0o03)
	AMR = Opcode(0o04)
	SMR = Opcode(0o05)
	AIR = Opcode(0o06)
	SIR = Opcode(0o07)

	JZ  = Opcode(0o10)
	JNE = Opcode(0o11)
	JCC = Opcode(0o12)
	JMP = Opcode(0o13)
	JSR = Opcode(0o14)
	RFS = Opcode(0o15)
	SOB = Opcode(0o16)
	JGE = Opcode(0o17)

	MLT = Opcode(0o20)
	DVD = Opcode(0o21)
	TRR = Opcode(0o22)
	AND = Opcode(0o23)
	ORR = Opcode(0o24)
	NOT = Opcode(0o25)

	TRAP = Opcode(0o30)
	SRC  = Opcode(0o31)
	RRC  = Opcode(0o32)

	LDX = Opcode(0o41)
	STX = Opcode(0o42)

	IN  = Opcode(0o61)
	OUT = Opcode(0o62)
)

// Format selects which field layout the bits after the opcode follow.
type Format int

const (
	// FormatLS is the load/store and jump layout: R, IX, I, ADDR.
	FormatLS = Format(iota)
	// FormatLX is the index-register layout: IX, I, ADDR, no R.
	FormatLX
	// FormatImm is the immediate layout: R, ADDR as immediate data.
	FormatImm
	// FormatTrap is the trap layout: TRAPCODE only.
	FormatTrap
	// FormatXY is the register-register layout: RX, RY.
	FormatXY
	// FormatMonoX is the single-register layout: RX.
	FormatMonoX
	// FormatShift is the shift/rotate layout: R, AL, LR, COUNT.
	FormatShift
	// FormatIO is the device layout: R, DEVID.
	FormatIO
)

// opcodeNames maps mnemonics to opcode tags. The loader matches the
// first token of each source line against this table.
var opcodeNames = map[string]Opcode{
	"HLT": HLT, "LDR": LDR, "STR": STR, "LDA": LDA,
	"AMR": AMR, "SMR": SMR, "AIR": AIR, "SIR": SIR,
	"JZ": JZ, "JNE": JNE, "JCC": JCC, "JMP": JMP,
	"JSR": JSR, "RFS": RFS, "SOB": SOB, "JGE": JGE,
	"MLT": MLT, "DVD": DVD, "TRR": TRR, "AND": AND,
	"ORR": ORR, "NOT": NOT, "TRAP": TRAP, "SRC": SRC,
	"RRC": RRC, "LDX": LDX, "STX": STX, "IN": IN, "OUT": OUT,
}

// opcodeFormats maps each opcode to its instruction format.
var opcodeFormats = map[Opcode]Format{
	HLT: FormatTrap, TRAP: FormatTrap,
	LDR: FormatLS, STR: FormatLS, LDA: FormatLS,
	AMR: FormatLS, SMR: FormatLS,
	JZ: FormatLS, JNE: FormatLS, JCC: FormatLS, JMP: FormatLS,
	JSR: FormatLS, RFS: FormatLS, SOB: FormatLS, JGE: FormatLS,
	AIR: FormatImm, SIR: FormatImm,
	MLT: FormatXY, DVD: FormatXY, TRR: FormatXY, AND: FormatXY, ORR: FormatXY,
	NOT: FormatMonoX,
	SRC: FormatShift, RRC: FormatShift,
	LDX: FormatLX, STX: FormatLX,
	IN: FormatIO, OUT: FormatIO,
}

func (op Opcode) String() string {
	for name, tag := range opcodeNames {
		if tag == op {
			return name
		}
	}
	return "???"
}

// Field packing. Bit 0 of the word is the MSB; a field starting at bit
// s with size n occupies bits s..s+n-1 and is extracted by shifting
// from the LSB end.

func packField(w word.Word, start, size uint, value uint32) word.Word {
	shift := word.Bits - start - size
	mask := (uint32(1)<<size - 1) << shift
	return word.FromUnsigned(w.Unsigned()&^mask | (value << shift & mask))
}

func unpackField(w word.Word, start, size uint) uint32 {
	shift := word.Bits - start - size
	return (w.Unsigned() >> shift) & (uint32(1)<<size - 1)
}

// Field bit offsets per format, immediately after the 6-bit opcode.
const (
	lsRStart    = uint(6)
	lsIXStart   = uint(8)
	lsIStart    = uint(10)
	lsAddrStart = uint(11)

	lxIXStart   = uint(6)
	lxIStart    = uint(8)
	lxAddrStart = uint(9)

	immRStart    = uint(6)
	immAddrStart = uint(8)

	trapCodeStart = uint(6)

	xyRXStart = uint(6)
	xyRYStart = uint(8)

	shiftRStart     = uint(6)
	shiftALStart    = uint(8)
	shiftLRStart    = uint(9)
	shiftCountStart = uint(10)

	ioRStart     = uint(6)
	ioDevidStart = uint(8)
)

func packOpcode(op Opcode) word.Word {
	return packField(0, 0, OpcodeBits, uint32(op))
}

// MakeLS assembles a load/store or jump format word.
func MakeLS(op Opcode, r, ix, i, addr uint32) word.Word {
	w := packOpcode(op)
	w = packField(w, lsRStart, 2, r)
	w = packField(w, lsIXStart, 2, ix)
	w = packField(w, lsIStart, 1, i)
	w = packField(w, lsAddrStart, AddrBits, addr)
	return w
}

// MakeLX assembles an LDX/STX format word.
func MakeLX(op Opcode, ix, i, addr uint32) word.Word {
	w := packOpcode(op)
	w = packField(w, lxIXStart, 2, ix)
	w = packField(w, lxIStart, 1, i)
	w = packField(w, lxAddrStart, AddrBits, addr)
	return w
}

// MakeImm assembles an immediate format word.
func MakeImm(op Opcode, r, immed uint32) word.Word {
	w := packOpcode(op)
	w = packField(w, immRStart, 2, r)
	w = packField(w, immAddrStart, AddrBits, immed)
	return w
}

// MakeTrap assembles a trap format word.
func MakeTrap(op Opcode, code uint32) word.Word {
	w := packOpcode(op)
	w = packField(w, trapCodeStart, 4, code)
	return w
}

// MakeMonoX assembles a single-register format word.
func MakeMonoX(op Opcode, rx uint32) word.Word {
	w := packOpcode(op)
	w = packField(w, xyRXStart, 2, rx)
	return w
}

// MakeXY assembles a register-register format word.
func MakeXY(op Opcode, rx, ry uint32) word.Word {
	w := packOpcode(op)
	w = packField(w, xyRXStart, 2, rx)
	w = packField(w, xyRYStart, 2, ry)
	return w
}

// MakeShift assembles a shift/rotate format word.
func MakeShift(op Opcode, r, al, lr, count uint32) word.Word {
	w := packOpcode(op)
	w = packField(w, shiftRStart, 2, r)
	w = packField(w, shiftALStart, 1, al)
	w = packField(w, shiftLRStart, 1, lr)
	w = packField(w, shiftCountStart, 4, count)
	return w
}

// MakeIO assembles an input/output format word.
func MakeIO(op Opcode, r, devid uint32) word.Word {
	w := packOpcode(op)
	w = packField(w, ioRStart, 2, r)
	w = packField(w, ioDevidStart, 5, devid)
	return w
}
