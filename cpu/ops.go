package cpu

import (
	"log"

	"github.com/mhjnchetan/vn18/memory"
)

// microOps dispatches an opcode tag to its micro-operation sequence.
// Each entry switches on the engine's step counter, starting at 4;
// returning the counter to 0 completes the instruction.
var microOps map[Opcode]func(*Cpu)

// init populates microOps in a function body rather than a package-level
// initializer expression: the map only stores function values, but
// taking their addresses still pulls their bodies into the compiler's
// initialization-order dependency analysis, which (falsely) reports a
// cycle through Execute/microStep. Assigning inside init sidesteps that
// static analysis without changing when the map is actually populated.
func init() {
	microOps = map[Opcode]func(*Cpu){
		LDR: (*Cpu).opLDR, STR: (*Cpu).opSTR, LDA: (*Cpu).opLDA,
		LDX: (*Cpu).opLDX, STX: (*Cpu).opSTX,
		JZ: (*Cpu).opJZ, JNE: (*Cpu).opJNE, JCC: (*Cpu).opJCC,
		JMP: (*Cpu).opJMP, JSR: (*Cpu).opJSR, RFS: (*Cpu).opRFS,
		SOB: (*Cpu).opSOB, JGE: (*Cpu).opJGE,
		AMR: (*Cpu).opAMR, SMR: (*Cpu).opSMR,
		AIR: (*Cpu).opAIR, SIR: (*Cpu).opSIR,
		MLT: (*Cpu).opMLT, DVD: (*Cpu).opDVD,
		TRR: (*Cpu).opTRR, AND: (*Cpu).opAND, ORR: (*Cpu).opORR,
		NOT: (*Cpu).opNOT,
		SRC: (*Cpu).opSRC, RRC: (*Cpu).opRRC,
		IN: (*Cpu).opIN, OUT: (*Cpu).opOUT,
		TRAP: (*Cpu).opTRAP, HLT: (*Cpu).opHLT,
	}
}

// tick advances the cycle counter and moves to the next micro-step.
func (c *Cpu) tick() {
	c.Cycles++
	c.Step++
}

// finish advances the cycle counter and completes the instruction.
func (c *Cpu) finish() {
	c.Cycles++
	c.Step = 0
}

func (c *Cpu) opLDR() {
	switch c.Step {
	case 4:
		c.calculateEA(false)
		c.tick()
	case 5:
		// EA -> MAR
		c.setReg(MAR, &c.regs[EA])
		c.tick()
	case 6:
		// Mem(MAR) -> MDR
		c.setRegWord(MDR, c.readMem(int(c.regs[MAR].Unsigned())))
		c.tick()
	case 7:
		// MDR -> registerFile(R)
		c.setReg(c.registerFile(), &c.regs[MDR])
		c.finish()
	}
}

func (c *Cpu) opSTR() {
	switch c.Step {
	case 4:
		c.calculateEA(false)
		c.tick()
	case 5:
		// EA -> MAR, registerFile(R) -> MDR
		c.setReg(MAR, &c.regs[EA])
		c.setReg(MDR, c.Reg(c.registerFile()))
		c.tick()
	case 6:
		// MDR -> Mem(MAR)
		c.writeMem(c.regs[MDR].Word(), int(c.regs[MAR].Unsigned()))
		c.finish()
	}
}

func (c *Cpu) opLDA() {
	switch c.Step {
	case 4:
		c.calculateEA(false)
		c.tick()
	case 5:
		// EA -> registerFile(R)
		c.setReg(c.registerFile(), &c.regs[EA])
		c.finish()
	}
}

func (c *Cpu) opLDX() {
	switch c.Step {
	case 4:
		c.calculateEA(true)
		c.tick()
	case 5:
		c.setReg(MAR, &c.regs[EA])
		c.tick()
	case 6:
		c.setRegWord(MDR, c.readMem(int(c.regs[MAR].Unsigned())))
		c.tick()
	case 7:
		// MDR -> indexRegisterFile(IX)
		c.setReg(c.indexRegisterFile(), &c.regs[MDR])
		c.finish()
	}
}

func (c *Cpu) opSTX() {
	switch c.Step {
	case 4:
		c.calculateEA(true)
		c.tick()
	case 5:
		c.setReg(MAR, &c.regs[EA])
		c.setReg(MDR, c.Reg(c.indexRegisterFile()))
		c.tick()
	case 6:
		c.writeMem(c.regs[MDR].Word(), int(c.regs[MAR].Unsigned()))
		c.finish()
	}
}

// jumpToEA points the PC at the effective address and marks the jump
// so the driver does not also advance it.
func (c *Cpu) jumpToEA() {
	c.setReg(PC, &c.regs[EA])
	c.jumpTaken = true
}

func (c *Cpu) opJZ() {
	switch c.Step {
	case 4:
		c.calculateEA(false)
		c.tick()
	case 5:
		c.setReg(OP1, c.Reg(c.registerFile()))
		c.regs[OP2].Clear()
		c.tick()
	case 6:
		c.Alu.TRR()
		c.tick()
	case 7:
		if c.regs[CC].Bit(FlagEqualOrNot) {
			c.jumpToEA()
		}
		c.finish()
	}
}

func (c *Cpu) opJNE() {
	switch c.Step {
	case 4:
		c.calculateEA(false)
		c.tick()
	case 5:
		c.setReg(OP1, c.Reg(c.registerFile()))
		c.regs[OP2].Clear()
		c.tick()
	case 6:
		c.Alu.TRR()
		c.tick()
	case 7:
		if !c.regs[CC].Bit(FlagEqualOrNot) {
			c.jumpToEA()
		}
		c.finish()
	}
}

func (c *Cpu) opJCC() {
	switch c.Step {
	case 4:
		c.calculateEA(false)
		c.tick()
	case 5:
		if c.regs[CC].Bit(uint(c.regs[R].Unsigned())) {
			c.jumpToEA()
		}
		c.finish()
	}
}

func (c *Cpu) opJMP() {
	switch c.Step {
	case 4:
		c.calculateEA(false)
		c.tick()
	case 5:
		c.jumpToEA()
		c.finish()
	}
}

func (c *Cpu) opJSR() {
	switch c.Step {
	case 4:
		c.calculateEA(false)
		c.tick()
	case 5:
		// PC+1 -> R3
		c.setRegValue(R3, c.regs[PC].Unsigned()+1)
		c.tick()
	case 6:
		c.jumpToEA()
		c.finish()
	}
}

func (c *Cpu) opRFS() {
	switch c.Step {
	case 4:
		// ADDR -> R0
		c.setReg(R0, &c.regs[ADDR])
		c.tick()
	case 5:
		// R3 -> PC
		c.setReg(PC, &c.regs[R3])
		c.jumpTaken = true
		c.finish()
	}
}

func (c *Cpu) opSOB() {
	switch c.Step {
	case 4:
		c.calculateEA(false)
		c.tick()
	case 5:
		c.setReg(OP1, c.Reg(c.registerFile()))
		c.setRegValue(OP2, 1)
		c.tick()
	case 6:
		c.Alu.SIR()
		c.tick()
	case 7:
		// Decremented value back to the register, then stage the
		// greater-or-equal-zero test.
		c.setReg(c.registerFile(), &c.regs[RESULT])
		c.setReg(OP1, &c.regs[RESULT])
		c.regs[OP2].Clear()
		c.Alu.GTE()
		c.tick()
	case 8:
		if c.regs[RESULT].Unsigned() == 1 {
			c.jumpToEA()
		}
		c.finish()
	}
}

func (c *Cpu) opJGE() {
	switch c.Step {
	case 4:
		c.calculateEA(false)
		c.tick()
	case 5:
		c.setReg(OP1, c.Reg(c.registerFile()))
		c.regs[OP2].Clear()
		c.tick()
	case 6:
		c.Alu.GTE()
		c.tick()
	case 7:
		if c.regs[RESULT].Unsigned() == 1 {
			c.jumpToEA()
		}
		c.finish()
	}
}

func (c *Cpu) memoryArith(alu func(*ALU)) {
	switch c.Step {
	case 4:
		c.calculateEA(false)
		c.tick()
	case 5:
		c.setReg(MAR, &c.regs[EA])
		c.tick()
	case 6:
		c.setRegWord(MDR, c.readMem(int(c.regs[MAR].Unsigned())))
		c.tick()
	case 7:
		c.setReg(OP1, c.Reg(c.registerFile()))
		c.setReg(OP2, &c.regs[MDR])
		c.tick()
	case 8:
		alu(c.Alu)
		c.tick()
	case 9:
		c.setReg(c.registerFile(), &c.regs[RESULT])
		c.finish()
	}
}

func (c *Cpu) opAMR() { c.memoryArith((*ALU).AMR) }
func (c *Cpu) opSMR() { c.memoryArith((*ALU).SMR) }

func (c *Cpu) immediateArith(alu func(*ALU)) {
	switch c.Step {
	case 4:
		c.setReg(OP1, c.Reg(c.registerFile()))
		// ADDR holds the immediate data.
		c.setReg(OP2, &c.regs[ADDR])
		c.tick()
	case 5:
		alu(c.Alu)
		c.tick()
	case 6:
		c.setReg(c.registerFile(), &c.regs[RESULT])
		c.finish()
	}
}

func (c *Cpu) opAIR() { c.immediateArith((*ALU).AIR) }
func (c *Cpu) opSIR() { c.immediateArith((*ALU).SIR) }

// registerPair maps RX to the register receiving the second result
// word. RX may only name R0 or R2.
func (c *Cpu) registerPair() RegID {
	if c.regs[RX].Unsigned() == 0 {
		return R1
	}
	return R3
}

func (c *Cpu) doubleResult(alu func(*ALU)) {
	switch c.Step {
	case 4:
		c.setReg(OP1, c.Reg(R0+RegID(c.regs[RX].Unsigned())))
		c.setReg(OP2, c.Reg(R0+RegID(c.regs[RY].Unsigned())))
		c.tick()
	case 5:
		alu(c.Alu)
		c.tick()
	case 6:
		if !c.regs[CC].Bit(FlagDivZero) {
			c.setReg(R0+RegID(c.regs[RX].Unsigned()), &c.regs[RESULT])
			c.setReg(c.registerPair(), &c.regs[RESULT2])
		}
		c.finish()
	}
}

func (c *Cpu) opMLT() { c.doubleResult((*ALU).MLT) }
func (c *Cpu) opDVD() { c.doubleResult((*ALU).DVD) }

func (c *Cpu) opTRR() {
	switch c.Step {
	case 4:
		c.setReg(OP1, c.Reg(R0+RegID(c.regs[RX].Unsigned())))
		c.setReg(OP2, c.Reg(R0+RegID(c.regs[RY].Unsigned())))
		c.tick()
	case 5:
		c.Alu.TRR()
		c.finish()
	}
}

func (c *Cpu) registerLogic(alu func(*ALU)) {
	switch c.Step {
	case 4:
		c.setReg(OP1, c.Reg(R0+RegID(c.regs[RX].Unsigned())))
		c.setReg(OP2, c.Reg(R0+RegID(c.regs[RY].Unsigned())))
		c.tick()
	case 5:
		alu(c.Alu)
		c.tick()
	case 6:
		c.setReg(R0+RegID(c.regs[RX].Unsigned()), &c.regs[RESULT])
		c.finish()
	}
}

func (c *Cpu) opAND() { c.registerLogic((*ALU).AND) }
func (c *Cpu) opORR() { c.registerLogic((*ALU).ORR) }

func (c *Cpu) opNOT() {
	switch c.Step {
	case 4:
		c.setReg(OP1, c.Reg(R0+RegID(c.regs[RX].Unsigned())))
		c.tick()
	case 5:
		c.Alu.NOT()
		c.tick()
	case 6:
		c.setReg(R0+RegID(c.regs[RX].Unsigned()), &c.regs[RESULT])
		c.finish()
	}
}

func (c *Cpu) shiftRotate(alu func(*ALU)) {
	switch c.Step {
	case 4:
		c.setReg(OP1, c.Reg(c.registerFile()))
		c.setReg(OP2, &c.regs[COUNT])
		c.setReg(OP3, &c.regs[LR])
		c.setReg(OP4, &c.regs[AL])
		c.tick()
	case 5:
		alu(c.Alu)
		c.tick()
	case 6:
		c.setReg(c.registerFile(), &c.regs[RESULT])
		c.finish()
	}
}

func (c *Cpu) opSRC() { c.shiftRotate((*ALU).SRC) }
func (c *Cpu) opRRC() { c.shiftRotate((*ALU).RRC) }

func (c *Cpu) opIN() {
	if c.InputBuffer == "" {
		if c.Verbose {
			log.Printf("cpu: IN stalled, waiting for interrupt")
		}
		c.waitForInterrupt = true
		return
	}

	// Echo the buffer to the terminal on first consume, then hand one
	// character to the register per execution.
	if c.characterPointer == 0 {
		c.Front.AppendTerminal(c.InputBuffer)
	}
	input := c.InputBuffer[c.characterPointer]
	c.characterPointer++
	c.setRegValue(c.registerFile(), uint32(input))

	if c.characterPointer == len(c.InputBuffer) {
		c.characterPointer = 0
		c.InputBuffer = ""
	}
	c.finish()
}

func (c *Cpu) opOUT() {
	// Device 1 is the console; other devices are ignored.
	if c.regs[DEVID].Unsigned() == 1 {
		out := byte(c.Reg(c.registerFile()).Unsigned())
		c.Front.AppendTerminal(string(rune(out)))
	}
	c.finish()
}

func (c *Cpu) opTRAP() {
	switch c.Step {
	case 4:
		// PC -> Mem(2)
		c.writeMem(c.regs[PC].Word(), memory.TrapSavedPCAddr)
		c.tick()
	case 5:
		table := int(c.readMem(memory.TrapTableBaseAddr).Unsigned())
		entry := c.readMem(table + int(c.regs[TRAPCODE].Unsigned()))
		if entry.IsZero() {
			// Undefined trap code is a machine fault.
			c.machineFault()
			c.finish()
			return
		}
		c.setRegWord(PC, entry)
		c.jumpTaken = true
		c.finish()
	}
}

func (c *Cpu) opHLT() {
	if c.Verbose {
		log.Printf("cpu: halt")
	}
	c.contExecution = false
	c.Step = 0
	c.Front.DisableButtons()
	c.Front.ToggleButton("load", true)
	c.Front.AppendTerminal("\n__________________________________________________\n")

	if c.bootRunning {
		// Boot halt: go idle with results intact, wait for a program.
		c.bootRunning = false
	} else {
		// A user program clears the working registers and returns
		// control to the boot program.
		c.clearMainRegisters()
		c.bootRunning = true
		c.jumpTaken = true
		c.setRegValue(PC, memory.BootProgramAddr)
	}
}

// clearMainRegisters zeroes the general and index registers between
// programs.
func (c *Cpu) clearMainRegisters() {
	for _, id := range []RegID{R0, R1, R2, R3, X1, X2, X3} {
		c.regs[id].Clear()
		c.notifyReg(id)
	}
}
