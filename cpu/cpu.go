package cpu

import (
	"log"

	"github.com/mhjnchetan/vn18/front"
	"github.com/mhjnchetan/vn18/memory"
	"github.com/mhjnchetan/vn18/word"
)

// Mode selects how the driver advances execution.
type Mode int

const (
	// ModeContinue runs until HLT or an input stall.
	ModeContinue = Mode(iota)
	// ModeMicroStep advances a single micro-operation.
	ModeMicroStep
	// ModeMacroStep runs one full instruction.
	ModeMacroStep
	// ModeDirect executes a raw instruction line without advancing PC.
	ModeDirect
)

// Interrupt identifies an external interrupt source.
type Interrupt byte

const (
	// InterruptIO signals that the input buffer has been filled.
	InterruptIO = Interrupt(iota)
)

// Cpu is the execution engine: the register file, the micro-step state
// machine, and the hooks to storage and the front end. It is
// constructed by the driver and threaded through calls explicitly;
// there is no hidden global instance.
type Cpu struct {
	Verbose bool

	Bus   *memory.Bus
	Front front.Frontend

	Alu     *ALU
	Decoder *IRDecoder
	Labels  *LabelTable

	// Step is the micro-operation counter within the current
	// instruction; 0 is the universal fetch.
	Step int
	// Cycles counts every micro-step transition.
	Cycles int

	// InputBuffer holds pending keyboard input; the character pointer
	// tracks how much the IN instruction has consumed.
	InputBuffer      string
	characterPointer int

	// MemoryStack points at the top-of-memory stack region available
	// to programs.
	MemoryStack int

	waitForInterrupt bool
	jumpTaken        bool
	bootRunning      bool
	contExecution    bool
	currentMode      Mode
	lastDirect       string

	regs [numRegs]word.Register
}

// New creates an engine over the given storage bus and front end.
func New(bus *memory.Bus, fe front.Frontend) (c *Cpu) {
	c = &Cpu{
		Bus:           bus,
		Front:         fe,
		Labels:        &LabelTable{},
		MemoryStack:   memory.MaxAddr,
		contExecution: true,
	}
	for id := RegID(0); id < numRegs; id++ {
		c.regs[id] = word.NewRegister(regWidths[id])
	}
	c.Alu = NewALU(c)
	c.Decoder = NewIRDecoder(c)

	return
}

// notifyReg pushes a register's new contents to the front end.
func (c *Cpu) notifyReg(id RegID) {
	c.Front.UpdateRegister(id.String(), c.regs[id].String())
}

// setReg copies a source register into dst, width-converting.
func (c *Cpu) setReg(dst RegID, src *word.Register) {
	c.regs[dst].Load(src)
	c.notifyReg(dst)
}

// setRegWord loads a memory word into dst.
func (c *Cpu) setRegWord(dst RegID, w word.Word) {
	c.regs[dst].SetWord(w)
	c.notifyReg(dst)
}

// setRegValue loads an unsigned value into dst.
func (c *Cpu) setRegValue(dst RegID, value uint32) {
	c.regs[dst].SetUnsigned(value)
	c.notifyReg(dst)
}

// setRegSigned loads a signed value into dst.
func (c *Cpu) setRegSigned(dst RegID, value int32) {
	c.regs[dst].SetSigned(value)
	c.notifyReg(dst)
}

// InitPC points the program counter at an address and rearms the
// micro-step counter. Execution restarts as the boot program.
func (c *Cpu) InitPC(addr int) {
	c.setRegValue(PC, uint32(addr))
	c.bootRunning = true
	c.Step = 0
}

// SetPC points the program counter at an address without changing
// which program owns the machine. InitPC instead restarts as boot.
func (c *Cpu) SetPC(addr int) {
	c.setRegValue(PC, uint32(addr))
	c.Step = 0
}

// Halted reports whether a HLT has stopped execution since it was last
// rearmed. Only a continue-mode run rearms execution, as it returns;
// the step modes leave the flag as they find it.
func (c *Cpu) Halted() bool {
	return !c.contExecution
}

// WaitingForInput reports whether an IN instruction has stalled on an
// empty input buffer.
func (c *Cpu) WaitingForInput() bool {
	return c.waitForInterrupt
}

// BootRunning reports whether the boot program owns the machine.
func (c *Cpu) BootRunning() bool {
	return c.bootRunning
}

// readMem reads through the cache; an out-of-range address transfers
// control to the machine-fault handler and yields a zero word.
func (c *Cpu) readMem(addr int) word.Word {
	w, err := c.Bus.Read(addr)
	if err != nil {
		c.machineFault()
		return 0
	}
	return w
}

// writeMem writes through the cache; an out-of-range address transfers
// control to the machine-fault handler.
func (c *Cpu) writeMem(w word.Word, addr int) {
	err := c.Bus.Write(w, addr)
	if err != nil {
		c.machineFault()
	}
}

// machineFault saves the trapped PC and the MSR image to their reserved
// slots, points the PC at the fault-handler entry from address 1, and
// runs the handler to completion.
func (c *Cpu) machineFault() {
	if c.Verbose {
		log.Printf("cpu: machine fault at PC %v", c.regs[PC].Unsigned())
	}

	origPC, _ := c.Bus.Read(memory.TrapSavedPCAddr)
	c.Bus.Write(origPC, memory.FaultSavedPCAddr)

	c.regs[MSR].Load(&c.regs[PC])
	c.notifyReg(MSR)
	c.Bus.Write(c.regs[MSR].Word(), memory.FaultSavedMSRAddr)

	handler, _ := c.Bus.Read(memory.FaultHandlerAddr)
	c.setRegWord(PC, handler)
	c.Step = 0

	c.Execute(ModeContinue)
}

// advancePC bumps the program counter unless the instruction took a
// jump.
func (c *Cpu) advancePC() {
	if c.jumpTaken {
		c.jumpTaken = false
		return
	}
	c.setRegValue(PC, c.regs[PC].Unsigned()+1)
}

// calculateEA resolves the effective address from ADDR, the index
// registers, and the indirection flag. LDX/STX use IX to name their
// target, so indexing is suppressed for them. Indirection costs one
// extra memory cycle, never more.
func (c *Cpu) calculateEA(ldxstx bool) {
	ix := c.regs[IX].Unsigned()

	if ldxstx || ix == 0 {
		c.setReg(EA, &c.regs[ADDR])
	} else {
		base := c.Reg(c.indexRegisterFile()).Signed()
		c.setRegSigned(EA, base+int32(c.regs[ADDR].Unsigned()))
	}

	if !c.regs[I].IsZero() {
		c.setReg(MAR, &c.regs[EA])
		c.setRegWord(MDR, c.readMem(int(c.regs[MAR].Unsigned())))
		c.setReg(EA, &c.regs[MDR])
	}
}

// HandleInterrupt resumes an instruction stalled on input. Other
// interrupt kinds are ignored.
func (c *Cpu) HandleInterrupt(kind Interrupt) {
	switch kind {
	case InterruptIO:
		if c.InputBuffer != "" && c.waitForInterrupt {
			if c.Verbose {
				log.Printf("cpu: restarting stalled instruction")
			}
			c.waitForInterrupt = false
			if c.currentMode == ModeDirect {
				c.ExecuteDirect(c.lastDirect)
			} else {
				c.Execute(c.currentMode)
			}
		}
	}
}

// FeedInput appends text to the input buffer.
func (c *Cpu) FeedInput(text string) {
	c.InputBuffer += text
}

// Execute drives the micro-step state machine in the given mode. The
// call returns early when an IN instruction stalls on empty input; the
// driver resumes it with HandleInterrupt.
func (c *Cpu) Execute(mode Mode) {
	c.currentMode = mode

	switch mode {
	case ModeContinue:
		c.Front.ToggleButton("load", false)
		for c.contExecution {
			c.microStep()
			if c.waitForInterrupt {
				return
			}
			if c.Step == 0 {
				c.instructionDone()
			}
		}
		c.contExecution = true

	case ModeMicroStep:
		c.Front.ToggleButton("load", false)
		c.microStep()
		if c.waitForInterrupt {
			return
		}
		if c.Step == 0 {
			c.instructionDone()
			c.Front.ToggleButton("runinput", true)
		}

	case ModeMacroStep:
		c.Front.ToggleButton("load", false)
		for {
			c.microStep()
			if c.waitForInterrupt {
				return
			}
			if c.Step == 0 {
				break
			}
		}
		c.instructionDone()
		c.Front.ToggleButton("runinput", true)
	}
}

// ExecuteDirect assembles a single raw instruction line, places it in
// MDR, and executes it from the IR-transfer step onward. PC does not
// advance; a stall rolls the attempt back.
func (c *Cpu) ExecuteDirect(line string) (err error) {
	loader := NewLoader(c)
	loader.labels = c.Labels
	w, err := loader.InstructionToWord(line)
	if err != nil {
		return
	}

	c.currentMode = ModeDirect
	c.lastDirect = line

	c.setRegWord(MDR, w)
	c.Cycles++
	c.Step += 2

	for {
		c.microStep()
		if c.waitForInterrupt {
			c.Cycles -= 2
			c.Step = 0
			return
		}
		if c.Step == 0 {
			break
		}
	}
	c.directDone()

	return
}

// instructionDone logs the boundary and advances the PC.
func (c *Cpu) instructionDone() {
	if c.Verbose {
		log.Printf("cpu: --------- instruction done ---------")
		for name, bits := range c.Registers() {
			log.Printf("cpu: %7s: %v", name, bits)
		}
	}
	c.advancePC()
}

// directDone is the direct-mode variant: same boundary, no PC
// advancement.
func (c *Cpu) directDone() {
	if c.Verbose {
		log.Printf("cpu: --------- instruction done (direct) ---------")
	}
	c.jumpTaken = false
}

// microStep performs one micro-operation. Steps 0..3 are the universal
// fetch/decode prologue; later steps dispatch through the opcode table.
func (c *Cpu) microStep() {
	switch c.Step {
	case 0:
		// PC -> MAR
		c.setReg(MAR, &c.regs[PC])
		c.Cycles++
		c.Step++

	case 1:
		// Mem(MAR) -> MDR
		c.setRegWord(MDR, c.readMem(int(c.regs[MAR].Unsigned())))
		c.Cycles++
		c.Step++

	case 2:
		// MDR -> IR
		c.setReg(IR, &c.regs[MDR])
		c.Cycles++
		c.Step++

	case 3:
		c.Decoder.ParseIR(&c.regs[IR])

		// An address field naming the indirection slot means the true
		// target did not fit; resolve it from the label table and park
		// it in the slot before the EA path runs.
		if c.regs[ADDR].Unsigned() == memory.TrampolineAddr {
			pc := int(c.regs[PC].Unsigned())
			if target, ok := c.Labels.JumpAddrForReference(pc); ok {
				c.writeMem(word.FromUnsigned(uint32(target)), memory.TrampolineAddr)
			}
		}

		c.Cycles++
		c.Step++

	default:
		op := Opcode(c.regs[OPCODE].Unsigned())
		micro, ok := microOps[op]
		if !ok {
			if c.Verbose {
				log.Printf("cpu: unknown opcode %#o, treating as HLT", uint32(op))
			}
			micro = (*Cpu).opHLT
		}
		micro(c)
	}
}
