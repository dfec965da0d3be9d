// Package emulator assembles the machine: the storage bus, the
// execution engine, the loader, and the embedded boot and fault
// programs, behind the driver surface a front end talks to.
package emulator

import (
	_ "embed"
	"io"
	"iter"
	"strings"

	"github.com/mhjnchetan/vn18/cpu"
	"github.com/mhjnchetan/vn18/front"
	"github.com/mhjnchetan/vn18/internal"
	"github.com/mhjnchetan/vn18/memory"
	"github.com/mhjnchetan/vn18/word"
)

const (
	// TrapTableBase is where the trap-subroutine table lives; its
	// address is installed at memory address 0.
	TrapTableBase = 960
	// FaultHandlerStart is where the fault handler program loads; its
	// address is installed at memory address 1.
	FaultHandlerStart = 944
)

//go:embed boot.txt
var bootSource string

//go:embed fault.txt
var faultSource string

// Emulator is the top-level driver.
type Emulator struct {
	Verbose bool

	Cpu    *cpu.Cpu
	Bus    *memory.Bus
	Loader *cpu.Loader
	Front  front.Frontend
}

// New creates a machine wired to the given front end. A nil front end
// runs headless.
func New(fe front.Frontend) (emu *Emulator) {
	if fe == nil {
		fe = front.Headless{}
	}

	bus := memory.NewBus()
	c := cpu.New(bus, fe)

	emu = &Emulator{
		Cpu:    c,
		Bus:    bus,
		Loader: cpu.NewLoader(c),
		Front:  fe,
	}

	return
}

// LoadROMFrom installs the reserved vectors and the fault handler,
// loads a caller-supplied boot program into the boot region, and
// points the PC at it.
func (emu *Emulator) LoadROMFrom(boot io.Reader) (err error) {
	err = emu.installVectors()
	if err != nil {
		return
	}
	err = emu.Loader.LoadAt(boot, memory.BootProgramAddr)
	if err != nil {
		return
	}
	emu.Cpu.InitPC(memory.BootProgramAddr)
	return
}

// LoadROM installs the reserved vectors, the fault handler, and the
// embedded boot program, and points the PC at the boot region.
func (emu *Emulator) LoadROM() (err error) {
	return emu.LoadROMFrom(strings.NewReader(bootSource))
}

// installVectors writes the reserved trap and fault vectors and loads
// the embedded fault handler.
func (emu *Emulator) installVectors() (err error) {
	emu.Cpu.Verbose = emu.Verbose
	emu.Bus.Verbose = emu.Verbose
	emu.Loader.Verbose = emu.Verbose

	err = emu.Bus.Write(word.FromUnsigned(TrapTableBase), memory.TrapTableBaseAddr)
	if err != nil {
		return
	}
	err = emu.Bus.Write(word.FromUnsigned(FaultHandlerStart), memory.FaultHandlerAddr)
	if err != nil {
		return
	}

	return emu.Loader.LoadAt(strings.NewReader(faultSource), FaultHandlerStart)
}

// LoadProgram assembles source into the default program region: the
// boot region if still empty, the general region otherwise.
func (emu *Emulator) LoadProgram(src io.Reader) error {
	return emu.Loader.Load(src)
}

// LoadData prefetches a data stream into the data region at address
// 1000, terminated by the EOT mark.
func (emu *Emulator) LoadData(src io.Reader) error {
	return emu.Loader.LoadData(src, memory.DataRegionAddr)
}

// Execute drives the engine in the given mode.
func (emu *Emulator) Execute(mode cpu.Mode) {
	emu.Cpu.Execute(mode)
}

// Run lets the boot program finish and then hands control to a program
// loaded in the general region, which runs in user mode.
func (emu *Emulator) Run(mode cpu.Mode) {
	emu.Execute(mode)
	if emu.WaitingForInput() {
		return
	}
	if origin := emu.Loader.Origin(); origin >= memory.GeneralProgramAddr {
		emu.Cpu.SetPC(origin)
		emu.Execute(mode)
	}
}

// ExecuteDirect assembles and runs a single raw instruction line
// without advancing the PC.
func (emu *Emulator) ExecuteDirect(line string) error {
	return emu.Cpu.ExecuteDirect(line)
}

// Interrupt delivers an external interrupt to the engine.
func (emu *Emulator) Interrupt(kind cpu.Interrupt) {
	emu.Cpu.HandleInterrupt(kind)
}

// FeedInput appends keyboard input to the engine's input buffer.
func (emu *Emulator) FeedInput(text string) {
	emu.Cpu.FeedInput(text)
}

// WaitingForInput reports whether execution has stalled on an IN
// instruction.
func (emu *Emulator) WaitingForInput() bool {
	return emu.Cpu.WaitingForInput()
}

// Registers yields every register, program-visible and decode-time, as
// (name, bit-string) pairs.
func (emu *Emulator) Registers() iter.Seq2[string, string] {
	return internal.IterSeq2Concat(emu.Cpu.Registers(), emu.Cpu.Fields())
}

// Cycles returns the micro-step count since construction.
func (emu *Emulator) Cycles() int {
	return emu.Cpu.Cycles
}

// Shutdown drains the write buffer and stops the memory controller.
func (emu *Emulator) Shutdown() {
	emu.Bus.Stop()
}
