package cpu

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhjnchetan/vn18/memory"
	"github.com/mhjnchetan/vn18/word"
)

// recorder is a test frontend capturing terminal output.
type recorder struct {
	mu       sync.Mutex
	terminal strings.Builder
}

func (rec *recorder) UpdateRegister(string, string) {}
func (rec *recorder) ToggleButton(string, bool)     {}
func (rec *recorder) DisableButtons()               {}

func (rec *recorder) AppendTerminal(text string) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.terminal.WriteString(text)
}

func (rec *recorder) Terminal() string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.terminal.String()
}

func recordedCpu(t *testing.T) (*Cpu, *recorder) {
	bus := memory.NewBus()
	t.Cleanup(bus.Stop)
	rec := &recorder{}
	return New(bus, rec), rec
}

// runProgram loads a program, points the PC at it, and runs to a halt.
func runProgram(t *testing.T, c *Cpu, addr int, lines ...string) {
	loadAt(t, c, addr, lines...)
	c.InitPC(addr)
	c.Execute(ModeContinue)
	require.False(t, c.WaitingForInput())
}

func TestImmediateAdd(t *testing.T) {
	assert := assert.New(t)
	c := testCpu(t)

	runProgram(t, c, 100,
		"AIR 0,5",
		"AIR 0,7",
		"HLT",
	)

	assert.Equal(int32(12), c.Reg(R0).Signed())
	// The PC rests one past the halt.
	assert.Equal(uint32(103), c.Reg(PC).Unsigned())
}

func TestStoreAndLoad(t *testing.T) {
	assert := assert.New(t)
	c := testCpu(t)

	runProgram(t, c, 100,
		"LDA 0,0,42",
		"STR 0,0,200",
		"LDR 1,0,200",
		"HLT",
	)

	assert.Equal(uint32(42), c.Reg(R0).Unsigned())
	assert.Equal(uint32(42), c.Reg(R1).Unsigned())

	c.Bus.Drain()
	w, err := c.Bus.Inspect(200)
	assert.NoError(err)
	assert.Equal(uint32(42), w.Unsigned())
}

func TestForwardJump(t *testing.T) {
	assert := assert.New(t)
	c := testCpu(t)

	runProgram(t, c, 100,
		"JMP 0,TARGET",
		"AIR 0,1",
		"TARGET:",
		"AIR 0,10",
		"HLT",
	)

	assert.Equal(int32(10), c.Reg(R0).Signed())
}

func TestTrampolineJump(t *testing.T) {
	assert := assert.New(t)
	c := testCpu(t)

	// Pad so the jump target lands at address 200.
	lines := []string{"JMP 0,FAR"}
	for range 99 {
		lines = append(lines, "AIR 3,1")
	}
	lines = append(lines, "FAR:", "AIR 0,10", "HLT")
	loadAt(t, c, 100, lines...)

	// The emitted jump names the indirection slot.
	assert.Equal(MakeLS(JMP, 0, 0, 1, memory.TrampolineAddr).Unsigned(), memWord(t, c, 100))

	c.InitPC(100)
	c.Execute(ModeContinue)

	// The slot received the true target on the way through.
	assert.Equal(uint32(200), memWord(t, c, memory.TrampolineAddr))
	assert.Equal(int32(10), c.Reg(R0).Signed())
	assert.Equal(uint32(202), c.Reg(PC).Unsigned())
}

func TestIndexedAddressing(t *testing.T) {
	assert := assert.New(t)
	c := testCpu(t)

	// mem[30] holds the index base; the load reaches base+20.
	c.writeMem(word.FromUnsigned(130), 30)
	c.writeMem(word.FromUnsigned(77), 150)

	runProgram(t, c, 100,
		"LDX 1,30",   // X1 <- mem[30]
		"LDR 0,1,20", // R0 <- mem[X1+20]
		"HLT",
	)

	assert.Equal(uint32(130), c.Reg(X1).Unsigned())
	assert.Equal(uint32(77), c.Reg(R0).Unsigned())
}

func TestIndirectAddressing(t *testing.T) {
	assert := assert.New(t)
	c := testCpu(t)

	// mem[30] holds a pointer to 700; mem[700] holds the value. The
	// indirection resolves in exactly one extra memory cycle.
	c.writeMem(word.FromUnsigned(700), 30)
	c.writeMem(word.FromUnsigned(99), 700)

	runProgram(t, c, 100,
		"LDR 0,0,30,1",
		"HLT",
	)

	assert.Equal(uint32(99), c.Reg(R0).Unsigned())
}

func TestMultiply(t *testing.T) {
	assert := assert.New(t)
	c := testCpu(t)

	loadAt(t, c, 100, "MLT 0,2", "HLT")
	c.InitPC(100)
	c.Reg(R0).SetUnsigned(6)
	c.Reg(R2).SetUnsigned(7)
	c.Execute(ModeContinue)

	assert.Equal(uint32(0), c.Reg(R0).Unsigned())
	assert.Equal(uint32(42), c.Reg(R1).Unsigned())
}

func TestDivideByZeroLeavesRegisters(t *testing.T) {
	assert := assert.New(t)
	c := testCpu(t)

	loadAt(t, c, 100, "DVD 0,2", "HLT")
	c.InitPC(100)
	c.Reg(R0).SetUnsigned(5)
	c.Reg(R2).SetUnsigned(0)
	c.Execute(ModeContinue)

	assert.True(c.Reg(CC).Bit(FlagDivZero))
	assert.Equal(uint32(5), c.Reg(R0).Unsigned())
	assert.Equal(uint32(0), c.Reg(R1).Unsigned())
}

func TestSubtractOneAndBranch(t *testing.T) {
	assert := assert.New(t)
	c := testCpu(t)

	// Loop three times, counting iterations in R1.
	loadAt(t, c, 24,
		"AIR 0,2",
		"LOOP:",
		"AIR 1,1",
		"SOB 0,0,LOOP",
		"HLT",
	)
	c.InitPC(24)
	c.Execute(ModeContinue)

	assert.Equal(int32(3), c.Reg(R1).Signed())
	assert.Equal(int32(-1), c.Reg(R0).Signed())
}

func TestJumpSubroutineAndReturn(t *testing.T) {
	assert := assert.New(t)
	c := testCpu(t)

	runProgram(t, c, 24,
		"JSR 0,SUB",
		"AIR 1,5",
		"HLT",
		"SUB:",
		"AIR 0,9",
		"RFS 3",
	)

	// RFS leaves its return code in R0 before returning through R3.
	assert.Equal(int32(3), c.Reg(R0).Signed())
	assert.Equal(int32(5), c.Reg(R1).Signed())
}

func TestConditionalJumps(t *testing.T) {
	assert := assert.New(t)
	c := testCpu(t)

	runProgram(t, c, 24,
		"JZ 0,0,SKIP", // R0 == 0, taken
		"AIR 1,1",
		"SKIP:",
		"AIR 2,1",
		"JNE 2,0,DONE", // R2 != 0, taken
		"AIR 1,1",
		"DONE:",
		"HLT",
	)

	assert.Equal(int32(0), c.Reg(R1).Signed())
	assert.Equal(int32(1), c.Reg(R2).Signed())
}

func TestHaltReturnsToBoot(t *testing.T) {
	assert := assert.New(t)
	c := testCpu(t)

	// Boot program halts immediately; user program at 100.
	loadAt(t, c, 24, "HLT")
	c.InitPC(24)
	c.Execute(ModeContinue)
	assert.False(c.BootRunning())

	loadAt(t, c, 100, "AIR 0,5", "AIR 2,1", "HLT")
	c.SetPC(100)
	c.Execute(ModeContinue)

	// A user halt clears the working registers and returns to boot.
	assert.Equal(uint32(memory.BootProgramAddr), c.Reg(PC).Unsigned())
	assert.True(c.BootRunning())
	for _, id := range []RegID{R0, R1, R2, R3, X1, X2, X3} {
		assert.True(c.Reg(id).IsZero(), "register %v", id)
	}
}

func TestInputStallAndResume(t *testing.T) {
	assert := assert.New(t)
	c, rec := recordedCpu(t)

	loadAt(t, c, 100,
		"IN 0,0",
		"OUT 0,1",
		"HLT",
	)
	c.InitPC(100)
	c.Execute(ModeContinue)

	assert.True(c.WaitingForInput())

	c.FeedInput("A")
	c.HandleInterrupt(InterruptIO)

	assert.False(c.WaitingForInput())
	assert.Equal(uint32('A'), c.Reg(R0).Unsigned())
	// The buffer echoes once, then OUT writes the character back.
	assert.Equal("A", rec.Terminal()[:1])
	assert.Contains(rec.Terminal(), "AA")
}

func TestInputConsumesOneCharacterPerExecution(t *testing.T) {
	assert := assert.New(t)
	c, _ := recordedCpu(t)

	loadAt(t, c, 100,
		"IN 0,0",
		"IN 1,0",
		"HLT",
	)
	c.InitPC(100)
	c.FeedInput("XY")
	c.Execute(ModeContinue)

	assert.Equal(uint32('X'), c.Reg(R0).Unsigned())
	assert.Equal(uint32('Y'), c.Reg(R1).Unsigned())
	// Consuming the last character resets the buffer.
	assert.Equal("", c.InputBuffer)
}

func TestTrapThroughTable(t *testing.T) {
	assert := assert.New(t)
	c := testCpu(t)

	// Table at 960; entry 2 points at a handler that halts.
	c.writeMem(word.FromUnsigned(960), memory.TrapTableBaseAddr)
	c.writeMem(word.FromUnsigned(300), 962)
	loadAt(t, c, 300, "AIR 3,1", "HLT")

	loadAt(t, c, 100, "TRAP 2", "HLT")
	c.InitPC(100)
	c.Execute(ModeContinue)

	assert.Equal(int32(1), c.Reg(R3).Signed())
	// The trapping PC was saved at the reserved slot.
	c.Bus.Drain()
	assert.Equal(uint32(100), memWord(t, c, memory.TrapSavedPCAddr))
}

func TestIllegalTrapFaults(t *testing.T) {
	assert := assert.New(t)
	c := testCpu(t)

	// Empty trap table entry; the fault vector points at a halt.
	c.writeMem(word.FromUnsigned(960), memory.TrapTableBaseAddr)
	c.writeMem(word.FromUnsigned(400), memory.FaultHandlerAddr)
	loadAt(t, c, 400, "HLT")

	loadAt(t, c, 100, "TRAP 7", "HLT")
	c.InitPC(100)
	c.Execute(ModeContinue)

	c.Bus.Drain()
	// The MSR image of the PC lands in the reserved slot.
	assert.Equal(uint32(100), memWord(t, c, memory.FaultSavedMSRAddr))
}

func TestDirectExecution(t *testing.T) {
	assert := assert.New(t)
	c := testCpu(t)

	c.Reg(PC).SetUnsigned(500)

	assert.NoError(c.ExecuteDirect("AIR 0,9"))
	assert.Equal(int32(9), c.Reg(R0).Signed())
	// Direct execution never advances the PC.
	assert.Equal(uint32(500), c.Reg(PC).Unsigned())

	assert.Error(c.ExecuteDirect("BOGUS 1,2"))
}

func TestMacroAndMicroStep(t *testing.T) {
	assert := assert.New(t)
	c := testCpu(t)

	loadAt(t, c, 100, "AIR 0,5", "AIR 0,2", "HLT")
	c.InitPC(100)

	c.Execute(ModeMacroStep)
	assert.Equal(int32(5), c.Reg(R0).Signed())
	assert.Equal(uint32(101), c.Reg(PC).Unsigned())

	// Micro steps walk one micro-operation at a time; the second
	// instruction takes seven of them.
	for range 7 {
		assert.Equal(int32(5), c.Reg(R0).Signed())
		c.Execute(ModeMicroStep)
	}
	assert.Equal(int32(7), c.Reg(R0).Signed())
}

func TestCycleCountAdvances(t *testing.T) {
	assert := assert.New(t)
	c := testCpu(t)

	before := c.Cycles
	runProgram(t, c, 100, "AIR 0,1", "HLT")
	assert.Greater(c.Cycles, before)
}

func TestRegisterIterators(t *testing.T) {
	assert := assert.New(t)
	c := testCpu(t)

	names := map[string]bool{}
	for name, bits := range c.Registers() {
		names[name] = true
		assert.NotEmpty(bits)
	}
	assert.True(names["R0"])
	assert.True(names["PC"])
	assert.False(names["OPCODE"])

	for name := range c.Fields() {
		names[name] = true
	}
	assert.True(names["OPCODE"])
	assert.True(names["TRAPCODE"])
}
