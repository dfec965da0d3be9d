package main

import (
	"flag"
	"log"
	"os"

	"github.com/mhjnchetan/vn18/cpu"
	"github.com/mhjnchetan/vn18/emulator"
	"github.com/mhjnchetan/vn18/front"
)

func main() {
	var program string
	var data string
	var input string
	var output string
	var mode string
	var direct string
	var terminal bool
	var verbose bool

	flag.StringVar(&program, "c", "", "program source file to assemble and run")
	flag.StringVar(&data, "d", "", "data file to prefetch at address 1000")
	flag.StringVar(&input, "i", "", "file fed to the input buffer before the run")
	flag.StringVar(&output, "o", "-", "terminal output")
	flag.StringVar(&mode, "m", "continue", "execution mode: continue, micro, macro")
	flag.StringVar(&direct, "x", "", "execute a single raw instruction and exit")
	flag.BoolVar(&terminal, "t", false, "interactive keyboard input")
	flag.BoolVar(&verbose, "v", false, "verbose mode")

	flag.Parse()

	if flag.NArg() != 0 {
		log.Fatalf("%v: unknown arguments: %v", os.Args[0], flag.Args())
	}

	out := os.Stdout
	if output != "-" {
		ouf, err := os.Create(output)
		if err != nil {
			log.Fatalf("%v: %v", output, err)
		}
		defer ouf.Close()
		out = ouf
	}

	emu := emulator.New(&front.Console{Output: out})
	emu.Verbose = verbose
	defer emu.Shutdown()

	if err := emu.LoadROM(); err != nil {
		log.Fatalf("rom: %v", err)
	}

	if len(program) != 0 {
		inf, err := os.Open(program)
		if err != nil {
			log.Fatalf("%v: %v", program, err)
		}
		err = emu.LoadProgram(inf)
		inf.Close()
		if err != nil {
			log.Fatalf("%v: %v", program, err)
		}
	}

	if len(data) != 0 {
		inf, err := os.Open(data)
		if err != nil {
			log.Fatalf("%v: %v", data, err)
		}
		err = emu.LoadData(inf)
		inf.Close()
		if err != nil {
			log.Fatalf("%v: %v", data, err)
		}
	}

	if len(input) != 0 {
		text, err := os.ReadFile(input)
		if err != nil {
			log.Fatalf("%v: %v", input, err)
		}
		emu.FeedInput(string(text))
	}

	if len(direct) != 0 {
		if err := emu.ExecuteDirect(direct); err != nil {
			log.Fatalf("%v: %v", direct, err)
		}
		return
	}

	var host *KeyboardHost
	if terminal {
		var err error
		host, err = OpenKeyboard()
		if err != nil {
			log.Fatalf("keyboard: %v", err)
		}
		defer host.Close()
	}

	run := func() {
		switch mode {
		case "micro":
			for !emu.Cpu.Halted() && !emu.WaitingForInput() {
				emu.Execute(cpu.ModeMicroStep)
			}
		case "macro":
			for !emu.Cpu.Halted() && !emu.WaitingForInput() {
				emu.Execute(cpu.ModeMacroStep)
			}
		default:
			emu.Run(cpu.ModeContinue)
		}
	}

	run()
	for emu.WaitingForInput() {
		if host == nil {
			log.Fatalf("input stalled and no -i input or -t terminal given")
		}
		line, err := host.ReadLine()
		if err != nil {
			log.Fatalf("keyboard: %v", err)
		}
		// The interrupt restarts the stalled instruction and execution
		// carries on in the mode it was running under.
		emu.FeedInput(line)
		emu.Interrupt(cpu.InterruptIO)
	}
}
