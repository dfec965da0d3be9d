// Package cpu implements the execution engine and the loader for the
// 18-bit machine.
//
// The engine is micro-stepped: a step counter walks each instruction
// through fetch (step 0), memory read (1), IR transfer (2), decode (3),
// and opcode-specific micro-operations (4..). The register file is a
// fixed enumeration of named fixed-width registers; the ALU works over
// the OP1..OP4 staging registers and leaves results in RESULT and
// RESULT2, with a four-flag condition code register.
//
// The loader is a two-pass-in-one-traversal assembler for the machine's
// source format, resolving forward jump labels and routing targets that
// do not fit the 5-bit address field through the indirection slot at
// memory address 8.
package cpu
