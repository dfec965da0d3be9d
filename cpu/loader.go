package cpu

import (
	"bufio"
	"io"
	"log"
	"regexp"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/mhjnchetan/vn18/memory"
	"github.com/mhjnchetan/vn18/word"
)

// LabelEntry tracks a symbolic address. Forward references are pushed
// while the label is unbound (address 0) and patched all at once when
// the definition arrives; the reference list keeps every instruction
// address that names the label, bound or not, for the runtime
// indirection lookup.
type LabelEntry struct {
	Name        string
	Address     int
	ForwardRefs []int
	Refs        []int
}

// LabelTable is the loader's symbol table. It outlives the load so the
// engine can resolve indirection-slot targets at decode time.
type LabelTable struct {
	entries []*LabelEntry
}

func (t *LabelTable) find(name string) *LabelEntry {
	for _, entry := range t.entries {
		if entry.Name == name {
			return entry
		}
	}
	return nil
}

func (t *LabelTable) add(entry *LabelEntry) {
	t.entries = append(t.entries, entry)
}

// JumpAddrForReference returns the bound address of the label
// referenced by the instruction at addr.
func (t *LabelTable) JumpAddrForReference(addr int) (target int, ok bool) {
	for _, entry := range t.entries {
		for _, ref := range entry.Refs {
			if ref == addr {
				return entry.Address, true
			}
		}
	}
	return
}

// Unresolved returns the name of any label still unbound, if one
// exists.
func (t *LabelTable) Unresolved() (name string, found bool) {
	for _, entry := range t.entries {
		if len(entry.ForwardRefs) > 0 {
			return entry.Name, true
		}
	}
	return
}

// Loader translates source text into machine words and places them in
// memory through the engine's cache. Label resolution is two-pass in a
// single traversal: forward references queue up and are patched when
// the definition is reached.
type Loader struct {
	Verbose bool

	c       *Cpu
	labels  *LabelTable
	equates map[string]string
	loc     int
	origin  int
}

// Origin returns the address the most recent load started at.
func (ld *Loader) Origin() int {
	return ld.origin
}

// NewLoader creates a loader writing through the given engine.
func NewLoader(c *Cpu) (ld *Loader) {
	ld = &Loader{
		c:       c,
		labels:  &LabelTable{},
		equates: map[string]string{},
	}
	return
}

// Load places a program at the default location: the boot region when
// it is still empty, the general program region otherwise.
func (ld *Loader) Load(input io.Reader) error {
	addr := memory.GeneralProgramAddr
	if ld.c.readMem(memory.BootProgramAddr).IsZero() {
		addr = memory.BootProgramAddr
	}
	return ld.LoadAt(input, addr)
}

// LoadAt places a program starting at addr.
func (ld *Loader) LoadAt(input io.Reader, addr int) (err error) {
	ld.labels = &LabelTable{}
	ld.equates = map[string]string{}
	ld.loc = addr
	ld.origin = addr

	scanner := bufio.NewScanner(input)

	var line string
	var lineno int
	defer func() {
		if err != nil {
			err = ErrSyntax{LineNo: lineno, Line: line, Err: err}
		}
	}()

	for scanner.Scan() {
		line = scanner.Text()
		lineno++

		if ld.Verbose {
			log.Printf("loader: %v: %v", lineno, line)
		}

		text := line
		if strings.HasPrefix(strings.TrimSpace(text), "/") {
			continue
		}
		if n := strings.IndexByte(text, '/'); n != -1 {
			text = text[:n]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		text, err = ld.preprocess(text)
		if err != nil {
			return
		}
		if text == "" {
			continue
		}

		if n := strings.IndexByte(text, ':'); n != -1 {
			err = ld.defineLabel(strings.TrimSpace(text[:n]))
			if err != nil {
				return
			}
			continue
		}

		w, werr := ld.InstructionToWord(text)
		if werr != nil {
			// A bad instruction yields a null word and is skipped.
			log.Printf("loader: line %v '%v': %v", lineno, text, werr)
			continue
		}
		ld.c.writeMem(w, ld.loc)
		ld.loc++
	}
	if err = scanner.Err(); err != nil {
		return
	}

	if name, found := ld.labels.Unresolved(); found {
		err = ErrLabelMissing(name)
		return
	}

	if ld.Verbose {
		log.Printf("loader: final instruction at memory location %v", ld.loc)
	}

	// Hand the symbol table to the engine for indirection lookups.
	ld.c.Labels = ld.labels

	return
}

// LoadData copies a byte stream into memory one word per byte starting
// at addr, terminated with the EOT mark.
func (ld *Loader) LoadData(input io.Reader, addr int) (err error) {
	reader := bufio.NewReader(input)
	for {
		b, rerr := reader.ReadByte()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			err = rerr
			return
		}
		ld.c.writeMem(word.FromUnsigned(uint32(b)), addr)
		addr++
	}
	ld.c.writeMem(word.FromUnsigned(0x04), addr)
	return
}

// defineLabel binds a label to the current write pointer, patching any
// queued forward references. A second binding is an error.
func (ld *Loader) defineLabel(name string) (err error) {
	entry := ld.labels.find(name)
	if entry == nil {
		ld.labels.add(&LabelEntry{Name: name, Address: ld.loc})
		if ld.Verbose {
			log.Printf("loader: label %v at address %v", name, ld.loc)
		}
		return
	}

	if entry.Address != 0 {
		err = ErrLabelDuplicate
		return
	}

	entry.Address = ld.loc
	for len(entry.ForwardRefs) > 0 {
		ref := entry.ForwardRefs[len(entry.ForwardRefs)-1]
		entry.ForwardRefs = entry.ForwardRefs[:len(entry.ForwardRefs)-1]

		w := ld.c.readMem(ref)
		w = patchAddr(w, entry.Address)
		if ld.Verbose {
			log.Printf("loader: resolving forward reference at %v to %v", ref, entry.Address)
		}
		ld.c.writeMem(w, ref)
	}
	return
}

// patchAddr rewrites the address and indirection fields of an emitted
// word once its label's address is known. Targets beyond the address
// field go through the indirection slot.
func patchAddr(w word.Word, target int) word.Word {
	op := Opcode(unpackField(w, 0, OpcodeBits))
	addrStart, iStart := lsAddrStart, lsIStart
	if opcodeFormats[op] == FormatLX {
		addrStart, iStart = lxAddrStart, lxIStart
	}

	if target > MaxDirectAddr {
		w = packField(w, addrStart, AddrBits, memory.TrampolineAddr)
		w = packField(w, iStart, 1, 1)
	} else {
		w = packField(w, addrStart, AddrBits, uint32(target))
	}
	return w
}

// resolveAddr turns an address operand into field values. Alphabetic
// tokens are label references; numeric tokens are literals. Anything
// that does not fit the address field is routed through the
// indirection slot and recorded for the runtime lookup.
func (ld *Loader) resolveAddr(token string) (addr, indirect uint32, err error) {
	if token == "" {
		err = ErrOperandMissing
		return
	}

	alpha := token[0] >= 'A' && token[0] <= 'Z' || token[0] >= 'a' && token[0] <= 'z'
	var bound int
	if !alpha {
		var value int
		value, err = strconv.Atoi(token)
		if err != nil {
			err = ErrParseNumber(token)
			return
		}
		if value <= MaxDirectAddr {
			addr = uint32(value)
			return
		}
		bound = value
	}

	entry := ld.labels.find(token)
	if entry == nil {
		entry = &LabelEntry{Name: token, Address: bound}
		ld.labels.add(entry)
	}
	entry.Refs = append(entry.Refs, ld.loc)

	switch {
	case entry.Address == 0:
		// Forward reference, patched at definition time.
		entry.ForwardRefs = append(entry.ForwardRefs, ld.loc)
		addr = 0
	case entry.Address > MaxDirectAddr:
		addr = memory.TrampolineAddr
		indirect = 1
	default:
		addr = uint32(entry.Address)
	}
	return
}

// field parses operand n as an unsigned value.
func field(fields []string, n int) (value uint32, err error) {
	if n >= len(fields) {
		err = ErrOperandMissing
		return
	}
	v, perr := strconv.ParseUint(fields[n], 10, 32)
	if perr != nil {
		err = ErrParseNumber(fields[n])
		return
	}
	value = uint32(v)
	return
}

// fieldOr parses operand n, defaulting when absent.
func fieldOr(fields []string, n int, def uint32) (value uint32, err error) {
	if n >= len(fields) {
		value = def
		return
	}
	return field(fields, n)
}

// InstructionToWord assembles a single source line into a machine word.
func (ld *Loader) InstructionToWord(line string) (w word.Word, err error) {
	key, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	op, ok := opcodeNames[strings.ToUpper(key)]
	if !ok {
		err = ErrOpcodeUnknown
		return
	}

	var fields []string
	if rest = strings.TrimSpace(rest); rest != "" {
		fields = strings.Split(rest, ",")
		for n := range fields {
			fields[n] = strings.TrimSpace(fields[n])
		}
	}

	switch opcodeFormats[op] {
	case FormatLS:
		w, err = ld.loadStoreWord(op, fields)
	case FormatLX:
		var ix, addr, indirect uint32
		ix, err = field(fields, 0)
		if err != nil {
			return
		}
		addr, indirect, err = ld.resolveAddr(at(fields, 1))
		if err != nil {
			return
		}
		var i uint32
		i, err = fieldOr(fields, 2, indirect)
		if err != nil {
			return
		}
		if addr == memory.TrampolineAddr && indirect == 1 {
			i = 1
		}
		w = MakeLX(op, ix, i, addr)
	case FormatImm:
		var r, immed uint32
		r, err = field(fields, 0)
		if err != nil {
			return
		}
		immed, err = field(fields, 1)
		if err != nil {
			return
		}
		w = MakeImm(op, r, immed)
	case FormatTrap:
		var code uint32
		code, err = fieldOr(fields, 0, 0)
		if err != nil {
			return
		}
		w = MakeTrap(op, code)
	case FormatXY:
		var rx, ry uint32
		rx, err = field(fields, 0)
		if err != nil {
			return
		}
		ry, err = field(fields, 1)
		if err != nil {
			return
		}
		w = MakeXY(op, rx, ry)
	case FormatMonoX:
		var rx uint32
		rx, err = field(fields, 0)
		if err != nil {
			return
		}
		w = MakeMonoX(op, rx)
	case FormatShift:
		var r, count, lr, al uint32
		r, err = field(fields, 0)
		if err != nil {
			return
		}
		count, err = field(fields, 1)
		if err != nil {
			return
		}
		lr, err = field(fields, 2)
		if err != nil {
			return
		}
		al, err = field(fields, 3)
		if err != nil {
			return
		}
		w = MakeShift(op, r, al, lr, count)
	case FormatIO:
		var r, devid uint32
		r, err = field(fields, 0)
		if err != nil {
			return
		}
		devid, err = field(fields, 1)
		if err != nil {
			return
		}
		w = MakeIO(op, r, devid)
	}
	return
}

// at returns operand n, or the empty string when absent.
func at(fields []string, n int) string {
	if n >= len(fields) {
		return ""
	}
	return fields[n]
}

// loadStoreWord assembles the load/store and jump family. JMP and JSR
// take ix,addr; RFS takes a lone immediate; the rest take r,ix,addr.
// An optional trailing operand forces indirection.
func (ld *Loader) loadStoreWord(op Opcode, fields []string) (w word.Word, err error) {
	var r, ix, addr, indirect, i uint32

	switch op {
	case RFS:
		addr, err = fieldOr(fields, 0, 0)
		if err != nil {
			return
		}
		w = MakeLS(op, 0, 0, 0, addr)
		return
	case JMP, JSR:
		ix, err = field(fields, 0)
		if err != nil {
			return
		}
		addr, indirect, err = ld.resolveAddr(at(fields, 1))
		if err != nil {
			return
		}
		i, err = fieldOr(fields, 2, indirect)
		if err != nil {
			return
		}
	default:
		r, err = field(fields, 0)
		if err != nil {
			return
		}
		ix, err = field(fields, 1)
		if err != nil {
			return
		}
		addr, indirect, err = ld.resolveAddr(at(fields, 2))
		if err != nil {
			return
		}
		i, err = fieldOr(fields, 3, indirect)
		if err != nil {
			return
		}
	}

	if addr == memory.TrampolineAddr && indirect == 1 {
		i = 1
	}
	w = MakeLS(op, r, ix, i, addr)
	return
}

var parenRe = regexp.MustCompile(`\$\([^)]*\)`)

// preprocess handles .equ directives, substitutes equates, and
// evaluates $( ... ) expressions at load time.
func (ld *Loader) preprocess(text string) (out string, err error) {
	out = parenRe.ReplaceAllStringFunc(text, func(str string) string {
		value, verr := ld.parenEval(str[2 : len(str)-1])
		if verr != nil {
			err = verr
		}
		return strconv.Itoa(int(value))
	})
	if err != nil {
		return
	}

	words := strings.Fields(out)
	if len(words) == 0 {
		return
	}

	// .equ CONST VALUE
	if words[0] == ".equ" {
		if len(words) != 3 {
			err = ErrEquateSyntax
			return
		}
		if _, dup := ld.equates[words[1]]; dup {
			err = ErrEquateDup
			return
		}
		ld.equates[words[1]] = words[2]
		out = ""
		return
	}

	if len(ld.equates) > 0 {
		out = tokenRe.ReplaceAllStringFunc(out, func(tok string) string {
			if value, ok := ld.equates[tok]; ok {
				return value
			}
			return tok
		})
	}
	return
}

var tokenRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// parenEval evaluates a load-time expression with the equates bound as
// integer variables.
func (ld *Loader) parenEval(expr string) (value int64, err error) {
	thread := starlark.Thread{}
	opts := syntax.FileOptions{}
	pred := starlark.StringDict{}
	for key, str := range ld.equates {
		n, nerr := strconv.Atoi(str)
		if nerr != nil {
			// Non-integer equates are not visible to expressions.
			continue
		}
		pred[key] = starlark.MakeInt(n)
	}
	prog := "rc=" + expr + "\n"
	dict, err := starlark.ExecFileOptions(&opts, &thread, "expr", prog, pred)
	if err != nil {
		return
	}
	rc, ok := dict["rc"]
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	rcInt, ok := rc.(starlark.Int)
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	value, ok = rcInt.Int64()
	if !ok {
		err = ErrParseExpression(expr)
	}
	return
}
