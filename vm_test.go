package main

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// vm runs the subset of NASM x86-64 that the code generator and the
// built-in routines emit. Memory is flat; data labels get fixed addresses
// and text labels are instruction indices.

const (
	vmMemSize  = 1 << 20
	vmDataBase = 0x1000
	vmMaxSteps = 5_000_000
)

type vmOperandKind int

const (
	opReg vmOperandKind = iota
	opImm
	opMem
	opLabel
)

type vmOperand struct {
	kind  vmOperandKind
	reg   string // 64-bit register name
	size  int    // access width in bytes, 0 when unknown
	imm   int64
	label string
	terms []vmTerm
	disp  int64
}

type vmTerm struct {
	reg   string
	scale int64
}

type vmInstr struct {
	op   string
	args []vmOperand
	line int
	text string
}

type vmResult struct {
	ExitCode int64
	Output   string
	Steps    int
}

type vm struct {
	code      []vmInstr
	textLabel map[string]int
	dataLabel map[string]int64
	mem       []byte
	regs      map[string]int64
	cmpA      int64
	cmpB      int64
	input     []byte
	output    strings.Builder
}

var vmByteRegs = map[string]string{
	"al": "rax", "bl": "rbx", "cl": "rcx", "dl": "rdx", "sil": "rsi", "dil": "rdi",
}

var vmRegs = []string{
	"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "rbp", "rsp",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

func isVMReg(name string) bool {
	for _, r := range vmRegs {
		if r == name {
			return true
		}
	}
	return false
}

// runAsm assembles and executes a program starting at entry.
func runAsm(asm, entry, input string) (*vmResult, error) {
	m := &vm{
		textLabel: map[string]int{},
		dataLabel: map[string]int64{},
		mem:       make([]byte, vmMemSize),
		regs:      map[string]int64{},
		input:     []byte(input),
	}
	if err := m.load(asm); err != nil {
		return nil, err
	}
	start, ok := m.textLabel[entry]
	if !ok {
		return nil, fmt.Errorf("entry %s not found", entry)
	}
	return m.run(start)
}

func stripAsmComment(line string) string {
	inQuote := false
	for i, c := range line {
		switch c {
		case '\'':
			inQuote = !inQuote
		case ';':
			if !inQuote {
				return line[:i]
			}
		}
	}
	return line
}

type vmPending struct {
	op   string
	args []string
	line int
	text string
}

func (m *vm) load(asm string) error {
	section := ""
	next := int64(vmDataBase)
	var pending []vmPending

	for i, raw := range strings.Split(asm, "\n") {
		lineNum := i + 1
		line := strings.TrimSpace(stripAsmComment(raw))
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "section":
			section = fields[1]
			continue
		case "global":
			continue
		}

		if section == ".bss" || section == ".data" {
			if len(fields) != 3 {
				return fmt.Errorf("line %d: bad data line %q", lineNum, line)
			}
			name, directive := fields[0], fields[1]
			m.dataLabel[name] = next
			switch directive {
			case "resq", "resb":
				n, err := strconv.ParseInt(fields[2], 10, 64)
				if err != nil {
					return fmt.Errorf("line %d: %v", lineNum, err)
				}
				if directive == "resq" {
					n *= 8
				}
				next += n
			case "db":
				v, err := parseVMImmediate(fields[2])
				if err != nil {
					return fmt.Errorf("line %d: %v", lineNum, err)
				}
				m.mem[next] = byte(v)
				next++
			default:
				return fmt.Errorf("line %d: unknown directive %s", lineNum, directive)
			}
			continue
		}

		if strings.HasSuffix(line, ":") && len(fields) == 1 {
			name := strings.TrimSuffix(line, ":")
			if _, dup := m.textLabel[name]; dup {
				return fmt.Errorf("line %d: duplicate label %s", lineNum, name)
			}
			m.textLabel[name] = len(pending)
			continue
		}

		op := fields[0]
		rest := strings.TrimSpace(strings.TrimPrefix(line, op))
		var args []string
		if rest != "" {
			for _, a := range strings.Split(rest, ",") {
				args = append(args, strings.TrimSpace(a))
			}
		}
		pending = append(pending, vmPending{op: op, args: args, line: lineNum, text: line})
	}

	for _, p := range pending {
		instr := vmInstr{op: p.op, line: p.line, text: p.text}
		for _, a := range p.args {
			operand, err := m.parseOperand(a)
			if err != nil {
				return fmt.Errorf("line %d: %s: %v", p.line, p.text, err)
			}
			instr.args = append(instr.args, operand)
		}
		m.code = append(m.code, instr)
	}
	return nil
}

func parseVMImmediate(s string) (int64, error) {
	if len(s) == 3 && s[0] == '\'' && s[2] == '\'' {
		return int64(s[1]), nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func (m *vm) parseOperand(s string) (vmOperand, error) {
	size := 0
	switch {
	case strings.HasPrefix(s, "qword "):
		size = 8
		s = strings.TrimSpace(strings.TrimPrefix(s, "qword "))
	case strings.HasPrefix(s, "byte "):
		size = 1
		s = strings.TrimSpace(strings.TrimPrefix(s, "byte "))
	}

	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		operand := vmOperand{kind: opMem, size: size}
		expr := strings.ReplaceAll(s[1:len(s)-1], " ", "")
		expr = strings.ReplaceAll(expr, "-", "+-")
		for _, term := range strings.Split(expr, "+") {
			if term == "" {
				continue
			}
			neg := strings.HasPrefix(term, "-")
			term = strings.TrimPrefix(term, "-")
			sign := int64(1)
			if neg {
				sign = -1
			}
			reg, scaleText, scaled := strings.Cut(term, "*")
			switch {
			case isVMReg(reg):
				scale := int64(1)
				if scaled {
					n, err := strconv.ParseInt(scaleText, 10, 64)
					if err != nil {
						return operand, err
					}
					scale = n
				}
				operand.terms = append(operand.terms, vmTerm{reg: reg, scale: sign * scale})
			default:
				if addr, ok := m.dataLabel[term]; ok {
					operand.disp += sign * addr
					continue
				}
				n, err := strconv.ParseInt(term, 10, 64)
				if err != nil {
					return operand, fmt.Errorf("bad address term %q", term)
				}
				operand.disp += sign * n
			}
		}
		return operand, nil
	}

	if isVMReg(s) {
		return vmOperand{kind: opReg, reg: s, size: 8}, nil
	}
	if full, ok := vmByteRegs[s]; ok {
		return vmOperand{kind: opReg, reg: full, size: 1}, nil
	}
	if addr, ok := m.dataLabel[s]; ok {
		return vmOperand{kind: opImm, imm: addr}, nil
	}
	if v, err := parseVMImmediate(s); err == nil {
		return vmOperand{kind: opImm, imm: v}, nil
	}
	return vmOperand{kind: opLabel, label: s}, nil
}

func (m *vm) address(o vmOperand) int64 {
	addr := o.disp
	for _, t := range o.terms {
		addr += m.regs[t.reg] * t.scale
	}
	return addr
}

func (m *vm) checkAddr(addr int64, size int) error {
	if addr < 0 || addr+int64(size) > int64(len(m.mem)) {
		return fmt.Errorf("memory access out of range: %#x", addr)
	}
	return nil
}

func (m *vm) read(o vmOperand, size int) (int64, error) {
	switch o.kind {
	case opImm:
		return o.imm, nil
	case opReg:
		if o.size == 1 {
			return m.regs[o.reg] & 0xff, nil
		}
		return m.regs[o.reg], nil
	case opMem:
		addr := m.address(o)
		if err := m.checkAddr(addr, size); err != nil {
			return 0, err
		}
		if size == 1 {
			return int64(m.mem[addr]), nil
		}
		return int64(binary.LittleEndian.Uint64(m.mem[addr:])), nil
	}
	return 0, fmt.Errorf("cannot read label %s", o.label)
}

func (m *vm) write(o vmOperand, size int, v int64) error {
	switch o.kind {
	case opReg:
		if o.size == 1 {
			m.regs[o.reg] = m.regs[o.reg]&^0xff | v&0xff
			return nil
		}
		m.regs[o.reg] = v
		return nil
	case opMem:
		addr := m.address(o)
		if err := m.checkAddr(addr, size); err != nil {
			return err
		}
		if size == 1 {
			m.mem[addr] = byte(v)
			return nil
		}
		binary.LittleEndian.PutUint64(m.mem[addr:], uint64(v))
		return nil
	}
	return fmt.Errorf("cannot write operand")
}

// vmWidth picks the access size of a two-operand instruction.
func vmWidth(dst, src vmOperand) int {
	if dst.size != 0 {
		return dst.size
	}
	if src.kind == opReg || src.kind == opMem {
		if src.size != 0 {
			return src.size
		}
	}
	return 8
}

func (m *vm) push(v int64) error {
	m.regs["rsp"] -= 8
	return m.write(vmOperand{kind: opMem, disp: m.regs["rsp"]}, 8, v)
}

func (m *vm) pop() (int64, error) {
	v, err := m.read(vmOperand{kind: opMem, disp: m.regs["rsp"]}, 8)
	m.regs["rsp"] += 8
	return v, err
}

func (m *vm) jumpTarget(o vmOperand) (int, error) {
	if o.kind != opLabel {
		return 0, fmt.Errorf("jump to non-label")
	}
	pc, ok := m.textLabel[o.label]
	if !ok {
		return 0, fmt.Errorf("undefined label %s", o.label)
	}
	return pc, nil
}

func (m *vm) condition(op string) (bool, bool) {
	a, b := m.cmpA, m.cmpB
	switch op {
	case "je":
		return a == b, true
	case "jne":
		return a != b, true
	case "jl":
		return a < b, true
	case "jle":
		return a <= b, true
	case "jg":
		return a > b, true
	case "jge":
		return a >= b, true
	}
	return false, false
}

func (m *vm) run(pc int) (*vmResult, error) {
	m.regs["rsp"] = vmMemSize
	for steps := 0; steps < vmMaxSteps; steps++ {
		if pc < 0 || pc >= len(m.code) {
			return nil, fmt.Errorf("pc out of range: %d", pc)
		}
		in := m.code[pc]
		pc++
		exited, next, err := m.step(in, pc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", in.line, in.text, err)
		}
		if exited {
			return &vmResult{ExitCode: m.regs["rdi"], Output: m.output.String(), Steps: steps + 1}, nil
		}
		pc = next
	}
	return nil, fmt.Errorf("step limit exceeded")
}

func (m *vm) arg(in vmInstr, n int) (vmOperand, error) {
	if len(in.args) != n {
		return vmOperand{}, fmt.Errorf("%s expects %d operand(s)", in.op, n)
	}
	return in.args[0], nil
}

// step executes one instruction and returns the next pc.
func (m *vm) step(in vmInstr, pc int) (bool, int, error) {
	if taken, ok := m.condition(in.op); ok {
		dst, err := m.arg(in, 1)
		if err != nil {
			return false, 0, err
		}
		if taken {
			target, err := m.jumpTarget(dst)
			return false, target, err
		}
		return false, pc, nil
	}

	switch in.op {
	case "jmp":
		dst, err := m.arg(in, 1)
		if err != nil {
			return false, 0, err
		}
		target, err := m.jumpTarget(dst)
		return false, target, err
	case "call":
		dst, err := m.arg(in, 1)
		if err != nil {
			return false, 0, err
		}
		target, err := m.jumpTarget(dst)
		if err != nil {
			return false, 0, err
		}
		return false, target, m.push(int64(pc))
	case "ret":
		v, err := m.pop()
		return false, int(v), err
	case "push":
		src, err := m.arg(in, 1)
		if err != nil {
			return false, 0, err
		}
		v, err := m.read(src, 8)
		if err != nil {
			return false, 0, err
		}
		return false, pc, m.push(v)
	case "pop":
		dst, err := m.arg(in, 1)
		if err != nil {
			return false, 0, err
		}
		v, err := m.pop()
		if err != nil {
			return false, 0, err
		}
		return false, pc, m.write(dst, 8, v)
	case "cqo":
		if m.regs["rax"] < 0 {
			m.regs["rdx"] = -1
		} else {
			m.regs["rdx"] = 0
		}
		return false, pc, nil
	case "idiv":
		src, err := m.arg(in, 1)
		if err != nil {
			return false, 0, err
		}
		d, err := m.read(src, 8)
		if err != nil {
			return false, 0, err
		}
		if d == 0 {
			return false, 0, fmt.Errorf("division by zero")
		}
		a := m.regs["rax"]
		m.regs["rax"], m.regs["rdx"] = a/d, a%d
		return false, pc, nil
	case "neg", "inc", "dec":
		dst, err := m.arg(in, 1)
		if err != nil {
			return false, 0, err
		}
		v, err := m.read(dst, 8)
		if err != nil {
			return false, 0, err
		}
		switch in.op {
		case "neg":
			v = -v
		case "inc":
			v++
		case "dec":
			v--
		}
		return false, pc, m.write(dst, 8, v)
	case "setl", "setle", "setg", "setge", "sete", "setne":
		dst, err := m.arg(in, 1)
		if err != nil {
			return false, 0, err
		}
		taken, _ := m.condition("j" + strings.TrimPrefix(in.op, "set"))
		return false, pc, m.write(dst, 1, int64(boolInt(taken)))
	case "syscall":
		return m.syscall(pc)
	}

	if len(in.args) != 2 {
		return false, 0, fmt.Errorf("unsupported instruction %s", in.op)
	}
	dst, src := in.args[0], in.args[1]
	switch in.op {
	case "lea":
		return false, pc, m.write(dst, 8, m.address(src))
	case "movzx":
		v, err := m.read(src, 1)
		if err != nil {
			return false, 0, err
		}
		return false, pc, m.write(dst, 8, v)
	}

	size := vmWidth(dst, src)
	b, err := m.read(src, size)
	if err != nil {
		return false, 0, err
	}
	if in.op == "mov" {
		return false, pc, m.write(dst, size, b)
	}
	a, err := m.read(dst, size)
	if err != nil {
		return false, 0, err
	}
	switch in.op {
	case "cmp":
		m.cmpA, m.cmpB = a, b
		return false, pc, nil
	case "add":
		a += b
	case "sub":
		a -= b
	case "imul":
		a *= b
	case "xor":
		a ^= b
	default:
		return false, 0, fmt.Errorf("unsupported instruction %s", in.op)
	}
	return false, pc, m.write(dst, size, a)
}

func (m *vm) syscall(pc int) (bool, int, error) {
	switch m.regs["rax"] {
	case 0: // read
		buf, n := m.regs["rsi"], m.regs["rdx"]
		if err := m.checkAddr(buf, int(n)); err != nil {
			return false, 0, err
		}
		count := copy(m.mem[buf:buf+n], m.input)
		m.input = m.input[count:]
		m.regs["rax"] = int64(count)
	case 1: // write
		buf, n := m.regs["rsi"], m.regs["rdx"]
		if err := m.checkAddr(buf, int(n)); err != nil {
			return false, 0, err
		}
		m.output.Write(m.mem[buf : buf+n])
		m.regs["rax"] = n
	case 60: // exit
		return true, pc, nil
	default:
		return false, 0, fmt.Errorf("unsupported syscall %d", m.regs["rax"])
	}
	return false, pc, nil
}
