package main

import (
	"fmt"
	"strings"
)

// DefaultEntry is the symbol main is emitted under.
const DefaultEntry = "_start"

// CodeGen translates an analyzed program into NASM source for Linux x86-64.
// Every expression leaves exactly one value on the machine stack.
type CodeGen struct {
	env       *Environment
	entry     string
	out       strings.Builder
	nextLabel int
	fn        *FunctionEntry
}

func NewCodeGen(env *Environment, entry string) *CodeGen {
	if entry == "" {
		entry = DefaultEntry
	}
	return &CodeGen{env: env, entry: entry}
}

// Generate returns the assembly for prog. The symbol tables are only read.
func Generate(prog *Node, env *Environment, entry string) string {
	g := NewCodeGen(env, entry)
	g.Program(prog)
	return g.out.String()
}

func (g *CodeGen) line(format string, args ...any) {
	fmt.Fprintf(&g.out, format+"\n", args...)
}

func (g *CodeGen) ins(format string, args ...any) {
	g.line("    "+format, args...)
}

func (g *CodeGen) comment(format string, args ...any) {
	g.ins("; "+format, args...)
}

func (g *CodeGen) label(name string) {
	g.line("%s:", name)
}

func (g *CodeGen) newLabel() int {
	g.nextLabel++
	return g.nextLabel
}

func funcLabel(name string) string {
	return "fn_" + name
}

func globalLabel(name string) string {
	return "glob_" + name
}

func exitLabel(name string) string {
	return "exit_" + name
}

func (g *CodeGen) Program(prog *Node) {
	g.line("section .bss")
	g.ins("%s resq 1", cellNumber)
	g.ins("%s resb 25", cellDigit)
	for _, s := range g.env.Globals {
		switch {
		case s.Type.IsArray():
			g.ins("%s resq %d", globalLabel(s.Name), s.Length)
		case s.Type == TypeChar:
			g.ins("%s resb 1", globalLabel(s.Name))
		default:
			g.ins("%s resq 1", globalLabel(s.Name))
		}
	}
	g.line("section .data")
	g.ins("%s db 10", newlineLbl)
	g.ins("%s db '-'", minusLbl)
	g.line("global %s", g.entry)
	g.line("section .text")
	for _, b := range builtins {
		g.line("")
		g.out.WriteString(b.asm)
	}
	for _, f := range g.env.Functions {
		g.line("")
		g.function(f)
	}
}

func (g *CodeGen) function(f *FunctionEntry) {
	g.fn = f
	defer func() { g.fn = nil }()

	isMain := f.Name == "main"
	if isMain {
		g.label(g.entry)
	}
	g.label(funcLabel(f.Name))
	g.ins("push rbp")
	g.ins("mov rbp, rsp")
	if size := f.FrameSize(); size > 0 {
		g.ins("sub rsp, %d", size)
	}
	// main is entered by the loader, not called, so it has no arguments.
	if !isMain {
		n := len(f.Params)
		for i, p := range f.Params {
			g.ins("mov rax, qword [rbp + %d]", 16+8*(n-1-i))
			g.ins("mov qword [rbp - %d], rax", p.Offset)
		}
	}

	body := f.Decl.Child(1)
	for _, part := range body.Children {
		if part.Kind == NodeSuiteInstr {
			g.statement(part)
		}
	}

	g.label(exitLabel(f.Name))
	if isMain {
		g.ins("mov rax, 60")
		g.ins("syscall")
		return
	}
	g.ins("mov rsp, rbp")
	g.ins("pop rbp")
	g.ins("ret")
}

func (g *CodeGen) resolve(name string) *Symbol {
	return g.env.Resolve(name, g.fn.Name)
}

// isUserCall reports whether node calls a declared function; such calls
// return their result in rdi.
func (g *CodeGen) isUserCall(node *Node) bool {
	return node.Kind == NodeFonction && !isBuiltin(node.Text) && g.env.LookupFunction(node.Text) != nil
}

// scalar is the memory operand of a scalar variable.
func (g *CodeGen) scalar(s *Symbol) string {
	if s.Global {
		if s.Type == TypeChar {
			return fmt.Sprintf("byte [%s]", globalLabel(s.Name))
		}
		return fmt.Sprintf("qword [%s]", globalLabel(s.Name))
	}
	return fmt.Sprintf("qword [rbp - %d]", s.Offset)
}

func (g *CodeGen) load(s *Symbol) {
	if s.Global && s.Type == TypeChar {
		g.ins("movzx rax, %s", g.scalar(s))
		return
	}
	g.ins("mov rax, %s", g.scalar(s))
}

// store writes reg (rax or rdi) into a scalar variable.
func (g *CodeGen) store(s *Symbol, reg string) {
	if s.Global && s.Type == TypeChar {
		low := map[string]string{"rax": "al", "rdi": "dil"}[reg]
		g.ins("mov %s, %s", g.scalar(s), low)
		return
	}
	g.ins("mov %s, %s", g.scalar(s), reg)
}

// arrayBase puts the address of the first element of s in reg.
func (g *CodeGen) arrayBase(s *Symbol, reg string) {
	switch {
	case s.Global:
		g.ins("lea %s, [%s]", reg, globalLabel(s.Name))
	case s.Param:
		g.ins("mov %s, qword [rbp - %d]", reg, s.Offset)
	default:
		g.ins("lea %s, [rbp - %d]", reg, s.Offset)
	}
}

func (g *CodeGen) statement(node *Node) {
	if node == nil {
		return
	}
	switch node.Kind {
	case NodeSuiteInstr:
		for _, s := range node.Children {
			g.statement(s)
		}
	case NodeNoop:
	case NodeAffectation:
		g.assignment(node)
	case NodeAffectationTab:
		g.arrayAssignment(node)
	case NodeIf:
		n := g.newLabel()
		g.expr(node.Child(0))
		g.label(fmt.Sprintf("if%d", n))
		g.ins("pop rax")
		g.ins("cmp rax, 0")
		g.ins("je else_if%d", n)
		g.statement(node.Child(1))
		g.ins("jmp end_if%d", n)
		g.label(fmt.Sprintf("else_if%d", n))
		g.statement(node.Child(2))
		g.label(fmt.Sprintf("end_if%d", n))
	case NodeWhile:
		n := g.newLabel()
		g.label(fmt.Sprintf("while%d", n))
		g.expr(node.Child(0))
		g.ins("pop rax")
		g.ins("cmp rax, 0")
		g.ins("je end_while%d", n)
		g.statement(node.Child(1))
		g.ins("jmp while%d", n)
		g.label(fmt.Sprintf("end_while%d", n))
	case NodeReturn:
		g.comment("return")
		if value := node.Child(0); value != nil {
			g.expr(value)
			g.ins("pop rdi")
		}
		g.ins("jmp %s", exitLabel(g.fn.Name))
	case NodeFonction:
		g.call(node, false)
	}
}

func (g *CodeGen) assignment(node *Node) {
	target, value := node.Child(0), node.Child(1)
	g.comment("%s = ...", target.Text)
	reg := "rax"
	if g.isUserCall(value) {
		g.call(value, false)
		reg = "rdi"
	} else {
		g.expr(value)
		g.ins("pop rax")
	}
	if s := g.resolve(target.Text); s != nil {
		g.store(s, reg)
	}
}

func (g *CodeGen) arrayAssignment(node *Node) {
	arr, index, value := node.Child(0), node.Child(1), node.Child(2)
	g.comment("%s[...] = ...", arr.Text)
	g.expr(index)
	reg := "rax"
	if g.isUserCall(value) {
		g.call(value, false)
		reg = "rdi"
	} else {
		g.expr(value)
		g.ins("pop rax")
	}
	g.ins("pop rcx")
	s := g.resolve(arr.Text)
	if s == nil {
		return
	}
	g.arrayBase(s, "rbx")
	g.ins("mov qword [rbx + rcx*8], %s", reg)
}

// call emits a call. When push is set the result is left on the stack.
func (g *CodeGen) call(node *Node, push bool) {
	args := callArgs(node)
	if b := lookupBuiltin(node.Text); b != nil {
		if b.Writes {
			if len(args) > 0 {
				g.expr(args[0])
				g.ins("pop rax")
			} else {
				g.ins("mov rax, 0")
			}
			if b.Name == "putchar" {
				g.ins("mov byte [%s], al", cellDigit)
			} else {
				g.ins("mov qword [%s], rax", cellNumber)
			}
		}
		g.ins("call %s", b.Name)
		if push {
			if b.Writes {
				g.ins("push 0")
			} else {
				g.ins("push rax")
			}
		}
		return
	}

	for _, arg := range args {
		g.expr(arg)
	}
	g.ins("call %s", funcLabel(node.Text))
	if len(args) > 0 {
		g.ins("add rsp, %d", 8*len(args))
	}
	if push {
		g.ins("push rdi")
	}
}

func (g *CodeGen) expr(node *Node) {
	switch node.Kind {
	case NodeNum:
		v, _ := intValue(node.Text)
		g.ins("mov rax, %d", v)
		g.ins("push rax")
		return
	case NodeCharacter:
		v, _ := charValue(node.Text)
		g.ins("mov rax, %d", v)
		g.ins("push rax")
		return
	case NodeIdent:
		s := g.resolve(node.Text)
		switch {
		case s == nil:
			g.ins("mov rax, 0")
		case s.Type.IsArray():
			g.arrayBase(s, "rax")
		default:
			g.load(s)
		}
		g.ins("push rax")
		return
	case NodeTabAffect:
		g.expr(node.Child(1))
		g.ins("pop rcx")
		if s := g.resolve(node.Child(0).Text); s != nil {
			g.arrayBase(s, "rbx")
			g.ins("mov rax, qword [rbx + rcx*8]")
		} else {
			g.ins("mov rax, 0")
		}
		g.ins("push rax")
		return
	case NodeFonction:
		g.call(node, true)
		return
	case NodeAddSub:
		g.expr(node.Child(0))
		if node.Text == "-" {
			g.ins("pop rax")
			g.ins("neg rax")
			g.ins("push rax")
		}
		return
	}

	if !node.isBinary() {
		g.ins("mov rax, 0")
		g.ins("push rax")
		return
	}

	switch node.Kind {
	case NodeEq, NodeNeq:
		g.equality(node)
		return
	case NodeAnd, NodeOr:
		g.logical(node)
		return
	}

	g.expr(node.Child(0))
	g.expr(node.Child(1))
	g.ins("pop rbx")
	g.ins("pop rax")
	switch node.Kind {
	case NodeAdd:
		g.ins("add rax, rbx")
	case NodeSub:
		g.ins("sub rax, rbx")
	case NodeMul:
		g.ins("imul rax, rbx")
	case NodeDiv:
		g.ins("cqo")
		g.ins("idiv rbx")
	case NodeMod:
		g.ins("cqo")
		g.ins("idiv rbx")
		g.ins("mov rax, rdx")
	case NodeLt, NodeLe, NodeGt, NodeGe:
		set := map[NodeKind]string{NodeLt: "setl", NodeLe: "setle", NodeGt: "setg", NodeGe: "setge"}[node.Kind]
		g.ins("cmp rax, rbx")
		g.ins("%s al", set)
		g.ins("movzx rax, al")
	}
	g.ins("push rax")
}

func (g *CodeGen) equality(node *Node) {
	name := string(node.Kind)
	n := g.newLabel()
	g.expr(node.Child(0))
	g.expr(node.Child(1))
	g.label(fmt.Sprintf("%s%d", name, n))
	g.ins("pop rbx")
	g.ins("pop rax")
	g.ins("cmp rax, rbx")
	if node.Kind == NodeEq {
		g.ins("jne else_%s%d", name, n)
	} else {
		g.ins("je else_%s%d", name, n)
	}
	g.ins("mov rax, 1")
	g.ins("push rax")
	g.ins("jmp end_%s%d", name, n)
	g.label(fmt.Sprintf("else_%s%d", name, n))
	g.ins("mov rax, 0")
	g.ins("push rax")
	g.label(fmt.Sprintf("end_%s%d", name, n))
}

// logical combines two already evaluated operands; neither side is skipped.
func (g *CodeGen) logical(node *Node) {
	name := string(node.Kind)
	n := g.newLabel()
	g.expr(node.Child(0))
	g.expr(node.Child(1))
	g.label(fmt.Sprintf("%s%d", name, n))
	g.ins("pop rbx")
	g.ins("pop rax")
	// and: any zero operand gives 0; or: any non-zero operand gives 1
	jump, value, other := "je", 1, 0
	if node.Kind == NodeOr {
		jump, value, other = "jne", 0, 1
	}
	g.ins("cmp rax, 0")
	g.ins("%s else_%s%d", jump, name, n)
	g.ins("cmp rbx, 0")
	g.ins("%s else_%s%d", jump, name, n)
	g.ins("mov rax, %d", value)
	g.ins("push rax")
	g.ins("jmp end_%s%d", name, n)
	g.label(fmt.Sprintf("else_%s%d", name, n))
	g.ins("mov rax, %d", other)
	g.ins("push rax")
	g.label(fmt.Sprintf("end_%s%d", name, n))
}
