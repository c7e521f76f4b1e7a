package main

import (
	"fmt"
	"io"
)

// Symbol is a variable or parameter.
type Symbol struct {
	Name   string
	Type   Type
	Offset int // bytes below the frame base; globals are addressed by label
	Length int // element count for arrays, 0 for scalars
	Param  bool
	Global bool
}

// Slots is the number of 8-byte frame slots the symbol occupies. Array
// parameters hold the address of the caller's array.
func (s *Symbol) Slots() int {
	if s.Type.IsArray() && !s.Param {
		return s.Length
	}
	return 1
}

// FunctionEntry is the symbol table of one declared function.
type FunctionEntry struct {
	Name       string
	ReturnType Type
	Params     []*Symbol
	Locals     []*Symbol
	ReturnSlot int
	Decl       *Node

	slots int
}

// Lookup finds a parameter or local by name.
func (f *FunctionEntry) Lookup(name string) *Symbol {
	for _, s := range f.Params {
		if s.Name == name {
			return s
		}
	}
	for _, s := range f.Locals {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// FrameSize is the number of bytes reserved below the frame base.
func (f *FunctionEntry) FrameSize() int {
	return f.slots * 8
}

func (f *FunctionEntry) addParam(name string, t Type) *Symbol {
	s := &Symbol{Name: name, Type: t, Param: true}
	if t.IsArray() {
		s.Length = 1
	}
	f.place(s)
	f.Params = append(f.Params, s)
	return s
}

func (f *FunctionEntry) addLocal(name string, t Type, length int) *Symbol {
	s := &Symbol{Name: name, Type: t, Length: length}
	f.place(s)
	f.Locals = append(f.Locals, s)
	return s
}

// place gives s the next free slots in the frame; the offset names the
// lowest-addressed slot so array element i lives at rbp-Offset+8*i.
func (f *FunctionEntry) place(s *Symbol) {
	f.slots += s.Slots()
	s.Offset = f.slots * 8
}

// Environment holds every symbol table of one compilation.
type Environment struct {
	Globals   []*Symbol
	Functions []*FunctionEntry
	Current   string
}

func NewEnvironment() *Environment {
	return &Environment{}
}

func (env *Environment) LookupGlobal(name string) *Symbol {
	for _, s := range env.Globals {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func (env *Environment) LookupFunction(name string) *FunctionEntry {
	for _, f := range env.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Resolve looks name up in the function called fn, then in the globals.
// Other functions are never searched.
func (env *Environment) Resolve(name, fn string) *Symbol {
	if f := env.LookupFunction(fn); f != nil {
		if s := f.Lookup(name); s != nil {
			return s
		}
	}
	return env.LookupGlobal(name)
}

func (env *Environment) addGlobal(name string, t Type, length int) *Symbol {
	s := &Symbol{Name: name, Type: t, Length: length, Global: true}
	env.Globals = append(env.Globals, s)
	return s
}

func (env *Environment) addFunction(f *FunctionEntry) {
	f.ReturnSlot = 8 * len(env.Functions)
	env.Functions = append(env.Functions, f)
}

// Dump writes the symbol tables in a human-readable form.
func (env *Environment) Dump(w io.Writer) {
	fmt.Fprintf(w, "globals:\n")
	for _, s := range env.Globals {
		dumpSymbol(w, s)
	}
	for _, f := range env.Functions {
		fmt.Fprintf(w, "\nfunction %s: %s, %d parameter(s), frame %d\n", f.Name, f.ReturnType, len(f.Params), f.FrameSize())
		for _, s := range f.Params {
			dumpSymbol(w, s)
		}
		for _, s := range f.Locals {
			dumpSymbol(w, s)
		}
	}
}

func dumpSymbol(w io.Writer, s *Symbol) {
	fmt.Fprintf(w, "  %s: %s", s.Name, s.Type)
	if s.Type.IsArray() && !s.Param {
		fmt.Fprintf(w, ", size %d", s.Length)
	}
	switch {
	case s.Global:
		fmt.Fprintf(w, ", global\n")
	case s.Param:
		fmt.Fprintf(w, ", param at rbp-%d\n", s.Offset)
	default:
		fmt.Fprintf(w, ", local at rbp-%d\n", s.Offset)
	}
}
