package main

import "fmt"

// Type is the static type of a symbol, expression or function result.
type Type int

const (
	TypeVoid Type = iota
	TypeInt
	TypeChar
	TypeArrayOfInt
	TypeArrayOfChar
)

func (t Type) String() string {
	switch t {
	case TypeVoid:
		return "void"
	case TypeInt:
		return "int"
	case TypeChar:
		return "char"
	case TypeArrayOfInt:
		return "int[]"
	case TypeArrayOfChar:
		return "char[]"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

func (t Type) IsArray() bool {
	return t == TypeArrayOfInt || t == TypeArrayOfChar
}

// ArrayOf returns the array type whose elements have type t.
func (t Type) ArrayOf() Type {
	switch t {
	case TypeInt:
		return TypeArrayOfInt
	case TypeChar:
		return TypeArrayOfChar
	default:
		return TypeVoid
	}
}

// Elem returns the element type of an array type.
func (t Type) Elem() Type {
	switch t {
	case TypeArrayOfInt:
		return TypeInt
	case TypeArrayOfChar:
		return TypeChar
	default:
		return TypeVoid
	}
}

// parseTypeName maps the text of a type node to a scalar type.
func parseTypeName(name string) (Type, bool) {
	switch name {
	case "int":
		return TypeInt, true
	case "char":
		return TypeChar, true
	}
	return TypeVoid, false
}

type Compat int

const (
	Compatible Compat = iota
	CompatibleWithWarning
	Incompatible
)

// Compatibility reports whether a value of type actual may flow into a
// context expecting expected. char widens silently into int; int narrows
// into char with a warning.
func Compatibility(expected, actual Type) Compat {
	if expected == actual {
		return Compatible
	}
	switch {
	case expected == TypeInt && actual == TypeChar:
		return Compatible
	case expected == TypeChar && actual == TypeInt:
		return CompatibleWithWarning
	}
	return Incompatible
}
