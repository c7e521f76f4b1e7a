package main

// resolve finds a variable visible from the function being checked.
func (a *Analyzer) resolve(name string) *Symbol {
	return a.Env.Resolve(name, a.Env.Current)
}

// compareType reports a value of type actual flowing where expected is
// required. at positions the diagnostic.
func (a *Analyzer) compareType(expected, actual Type, at *Node) {
	switch Compatibility(expected, actual) {
	case CompatibleWithWarning:
		a.Diags.Warnf(at, "assignment from '%s' to '%s'", actual, expected)
	case Incompatible:
		a.Diags.Errorf(at, "incompatible types: expected '%s' but got '%s'", expected, actual)
	}
}

// typeOf computes the type of an expression, reporting what it finds wrong
// along the way. Broken sub-expressions have type void.
func (a *Analyzer) typeOf(node *Node) Type {
	if node == nil {
		return TypeVoid
	}
	switch node.Kind {
	case NodeNum:
		if _, err := intValue(node.Text); err != nil {
			a.Diags.Errorf(node, "%v", err)
		}
		return TypeInt
	case NodeCharacter:
		if _, err := charValue(node.Text); err != nil {
			a.Diags.Errorf(node, "%v", err)
		}
		return TypeChar
	case NodeAddSub:
		return a.typeOf(node.Child(0))
	case NodeIdent:
		s := a.resolve(node.Text)
		if s == nil {
			a.Diags.Errorf(node, "undeclared identifier '%s'", node.Text)
			return TypeVoid
		}
		return s.Type
	case NodeTabAffect:
		return a.indexType(node)
	case NodeFonction:
		return a.callType(node)
	}
	if node.isBinary() {
		left := a.typeOf(node.Child(0))
		right := a.typeOf(node.Child(1))
		if left.IsArray() || right.IsArray() {
			a.Diags.Errorf(node.Child(0), "operation on an array")
		}
		return left
	}
	a.Diags.Errorf(node, "'%s' is not an expression", node.Kind)
	return TypeVoid
}

// indexType checks t[i] and returns the element type of t.
func (a *Analyzer) indexType(node *Node) Type {
	arr := node.Child(0)
	elem := TypeVoid
	if s := a.resolve(arr.Text); s == nil {
		a.Diags.Errorf(arr, "undeclared identifier '%s'", arr.Text)
	} else if !s.Type.IsArray() {
		a.Diags.Errorf(arr, "'%s' is not an array", arr.Text)
	} else {
		elem = s.Type.Elem()
	}
	index := node.Child(1)
	a.compareType(TypeInt, a.typeOf(index), index)
	return elem
}

// callType checks a call used as a value and returns its result type.
func (a *Analyzer) callType(node *Node) Type {
	if b := lookupBuiltin(node.Text); b != nil {
		a.verifyCall(node)
		return b.Result
	}
	f := a.Env.LookupFunction(node.Text)
	if f == nil {
		a.Diags.Errorf(node, "'%s' is not a function", node.Text)
		return TypeVoid
	}
	a.verifyCall(node)
	if f.ReturnType == TypeVoid {
		a.Diags.Errorf(node, "void function '%s' used as a value", node.Text)
	}
	return f.ReturnType
}

// callArgs returns the actual arguments of a call; a lone void child means
// there are none.
func callArgs(node *Node) []*Node {
	var args []*Node
	for _, c := range node.Children {
		if c.Kind != NodeVoid {
			args = append(args, c)
		}
	}
	return args
}

// verifyCall checks the argument count and argument types of a call.
func (a *Analyzer) verifyCall(node *Node) {
	args := callArgs(node)
	if b := lookupBuiltin(node.Text); b != nil {
		if len(args) != b.Params {
			a.Diags.Errorf(node, "function '%s' expects %d argument(s), got %d", b.Name, b.Params, len(args))
			return
		}
		if b.Params == 1 {
			a.compareType(TypeInt, a.typeOf(args[0]), args[0])
		}
		return
	}

	f := a.Env.LookupFunction(node.Text)
	if f == nil {
		return
	}
	if len(args) != len(f.Params) {
		a.Diags.Errorf(node, "function '%s' expects %d argument(s), got %d", f.Name, len(f.Params), len(args))
		return
	}
	for i, arg := range args {
		actual := a.typeOf(arg)
		formal := f.Params[i]
		if arg.Kind == NodeTabAffect {
			if formal.Type != TypeInt {
				a.Diags.Errorf(arg, "array element passed to parameter '%s' of type '%s'", formal.Name, formal.Type)
			}
			continue
		}
		a.compareType(formal.Type, actual, arg)
	}
}

// verifyReturns checks every return statement under node against the
// declared result type and reports whether there was at least one.
func (a *Analyzer) verifyReturns(node *Node, ret Type) bool {
	found := false
	for _, child := range node.Children {
		if child.Kind == NodeReturn {
			value := child.Child(0)
			at := child
			if value != nil {
				at = value
			}
			a.compareType(ret, a.typeOf(value), at)
			found = true
			continue
		}
		if a.verifyReturns(child, ret) {
			found = true
		}
	}
	return found
}

// verifyCondition checks the condition of an if or while.
func (a *Analyzer) verifyCondition(node *Node) {
	if node == nil {
		return
	}
	switch node.Kind {
	case NodeFonction:
		if b := lookupBuiltin(node.Text); b != nil {
			if b.Writes {
				a.Diags.Errorf(node, "'%s' cannot be used in a condition", node.Text)
				return
			}
			a.verifyCall(node)
			return
		}
		f := a.Env.LookupFunction(node.Text)
		if f == nil {
			a.Diags.Errorf(node, "'%s' is not a function", node.Text)
			return
		}
		a.compareType(TypeInt, f.ReturnType, node)
		a.verifyCall(node)
	case NodeIdent:
		s := a.resolve(node.Text)
		switch {
		case s == nil:
			a.Diags.Errorf(node, "undeclared identifier '%s'", node.Text)
		case s.Type.IsArray():
			a.Diags.Errorf(node, "array '%s' cannot be used in a condition", node.Text)
		case s.Type != TypeInt && s.Type != TypeChar:
			a.Diags.Errorf(node, "'%s' must be an integer", node.Text)
		}
	case NodeTabAffect:
		a.indexType(node)
	case NodeAddSub:
		a.verifyCondition(node.Child(0))
	case NodeNum, NodeCharacter:
		a.typeOf(node)
	default:
		if node.isBinary() {
			a.verifyCondition(node.Child(0))
			a.verifyCondition(node.Child(1))
			return
		}
		a.Diags.Errorf(node, "'%s' is not an expression", node.Kind)
	}
}

// statement checks one statement. Return statements were already checked by
// verifyReturns.
func (a *Analyzer) statement(node *Node) {
	if node == nil {
		return
	}
	switch node.Kind {
	case NodeSuiteInstr:
		for _, s := range node.Children {
			a.statement(s)
		}
	case NodeNoop, NodeReturn:
	case NodeFonction:
		if !isBuiltin(node.Text) && a.Env.LookupFunction(node.Text) == nil {
			a.Diags.Errorf(node, "'%s' is not a function", node.Text)
			return
		}
		a.verifyCall(node)
	case NodeAffectation:
		a.assignment(node)
	case NodeAffectationTab:
		a.arrayAssignment(node)
	case NodeIf:
		a.verifyCondition(node.Child(0))
		a.statement(node.Child(1))
		a.statement(node.Child(2))
	case NodeWhile:
		a.verifyCondition(node.Child(0))
		a.statement(node.Child(1))
	default:
		a.Diags.Errorf(node, "'%s' is not a statement", node.Kind)
	}
}

func (a *Analyzer) assignment(node *Node) {
	target, value := node.Child(0), node.Child(1)
	s := a.resolve(target.Text)
	if s == nil {
		if a.Env.LookupFunction(target.Text) != nil || isBuiltin(target.Text) {
			a.Diags.Errorf(target, "cannot assign to function '%s'", target.Text)
		} else {
			a.Diags.Errorf(target, "undeclared identifier '%s'", target.Text)
		}
		a.typeOf(value)
		return
	}
	a.compareType(s.Type, a.typeOf(value), value)
}

func (a *Analyzer) arrayAssignment(node *Node) {
	arr, index, value := node.Child(0), node.Child(1), node.Child(2)
	elem := TypeVoid
	s := a.resolve(arr.Text)
	switch {
	case s == nil:
		a.Diags.Errorf(arr, "undeclared identifier '%s'", arr.Text)
	case !s.Type.IsArray():
		a.Diags.Errorf(arr, "'%s' is not an array", arr.Text)
	default:
		elem = s.Type.Elem()
	}
	a.compareType(TypeInt, a.typeOf(index), index)
	actual := a.typeOf(value)
	if elem != TypeVoid {
		a.compareType(elem, actual, value)
	}
}
