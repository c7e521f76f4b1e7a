package main

// Analyzer walks a program once, building its symbol tables and checking
// every static rule. Problems are reported to Diags and never stop the walk.
type Analyzer struct {
	Env   *Environment
	Diags *Diagnostics
}

func NewAnalyzer(diags *Diagnostics) *Analyzer {
	return &Analyzer{Env: NewEnvironment(), Diags: diags}
}

// Analyze checks a whole program. The environment is filled in even when
// errors are reported.
func Analyze(prog *Node, diags *Diagnostics) *Environment {
	a := NewAnalyzer(diags)
	a.Program(prog)
	return a.Env
}

func (a *Analyzer) Program(prog *Node) {
	if prog == nil || prog.Kind != NodeProg {
		a.Diags.Errorf(prog, "expected a program")
		return
	}
	for _, part := range prog.Children {
		switch part.Kind {
		case NodeDeclVars:
			a.declareGlobals(part)
		case NodeDeclFuncts:
			for _, decl := range part.Children {
				a.function(decl)
			}
		}
	}
	a.Env.Current = ""
}

// declarators calls fn for every variable declared under a declvars node.
// size is nil for scalars.
func declarators(declvars *Node, fn func(typ Type, name, size *Node)) {
	for _, group := range declvars.Children {
		if group.Kind != NodeDeclarators {
			continue
		}
		typ, _ := parseTypeName(group.Child(0).Text)
		for _, d := range group.Children[1:] {
			switch d.Kind {
			case NodeIdent:
				fn(typ, d, nil)
			case NodeTab:
				fn(typ, d, d.Child(0))
			}
		}
	}
}

// checkDeclType reports a declarator whose type node is not int or char.
func (a *Analyzer) checkDeclType(declvars *Node) {
	for _, group := range declvars.Children {
		if group.Kind != NodeDeclarators {
			continue
		}
		if tn := group.Child(0); tn.Kind != NodeType {
			a.Diags.Errorf(tn, "expected a type")
		} else if _, ok := parseTypeName(tn.Text); !ok {
			a.Diags.Errorf(tn, "unknown type '%s'", tn.Text)
		}
	}
}

// arraySize folds the size expression of an array declarator.
func (a *Analyzer) arraySize(decl, size *Node) (int, bool) {
	n, ok := foldConstant(size)
	if !ok {
		a.Diags.Errorf(size, "size of array '%s' is not a constant", decl.Text)
		return 0, false
	}
	if n <= 0 {
		a.Diags.Errorf(size, "size of array '%s' must be positive, got %d", decl.Text, n)
		return 0, false
	}
	return n, true
}

func (a *Analyzer) declareGlobals(declvars *Node) {
	a.checkDeclType(declvars)
	declarators(declvars, func(typ Type, decl, size *Node) {
		name := decl.Text
		if isBuiltin(name) {
			a.Diags.Errorf(decl, "redeclaration of built-in '%s'", name)
			return
		}
		if a.Env.LookupGlobal(name) != nil {
			a.Diags.Errorf(decl, "redeclaration of '%s'", name)
			return
		}
		if size == nil {
			a.Env.addGlobal(name, typ, 0)
			return
		}
		if n, ok := a.arraySize(decl, size); ok {
			a.Env.addGlobal(name, typ.ArrayOf(), n)
		}
	})
}

func (a *Analyzer) function(decl *Node) {
	if decl.Kind != NodeDeclFunct {
		return
	}
	header := decl.Child(0)
	body := decl.Child(1)
	nameNode := header.Child(1)
	name := nameNode.Text

	ret := TypeVoid
	if rt := header.Child(0); rt.Kind == NodeType {
		var ok bool
		if ret, ok = parseTypeName(rt.Text); !ok {
			a.Diags.Errorf(rt, "unknown type '%s'", rt.Text)
		}
	}

	if a.Env.LookupGlobal(name) != nil {
		a.Diags.Errorf(decl, "function '%s' has the same name as a global variable", name)
	}
	if name == "main" && ret != TypeInt {
		a.Diags.Errorf(decl, "main must be int, not '%s'", ret)
	}
	if isBuiltin(name) {
		a.Diags.Errorf(decl, "redefinition of built-in '%s'", name)
	}
	duplicate := a.Env.LookupFunction(name) != nil
	if duplicate {
		a.Diags.Errorf(decl, "redefinition of function '%s'", name)
	}

	f := &FunctionEntry{Name: name, ReturnType: ret, Decl: decl}
	if params := header.Child(2); params != nil && params.Kind == NodeParametres {
		for _, p := range params.Children {
			a.param(f, p)
		}
	}
	if locals := body.Child(0); locals != nil && locals.Kind == NodeDeclVars {
		a.declareLocals(f, locals)
	}

	if duplicate {
		return
	}
	a.Env.addFunction(f)
	a.Env.Current = name

	if !a.verifyReturns(body, ret) && ret != TypeVoid {
		a.Diags.Errorf(decl, "function '%s' has no return", name)
	}
	for _, part := range body.Children {
		if part.Kind == NodeSuiteInstr {
			a.statement(part)
		}
	}
}

func (a *Analyzer) param(f *FunctionEntry, p *Node) {
	tn, id := p.Child(0), p.Child(1)
	typ, ok := parseTypeName(tn.Text)
	if !ok {
		a.Diags.Errorf(tn, "unknown type '%s'", tn.Text)
	}
	if p.Kind == NodeParamTab {
		typ = typ.ArrayOf()
	}
	switch {
	case isBuiltin(id.Text):
		a.Diags.Errorf(id, "redeclaration of built-in '%s'", id.Text)
	case id.Text == f.Name:
		a.Diags.Errorf(id, "parameter '%s' has the same name as its function", id.Text)
	case f.Lookup(id.Text) != nil:
		a.Diags.Errorf(id, "redeclaration of '%s'", id.Text)
	default:
		f.addParam(id.Text, typ)
	}
}

func (a *Analyzer) declareLocals(f *FunctionEntry, declvars *Node) {
	a.checkDeclType(declvars)
	declarators(declvars, func(typ Type, decl, size *Node) {
		name := decl.Text
		if isBuiltin(name) {
			a.Diags.Errorf(decl, "redeclaration of built-in '%s'", name)
			return
		}
		if f.Lookup(name) != nil {
			a.Diags.Errorf(decl, "redeclaration of '%s'", name)
			return
		}
		if size == nil {
			f.addLocal(name, typ, 0)
			return
		}
		if n, ok := a.arraySize(decl, size); ok {
			f.addLocal(name, typ.ArrayOf(), n)
		}
	})
}
