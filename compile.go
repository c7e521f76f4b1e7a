package main

// Compilation is everything one run over a syntax tree produces.
type Compilation struct {
	Tree  *Node
	Env   *Environment
	Diags Diagnostics
	Asm   string
}

// Failed reports whether analysis found an error. The assembly is produced
// either way.
func (c *Compilation) Failed() bool {
	return c.Diags.HasErrors()
}

// Compile loads a tree, analyzes it and generates assembly. Only a tree that
// cannot be read is an error; program problems are diagnostics.
func Compile(src, entry string) (*Compilation, error) {
	tree, err := LoadTree(src)
	if err != nil {
		return nil, err
	}
	return CompileTree(tree, entry), nil
}

func CompileTree(tree *Node, entry string) *Compilation {
	c := &Compilation{Tree: tree}
	c.Diags.Reset()
	c.Env = Analyze(tree, &c.Diags)
	c.Asm = Generate(tree, c.Env, entry)
	return c
}
