package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/strager/tpcc/sexy"
)

type NodeKind string

const (
	NodeProg        NodeKind = "prog"
	NodeDeclVars    NodeKind = "declvars"
	NodeDeclarators NodeKind = "declarators"
	NodeType        NodeKind = "type"
	NodeVoid        NodeKind = "void"
	NodeTab         NodeKind = "tab"

	NodeDeclFuncts  NodeKind = "declfuncts"
	NodeDeclFunct   NodeKind = "declfunct"
	NodeEnteteFonct NodeKind = "entetefonct"
	NodeParametres  NodeKind = "parametres"
	NodeParam       NodeKind = "param"
	NodeParamTab    NodeKind = "paramtab"
	NodeCorps       NodeKind = "corps"

	NodeSuiteInstr     NodeKind = "suiteinstr"
	NodeAffectation    NodeKind = "affectation"
	NodeAffectationTab NodeKind = "affectationtab"
	NodeIf             NodeKind = "if"
	NodeWhile          NodeKind = "while"
	NodeReturn         NodeKind = "return"
	NodeNoop           NodeKind = "noop"
	NodeFonction       NodeKind = "fonction"

	NodeNum       NodeKind = "num"
	NodeCharacter NodeKind = "character"
	NodeIdent     NodeKind = "ident"
	NodeTabAffect NodeKind = "tabaffect"
	NodeAddSub    NodeKind = "addsub"
	NodeOr        NodeKind = "or"
	NodeAnd       NodeKind = "and"
	NodeEq        NodeKind = "eq"
	NodeNeq       NodeKind = "neq"
	NodeLt        NodeKind = "lt"
	NodeLe        NodeKind = "le"
	NodeGt        NodeKind = "gt"
	NodeGe        NodeKind = "ge"
	NodeAdd       NodeKind = "add"
	NodeSub       NodeKind = "sub"
	NodeMul       NodeKind = "mul"
	NodeDiv       NodeKind = "div"
	NodeMod       NodeKind = "mod"
)

// nodeShape describes how a node kind is written: whether it carries a text
// payload and how many children it takes (max -1 means unbounded).
type nodeShape struct {
	text     bool
	min, max int
}

var nodeShapes = map[NodeKind]nodeShape{
	NodeProg:        {min: 1, max: 2},
	NodeDeclVars:    {min: 0, max: -1},
	NodeDeclarators: {min: 2, max: -1},
	NodeType:        {text: true},
	NodeVoid:        {},
	NodeTab:         {text: true, min: 1, max: 1},

	NodeDeclFuncts:  {min: 0, max: -1},
	NodeDeclFunct:   {min: 2, max: 2},
	NodeEnteteFonct: {min: 2, max: 3},
	NodeParametres:  {min: 1, max: -1},
	NodeParam:       {min: 2, max: 2},
	NodeParamTab:    {min: 2, max: 2},
	NodeCorps:       {min: 1, max: 2},

	NodeSuiteInstr:     {min: 0, max: -1},
	NodeAffectation:    {min: 2, max: 2},
	NodeAffectationTab: {min: 3, max: 3},
	NodeIf:             {min: 2, max: 3},
	NodeWhile:          {min: 2, max: 2},
	NodeReturn:         {min: 0, max: 1},
	NodeNoop:           {},
	NodeFonction:       {text: true, min: 0, max: -1},

	NodeNum:       {text: true},
	NodeCharacter: {text: true},
	NodeIdent:     {text: true},
	NodeTabAffect: {min: 2, max: 2},
	NodeAddSub:    {text: true, min: 1, max: 1},
	NodeOr:        {min: 2, max: 2},
	NodeAnd:       {min: 2, max: 2},
	NodeEq:        {min: 2, max: 2},
	NodeNeq:       {min: 2, max: 2},
	NodeLt:        {min: 2, max: 2},
	NodeLe:        {min: 2, max: 2},
	NodeGt:        {min: 2, max: 2},
	NodeGe:        {min: 2, max: 2},
	NodeAdd:       {min: 2, max: 2},
	NodeSub:       {min: 2, max: 2},
	NodeMul:       {min: 2, max: 2},
	NodeDiv:       {min: 2, max: 2},
	NodeMod:       {min: 2, max: 2},
}

// Node is one node of the syntax tree handed to the analyzer.
type Node struct {
	Kind     NodeKind
	Text     string // identifier, literal, type name, operator or callee
	Children []*Node
	Line     int
	Col      int
}

// Child returns the i-th child, or nil if there is none.
func (n *Node) Child(i int) *Node {
	if n == nil || i < 0 || i >= len(n.Children) {
		return nil
	}
	return n.Children[i]
}

func (n *Node) isBinary() bool {
	switch n.Kind {
	case NodeOr, NodeAnd, NodeEq, NodeNeq, NodeLt, NodeLe, NodeGt, NodeGe,
		NodeAdd, NodeSub, NodeMul, NodeDiv, NodeMod:
		return true
	}
	return false
}

// LoadTree reads a syntax tree written as an S-expression document.
func LoadTree(src string) (*Node, error) {
	doc, err := sexy.Parse(src)
	if err != nil {
		return nil, err
	}
	return convertNode(doc, 1, 1)
}

func convertNode(d *sexy.Node, line, col int) (*Node, error) {
	if d.Type == sexy.NodeInteger {
		return &Node{Kind: NodeNum, Text: d.Text, Line: line, Col: col}, nil
	}
	if d.Type != sexy.NodeList {
		return nil, fmt.Errorf("line %d: expected a node, got %s %s", d.Line, d.Type, d)
	}
	if len(d.Items) == 0 || d.Items[0].Type != sexy.NodeSymbol {
		return nil, fmt.Errorf("line %d: node must start with its kind", d.Line)
	}

	kind := NodeKind(d.Items[0].Text)
	shape, ok := nodeShapes[kind]
	if !ok {
		return nil, fmt.Errorf("line %d: unknown node kind '%s'", d.Line, kind)
	}

	if l, ok, err := d.MetaInt("line"); err != nil {
		return nil, err
	} else if ok {
		line = l
	}
	if c, ok, err := d.MetaInt("col"); err != nil {
		return nil, err
	} else if ok {
		col = c
	}

	node := &Node{Kind: kind, Line: line, Col: col}
	items := d.Items[1:]
	if shape.text {
		if len(items) == 0 || (items[0].Type != sexy.NodeString && items[0].Type != sexy.NodeInteger) {
			return nil, fmt.Errorf("line %d: %s node needs a text payload", d.Line, kind)
		}
		node.Text = items[0].Text
		items = items[1:]
	}

	for _, item := range items {
		child, err := convertNode(item, line, col)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}

	if len(node.Children) < shape.min || (shape.max >= 0 && len(node.Children) > shape.max) {
		return nil, fmt.Errorf("line %d: %s node has %d children", d.Line, kind, len(node.Children))
	}
	return node, nil
}

// ToSExpr renders a tree in the form LoadTree reads, with positions.
func ToSExpr(node *Node) string {
	var sb strings.Builder
	writeSExpr(&sb, node)
	return sb.String()
}

func writeSExpr(sb *strings.Builder, node *Node) {
	sb.WriteString("(")
	sb.WriteString(string(node.Kind))
	if nodeShapes[node.Kind].text {
		sb.WriteString(" ")
		sb.WriteString(sexy.Quote(node.Text))
	}
	fmt.Fprintf(sb, " ^{line: %d, col: %d}", node.Line, node.Col)
	for _, child := range node.Children {
		sb.WriteString(" ")
		writeSExpr(sb, child)
	}
	sb.WriteString(")")
}

// PrintTree writes an indented outline of the tree, one node per line.
func PrintTree(w io.Writer, node *Node) {
	printTree(w, node, "", "")
}

func printTree(w io.Writer, node *Node, prefix, childPrefix string) {
	label := string(node.Kind)
	if node.Text != "" {
		label += ": " + node.Text
	}
	fmt.Fprintf(w, "%s%s\n", prefix, label)
	for i, child := range node.Children {
		if i == len(node.Children)-1 {
			printTree(w, child, childPrefix+"└── ", childPrefix+"    ")
		} else {
			printTree(w, child, childPrefix+"├── ", childPrefix+"│   ")
		}
	}
}

// charValue decodes a character literal such as 'a' or '\n'.
func charValue(text string) (int, error) {
	body := text
	if len(body) >= 2 && body[0] == '\'' && body[len(body)-1] == '\'' {
		body = body[1 : len(body)-1]
	}
	switch {
	case len(body) == 1:
		return int(body[0]), nil
	case len(body) == 2 && body[0] == '\\':
		switch body[1] {
		case 'n':
			return '\n', nil
		case 't':
			return '\t', nil
		case 'r':
			return '\r', nil
		case '0':
			return 0, nil
		case '\\', '\'', '"':
			return int(body[1]), nil
		}
	}
	return 0, fmt.Errorf("invalid character literal %s", text)
}

// intValue decodes an integer literal.
func intValue(text string) (int, error) {
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer literal %s", text)
	}
	return int(v), nil
}
