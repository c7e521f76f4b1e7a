package main

// foldConstant evaluates an array size expression. Only literals and
// operators over them fold; anything else reports ok=false.
func foldConstant(node *Node) (value int, ok bool) {
	if node == nil {
		return 0, false
	}
	switch node.Kind {
	case NodeNum:
		v, err := intValue(node.Text)
		return v, err == nil
	case NodeCharacter:
		v, err := charValue(node.Text)
		return v, err == nil
	case NodeAddSub:
		v, ok := foldConstant(node.Child(0))
		if !ok {
			return 0, false
		}
		if node.Text == "-" {
			return -v, true
		}
		return v, true
	}

	if !node.isBinary() {
		return 0, false
	}
	l, ok := foldConstant(node.Child(0))
	if !ok {
		return 0, false
	}
	r, ok := foldConstant(node.Child(1))
	if !ok {
		return 0, false
	}

	switch node.Kind {
	case NodeOr:
		return boolInt(l != 0 || r != 0), true
	case NodeAnd:
		return boolInt(l != 0 && r != 0), true
	case NodeEq:
		return boolInt(l == r), true
	case NodeNeq:
		return boolInt(l != r), true
	case NodeLt:
		return boolInt(l < r), true
	case NodeLe:
		return boolInt(l <= r), true
	case NodeGt:
		return boolInt(l > r), true
	case NodeGe:
		return boolInt(l >= r), true
	case NodeAdd:
		return l + r, true
	case NodeSub:
		return l - r, true
	case NodeMul:
		return l * r, true
	case NodeDiv:
		if r == 0 {
			return 0, false
		}
		return l / r, true
	case NodeMod:
		if r == 0 {
			return 0, false
		}
		return l % r, true
	}
	return 0, false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
