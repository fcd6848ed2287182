package rules

type literalNode struct {
	value Value
}

func (n *literalNode) eval(*Context, *Engine) (Value, error) {
	return n.value, nil
}

type varNode struct {
	name string
}

func (n *varNode) eval(ctx *Context, _ *Engine) (Value, error) {
	v, ok := ctx.Get(n.name)
	if !ok {
		return Null, evalErrf("undefined variable %q", n.name)
	}
	return v, nil
}

type listNode struct {
	elems []node
}

func (n *listNode) eval(ctx *Context, e *Engine) (Value, error) {
	vs := make([]Value, len(n.elems))
	for i, elem := range n.elems {
		v, err := elem.eval(ctx, e)
		if err != nil {
			return Null, err
		}
		vs[i] = v
	}
	return List(vs), nil
}

type notNode struct {
	operand node
}

func (n *notNode) eval(ctx *Context, e *Engine) (Value, error) {
	v, err := n.operand.eval(ctx, e)
	if err != nil {
		return Null, err
	}
	return Bool(!v.AsBool()), nil
}

type negNode struct {
	operand node
}

func (n *negNode) eval(ctx *Context, e *Engine) (Value, error) {
	v, err := n.operand.eval(ctx, e)
	if err != nil {
		return Null, err
	}
	if v.Kind() == KindInt {
		return Int(-v.i), nil
	}
	f, err := v.AsFloat()
	if err != nil {
		return Null, evalErrf("cannot negate %s", v.Kind())
	}
	return Float(-f), nil
}

// logicalNode short-circuits, so a missing variable on the untaken
// branch never raises.
type logicalNode struct {
	op          string
	left, right node
}

func (n *logicalNode) eval(ctx *Context, e *Engine) (Value, error) {
	left, err := n.left.eval(ctx, e)
	if err != nil {
		return Null, err
	}
	if n.op == "&&" && !left.AsBool() {
		return Bool(false), nil
	}
	if n.op == "||" && left.AsBool() {
		return Bool(true), nil
	}
	right, err := n.right.eval(ctx, e)
	if err != nil {
		return Null, err
	}
	return Bool(right.AsBool()), nil
}

type binaryNode struct {
	op          string
	left, right node
}

func (n *binaryNode) eval(ctx *Context, e *Engine) (Value, error) {
	left, err := n.left.eval(ctx, e)
	if err != nil {
		return Null, err
	}
	right, err := n.right.eval(ctx, e)
	if err != nil {
		return Null, err
	}

	switch n.op {
	case "==":
		return Bool(left.Equal(right)), nil
	case "!=":
		return Bool(!left.Equal(right)), nil
	}

	if left.Kind() == KindString && right.Kind() == KindString {
		switch n.op {
		case "+":
			return Str(left.s + right.s), nil
		case "<":
			return Bool(left.s < right.s), nil
		case "<=":
			return Bool(left.s <= right.s), nil
		case ">":
			return Bool(left.s > right.s), nil
		case ">=":
			return Bool(left.s >= right.s), nil
		}
	}

	lf, err := left.AsFloat()
	if err != nil {
		return Null, evalErrf("left operand of %q: %v", n.op, err)
	}
	rf, err := right.AsFloat()
	if err != nil {
		return Null, evalErrf("right operand of %q: %v", n.op, err)
	}

	bothInt := left.Kind() == KindInt && right.Kind() == KindInt
	switch n.op {
	case "<":
		return Bool(lf < rf), nil
	case "<=":
		return Bool(lf <= rf), nil
	case ">":
		return Bool(lf > rf), nil
	case ">=":
		return Bool(lf >= rf), nil
	case "+":
		if bothInt {
			return Int(left.i + right.i), nil
		}
		return Float(lf + rf), nil
	case "-":
		if bothInt {
			return Int(left.i - right.i), nil
		}
		return Float(lf - rf), nil
	case "*":
		if bothInt {
			return Int(left.i * right.i), nil
		}
		return Float(lf * rf), nil
	case "/":
		if rf == 0 {
			return Null, evalErrf("division by zero")
		}
		return Float(lf / rf), nil
	case "%":
		if bothInt {
			if right.i == 0 {
				return Null, evalErrf("division by zero")
			}
			return Int(left.i % right.i), nil
		}
		return Null, evalErrf("modulo requires integer operands")
	}
	return Null, evalErrf("unsupported operator %q", n.op)
}

type callNode struct {
	name string
	pos  int
	args []node
}

func (n *callNode) eval(ctx *Context, e *Engine) (Value, error) {
	fn, ok := e.builtins[n.name]
	if !ok {
		return Null, evalErrf("unknown function %q", n.name)
	}
	args := make([]Value, len(n.args))
	for i, arg := range n.args {
		v, err := arg.eval(ctx, e)
		if err != nil {
			return Null, err
		}
		args[i] = v
	}
	return fn(ctx, args)
}
