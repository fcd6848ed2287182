package rules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CompileError reports invalid expression syntax. It is always raised
// synchronously by Compile, never deferred to evaluation.
type CompileError struct {
	Pos int
	Msg string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile error at offset %d: %s", e.Pos, e.Msg)
}

// EvalError reports a runtime failure such as a missing variable or a
// type mismatch. Callers may treat it as "no entry" or substitute a
// default.
type EvalError struct {
	Msg string
}

func (e *EvalError) Error() string {
	return "eval error: " + e.Msg
}

func evalErrf(format string, args ...interface{}) error {
	return &EvalError{Msg: fmt.Sprintf(format, args...)}
}

type node interface {
	eval(ctx *Context, e *Engine) (Value, error)
}

// Program is one compiled expression. Programs are immutable and safe
// for concurrent evaluation.
type Program struct {
	Text  string
	root  node
	vars  []string
	calls []token
}

// Vars lists the variable names the expression references, sorted.
func (p *Program) Vars() []string {
	return p.vars
}

type parser struct {
	tokens []token
	pos    int
	vars   map[string]struct{}
	calls  []token
}

func parse(text string) (*Program, error) {
	tokens, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, vars: make(map[string]struct{})}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, &CompileError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %s", tok)}
	}
	vars := make([]string, 0, len(p.vars))
	for v := range p.vars {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return &Program{Text: text, root: root, vars: vars, calls: p.calls}, nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	tok := p.peek()
	if tok.kind != kind {
		return token{}, &CompileError{Pos: tok.pos, Msg: fmt.Sprintf("expected %s, got %s", what, tok)}
	}
	return p.next(), nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{op: "||", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{op: "&&", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseEquality() (node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		kind := p.peek().kind
		if kind != tokEq && kind != tokNeq {
			return left, nil
		}
		op := p.next().text
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		kind := p.peek().kind
		if kind != tokLt && kind != tokLte && kind != tokGt && kind != tokGte {
			return left, nil
		}
		op := p.next().text
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for {
		kind := p.peek().kind
		if kind != tokPlus && kind != tokMinus {
			return left, nil
		}
		op := p.next().text
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseFactor() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		kind := p.peek().kind
		if kind != tokStar && kind != tokSlash && kind != tokPercent {
			return left, nil
		}
		op := p.next().text
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	switch p.peek().kind {
	case tokBang:
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notNode{operand: operand}, nil
	case tokMinus:
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &negNode{operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.peek()
	switch tok.kind {
	case tokNumber:
		p.next()
		if strings.Contains(tok.text, ".") {
			f, err := strconv.ParseFloat(tok.text, 64)
			if err != nil {
				return nil, &CompileError{Pos: tok.pos, Msg: fmt.Sprintf("bad number %q", tok.text)}
			}
			return &literalNode{value: Float(f)}, nil
		}
		i, err := strconv.ParseInt(tok.text, 10, 64)
		if err != nil {
			return nil, &CompileError{Pos: tok.pos, Msg: fmt.Sprintf("bad number %q", tok.text)}
		}
		return &literalNode{value: Int(i)}, nil
	case tokString:
		p.next()
		return &literalNode{value: Str(tok.text)}, nil
	case tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, `")"`); err != nil {
			return nil, err
		}
		return inner, nil
	case tokLBracket:
		return p.parseList()
	case tokIdent:
		p.next()
		switch tok.text {
		case "true":
			return &literalNode{value: Bool(true)}, nil
		case "false":
			return &literalNode{value: Bool(false)}, nil
		case "null":
			return &literalNode{value: Null}, nil
		}
		if p.peek().kind == tokLParen {
			return p.parseCall(tok)
		}
		p.vars[tok.text] = struct{}{}
		return &varNode{name: tok.text}, nil
	}
	return nil, &CompileError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %s", tok)}
}

func (p *parser) parseList() (node, error) {
	if _, err := p.expect(tokLBracket, `"["`); err != nil {
		return nil, err
	}
	var elems []node
	if p.peek().kind != tokRBracket {
		for {
			elem, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			elems = append(elems, elem)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if _, err := p.expect(tokRBracket, `"]"`); err != nil {
		return nil, err
	}
	return &listNode{elems: elems}, nil
}

func (p *parser) parseCall(name token) (node, error) {
	if _, err := p.expect(tokLParen, `"("`); err != nil {
		return nil, err
	}
	var args []node
	if p.peek().kind != tokRParen {
		for {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if _, err := p.expect(tokRParen, `")"`); err != nil {
		return nil, err
	}
	p.calls = append(p.calls, name)
	return &callNode{name: name.text, pos: name.pos, args: args}, nil
}
