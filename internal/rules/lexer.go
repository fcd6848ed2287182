package rules

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokPercent
	tokBang
	tokEq
	tokNeq
	tokLt
	tokLte
	tokGt
	tokGte
	tokAnd
	tokOr
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return fmt.Sprintf("%q", t.text)
}

// lex tokenizes an expression. A lex failure is a CompileError.
func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c >= '0' && c <= '9' || c == '.' && i+1 < len(input) && input[i+1] >= '0' && input[i+1] <= '9':
			start := i
			seenDot := false
			for i < len(input) && (input[i] >= '0' && input[i] <= '9' || input[i] == '.' && !seenDot) {
				if input[i] == '.' {
					seenDot = true
				}
				i++
			}
			tokens = append(tokens, token{tokNumber, input[start:i], start})
		case isIdentStart(rune(c)):
			start := i
			for i < len(input) && isIdentPart(rune(input[i])) {
				i++
			}
			text := input[start:i]
			if strings.HasSuffix(text, ".") {
				return nil, &CompileError{Pos: start, Msg: fmt.Sprintf("identifier %q ends with a dot", text)}
			}
			tokens = append(tokens, token{tokIdent, text, start})
		case c == '"' || c == '\'':
			quote := c
			start := i
			i++
			var sb strings.Builder
			closed := false
			for i < len(input) {
				if input[i] == '\\' && i+1 < len(input) {
					sb.WriteByte(input[i+1])
					i += 2
					continue
				}
				if input[i] == quote {
					closed = true
					i++
					break
				}
				sb.WriteByte(input[i])
				i++
			}
			if !closed {
				return nil, &CompileError{Pos: start, Msg: "unterminated string literal"}
			}
			tokens = append(tokens, token{tokString, sb.String(), start})
		default:
			tok, width, err := lexOperator(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i += width
		}
	}
	tokens = append(tokens, token{tokEOF, "", len(input)})
	return tokens, nil
}

func lexOperator(input string, i int) (token, int, error) {
	two := ""
	if i+1 < len(input) {
		two = input[i : i+2]
	}
	switch two {
	case "==":
		return token{tokEq, two, i}, 2, nil
	case "!=":
		return token{tokNeq, two, i}, 2, nil
	case "<=":
		return token{tokLte, two, i}, 2, nil
	case ">=":
		return token{tokGte, two, i}, 2, nil
	case "&&":
		return token{tokAnd, two, i}, 2, nil
	case "||":
		return token{tokOr, two, i}, 2, nil
	}
	one := string(input[i])
	switch input[i] {
	case '(':
		return token{tokLParen, one, i}, 1, nil
	case ')':
		return token{tokRParen, one, i}, 1, nil
	case '[':
		return token{tokLBracket, one, i}, 1, nil
	case ']':
		return token{tokRBracket, one, i}, 1, nil
	case ',':
		return token{tokComma, one, i}, 1, nil
	case '+':
		return token{tokPlus, one, i}, 1, nil
	case '-':
		return token{tokMinus, one, i}, 1, nil
	case '*':
		return token{tokStar, one, i}, 1, nil
	case '/':
		return token{tokSlash, one, i}, 1, nil
	case '%':
		return token{tokPercent, one, i}, 1, nil
	case '!':
		return token{tokBang, one, i}, 1, nil
	case '<':
		return token{tokLt, one, i}, 1, nil
	case '>':
		return token{tokGt, one, i}, 1, nil
	}
	return token{}, 0, &CompileError{Pos: i, Msg: fmt.Sprintf("unexpected character %q", input[i])}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
