package expr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// AST nodes.

type node interface{}

type numberNode struct{ value float64 }

type stringNode struct{ value string }

// identNode is a bare name: a LET binding or a metric reference (which
// resolves to the newest quarter in the window).
type identNode struct{ name string }

// quarterRefNode is the bracketed form Metric[Qn]. Q1 is the newest quarter
// in the window, Qn steps back in time.
type quarterRefNode struct {
	metric string
	index  int // 1-based from the newest quarter
}

// offsetRefNode is the parenthetical form Metric(offset). Offset 0 is the
// newest quarter, negative offsets step back in time.
type offsetRefNode struct {
	metric string
	offset int
}

type callNode struct {
	name string
	args []node
}

type arrayNode struct{ elems []node }

type unaryNode struct {
	op      tokenKind
	operand node
}

type percentNode struct{ operand node }

type binaryNode struct {
	op    tokenKind
	left  node
	right node
}

var quarterIndexPattern = regexp.MustCompile(`^[QP](\d+)$`)

// parser is a recursive-descent parser over the token stream.
type parser struct {
	toks []token
	pos  int
}

// parse compiles formula text into an AST.
func parse(input string) (node, error) {
	toks, err := newLexer(input).tokens()
	if err != nil {
		return nil, err
	}

	p := &parser{toks: toks}
	n, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokenEOF {
		return nil, fmt.Errorf("unexpected token %q at %d", p.peek().text, p.peek().pos)
	}
	return n, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) advance() token {
	tok := p.toks[p.pos]
	if tok.kind != tokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	tok := p.peek()
	if tok.kind != kind {
		return token{}, fmt.Errorf("expected %s at %d, got %q", what, tok.pos, tok.text)
	}
	return p.advance(), nil
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}

	for {
		op := p.peek().kind
		switch op {
		case tokenEq, tokenNeq, tokenLt, tokenGt, tokenLe, tokenGe:
			p.advance()
			right, err := p.parseConcat()
			if err != nil {
				return nil, err
			}
			left = binaryNode{op: op, left: left, right: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseConcat() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokenAmp {
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: tokenAmp, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}

	for {
		op := p.peek().kind
		if op != tokenPlus && op != tokenMinus {
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseExponent()
	if err != nil {
		return nil, err
	}

	for {
		op := p.peek().kind
		if op != tokenStar && op != tokenSlash {
			return left, nil
		}
		p.advance()
		right, err := p.parseExponent()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseExponent() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	// Right-associative.
	if p.peek().kind == tokenCaret {
		p.advance()
		right, err := p.parseExponent()
		if err != nil {
			return nil, err
		}
		return binaryNode{op: tokenCaret, left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().kind == tokenMinus {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: tokenMinus, operand: operand}, nil
	}
	if p.peek().kind == tokenPlus {
		p.advance()
		return p.parseUnary()
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (node, error) {
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	// Percent literal / postfix percent: 20% is the fraction 0.20.
	for p.peek().kind == tokenPercent {
		p.advance()
		n = percentNode{operand: n}
	}
	return n, nil
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.peek()

	switch tok.kind {
	case tokenNumber:
		p.advance()
		return numberNode{value: tok.num}, nil

	case tokenString:
		p.advance()
		return stringNode{value: tok.text}, nil

	case tokenLParen:
		p.advance()
		n, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenRParen, ")"); err != nil {
			return nil, err
		}
		return n, nil

	case tokenLBrace:
		return p.parseArray()

	case tokenIdent:
		return p.parseIdent()
	}

	return nil, fmt.Errorf("unexpected token %q at %d", tok.text, tok.pos)
}

func (p *parser) parseArray() (node, error) {
	p.advance() // {
	var elems []node

	if p.peek().kind == tokenRBrace {
		p.advance()
		return arrayNode{}, nil
	}

	for {
		elem, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)

		if p.peek().kind == tokenComma {
			p.advance()
			continue
		}
		if _, err := p.expect(tokenRBrace, "}"); err != nil {
			return nil, err
		}
		return arrayNode{elems: elems}, nil
	}
}

func (p *parser) parseIdent() (node, error) {
	name := p.advance().text

	switch p.peek().kind {
	case tokenLBracket:
		p.advance()
		idxTok, err := p.expect(tokenIdent, "quarter index")
		if err != nil {
			return nil, err
		}
		m := quarterIndexPattern.FindStringSubmatch(strings.ToUpper(idxTok.text))
		if m == nil {
			return nil, fmt.Errorf("bad quarter index %q at %d", idxTok.text, idxTok.pos)
		}
		idx, _ := strconv.Atoi(m[1])
		if idx < 1 {
			return nil, fmt.Errorf("quarter index must be >= 1 at %d", idxTok.pos)
		}
		if _, err := p.expect(tokenRBracket, "]"); err != nil {
			return nil, err
		}
		return quarterRefNode{metric: name, index: idx}, nil

	case tokenLParen:
		p.advance()
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}

		if isFunction(name) {
			return callNode{name: strings.ToUpper(name), args: args}, nil
		}

		// A non-function name followed by a single integer argument is the
		// relative-offset quarter reference: Metric(0), Metric(-1).
		if offset, ok := constantOffset(args); ok {
			return offsetRefNode{metric: name, offset: offset}, nil
		}
		return nil, fmt.Errorf("unknown function %q", name)

	default:
		return identNode{name: name}, nil
	}
}

func (p *parser) parseArgs() ([]node, error) {
	var args []node

	if p.peek().kind == tokenRParen {
		p.advance()
		return args, nil
	}

	for {
		arg, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		if p.peek().kind == tokenComma {
			p.advance()
			continue
		}
		if _, err := p.expect(tokenRParen, ")"); err != nil {
			return nil, err
		}
		return args, nil
	}
}

// constantOffset extracts an integer offset from a single-argument list.
func constantOffset(args []node) (int, bool) {
	if len(args) != 1 {
		return 0, false
	}
	switch a := args[0].(type) {
	case numberNode:
		if a.value == float64(int(a.value)) {
			return int(a.value), true
		}
	case unaryNode:
		if a.op == tokenMinus {
			if num, ok := a.operand.(numberNode); ok && num.value == float64(int(num.value)) {
				return -int(num.value), true
			}
		}
	}
	return 0, false
}
