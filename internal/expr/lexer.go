package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenNumber
	tokenString
	tokenIdent
	tokenLParen
	tokenRParen
	tokenLBracket
	tokenRBracket
	tokenLBrace
	tokenRBrace
	tokenComma
	tokenPlus
	tokenMinus
	tokenStar
	tokenSlash
	tokenCaret
	tokenPercent
	tokenAmp
	tokenEq
	tokenNeq
	tokenLt
	tokenGt
	tokenLe
	tokenGe
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

// lexer turns formula text into a token stream.
type lexer struct {
	input string
	pos   int
}

func newLexer(input string) *lexer {
	return &lexer{input: input}
}

func (l *lexer) tokens() ([]token, error) {
	var toks []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.kind == tokenEOF {
			return toks, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{kind: tokenEOF, pos: l.pos}, nil
	}

	start := l.pos
	ch := l.input[l.pos]

	switch {
	case ch >= '0' && ch <= '9' || ch == '.':
		return l.lexNumber(start)
	case ch == '"' || ch == '\'':
		return l.lexString(start, ch)
	case isIdentStart(ch):
		return l.lexIdent(start)
	}

	single := map[byte]tokenKind{
		'(': tokenLParen, ')': tokenRParen,
		'[': tokenLBracket, ']': tokenRBracket,
		'{': tokenLBrace, '}': tokenRBrace,
		',': tokenComma, '+': tokenPlus, '-': tokenMinus,
		'*': tokenStar, '/': tokenSlash, '^': tokenCaret,
		'%': tokenPercent, '&': tokenAmp,
	}

	switch ch {
	case '=':
		l.pos++
		if l.pos < len(l.input) && l.input[l.pos] == '=' {
			l.pos++
		}
		return token{kind: tokenEq, text: "=", pos: start}, nil
	case '!':
		if l.pos+1 < len(l.input) && l.input[l.pos+1] == '=' {
			l.pos += 2
			return token{kind: tokenNeq, text: "!=", pos: start}, nil
		}
		return token{}, fmt.Errorf("unexpected character %q at %d", ch, start)
	case '<':
		l.pos++
		if l.pos < len(l.input) {
			switch l.input[l.pos] {
			case '=':
				l.pos++
				return token{kind: tokenLe, text: "<=", pos: start}, nil
			case '>':
				l.pos++
				return token{kind: tokenNeq, text: "<>", pos: start}, nil
			}
		}
		return token{kind: tokenLt, text: "<", pos: start}, nil
	case '>':
		l.pos++
		if l.pos < len(l.input) && l.input[l.pos] == '=' {
			l.pos++
			return token{kind: tokenGe, text: ">=", pos: start}, nil
		}
		return token{kind: tokenGt, text: ">", pos: start}, nil
	}

	if kind, ok := single[ch]; ok {
		l.pos++
		return token{kind: kind, text: string(ch), pos: start}, nil
	}

	return token{}, fmt.Errorf("unexpected character %q at %d", ch, start)
}

func (l *lexer) lexNumber(start int) (token, error) {
	seenDot := false
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '.' {
			if seenDot {
				break
			}
			seenDot = true
			l.pos++
			continue
		}
		if ch < '0' || ch > '9' {
			break
		}
		l.pos++
	}

	text := l.input[start:l.pos]
	num, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, fmt.Errorf("bad number %q at %d", text, start)
	}

	return token{kind: tokenNumber, text: text, num: num, pos: start}, nil
}

func (l *lexer) lexString(start int, quote byte) (token, error) {
	l.pos++ // opening quote
	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == quote {
			l.pos++
			return token{kind: tokenString, text: sb.String(), pos: start}, nil
		}
		sb.WriteByte(ch)
		l.pos++
	}
	return token{}, fmt.Errorf("unterminated string at %d", start)
}

func (l *lexer) lexIdent(start int) (token, error) {
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
	}
	return token{kind: tokenIdent, text: l.input[start:l.pos], pos: start}, nil
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || (ch >= '0' && ch <= '9')
}
