package condition

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokTrue
	tokFalse
	tokNull
	tokEq
	tokNeq
	tokLt
	tokLte
	tokGt
	tokGte
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

var tokenNames = map[tokenKind]string{
	tokEOF:    "end of input",
	tokIdent:  "identifier",
	tokNumber: "number",
	tokString: "string",
	tokTrue:   "true",
	tokFalse:  "false",
	tokNull:   "null",
	tokEq:     "==",
	tokNeq:    "!=",
	tokLt:     "<",
	tokLte:    "<=",
	tokGt:     ">",
	tokGte:    ">=",
	tokAnd:    "&&",
	tokOr:     "||",
	tokNot:    "!",
	tokLParen: "(",
	tokRParen: ")",
}

func (k tokenKind) String() string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(k))
}

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

// SyntaxError reports the byte offset at which a condition stopped parsing.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("condition syntax error at %d: %s", e.Pos, e.Msg)
}

func lex(src string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == '=':
			// == and === are the same operator.
			n := runLength(src, i, '=')
			if n < 2 || n > 3 {
				return nil, &SyntaxError{Pos: i, Msg: "expected == or ==="}
			}
			tokens = append(tokens, token{kind: tokEq, text: src[i : i+n], pos: i})
			i += n
		case c == '!':
			n := 1 + runLength(src, i+1, '=')
			switch n {
			case 1:
				tokens = append(tokens, token{kind: tokNot, text: "!", pos: i})
			case 2, 3:
				tokens = append(tokens, token{kind: tokNeq, text: src[i : i+n], pos: i})
			default:
				return nil, &SyntaxError{Pos: i, Msg: "unexpected operator " + src[i:i+n]}
			}
			i += n
		case c == '<' || c == '>':
			kind, text := tokLt, "<"
			if c == '>' {
				kind, text = tokGt, ">"
			}
			if i+1 < len(src) && src[i+1] == '=' {
				kind++
				text += "="
			}
			tokens = append(tokens, token{kind: kind, text: text, pos: i})
			i += len(text)
		case c == '&' || c == '|':
			if i+1 >= len(src) || src[i+1] != c {
				return nil, &SyntaxError{Pos: i, Msg: fmt.Sprintf("expected %c%c", c, c)}
			}
			kind := tokAnd
			if c == '|' {
				kind = tokOr
			}
			tokens = append(tokens, token{kind: kind, text: src[i : i+2], pos: i})
			i += 2
		case c == '"' || c == '\'':
			text, end, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokString, text: text, pos: i})
			i = end
		case c == '-' || c == '.' || isDigit(c):
			tok, end, err := lexNumber(src, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = end
		case isIdentStart(c):
			start := i
			for i < len(src) && (isIdentPart(src[i]) || src[i] == '.') {
				i++
			}
			text := src[start:i]
			tokens = append(tokens, identToken(text, start))
		default:
			return nil, &SyntaxError{Pos: i, Msg: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(src)})
	return tokens, nil
}

func identToken(text string, pos int) token {
	switch text {
	case "true":
		return token{kind: tokTrue, text: text, pos: pos}
	case "false":
		return token{kind: tokFalse, text: text, pos: pos}
	case "null":
		return token{kind: tokNull, text: text, pos: pos}
	}
	return token{kind: tokIdent, text: text, pos: pos}
}

func lexString(src string, start int) (string, int, error) {
	quote := src[start]
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		c := src[i]
		switch {
		case c == '\\':
			if i+1 >= len(src) {
				return "", 0, &SyntaxError{Pos: i, Msg: "unterminated escape"}
			}
			switch next := src[i+1]; next {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\', '\'', '"':
				b.WriteByte(next)
			default:
				return "", 0, &SyntaxError{Pos: i, Msg: fmt.Sprintf("unknown escape \\%c", next)}
			}
			i += 2
		case c == quote:
			return b.String(), i + 1, nil
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, &SyntaxError{Pos: start, Msg: "unterminated string"}
}

func lexNumber(src string, start int) (token, int, error) {
	i := start
	if src[i] == '-' {
		i++
	}
	digits := 0
	for i < len(src) && (isDigit(src[i]) || src[i] == '.' || src[i] == '_') {
		if isDigit(src[i]) {
			digits++
		}
		i++
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		i++
		if i < len(src) && (src[i] == '+' || src[i] == '-') {
			i++
		}
		for i < len(src) && isDigit(src[i]) {
			i++
		}
	}
	text := src[start:i]
	if digits == 0 {
		return token{}, 0, &SyntaxError{Pos: start, Msg: fmt.Sprintf("invalid number %q", text)}
	}
	num, err := strconv.ParseFloat(strings.ReplaceAll(text, "_", ""), 64)
	if err != nil {
		return token{}, 0, &SyntaxError{Pos: start, Msg: fmt.Sprintf("invalid number %q", text)}
	}
	return token{kind: tokNumber, text: text, num: num, pos: start}, i, nil
}

func runLength(src string, start int, c byte) int {
	n := 0
	for start+n < len(src) && src[start+n] == c {
		n++
	}
	return n
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }
