package rule

import (
	"fmt"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokAnd
	tokOr
	tokNot
	tokTrue
	tokFalse
	tokLabel
	tokLParen
	tokRParen
	tokString
	tokIdent
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex tokenizes an expression. Keywords are case-sensitive; anything
// outside the grammar is a lex error.
func lex(source string) ([]token, error) {
	var toks []token
	runes := []rune(source)
	i := 0

	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case r == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++

		case r == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++

		case r == '\'' || r == '"':
			quote := r
			start := i
			i++
			for i < len(runes) && runes[i] != quote {
				i++
			}
			if i >= len(runes) {
				return nil, fmt.Errorf("unterminated string at offset %d", start)
			}
			toks = append(toks, token{
				kind: tokString,
				text: string(runes[start+1 : i]),
				pos:  start,
			})
			i++

		case isIdentRune(r):
			start := i
			for i < len(runes) && isIdentRune(runes[i]) {
				i++
			}
			word := string(runes[start:i])
			kind, ok := keywords[word]
			if !ok {
				// Bare identifiers are only valid as label() arguments;
				// the parser rejects them anywhere else.
				kind = tokIdent
			}
			toks = append(toks, token{kind: kind, text: word, pos: start})

		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d", r, i)
		}
	}

	toks = append(toks, token{kind: tokEOF, pos: len(runes)})
	return toks, nil
}

var keywords = map[string]tokenKind{
	"and":   tokAnd,
	"or":    tokOr,
	"not":   tokNot,
	"true":  tokTrue,
	"false": tokFalse,
	"label": tokLabel,
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
