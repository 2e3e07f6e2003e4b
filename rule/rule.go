// Package rule compiles and evaluates derived-label rule expressions.
//
// The expression language is a closed boolean language over a single
// predicate:
//
//	label('winter') and not label('heated')
//
// Grammar: label(<string or identifier>), and, or, not, parentheses,
// true, false. Nothing else tokenizes, so a rule cannot reach outside
// the one predicate it is given: the sandbox boundary is the grammar
// itself, not a restricted symbol table.
package rule

import (
	"fmt"
	"log/slog"
	"strings"
)

// Program is a compiled rule expression.
type Program struct {
	root   *node
	source string
}

// Source returns the expression text the program was compiled from.
func (p *Program) Source() string {
	return p.source
}

// Compile parses an expression into a Program.
func Compile(source string) (*Program, error) {
	toks, err := lex(source)
	if err != nil {
		return nil, err
	}
	parser := &parser{toks: toks}
	root, err := parser.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := parser.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at offset %d", tok.text, tok.pos)
	}
	return &Program{root: root, source: source}, nil
}

// Eval evaluates the program. The has predicate answers "is this label
// id in the object's ancestor set" and is the only capability the
// expression can exercise.
func (p *Program) Eval(has func(labelID string) bool) (bool, error) {
	if p.root == nil {
		return false, fmt.Errorf("empty program")
	}
	return p.root.eval(has)
}

// IsSpecial reports whether a label id belongs to the reserved
// namespace (contains a ':' separator). Special labels cannot carry
// rules.
func IsSpecial(labelID string) bool {
	return strings.Contains(labelID, ":")
}

// CompileRules compiles a label id -> expression source mapping.
// Entries keyed by a special label id and entries that fail to compile
// are dropped with a logged diagnostic; a malformed rule never blocks
// the rest.
func CompileRules(sources map[string]string, logger *slog.Logger) map[string]*Program {
	if logger == nil {
		logger = slog.Default()
	}

	programs := make(map[string]*Program, len(sources))
	for labelID, source := range sources {
		if IsSpecial(labelID) {
			logger.Warn("Dropping rule for special label", "label_id", labelID)
			continue
		}
		program, err := Compile(source)
		if err != nil {
			logger.Warn("Dropping rule that failed to compile",
				"label_id", labelID,
				"source", source,
				"error", err)
			continue
		}
		programs[labelID] = program
	}
	return programs
}
