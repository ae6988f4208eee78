// Package parse implements the parser for the bot's command language.
//
// The parser builds a hybrid of AST (abstract syntax tree) and parse tree
// (a.k.a. concrete syntax tree). The AST part only includes parts that are
// semantically significant, and is embodied in the fields of each *Node type.
// The parse tree part corresponds to all the text in the original source
// text, and is embodied in the children of each *Node type.
//
// The grammar is fixed for the lifetime of the process; it is embodied
// entirely in the parse methods below and carries no mutable state, so
// parsing never has side effects and may run concurrently.
package parse

import (
	"bytes"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kmolski/acmebot/pkg/diag"
)

// Tree represents a parsed tree.
type Tree struct {
	Root   *Sequence
	Source Source
}

// Parse parses the given source as a command sequence. The returned error,
// if not nil, unpacks to one or more *Error values via [UnpackErrors].
func Parse(src Source) (Tree, error) {
	tree := Tree{&Sequence{}, src}
	ps := &parser{srcName: src.Name, src: src.Code}
	parse(ps, tree.Root)
	ps.done()
	return tree, ps.assembleError()
}

// Errors.
var (
	errShouldBePipeline      = newError("", "command or expression")
	errShouldBeCommand       = newError("", "command")
	errShouldBeCommandName   = newError("", "command name")
	errShouldBeSequence      = newError("", "'&&'")
	errShouldBeRParen        = newError("", "')'")
	errShouldBeRBracket      = newError("", "']'")
	errShouldBeFileName      = newError("", "file name")
	errStringUnterminated    = newError("string not terminated")
	errCodeBlockUnterminated = newError("code block not terminated")
	errIntOutOfRange         = newError("integer out of range")
)

// Sequence = { Space } Pipeline { { Space } "&&" { Space } Pipeline }
//
// A Sequence is never empty; parsing fails instead of producing an empty
// node.
type Sequence struct {
	node
	Pipelines []*Pipeline
}

func (sq *Sequence) parse(ps *parser) {
	parseSpaces(sq, ps)
	if !startsExpr(ps) {
		ps.error(errShouldBePipeline)
		return
	}
	parse(ps, &Pipeline{}).addTo(&sq.Pipelines, sq)
	for ps.peek() == '&' {
		if !ps.hasPrefix("&&") {
			ps.error(errShouldBeSequence)
			return
		}
		ps.next()
		ps.next()
		addSep(sq, ps)
		parseSpaces(sq, ps)
		if !startsExpr(ps) {
			ps.error(errShouldBePipeline)
			return
		}
		parse(ps, &Pipeline{}).addTo(&sq.Pipelines, sq)
	}
}

// Pipeline = Stage { { Space } "|" { Space } Command }
//
// The leading stage may be any expression; every following stage must be a
// command, since piping only makes sense into a named operation.
type Pipeline struct {
	node
	Stages []Expr
}

func (pl *Pipeline) parse(ps *parser) {
	pl.parseStage(ps)
	parseSpaces(pl, ps)
	for parseSep(pl, ps, '|') {
		parseSpaces(pl, ps)
		if !startsIdent(ps.peek()) {
			ps.error(errShouldBeCommand)
			return
		}
		parseExpr(ps, &Command{}, pl, &pl.Stages)
		parseSpaces(pl, ps)
	}
}

func (pl *Pipeline) parseStage(ps *parser) {
	switch r := ps.peek(); {
	case r == '[':
		parseExpr(ps, &FileRef{}, pl, &pl.Stages)
	case r == '(':
		parseExpr(ps, &Substitution{}, pl, &pl.Stages)
	case r == '"' || r == '\'' || ps.hasPrefix("```"):
		parseExpr(ps, &StrLiteral{}, pl, &pl.Stages)
	case startsIdent(r):
		// Command wins over the literal interpretation for anything shaped
		// like a command name, per the ordered choice in the grammar.
		parseExpr(ps, &Command{}, pl, &pl.Stages)
	case allowedInBareword(r):
		parseWord(ps, pl, &pl.Stages)
	default:
		ps.error(errShouldBePipeline)
	}
}

// Command = Ident { Space Argument }
type Command struct {
	node
	Name string
	Args []Expr
}

func (cn *Command) parse(ps *parser) {
	if !startsIdent(ps.peek()) {
		ps.error(errShouldBeCommandName)
		return
	}
	begin := ps.pos
	ps.next()
	for allowedInIdent(ps.peek()) {
		ps.next()
	}
	cn.Name = ps.src[begin:ps.pos]
	parseSpaces(cn, ps)
	for startsArgument(ps) {
		cn.parseArg(ps)
		parseSpaces(cn, ps)
	}
}

// Argument = IntLiteral | BoolLiteral | FileRef | Substitution | StrLiteral
//
// Arguments may be arbitrary expressions except another bare command.
func (cn *Command) parseArg(ps *parser) {
	switch r := ps.peek(); {
	case r == '[':
		parseExpr(ps, &FileRef{}, cn, &cn.Args)
	case r == '(':
		parseExpr(ps, &Substitution{}, cn, &cn.Args)
	case r == '"' || r == '\'' || ps.hasPrefix("```"):
		parseExpr(ps, &StrLiteral{}, cn, &cn.Args)
	default:
		parseWord(ps, cn, &cn.Args)
	}
}

func startsArgument(ps *parser) bool {
	r := ps.peek()
	return r == '[' || r == '(' || r == '"' || r == '\'' ||
		allowedInBareword(r) || ps.hasPrefix("```")
}

func startsExpr(ps *parser) bool {
	r := ps.peek()
	return startsArgument(ps) || startsIdent(r)
}

// parseWord parses a bareword token as an integer, boolean or string
// literal, depending on its spelling. Only tokens that consist entirely of
// digits become integers, and only whole-word boolean spellings become
// booleans; everything else is a string.
func parseWord(ps *parser, parent Node, list *[]Expr) {
	word := ps.peekWord()
	switch {
	case isDigits(word):
		parseExpr(ps, &IntLiteral{}, parent, list)
	case isBoolWord(word):
		parseExpr(ps, &BoolLiteral{}, parent, list)
	default:
		parseExpr(ps, &StrLiteral{}, parent, list)
	}
}

// StrLiteral = QuotedString | CodeBlock | Bareword
type StrLiteral struct {
	node
	Value string
}

func (sn *StrLiteral) parse(ps *parser) {
	switch r := ps.peek(); {
	case r == '"' || r == '\'':
		sn.quoted(ps)
	case ps.hasPrefix("```"):
		sn.codeBlock(ps)
	default:
		sn.bareword(ps)
	}
}

// Parses a single- or double-quoted string. A backslash escapes the
// following rune, which is taken verbatim.
func (sn *StrLiteral) quoted(ps *parser) {
	q := ps.next()
	var buf bytes.Buffer
	defer func() { sn.Value = buf.String() }()
	for {
		switch r := ps.next(); r {
		case eof:
			ps.error(errStringUnterminated)
			return
		case q:
			return
		case '\\':
			rr := ps.next()
			if rr == eof {
				ps.error(errStringUnterminated)
				return
			}
			buf.WriteRune(rr)
		default:
			buf.WriteRune(r)
		}
	}
}

// Parses a triple-backtick fenced block. An optional language tag on the
// opening line is discarded; the content is taken verbatim otherwise.
func (sn *StrLiteral) codeBlock(ps *parser) {
	ps.next()
	ps.next()
	ps.next()
	// Language tags are ASCII words, so byte arithmetic is safe here.
	rest := ps.src[ps.pos:]
	if i := strings.IndexByte(rest, '\n'); i >= 0 && isWordRun(rest[:i]) {
		ps.pos += i + 1
	}
	begin := ps.pos
	idx := strings.Index(ps.src[ps.pos:], "```")
	if idx < 0 {
		ps.pos = len(ps.src)
		sn.Value = ps.src[begin:]
		ps.error(errCodeBlockUnterminated)
		return
	}
	sn.Value = ps.src[begin : begin+idx]
	ps.pos = begin + idx + 3
}

func (sn *StrLiteral) bareword(ps *parser) {
	begin := ps.pos
	for allowedInBareword(ps.peek()) {
		ps.next()
	}
	sn.Value = ps.src[begin:ps.pos]
}

// IntLiteral = Digits
type IntLiteral struct {
	node
	Value int
}

func (in *IntLiteral) parse(ps *parser) {
	begin := ps.pos
	for allowedInBareword(ps.peek()) {
		ps.next()
	}
	v, err := strconv.Atoi(ps.src[begin:ps.pos])
	if err != nil {
		ps.errorp(diag.Ranging{From: begin, To: ps.pos}, errIntOutOfRange)
		return
	}
	in.Value = v
}

// BoolLiteral = (?i) yes | true | enable | on | no | false | disable | off
//
// Only the first four spellings are true; every other accepted spelling
// evaluates to false. This mirrors the original language, which tested
// membership in the truthy set without validating false spellings.
type BoolLiteral struct {
	node
	Value bool
}

func (bn *BoolLiteral) parse(ps *parser) {
	begin := ps.pos
	for allowedInBareword(ps.peek()) {
		ps.next()
	}
	bn.Value = boolWords[strings.ToLower(ps.src[begin:ps.pos])]
}

var boolWords = map[string]bool{
	"yes": true, "true": true, "enable": true, "on": true,
	"no": false, "false": false, "disable": false, "off": false,
}

func isBoolWord(s string) bool {
	_, ok := boolWords[strings.ToLower(s)]
	return ok
}

// FileRef = '[' FileName ']'
//
// The file name is resolved at evaluation time, against the recent message
// history of the invocation, not at parse time.
type FileRef struct {
	node
	Name string
}

func (fn *FileRef) parse(ps *parser) {
	parseSep(fn, ps, '[')
	begin := ps.pos
	for {
		r := ps.peek()
		if r == eof {
			ps.error(errShouldBeRBracket)
			break
		}
		if r == ']' {
			break
		}
		ps.next()
	}
	fn.Name = ps.src[begin:ps.pos]
	if fn.Name == "" {
		ps.error(errShouldBeFileName)
	}
	parseSep(fn, ps, ']')
}

// Substitution = '(' Sequence ')'
type Substitution struct {
	node
	Body *Sequence
}

func (sn *Substitution) parse(ps *parser) {
	parseSep(sn, ps, '(')
	parse(ps, &Sequence{}).addAs(&sn.Body, sn)
	if !parseSep(sn, ps, ')') {
		ps.error(errShouldBeRParen)
	}
}

// Sep is the catch-all node type for leaf nodes that lack internal structures
// and semantics, and serve solely for syntactic purposes. The parsing of
// separators depends on the parent node; as such it lacks a genuine parse
// method.
type Sep struct {
	node
}

func (*Sep) parse(*parser) {
	// A no-op, only to satisfy the Node interface.
}

func newSep(src string, begin, end int) *Sep {
	return &Sep{node{diag.Ranging{From: begin, To: end}, src[begin:end], nil, nil}}
}

// parseExpr parses an expression node and appends it to the parent's list of
// expressions.
func parseExpr[N Expr](ps *parser, n N, parent Node, list *[]Expr) {
	p := parse(ps, n)
	*list = append(*list, p.n)
	addChild(parent, p.n)
}

func addSep(n Node, ps *parser) {
	var begin int
	ch := n.Children()
	if len(ch) > 0 {
		begin = ch[len(ch)-1].Range().To
	} else {
		begin = n.Range().From
	}
	if begin < ps.pos {
		addChild(n, newSep(ps.src, begin, ps.pos))
	}
}

func parseSep(n Node, ps *parser, sep rune) bool {
	if ps.peek() == sep {
		ps.next()
		addSep(n, ps)
		return true
	}
	return false
}

func parseSpaces(n Node, ps *parser) {
	for unicode.IsSpace(ps.peek()) {
		ps.next()
	}
	addSep(n, ps)
}

// peekWord returns the bareword token starting at the current position
// without consuming it.
func (ps *parser) peekWord() string {
	end := ps.pos
	for end < len(ps.src) {
		r, s := utf8.DecodeRuneInString(ps.src[end:])
		if !allowedInBareword(r) {
			break
		}
		end += s
	}
	return ps.src[ps.pos:end]
}

func startsIdent(r rune) bool {
	return r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
}

func allowedInIdent(r rune) bool {
	return startsIdent(r) || r == '-' || ('0' <= r && r <= '9')
}

// The reserved runes are the operators and delimiters of the grammar;
// everything else that is not whitespace may appear in a bareword.
func allowedInBareword(r rune) bool {
	switch r {
	case eof, '|', '&', '(', ')', '[', ']', '"', '\'', '`':
		return false
	}
	return !unicode.IsSpace(r)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isWordRun(s string) bool {
	for _, r := range s {
		if !allowedInIdent(r) {
			return false
		}
	}
	return true
}
