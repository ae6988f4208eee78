package parse

import "github.com/kmolski/acmebot/pkg/diag"

// Node represents a parse tree node.
type Node interface {
	diag.Ranger
	parse(ps *parser)
	n() *node

	// SourceText returns the part of the source text that parses to the node.
	SourceText() string
	// Parent returns the parent of the node. The parent of the root node is
	// nil. It is only used for diagnostics and never consulted during
	// evaluation.
	Parent() Node
	// Children returns the children of the node.
	Children() []Node
}

// node is the base of all nodes.
type node struct {
	diag.Ranging
	sourceText string
	parent     Node
	children   []Node
}

func (n *node) n() *node { return n }

func (n *node) addChild(ch Node) { n.children = append(n.children, ch) }

func (n *node) SourceText() string { return n.sourceText }

func (n *node) Parent() Node { return n.parent }

func (n *node) Children() []Node { return n.children }

// Expr is satisfied by nodes that may appear as a pipeline stage or a command
// argument.
type Expr interface {
	Node
	expr()
}

func (*Command) expr()      {}
func (*StrLiteral) expr()   {}
func (*IntLiteral) expr()   {}
func (*BoolLiteral) expr()  {}
func (*FileRef) expr()      {}
func (*Substitution) expr() {}
