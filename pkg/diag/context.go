// Package diag contains building blocks for diagnostics that can be
// associated with a range in some source text.
package diag

import (
	"fmt"
	"strings"
)

// Context is a range of text in a piece of source code. It is typically used
// for errors that can be associated with a part of the source code, like
// parse errors.
type Context struct {
	Name   string
	Source string
	Ranging
}

// NewContext creates a new Context.
func NewContext(name, source string, r Ranger) *Context {
	return &Context{name, source, r.Range()}
}

// Culprit returns the text inside the range, with a trailing newline
// stripped.
func (c *Context) Culprit() string {
	return strings.TrimSuffix(c.Source[c.From:c.To], "\n")
}

// Describe returns a description of the context suitable for inclusion in an
// error message, like "column 5 in message".
func (c *Context) Describe() string {
	if c.From < 0 || c.To > len(c.Source) || c.From > c.To {
		return fmt.Sprintf("invalid position %d-%d in %s", c.From, c.To, c.Name)
	}
	// Source lines are always single chat messages, so a column is more
	// useful than a line number.
	return fmt.Sprintf("column %d in %s", c.column(), c.Name)
}

func (c *Context) column() int {
	line := c.Source[:c.From]
	if i := strings.LastIndexByte(line, '\n'); i >= 0 {
		line = line[i+1:]
	}
	return len(line) + 1
}
