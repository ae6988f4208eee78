package parse

// Source describes a piece of source text to parse.
type Source struct {
	// Name describes where the text comes from, e.g. "message" for a chat
	// message. It is only used in diagnostics.
	Name string
	// Code is the text itself.
	Code string
}