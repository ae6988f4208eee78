// Package command turns plain Go functions into operations the evaluator can
// dispatch, and keeps them in a registry the evaluator resolves names
// against.
package command

import "github.com/kmolski/acmebot/pkg/eval"

// Frame carries the per-invocation state a command callback may need beyond
// its declared arguments: the invocation context of the evaluator and
// whether this call should display its result to the user.
type Frame struct {
	*eval.Context
	Display bool
}
