package eval

import "context"

// Resolver resolves a textual command name to an invocable operation. It is
// the seam between the evaluator and the catalogue of registered commands;
// lookup is case-sensitive.
type Resolver interface {
	Resolve(name string) (Operation, bool)
}

// Operation is a registered, named, effectful action the evaluator can
// dispatch to.
type Operation interface {
	// CheckPermission reports whether the calling identity may invoke the
	// operation. It must be free of side effects.
	CheckPermission(ec *Context) bool
	// RunBeforeHooks runs hooks registered to run before the operation.
	RunBeforeHooks(ctx context.Context, ec *Context) error
	// RunAfterHooks runs hooks registered to run after the operation.
	RunAfterHooks(ctx context.Context, ec *Context) error
	// Invoke runs the operation. piped is the result of the previous
	// pipeline stage, or nil if this stage received none; args are the
	// evaluated argument values in declaration order; display indicates
	// whether the operation should produce user-visible output.
	Invoke(ctx context.Context, ec *Context, piped any, args []any, display bool) (any, error)
}
