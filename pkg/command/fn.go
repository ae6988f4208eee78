package command

import (
	"context"
	"fmt"
	"reflect"

	"github.com/kmolski/acmebot/pkg/eval"
	"github.com/kmolski/acmebot/pkg/eval/vals"
)

// Hook runs around a command invocation. Before hooks run ahead of argument
// evaluation; after hooks run once the command has returned successfully.
type Hook func(ctx context.Context, ec *eval.Context) error

// Fn wraps a Go function into a command operation using reflection.
//
// Parameters are passed following these rules:
//
// 1. If the first parameter has type context.Context, it gets the context of
// the ongoing evaluation.
//
// 2. After the potential context parameter, a parameter of type *Frame gets
// the current invocation frame.
//
// 3. Other parameters must have type string, int, bool or any, and are
// filled from the piped input (if there is one) followed by the evaluated
// arguments, converted using vals.ScanToGo. The last parameter may be
// variadic.
//
// The function must return either just an error, or a value and an error.
// The value, if any, becomes the result of the pipeline stage.
type Fn struct {
	name string
	impl any

	// Type information of impl.
	goCtx       bool
	frame       bool
	normalArgs  []reflect.Type
	variadicArg reflect.Type
	hasRet      bool

	help    string
	aliases []string
	check   func(*eval.Context) bool
	before  []Hook
	after   []Hook
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	frameType   = reflect.TypeOf((*Frame)(nil))
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	anyType     = reflect.TypeOf((*any)(nil)).Elem()
	stringType  = reflect.TypeOf("")
	intType     = reflect.TypeOf(0)
	boolType    = reflect.TypeOf(false)
)

// NewFn wraps impl into an Fn. It panics if the signature of impl does not
// follow the rules documented on Fn; registration happens at program startup
// and a bad signature is a programming error.
func NewFn(name string, impl any, opts ...Option) *Fn {
	implType := reflect.TypeOf(impl)
	if implType == nil || implType.Kind() != reflect.Func {
		panic(fmt.Sprintf("command %q: implementation is %T, not a function", name, impl))
	}
	fn := &Fn{name: name, impl: impl}

	i := 0
	if i < implType.NumIn() && implType.In(i) == contextType {
		fn.goCtx = true
		i++
	}
	if i < implType.NumIn() && implType.In(i) == frameType {
		fn.frame = true
		i++
	}
	for ; i < implType.NumIn(); i++ {
		paramType := implType.In(i)
		if implType.IsVariadic() && i == implType.NumIn()-1 {
			paramType = paramType.Elem()
			checkParamType(name, paramType)
			fn.variadicArg = paramType
			break
		}
		checkParamType(name, paramType)
		fn.normalArgs = append(fn.normalArgs, paramType)
	}

	switch implType.NumOut() {
	case 1:
	case 2:
		fn.hasRet = true
	default:
		panic(fmt.Sprintf("command %q: function must return (error) or (value, error)", name))
	}
	if implType.Out(implType.NumOut()-1) != errorType {
		panic(fmt.Sprintf("command %q: last return value must be error", name))
	}

	for _, opt := range opts {
		opt(fn)
	}
	return fn
}

func checkParamType(name string, typ reflect.Type) {
	switch typ {
	case stringType, intType, boolType, anyType:
	default:
		panic(fmt.Sprintf("command %q: unsupported parameter type %v", name, typ))
	}
}

// Option configures an Fn at registration time.
type Option func(*Fn)

// Aliases registers additional names the command can be resolved under.
func Aliases(names ...string) Option {
	return func(fn *Fn) { fn.aliases = append(fn.aliases, names...) }
}

// Check installs a permission predicate. A command without one is allowed
// for every caller.
func Check(pred func(*eval.Context) bool) Option {
	return func(fn *Fn) { fn.check = pred }
}

// Before appends a hook that runs before the command's arguments are
// evaluated. An error from the hook aborts the invocation.
func Before(h Hook) Option {
	return func(fn *Fn) { fn.before = append(fn.before, h) }
}

// After appends a hook that runs after the command returns successfully.
func After(h Hook) Option {
	return func(fn *Fn) { fn.after = append(fn.after, h) }
}

// Help sets the help text shown by the help command.
func Help(text string) Option {
	return func(fn *Fn) { fn.help = text }
}

// Name returns the canonical name of the command.
func (fn *Fn) Name() string { return fn.name }

// Aliases returns the alternative names of the command.
func (fn *Fn) Aliases() []string { return fn.aliases }

// Help returns the help text of the command.
func (fn *Fn) Help() string { return fn.help }

// CheckPermission reports whether the caller in ec may invoke the command.
func (fn *Fn) CheckPermission(ec *eval.Context) bool {
	return fn.check == nil || fn.check(ec)
}

// RunBeforeHooks runs the before hooks in registration order, stopping at
// the first error.
func (fn *Fn) RunBeforeHooks(ctx context.Context, ec *eval.Context) error {
	return runHooks(ctx, ec, fn.before)
}

// RunAfterHooks runs the after hooks in registration order, stopping at the
// first error.
func (fn *Fn) RunAfterHooks(ctx context.Context, ec *eval.Context) error {
	return runHooks(ctx, ec, fn.after)
}

func runHooks(ctx context.Context, ec *eval.Context, hooks []Hook) error {
	for _, h := range hooks {
		if err := h(ctx, ec); err != nil {
			return err
		}
	}
	return nil
}

// Invoke calls the implementation using reflection. The piped input, if any,
// is prepended to the evaluated arguments before they are matched against
// the declared parameters.
func (fn *Fn) Invoke(ctx context.Context, ec *eval.Context, piped any, args []any, display bool) (any, error) {
	values := args
	if piped != nil {
		values = append([]any{piped}, args...)
	}
	if fn.variadicArg != nil {
		if len(values) < len(fn.normalArgs) {
			return nil, eval.Errorf("command `%s` takes at least %d argument(s), got %d",
				fn.name, len(fn.normalArgs), len(values))
		}
	} else if len(values) != len(fn.normalArgs) {
		return nil, eval.Errorf("command `%s` takes %d argument(s), got %d",
			fn.name, len(fn.normalArgs), len(values))
	}

	var in []reflect.Value
	if fn.goCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	if fn.frame {
		in = append(in, reflect.ValueOf(&Frame{Context: ec, Display: display}))
	}
	for i, value := range values {
		typ := fn.variadicArg
		if i < len(fn.normalArgs) {
			typ = fn.normalArgs[i]
		}
		ptr := reflect.New(typ)
		if err := vals.ScanToGo(value, ptr.Interface()); err != nil {
			return nil, eval.Errorf("wrong type of argument %d to `%s`: %v", i+1, fn.name, err)
		}
		in = append(in, ptr.Elem())
	}

	rets := reflect.ValueOf(fn.impl).Call(in)
	if errRet := rets[len(rets)-1]; !errRet.IsNil() {
		return nil, errRet.Interface().(error)
	}
	if fn.hasRet {
		return rets[0].Interface(), nil
	}
	return nil, nil
}
