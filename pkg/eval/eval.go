// Package eval implements the evaluator for the bot's command language.
//
// Evaluation is a depth-first walk of the parse tree. All request-scoped
// state lives in [Context]; the nodes themselves are never mutated and may
// be evaluated again. Pipeline stages run strictly left to right, with the
// result of each stage delivered to the next as its piped input, and only
// the last stage of a pipeline may produce user-visible output. Any error
// aborts the whole sequence; nothing is retried.
package eval

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kmolski/acmebot/pkg/eval/vals"
	"github.com/kmolski/acmebot/pkg/parse"
)

// attachmentScanWindow bounds how many recent messages are scanned to
// resolve a file reference. A reference that is not found within the window
// is an error rather than a reason to scan further.
const attachmentScanWindow = 1000

// Evaler evaluates parsed command sequences against a command resolver.
type Evaler struct {
	resolver Resolver
	logger   zerolog.Logger
}

// New creates a new Evaler.
func New(resolver Resolver, logger zerolog.Logger) *Evaler {
	return &Evaler{resolver, logger}
}

// Eval evaluates a parsed tree with the given invocation context and ambient
// display flag, returning the final string result. Cancelling ctx stops
// evaluation before the next suspension point; side effects of stages that
// already completed are not rolled back.
func (ev *Evaler) Eval(ctx context.Context, tree parse.Tree, ec *Context, display bool) (string, error) {
	return ev.sequence(ctx, ec, tree.Root, display)
}

// A sequence concatenates the string forms of its pipelines' results,
// skipping pipelines that produced no value. Sequencing does not suppress
// the output of any pipeline.
func (ev *Evaler) sequence(ctx context.Context, ec *Context, sq *parse.Sequence, display bool) (string, error) {
	var sb strings.Builder
	for _, pl := range sq.Pipelines {
		ret, err := ev.pipeline(ctx, ec, pl, display)
		if err != nil {
			return "", err
		}
		if ret != nil {
			sb.WriteString(vals.ToString(ret))
		}
	}
	return sb.String(), nil
}

// A pipeline evaluates its stages strictly in order, delivering each result
// as the piped input of the following stage, and returns the last stage's
// result. Only the last stage gets the ambient display flag; earlier stages
// would duplicate output that the final stage already accounts for.
func (ev *Evaler) pipeline(ctx context.Context, ec *Context, pl *parse.Pipeline, display bool) (any, error) {
	var data any
	for i, stage := range pl.Stages {
		ret, err := ev.expr(ctx, ec, stage, data, display && i == len(pl.Stages)-1)
		if err != nil {
			return nil, err
		}
		data = ret
	}
	return data, nil
}

func (ev *Evaler) expr(ctx context.Context, ec *Context, n parse.Expr, piped any, display bool) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch n := n.(type) {
	case *parse.Command:
		return ev.command(ctx, ec, n, piped, display)
	case *parse.StrLiteral:
		if display {
			if err := ec.Output.SendBlock(ctx, n.Value, ""); err != nil {
				return nil, err
			}
		}
		return n.Value, nil
	case *parse.IntLiteral:
		return n.Value, nil
	case *parse.BoolLiteral:
		return n.Value, nil
	case *parse.FileRef:
		return ev.fileRef(ctx, ec, n, display)
	case *parse.Substitution:
		return ev.sequence(ctx, ec, n.Body, display)
	default:
		panic("unknown expression node")
	}
}

func (ev *Evaler) command(ctx context.Context, ec *Context, cn *parse.Command, piped any, display bool) (any, error) {
	op, ok := ev.resolver.Resolve(cn.Name)
	if !ok {
		return nil, &CommandNotFoundError{cn.Name}
	}
	// Saved before anything can fail, so errors are attributed to the
	// innermost command that was being dispatched.
	ec.Command = cn
	ev.logger.Debug().Str("command", cn.Name).Bool("display", display).Msg("dispatching")

	if !op.CheckPermission(ec) {
		return nil, &PermissionDeniedError{cn.Name}
	}
	if err := op.RunBeforeHooks(ctx, ec); err != nil {
		return nil, err
	}
	args := make([]any, 0, len(cn.Args))
	for _, arg := range cn.Args {
		// Argument evaluation must never print to the user.
		v, err := ev.expr(ctx, ec, arg, nil, false)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	ret, err := op.Invoke(ctx, ec, piped, args, display)
	if err != nil {
		return nil, err
	}
	if err := op.RunAfterHooks(ctx, ec); err != nil {
		return nil, err
	}
	return ret, nil
}

func (ev *Evaler) fileRef(ctx context.Context, ec *Context, fn *parse.FileRef, display bool) (any, error) {
	text, err := ReadAttachment(ctx, ec, fn.Name)
	if err != nil {
		return nil, err
	}
	if display {
		if err := ec.Output.SendBlock(ctx, text, ""); err != nil {
			return nil, err
		}
	}
	return text, nil
}

// ReadAttachment finds the most recent attachment called name within the
// scan window and returns its content, with undecodable bytes replaced.
func ReadAttachment(ctx context.Context, ec *Context, name string) (string, error) {
	atts, err := ec.Attachments.RecentAttachments(ctx, attachmentScanWindow)
	if err != nil {
		return "", err
	}
	for _, att := range atts {
		if att.Name != name {
			continue
		}
		content, err := att.Read(ctx)
		if err != nil {
			return "", err
		}
		return strings.ToValidUTF8(string(content), "�"), nil
	}
	return "", &FileNotFoundError{name}
}
