package eval

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kmolski/acmebot/pkg/parse"
)

// Test doubles for the transport-supplied capabilities.

type fakeOutput struct {
	texts  []string
	blocks []string
}

func (o *fakeOutput) Send(_ context.Context, text string) error {
	o.texts = append(o.texts, text)
	return nil
}

func (o *fakeOutput) SendBlock(_ context.Context, text, _ string) error {
	o.blocks = append(o.blocks, text)
	return nil
}

func (o *fakeOutput) emissions() int { return len(o.texts) + len(o.blocks) }

type fakeAttachments struct {
	atts      []Attachment
	lastLimit int
}

func (a *fakeAttachments) RecentAttachments(_ context.Context, limit int) ([]Attachment, error) {
	a.lastLimit = limit
	return a.atts, nil
}

func bytesAttachment(name string, content []byte) Attachment {
	return Attachment{Name: name, Read: func(context.Context) ([]byte, error) {
		return content, nil
	}}
}

type fakeResolver map[string]Operation

func (r fakeResolver) Resolve(name string) (Operation, bool) {
	op, ok := r[name]
	return op, ok
}

type call struct {
	piped   any
	args    []any
	display bool
}

type fakeOp struct {
	result    any
	err       error
	check     func(*Context) bool
	beforeErr error
	afterErr  error

	calls      []call
	beforeRuns int
	afterRuns  int
	sendOnShow string
}

func (op *fakeOp) CheckPermission(ec *Context) bool {
	if op.check == nil {
		return true
	}
	return op.check(ec)
}

func (op *fakeOp) RunBeforeHooks(context.Context, *Context) error {
	op.beforeRuns++
	return op.beforeErr
}

func (op *fakeOp) RunAfterHooks(context.Context, *Context) error {
	op.afterRuns++
	return op.afterErr
}

func (op *fakeOp) Invoke(ctx context.Context, ec *Context, piped any, args []any, display bool) (any, error) {
	op.calls = append(op.calls, call{piped, args, display})
	if display && op.sendOnShow != "" {
		if err := ec.Output.Send(ctx, op.sendOnShow); err != nil {
			return nil, err
		}
	}
	if op.err != nil {
		return nil, op.err
	}
	if op.result != nil {
		return op.result, nil
	}
	return piped, nil
}

func setup(r fakeResolver, atts ...Attachment) (*Evaler, *Context, *fakeOutput, *fakeAttachments) {
	out := &fakeOutput{}
	att := &fakeAttachments{atts: atts}
	ev := New(r, zerolog.Nop())
	ec := &Context{Caller: "tester", Output: out, Attachments: att}
	return ev, ec, out, att
}

func mustParse(t *testing.T, code string) parse.Tree {
	t.Helper()
	tree, err := parse.Parse(parse.Source{Name: "test", Code: code})
	if err != nil {
		t.Fatalf("Parse(%q): %v", code, err)
	}
	return tree
}

func TestSequence_ConcatenatesResults(t *testing.T) {
	ev, ec, _, _ := setup(nil)
	seq := &parse.Sequence{Pipelines: []*parse.Pipeline{
		{Stages: []parse.Expr{&parse.IntLiteral{Value: 1}}},
		{Stages: []parse.Expr{&parse.BoolLiteral{Value: false}}},
	}}
	got, err := ev.sequence(context.Background(), ec, seq, true)
	if err != nil {
		t.Fatal(err)
	}
	if got != "1False" {
		t.Errorf("sequence evaluates to %q, want %q", got, "1False")
	}
}

func TestSequence_SkipsNilResults(t *testing.T) {
	quiet := &fakeOp{}
	ev, ec, _, _ := setup(fakeResolver{"quiet": quiet, "answer": &fakeOp{result: "ok"}})
	got, err := ev.Eval(context.Background(), mustParse(t, "quiet && answer"), ec, false)
	if err != nil {
		t.Fatal(err)
	}
	if got != "ok" {
		t.Errorf("sequence evaluates to %q, want %q", got, "ok")
	}
}

func TestPipeline_ReturnsLastStage(t *testing.T) {
	ev, ec, _, _ := setup(nil)
	pl := &parse.Pipeline{Stages: []parse.Expr{
		&parse.IntLiteral{Value: 1},
		&parse.StrLiteral{Value: "hello"},
	}}
	got, err := ev.pipeline(context.Background(), ec, pl, false)
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Errorf("pipeline evaluates to %v, want %q", got, "hello")
	}
}

func TestPipeline_DeliversPipedInput(t *testing.T) {
	op := &fakeOp{result: "done"}
	ev, ec, _, _ := setup(fakeResolver{"take": op})
	if _, err := ev.Eval(context.Background(), mustParse(t, "1 | take"), ec, false); err != nil {
		t.Fatal(err)
	}
	if len(op.calls) != 1 {
		t.Fatalf("operation invoked %d times, want 1", len(op.calls))
	}
	if got := op.calls[0].piped; got != 1 {
		t.Errorf("operation got piped input %v, want 1", got)
	}
}

func TestPipeline_FirstStageGetsNoPipedInput(t *testing.T) {
	op := &fakeOp{result: "x"}
	ev, ec, _, _ := setup(fakeResolver{"go": op})
	if _, err := ev.Eval(context.Background(), mustParse(t, "go"), ec, false); err != nil {
		t.Fatal(err)
	}
	if got := op.calls[0].piped; got != nil {
		t.Errorf("operation got piped input %v, want nil", got)
	}
}

func TestCommandNotFound_PropagatesThroughPipes(t *testing.T) {
	ev, ec, _, _ := setup(fakeResolver{})
	_, err := ev.Eval(context.Background(), mustParse(t, "1 | echo"), ec, true)
	var notFound *CommandNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Eval returns %v, want CommandNotFoundError", err)
	}
	if notFound.Name != "echo" {
		t.Errorf("error names command %q, want %q", notFound.Name, "echo")
	}
}

func TestDisplay_OnlyLastPipelineStageEmits(t *testing.T) {
	first := &fakeOp{result: "a", sendOnShow: "first"}
	last := &fakeOp{result: "b", sendOnShow: "last"}
	ev, ec, out, _ := setup(fakeResolver{"first": first, "last": last})
	if _, err := ev.Eval(context.Background(), mustParse(t, "first | last"), ec, true); err != nil {
		t.Fatal(err)
	}
	if out.emissions() != 1 {
		t.Fatalf("pipeline produced %d emissions, want 1", out.emissions())
	}
	if out.texts[0] != "last" {
		t.Errorf("emission came from %q, want %q", out.texts[0], "last")
	}
	if first.calls[0].display {
		t.Error("first stage was invoked with display=true")
	}
	if !last.calls[0].display {
		t.Error("last stage was invoked with display=false")
	}
}

func TestDisplay_LiteralLeadingStageIsSuppressed(t *testing.T) {
	op := &fakeOp{result: "out"}
	ev, ec, out, _ := setup(fakeResolver{"take": op})
	if _, err := ev.Eval(context.Background(), mustParse(t, `"hello" | take`), ec, true); err != nil {
		t.Fatal(err)
	}
	if out.emissions() != 0 {
		t.Errorf("leading literal produced %d emissions, want 0", out.emissions())
	}
}

func TestDisplay_StringLiteralEchoesAsBlock(t *testing.T) {
	ev, ec, out, _ := setup(nil)
	got, err := ev.Eval(context.Background(), mustParse(t, `"hello"`), ec, true)
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Errorf("Eval returns %q, want %q", got, "hello")
	}
	if len(out.blocks) != 1 || out.blocks[0] != "hello" {
		t.Errorf("literal echoed %v, want one block %q", out.blocks, "hello")
	}
}

func TestDisplay_IntAndBoolLiteralsNeverEcho(t *testing.T) {
	ev, ec, out, _ := setup(nil)
	got, err := ev.Eval(context.Background(), mustParse(t, "1 && 1a"), ec, true)
	if err != nil {
		t.Fatal(err)
	}
	// "1a" is a plain string; only genuine int/bool literals stay quiet.
	if len(out.blocks) != 1 {
		t.Fatalf("got %d block emissions, want 1 (the string literal)", len(out.blocks))
	}
	if got != "11a" {
		t.Errorf("Eval returns %q, want %q", got, "11a")
	}
}

func TestArguments_EvaluateWithoutDisplay(t *testing.T) {
	op := &fakeOp{result: "r"}
	ev, ec, out, _ := setup(fakeResolver{"use": op},
		bytesAttachment("a.txt", []byte("content")))
	if _, err := ev.Eval(context.Background(), mustParse(t, `use "x" [a.txt]`), ec, true); err != nil {
		t.Fatal(err)
	}
	if out.emissions() != 0 {
		t.Errorf("argument evaluation produced %d emissions, want 0", out.emissions())
	}
	want := []any{"x", "content"}
	got := op.calls[0].args
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("operation got args %v, want %v", got, want)
	}
	if !op.calls[0].display {
		t.Error("operation itself was invoked with display=false")
	}
}

func TestFileRef_ResolvesFirstMatch(t *testing.T) {
	ev, ec, out, att := setup(nil,
		bytesAttachment("b.txt", []byte("newer")),
		bytesAttachment("a.txt", []byte("first\xffmatch")),
		bytesAttachment("a.txt", []byte("older")))
	got, err := ev.Eval(context.Background(), mustParse(t, "[a.txt]"), ec, true)
	if err != nil {
		t.Fatal(err)
	}
	// Undecodable bytes are replaced, not rejected.
	if got != "first�match" {
		t.Errorf("file reference evaluates to %q, want %q", got, "first�match")
	}
	if len(out.blocks) != 1 {
		t.Errorf("file reference produced %d block emissions, want 1", len(out.blocks))
	}
	if att.lastLimit != attachmentScanWindow {
		t.Errorf("scanned window of %d messages, want %d", att.lastLimit, attachmentScanWindow)
	}
}

func TestFileRef_NotFoundInWindow(t *testing.T) {
	ev, ec, _, _ := setup(nil, bytesAttachment("other.txt", []byte("x")))
	_, err := ev.Eval(context.Background(), mustParse(t, "[a.txt]"), ec, false)
	var notFound *FileNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Eval returns %v, want FileNotFoundError", err)
	}
}

func TestPermissionDenied(t *testing.T) {
	op := &fakeOp{check: func(*Context) bool { return false }}
	ev, ec, _, _ := setup(fakeResolver{"admin": op})
	_, err := ev.Eval(context.Background(), mustParse(t, "admin"), ec, false)
	var denied *PermissionDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("Eval returns %v, want PermissionDeniedError", err)
	}
	if len(op.calls) != 0 {
		t.Error("operation was invoked despite failing permission check")
	}
}

func TestHooks_RunAroundInvocation(t *testing.T) {
	op := &fakeOp{result: "x"}
	ev, ec, _, _ := setup(fakeResolver{"go": op})
	if _, err := ev.Eval(context.Background(), mustParse(t, "go"), ec, false); err != nil {
		t.Fatal(err)
	}
	if op.beforeRuns != 1 || op.afterRuns != 1 {
		t.Errorf("hooks ran %d/%d times, want 1/1", op.beforeRuns, op.afterRuns)
	}
}

func TestHooks_BeforeErrorSkipsInvocation(t *testing.T) {
	hookErr := errors.New("hook failed")
	op := &fakeOp{beforeErr: hookErr}
	ev, ec, _, _ := setup(fakeResolver{"go": op})
	_, err := ev.Eval(context.Background(), mustParse(t, "go"), ec, false)
	if !errors.Is(err, hookErr) {
		t.Fatalf("Eval returns %v, want the hook error", err)
	}
	if len(op.calls) != 0 {
		t.Error("operation was invoked despite before-hook failure")
	}
}

func TestErrors_AbortWholeSequence(t *testing.T) {
	opErr := Errorf("boom")
	failing := &fakeOp{err: opErr}
	after := &fakeOp{result: "never"}
	ev, ec, _, _ := setup(fakeResolver{"fail": failing, "later": after})
	_, err := ev.Eval(context.Background(), mustParse(t, "fail && later"), ec, false)
	if !errors.Is(err, opErr) {
		t.Fatalf("Eval returns %v, want the operation error unchanged", err)
	}
	if len(after.calls) != 0 {
		t.Error("a later pipeline ran after an earlier one failed")
	}
}

func TestErrorAttribution_SavesFailingCommand(t *testing.T) {
	failing := &fakeOp{err: Errorf("boom")}
	outer := &fakeOp{result: "x"}
	ev, ec, _, _ := setup(fakeResolver{"inner": failing, "outer": outer})
	_, err := ev.Eval(context.Background(), mustParse(t, "outer (inner)"), ec, false)
	if err == nil {
		t.Fatal("Eval returns no error")
	}
	if ec.Command == nil || ec.Command.Name != "inner" {
		t.Errorf("context attributes failure to %v, want the inner command", ec.Command)
	}
}

func TestLiterals_ReEvaluationIsIdempotent(t *testing.T) {
	ev, ec, out, _ := setup(nil)
	lit := &parse.IntLiteral{Value: 7}
	for i := 0; i < 3; i++ {
		got, err := ev.expr(context.Background(), ec, lit, nil, true)
		if err != nil {
			t.Fatal(err)
		}
		if got != 7 {
			t.Errorf("literal evaluates to %v, want 7", got)
		}
	}
	if out.emissions() != 0 {
		t.Errorf("int literal caused %d emissions, want 0", out.emissions())
	}
}

func TestSubstitution_HonorsAmbientDisplay(t *testing.T) {
	ev, ec, out, _ := setup(nil)
	got, err := ev.Eval(context.Background(), mustParse(t, `("a" && "b")`), ec, true)
	if err != nil {
		t.Fatal(err)
	}
	if got != "ab" {
		t.Errorf("Eval returns %q, want %q", got, "ab")
	}
	// Each nested pipeline's final stage displays; sequencing suppresses
	// nothing.
	if len(out.blocks) != 2 {
		t.Errorf("substitution produced %d block emissions, want 2", len(out.blocks))
	}
}

func TestCancellation_StopsEvaluation(t *testing.T) {
	op := &fakeOp{result: "x"}
	ev, ec, _, _ := setup(fakeResolver{"go": op})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ev.Eval(ctx, mustParse(t, "go"), ec, false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Eval returns %v, want context.Canceled", err)
	}
	if len(op.calls) != 0 {
		t.Error("operation was invoked after cancellation")
	}
}

func TestIsUserError(t *testing.T) {
	_, parseErr := parse.Parse(parse.Source{Name: "test", Code: "echo ("})
	for _, err := range []error{
		&CommandNotFoundError{"x"},
		&PermissionDeniedError{"x"},
		&FileNotFoundError{"x"},
		Errorf("expected failure"),
		parseErr,
	} {
		if !IsUserError(err) {
			t.Errorf("IsUserError(%v) = false, want true", err)
		}
	}
	if IsUserError(errors.New("internal")) {
		t.Error("IsUserError(internal error) = true, want false")
	}
}
