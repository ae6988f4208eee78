package parse

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Shorthands for building expected trees.

func sq(pipelines ...*Pipeline) *Sequence { return &Sequence{Pipelines: pipelines} }

func pipe(stages ...Expr) *Pipeline { return &Pipeline{Stages: stages} }

func cmd(name string, args ...Expr) *Command { return &Command{Name: name, Args: args} }

func str(v string) *StrLiteral { return &StrLiteral{Value: v} }

func num(v int) *IntLiteral { return &IntLiteral{Value: v} }

func boolean(v bool) *BoolLiteral { return &BoolLiteral{Value: v} }

func file(name string) *FileRef { return &FileRef{Name: name} }

func subst(s *Sequence) *Substitution { return &Substitution{Body: s} }

// single wraps a command into the one-pipeline sequence it parses to.
func single(c *Command) *Sequence { return sq(pipe(c)) }

var structure = cmpopts.IgnoreUnexported(
	Sequence{}, Pipeline{}, Command{}, StrLiteral{}, IntLiteral{},
	BoolLiteral{}, FileRef{}, Substitution{})

var parseTests = []struct {
	name string
	code string
	want *Sequence

	wantErrMsg string
}{
	{
		name: "simple command",
		code: "echo hello world",
		want: single(cmd("echo", str("hello"), str("world"))),
	},
	{
		name: "nested composition",
		code: "echo 1 no (open bar.txt) [foo.txt]",
		want: single(cmd("echo",
			num(1),
			boolean(false),
			subst(single(cmd("open", str("bar.txt")))),
			file("foo.txt"))),
	},
	{
		name: "no arguments",
		code: "ping",
		want: single(cmd("ping")),
	},
	{
		name: "pipeline",
		code: "open f.txt | grep -i foo | head 3",
		want: sq(pipe(
			cmd("open", str("f.txt")),
			cmd("grep", str("-i"), str("foo")),
			cmd("head", num(3)))),
	},
	{
		name: "literal as leading pipeline stage",
		code: "1 | echo",
		want: sq(pipe(num(1), cmd("echo"))),
	},
	{
		name: "quoted string as leading pipeline stage",
		code: `"a b" | count`,
		want: sq(pipe(str("a b"), cmd("count"))),
	},
	{
		name: "sequencing",
		code: "concat a && concat b && ping",
		want: sq(
			pipe(cmd("concat", str("a"))),
			pipe(cmd("concat", str("b"))),
			pipe(cmd("ping"))),
	},
	{
		name: "double-quoted string with escapes",
		code: `print "say \"hi\" \\ now"`,
		want: single(cmd("print", str(`say "hi" \ now`))),
	},
	{
		name: "single-quoted string",
		code: `print 'hello world'`,
		want: single(cmd("print", str("hello world"))),
	},
	{
		name: "code block",
		code: "count ```\nfoo\nbar\n```",
		want: single(cmd("count", str("foo\nbar\n"))),
	},
	{
		name: "code block with language tag",
		code: "count ```go\npackage main\n```",
		want: single(cmd("count", str("package main\n"))),
	},
	{
		name: "boolean spellings are case-insensitive",
		code: "loop ON",
		want: single(cmd("loop", boolean(true))),
	},
	{
		name: "non-truthy boolean spellings are false",
		code: "loop disable",
		want: single(cmd("loop", boolean(false))),
	},
	{
		name: "digits with a word tail stay a string",
		code: "echo 1a",
		want: single(cmd("echo", str("1a"))),
	},
	{
		name: "command name shapes win over literals in leading position",
		code: "yes",
		want: single(cmd("yes")),
	},
	{
		name: "substitution containing a full sequence",
		code: "echo (concat a && concat b)",
		want: single(cmd("echo", subst(sq(
			pipe(cmd("concat", str("a"))),
			pipe(cmd("concat", str("b"))))))),
	},
	{
		name: "surrounding whitespace is ignored",
		code: "  echo hi \n",
		want: single(cmd("echo", str("hi"))),
	},

	// Parse errors
	{name: "empty input", code: "", wantErrMsg: "should be command or expression"},
	{name: "blank input", code: "  \t ", wantErrMsg: "should be command or expression"},
	{name: "nothing after pipe", code: "echo a |", wantErrMsg: "should be command"},
	{name: "literal after pipe", code: "echo | 1", wantErrMsg: "should be command"},
	{name: "nothing after sequence operator", code: "echo a &&", wantErrMsg: "should be command or expression"},
	{name: "single ampersand", code: "echo a & echo b", wantErrMsg: "should be '&&'"},
	{name: "unterminated string", code: `echo "foo`, wantErrMsg: "string not terminated"},
	{name: "unterminated code block", code: "echo ```foo", wantErrMsg: "code block not terminated"},
	{name: "unterminated substitution", code: "echo (open a.txt", wantErrMsg: "should be ')'"},
	{name: "unterminated file reference", code: "echo [foo.txt", wantErrMsg: "should be ']'"},
	{name: "empty file reference", code: "echo []", wantErrMsg: "should be file name"},
	{name: "leading pipe", code: "| echo", wantErrMsg: "should be command or expression"},
	{name: "stray closing bracket", code: "echo a ]", wantErrMsg: `unexpected rune ']'`},
	{name: "integer out of range", code: "echo 99999999999999999999", wantErrMsg: "integer out of range"},
}

func TestParse(t *testing.T) {
	for _, test := range parseTests {
		t.Run(test.name, func(t *testing.T) {
			tree, err := Parse(Source{Name: "[tty]", Code: test.code})
			if test.wantErrMsg != "" {
				if err == nil {
					t.Fatalf("Parse(%q) returns no error, want %q", test.code, test.wantErrMsg)
				}
				if !strings.Contains(err.Error(), test.wantErrMsg) {
					t.Errorf("Parse(%q) returns error %q, want %q", test.code, err, test.wantErrMsg)
				}
				if UnpackErrors(err) == nil {
					t.Errorf("Parse(%q) error does not unpack to parse errors", test.code)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) returns error %v", test.code, err)
			}
			if diff := cmp.Diff(test.want, tree.Root, structure); diff != "" {
				t.Errorf("Parse(%q) returns unexpected tree (-want +got):\n%s", test.code, diff)
			}
		})
	}
}

func TestParse_TreeShape(t *testing.T) {
	tree, err := Parse(Source{Name: "message", Code: "open a.txt | head 3"})
	if err != nil {
		t.Fatal(err)
	}
	root := tree.Root
	if root.Parent() != nil {
		t.Errorf("root has parent %v, want nil", root.Parent())
	}
	pl := root.Pipelines[0]
	if pl.Parent() != root {
		t.Errorf("pipeline has parent %v, want root", pl.Parent())
	}
	head := pl.Stages[1].(*Command)
	if head.Parent() != pl {
		t.Errorf("stage has parent %v, want pipeline", head.Parent())
	}
	if head.Args[0].Parent() != head {
		t.Errorf("argument has parent %v, want command", head.Args[0].Parent())
	}
	if text := head.SourceText(); text != "head 3" {
		t.Errorf("stage has source text %q, want %q", text, "head 3")
	}
	if rg := head.Args[0].Range(); rg.From != 18 || rg.To != 19 {
		t.Errorf("argument has range %v, want 18-19", rg)
	}
}

func TestParse_HasNoSideEffects(t *testing.T) {
	// Parsing the same source twice produces structurally equal trees.
	src := Source{Name: "message", Code: "echo (concat a | head 1) [f.txt] && ping"}
	first, err := Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first.Root, second.Root, structure); diff != "" {
		t.Errorf("re-parsing produces a different tree (-first +second):\n%s", diff)
	}
}
