// Package shellmod provides the shell utility commands: text filters in the
// spirit of their POSIX namesakes, file transfer, and a couple of
// diagnostics.
package shellmod

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kmolski/acmebot/pkg/command"
	"github.com/kmolski/acmebot/pkg/eval"
	"github.com/kmolski/acmebot/pkg/eval/vals"
)

// grepArgs matches the grep options users are allowed to pass through.
var grepArgs = regexp.MustCompile(`-[0-9ABCEFGiovwx]+`)

// Uploader is implemented by transports that can attach a file to a
// message. The to-file command requires it.
type Uploader interface {
	SendFile(ctx context.Context, message, name string, content []byte) error
}

// Module holds the shell utility commands.
type Module struct {
	logger zerolog.Logger

	// Ping measures the round-trip latency to the chat service. The ping
	// command reports an error when the transport does not provide it.
	Ping func(ctx context.Context) (time.Duration, error)
}

// New returns a shell utility module.
func New(logger zerolog.Logger) *Module {
	return &Module{logger: logger}
}

// Register adds the module's commands to the registry.
func (m *Module) Register(r *command.Registry) {
	r.AddFn("concat", m.concat, command.Aliases("conc", "cat"),
		command.Help("Concatenate all argument strings."))
	r.AddFn("ping", m.ping,
		command.Help("Measure latency between the bot and the chat servers."))
	r.AddFn("print", m.print, command.Aliases("prin"),
		command.Help("Pretty print the input string with the given syntax highlighting."))
	r.AddFn("to-file", m.toFile, command.Aliases("tfil", "tee"),
		command.Help("Redirect the input string to a file with the given name."))
	r.AddFn("open", m.open,
		command.Help("Read the contents of a file with the given name."))
	r.AddFn("grep", m.grep,
		command.Help("Select lines of the input string that match the given patterns."))
	r.AddFn("units", m.units, command.Aliases("unit"),
		command.Help("Convert between measurement units."))
	r.AddFn("head", m.head,
		command.Help("Show the initial lines of the input string."))
	r.AddFn("tail", m.tail,
		command.Help("Show the final lines of the input string."))
	r.AddFn("lines", m.lines, command.Aliases("line"),
		command.Help("Show the given line range of the input string."))
	r.AddFn("count", m.count, command.Aliases("coun", "wc"),
		command.Help("Count lines in the input string."))
	r.AddFn("enumerate", m.enumerate, command.Aliases("enum", "nl"),
		command.Help("Number lines of the input string."))
	r.AddFn("sort", m.sortLines,
		command.Help("Sort lines of the input string alphabetically."))
	r.AddFn("unique", m.unique, command.Aliases("uniq"),
		command.Help("Remove adjacent matching lines from the input string."))
	r.AddFn("shuffle", m.shuffle, command.Aliases("shuf"),
		command.Help("Randomly shuffle lines of the input string."))
}

// display sends output as a code block when the frame asks for it.
func display(ctx context.Context, fm *command.Frame, text string) error {
	if !fm.Display {
		return nil
	}
	return fm.Output.SendBlock(ctx, text, "")
}

func (m *Module) concat(ctx context.Context, fm *command.Frame, args ...string) (string, error) {
	content := strings.Join(args, "")
	return content, display(ctx, fm, content)
}

func (m *Module) ping(ctx context.Context, fm *command.Frame) (string, error) {
	if m.Ping == nil {
		return "", eval.Errorf("ping is not available on this transport")
	}
	latency, err := m.Ping(ctx)
	if err != nil {
		return "", err
	}
	millis := fmt.Sprint(latency.Milliseconds())
	if fm.Display {
		msg := fmt.Sprintf("\U0001F4A8 Meep meep! **%s ms**.", millis)
		if err := fm.Output.Send(ctx, msg); err != nil {
			return "", err
		}
	}
	return millis, nil
}

func (m *Module) print(ctx context.Context, fm *command.Frame, content string, format ...string) (string, error) {
	if len(format) > 1 {
		return "", eval.Errorf("command `print` takes at most 2 argument(s), got %d", 1+len(format))
	}
	lang := ""
	if len(format) == 1 {
		lang = format[0]
	}
	if fm.Display {
		if err := fm.Output.SendBlock(ctx, content, lang); err != nil {
			return "", err
		}
	}
	return content, nil
}

func (m *Module) toFile(ctx context.Context, fm *command.Frame, content, fileName string) (string, error) {
	up, ok := fm.Output.(Uploader)
	if !ok {
		return "", eval.Errorf("file transfer is not available on this transport")
	}
	// Prefix with the caller's name so files from different users do not
	// shadow each other.
	fileName = fmt.Sprintf("%s_%s", vals.ToString(fm.Caller), fileName)
	msg := fmt.Sprintf("\U0001F4BE Created file **%s**.", fileName)
	if err := up.SendFile(ctx, msg, fileName, []byte(content)); err != nil {
		return "", err
	}
	return content, nil
}

func (m *Module) open(ctx context.Context, fm *command.Frame, fileName string) (string, error) {
	content, err := eval.ReadAttachment(ctx, fm.Context, fileName)
	if err != nil {
		return "", err
	}
	return content, display(ctx, fm, content)
}

func (m *Module) grep(ctx context.Context, fm *command.Frame, data, patterns string, opts ...string) (string, error) {
	if err := validateOptions(opts, grepArgs); err != nil {
		return "", err
	}
	// Drop empty lines that would turn into match-everything patterns.
	var kept []string
	for _, p := range strings.Split(patterns, "\n") {
		if p != "" {
			kept = append(kept, p)
		}
	}
	args := append([]string{"--color=never", "-e", strings.Join(kept, "\n")}, opts...)
	args = append(args, "--", "-")
	out, err := executeSystemCmd(ctx, m.logger, "grep", data, args...)
	if err != nil {
		return "", err
	}
	out = trimDoubleNewline(out)
	return out, display(ctx, fm, out)
}

func (m *Module) units(ctx context.Context, fm *command.Frame, fromUnit, toUnit string) (string, error) {
	out, err := executeSystemCmd(ctx, m.logger, "units", "", "--terse", "--", fromUnit, toUnit)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if fm.Display {
		msg := fmt.Sprintf("\U0001F9EE %s = %s %s.", fromUnit, out, toUnit)
		if err := fm.Output.Send(ctx, msg); err != nil {
			return "", err
		}
	}
	return out, nil
}

func (m *Module) head(ctx context.Context, fm *command.Frame, data string, lineCount ...int) (string, error) {
	n, err := optionalLineCount(lineCount)
	if err != nil {
		return "", err
	}
	lines := splitLines(data)
	if n < len(lines) {
		lines = lines[:n]
	}
	out := strings.Join(lines, "\n")
	return out, display(ctx, fm, out)
}

func (m *Module) tail(ctx context.Context, fm *command.Frame, data string, lineCount ...int) (string, error) {
	n, err := optionalLineCount(lineCount)
	if err != nil {
		return "", err
	}
	lines := splitLines(data)
	if n < len(lines) {
		lines = lines[len(lines)-n:]
	}
	out := strings.Join(lines, "\n")
	return out, display(ctx, fm, out)
}

func (m *Module) lines(ctx context.Context, fm *command.Frame, data string, start, end int) (string, error) {
	if start <= 0 {
		return "", eval.Errorf("argument `start` must be positive")
	}
	if start > end {
		return "", eval.Errorf("argument `start` must not be greater than `end`")
	}
	lines := splitLines(data)
	if start > len(lines) {
		lines = nil
	} else {
		if end > len(lines) {
			end = len(lines)
		}
		lines = lines[start-1 : end]
	}
	out := strings.Join(lines, "\n")
	return out, display(ctx, fm, out)
}

func (m *Module) count(ctx context.Context, fm *command.Frame, data string) (int, error) {
	n := len(splitLines(data))
	if fm.Display {
		if err := fm.Output.SendBlock(ctx, fmt.Sprint(n), ""); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (m *Module) enumerate(ctx context.Context, fm *command.Frame, data string) (string, error) {
	lines := splitLines(data)
	width := len(fmt.Sprint(len(lines)))
	for i, line := range lines {
		lines[i] = fmt.Sprintf("%*d  %s", width, i+1, line)
	}
	out := strings.Join(lines, "\n")
	return out, display(ctx, fm, out)
}

func (m *Module) sortLines(ctx context.Context, fm *command.Frame, data string) (string, error) {
	lines := splitLines(data)
	sort.Strings(lines)
	out := strings.Join(lines, "\n")
	return out, display(ctx, fm, out)
}

func (m *Module) unique(ctx context.Context, fm *command.Frame, data string) (string, error) {
	var lines []string
	for _, line := range splitLines(data) {
		if len(lines) == 0 || lines[len(lines)-1] != line {
			lines = append(lines, line)
		}
	}
	out := strings.Join(lines, "\n")
	return out, display(ctx, fm, out)
}

func (m *Module) shuffle(ctx context.Context, fm *command.Frame, data string) (string, error) {
	lines := splitLines(data)
	rand.Shuffle(len(lines), func(i, j int) {
		lines[i], lines[j] = lines[j], lines[i]
	})
	out := strings.Join(lines, "\n")
	return out, display(ctx, fm, out)
}

func optionalLineCount(lineCount []int) (int, error) {
	if len(lineCount) > 1 {
		return 0, eval.Errorf("too many arguments")
	}
	n := 10
	if len(lineCount) == 1 {
		n = lineCount[0]
	}
	if n <= 0 {
		return 0, eval.Errorf("argument `line_count` must be positive")
	}
	return n, nil
}

// splitLines splits on newlines without producing a trailing empty line,
// like splitting lines of text ending in a final newline should.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
