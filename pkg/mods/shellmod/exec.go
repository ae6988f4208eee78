package shellmod

import (
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/kmolski/acmebot/pkg/eval"
)

// validateOptions checks each argument against the provided regexp. Any
// argument that does not match fully is rejected, so user-supplied options
// cannot smuggle arbitrary flags into the child process.
func validateOptions(args []string, re *regexp.Regexp) error {
	for _, arg := range args {
		if m := re.FindString(arg); m != arg {
			return eval.Errorf("argument `%s` is not allowed", arg)
		}
	}
	return nil
}

// trimDoubleNewline trims a doubled newline at the end of the string, such
// that "abc\n\n" becomes "abc\n" but "abc\n" stays as is.
func trimDoubleNewline(s string) string {
	if strings.HasSuffix(s, "\n\n") {
		return s[:len(s)-1]
	}
	return s
}

// executeSystemCmd runs a system command with the given standard input and
// returns its standard output. The child gets its own process group, and
// cancellation kills the whole group so helpers spawned by the command do
// not linger.
func executeSystemCmd(ctx context.Context, logger zerolog.Logger, name, stdin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.Stdin = strings.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.Warn().Str("command", name).Err(err).Msg("system command failed")
		msg := stderr.String()
		if msg == "" {
			msg = stdout.String()
		}
		// A non-zero exit with no output is not an error for the user;
		// grep exits 1 when nothing matches.
		if msg != "" {
			return "", eval.Errorf("%s", strings.ToValidUTF8(msg, "�"))
		}
	}
	return strings.ToValidUTF8(stdout.String(), "�"), nil
}
