package batch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"v.io/x/lib/envvar"
	"v.io/x/lib/lookpath"
)

// Command is a program invocation.
type Command struct {
	// Path is the program. A name without a slash is resolved through PATH.
	Path string
	Args []string
	// Stdin, if nonempty, is written to the program's standard input.
	Stdin string
	// Dir is the working directory. Empty means the current directory.
	Dir string
}

// String returns c as a shell command line, for logs and error reports.
func (c Command) String() string {
	var b strings.Builder
	if c.Stdin != "" {
		b.WriteString("echo ")
		b.WriteString(Quote(c.Stdin))
		b.WriteString(" | ")
	}
	b.WriteString(Quote(c.Path))
	for _, a := range c.Args {
		b.WriteByte(' ')
		b.WriteString(Quote(a))
	}
	return b.String()
}

// Quote quotes s for a POSIX shell if it contains anything but safe
// characters.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:,+@%", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.Replace(s, "'", `'\''`, -1) + "'"
}

// Runner runs commands to completion and returns their combined output.
// A command that cannot be started or exits non-zero yields an error;
// the output is returned in either case.
type Runner interface {
	Run(ctx context.Context, c Command) (string, error)
}

// ToolError reports the failure of an external program.
type ToolError struct {
	Command string
	Output  string
	Err     error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Command, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error { return e.Err }

// LocalRunner runs commands on the local host.
type LocalRunner struct {
	// Env is the environment of the commands. Nil means the environment of
	// the current process.
	Env []string
}

// Run implements Runner.
func (r LocalRunner) Run(ctx context.Context, c Command) (string, error) {
	env := r.Env
	if env == nil {
		env = os.Environ()
	}
	path := c.Path
	if !strings.Contains(path, "/") {
		var err error
		if path, err = lookpath.Look(envvar.SliceToMap(env), c.Path); err != nil {
			return "", &ToolError{Command: c.String(), Err: err}
		}
	}
	cmd := exec.CommandContext(ctx, path, c.Args...)
	cmd.Env = env
	cmd.Dir = c.Dir
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), &ToolError{Command: c.String(), Output: out.String(), Err: err}
	}
	return out.String(), nil
}
