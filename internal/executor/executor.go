// Package executor runs the shell sub-commands that populate dynamic enum
// options. It never runs a finalized workflow command.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"syscall"
	"time"

	"mvdan.cc/sh/v3/syntax"
)

const (
	// DefaultTimeout bounds a sub-command when no timeout is configured.
	DefaultTimeout = 30 * time.Second
	// WaitDelay is how long Run waits for output pipes after the process
	// group has been killed.
	WaitDelay = 2 * time.Second
)

// ErrTimeout is returned when a sub-command exceeds its timeout. The
// process group has been killed by the time Run returns.
var ErrTimeout = errors.New("sub-command timed out")

// Output is what a finished sub-command produced.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner runs a shell command string. A non-zero exit is reported through
// Output.ExitCode, not as an error; errors mean the command could not be
// run to completion (spawn failure, timeout, cancellation, bad syntax).
type Runner interface {
	Run(ctx context.Context, command string) (Output, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, command string) (Output, error)

func (f RunnerFunc) Run(ctx context.Context, command string) (Output, error) {
	return f(ctx, command)
}

// SyntaxError is a sub-command that the shell parser rejects.
type SyntaxError struct {
	Command string
	Err     error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid shell syntax in %q: %v", e.Command, e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// Shell runs commands with "<shell> -c".
type Shell struct {
	shell   string
	timeout time.Duration
	workDir string
}

// Option configures a Shell.
type Option func(*Shell)

// WithShell overrides the detected shell.
func WithShell(shell string) Option {
	return func(s *Shell) {
		if shell != "" {
			s.shell = shell
		}
	}
}

// WithTimeout sets the per-command timeout. Non-positive values keep the
// default.
func WithTimeout(d time.Duration) Option {
	return func(s *Shell) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithWorkDir sets the directory commands run in.
func WithWorkDir(dir string) Option {
	return func(s *Shell) {
		s.workDir = dir
	}
}

// New creates a Shell runner.
func New(opts ...Option) *Shell {
	s := &Shell{
		shell:   detectShell(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ShellPath returns the shell commands run under.
func (s *Shell) ShellPath() string { return s.shell }

// Timeout returns the per-command timeout.
func (s *Shell) Timeout() time.Duration { return s.timeout }

func detectShell() string {
	if s := os.Getenv("SHELL"); s != "" {
		// fish and nushell do not accept POSIX -c scripts
		if !strings.HasSuffix(s, "/fish") && !strings.HasSuffix(s, "/nu") {
			return s
		}
	}

	if runtime.GOOS == "darwin" {
		return "/bin/zsh"
	}
	if runtime.GOOS == "windows" {
		if comspec := os.Getenv("COMSPEC"); comspec != "" {
			return comspec
		}
		return "cmd.exe"
	}

	if bash, err := exec.LookPath("bash"); err == nil {
		return bash
	}
	return "/bin/sh"
}

// Run executes command and captures its output separately.
func (s *Shell) Run(ctx context.Context, command string) (Output, error) {
	if err := Check(s.shell, command); err != nil {
		return Output{ExitCode: -1}, err
	}

	cmdCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(cmdCtx, s.shell, "/c", command)
	} else {
		cmd = exec.CommandContext(cmdCtx, s.shell, "-c", command)
		// Own process group so a timeout also kills pipeline children.
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		cmd.Cancel = func() error {
			return killProcessGroup(cmd)
		}
	}
	cmd.WaitDelay = WaitDelay
	cmd.Dir = s.workDir
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	out := Output{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: -1,
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case errors.Is(cmdCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return out, fmt.Errorf("%w after %v", ErrTimeout, s.timeout)
	case ctx.Err() != nil:
		return out, ctx.Err()
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return out, fmt.Errorf("failed to start %s: %w", s.shell, err)
	}
	return out, nil
}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}

// Check parses command with the grammar of the named shell without
// running it. Shells the parser has no grammar for (zsh, cmd.exe, ...) are
// not checked.
func Check(shell, command string) error {
	lang, ok := variantFor(shell)
	if !ok {
		return nil
	}
	parser := syntax.NewParser(
		syntax.Variant(lang),
		syntax.KeepComments(false),
	)
	if _, err := parser.Parse(strings.NewReader(command), ""); err != nil {
		return &SyntaxError{Command: command, Err: err}
	}
	return nil
}

func variantFor(shell string) (syntax.LangVariant, bool) {
	// Windows paths are split by hand so they resolve on any host.
	name := strings.ToLower(shell[strings.LastIndexAny(shell, `/\`)+1:])
	name = strings.TrimSuffix(name, ".exe")
	switch name {
	case "bash":
		return syntax.LangBash, true
	case "sh", "dash", "ash":
		return syntax.LangPOSIX, true
	case "mksh":
		return syntax.LangMirBSDKorn, true
	}
	return 0, false
}

// Quote returns value quoted as a single shell word, so it can be spliced
// into a command without being re-split or expanded.
func Quote(value string) (string, error) {
	return syntax.Quote(value, syntax.LangBash)
}
