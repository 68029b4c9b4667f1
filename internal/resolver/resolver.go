// Package resolver obtains a value for each argument of a workflow, in
// declaration order, by prompting, accepting defaults or running dynamic
// enum commands.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opencode-ai/wflow/internal/command"
	"github.com/opencode-ai/wflow/internal/executor"
	"github.com/opencode-ai/wflow/internal/prompt"
	"github.com/opencode-ai/wflow/pkg/types"
)

// Observer is told about every step so it can be journaled. An error from
// the observer aborts resolution.
type Observer interface {
	Prompted(ctx context.Context, data types.ArgumentPromptedData) error
	EnumExecuted(ctx context.Context, data types.EnumCommandExecutedData) error
	Resolved(ctx context.Context, data types.ArgumentResolvedData) error
}

// NopObserver ignores every step.
type NopObserver struct{}

func (NopObserver) Prompted(context.Context, types.ArgumentPromptedData) error        { return nil }
func (NopObserver) EnumExecuted(context.Context, types.EnumCommandExecutedData) error { return nil }
func (NopObserver) Resolved(context.Context, types.ArgumentResolvedData) error        { return nil }

// Resolver walks a workflow's arguments.
type Resolver struct {
	prompter prompt.Prompter
	runner   executor.Runner
}

// New creates a resolver asking p and running enum commands with r.
func New(p prompt.Prompter, r executor.Runner) *Resolver {
	return &Resolver{prompter: p, runner: r}
}

// Resolve returns one ResolvedArgument per argument of wf, in order. Fatal
// errors are returned as *StepError together with the arguments resolved
// before the failure.
func (r *Resolver) Resolve(ctx context.Context, wf *types.Workflow, obs Observer) ([]types.ResolvedArgument, error) {
	if obs == nil {
		obs = NopObserver{}
	}

	resolved := make([]types.ResolvedArgument, 0, len(wf.Arguments))
	values := make(map[string]string, len(wf.Arguments))
	for i, arg := range wf.Arguments {
		value, err := r.ResolveArgument(ctx, i, arg, values, obs)
		if err != nil {
			return resolved, &StepError{Index: i, Argument: arg.Name, Err: err}
		}
		resolved = append(resolved, types.ResolvedArgument{Name: arg.Name, Value: value})
		values[arg.Name] = value
	}
	return resolved, nil
}

// ResolveArgument resolves the i-th argument. values holds the arguments
// resolved so far and is only read.
func (r *Resolver) ResolveArgument(ctx context.Context, i int, arg types.Argument, values map[string]string, obs Observer) (string, error) {
	var options []string
	dynamic := arg.IsDynamicEnum()
	switch {
	case arg.Type == types.ArgEnum && len(arg.EnumVariants) > 0:
		options = arg.EnumVariants
	case dynamic:
		var err error
		options, err = r.dynamicOptions(ctx, i, arg, values, obs)
		if err != nil {
			return "", err
		}
	}

	spec := prompt.Spec{
		Label:       arg.Label(),
		Default:     arg.Default,
		Options:     options,
		Kind:        kindOf(arg.Type),
		AllowCustom: dynamic,
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", &CancelledError{Argument: arg.Name, Err: err}
		}

		err := obs.Prompted(ctx, types.ArgumentPromptedData{
			Index:   i,
			Name:    arg.Name,
			Type:    arg.Type,
			Default: arg.Default,
			Options: spec.Choices(),
			Attempt: attempt,
		})
		if err != nil {
			return "", err
		}

		raw, err := r.prompter.Prompt(ctx, spec)
		if err != nil {
			if errors.Is(err, prompt.ErrAborted) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return "", &CancelledError{Argument: arg.Name, Err: err}
			}
			return "", fmt.Errorf("prompt %q: %w", arg.Name, err)
		}

		value, fromDefault, err := Validate(arg, options, dynamic, raw)
		if err != nil {
			if Recoverable(err) {
				spec.Problem = err.Error()
				continue
			}
			return "", err
		}

		err = obs.Resolved(ctx, types.ArgumentResolvedData{
			Index:       i,
			Name:        arg.Name,
			Value:       value,
			FromDefault: fromDefault,
		})
		if err != nil {
			return "", err
		}
		return value, nil
	}
}

func (r *Resolver) dynamicOptions(ctx context.Context, i int, arg types.Argument, values map[string]string, obs Observer) ([]string, error) {
	cmd, err := EnumCommand(arg, values)
	if err != nil {
		return nil, &EnumCommandError{Argument: arg.Name, Command: arg.EnumCommand, ExitCode: -1, Err: err}
	}

	start := time.Now()
	out, runErr := r.runner.Run(ctx, cmd)
	options := ParseOptions(out.Stdout)
	if out.Duration == 0 {
		out.Duration = time.Since(start)
	}

	err = obs.EnumExecuted(ctx, types.EnumCommandExecutedData{
		Index:    i,
		Name:     arg.Name,
		Command:  cmd,
		ExitCode: out.ExitCode,
		Options:  options,
		Stderr:   out.Stderr,
		Duration: out.Duration.Milliseconds(),
	})
	if err != nil {
		return nil, err
	}

	enumErr := &EnumCommandError{Argument: arg.Name, Command: cmd, ExitCode: out.ExitCode, Stderr: out.Stderr}
	switch {
	case runErr != nil && errors.Is(runErr, context.Canceled):
		return nil, &CancelledError{Argument: arg.Name, Err: runErr}
	case runErr != nil:
		enumErr.Err = runErr
		return nil, enumErr
	case out.ExitCode != 0:
		return nil, enumErr
	case len(options) == 0:
		enumErr.Err = ErrNoOptions
		return nil, enumErr
	}
	return options, nil
}

// EnumCommand returns the command that produces options for arg. When arg
// names a dynamic_resolution argument, its value is shell-quoted and bound
// into the command's placeholder.
func EnumCommand(arg types.Argument, values map[string]string) (string, error) {
	ref := arg.DynamicResolution
	if ref == "" {
		return arg.EnumCommand, nil
	}
	value, ok := values[ref]
	if !ok {
		return "", fmt.Errorf("argument %q is not resolved yet", ref)
	}
	quoted, err := executor.Quote(value)
	if err != nil {
		return "", fmt.Errorf("cannot quote value of %q: %w", ref, err)
	}
	return command.Substitute(arg.EnumCommand, ref, quoted), nil
}

// ParseOptions splits command output into options: one per line, trimmed,
// blank lines dropped.
func ParseOptions(stdout string) []string {
	var options []string
	for _, line := range strings.Split(stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			options = append(options, line)
		}
	}
	return options
}

// NormalizeBoolean maps free-form yes/no input to "true" or "false".
func NormalizeBoolean(s string) (string, error) {
	v, ok := types.CanonicalBoolean(s)
	if !ok {
		return "", ErrInvalidBoolean
	}
	return v, nil
}

// Validate checks raw input against arg and returns its canonical form.
// An empty answer, or the default itself, resolves to the default, which
// is held to the same type rules as typed input. allowCustom accepts enum
// values outside options.
func Validate(arg types.Argument, options []string, allowCustom bool, raw string) (value string, fromDefault bool, err error) {
	if arg.Default != nil && (raw == "" || raw == *arg.Default) {
		// Dynamic option lists are not known when a workflow is written.
		custom := allowCustom || arg.IsDynamicEnum()
		v, err := validate(arg, options, custom, *arg.Default)
		if err != nil {
			return "", false, fmt.Errorf("default: %w", err)
		}
		return v, true, nil
	}
	v, err := validate(arg, options, allowCustom, raw)
	return v, false, err
}

func validate(arg types.Argument, options []string, allowCustom bool, raw string) (string, error) {
	switch arg.Type {
	case types.ArgNumber:
		v, ok := types.CanonicalNumber(raw)
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
		}
		return v, nil
	case types.ArgBoolean:
		v, err := NormalizeBoolean(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %q", err, raw)
		}
		return v, nil
	case types.ArgEnum:
		s := strings.TrimSpace(raw)
		for _, opt := range options {
			if opt == s {
				return s, nil
			}
		}
		if allowCustom && s != "" {
			return s, nil
		}
		return "", fmt.Errorf("%w: %q", ErrNotAnOption, raw)
	default:
		return raw, nil
	}
}

func kindOf(t types.ArgumentType) prompt.Kind {
	switch t {
	case types.ArgNumber:
		return prompt.KindNumber
	case types.ArgBoolean:
		return prompt.KindBoolean
	case types.ArgEnum:
		return prompt.KindSelect
	default:
		return prompt.KindText
	}
}
