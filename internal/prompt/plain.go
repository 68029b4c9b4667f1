package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Plain is a line-oriented prompter for pipes and dumb terminals.
// Selections are answered by number or by typing the option.
type Plain struct {
	// mu keeps each prompt whole when sessions share the terminal.
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer

	label   *color.Color
	hint    *color.Color
	problem *color.Color
}

// NewPlain creates a Plain prompter reading from in and writing to out.
func NewPlain(in io.Reader, out io.Writer) *Plain {
	return &Plain{
		in:      bufio.NewReader(in),
		out:     out,
		label:   color.New(color.FgCyan, color.Bold),
		hint:    color.New(color.FgHiBlack),
		problem: color.New(color.FgRed),
	}
}

func (p *Plain) Prompt(ctx context.Context, spec Spec) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if spec.Problem != "" {
		fmt.Fprintln(p.out, p.problem.Sprintf("  %s", spec.Problem))
	}

	choices := spec.Choices()
	if len(choices) > 0 {
		return p.choose(ctx, spec, choices)
	}

	fmt.Fprint(p.out, p.label.Sprint(spec.Label))
	if spec.Kind == KindNumber {
		fmt.Fprint(p.out, p.hint.Sprint(" (number)"))
	}
	if spec.Default != nil {
		fmt.Fprint(p.out, p.hint.Sprintf(" [%s]", *spec.Default))
	}
	fmt.Fprint(p.out, ": ")

	line, err := p.readLine(ctx)
	if err != nil {
		return "", err
	}
	if line == "" && spec.Default != nil {
		return *spec.Default, nil
	}
	return line, nil
}

func (p *Plain) choose(ctx context.Context, spec Spec, choices []string) (string, error) {
	fmt.Fprintln(p.out, p.label.Sprint(spec.Label))
	for i, c := range choices {
		marker := " "
		if spec.Default != nil && *spec.Default == c {
			marker = "*"
		}
		fmt.Fprintf(p.out, " %s%2d) %s\n", marker, i+1, c)
	}
	if spec.AllowCustom {
		fmt.Fprintf(p.out, "   %2d) %s\n", 0, p.hint.Sprint(CustomOption))
	}
	fmt.Fprint(p.out, "> ")

	line, err := p.readLine(ctx)
	if err != nil {
		return "", err
	}
	if line == "" && spec.Default != nil {
		return *spec.Default, nil
	}
	if n, err := strconv.Atoi(line); err == nil {
		switch {
		case n == 0 && spec.AllowCustom:
			fmt.Fprint(p.out, p.label.Sprint("Value"), ": ")
			return p.readLine(ctx)
		case n >= 1 && n <= len(choices):
			return choices[n-1], nil
		}
	}
	return line, nil
}

type lineResult struct {
	line string
	err  error
}

// readLine reads one trimmed line. End of input is ErrAborted.
func (p *Plain) readLine(ctx context.Context) (string, error) {
	ch := make(chan lineResult, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- lineResult{line, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, io.EOF) && r.line != "" {
				return strings.TrimSpace(r.line), nil
			}
			if errors.Is(r.err, io.EOF) {
				return "", ErrAborted
			}
			return "", r.err
		}
		return strings.TrimSpace(r.line), nil
	}
}
