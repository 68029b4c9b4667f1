// Package prompt asks the user for argument values.
//
// A Prompter shows one Spec and returns the raw text the user chose or
// typed. Validation is the caller's job: when a value is rejected the caller
// prompts again with Spec.Problem set so the user sees why.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrAborted is returned when the user abandons a prompt (Esc, Ctrl+C or
// end of input).
var ErrAborted = errors.New("prompt aborted")

// CustomOption is the label of the entry that switches a selection to
// free-text input.
const CustomOption = "Enter a custom value"

// Kind selects the prompt widget.
type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindBoolean
	KindSelect
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindSelect:
		return "select"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Spec describes a single prompt.
type Spec struct {
	Label   string
	Default *string
	// Options restricts the answer for KindSelect. KindBoolean uses
	// BooleanOptions when empty.
	Options []string
	Kind    Kind
	// AllowCustom adds CustomOption to a selection.
	AllowCustom bool
	// Problem is the reason the previous answer was rejected.
	Problem string
}

// BooleanOptions are offered for KindBoolean prompts.
var BooleanOptions = []string{"yes", "no"}

// Choices returns the options shown for s.
func (s Spec) Choices() []string {
	if s.Kind == KindBoolean && len(s.Options) == 0 {
		return BooleanOptions
	}
	return s.Options
}

// Prompter asks the user for a value.
type Prompter interface {
	Prompt(ctx context.Context, spec Spec) (string, error)
}

// Answer is one scripted reply. Err, when set, is returned instead of
// Value.
type Answer struct {
	Value string
	Err   error
}

// Scripted replays fixed answers in order and records every spec it was
// shown. It answers ErrAborted once the script runs out.
type Scripted struct {
	mu      sync.Mutex
	answers []Answer
	specs   []Spec
}

// NewScripted creates a Scripted prompter answering values in order.
func NewScripted(values ...string) *Scripted {
	s := &Scripted{}
	for _, v := range values {
		s.answers = append(s.answers, Answer{Value: v})
	}
	return s
}

// Then appends an answer.
func (s *Scripted) Then(a Answer) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, a)
	return s
}

func (s *Scripted) Prompt(ctx context.Context, spec Spec) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.specs = append(s.specs, spec)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(s.answers) == 0 {
		return "", ErrAborted
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a.Value, a.Err
}

// Specs returns the specs shown so far.
func (s *Scripted) Specs() []Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Spec, len(s.specs))
	copy(out, s.specs)
	return out
}

// Remaining returns the number of unused answers.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}
