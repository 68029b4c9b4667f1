// Package clipboard delivers finalized commands to the system clipboard.
package clipboard

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/cenkalti/backoff/v4"
)

// ErrUnavailable is returned when the text could not be copied. Callers
// show the text to the user instead.
var ErrUnavailable = errors.New("clipboard unavailable")

// RetryInitialInterval is the first wait between write attempts.
const RetryInitialInterval = 50 * time.Millisecond

// Sink receives finalized command text.
type Sink interface {
	Write(text string) error
}

// System writes to the OS clipboard (pbcopy, xclip, xsel, wl-copy or the
// Windows API), retrying transient failures.
type System struct {
	retries int

	write       func(string) error
	unsupported func() bool
}

// NewSystem creates a system clipboard sink that retries a failed write up
// to retries times.
func NewSystem(retries int) *System {
	return &System{
		retries:     retries,
		write:       clipboard.WriteAll,
		unsupported: func() bool { return clipboard.Unsupported },
	}
}

func (s *System) Write(text string) error {
	if s.unsupported() {
		return fmt.Errorf("%w: no clipboard utility found", ErrUnavailable)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = time.Second
	b.Reset()

	retries := s.retries
	if retries < 0 {
		retries = 0
	}
	if err := backoff.Retry(func() error { return s.write(text) }, backoff.WithMaxRetries(b, uint64(retries))); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Disabled is a sink for when clipboard delivery is switched off.
type Disabled struct{}

func (Disabled) Write(string) error {
	return fmt.Errorf("%w: disabled by configuration", ErrUnavailable)
}

// Memory records writes. It is safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	writes []string
}

func (m *Memory) Write(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, text)
	return nil
}

// Writes returns everything written so far.
func (m *Memory) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.writes))
	copy(out, m.writes)
	return out
}

// Last returns the most recent write.
func (m *Memory) Last() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.writes) == 0 {
		return "", false
	}
	return m.writes[len(m.writes)-1], true
}
