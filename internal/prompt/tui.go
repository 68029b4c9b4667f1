package prompt

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"
)

// maxVisible caps how many options a selection shows at once.
const maxVisible = 10

var (
	labelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#6BCB77"))
	problemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	cursorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4D96FF"))
	customStyle  = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#888888"))
)

// TUI prompts with an inline bubbletea program per question: a text input
// for Text and Number, a fuzzy-filtered list for selections and booleans.
type TUI struct {
	opts []tea.ProgramOption
}

// NewTUI creates a TUI prompter. The program renders to stderr unless
// opts say otherwise.
func NewTUI(opts ...tea.ProgramOption) *TUI {
	return &TUI{opts: opts}
}

func (t *TUI) Prompt(ctx context.Context, spec Spec) (string, error) {
	opts := append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithOutput(os.Stderr)}, t.opts...)
	final, err := tea.NewProgram(newModel(spec), opts...).Run()
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		return "", fmt.Errorf("prompt: %w", err)
	}

	m := final.(model)
	if m.aborted {
		return "", ErrAborted
	}
	return m.value, nil
}

type model struct {
	spec    Spec
	choices []string

	input     textinput.Model
	selecting bool
	filtered  []int
	cursor    int

	value   string
	done    bool
	aborted bool
}

func newModel(spec Spec) model {
	m := model{spec: spec}

	m.input = textinput.New()
	m.input.Prompt = "› "
	m.input.Focus()

	choices := spec.Choices()
	if len(choices) == 0 {
		if spec.Default != nil {
			m.input.SetValue(*spec.Default)
		}
		if spec.Kind == KindNumber {
			m.input.Placeholder = "number"
		}
		return m
	}

	m.selecting = true
	m.choices = append([]string{}, choices...)
	if spec.AllowCustom {
		m.choices = append(m.choices, CustomOption)
	}
	m.input.Placeholder = "type to filter"
	m.refilter()
	if spec.Default != nil {
		for i, idx := range m.filtered {
			if m.choices[idx] == *spec.Default {
				m.cursor = i
				break
			}
		}
	}
	return m
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch key.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.aborted = true
		return m, tea.Quit
	case tea.KeyEnter:
		return m.submit()
	}

	if m.selecting {
		switch key.Type {
		case tea.KeyUp, tea.KeyCtrlP:
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case tea.KeyDown, tea.KeyCtrlN:
			if m.cursor < len(m.filtered)-1 {
				m.cursor++
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	before := m.input.Value()
	m.input, cmd = m.input.Update(msg)
	if m.selecting && m.input.Value() != before {
		m.refilter()
	}
	return m, cmd
}

func (m model) submit() (tea.Model, tea.Cmd) {
	if !m.selecting {
		m.value = strings.TrimSpace(m.input.Value())
		if m.value == "" && m.spec.Default != nil && m.spec.Kind != KindSelect {
			m.value = *m.spec.Default
		}
		m.done = true
		return m, tea.Quit
	}

	if len(m.filtered) == 0 {
		return m, nil
	}
	chosen := m.choices[m.filtered[m.cursor]]
	if m.spec.AllowCustom && chosen == CustomOption {
		m.selecting = false
		m.input.Reset()
		m.input.Placeholder = "custom value"
		return m, nil
	}
	m.value = chosen
	m.done = true
	return m, tea.Quit
}

// refilter recomputes the visible options from the filter text, best
// fuzzy match first.
func (m *model) refilter() {
	query := strings.TrimSpace(m.input.Value())
	m.filtered = m.filtered[:0]
	if query == "" {
		for i := range m.choices {
			m.filtered = append(m.filtered, i)
		}
	} else {
		for _, match := range fuzzy.Find(query, m.choices) {
			m.filtered = append(m.filtered, match.Index)
		}
	}
	if m.cursor >= len(m.filtered) {
		m.cursor = max(len(m.filtered)-1, 0)
	}
}

func (m model) View() string {
	if m.done || m.aborted {
		return ""
	}

	var b strings.Builder
	b.WriteString(labelStyle.Render(m.spec.Label))
	if m.spec.Default != nil && !m.selecting {
		b.WriteString(hintStyle.Render(fmt.Sprintf(" (default %s)", *m.spec.Default)))
	}
	b.WriteString("\n")
	if m.spec.Problem != "" {
		b.WriteString(problemStyle.Render("⚠ "+m.spec.Problem) + "\n")
	}
	b.WriteString(m.input.View() + "\n")

	if m.selecting {
		start := 0
		if m.cursor >= maxVisible {
			start = m.cursor - maxVisible + 1
		}
		end := min(start+maxVisible, len(m.filtered))
		for i := start; i < end; i++ {
			text := m.choices[m.filtered[i]]
			if m.spec.AllowCustom && text == CustomOption {
				text = customStyle.Render(text)
			}
			if i == m.cursor {
				b.WriteString(cursorStyle.Render("❯ ") + text + "\n")
			} else {
				b.WriteString("  " + text + "\n")
			}
		}
		if len(m.filtered) == 0 {
			b.WriteString(hintStyle.Render("  no matches") + "\n")
		}
		b.WriteString(hintStyle.Render("↑/↓ move • enter select • esc cancel"))
	} else {
		b.WriteString(hintStyle.Render("enter accept • esc cancel"))
	}
	return b.String()
}
