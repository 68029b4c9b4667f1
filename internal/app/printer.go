package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/opencode-ai/wflow/internal/event"
	"github.com/opencode-ai/wflow/pkg/types"
)

// Printer writes journal events and the final result. Progress goes to
// the progress writer so stdout carries only the command or JSON.
type Printer struct {
	mu          sync.Mutex
	out         io.Writer
	progress    io.Writer
	format      OutputFormat
	quiet       bool
	verbose     bool
	unsubscribe func()
	startTime   time.Time
}

// NewPrinter creates a new event printer.
func NewPrinter(out, progress io.Writer, format OutputFormat, quiet, verbose bool) *Printer {
	return &Printer{
		out:       out,
		progress:  progress,
		format:    format,
		quiet:     quiet,
		verbose:   verbose,
		startTime: time.Now(),
	}
}

// Subscribe starts listening to events on bus.
func (p *Printer) Subscribe(bus *event.Bus) {
	p.unsubscribe = bus.SubscribeAll(p.HandleEvent)
}

// Unsubscribe stops listening to events.
func (p *Printer) Unsubscribe() {
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
}

// Elapsed returns the time since the printer was created.
func (p *Printer) Elapsed() time.Duration {
	return time.Since(p.startTime)
}

// HandleEvent prints one journal event according to the format.
func (p *Printer) HandleEvent(e types.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.format {
	case OutputText:
		if !p.quiet {
			p.handleTextEvent(e)
		}
	case OutputJSONL:
		p.handleJSONLEvent(e)
	}
}

func (p *Printer) handleTextEvent(e types.Event) {
	switch e.Kind {
	case types.EventSessionStarted:
		d := e.Started
		fmt.Fprintf(p.progress, "[session:%s] %s", truncateID(e.SessionID), d.WorkflowID)
		if d.ParentSession != "" {
			fmt.Fprintf(p.progress, " (chained from %s, depth %d)", truncateID(d.ParentSession), d.Depth)
		}
		fmt.Fprintln(p.progress)

	case types.EventArgumentPrompted:
		if p.verbose && e.Prompted.Attempt > 1 {
			fmt.Fprintf(p.progress, "[arg:%s] attempt %d\n", e.Prompted.Name, e.Prompted.Attempt)
		}

	case types.EventArgumentResolved:
		if p.verbose {
			suffix := ""
			if e.Resolved.FromDefault {
				suffix = " (default)"
			}
			fmt.Fprintf(p.progress, "[arg:%s] = %s%s\n", e.Resolved.Name, e.Resolved.Value, suffix)
		}

	case types.EventEnumCommandExecuted:
		d := e.EnumExecuted
		cmd := truncate(strings.Split(d.Command, "\n")[0], 60)
		if d.ExitCode != 0 {
			color.New(color.FgYellow).Fprintf(p.progress, "[enum:%s] $ %s exited %d\n", d.Name, cmd, d.ExitCode)
			return
		}
		if p.verbose {
			fmt.Fprintf(p.progress, "[enum:%s] $ %s -> %d options (%dms)\n", d.Name, cmd, len(d.Options), d.Duration)
		}

	case types.EventResolutionFailed:
		d := e.Failed
		where := ""
		if d.Argument != "" {
			where = " at " + d.Argument
		}
		color.New(color.FgRed).Fprintf(p.progress, "[error] %s%s: %s\n", d.Kind, where, d.Error)

	case types.EventCommandFinalized:
		if p.verbose {
			fmt.Fprintf(p.progress, "[done] finalized in %s\n", formatDuration(time.Since(p.startTime)))
		}
	}
}

// jsonlEvent is one line of JSONL output.
type jsonlEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"ts"`
	Data      any       `json:"data"`
}

func (p *Printer) handleJSONLEvent(e types.Event) {
	if !p.verbose && !isImportantEvent(e.Kind) {
		return
	}
	p.writeJSONL(string(e.Kind), e)
}

func (p *Printer) writeJSONL(kind string, data any) {
	line, err := json.Marshal(jsonlEvent{Type: kind, Timestamp: time.Now(), Data: data})
	if err != nil {
		return
	}
	fmt.Fprintln(p.out, string(line))
}

// PrintResult prints the final result.
func (p *Printer) PrintResult(r *Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.format {
	case OutputJSON:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return
		}
		fmt.Fprintln(p.out, string(data))
	case OutputJSONL:
		p.writeJSONL("result", r)
	default:
		p.printTextResult(r)
	}
}

func (p *Printer) printTextResult(r *Result) {
	if r.Command != "" && r.Status == StatusCompleted {
		fmt.Fprintln(p.out, r.Command)
		if p.quiet {
			return
		}
		if r.Delivered {
			color.New(color.FgGreen).Fprintln(p.progress, "Copied to clipboard.")
		} else {
			color.New(color.FgYellow).Fprintln(p.progress, "Clipboard unavailable; copy the command above.")
		}
		return
	}

	if r.Error != "" {
		label := string(r.FailureKind)
		if label == "" {
			label = "error"
		}
		color.New(color.FgRed).Fprintf(p.progress, "wflow: %s: %s\n", label, r.Error)
	}
}

func truncateID(id string) string {
	id = strings.TrimPrefix(id, "ses_")
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func isImportantEvent(kind types.EventKind) bool {
	switch kind {
	case types.EventSessionStarted,
		types.EventEnumCommandExecuted,
		types.EventResolutionFailed,
		types.EventCommandFinalized:
		return true
	default:
		return false
	}
}
