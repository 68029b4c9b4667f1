package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config is the merged wflow configuration.
type Config struct {
	Schema       string          `json:"$schema,omitempty"`
	WorkflowsDir string          `json:"workflows_dir,omitempty"`
	LogLevel     string          `json:"log_level,omitempty"`
	Journal      JournalConfig   `json:"journal,omitempty"`
	Executor     ExecutorConfig  `json:"executor,omitempty"`
	Chain        ChainConfig     `json:"chain,omitempty"`
	Clipboard    ClipboardConfig `json:"clipboard,omitempty"`
	Prompt       PromptConfig    `json:"prompt,omitempty"`
}

// JournalConfig selects and configures the event journal backend.
type JournalConfig struct {
	// Backend is "memory", "file" or "postgres".
	Backend string `json:"backend,omitempty"`
	// Dir is the root directory of the file backend.
	Dir string `json:"dir,omitempty"`
	// DSN is the connection string of the postgres backend.
	DSN string `json:"dsn,omitempty"`
}

// ExecutorConfig configures dynamic enum sub-command execution.
type ExecutorConfig struct {
	Shell   string   `json:"shell,omitempty"`
	Timeout Duration `json:"timeout,omitempty"`
}

// ChainConfig bounds workflow chaining.
type ChainConfig struct {
	MaxDepth int `json:"max_depth,omitempty"`
}

// ClipboardConfig configures the clipboard sink.
type ClipboardConfig struct {
	Enabled *bool `json:"enabled,omitempty"`
	Retries int   `json:"retries,omitempty"`
}

// PromptConfig configures the interactive prompter.
type PromptConfig struct {
	// Mode is "tui" or "plain".
	Mode string `json:"mode,omitempty"`
}

// Duration is a time.Duration that reads "30s" style strings from JSON.
type Duration time.Duration

// UnmarshalJSON accepts a duration string or a number of milliseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("invalid duration %s: %w", b, err)
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
