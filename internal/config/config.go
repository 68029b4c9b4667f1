package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/opencode-ai/wflow/pkg/types"
	"github.com/tidwall/jsonc"
)

// Defaults applied after all sources are merged.
const (
	DefaultJournalBackend  = "file"
	DefaultExecutorTimeout = 30 * time.Second
	DefaultChainMaxDepth   = 4
	DefaultClipboardRetry  = 2
	DefaultPromptMode      = "tui"
)

var envPattern = regexp.MustCompile(`\{env:([^}]+)\}`)

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/wflow/)
// 2. Project config (<directory>/wflow.json, <directory>/.wflow/)
// 3. WFLOW_CONFIG file
// 4. WFLOW_CONFIG_CONTENT inline JSON
// 5. Environment variables, including a .env file in directory
func Load(directory string) (*types.Config, error) {
	config := &types.Config{}

	if directory != "" {
		// A missing .env is not an error; existing variables win.
		_ = godotenv.Load(filepath.Join(directory, ".env"))
	}

	loaded := make(map[string]bool)
	loadOnce := func(path string) error {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil
		}
		if loaded[absPath] {
			return nil
		}
		err = loadConfigFile(path, config)
		if err == nil {
			loaded[absPath] = true
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	global := GlobalConfigPath()
	candidates := []string{global, global + "c"}
	if directory != "" {
		project := ProjectConfigPath(directory)
		candidates = append(candidates,
			filepath.Join(directory, "wflow.json"),
			filepath.Join(directory, "wflow.jsonc"),
			project,
			project+"c",
		)
	}
	if configPath := os.Getenv("WFLOW_CONFIG"); configPath != "" {
		candidates = append(candidates, configPath)
	}
	for _, path := range candidates {
		if err := loadOnce(path); err != nil {
			return nil, &FileError{Path: path, Err: err}
		}
	}

	if configContent := os.Getenv("WFLOW_CONFIG_CONTENT"); configContent != "" {
		var inlineConfig types.Config
		if err := json.Unmarshal(jsonc.ToJSON([]byte(configContent)), &inlineConfig); err != nil {
			return nil, &FileError{Path: "WFLOW_CONFIG_CONTENT", Err: err}
		}
		mergeConfig(config, &inlineConfig)
	}

	applyEnvOverrides(config)
	applyDefaults(config)

	return config, nil
}

// FileError reports a config source that exists but cannot be parsed.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return "config " + e.Path + ": " + e.Err.Error()
}

func (e *FileError) Unwrap() error { return e.Err }

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} placeholders.
func interpolate(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(varName)))
	})
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.WorkflowsDir != "" {
		target.WorkflowsDir = source.WorkflowsDir
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}

	if source.Journal.Backend != "" {
		target.Journal.Backend = source.Journal.Backend
	}
	if source.Journal.Dir != "" {
		target.Journal.Dir = source.Journal.Dir
	}
	if source.Journal.DSN != "" {
		target.Journal.DSN = source.Journal.DSN
	}

	if source.Executor.Shell != "" {
		target.Executor.Shell = source.Executor.Shell
	}
	if source.Executor.Timeout != 0 {
		target.Executor.Timeout = source.Executor.Timeout
	}

	if source.Chain.MaxDepth != 0 {
		target.Chain.MaxDepth = source.Chain.MaxDepth
	}

	if source.Clipboard.Enabled != nil {
		target.Clipboard.Enabled = source.Clipboard.Enabled
	}
	if source.Clipboard.Retries != 0 {
		target.Clipboard.Retries = source.Clipboard.Retries
	}

	if source.Prompt.Mode != "" {
		target.Prompt.Mode = source.Prompt.Mode
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	if dir := os.Getenv("WFLOW_WORKFLOWS_DIR"); dir != "" {
		config.WorkflowsDir = dir
	}
	if backend := os.Getenv("WFLOW_JOURNAL"); backend != "" {
		config.Journal.Backend = backend
	}
	if dsn := os.Getenv("WFLOW_JOURNAL_DSN"); dsn != "" {
		config.Journal.DSN = dsn
	}
	if level := os.Getenv("WFLOW_LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}
	if mode := os.Getenv("WFLOW_PROMPT"); mode != "" {
		config.Prompt.Mode = mode
	}
	if timeout := os.Getenv("WFLOW_EXECUTOR_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Executor.Timeout = types.Duration(d)
		}
	}
	if depth := os.Getenv("WFLOW_CHAIN_MAX_DEPTH"); depth != "" {
		if n, err := strconv.Atoi(depth); err == nil {
			config.Chain.MaxDepth = n
		}
	}
	if enabled := os.Getenv("WFLOW_CLIPBOARD"); enabled != "" {
		on := !strings.EqualFold(enabled, "off") && enabled != "0" && !strings.EqualFold(enabled, "false")
		config.Clipboard.Enabled = &on
	}
}

// applyDefaults fills unset fields.
func applyDefaults(config *types.Config) {
	paths := GetPaths()
	if config.WorkflowsDir == "" {
		config.WorkflowsDir = paths.WorkflowsPath()
	}
	config.WorkflowsDir = expandHome(config.WorkflowsDir)
	if config.Journal.Backend == "" {
		config.Journal.Backend = DefaultJournalBackend
	}
	if config.Journal.Dir == "" {
		config.Journal.Dir = paths.JournalPath()
	}
	config.Journal.Dir = expandHome(config.Journal.Dir)
	if config.Executor.Timeout <= 0 {
		config.Executor.Timeout = types.Duration(DefaultExecutorTimeout)
	}
	if config.Chain.MaxDepth <= 0 {
		config.Chain.MaxDepth = DefaultChainMaxDepth
	}
	if config.Clipboard.Enabled == nil {
		on := true
		config.Clipboard.Enabled = &on
	}
	if config.Clipboard.Retries <= 0 {
		config.Clipboard.Retries = DefaultClipboardRetry
	}
	if config.Prompt.Mode == "" {
		config.Prompt.Mode = DefaultPromptMode
	}
	if config.LogLevel == "" {
		config.LogLevel = "INFO"
	}
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(os.Getenv("HOME"), path[2:])
	}
	return path
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
