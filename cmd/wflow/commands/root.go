// Package commands provides the CLI commands for wflow.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/wflow/internal/config"
	"github.com/opencode-ai/wflow/internal/logging"
	"github.com/opencode-ai/wflow/pkg/types"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
	workDir   string
)

var (
	appConfig *types.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "wflow",
	Short: "wflow - fill in parameterized shell commands",
	Long: `wflow turns YAML workflow definitions into ready-to-paste shell commands.

Each workflow is a command template with named arguments. wflow asks for
every argument (running helper commands to offer choices where the
workflow says so), substitutes the answers and copies the result to the
clipboard. It never runs the final command itself.

Run 'wflow' for an interactive menu, or 'wflow run <workflow>' to go
straight to one.`,
	Version:           Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
	RunE: runMenu,
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().StringVarP(&workDir, "directory", "C", "", "Working directory")

	rootCmd.SetVersionTemplate(fmt.Sprintf("wflow %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(menuCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(debugCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}

// setup loads configuration and starts logging before any command runs.
func setup(cmd *cobra.Command, args []string) error {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return err
	}
	workDir = dir

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	appConfig, err = config.Load(dir)
	if err != nil {
		return err
	}

	level := appConfig.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(level)
	if !printLogs {
		logCfg.File = paths.LogPath()
	}
	logCloser, err = logging.Init(logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	logging.Debug().
		Str("directory", dir).
		Str("workflows", appConfig.WorkflowsDir).
		Str("journal", appConfig.Journal.Backend).
		Msg("configuration loaded")
	return nil
}
