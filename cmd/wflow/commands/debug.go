package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/wflow/internal/config"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Debug utilities",
	Long:  `Debug utilities for troubleshooting wflow configuration and setup.`,
}

var debugConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE:  runDebugConfig,
}

var debugPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show system paths",
	RunE:  runDebugPaths,
}

func init() {
	debugCmd.AddCommand(debugConfigCmd)
	debugCmd.AddCommand(debugPathsCmd)
}

func runDebugConfig(cmd *cobra.Command, args []string) error {
	data, err := json.MarshalIndent(appConfig, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runDebugPaths(cmd *cobra.Command, args []string) error {
	paths := config.GetPaths()

	fmt.Println("wflow System Paths:")
	fmt.Println()
	fmt.Printf("  Config:     %s\n", paths.Config)
	fmt.Printf("  Data:       %s\n", paths.Data)
	fmt.Printf("  State:      %s\n", paths.State)
	fmt.Printf("  Workflows:  %s\n", appConfig.WorkflowsDir)
	fmt.Printf("  Journal:    %s (%s)\n", appConfig.Journal.Dir, appConfig.Journal.Backend)
	fmt.Printf("  Log:        %s\n", paths.LogPath())
	fmt.Println()
	fmt.Println("Config files:")
	fmt.Printf("  Global:     %s\n", config.GlobalConfigPath())
	fmt.Printf("  Project:    %s\n", config.ProjectConfigPath(workDir))
	return nil
}
