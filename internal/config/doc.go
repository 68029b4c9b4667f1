// Package config provides configuration loading, merging, and path management for wflow.
//
// # Configuration Loading
//
// Load merges configuration from these sources, later sources winning:
//
//  1. Global config (~/.config/wflow/wflow.json or wflow.jsonc)
//  2. Project config (wflow.json, wflow.jsonc, .wflow/wflow.json, .wflow/wflow.jsonc)
//  3. WFLOW_CONFIG file
//  4. WFLOW_CONFIG_CONTENT inline JSON
//  5. Environment variables (WFLOW_WORKFLOWS_DIR, WFLOW_JOURNAL, WFLOW_JOURNAL_DSN,
//     WFLOW_LOG_LEVEL, WFLOW_PROMPT, WFLOW_EXECUTOR_TIMEOUT, WFLOW_CHAIN_MAX_DEPTH,
//     WFLOW_CLIPBOARD)
//
// A .env file in the project directory is loaded first with joho/godotenv;
// variables already present in the environment are not overridden.
//
// Files may contain comments (JSONC, stripped with tidwall/jsonc) and
// {env:VAR_NAME} placeholders. A file that exists but does not parse is an
// error; a missing file is skipped.
//
// # Example
//
//	{
//	  // where workflow YAML files live
//	  "workflows_dir": "~/workflows",
//	  "journal": {"backend": "file"},
//	  "executor": {"timeout": "10s"},
//	  "chain": {"max_depth": 3}
//	}
//
// # Paths
//
// GetPaths follows the XDG base directory layout: data (workflows and the
// file journal) under $XDG_DATA_HOME/wflow, config under
// $XDG_CONFIG_HOME/wflow, and the log file under $XDG_STATE_HOME/wflow.
package config
