package workflow

import (
	"testing"

	"github.com/opencode-ai/wflow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const logsYAML = `name: "Tail pod logs"
command: "kubectl logs -n {{namespace}} {{pod}} --tail {{lines}}"
description: "Follow logs of a pod"
arguments:
  - name: namespace
    arg_type: Enum
    description: "Kubernetes namespace"
    enum_name: namespaces
    enum_command: "kubectl get ns --no-headers | awk '{print $1}'"
  - name: pod
    arg_type: enum
    description: "Pod"
    enum_command: "kubectl get pods -n {{namespace}} --no-headers | awk '{print $1}'"
    dynamic_resolution: namespace
  - name: lines
    arg_type: Number
    description: ~
    default_value: 100
  - name: follow
    arg_type: Boolean
    description: "Follow output"
    default_value: ~
tags: ["k8s", "logs"]
shells: ["bash", "zsh"]
source_url: "https://example.com/logs"
author: "ops"
`

func TestParse(t *testing.T) {
	wf, err := Parse("k8s/logs", []byte(logsYAML))
	require.NoError(t, err)

	assert.Equal(t, "k8s/logs", wf.ID)
	assert.Equal(t, "Tail pod logs", wf.Name)
	assert.Equal(t, []string{"k8s", "logs"}, wf.Tags)
	assert.Equal(t, []string{"bash", "zsh"}, wf.Shells)
	assert.Equal(t, "https://example.com/logs", wf.SourceURL)
	require.Len(t, wf.Arguments, 4)

	ns := wf.Arguments[0]
	assert.Equal(t, types.ArgEnum, ns.Type)
	assert.True(t, ns.IsDynamicEnum())
	assert.Equal(t, "namespaces", ns.EnumName)

	pod := wf.Arguments[1]
	assert.Equal(t, types.ArgEnum, pod.Type, "type names are case-insensitive")
	assert.Equal(t, "namespace", pod.DynamicResolution)

	lines := wf.Arguments[2]
	require.NotNil(t, lines.Default)
	assert.Equal(t, "100", *lines.Default, "numeric defaults decode as strings")
	assert.Equal(t, "lines", lines.Label(), "null description falls back to the name")

	assert.Nil(t, wf.Arguments[3].Default, "~ means no default")
}

func TestParse_DefaultsToText(t *testing.T) {
	wf, err := Parse("echo", []byte(`
name: echo
command: "echo {{message}}"
description: prints
arguments:
  - name: message
    description: text to print
    default_value: hi
`))
	require.NoError(t, err)
	assert.Equal(t, types.ArgText, wf.Arguments[0].Type)
	assert.Equal(t, "hi", wf.Arguments[0].DefaultValue())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
		line  int
	}{
		{
			name: "syntax",
			yaml: "name: x\ncommand: [unclosed\n",
		},
		{
			name:  "empty name",
			yaml:  "name: \"\"\ncommand: ls\n",
			field: "name",
			line:  1,
		},
		{
			name:  "missing command",
			yaml:  "name: list\n",
			field: "command",
			line:  1,
		},
		{
			name:  "unknown type",
			yaml:  "name: x\ncommand: ls\narguments:\n  - name: a\n    arg_type: List\n",
			field: "arguments[0].arg_type",
			line:  5,
		},
		{
			name:  "enum without source",
			yaml:  "name: x\ncommand: ls\narguments:\n  - name: a\n    arg_type: Enum\n",
			field: "arguments[0]",
			line:  4,
		},
		{
			name:  "forward dynamic resolution",
			yaml:  "name: x\ncommand: ls\narguments:\n  - name: a\n    arg_type: Enum\n    enum_command: ls {{b}}\n    dynamic_resolution: b\n  - name: b\n",
			field: "arguments[0].dynamic_resolution",
			line:  7,
		},
		{
			name:  "number default not a number",
			yaml:  "name: x\ncommand: head -n {{n}}\narguments:\n  - name: n\n    arg_type: Number\n    default_value: abc\n",
			field: "arguments[0].default_value",
			line:  6,
		},
		{
			name:  "boolean default not a boolean",
			yaml:  "name: x\ncommand: ls {{all}}\narguments:\n  - name: all\n    arg_type: Boolean\n    default_value: maybe\n",
			field: "arguments[0].default_value",
			line:  6,
		},
		{
			name:  "static enum default outside variants",
			yaml:  "name: x\ncommand: env {{stage}}\narguments:\n  - name: stage\n    arg_type: Enum\n    enum_variants: [dev, prod]\n    default_value: qa\n",
			field: "arguments[0].default_value",
			line:  7,
		},
		{
			name: "wrong shape",
			yaml: "name: x\ncommand: ls\narguments:\n  - name: [a, b]\n",
			line: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("broken", []byte(tt.yaml))
			require.Error(t, err)

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, "broken", pe.File)
			if tt.field != "" {
				assert.Equal(t, tt.field, pe.Field)
			}
			if tt.line != 0 {
				assert.Equal(t, tt.line, pe.Line)
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse("empty", []byte("  \n"))
	var pe *ParseError
	require.ErrorAs(t, err, &pe)

	_, err = Parse("scalar", []byte("just a string"))
	require.ErrorAs(t, err, &pe)
}

func TestParse_DuplicateArgument(t *testing.T) {
	_, err := Parse("dup", []byte(`name: dup
command: "echo {{a}}"
arguments:
  - name: a
  - name: b
  - name: a
`))
	var dup *DuplicateArgumentError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "a", dup.Name)
	assert.Equal(t, 6, dup.Line)
	assert.Equal(t, 4, dup.FirstLine)
	assert.Contains(t, dup.Error(), `duplicate argument "a"`)
}

func TestParseError_Error(t *testing.T) {
	err := &ParseError{File: "a.yaml", Line: 3, Column: 5, Field: "name", Msg: "must not be empty"}
	assert.Equal(t, "a.yaml:3:5: name: must not be empty", err.Error())

	err = &ParseError{File: "a.yaml", Msg: "definition is empty"}
	assert.Equal(t, "a.yaml: definition is empty", err.Error())
}

func TestUndeclared(t *testing.T) {
	wf, err := Parse("deploy", []byte(`name: Deploy
command: kubectl -n {{ns}} rollout restart {{kind}}/{{name}} --context {{ctx}}
arguments:
  - name: ns
  - name: name
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"kind", "ctx"}, Undeclared(wf))

	wf, err = Parse("echo", []byte("name: Echo\ncommand: echo hi\n"))
	require.NoError(t, err)
	assert.Empty(t, Undeclared(wf))
}

func TestParse_ValidDefaults(t *testing.T) {
	wf, err := Parse("defaults", []byte(`name: Defaults
command: run {{n}} {{loud}} {{stage}} {{pod}}
arguments:
  - name: n
    arg_type: Number
    default_value: " 2.5 "
  - name: loud
    arg_type: Boolean
    default_value: "Yes"
  - name: stage
    arg_type: Enum
    enum_variants: [dev, prod]
    default_value: prod
  - name: pod
    arg_type: Enum
    enum_command: kubectl get pods
    default_value: anything
`))
	require.NoError(t, err)
	require.Len(t, wf.Arguments, 4)
	assert.Equal(t, "Yes", *wf.Arguments[1].Default)
}
