// Package workflow loads workflow definitions from YAML and keeps the
// catalog of available workflows.
package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/opencode-ai/wflow/pkg/types"
	"gopkg.in/yaml.v3"
)

// ParseError is a malformed workflow definition. Line and Column are
// 1-based and zero when unknown.
type ParseError struct {
	File   string
	Line   int
	Column int
	Field  string
	Msg    string
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString(e.File)
	if e.Line > 0 {
		fmt.Fprintf(&b, ":%d", e.Line)
		if e.Column > 0 {
			fmt.Fprintf(&b, ":%d", e.Column)
		}
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": %s", e.Field)
	}
	fmt.Fprintf(&b, ": %s", e.Msg)
	return b.String()
}

// DuplicateArgumentError is returned when two arguments share a name.
type DuplicateArgumentError struct {
	File      string
	Name      string
	Line      int
	FirstLine int
}

func (e *DuplicateArgumentError) Error() string {
	return fmt.Sprintf("%s:%d: duplicate argument %q (first declared on line %d)", e.File, e.Line, e.Name, e.FirstLine)
}

var yamlLineRe = regexp.MustCompile(`line (\d+)`)

// Parse decodes and validates a workflow definition. id becomes the
// workflow's ID and is used as the file name in errors.
func Parse(id string, data []byte) (*types.Workflow, error) {
	return parse(id, id, data)
}

func parse(id, file string, data []byte) (*types.Workflow, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ParseError{File: file, Msg: "definition is empty"}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, yamlError(file, err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, &ParseError{File: file, Line: doc.Line, Msg: "definition must be a mapping"}
	}
	root := doc.Content[0]

	var wf types.Workflow
	if err := root.Decode(&wf); err != nil {
		return nil, yamlError(file, err)
	}
	wf.ID = id

	if err := normalize(file, root, &wf); err != nil {
		return nil, err
	}
	if err := validate(file, root, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// yamlError converts a yaml.v3 error into a ParseError, recovering the
// line number from the message.
func yamlError(file string, err error) error {
	msg := err.Error()
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) && len(typeErr.Errors) > 0 {
		msg = typeErr.Errors[0]
	}
	msg = strings.TrimPrefix(msg, "yaml: ")

	pe := &ParseError{File: file, Msg: msg}
	if m := yamlLineRe.FindStringSubmatch(msg); m != nil {
		pe.Line, _ = strconv.Atoi(m[1])
		pe.Msg = strings.TrimSpace(strings.TrimPrefix(yamlLineRe.ReplaceAllString(msg, ""), ":"))
	}
	return pe
}

// normalize canonicalizes argument types and null-like defaults.
func normalize(file string, root *yaml.Node, wf *types.Workflow) error {
	for i := range wf.Arguments {
		arg := &wf.Arguments[i]
		arg.Name = strings.TrimSpace(arg.Name)

		t, ok := types.ParseArgumentType(string(arg.Type))
		if !ok {
			n := argField(root, i, "arg_type")
			return &ParseError{
				File:   file,
				Line:   n.Line,
				Column: n.Column,
				Field:  fmt.Sprintf("arguments[%d].arg_type", i),
				Msg:    fmt.Sprintf("unknown argument type %q", arg.Type),
			}
		}
		arg.Type = t

		if arg.Default != nil {
			if d := strings.TrimSpace(*arg.Default); d == "" || d == "~" {
				arg.Default = nil
			}
		}
	}
	return nil
}

func validate(file string, root *yaml.Node, wf *types.Workflow) error {
	if strings.TrimSpace(wf.Name) == "" {
		return missing(file, root, "name")
	}
	if strings.TrimSpace(wf.Command) == "" {
		return missing(file, root, "command")
	}

	firstLine := make(map[string]int, len(wf.Arguments))
	for i, arg := range wf.Arguments {
		item := argNode(root, i)
		field := fmt.Sprintf("arguments[%d]", i)

		if arg.Name == "" {
			return &ParseError{File: file, Line: item.Line, Column: item.Column, Field: field + ".name", Msg: "argument name is required"}
		}
		if line, dup := firstLine[arg.Name]; dup {
			return &DuplicateArgumentError{File: file, Name: arg.Name, Line: item.Line, FirstLine: line}
		}
		firstLine[arg.Name] = item.Line

		if arg.Type == types.ArgEnum && len(arg.EnumVariants) == 0 && strings.TrimSpace(arg.EnumCommand) == "" {
			return &ParseError{File: file, Line: item.Line, Column: item.Column, Field: field, Msg: fmt.Sprintf("enum argument %q needs enum_variants or enum_command", arg.Name)}
		}

		if arg.Default != nil {
			if msg := badDefault(arg); msg != "" {
				n := argField(root, i, "default_value")
				return &ParseError{File: file, Line: n.Line, Column: n.Column, Field: field + ".default_value", Msg: msg}
			}
		}

		if ref := arg.DynamicResolution; ref != "" {
			n := argField(root, i, "dynamic_resolution")
			if _, earlier := firstLine[ref]; !earlier || ref == arg.Name {
				return &ParseError{File: file, Line: n.Line, Column: n.Column, Field: field + ".dynamic_resolution", Msg: fmt.Sprintf("%q is not an earlier argument", ref)}
			}
			if !arg.IsDynamicEnum() {
				return &ParseError{File: file, Line: n.Line, Column: n.Column, Field: field + ".dynamic_resolution", Msg: "only dynamic enum arguments can reference another argument"}
			}
		}
	}
	return nil
}

// badDefault describes why a default could never be accepted for arg, or
// returns "".
func badDefault(arg types.Argument) string {
	d := *arg.Default
	switch {
	case arg.Type == types.ArgNumber:
		if _, ok := types.CanonicalNumber(d); !ok {
			return fmt.Sprintf("default %q of %q is not a number", d, arg.Name)
		}
	case arg.Type == types.ArgBoolean:
		if _, ok := types.CanonicalBoolean(d); !ok {
			return fmt.Sprintf("default %q of %q is not a boolean", d, arg.Name)
		}
	case arg.Type == types.ArgEnum && len(arg.EnumVariants) > 0:
		if !slices.Contains(arg.EnumVariants, strings.TrimSpace(d)) {
			return fmt.Sprintf("default %q of %q is not one of its enum_variants", d, arg.Name)
		}
	}
	return ""
}

func missing(file string, root *yaml.Node, key string) error {
	line, col := root.Line, root.Column
	if n := mapValue(root, key); n != nil {
		line, col = n.Line, n.Column
	}
	return &ParseError{File: file, Line: line, Column: col, Field: key, Msg: "must not be empty"}
}

// mapValue returns the value node for key in a mapping node.
func mapValue(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// argNode returns the node of the i-th argument, falling back to the
// arguments key or the root so a position is always available.
func argNode(root *yaml.Node, i int) *yaml.Node {
	args := mapValue(root, "arguments")
	if args == nil {
		return root
	}
	if args.Kind == yaml.SequenceNode && i < len(args.Content) {
		return args.Content[i]
	}
	return args
}

func argField(root *yaml.Node, i int, key string) *yaml.Node {
	item := argNode(root, i)
	if n := mapValue(item, key); n != nil {
		return n
	}
	return item
}
