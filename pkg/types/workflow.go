// Package types provides the core data types shared by the wflow packages.
package types

import (
	"math"
	"strconv"
	"strings"
)

// ArgumentType selects how an argument is prompted and validated.
type ArgumentType string

const (
	ArgText    ArgumentType = "Text"
	ArgNumber  ArgumentType = "Number"
	ArgBoolean ArgumentType = "Boolean"
	ArgEnum    ArgumentType = "Enum"
)

// ParseArgumentType parses a type name case-insensitively.
// An empty name is Text.
func ParseArgumentType(s string) (ArgumentType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return ArgText, true
	case "number":
		return ArgNumber, true
	case "boolean", "bool":
		return ArgBoolean, true
	case "enum":
		return ArgEnum, true
	default:
		return "", false
	}
}

var (
	truthy = map[string]bool{"y": true, "yes": true, "true": true, "t": true, "1": true, "on": true}
	falsy  = map[string]bool{"n": true, "no": true, "false": true, "f": true, "0": true, "off": true}
)

// CanonicalBoolean maps yes/no style input, case-insensitively, to "true"
// or "false".
func CanonicalBoolean(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case truthy[s]:
		return "true", true
	case falsy[s]:
		return "false", true
	default:
		return "", false
	}
}

// CanonicalNumber returns the trimmed input if it is a finite number.
func CanonicalNumber(s string) (string, bool) {
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	return s, true
}

// Workflow is a parsed workflow definition: a command template plus the
// ordered arguments needed to fill it. It is immutable once loaded and is
// shared read-only by every session resolving it.
type Workflow struct {
	// ID is the catalog identifier (file path relative to the workflows
	// directory, without extension). It is not part of the YAML document.
	ID          string     `json:"id" yaml:"-"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Command     string     `json:"command" yaml:"command"`
	Arguments   []Argument `json:"arguments" yaml:"arguments"`
	Tags        []string   `json:"tags,omitempty" yaml:"tags"`
	Shells      []string   `json:"shells,omitempty" yaml:"shells"`
	SourceURL   string     `json:"sourceURL,omitempty" yaml:"source_url"`
	Author      string     `json:"author,omitempty" yaml:"author"`
	AuthorURL   string     `json:"authorURL,omitempty" yaml:"author_url"`
}

// Argument declares one named, typed parameter of a workflow.
type Argument struct {
	Name        string       `json:"name" yaml:"name"`
	Type        ArgumentType `json:"type" yaml:"arg_type"`
	Description string       `json:"description" yaml:"description"`
	Default     *string      `json:"default,omitempty" yaml:"default_value"`

	// Enum sources. Exactly one of EnumVariants or EnumCommand is used;
	// static variants win when both are present.
	EnumName     string   `json:"enumName,omitempty" yaml:"enum_name"`
	EnumCommand  string   `json:"enumCommand,omitempty" yaml:"enum_command"`
	EnumVariants []string `json:"enumVariants,omitempty" yaml:"enum_variants"`

	// DynamicResolution names an earlier argument whose value is
	// substituted into EnumCommand before it runs.
	DynamicResolution string `json:"dynamicResolution,omitempty" yaml:"dynamic_resolution"`
}

// HasDefault reports whether the argument declares a default value.
func (a Argument) HasDefault() bool {
	return a.Default != nil
}

// DefaultValue returns the default or the empty string.
func (a Argument) DefaultValue() string {
	if a.Default == nil {
		return ""
	}
	return *a.Default
}

// IsDynamicEnum reports whether options come from running EnumCommand.
func (a Argument) IsDynamicEnum() bool {
	return a.Type == ArgEnum && len(a.EnumVariants) == 0 && a.EnumCommand != ""
}

// Label is the text shown when prompting for the argument.
func (a Argument) Label() string {
	if d := strings.TrimSpace(a.Description); d != "" && d != "~" {
		return d
	}
	return a.Name
}

// ResolvedArgument is an argument name with its canonical string value.
type ResolvedArgument struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// WorkflowSummary is the listing view of a workflow.
type WorkflowSummary struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Tags            []string `json:"tags,omitempty"`
	ArgumentCount   int      `json:"argumentCount"`
	HasRequiredArgs bool     `json:"hasRequiredArgs"`
}

// Summary returns the listing view of the workflow.
func (w *Workflow) Summary() WorkflowSummary {
	s := WorkflowSummary{
		ID:            w.ID,
		Name:          w.Name,
		Description:   w.Description,
		Tags:          w.Tags,
		ArgumentCount: len(w.Arguments),
	}
	for _, arg := range w.Arguments {
		if !arg.HasDefault() {
			s.HasRequiredArgs = true
			break
		}
	}
	return s
}

// Argument returns the argument with the given name.
func (w *Workflow) Argument(name string) (Argument, bool) {
	for _, arg := range w.Arguments {
		if arg.Name == name {
			return arg, true
		}
	}
	return Argument{}, false
}
