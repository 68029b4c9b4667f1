package command

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{([^{}]*)\}\}`)

// UnboundPlaceholderError is returned when a template references a name
// with no resolved value.
type UnboundPlaceholderError struct {
	Name string
}

func (e *UnboundPlaceholderError) Error() string {
	return fmt.Sprintf("unbound placeholder {{%s}}", e.Name)
}

// Render substitutes every {{name}} in tmpl with values[name].
// The first placeholder without a value fails the whole render.
func Render(tmpl string, values map[string]string) (string, error) {
	var unbound string

	out := placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		if unbound != "" {
			return match
		}
		name := placeholderName(match)
		val, ok := values[name]
		if !ok {
			unbound = name
			return match
		}
		return val
	})

	if unbound != "" {
		return "", &UnboundPlaceholderError{Name: unbound}
	}
	return out, nil
}

// Placeholders returns the distinct placeholder names in tmpl in order of
// first occurrence.
func Placeholders(tmpl string) []string {
	matches := placeholderRe.FindAllString(tmpl, -1)
	seen := make(map[string]bool, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		name := placeholderName(m)
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// Substitute replaces only the placeholder for name, leaving every other
// placeholder untouched. Used to bind a single earlier argument into an
// enum sub-command.
func Substitute(tmpl, name, value string) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		if placeholderName(match) == name {
			return value
		}
		return match
	})
}

func placeholderName(match string) string {
	return strings.TrimSpace(match[2 : len(match)-2])
}
