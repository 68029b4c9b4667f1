// Package command renders workflow command templates.
//
// A template is plain text containing {{name}} placeholders. Rendering
// replaces every placeholder with the resolved value of the argument of
// the same name:
//
//	out, err := command.Render("kubectl logs -n {{namespace}} {{pod}}", map[string]string{
//		"namespace": "default",
//		"pod":       "api-0",
//	})
//	// out == "kubectl logs -n default api-0"
//
// Placeholders are matched as literal, non-nested {{...}} spans. Spaces
// inside the braces are ignored, so {{ pod }} and {{pod}} are the same
// placeholder. There is no escaping: a template cannot produce a literal
// "{{name}}" for a name that is bound.
//
// A placeholder whose name has no value fails with
// *UnboundPlaceholderError. The check happens when rendering, not when the
// workflow is loaded, because the set of resolved values is only known at
// finalize time.
package command
