// Package message renders notification and layout templates.
//
// Templates use %KEY% placeholders. Parameters are passed as alternating
// key/value strings, e.g. Render("Ban.Done", "NAME", "alice").
package message

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lines is one or more template lines. In YAML it may be written as a single
// string or as a sequence of strings.
type Lines []string

// UnmarshalYAML accepts both scalar and sequence nodes.
func (l *Lines) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*l = Lines{value.Value}
		return nil
	case yaml.SequenceNode:
		var lines []string
		if err := value.Decode(&lines); err != nil {
			return err
		}
		*l = lines
		return nil
	default:
		return fmt.Errorf("message: line %d: expected string or list", value.Line)
	}
}

// Catalog holds message templates keyed by dotted names such as
// "Tempban.Layout", and named layouts selected by "@name" reasons.
type Catalog struct {
	messages map[string]Lines
	layouts  map[string]Lines
}

// NewCatalog creates a catalog. The maps are not copied and must not be
// mutated afterwards.
func NewCatalog(messages, layouts map[string]Lines) *Catalog {
	return &Catalog{messages: messages, layouts: layouts}
}

// Has reports whether a message key exists.
func (c *Catalog) Has(key string) bool {
	_, ok := c.messages[key]
	return ok
}

// Lines renders every line of a message. A missing key renders as the key
// itself so the gap is visible to operators.
func (c *Catalog) Lines(key string, params ...string) []string {
	lines, ok := c.messages[key]
	if !ok {
		return []string{key}
	}
	return renderAll(lines, params)
}

// Message renders a message joined by newlines.
func (c *Catalog) Message(key string, params ...string) string {
	return strings.Join(c.Lines(key, params...), "\n")
}

// Layout renders a named layout.
func (c *Catalog) Layout(name string, params ...string) ([]string, bool) {
	lines, ok := c.layouts[name]
	if !ok {
		return nil, false
	}
	return renderAll(lines, params), true
}

func renderAll(lines Lines, params []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = Render(line, params...)
	}
	return out
}

// Render replaces %KEY% placeholders in tmpl. Keys are matched without
// regard to case and the first pair for a key wins; a trailing odd
// parameter is ignored. Unknown placeholders are left as written.
func Render(tmpl string, params ...string) string {
	if len(params) < 2 || !strings.Contains(tmpl, "%") {
		return tmpl
	}
	values := make(map[string]string, len(params)/2)
	for i := 0; i+1 < len(params); i += 2 {
		key := strings.ToUpper(params[i])
		if _, dup := values[key]; !dup {
			values[key] = params[i+1]
		}
	}

	var b strings.Builder
	b.Grow(len(tmpl))
	for {
		open := strings.IndexByte(tmpl, '%')
		if open < 0 {
			break
		}
		end := strings.IndexByte(tmpl[open+1:], '%')
		if end < 0 {
			break
		}
		end += open + 1
		if v, ok := values[strings.ToUpper(tmpl[open+1:end])]; ok {
			b.WriteString(tmpl[:open])
			b.WriteString(v)
			tmpl = tmpl[end+1:]
			continue
		}
		// The closing % may open the next placeholder.
		b.WriteString(tmpl[:end])
		tmpl = tmpl[end:]
	}
	b.WriteString(tmpl)
	return b.String()
}
