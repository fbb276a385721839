package deb

import (
	"strings"
)

// Control is the parsed content of a Debian 'control' file.
//
// Reference: https://www.debian.org/doc/debian-policy/ch-controlfields.html#binary-package-control-files-debian-control
type Control struct {
	// Fields holds every top-level field with its unfolded value.
	// Recommends and Suggests are removed once merged into Depends.
	Fields map[string]string

	// Depends lists the relations of Depends, Recommends and Suggests, in that order.
	// Each entry is one comma separated item, still carrying version constraints
	// and "|" alternatives.
	Depends []string

	// Description is the synopsis, the inline value of the Description field.
	// It falls back to LongDescription when the inline value is empty.
	Description string

	// LongDescription is the extended description, one source line per line.
	// Lines consisting of a single "." (paragraph separators) become empty lines.
	LongDescription string
}

// Get returns the value of a top-level field and whether it was present.
func (c *Control) Get(f ControlField) (string, bool) {
	v, ok := c.Fields[string(f)]
	return v, ok
}

// ParseControl parses the content of a Debian control file.
// Continuation lines (starting with a space or a tab) are folded into the current field.
// Only the first stanza is meaningful; blank lines are ignored.
func ParseControl(content string) *Control {
	c := &Control{Fields: make(map[string]string)}

	var currentKey string
	var inline string
	var continuation []string

	flush := func() {
		if currentKey == "" {
			return
		}
		if ControlField(currentKey) == FieldDescription {
			c.LongDescription = strings.Join(continuation, "\n")
			c.Description = inline
			if c.Description == "" {
				c.Description = c.LongDescription
			}
			c.Fields[currentKey] = inline
			return
		}
		parts := []string{inline}
		for _, l := range continuation {
			if l != "" {
				parts = append(parts, l)
			}
		}
		c.Fields[currentKey] = strings.TrimSpace(strings.Join(parts, " "))
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			if currentKey != "" {
				continuation = append(continuation, continuationLine(line))
			}
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(key) == "" {
			continue
		}
		flush()
		currentKey = strings.TrimSpace(key)
		inline = strings.TrimSpace(value)
		continuation = nil
	}
	flush()

	for _, f := range relationFields {
		if v, ok := c.Fields[string(f)]; ok {
			c.Depends = append(c.Depends, splitList(v)...)
		}
		if f != FieldDepends {
			delete(c.Fields, string(f))
		}
	}
	return c
}

// continuationLine strips the folding indentation of an extended description line.
func continuationLine(line string) string {
	line = strings.TrimSpace(line)
	if line == "." {
		return ""
	}
	return line
}

// splitList splits a comma-separated string into a slice of strings, trimming whitespace from each element.
// Empty elements are dropped. It returns nil if the input string is empty.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var res []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			res = append(res, p)
		}
	}
	return res
}
