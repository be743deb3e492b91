// Package vars implements the variable store shared by the playbook runtime
// and the execution engine: a flat name→value map with Go-template
// substitution over it.
package vars

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
)

// Store holds playbook variables. Commands read them through Substitute and
// components publish results back through Set.
type Store struct {
	logger *slog.Logger
	values map[string]string
}

// New creates an empty Store. The logger is required; variable writes are
// logged at debug level.
func New(logger *slog.Logger) *Store {
	return &Store{
		logger: logger,
		values: make(map[string]string),
	}
}

// Set stores a variable, overwriting any previous value.
func (s *Store) Set(name, value string) {
	s.logger.Debug("set variable", "name", name, "value", value)
	s.values[name] = value
}

// Get returns the value of a variable and whether it is set.
func (s *Store) Get(name string) (string, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Snapshot returns a copy of all variables.
func (s *Store) Snapshot() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// funcMap provides template functions available in playbook expressions.
// These supplement the built-in Go template functions (eq, ne, and, or, not, etc.).
var funcMap = template.FuncMap{
	"hasPrefix":  strings.HasPrefix,
	"hasSuffix":  strings.HasSuffix,
	"contains":   strings.Contains,
	"lower":      strings.ToLower,
	"upper":      strings.ToUpper,
	"split":      strings.Split,
	"join":       strings.Join,
	"replace":    strings.ReplaceAll,
	"trimPrefix": strings.TrimPrefix,
	"trimSuffix": strings.TrimSuffix,
	"trim":       strings.TrimSpace,
}

// Substitute resolves Go template expressions in text against the current
// variables. Text without template markers is returned unchanged. A
// reference to an unset variable is an error rather than a silent blank.
func (s *Store) Substitute(text string) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	data := make(map[string]any, len(s.values))
	for k, v := range s.values {
		data[k] = v
	}

	tmpl, err := template.New("substitute").Funcs(funcMap).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}
