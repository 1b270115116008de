/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agentinvoker

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Template is a prompt with {{name}} placeholders. Every placeholder must be
// bound exactly once before Build succeeds. Binding returns a new Template,
// so a parsed template can be shared.
type Template struct {
	text     string
	bindings map[string]binding
}

type binding func() (string, error)

// ParseTemplate collects the placeholders in text.
func ParseTemplate(text string) (*Template, error) {
	bindings := make(map[string]binding)
	if _, err := walk(text, func(name string) (string, error) {
		bindings[name] = nil
		return "", nil
	}); err != nil {
		return nil, err
	}
	return &Template{text: text, bindings: bindings}, nil
}

// MustParseTemplate is ParseTemplate for package-level templates.
func MustParseTemplate(text string) *Template {
	t, err := ParseTemplate(text)
	if err != nil {
		panic(err)
	}
	return t
}

// BindString binds a plain string.
func (t *Template) BindString(name, value string) (*Template, error) {
	return t.bind(name, func() (string, error) { return value, nil })
}

// BindYAML binds data rendered as a YAML document.
func (t *Template) BindYAML(name string, data any) (*Template, error) {
	return t.bind(name, func() (string, error) {
		out, err := yaml.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("marshal YAML for %q: %w", name, err)
		}
		return strings.TrimRight(string(out), "\n"), nil
	})
}

func (t *Template) bind(name string, b binding) (*Template, error) {
	cur, ok := t.bindings[name]
	switch {
	case !ok:
		return nil, fmt.Errorf("placeholder %q not found in template", name)
	case cur != nil:
		return nil, fmt.Errorf("placeholder %q already bound", name)
	}
	next := &Template{text: t.text, bindings: maps.Clone(t.bindings)}
	next.bindings[name] = b
	return next, nil
}

// Build renders the template.
func (t *Template) Build() (string, error) {
	values := make(map[string]string, len(t.bindings))
	for _, name := range sortedKeys(t.bindings) {
		b := t.bindings[name]
		if b == nil {
			return "", fmt.Errorf("unbound placeholder: %s", name)
		}
		v, err := b()
		if err != nil {
			return "", err
		}
		values[name] = v
	}
	return walk(t.text, func(name string) (string, error) {
		return values[name], nil
	})
}

// walk replaces each {{name}} in text with resolve(name).
func walk(text string, resolve func(string) (string, error)) (string, error) {
	var sb strings.Builder
	for {
		start := strings.Index(text, "{{")
		if start < 0 {
			sb.WriteString(text)
			return sb.String(), nil
		}
		sb.WriteString(text[:start])

		end := strings.Index(text[start:], "}}")
		if end < 0 {
			return "", errors.New("unclosed placeholder: missing '}}'")
		}
		name := strings.TrimSpace(text[start+2 : start+end])
		if !isIdentifier(name) {
			return "", fmt.Errorf("invalid placeholder %q", name)
		}
		v, err := resolve(name)
		if err != nil {
			return "", err
		}
		sb.WriteString(v)
		text = text[start+end+2:]
	}
}

func isIdentifier(s string) bool {
	for i, r := range s {
		if i == 0 && !unicode.IsLetter(r) {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return s != ""
}
