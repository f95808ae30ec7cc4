// Package prompt defines the prompt templates sent to the language model as
// values with named slots, so substitution can be checked without a model call.
package prompt

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"text/template"
)

var (
	ErrMissingSlot = errors.New("missing prompt slot")
	ErrUnknownSlot = errors.New("unknown prompt slot")
)

// Values fills the named slots of a template.
type Values map[string]string

// Template is a prompt with a fixed set of named slots.
type Template struct {
	name  string
	slots []string
	tmpl  *template.Template
}

// New parses text as a template whose slots are referenced as {{.slot}}.
func New(name, text string, slots ...string) (*Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", name, err)
	}
	sorted := slices.Clone(slots)
	sort.Strings(sorted)
	return &Template{name: name, slots: sorted, tmpl: tmpl}, nil
}

// MustNew is New for package-level templates.
func MustNew(name, text string, slots ...string) *Template {
	t, err := New(name, text, slots...)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the template name.
func (t *Template) Name() string { return t.name }

// Slots returns the sorted slot names.
func (t *Template) Slots() []string { return slices.Clone(t.slots) }

// Render substitutes values into the template. Every declared slot must be
// provided and no undeclared slot may be.
func (t *Template) Render(values Values) (string, error) {
	for _, slot := range t.slots {
		if _, ok := values[slot]; !ok {
			return "", fmt.Errorf("%w: %s.%s", ErrMissingSlot, t.name, slot)
		}
	}
	for key := range values {
		if !slices.Contains(t.slots, key) {
			return "", fmt.Errorf("%w: %s.%s", ErrUnknownSlot, t.name, key)
		}
	}

	var b strings.Builder
	if err := t.tmpl.Execute(&b, map[string]string(values)); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", t.name, err)
	}
	return b.String(), nil
}
