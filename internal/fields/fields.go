// Package fields describes the profile fields an onboarding
// conversation collects. A [Schema] is immutable once built: an ordered
// list of [Spec] values plus the literal opening question. Order is
// significant; it drives both prompt rendering and which field the
// conversation asks about first.
package fields

import (
	"fmt"
	"strings"
)

// Rule maps a free-text pattern the user might say to the canonical
// value that should be stored instead.
type Rule struct {
	Pattern string
	Value   string
}

// Option is one valid value of an enumerated field, with a short
// explanation for the model.
type Option struct {
	Value       string
	Description string
}

// Spec describes a single field.
type Spec struct {
	Name        string
	Required    bool
	Description string

	// ValidationHint is a one-line constraint rendered into the prompt's
	// validation section.
	ValidationHint string

	Examples []string

	// Options, when non-empty, is the closed set of accepted values.
	Options []Option

	// NormalizeTo lists the canonical values free text is mapped onto.
	// NormalizationRules gives the mapping, in display order.
	NormalizeTo        []string
	NormalizationRules []Rule

	// FirstQuestion is set on at most one field: the literal opening
	// turn of every conversation.
	FirstQuestion string
}

// OptionValues returns the option values in declaration order.
func (s Spec) OptionValues() []string {
	vals := make([]string, len(s.Options))
	for i, o := range s.Options {
		vals[i] = o.Value
	}
	return vals
}

// Schema is an ordered, read-only collection of field specs.
type Schema struct {
	specs []Spec
	index map[string]int
	first string
}

// New builds a schema from specs in collection order. Field names must
// be unique and non-empty, and at most one spec may carry a first
// question.
func New(specs ...Spec) (*Schema, error) {
	s := &Schema{
		specs: make([]Spec, len(specs)),
		index: make(map[string]int, len(specs)),
	}
	copy(s.specs, specs)

	for i, spec := range s.specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("field %d has no name", i)
		}
		if _, dup := s.index[spec.Name]; dup {
			return nil, fmt.Errorf("duplicate field %q", spec.Name)
		}
		s.index[spec.Name] = i
		if spec.FirstQuestion != "" {
			if s.first != "" {
				return nil, fmt.Errorf("field %q: first question already set", spec.Name)
			}
			s.first = spec.FirstQuestion
		}
	}
	return s, nil
}

// MustNew is like [New] but panics on error. Intended for package-level
// schemas built from literals.
func MustNew(specs ...Spec) *Schema {
	s, err := New(specs...)
	if err != nil {
		panic("fields: " + err.Error())
	}
	return s
}

// Specs returns a copy of the field specs in collection order.
func (s *Schema) Specs() []Spec {
	out := make([]Spec, len(s.specs))
	copy(out, s.specs)
	return out
}

// Names returns field names in collection order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.specs))
	for i, spec := range s.specs {
		names[i] = spec.Name
	}
	return names
}

// Lookup returns the spec for name.
func (s *Schema) Lookup(name string) (Spec, bool) {
	i, ok := s.index[name]
	if !ok {
		return Spec{}, false
	}
	return s.specs[i], true
}

// Has reports whether name is a known field.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Required returns the names of required fields in collection order.
func (s *Schema) Required() []string {
	var names []string
	for _, spec := range s.specs {
		if spec.Required {
			names = append(names, spec.Name)
		}
	}
	return names
}

// FirstQuestion returns the opening question, used verbatim as the
// assistant's first turn without a model call.
func (s *Schema) FirstQuestion() string {
	return s.first
}

// Missing returns the fields in values that are unset or empty, in
// collection order.
func (s *Schema) Missing(values map[string]string) []string {
	var missing []string
	for _, spec := range s.specs {
		if strings.TrimSpace(values[spec.Name]) == "" {
			missing = append(missing, spec.Name)
		}
	}
	return missing
}

// MissingRequired is [Schema.Missing] restricted to required fields.
func (s *Schema) MissingRequired(values map[string]string) []string {
	var missing []string
	for _, spec := range s.specs {
		if spec.Required && strings.TrimSpace(values[spec.Name]) == "" {
			missing = append(missing, spec.Name)
		}
	}
	return missing
}

// Collected returns the known, non-empty entries of values. Unknown
// keys are dropped.
func (s *Schema) Collected(values map[string]string) map[string]string {
	out := make(map[string]string)
	for _, spec := range s.specs {
		if v := values[spec.Name]; strings.TrimSpace(v) != "" {
			out[spec.Name] = v
		}
	}
	return out
}

// Describe renders every field as prompt text, one block per field in
// collection order:
//
//	- name (Required): description
//	  Examples: a, b
//	  Options: x, y
//	  Normalize to: p, q
//
// The output is deterministic for a given schema.
func (s *Schema) Describe() string {
	var b strings.Builder
	for i, spec := range s.specs {
		if i > 0 {
			b.WriteByte('\n')
		}
		kind := "Optional"
		if spec.Required {
			kind = "Required"
		}
		fmt.Fprintf(&b, "- %s (%s): %s", spec.Name, kind, spec.Description)
		if len(spec.Examples) > 0 {
			b.WriteString("\n  Examples: " + strings.Join(spec.Examples, ", "))
		}
		if len(spec.Options) > 0 {
			b.WriteString("\n  Options: " + strings.Join(spec.OptionValues(), ", "))
		}
		if len(spec.NormalizeTo) > 0 {
			b.WriteString("\n  Normalize to: " + strings.Join(spec.NormalizeTo, ", "))
		}
	}
	return b.String()
}
