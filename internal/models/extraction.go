package models

import (
	"fmt"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/xpath"
)

// ExtractionConfig is the structured form of a user's natural-language
// description: an ordered list of named extraction rules. Order matters only
// for display; extraction treats the rules as a set keyed by name.
type ExtractionConfig struct {
	Fields []FieldRule `json:"fields"`
}

// FieldRule describes how a single field is located on the page and how its
// raw value is normalized before storage.
type FieldRule struct {
	Name      string        `json:"name"`
	Selector  string        `json:"selector"`
	Kind      SelectorKind  `json:"kind"`
	Normalize NormalizeKind `json:"normalize"`
	Truthy    []string      `json:"truthy,omitempty"`
}

// SelectorKind enumerates supported selector syntaxes.
type SelectorKind string

const (
	SelectorCSS   SelectorKind = "css"
	SelectorXPath SelectorKind = "xpath"
)

// NormalizeKind enumerates supported normalization transforms.
type NormalizeKind string

const (
	NormalizeNone   NormalizeKind = "none"
	NormalizeTrim   NormalizeKind = "trim"
	NormalizeLower  NormalizeKind = "lower"
	NormalizeText   NormalizeKind = "text"
	NormalizeNumber NormalizeKind = "number"
)

// Validate checks the config against the schema: unique non-empty field
// names, syntactically valid selectors, and enumerated kinds. Generated
// configs are never trusted downstream without passing this.
func (c *ExtractionConfig) Validate() error {
	if len(c.Fields) == 0 {
		return fmt.Errorf("config has no fields")
	}

	seen := make(map[string]bool, len(c.Fields))
	for i, f := range c.Fields {
		if f.Name == "" {
			return fmt.Errorf("field %d: empty name", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field name: %q", f.Name)
		}
		seen[f.Name] = true

		if f.Selector == "" {
			return fmt.Errorf("field %q: empty selector", f.Name)
		}

		switch f.Kind {
		case SelectorCSS:
			if _, err := cascadia.Parse(f.Selector); err != nil {
				return fmt.Errorf("field %q: invalid css selector: %w", f.Name, err)
			}
		case SelectorXPath:
			if _, err := xpath.Compile(f.Selector); err != nil {
				return fmt.Errorf("field %q: invalid xpath expression: %w", f.Name, err)
			}
		default:
			return fmt.Errorf("field %q: unknown selector kind: %q", f.Name, f.Kind)
		}

		switch f.Normalize {
		case NormalizeNone, NormalizeTrim, NormalizeLower, NormalizeText, NormalizeNumber:
		default:
			return fmt.Errorf("field %q: unknown normalize kind: %q", f.Name, f.Normalize)
		}

		for _, v := range f.Truthy {
			if v == "" {
				return fmt.Errorf("field %q: empty truthy value", f.Name)
			}
		}
	}

	return nil
}

// Field returns the rule with the given name, if present.
func (c *ExtractionConfig) Field(name string) (FieldRule, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldRule{}, false
}

// IsTruthy reports whether value is in the rule's truthy set. A rule with no
// truthy set has no boolean interpretation and always reports false.
func (f FieldRule) IsTruthy(value string) bool {
	for _, v := range f.Truthy {
		if v == value {
			return true
		}
	}
	return false
}
