package models

import (
	"time"
)

// Snapshot is the normalized key-value state extracted from a page at one
// point in time. Fields whose selector matched nothing are simply absent.
// Truthy carries the boolean interpretation for fields that declare a truthy
// set; the raw normalized value is kept alongside it.
type Snapshot struct {
	Values     map[string]string `json:"values"`
	Truthy     map[string]bool   `json:"truthy,omitempty"`
	CapturedAt time.Time         `json:"captured_at"`
}

// NewSnapshot constructs an empty snapshot stamped with the given time.
func NewSnapshot(at time.Time) *Snapshot {
	return &Snapshot{
		Values:     make(map[string]string),
		Truthy:     make(map[string]bool),
		CapturedAt: at,
	}
}

// Set records a field's normalized value and its boolean interpretation
// under the given rule.
func (s *Snapshot) Set(rule FieldRule, value string) {
	s.Values[rule.Name] = value
	if len(rule.Truthy) > 0 {
		s.Truthy[rule.Name] = rule.IsTruthy(value)
	}
}

// Get returns the normalized value for a field and whether it was captured.
func (s *Snapshot) Get(field string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.Values[field]
	return v, ok
}

// IsTruthy reports the boolean interpretation recorded for a field. Fields
// without a truthy set, and absent fields, report false.
func (s *Snapshot) IsTruthy(field string) bool {
	if s == nil {
		return false
	}
	return s.Truthy[field]
}

// Len returns the number of captured fields.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Values)
}
