package domain

import (
	"fmt"
	"strings"
)

// Priority is one level of the active priority vocabulary.
type Priority string

// PriorityScale is an ordered priority vocabulary, lowest first.
type PriorityScale struct {
	Name   string
	levels []Priority
}

// Two vocabularies exist for historical reasons; deployments pick one.
var (
	SeverityScale = PriorityScale{Name: "severity", levels: []Priority{"REQUEST", "MINOR", "MAJOR", "CRITICAL"}}
	UrgencyScale  = PriorityScale{Name: "urgency", levels: []Priority{"LOW", "MEDIUM", "HIGH", "URGENT"}}
)

// ScaleByName returns the vocabulary configured under name.
func ScaleByName(name string) (PriorityScale, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SeverityScale.Name:
		return SeverityScale, nil
	case UrgencyScale.Name:
		return UrgencyScale, nil
	}
	return PriorityScale{}, fmt.Errorf("unknown priority vocabulary %q", name)
}

// Parse normalizes raw and reports whether it belongs to the scale.
func (s PriorityScale) Parse(raw string) (Priority, bool) {
	candidate := Priority(strings.ToUpper(strings.TrimSpace(raw)))
	for _, level := range s.levels {
		if level == candidate {
			return level, true
		}
	}
	return "", false
}

// Rank returns the zero-based position of p, or -1 when p is not in the scale.
func (s PriorityScale) Rank(p Priority) int {
	for i, level := range s.levels {
		if level == p {
			return i
		}
	}
	return -1
}

// Levels returns the vocabulary, lowest first.
func (s PriorityScale) Levels() []Priority {
	return append([]Priority(nil), s.levels...)
}
