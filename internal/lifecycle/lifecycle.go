// Package lifecycle holds the status transition tables for every document
// type and for inventory stock.
package lifecycle

import (
	"fmt"
	"sort"
)

// TransitionError is returned when a status change is not in the table.
type TransitionError struct {
	Machine string
	From    string
	To      string
}

func (e *TransitionError) Error() string {
	if e.From == e.To {
		return fmt.Sprintf("%s is already %s", e.Machine, e.From)
	}
	return fmt.Sprintf("%s cannot move from %s to %s", e.Machine, e.From, e.To)
}

// Machine is a named from → allowed-to lookup table.
type Machine struct {
	Name  string
	Edges map[string][]string
}

// Can reports whether from → to is an allowed transition.
func (m Machine) Can(from, to string) bool {
	for _, s := range m.Edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Check returns a *TransitionError when from → to is not allowed.
func (m Machine) Check(from, to string) error {
	if m.Can(from, to) {
		return nil
	}
	return &TransitionError{Machine: m.Name, From: from, To: to}
}

// Terminal reports whether no transition leaves the status.
func (m Machine) Terminal(status string) bool {
	return len(m.Edges[status]) == 0
}

// Statuses lists every status that appears in the table.
func (m Machine) Statuses() []string {
	seen := map[string]bool{}
	for from, tos := range m.Edges {
		seen[from] = true
		for _, t := range tos {
			seen[t] = true
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Valid reports whether status appears anywhere in the table.
func (m Machine) Valid(status string) bool {
	if _, ok := m.Edges[status]; ok {
		return true
	}
	for _, tos := range m.Edges {
		for _, t := range tos {
			if t == status {
				return true
			}
		}
	}
	return false
}
