package chart

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// MachineConfig defines the complete statechart configuration.
//
// States holds the top-level states keyed by ID; deeper states are nested
// through Children. Context seeds the machine's extended state.
type MachineConfig struct {
	Version string                  `json:"version,omitempty" yaml:"version,omitempty"`
	ID      string                  `json:"id" yaml:"id"`
	Initial string                  `json:"initial" yaml:"initial"`
	Context map[string]any          `json:"context,omitempty" yaml:"context,omitempty"`
	States  map[string]*StateConfig `json:"states" yaml:"states"`
}

// Validate validates the entire machine configuration:
//   - Non-empty ID and Initial
//   - Initial exists in States
//   - All individual states validate (recursive)
//   - All transition targets resolve via FindState
//   - No orphaned top-level states (all reachable from Initial)
func (m *MachineConfig) Validate() error {
	if m.ID == "" {
		return errors.New("machine ID is required")
	}
	if m.Initial == "" {
		return errors.New("initial state ID is required")
	}
	if len(m.States) == 0 {
		return errors.New("states map is required and cannot be empty")
	}
	initialState, ok := m.States[m.Initial]
	if !ok {
		return fmt.Errorf("initial state %q not found in states", m.Initial)
	}
	if initialState.Type.IsHistory() {
		return fmt.Errorf("initial state %q cannot be a history state", m.Initial)
	}

	for _, sid := range m.sortedIDs() {
		state := m.States[sid]
		if state == nil {
			return fmt.Errorf("state %q is nil", sid)
		}
		if state.ID != sid {
			return fmt.Errorf("state key %q does not match state ID %q", sid, state.ID)
		}
		if err := state.Validate(); err != nil {
			return fmt.Errorf("state %q validation failed: %w", sid, err)
		}
		if state.Type.IsHistory() {
			return fmt.Errorf("top-level state %q cannot be a history state", sid)
		}
	}

	var targetErr error
	m.Walk(func(path string, state *StateConfig) bool {
		for _, transitions := range [2]map[string][]TransitionConfig{state.On, state.After} {
			for event, list := range transitions {
				for i, trans := range list {
					if trans.Target == "" {
						continue
					}
					if _, err := m.FindState(trans.Target); err != nil {
						targetErr = fmt.Errorf("invalid transition target %q (state %q, event %q, transition %d): %w", trans.Target, path, event, i, err)
						return false
					}
				}
			}
		}
		return true
	})
	if targetErr != nil {
		return targetErr
	}

	visited := make(map[string]bool, len(m.States))
	m.markReachable(m.Initial, visited)
	for _, sid := range m.sortedIDs() {
		if !visited[sid] {
			return fmt.Errorf("orphaned state %q (not reachable from initial %q)", sid, m.Initial)
		}
	}

	return nil
}

// markReachable marks top-level states reachable through transitions
// declared anywhere inside the state tree rooted at id.
func (m *MachineConfig) markReachable(id string, visited map[string]bool) {
	if visited[id] {
		return
	}
	visited[id] = true
	root := m.States[id]
	if root == nil {
		return
	}
	var next []string
	walkState(id, root, func(_ string, state *StateConfig) bool {
		for _, transitions := range [2]map[string][]TransitionConfig{state.On, state.After} {
			for _, list := range transitions {
				for _, trans := range list {
					if trans.Target != "" {
						next = append(next, strings.SplitN(trans.Target, ".", 2)[0])
					}
				}
			}
		}
		return true
	})
	for _, id := range next {
		m.markReachable(id, visited)
	}
}

// FindState resolves a state by hierarchical path (e.g. "parent.child.grandchild").
func (m *MachineConfig) FindState(path string) (*StateConfig, error) {
	if path == "" {
		return nil, errors.New("path cannot be empty")
	}
	segments := strings.Split(path, ".")
	current, ok := m.States[segments[0]]
	if !ok || current == nil {
		return nil, fmt.Errorf("state %q not found", segments[0])
	}
	for i := 1; i < len(segments); i++ {
		child := current.Child(segments[i])
		if child == nil {
			prefix := strings.Join(segments[:i], ".")
			return nil, fmt.Errorf("child %q not found in %q", segments[i], prefix)
		}
		current = child
	}
	return current, nil
}

// Walk visits every state depth-first in a deterministic order, passing its
// absolute path. Returning false from fn stops the walk.
func (m *MachineConfig) Walk(fn func(path string, state *StateConfig) bool) {
	for _, sid := range m.sortedIDs() {
		if !walkState(sid, m.States[sid], fn) {
			return
		}
	}
}

func walkState(path string, state *StateConfig, fn func(string, *StateConfig) bool) bool {
	if state == nil {
		return true
	}
	if !fn(path, state) {
		return false
	}
	for _, child := range state.Children {
		if child == nil {
			continue
		}
		if !walkState(path+"."+child.ID, child, fn) {
			return false
		}
	}
	return true
}

func (m *MachineConfig) sortedIDs() []string {
	ids := make([]string, 0, len(m.States))
	for id := range m.States {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
