package chart

import (
	"errors"
	"fmt"
	"strings"
)

// StateType defines the possible types of states in the statechart.
type StateType string

const (
	Atomic         StateType = "atomic"
	Compound       StateType = "compound"
	Parallel       StateType = "parallel"
	Final          StateType = "final"
	ShallowHistory StateType = "shallowHistory"
	DeepHistory    StateType = "deepHistory"
)

// IsHistory reports whether t is a history pseudo-state type.
func (t StateType) IsHistory() bool {
	return t == ShallowHistory || t == DeepHistory
}

// InvokeConfig starts a named actor while its state is active.
// ID defaults to Src.
type InvokeConfig struct {
	ID  string `json:"id,omitempty" yaml:"id,omitempty"`
	Src string `json:"src" yaml:"src"`
}

// InvokeID returns the effective invocation ID.
func (i InvokeConfig) InvokeID() string {
	if i.ID != "" {
		return i.ID
	}
	return i.Src
}

// StateConfig defines a state configuration, supporting hierarchical nesting.
//
// For history states Initial names the sibling entered when no history has
// been recorded yet; when empty the parent's initial child is used.
type StateConfig struct {
	ID       string                        `json:"id" yaml:"id"`
	Type     StateType                     `json:"type" yaml:"type"`
	Initial  string                        `json:"initial,omitempty" yaml:"initial,omitempty"`
	On       map[string][]TransitionConfig `json:"on,omitempty" yaml:"on,omitempty"`
	After    map[string][]TransitionConfig `json:"after,omitempty" yaml:"after,omitempty"`
	Entry    []ActionRef                   `json:"entry,omitempty" yaml:"entry,omitempty"`
	Exit     []ActionRef                   `json:"exit,omitempty" yaml:"exit,omitempty"`
	Invoke   []InvokeConfig                `json:"invoke,omitempty" yaml:"invoke,omitempty"`
	Children []*StateConfig                `json:"children,omitempty" yaml:"children,omitempty"`
}

// NewStateConfig creates a new StateConfig with ID and Type.
func NewStateConfig(id string, typ StateType) *StateConfig {
	return &StateConfig{
		ID:   id,
		Type: typ,
	}
}

// WithInitial sets the initial child state ID (compound) or default
// sibling (history).
func (s *StateConfig) WithInitial(initial string) *StateConfig {
	s.Initial = initial
	return s
}

// WithOn sets the event-to-transition map.
func (s *StateConfig) WithOn(on map[string][]TransitionConfig) *StateConfig {
	s.On = make(map[string][]TransitionConfig, len(on))
	for k, v := range on {
		s.On[k] = v
	}
	return s
}

// AddTransition adds a transition for an event.
func (s *StateConfig) AddTransition(event string, trans TransitionConfig) *StateConfig {
	if s.On == nil {
		s.On = make(map[string][]TransitionConfig)
	}
	if trans.Event == "" {
		trans.Event = event
	}
	s.On[event] = append(s.On[event], trans)
	return s
}

// AddDelayed adds a transition taken after delay elapses in this state.
// delay is a named delay implementation or a duration string like "500ms".
func (s *StateConfig) AddDelayed(delay string, trans TransitionConfig) *StateConfig {
	if s.After == nil {
		s.After = make(map[string][]TransitionConfig)
	}
	s.After[delay] = append(s.After[delay], trans)
	return s
}

// AddEntry adds an entry action.
func (s *StateConfig) AddEntry(action ActionRef) *StateConfig {
	s.Entry = append(s.Entry, action)
	return s
}

// AddExit adds an exit action.
func (s *StateConfig) AddExit(action ActionRef) *StateConfig {
	s.Exit = append(s.Exit, action)
	return s
}

// AddInvoke adds an actor invocation.
func (s *StateConfig) AddInvoke(inv InvokeConfig) *StateConfig {
	s.Invoke = append(s.Invoke, inv)
	return s
}

// WithChildren sets child states.
func (s *StateConfig) WithChildren(children []*StateConfig) *StateConfig {
	s.Children = children
	return s
}

// AddChild adds a child state.
func (s *StateConfig) AddChild(child *StateConfig) *StateConfig {
	s.Children = append(s.Children, child)
	return s
}

// State creates and adds a child state (atomic by default, or specified type).
// Returns the child for fluent chaining: parent.State("child").Transition("evt", "target").
func (s *StateConfig) State(id string, typ ...StateType) *StateConfig {
	t := Atomic
	if len(typ) > 0 {
		t = typ[0]
	}
	child := NewStateConfig(id, t)
	s.AddChild(child)
	return child
}

// Transition adds a simple transition from event to target.
// Usage: .Transition("evt", "target") or .Transition("evt", "target", TransitionConfig{Guard: fn}).
// A target given positionally wins over one in the TransitionConfig.
func (s *StateConfig) Transition(event, target string, transOpts ...TransitionConfig) *StateConfig {
	trans := TransitionConfig{}
	if len(transOpts) > 0 {
		trans = transOpts[0]
	}
	if target != "" {
		trans.Target = target
	}
	return s.AddTransition(event, trans)
}

// Child returns the direct child with the given ID, or nil.
func (s *StateConfig) Child(id string) *StateConfig {
	for _, c := range s.Children {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Validate performs recursive validation of the StateConfig tree.
func (s *StateConfig) Validate() error {
	if s.ID == "" {
		return errors.New("state ID is required")
	}
	if strings.Contains(s.ID, ".") {
		return fmt.Errorf("state ID %q cannot contain '.'", s.ID)
	}

	switch s.Type {
	case Atomic, Final:
		if s.Initial != "" {
			return fmt.Errorf("%s state %s cannot have Initial", s.Type, s.ID)
		}
		if len(s.Children) > 0 {
			return fmt.Errorf("%s state %s cannot have Children", s.Type, s.ID)
		}
		if s.Type == Final && (len(s.On) > 0 || len(s.After) > 0) {
			return fmt.Errorf("final state %s cannot have transitions", s.ID)
		}
	case Compound:
		if len(s.Children) == 0 {
			return fmt.Errorf("compound state %s requires Children", s.ID)
		}
		if s.Initial == "" {
			return fmt.Errorf("compound state %s requires Initial child", s.ID)
		}
		if s.Child(s.Initial) == nil {
			return fmt.Errorf("initial child %q not found in children of %s", s.Initial, s.ID)
		}
		if s.Child(s.Initial).Type.IsHistory() {
			return fmt.Errorf("initial child %q of %s cannot be a history state", s.Initial, s.ID)
		}
	case Parallel:
		if len(s.Children) == 0 {
			return fmt.Errorf("parallel state %s requires Children", s.ID)
		}
	case ShallowHistory, DeepHistory:
		if len(s.Children) > 0 {
			return fmt.Errorf("history state %s cannot have Children (restored at runtime)", s.ID)
		}
		if len(s.On) > 0 || len(s.After) > 0 || len(s.Entry) > 0 || len(s.Exit) > 0 || len(s.Invoke) > 0 {
			return fmt.Errorf("history state %s cannot have transitions, actions or invocations", s.ID)
		}
	default:
		return fmt.Errorf("invalid state type %q for state %s", s.Type, s.ID)
	}

	for event, transitions := range s.On {
		if strings.TrimSpace(event) == "" {
			return fmt.Errorf("empty event name in On map for state %s", s.ID)
		}
		for i := range transitions {
			if err := transitions[i].Validate(); err != nil {
				return fmt.Errorf("state %s event %q transition %d: %w", s.ID, event, i, err)
			}
		}
	}
	for delay, transitions := range s.After {
		if strings.TrimSpace(delay) == "" {
			return fmt.Errorf("empty delay in After map for state %s", s.ID)
		}
		for i := range transitions {
			if err := transitions[i].Validate(); err != nil {
				return fmt.Errorf("state %s delay %q transition %d: %w", s.ID, delay, i, err)
			}
		}
	}

	seenInvoke := make(map[string]struct{}, len(s.Invoke))
	for i, inv := range s.Invoke {
		if inv.Src == "" {
			return fmt.Errorf("invoke %d of state %s requires Src", i, s.ID)
		}
		if _, dup := seenInvoke[inv.InvokeID()]; dup {
			return fmt.Errorf("duplicate invoke ID %q in state %s", inv.InvokeID(), s.ID)
		}
		seenInvoke[inv.InvokeID()] = struct{}{}
	}

	seen := make(map[string]struct{}, len(s.Children))
	for i, child := range s.Children {
		if child == nil {
			return fmt.Errorf("child %d of %s is nil", i, s.ID)
		}
		if _, dup := seen[child.ID]; dup {
			return fmt.Errorf("duplicate child ID %q in %s", child.ID, s.ID)
		}
		seen[child.ID] = struct{}{}
		if child.Type.IsHistory() && child.Initial != "" && s.Child(child.Initial) == nil {
			return fmt.Errorf("history state %s default %q is not a sibling", child.ID, child.Initial)
		}
		if err := child.Validate(); err != nil {
			return fmt.Errorf("child %d (%s) of %s failed validation: %w", i, child.ID, s.ID, err)
		}
	}

	return nil
}
