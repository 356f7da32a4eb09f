package chart

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ActionRef references an action: either a name resolved against the
// machine's implementations or an inline ActionFunc.
type ActionRef any

// GuardRef references a guard condition: either a name (or expression)
// resolved by the interpreter, or an inline GuardFunc.
type GuardRef any

// ActionFunc is an inline action. It may mutate ctx.
type ActionFunc func(ctx *Context, evt Event)

// GuardFunc is an inline guard condition.
type GuardFunc func(ctx *Context, evt Event) bool

// TransitionConfig defines a single transition triggered by an Event.
// An empty Target makes the transition targetless: its actions run without
// exiting or entering any state.
type TransitionConfig struct {
	Event    string      `json:"event,omitempty" yaml:"event,omitempty"`
	Guard    GuardRef    `json:"guard,omitempty" yaml:"guard,omitempty"`
	Target   string      `json:"target,omitempty" yaml:"target,omitempty"`
	Actions  []ActionRef `json:"actions,omitempty" yaml:"actions,omitempty"`
	Priority int         `json:"priority,omitempty" yaml:"priority,omitempty"` // higher = evaluated first
}

// Validate checks target path syntax and priority.
func (t *TransitionConfig) Validate() error {
	if t.Priority < 0 {
		return errors.New("priority must be non-negative")
	}
	if t.Target == "" {
		return nil
	}
	return ValidatePath(t.Target)
}

// ValidatePath checks a dotted state path: non-empty segments of
// alphanumerics, underscores and hyphens.
func ValidatePath(path string) error {
	for i, seg := range strings.Split(path, ".") {
		if seg == "" {
			return fmt.Errorf("invalid path %q: empty segment at index %d", path, i)
		}
		for _, r := range seg {
			if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-') {
				return fmt.Errorf("invalid path %q: invalid character '%c' at index %d", path, r, i)
			}
		}
	}
	return nil
}

// SortTransitions sorts the slice in place by Priority descending (highest
// first), keeping document order among equal priorities.
func SortTransitions(transitions []TransitionConfig) {
	sort.SliceStable(transitions, func(i, j int) bool {
		return transitions[i].Priority > transitions[j].Priority
	})
}
