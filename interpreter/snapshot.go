package interpreter

import (
	"slices"
	"strings"
	"time"

	"github.com/comalice/machinestore/chart"
)

// Status is the lifecycle state of an Interpreter.
type Status int32

const (
	NotStarted Status = iota
	Running
	Done
	Stopped
)

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case Running:
		return "running"
	case Done:
		return "done"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Snapshot is the serializable state of an interpreter after a step.
// Changed is transient and never persisted.
type Snapshot struct {
	MachineID string         `json:"machineID" yaml:"machineID"`
	Value     []string       `json:"value" yaml:"value"`
	Context   map[string]any `json:"context,omitempty" yaml:"context,omitempty"`
	Event     chart.Event    `json:"event" yaml:"event"`
	Done      bool           `json:"done,omitempty" yaml:"done,omitempty"`
	Changed   bool           `json:"-" yaml:"-"`
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"`
}

// Matches reports whether the state at path is active: path is an active
// leaf or an ancestor of one.
func (s Snapshot) Matches(path string) bool {
	for _, leaf := range s.Value {
		if leaf == path || strings.HasPrefix(leaf, path+".") {
			return true
		}
	}
	return false
}

// String renders the active value, e.g. "traffic.red".
func (s Snapshot) String() string {
	return strings.Join(s.Value, ", ")
}

func sameValue(a, b []string) bool {
	return slices.Equal(a, b)
}
