package interpreter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/comalice/machinestore/chart"
)

// Pluggable component interfaces.

type ActionRunner interface {
	Run(ctx *chart.Context, action chart.ActionRef, event chart.Event) error
}

type GuardEvaluator interface {
	Eval(ctx *chart.Context, guard chart.GuardRef, event chart.Event) bool
}

type EventSource interface {
	Events() <-chan chart.Event
}

type Persister interface {
	Save(ctx context.Context, snapshot Snapshot) error
	Load(ctx context.Context, machineID string) (Snapshot, error)
}

// TransitionMetadata describes one taken transition.
type TransitionMetadata struct {
	MachineID     string    `json:"machineID" yaml:"machineID"`
	InterpreterID string    `json:"interpreterID" yaml:"interpreterID"`
	Transition    string    `json:"transition" yaml:"transition"`
	Timestamp     time.Time `json:"timestamp" yaml:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, event chart.Event, metadata TransitionMetadata) error
	Close() error
}

// Option configures an Interpreter via the functional options pattern.
type Option func(*Interpreter)

// WithID sets the interpreter ID. Defaults to a random UUID.
func WithID(id string) Option {
	return func(i *Interpreter) {
		i.id = id
	}
}

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(i *Interpreter) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithQueueSize configures the external event queue buffer size.
func WithQueueSize(size int) Option {
	return func(i *Interpreter) {
		if size > 0 {
			i.queueSize = size
		}
	}
}

// WithActionRunner configures a custom ActionRunner.
func WithActionRunner(r ActionRunner) Option {
	return func(i *Interpreter) {
		i.actionRunner = r
	}
}

// WithGuardEvaluator configures a custom GuardEvaluator.
func WithGuardEvaluator(e GuardEvaluator) Option {
	return func(i *Interpreter) {
		i.guardEval = e
	}
}

// WithEventSource feeds events from s into the interpreter while it runs.
func WithEventSource(s EventSource) Option {
	return func(i *Interpreter) {
		i.eventSource = s
	}
}

// WithPersister saves every changed snapshot through p.
func WithPersister(p Persister) Option {
	return func(i *Interpreter) {
		i.persister = p
	}
}

// WithPublisher publishes every taken transition through p.
func WithPublisher(p Publisher) Option {
	return func(i *Interpreter) {
		i.publisher = p
	}
}
