package machinestore

import (
	"github.com/comalice/machinestore/chart"
	"github.com/comalice/machinestore/interpreter"
)

// Options holds the overrides accepted by UseMachine. Nil fields are not
// supplied and leave the machine's own values in place.
type Options struct {
	Context map[string]any
	Guards  map[string]chart.GuardFunc
	Actions map[string]chart.ActionFunc
	Actors  map[string]interpreter.Actor
	Delays  map[string]interpreter.Delay

	// State rehydrates the interpreter from a previously captured snapshot.
	State *interpreter.Snapshot

	// Interpreter options are passed to interpreter.New unchanged.
	Interpreter []interpreter.Option
}

// Option configures UseMachine.
type Option func(*Options)

// WithContext merges ctx over the machine's context seed.
func WithContext(ctx map[string]any) Option {
	return func(o *Options) {
		o.Context = ctx
	}
}

// WithGuards supplies guard implementations by name.
func WithGuards(guards map[string]chart.GuardFunc) Option {
	return func(o *Options) {
		o.Guards = guards
	}
}

// WithActions supplies action implementations by name.
func WithActions(actions map[string]chart.ActionFunc) Option {
	return func(o *Options) {
		o.Actions = actions
	}
}

// WithActors supplies invoked actor implementations by name.
func WithActors(actors map[string]interpreter.Actor) Option {
	return func(o *Options) {
		o.Actors = actors
	}
}

// WithDelays supplies named delay implementations.
func WithDelays(delays map[string]interpreter.Delay) Option {
	return func(o *Options) {
		o.Delays = delays
	}
}

// WithState resumes the interpreter from snapshot instead of the machine's
// initial state.
func WithState(snapshot interpreter.Snapshot) Option {
	return func(o *Options) {
		o.State = &snapshot
	}
}

// WithInterpreterOptions appends options for interpreter.New.
func WithInterpreterOptions(opts ...interpreter.Option) Option {
	return func(o *Options) {
		o.Interpreter = append(o.Interpreter, opts...)
	}
}

func (o Options) implementations() interpreter.Implementations {
	return interpreter.Implementations{
		Context: o.Context,
		Guards:  o.Guards,
		Actions: o.Actions,
		Actors:  o.Actors,
		Delays:  o.Delays,
	}
}
