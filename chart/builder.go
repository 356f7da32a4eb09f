package chart

import "fmt"

// Builder builds hierarchical MachineConfig values fluently.
type Builder struct {
	config MachineConfig
	err    error
}

// NewBuilder creates a Builder for machine id starting in the top-level
// state initial.
func NewBuilder(id, initial string) *Builder {
	return &Builder{
		config: MachineConfig{ID: id, Initial: initial, States: make(map[string]*StateConfig)},
	}
}

// Context sets the machine's initial extended state.
func (b *Builder) Context(data map[string]any) *Builder {
	b.config.Context = data
	return b
}

// Compound starts a top-level compound state.
func (b *Builder) Compound(id, initial string) *StateBuilder {
	return b.top(NewStateConfig(id, Compound).WithInitial(initial))
}

// Parallel starts a top-level parallel state.
func (b *Builder) Parallel(id string) *StateBuilder {
	return b.top(NewStateConfig(id, Parallel))
}

// Atomic starts a top-level atomic state.
func (b *Builder) Atomic(id string) *StateBuilder {
	return b.top(NewStateConfig(id, Atomic))
}

// Final starts a top-level final state.
func (b *Builder) Final(id string) *StateBuilder {
	return b.top(NewStateConfig(id, Final))
}

func (b *Builder) top(s *StateConfig) *StateBuilder {
	if _, dup := b.config.States[s.ID]; dup && b.err == nil {
		b.err = fmt.Errorf("duplicate top-level state %q", s.ID)
	}
	b.config.States[s.ID] = s
	return &StateBuilder{state: s, b: b}
}

// Build validates and returns the configuration.
func (b *Builder) Build() (MachineConfig, error) {
	if b.err != nil {
		return MachineConfig{}, b.err
	}
	if err := b.config.Validate(); err != nil {
		return MachineConfig{}, err
	}
	return b.config, nil
}

// StateBuilder configures one state; nesting methods return the child.
type StateBuilder struct {
	state  *StateConfig
	parent *StateBuilder
	b      *Builder
}

// Config exposes the underlying StateConfig.
func (sb *StateBuilder) Config() *StateConfig {
	return sb.state
}

// Transition adds a transition.
func (sb *StateBuilder) Transition(event, target string, opts ...TransitionConfig) *StateBuilder {
	sb.state.Transition(event, target, opts...)
	return sb
}

// After adds a delayed transition.
func (sb *StateBuilder) After(delay, target string, opts ...TransitionConfig) *StateBuilder {
	trans := TransitionConfig{}
	if len(opts) > 0 {
		trans = opts[0]
	}
	if target != "" {
		trans.Target = target
	}
	sb.state.AddDelayed(delay, trans)
	return sb
}

// Entry appends entry actions.
func (sb *StateBuilder) Entry(actions ...ActionRef) *StateBuilder {
	sb.state.Entry = append(sb.state.Entry, actions...)
	return sb
}

// Exit appends exit actions.
func (sb *StateBuilder) Exit(actions ...ActionRef) *StateBuilder {
	sb.state.Exit = append(sb.state.Exit, actions...)
	return sb
}

// Invoke starts actor src while this state is active.
func (sb *StateBuilder) Invoke(id, src string) *StateBuilder {
	sb.state.AddInvoke(InvokeConfig{ID: id, Src: src})
	return sb
}

// Compound nests a compound child.
func (sb *StateBuilder) Compound(id, initial string) *StateBuilder {
	return sb.child(sb.state.State(id, Compound).WithInitial(initial))
}

// Parallel nests a parallel child.
func (sb *StateBuilder) Parallel(id string) *StateBuilder {
	return sb.child(sb.state.State(id, Parallel))
}

// Atomic nests an atomic child.
func (sb *StateBuilder) Atomic(id string) *StateBuilder {
	return sb.child(sb.state.State(id))
}

// Final nests a final child.
func (sb *StateBuilder) Final(id string) *StateBuilder {
	return sb.child(sb.state.State(id, Final))
}

// History nests a history pseudo-state. fallback names the sibling entered
// when nothing has been recorded yet; empty means the parent's initial.
func (sb *StateBuilder) History(id string, deep bool, fallback string) *StateBuilder {
	typ := ShallowHistory
	if deep {
		typ = DeepHistory
	}
	return sb.child(sb.state.State(id, typ).WithInitial(fallback))
}

func (sb *StateBuilder) child(s *StateConfig) *StateBuilder {
	return &StateBuilder{state: s, parent: sb, b: sb.b}
}

// Up returns the parent builder, or sb itself at the top level.
func (sb *StateBuilder) Up() *StateBuilder {
	if sb.parent != nil {
		return sb.parent
	}
	return sb
}

// Done returns the machine builder.
func (sb *StateBuilder) Done() *Builder {
	return sb.b
}
