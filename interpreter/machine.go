package interpreter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/comalice/machinestore/chart"
)

// Actor is long-running logic invoked while a state is active. ctx is
// cancelled when the state exits or the interpreter stops; send delivers
// events back to the interpreter. The returned output becomes the data of
// the done.invoke event.
type Actor func(ctx context.Context, send func(chart.Event) error) (any, error)

// Delay computes the duration of a named delayed transition.
type Delay func(ctx *chart.Context, evt chart.Event) time.Duration

// Implementations supplies the named pieces a machine definition refers to,
// plus the context seed. Nil maps mean "not supplied".
type Implementations struct {
	Context map[string]any
	Guards  map[string]chart.GuardFunc
	Actions map[string]chart.ActionFunc
	Actors  map[string]Actor
	Delays  map[string]Delay
}

func (impl Implementations) validate() error {
	for name, g := range impl.Guards {
		if name == "" || g == nil {
			return fmt.Errorf("guard %q: missing name or implementation", name)
		}
	}
	for name, a := range impl.Actions {
		if name == "" || a == nil {
			return fmt.Errorf("action %q: missing name or implementation", name)
		}
	}
	for name, a := range impl.Actors {
		if name == "" || a == nil {
			return fmt.Errorf("actor %q: missing name or implementation", name)
		}
	}
	for name, d := range impl.Delays {
		if name == "" || d == nil {
			return fmt.Errorf("delay %q: missing name or implementation", name)
		}
	}
	return nil
}

// Machine is an immutable statechart definition bound to its
// implementations.
type Machine struct {
	config  chart.MachineConfig
	context map[string]any
	impl    Implementations

	// Derived from config, shared between machines created by Provide.
	states      map[string]*chart.StateConfig
	order       map[string]int
	transitions map[string]map[string][]chart.TransitionConfig
}

// NewMachine validates config and impl and returns the machine definition.
// impl.Context is merged over config.Context.
func NewMachine(config chart.MachineConfig, impl Implementations) (*Machine, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("machine config: %w", err)
	}
	if err := impl.validate(); err != nil {
		return nil, fmt.Errorf("machine %q implementations: %w", config.ID, err)
	}

	m := &Machine{
		config:      config,
		context:     mergeMap(config.Context, impl.Context),
		states:      make(map[string]*chart.StateConfig),
		order:       make(map[string]int),
		transitions: make(map[string]map[string][]chart.TransitionConfig),
	}
	m.impl = Implementations{
		Guards:  mergeMap[chart.GuardFunc](nil, impl.Guards),
		Actions: mergeMap[chart.ActionFunc](nil, impl.Actions),
		Actors:  mergeMap[Actor](nil, impl.Actors),
		Delays:  mergeMap[Delay](nil, impl.Delays),
	}

	config.Walk(func(path string, state *chart.StateConfig) bool {
		m.states[path] = state
		m.order[path] = len(m.order)

		events := make(map[string][]chart.TransitionConfig, len(state.On)+len(state.After))
		for event, list := range state.On {
			sorted := append([]chart.TransitionConfig(nil), list...)
			chart.SortTransitions(sorted)
			events[event] = sorted
		}
		for delay, list := range state.After {
			sorted := append([]chart.TransitionConfig(nil), list...)
			chart.SortTransitions(sorted)
			events[AfterEvent(delay, path)] = sorted
		}
		if len(events) > 0 {
			m.transitions[path] = events
		}
		return true
	})

	return m, nil
}

// ID returns the machine ID.
func (m *Machine) ID() string {
	return m.config.ID
}

// Config returns the machine's configuration (shallow copy).
func (m *Machine) Config() chart.MachineConfig {
	return m.config
}

// Context returns a copy of the context seed.
func (m *Machine) Context() map[string]any {
	return mergeMap(nil, m.context)
}

// Implementations returns a copy of the machine's implementations.
func (m *Machine) Implementations() Implementations {
	return Implementations{
		Context: m.Context(),
		Guards:  mergeMap[chart.GuardFunc](nil, m.impl.Guards),
		Actions: mergeMap[chart.ActionFunc](nil, m.impl.Actions),
		Actors:  mergeMap[Actor](nil, m.impl.Actors),
		Delays:  mergeMap[Delay](nil, m.impl.Delays),
	}
}

// Provide returns a new machine with impl merged over m's implementations.
// Each supplied map is merged key by key; nil maps leave the corresponding
// field unchanged. m itself is not modified.
func (m *Machine) Provide(impl Implementations) (*Machine, error) {
	if err := impl.validate(); err != nil {
		return nil, fmt.Errorf("machine %q implementations: %w", m.config.ID, err)
	}
	return &Machine{
		config:  m.config,
		context: mergeMap(m.context, impl.Context),
		impl: Implementations{
			Guards:  mergeMap(m.impl.Guards, impl.Guards),
			Actions: mergeMap(m.impl.Actions, impl.Actions),
			Actors:  mergeMap(m.impl.Actors, impl.Actors),
			Delays:  mergeMap(m.impl.Delays, impl.Delays),
		},
		states:      m.states,
		order:       m.order,
		transitions: m.transitions,
	}, nil
}

// InitialValue returns the active leaf paths of the default initial state.
func (m *Machine) InitialValue() []string {
	active := make(map[string]bool)
	for _, p := range m.entrySet("", m.config.Initial, nil) {
		active[p] = true
	}
	return m.leaves(active)
}

// CreateState validates a persisted snapshot against this machine and
// returns a normalized copy suitable for Interpreter.Start.
// A nil snapshot context falls back to the machine's context seed.
func (m *Machine) CreateState(s Snapshot) (Snapshot, error) {
	if s.MachineID != "" && s.MachineID != m.config.ID {
		return Snapshot{}, fmt.Errorf("%w: have %q, snapshot %q", ErrMachineMismatch, m.config.ID, s.MachineID)
	}
	if len(s.Value) == 0 {
		return Snapshot{}, fmt.Errorf("%w: empty value", ErrInvalidState)
	}

	active, err := m.configuration(s.Value)
	if err != nil {
		return Snapshot{}, err
	}

	ctx := s.Context
	if ctx == nil {
		ctx = m.context
	}
	ts := s.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return Snapshot{
		MachineID: m.config.ID,
		Value:     m.leaves(active),
		Context:   mergeMap(nil, ctx),
		Event:     s.Event,
		Done:      m.isDone(active),
		Timestamp: ts,
	}, nil
}

// configuration expands leaf paths into a full active configuration and
// checks that it is consistent with the state hierarchy.
func (m *Machine) configuration(value []string) (map[string]bool, error) {
	active := make(map[string]bool)
	for _, leaf := range value {
		state, ok := m.states[leaf]
		if !ok {
			return nil, fmt.Errorf("%w: unknown state %q", ErrInvalidState, leaf)
		}
		if state.Type != chart.Atomic && state.Type != chart.Final {
			return nil, fmt.Errorf("%w: %q is not an atomic or final state", ErrInvalidState, leaf)
		}
		for _, p := range getAncestors(leaf) {
			active[p] = true
		}
	}

	top := 0
	for id := range m.config.States {
		if active[id] {
			top++
		}
	}
	if top != 1 {
		return nil, fmt.Errorf("%w: %d active top-level states", ErrInvalidState, top)
	}

	for path := range active {
		state := m.states[path]
		switch state.Type {
		case chart.Compound:
			n := 0
			for _, c := range state.Children {
				if active[path+"."+c.ID] {
					n++
				}
			}
			if n != 1 {
				return nil, fmt.Errorf("%w: compound state %q has %d active children", ErrInvalidState, path, n)
			}
		case chart.Parallel:
			for _, c := range state.Children {
				if !c.Type.IsHistory() && !active[path+"."+c.ID] {
					return nil, fmt.Errorf("%w: region %q of parallel state %q is inactive", ErrInvalidState, c.ID, path)
				}
			}
		}
	}
	return active, nil
}

// leaves returns the sorted active atomic and final states.
func (m *Machine) leaves(active map[string]bool) []string {
	var out []string
	for p := range active {
		if t := m.states[p].Type; t == chart.Atomic || t == chart.Final {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (m *Machine) isDone(active map[string]bool) bool {
	for id, state := range m.config.States {
		if active[id] && state.Type == chart.Final {
			return true
		}
	}
	return false
}

// transitionDomain returns the state whose descendants are exited and
// re-entered by an external transition from source to target. Targets
// inside the source do not exit it; self and ancestor targets are
// re-entered. The domain is never a parallel state.
func (m *Machine) transitionDomain(source, target string) string {
	cp := commonAncestor(source, target)
	var domain string
	switch {
	case cp == source && target != source:
		domain = source
	case cp == source || cp == target:
		domain = parentPath(cp)
	default:
		domain = cp
	}
	for domain != "" && m.states[domain].Type == chart.Parallel {
		domain = parentPath(domain)
	}
	return domain
}

// entrySet computes the states entered by targeting target from domain,
// ordered outermost first. history holds recorded configurations keyed by
// history state path.
func (m *Machine) entrySet(domain, target string, history map[string][]string) []string {
	set := make(map[string]bool)
	m.addEntryPath(domain, target, history, set)
	return m.sortEntry(set)
}

func (m *Machine) addEntryPath(domain, target string, history map[string][]string, set map[string]bool) {
	state := m.states[target]
	if state.Type.IsHistory() {
		parent := parentPath(target)
		if recorded, ok := history[target]; ok && len(recorded) > 0 {
			for _, p := range recorded {
				m.addEntryPath(domain, p, history, set)
			}
			return
		}
		fallback := state.Initial
		if fallback == "" {
			fallback = m.states[parent].Initial
		}
		m.addEntryPath(domain, parent+"."+fallback, history, set)
		return
	}

	var path []string
	for _, p := range getAncestors(target) {
		if isDescendant(p, domain) {
			path = append(path, p)
			set[p] = true
		}
	}
	for _, p := range path {
		if p != target && m.states[p].Type == chart.Parallel {
			m.addDescendants(p, history, set)
		}
	}
	m.addDescendants(target, history, set)
}

// addDescendants adds the default descendants of an entered state: the
// initial child of compound states and every region of parallel states.
func (m *Machine) addDescendants(path string, history map[string][]string, set map[string]bool) {
	state := m.states[path]
	switch state.Type {
	case chart.Compound:
		for _, c := range state.Children {
			if set[path+"."+c.ID] {
				return
			}
		}
		child := path + "." + state.Initial
		set[child] = true
		m.addDescendants(child, history, set)
	case chart.Parallel:
		for _, c := range state.Children {
			child := path + "." + c.ID
			if c.Type.IsHistory() || set[child] {
				continue
			}
			set[child] = true
			m.addDescendants(child, history, set)
		}
	}
}

func (m *Machine) sortEntry(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := depth(out[i]), depth(out[j])
		if di != dj {
			return di < dj
		}
		return m.order[out[i]] < m.order[out[j]]
	})
	return out
}

// sortExit orders paths innermost first, reverse document order.
func (m *Machine) sortExit(paths []string) {
	sort.Slice(paths, func(i, j int) bool {
		di, dj := depth(paths[i]), depth(paths[j])
		if di != dj {
			return di > dj
		}
		return m.order[paths[i]] > m.order[paths[j]]
	})
}

func (m *Machine) lookupDelay(name string) (Delay, bool) {
	d, ok := m.impl.Delays[name]
	return d, ok
}

func (m *Machine) lookupActor(name string) (Actor, bool) {
	a, ok := m.impl.Actors[name]
	return a, ok
}

// resolveAction maps a named action to its implementation; other refs are
// returned unchanged for the ActionRunner to interpret.
func (m *Machine) resolveAction(ref chart.ActionRef) chart.ActionRef {
	if name, ok := ref.(string); ok {
		if fn, found := m.impl.Actions[name]; found {
			return fn
		}
	}
	return ref
}

// resolveGuard maps a named guard to its implementation; other refs are
// returned unchanged for the GuardEvaluator to interpret.
func (m *Machine) resolveGuard(ref chart.GuardRef) chart.GuardRef {
	if name, ok := ref.(string); ok {
		if fn, found := m.impl.Guards[name]; found {
			return fn
		}
	}
	return ref
}

var errNoDelay = errors.New("not a named delay or duration")

// delayFor resolves a delay key to a duration.
func (m *Machine) delayFor(key string, ctx *chart.Context, evt chart.Event) (time.Duration, error) {
	if d, ok := m.lookupDelay(key); ok {
		return d(ctx, evt), nil
	}
	d, err := time.ParseDuration(key)
	if err != nil {
		return 0, fmt.Errorf("delay %q: %w", key, errNoDelay)
	}
	return d, nil
}

// mergeMap returns a copy of base with override applied on top. Both nil
// yields nil so that "not supplied" survives the copy.
func mergeMap[V any](base, override map[string]V) map[string]V {
	if base == nil && override == nil {
		return nil
	}
	out := make(map[string]V, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
