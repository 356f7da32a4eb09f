package machinestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/comalice/machinestore/chart"
	"github.com/comalice/machinestore/interpreter"
	"github.com/comalice/machinestore/lifecycle"
	"github.com/comalice/machinestore/store"
)

const waitTimeout = 2 * time.Second

func increment(ctx *chart.Context, _ chart.Event) {
	v, _ := ctx.Get("count")
	n, _ := v.(int)
	ctx.Set("count", n+1)
}

// trafficMachine cycles green -> yellow -> red on TIMER, counting green exits.
func trafficMachine(t *testing.T) *interpreter.Machine {
	t.Helper()
	b := chart.NewBuilder("light", "green").Context(map[string]any{"count": 0})
	b.Atomic("green").Transition("TIMER", "yellow", chart.TransitionConfig{Actions: []chart.ActionRef{"increment"}})
	b.Atomic("yellow").Transition("TIMER", "red")
	b.Atomic("red").
		Transition("TIMER", "green", chart.TransitionConfig{Guard: "canGo"}).
		After("wait", "green")
	config, err := b.Build()
	require.NoError(t, err)

	m, err := interpreter.NewMachine(config, interpreter.Implementations{
		Guards:  map[string]chart.GuardFunc{"canGo": func(*chart.Context, chart.Event) bool { return true }},
		Actions: map[string]chart.ActionFunc{"increment": increment},
		Delays:  map[string]interpreter.Delay{"wait": func(*chart.Context, chart.Event) time.Duration { return time.Hour }},
	})
	require.NoError(t, err)
	return m
}

// recordingScope counts registered hooks.
type recordingScope struct {
	hooks []func()
}

func (s *recordingScope) OnDestroy(fn func()) {
	s.hooks = append(s.hooks, fn)
}

func use(t *testing.T, m *interpreter.Machine, opts ...Option) (*Binding, *lifecycle.Component) {
	t.Helper()
	component := lifecycle.NewComponent()
	t.Cleanup(component.Destroy)
	b, err := UseMachine(component, m, opts...)
	require.NoError(t, err)
	return b, component
}

func subscribe(t *testing.T, r store.Readable[interpreter.Snapshot]) <-chan interpreter.Snapshot {
	t.Helper()
	ch := make(chan interpreter.Snapshot, 100)
	unsubscribe := r.Subscribe(func(s interpreter.Snapshot) { ch <- s })
	t.Cleanup(unsubscribe)
	return ch
}

func next(t *testing.T, ch <-chan interpreter.Snapshot) interpreter.Snapshot {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for snapshot")
		return interpreter.Snapshot{}
	}
}

func TestUseMachine_StartsFromInitialState(t *testing.T) {
	b, _ := use(t, trafficMachine(t))

	assert.Equal(t, interpreter.Running, b.Service.Status())
	s := store.Get(b.State)
	assert.Equal(t, []string{"green"}, s.Value)
	assert.Equal(t, b.Service.GetSnapshot().Value, s.Value)
}

func TestUseMachine_Rehydrates(t *testing.T) {
	snapshot := interpreter.Snapshot{
		MachineID: "light",
		Value:     []string{"red"},
		Context:   map[string]any{"count": 4},
	}
	b, _ := use(t, trafficMachine(t), WithState(snapshot))

	s := store.Get(b.State)
	assert.Equal(t, []string{"red"}, s.Value)
	assert.Equal(t, map[string]any{"count": 4}, s.Context)

	ch := subscribe(t, b.State)
	assert.Equal(t, []string{"red"}, next(t, ch).Value)
	require.NoError(t, b.Send(chart.NewEvent("TIMER", nil)))
	assert.Equal(t, []string{"green"}, next(t, ch).Value)
}

func TestUseMachine_OverridesReachTheMachine(t *testing.T) {
	base := trafficMachine(t)
	blocked := func(*chart.Context, chart.Event) bool { return false }
	var calls int
	counting := func(ctx *chart.Context, evt chart.Event) {
		calls++
		increment(ctx, evt)
	}

	b, _ := use(t, base,
		WithContext(map[string]any{"count": 100, "owner": "test"}),
		WithGuards(map[string]chart.GuardFunc{"canGo": blocked}),
		WithActions(map[string]chart.ActionFunc{"increment": counting}),
	)

	resolved := b.Service.Machine()
	assert.Equal(t, map[string]any{"count": 100, "owner": "test"}, resolved.Context())
	assert.Contains(t, resolved.Implementations().Delays, "wait", "unsupplied fields are unchanged")
	assert.Equal(t, map[string]any{"count": 0}, base.Context(), "the original machine is not modified")

	ch := subscribe(t, b.State)
	next(t, ch)
	require.NoError(t, b.Send(chart.NewEvent("TIMER", nil)))
	s := next(t, ch)
	assert.Equal(t, []string{"yellow"}, s.Value)
	assert.Equal(t, 101, s.Context["count"])
	assert.Equal(t, 1, calls)

	require.NoError(t, b.Send(chart.NewEvent("TIMER", nil)))
	assert.Equal(t, []string{"red"}, next(t, ch).Value)
	require.NoError(t, b.Send(chart.NewEvent("TIMER", nil)))
	require.NoError(t, b.Send(chart.NewEvent("TIMER", nil)))
	assert.Never(t, func() bool { return len(ch) > 0 }, 50*time.Millisecond, 10*time.Millisecond,
		"the overriding guard blocks red -> green")
}

func TestUseMachine_ActorsAndDelays(t *testing.T) {
	b := chart.NewBuilder("loader", "loading")
	b.Atomic("loading").
		Invoke("load", "fetch").
		Transition(interpreter.DoneInvokeEvent("load"), "cooling")
	b.Atomic("cooling").After("cooldown", "ready")
	b.Atomic("ready")
	config, err := b.Build()
	require.NoError(t, err)
	m, err := interpreter.NewMachine(config, interpreter.Implementations{})
	require.NoError(t, err)

	binding, _ := use(t, m,
		WithActors(map[string]interpreter.Actor{
			"fetch": func(context.Context, func(chart.Event) error) (any, error) { return "ok", nil },
		}),
		WithDelays(map[string]interpreter.Delay{
			"cooldown": func(*chart.Context, chart.Event) time.Duration { return time.Millisecond },
		}),
	)

	ch := subscribe(t, binding.State)
	deadline := time.After(waitTimeout)
	for {
		select {
		case s := <-ch:
			if s.Matches("ready") {
				return
			}
		case <-deadline:
			t.Fatal("machine never reached ready")
		}
	}
}

func TestUseMachine_InterpreterOptionsPassThrough(t *testing.T) {
	b, _ := use(t, trafficMachine(t), WithInterpreterOptions(interpreter.WithID("light-1")))
	assert.Equal(t, "light-1", b.Service.ID())
}

func TestUseMachine_StopsExactlyOnce(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	component := lifecycle.NewComponent()
	b, err := UseMachine(component, trafficMachine(t),
		WithInterpreterOptions(interpreter.WithLogger(zap.New(core))),
	)
	require.NoError(t, err)

	component.Destroy()
	component.Destroy()

	assert.Equal(t, interpreter.Stopped, b.Service.Status())
	assert.Equal(t, 1, logs.FilterMessage("interpreter stopped").Len())
	assert.Zero(t, logs.FilterMessage("stop ignored, interpreter not running").Len())
}

func TestUseMachine_RegistersOneHook(t *testing.T) {
	scope := &recordingScope{}
	b, err := UseMachine(scope, trafficMachine(t))
	require.NoError(t, err)
	require.Len(t, scope.hooks, 1)

	assert.Equal(t, interpreter.Running, b.Service.Status())
	scope.hooks[0]()
	assert.Equal(t, interpreter.Stopped, b.Service.Status())
}

func TestUseMachine_SubscribeIsSynchronous(t *testing.T) {
	b, _ := use(t, trafficMachine(t))

	var got []interpreter.Snapshot
	unsubscribe := b.State.Subscribe(func(s interpreter.Snapshot) { got = append(got, s) })
	defer unsubscribe()

	require.Len(t, got, 1)
	assert.Equal(t, []string{"green"}, got[0].Value)
}

func TestUseMachine_OnlyChangedSnapshotsAreForwarded(t *testing.T) {
	b, _ := use(t, trafficMachine(t))
	ch := subscribe(t, b.State)
	assert.Equal(t, []string{"green"}, next(t, ch).Value)

	require.NoError(t, b.Send(chart.NewEvent("NOPE", nil)))
	require.NoError(t, b.Send(chart.NewEvent("NOPE", nil)))
	require.NoError(t, b.Send(chart.NewEvent("TIMER", nil)))

	s := next(t, ch)
	assert.Equal(t, []string{"yellow"}, s.Value, "unchanged snapshots are not forwarded")
	assert.True(t, s.Changed)
}

func TestUseMachine_LateSubscriberSeesCurrentSnapshot(t *testing.T) {
	b, _ := use(t, trafficMachine(t))
	first := subscribe(t, b.State)
	next(t, first)

	require.NoError(t, b.Send(chart.NewEvent("TIMER", nil)))
	next(t, first)

	second := subscribe(t, b.State)
	assert.Equal(t, []string{"yellow"}, next(t, second).Value)
}

func TestUseMachine_UnsubscribeDetachesInterpreter(t *testing.T) {
	b, _ := use(t, trafficMachine(t))
	assert.Zero(t, b.Service.SubscriberCount(), "nothing is attached before the store has subscribers")

	unsubA := b.State.Subscribe(func(interpreter.Snapshot) {})
	unsubB := b.State.Subscribe(func(interpreter.Snapshot) {})
	assert.Equal(t, 1, b.Service.SubscriberCount())

	unsubA()
	assert.Equal(t, 1, b.Service.SubscriberCount())
	unsubB()
	assert.Zero(t, b.Service.SubscriberCount())
}

func TestUseMachine_ResubscribeAfterMissedUpdates(t *testing.T) {
	b, _ := use(t, trafficMachine(t))
	unsubscribe := b.State.Subscribe(func(interpreter.Snapshot) {})
	unsubscribe()

	done := make(chan struct{})
	sub := b.Service.Subscribe(func(s interpreter.Snapshot) {
		if s.Matches("yellow") {
			close(done)
		}
	})
	require.NoError(t, b.Send(chart.NewEvent("TIMER", nil)))
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("interpreter did not process TIMER")
	}
	sub.Unsubscribe()

	assert.Equal(t, []string{"yellow"}, store.Get(b.State).Value)
}

func TestUseMachine_SendForwardsEvents(t *testing.T) {
	b, component := use(t, trafficMachine(t))
	ch := subscribe(t, b.State)
	next(t, ch)

	payload := &struct{ N int }{N: 7}
	evt := chart.NewEvent("TIMER", payload)
	require.NoError(t, b.Send(evt))
	s := next(t, ch)
	assert.Equal(t, "TIMER", s.Event.Type)
	assert.Same(t, payload, s.Event.Data)

	component.Destroy()
	err := b.Send(evt)
	assert.ErrorIs(t, err, interpreter.ErrNotRunning)
	assert.Equal(t, b.Service.Send(evt).Error(), err.Error())
}

func TestUseMachine_Errors(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		is   error
	}{
		{
			name: "nil action",
			opts: []Option{WithActions(map[string]chart.ActionFunc{"increment": nil})},
		},
		{
			name: "unknown state",
			opts: []Option{WithState(interpreter.Snapshot{Value: []string{"blue"}})},
			is:   interpreter.ErrInvalidState,
		},
		{
			name: "other machine",
			opts: []Option{WithState(interpreter.Snapshot{MachineID: "door", Value: []string{"red"}})},
			is:   interpreter.ErrMachineMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope := &recordingScope{}
			b, err := UseMachine(scope, trafficMachine(t), tt.opts...)
			require.Error(t, err)
			assert.Nil(t, b)
			assert.Empty(t, scope.hooks, "nothing is registered when start fails")
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}
