package interpreter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/machinestore/chart"
)

func trafficConfig(t *testing.T) chart.MachineConfig {
	t.Helper()
	b := chart.NewBuilder("light", "green").Context(map[string]any{"count": 0})
	b.Atomic("green").Transition("TIMER", "yellow", chart.TransitionConfig{Actions: []chart.ActionRef{"increment"}})
	b.Atomic("yellow").Transition("TIMER", "red")
	b.Atomic("red").Transition("TIMER", "green", chart.TransitionConfig{Guard: "canGo"})
	config, err := b.Build()
	require.NoError(t, err)
	return config
}

func increment(ctx *chart.Context, _ chart.Event) {
	v, _ := ctx.Get("count")
	n, _ := v.(int)
	ctx.Set("count", n+1)
}

func trafficMachine(t *testing.T) *Machine {
	t.Helper()
	m, err := NewMachine(trafficConfig(t), Implementations{
		Guards:  map[string]chart.GuardFunc{"canGo": func(*chart.Context, chart.Event) bool { return true }},
		Actions: map[string]chart.ActionFunc{"increment": increment},
	})
	require.NoError(t, err)
	return m
}

func TestNewMachine_InvalidConfig(t *testing.T) {
	_, err := NewMachine(chart.MachineConfig{ID: "broken"}, Implementations{})
	require.Error(t, err)
}

func TestNewMachine_RejectsNilImplementations(t *testing.T) {
	tests := []struct {
		name string
		impl Implementations
	}{
		{"guard", Implementations{Guards: map[string]chart.GuardFunc{"g": nil}}},
		{"action", Implementations{Actions: map[string]chart.ActionFunc{"a": nil}}},
		{"actor", Implementations{Actors: map[string]Actor{"x": nil}}},
		{"delay", Implementations{Delays: map[string]Delay{"d": nil}}},
		{"empty name", Implementations{Actions: map[string]chart.ActionFunc{"": increment}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMachine(trafficConfig(t), tt.impl)
			assert.Error(t, err)
		})
	}
}

func TestMachine_ContextSeed(t *testing.T) {
	m, err := NewMachine(trafficConfig(t), Implementations{Context: map[string]any{"extra": "x"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": 0, "extra": "x"}, m.Context())

	// Context returns a copy.
	ctx := m.Context()
	ctx["count"] = 99
	assert.Equal(t, 0, m.Context()["count"])
}

func TestMachine_Provide(t *testing.T) {
	base := trafficMachine(t)
	never := func(*chart.Context, chart.Event) bool { return false }

	provided, err := base.Provide(Implementations{
		Context: map[string]any{"count": 10},
		Guards:  map[string]chart.GuardFunc{"canGo": never},
	})
	require.NoError(t, err)

	assert.Equal(t, 10, provided.Context()["count"])
	assert.Equal(t, 0, base.Context()["count"], "base machine must not change")

	impl := provided.Implementations()
	assert.Contains(t, impl.Actions, "increment", "unsupplied maps are kept")
	assert.False(t, impl.Guards["canGo"](nil, chart.Event{}))
	assert.True(t, base.Implementations().Guards["canGo"](nil, chart.Event{}))
	assert.Equal(t, base.ID(), provided.ID())
}

func TestMachine_ProvideEmptyKeepsEverything(t *testing.T) {
	base := trafficMachine(t)
	provided, err := base.Provide(Implementations{})
	require.NoError(t, err)
	assert.Equal(t, base.Context(), provided.Context())
	assert.Len(t, provided.Implementations().Guards, 1)
	assert.Len(t, provided.Implementations().Actions, 1)
	assert.Nil(t, provided.Implementations().Actors)
}

func TestMachine_ProvideRejectsNil(t *testing.T) {
	_, err := trafficMachine(t).Provide(Implementations{Actions: map[string]chart.ActionFunc{"increment": nil}})
	require.Error(t, err)
}

func TestMachine_InitialValue(t *testing.T) {
	assert.Equal(t, []string{"green"}, trafficMachine(t).InitialValue())

	assert.Equal(t, []string{"on.stopped"}, playerMachine(t, Implementations{}).InitialValue())

	assert.Equal(t, []string{"doc.bold.off", "doc.italic.off"}, editorMachine(t).InitialValue())
}

func TestMachine_CreateState(t *testing.T) {
	m := editorMachine(t)

	s, err := m.CreateState(Snapshot{Value: []string{"doc.italic.on", "doc.bold.off"}})
	require.NoError(t, err)
	assert.Equal(t, "editor", s.MachineID)
	assert.Equal(t, []string{"doc.bold.off", "doc.italic.on"}, s.Value)
	assert.False(t, s.Timestamp.IsZero())
	assert.False(t, s.Done)
}

func TestMachine_CreateStateContext(t *testing.T) {
	m := trafficMachine(t)

	s, err := m.CreateState(Snapshot{Value: []string{"red"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": 0}, s.Context, "nil context falls back to the seed")

	s, err = m.CreateState(Snapshot{Value: []string{"red"}, Context: map[string]any{"count": 7}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": 7}, s.Context)
}

func TestMachine_CreateStateErrors(t *testing.T) {
	m := editorMachine(t)
	tests := []struct {
		name  string
		snap  Snapshot
		match error
	}{
		{"other machine", Snapshot{MachineID: "light", Value: []string{"doc.bold.on", "doc.italic.on"}}, ErrMachineMismatch},
		{"empty", Snapshot{}, ErrInvalidState},
		{"unknown", Snapshot{Value: []string{"doc.underline.on"}}, ErrInvalidState},
		{"not a leaf", Snapshot{Value: []string{"doc.bold"}}, ErrInvalidState},
		{"missing region", Snapshot{Value: []string{"doc.bold.on"}}, ErrInvalidState},
		{"two children", Snapshot{Value: []string{"doc.bold.on", "doc.bold.off", "doc.italic.on"}}, ErrInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.CreateState(tt.snap)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.match), "got %v", err)
		})
	}
}

func TestMachine_CreateStateTwoTopLevel(t *testing.T) {
	_, err := trafficMachine(t).CreateState(Snapshot{Value: []string{"green", "red"}})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestMachine_CreateStateFinal(t *testing.T) {
	s, err := jobMachine(t).CreateState(Snapshot{Value: []string{"complete"}})
	require.NoError(t, err)
	assert.True(t, s.Done)
}

func TestMachine_TransitionDomain(t *testing.T) {
	m := playerMachine(t, Implementations{})
	tests := []struct {
		source, target, want string
	}{
		{"on.stopped", "on.playing", "on"},
		{"on", "off", ""},
		{"on", "on", ""},
		{"on", "on.playing.fast", "on"},
		{"on.playing.normal", "on", ""},
	}
	for _, tt := range tests {
		if got := m.transitionDomain(tt.source, tt.target); got != tt.want {
			t.Errorf("transitionDomain(%q, %q) = %q, want %q", tt.source, tt.target, got, tt.want)
		}
	}

	e := editorMachine(t)
	if got := e.transitionDomain("doc.bold.off", "doc.italic.on"); got != "" {
		t.Errorf("domain across parallel regions = %q, want root", got)
	}
}

func TestMachine_DelayFor(t *testing.T) {
	m, err := trafficMachine(t).Provide(Implementations{
		Delays: map[string]Delay{"slow": func(*chart.Context, chart.Event) time.Duration { return time.Minute }},
	})
	require.NoError(t, err)

	d, err := m.delayFor("slow", nil, chart.Event{})
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	d, err = m.delayFor("150ms", nil, chart.Event{})
	require.NoError(t, err)
	assert.Equal(t, 150*time.Millisecond, d)

	_, err = m.delayFor("soon", nil, chart.Event{})
	assert.Error(t, err)
}

func TestMergeMap(t *testing.T) {
	assert.Nil(t, mergeMap[int](nil, nil))
	assert.Equal(t, map[string]int{"a": 1, "b": 3}, mergeMap(map[string]int{"a": 1, "b": 2}, map[string]int{"b": 3}))
	assert.Equal(t, map[string]int{}, mergeMap(map[string]int{}, nil))
}
