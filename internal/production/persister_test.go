// Tests for the file persisters and resuming an interpreter from them.
package production

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/machinestore/chart"
	"github.com/comalice/machinestore/interpreter"
)

func testSnapshot() interpreter.Snapshot {
	return interpreter.Snapshot{
		MachineID: "test-machine",
		Value:     []string{"s1"},
		Context:   map[string]any{"key": "value"},
		Event:     chart.NewEvent("TIMER", nil),
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestPersisters_RoundTrip(t *testing.T) {
	for _, format := range []string{"json", "yaml"} {
		t.Run(format, func(t *testing.T) {
			p, err := NewPersister(format, t.TempDir())
			require.NoError(t, err)

			snapshot := testSnapshot()
			snapshot.Changed = true
			require.NoError(t, p.Save(context.Background(), snapshot))

			loaded, err := p.Load(context.Background(), "test-machine")
			require.NoError(t, err)
			assert.Equal(t, snapshot.MachineID, loaded.MachineID)
			assert.Equal(t, snapshot.Value, loaded.Value)
			assert.Equal(t, snapshot.Context, loaded.Context)
			assert.Equal(t, "TIMER", loaded.Event.Type)
			assert.True(t, snapshot.Timestamp.Equal(loaded.Timestamp))
			assert.False(t, loaded.Changed, "Changed is not persisted")
		})
	}
}

func TestPersisters_LoadNonExistent(t *testing.T) {
	for _, format := range []string{"json", "yaml"} {
		p, err := NewPersister(format, t.TempDir())
		require.NoError(t, err)

		_, err = p.Load(context.Background(), "nonexistent")
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s: expected os.ErrNotExist wrapped error, got %v", format, err)
		}
	}
}

func TestPersisters_Overwrite(t *testing.T) {
	dir := t.TempDir()
	p, err := NewJSONPersister(dir)
	require.NoError(t, err)

	first := testSnapshot()
	second := testSnapshot()
	second.Value = []string{"s2"}
	require.NoError(t, p.Save(context.Background(), first))
	require.NoError(t, p.Save(context.Background(), second))

	loaded, err := p.Load(context.Background(), "test-machine")
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, loaded.Value)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestPersisters_Errors(t *testing.T) {
	dir := t.TempDir()
	p, err := NewYAMLPersister(dir)
	require.NoError(t, err)

	assert.Error(t, p.Save(context.Background(), interpreter.Snapshot{}), "machine ID is required")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Save(ctx, testSnapshot()), context.Canceled)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("machineID: light\nvalue: [red]\n"), 0o644))
	_, err = p.Load(context.Background(), "other")
	assert.ErrorIs(t, err, interpreter.ErrMachineMismatch)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("value: [unterminated\n"), 0o644))
	_, err = p.Load(context.Background(), "broken")
	assert.Error(t, err)
}

func TestNewPersister_UnknownFormat(t *testing.T) {
	_, err := NewPersister("toml", t.TempDir())
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestJSONPersister_Integration_ResumeInterpreter(t *testing.T) {
	p, err := NewJSONPersister(t.TempDir())
	require.NoError(t, err)

	b := chart.NewBuilder("restore-test", "green")
	b.Atomic("green").Transition("TIMER", "yellow", chart.TransitionConfig{
		Actions: []chart.ActionRef{chart.ActionFunc(func(ctx *chart.Context, _ chart.Event) { ctx.Set("restored", true) })},
	})
	b.Atomic("yellow")
	config, err := b.Build()
	require.NoError(t, err)
	m, err := interpreter.NewMachine(config, interpreter.Implementations{})
	require.NoError(t, err)

	svc := interpreter.New(m, interpreter.WithPersister(p))
	processed := make(chan struct{})
	sub := svc.Subscribe(func(interpreter.Snapshot) { close(processed) })
	require.NoError(t, svc.Start(nil))
	require.NoError(t, svc.Send(chart.NewEvent("TIMER", nil)))
	select {
	case <-processed:
	case <-time.After(2 * time.Second):
		t.Fatal("TIMER not processed")
	}
	sub.Unsubscribe()
	require.NoError(t, svc.Stop())

	loaded, err := p.Load(context.Background(), "restore-test")
	require.NoError(t, err)

	resumed := interpreter.New(m)
	require.NoError(t, resumed.Start(&loaded))
	defer resumed.Stop()
	s := resumed.GetSnapshot()
	assert.Equal(t, []string{"yellow"}, s.Value)
	assert.Equal(t, true, s.Context["restored"])
}
