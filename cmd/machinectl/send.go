package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/comalice/machinestore/chart"
	"github.com/comalice/machinestore/interpreter"
	"github.com/comalice/machinestore/lifecycle"
)

var (
	machineStyle = lipgloss.NewStyle().Bold(true)
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98"))
	eventStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700")).Bold(true)
)

func sendCmd(a *app) *cobra.Command {
	var (
		resume  bool
		persist bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send <definition.yaml> EVENT...",
		Short: "Send events to a machine and print each changed snapshot",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			m, err := a.loadMachine(args[0])
			if err != nil {
				return err
			}

			component := lifecycle.NewComponent()
			defer component.Destroy()

			b, err := a.bind(ctx, component, m, bindOptions{resume: resume, persist: persist})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			unsubscribe := b.State.Subscribe(func(s interpreter.Snapshot) {
				printSnapshot(out, s)
			})
			defer unsubscribe()

			// Subscribed after the store, so a step is printed before it
			// counts as processed.
			tracker := newStepTracker()
			sub := b.Service.Subscribe(tracker.observe)
			defer sub.Unsubscribe()

			for _, name := range args[1:] {
				if err := b.Send(chart.NewEvent(name, nil)); err != nil {
					return err
				}
				if err := tracker.wait(ctx, name); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false, "Resume from the saved snapshot")
	cmd.Flags().BoolVar(&persist, "persist", false, "Save every changed snapshot")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Give up waiting for an event after this long")
	return cmd
}

func printSnapshot(w io.Writer, s interpreter.Snapshot) {
	line := fmt.Sprintf("%s  %s  %s",
		machineStyle.Render(s.MachineID),
		valueStyle.Render(s.String()),
		formatContext(s.Context),
	)
	if s.Event.Type != "" {
		line += "  " + eventStyle.Render("<- "+s.Event.Type)
	}
	if s.Done {
		line += "  " + doneStyle.Render("done")
	}
	fmt.Fprintln(w, line)
}

// stepTracker records the event of every processed step so callers can wait
// for a specific event to be handled.
type stepTracker struct {
	mu       sync.Mutex
	seen     []string
	cursor   int
	finished bool
	signal   chan struct{}
}

func newStepTracker() *stepTracker {
	return &stepTracker{signal: make(chan struct{}, 1)}
}

func (t *stepTracker) observe(s interpreter.Snapshot) {
	t.mu.Lock()
	t.seen = append(t.seen, s.Event.Type)
	t.finished = t.finished || s.Done
	t.mu.Unlock()
	select {
	case t.signal <- struct{}{}:
	default:
	}
}

// next consumes recorded steps up to and including one for event. It
// reports whether such a step was found and whether the machine finished.
func (t *stepTracker) next(event string) (found, finished bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.cursor < len(t.seen) {
		seen := t.seen[t.cursor]
		t.cursor++
		if seen == event {
			return true, t.finished
		}
	}
	return false, t.finished
}

// wait blocks until a step for event was processed, the machine finished
// without processing it or ctx ends.
func (t *stepTracker) wait(ctx context.Context, event string) error {
	for {
		found, finished := t.next(event)
		if found {
			return nil
		}
		if finished {
			return fmt.Errorf("machine finished before %q was processed", event)
		}
		select {
		case <-t.signal:
		case <-ctx.Done():
			return fmt.Errorf("wait for %q: %w", event, ctx.Err())
		}
	}
}
