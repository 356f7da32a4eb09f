package main

import (
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/comalice/machinestore"
	"github.com/comalice/machinestore/chart"
	"github.com/comalice/machinestore/internal/production"
	"github.com/comalice/machinestore/interpreter"
	"github.com/comalice/machinestore/lifecycle"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Width(12)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

func runCmd(a *app) *cobra.Command {
	var (
		resume    bool
		persist   bool
		tick      time.Duration
		tickEvent string
	)
	cmd := &cobra.Command{
		Use:   "run <definition.yaml>",
		Short: "Run a machine interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.logToFile(); err != nil {
				return err
			}
			m, err := a.loadMachine(args[0])
			if err != nil {
				return err
			}

			component := lifecycle.NewComponent()
			component.BindContext(cmd.Context())
			defer component.Destroy()

			transitions := make(chan production.PublishedEvent, 64)
			publisher := production.NewChannelPublisher(transitions)
			component.OnDestroy(func() { _ = publisher.Close() })

			extra := []interpreter.Option{interpreter.WithPublisher(publisher)}
			if tick > 0 {
				src := interpreter.NewTimerEventSource(tickEvent, nil, tick)
				component.OnDestroy(src.Stop)
				extra = append(extra, interpreter.WithEventSource(src))
			}

			b, err := a.bind(cmd.Context(), component, m, bindOptions{resume: resume, persist: persist, extra: extra})
			if err != nil {
				return err
			}

			model := newRunModel(component, b, transitions)
			defer model.detach()

			_, err = tea.NewProgram(model, tea.WithContext(cmd.Context())).Run()
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false, "Resume from the saved snapshot")
	cmd.Flags().BoolVar(&persist, "persist", false, "Save every changed snapshot")
	cmd.Flags().DurationVar(&tick, "tick", 0, "Send --tick-event on this interval")
	cmd.Flags().StringVar(&tickEvent, "tick-event", "TIMER", "Event sent by --tick")
	return cmd
}

type snapshotMsg interpreter.Snapshot

type transitionMsg production.PublishedEvent

type sentMsg struct {
	err error
}

// runModel is the TUI component: it subscribes to the machine's state store
// and destroys the component when the user quits.
type runModel struct {
	component   *lifecycle.Component
	binding     *machinestore.Binding
	updates     chan interpreter.Snapshot
	transitions <-chan production.PublishedEvent
	detach      func()

	snapshot   interpreter.Snapshot
	transition string
	input      textinput.Model
	err        error
}

func newRunModel(component *lifecycle.Component, b *machinestore.Binding, transitions <-chan production.PublishedEvent) *runModel {
	ti := textinput.New()
	ti.Placeholder = "EVENT"
	ti.Focus()
	ti.CharLimit = 64

	m := &runModel{
		component:   component,
		binding:     b,
		updates:     make(chan interpreter.Snapshot, 1),
		transitions: transitions,
		input:       ti,
	}
	// Subscribing delivers the current snapshot synchronously.
	m.detach = b.State.Subscribe(func(s interpreter.Snapshot) {
		offerLatest(m.updates, s)
	})
	m.snapshot = <-m.updates
	return m
}

// offerLatest replaces any unread snapshot in ch with s.
func offerLatest(ch chan interpreter.Snapshot, s interpreter.Snapshot) {
	for {
		select {
		case ch <- s:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

func waitSnapshot(ch <-chan interpreter.Snapshot) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(<-ch)
	}
}

func waitTransition(ch <-chan production.PublishedEvent) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			return nil
		}
		return transitionMsg(evt)
	}
}

func (m *runModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitSnapshot(m.updates), waitTransition(m.transitions))
}

func (m *runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.detach()
			m.component.Destroy()
			return m, tea.Quit
		case tea.KeyEnter:
			name := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if name == "" {
				return m, nil
			}
			return m, m.send(name)
		}

	case snapshotMsg:
		m.snapshot = interpreter.Snapshot(msg)
		return m, waitSnapshot(m.updates)

	case transitionMsg:
		m.transition = msg.Metadata.Transition
		return m, waitTransition(m.transitions)

	case sentMsg:
		m.err = msg.err
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *runModel) send(name string) tea.Cmd {
	send := m.binding.Send
	return func() tea.Msg {
		return sentMsg{err: send(chart.NewEvent(name, nil))}
	}
}

func (m *runModel) View() string {
	var b strings.Builder
	s := m.snapshot

	b.WriteString(titleStyle.Render("machinectl: " + s.MachineID))
	b.WriteString("\n\n")
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}
	value := valueStyle.Render(s.String())
	if s.Done {
		value += "  " + doneStyle.Render("done")
	}
	row("state", value)
	row("context", formatContext(s.Context))
	row("event", eventStyle.Render(s.Event.Type))
	if m.transition != "" {
		row("transition", m.transition)
	}
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter: send event • esc/ctrl+c: quit"))
	b.WriteString("\n")
	return b.String()
}
