// Package benchmarks provides shared helpers for benchmark tests.
package benchmarks

import (
	"fmt"
	"strings"
	"time"

	"github.com/comalice/machinestore/chart"
	"github.com/comalice/machinestore/interpreter"
)

// GenFlatConfig creates a flat machine with n atomic states cycling via "tick" events.
func GenFlatConfig(n int) chart.MachineConfig {
	if n < 1 {
		n = 1
	}
	config := chart.MachineConfig{
		ID:      fmt.Sprintf("flat_%d", n),
		Initial: "s0",
		States:  make(map[string]*chart.StateConfig, n),
	}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("s%d", i)
		sc := chart.NewStateConfig(id, chart.Atomic)
		sc.AddTransition("tick", chart.TransitionConfig{Target: fmt.Sprintf("s%d", (i+1)%n)})
		config.States[id] = sc
	}
	return config
}

// GenDeepConfig creates depth nested compound states whose innermost state
// flips between two leaves on "tick".
func GenDeepConfig(depth int) chart.MachineConfig {
	if depth < 1 {
		depth = 1
	}
	ids := make([]string, depth)
	for i := range ids {
		ids[i] = fmt.Sprintf("c%d", i)
	}

	b := chart.NewBuilder(fmt.Sprintf("deep_%d", depth), ids[0])
	sb := b.Compound(ids[0], initialChild(ids, 0))
	for i := 1; i < depth; i++ {
		sb = sb.Compound(ids[i], initialChild(ids, i))
	}
	path := strings.Join(ids, ".")
	sb.Atomic("leaf1").Transition("tick", path+".leaf2")
	sb.Atomic("leaf2").Transition("tick", path+".leaf1")

	config, err := b.Build()
	if err != nil {
		panic(err)
	}
	return config
}

func initialChild(ids []string, i int) string {
	if i == len(ids)-1 {
		return "leaf1"
	}
	return ids[i+1]
}

// GenWideTransitions creates one main state with many guarded "tick"
// transitions of descending priority; only the lowest priority one passes.
func GenWideTransitions(numTransitions int) chart.MachineConfig {
	if numTransitions < 1 {
		numTransitions = 1
	}
	config := chart.MachineConfig{
		ID:      fmt.Sprintf("wide_%d", numTransitions),
		Initial: "main",
		States:  make(map[string]*chart.StateConfig, numTransitions+1),
	}
	main := chart.NewStateConfig("main", chart.Atomic)
	for i := 0; i < numTransitions; i++ {
		target := fmt.Sprintf("target%d", i)
		last := i == numTransitions-1
		main.AddTransition("tick", chart.TransitionConfig{
			Target:   target,
			Priority: numTransitions - i,
			Guard: chart.GuardFunc(func(*chart.Context, chart.Event) bool {
				return last
			}),
		})
		tsc := chart.NewStateConfig(target, chart.Atomic)
		tsc.AddTransition("tick", chart.TransitionConfig{Target: "main"})
		config.States[target] = tsc
	}
	config.States["main"] = main
	return config
}

// Started builds and starts an interpreter for config.
func Started(config chart.MachineConfig, opts ...interpreter.Option) (*interpreter.Interpreter, error) {
	m, err := interpreter.NewMachine(config, interpreter.Implementations{})
	if err != nil {
		return nil, err
	}
	svc := interpreter.New(m, opts...)
	if err := svc.Start(nil); err != nil {
		return nil, err
	}
	return svc, nil
}

// Counter counts processed steps of an interpreter.
type Counter struct {
	steps chan struct{}
	sub   *interpreter.Subscription
}

// NewCounter observes svc. The buffer bounds how far the interpreter may
// run ahead of WaitFor.
func NewCounter(svc *interpreter.Interpreter, buffer int) *Counter {
	c := &Counter{steps: make(chan struct{}, buffer)}
	c.sub = svc.Subscribe(func(interpreter.Snapshot) { c.steps <- struct{}{} })
	return c
}

// WaitFor blocks until n more steps were processed.
func (c *Counter) WaitFor(n int, timeout time.Duration) error {
	deadline := time.After(timeout)
	for i := 0; i < n; i++ {
		select {
		case <-c.steps:
		case <-deadline:
			return fmt.Errorf("processed %d of %d steps before timeout", i, n)
		}
	}
	return nil
}

// Close detaches the counter.
func (c *Counter) Close() {
	c.sub.Unsubscribe()
}
