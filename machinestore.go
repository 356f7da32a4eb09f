// Package machinestore runs a statechart interpreter for the lifetime of a
// host component and exposes its snapshots as a store.
//
//	component := lifecycle.NewComponent()
//	b, err := machinestore.UseMachine(component, machine,
//		machinestore.WithActions(actions),
//	)
//	if err != nil {
//		return err
//	}
//	unsubscribe := b.State.Subscribe(render)
//	_ = b.Send(chart.NewEvent("TIMER", nil))
//	...
//	unsubscribe()
//	component.Destroy() // stops the interpreter
package machinestore

import (
	"sync"

	"github.com/comalice/machinestore/chart"
	"github.com/comalice/machinestore/interpreter"
	"github.com/comalice/machinestore/lifecycle"
	"github.com/comalice/machinestore/store"
)

// Binding is a running interpreter bound to a component.
type Binding struct {
	// State yields the current snapshot to each new subscriber, then every
	// snapshot the interpreter marks as changed.
	State store.Readable[interpreter.Snapshot]

	// Send dispatches an event to the interpreter.
	Send func(chart.Event) error

	// Service is the underlying interpreter.
	Service *interpreter.Interpreter
}

// UseMachine applies the overrides in opts to machine, starts one
// interpreter for it and stops that interpreter when scope is destroyed.
//
// Errors from resolving the overrides, rehydrating the snapshot or starting
// the interpreter are returned unchanged; in that case nothing is
// registered with scope.
func UseMachine(scope lifecycle.Scope, machine *interpreter.Machine, opts ...Option) (*Binding, error) {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}

	resolved, err := machine.Provide(o.implementations())
	if err != nil {
		return nil, err
	}

	var from *interpreter.Snapshot
	if o.State != nil {
		rehydrated, err := resolved.CreateState(*o.State)
		if err != nil {
			return nil, err
		}
		from = &rehydrated
	}

	service := interpreter.New(resolved, o.Interpreter...)
	if err := service.Start(from); err != nil {
		return nil, err
	}

	scope.OnDestroy(func() {
		_ = service.Stop()
	})

	return &Binding{
		State:   snapshotStore(service),
		Send:    service.Send,
		Service: service,
	}, nil
}

// snapshotStore mirrors the interpreter's changed snapshots while the store
// has subscribers.
func snapshotStore(service *interpreter.Interpreter) store.Readable[interpreter.Snapshot] {
	return store.NewReadable(service.GetSnapshot(), func(set func(interpreter.Snapshot)) func() {
		// Hold back interpreter updates until the store holds the snapshot
		// they follow.
		var mu sync.Mutex
		mu.Lock()
		defer mu.Unlock()

		current, sub := service.SubscribeWithSnapshot(func(s interpreter.Snapshot) {
			if !s.Changed {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			set(s)
		})
		set(current)
		return sub.Unsubscribe
	})
}
