// Package interpreter runs statecharts defined with package chart.
//
// A Machine pairs a validated chart.MachineConfig with its implementations
// (named guards, actions, actors and delays, plus the context seed).
// Machine.Provide derives a new machine with overrides merged in, and
// Machine.CreateState turns a persisted Snapshot back into a state the
// interpreter can resume from.
//
// An Interpreter is a running instance of a Machine. Events are queued by
// Send and processed one macrostep at a time on the interpreter's own
// goroutine; every processed event produces a Snapshot delivered to
// subscribers, flagged Changed when the active states, the context or the
// executed actions differ from the previous step.
//
//	m, err := interpreter.NewMachine(config, interpreter.Implementations{
//		Actions: map[string]chart.ActionFunc{"notify": notify},
//	})
//	svc := interpreter.New(m, interpreter.WithLogger(logger))
//	if err := svc.Start(nil); err != nil { ... }
//	defer svc.Stop()
//	sub := svc.Subscribe(func(s interpreter.Snapshot) { ... })
//	defer sub.Unsubscribe()
//	_ = svc.Send(chart.NewEvent("TIMER", nil))
package interpreter
