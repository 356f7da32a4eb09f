// Package chart provides the declarative data structures for statechart
// definitions: events, extended state, state and transition configuration,
// and a fluent builder.
//
// Definitions are plain values with JSON and YAML tags so they can be
// loaded from files. Guards and actions are referenced either inline
// (GuardFunc, ActionFunc) or by name; named references are resolved by the
// interpreter against the machine's implementations.
//
// Core invariants:
//   - Events are immutable once created
//   - Context is safe for concurrent use
//   - Transition targets are absolute dotted paths ("parent.child")
package chart
