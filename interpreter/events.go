package interpreter

// Event types raised by the interpreter itself.
const (
	InitEvent = "machine.init"
)

// DoneStateEvent is raised when the compound or parallel state at path
// reaches a final state.
func DoneStateEvent(path string) string {
	return "done.state." + path
}

// DoneInvokeEvent is sent when the actor invoked as id returns without error.
// The event data is the actor's output.
func DoneInvokeEvent(id string) string {
	return "done.invoke." + id
}

// ErrorEvent is sent when the actor invoked as id fails. The event data is
// the error.
func ErrorEvent(id string) string {
	return "error.platform." + id
}

// AfterEvent is sent when the delay scheduled by the state at path elapses.
func AfterEvent(delay, path string) string {
	return "after(" + delay + ")#" + path
}
