package chart

// Event is the immutable input to a statechart.
//
// Fields are exported for convenience in read-only contexts, but consumers
// MUST NOT modify them after construction.
type Event struct {
	Type string `json:"type" yaml:"type"`
	Data any    `json:"data,omitempty" yaml:"data,omitempty"`
}

// NewEvent creates and returns a new immutable Event.
func NewEvent(eventType string, data any) Event {
	return Event{
		Type: eventType,
		Data: data,
	}
}
