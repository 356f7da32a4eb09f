package production

import (
	"context"
	"sync"

	"github.com/comalice/machinestore/chart"
	"github.com/comalice/machinestore/interpreter"
)

// PublishedEvent bundles an event with the transition it caused.
type PublishedEvent struct {
	Event    chart.Event
	Metadata interpreter.TransitionMetadata
}

// ChannelPublisher forwards transitions to a Go channel.
// Publishing never blocks: events are dropped when the channel is full.
type ChannelPublisher struct {
	mu      sync.Mutex
	ch      chan<- PublishedEvent
	closed  bool
	dropped int
}

// NewChannelPublisher creates a ChannelPublisher with the given output channel.
func NewChannelPublisher(ch chan<- PublishedEvent) *ChannelPublisher {
	return &ChannelPublisher{ch: ch}
}

func (p *ChannelPublisher) Publish(ctx context.Context, event chart.Event, metadata interpreter.TransitionMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	select {
	case p.ch <- PublishedEvent{Event: event, Metadata: metadata}:
	default:
		p.dropped++
	}
	return nil
}

// Dropped returns the number of events dropped on backpressure.
func (p *ChannelPublisher) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close closes the output channel. Later publishes are ignored.
func (p *ChannelPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	return nil
}

var _ interpreter.Publisher = (*ChannelPublisher)(nil)
