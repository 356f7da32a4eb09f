package interpreter

import (
	"sync"
	"time"

	"github.com/comalice/machinestore/chart"
)

// ChannelEventSource is an EventSource backed by a Go channel.
type ChannelEventSource struct {
	ch chan chart.Event
}

// NewChannelEventSource creates a ChannelEventSource reading from ch.
// ch should be buffered if producers must not block.
func NewChannelEventSource(ch chan chart.Event) *ChannelEventSource {
	return &ChannelEventSource{ch: ch}
}

// Events returns the receive-only channel for events.
func (s *ChannelEventSource) Events() <-chan chart.Event {
	return s.ch
}

// TimerEventSource emits an event every period until stopped.
type TimerEventSource struct {
	ch        chan chart.Event
	eventType string
	data      any
	ticker    *time.Ticker
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewTimerEventSource creates a TimerEventSource that emits eventType every d.
func NewTimerEventSource(eventType string, data any, d time.Duration) *TimerEventSource {
	t := &TimerEventSource{
		ch:        make(chan chart.Event, 10),
		eventType: eventType,
		data:      data,
		ticker:    time.NewTicker(d),
		stop:      make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *TimerEventSource) run() {
	for {
		select {
		case <-t.ticker.C:
			select {
			case t.ch <- chart.NewEvent(t.eventType, t.data):
			default:
				// drop if full
			}
		case <-t.stop:
			t.ticker.Stop()
			close(t.ch)
			return
		}
	}
}

// Events returns the event channel. It is closed after Stop.
func (t *TimerEventSource) Events() <-chan chart.Event {
	return t.ch
}

// Stop stops the ticker and closes the channel. Safe to call multiple times.
func (t *TimerEventSource) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}
