package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"mcpdesk/model"
)

const eventQueueSize = 1024

type eventMsg model.Event

// EventQueue carries orchestrator events into the bubbletea loop. Sink
// blocks while the queue is full so no stream delta is lost.
type EventQueue struct {
	ch        chan model.Event
	done      chan struct{}
	closeOnce sync.Once
}

func NewEventQueue() *EventQueue {
	return &EventQueue{
		ch:   make(chan model.Event, eventQueueSize),
		done: make(chan struct{}),
	}
}

// Sink is a model.EventSink.
func (q *EventQueue) Sink(ev model.Event) {
	select {
	case q.ch <- ev:
	case <-q.done:
	}
}

// Close releases senders and stops the pending wait command.
func (q *EventQueue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// next waits for one event. The update loop re-issues it after every event.
func (q *EventQueue) next() tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-q.ch:
			return eventMsg(ev)
		case <-q.done:
			return nil
		}
	}
}
