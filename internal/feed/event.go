package feed

import "time"

// EventType identifies what happened in the feed
type EventType string

const (
	EventState        EventType = "state"
	EventClipQueued   EventType = "clip_queued"
	EventClipStarted  EventType = "clip_started"
	EventClipFinished EventType = "clip_finished"
	EventClipAborted  EventType = "clip_aborted"
	EventClipFailed   EventType = "clip_failed"
)

// Event describes a writer state change or a step in a clip's life
type Event struct {
	Type  EventType
	State State
	Entry *Entry
	Bytes int64
	Err   error
	Time  time.Time
}

// Observer receives feed events. Observe is called from the writer
// goroutine and from producers, so implementations must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans one event out to several observers in order
type Observers []Observer

func (o Observers) Observe(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(e)
		}
	}
}
