package session

import (
	"time"

	"github.com/MJE43/stake-wheel-go/internal/wheel"
)

type EventType string

const (
	EventWheelRegenerated EventType = "wheel.regenerated"
	EventSpinStarted      EventType = "spin.started"
	EventSpinCompleted    EventType = "spin.completed"
	EventSpinIgnored      EventType = "spin.ignored"
	EventSessionClosed    EventType = "session.closed"
)

// Event is published to the session's sink after every state change.
type Event struct {
	Type      EventType    `json:"type"`
	SessionID string       `json:"session_id"`
	Time      time.Time    `json:"time"`
	Wheel     *wheel.Wheel `json:"wheel,omitempty"`
	Spin      *SpinInfo    `json:"spin,omitempty"`
	Outcome   *SpinOutcome `json:"outcome,omitempty"`
}

// EventSink receives session events. Publish must not block for long and
// must not call back into the session.
type EventSink interface {
	Publish(Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }

type nopSink struct{}

func (nopSink) Publish(Event) {}

// Fanout publishes each event to every non-nil sink in order.
func Fanout(sinks ...EventSink) EventSink {
	out := make([]EventSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return SinkFunc(func(e Event) {
		for _, s := range out {
			s.Publish(e)
		}
	})
}
