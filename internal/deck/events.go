package deck

import (
	"time"

	"github.com/dontbeterm/dontbeterm/internal/topic"
)

// EventType names a deck event.
type EventType string

const (
	EventSessionCreated EventType = "session_created"
	EventSessionClosed  EventType = "session_closed"
	EventSessionRenamed EventType = "session_renamed"
	EventSessionEnded   EventType = "session_ended"
	EventActiveChanged  EventType = "active_changed"

	// EventAnalyzing is published for every session submitted to a refresh,
	// before any of them resolves.
	EventAnalyzing EventType = "analyzing"
	// EventTopic is published when a resolved label was applied as title.
	EventTopic EventType = "topic"
	// EventTopicSkipped is published when a job settled but its label was
	// not applied (pinned meanwhile, or the session closed).
	EventTopicSkipped EventType = "topic_skipped"
	// EventRefreshDone is published once a refresh batch has settled.
	EventRefreshDone EventType = "refresh_done"
)

// Event is one entry of the deck's status stream.
type Event struct {
	Type       EventType        `json:"type"`
	SessionID  string           `json:"sessionId,omitempty"`
	Title      string           `json:"title,omitempty"`
	Label      string           `json:"label,omitempty"`
	Provenance topic.Provenance `json:"provenance,omitempty"`
	State      topic.JobState   `json:"state,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Time       time.Time        `json:"time"`
}

const subscriberBuffer = 64

// Subscribe returns a channel of deck events and a function that cancels
// the subscription. Slow subscribers miss events rather than block the deck.
func (d *Deck) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	d.subsMu.Lock()
	if d.closed {
		close(ch)
		d.subsMu.Unlock()
		return ch, func() {}
	}
	d.subs[ch] = struct{}{}
	d.subsMu.Unlock()

	return ch, func() {
		d.subsMu.Lock()
		if _, ok := d.subs[ch]; ok {
			delete(d.subs, ch)
			close(ch)
		}
		d.subsMu.Unlock()
	}
}

func (d *Deck) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	for ch := range d.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (d *Deck) closeSubscribers() {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	d.closed = true
	for ch := range d.subs {
		delete(d.subs, ch)
		close(ch)
	}
}
