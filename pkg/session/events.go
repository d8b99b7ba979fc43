// ABOUTME: Session state change events
// ABOUTME: Publishes StateChanged through kelindar/event after the engine lock is released
package session

import (
	"time"

	"github.com/kelindar/event"
)

// Event type identifiers for kelindar/event
const (
	TypeStateChanged uint32 = iota + 1
)

// StateChanged is published after every operation that changes a session's
// state, latched error or lifetime.
type StateChanged struct {
	Handle   Handle    `json:"handle"`
	ID       string    `json:"id"`
	Backend  Backend   `json:"backend"`
	Driver   string    `json:"driver,omitempty"`
	Previous State     `json:"previous"`
	State    State     `json:"state"`
	Error    string    `json:"error,omitempty"`
	Deleted  bool      `json:"deleted,omitempty"`
	At       time.Time `json:"at"`
}

// Type returns the event type identifier for StateChanged
func (e StateChanged) Type() uint32 { return TypeStateChanged }

// Subscribe registers fn for state changes on every session of the engine.
// Handlers run outside the engine lock and may call back into it.
// Returns an unsubscribe function. On a closed engine nothing is
// registered.
func (e *Engine) Subscribe(fn func(StateChanged)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return func() {}
	}
	return event.Subscribe(e.events, fn)
}

// queue records an event to publish once the engine lock is released (must hold e.mu)
func (e *Engine) queue(h Handle, s *session, previous State) {
	ev := StateChanged{
		Handle:   h,
		ID:       s.id,
		Backend:  s.backend,
		Previous: previous,
		State:    s.state,
		Deleted:  s.deleted,
		At:       time.Now(),
	}
	if s.binding != nil {
		ev.Driver = s.binding.driver
	}
	if s.lastErr != nil {
		ev.Error = s.lastErr.Error()
	}
	e.pending = append(e.pending, ev)
}

// unlock releases e.mu and publishes queued events
func (e *Engine) unlock() {
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, ev := range pending {
		event.Publish(e.events, ev)
	}
}
