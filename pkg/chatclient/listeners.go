package chatclient

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/eventchat/pkg/wire"
)

// Handler receives the raw frame of the event it subscribed to.
type Handler func(data json.RawMessage)

type entry struct {
	id int
	fn Handler
}

// registry keeps listeners per event type in registration order.
// Unsubscribing is done through the handle returned at registration.
type registry struct {
	mu      sync.Mutex
	nextID  int
	byEvent map[string][]entry
}

func (r *registry) add(event string, fn Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byEvent == nil {
		r.byEvent = make(map[string][]entry)
	}
	r.nextID++
	id := r.nextID
	r.byEvent[event] = append(r.byEvent[event], entry{id: id, fn: fn})
	return func() { r.remove(event, id) }
}

func (r *registry) remove(event string, id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byEvent[event]
	for i, e := range list {
		if e.id == id {
			r.byEvent[event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (r *registry) emit(event string, data json.RawMessage) {
	r.mu.Lock()
	list := make([]entry, len(r.byEvent[event]))
	copy(list, r.byEvent[event])
	r.mu.Unlock()
	for _, e := range list {
		e.fn(data)
	}
}

// subscribers is the same ordered registry for non-wire notifications
// (status changes, connection drops).
type subscribers[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   []struct {
		id int
		fn func(T)
	}
}

func (s *subscribers[T]) add(fn func(T)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, struct {
		id int
		fn func(T)
	}{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, e := range s.subs {
			if e.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *subscribers[T]) emit(v T) {
	s.mu.Lock()
	list := make([]func(T), 0, len(s.subs))
	for _, e := range s.subs {
		list = append(list, e.fn)
	}
	s.mu.Unlock()
	for _, fn := range list {
		fn(v)
	}
}

// On registers a listener for a wire event type and returns its
// unsubscribe handle. Multiple listeners for the same event all fire,
// in registration order.
func (c *Client) On(event string, fn Handler) func() {
	return c.listeners.add(event, fn)
}

func (c *Client) OnMessage(fn func(wire.Message)) func() {
	return c.On(wire.EventNewMessage, decoded(fn))
}

func (c *Client) OnUserJoined(fn func(wire.Presence)) func() {
	return c.On(wire.EventUserJoined, decoded(fn))
}

func (c *Client) OnUserLeft(fn func(wire.Presence)) func() {
	return c.On(wire.EventUserLeft, decoded(fn))
}

func (c *Client) OnTyping(fn func(wire.Typing)) func() {
	return c.On(wire.EventUserTyping, decoded(fn))
}

func (c *Client) OnStoppedTyping(fn func(wire.StoppedTyping)) func() {
	return c.On(wire.EventUserStoppedTyping, decoded(fn))
}

func (c *Client) OnError(fn func(wire.Error)) func() {
	return c.On(wire.EventError, decoded(fn))
}

// OnStatus reports every connector state transition.
func (c *Client) OnStatus(fn func(Status)) func() {
	return c.statusSubs.add(fn)
}

// OnClose reports why the transport dropped; server-initiated closes
// arrive wrapped in ErrServerInitiatedDisconnect.
func (c *Client) OnClose(fn func(error)) func() {
	return c.closeSubs.add(fn)
}

func decoded[T any](fn func(T)) Handler {
	return func(data json.RawMessage) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return
		}
		fn(v)
	}
}
