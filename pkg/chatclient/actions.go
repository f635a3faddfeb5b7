package chatclient

import (
	"github.com/dkeye/eventchat/pkg/wire"
)

// JoinEvent subscribes this connection to an event room. The room id
// is remembered so a reconnect can re-join automatically.
func (c *Client) JoinEvent(eventID string) error {
	if err := c.writeJSON(wire.RoomRef{Type: wire.EventJoin, EventID: eventID}); err != nil {
		return err
	}
	c.mu.Lock()
	c.lastRoom = eventID
	c.mu.Unlock()
	return nil
}

func (c *Client) LeaveEvent(eventID string) error {
	if err := c.writeJSON(wire.RoomRef{Type: wire.EventLeave, EventID: eventID}); err != nil {
		return err
	}
	c.mu.Lock()
	if c.lastRoom == eventID {
		c.lastRoom = ""
	}
	c.mu.Unlock()
	return nil
}

func (c *Client) SendMessage(eventID, content string) error {
	return c.writeJSON(wire.SendMessage{Type: wire.EventSend, EventID: eventID, Content: content})
}

func (c *Client) Typing(eventID string) error {
	return c.writeJSON(wire.RoomRef{Type: wire.EventTyping, EventID: eventID})
}

func (c *Client) StopTyping(eventID string) error {
	return c.writeJSON(wire.RoomRef{Type: wire.EventStopTyping, EventID: eventID})
}

func (c *Client) writeJSON(v any) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.status == StatusConnected
	c.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}
