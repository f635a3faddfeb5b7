// Package wire defines the JSON envelope exchanged between the chat
// server and its clients. Every frame carries a "type" discriminator;
// the remaining fields depend on the event.
package wire

import (
	"encoding/json"
	"time"
)

// Client -> server events.
const (
	EventJoin       = "join-event"
	EventLeave      = "leave-event"
	EventSend       = "send-message"
	EventTyping     = "typing"
	EventStopTyping = "stop-typing"
)

// Server -> client events.
const (
	EventNewMessage        = "new-message"
	EventUserJoined        = "user-joined"
	EventUserLeft          = "user-left"
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventError             = "error"
)

// Probe extracts only the discriminator so the dispatcher can route
// the raw frame to the right handler.
type Probe struct {
	Type string `json:"type"`
}

// RoomRef is the payload of join-event, leave-event, typing and
// stop-typing.
type RoomRef struct {
	Type    string `json:"type"`
	EventID string `json:"eventId"`
}

// SendMessage is the payload of send-message.
type SendMessage struct {
	Type    string `json:"type"`
	EventID string `json:"eventId"`
	Content string `json:"content"`
}

// Message is the canonical stored record echoed to every room member,
// sender included.
type Message struct {
	Type       string    `json:"type"`
	ID         string    `json:"id"`
	EventID    string    `json:"eventId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Image      string    `json:"image,omitempty"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

// UserSummary is the identity slice broadcast on join/leave.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// Presence is the payload of user-joined and user-left.
type Presence struct {
	Type   string      `json:"type"`
	UserID string      `json:"userId"`
	Status string      `json:"status,omitempty"`
	User   UserSummary `json:"user"`
}

// Typing is the payload of user-typing.
type Typing struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// StoppedTyping is the payload of user-stopped-typing.
type StoppedTyping struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// Error is a scoped, recoverable notice to the offending connection.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Decode unmarshals a raw frame into the given payload type.
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
