package domain

import "time"

type MessageID string

// Message is the canonical stored chat message. ID and CreatedAt are
// assigned by the message store, never by the chat core.
type Message struct {
	ID         MessageID `json:"id"`
	EventID    EventID   `json:"eventId"`
	SenderID   UserID    `json:"senderId"`
	SenderName string    `json:"senderName"`
	AvatarURL  string    `json:"image,omitempty"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

// MessageDraft is what the chat core hands to the store for
// persistence.
type MessageDraft struct {
	EventID    EventID
	SenderID   UserID
	SenderName string
	AvatarURL  string
	Content    string
}
