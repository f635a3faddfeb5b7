package domain

// EventID keys a chat room. Rooms have no identity beyond the event
// they belong to.
type EventID string

// ParticipationStatus is the externally-recorded attendance state that
// gates joining a room and sending messages.
type ParticipationStatus string

const (
	ParticipationAttending  ParticipationStatus = "attending"
	ParticipationInterested ParticipationStatus = "interested"
)
