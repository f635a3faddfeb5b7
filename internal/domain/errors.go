package domain

import "errors"

// Chat error taxonomy. Handshake errors reject the connection;
// the rest are reported as scoped error events and leave the
// connection usable.
var (
	// handshake
	ErrNoCredential      = errors.New("no credential")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrVerifier          = errors.New("session verifier failure")

	// authorization
	ErrNotParticipant = errors.New("not a participant of this event")

	// validation
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message too long")
	ErrAlreadyInRoom  = errors.New("already joined another event")

	// downstream
	ErrPersistence = errors.New("message could not be persisted")
)
