package core

import (
	"context"

	"github.com/dkeye/eventchat/internal/domain"
)

// Frame is a marshaled wire payload ready for the transport.
type Frame []byte

// ConnID identifies a single live transport connection.
type ConnID string

// SignalConnection abstracts the system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MemberSession binds a connection's context and its transport
// endpoint. This is what a room stores and fans out to.
type MemberSession interface {
	Context() *ConnContext
	Signal() SignalConnection
}

// SessionVerifier resolves handshake credentials to an identity.
// A (nil, nil) return means the credential did not resolve; a non-nil
// error means the verifier itself failed.
type SessionVerifier interface {
	Verify(ctx context.Context, token, cookie string) (*domain.Identity, error)
}

// ParticipationOracle reports whether a user participates in an event.
// found is false when no participation record exists.
type ParticipationOracle interface {
	Participation(ctx context.Context, eventID domain.EventID, userID domain.UserID) (status domain.ParticipationStatus, found bool, err error)
}

// MessageStore persists an outgoing message and returns the canonical
// stored record with server-assigned id and timestamp.
type MessageStore interface {
	Persist(ctx context.Context, draft domain.MessageDraft) (*domain.Message, error)
}

// OnlineIndex is the process-wide who-is-online set. Observability
// only; room behavior does not depend on it.
type OnlineIndex interface {
	Add(ctx context.Context, userID domain.UserID) error
	Remove(ctx context.Context, userID domain.UserID) error
	Online(ctx context.Context, userID domain.UserID) (bool, error)
	Count(ctx context.Context) (int64, error)
}
