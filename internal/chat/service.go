package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dkeye/eventchat/internal/core"
	"github.com/dkeye/eventchat/internal/domain"
	"github.com/dkeye/eventchat/pkg/wire"
	"github.com/rs/zerolog/log"
)

const DefaultTypingTTL = 5 * time.Second

// Service owns all mutable chat state: the room member sets, the
// typing tracker and the online index. Constructed once at startup and
// passed by handle to the transport adapters.
type Service struct {
	rooms  *roomManager
	typing *typingTracker
	online core.OnlineIndex

	verifier core.SessionVerifier
	oracle   core.ParticipationOracle
	store    core.MessageStore

	maxMessageLen int
}

type Options struct {
	Verifier core.SessionVerifier
	Oracle   core.ParticipationOracle
	Store    core.MessageStore
	// Online defaults to the in-memory index.
	Online core.OnlineIndex
	// TypingTTL defaults to DefaultTypingTTL.
	TypingTTL     time.Duration
	MaxMessageLen int
}

func NewService(opts Options) *Service {
	if opts.Online == nil {
		opts.Online = NewMemoryOnlineIndex()
	}
	if opts.TypingTTL <= 0 {
		opts.TypingTTL = DefaultTypingTTL
	}
	if opts.MaxMessageLen <= 0 {
		opts.MaxMessageLen = 1000
	}
	s := &Service{
		rooms:         newRoomManager(),
		online:        opts.Online,
		verifier:      opts.Verifier,
		oracle:        opts.Oracle,
		store:         opts.Store,
		maxMessageLen: opts.MaxMessageLen,
	}
	s.typing = newTypingTracker(opts.TypingTTL, s.typingExpired)
	return s
}

// Ready reports whether the room subsystem is wired; surfaced by the
// liveness endpoint.
func (s *Service) Ready() bool {
	return s.rooms != nil && s.verifier != nil && s.oracle != nil && s.store != nil
}

func (s *Service) RoomCount() int { return s.rooms.RoomCount() }

// Authenticate resolves handshake credentials to an identity and
// registers it in the online index. token is the first non-empty
// credential discovered by the adapter; cookie is the raw cookie
// header, passed along for session lookups that need both.
func (s *Service) Authenticate(ctx context.Context, token, cookie string) (*domain.Identity, error) {
	if token == "" {
		return nil, domain.ErrNoCredential
	}
	identity, err := s.verifier.Verify(ctx, token, cookie)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrVerifier, err)
	}
	if identity == nil {
		return nil, domain.ErrInvalidCredential
	}
	if err := s.online.Add(ctx, identity.UserID); err != nil {
		log.Warn().Err(err).Str("module", "chat").Str("user", string(identity.UserID)).Msg("online index add failed")
	}
	return identity, nil
}

// Join adds the connection to the event's room after confirming
// participation. The joining connection is not echoed its own
// user-joined notice. A connection already in a room must leave first;
// there is no implicit leave.
func (s *Service) Join(ctx context.Context, ms core.MemberSession, eventID domain.EventID) (domain.ParticipationStatus, error) {
	cc := ms.Context()
	if cc.Identity == nil {
		return "", domain.ErrInvalidCredential
	}
	if current, ok := cc.Room(); ok {
		log.Warn().Str("module", "chat").Str("conn", string(cc.ID)).Str("current", string(current)).Msg("join while already in a room")
		return "", domain.ErrAlreadyInRoom
	}

	status, found, err := s.oracle.Participation(ctx, eventID, cc.Identity.UserID)
	if err != nil {
		return "", fmt.Errorf("participation lookup: %w", err)
	}
	if !found {
		return "", domain.ErrNotParticipant
	}

	r := s.rooms.Join(eventID, ms)
	cc.SetRoom(eventID)

	s.broadcast(r, cc.ID, wire.Presence{
		Type:   wire.EventUserJoined,
		UserID: string(cc.Identity.UserID),
		Status: string(status),
		User: wire.UserSummary{
			ID:    string(cc.Identity.UserID),
			Name:  cc.Identity.DisplayName,
			Image: cc.Identity.AvatarURL,
		},
	})
	return status, nil
}

// Leave removes the connection from the room, clears its typing entry
// and notifies the remaining members.
func (s *Service) Leave(ms core.MemberSession, eventID domain.EventID) {
	cc := ms.Context()
	r, ok := s.rooms.Get(eventID)
	if !ok {
		cc.ClearRoom(eventID)
		return
	}
	removed := r.RemoveMember(cc.ID)
	cc.ClearRoom(eventID)

	if cc.Identity != nil && s.typing.Clear(eventID, cc.Identity.UserID) {
		s.broadcast(r, cc.ID, wire.StoppedTyping{
			Type:   wire.EventUserStoppedTyping,
			UserID: string(cc.Identity.UserID),
		})
	}
	if removed && cc.Identity != nil {
		s.broadcast(r, cc.ID, wire.Presence{
			Type:   wire.EventUserLeft,
			UserID: string(cc.Identity.UserID),
			User: wire.UserSummary{
				ID:    string(cc.Identity.UserID),
				Name:  cc.Identity.DisplayName,
				Image: cc.Identity.AvatarURL,
			},
		})
	}
	s.rooms.DropIfEmpty(eventID)
}

// Disconnect is the implicit leave on transport close, plus removal
// from the online index.
func (s *Service) Disconnect(ctx context.Context, ms core.MemberSession) {
	cc := ms.Context()
	if eventID, ok := cc.Room(); ok {
		s.Leave(ms, eventID)
	}
	if cc.Identity != nil {
		if err := s.online.Remove(ctx, cc.Identity.UserID); err != nil {
			log.Warn().Err(err).Str("module", "chat").Str("user", string(cc.Identity.UserID)).Msg("online index remove failed")
		}
	}
	log.Info().Str("module", "chat").Str("conn", string(cc.ID)).Msg("disconnected")
}

// Send validates, persists and fans a message out to every room
// member, sender included, so all clients render from the same
// authoritative echo. Participation is re-checked at send time.
func (s *Service) Send(ctx context.Context, ms core.MemberSession, eventID domain.EventID, content string) (*domain.Message, error) {
	cc := ms.Context()
	if cc.Identity == nil {
		return nil, domain.ErrInvalidCredential
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > s.maxMessageLen {
		return nil, domain.ErrMessageTooLong
	}

	_, found, err := s.oracle.Participation(ctx, eventID, cc.Identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("participation lookup: %w", err)
	}
	if !found {
		return nil, domain.ErrNotParticipant
	}

	msg, err := s.store.Persist(ctx, domain.MessageDraft{
		EventID:    eventID,
		SenderID:   cc.Identity.UserID,
		SenderName: cc.Identity.DisplayName,
		AvatarURL:  cc.Identity.AvatarURL,
		Content:    content,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "chat").Str("event", string(eventID)).Msg("persist message")
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}

	if r, ok := s.rooms.Get(eventID); ok {
		s.broadcast(r, "", wire.Message{
			Type:       wire.EventNewMessage,
			ID:         string(msg.ID),
			EventID:    string(msg.EventID),
			SenderID:   string(msg.SenderID),
			SenderName: msg.SenderName,
			Image:      msg.AvatarURL,
			Content:    msg.Content,
			CreatedAt:  msg.CreatedAt,
		})
	}
	return msg, nil
}

// Typing creates or refreshes the sender's typing entry and notifies
// the other room members. A repeat signal resets the expiry timer
// instead of stacking a second entry.
func (s *Service) Typing(ms core.MemberSession, eventID domain.EventID) {
	cc := ms.Context()
	if cc.Identity == nil {
		return
	}
	if current, ok := cc.Room(); !ok || current != eventID {
		return
	}
	s.typing.Set(eventID, cc.Identity.UserID, cc.Identity.DisplayName)
	if r, ok := s.rooms.Get(eventID); ok {
		s.broadcast(r, cc.ID, wire.Typing{
			Type:     wire.EventUserTyping,
			UserID:   string(cc.Identity.UserID),
			UserName: cc.Identity.DisplayName,
		})
	}
}

// StopTyping clears the sender's typing entry on an explicit stop.
func (s *Service) StopTyping(ms core.MemberSession, eventID domain.EventID) {
	cc := ms.Context()
	if cc.Identity == nil {
		return
	}
	if !s.typing.Clear(eventID, cc.Identity.UserID) {
		return
	}
	if r, ok := s.rooms.Get(eventID); ok {
		s.broadcast(r, cc.ID, wire.StoppedTyping{
			Type:   wire.EventUserStoppedTyping,
			UserID: string(cc.Identity.UserID),
		})
	}
}

// typingExpired fires from the tracker's timer when an entry outlives
// its TTL without a refreshing signal.
func (s *Service) typingExpired(eventID domain.EventID, userID domain.UserID) {
	if r, ok := s.rooms.Get(eventID); ok {
		s.broadcast(r, "", wire.StoppedTyping{
			Type:   wire.EventUserStoppedTyping,
			UserID: string(userID),
		})
	}
}

func (s *Service) broadcast(r *room, from core.ConnID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "chat").Msg("broadcast marshal")
		return
	}
	r.Broadcast(from, b)
}
