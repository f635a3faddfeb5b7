package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/eventchat/internal/chat"
	"github.com/dkeye/eventchat/internal/core"
	"github.com/dkeye/eventchat/internal/domain"
	"github.com/dkeye/eventchat/pkg/wire"
)

type fakeVerifier struct {
	identities map[string]*domain.Identity
	err        error
}

func (v *fakeVerifier) Verify(_ context.Context, token, _ string) (*domain.Identity, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.identities[token], nil
}

type fakeOracle struct {
	mu     sync.Mutex
	grants map[string]domain.ParticipationStatus
	err    error
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{grants: make(map[string]domain.ParticipationStatus)}
}

func (o *fakeOracle) key(e domain.EventID, u domain.UserID) string {
	return string(e) + "|" + string(u)
}

func (o *fakeOracle) grant(e domain.EventID, u domain.UserID, s domain.ParticipationStatus) {
	o.mu.Lock()
	o.grants[o.key(e, u)] = s
	o.mu.Unlock()
}

func (o *fakeOracle) revoke(e domain.EventID, u domain.UserID) {
	o.mu.Lock()
	delete(o.grants, o.key(e, u))
	o.mu.Unlock()
}

func (o *fakeOracle) Participation(_ context.Context, e domain.EventID, u domain.UserID) (domain.ParticipationStatus, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return "", false, o.err
	}
	s, ok := o.grants[o.key(e, u)]
	return s, ok, nil
}

type fakeStore struct {
	mu    sync.Mutex
	count int
	err   error
}

func (s *fakeStore) Persist(_ context.Context, draft domain.MessageDraft) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.count++
	return &domain.Message{
		ID:         domain.MessageID(fmt.Sprintf("m-%d", s.count)),
		EventID:    draft.EventID,
		SenderID:   draft.SenderID,
		SenderName: draft.SenderName,
		AvatarURL:  draft.AvatarURL,
		Content:    draft.Content,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func (s *fakeStore) persisted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// fakeConn records every frame fanned out to it.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	c.frames = append(c.frames, append([]byte(nil), f...))
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) countType(t *testing.T, typ string) int {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.frames {
		var p wire.Probe
		require.NoError(t, json.Unmarshal(f, &p))
		if p.Type == typ {
			n++
		}
	}
	return n
}

func (c *fakeConn) lastOfType(t *testing.T, typ string, v any) bool {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		var p wire.Probe
		require.NoError(t, json.Unmarshal(c.frames[i], &p))
		if p.Type == typ {
			require.NoError(t, json.Unmarshal(c.frames[i], v))
			return true
		}
	}
	return false
}

type fixture struct {
	svc    *chat.Service
	oracle *fakeOracle
	store  *fakeStore
}

func newFixture(ttl time.Duration) *fixture {
	oracle := newFakeOracle()
	st := &fakeStore{}
	svc := chat.NewService(chat.Options{
		Verifier:  &fakeVerifier{identities: map[string]*domain.Identity{}},
		Oracle:    oracle,
		Store:     st,
		TypingTTL: ttl,
	})
	return &fixture{svc: svc, oracle: oracle, store: st}
}

func session(connID, userID, name string) (core.MemberSession, *fakeConn) {
	fc := &fakeConn{}
	cc := core.NewConnContext(core.ConnID(connID), &domain.Identity{
		UserID:      domain.UserID(userID),
		DisplayName: name,
	})
	return core.NewMemberSession(cc, fc), fc
}

func TestJoinRequiresParticipation(t *testing.T) {
	fx := newFixture(0)
	ms, _ := session("c1", "u1", "Carol")

	_, err := fx.svc.Join(context.Background(), ms, "E1")
	require.ErrorIs(t, err, domain.ErrNotParticipant)

	_, inRoom := ms.Context().Room()
	require.False(t, inRoom, "current room must stay unset after a rejected join")
	require.Equal(t, 0, fx.svc.RoomCount())
}

func TestJoinNotifiesOtherMembersOnly(t *testing.T) {
	fx := newFixture(0)
	a, aConn := session("ca", "ua", "Alice")
	b, bConn := session("cb", "ub", "Bob")
	fx.oracle.grant("E1", "ua", domain.ParticipationAttending)
	fx.oracle.grant("E1", "ub", domain.ParticipationInterested)

	_, err := fx.svc.Join(context.Background(), a, "E1")
	require.NoError(t, err)
	status, err := fx.svc.Join(context.Background(), b, "E1")
	require.NoError(t, err)
	require.Equal(t, domain.ParticipationInterested, status)

	require.Equal(t, 1, aConn.countType(t, wire.EventUserJoined))
	require.Equal(t, 0, bConn.countType(t, wire.EventUserJoined), "joiner must not receive its own join notice")

	var joined wire.Presence
	require.True(t, aConn.lastOfType(t, wire.EventUserJoined, &joined))
	require.Equal(t, "ub", joined.UserID)
	require.Equal(t, "Bob", joined.User.Name)
	require.Equal(t, "interested", joined.Status)
}

func TestJoinSecondRoomWithoutLeaving(t *testing.T) {
	fx := newFixture(0)
	a, _ := session("ca", "ua", "Alice")
	fx.oracle.grant("E1", "ua", domain.ParticipationAttending)
	fx.oracle.grant("E2", "ua", domain.ParticipationAttending)

	_, err := fx.svc.Join(context.Background(), a, "E1")
	require.NoError(t, err)
	_, err = fx.svc.Join(context.Background(), a, "E2")
	require.ErrorIs(t, err, domain.ErrAlreadyInRoom)

	room, ok := a.Context().Room()
	require.True(t, ok)
	require.Equal(t, domain.EventID("E1"), room)
}

func TestSendBroadcastsCanonicalRecordToAll(t *testing.T) {
	fx := newFixture(0)
	a, aConn := session("ca", "ua", "Alice")
	b, bConn := session("cb", "ub", "Bob")
	fx.oracle.grant("E1", "ua", domain.ParticipationAttending)
	fx.oracle.grant("E1", "ub", domain.ParticipationAttending)

	_, err := fx.svc.Join(context.Background(), a, "E1")
	require.NoError(t, err)
	_, err = fx.svc.Join(context.Background(), b, "E1")
	require.NoError(t, err)

	msg, err := fx.svc.Send(context.Background(), a, "E1", "hi")
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)
	require.False(t, msg.CreatedAt.IsZero())

	for _, fc := range []*fakeConn{aConn, bConn} {
		var got wire.Message
		require.True(t, fc.lastOfType(t, wire.EventNewMessage, &got), "sender included in the echo")
		require.Equal(t, "hi", got.Content)
		require.Equal(t, string(msg.ID), got.ID)
		require.Equal(t, "ua", got.SenderID)
	}
}

func TestSendToUnjoinedRoomReachesNobody(t *testing.T) {
	fx := newFixture(0)
	a, _ := session("ca", "ua", "Alice")
	b, bConn := session("cb", "ub", "Bob")
	fx.oracle.grant("E1", "ua", domain.ParticipationAttending)
	fx.oracle.grant("E1", "ub", domain.ParticipationAttending)

	_, err := fx.svc.Join(context.Background(), a, "E1")
	require.NoError(t, err)
	_, err = fx.svc.Join(context.Background(), b, "E1")
	require.NoError(t, err)

	before := bConn.countType(t, wire.EventNewMessage)
	_, err = fx.svc.Send(context.Background(), a, "E2", "hello E2")
	require.ErrorIs(t, err, domain.ErrNotParticipant)
	require.Equal(t, before, bConn.countType(t, wire.EventNewMessage))
}

func TestSendValidation(t *testing.T) {
	fx := newFixture(0)
	a, _ := session("ca", "ua", "Alice")
	fx.oracle.grant("E1", "ua", domain.ParticipationAttending)
	_, err := fx.svc.Join(context.Background(), a, "E1")
	require.NoError(t, err)

	_, err = fx.svc.Send(context.Background(), a, "E1", "   \t\n")
	require.ErrorIs(t, err, domain.ErrEmptyMessage)

	_, err = fx.svc.Send(context.Background(), a, "E1", strings.Repeat("x", 1001))
	require.ErrorIs(t, err, domain.ErrMessageTooLong)

	require.Equal(t, 0, fx.store.persisted())
}

func TestSendRechecksParticipation(t *testing.T) {
	fx := newFixture(0)
	a, _ := session("ca", "ua", "Alice")
	fx.oracle.grant("E1", "ua", domain.ParticipationAttending)
	_, err := fx.svc.Join(context.Background(), a, "E1")
	require.NoError(t, err)

	fx.oracle.revoke("E1", "ua")
	_, err = fx.svc.Send(context.Background(), a, "E1", "hi")
	require.ErrorIs(t, err, domain.ErrNotParticipant)
	require.Equal(t, 0, fx.store.persisted(), "revoked sender must not reach the store")
}

func TestSendPersistenceFailureAbortsBroadcast(t *testing.T) {
	fx := newFixture(0)
	a, aConn := session("ca", "ua", "Alice")
	fx.oracle.grant("E1", "ua", domain.ParticipationAttending)
	_, err := fx.svc.Join(context.Background(), a, "E1")
	require.NoError(t, err)

	fx.store.err = errors.New("disk full")
	_, err = fx.svc.Send(context.Background(), a, "E1", "hi")
	require.ErrorIs(t, err, domain.ErrPersistence)
	require.Equal(t, 0, aConn.countType(t, wire.EventNewMessage))
}

func TestTypingExpiresExactlyOnce(t *testing.T) {
	fx := newFixture(80 * time.Millisecond)
	a, _ := session("ca", "ua", "Alice")
	b, bConn := session("cb", "ub", "Bob")
	fx.oracle.grant("E1", "ua", domain.ParticipationAttending)
	fx.oracle.grant("E1", "ub", domain.ParticipationAttending)
	_, err := fx.svc.Join(context.Background(), a, "E1")
	require.NoError(t, err)
	_, err = fx.svc.Join(context.Background(), b, "E1")
	require.NoError(t, err)

	fx.svc.Typing(a, "E1")
	require.Equal(t, 1, bConn.countType(t, wire.EventUserTyping))

	require.Eventually(t, func() bool {
		return bConn.countType(t, wire.EventUserStoppedTyping) == 1
	}, time.Second, 10*time.Millisecond)

	// No second stop after the entry is gone.
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, 1, bConn.countType(t, wire.EventUserStoppedTyping))
}

func TestTypingSignalResetsTimer(t *testing.T) {
	fx := newFixture(200 * time.Millisecond)
	a, _ := session("ca", "ua", "Alice")
	b, bConn := session("cb", "ub", "Bob")
	fx.oracle.grant("E1", "ua", domain.ParticipationAttending)
	fx.oracle.grant("E1", "ub", domain.ParticipationAttending)
	_, err := fx.svc.Join(context.Background(), a, "E1")
	require.NoError(t, err)
	_, err = fx.svc.Join(context.Background(), b, "E1")
	require.NoError(t, err)

	fx.svc.Typing(a, "E1")
	time.Sleep(100 * time.Millisecond)
	fx.svc.Typing(a, "E1")
	time.Sleep(100 * time.Millisecond)
	// Past the original deadline but only halfway through the
	// refreshed one: the reset timer must not have fired yet.
	require.Equal(t, 0, bConn.countType(t, wire.EventUserStoppedTyping))

	require.Eventually(t, func() bool {
		return bConn.countType(t, wire.EventUserStoppedTyping) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestExplicitStopTyping(t *testing.T) {
	fx := newFixture(time.Minute)
	a, _ := session("ca", "ua", "Alice")
	b, bConn := session("cb", "ub", "Bob")
	fx.oracle.grant("E1", "ua", domain.ParticipationAttending)
	fx.oracle.grant("E1", "ub", domain.ParticipationAttending)
	_, err := fx.svc.Join(context.Background(), a, "E1")
	require.NoError(t, err)
	_, err = fx.svc.Join(context.Background(), b, "E1")
	require.NoError(t, err)

	fx.svc.Typing(a, "E1")
	fx.svc.StopTyping(a, "E1")
	require.Equal(t, 1, bConn.countType(t, wire.EventUserStoppedTyping))

	// A stop without a live entry broadcasts nothing.
	fx.svc.StopTyping(a, "E1")
	require.Equal(t, 1, bConn.countType(t, wire.EventUserStoppedTyping))

	var stopped wire.StoppedTyping
	require.True(t, bConn.lastOfType(t, wire.EventUserStoppedTyping, &stopped))
	require.Equal(t, "ua", stopped.UserID)
}

func TestLeaveNotifiesAndClearsState(t *testing.T) {
	fx := newFixture(time.Minute)
	a, _ := session("ca", "ua", "Alice")
	b, bConn := session("cb", "ub", "Bob")
	fx.oracle.grant("E1", "ua", domain.ParticipationAttending)
	fx.oracle.grant("E1", "ub", domain.ParticipationAttending)
	_, err := fx.svc.Join(context.Background(), a, "E1")
	require.NoError(t, err)
	_, err = fx.svc.Join(context.Background(), b, "E1")
	require.NoError(t, err)

	fx.svc.Typing(a, "E1")
	fx.svc.Leave(a, "E1")

	require.Equal(t, 1, bConn.countType(t, wire.EventUserStoppedTyping))
	require.Equal(t, 1, bConn.countType(t, wire.EventUserLeft))
	_, inRoom := a.Context().Room()
	require.False(t, inRoom)
}

func TestDisconnectIsImplicitLeave(t *testing.T) {
	fx := newFixture(time.Minute)
	a, _ := session("ca", "ua", "Alice")
	b, bConn := session("cb", "ub", "Bob")
	fx.oracle.grant("E1", "ua", domain.ParticipationAttending)
	fx.oracle.grant("E1", "ub", domain.ParticipationAttending)
	_, err := fx.svc.Join(context.Background(), a, "E1")
	require.NoError(t, err)
	_, err = fx.svc.Join(context.Background(), b, "E1")
	require.NoError(t, err)

	fx.svc.Disconnect(context.Background(), a)
	require.Equal(t, 1, bConn.countType(t, wire.EventUserLeft))

	fx.svc.Disconnect(context.Background(), b)
	require.Equal(t, 0, fx.svc.RoomCount(), "empty room must be garbage collected")
}

func TestAuthenticate(t *testing.T) {
	verifier := &fakeVerifier{identities: map[string]*domain.Identity{
		"tok": {UserID: "ua", DisplayName: "Alice"},
	}}
	svc := chat.NewService(chat.Options{
		Verifier: verifier,
		Oracle:   newFakeOracle(),
		Store:    &fakeStore{},
	})

	_, err := svc.Authenticate(context.Background(), "", "")
	require.ErrorIs(t, err, domain.ErrNoCredential)

	_, err = svc.Authenticate(context.Background(), "bogus", "")
	require.ErrorIs(t, err, domain.ErrInvalidCredential)

	identity, err := svc.Authenticate(context.Background(), "tok", "")
	require.NoError(t, err)
	require.Equal(t, domain.UserID("ua"), identity.UserID)

	verifier.err = errors.New("verifier down")
	_, err = svc.Authenticate(context.Background(), "tok", "")
	require.ErrorIs(t, err, domain.ErrVerifier)
}
