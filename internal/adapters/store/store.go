package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dkeye/eventchat/internal/domain"
)

// MessageStore persists chat messages. The id and timestamp of the
// canonical record are assigned here, never by the chat core.
type MessageStore struct {
	db *gorm.DB
}

func NewMessageStore(db *gorm.DB) *MessageStore {
	return &MessageStore{db: db}
}

func (s *MessageStore) Persist(ctx context.Context, draft domain.MessageDraft) (*domain.Message, error) {
	row := MessageRow{
		ID:         uuid.NewString(),
		EventID:    string(draft.EventID),
		SenderID:   string(draft.SenderID),
		SenderName: draft.SenderName,
		AvatarURL:  draft.AvatarURL,
		Content:    draft.Content,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	return &domain.Message{
		ID:         domain.MessageID(row.ID),
		EventID:    domain.EventID(row.EventID),
		SenderID:   domain.UserID(row.SenderID),
		SenderName: row.SenderName,
		AvatarURL:  row.AvatarURL,
		Content:    row.Content,
		CreatedAt:  row.CreatedAt,
	}, nil
}

// ParticipationStore answers whether a user participates in an event,
// backed by the externally-maintained event_participants table.
type ParticipationStore struct {
	db *gorm.DB
}

func NewParticipationStore(db *gorm.DB) *ParticipationStore {
	return &ParticipationStore{db: db}
}

func (s *ParticipationStore) Participation(ctx context.Context, eventID domain.EventID, userID domain.UserID) (domain.ParticipationStatus, bool, error) {
	var row ParticipantRow
	err := s.db.WithContext(ctx).
		Where("event_id = ? AND user_id = ?", string(eventID), string(userID)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return domain.ParticipationStatus(row.Status), true, nil
}
