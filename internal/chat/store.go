package chat

import (
	"context"
	"slices"
	"time"

	"github.com/eleven-am/consult-backend/internal/shared"
	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Message{})
}

func (s *Store) Create(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = shared.NewID("msg_")
	}
	m.ConversationID = ConversationID(m.SenderID, m.RecipientID)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(m).Error
}

// History returns up to limit messages between the two users older than
// before (when set), oldest first.
func (s *Store) History(ctx context.Context, userID, peerID string, before *time.Time, limit int) ([]*Message, error) {
	var msgs []*Message
	q := s.db.WithContext(ctx).Where("conversation_id = ?", ConversationID(userID, peerID))
	if before != nil {
		q = q.Where("created_at < ?", before.UTC())
	}
	if err := q.Order("created_at DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// MarkRead marks every unread message from peerID to userID as read.
func (s *Store) MarkRead(ctx context.Context, userID, peerID string) (int64, error) {
	result := s.db.WithContext(ctx).Model(&Message{}).
		Where("recipient_id = ? AND sender_id = ? AND read_at IS NULL", userID, peerID).
		Update("read_at", time.Now().UTC())
	return result.RowsAffected, result.Error
}

// Conversations returns the latest message per peer, newest first.
func (s *Store) Conversations(ctx context.Context, userID string, limit int) ([]*Conversation, error) {
	latest := s.db.Model(&Message{}).
		Select("conversation_id, MAX(created_at) AS latest").
		Where("sender_id = ? OR recipient_id = ?", userID, userID).
		Group("conversation_id")

	var msgs []*Message
	err := s.db.WithContext(ctx).Table("chat_messages AS m").
		Select("m.*").
		Joins("JOIN (?) AS l ON m.conversation_id = l.conversation_id AND m.created_at = l.latest", latest).
		Order("m.created_at DESC").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}

	var unread []struct {
		SenderID string
		Count    int64
	}
	err = s.db.WithContext(ctx).Model(&Message{}).
		Select("sender_id, COUNT(*) AS count").
		Where("recipient_id = ? AND read_at IS NULL", userID).
		Group("sender_id").
		Scan(&unread).Error
	if err != nil {
		return nil, err
	}
	unreadBy := make(map[string]int64, len(unread))
	for _, u := range unread {
		unreadBy[u.SenderID] = u.Count
	}

	seen := make(map[string]struct{}, len(msgs))
	out := make([]*Conversation, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.ConversationID]; ok {
			continue
		}
		seen[m.ConversationID] = struct{}{}

		peer := m.RecipientID
		if peer == userID {
			peer = m.SenderID
		}
		out = append(out, &Conversation{PeerID: peer, LastMessage: m, Unread: unreadBy[peer]})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
