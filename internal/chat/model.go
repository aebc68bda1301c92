package chat

import (
	"errors"
	"time"
)

const MaxBodyLength = 4000

var (
	ErrEmptyBody   = errors.New("message body is empty")
	ErrBodyTooLong = errors.New("message body too long")
	ErrSelfMessage = errors.New("cannot message yourself")
	ErrNoRecipient = errors.New("recipient required")

	ErrUnknownRecipient = errors.New("recipient not found")
)

type Message struct {
	ID             string     `gorm:"primaryKey" json:"id"`
	ConversationID string     `gorm:"not null;index:idx_conversation_created" json:"conversation_id"`
	SenderID       string     `gorm:"not null;index" json:"sender_id"`
	RecipientID    string     `gorm:"not null;index" json:"recipient_id"`
	AppointmentID  string     `gorm:"index" json:"appointment_id,omitempty"`
	Body           string     `gorm:"not null" json:"body"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time  `gorm:"index:idx_conversation_created" json:"created_at"`
}

func (Message) TableName() string {
	return "chat_messages"
}

// ConversationID is the same for both directions between two users.
func ConversationID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

type Conversation struct {
	PeerID      string
	LastMessage *Message
	Unread      int64
}
