package dto

type ChatMessageResponse struct {
	ID            string  `json:"id" example:"msg_abc123"`
	SenderID      string  `json:"sender_id" example:"user_abc123"`
	RecipientID   string  `json:"recipient_id" example:"user_xyz789"`
	AppointmentID string  `json:"appointment_id,omitempty" example:"appt_abc123"`
	Body          string  `json:"body" example:"Hi! Looking forward to our session."`
	ReadAt        *string `json:"read_at,omitempty"`
	CreatedAt     string  `json:"created_at" example:"2024-01-15T10:30:00Z"`
}

type ChatHistoryResponse struct {
	PeerID   string                `json:"peer_id" example:"user_xyz789"`
	Messages []ChatMessageResponse `json:"messages"`
}

type ConversationResponse struct {
	PeerID      string              `json:"peer_id" example:"user_xyz789"`
	LastMessage ChatMessageResponse `json:"last_message"`
	Unread      int64               `json:"unread" example:"2"`
}

type ConversationListResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}
