package chat

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/eleven-am/consult-backend/internal/dto"
	"github.com/eleven-am/consult-backend/internal/shared"
)

// Recipients resolves the user a message is addressed to. A missing user
// yields shared.ErrNotFound.
type Recipients interface {
	IsBlocked(ctx context.Context, userID string) (bool, error)
}

// AppointmentChecker confirms that both users take part in an appointment.
// Errors wrap shared.ErrNotFound or shared.ErrForbidden.
type AppointmentChecker interface {
	CheckParticipants(ctx context.Context, appointmentID, userA, userB string) error
}

type Service struct {
	store        *Store
	users        Recipients
	appointments AppointmentChecker
}

// NewService builds the chat service. users and appointments may be nil, in
// which case recipients and appointment links are not checked.
func NewService(store *Store, users Recipients, appointments AppointmentChecker) *Service {
	return &Service{store: store, users: users, appointments: appointments}
}

// PostMessage validates and stores a message. Live delivery is left to the
// caller.
func (s *Service) PostMessage(ctx context.Context, senderID, recipientID, appointmentID, body string) (dto.ChatMessageResponse, error) {
	body = strings.TrimSpace(body)
	switch {
	case recipientID == "":
		return dto.ChatMessageResponse{}, ErrNoRecipient
	case senderID == recipientID:
		return dto.ChatMessageResponse{}, ErrSelfMessage
	case body == "":
		return dto.ChatMessageResponse{}, ErrEmptyBody
	case utf8.RuneCountInString(body) > MaxBodyLength:
		return dto.ChatMessageResponse{}, ErrBodyTooLong
	}

	if err := s.checkRecipient(ctx, recipientID); err != nil {
		return dto.ChatMessageResponse{}, err
	}
	if appointmentID != "" && s.appointments != nil {
		if err := s.appointments.CheckParticipants(ctx, appointmentID, senderID, recipientID); err != nil {
			return dto.ChatMessageResponse{}, err
		}
	}

	m := &Message{
		SenderID:      senderID,
		RecipientID:   recipientID,
		AppointmentID: appointmentID,
		Body:          body,
	}
	if err := s.store.Create(ctx, m); err != nil {
		return dto.ChatMessageResponse{}, err
	}
	return ToResponse(m), nil
}

func (s *Service) checkRecipient(ctx context.Context, recipientID string) error {
	if s.users == nil {
		return nil
	}
	blocked, err := s.users.IsBlocked(ctx, recipientID)
	if errors.Is(err, shared.ErrNotFound) || (err == nil && blocked) {
		return ErrUnknownRecipient
	}
	return err
}

func ToResponse(m *Message) dto.ChatMessageResponse {
	return dto.ChatMessageResponse{
		ID:            m.ID,
		SenderID:      m.SenderID,
		RecipientID:   m.RecipientID,
		AppointmentID: m.AppointmentID,
		Body:          m.Body,
		ReadAt:        shared.FormatTimePtr(m.ReadAt),
		CreatedAt:     shared.FormatTime(m.CreatedAt),
	}
}
