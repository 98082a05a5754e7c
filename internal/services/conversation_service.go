// Package services – ConversationService
//
// This file implements the ConversationService, which owns the session
// lifecycle (exactly one ACTIVE conversation per user) and builds the
// bounded context window handed to the model calls. Session-slot races are
// resolved by the store: creating a second ACTIVE conversation fails at the
// partial unique index and the loser re-reads the winner, so no
// application-level locking is needed.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/elementalclinic/go-clinic-backend/internal/domain"
	"github.com/elementalclinic/go-clinic-backend/internal/llm"
	"github.com/elementalclinic/go-clinic-backend/internal/repo"
)

// DefaultContextWindow is the number of most recent messages included in a
// model context.
const DefaultContextWindow = 15

// ConversationService resolves, opens, and closes conversation sessions and
// loads bounded context windows.
type ConversationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// WindowSize caps the context window; 0 selects DefaultContextWindow.
	WindowSize int
}

// NewConversationService constructs a ConversationService with the default
// context window.
func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{DB: db, WindowSize: DefaultContextWindow}
}

// EnsureActiveConversation returns the most recently created ACTIVE
// conversation for userID, creating one when none exists. When a concurrent
// create wins the unique ACTIVE slot, the winner's row is returned.
func (s *ConversationService) EnsureActiveConversation(ctx context.Context, userID string) (*domain.Conversation, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "EnsureActiveConversation",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	conv, err := repo.FindActiveConversation(ctx, s.DB, userID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conv, err = repo.CreateConversation(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrActiveConversationExists) {
		// Lost the slot race; the winner's conversation is the session.
		return repo.FindActiveConversation(ctx, s.DB, userID)
	}
	return conv, err
}

// CloseConversation moves a conversation to a terminal status. Closing an
// already-closed conversation is a no-op, not an error; only a missing
// conversation yields ErrConversationNotFound.
func (s *ConversationService) CloseConversation(ctx context.Context, conversationID, status string) error {
	if status != domain.ConversationCompleted && status != domain.ConversationAppointmentBooked {
		return ErrInvalidStatus
	}

	conv, err := repo.GetConversation(ctx, s.DB, conversationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrConversationNotFound
	}
	if err != nil {
		return err
	}
	if conv.Status != domain.ConversationActive {
		return nil
	}
	return repo.UpdateConversationStatus(ctx, s.DB, conversationID, status)
}

// StartNewConversation closes the user's current ACTIVE conversation (if
// any) as COMPLETED and opens a fresh one. The old session is never left
// dangling in ACTIVE state.
func (s *ConversationService) StartNewConversation(ctx context.Context, userID string) (*domain.Conversation, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "StartNewConversation",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	current, err := repo.FindActiveConversation(ctx, s.DB, userID)
	if err == nil {
		if cerr := repo.UpdateConversationStatus(ctx, s.DB, current.ID, domain.ConversationCompleted); cerr != nil {
			return nil, cerr
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conv, err := repo.CreateConversation(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrActiveConversationExists) {
		return repo.FindActiveConversation(ctx, s.DB, userID)
	}
	return conv, err
}

// LoadContext builds the bounded context window for a conversation: the last
// WindowSize messages in chronological order (count total, skip
// max(0, total-window), take window ascending). A missing conversation
// yields ErrConversationNotFound; an existing conversation with no messages
// yields an empty window, which is valid.
func (s *ConversationService) LoadContext(ctx context.Context, conversationID string) (*llm.Context, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "LoadContext",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)))
	defer span.End()

	conv, err := repo.GetConversation(ctx, s.DB, conversationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}

	window := s.WindowSize
	if window <= 0 {
		window = DefaultContextWindow
	}

	total, err := repo.CountMessages(ctx, s.DB, conversationID)
	if err != nil {
		return nil, err
	}
	offset := int(total) - window
	if offset < 0 {
		offset = 0
	}

	msgs, err := repo.ListMessagesWindow(ctx, s.DB, conversationID, offset, window)
	if err != nil {
		return nil, err
	}

	out := &llm.Context{
		ConversationID: conv.ID,
		UserID:         conv.UserID,
		Messages:       make([]llm.Turn, 0, len(msgs)),
	}
	for _, m := range msgs {
		out.Messages = append(out.Messages, llm.Turn{Role: m.Role, Content: m.Content})
	}
	return out, nil
}
