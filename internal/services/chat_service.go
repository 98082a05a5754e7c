// Package services – ChatService
//
// This file implements the synchronous web-chat surface: the same
// conversation pipeline as the webhook path, but invoked by an interface
// layer (e.g. a site chat widget) that waits for the reply. All web-chat
// traffic runs under one fixed virtual user identity; history access is
// checked against that identity so widget sessions cannot read platform
// conversations.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/elementalclinic/go-clinic-backend/internal/domain"
	"github.com/elementalclinic/go-clinic-backend/internal/repo"
)

// webChatPlatformID is the fixed platform identifier of the virtual web-chat
// user.
const webChatPlatformID = "web-chat-user"

// ChatService exposes the synchronous conversation API.
type ChatService struct {
	DB            *gorm.DB
	Conversations *ConversationService
	Appointments  *AppointmentService
	Generator     ReplyGenerator
	Log           zerolog.Logger

	// MaxMessageRunes caps inbound web messages by rune length; 0 disables
	// the check.
	MaxMessageRunes int
}

// ChatMessageResult is the outcome of one web-chat exchange.
type ChatMessageResult struct {
	Reply              string
	ConversationID     string
	AppointmentCreated bool
}

// SendMessage appends a user message to the given conversation (or the
// active web-chat conversation when none is given), generates the assistant
// reply, and opportunistically records an extracted booking. Booking
// failures are logged and reported as "not created", never as an error: the
// reply already exists.
func (s *ChatService) SendMessage(ctx context.Context, message, conversationID string) (*ChatMessageResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(message) > s.MaxMessageRunes {
		return nil, ErrMessageTooLong
	}

	user, err := s.webChatUser(ctx)
	if err != nil {
		return nil, err
	}

	conv, err := s.resolveConversation(ctx, user.ID, conversationID)
	if err != nil {
		return nil, err
	}

	if _, _, err := repo.TryInsertMessage(ctx, s.DB, conv.ID, webDedupKey(), domain.RoleUser, message); err != nil {
		return nil, err
	}
	_ = repo.TouchConversation(ctx, s.DB, conv.ID)

	convCtx, err := s.Conversations.LoadContext(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	reply := s.Generator.GenerateReply(ctx, message, convCtx)

	if _, _, err := repo.TryInsertMessage(ctx, s.DB, conv.ID, webDedupKey(), domain.RoleAssistant, reply); err != nil {
		return nil, err
	}

	created := false
	if updatedCtx, cerr := s.Conversations.LoadContext(ctx, conv.ID); cerr == nil {
		if cand := s.Generator.ExtractAppointment(ctx, message, reply, updatedCtx); cand != nil {
			if _, rerr := s.Appointments.Record(ctx, cand, user.ID, conv.ID); rerr != nil {
				s.Log.Error().Err(rerr).Str("conversation_id", conv.ID).Msg("web-chat booking failed")
			} else {
				created = true
			}
		}
	}

	return &ChatMessageResult{
		Reply:              reply,
		ConversationID:     conv.ID,
		AppointmentCreated: created,
	}, nil
}

// History returns the ordered messages of a web-chat conversation. A
// conversation that does not exist or belongs to a different identity yields
// ErrConversationNotFound; the two cases are indistinguishable on purpose.
func (s *ChatService) History(ctx context.Context, conversationID string) ([]domain.Message, error) {
	user, err := s.webChatUser(ctx)
	if err != nil {
		return nil, err
	}
	conv, err := repo.GetConversation(ctx, s.DB, conversationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	if conv.UserID != user.ID {
		return nil, ErrConversationNotFound
	}
	return repo.ListMessages(ctx, s.DB, conversationID)
}

// StartNewConversation closes the current active web-chat conversation and
// opens a fresh one.
func (s *ChatService) StartNewConversation(ctx context.Context) (*domain.Conversation, error) {
	user, err := s.webChatUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.Conversations.StartNewConversation(ctx, user.ID)
}

// resolveConversation validates a caller-supplied conversation id against
// the web-chat identity; anything invalid falls back to the active session.
func (s *ChatService) resolveConversation(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	if conversationID != "" {
		conv, err := repo.GetConversation(ctx, s.DB, conversationID)
		if err == nil && conv.UserID == userID {
			return conv, nil
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return s.Conversations.EnsureActiveConversation(ctx, userID)
}

func (s *ChatService) webChatUser(ctx context.Context) (*domain.User, error) {
	username := webChatPlatformID
	fullName := "Web Chat User"
	return repo.FindOrCreateUser(ctx, s.DB, webChatPlatformID, &username, &fullName)
}

// webDedupKey synthesizes a unique dedup key for web-chat turns, which have
// no natural platform id.
func webDedupKey() string { return "web-" + uuid.NewString() }
