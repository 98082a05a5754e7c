// Web-chat HTTP handlers.
//
// This file exposes the synchronous REST surface used by the site chat
// widget:
//   - POST /chat/message            (send a message, wait for the reply)
//   - GET  /chat/conversation/:id   (conversation history)
//   - POST /chat/conversation       (start a fresh conversation)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/elementalclinic/go-clinic-backend/internal/domain"
	"github.com/elementalclinic/go-clinic-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// ChatService defines the synchronous conversation operations consumed by
// HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ChatService interface {
	// SendMessage appends a user message, generates the reply, and reports
	// whether an appointment was recorded as a side effect.
	SendMessage(ctx context.Context, message, conversationID string) (*services.ChatMessageResult, error)
	// History returns the ordered messages of a conversation owned by the
	// web-chat identity.
	History(ctx context.Context, conversationID string) ([]domain.Message, error)
	// StartNewConversation closes the active web-chat session and opens a
	// fresh one.
	StartNewConversation(ctx context.Context) (*domain.Conversation, error)
}

// ChatHandlers groups the web-chat endpoints.
type ChatHandlers struct {
	chatSvc ChatService
}

// NewChatHandlers constructs chat handlers bound to the given service.
func NewChatHandlers(chatSvc ChatService) *ChatHandlers {
	return &ChatHandlers{chatSvc: chatSvc}
}

//
// DTOs
//

// SendMessageRequest is the JSON payload for sending a web-chat message.
type SendMessageRequest struct {
	// Message is the user text. It must be non-empty.
	Message string `json:"message" binding:"required,min=1" example:"Hi, I'd like to know more about lip fillers"`
	// ConversationID optionally continues an existing conversation.
	ConversationID string `json:"conversation_id,omitempty" example:"7b339b6e-3a03-4a13-8c8f-3f0ecb7bb1b2"`
}

// SendMessageResponse is the JSON envelope for a completed exchange.
type SendMessageResponse struct {
	Response           string `json:"response"`
	ConversationID     string `json:"conversation_id"`
	AppointmentCreated bool   `json:"appointment_created"`
}

// HistoryMessage is one turn in a conversation history response.
type HistoryMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryResponse contains the ordered messages of a conversation.
type HistoryResponse struct {
	Messages []HistoryMessage `json:"messages"`
}

// NewConversationResponse carries the id of a freshly opened conversation.
type NewConversationResponse struct {
	ConversationID string `json:"conversation_id"`
}

//
// Handlers
//

// SendMessage godoc
// @ID          sendChatMessage
// @Summary     Send a web-chat message and receive the assistant reply
// @Accept      json
// @Produce     json
// @Param       body body SendMessageRequest true "message payload"
// @Success     200 {object} SendMessageResponse
// @Failure     400 {object} ErrorResponse
// @Failure     500 {object} ErrorResponse
// @Router      /chat/message [post]
func (h *ChatHandlers) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message is required and must be a non-empty string")
		return
	}

	res, err := h.chatSvc.SendMessage(c.Request.Context(), req.Message, req.ConversationID)
	switch {
	case errors.Is(err, services.ErrEmptyMessage):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message is required and must be a non-empty string")
		return
	case errors.Is(err, services.ErrMessageTooLong):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message too long")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeChatFailed, "failed to process message")
		return
	}

	ok(c, http.StatusOK, SendMessageResponse{
		Response:           res.Reply,
		ConversationID:     res.ConversationID,
		AppointmentCreated: res.AppointmentCreated,
	})
}

// History godoc
// @ID          getConversationHistory
// @Summary     Get the ordered messages of a web-chat conversation
// @Produce     json
// @Param       id path string true "conversation id"
// @Success     200 {object} HistoryResponse
// @Failure     404 {object} ErrorResponse
// @Failure     500 {object} ErrorResponse
// @Router      /chat/conversation/{id} [get]
func (h *ChatHandlers) History(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id is required")
		return
	}

	msgs, err := h.chatSvc.History(c.Request.Context(), id)
	switch {
	case errors.Is(err, services.ErrConversationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "failed to get conversation history")
		return
	}

	out := HistoryResponse{Messages: make([]HistoryMessage, 0, len(msgs))}
	for _, m := range msgs {
		out.Messages = append(out.Messages, HistoryMessage{
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	ok(c, http.StatusOK, out)
}

// StartConversation godoc
// @ID          startConversation
// @Summary     Close the active web-chat conversation and open a fresh one
// @Produce     json
// @Success     200 {object} NewConversationResponse
// @Failure     500 {object} ErrorResponse
// @Router      /chat/conversation [post]
func (h *ChatHandlers) StartConversation(c *gin.Context) {
	conv, err := h.chatSvc.StartNewConversation(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, "failed to create conversation")
		return
	}
	ok(c, http.StatusOK, NewConversationResponse{ConversationID: conv.ID})
}
