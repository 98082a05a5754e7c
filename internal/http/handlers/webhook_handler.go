// Instagram webhook handlers.
//
// This file exposes the boundary endpoints the messaging platform calls:
//   - GET  /webhook/instagram  (subscription verification challenge)
//   - POST /webhook/instagram  (event delivery)
//
// The delivery handler follows the platform's ACK-before-processing protocol:
// it answers 200 immediately and runs the pipeline on a detached context, so
// the platform never observes processing outcomes and never retries because
// of slow model calls. Duplicate deliveries are expected and resolved inside
// the pipeline.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/elementalclinic/go-clinic-backend/internal/services"
)

// EventPipeline is the detached per-event processor consumed by the webhook
// handler.
type EventPipeline interface {
	// HandleEvent processes one inbound event end-to-end.
	HandleEvent(ctx context.Context, ev services.InboundEvent) error
}

// WebhookHandlers groups the platform-facing endpoints.
type WebhookHandlers struct {
	pipeline    EventPipeline
	verifyToken string
	log         zerolog.Logger
}

// NewWebhookHandlers constructs webhook handlers bound to the pipeline.
func NewWebhookHandlers(pipeline EventPipeline, verifyToken string, log zerolog.Logger) *WebhookHandlers {
	return &WebhookHandlers{pipeline: pipeline, verifyToken: verifyToken, log: log}
}

//
// Inbound payload shapes (subset of the Graph API webhook format)
//

type webhookPayload struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	ID        string             `json:"id"`
	Time      int64              `json:"time"`
	Messaging []webhookMessaging `json:"messaging"`
}

type webhookMessaging struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Timestamp int64 `json:"timestamp"`
	Message   *struct {
		MID  string `json:"mid"`
		Text string `json:"text"`
	} `json:"message"`
}

// Verify answers the platform's subscription handshake: echo hub.challenge
// when hub.mode is "subscribe" and the verify token matches.
func (h *WebhookHandlers) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		h.log.Info().Msg("webhook verified")
		c.String(http.StatusOK, challenge)
		return
	}
	c.Status(http.StatusForbidden)
}

// Receive accepts an event delivery. The 200 ACK is written before any
// pipeline work; each messaging item is then processed on its own detached
// goroutine so one slow conversation does not delay another.
func (h *WebhookHandlers) Receive(c *gin.Context) {
	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		// Still ACK: the platform retries malformed-looking deliveries
		// aggressively, and there is nothing to reprocess.
		h.log.Warn().Err(err).Msg("unparseable webhook payload")
		c.String(http.StatusOK, "OK")
		return
	}

	c.String(http.StatusOK, "OK")

	if payload.Object != "instagram" {
		return
	}
	for _, entry := range payload.Entry {
		for _, m := range entry.Messaging {
			if m.Message == nil {
				continue
			}
			ev := services.InboundEvent{
				SenderID:  m.Sender.ID,
				MessageID: m.Message.MID,
				Text:      m.Message.Text,
			}
			// Detached: the ACK has been sent, processing outlives the request.
			go func(ev services.InboundEvent) {
				if err := h.pipeline.HandleEvent(context.Background(), ev); err != nil {
					h.log.Error().Err(err).
						Str("message_id", ev.MessageID).
						Msg("webhook event processing failed")
				}
			}(ev)
		}
	}
}
