// Package services – Pipeline
//
// This file implements the per-event message-processing pipeline: dedup
// check, session resolution, user-turn persistence, context build, reply
// generation, assistant-turn persistence, appointment extraction, and the
// optional booking side effect. The webhook handler ACKs the platform before
// HandleEvent runs, so the pipeline's outcome is never observed by the
// original caller; failures are logged, never surfaced outward except as a
// best-effort apology message to the end user.
//
// Failure containment per stage:
//   - non-text or id-less events are skipped silently, not errored
//   - a duplicate dedup key ends processing as a no-op (both at the upfront
//     existence check and at the authoritative unique insert)
//   - reply generation never fails (fixed fallback text)
//   - reply delivery failure is fatal to the remainder of the event but does
//     not roll back already-saved messages
//   - extraction failure means "not enough information yet", never an error
//   - booking failure after the primary reply was delivered is logged and
//     swallowed
package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/elementalclinic/go-clinic-backend/internal/llm"
	"github.com/elementalclinic/go-clinic-backend/internal/messenger"
	"github.com/elementalclinic/go-clinic-backend/internal/repo"

	"github.com/elementalclinic/go-clinic-backend/internal/domain"
)

// Fixed user-facing texts for the pipeline's degraded paths. The booking
// confirmation is a template, deliberately not model-generated.
const (
	historyApology = "I'm sorry, I'm having trouble accessing our conversation history. Could you please try again?"
	genericApology = "I'm sorry, I'm having some technical difficulties right now. Please try again in a moment, or feel free to reach out directly."

	bookingConfirmation = "Perfect! I've saved your appointment details. Our team will contact you shortly to confirm the time."
)

// InboundEvent is one normalized webhook delivery: who sent it, the platform
// message id (the dedup key), and the text. Events without id or text never
// enter the pipeline.
type InboundEvent struct {
	SenderID  string
	MessageID string
	Text      string
}

// ReplyGenerator is the model capability the pipeline depends on.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, currentMessage string, convCtx *llm.Context) string
	ExtractAppointment(ctx context.Context, currentMessage, lastReply string, convCtx *llm.Context) *llm.AppointmentCandidate
}

// ProfileFetcher optionally resolves platform profile data on first contact.
type ProfileFetcher interface {
	GetUserProfile(ctx context.Context, userID string) (*messenger.UserProfile, error)
}

// Pipeline orchestrates the processing of one inbound event end-to-end. All
// collaborators are injected; the pipeline holds no state of its own, which
// makes concurrent HandleEvent calls (including duplicate deliveries of the
// same platform message) safe by construction.
type Pipeline struct {
	DB            *gorm.DB
	Conversations *ConversationService
	Appointments  *AppointmentService
	Generator     ReplyGenerator
	Sender        messenger.Sender
	Profile       ProfileFetcher // optional
	Log           zerolog.Logger
}

// HandleEvent processes one inbound event. The returned error is for the
// caller's log only; by the time HandleEvent runs, the webhook has been
// ACKed and nothing can be reported to the platform.
func (p *Pipeline) HandleEvent(ctx context.Context, ev InboundEvent) error {
	tr := otel.Tracer("services/Pipeline")
	ctx, span := tr.Start(ctx, "HandleEvent",
		trace.WithAttributes(
			attribute.String("sender.id", ev.SenderID),
			attribute.String("message.id", ev.MessageID),
		),
	)
	defer span.End()

	// Non-text events and events without a platform id are ignored.
	if ev.Text == "" || ev.MessageID == "" {
		p.Log.Debug().Str("sender_id", ev.SenderID).Msg("skipping non-text or id-less event")
		return nil
	}

	// Cheap short-circuit; the unique insert below remains authoritative.
	seen, err := repo.MessageExists(ctx, p.DB, ev.MessageID)
	if err != nil {
		return p.fail(ctx, ev.SenderID, err, "dedup check failed")
	}
	if seen {
		p.Log.Debug().Str("message_id", ev.MessageID).Msg("duplicate delivery, skipping")
		return nil
	}

	user, err := p.resolveUser(ctx, ev.SenderID)
	if err != nil {
		return p.fail(ctx, ev.SenderID, err, "user resolution failed")
	}

	conv, err := p.Conversations.EnsureActiveConversation(ctx, user.ID)
	if err != nil {
		return p.fail(ctx, ev.SenderID, err, "session resolution failed")
	}

	// Authoritative dedup layer: a concurrent delivery of the same message
	// id loses here and the event ends as a no-op.
	_, inserted, err := repo.TryInsertMessage(ctx, p.DB, conv.ID, ev.MessageID, domain.RoleUser, ev.Text)
	if err != nil {
		return p.fail(ctx, ev.SenderID, err, "user message insert failed")
	}
	if !inserted {
		p.Log.Debug().Str("message_id", ev.MessageID).Msg("lost insert race, skipping")
		return nil
	}
	_ = repo.TouchConversation(ctx, p.DB, conv.ID)

	convCtx, err := p.Conversations.LoadContext(ctx, conv.ID)
	if err != nil {
		// Data absence, not transience: apologize and stop, no retry.
		p.sendBestEffort(ctx, ev.SenderID, historyApology)
		p.Log.Error().Err(err).Str("conversation_id", conv.ID).Msg("context load failed")
		return err
	}

	reply := p.Generator.GenerateReply(ctx, ev.Text, convCtx)

	if err := p.Sender.SendMessage(ctx, ev.SenderID, reply); err != nil {
		// Fatal to this event; saved messages stay.
		p.Log.Error().Err(err).Str("sender_id", ev.SenderID).Msg("reply delivery failed")
		return err
	}

	if _, _, err := repo.TryInsertMessage(ctx, p.DB, conv.ID, assistantDedupKey(), domain.RoleAssistant, reply); err != nil {
		p.Log.Error().Err(err).Str("conversation_id", conv.ID).Msg("assistant message insert failed")
		return err
	}

	p.maybeBook(ctx, ev, user.ID, conv.ID, reply)
	return nil
}

// maybeBook re-reads the context (now including the assistant turn), runs
// extraction, and records an accepted candidate. Every failure past this
// point is contained: the user's primary reply has already been delivered.
func (p *Pipeline) maybeBook(ctx context.Context, ev InboundEvent, userID, conversationID, reply string) {
	convCtx, err := p.Conversations.LoadContext(ctx, conversationID)
	if err != nil {
		p.Log.Warn().Err(err).Str("conversation_id", conversationID).Msg("context reload for extraction failed")
		return
	}

	cand := p.Generator.ExtractAppointment(ctx, ev.Text, reply, convCtx)
	if cand == nil {
		p.Log.Debug().Str("conversation_id", conversationID).Msg("no appointment data yet")
		return
	}

	appt, err := p.Appointments.Record(ctx, cand, userID, conversationID)
	if err != nil {
		p.Log.Error().Err(err).Str("conversation_id", conversationID).Msg("booking failed after reply delivery")
		return
	}
	p.Log.Info().
		Str("appointment_id", appt.ID).
		Str("conversation_id", conversationID).
		Msg("appointment recorded")

	if err := p.Sender.SendMessage(ctx, ev.SenderID, bookingConfirmation); err != nil {
		p.Log.Warn().Err(err).Str("sender_id", ev.SenderID).Msg("confirmation delivery failed")
		return
	}
	if _, _, err := repo.TryInsertMessage(ctx, p.DB, conversationID, confirmationDedupKey(), domain.RoleAssistant, bookingConfirmation); err != nil {
		p.Log.Warn().Err(err).Str("conversation_id", conversationID).Msg("confirmation message insert failed")
	}
}

// resolveUser finds or creates the sender's user row, attaching best-effort
// profile data on first contact.
func (p *Pipeline) resolveUser(ctx context.Context, senderID string) (*domain.User, error) {
	var username, fullName *string
	if p.Profile != nil {
		if prof, err := p.Profile.GetUserProfile(ctx, senderID); err == nil {
			if prof.Username != "" {
				username = &prof.Username
			}
			if prof.Name != "" {
				fullName = &prof.Name
			}
		} else {
			p.Log.Debug().Err(err).Str("sender_id", senderID).Msg("profile lookup failed")
		}
	}
	return repo.FindOrCreateUser(ctx, p.DB, senderID, username, fullName)
}

// fail logs a pre-reply pipeline failure and apologizes to the user. Context
// cancellation is not apologized for; the send would fail anyway.
func (p *Pipeline) fail(ctx context.Context, senderID string, err error, msg string) error {
	p.Log.Error().Err(err).Str("sender_id", senderID).Msg(msg)
	if !errors.Is(err, context.Canceled) {
		p.sendBestEffort(ctx, senderID, genericApology)
	}
	return err
}

func (p *Pipeline) sendBestEffort(ctx context.Context, recipientID, text string) {
	if err := p.Sender.SendMessage(ctx, recipientID, text); err != nil {
		p.Log.Warn().Err(err).Str("recipient_id", recipientID).Msg("apology delivery failed")
	}
}

// Dedup keys for internally generated turns are synthesized and
// guaranteed-unique; only inbound webhook messages carry a natural id.
func assistantDedupKey() string    { return "assistant-" + uuid.NewString() }
func confirmationDedupKey() string { return "assistant-confirm-" + uuid.NewString() }
