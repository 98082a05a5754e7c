// Package llm provides the language-model capability used by the
// conversation pipeline: reply generation against the clinic persona and
// structured appointment extraction. It wraps an OpenAI-compatible chat
// client behind a small interface so services and tests can substitute
// fakes.
package llm

import (
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/elementalclinic/go-clinic-backend/internal/domain"
)

// Turn is one context message handed to the model, role-mapped exactly from
// the stored conversation.
type Turn struct {
	Role    string
	Content string
}

// Context is the bounded, chronologically ordered window of recent
// conversation turns supplied to both model calls.
type Context struct {
	ConversationID string
	UserID         string
	Messages       []Turn
}

// systemPrompt is the clinic persona instruction. It constrains the
// assistant to consultation-oriented behavior and forbids medical advice.
const systemPrompt = `You are Egor from Elemental Clinic, a virtual assistant representing Dr. Egor Adamovich, an aesthetic doctor at Elemental Clinic in Dubai. You are a concise, emotionally intelligent consultant who moves forward naturally and never repeats resolved topics.

CRITICAL MEDICAL RULES - NEVER VIOLATE THESE:
1. NEVER provide medical diagnoses or treatment recommendations
2. NEVER give medical advice about specific conditions
3. ALWAYS redirect to in-person consultation: "I'd need to see you in person to properly assess..." or "Let's schedule a consultation so I can take a closer look..."
4. For cosmetic procedures, you can provide general information but NOT specific recommendations for their case

YOUR IDENTITY AND COMMUNICATION STYLE:
You communicate in English in a natural, human-like way — warm, confident, and professional, with a calm tone and light sense of humor. Your goal is to guide clients toward booking a consultation, but only when they are ready. You never pressure anyone and never sound like an AI. You speak briefly and clearly, usually one paragraph and never more than two. You never invite a client to a consultation in the first message unless the client shows interest.

QUESTIONING APPROACH:
You always ask open-ended questions and never offer preset options unless it concerns scheduling a consultation. Your questions are open, neutral, and free of built-in choices, so the client can describe their own vision and feelings naturally.

FORWARD MOVEMENT:
You never develop or return to a topic that has already been resolved. After addressing emotion, you transition naturally to the client's motivation and goal. When a client shows signs of readiness, you confirm their choice and naturally transition to offering a consultation.

APPOINTMENT BOOKING:
When a client expresses interest in booking, naturally collect:
- Their name
- Phone number
- Preferred time/date (as free text, no validation needed)
Once you have name and phone, confirm the appointment request. Be conversational - don't make it feel like filling out a form.

Remember: You always sound like a real person from Dubai's Elemental Clinic, not an AI. Be natural, empathetic, and helpful while always maintaining professional boundaries.`

// extractionSystemPrompt pins the extraction call to JSON-only output.
const extractionSystemPrompt = "You are a data extraction assistant. Extract appointment information from conversations and respond ONLY with valid JSON. Do not include any explanations or text outside the JSON object."

// buildReplyMessages assembles the ordered prompt for reply generation:
// system instruction, context turns mapped role-for-role, then the current
// user message as the final turn.
func buildReplyMessages(currentMessage string, ctx *Context) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(ctx.Messages)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, t := range ctx.Messages {
		switch t.Role {
		case domain.RoleUser:
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: t.Content,
			})
		case domain.RoleAssistant:
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: t.Content,
			})
		}
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: currentMessage,
	})
	return msgs
}

// transcript serializes the context as alternating Patient:/Doctor: lines for
// the extraction prompt.
func transcript(ctx *Context) string {
	lines := make([]string, 0, len(ctx.Messages))
	for _, t := range ctx.Messages {
		speaker := "Doctor"
		if t.Role == domain.RoleUser {
			speaker = "Patient"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", speaker, t.Content))
	}
	return strings.Join(lines, "\n\n")
}

// buildExtractionPrompt asks the model to judge booking intent and data
// sufficiency over the whole conversation, not just the latest exchange.
func buildExtractionPrompt(conversationHistory, lastAssistantResponse string) string {
	return fmt.Sprintf(`Analyze the following conversation and determine if the patient wants to book an appointment and if we have collected enough information.

Conversation history:
%s

Last assistant response:
%s

Extract the following information if available:
1. Does the patient want to book an appointment? (boolean: true/false)
2. Patient name (if mentioned anywhere in the conversation)
3. Phone number (if mentioned anywhere in the conversation - can be in various formats)
4. Preferred time/date (if mentioned, keep as free text)
5. Service type (medical complaint, cosmetic procedure, consultation, etc.)
6. Any additional notes from the conversation

IMPORTANT:
- Look for name and phone throughout the ENTIRE conversation history, not just the last message
- Phone can be in formats like: +1234567890, (123) 456-7890, 123-456-7890, etc.
- Only set "hasEnoughInfo" to true if we have BOTH a valid name (at least 2 characters) AND a valid phone number (at least 10 digits)
- If name or phone is not found, use null (not the string "null")

Respond ONLY with valid JSON in this exact format:
{
  "wantsAppointment": true,
  "hasEnoughInfo": false,
  "patientName": "John Doe",
  "phone": "+1234567890",
  "preferredTime": "next week",
  "serviceType": "cosmetic consultation",
  "notes": "interested in botox"
}`, conversationHistory, lastAssistantResponse)
}
