// Generator: the two model calls of the pipeline.
//
// GenerateReply favors natural variation (temperature 0.8) and always yields
// text: every provider failure collapses to a fixed fallback apology, because
// a reply must be produced for each inbound message. ExtractAppointment runs
// cold (temperature 0.2), demands a JSON object, parses it permissively, and
// returns nil on any parse or acceptance failure. A low-confidence extraction
// is not retried within the turn; later turns carry more context.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("llm/Generator")

// FallbackReply is returned whenever reply generation fails. Fixed and
// non-committal so transport and provider errors stay invisible to the user.
const FallbackReply = "I'm sorry, I'm having trouble processing that right now. Could you please rephrase your question?"

const (
	defaultModel = "gpt-4"

	replyTemperature = 0.8
	replyMaxTokens   = 500

	extractTemperature = 0.2
	extractMaxTokens   = 300
)

// ChatClient is the minimal OpenAI surface the generator needs. Satisfied by
// *openai.Client and by test fakes.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ErrMissingAPIKey is returned by NewOpenAIClient when no API key is
// configured. There is no degraded mode for the model capability, so the
// process refuses to start without it.
var ErrMissingAPIKey = errors.New("llm: OPENAI_API_KEY is not set")

// NewOpenAIClient constructs the real OpenAI client, refusing an empty key.
func NewOpenAIClient(apiKey string) (*openai.Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	return openai.NewClient(apiKey), nil
}

// Generator produces assistant replies and appointment extractions.
type Generator struct {
	client ChatClient
	model  string
	log    zerolog.Logger
}

// NewGenerator returns a Generator bound to client. An empty model selects
// the default.
func NewGenerator(client ChatClient, model string, log zerolog.Logger) *Generator {
	if model == "" {
		model = defaultModel
	}
	return &Generator{client: client, model: model, log: log}
}

// GenerateReply turns (context, current message) into assistant text. It
// never returns an error: on any provider failure the fixed fallback apology
// is returned and the failure is logged.
func (g *Generator) GenerateReply(ctx context.Context, currentMessage string, convCtx *Context) string {
	ctx, span := tracer.Start(ctx, "GenerateReply")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", convCtx.ConversationID))

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    buildReplyMessages(currentMessage, convCtx),
		Temperature: replyTemperature,
		MaxTokens:   replyMaxTokens,
	})
	if err != nil {
		g.log.Error().Err(err).
			Str("conversation_id", convCtx.ConversationID).
			Msg("reply generation failed, using fallback")
		return FallbackReply
	}
	text := firstChoice(resp)
	if text == "" {
		g.log.Error().
			Str("conversation_id", convCtx.ConversationID).
			Msg("empty completion, using fallback")
		return FallbackReply
	}
	return text
}

// ExtractAppointment issues the second, independent model call over the full
// transcript and returns an accepted booking candidate, or nil when the
// conversation does not yet contain enough information. It never returns an
// error to the caller.
func (g *Generator) ExtractAppointment(ctx context.Context, currentMessage, lastReply string, convCtx *Context) *AppointmentCandidate {
	ctx, span := tracer.Start(ctx, "ExtractAppointment")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", convCtx.ConversationID))

	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractionSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildExtractionPrompt(transcript(convCtx), lastReply)},
		},
		Temperature: extractTemperature,
		MaxTokens:   extractMaxTokens,
	}
	// Constrained JSON output is only a hint: the parse below must work
	// whether or not the model honors it.
	if supportsJSONMode(g.model) {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		g.log.Warn().Err(err).
			Str("conversation_id", convCtx.ConversationID).
			Msg("appointment extraction failed")
		return nil
	}
	raw := firstChoice(resp)
	if raw == "" {
		return nil
	}

	var result extractionResult
	payload, ok := extractJSONObject(raw)
	if !ok {
		g.log.Debug().Str("conversation_id", convCtx.ConversationID).Msg("no JSON object in extraction response")
		return nil
	}
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		g.log.Debug().Err(err).Str("conversation_id", convCtx.ConversationID).Msg("unparseable extraction response")
		return nil
	}
	return result.accept()
}

// firstChoice returns the trimmed content of the first completion choice.
func firstChoice(resp openai.ChatCompletionResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content)
}

// supportsJSONMode reports whether the configured model is known to honor
// the json_object response format.
func supportsJSONMode(model string) bool {
	return strings.Contains(model, "gpt-4") ||
		strings.Contains(model, "gpt-3.5-turbo-1106") ||
		strings.Contains(model, "gpt-3.5-turbo-0125")
}

// extractJSONObject trims s and, when it does not already start with '{',
// scans for the first balanced {...} substring. Strings and escapes are
// respected so braces inside values do not break the balance count.
func extractJSONObject(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
