// Package messenger implements the outbound delivery adapter for the
// Instagram Graph messaging API. The pipeline only depends on its Sender
// interface: send a text to a recipient, fail on transport errors. Message
// length is capped by the platform at 1000 characters; longer texts are
// truncated before sending, which is a hard boundary contract, not a policy
// of this core.
package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// MaxMessageLength is the Instagram per-message character cap.
const MaxMessageLength = 1000

// defaultBaseURL targets the Graph API version the send path is tested
// against.
const defaultBaseURL = "https://graph.facebook.com/v18.0"

// ErrMissingAccessToken is returned by New when no page access token is
// configured. Outbound delivery has no degraded mode, so construction fails.
var ErrMissingAccessToken = errors.New("messenger: INSTAGRAM_PAGE_ACCESS_TOKEN is not set")

// Sender is the outbound delivery capability consumed by the pipeline.
type Sender interface {
	SendMessage(ctx context.Context, recipientID, text string) error
}

// UserProfile is the best-effort profile data fetched on first contact.
type UserProfile struct {
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Client talks to the Instagram Graph messaging API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	log        zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the Graph API endpoint (used by tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// New constructs a Client, refusing an empty access token.
func New(pageAccessToken string, log zerolog.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(pageAccessToken) == "" {
		return nil, ErrMissingAccessToken
	}
	c := &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultBaseURL,
		token:      pageAccessToken,
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// sendPayload is the Graph API message envelope.
type sendPayload struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
}

// apiError is the error envelope the Graph API returns with 200 or 4xx.
type apiError struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendMessage delivers a text message to recipientID, truncating to the
// platform cap (cap-3 characters plus an ellipsis) when necessary. The cap
// counts characters, not bytes, so multi-byte text is never cut mid-rune.
func (c *Client) SendMessage(ctx context.Context, recipientID, text string) error {
	if utf8.RuneCountInString(text) > MaxMessageLength {
		text = string([]rune(text)[:MaxMessageLength-3]) + "..."
	}

	var payload sendPayload
	payload.Recipient.ID = recipientID
	payload.Message.Text = text

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/me/messages?access_token=%s", c.baseURL, url.QueryEscape(c.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("messenger: send to %s: %w", recipientID, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("messenger: send to %s: status %d: %s", recipientID, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var ae apiError
	if err := json.Unmarshal(raw, &ae); err == nil && ae.Error != nil {
		return fmt.Errorf("messenger: send to %s: api error %d: %s", recipientID, ae.Error.Code, ae.Error.Message)
	}

	c.log.Debug().
		Str("recipient_id", recipientID).
		Int("length", utf8.RuneCountInString(text)).
		Msg("message sent")
	return nil
}

// GetUserProfile fetches username and display name for a platform user.
// Failures are returned to the caller, who treats the profile as optional.
func (c *Client) GetUserProfile(ctx context.Context, userID string) (*UserProfile, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=username,name&access_token=%s", c.baseURL, url.PathEscape(userID), url.QueryEscape(c.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("messenger: profile %s: status %d", userID, resp.StatusCode)
	}
	var p UserProfile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}
