// Package expo hands push messages to Expo's push service through the Expo
// server SDK. Delivery to devices is Expo's job.
package expo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	sdk "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"github.com/rs/zerolog"
)

// DefaultPushURL is Expo's public send endpoint.
const DefaultPushURL = sdk.DefaultHost + sdk.DefaultBaseAPIURL + "/push/send"

// ErrInvalidToken is returned for strings that are not Expo push tokens.
var ErrInvalidToken = errors.New("invalid expo push token")

// ParseToken validates token with the SDK and additionally rejects empty or
// whitespace-bearing ids between the brackets.
func ParseToken(token string) (sdk.ExponentPushToken, error) {
	token = strings.TrimSpace(token)
	parsed, err := sdk.NewExponentPushToken(token)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidToken, token)
	}
	open := strings.IndexByte(token, '[')
	id := token[open+1 : len(token)-1]
	if id == "" || strings.ContainsAny(id, " \t\r\n[]") {
		return "", fmt.Errorf("%w: %q", ErrInvalidToken, token)
	}
	return parsed, nil
}

// IsValidToken reports whether token looks like an Expo push token.
func IsValidToken(token string) bool {
	_, err := ParseToken(token)
	return err == nil
}

// Message is one push request.
type Message struct {
	To         string
	Title      string
	Body       string
	Data       map[string]string
	Sound      string
	Badge      *int64
	ChannelID  string
	Priority   string
	TTLSeconds int
}

// Ticket is Expo's per-message acknowledgement.
type Ticket struct {
	Status  string
	ID      string
	Message string
	Details map[string]string
}

// TicketError reports messages Expo refused.
type TicketError struct {
	Tickets []Ticket
	Causes  []error
}

func (e *TicketError) Error() string {
	parts := make([]string, 0, len(e.Tickets))
	for i, ticket := range e.Tickets {
		reason := ticket.Details["error"]
		if reason == "" {
			reason = ticket.Message
		}
		if reason == "" && i < len(e.Causes) {
			reason = e.Causes[i].Error()
		}
		parts = append(parts, reason)
	}
	return "expo rejected push: " + strings.Join(parts, "; ")
}

// Unwrap exposes the SDK's typed errors, such as *sdk.DeviceNotRegisteredError.
func (e *TicketError) Unwrap() []error {
	return e.Causes
}

// Config configures the client.
type Config struct {
	URL         string
	AccessToken string
	Timeout     time.Duration
}

// Client sends messages with a single attempt per call.
type Client struct {
	push   *sdk.PushClient
	logger zerolog.Logger
}

// NewClient constructs an Expo push client. URL is the full send endpoint; its
// scheme and host become the SDK host and its path, minus /push/send, the API base.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	host, apiURL := splitPushURL(cfg.URL)
	return &Client{
		push: sdk.NewPushClient(&sdk.ClientConfig{
			Host:        host,
			APIURL:      apiURL,
			AccessToken: cfg.AccessToken,
			HTTPClient:  &http.Client{Timeout: timeout},
		}),
		logger: logger.With().Str("component", "expo_push").Logger(),
	}
}

func splitPushURL(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = DefaultPushURL
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return sdk.DefaultHost, sdk.DefaultBaseAPIURL
	}
	return parsed.Scheme + "://" + parsed.Host, strings.TrimSuffix(strings.TrimSuffix(parsed.Path, "/"), "/push/send")
}

// Send publishes each message once and returns the tickets in order. Every
// token is checked before anything goes over the wire.
func (c *Client) Send(ctx context.Context, messages []Message) ([]Ticket, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	tokens := make([]sdk.ExponentPushToken, len(messages))
	for i, message := range messages {
		token, err := ParseToken(message.To)
		if err != nil {
			return nil, err
		}
		tokens[i] = token
	}

	tickets := make([]Ticket, 0, len(messages))
	rejected := &TicketError{}
	for i, message := range messages {
		if err := ctx.Err(); err != nil {
			return tickets, err
		}
		resp, err := c.push.Publish(toPushMessage(message, tokens[i]))
		if err != nil {
			return tickets, fmt.Errorf("expo push request failed: %w", err)
		}
		ticket := Ticket{Status: resp.Status, ID: resp.ID, Message: resp.Message, Details: resp.Details}
		tickets = append(tickets, ticket)
		if err := resp.ValidateResponse(); err != nil {
			rejected.Tickets = append(rejected.Tickets, ticket)
			rejected.Causes = append(rejected.Causes, err)
		}
	}
	if len(rejected.Tickets) > 0 {
		return tickets, rejected
	}

	c.logger.Debug().Int("messages", len(messages)).Msg("push handed to expo")
	return tickets, nil
}

func toPushMessage(message Message, token sdk.ExponentPushToken) *sdk.PushMessage {
	push := &sdk.PushMessage{
		To:         []sdk.ExponentPushToken{token},
		Title:      message.Title,
		Body:       message.Body,
		Data:       message.Data,
		Sound:      message.Sound,
		ChannelID:  message.ChannelID,
		Priority:   message.Priority,
		TTLSeconds: message.TTLSeconds,
	}
	if push.Priority == "" {
		push.Priority = sdk.DefaultPriority
	}
	if message.Badge != nil {
		push.Badge = int(*message.Badge)
	}
	return push
}
