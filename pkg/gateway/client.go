package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/helpdesk/pkg/chat"
)

const (
	DefaultBaseURL = "http://localhost:5000/api"
	DefaultTimeout = 30 * time.Second
	// DefaultReply is used when a successful response carries neither a
	// `response` nor a `message` field.
	DefaultReply = "I received your message."

	ReasonSend    = "Failed to send message"
	ReasonHistory = "Failed to get chat history"
	ReasonSave    = "Failed to save chat session"

	// IdempotencyKeyHeader lets the server replay a save instead of storing
	// it twice.
	IdempotencyKeyHeader = "Idempotency-Key"

	maxResponseBytes = 4 << 20
)

// ErrEmptyMessage is returned by Send for blank text; no request is made.
var ErrEmptyMessage = errors.New("gateway: empty message")

type Settings struct {
	BaseURL string
	Timeout time.Duration
}

type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. Its Timeout is left
// untouched.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// Client talks to the chat backend. It keeps no per-conversation state and
// never retries.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger zerolog.Logger
}

var (
	_ chat.Gateway       = (*Client)(nil)
	_ chat.HistoryLoader = (*Client)(nil)
)

func NewClient(s Settings, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(s.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "parse base url %q", raw)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("base url %q must be absolute", raw)
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: timeout},
		logger: log.With().Str("component", "gateway").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) BaseURL() string { return c.base.String() }

type sendRequest struct {
	Message string `json:"message"`
}

// Send posts text to /chat and returns the reply text.
func (c *Client) Send(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}
	body, err := c.do(ctx, http.MethodPost, "chat", sendRequest{Message: text}, ReasonSend, nil)
	if err != nil {
		return "", err
	}
	reply, err := extractReply(body)
	if err != nil {
		return "", c.malformed("send", ReasonSend, err)
	}
	return reply, nil
}

// LoadHistory fetches the conversation list from /chat/history.
func (c *Client) LoadHistory(ctx context.Context) ([]chat.Conversation, error) {
	body, err := c.do(ctx, http.MethodGet, "chat/history", nil, ReasonHistory, nil)
	if err != nil {
		return nil, err
	}
	var convs []chat.Conversation
	if err := json.Unmarshal(body, &convs); err != nil {
		return nil, c.malformed("history", ReasonHistory, err)
	}
	return convs, nil
}

type saveRequest struct {
	Messages []chat.Message `json:"messages"`
}

// SaveSession posts the messages to /chat/save and returns the id assigned by
// the server, if it sent one. Each call carries a fresh idempotency key.
func (c *Client) SaveSession(ctx context.Context, messages []chat.Message) (string, error) {
	if messages == nil {
		messages = []chat.Message{}
	}
	header := http.Header{}
	header.Set(IdempotencyKeyHeader, uuid.NewString())
	body, err := c.do(ctx, http.MethodPost, "chat/save", saveRequest{Messages: messages}, ReasonSave, header)
	if err != nil {
		return "", err
	}
	var resp struct {
		ID json.RawMessage `json:"id"`
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return "", nil
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Debug().Err(err).Msg("save response is not a JSON object, ignoring")
		return "", nil
	}
	var id chat.ConversationID
	if len(resp.ID) > 0 {
		if err := id.UnmarshalJSON(resp.ID); err != nil {
			c.logger.Debug().Err(err).Msg("save response id has an unexpected type")
		}
	}
	return string(id), nil
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawPath = ""
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, payload any, reason string, header http.Header) ([]byte, error) {
	op := method + " /" + path

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, &Failure{Kind: FailureTransport, Op: op, Reason: reason, Err: errors.Wrap(err, "encode request")}
		}
		body = bytes.NewReader(b)
	}

	target := c.endpoint(path)
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &Failure{Kind: FailureTransport, Op: op, Reason: reason, Err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("method", method).Str("url", target).Msg("api request")
	resp, err := c.http.Do(req)
	if err != nil {
		f := &Failure{Kind: FailureTransport, Op: op, Reason: reason, Err: err}
		c.logger.Warn().Str("url", target).Err(err).Msg("api request failed")
		return nil, f
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.logger.Warn().Str("url", target).Int("status", resp.StatusCode).Err(err).Msg("api response read failed")
		return nil, &Failure{Kind: FailureTransport, Op: op, Status: resp.StatusCode, Reason: reason, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f := &Failure{Kind: FailureServer, Op: op, Status: resp.StatusCode, Reason: serverReason(data, reason)}
		c.logger.Warn().Str("url", target).Int("status", resp.StatusCode).Str("reason", f.Reason).Msg("api response error")
		return nil, f
	}

	c.logger.Debug().Str("url", target).Int("status", resp.StatusCode).Msg("api response")
	return data, nil
}

func (c *Client) malformed(op, reason string, err error) error {
	c.logger.Warn().Str("op", op).Err(err).Msg("malformed api response")
	return &Failure{Kind: FailureMalformed, Op: op, Reason: reason, Err: err}
}

// extractReply reads `response`, then `message`, from a JSON object. Empty or
// non-string fields are skipped.
func extractReply(body []byte) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", errors.Wrap(err, "decode reply")
	}
	if fields == nil {
		return "", errors.New("decode reply: body is null")
	}
	for _, key := range []string{"response", "message"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if s != "" {
			return s, nil
		}
	}
	return DefaultReply, nil
}

func serverReason(body []byte, fallback string) string {
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Error) == 0 {
		return fallback
	}
	var msg string
	if err := json.Unmarshal(payload.Error, &msg); err != nil || strings.TrimSpace(msg) == "" {
		return fallback
	}
	return msg
}
