package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/C2SE29-Capstone2/kinderchat/internal/chat"
	"github.com/C2SE29-Capstone2/kinderchat/internal/proto"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets callers test a rejected token with errors.Is(err, chat.ErrUnauthorized).
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return chat.ErrUnauthorized
	}
	return nil
}

// Client talks to the kinderchat REST API. It implements chat.Transport.
type Client struct {
	baseURL      *url.URL
	http         *http.Client
	historyLimit int
	log          *zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithHistoryLimit sets the page size requested by FetchHistory.
func WithHistoryLimit(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.historyLimit = n
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.log = logger
		}
	}
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	nop := zerolog.Nop()
	c := &Client{
		baseURL:      u,
		http:         &http.Client{Timeout: timeout},
		historyLimit: proto.DefaultHistoryLimit,
		log:          &nop,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchHistory returns the newest page of the conversation with counterpartID.
func (c *Client) FetchHistory(ctx context.Context, token string, classroomID, counterpartID int64, isTeacherRequestor bool) ([]chat.Message, error) {
	as := proto.AsCounterpart
	if isTeacherRequestor {
		as = proto.AsTeacher
	}
	query := url.Values{}
	query.Set("counterpart_id", strconv.FormatInt(counterpartID, 10))
	query.Set("as", as)
	query.Set("limit", strconv.Itoa(c.historyLimit))

	var dtos []proto.MessageDTO
	path := fmt.Sprintf("/api/classrooms/%d/messages", classroomID)
	if err := c.do(ctx, http.MethodGet, path, query, token, nil, nil, &dtos); err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}

	msgs := make([]chat.Message, 0, len(dtos))
	for _, dto := range dtos {
		msgs = append(msgs, toChatMessage(dto))
	}
	return msgs, nil
}

// SendMessage posts one message. The client reference attached to ctx with
// chat.WithClientRef is sent as the idempotency key.
func (c *Client) SendMessage(ctx context.Context, token string, classroomID, counterpartID int64, isTeacherSender bool, content string) (*chat.Message, error) {
	body := proto.SendMessageRequest{
		CounterpartID:   counterpartID,
		IsTeacherSender: isTeacherSender,
		Content:         content,
	}
	headers := http.Header{}
	if ref := chat.ClientRefFrom(ctx); ref != "" {
		headers.Set(proto.HeaderIdempotencyKey, ref)
	}

	var dto proto.MessageDTO
	path := fmt.Sprintf("/api/classrooms/%d/messages", classroomID)
	if err := c.do(ctx, http.MethodPost, path, nil, token, headers, body, &dto); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	msg := toChatMessage(dto)
	return &msg, nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp proto.AuthResponse
	req := proto.LoginRequest{Username: username, Password: password}
	if err := c.do(ctx, http.MethodPost, "/api/login", nil, "", nil, req, &resp); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	return resp.Token, nil
}

// Register creates an account and returns its bearer token.
func (c *Client) Register(ctx context.Context, username, password, role string) (string, error) {
	var resp proto.AuthResponse
	req := proto.RegisterRequest{Username: username, Password: password, Role: role}
	if err := c.do(ctx, http.MethodPost, "/api/register", nil, "", nil, req, &resp); err != nil {
		return "", fmt.Errorf("register: %w", err)
	}
	return resp.Token, nil
}

// Me returns the account the token belongs to.
func (c *Client) Me(ctx context.Context, token string) (*proto.UserResponse, error) {
	var resp proto.UserResponse
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, token, nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("me: %w", err)
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, token string, headers http.Header, body, out any) error {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	var body proto.ErrorResponse
	msg := strings.TrimSpace(string(data))
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		msg = body.Error
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}

func toChatMessage(dto proto.MessageDTO) chat.Message {
	role := chat.RoleCounterpart
	if dto.IsSenderTeacher {
		role = chat.RoleTeacher
	}
	return chat.Message{
		ID:         dto.ID,
		SenderID:   dto.SenderID,
		ReceiverID: dto.ReceiverID,
		Content:    dto.Content,
		Timestamp:  dto.Timestamp,
		Channel:    chat.ChannelID{ClassroomID: dto.ClassroomID, CounterpartID: dto.CounterpartID},
		SenderRole: role,
		ClientRef:  dto.ClientRef,
	}
}

// IsUnauthorized reports whether err is a rejected token.
func IsUnauthorized(err error) bool {
	return errors.Is(err, chat.ErrUnauthorized)
}
