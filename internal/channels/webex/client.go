package webex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/teamsbot/internal/bus"
)

const (
	DefaultBaseURL = "https://webexapis.com/v1"

	defaultTimeout    = 30 * time.Second
	defaultRate       = 5 // requests per second
	defaultMaxRetries = 3
)

// ClientOptions configures a Client.
type ClientOptions struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	RatePerSecond float64
	MaxRetries    int
}

// Client is a lightweight Webex REST client using net/http.
// It implements bus.Messenger and bus.Sender.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries uint64

	mu    sync.Mutex
	botID string
}

// NewClient creates a Webex client. Zero options get defaults.
func NewClient(opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = defaultRate
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	return &Client{
		baseURL:    opts.BaseURL,
		token:      opts.Token,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RatePerSecond), int(opts.RatePerSecond)+1),
		maxRetries: uint64(opts.MaxRetries),
	}
}

// Person is the subset of a Webex person record the bot uses.
type Person struct {
	ID          string   `json:"id"`
	Emails      []string `json:"emails"`
	DisplayName string   `json:"displayName"`
	NickName    string   `json:"nickName,omitempty"`
	Type        string   `json:"type,omitempty"`
}

// Message is the subset of a Webex message record the bot uses.
type Message struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId"`
	RoomType    string    `json:"roomType"`
	Text        string    `json:"text"`
	PersonID    string    `json:"personId"`
	PersonEmail string    `json:"personEmail"`
	Created     time.Time `json:"created"`
}

// APIError is a non-2xx response from the Webex API.
type APIError struct {
	Status     int
	Message    string
	TrackingID string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.TrackingID != "" {
		return fmt.Sprintf("webex api: status=%d msg=%s tracking_id=%s", e.Status, e.Message, e.TrackingID)
	}
	return fmt.Sprintf("webex api: status=%d msg=%s", e.Status, e.Message)
}

func (e *APIError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Me returns the bot's own person record.
func (c *Client) Me(ctx context.Context) (*Person, error) {
	var p Person
	if err := c.doJSON(ctx, http.MethodGet, "/people/me", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Identity returns the bot's person id. The id is fetched once and cached.
func (c *Client) Identity(ctx context.Context) (string, error) {
	c.mu.Lock()
	id := c.botID
	c.mu.Unlock()
	if id != "" {
		return id, nil
	}

	me, err := c.Me(ctx)
	if err != nil {
		return "", fmt.Errorf("get bot identity: %w", err)
	}
	c.mu.Lock()
	c.botID = me.ID
	c.mu.Unlock()
	return me.ID, nil
}

// Message returns a message by id.
func (c *Client) Message(ctx context.Context, messageID string) (*Message, error) {
	var m Message
	if err := c.doJSON(ctx, http.MethodGet, "/messages/"+url.PathEscape(messageID), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// MessageText returns the plain text of a message.
func (c *Client) MessageText(ctx context.Context, messageID string) (string, error) {
	m, err := c.Message(ctx, messageID)
	if err != nil {
		return "", err
	}
	return m.Text, nil
}

// AttachmentDetail returns a card submission by attachment action id.
func (c *Client) AttachmentDetail(ctx context.Context, attachmentID string) (*bus.AttachmentDetail, error) {
	var d bus.AttachmentDetail
	if err := c.doJSON(ctx, http.MethodGet, "/attachment/actions/"+url.PathEscape(attachmentID), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Send posts a message to a room or a person.
func (c *Client) Send(ctx context.Context, msg bus.OutboundMessage) (*bus.SentMessage, error) {
	if msg.Recipient() == "" {
		return nil, fmt.Errorf("webex send: no recipient")
	}
	var sent bus.SentMessage
	if err := c.doJSON(ctx, http.MethodPost, "/messages", msg, &sent); err != nil {
		return nil, fmt.Errorf("webex send: %w", err)
	}
	return &sent, nil
}

// doJSON performs an authenticated JSON call. 429 and 5xx responses are retried with
// exponential backoff; 404 maps to bus.ErrNotFound.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		payload = data
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	op := func() error {
		err := c.doJSONOnce(ctx, method, path, payload, out)
		var apiErr *APIError
		if err == nil || errors.Is(err, bus.ErrNotFound) {
			return backoff.Permanent(err)
		}
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return backoff.Permanent(err)
		}
		if apiErr != nil && apiErr.RetryAfter > 0 {
			select {
			case <-time.After(apiErr.RetryAfter):
			case <-ctx.Done():
				return backoff.Permanent(ctx.Err())
			}
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		slog.Debug("webex api retry", "method", method, "path", path, "wait", wait, "error", err)
	}
	return backoff.RetryNotify(op, policy, notify)
}

func (c *Client) doJSONOnce(ctx context.Context, method, path string, payload []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("webex rate limit: %w", err)
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webex api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("webex api %s %s: %w", method, path, bus.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("webex api decode: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, TrackingID: resp.Header.Get("TrackingID")}
	var body struct {
		Message    string `json:"message"`
		TrackingID string `json:"trackingId"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &body) == nil {
		apiErr.Message = body.Message
		if body.TrackingID != "" {
			apiErr.TrackingID = body.TrackingID
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			apiErr.RetryAfter = time.Duration(sec) * time.Second
		}
	}
	return apiErr
}
