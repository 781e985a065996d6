// Package maxapi is the HTTP transport adapter for the MAX messenger
// bot API. It performs the network calls the core never makes itself:
// sending messages, long-polling for updates, and webhook registration.
package maxapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jusunglee/maxbot/internal/metrics"
	"github.com/jusunglee/maxbot/internal/update"
)

const DefaultBaseURL = "https://api.max-messenger.com/bot"

var ErrAPIRejected = errors.New("api call rejected")

type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

// WithBaseURL overrides the API endpoint; used by tests and self-hosted
// gateways.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 35 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

func (c *Client) post(ctx context.Context, method string, payload any) (*envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status code: %d", method, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !env.OK {
		return nil, fmt.Errorf("%w: %s: %s", ErrAPIRejected, method, env.Description)
	}
	return &env, nil
}

type sendMessageRequest struct {
	ChatID  int64  `json:"chat_id"`
	Text    string `json:"text"`
	Token   string `json:"token"`
	ReplyTo int64  `json:"reply_to_message_id,omitempty"`
}

// SendMessage delivers one message to a chat. Text must already fit the
// platform length limit; chunking happens upstream.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	start := time.Now()
	_, err := c.post(ctx, "sendMessage", sendMessageRequest{
		ChatID: chatID,
		Text:   text,
		Token:  c.token,
	})
	metrics.SendDuration.Observe(time.Since(start).Seconds())
	return err
}

type sendPhotoRequest struct {
	ChatID  int64  `json:"chat_id"`
	Photo   string `json:"photo"`
	Caption string `json:"caption,omitempty"`
	Token   string `json:"token"`
}

// SendPhoto delivers a photo by URL or file id, with an optional
// caption.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photo, caption string) error {
	start := time.Now()
	_, err := c.post(ctx, "sendPhoto", sendPhotoRequest{
		ChatID:  chatID,
		Photo:   photo,
		Caption: caption,
		Token:   c.token,
	})
	metrics.SendDuration.Observe(time.Since(start).Seconds())
	return err
}

// GetUpdates long-polls for the next batch of updates at or after
// offset. Updates without a conversation id are dropped here so the
// dispatcher only ever sees validated events.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]update.Update, error) {
	q := url.Values{}
	q.Set("token", c.token)
	q.Set("offset", strconv.FormatInt(offset, 10))
	q.Set("limit", "100")
	q.Set("timeout", "30")

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/getUpdates?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("getUpdates: unexpected status code: %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding updates: %w", err)
	}
	if !env.OK {
		return nil, fmt.Errorf("%w: getUpdates: %s", ErrAPIRejected, env.Description)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(env.Result, &raw); err != nil {
		return nil, fmt.Errorf("decoding update batch: %w", err)
	}

	updates := make([]update.Update, 0, len(raw))
	for _, r := range raw {
		u, err := update.Decode(r)
		if err != nil {
			continue
		}
		updates = append(updates, u)
	}
	return updates, nil
}

type setWebhookRequest struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

func (c *Client) SetWebhook(ctx context.Context, webhookURL string) error {
	_, err := c.post(ctx, "setWebhook", setWebhookRequest{URL: webhookURL, Token: c.token})
	return err
}
