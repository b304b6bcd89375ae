package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/trendlens/admin-api/pkg/logger"
	"github.com/trendlens/admin-api/pkg/metrics"
)

// APIError is a transport failure with the Bot API response body attached.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram API returned %d: %s", e.StatusCode, e.Body)
}

// ErrMissingToken fails every call on a client constructed without
// credentials. Surfaced as a configuration problem, not a send failure.
var ErrMissingToken = fmt.Errorf("telegram bot token is not configured")

// Update is one inbound item from getUpdates.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type Config struct {
	Token       string
	BaseURL     string
	SendTimeout time.Duration
	RatePerSec  int
}

// Client wraps the Bot API: one outbound operation (sendMessage) and the
// long-poll inbound feed (getUpdates). The base URL is injectable for tests.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewClient(cfg Config, log *logger.Logger, m *metrics.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 25
	}

	return &Client{
		token:   cfg.Token,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.SendTimeout},
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RatePerSec)), cfg.RatePerSec),
		logger:  log.WithComponent("telegram"),
		metrics: m,
	}
}

// Send delivers text to one destination. Failures carry the response body.
func (c *Client) Send(ctx context.Context, destination, text string) error {
	if c.token == "" {
		return ErrMissingToken
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	payload := map[string]string{
		"chat_id": destination,
		"text":    text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sendMessage payload: %w", err)
	}

	start := time.Now()
	err = c.post(ctx, "sendMessage", body)
	if c.metrics != nil {
		c.metrics.TelegramSendLatency.Observe(time.Since(start).Seconds())
		result := "ok"
		if err != nil {
			result = "error"
		}
		c.metrics.TelegramSends.WithLabelValues(result).Inc()
	}
	if err != nil {
		return err
	}

	c.logger.Debug("message sent", "destination", destination)
	return nil
}

// GetUpdates long-polls the inbound feed. timeout is the server-side hold;
// the HTTP client allows extra slack on top of it.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	if c.token == "" {
		return nil, ErrMissingToken
	}

	url := fmt.Sprintf("%s/bot%s/getUpdates?offset=%d&timeout=%d",
		c.baseURL, c.token, offset, int(timeout.Seconds()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create getUpdates request: %w", err)
	}

	poll := &http.Client{Timeout: timeout + 10*time.Second}
	resp, err := poll.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getUpdates request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var result struct {
		OK     bool     `json:"ok"`
		Result []Update `json:"result"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode getUpdates response: %w", err)
	}
	if !result.OK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return result.Result, nil
}

func (c *Client) post(ctx context.Context, method string, body []byte) error {
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", method, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(raw, &result); err == nil && !result.OK {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return nil
}

// DestinationFromChat renders a numeric chat id as a destination string.
func DestinationFromChat(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}
