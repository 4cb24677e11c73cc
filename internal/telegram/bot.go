// Package telegram is a minimal Telegram Bot API client for operator alerts.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the public Bot API endpoint
const DefaultBaseURL = "https://api.telegram.org"

// Config holds Telegram bot configuration
type Config struct {
	BotToken string
	ChatID   string
	BaseURL  string // overridable for tests and self-hosted Bot API servers
	Timeout  time.Duration
}

// Validate checks that the credentials are present
func (c Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("telegram bot token is required")
	}
	if c.ChatID == "" {
		return fmt.Errorf("telegram chat ID is required")
	}
	return nil
}

// Bot sends messages to one chat
type Bot struct {
	botToken   string
	chatID     string
	baseURL    string
	httpClient *http.Client
}

// apiResponse represents the response from Telegram API
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// BotInfo is the subset of getMe we use
type BotInfo struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// NewBot creates a bot client
func NewBot(cfg Config) (*Bot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Bot{
		botToken:   cfg.BotToken,
		chatID:     cfg.ChatID,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (b *Bot) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", b.baseURL, b.botToken, method)
}

// SendMessage sends an HTML-formatted text message
func (b *Bot) SendMessage(ctx context.Context, text string) error {
	payload := map[string]any{
		"chat_id":    b.chatID,
		"text":       text,
		"parse_mode": "HTML",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.methodURL("sendMessage"), bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = b.do(req)
	return err
}

// SendPhoto sends a JPEG with an HTML caption
func (b *Bot) SendPhoto(ctx context.Context, photoData []byte, caption string) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fields := map[string]string{
		"chat_id":    b.chatID,
		"caption":    caption,
		"parse_mode": "HTML",
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}

	part, err := writer.CreateFormFile("photo", "scan.jpg")
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(photoData); err != nil {
		return fmt.Errorf("failed to write photo data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.methodURL("sendPhoto"), &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	_, err = b.do(req)
	return err
}

// GetMe retrieves information about the bot, useful as a credentials check
func (b *Bot) GetMe(ctx context.Context) (*BotInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.methodURL("getMe"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	result, err := b.do(req)
	if err != nil {
		return nil, err
	}

	var info BotInfo
	if err := json.Unmarshal(result, &info); err != nil {
		return nil, fmt.Errorf("unexpected getMe result: %w", err)
	}
	return &info, nil
}

func (b *Bot) do(req *http.Request) (json.RawMessage, error) {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		// the URL carries the token; keep it out of logs
		return nil, fmt.Errorf("telegram request failed: %w", redact(err, b.botToken))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var telegramResp apiResponse
	if err := json.Unmarshal(body, &telegramResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response (status %d): %w", resp.StatusCode, err)
	}
	if !telegramResp.OK {
		return nil, fmt.Errorf("telegram API error %d: %s", telegramResp.ErrorCode, telegramResp.Description)
	}
	return telegramResp.Result, nil
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, secret string) error {
	if secret == "" || !strings.Contains(err.Error(), secret) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), secret, "<token>"), err: err}
}
