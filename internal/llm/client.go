// Package llm is a client for OpenRouter-compatible chat completion APIs.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Completion errors.
var (
	ErrUpstream        = errors.New("completion API returned an error")
	ErrEmptyCompletion = errors.New("completion API returned no content")
	ErrTimeout         = errors.New("completion API timed out")
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultTitle   = "ErrMate"
	// maxErrorBody bounds how much of an upstream error body is logged.
	maxErrorBody = 2048
)

// Config configures a Client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	AppURL      string
	AppTitle    string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Request is a single-prompt completion request.
type Request struct {
	Prompt string
	// ResponseFormat asks the provider for schema-constrained output. Optional.
	ResponseFormat *ResponseFormat
}

// ResponseFormat is the OpenAI-style response_format field.
type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

// JSONSchema names a schema for structured output.
type JSONSchema struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Client calls the chat completions endpoint.
type Client struct {
	cfg        Config
	endpoint   string
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates a Client. Zero-valued timeout means no client-side deadline
// beyond the request context.
func NewClient(cfg Config, log *slog.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if cfg.AppTitle == "" {
		cfg.AppTitle = defaultTitle
	}
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		cfg:        cfg,
		endpoint:   base + "/chat/completions",
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

// Complete sends the prompt as a single user message and returns the first
// choice's content. Non-2xx responses wrap ErrUpstream; missing content is
// ErrEmptyCompletion.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:          c.cfg.Model,
		Messages:       []message{{Role: "user", Content: req.Prompt}},
		Temperature:    c.cfg.Temperature,
		MaxTokens:      c.cfg.MaxTokens,
		ResponseFormat: req.ResponseFormat,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("HTTP-Referer", c.cfg.AppURL)
	httpReq.Header.Set("X-Title", c.cfg.AppTitle)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, time.Since(start).Round(time.Millisecond))
		}
		return "", fmt.Errorf("send completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Error("completion API error",
			slog.Int("status_code", resp.StatusCode),
			slog.String("body", string(snippet)),
			slog.String("model", c.cfg.Model),
		)
		return "", fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}

	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}

	c.log.Debug("completion received",
		slog.String("model", c.cfg.Model),
		slog.Duration("duration", time.Since(start)),
		slog.Int("content_length", len(parsed.Choices[0].Message.Content)),
	)

	return parsed.Choices[0].Message.Content, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
