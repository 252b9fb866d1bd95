package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nutricoachhq/NutriCoach/internal/pkg/env"
)

const defaultCompletionURL = "https://api.openai.com/v1/chat/completions"

// Client is a stateless pass-through to the hosted completion API. No
// conversation state lives here; coaching prompts come from the caller and
// answers go straight back.
type Client struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// Message is one chat turn in the completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func NewClientFromEnv() *Client {
	return &Client{
		APIKey:  strings.TrimSpace(env.GetEnv("CHAT_API_KEY", "")),
		Model:   strings.TrimSpace(env.GetEnv("CHAT_MODEL", "gpt-4o-mini")),
		BaseURL: strings.TrimSpace(env.GetEnv("CHAT_API_URL", defaultCompletionURL)),
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Complete forwards the messages to the completion API and returns the
// assistant's reply text.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	if c.APIKey == "" {
		return "", errors.New("CHAT_API_KEY is not configured")
	}
	if len(messages) == 0 {
		return "", errors.New("at least one message is required")
	}

	body, err := json.Marshal(map[string]interface{}{
		"model":    c.Model,
		"messages": messages,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("completion request failed: status=%d body=%s", resp.StatusCode, string(raw))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("completion response contained no choices")
	}
	return out.Choices[0].Message.Content, nil
}
