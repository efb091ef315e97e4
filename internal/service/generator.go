package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

const systemPrompt = "You are a helpful coding assistant specialized in writing high-quality docstrings."

// Generator turns a prompt into a docstring. The call must respect ctx
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

var (
	errEmptyCompletion = errors.New("completion has no content")
	errNoAPIKey        = errors.New("no generator API key configured")
)

// ChatClient talks to any OpenAI compatible chat completions endpoint
type ChatClient struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	HTTP        *http.Client

	// Throttle caps outgoing calls to stay under the provider's own rate limit,
	// nil means no cap
	Throttle *rate.Limiter
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *ChatClient) Generate(ctx context.Context, prompt string) (string, error) {
	if c.APIKey == "" {
		return "", errNoAPIKey
	}

	if c.Throttle != nil {
		if err := c.Throttle.Wait(ctx); err != nil {
			return "", fmt.Errorf("completion request throttled, %w", err)
		}
	}

	body, err := json.Marshal(chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode completion request, %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build completion request, %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed, %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("completion endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode completion response, %w", err)
	}

	if len(out.Choices) == 0 {
		return "", errEmptyCompletion
	}

	content := strings.TrimSpace(out.Choices[0].Message.Content)
	if content == "" {
		return "", errEmptyCompletion
	}

	return content, nil
}

// BuildPrompt renders the instruction sent along with the user's code
func BuildPrompt(code, language, style string) string {
	return fmt.Sprintf(
		"Generate a %s style docstring for the following %s code. Output ONLY the docstring. Do not include any explanations or markdown formatting outside the docstring itself.\n\nCode:\n%s",
		style, language, code,
	)
}
