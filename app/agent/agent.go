// Package agent talks to the chat completion gateway and owns the
// system prompt and model catalog.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"vectorchat/types"

	"github.com/pkoukk/tiktoken-go"
)

const (
	completionTimeout  = 120 * time.Second
	maxHistoryMessages = 20
	maxTokens          = 2048
	temperature        = 0.7
)

type Client struct {
	apiURL   string
	apiKey   string
	siteURL  string
	siteName string
	client   *http.Client
	logger   *slog.Logger
}

type chatRequest struct {
	Model       string          `json:"model"`
	Messages    []types.Message `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message types.Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewClient(cfg types.Config) *Client {
	return &Client{
		apiURL:   cfg.CompletionURL,
		apiKey:   cfg.APIKey,
		siteURL:  cfg.SiteURL,
		siteName: cfg.SiteName,
		client:   &http.Client{Timeout: completionTimeout},
		logger:   slog.Default(),
	}
}

// Complete sends the system prompt plus the most recent history window
// to the completion gateway and returns the generated answer together
// with the model the gateway actually used.
func (c *Client) Complete(ctx context.Context, model, systemPrompt string, history []types.Message) (*types.Completion, error) {
	messages := make([]types.Message, 0, maxHistoryMessages+1)
	messages = append(messages, types.Message{Role: "system", Content: systemPrompt})
	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	messages = append(messages, history...)

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if count, err := CountTokens(string(body)); err == nil {
		c.logger.Debug("sending completion request", "model", model, "prompt_tokens", count)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", c.siteURL)
	req.Header.Set("X-Title", c.siteName)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &types.ServiceError{Kind: types.KindOther, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed chatResponse
	if resp.StatusCode != http.StatusOK {
		msg := "completion request failed"
		if err := json.Unmarshal(respBody, &parsed); err == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, types.NewServiceError(resp.StatusCode, msg)
	}

	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, &types.ServiceError{Kind: types.KindOther, Message: "no choices in response"}
	}

	usedModel := parsed.Model
	if usedModel == "" {
		usedModel = model
	}
	c.logger.Info("completion finished", "model", usedModel, "took", time.Since(start))

	return &types.Completion{
		Message: parsed.Choices[0].Message.Content,
		Model:   usedModel,
	}, nil
}

// CountTokens approximates the token count of data with a tokenizer
// compatible with the gateway's models.
func CountTokens(data string) (int, error) {
	enc, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(data, nil, nil)), nil
}
