// Package model holds clients for the external model services: the
// embedding endpoint here, the completion endpoint in app/agent.
package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vectorchat/types"
)

// maxEmbedInput is the longest text sent to the embedding service;
// longer inputs are truncated, matching the provider's limit.
const maxEmbedInput = 8000

const embedTimeout = 60 * time.Second

// Embedder converts text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenRouterEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenRouterEmbedder struct {
	apiURL string
	apiKey string
	model  string
	dim    int
	client *http.Client
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func NewOpenRouterEmbedder(apiURL, apiKey, model string, dim int) *OpenRouterEmbedder {
	return &OpenRouterEmbedder{
		apiURL: apiURL,
		apiKey: apiKey,
		model:  model,
		dim:    dim,
		client: &http.Client{Timeout: embedTimeout},
	}
}

func (e *OpenRouterEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = truncate(strings.TrimSpace(text), maxEmbedInput)
	if text == "" {
		return nil, types.NewInputError("nothing to embed")
	}

	body, err := json.Marshal(embeddingRequest{
		Model: e.model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &types.ServiceError{Kind: types.KindOther, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewServiceError(resp.StatusCode, apiErrorMessage(respBody))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, &types.ServiceError{Kind: types.KindOther, Message: "empty embedding in response"}
	}

	embedding := parsed.Data[0].Embedding
	if e.dim > 0 && len(embedding) != e.dim {
		return nil, &types.ServiceError{
			Kind:    types.KindOther,
			Message: fmt.Sprintf("unexpected embedding dimension %d, want %d", len(embedding), e.dim),
		}
	}
	return embedding, nil
}

// apiErrorMessage pulls the provider's error message out of a non-200
// body, falling back to the raw body.
func apiErrorMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return truncate(string(body), 200)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
