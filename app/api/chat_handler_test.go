package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"vectorchat/app/agent"
	"vectorchat/types"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBuilder struct {
	block   string
	scored  []types.ScoredChunk
	err     error
	queries []string
}

func (s *stubBuilder) BuildContext(ctx context.Context, query string, maxChunks int) (string, []types.ScoredChunk, error) {
	s.queries = append(s.queries, query)
	return s.block, s.scored, s.err
}

type stubCompleter struct {
	completion *types.Completion
	err        error
	gotModel   string
	gotSystem  string
	gotHistory []types.Message
}

func (s *stubCompleter) Complete(ctx context.Context, model, systemPrompt string, history []types.Message) (*types.Completion, error) {
	s.gotModel = model
	s.gotSystem = systemPrompt
	s.gotHistory = history
	if s.err != nil {
		return nil, s.err
	}
	return s.completion, nil
}

func chatApp(builder ContextBuilder, completer Completer, cfg types.Config) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	h := NewChatHandler(builder, completer, cfg)
	app.Post("/api/v1/chat", h.HandleChat)
	app.Get("/api/v1/models", h.HandleModels)
	return app
}

func postChat(t *testing.T, app *fiber.App, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHandleChat_GroundedTurn(t *testing.T) {
	builder := &stubBuilder{
		block: "Relevant information from the knowledge base:\n\n【Guide】(relevance: 92%)\nfacts\n\n",
		scored: []types.ScoredChunk{
			{Chunk: types.Chunk{Title: "Guide"}, Similarity: 0.92},
		},
	}
	completer := &stubCompleter{completion: &types.Completion{Message: "grounded answer", Model: agent.DefaultModel}}
	app := chatApp(builder, completer, types.Config{ContextChunks: 4, SystemPrompt: "base prompt"})

	resp := postChat(t, app, fiber.Map{"message": "when is the premiere?"})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON[ChatResponse](t, resp)
	assert.True(t, body.Success)
	assert.True(t, body.RagUsed)
	assert.Equal(t, "grounded answer", body.Message)
	require.Len(t, body.Sources, 1)
	assert.Equal(t, "Guide", body.Sources[0].Title)
	assert.Equal(t, 92, body.Sources[0].Similarity)

	assert.Equal(t, []string{"when is the premiere?"}, builder.queries)
	assert.Contains(t, completer.gotSystem, "【Guide】")
	require.Len(t, completer.gotHistory, 1)
	assert.Equal(t, "when is the premiere?", completer.gotHistory[0].Content)
}

func TestHandleChat_RagDisabled(t *testing.T) {
	builder := &stubBuilder{block: "should not be used"}
	completer := &stubCompleter{completion: &types.Completion{Message: "plain answer", Model: agent.DefaultModel}}
	app := chatApp(builder, completer, types.Config{ContextChunks: 4, SystemPrompt: "base prompt"})

	resp := postChat(t, app, fiber.Map{"message": "hi", "rag_enabled": false})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON[ChatResponse](t, resp)
	assert.False(t, body.RagUsed)
	assert.Empty(t, body.Sources)
	assert.Empty(t, builder.queries)
	assert.Equal(t, "base prompt", completer.gotSystem)
}

func TestHandleChat_RetrievalFailureDegrades(t *testing.T) {
	builder := &stubBuilder{err: &types.StoreUnavailableError{Err: errors.New("db down")}}
	completer := &stubCompleter{completion: &types.Completion{Message: "ungrounded answer", Model: agent.DefaultModel}}
	app := chatApp(builder, completer, types.Config{ContextChunks: 4, SystemPrompt: "base prompt"})

	resp := postChat(t, app, fiber.Map{"message": "hi"})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON[ChatResponse](t, resp)
	assert.True(t, body.Success)
	assert.False(t, body.RagUsed)
	assert.Equal(t, "ungrounded answer", body.Message)
}

func TestHandleChat_MissingMessage(t *testing.T) {
	app := chatApp(&stubBuilder{}, &stubCompleter{}, types.Config{})

	resp := postChat(t, app, fiber.Map{"history": []types.Message{}})

	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decodeJSON[ValidationError](t, resp)
	assert.Contains(t, body.Errors, "Message")
}

func TestHandleChat_UnknownModel(t *testing.T) {
	app := chatApp(&stubBuilder{}, &stubCompleter{}, types.Config{})

	resp := postChat(t, app, fiber.Map{"message": "hi", "model": "made-up/model"})

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeJSON[Error](t, resp)
	assert.Contains(t, body.Message, "made-up/model")
}

func TestHandleChat_DefaultModel(t *testing.T) {
	completer := &stubCompleter{completion: &types.Completion{Message: "ok", Model: agent.DefaultModel}}
	falseVal := false
	app := chatApp(&stubBuilder{}, completer, types.Config{})

	resp := postChat(t, app, types.ChatParams{Message: "hi", RagEnabled: &falseVal})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, agent.DefaultModel, completer.gotModel)
}

func TestHandleChat_GatewayErrorMapsToBadGateway(t *testing.T) {
	completer := &stubCompleter{err: types.NewServiceError(http.StatusTooManyRequests, "slow down")}
	falseVal := false
	app := chatApp(&stubBuilder{}, completer, types.Config{})

	resp := postChat(t, app, types.ChatParams{Message: "hi", RagEnabled: &falseVal})

	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	body := decodeJSON[Error](t, resp)
	assert.Contains(t, body.Message, "slow down")
}

func TestHandleChat_InvalidJSON(t *testing.T) {
	app := chatApp(&stubBuilder{}, &stubCompleter{}, types.Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleModels(t *testing.T) {
	app := chatApp(&stubBuilder{}, &stubCompleter{}, types.Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON[struct {
		Models  []agent.ModelInfo `json:"models"`
		Default string            `json:"default"`
	}](t, resp)
	assert.Equal(t, agent.DefaultModel, body.Default)
	assert.NotEmpty(t, body.Models)
}
