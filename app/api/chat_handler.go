package api

import (
	"context"
	"log/slog"
	"math"

	"vectorchat/app/agent"
	"vectorchat/types"

	"github.com/gofiber/fiber/v2"
)

// ContextBuilder assembles the grounding block for one chat turn.
type ContextBuilder interface {
	BuildContext(ctx context.Context, query string, maxChunks int) (string, []types.ScoredChunk, error)
}

// Completer is the completion gateway boundary.
type Completer interface {
	Complete(ctx context.Context, model, systemPrompt string, history []types.Message) (*types.Completion, error)
}

type ChatHandler struct {
	builder   ContextBuilder
	completer Completer
	cfg       types.Config
	logger    *slog.Logger
}

func NewChatHandler(builder ContextBuilder, completer Completer, cfg types.Config) *ChatHandler {
	return &ChatHandler{
		builder:   builder,
		completer: completer,
		cfg:       cfg,
		logger:    slog.Default(),
	}
}

type ChatResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Model   string              `json:"model"`
	RagUsed bool                `json:"rag_used"`
	Sources []types.ChunkSource `json:"sources,omitempty"`
}

// HandleChat runs one chat turn. The conversation history, model
// choice and RAG toggle arrive with the request; nothing is kept
// between turns on the server.
func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var params types.ChatParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	chatModel := params.Model
	if chatModel == "" {
		chatModel = agent.DefaultModel
	}
	if !agent.ValidModel(chatModel) {
		return NewError(fiber.StatusBadRequest, "unknown model: "+chatModel)
	}

	// Retrieval failures never fail the chat turn; the answer just
	// goes out ungrounded.
	var ragContext string
	var sources []types.ChunkSource
	if params.RAGRequested() {
		block, scored, err := h.builder.BuildContext(c.Context(), params.Message, h.cfg.ContextChunks)
		if err != nil {
			h.logger.Warn("retrieval unavailable, continuing without context", "error", err)
		} else {
			ragContext = block
			sources = formatSources(scored)
		}
	}

	systemPrompt := agent.SystemPrompt(h.cfg.SystemPrompt, ragContext)
	history := append(params.History, types.Message{Role: "user", Content: params.Message})

	completion, err := h.completer.Complete(c.Context(), chatModel, systemPrompt, history)
	if err != nil {
		return err
	}

	return c.JSON(ChatResponse{
		Success: true,
		Message: completion.Message,
		Model:   completion.Model,
		RagUsed: ragContext != "",
		Sources: sources,
	})
}

// HandleModels lists the model catalog for the selection dropdown.
func (h *ChatHandler) HandleModels(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"models":  agent.Catalog,
		"default": agent.DefaultModel,
	})
}

func formatSources(chunks []types.ScoredChunk) []types.ChunkSource {
	if len(chunks) == 0 {
		return nil
	}
	sources := make([]types.ChunkSource, len(chunks))
	for i, chunk := range chunks {
		title := chunk.Title
		if title == "" {
			title = chunk.SourceName
		}
		sources[i] = types.ChunkSource{
			Title:      title,
			Similarity: int(math.Round(chunk.Similarity * 100)),
		}
	}
	return sources
}
